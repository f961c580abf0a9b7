package repository

import (
	"gorm.io/gorm"

	"github.com/leonepay/internal/models"
)

// WebhookReceiptRepository records inbound provider callbacks.
// Append-only.
type WebhookReceiptRepository interface {
	Create(receipt *models.WebhookReceipt) error
	ListByTransaction(transactionID uint) ([]models.WebhookReceipt, error)
	WithTx(tx *gorm.DB) *GormWebhookReceiptRepository
}

// GormWebhookReceiptRepository is the GORM implementation.
type GormWebhookReceiptRepository struct {
	db *gorm.DB
}

// NewWebhookReceiptRepository creates the receipt repository.
func NewWebhookReceiptRepository(db *gorm.DB) *GormWebhookReceiptRepository {
	return &GormWebhookReceiptRepository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *GormWebhookReceiptRepository) WithTx(tx *gorm.DB) *GormWebhookReceiptRepository {
	if tx == nil {
		return r
	}
	return &GormWebhookReceiptRepository{db: tx}
}

// Create inserts a receipt row.
func (r *GormWebhookReceiptRepository) Create(receipt *models.WebhookReceipt) error {
	return r.db.Create(receipt).Error
}

// ListByTransaction returns the receipts matched to a transaction.
func (r *GormWebhookReceiptRepository) ListByTransaction(transactionID uint) ([]models.WebhookReceipt, error) {
	var receipts []models.WebhookReceipt
	err := r.db.Where("matched_transaction_id = ?", transactionID).
		Order("id ASC").
		Find(&receipts).Error
	if err != nil {
		return nil, err
	}
	return receipts, nil
}
