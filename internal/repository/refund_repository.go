package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/leonepay/internal/constants"
	"github.com/leonepay/internal/models"
)

// RefundRepository is the refund data access interface.
type RefundRepository interface {
	Create(refund *models.Refund) error
	GetByID(id uint) (*models.Refund, error)
	GetByReference(reference string) (*models.Refund, error)
	ListByTransaction(transactionID uint) ([]models.Refund, error)
	SumSettledByTransaction(transactionID uint) (models.Money, error)
	Update(id uint, updates map[string]interface{}) error
	WithTx(tx *gorm.DB) *GormRefundRepository
}

// GormRefundRepository is the GORM implementation.
type GormRefundRepository struct {
	db *gorm.DB
}

// NewRefundRepository creates the refund repository.
func NewRefundRepository(db *gorm.DB) *GormRefundRepository {
	return &GormRefundRepository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *GormRefundRepository) WithTx(tx *gorm.DB) *GormRefundRepository {
	if tx == nil {
		return r
	}
	return &GormRefundRepository{db: tx}
}

// Create inserts a refund record.
func (r *GormRefundRepository) Create(refund *models.Refund) error {
	return r.db.Create(refund).Error
}

// GetByID fetches a refund by ID.
func (r *GormRefundRepository) GetByID(id uint) (*models.Refund, error) {
	var refund models.Refund
	if err := r.db.First(&refund, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &refund, nil
}

// GetByReference fetches a refund by its engine reference.
func (r *GormRefundRepository) GetByReference(reference string) (*models.Refund, error) {
	var refund models.Refund
	if err := r.db.Where("reference = ?", reference).First(&refund).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &refund, nil
}

// ListByTransaction returns all refunds of a transaction.
func (r *GormRefundRepository) ListByTransaction(transactionID uint) ([]models.Refund, error) {
	var refunds []models.Refund
	err := r.db.Where("original_transaction_id = ?", transactionID).
		Order("id ASC").
		Find(&refunds).Error
	if err != nil {
		return nil, err
	}
	return refunds, nil
}

// SumSettledByTransaction totals refunds that still count against the
// refundable amount: completed refunds plus in-flight pending ones.
func (r *GormRefundRepository) SumSettledByTransaction(transactionID uint) (models.Money, error) {
	var row struct {
		Total models.Money
	}
	err := r.db.Model(&models.Refund{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("original_transaction_id = ? AND status IN ?", transactionID, []string{
			constants.RefundStatusPending,
			constants.RefundStatusCompleted,
		}).
		Take(&row).Error
	if err != nil {
		return models.ZeroMoney(), err
	}
	return row.Total, nil
}

// Update applies column updates to a refund.
func (r *GormRefundRepository) Update(id uint, updates map[string]interface{}) error {
	return r.db.Model(&models.Refund{}).Where("id = ?", id).Updates(updates).Error
}
