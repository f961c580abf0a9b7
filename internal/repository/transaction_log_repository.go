package repository

import (
	"gorm.io/gorm"

	"github.com/leonepay/internal/models"
)

// TransactionLogRepository is the append-only audit trail access
// interface. Log rows are never updated or deleted.
type TransactionLogRepository interface {
	Append(log *models.TransactionLog) error
	ListByTransaction(transactionID uint) ([]models.TransactionLog, error)
	WithTx(tx *gorm.DB) *GormTransactionLogRepository
}

// GormTransactionLogRepository is the GORM implementation.
type GormTransactionLogRepository struct {
	db *gorm.DB
}

// NewTransactionLogRepository creates the log repository.
func NewTransactionLogRepository(db *gorm.DB) *GormTransactionLogRepository {
	return &GormTransactionLogRepository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *GormTransactionLogRepository) WithTx(tx *gorm.DB) *GormTransactionLogRepository {
	if tx == nil {
		return r
	}
	return &GormTransactionLogRepository{db: tx}
}

// Append writes one audit row.
func (r *GormTransactionLogRepository) Append(log *models.TransactionLog) error {
	return r.db.Create(log).Error
}

// ListByTransaction returns the full trail of a transaction in order.
func (r *GormTransactionLogRepository) ListByTransaction(transactionID uint) ([]models.TransactionLog, error) {
	var logs []models.TransactionLog
	err := r.db.Where("transaction_id = ?", transactionID).
		Order("id ASC").
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}
