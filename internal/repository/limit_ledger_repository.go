package repository

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/leonepay/internal/models"
)

// LimitLedgerRepository is the access interface of the per-day usage
// ledger. GetForUpdate must run inside the same database transaction as
// the payment it protects.
type LimitLedgerRepository interface {
	GetForUpdate(payerPhone, gatewayType, day string) (*models.LimitLedger, error)
	Save(ledger *models.LimitLedger) error
	SumForMonth(payerPhone, gatewayType, monthPrefix string) (reserved, completed models.Money, err error)
	WithTx(tx *gorm.DB) *GormLimitLedgerRepository
}

// GormLimitLedgerRepository is the GORM implementation.
type GormLimitLedgerRepository struct {
	db *gorm.DB
}

// NewLimitLedgerRepository creates the ledger repository.
func NewLimitLedgerRepository(db *gorm.DB) *GormLimitLedgerRepository {
	return &GormLimitLedgerRepository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *GormLimitLedgerRepository) WithTx(tx *gorm.DB) *GormLimitLedgerRepository {
	if tx == nil {
		return r
	}
	return &GormLimitLedgerRepository{db: tx}
}

// GetForUpdate fetches the day row under a row lock, creating it first
// if it does not exist yet. The unique key absorbs the create race: the
// loser of a concurrent insert falls through to the locked read.
func (r *GormLimitLedgerRepository) GetForUpdate(payerPhone, gatewayType, day string) (*models.LimitLedger, error) {
	row := models.LimitLedger{
		PayerPhone:  payerPhone,
		GatewayType: gatewayType,
		Day:         day,
	}
	err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, err
	}

	var ledger models.LimitLedger
	err = r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("payer_phone = ? AND gateway_type = ? AND day = ?", payerPhone, gatewayType, day).
		First(&ledger).Error
	if err != nil {
		return nil, err
	}
	return &ledger, nil
}

// Save persists updated ledger amounts.
func (r *GormLimitLedgerRepository) Save(ledger *models.LimitLedger) error {
	return r.db.Model(&models.LimitLedger{}).
		Where("id = ?", ledger.ID).
		Updates(map[string]interface{}{
			"reserved_amount":  ledger.ReservedAmount,
			"completed_amount": ledger.CompletedAmount,
		}).Error
}

// SumForMonth totals the ledger rows of one calendar month. monthPrefix
// is YYYY-MM in the market time zone.
func (r *GormLimitLedgerRepository) SumForMonth(payerPhone, gatewayType, monthPrefix string) (models.Money, models.Money, error) {
	var row struct {
		Reserved  models.Money
		Completed models.Money
	}
	err := r.db.Model(&models.LimitLedger{}).
		Select("COALESCE(SUM(reserved_amount), 0) AS reserved, COALESCE(SUM(completed_amount), 0) AS completed").
		Where("payer_phone = ? AND gateway_type = ? AND day LIKE ?", payerPhone, gatewayType, monthPrefix+"%").
		Take(&row).Error
	if err != nil {
		return models.ZeroMoney(), models.ZeroMoney(), err
	}
	return row.Reserved, row.Completed, nil
}
