package service

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/leonepay/internal/constants"
	"github.com/leonepay/internal/models"
	"github.com/leonepay/internal/repository"
)

// LimitEnforcer guards the per-payer daily and monthly caps through the
// limit ledger. Reservation, release and commit all run inside the
// caller's database transaction and take the ledger row lock, so
// concurrent initiations for the same payer serialize on the day row
// and can never jointly exceed a cap.
type LimitEnforcer struct {
	ledgerRepo repository.LimitLedgerRepository
	location   *time.Location
}

// NewLimitEnforcer creates a limit enforcer using the market time zone
// for calendar windows.
func NewLimitEnforcer(ledgerRepo repository.LimitLedgerRepository) *LimitEnforcer {
	loc, err := time.LoadLocation(constants.MarketTimeZone)
	if err != nil {
		loc = time.UTC
	}
	return &LimitEnforcer{ledgerRepo: ledgerRepo, location: loc}
}

// DayKey returns the calendar day of t in the market time zone.
func (e *LimitEnforcer) DayKey(t time.Time) string {
	return t.In(e.location).Format("2006-01-02")
}

// MonthKey returns the calendar month of t in the market time zone.
func (e *LimitEnforcer) MonthKey(t time.Time) string {
	return t.In(e.location).Format("2006-01")
}

// Reserve charges amount against the payer's caps for the day of at.
// Fails with ErrDailyLimitExceeded or ErrMonthlyLimitExceeded when the
// reservation would push reserved+completed usage over a configured cap.
// A zero cap means uncapped.
func (e *LimitEnforcer) Reserve(tx *gorm.DB, cfg *models.GatewayConfig, payerPhone string, amount models.Money, at time.Time) error {
	ledger, err := e.ledgerRepo.WithTx(tx).GetForUpdate(payerPhone, cfg.GatewayType, e.DayKey(at))
	if err != nil {
		return err
	}

	dayUsage := ledger.ReservedAmount.Decimal.Add(ledger.CompletedAmount.Decimal)
	if cfg.DailyLimit.Decimal.IsPositive() && dayUsage.Add(amount.Decimal).GreaterThan(cfg.DailyLimit.Decimal) {
		return fmt.Errorf("%w: used %s of %s", ErrDailyLimitExceeded,
			dayUsage.StringFixed(2), cfg.DailyLimit.String())
	}

	if cfg.MonthlyLimit.Decimal.IsPositive() {
		reserved, completed, err := e.ledgerRepo.WithTx(tx).SumForMonth(payerPhone, cfg.GatewayType, e.MonthKey(at))
		if err != nil {
			return err
		}
		monthUsage := reserved.Decimal.Add(completed.Decimal)
		if monthUsage.Add(amount.Decimal).GreaterThan(cfg.MonthlyLimit.Decimal) {
			return fmt.Errorf("%w: used %s of %s", ErrMonthlyLimitExceeded,
				monthUsage.StringFixed(2), cfg.MonthlyLimit.String())
		}
	}

	ledger.ReservedAmount = models.NewMoneyFromDecimal(ledger.ReservedAmount.Decimal.Add(amount.Decimal))
	return e.ledgerRepo.WithTx(tx).Save(ledger)
}

// Release gives back a reservation after a payment fails, is cancelled
// or expires. The day is the day the reservation was taken.
func (e *LimitEnforcer) Release(tx *gorm.DB, gatewayType, payerPhone string, amount models.Money, reservedAt time.Time) error {
	ledger, err := e.ledgerRepo.WithTx(tx).GetForUpdate(payerPhone, gatewayType, e.DayKey(reservedAt))
	if err != nil {
		return err
	}
	remaining := ledger.ReservedAmount.Decimal.Sub(amount.Decimal)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	ledger.ReservedAmount = models.NewMoneyFromDecimal(remaining)
	return e.ledgerRepo.WithTx(tx).Save(ledger)
}

// Commit converts a reservation into completed usage when a payment
// succeeds, keeping it counted against the caps.
func (e *LimitEnforcer) Commit(tx *gorm.DB, gatewayType, payerPhone string, amount models.Money, reservedAt time.Time) error {
	ledger, err := e.ledgerRepo.WithTx(tx).GetForUpdate(payerPhone, gatewayType, e.DayKey(reservedAt))
	if err != nil {
		return err
	}
	reserved := ledger.ReservedAmount.Decimal.Sub(amount.Decimal)
	if reserved.IsNegative() {
		reserved = decimal.Zero
	}
	ledger.ReservedAmount = models.NewMoneyFromDecimal(reserved)
	ledger.CompletedAmount = models.NewMoneyFromDecimal(ledger.CompletedAmount.Decimal.Add(amount.Decimal))
	return e.ledgerRepo.WithTx(tx).Save(ledger)
}
