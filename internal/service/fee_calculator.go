package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/leonepay/internal/models"
)

var feeHundred = decimal.NewFromInt(100)

// FeeCalculator derives the fee and net amount of a payment from the
// gateway fee schedule. Pure decimal arithmetic, no I/O.
type FeeCalculator struct{}

// NewFeeCalculator creates a fee calculator.
func NewFeeCalculator() *FeeCalculator {
	return &FeeCalculator{}
}

// Calculate returns (fee, net) for an amount under a gateway's schedule.
// fee = amount * fee_percentage/100 + fixed_fee, clamped to
// [min_fee, max_fee] where those bounds are set, rounded to 2 decimals.
// The fee must leave a positive net amount.
func (c *FeeCalculator) Calculate(cfg *models.GatewayConfig, amount models.Money) (models.Money, models.Money, error) {
	if cfg == nil {
		return models.ZeroMoney(), models.ZeroMoney(), ErrGatewayUnavailable
	}
	if !amount.Decimal.IsPositive() {
		return models.ZeroMoney(), models.ZeroMoney(), ErrAmountInvalid
	}

	fee := amount.Decimal.Mul(cfg.FeePercentage.Decimal).Div(feeHundred).Add(cfg.FixedFee.Decimal)
	if cfg.MinFee.Decimal.IsPositive() && fee.LessThan(cfg.MinFee.Decimal) {
		fee = cfg.MinFee.Decimal
	}
	if cfg.MaxFee.Decimal.IsPositive() && fee.GreaterThan(cfg.MaxFee.Decimal) {
		fee = cfg.MaxFee.Decimal
	}
	if fee.IsNegative() {
		fee = decimal.Zero
	}
	fee = fee.Round(2)

	net := amount.Decimal.Sub(fee)
	if !net.IsPositive() {
		return models.ZeroMoney(), models.ZeroMoney(), ErrFeeExceedsAmount
	}
	return models.NewMoneyFromDecimal(fee), models.NewMoneyFromDecimal(net), nil
}

// CheckBounds validates the amount against the gateway min/max bounds.
func (c *FeeCalculator) CheckBounds(cfg *models.GatewayConfig, amount models.Money) error {
	if cfg.MinAmount.Decimal.IsPositive() && amount.Decimal.LessThan(cfg.MinAmount.Decimal) {
		return fmt.Errorf("%w: below minimum %s", ErrAmountOutOfRange, cfg.MinAmount.String())
	}
	if cfg.MaxAmount.Decimal.IsPositive() && amount.Decimal.GreaterThan(cfg.MaxAmount.Decimal) {
		return fmt.Errorf("%w: above maximum %s", ErrAmountOutOfRange, cfg.MaxAmount.String())
	}
	return nil
}
