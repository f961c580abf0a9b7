package service

import (
	"github.com/shopspring/decimal"

	"github.com/leonepay/internal/constants"
	"github.com/leonepay/internal/models"
)

// RiskScorer assigns a risk level to a payment before it is created.
// The transaction already carries the request context at this point:
// amount, payer identity, ip_address and user_agent.
type RiskScorer interface {
	Score(tx *models.PaymentTransaction) string
}

// AmountThresholdScorer is the built-in scorer: risk grows with amount.
// Thresholds come from configuration; a zero threshold disables its tier.
type AmountThresholdScorer struct {
	Medium   decimal.Decimal
	High     decimal.Decimal
	Critical decimal.Decimal
}

// NewAmountThresholdScorer parses threshold strings; unparseable or
// empty values disable the tier.
func NewAmountThresholdScorer(medium, high, critical string) *AmountThresholdScorer {
	parse := func(s string) decimal.Decimal {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero
		}
		return d
	}
	return &AmountThresholdScorer{
		Medium:   parse(medium),
		High:     parse(high),
		Critical: parse(critical),
	}
}

// Score maps the amount onto the threshold ladder.
func (s *AmountThresholdScorer) Score(tx *models.PaymentTransaction) string {
	amount := tx.Amount.Decimal
	switch {
	case s.Critical.IsPositive() && amount.GreaterThanOrEqual(s.Critical):
		return constants.RiskLevelCritical
	case s.High.IsPositive() && amount.GreaterThanOrEqual(s.High):
		return constants.RiskLevelHigh
	case s.Medium.IsPositive() && amount.GreaterThanOrEqual(s.Medium):
		return constants.RiskLevelMedium
	default:
		return constants.RiskLevelLow
	}
}

// requiresManualReview gates dispatch on high-risk payments.
func requiresManualReview(level string) bool {
	return constants.RiskRank(level) >= constants.RiskRank(constants.RiskLevelHigh)
}
