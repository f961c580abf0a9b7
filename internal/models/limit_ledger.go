package models

import "time"

// LimitLedger is the atomic reservation counter behind the limit check:
// one row per (payer, gateway, calendar day), maintained under row locks
// in the same transaction that creates or finalizes a payment. Reserved
// amounts cover non-terminal transactions and are either released on
// failure/cancellation/expiry or moved to completed on success, so two
// concurrent initiations cannot jointly exceed a cap.
type LimitLedger struct {
	ID          uint   `gorm:"primarykey" json:"id"`
	PayerPhone  string `gorm:"uniqueIndex:idx_limit_ledger_key;not null" json:"payer_phone"`
	GatewayType string `gorm:"uniqueIndex:idx_limit_ledger_key;not null" json:"gateway_type"`
	Day         string `gorm:"uniqueIndex:idx_limit_ledger_key;not null" json:"day"` // YYYY-MM-DD in market time zone

	ReservedAmount  Money `gorm:"type:decimal(20,2);not null;default:0" json:"reserved_amount"`
	CompletedAmount Money `gorm:"type:decimal(20,2);not null;default:0" json:"completed_amount"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName sets the table name.
func (LimitLedger) TableName() string {
	return "limit_ledgers"
}
