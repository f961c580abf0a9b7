package models

import "time"

// WebhookReceipt records every inbound provider callback, matched or not,
// for provider-dispute resolution. Append-only.
type WebhookReceipt struct {
	ID                   uint      `gorm:"primarykey" json:"id"`
	GatewayType          string    `gorm:"index;not null" json:"gateway_type"`
	MatchedTransactionID *uint     `gorm:"index" json:"matched_transaction_id"`
	SignatureValid       bool      `gorm:"not null" json:"signature_valid"`
	Result               string    `gorm:"index;not null" json:"result"`
	Payload              string    `gorm:"type:text" json:"payload"`
	Message              string    `json:"message"`
	CreatedAt            time.Time `gorm:"index" json:"created_at"`
}

// TableName sets the table name.
func (WebhookReceipt) TableName() string {
	return "webhook_receipts"
}
