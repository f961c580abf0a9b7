package models

import "time"

// TransactionLog is the append-only audit trail: one row per state-changing
// action. Rows are never updated or deleted.
type TransactionLog struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	TransactionID  uint      `gorm:"index;not null" json:"transaction_id"`
	Action         string    `gorm:"not null" json:"action"`
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	Actor          string    `json:"actor"`
	Details        JSON      `gorm:"type:json" json:"details"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}

// TableName sets the table name.
func (TransactionLog) TableName() string {
	return "transaction_logs"
}
