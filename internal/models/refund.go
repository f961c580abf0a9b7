package models

import (
	"time"

	"gorm.io/gorm"
)

// Refund references a completed transaction; a transaction may carry any
// number of refunds as long as their sum stays within the original amount.
type Refund struct {
	ID                    uint       `gorm:"primarykey" json:"id"`
	OriginalTransactionID uint       `gorm:"index;not null" json:"original_transaction_id"`
	Reference             string     `gorm:"uniqueIndex;not null" json:"reference"`
	ProviderRef           string     `gorm:"index" json:"provider_ref"`
	Amount                Money      `gorm:"type:decimal(20,2);not null" json:"amount"`
	Currency              string     `gorm:"not null" json:"currency"`
	Reason                string     `json:"reason"`
	Status                string     `gorm:"index;not null" json:"status"`
	RequestedBy           string     `json:"requested_by"`
	CompletedAt           *time.Time `json:"completed_at"`

	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName sets the table name.
func (Refund) TableName() string {
	return "refunds"
}
