package models

import (
	"time"

	"gorm.io/gorm"
)

// PaymentTransaction is the central entity of the engine. Created exactly
// once in status initiated and owned by the orchestrator thereafter; rows
// are never hard-deleted.
type PaymentTransaction struct {
	ID          uint   `gorm:"primarykey" json:"id"`
	Reference   string `gorm:"uniqueIndex;not null" json:"reference"`
	ProviderRef string `gorm:"index" json:"provider_ref"`

	ClientID   uint   `gorm:"index;not null" json:"client_id"`
	PayerPhone string `gorm:"index;not null" json:"payer_phone"`
	PayerName  string `json:"payer_name"`
	PayerEmail string `json:"payer_email"`

	Amount    Money  `gorm:"type:decimal(20,2);not null" json:"amount"`
	Fee       Money  `gorm:"type:decimal(20,2);not null;default:0" json:"fee"`
	NetAmount Money  `gorm:"type:decimal(20,2);not null" json:"net_amount"`
	Currency  string `gorm:"not null" json:"currency"`

	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`

	GatewayType string `gorm:"index;not null" json:"gateway_type"`
	Purpose     string `gorm:"not null" json:"purpose"`
	Description string `json:"description"`
	CallbackURL string `gorm:"type:text" json:"callback_url"`

	Status        string `gorm:"index;not null" json:"status"`
	StatusMessage string `json:"status_message"`
	ErrorCode     string `json:"error_code"`

	RiskLevel            string     `gorm:"not null" json:"risk_level"`
	RequiresManualReview bool       `gorm:"not null;default:false" json:"requires_manual_review"`
	ReviewedBy           string     `json:"reviewed_by"`
	ReviewedAt           *time.Time `json:"reviewed_at"`

	InitiatedAt time.Time  `gorm:"index;not null" json:"initiated_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	CompletedAt *time.Time `gorm:"index" json:"completed_at"`
	FailedAt    *time.Time `json:"failed_at"`
	ExpiresAt   time.Time  `gorm:"index;not null" json:"expires_at"`

	RetryCount  int        `gorm:"not null;default:0" json:"retry_count"`
	LastRetryAt *time.Time `json:"last_retry_at"`
	NextRetryAt *time.Time `gorm:"index" json:"next_retry_at"`

	IsReconciled bool       `gorm:"index;not null;default:false" json:"is_reconciled"`
	ReconciledAt *time.Time `json:"reconciled_at"`
	ReconciledBy string     `json:"reconciled_by"`

	ProviderPayload JSON `gorm:"type:json" json:"provider_payload"`

	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName sets the table name.
func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}
