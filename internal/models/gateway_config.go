package models

import (
	"time"

	"gorm.io/gorm"
)

// GatewayConfig is the per-provider configuration row. Provider-specific
// settings live in the typed Settings blob and are parsed once by the
// matching adapter at registry build time, never ad hoc per request.
type GatewayConfig struct {
	ID          uint   `gorm:"primarykey" json:"id"`
	GatewayType string `gorm:"uniqueIndex;not null" json:"gateway_type"`
	DisplayName string `gorm:"not null" json:"display_name"`
	Currency    string `gorm:"not null" json:"currency"`

	MinAmount    Money `gorm:"type:decimal(20,2);not null;default:0" json:"min_amount"`
	MaxAmount    Money `gorm:"type:decimal(20,2);not null;default:0" json:"max_amount"`
	DailyLimit   Money `gorm:"type:decimal(20,2);not null;default:0" json:"daily_limit"`
	MonthlyLimit Money `gorm:"type:decimal(20,2);not null;default:0" json:"monthly_limit"`

	FeePercentage Money `gorm:"type:decimal(6,2);not null;default:0" json:"fee_percentage"`
	FixedFee      Money `gorm:"type:decimal(20,2);not null;default:0" json:"fixed_fee"`
	MinFee        Money `gorm:"type:decimal(20,2);not null;default:0" json:"min_fee"`
	MaxFee        Money `gorm:"type:decimal(20,2);not null;default:0" json:"max_fee"`

	TimeoutSeconds    int `gorm:"not null;default:900" json:"timeout_seconds"`
	RetryAttempts     int `gorm:"not null;default:3" json:"retry_attempts"`
	RetryDelaySeconds int `gorm:"not null;default:60" json:"retry_delay_seconds"`

	Settings  JSON `gorm:"type:json" json:"settings"`
	IsActive  bool `gorm:"not null;default:true" json:"is_active"`
	SortOrder int  `gorm:"not null;default:0" json:"sort_order"`

	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName sets the table name.
func (GatewayConfig) TableName() string {
	return "gateway_configs"
}
