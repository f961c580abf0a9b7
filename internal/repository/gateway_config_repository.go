package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/leonepay/internal/models"
)

// GatewayConfigRepository is the gateway configuration access interface.
type GatewayConfigRepository interface {
	Create(cfg *models.GatewayConfig) error
	GetByType(gatewayType string) (*models.GatewayConfig, error)
	GetActiveByType(gatewayType string) (*models.GatewayConfig, error)
	ListActive() ([]models.GatewayConfig, error)
	ListAll() ([]models.GatewayConfig, error)
	Update(id uint, updates map[string]interface{}) error
	WithTx(tx *gorm.DB) *GormGatewayConfigRepository
}

// GormGatewayConfigRepository is the GORM implementation.
type GormGatewayConfigRepository struct {
	db *gorm.DB
}

// NewGatewayConfigRepository creates the gateway config repository.
func NewGatewayConfigRepository(db *gorm.DB) *GormGatewayConfigRepository {
	return &GormGatewayConfigRepository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *GormGatewayConfigRepository) WithTx(tx *gorm.DB) *GormGatewayConfigRepository {
	if tx == nil {
		return r
	}
	return &GormGatewayConfigRepository{db: tx}
}

// Create inserts a gateway configuration.
func (r *GormGatewayConfigRepository) Create(cfg *models.GatewayConfig) error {
	return r.db.Create(cfg).Error
}

// GetByType fetches the configuration for a gateway type.
func (r *GormGatewayConfigRepository) GetByType(gatewayType string) (*models.GatewayConfig, error) {
	var cfg models.GatewayConfig
	if err := r.db.Where("gateway_type = ?", gatewayType).First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

// GetActiveByType fetches the configuration only if the gateway is active.
func (r *GormGatewayConfigRepository) GetActiveByType(gatewayType string) (*models.GatewayConfig, error) {
	var cfg models.GatewayConfig
	err := r.db.Where("gateway_type = ? AND is_active = ?", gatewayType, true).First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

// ListActive returns active gateway configurations in display order.
func (r *GormGatewayConfigRepository) ListActive() ([]models.GatewayConfig, error) {
	var cfgs []models.GatewayConfig
	err := r.db.Where("is_active = ?", true).
		Order("sort_order ASC, id ASC").
		Find(&cfgs).Error
	if err != nil {
		return nil, err
	}
	return cfgs, nil
}

// ListAll returns every gateway configuration.
func (r *GormGatewayConfigRepository) ListAll() ([]models.GatewayConfig, error) {
	var cfgs []models.GatewayConfig
	if err := r.db.Order("sort_order ASC, id ASC").Find(&cfgs).Error; err != nil {
		return nil, err
	}
	return cfgs, nil
}

// Update applies column updates to a gateway configuration.
func (r *GormGatewayConfigRepository) Update(id uint, updates map[string]interface{}) error {
	return r.db.Model(&models.GatewayConfig{}).Where("id = ?", id).Updates(updates).Error
}
