package repository

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/leonepay/internal/constants"
	"github.com/leonepay/internal/models"
)

// TransactionListFilter narrows transaction listings.
type TransactionListFilter struct {
	Status           string
	GatewayType      string
	PayerPhone       string
	ClientID         string
	RequiresReview   *bool
	IsReconciled     *bool
	CreatedFrom      *time.Time
	CreatedTo        *time.Time
	Page             int
	PageSize         int
}

// TransactionRepository is the payment transaction data access interface.
type TransactionRepository interface {
	Create(tx *models.PaymentTransaction) error
	GetByID(id uint) (*models.PaymentTransaction, error)
	GetByIDForUpdate(id uint) (*models.PaymentTransaction, error)
	GetByReference(reference string) (*models.PaymentTransaction, error)
	GetByProviderRef(gatewayType, providerRef string) (*models.PaymentTransaction, error)
	Update(id uint, updates map[string]interface{}) error
	List(filter TransactionListFilter) ([]models.PaymentTransaction, int64, error)
	ListExpiredCandidates(now time.Time, limit int) ([]models.PaymentTransaction, error)
	ListPendingForPoll(olderThan time.Time, limit int) ([]models.PaymentTransaction, error)
	ListCompletedForDay(dayStart, dayEnd time.Time) ([]models.PaymentTransaction, error)
	WithTx(tx *gorm.DB) *GormTransactionRepository
}

// GormTransactionRepository is the GORM implementation.
type GormTransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates the transaction repository.
func NewTransactionRepository(db *gorm.DB) *GormTransactionRepository {
	return &GormTransactionRepository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *GormTransactionRepository) WithTx(tx *gorm.DB) *GormTransactionRepository {
	if tx == nil {
		return r
	}
	return &GormTransactionRepository{db: tx}
}

// Create inserts a new transaction.
func (r *GormTransactionRepository) Create(tx *models.PaymentTransaction) error {
	return r.db.Create(tx).Error
}

// GetByID fetches a transaction by ID.
func (r *GormTransactionRepository) GetByID(id uint) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	if err := r.db.First(&tx, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

// GetByIDForUpdate fetches a transaction by ID with a row lock. Must be
// called on a repository bound to an open transaction.
func (r *GormTransactionRepository) GetByIDForUpdate(id uint) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&tx, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

// GetByReference fetches a transaction by its engine reference.
func (r *GormTransactionRepository) GetByReference(reference string) (*models.PaymentTransaction, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, nil
	}
	var tx models.PaymentTransaction
	if err := r.db.Where("reference = ?", reference).First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

// GetByProviderRef fetches the latest transaction carrying a provider
// reference on a gateway.
func (r *GormTransactionRepository) GetByProviderRef(gatewayType, providerRef string) (*models.PaymentTransaction, error) {
	providerRef = strings.TrimSpace(providerRef)
	if providerRef == "" {
		return nil, nil
	}
	var tx models.PaymentTransaction
	err := r.db.Where("gateway_type = ? AND provider_ref = ?", gatewayType, providerRef).
		Order("id DESC").
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

// Update applies column updates to a transaction.
func (r *GormTransactionRepository) Update(id uint, updates map[string]interface{}) error {
	return r.db.Model(&models.PaymentTransaction{}).Where("id = ?", id).Updates(updates).Error
}

// List returns a filtered, paginated transaction page plus total count.
func (r *GormTransactionRepository) List(filter TransactionListFilter) ([]models.PaymentTransaction, int64, error) {
	query := r.db.Model(&models.PaymentTransaction{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.GatewayType != "" {
		query = query.Where("gateway_type = ?", filter.GatewayType)
	}
	if filter.PayerPhone != "" {
		query = query.Where("payer_phone = ?", filter.PayerPhone)
	}
	if filter.ClientID != "" {
		query = query.Where("client_id = ?", filter.ClientID)
	}
	if filter.RequiresReview != nil {
		query = query.Where("requires_manual_review = ?", *filter.RequiresReview)
	}
	if filter.IsReconciled != nil {
		query = query.Where("is_reconciled = ?", *filter.IsReconciled)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at < ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, pageSize := NormalizePagination(filter.Page, filter.PageSize)
	var txs []models.PaymentTransaction
	err := query.Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&txs).Error
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

// ListExpiredCandidates returns live transactions whose deadline has
// passed, used by the expiry sweep as a backstop for missed tasks.
func (r *GormTransactionRepository) ListExpiredCandidates(now time.Time, limit int) ([]models.PaymentTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var txs []models.PaymentTransaction
	err := r.db.Where("status IN ?", []string{
		constants.TxStatusInitiated,
		constants.TxStatusProcessing,
		constants.TxStatusPending,
	}).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// ListPendingForPoll returns pending transactions stale enough to be
// worth a provider status poll.
func (r *GormTransactionRepository) ListPendingForPoll(olderThan time.Time, limit int) ([]models.PaymentTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var txs []models.PaymentTransaction
	err := r.db.Where("status = ?", constants.TxStatusPending).
		Where("provider_ref <> ''").
		Where("updated_at <= ?", olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// ListCompletedForDay returns completed transactions inside a day window,
// the engine-side input of reconciliation.
func (r *GormTransactionRepository) ListCompletedForDay(dayStart, dayEnd time.Time) ([]models.PaymentTransaction, error) {
	var txs []models.PaymentTransaction
	err := r.db.Where("status = ?", constants.TxStatusCompleted).
		Where("completed_at >= ? AND completed_at < ?", dayStart, dayEnd).
		Order("completed_at ASC").
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}
