package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leonepay/internal/constants"
	"github.com/leonepay/internal/gateway"
	"github.com/leonepay/internal/logger"
	"github.com/leonepay/internal/models"
	"github.com/leonepay/internal/repository"
)

// allowedTransitions is the status state graph. A transition to the
// current status is treated as an idempotent no-op, not an error.
var allowedTransitions = map[string][]string{
	constants.TxStatusInitiated: {
		constants.TxStatusProcessing,
		constants.TxStatusCancelled,
		constants.TxStatusExpired,
	},
	constants.TxStatusProcessing: {
		constants.TxStatusPending,
		constants.TxStatusCompleted,
		constants.TxStatusFailed,
		constants.TxStatusCancelled,
		constants.TxStatusExpired,
	},
	constants.TxStatusPending: {
		constants.TxStatusCompleted,
		constants.TxStatusFailed,
		constants.TxStatusCancelled,
		constants.TxStatusExpired,
	},
	constants.TxStatusFailed: {
		constants.TxStatusInitiated,
	},
	constants.TxStatusCompleted: {},
	constants.TxStatusCancelled: {},
	constants.TxStatusExpired:   {},
}

func isTransitionAllowed(current, target string) bool {
	if current == target {
		return true
	}
	for _, allowed := range allowedTransitions[current] {
		if allowed == target {
			return true
		}
	}
	return false
}

// TaskScheduler plants the delayed follow-up work of a payment: its
// expiry deadline, dispatch retries and status polls.
type TaskScheduler interface {
	ScheduleExpire(transactionID uint, at time.Time) error
	ScheduleRetryDispatch(transactionID uint, delay time.Duration) error
	ScheduleStatusPoll(transactionID uint, delay time.Duration, attempt int) error
}

// NopScheduler discards scheduling requests; status progress then relies
// on webhooks and the sweep endpoints.
type NopScheduler struct{}

func (NopScheduler) ScheduleExpire(uint, time.Time) error              { return nil }
func (NopScheduler) ScheduleRetryDispatch(uint, time.Duration) error   { return nil }
func (NopScheduler) ScheduleStatusPoll(uint, time.Duration, int) error { return nil }

// GatewayConfigSource serves the active gateway configuration used on
// the payment hot path. In production this is the redis-backed config
// cache; when unset the orchestrator falls back to direct repository
// reads.
type GatewayConfigSource interface {
	GetActiveByType(ctx context.Context, gatewayType string) (*models.GatewayConfig, error)
}

type repoConfigSource struct {
	repo repository.GatewayConfigRepository
}

func (s repoConfigSource) GetActiveByType(ctx context.Context, gatewayType string) (*models.GatewayConfig, error) {
	return s.repo.GetActiveByType(gatewayType)
}

// OrchestratorOptions wires the orchestrator dependencies.
type OrchestratorOptions struct {
	DB              *gorm.DB
	Transactions    repository.TransactionRepository
	Logs            repository.TransactionLogRepository
	GatewayConfigs  repository.GatewayConfigRepository
	Configs         GatewayConfigSource
	Refunds         repository.RefundRepository
	Limits          *LimitEnforcer
	Fees            *FeeCalculator
	Registry        *gateway.Registry
	Scheduler       TaskScheduler
	Notifier        Notifier
	Risk            RiskScorer
	CallbackBaseURL string
	PollInterval    time.Duration
}

// TransactionOrchestrator owns the payment lifecycle. Every status
// change goes through it, runs inside a database transaction under a row
// lock, and leaves exactly one audit log row.
type TransactionOrchestrator struct {
	db              *gorm.DB
	txRepo          repository.TransactionRepository
	logRepo         repository.TransactionLogRepository
	gatewayRepo     repository.GatewayConfigRepository
	configs         GatewayConfigSource
	refundRepo      repository.RefundRepository
	limits          *LimitEnforcer
	fees            *FeeCalculator
	registry        *gateway.Registry
	scheduler       TaskScheduler
	notifier        Notifier
	risk            RiskScorer
	callbackBaseURL string
	pollInterval    time.Duration

	now func() time.Time
}

// NewTransactionOrchestrator creates the orchestrator.
func NewTransactionOrchestrator(opts OrchestratorOptions) *TransactionOrchestrator {
	scheduler := opts.Scheduler
	if scheduler == nil {
		scheduler = NopScheduler{}
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = NopNotifier{}
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	configs := opts.Configs
	if configs == nil {
		configs = repoConfigSource{repo: opts.GatewayConfigs}
	}
	return &TransactionOrchestrator{
		db:              opts.DB,
		txRepo:          opts.Transactions,
		logRepo:         opts.Logs,
		gatewayRepo:     opts.GatewayConfigs,
		configs:         configs,
		refundRepo:      opts.Refunds,
		limits:          opts.Limits,
		fees:            opts.Fees,
		registry:        opts.Registry,
		scheduler:       scheduler,
		notifier:        notifier,
		risk:            opts.Risk,
		callbackBaseURL: strings.TrimRight(opts.CallbackBaseURL, "/"),
		pollInterval:    pollInterval,
		now:             time.Now,
	}
}

// generateReference builds a unique engine reference.
func generateReference(prefix string, now time.Time) string {
	fragment := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return prefix + now.Format("20060102150405") + fragment
}

// InitiatePaymentInput is the creation request of a payment.
type InitiatePaymentInput struct {
	ClientID    uint
	PayerPhone  string
	PayerName   string
	PayerEmail  string
	Amount      models.Money
	Currency    string
	GatewayType string
	Purpose     string
	Description string
	CallbackURL string
	IPAddress   string
	UserAgent   string
}

// InitiatePayment validates the request, reserves the payer's limits and
// creates the transaction in status initiated. The reservation and the
// row creation commit atomically.
func (o *TransactionOrchestrator) InitiatePayment(ctx context.Context, input InitiatePaymentInput) (*models.PaymentTransaction, error) {
	if !input.Amount.Decimal.IsPositive() {
		return nil, ErrAmountInvalid
	}
	if strings.TrimSpace(input.PayerPhone) == "" {
		return nil, fmt.Errorf("%w: payer phone is required", ErrValidation)
	}
	if strings.TrimSpace(input.Purpose) == "" {
		return nil, fmt.Errorf("%w: purpose is required", ErrValidation)
	}
	if !constants.KnownGatewayType(input.GatewayType) {
		return nil, fmt.Errorf("%w: unknown gateway type %q", ErrValidation, input.GatewayType)
	}

	cfg, err := o.configs.GetActiveByType(ctx, input.GatewayType)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: %s", ErrGatewayUnavailable, input.GatewayType)
	}
	adapter, ok := o.registry.Get(input.GatewayType)
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for %s", ErrGatewayUnavailable, input.GatewayType)
	}

	payerID, err := adapter.FormatIdentifier(input.PayerPhone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccountInvalid, err)
	}
	if err := adapter.ValidateAccount(payerID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccountInvalid, err)
	}

	currency := strings.TrimSpace(input.Currency)
	if currency == "" {
		currency = constants.CurrencyDefault
	}
	if currency != cfg.Currency {
		return nil, fmt.Errorf("%w: gateway %s settles in %s", ErrValidation, cfg.GatewayType, cfg.Currency)
	}
	if err := o.fees.CheckBounds(cfg, input.Amount); err != nil {
		return nil, err
	}
	fee, net, err := o.fees.Calculate(cfg, input.Amount)
	if err != nil {
		return nil, err
	}

	now := o.now()
	txn := &models.PaymentTransaction{
		Reference:   generateReference("PAY", now),
		ClientID:    input.ClientID,
		PayerPhone:  payerID,
		PayerName:   strings.TrimSpace(input.PayerName),
		PayerEmail:  strings.TrimSpace(input.PayerEmail),
		Amount:      input.Amount,
		Fee:         fee,
		NetAmount:   net,
		Currency:    currency,
		GatewayType: input.GatewayType,
		Purpose:     strings.TrimSpace(input.Purpose),
		Description: strings.TrimSpace(input.Description),
		CallbackURL: strings.TrimSpace(input.CallbackURL),
		IPAddress:   strings.TrimSpace(input.IPAddress),
		UserAgent:   strings.TrimSpace(input.UserAgent),
		Status:      constants.TxStatusInitiated,
		InitiatedAt: now,
		ExpiresAt:   now.Add(time.Duration(cfg.TimeoutSeconds) * time.Second),
	}
	txn.RiskLevel = o.risk.Score(txn)
	txn.RequiresManualReview = requiresManualReview(txn.RiskLevel)

	err = o.db.Transaction(func(tx *gorm.DB) error {
		if err := o.limits.Reserve(tx, cfg, txn.PayerPhone, txn.Amount, now); err != nil {
			return err
		}
		if err := o.txRepo.WithTx(tx).Create(txn); err != nil {
			return err
		}
		return o.logRepo.WithTx(tx).Append(&models.TransactionLog{
			TransactionID: txn.ID,
			Action:        constants.TxActionInitiate,
			NewStatus:     constants.TxStatusInitiated,
			Actor:         "client:" + fmt.Sprint(input.ClientID),
			Details: models.JSON{
				"amount":     txn.Amount.String(),
				"fee":        txn.Fee.String(),
				"net_amount": txn.NetAmount.String(),
				"risk_level": txn.RiskLevel,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if err := o.scheduler.ScheduleExpire(txn.ID, txn.ExpiresAt); err != nil {
		logger.Warnw("expire_task_schedule_failed", "transaction_id", txn.ID, "error", err)
	}
	logger.Infow("payment_initiated",
		"transaction_id", txn.ID,
		"reference", txn.Reference,
		"gateway_type", txn.GatewayType,
		"amount", txn.Amount.String(),
		"risk_level", txn.RiskLevel,
	)
	return txn, nil
}

// ProcessOptions carries per-dispatch data. PayerPIN is only set for
// PIN-debit rails and never persisted.
type ProcessOptions struct {
	PayerPIN string
	Actor    string
}

// ProcessPayment moves an initiated transaction to processing and
// dispatches it to the provider. Only initiated transactions qualify; a
// repeated call conflicts instead of sending the payment twice.
func (o *TransactionOrchestrator) ProcessPayment(ctx context.Context, id uint, opts ProcessOptions) (*models.PaymentTransaction, error) {
	var txn *models.PaymentTransaction
	err := o.db.Transaction(func(tx *gorm.DB) error {
		var err error
		txn, err = o.txRepo.WithTx(tx).GetByIDForUpdate(id)
		if err != nil {
			return err
		}
		if txn == nil {
			return ErrTransactionNotFound
		}
		if o.now().After(txn.ExpiresAt) {
			return o.expireLocked(tx, txn, "system")
		}
		if txn.RequiresManualReview && txn.ReviewedAt == nil {
			return ErrManualReviewRequired
		}
		if txn.Status != constants.TxStatusInitiated {
			return fmt.Errorf("%w: %s -> %s", ErrTransitionInvalid, txn.Status, constants.TxStatusProcessing)
		}

		now := o.now()
		previous := txn.Status
		txn.Status = constants.TxStatusProcessing
		txn.ProcessedAt = &now
		if err := o.txRepo.WithTx(tx).Update(txn.ID, map[string]interface{}{
			"status":       txn.Status,
			"processed_at": txn.ProcessedAt,
		}); err != nil {
			return err
		}
		return o.logRepo.WithTx(tx).Append(&models.TransactionLog{
			TransactionID:  txn.ID,
			Action:         constants.TxActionProcess,
			PreviousStatus: previous,
			NewStatus:      txn.Status,
			Actor:          opts.Actor,
		})
	})
	if err != nil {
		return nil, err
	}
	if txn.Status == constants.TxStatusExpired {
		return txn, ErrTransactionExpired
	}

	return o.DispatchToGateway(ctx, id, opts)
}

// DispatchToGateway sends a processing transaction to its provider and
// applies the immediate outcome. PIN-debit rails resolve here in one
// round trip; redirect rails come back pending with a redirect URL.
func (o *TransactionOrchestrator) DispatchToGateway(ctx context.Context, id uint, opts ProcessOptions) (*models.PaymentTransaction, error) {
	txn, err := o.txRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, ErrTransactionNotFound
	}
	if txn.Status != constants.TxStatusProcessing {
		return nil, fmt.Errorf("%w: dispatch requires processing, got %s", ErrTransitionInvalid, txn.Status)
	}
	adapter, ok := o.registry.Get(txn.GatewayType)
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for %s", ErrGatewayUnavailable, txn.GatewayType)
	}

	result, sendErr := adapter.SendPayment(ctx, gateway.PaymentRequest{
		Reference:       txn.Reference,
		Amount:          txn.Amount,
		Currency:        txn.Currency,
		PayerIdentifier: txn.PayerPhone,
		PayerPIN:        opts.PayerPIN,
		Description:     txn.Description,
		CallbackURL:     o.providerCallbackURL(txn.GatewayType),
	})
	if sendErr != nil {
		return o.handleDispatchFailure(ctx, txn, opts, sendErr)
	}

	update := StatusUpdate{
		Status:      result.Status,
		Message:     result.Message,
		ProviderRef: result.ProviderRef,
		Raw:         result.Raw,
		Actor:       "gateway:" + txn.GatewayType,
		Action:      constants.TxActionDispatch,
	}
	txn, err = o.ApplyProviderStatus(ctx, txn.ID, update)
	if err != nil {
		return nil, err
	}
	if txn.Status == constants.TxStatusPending {
		if err := o.scheduler.ScheduleStatusPoll(txn.ID, o.pollInterval, 1); err != nil {
			logger.Warnw("status_poll_schedule_failed", "transaction_id", txn.ID, "error", err)
		}
	}
	logger.Infow("payment_dispatched",
		"transaction_id", txn.ID,
		"reference", txn.Reference,
		"gateway_type", txn.GatewayType,
		"status", txn.Status,
	)
	return txn, nil
}

// handleDispatchFailure records a failed dispatch. Transient failures on
// rails that do not need payer interaction get an automatic delayed
// retry; PIN-debit dispatches need the payer to re-approve, so only the
// payer or client can retry those.
func (o *TransactionOrchestrator) handleDispatchFailure(ctx context.Context, txn *models.PaymentTransaction, opts ProcessOptions, sendErr error) (*models.PaymentTransaction, error) {
	code := "DISPATCH_FAILED"
	if gerr, ok := gateway.AsError(sendErr); ok {
		code = gerr.Code
	}
	retryable := gateway.IsRetryable(sendErr)

	cfg, cfgErr := o.gatewayRepo.GetByType(txn.GatewayType)
	if cfgErr != nil || cfg == nil {
		cfg = &models.GatewayConfig{RetryAttempts: 0, RetryDelaySeconds: 60}
	}
	canAutoRetry := retryable && opts.PayerPIN == "" && txn.RetryCount < cfg.RetryAttempts

	updated, err := o.ApplyProviderStatus(ctx, txn.ID, StatusUpdate{
		Status:    constants.TxStatusFailed,
		Message:   sendErr.Error(),
		ErrorCode: code,
		Actor:     "gateway:" + txn.GatewayType,
		Action:    constants.TxActionDispatch,
	})
	if err != nil {
		return nil, err
	}

	if canAutoRetry {
		delay := time.Duration(cfg.RetryDelaySeconds) * time.Second
		nextRetryAt := o.now().Add(delay)
		if err := o.txRepo.Update(txn.ID, map[string]interface{}{"next_retry_at": nextRetryAt}); err != nil {
			logger.Warnw("next_retry_stamp_failed", "transaction_id", txn.ID, "error", err)
		} else {
			updated.NextRetryAt = &nextRetryAt
		}
		if err := o.scheduler.ScheduleRetryDispatch(txn.ID, delay); err != nil {
			logger.Warnw("retry_task_schedule_failed", "transaction_id", txn.ID, "error", err)
		}
	}
	logger.Warnw("payment_dispatch_failed",
		"transaction_id", txn.ID,
		"reference", txn.Reference,
		"gateway_type", txn.GatewayType,
		"error_code", code,
		"retryable", retryable,
		"auto_retry", canAutoRetry,
	)
	if retryable && txn.RetryCount >= cfg.RetryAttempts {
		return updated, fmt.Errorf("%w: %v", ErrRetryExhausted, sendErr)
	}
	return updated, fmt.Errorf("%w: %v", ErrProvider, sendErr)
}

func (o *TransactionOrchestrator) providerCallbackURL(gatewayType string) string {
	if o.callbackBaseURL == "" {
		return ""
	}
	return o.callbackBaseURL + "/api/v1/webhooks/" + gatewayType
}
