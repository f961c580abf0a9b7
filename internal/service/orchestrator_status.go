package service

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/leonepay/internal/constants"
	"github.com/leonepay/internal/logger"
	"github.com/leonepay/internal/models"
)

// StatusUpdate is a provider-sourced status change request.
type StatusUpdate struct {
	Status      string
	Message     string
	ErrorCode   string
	ProviderRef string
	Raw         map[string]interface{}
	Actor       string
	Action      string
}

// ApplyProviderStatus is the single entry point for provider-sourced
// status changes, shared by dispatch results, webhooks and status polls.
// It validates the transition under a row lock, settles the limit
// reservation and appends the audit row atomically, then notifies the
// client. Re-applying the current status is a no-op.
func (o *TransactionOrchestrator) ApplyProviderStatus(ctx context.Context, id uint, update StatusUpdate) (*models.PaymentTransaction, error) {
	var txn *models.PaymentTransaction
	var changed bool
	err := o.db.Transaction(func(tx *gorm.DB) error {
		var err error
		txn, err = o.txRepo.WithTx(tx).GetByIDForUpdate(id)
		if err != nil {
			return err
		}
		if txn == nil {
			return ErrTransactionNotFound
		}
		if txn.Status == update.Status {
			return nil
		}
		if !isTransitionAllowed(txn.Status, update.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrTransitionInvalid, txn.Status, update.Status)
		}

		now := o.now()
		previous := txn.Status
		updates := map[string]interface{}{
			"status":         update.Status,
			"status_message": update.Message,
		}
		if update.ErrorCode != "" {
			updates["error_code"] = update.ErrorCode
		}
		if update.ProviderRef != "" {
			updates["provider_ref"] = update.ProviderRef
			txn.ProviderRef = update.ProviderRef
		}
		if update.Raw != nil {
			updates["provider_payload"] = models.JSON(update.Raw)
		}

		switch update.Status {
		case constants.TxStatusCompleted:
			updates["completed_at"] = now
			txn.CompletedAt = &now
			if err := o.limits.Commit(tx, txn.GatewayType, txn.PayerPhone, txn.Amount, txn.InitiatedAt); err != nil {
				return err
			}
		case constants.TxStatusFailed:
			updates["failed_at"] = now
			txn.FailedAt = &now
			if err := o.limits.Release(tx, txn.GatewayType, txn.PayerPhone, txn.Amount, txn.InitiatedAt); err != nil {
				return err
			}
		case constants.TxStatusCancelled, constants.TxStatusExpired:
			if err := o.limits.Release(tx, txn.GatewayType, txn.PayerPhone, txn.Amount, txn.InitiatedAt); err != nil {
				return err
			}
		}

		if err := o.txRepo.WithTx(tx).Update(txn.ID, updates); err != nil {
			return err
		}
		txn.Status = update.Status
		txn.StatusMessage = update.Message
		if update.ErrorCode != "" {
			txn.ErrorCode = update.ErrorCode
		}
		changed = true

		action := update.Action
		if action == "" {
			action = constants.TxActionStatusUpdate
		}
		return o.logRepo.WithTx(tx).Append(&models.TransactionLog{
			TransactionID:  txn.ID,
			Action:         action,
			PreviousStatus: previous,
			NewStatus:      update.Status,
			Actor:          update.Actor,
			Details: models.JSON{
				"message":      update.Message,
				"error_code":   update.ErrorCode,
				"provider_ref": txn.ProviderRef,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	if changed {
		o.notifier.NotifyStatusChange(ctx, txn)
	}
	return txn, nil
}

// RetryPayment re-arms a failed transaction for another attempt,
// re-reserving its limits and extending the deadline. The attempt count
// is bounded by the gateway's retry_attempts.
func (o *TransactionOrchestrator) RetryPayment(ctx context.Context, id uint, actor string) (*models.PaymentTransaction, error) {
	cfgByType := func(gatewayType string) (*models.GatewayConfig, error) {
		cfg, err := o.configs.GetActiveByType(ctx, gatewayType)
		if err != nil {
			return nil, err
		}
		if cfg == nil {
			return nil, fmt.Errorf("%w: %s", ErrGatewayUnavailable, gatewayType)
		}
		return cfg, nil
	}

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
		if txn.Status != constants.TxStatusFailed {
			return fmt.Errorf("%w: retry requires failed, got %s", ErrTransitionInvalid, txn.Status)
		}
		cfg, err := cfgByType(txn.GatewayType)
		if err != nil {
			return err
		}
		if txn.RetryCount >= cfg.RetryAttempts {
			return fmt.Errorf("%w: %d of %d attempts used", ErrRetryExhausted, txn.RetryCount, cfg.RetryAttempts)
		}

		now := o.now()
		if err := o.limits.Reserve(tx, cfg, txn.PayerPhone, txn.Amount, now); err != nil {
			return err
		}

		previous := txn.Status
		expiresAt := now.Add(time.Duration(cfg.TimeoutSeconds) * time.Second)
		nextRetryAt := now.Add(time.Duration(cfg.RetryDelaySeconds) * time.Second)
		if err := o.txRepo.WithTx(tx).Update(txn.ID, map[string]interface{}{
			"status":         constants.TxStatusInitiated,
			"status_message": "",
			"error_code":     "",
			"retry_count":    txn.RetryCount + 1,
			"last_retry_at":  now,
			"next_retry_at":  nextRetryAt,
			"expires_at":     expiresAt,
			"initiated_at":   now,
		}); err != nil {
			return err
		}
		txn.Status = constants.TxStatusInitiated
		txn.RetryCount++
		txn.LastRetryAt = &now
		txn.NextRetryAt = &nextRetryAt
		txn.InitiatedAt = now
		txn.ExpiresAt = expiresAt

		return o.logRepo.WithTx(tx).Append(&models.TransactionLog{
			TransactionID:  txn.ID,
			Action:         constants.TxActionRetry,
			PreviousStatus: previous,
			NewStatus:      constants.TxStatusInitiated,
			Actor:          actor,
			Details:        models.JSON{"retry_count": txn.RetryCount},
		})
	})
	if err != nil {
		return nil, err
	}

	if err := o.scheduler.ScheduleExpire(txn.ID, txn.ExpiresAt); err != nil {
		logger.Warnw("expire_task_schedule_failed", "transaction_id", txn.ID, "error", err)
	}
	logger.Infow("payment_retry_armed",
		"transaction_id", txn.ID,
		"reference", txn.Reference,
		"retry_count", txn.RetryCount,
	)
	return txn, nil
}

// CancelTransaction cancels a live transaction and releases its limit
// reservation. failed_at records the cancellation time.
func (o *TransactionOrchestrator) CancelTransaction(ctx context.Context, id uint, actor, reason string) (*models.PaymentTransaction, error) {
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
		if constants.IsTerminalTxStatus(txn.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrTransitionInvalid, txn.Status, constants.TxStatusCancelled)
		}

		previous := txn.Status
		now := o.now()
		if err := o.limits.Release(tx, txn.GatewayType, txn.PayerPhone, txn.Amount, txn.InitiatedAt); err != nil {
			return err
		}
		if err := o.txRepo.WithTx(tx).Update(txn.ID, map[string]interface{}{
			"status":         constants.TxStatusCancelled,
			"status_message": reason,
			"failed_at":      now,
		}); err != nil {
			return err
		}
		txn.Status = constants.TxStatusCancelled
		txn.StatusMessage = reason
		txn.FailedAt = &now

		return o.logRepo.WithTx(tx).Append(&models.TransactionLog{
			TransactionID:  txn.ID,
			Action:         constants.TxActionCancel,
			PreviousStatus: previous,
			NewStatus:      constants.TxStatusCancelled,
			Actor:          actor,
			Details:        models.JSON{"reason": reason},
		})
	})
	if err != nil {
		return nil, err
	}

	o.notifier.NotifyStatusChange(ctx, txn)
	logger.Infow("payment_cancelled", "transaction_id", txn.ID, "reference", txn.Reference, "actor", actor)
	return txn, nil
}

// ExpireTransaction expires a live transaction whose deadline has
// passed. Terminal or not-yet-due transactions are left untouched, so
// the delayed expiry task and the lazy check can both call this safely.
func (o *TransactionOrchestrator) ExpireTransaction(ctx context.Context, id uint, actor string) (*models.PaymentTransaction, error) {
	var txn *models.PaymentTransaction
	var changed bool
	err := o.db.Transaction(func(tx *gorm.DB) error {
		var err error
		txn, err = o.txRepo.WithTx(tx).GetByIDForUpdate(id)
		if err != nil {
			return err
		}
		if txn == nil {
			return ErrTransactionNotFound
		}
		if constants.IsTerminalTxStatus(txn.Status) {
			return nil
		}
		if o.now().Before(txn.ExpiresAt) {
			return nil
		}
		changed = true
		return o.expireLocked(tx, txn, actor)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		o.notifier.NotifyStatusChange(ctx, txn)
		logger.Infow("payment_expired", "transaction_id", txn.ID, "reference", txn.Reference)
	}
	return txn, nil
}

// expireLocked transitions a locked live transaction to expired and
// releases its reservation. Caller holds the row lock.
func (o *TransactionOrchestrator) expireLocked(tx *gorm.DB, txn *models.PaymentTransaction, actor string) error {
	previous := txn.Status
	if err := o.limits.Release(tx, txn.GatewayType, txn.PayerPhone, txn.Amount, txn.InitiatedAt); err != nil {
		return err
	}
	if err := o.txRepo.WithTx(tx).Update(txn.ID, map[string]interface{}{
		"status":         constants.TxStatusExpired,
		"status_message": "deadline passed",
	}); err != nil {
		return err
	}
	txn.Status = constants.TxStatusExpired
	txn.StatusMessage = "deadline passed"

	return o.logRepo.WithTx(tx).Append(&models.TransactionLog{
		TransactionID:  txn.ID,
		Action:         constants.TxActionExpire,
		PreviousStatus: previous,
		NewStatus:      constants.TxStatusExpired,
		Actor:          actor,
	})
}

// SweepExpired expires every overdue live transaction. A backstop for
// delayed tasks lost to a queue outage.
func (o *TransactionOrchestrator) SweepExpired(ctx context.Context, limit int) (int, error) {
	candidates, err := o.txRepo.ListExpiredCandidates(o.now(), limit)
	if err != nil {
		return 0, err
	}
	expired := 0
	for i := range candidates {
		txn, err := o.ExpireTransaction(ctx, candidates[i].ID, "system:sweep")
		if err != nil {
			logger.Warnw("expire_sweep_item_failed", "transaction_id", candidates[i].ID, "error", err)
			continue
		}
		if txn.Status == constants.TxStatusExpired {
			expired++
		}
	}
	return expired, nil
}

// ReviewTransaction records a manual review verdict on a high-risk
// transaction. Rejection cancels it.
func (o *TransactionOrchestrator) ReviewTransaction(ctx context.Context, id uint, reviewer string, approve bool) (*models.PaymentTransaction, error) {
	txn, err := o.txRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, ErrTransactionNotFound
	}
	if !txn.RequiresManualReview {
		return nil, fmt.Errorf("%w: transaction does not require review", ErrStateConflict)
	}
	if txn.ReviewedAt != nil {
		return nil, fmt.Errorf("%w: already reviewed by %s", ErrStateConflict, txn.ReviewedBy)
	}

	if !approve {
		return o.CancelTransaction(ctx, id, "reviewer:"+reviewer, "rejected in manual review")
	}

	now := o.now()
	if err := o.txRepo.Update(id, map[string]interface{}{
		"reviewed_by": reviewer,
		"reviewed_at": now,
	}); err != nil {
		return nil, err
	}
	txn.ReviewedBy = reviewer
	txn.ReviewedAt = &now
	logger.Infow("payment_review_approved", "transaction_id", id, "reviewer", reviewer)
	return txn, nil
}

// GetTransaction fetches a transaction by ID.
func (o *TransactionOrchestrator) GetTransaction(ctx context.Context, id uint) (*models.PaymentTransaction, error) {
	txn, err := o.txRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, ErrTransactionNotFound
	}
	return txn, nil
}

// GetTransactionByReference fetches a transaction by engine reference.
func (o *TransactionOrchestrator) GetTransactionByReference(ctx context.Context, reference string) (*models.PaymentTransaction, error) {
	txn, err := o.txRepo.GetByReference(reference)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, ErrTransactionNotFound
	}
	return txn, nil
}

// GetAuditTrail returns the ordered action log of a transaction.
func (o *TransactionOrchestrator) GetAuditTrail(ctx context.Context, id uint) ([]models.TransactionLog, error) {
	txn, err := o.txRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, ErrTransactionNotFound
	}
	return o.logRepo.ListByTransaction(id)
}
