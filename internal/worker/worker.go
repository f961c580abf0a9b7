// Package worker runs the asynq consumers of the engine's delayed tasks:
// expiry deadlines, dispatch retries and provider status polls.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/leonepay/internal/constants"
	"github.com/leonepay/internal/gateway"
	"github.com/leonepay/internal/logger"
	"github.com/leonepay/internal/queue"
	"github.com/leonepay/internal/service"
)

// Options wires the worker.
type Options struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
	Queues        map[string]int

	Orchestrator    *service.TransactionOrchestrator
	Registry        *gateway.Registry
	Scheduler       service.TaskScheduler
	PollInterval    time.Duration
	PollMaxAttempts int
}

// Worker consumes the engine task queues.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	opts   Options
}

// New builds the worker and registers its handlers.
func New(opts Options) *Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 10
	}
	if len(opts.Queues) == 0 {
		opts.Queues = map[string]int{
			constants.QueueDefault:  10,
			constants.QueueCritical: 5,
		}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Minute
	}
	if opts.PollMaxAttempts <= 0 {
		opts.PollMaxAttempts = 30
	}

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		},
		asynq.Config{
			Concurrency: opts.Concurrency,
			Queues:      opts.Queues,
			Logger:      logger.S(),
		},
	)

	w := &Worker{server: server, mux: asynq.NewServeMux(), opts: opts}
	w.mux.HandleFunc(constants.TaskPaymentExpire, w.handleExpire)
	w.mux.HandleFunc(constants.TaskPaymentRetry, w.handleRetryDispatch)
	w.mux.HandleFunc(constants.TaskPaymentStatusPoll, w.handleStatusPoll)
	return w
}

// Start runs the consumer loop in the background.
func (w *Worker) Start() error {
	return w.server.Start(w.mux)
}

// Shutdown stops the consumer loop.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

// handleExpire applies the expiry deadline. Transactions that resolved
// before the deadline are left untouched.
func (w *Worker) handleExpire(ctx context.Context, task *asynq.Task) error {
	var payload queue.ExpirePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("expire payload: %v: %w", err, asynq.SkipRetry)
	}
	txn, err := w.opts.Orchestrator.ExpireTransaction(ctx, payload.TransactionID, "system:task")
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return fmt.Errorf("expire: %v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	logger.Debugw("expire_task_done", "transaction_id", payload.TransactionID, "status", txn.Status)
	return nil
}

// handleRetryDispatch re-arms a failed redirect payment and dispatches
// it again. State conflicts mean the payment moved on; skip.
func (w *Worker) handleRetryDispatch(ctx context.Context, task *asynq.Task) error {
	var payload queue.RetryDispatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("retry payload: %v: %w", err, asynq.SkipRetry)
	}

	if _, err := w.opts.Orchestrator.RetryPayment(ctx, payload.TransactionID, "system:task"); err != nil {
		if errors.Is(err, service.ErrStateConflict) || errors.Is(err, service.ErrRetryExhausted) || errors.Is(err, service.ErrNotFound) {
			logger.Infow("retry_task_skipped", "transaction_id", payload.TransactionID, "reason", err.Error())
			return fmt.Errorf("retry skipped: %v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	_, err := w.opts.Orchestrator.ProcessPayment(ctx, payload.TransactionID, service.ProcessOptions{Actor: "system:task"})
	if err != nil {
		// Dispatch failures scheduled their own follow-up; do not retry
		// the task on top of it.
		logger.Warnw("retry_dispatch_failed", "transaction_id", payload.TransactionID, "error", err)
		if errors.Is(err, service.ErrProvider) || errors.Is(err, service.ErrRetryExhausted) || errors.Is(err, service.ErrStateConflict) {
			return fmt.Errorf("retry dispatch: %v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

// handleStatusPoll asks the provider for the current status of a
// pending payment and applies it. While the payment stays pending the
// chain re-arms itself, bounded by PollMaxAttempts.
func (w *Worker) handleStatusPoll(ctx context.Context, task *asynq.Task) error {
	var payload queue.StatusPollPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("poll payload: %v: %w", err, asynq.SkipRetry)
	}

	txn, err := w.opts.Orchestrator.GetTransaction(ctx, payload.TransactionID)
	if err != nil {
		return fmt.Errorf("poll: %v: %w", err, asynq.SkipRetry)
	}
	if txn.Status != constants.TxStatusPending {
		logger.Debugw("status_poll_obsolete", "transaction_id", txn.ID, "status", txn.Status)
		return nil
	}

	adapter, ok := w.opts.Registry.Get(txn.GatewayType)
	if !ok {
		return fmt.Errorf("poll: no adapter for %s: %w", txn.GatewayType, asynq.SkipRetry)
	}
	result, err := adapter.CheckStatus(ctx, txn.ProviderRef)
	if err != nil {
		logger.Warnw("status_poll_provider_failed", "transaction_id", txn.ID, "error", err)
		return w.rearmPoll(txn.ID, payload.Attempt)
	}

	if result.Status != constants.TxStatusPending {
		_, err = w.opts.Orchestrator.ApplyProviderStatus(ctx, txn.ID, service.StatusUpdate{
			Status:  result.Status,
			Message: result.Message,
			Raw:     result.Raw,
			Actor:   "poll:" + txn.GatewayType,
		})
		if err != nil && !errors.Is(err, service.ErrStateConflict) {
			return err
		}
		return nil
	}
	return w.rearmPoll(txn.ID, payload.Attempt)
}

func (w *Worker) rearmPoll(transactionID uint, attempt int) error {
	if attempt >= w.opts.PollMaxAttempts {
		logger.Warnw("status_poll_exhausted", "transaction_id", transactionID, "attempts", attempt)
		return nil
	}
	if err := w.opts.Scheduler.ScheduleStatusPoll(transactionID, w.opts.PollInterval, attempt+1); err != nil {
		return err
	}
	return nil
}
