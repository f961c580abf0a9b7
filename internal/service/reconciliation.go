package service

import (
	"context"
	"time"

	"github.com/leonepay/internal/constants"
	"github.com/leonepay/internal/logger"
	"github.com/leonepay/internal/models"
	"github.com/leonepay/internal/repository"
)

// ProviderRecord is one settlement line from a provider statement.
type ProviderRecord struct {
	ProviderRef string
	Reference   string
	Amount      models.Money
	Status      string
}

// ReconciliationReport is the outcome of matching one day's statement
// against the engine's completed transactions.
type ReconciliationReport struct {
	GatewayType       string                      `json:"gateway_type"`
	Day               string                      `json:"day"`
	Matched           int                         `json:"matched"`
	AlreadyReconciled int                         `json:"already_reconciled"`
	AmountMismatches  []ReconciliationDiscrepancy `json:"amount_mismatches"`
	MissingInProvider []string                    `json:"missing_in_provider"`
	MissingInEngine   []string                    `json:"missing_in_engine"`
}

// ReconciliationDiscrepancy describes one mismatched pair.
type ReconciliationDiscrepancy struct {
	Reference      string `json:"reference"`
	ProviderRef    string `json:"provider_ref"`
	EngineAmount   string `json:"engine_amount"`
	ProviderAmount string `json:"provider_amount"`
}

// ReconciliationEngine matches provider settlement statements against
// engine records. Matched transactions are marked reconciled;
// discrepancies are reported, never auto-corrected.
type ReconciliationEngine struct {
	txRepo  repository.TransactionRepository
	logRepo repository.TransactionLogRepository
	limits  *LimitEnforcer

	now func() time.Time
}

// NewReconciliationEngine creates the engine.
func NewReconciliationEngine(
	txRepo repository.TransactionRepository,
	logRepo repository.TransactionLogRepository,
	limits *LimitEnforcer,
) *ReconciliationEngine {
	return &ReconciliationEngine{
		txRepo:  txRepo,
		logRepo: logRepo,
		limits:  limits,
		now:     time.Now,
	}
}

// Reconcile matches records against the gateway's completed
// transactions of one market-time calendar day.
func (e *ReconciliationEngine) Reconcile(ctx context.Context, gatewayType string, day time.Time, records []ProviderRecord, actor string) (*ReconciliationReport, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, e.limits.location)
	dayEnd := dayStart.Add(24 * time.Hour)

	completed, err := e.txRepo.ListCompletedForDay(dayStart, dayEnd)
	if err != nil {
		return nil, err
	}

	engineByProviderRef := make(map[string]*models.PaymentTransaction)
	engineByReference := make(map[string]*models.PaymentTransaction)
	for i := range completed {
		txn := &completed[i]
		if txn.GatewayType != gatewayType {
			continue
		}
		if txn.ProviderRef != "" {
			engineByProviderRef[txn.ProviderRef] = txn
		}
		engineByReference[txn.Reference] = txn
	}

	report := &ReconciliationReport{
		GatewayType: gatewayType,
		Day:         dayStart.Format("2006-01-02"),
	}
	seen := make(map[uint]bool)

	for _, record := range records {
		txn := engineByProviderRef[record.ProviderRef]
		if txn == nil {
			txn = engineByReference[record.Reference]
		}
		if txn == nil {
			report.MissingInEngine = append(report.MissingInEngine, providerRecordKey(record))
			continue
		}
		seen[txn.ID] = true

		if !record.Amount.Decimal.Equal(txn.Amount.Decimal) {
			report.AmountMismatches = append(report.AmountMismatches, ReconciliationDiscrepancy{
				Reference:      txn.Reference,
				ProviderRef:    txn.ProviderRef,
				EngineAmount:   txn.Amount.String(),
				ProviderAmount: record.Amount.String(),
			})
			continue
		}

		if txn.IsReconciled {
			report.AlreadyReconciled++
			continue
		}
		if err := e.markReconciled(txn, actor); err != nil {
			return nil, err
		}
		report.Matched++
	}

	for i := range completed {
		txn := &completed[i]
		if txn.GatewayType != gatewayType || seen[txn.ID] {
			continue
		}
		report.MissingInProvider = append(report.MissingInProvider, txn.Reference)
	}

	logger.Infow("reconciliation_finished",
		"gateway_type", gatewayType,
		"day", report.Day,
		"matched", report.Matched,
		"amount_mismatches", len(report.AmountMismatches),
		"missing_in_provider", len(report.MissingInProvider),
		"missing_in_engine", len(report.MissingInEngine),
	)
	return report, nil
}

// MarkReconciled flags one completed transaction as reconciled. A
// missing, non-completed or already-reconciled transaction is a no-op
// that reports false, not an error.
func (e *ReconciliationEngine) MarkReconciled(ctx context.Context, id uint, actor string) (bool, error) {
	txn, err := e.txRepo.GetByID(id)
	if err != nil {
		return false, err
	}
	if txn == nil || txn.Status != constants.TxStatusCompleted || txn.IsReconciled {
		return false, nil
	}
	if err := e.markReconciled(txn, actor); err != nil {
		return false, err
	}
	return true, nil
}

// BulkMarkReconciled flags a batch and returns how many rows changed.
func (e *ReconciliationEngine) BulkMarkReconciled(ctx context.Context, ids []uint, actor string) (int, error) {
	count := 0
	for _, id := range ids {
		ok, err := e.MarkReconciled(ctx, id, actor)
		if err != nil {
			return count, err
		}
		if ok {
			count++
		}
	}
	return count, nil
}

func (e *ReconciliationEngine) markReconciled(txn *models.PaymentTransaction, actor string) error {
	now := e.now()
	if err := e.txRepo.Update(txn.ID, map[string]interface{}{
		"is_reconciled": true,
		"reconciled_at": now,
		"reconciled_by": actor,
	}); err != nil {
		return err
	}
	txn.IsReconciled = true
	txn.ReconciledAt = &now
	txn.ReconciledBy = actor

	return e.logRepo.Append(&models.TransactionLog{
		TransactionID:  txn.ID,
		Action:         constants.TxActionReconcile,
		PreviousStatus: txn.Status,
		NewStatus:      txn.Status,
		Actor:          actor,
	})
}

func providerRecordKey(record ProviderRecord) string {
	if record.ProviderRef != "" {
		return record.ProviderRef
	}
	return record.Reference
}
