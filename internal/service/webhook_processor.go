package service

import (
	"context"

	"github.com/leonepay/internal/constants"
	"github.com/leonepay/internal/gateway"
	"github.com/leonepay/internal/logger"
	"github.com/leonepay/internal/models"
	"github.com/leonepay/internal/repository"
)

// WebhookProcessor ingests provider callbacks: verifies the signature,
// parses the payload, matches the transaction and applies the status
// through the orchestrator. Every callback leaves a receipt row, matched
// or not.
type WebhookProcessor struct {
	registry     *gateway.Registry
	txRepo       repository.TransactionRepository
	receiptRepo  repository.WebhookReceiptRepository
	orchestrator *TransactionOrchestrator
}

// NewWebhookProcessor creates the processor.
func NewWebhookProcessor(
	registry *gateway.Registry,
	txRepo repository.TransactionRepository,
	receiptRepo repository.WebhookReceiptRepository,
	orchestrator *TransactionOrchestrator,
) *WebhookProcessor {
	return &WebhookProcessor{
		registry:     registry,
		txRepo:       txRepo,
		receiptRepo:  receiptRepo,
		orchestrator: orchestrator,
	}
}

// WebhookOutcome reports how a callback was handled. Accepted means the
// provider should not redeliver; duplicates and benign conflicts are
// accepted too.
type WebhookOutcome struct {
	Result   string
	Accepted bool
	Message  string
}

// Process handles one raw provider callback.
func (p *WebhookProcessor) Process(ctx context.Context, gatewayType string, payload []byte, signature string) WebhookOutcome {
	adapter, ok := p.registry.Get(gatewayType)
	if !ok {
		return p.record(gatewayType, nil, false, constants.WebhookResultRejected, payload, "unknown gateway type")
	}

	if !VerifySignature(adapter.WebhookSecret(), payload, signature) {
		logger.Warnw("webhook_signature_invalid", "gateway_type", gatewayType)
		return p.record(gatewayType, nil, false, constants.WebhookResultBadSignature, payload, ErrSignatureInvalid.Error())
	}

	event, err := adapter.ParseWebhook(payload)
	if err != nil {
		logger.Warnw("webhook_payload_invalid", "gateway_type", gatewayType, "error", err)
		return p.record(gatewayType, nil, true, constants.WebhookResultBadPayload, payload, err.Error())
	}

	txn, err := p.matchTransaction(gatewayType, event)
	if err != nil {
		logger.Errorw("webhook_match_failed", "gateway_type", gatewayType, "error", err)
		return p.record(gatewayType, nil, true, constants.WebhookResultUnmatched, payload, err.Error())
	}
	if txn == nil {
		logger.Warnw("webhook_unmatched",
			"gateway_type", gatewayType,
			"provider_ref", event.ProviderRef,
			"reference", event.Reference,
		)
		return p.record(gatewayType, nil, true, constants.WebhookResultUnmatched, payload, "no matching transaction")
	}

	if !event.Amount.Decimal.IsZero() && !event.Amount.Decimal.Equal(txn.Amount.Decimal) {
		logger.Warnw("webhook_amount_mismatch",
			"transaction_id", txn.ID,
			"expected", txn.Amount.String(),
			"got", event.Amount.String(),
		)
		return p.record(gatewayType, &txn.ID, true, constants.WebhookResultRejected, payload, "amount mismatch")
	}

	if txn.Status == event.Status {
		return p.record(gatewayType, &txn.ID, true, constants.WebhookResultDuplicate, payload, "status already applied")
	}

	_, err = p.orchestrator.ApplyProviderStatus(ctx, txn.ID, StatusUpdate{
		Status:      event.Status,
		Message:     event.Message,
		ProviderRef: event.ProviderRef,
		Raw:         event.Raw,
		Actor:       "webhook:" + gatewayType,
	})
	if err != nil {
		// A transition conflict means a poll or another webhook won the
		// race; the callback itself is fine.
		logger.Warnw("webhook_apply_conflict", "transaction_id", txn.ID, "error", err)
		return p.record(gatewayType, &txn.ID, true, constants.WebhookResultDuplicate, payload, err.Error())
	}

	logger.Infow("payment_callback_applied",
		"transaction_id", txn.ID,
		"gateway_type", gatewayType,
		"status", event.Status,
	)
	return p.record(gatewayType, &txn.ID, true, constants.WebhookResultApplied, payload, "")
}

// matchTransaction resolves a callback to a transaction, preferring the
// provider reference over the engine reference.
func (p *WebhookProcessor) matchTransaction(gatewayType string, event *gateway.WebhookEvent) (*models.PaymentTransaction, error) {
	if event.ProviderRef != "" {
		txn, err := p.txRepo.GetByProviderRef(gatewayType, event.ProviderRef)
		if err != nil {
			return nil, err
		}
		if txn != nil {
			return txn, nil
		}
	}
	if event.Reference != "" {
		txn, err := p.txRepo.GetByReference(event.Reference)
		if err != nil {
			return nil, err
		}
		if txn != nil && txn.GatewayType == gatewayType {
			return txn, nil
		}
	}
	return nil, nil
}

func (p *WebhookProcessor) record(gatewayType string, txID *uint, signatureValid bool, result string, payload []byte, message string) WebhookOutcome {
	receipt := &models.WebhookReceipt{
		GatewayType:          gatewayType,
		MatchedTransactionID: txID,
		SignatureValid:       signatureValid,
		Result:               result,
		Payload:              string(payload),
		Message:              message,
	}
	if err := p.receiptRepo.Create(receipt); err != nil {
		logger.Errorw("webhook_receipt_write_failed", "gateway_type", gatewayType, "error", err)
	}
	accepted := result != constants.WebhookResultBadSignature && result != constants.WebhookResultRejected
	return WebhookOutcome{Result: result, Accepted: accepted, Message: message}
}
