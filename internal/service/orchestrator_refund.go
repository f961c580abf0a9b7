package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/leonepay/internal/constants"
	"github.com/leonepay/internal/logger"
	"github.com/leonepay/internal/models"
)

// RefundInput is a refund request against a completed transaction.
type RefundInput struct {
	Amount      models.Money
	Reason      string
	RequestedBy string
}

// RefundPayment refunds part or all of a completed transaction on a
// gateway that supports it. The transaction itself stays completed; the
// refund is its own record. Refund totals can never exceed the original
// amount.
func (o *TransactionOrchestrator) RefundPayment(ctx context.Context, id uint, input RefundInput) (*models.Refund, error) {
	if !input.Amount.Decimal.IsPositive() {
		return nil, ErrAmountInvalid
	}

	txn, err := o.txRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, ErrTransactionNotFound
	}
	if txn.Status != constants.TxStatusCompleted {
		return nil, fmt.Errorf("%w: refund requires completed, got %s", ErrTransitionInvalid, txn.Status)
	}
	refunder, ok := o.registry.Refunder(txn.GatewayType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRefundUnsupported, txn.GatewayType)
	}

	settled, err := o.refundRepo.SumSettledByTransaction(txn.ID)
	if err != nil {
		return nil, err
	}
	if settled.Decimal.Add(input.Amount.Decimal).GreaterThan(txn.Amount.Decimal) {
		return nil, fmt.Errorf("%w: %s already refunded of %s", ErrRefundExceedsAmount,
			settled.String(), txn.Amount.String())
	}

	now := o.now()
	refund := &models.Refund{
		OriginalTransactionID: txn.ID,
		Reference:             generateReference("RFD", now),
		Amount:                input.Amount,
		Currency:              txn.Currency,
		Reason:                strings.TrimSpace(input.Reason),
		Status:                constants.RefundStatusPending,
		RequestedBy:           strings.TrimSpace(input.RequestedBy),
	}
	if err := o.refundRepo.Create(refund); err != nil {
		return nil, err
	}

	providerRefundRef, callErr := refunder.Refund(ctx, txn.ProviderRef, input.Amount)
	if callErr != nil {
		if updateErr := o.refundRepo.Update(refund.ID, map[string]interface{}{
			"status": constants.RefundStatusFailed,
		}); updateErr != nil {
			logger.Errorw("refund_mark_failed_error", "refund_id", refund.ID, "error", updateErr)
		}
		refund.Status = constants.RefundStatusFailed
		logger.Warnw("refund_provider_failed",
			"refund_id", refund.ID,
			"transaction_id", txn.ID,
			"error", callErr,
		)
		return refund, fmt.Errorf("%w: %v", ErrProvider, callErr)
	}

	if err := o.refundRepo.Update(refund.ID, map[string]interface{}{
		"status":       constants.RefundStatusCompleted,
		"provider_ref": providerRefundRef,
		"completed_at": now,
	}); err != nil {
		return nil, err
	}
	refund.Status = constants.RefundStatusCompleted
	refund.ProviderRef = providerRefundRef
	refund.CompletedAt = &now

	if err := o.logRepo.Append(&models.TransactionLog{
		TransactionID:  txn.ID,
		Action:         constants.TxActionRefund,
		PreviousStatus: txn.Status,
		NewStatus:      txn.Status,
		Actor:          refund.RequestedBy,
		Details: models.JSON{
			"refund_reference": refund.Reference,
			"amount":           refund.Amount.String(),
			"provider_ref":     providerRefundRef,
		},
	}); err != nil {
		logger.Errorw("refund_log_append_failed", "refund_id", refund.ID, "error", err)
	}

	logger.Infow("refund_completed",
		"refund_id", refund.ID,
		"transaction_id", txn.ID,
		"reference", refund.Reference,
		"amount", refund.Amount.String(),
	)
	return refund, nil
}

// ListRefunds returns the refunds of a transaction.
func (o *TransactionOrchestrator) ListRefunds(ctx context.Context, transactionID uint) ([]models.Refund, error) {
	txn, err := o.txRepo.GetByID(transactionID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, ErrTransactionNotFound
	}
	return o.refundRepo.ListByTransaction(transactionID)
}
