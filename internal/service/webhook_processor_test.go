package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/leonepay/internal/constants"
	"github.com/leonepay/internal/gateway"
	"github.com/leonepay/internal/models"
)

const hookSecret = "hook-secret-1"

func newWebhookEnv(t *testing.T) (*testEnv, *WebhookProcessor) {
	t.Helper()
	env := newTestEnv(t)
	cfg := orangeConfig()
	cfg.GatewayType = constants.GatewayBankTransfer
	env.seedGateway(t, cfg)
	registerFake(env, &fakeAdapter{
		typ:           constants.GatewayBankTransfer,
		webhookSecret: hookSecret,
		sendResult: &gateway.PaymentResult{
			ProviderRef: "SES-100",
			Status:      constants.TxStatusPending,
			RedirectURL: "https://bank.example/pay/SES-100",
		},
	})
	processor := NewWebhookProcessor(env.registry, env.txRepo, env.receiptRepo, env.orchestrator)
	return env, processor
}

// pendingPayment drives a payment to pending with provider ref SES-100.
func pendingPayment(t *testing.T, env *testEnv) *models.PaymentTransaction {
	t.Helper()
	txn := env.initiate(t, constants.GatewayBankTransfer, testPhone, "200")
	updated, err := env.orchestrator.ProcessPayment(context.Background(), txn.ID, ProcessOptions{Actor: "client:1"})
	if err != nil {
		t.Fatalf("ProcessPayment() error = %v", err)
	}
	if updated.Status != constants.TxStatusPending {
		t.Fatalf("status = %s, want pending", updated.Status)
	}
	return updated
}

func settlementPayload(providerRef, status, amount string) []byte {
	return []byte(fmt.Sprintf(`{"provider_ref":%q,"status":%q,"amount":%q,"message":"settled"}`, providerRef, status, amount))
}

func receiptCount(t *testing.T, env *testEnv) int64 {
	t.Helper()
	var n int64
	if err := env.db.Model(&models.WebhookReceipt{}).Count(&n).Error; err != nil {
		t.Fatalf("count receipts: %v", err)
	}
	return n
}

func TestWebhookApplied(t *testing.T) {
	env, processor := newWebhookEnv(t)
	txn := pendingPayment(t, env)

	payload := settlementPayload("SES-100", constants.TxStatusCompleted, "200")
	outcome := processor.Process(context.Background(), constants.GatewayBankTransfer, payload, SignBody(hookSecret, payload))

	if outcome.Result != constants.WebhookResultApplied {
		t.Fatalf("result = %s, want applied (%s)", outcome.Result, outcome.Message)
	}
	if !outcome.Accepted {
		t.Error("outcome not accepted")
	}

	stored, _ := env.txRepo.GetByID(txn.ID)
	if stored.Status != constants.TxStatusCompleted {
		t.Errorf("status = %s, want completed", stored.Status)
	}
	if stored.CompletedAt == nil {
		t.Error("completed_at not set")
	}
	if n := receiptCount(t, env); n != 1 {
		t.Errorf("receipts = %d, want 1", n)
	}
}

func TestWebhookDuplicateDelivery(t *testing.T) {
	env, processor := newWebhookEnv(t)
	txn := pendingPayment(t, env)
	ctx := context.Background()

	payload := settlementPayload("SES-100", constants.TxStatusCompleted, "200")
	signature := SignBody(hookSecret, payload)

	first := processor.Process(ctx, constants.GatewayBankTransfer, payload, signature)
	if first.Result != constants.WebhookResultApplied {
		t.Fatalf("first result = %s, want applied", first.Result)
	}

	second := processor.Process(ctx, constants.GatewayBankTransfer, payload, signature)
	if second.Result != constants.WebhookResultDuplicate {
		t.Fatalf("second result = %s, want duplicate", second.Result)
	}
	if !second.Accepted {
		t.Error("duplicate delivery must still be accepted")
	}

	// The ledger committed the amount exactly once.
	ledger := env.ledgerRow(t, testPhone, constants.GatewayBankTransfer)
	if ledger.CompletedAmount.String() != "200.00" {
		t.Errorf("completed = %s, want 200.00", ledger.CompletedAmount.String())
	}

	stored, _ := env.txRepo.GetByID(txn.ID)
	if stored.Status != constants.TxStatusCompleted {
		t.Errorf("status = %s, want completed", stored.Status)
	}
}

func TestWebhookBadSignature(t *testing.T) {
	env, processor := newWebhookEnv(t)
	pendingPayment(t, env)

	payload := settlementPayload("SES-100", constants.TxStatusCompleted, "200")
	outcome := processor.Process(context.Background(), constants.GatewayBankTransfer, payload, SignBody("wrong-secret", payload))

	if outcome.Result != constants.WebhookResultBadSignature {
		t.Fatalf("result = %s, want bad_signature", outcome.Result)
	}
	if outcome.Accepted {
		t.Error("forged callback must not be accepted")
	}

	// The transaction is untouched, the receipt still written.
	var receipt models.WebhookReceipt
	if err := env.db.First(&receipt).Error; err != nil {
		t.Fatalf("load receipt: %v", err)
	}
	if receipt.SignatureValid {
		t.Error("receipt marked signature valid")
	}
}

func TestWebhookUnknownGateway(t *testing.T) {
	_, processor := newWebhookEnv(t)

	payload := settlementPayload("SES-100", constants.TxStatusCompleted, "200")
	outcome := processor.Process(context.Background(), "paypal", payload, "whatever")

	if outcome.Result != constants.WebhookResultRejected {
		t.Fatalf("result = %s, want rejected", outcome.Result)
	}
	if outcome.Accepted {
		t.Error("unknown gateway must not be accepted")
	}
}

func TestWebhookBadPayload(t *testing.T) {
	_, processor := newWebhookEnv(t)

	payload := []byte(`{"provider_ref":"SES-100"}`)
	outcome := processor.Process(context.Background(), constants.GatewayBankTransfer, payload, SignBody(hookSecret, payload))

	if outcome.Result != constants.WebhookResultBadPayload {
		t.Fatalf("result = %s, want bad_payload", outcome.Result)
	}
	if !outcome.Accepted {
		t.Error("malformed payload is accepted to stop redelivery")
	}
}

func TestWebhookUnmatched(t *testing.T) {
	_, processor := newWebhookEnv(t)

	payload := settlementPayload("SES-404", constants.TxStatusCompleted, "200")
	outcome := processor.Process(context.Background(), constants.GatewayBankTransfer, payload, SignBody(hookSecret, payload))

	if outcome.Result != constants.WebhookResultUnmatched {
		t.Fatalf("result = %s, want unmatched", outcome.Result)
	}
	if !outcome.Accepted {
		t.Error("unmatched callback is accepted and kept for inspection")
	}
}

func TestWebhookAmountMismatch(t *testing.T) {
	env, processor := newWebhookEnv(t)
	txn := pendingPayment(t, env)

	payload := settlementPayload("SES-100", constants.TxStatusCompleted, "150")
	outcome := processor.Process(context.Background(), constants.GatewayBankTransfer, payload, SignBody(hookSecret, payload))

	if outcome.Result != constants.WebhookResultRejected {
		t.Fatalf("result = %s, want rejected", outcome.Result)
	}
	stored, _ := env.txRepo.GetByID(txn.ID)
	if stored.Status != constants.TxStatusPending {
		t.Errorf("status = %s, want pending untouched", stored.Status)
	}
}

func TestWebhookMatchByEngineReference(t *testing.T) {
	env, processor := newWebhookEnv(t)
	txn := pendingPayment(t, env)

	// No provider ref in the payload; fall back to the engine reference.
	payload := []byte(fmt.Sprintf(`{"reference":%q,"status":%q,"amount":"200"}`, txn.Reference, constants.TxStatusCompleted))
	outcome := processor.Process(context.Background(), constants.GatewayBankTransfer, payload, SignBody(hookSecret, payload))

	if outcome.Result != constants.WebhookResultApplied {
		t.Fatalf("result = %s, want applied (%s)", outcome.Result, outcome.Message)
	}
	stored, _ := env.txRepo.GetByID(txn.ID)
	if stored.Status != constants.TxStatusCompleted {
		t.Errorf("status = %s, want completed", stored.Status)
	}
}
