package cash

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/leonepay/internal/constants"
	"github.com/leonepay/internal/gateway"
	"github.com/leonepay/internal/models"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	adapter, err := New(&Config{ConfirmSecret: "agent-secret"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return adapter
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(models.JSON{"confirm_secret": "agent-secret"})
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	if cfg.ConfirmSecret != "agent-secret" {
		t.Errorf("confirm_secret = %s", cfg.ConfirmSecret)
	}

	if _, err := ParseConfig(models.JSON{}); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("ParseConfig(empty) error = %v, want ErrConfigInvalid", err)
	}
}

func TestSendPaymentIssuesCounterCode(t *testing.T) {
	adapter := newTestAdapter(t)

	result, err := adapter.SendPayment(context.Background(), gateway.PaymentRequest{
		Reference:       "PAY20260830120000AAAA1111",
		Amount:          models.Money{},
		PayerIdentifier: "23276123456",
	})
	if err != nil {
		t.Fatalf("SendPayment() error = %v", err)
	}
	if result.Status != constants.TxStatusPending {
		t.Errorf("status = %s, want pending", result.Status)
	}
	if !strings.HasPrefix(result.ProviderRef, "CSH-") {
		t.Errorf("provider_ref = %s, want CSH- prefix", result.ProviderRef)
	}

	second, err := adapter.SendPayment(context.Background(), gateway.PaymentRequest{})
	if err != nil {
		t.Fatalf("SendPayment() error = %v", err)
	}
	if second.ProviderRef == result.ProviderRef {
		t.Error("counter codes must be unique")
	}
}

func TestCheckStatusStaysPending(t *testing.T) {
	adapter := newTestAdapter(t)
	result, err := adapter.CheckStatus(context.Background(), "CSH-ABC")
	if err != nil {
		t.Fatalf("CheckStatus() error = %v", err)
	}
	if result.Status != constants.TxStatusPending {
		t.Errorf("status = %s, want pending", result.Status)
	}
}

func TestParseWebhookOutcomes(t *testing.T) {
	adapter := newTestAdapter(t)

	cases := []struct {
		outcome string
		want    string
	}{
		{"confirmed", constants.TxStatusCompleted},
		{"paid", constants.TxStatusCompleted},
		{"rejected", constants.TxStatusFailed},
		{"cancelled", constants.TxStatusCancelled},
	}
	for _, tc := range cases {
		payload := []byte(`{"counter_code":"CSH-ABC","outcome":"` + tc.outcome + `","amount":"150","agent_id":"AG-7"}`)
		event, err := adapter.ParseWebhook(payload)
		if err != nil {
			t.Fatalf("ParseWebhook(%s) error = %v", tc.outcome, err)
		}
		if event.Status != tc.want {
			t.Errorf("outcome %s: status = %s, want %s", tc.outcome, event.Status, tc.want)
		}
		if event.ProviderRef != "CSH-ABC" {
			t.Errorf("provider_ref = %s, want CSH-ABC", event.ProviderRef)
		}
		if event.Amount.String() != "150.00" {
			t.Errorf("amount = %s, want 150.00", event.Amount.String())
		}
	}
}

func TestParseWebhookUnknownOutcome(t *testing.T) {
	adapter := newTestAdapter(t)
	_, err := adapter.ParseWebhook([]byte(`{"counter_code":"CSH-ABC","outcome":"maybe"}`))
	if !errors.Is(err, ErrPayloadInvalid) {
		t.Errorf("ParseWebhook() error = %v, want ErrPayloadInvalid", err)
	}
}

func TestValidateAccountRequiresContact(t *testing.T) {
	adapter := newTestAdapter(t)
	if err := adapter.ValidateAccount("23276123456"); err != nil {
		t.Errorf("ValidateAccount() error = %v", err)
	}
	if err := adapter.ValidateAccount("  "); err == nil {
		t.Error("ValidateAccount(blank) should fail")
	}
}
