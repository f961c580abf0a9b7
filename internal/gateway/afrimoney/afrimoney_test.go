package afrimoney

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/leonepay/internal/constants"
	"github.com/leonepay/internal/gateway"
	"github.com/leonepay/internal/models"
)

func testConfig(baseURL string) *Config {
	return &Config{
		APIBaseURL:    baseURL,
		PartnerID:     "P77",
		PartnerSecret: "partner-secret",
		WebhookSecret: "hook-secret",
		PINLength:     4,
	}
}

func newTestAdapter(t *testing.T, baseURL string) *Adapter {
	t.Helper()
	adapter, err := New(testConfig(baseURL))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return adapter
}

func TestValidateAccountPrefix(t *testing.T) {
	adapter := newTestAdapter(t, "https://api.example.com")
	if err := adapter.ValidateAccount("077123456"); err != nil {
		t.Fatalf("ValidateAccount() error = %v", err)
	}
	// 76 belongs to another operator.
	if err := adapter.ValidateAccount("076123456"); err == nil {
		t.Fatal("ValidateAccount() should reject a foreign prefix")
	}
}

func TestFormatIdentifierNormalizes(t *testing.T) {
	adapter := newTestAdapter(t, "https://api.example.com")
	got, err := adapter.FormatIdentifier("+232 88 999 000")
	if err != nil {
		t.Fatalf("FormatIdentifier() error = %v", err)
	}
	if got != "23288999000" {
		t.Fatalf("FormatIdentifier() = %q", got)
	}
}

func TestSendPaymentSignsForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		sig := r.PostForm.Get("signature")
		if sig == "" {
			t.Fatal("missing form signature")
		}
		want := SignForm(r.PostForm, "partner-secret")
		if sig != want {
			t.Fatalf("signature = %q, want %q", sig, want)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"result": "OK",
			"txn_id": "AFM-42",
		})
	}))
	defer srv.Close()

	adapter := newTestAdapter(t, srv.URL)
	result, err := adapter.SendPayment(context.Background(), gateway.PaymentRequest{
		Reference:       "TXN-1",
		Amount:          models.NewMoneyFromDecimal(decimal.NewFromInt(50)),
		Currency:        constants.CurrencyDefault,
		PayerIdentifier: "033123456",
		PayerPIN:        "1234",
	})
	if err != nil {
		t.Fatalf("SendPayment() error = %v", err)
	}
	if result.ProviderRef != "AFM-42" || result.Status != constants.TxStatusCompleted {
		t.Fatalf("result = %+v", result)
	}
}

func TestSendPaymentBusyIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"result":     "FAILED",
			"error_code": "BUSY",
			"reason":     "try again",
		})
	}))
	defer srv.Close()

	adapter := newTestAdapter(t, srv.URL)
	_, err := adapter.SendPayment(context.Background(), gateway.PaymentRequest{
		Reference:       "TXN-2",
		Amount:          models.NewMoneyFromDecimal(decimal.NewFromInt(50)),
		Currency:        constants.CurrencyDefault,
		PayerIdentifier: "033123456",
		PayerPIN:        "1234",
	})
	if !gateway.IsRetryable(err) {
		t.Fatalf("BUSY decline should be retryable, got %v", err)
	}
}

func TestCheckStatusMapsResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"result": "IN_PROGRESS",
			"txn_id": "AFM-7",
		})
	}))
	defer srv.Close()

	adapter := newTestAdapter(t, srv.URL)
	status, err := adapter.CheckStatus(context.Background(), "AFM-7")
	if err != nil {
		t.Fatalf("CheckStatus() error = %v", err)
	}
	if status.Status != constants.TxStatusPending {
		t.Fatalf("Status = %q", status.Status)
	}
}

func TestParseWebhook(t *testing.T) {
	adapter := newTestAdapter(t, "https://api.example.com")
	event, err := adapter.ParseWebhook([]byte(`{
		"txn_id": "AFM-11",
		"external_ref": "TXN-8",
		"result": "NO_FUNDS",
		"reason": "insufficient balance"
	}`))
	if err != nil {
		t.Fatalf("ParseWebhook() error = %v", err)
	}
	if event.Status != constants.TxStatusFailed {
		t.Fatalf("Status = %q", event.Status)
	}
	if event.Reference != "TXN-8" {
		t.Fatalf("Reference = %q", event.Reference)
	}
}

func TestSignFormExcludesSignatureField(t *testing.T) {
	form := url.Values{"a": {"1"}, "b": {"2"}}
	base := SignForm(form, "k")
	form.Set("signature", base)
	if SignForm(form, "k") != base {
		t.Fatal("signature field must not feed back into the digest")
	}
}
