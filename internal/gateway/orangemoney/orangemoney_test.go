package orangemoney

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/leonepay/internal/constants"
	"github.com/leonepay/internal/gateway"
	"github.com/leonepay/internal/models"
)

func testConfig(baseURL string) *Config {
	return &Config{
		APIBaseURL:    baseURL,
		MerchantCode:  "M001",
		APIKey:        "test-key",
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

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig(models.JSON{
		"api_base_url":   "https://api.example.com",
		"merchant_code":  "M001",
		"api_key":        "k",
		"webhook_secret": "s",
	})
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	if cfg.PINLength != defaultPINLength {
		t.Fatalf("PINLength = %d, want %d", cfg.PINLength, defaultPINLength)
	}
}

func TestValidateConfigMissingKey(t *testing.T) {
	cfg := testConfig("https://api.example.com")
	cfg.APIKey = ""
	if err := ValidateConfig(cfg); err == nil {
		t.Fatal("ValidateConfig() should fail without api_key")
	}
}

func TestFormatIdentifier(t *testing.T) {
	adapter := newTestAdapter(t, "https://api.example.com")
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"076123456", "23276123456", false},
		{"+232 76 123 456", "23276123456", false},
		{"23276123456", "23276123456", false},
		{"76123456", "23276123456", false},
		{"7612345", "", true},
		{"4407612345678", "", true},
	}
	for _, tc := range cases {
		got, err := adapter.FormatIdentifier(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("FormatIdentifier(%q) should fail", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("FormatIdentifier(%q) error = %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("FormatIdentifier(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidateAccountPrefix(t *testing.T) {
	adapter := newTestAdapter(t, "https://api.example.com")
	if err := adapter.ValidateAccount("076123456"); err != nil {
		t.Fatalf("ValidateAccount() error = %v", err)
	}
	// 30 belongs to another operator.
	if err := adapter.ValidateAccount("030123456"); err == nil {
		t.Fatal("ValidateAccount() should reject a foreign prefix")
	}
}

func TestMapProviderStatus(t *testing.T) {
	cases := map[string]string{
		"SUCCESS":   constants.TxStatusCompleted,
		"pending":   constants.TxStatusPending,
		"DECLINED":  constants.TxStatusFailed,
		"CANCELLED": constants.TxStatusCancelled,
		"TIMEOUT":   constants.TxStatusExpired,
	}
	for in, want := range cases {
		got, ok := mapProviderStatus(in)
		if !ok || got != want {
			t.Fatalf("mapProviderStatus(%q) = %q, %v, want %q", in, got, ok, want)
		}
	}
	if _, ok := mapProviderStatus("WEIRD"); ok {
		t.Fatal("mapProviderStatus should not recognize WEIRD")
	}
}

func TestSendPaymentSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/debit" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Signature") == "" {
			t.Fatal("missing request signature")
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["msisdn"] != "23276123456" {
			t.Fatalf("msisdn = %q", body["msisdn"])
		}
		json.NewEncoder(w).Encode(map[string]string{
			"status":         "SUCCESS",
			"transaction_id": "OM-888",
		})
	}))
	defer srv.Close()

	adapter := newTestAdapter(t, srv.URL)
	result, err := adapter.SendPayment(context.Background(), gateway.PaymentRequest{
		Reference:       "TXN-1",
		Amount:          models.NewMoneyFromDecimal(decimal.NewFromInt(100)),
		Currency:        constants.CurrencyDefault,
		PayerIdentifier: "076123456",
		PayerPIN:        "1234",
	})
	if err != nil {
		t.Fatalf("SendPayment() error = %v", err)
	}
	if result.ProviderRef != "OM-888" {
		t.Fatalf("ProviderRef = %q", result.ProviderRef)
	}
	if result.Status != constants.TxStatusCompleted {
		t.Fatalf("Status = %q", result.Status)
	}
}

func TestSendPaymentDeclineIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"status":     "FAILED",
			"error_code": "INSUFFICIENT_FUNDS",
			"message":    "wallet balance too low",
		})
	}))
	defer srv.Close()

	adapter := newTestAdapter(t, srv.URL)
	_, err := adapter.SendPayment(context.Background(), gateway.PaymentRequest{
		Reference:       "TXN-2",
		Amount:          models.NewMoneyFromDecimal(decimal.NewFromInt(100)),
		Currency:        constants.CurrencyDefault,
		PayerIdentifier: "076123456",
		PayerPIN:        "1234",
	})
	if err == nil {
		t.Fatal("SendPayment() should fail on decline")
	}
	gerr, ok := gateway.AsError(err)
	if !ok {
		t.Fatalf("error %v is not classified", err)
	}
	if gerr.Retryable {
		t.Fatal("insufficient funds must not be retryable")
	}
	if gerr.Code != "INSUFFICIENT_FUNDS" {
		t.Fatalf("Code = %q", gerr.Code)
	}
}

func TestSendPaymentServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	adapter := newTestAdapter(t, srv.URL)
	_, err := adapter.SendPayment(context.Background(), gateway.PaymentRequest{
		Reference:       "TXN-3",
		Amount:          models.NewMoneyFromDecimal(decimal.NewFromInt(100)),
		Currency:        constants.CurrencyDefault,
		PayerIdentifier: "076123456",
		PayerPIN:        "1234",
	})
	if !gateway.IsRetryable(err) {
		t.Fatalf("5xx failure should be retryable, got %v", err)
	}
}

func TestSendPaymentRejectsBadPIN(t *testing.T) {
	adapter := newTestAdapter(t, "https://api.example.com")
	_, err := adapter.SendPayment(context.Background(), gateway.PaymentRequest{
		Reference:       "TXN-4",
		Amount:          models.NewMoneyFromDecimal(decimal.NewFromInt(100)),
		Currency:        constants.CurrencyDefault,
		PayerIdentifier: "076123456",
		PayerPIN:        "12",
	})
	if err == nil {
		t.Fatal("SendPayment() should reject a short PIN before the provider call")
	}
	if gateway.IsRetryable(err) {
		t.Fatal("a bad PIN must not be retryable")
	}
}

func TestParseWebhook(t *testing.T) {
	adapter := newTestAdapter(t, "https://api.example.com")
	event, err := adapter.ParseWebhook([]byte(`{
		"transaction_id": "OM-555",
		"reference": "TXN-9",
		"status": "SUCCESS",
		"amount": "150.00",
		"message": "ok"
	}`))
	if err != nil {
		t.Fatalf("ParseWebhook() error = %v", err)
	}
	if event.ProviderRef != "OM-555" || event.Reference != "TXN-9" {
		t.Fatalf("event refs = %q / %q", event.ProviderRef, event.Reference)
	}
	if event.Status != constants.TxStatusCompleted {
		t.Fatalf("Status = %q", event.Status)
	}
	if event.Amount.String() != "150.00" {
		t.Fatalf("Amount = %s", event.Amount.String())
	}
}

func TestSignPayloadDeterministic(t *testing.T) {
	params := map[string]string{"b": "2", "a": "1", "empty": ""}
	first := SignPayload(params, "k")
	second := SignPayload(map[string]string{"a": "1", "b": "2"}, "k")
	if first != second {
		t.Fatal("signature must ignore empty values and key order")
	}
	if first == SignPayload(params, "other") {
		t.Fatal("signature must depend on the key")
	}
}
