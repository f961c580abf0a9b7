// Package bank implements the bank transfer rail. It is a redirect
// provider: dispatch opens a payment session and hands back a redirect
// URL, and the final verdict arrives later by webhook or status poll.
// Bank transfers do not support refunds through the API.
package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/leonepay/internal/constants"
	"github.com/leonepay/internal/gateway"
	"github.com/leonepay/internal/models"
)

var (
	ErrConfigInvalid   = errors.New("bank config invalid")
	ErrResponseInvalid = errors.New("bank response invalid")
	ErrAccountInvalid  = errors.New("bank account invalid")
)

const (
	minAccountDigits = 8
	maxAccountDigits = 16
)

// Config is the typed provider configuration parsed from the gateway
// settings blob.
type Config struct {
	APIBaseURL    string `json:"api_base_url"`
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret"`
	WebhookSecret string `json:"webhook_secret"`
	TimeoutMS     int    `json:"timeout_ms"`
}

// ParseConfig parses the settings blob.
func ParseConfig(raw models.JSON) (*Config, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: empty settings", ErrConfigInvalid)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal settings failed", ErrConfigInvalid)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal settings failed", ErrConfigInvalid)
	}
	return &cfg, nil
}

// ValidateConfig checks required settings.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return fmt.Errorf("%w: api_base_url is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return fmt.Errorf("%w: client_id is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return fmt.Errorf("%w: client_secret is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return fmt.Errorf("%w: webhook_secret is required", ErrConfigInvalid)
	}
	return nil
}

// Adapter implements gateway.Adapter. It deliberately does not
// implement gateway.Refunder.
type Adapter struct {
	cfg    *Config
	client *http.Client
}

// New builds an adapter from a validated config.
func New(cfg *Config) (*Adapter, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	timeout := 15 * time.Second
	if cfg.TimeoutMS > 0 {
		timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	return &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Type returns the gateway type.
func (a *Adapter) Type() string {
	return constants.GatewayBankTransfer
}

// WebhookSecret returns the callback signing secret.
func (a *Adapter) WebhookSecret() string {
	return a.cfg.WebhookSecret
}

// FormatIdentifier normalizes a bank account number to digits only.
func (a *Adapter) FormatIdentifier(raw string) (string, error) {
	digits := stripNonDigits(raw)
	if len(digits) < minAccountDigits || len(digits) > maxAccountDigits {
		return "", fmt.Errorf("%w: %s", ErrAccountInvalid, raw)
	}
	return digits, nil
}

// ValidateAccount checks account number length.
func (a *Adapter) ValidateAccount(identifier string) error {
	_, err := a.FormatIdentifier(identifier)
	return err
}

type sessionResponse struct {
	SessionRef  string `json:"session_ref"`
	State       string `json:"state"`
	RedirectURL string `json:"redirect_url"`
	Message     string `json:"message"`
}

// SendPayment opens a hosted payment session and returns pending with
// the redirect URL.
func (a *Adapter) SendPayment(ctx context.Context, req gateway.PaymentRequest) (*gateway.PaymentResult, error) {
	account, err := a.FormatIdentifier(req.PayerIdentifier)
	if err != nil {
		return nil, gateway.NewPermanentError("INVALID_ACCOUNT", err.Error())
	}
	payload := map[string]string{
		"client_reference": req.Reference,
		"amount":           req.Amount.String(),
		"currency":         req.Currency,
		"account_number":   account,
		"description":      req.Description,
		"callback_url":     req.CallbackURL,
	}
	body, raw, err := a.call(ctx, http.MethodPost, "/api/v1/sessions", payload)
	if err != nil {
		return nil, err
	}
	var resp sessionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, gateway.NewTransientError("BAD_RESPONSE", ErrResponseInvalid.Error())
	}
	if strings.TrimSpace(resp.SessionRef) == "" || strings.TrimSpace(resp.RedirectURL) == "" {
		return nil, gateway.NewTransientError("BAD_RESPONSE", "session_ref or redirect_url missing")
	}
	return &gateway.PaymentResult{
		ProviderRef: strings.TrimSpace(resp.SessionRef),
		Status:      constants.TxStatusPending,
		Message:     strings.TrimSpace(resp.Message),
		RedirectURL: strings.TrimSpace(resp.RedirectURL),
		Raw:         raw,
	}, nil
}

// CheckStatus polls the session state.
func (a *Adapter) CheckStatus(ctx context.Context, providerRef string) (*gateway.StatusResult, error) {
	providerRef = strings.TrimSpace(providerRef)
	if providerRef == "" {
		return nil, gateway.NewPermanentError("INVALID_REFERENCE", "empty provider reference")
	}
	body, raw, err := a.call(ctx, http.MethodGet, "/api/v1/sessions/"+providerRef, nil)
	if err != nil {
		return nil, err
	}
	var resp sessionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, gateway.NewTransientError("BAD_RESPONSE", ErrResponseInvalid.Error())
	}
	status, ok := MapSessionState(resp.State)
	if !ok {
		return nil, gateway.NewTransientError("BAD_RESPONSE", fmt.Sprintf("unknown state %q", resp.State))
	}
	return &gateway.StatusResult{
		Status:  status,
		Message: strings.TrimSpace(resp.Message),
		Raw:     raw,
	}, nil
}

type webhookPayload struct {
	SessionRef      string `json:"session_ref"`
	ClientReference string `json:"client_reference"`
	State           string `json:"state"`
	Amount          string `json:"amount"`
	Message         string `json:"message"`
}

// ParseWebhook parses a settlement notification into the canonical
// event shape.
func (a *Adapter) ParseWebhook(payload []byte) (*gateway.WebhookEvent, error) {
	var raw map[string]interface{}
	_ = json.Unmarshal(payload, &raw)
	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	status, ok := MapSessionState(body.State)
	if !ok {
		return nil, fmt.Errorf("%w: unknown state %q", ErrResponseInvalid, body.State)
	}
	event := &gateway.WebhookEvent{
		ProviderRef: strings.TrimSpace(body.SessionRef),
		Reference:   strings.TrimSpace(body.ClientReference),
		Status:      status,
		Message:     strings.TrimSpace(body.Message),
		Raw:         raw,
	}
	if amount := strings.TrimSpace(body.Amount); amount != "" {
		var m models.Money
		if err := m.UnmarshalJSON([]byte(`"` + amount + `"`)); err == nil {
			event.Amount = m
		}
	}
	return event, nil
}

func (a *Adapter) call(ctx context.Context, method, path string, payload map[string]string) ([]byte, map[string]interface{}, error) {
	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, gateway.NewPermanentError("BAD_REQUEST", err.Error())
		}
		reader = bytes.NewReader(body)
	}
	endpoint := strings.TrimRight(strings.TrimSpace(a.cfg.APIBaseURL), "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, nil, gateway.NewPermanentError("BAD_REQUEST", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(a.cfg.ClientID, a.cfg.ClientSecret)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, nil, gateway.NewTransientError("NETWORK", err.Error())
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, gateway.NewTransientError("NETWORK", err.Error())
	}
	if resp.StatusCode >= 500 {
		return nil, nil, gateway.NewTransientError("PROVIDER_UNAVAILABLE", fmt.Sprintf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, nil, gateway.NewPermanentError("PROVIDER_REJECTED", fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}
	var raw map[string]interface{}
	_ = json.Unmarshal(respBody, &raw)
	return respBody, raw, nil
}

// MapSessionState maps a provider session state to a canonical status.
func MapSessionState(state string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(state)) {
	case "SETTLED", "COMPLETED":
		return constants.TxStatusCompleted, true
	case "OPEN", "AWAITING_PAYMENT", "PROCESSING":
		return constants.TxStatusPending, true
	case "REJECTED", "FAILED":
		return constants.TxStatusFailed, true
	case "ABANDONED", "CANCELLED":
		return constants.TxStatusCancelled, true
	case "EXPIRED":
		return constants.TxStatusExpired, true
	default:
		return "", false
	}
}

func stripNonDigits(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
