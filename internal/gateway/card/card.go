// Package card implements the card payment rail, a redirect provider
// backed by a hosted checkout page. Unlike bank transfers, card payments
// support API-driven refunds.
package card

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
	ErrConfigInvalid   = errors.New("card config invalid")
	ErrResponseInvalid = errors.New("card response invalid")
	ErrContactInvalid  = errors.New("card contact invalid")
)

// Config is the typed provider configuration parsed from the gateway
// settings blob.
type Config struct {
	APIBaseURL    string `json:"api_base_url"`
	SecretKey     string `json:"secret_key"`
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
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return fmt.Errorf("%w: secret_key is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return fmt.Errorf("%w: webhook_secret is required", ErrConfigInvalid)
	}
	return nil
}

// Adapter implements gateway.Adapter and gateway.Refunder.
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
	return constants.GatewayCard
}

// WebhookSecret returns the callback signing secret.
func (a *Adapter) WebhookSecret() string {
	return a.cfg.WebhookSecret
}

// FormatIdentifier trims the payer contact. Card numbers never pass
// through the engine; the hosted page collects them.
func (a *Adapter) FormatIdentifier(raw string) (string, error) {
	contact := strings.TrimSpace(raw)
	if contact == "" {
		return "", fmt.Errorf("%w: empty contact", ErrContactInvalid)
	}
	return contact, nil
}

// ValidateAccount checks the payer contact is present.
func (a *Adapter) ValidateAccount(identifier string) error {
	_, err := a.FormatIdentifier(identifier)
	return err
}

type checkoutResponse struct {
	CheckoutID  string `json:"checkout_id"`
	Status      string `json:"status"`
	CheckoutURL string `json:"checkout_url"`
	Message     string `json:"message"`
}

// SendPayment creates a hosted checkout and returns pending with the
// checkout URL.
func (a *Adapter) SendPayment(ctx context.Context, req gateway.PaymentRequest) (*gateway.PaymentResult, error) {
	contact, err := a.FormatIdentifier(req.PayerIdentifier)
	if err != nil {
		return nil, gateway.NewPermanentError("INVALID_ACCOUNT", err.Error())
	}
	payload := map[string]string{
		"merchant_reference": req.Reference,
		"amount":             req.Amount.String(),
		"currency":           req.Currency,
		"customer_contact":   contact,
		"description":        req.Description,
		"webhook_url":        req.CallbackURL,
	}
	body, raw, err := a.call(ctx, http.MethodPost, "/v1/checkouts", payload)
	if err != nil {
		return nil, err
	}
	var resp checkoutResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, gateway.NewTransientError("BAD_RESPONSE", ErrResponseInvalid.Error())
	}
	if strings.TrimSpace(resp.CheckoutID) == "" || strings.TrimSpace(resp.CheckoutURL) == "" {
		return nil, gateway.NewTransientError("BAD_RESPONSE", "checkout_id or checkout_url missing")
	}
	return &gateway.PaymentResult{
		ProviderRef: strings.TrimSpace(resp.CheckoutID),
		Status:      constants.TxStatusPending,
		Message:     strings.TrimSpace(resp.Message),
		RedirectURL: strings.TrimSpace(resp.CheckoutURL),
		Raw:         raw,
	}, nil
}

// CheckStatus polls the checkout status.
func (a *Adapter) CheckStatus(ctx context.Context, providerRef string) (*gateway.StatusResult, error) {
	providerRef = strings.TrimSpace(providerRef)
	if providerRef == "" {
		return nil, gateway.NewPermanentError("INVALID_REFERENCE", "empty provider reference")
	}
	body, raw, err := a.call(ctx, http.MethodGet, "/v1/checkouts/"+providerRef, nil)
	if err != nil {
		return nil, err
	}
	var resp checkoutResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, gateway.NewTransientError("BAD_RESPONSE", ErrResponseInvalid.Error())
	}
	status, ok := MapCheckoutStatus(resp.Status)
	if !ok {
		return nil, gateway.NewTransientError("BAD_RESPONSE", fmt.Sprintf("unknown status %q", resp.Status))
	}
	return &gateway.StatusResult{
		Status:  status,
		Message: strings.TrimSpace(resp.Message),
		Raw:     raw,
	}, nil
}

// Refund refunds a captured checkout, fully or partially.
func (a *Adapter) Refund(ctx context.Context, providerRef string, amount models.Money) (string, error) {
	body, _, err := a.call(ctx, http.MethodPost, "/v1/refunds", map[string]string{
		"checkout_id": strings.TrimSpace(providerRef),
		"amount":      amount.String(),
	})
	if err != nil {
		return "", err
	}
	var resp struct {
		RefundID string `json:"refund_id"`
		Status   string `json:"status"`
		Message  string `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", gateway.NewTransientError("BAD_RESPONSE", ErrResponseInvalid.Error())
	}
	switch strings.ToUpper(strings.TrimSpace(resp.Status)) {
	case "SUCCEEDED", "PENDING":
		return strings.TrimSpace(resp.RefundID), nil
	default:
		return "", gateway.NewPermanentError("REFUND_REJECTED", resp.Message)
	}
}

type webhookPayload struct {
	CheckoutID        string `json:"checkout_id"`
	MerchantReference string `json:"merchant_reference"`
	Status            string `json:"status"`
	Amount            string `json:"amount"`
	Message           string `json:"message"`
}

// ParseWebhook parses a checkout event into the canonical event shape.
func (a *Adapter) ParseWebhook(payload []byte) (*gateway.WebhookEvent, error) {
	var raw map[string]interface{}
	_ = json.Unmarshal(payload, &raw)
	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	status, ok := MapCheckoutStatus(body.Status)
	if !ok {
		return nil, fmt.Errorf("%w: unknown status %q", ErrResponseInvalid, body.Status)
	}
	event := &gateway.WebhookEvent{
		ProviderRef: strings.TrimSpace(body.CheckoutID),
		Reference:   strings.TrimSpace(body.MerchantReference),
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
	req.Header.Set("Authorization", "Bearer "+a.cfg.SecretKey)

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

// MapCheckoutStatus maps a provider checkout status to a canonical status.
func MapCheckoutStatus(status string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "CAPTURED", "PAID", "SUCCEEDED":
		return constants.TxStatusCompleted, true
	case "CREATED", "AUTHORIZED", "REQUIRES_ACTION", "PENDING":
		return constants.TxStatusPending, true
	case "DECLINED", "FAILED":
		return constants.TxStatusFailed, true
	case "VOIDED", "CANCELLED":
		return constants.TxStatusCancelled, true
	case "EXPIRED":
		return constants.TxStatusExpired, true
	default:
		return "", false
	}
}
