// Package orangemoney implements the Orange Money SL wallet rail, a
// PIN-debit synchronous provider: the dispatch call carries the customer
// PIN and returns a definitive status in the same round trip.
package orangemoney

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/leonepay/internal/constants"
	"github.com/leonepay/internal/gateway"
	"github.com/leonepay/internal/models"
)

var (
	ErrConfigInvalid   = errors.New("orangemoney config invalid")
	ErrRequestFailed   = errors.New("orangemoney request failed")
	ErrResponseInvalid = errors.New("orangemoney response invalid")
	ErrPhoneInvalid    = errors.New("orangemoney phone invalid")
	ErrPINInvalid      = errors.New("orangemoney pin invalid")
)

// Orange SL mobile prefixes (after the 232 country code).
var phonePrefixes = []string{"25", "75", "76", "78", "79"}

const (
	defaultPINLength = 4
	subscriberDigits = 8
)

// Config is the typed provider configuration parsed from the gateway
// settings blob.
type Config struct {
	APIBaseURL    string `json:"api_base_url"`
	MerchantCode  string `json:"merchant_code"`
	APIKey        string `json:"api_key"`
	WebhookSecret string `json:"webhook_secret"`
	PINLength     int    `json:"pin_length"`
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
	if cfg.PINLength <= 0 {
		cfg.PINLength = defaultPINLength
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
	if strings.TrimSpace(cfg.MerchantCode) == "" {
		return fmt.Errorf("%w: merchant_code is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return fmt.Errorf("%w: api_key is required", ErrConfigInvalid)
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
	timeout := 10 * time.Second
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
	return constants.GatewayOrangeMoney
}

// WebhookSecret returns the callback signing secret.
func (a *Adapter) WebhookSecret() string {
	return a.cfg.WebhookSecret
}

// FormatIdentifier normalizes a raw phone number to 232XXXXXXXX.
func (a *Adapter) FormatIdentifier(raw string) (string, error) {
	digits := stripNonDigits(raw)
	switch {
	case strings.HasPrefix(digits, constants.PhoneCountryCode) && len(digits) == len(constants.PhoneCountryCode)+subscriberDigits:
		return digits, nil
	case strings.HasPrefix(digits, "0") && len(digits) == subscriberDigits+1:
		return constants.PhoneCountryCode + digits[1:], nil
	case len(digits) == subscriberDigits:
		return constants.PhoneCountryCode + digits, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrPhoneInvalid, raw)
	}
}

// ValidateAccount checks the number against the Orange SL prefix table.
func (a *Adapter) ValidateAccount(identifier string) error {
	normalized, err := a.FormatIdentifier(identifier)
	if err != nil {
		return err
	}
	subscriber := normalized[len(constants.PhoneCountryCode):]
	for _, prefix := range phonePrefixes {
		if strings.HasPrefix(subscriber, prefix) {
			return nil
		}
	}
	return fmt.Errorf("%w: prefix not served by orange money", ErrPhoneInvalid)
}

type debitResponse struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	ErrorCode     string `json:"error_code"`
	Message       string `json:"message"`
}

// SendPayment performs the synchronous PIN debit. Format and PIN
// constraints are validated before the provider call, not after.
func (a *Adapter) SendPayment(ctx context.Context, req gateway.PaymentRequest) (*gateway.PaymentResult, error) {
	msisdn, err := a.FormatIdentifier(req.PayerIdentifier)
	if err != nil {
		return nil, gateway.NewPermanentError("INVALID_ACCOUNT", err.Error())
	}
	if err := a.ValidateAccount(msisdn); err != nil {
		return nil, gateway.NewPermanentError("INVALID_ACCOUNT", err.Error())
	}
	pin := strings.TrimSpace(req.PayerPIN)
	if len(pin) != a.cfg.PINLength || stripNonDigits(pin) != pin {
		return nil, gateway.NewPermanentError("INVALID_PIN", ErrPINInvalid.Error())
	}

	payload := map[string]string{
		"merchant_code": a.cfg.MerchantCode,
		"reference":     req.Reference,
		"amount":        req.Amount.String(),
		"currency":      req.Currency,
		"msisdn":        msisdn,
		"pin":           pin,
		"description":   req.Description,
	}
	body, raw, err := a.postJSON(ctx, "/v1/debit", payload)
	if err != nil {
		return nil, err
	}
	var resp debitResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, gateway.NewTransientError("BAD_RESPONSE", ErrResponseInvalid.Error())
	}
	status, ok := mapProviderStatus(resp.Status)
	if !ok {
		return nil, gateway.NewTransientError("BAD_RESPONSE", fmt.Sprintf("unknown status %q", resp.Status))
	}
	if status == constants.TxStatusFailed {
		return nil, classifyDecline(resp.ErrorCode, resp.Message)
	}
	return &gateway.PaymentResult{
		ProviderRef: strings.TrimSpace(resp.TransactionID),
		Status:      status,
		Message:     strings.TrimSpace(resp.Message),
		Raw:         raw,
	}, nil
}

// CheckStatus polls the provider for a transaction status.
func (a *Adapter) CheckStatus(ctx context.Context, providerRef string) (*gateway.StatusResult, error) {
	providerRef = strings.TrimSpace(providerRef)
	if providerRef == "" {
		return nil, gateway.NewPermanentError("INVALID_REFERENCE", "empty provider reference")
	}
	body, raw, err := a.postJSON(ctx, "/v1/status", map[string]string{
		"merchant_code":  a.cfg.MerchantCode,
		"transaction_id": providerRef,
	})
	if err != nil {
		return nil, err
	}
	var resp debitResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, gateway.NewTransientError("BAD_RESPONSE", ErrResponseInvalid.Error())
	}
	status, ok := mapProviderStatus(resp.Status)
	if !ok {
		return nil, gateway.NewTransientError("BAD_RESPONSE", fmt.Sprintf("unknown status %q", resp.Status))
	}
	return &gateway.StatusResult{
		Status:  status,
		Message: strings.TrimSpace(resp.Message),
		Raw:     raw,
	}, nil
}

// Refund reverses a completed debit.
func (a *Adapter) Refund(ctx context.Context, providerRef string, amount models.Money) (string, error) {
	body, _, err := a.postJSON(ctx, "/v1/refund", map[string]string{
		"merchant_code":  a.cfg.MerchantCode,
		"transaction_id": strings.TrimSpace(providerRef),
		"amount":         amount.String(),
	})
	if err != nil {
		return "", err
	}
	var resp struct {
		Status   string `json:"status"`
		RefundID string `json:"refund_id"`
		Message  string `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", gateway.NewTransientError("BAD_RESPONSE", ErrResponseInvalid.Error())
	}
	if !strings.EqualFold(resp.Status, "SUCCESS") {
		return "", gateway.NewPermanentError("REFUND_REJECTED", resp.Message)
	}
	return strings.TrimSpace(resp.RefundID), nil
}

type webhookPayload struct {
	TransactionID string `json:"transaction_id"`
	Reference     string `json:"reference"`
	Status        string `json:"status"`
	Amount        string `json:"amount"`
	Message       string `json:"message"`
}

// ParseWebhook parses a provider callback into the canonical event shape.
func (a *Adapter) ParseWebhook(payload []byte) (*gateway.WebhookEvent, error) {
	var raw map[string]interface{}
	_ = json.Unmarshal(payload, &raw)
	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	status, ok := mapProviderStatus(body.Status)
	if !ok {
		return nil, fmt.Errorf("%w: unknown status %q", ErrResponseInvalid, body.Status)
	}
	event := &gateway.WebhookEvent{
		ProviderRef: strings.TrimSpace(body.TransactionID),
		Reference:   strings.TrimSpace(body.Reference),
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

func (a *Adapter) postJSON(ctx context.Context, path string, payload map[string]string) ([]byte, map[string]interface{}, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, gateway.NewPermanentError("BAD_REQUEST", err.Error())
	}
	endpoint := strings.TrimRight(strings.TrimSpace(a.cfg.APIBaseURL), "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, gateway.NewPermanentError("BAD_REQUEST", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Merchant-Code", a.cfg.MerchantCode)
	req.Header.Set("X-Signature", SignPayload(payload, a.cfg.APIKey))

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

// SignPayload builds the sorted key=value HMAC-SHA256 signature the
// provider expects on requests.
func SignPayload(params map[string]string, key string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, params[k]))
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(strings.Join(pairs, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}

func mapProviderStatus(status string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "SUCCESS", "SUCCESSFUL", "COMPLETED":
		return constants.TxStatusCompleted, true
	case "PENDING", "INITIATED", "PROCESSING":
		return constants.TxStatusPending, true
	case "FAILED", "DECLINED", "INSUFFICIENT_FUNDS", "INVALID_PIN", "WALLET_NOT_FOUND":
		return constants.TxStatusFailed, true
	case "CANCELLED", "CANCELED":
		return constants.TxStatusCancelled, true
	case "EXPIRED", "TIMEOUT":
		return constants.TxStatusExpired, true
	default:
		return "", false
	}
}

func classifyDecline(code, message string) *gateway.Error {
	code = strings.ToUpper(strings.TrimSpace(code))
	switch code {
	case "", "UNKNOWN", "INTERNAL", "TIMEOUT", "SERVICE_UNAVAILABLE":
		return gateway.NewTransientError(firstNonEmpty(code, "PROVIDER_ERROR"), message)
	default:
		// Declines, bad PINs and missing wallets are final verdicts.
		return gateway.NewPermanentError(code, message)
	}
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return val
		}
	}
	return ""
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
