// Package afrimoney implements the Afrimoney (Africell SL) wallet rail.
// Like Orange Money it is a PIN-debit synchronous provider, but the API
// speaks form-encoded requests with its own field names and verdict codes.
package afrimoney

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/leonepay/internal/constants"
	"github.com/leonepay/internal/gateway"
	"github.com/leonepay/internal/models"
)

var (
	ErrConfigInvalid   = errors.New("afrimoney config invalid")
	ErrResponseInvalid = errors.New("afrimoney response invalid")
	ErrWalletInvalid   = errors.New("afrimoney wallet invalid")
	ErrPINInvalid      = errors.New("afrimoney pin invalid")
)

// Africell SL mobile prefixes (after the 232 country code).
var phonePrefixes = []string{"30", "33", "77", "88", "99"}

const (
	defaultPINLength = 4
	subscriberDigits = 8
)

// Config is the typed provider configuration parsed from the gateway
// settings blob.
type Config struct {
	APIBaseURL    string `json:"api_base_url"`
	PartnerID     string `json:"partner_id"`
	PartnerSecret string `json:"partner_secret"`
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
	if strings.TrimSpace(cfg.PartnerID) == "" {
		return fmt.Errorf("%w: partner_id is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.PartnerSecret) == "" {
		return fmt.Errorf("%w: partner_secret is required", ErrConfigInvalid)
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
	return constants.GatewayAfrimoney
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
		return "", fmt.Errorf("%w: %s", ErrWalletInvalid, raw)
	}
}

// ValidateAccount checks the number against the Africell SL prefix table.
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
	return fmt.Errorf("%w: prefix not served by afrimoney", ErrWalletInvalid)
}

type apiResponse struct {
	Result    string `json:"result"`
	TxnID     string `json:"txn_id"`
	ErrorCode string `json:"error_code"`
	Reason    string `json:"reason"`
}

// SendPayment performs the synchronous wallet debit.
func (a *Adapter) SendPayment(ctx context.Context, req gateway.PaymentRequest) (*gateway.PaymentResult, error) {
	wallet, err := a.FormatIdentifier(req.PayerIdentifier)
	if err != nil {
		return nil, gateway.NewPermanentError("INVALID_ACCOUNT", err.Error())
	}
	if err := a.ValidateAccount(wallet); err != nil {
		return nil, gateway.NewPermanentError("INVALID_ACCOUNT", err.Error())
	}
	pin := strings.TrimSpace(req.PayerPIN)
	if len(pin) != a.cfg.PINLength || stripNonDigits(pin) != pin {
		return nil, gateway.NewPermanentError("INVALID_PIN", ErrPINInvalid.Error())
	}

	form := url.Values{
		"partner_id":    {a.cfg.PartnerID},
		"external_ref":  {req.Reference},
		"amount":        {req.Amount.String()},
		"currency":      {req.Currency},
		"wallet_msisdn": {wallet},
		"wallet_pin":    {pin},
		"narration":     {req.Description},
	}
	resp, raw, err := a.postForm(ctx, "/partner/v2/debit", form)
	if err != nil {
		return nil, err
	}
	status, ok := mapProviderResult(resp.Result)
	if !ok {
		return nil, gateway.NewTransientError("BAD_RESPONSE", fmt.Sprintf("unknown result %q", resp.Result))
	}
	if status == constants.TxStatusFailed {
		return nil, classifyDecline(resp.ErrorCode, resp.Reason)
	}
	return &gateway.PaymentResult{
		ProviderRef: strings.TrimSpace(resp.TxnID),
		Status:      status,
		Message:     strings.TrimSpace(resp.Reason),
		Raw:         raw,
	}, nil
}

// CheckStatus polls the provider for a transaction status.
func (a *Adapter) CheckStatus(ctx context.Context, providerRef string) (*gateway.StatusResult, error) {
	providerRef = strings.TrimSpace(providerRef)
	if providerRef == "" {
		return nil, gateway.NewPermanentError("INVALID_REFERENCE", "empty provider reference")
	}
	resp, raw, err := a.postForm(ctx, "/partner/v2/status", url.Values{
		"partner_id": {a.cfg.PartnerID},
		"txn_id":     {providerRef},
	})
	if err != nil {
		return nil, err
	}
	status, ok := mapProviderResult(resp.Result)
	if !ok {
		return nil, gateway.NewTransientError("BAD_RESPONSE", fmt.Sprintf("unknown result %q", resp.Result))
	}
	return &gateway.StatusResult{
		Status:  status,
		Message: strings.TrimSpace(resp.Reason),
		Raw:     raw,
	}, nil
}

// Refund reverses a completed debit.
func (a *Adapter) Refund(ctx context.Context, providerRef string, amount models.Money) (string, error) {
	resp, _, err := a.postForm(ctx, "/partner/v2/reversal", url.Values{
		"partner_id": {a.cfg.PartnerID},
		"txn_id":     {strings.TrimSpace(providerRef)},
		"amount":     {amount.String()},
	})
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(resp.Result, "OK") && !strings.EqualFold(resp.Result, "SUCCESS") {
		return "", gateway.NewPermanentError("REFUND_REJECTED", resp.Reason)
	}
	return strings.TrimSpace(resp.TxnID), nil
}

type webhookPayload struct {
	TxnID       string `json:"txn_id"`
	ExternalRef string `json:"external_ref"`
	Result      string `json:"result"`
	Amount      string `json:"amount"`
	Reason      string `json:"reason"`
}

// ParseWebhook parses a provider callback into the canonical event shape.
func (a *Adapter) ParseWebhook(payload []byte) (*gateway.WebhookEvent, error) {
	var raw map[string]interface{}
	_ = json.Unmarshal(payload, &raw)
	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	status, ok := mapProviderResult(body.Result)
	if !ok {
		return nil, fmt.Errorf("%w: unknown result %q", ErrResponseInvalid, body.Result)
	}
	event := &gateway.WebhookEvent{
		ProviderRef: strings.TrimSpace(body.TxnID),
		Reference:   strings.TrimSpace(body.ExternalRef),
		Status:      status,
		Message:     strings.TrimSpace(body.Reason),
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

func (a *Adapter) postForm(ctx context.Context, path string, form url.Values) (*apiResponse, map[string]interface{}, error) {
	form.Set("signature", SignForm(form, a.cfg.PartnerSecret))
	endpoint := strings.TrimRight(strings.TrimSpace(a.cfg.APIBaseURL), "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, gateway.NewPermanentError("BAD_REQUEST", err.Error())
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, nil, gateway.NewTransientError("NETWORK", err.Error())
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, gateway.NewTransientError("NETWORK", err.Error())
	}
	if resp.StatusCode >= 500 {
		return nil, nil, gateway.NewTransientError("PROVIDER_UNAVAILABLE", fmt.Sprintf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, nil, gateway.NewPermanentError("PROVIDER_REJECTED", fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, nil, gateway.NewTransientError("BAD_RESPONSE", ErrResponseInvalid.Error())
	}
	var raw map[string]interface{}
	_ = json.Unmarshal(body, &raw)
	return &parsed, raw, nil
}

// SignForm builds the sorted key=value HMAC-SHA256 signature over the
// form fields, excluding the signature field itself.
func SignForm(form url.Values, secret string) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		if k == "signature" || form.Get(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, form.Get(k)))
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(pairs, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}

func mapProviderResult(result string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(result)) {
	case "OK", "SUCCESS", "COMPLETED":
		return constants.TxStatusCompleted, true
	case "ACCEPTED", "PENDING", "IN_PROGRESS":
		return constants.TxStatusPending, true
	case "FAILED", "DECLINED", "NO_FUNDS", "BAD_PIN", "NO_WALLET":
		return constants.TxStatusFailed, true
	case "CANCELLED", "CANCELED":
		return constants.TxStatusCancelled, true
	case "EXPIRED", "TIMED_OUT":
		return constants.TxStatusExpired, true
	default:
		return "", false
	}
}

func classifyDecline(code, reason string) *gateway.Error {
	code = strings.ToUpper(strings.TrimSpace(code))
	switch code {
	case "", "UNKNOWN", "INTERNAL", "TIMEOUT", "BUSY":
		if code == "" {
			code = "PROVIDER_ERROR"
		}
		return gateway.NewTransientError(code, reason)
	default:
		return gateway.NewPermanentError(code, reason)
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
