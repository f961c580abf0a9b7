// Package cash implements the agent counter rail. There is no provider
// API: dispatch parks the payment as pending and an agent confirms or
// rejects it through the operations endpoints, which arrive here as
// webhook-shaped events.
package cash

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/leonepay/internal/constants"
	"github.com/leonepay/internal/gateway"
	"github.com/leonepay/internal/models"
)

var (
	ErrConfigInvalid  = errors.New("cash config invalid")
	ErrPayloadInvalid = errors.New("cash payload invalid")
)

// Config is the typed provider configuration.
type Config struct {
	ConfirmSecret string `json:"confirm_secret"`
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
	if strings.TrimSpace(cfg.ConfirmSecret) == "" {
		return nil, fmt.Errorf("%w: confirm_secret is required", ErrConfigInvalid)
	}
	return &cfg, nil
}

// Adapter implements gateway.Adapter.
type Adapter struct {
	cfg *Config
}

// New builds an adapter.
func New(cfg *Config) (*Adapter, error) {
	if cfg == nil || strings.TrimSpace(cfg.ConfirmSecret) == "" {
		return nil, ErrConfigInvalid
	}
	return &Adapter{cfg: cfg}, nil
}

// Type returns the gateway type.
func (a *Adapter) Type() string {
	return constants.GatewayCash
}

// WebhookSecret returns the agent confirmation secret.
func (a *Adapter) WebhookSecret() string {
	return a.cfg.ConfirmSecret
}

// FormatIdentifier trims the payer contact; any non-empty value works
// at a counter.
func (a *Adapter) FormatIdentifier(raw string) (string, error) {
	contact := strings.TrimSpace(raw)
	if contact == "" {
		return "", fmt.Errorf("%w: empty payer contact", ErrPayloadInvalid)
	}
	return contact, nil
}

// ValidateAccount checks the payer contact is present.
func (a *Adapter) ValidateAccount(identifier string) error {
	_, err := a.FormatIdentifier(identifier)
	return err
}

// SendPayment issues a counter code and parks the payment as pending.
func (a *Adapter) SendPayment(ctx context.Context, req gateway.PaymentRequest) (*gateway.PaymentResult, error) {
	code := "CSH-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:14]
	return &gateway.PaymentResult{
		ProviderRef: code,
		Status:      constants.TxStatusPending,
		Message:     "awaiting agent confirmation",
	}, nil
}

// CheckStatus has nothing to poll; the payment stays pending until an
// agent confirms it.
func (a *Adapter) CheckStatus(ctx context.Context, providerRef string) (*gateway.StatusResult, error) {
	return &gateway.StatusResult{
		Status:  constants.TxStatusPending,
		Message: "awaiting agent confirmation",
	}, nil
}

type confirmPayload struct {
	CounterCode string `json:"counter_code"`
	Reference   string `json:"reference"`
	Outcome     string `json:"outcome"`
	Amount      string `json:"amount"`
	AgentID     string `json:"agent_id"`
}

// ParseWebhook parses an agent confirmation.
func (a *Adapter) ParseWebhook(payload []byte) (*gateway.WebhookEvent, error) {
	var raw map[string]interface{}
	_ = json.Unmarshal(payload, &raw)
	var body confirmPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadInvalid, err)
	}

	var status string
	switch strings.ToLower(strings.TrimSpace(body.Outcome)) {
	case "confirmed", "paid":
		status = constants.TxStatusCompleted
	case "rejected":
		status = constants.TxStatusFailed
	case "cancelled":
		status = constants.TxStatusCancelled
	default:
		return nil, fmt.Errorf("%w: unknown outcome %q", ErrPayloadInvalid, body.Outcome)
	}

	event := &gateway.WebhookEvent{
		ProviderRef: strings.TrimSpace(body.CounterCode),
		Reference:   strings.TrimSpace(body.Reference),
		Status:      status,
		Message:     "agent:" + strings.TrimSpace(body.AgentID),
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
