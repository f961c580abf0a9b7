package gateway

import (
	"context"
	"errors"

	"github.com/leonepay/internal/models"
)

// PaymentRequest is the provider-agnostic dispatch shape handed to an
// adapter. PayerPIN is only set for PIN-debit rails, passed through from
// the caller and never persisted.
type PaymentRequest struct {
	Reference       string
	Amount          models.Money
	Currency        string
	PayerIdentifier string
	PayerPIN        string
	Description     string
	CallbackURL     string
}

// PaymentResult is the outcome of a dispatch call. PIN-debit providers
// return a definitive canonical status in the same round trip; redirect
// providers return pending plus a redirect URL and resolve later via
// webhook or polling.
type PaymentResult struct {
	ProviderRef string
	Status      string
	Message     string
	RedirectURL string
	Raw         map[string]interface{}
}

// StatusResult is the outcome of a status poll.
type StatusResult struct {
	Status  string
	Message string
	Raw     map[string]interface{}
}

// WebhookEvent is the canonical shape an adapter parses a provider
// callback payload into.
type WebhookEvent struct {
	ProviderRef string
	Reference   string
	Status      string
	Amount      models.Money
	Message     string
	Raw         map[string]interface{}
}

// Adapter is the capability interface every payment rail implements.
type Adapter interface {
	// Type returns the gateway type this adapter serves.
	Type() string
	// ValidateAccount checks identifier format and prefix before any
	// provider call.
	ValidateAccount(identifier string) error
	// FormatIdentifier normalizes a raw phone/account number to the
	// provider's canonical format.
	FormatIdentifier(raw string) (string, error)
	// SendPayment dispatches the payment request to the provider.
	SendPayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error)
	// CheckStatus polls the provider for the current status, the fallback
	// when no webhook arrives.
	CheckStatus(ctx context.Context, providerRef string) (*StatusResult, error)
	// ParseWebhook parses a provider callback payload into the canonical
	// event shape.
	ParseWebhook(payload []byte) (*WebhookEvent, error)
	// WebhookSecret returns the shared secret used to verify callback
	// signatures.
	WebhookSecret() string
}

// Refunder is the optional refund capability; not every rail supports it.
type Refunder interface {
	Refund(ctx context.Context, providerRef string, amount models.Money) (string, error)
}

// Error is a classified provider failure. Retryable errors (timeouts,
// 5xx-class responses) are eligible for the bounded retry flow; permanent
// errors (declined, invalid PIN, invalid account) are not and must not
// consume a retry slot.
type Error struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// NewTransientError builds a retryable provider error.
func NewTransientError(code, message string) *Error {
	return &Error{Code: code, Message: message, Retryable: true}
}

// NewPermanentError builds a non-retryable provider error.
func NewPermanentError(code, message string) *Error {
	return &Error{Code: code, Message: message, Retryable: false}
}

// AsError extracts a classified provider error, if any.
func AsError(err error) (*Error, bool) {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr, true
	}
	return nil, false
}

// IsRetryable reports whether the failure is classified transient.
// Unclassified errors are treated as transient; a network-level failure
// with no provider verdict must stay eligible for retry.
func IsRetryable(err error) bool {
	if gerr, ok := AsError(err); ok {
		return gerr.Retryable
	}
	return err != nil
}
