package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/leonepay/internal/logger"
	"github.com/leonepay/internal/models"
)

// Notifier delivers status-change notifications to the client system
// that initiated a payment. Delivery is best effort: a notification
// failure never rolls back the state change it reports.
type Notifier interface {
	NotifyStatusChange(ctx context.Context, tx *models.PaymentTransaction)
}

// NopNotifier discards notifications.
type NopNotifier struct{}

// NotifyStatusChange does nothing.
func (NopNotifier) NotifyStatusChange(context.Context, *models.PaymentTransaction) {}

// HTTPNotifier posts a signed JSON payload to the transaction's
// callback URL.
type HTTPNotifier struct {
	secret string
	client *http.Client
}

// NewHTTPNotifier creates a notifier signing with the shared secret.
func NewHTTPNotifier(secret string) *HTTPNotifier {
	return &HTTPNotifier{
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// NotifyStatusChange posts the current transaction state to the client
// callback URL, if one was given.
func (n *HTTPNotifier) NotifyStatusChange(ctx context.Context, tx *models.PaymentTransaction) {
	callbackURL := strings.TrimSpace(tx.CallbackURL)
	if callbackURL == "" {
		return
	}
	body, err := json.Marshal(map[string]interface{}{
		"reference":    tx.Reference,
		"provider_ref": tx.ProviderRef,
		"status":       tx.Status,
		"amount":       tx.Amount,
		"fee":          tx.Fee,
		"net_amount":   tx.NetAmount,
		"currency":     tx.Currency,
		"gateway_type": tx.GatewayType,
		"error_code":   tx.ErrorCode,
		"message":      tx.StatusMessage,
		"updated_at":   tx.UpdatedAt,
	})
	if err != nil {
		logger.Errorw("client_notify_marshal_failed", "reference", tx.Reference, "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		logger.Errorw("client_notify_request_failed", "reference", tx.Reference, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if n.secret != "" {
		req.Header.Set("X-Signature", SignBody(n.secret, body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		logger.Warnw("client_notify_failed",
			"reference", tx.Reference,
			"status", tx.Status,
			"error", err,
		)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		logger.Warnw("client_notify_rejected",
			"reference", tx.Reference,
			"status", tx.Status,
			"http_status", resp.StatusCode,
		)
		return
	}
	logger.Infow("client_notify_sent", "reference", tx.Reference, "status", tx.Status)
}
