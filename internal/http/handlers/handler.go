// Package handlers exposes the engine API over gin.
package handlers

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/leonepay/internal/gateway"
	"github.com/leonepay/internal/http/response"
	"github.com/leonepay/internal/repository"
	"github.com/leonepay/internal/service"
)

// GatewayReloader refreshes gateway adapters and cached configurations
// after an operator change.
type GatewayReloader interface {
	ReloadGateways(ctx context.Context) error
}

// Handler bundles the API dependencies.
type Handler struct {
	orchestrator   *service.TransactionOrchestrator
	webhooks       *service.WebhookProcessor
	reconciliation *service.ReconciliationEngine
	txRepo         repository.TransactionRepository
	registry       *gateway.Registry
	gateways       GatewayReloader
}

// New creates the handler set.
func New(
	orchestrator *service.TransactionOrchestrator,
	webhooks *service.WebhookProcessor,
	reconciliation *service.ReconciliationEngine,
	txRepo repository.TransactionRepository,
	registry *gateway.Registry,
	gateways GatewayReloader,
) *Handler {
	return &Handler{
		orchestrator:   orchestrator,
		webhooks:       webhooks,
		reconciliation: reconciliation,
		txRepo:         txRepo,
		registry:       registry,
		gateways:       gateways,
	}
}

// writeServiceError maps a service failure onto the response envelope.
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrValidation):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrLimitExceeded):
		response.Error(c, response.CodeLimitExceeded, err.Error())
	case errors.Is(err, service.ErrStateConflict), errors.Is(err, service.ErrRetryExhausted):
		response.Conflict(c, err.Error())
	case errors.Is(err, service.ErrAuthentication):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, service.ErrProvider):
		response.Error(c, response.CodeProvider, err.Error())
	default:
		response.Error(c, response.CodeInternal, "internal error")
	}
}
