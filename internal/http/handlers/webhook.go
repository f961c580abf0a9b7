package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/leonepay/internal/constants"
	"github.com/leonepay/internal/http/response"
	"github.com/leonepay/internal/models"
	"github.com/leonepay/internal/service"
)

// ProviderWebhook ingests a provider callback. The reply status tells
// the provider whether to redeliver: accepted callbacks get 200 even
// when they carry nothing new.
func (h *Handler) ProviderWebhook(c *gin.Context) {
	gatewayType := c.Param("gateway_type")
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.String(http.StatusBadRequest, "read failed")
		return
	}
	signature := c.GetHeader("X-Signature")

	outcome := h.webhooks.Process(c.Request.Context(), gatewayType, payload, signature)
	switch {
	case outcome.Accepted:
		c.JSON(http.StatusOK, gin.H{"result": outcome.Result})
	case outcome.Result == constants.WebhookResultBadSignature:
		c.JSON(http.StatusUnauthorized, gin.H{"result": outcome.Result})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"result": outcome.Result, "message": outcome.Message})
	}
}

type reconcileRequest struct {
	GatewayType string `json:"gateway_type" binding:"required"`
	Day         string `json:"day" binding:"required"` // YYYY-MM-DD
	Actor       string `json:"actor"`
	Records     []struct {
		ProviderRef string `json:"provider_ref"`
		Reference   string `json:"reference"`
		Amount      string `json:"amount"`
		Status      string `json:"status"`
	} `json:"records" binding:"required"`
}

// Reconcile matches a provider settlement statement against the
// engine's completed transactions for one day.
func (h *Handler) Reconcile(c *gin.Context) {
	var req reconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	day, err := time.Parse("2006-01-02", req.Day)
	if err != nil {
		response.BadRequest(c, "invalid day, want YYYY-MM-DD")
		return
	}

	records := make([]service.ProviderRecord, 0, len(req.Records))
	for _, r := range req.Records {
		amount, err := decimal.NewFromString(r.Amount)
		if err != nil {
			response.BadRequest(c, "invalid record amount: "+r.Amount)
			return
		}
		records = append(records, service.ProviderRecord{
			ProviderRef: r.ProviderRef,
			Reference:   r.Reference,
			Amount:      models.NewMoneyFromDecimal(amount),
			Status:      r.Status,
		})
	}

	report, err := h.reconciliation.Reconcile(c.Request.Context(), req.GatewayType, day, records, actorOrDefault(req.Actor))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, report)
}

type markReconciledRequest struct {
	Actor string `json:"actor"`
}

// MarkReconciled flags one completed transaction as reconciled.
func (h *Handler) MarkReconciled(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	// Body is optional; only the acting operator may be supplied.
	var req markReconciledRequest
	_ = c.ShouldBindJSON(&req)

	changed, err := h.reconciliation.MarkReconciled(c.Request.Context(), id, actorOrDefault(req.Actor))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"reconciled": changed})
}

type bulkReconcileRequest struct {
	IDs   []uint `json:"ids" binding:"required"`
	Actor string `json:"actor"`
}

// BulkMarkReconciled flags a batch of transactions as reconciled and
// reports how many rows changed.
func (h *Handler) BulkMarkReconciled(c *gin.Context) {
	var req bulkReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	count, err := h.reconciliation.BulkMarkReconciled(c.Request.Context(), req.IDs, actorOrDefault(req.Actor))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"reconciled": count})
}

// SweepExpired expires overdue live transactions. A manual backstop for
// delayed tasks lost to a queue outage.
func (h *Handler) SweepExpired(c *gin.Context) {
	expired, err := h.orchestrator.SweepExpired(c.Request.Context(), 500)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"expired": expired})
}
