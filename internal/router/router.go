package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/leonepay/internal/config"
	"github.com/leonepay/internal/http/handlers"
	"github.com/leonepay/internal/logger"
	"github.com/leonepay/internal/provider"
)

// SetupRouter builds the gin engine and mounts the API.
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	h := handlers.New(
		c.Orchestrator,
		c.Webhooks,
		c.Reconciliation,
		c.Transactions,
		c.Registry,
		c,
	)

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))

	r.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		payments := api.Group("/payments")
		{
			payments.POST("", h.InitiatePayment)
			payments.GET("", h.ListTransactions)
			payments.GET("/:id", h.GetTransaction)
			payments.GET("/reference/:reference", h.GetTransactionByReference)
			payments.POST("/:id/process", h.ProcessPayment)
			payments.POST("/:id/retry", h.RetryPayment)
			payments.POST("/:id/cancel", h.CancelTransaction)
			payments.POST("/:id/review", h.ReviewTransaction)
			payments.POST("/:id/refunds", h.RefundPayment)
			payments.GET("/:id/refunds", h.ListRefunds)
			payments.GET("/:id/logs", h.GetAuditTrail)
			payments.POST("/:id/reconcile", h.MarkReconciled)
		}

		api.GET("/gateways", h.ListGateways)
		api.POST("/webhooks/:gateway_type", h.ProviderWebhook)

		ops := api.Group("/ops")
		{
			ops.POST("/reconcile", h.Reconcile)
			ops.POST("/reconcile/bulk", h.BulkMarkReconciled)
			ops.POST("/sweep-expired", h.SweepExpired)
			ops.POST("/gateways/reload", h.ReloadGateways)
		}
	}

	return r
}
