package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/leonepay/internal/http/response"
	"github.com/leonepay/internal/models"
	"github.com/leonepay/internal/repository"
	"github.com/leonepay/internal/service"
)

type initiatePaymentRequest struct {
	ClientID    uint   `json:"client_id" binding:"required"`
	PayerPhone  string `json:"payer_phone" binding:"required"`
	PayerName   string `json:"payer_name"`
	PayerEmail  string `json:"payer_email"`
	Amount      string `json:"amount" binding:"required"`
	Currency    string `json:"currency"`
	GatewayType string `json:"gateway_type" binding:"required"`
	Purpose     string `json:"purpose" binding:"required"`
	Description string `json:"description"`
	CallbackURL string `json:"callback_url"`
	IPAddress   string `json:"ip_address"`
	UserAgent   string `json:"user_agent"`
}

// InitiatePayment creates a payment in status initiated.
func (h *Handler) InitiatePayment(c *gin.Context) {
	var req initiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.BadRequest(c, "invalid amount")
		return
	}
	// Clients integrating server-side forward the payer's address; direct
	// calls fall back to the connection.
	if req.IPAddress == "" {
		req.IPAddress = c.ClientIP()
	}
	if req.UserAgent == "" {
		req.UserAgent = c.Request.UserAgent()
	}

	txn, err := h.orchestrator.InitiatePayment(c.Request.Context(), service.InitiatePaymentInput{
		ClientID:    req.ClientID,
		PayerPhone:  req.PayerPhone,
		PayerName:   req.PayerName,
		PayerEmail:  req.PayerEmail,
		Amount:      models.NewMoneyFromDecimal(amount),
		Currency:    req.Currency,
		GatewayType: req.GatewayType,
		Purpose:     req.Purpose,
		Description: req.Description,
		CallbackURL: req.CallbackURL,
		IPAddress:   req.IPAddress,
		UserAgent:   req.UserAgent,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, txn)
}

type processPaymentRequest struct {
	PayerPIN string `json:"payer_pin"`
	Actor    string `json:"actor"`
}

// ProcessPayment dispatches an initiated payment to its provider.
func (h *Handler) ProcessPayment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req processPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	txn, err := h.orchestrator.ProcessPayment(c.Request.Context(), id, service.ProcessOptions{
		PayerPIN: req.PayerPIN,
		Actor:    actorOrDefault(req.Actor),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, txn)
}

// GetTransaction returns one transaction by ID.
func (h *Handler) GetTransaction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	txn, err := h.orchestrator.GetTransaction(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, txn)
}

// GetTransactionByReference returns one transaction by engine reference.
func (h *Handler) GetTransactionByReference(c *gin.Context) {
	txn, err := h.orchestrator.GetTransactionByReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, txn)
}

// ListTransactions returns a filtered transaction page.
func (h *Handler) ListTransactions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	filter := repository.TransactionListFilter{
		Status:      c.Query("status"),
		GatewayType: c.Query("gateway_type"),
		PayerPhone:  c.Query("payer_phone"),
		ClientID:    c.Query("client_id"),
		Page:        page,
		PageSize:    pageSize,
	}
	if v := c.Query("requires_review"); v != "" {
		b := v == "true" || v == "1"
		filter.RequiresReview = &b
	}
	if v := c.Query("reconciled"); v != "" {
		b := v == "true" || v == "1"
		filter.IsReconciled = &b
	}
	if v := c.Query("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.CreatedFrom = &t
		}
	}
	if v := c.Query("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.CreatedTo = &t
		}
	}

	txs, total, err := h.txRepo.List(filter)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	page, pageSize = repository.NormalizePagination(page, pageSize)
	totalPage := (total + int64(pageSize) - 1) / int64(pageSize)
	response.SuccessWithPage(c, txs, response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: totalPage,
	})
}

type actorRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

// RetryPayment re-arms a failed payment.
func (h *Handler) RetryPayment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req actorRequest
	_ = c.ShouldBindJSON(&req)
	txn, err := h.orchestrator.RetryPayment(c.Request.Context(), id, actorOrDefault(req.Actor))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, txn)
}

// CancelTransaction cancels a live payment.
func (h *Handler) CancelTransaction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req actorRequest
	_ = c.ShouldBindJSON(&req)
	txn, err := h.orchestrator.CancelTransaction(c.Request.Context(), id, actorOrDefault(req.Actor), req.Reason)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, txn)
}

type refundRequest struct {
	Amount      string `json:"amount" binding:"required"`
	Reason      string `json:"reason"`
	RequestedBy string `json:"requested_by"`
}

// RefundPayment refunds part or all of a completed payment.
func (h *Handler) RefundPayment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.BadRequest(c, "invalid amount")
		return
	}
	refund, err := h.orchestrator.RefundPayment(c.Request.Context(), id, service.RefundInput{
		Amount:      models.NewMoneyFromDecimal(amount),
		Reason:      req.Reason,
		RequestedBy: actorOrDefault(req.RequestedBy),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, refund)
}

// ListRefunds returns the refunds of a transaction.
func (h *Handler) ListRefunds(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	refunds, err := h.orchestrator.ListRefunds(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, refunds)
}

// GetAuditTrail returns the ordered action log of a transaction.
func (h *Handler) GetAuditTrail(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	logs, err := h.orchestrator.GetAuditTrail(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, logs)
}

type reviewRequest struct {
	Reviewer string `json:"reviewer" binding:"required"`
	Approve  bool   `json:"approve"`
}

// ReviewTransaction records a manual review verdict.
func (h *Handler) ReviewTransaction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	txn, err := h.orchestrator.ReviewTransaction(c.Request.Context(), id, req.Reviewer, req.Approve)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, txn)
}

// ListGateways returns the registered gateway types.
func (h *Handler) ListGateways(c *gin.Context) {
	response.Success(c, gin.H{"gateway_types": h.registry.Types()})
}

// ReloadGateways drops cached gateway configurations and rebuilds the
// adapter registry after an operator configuration change.
func (h *Handler) ReloadGateways(c *gin.Context) {
	if err := h.gateways.ReloadGateways(c.Request.Context()); err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"gateway_types": h.registry.Types()})
}

func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid transaction id")
		return 0, false
	}
	return uint(id), true
}

func actorOrDefault(actor string) string {
	if actor == "" {
		return "api"
	}
	return actor
}
