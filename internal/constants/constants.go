package constants

// Transaction statuses. Status only moves forward along the state graph;
// the allowed edges live in service.allowedTransitions.
const (
	TxStatusInitiated  = "initiated"
	TxStatusProcessing = "processing"
	TxStatusPending    = "pending"
	TxStatusCompleted  = "completed"
	TxStatusFailed     = "failed"
	TxStatusCancelled  = "cancelled"
	TxStatusExpired    = "expired"
)

// Gateway types.
const (
	GatewayOrangeMoney  = "orange_money"
	GatewayAfrimoney    = "afrimoney"
	GatewayBankTransfer = "bank_transfer"
	GatewayCard         = "card"
	GatewayCash         = "cash"
)

// Risk levels, ordered. High and above gates manual review.
const (
	RiskLevelLow      = "low"
	RiskLevelMedium   = "medium"
	RiskLevelHigh     = "high"
	RiskLevelCritical = "critical"
)

// Transaction log actions.
const (
	TxActionInitiate     = "initiate"
	TxActionProcess      = "process"
	TxActionDispatch     = "dispatch"
	TxActionStatusUpdate = "status_update"
	TxActionRetry        = "retry"
	TxActionCancel       = "cancel"
	TxActionExpire       = "expire"
	TxActionReconcile    = "reconcile"
	TxActionRefund       = "refund"
)

// Refund statuses.
const (
	RefundStatusPending   = "pending"
	RefundStatusCompleted = "completed"
	RefundStatusFailed    = "failed"
)

// Webhook receipt results.
const (
	WebhookResultApplied      = "applied"
	WebhookResultDuplicate    = "duplicate"
	WebhookResultUnmatched    = "unmatched"
	WebhookResultBadSignature = "bad_signature"
	WebhookResultBadPayload   = "bad_payload"
	WebhookResultRejected     = "rejected"
)

// Asynq task type names.
const (
	TaskPaymentExpire     = "payment:expire"
	TaskPaymentRetry      = "payment:retry_dispatch"
	TaskPaymentStatusPoll = "payment:status_poll"
)

// Queue names.
const (
	QueueDefault  = "default"
	QueueCritical = "critical"
)

const (
	// CurrencyDefault is the single target currency of the engine.
	CurrencyDefault = "SLE"

	// MarketTimeZone is the calendar zone for daily/monthly limit windows.
	MarketTimeZone = "Africa/Freetown"

	// PhoneCountryCode is prefixed to normalized payer numbers.
	PhoneCountryCode = "232"
)

// RiskRank maps a risk level to its ordering; unknown levels rank lowest.
func RiskRank(level string) int {
	switch level {
	case RiskLevelLow:
		return 0
	case RiskLevelMedium:
		return 1
	case RiskLevelHigh:
		return 2
	case RiskLevelCritical:
		return 3
	default:
		return -1
	}
}

// IsTerminalTxStatus reports whether a status has no outgoing edges other
// than the bounded failed->initiated retry.
func IsTerminalTxStatus(status string) bool {
	switch status {
	case TxStatusCompleted, TxStatusFailed, TxStatusCancelled, TxStatusExpired:
		return true
	default:
		return false
	}
}

// KnownGatewayType reports whether the gateway type is part of the enum.
func KnownGatewayType(gatewayType string) bool {
	switch gatewayType {
	case GatewayOrangeMoney, GatewayAfrimoney, GatewayBankTransfer, GatewayCard, GatewayCash:
		return true
	default:
		return false
	}
}
