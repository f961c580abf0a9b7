package service

import (
	"errors"
	"fmt"
)

// Base error classes. Handlers map any service failure to an HTTP status
// with errors.Is against these.
var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
	ErrStateConflict  = errors.New("state conflict")
	ErrLimitExceeded  = errors.New("limit exceeded")
	ErrProvider       = errors.New("provider error")
	ErrRetryExhausted = errors.New("retry attempts exhausted")
	ErrAuthentication = errors.New("authentication failed")
	ErrReconciliation = errors.New("reconciliation failed")
)

// Specific errors, each wrapping its base class so both errors.Is checks
// hold.
var (
	ErrTransactionNotFound  = fmt.Errorf("%w: transaction", ErrNotFound)
	ErrRefundNotFound       = fmt.Errorf("%w: refund", ErrNotFound)
	ErrGatewayUnavailable   = fmt.Errorf("%w: gateway unavailable", ErrValidation)
	ErrAmountInvalid        = fmt.Errorf("%w: amount invalid", ErrValidation)
	ErrAmountOutOfRange     = fmt.Errorf("%w: amount out of gateway range", ErrValidation)
	ErrFeeExceedsAmount     = fmt.Errorf("%w: fee exceeds amount", ErrValidation)
	ErrAccountInvalid       = fmt.Errorf("%w: payer account invalid", ErrValidation)
	ErrDailyLimitExceeded   = fmt.Errorf("%w: daily limit", ErrLimitExceeded)
	ErrMonthlyLimitExceeded = fmt.Errorf("%w: monthly limit", ErrLimitExceeded)
	ErrTransitionInvalid    = fmt.Errorf("%w: status transition not allowed", ErrStateConflict)
	ErrTransactionExpired   = fmt.Errorf("%w: transaction expired", ErrStateConflict)
	ErrManualReviewRequired = fmt.Errorf("%w: manual review required", ErrStateConflict)
	ErrRefundUnsupported    = fmt.Errorf("%w: gateway does not support refunds", ErrValidation)
	ErrRefundExceedsAmount  = fmt.Errorf("%w: refund exceeds refundable amount", ErrValidation)
	ErrSignatureInvalid     = fmt.Errorf("%w: signature invalid", ErrAuthentication)
)
