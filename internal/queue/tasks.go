package queue

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/leonepay/internal/constants"
)

// ExpirePayload is the payload of a payment:expire task.
type ExpirePayload struct {
	TransactionID uint `json:"transaction_id"`
}

// RetryDispatchPayload is the payload of a payment:retry_dispatch task.
type RetryDispatchPayload struct {
	TransactionID uint `json:"transaction_id"`
}

// StatusPollPayload is the payload of a payment:status_poll task.
// Attempt counts polls so the chain terminates.
type StatusPollPayload struct {
	TransactionID uint `json:"transaction_id"`
	Attempt       int  `json:"attempt"`
}

// NewExpireTask builds an expiry task.
func NewExpireTask(transactionID uint) (*asynq.Task, error) {
	payload, err := json.Marshal(ExpirePayload{TransactionID: transactionID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(constants.TaskPaymentExpire, payload), nil
}

// NewRetryDispatchTask builds a delayed redispatch task.
func NewRetryDispatchTask(transactionID uint) (*asynq.Task, error) {
	payload, err := json.Marshal(RetryDispatchPayload{TransactionID: transactionID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(constants.TaskPaymentRetry, payload), nil
}

// NewStatusPollTask builds a status poll task.
func NewStatusPollTask(transactionID uint, attempt int) (*asynq.Task, error) {
	payload, err := json.Marshal(StatusPollPayload{TransactionID: transactionID, Attempt: attempt})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(constants.TaskPaymentStatusPoll, payload), nil
}
