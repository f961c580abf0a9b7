package queue

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/leonepay/internal/constants"
	"github.com/leonepay/internal/logger"
)

// Client wraps the asynq client and implements the orchestrator's
// TaskScheduler. Every schedule call is a delayed task; there is no
// periodic sweep on the hot path.
type Client struct {
	client *asynq.Client
}

// NewClient creates the queue client.
func NewClient(redisAddr, password string, db int) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     redisAddr,
			Password: password,
			DB:       db,
		}),
	}
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// ScheduleExpire plants the expiry task at the transaction deadline.
func (c *Client) ScheduleExpire(transactionID uint, at time.Time) error {
	task, err := NewExpireTask(transactionID)
	if err != nil {
		return err
	}
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	info, err := c.client.Enqueue(task,
		asynq.ProcessIn(delay),
		asynq.Queue(constants.QueueDefault),
		asynq.MaxRetry(3),
	)
	if err != nil {
		return fmt.Errorf("enqueue expire task: %w", err)
	}
	logger.Debugw("expire_task_enqueued", "transaction_id", transactionID, "task_id", info.ID, "at", at)
	return nil
}

// ScheduleRetryDispatch plants a delayed redispatch.
func (c *Client) ScheduleRetryDispatch(transactionID uint, delay time.Duration) error {
	task, err := NewRetryDispatchTask(transactionID)
	if err != nil {
		return err
	}
	info, err := c.client.Enqueue(task,
		asynq.ProcessIn(delay),
		asynq.Queue(constants.QueueCritical),
		asynq.MaxRetry(3),
	)
	if err != nil {
		return fmt.Errorf("enqueue retry dispatch task: %w", err)
	}
	logger.Debugw("retry_task_enqueued", "transaction_id", transactionID, "task_id", info.ID, "delay", delay)
	return nil
}

// ScheduleStatusPoll plants a delayed provider status poll.
func (c *Client) ScheduleStatusPoll(transactionID uint, delay time.Duration, attempt int) error {
	task, err := NewStatusPollTask(transactionID, attempt)
	if err != nil {
		return err
	}
	info, err := c.client.Enqueue(task,
		asynq.ProcessIn(delay),
		asynq.Queue(constants.QueueDefault),
		asynq.MaxRetry(3),
	)
	if err != nil {
		return fmt.Errorf("enqueue status poll task: %w", err)
	}
	logger.Debugw("status_poll_enqueued", "transaction_id", transactionID, "task_id", info.ID, "attempt", attempt)
	return nil
}
