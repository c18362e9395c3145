// Package queue dispatches intake analysis jobs and guards them with a
// per-intake lease.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/cieplik206/dokumenty/pkg/logger"
)

const (
	TaskTypeIntakeAnalyze = "intake:analyze"
)

// IntakePayload is the body of an intake analysis task.
type IntakePayload struct {
	IntakeID int64 `json:"intake_id"`
}

// Dispatcher hands intake runs to the worker pool.
type Dispatcher interface {
	DispatchIntake(ctx context.Context, intakeID int64) error
}

type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Queue         string
	JobTimeout    time.Duration
}

// RedisOpt returns the asynq connection options for cfg.
func (c *Config) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// AsynqQueue enqueues tasks through an asynq client.
type AsynqQueue struct {
	client *asynq.Client
	cfg    Config
	logger logger.Logger
}

var _ Dispatcher = (*AsynqQueue)(nil)

func NewAsynqQueue(cfg Config, log logger.Logger) *AsynqQueue {
	return &AsynqQueue{
		client: asynq.NewClient(cfg.RedisOpt()),
		cfg:    cfg,
		logger: log.Named("queue"),
	}
}

// NewIntakeTask builds a single attempt analysis task. A failed run is
// retried by the user, never by the queue.
func NewIntakeTask(intakeID int64, queueName string, timeout time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(IntakePayload{IntakeID: intakeID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	opts := []asynq.Option{asynq.MaxRetry(0)}
	if queueName != "" {
		opts = append(opts, asynq.Queue(queueName))
	}
	if timeout > 0 {
		opts = append(opts, asynq.Timeout(timeout))
	}
	return asynq.NewTask(TaskTypeIntakeAnalyze, payload, opts...), nil
}

// ParseIntakePayload decodes a task body.
func ParseIntakePayload(data []byte) (IntakePayload, error) {
	var p IntakePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if p.IntakeID <= 0 {
		return p, fmt.Errorf("invalid payload: missing intake_id")
	}
	return p, nil
}

// DispatchIntake enqueues one analysis run for the intake.
func (q *AsynqQueue) DispatchIntake(ctx context.Context, intakeID int64) error {
	task, err := NewIntakeTask(intakeID, q.cfg.Queue, q.cfg.JobTimeout)
	if err != nil {
		return err
	}

	info, err := q.client.EnqueueContext(ctx, task)
	if err != nil {
		q.logger.Error("Failed to enqueue intake",
			logger.Int64("intakeId", intakeID),
			logger.Error(err),
		)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	q.logger.Info("Intake queued",
		logger.Int64("intakeId", intakeID),
		logger.String("taskId", info.ID),
		logger.String("queue", info.Queue),
	)
	return nil
}

func (q *AsynqQueue) Close() error {
	return q.client.Close()
}
