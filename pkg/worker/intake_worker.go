package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/cieplik206/dokumenty/pkg/logger"
	"github.com/cieplik206/dokumenty/pkg/queue"
)

// IntakeHandler executes intake runs. FailJob records a failure the run
// itself could not record, such as a timeout or a panic. FailBusy fails an
// intake still waiting in the queue when another run holds its lease and
// reports whether it did.
type IntakeHandler interface {
	HandleIntake(ctx context.Context, intakeID int64) error
	FailJob(ctx context.Context, intakeID int64, cause error)
	FailBusy(ctx context.Context, intakeID int64) bool
}

type IntakeWorker struct {
	BaseWorker
	handler IntakeHandler
	locker  queue.Locker
	ttl     time.Duration
}

func NewIntakeWorker(cfg *Config, handler IntakeHandler, locker queue.Locker, log logger.Logger) *IntakeWorker {
	w := &IntakeWorker{
		BaseWorker: BaseWorker{
			mux:      asynq.NewServeMux(),
			logger:   log.Named("worker"),
			stopChan: make(chan struct{}),
		},
		handler: handler,
		locker:  locker,
		ttl:     cfg.JobTimeout,
	}
	if w.ttl <= 0 {
		w.ttl = 10 * time.Minute
	}

	w.server = asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		asynq.Config{
			Concurrency:  cfg.Concurrency,
			Queues:       cfg.Queues,
			ErrorHandler: asynq.ErrorHandlerFunc(w.handleError),
			Logger:       newAsynqLogger(w.logger),
		},
	)
	w.registerHandlers()
	return w
}

func (w *IntakeWorker) registerHandlers() {
	w.mux.HandleFunc(queue.TaskTypeIntakeAnalyze, w.handleIntakeAnalyze)
}

func (w *IntakeWorker) handleIntakeAnalyze(ctx context.Context, t *asynq.Task) error {
	payload, err := queue.ParseIntakePayload(t.Payload())
	if err != nil {
		w.logger.Error("Dropping malformed task",
			logger.String("payload", string(t.Payload())),
			logger.Error(err),
		)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	release, ok, err := w.locker.Acquire(ctx, queue.IntakeLeaseKey(payload.IntakeID), w.ttl)
	if err != nil {
		return err
	}
	if !ok {
		// A duplicate delivery finds the intake processing and leaves it be.
		// A retry queued behind a stale run is failed so it does not stall.
		failed := w.handler.FailBusy(context.WithoutCancel(ctx), payload.IntakeID)
		w.logger.Warn("Intake run already in progress, skipping",
			logger.Int64("intakeId", payload.IntakeID),
			logger.Bool("failedQueued", failed),
		)
		return nil
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			w.logger.Warn("Failed to release lease",
				logger.Int64("intakeId", payload.IntakeID),
				logger.Error(err),
			)
		}
	}()

	w.logger.Info("Processing intake", logger.Int64("intakeId", payload.IntakeID))
	start := time.Now()
	if err := w.handler.HandleIntake(ctx, payload.IntakeID); err != nil {
		return err
	}
	w.logger.Info("Intake processed",
		logger.Int64("intakeId", payload.IntakeID),
		logger.Duration("took", time.Since(start)),
	)
	return nil
}

// handleError runs once per failed task. The context may already be past
// its deadline, so bookkeeping detaches from it.
func (w *IntakeWorker) handleError(ctx context.Context, t *asynq.Task, err error) {
	payload, perr := queue.ParseIntakePayload(t.Payload())
	if perr != nil {
		return
	}
	w.logger.Error("Intake job failed",
		logger.Int64("intakeId", payload.IntakeID),
		logger.Error(err),
	)
	w.handler.FailJob(context.WithoutCancel(ctx), payload.IntakeID, err)
}

func (w *IntakeWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}

	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-w.stopChan:
		}
	}()
	return nil
}

// asynqLogger routes asynq's internal logging through ours.
type asynqLogger struct {
	log logger.Logger
}

func newAsynqLogger(log logger.Logger) *asynqLogger {
	return &asynqLogger{log: log.Named("asynq")}
}

func (l *asynqLogger) Debug(args ...interface{}) { l.log.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...interface{})  { l.log.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...interface{})  { l.log.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...interface{}) { l.log.Error(fmt.Sprint(args...)) }
func (l *asynqLogger) Fatal(args ...interface{}) { l.log.Fatal(fmt.Sprint(args...)) }
