package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cedarshop/indexing-be/internal/catalog"
	"github.com/cedarshop/indexing-be/shared/rabbitmq"
)

// RunnerConfig holds the background runner configuration
type RunnerConfig struct {
	Logger       *slog.Logger
	Processor    *Processor
	Scheduler    *catalog.Scheduler
	RabbitClient *rabbitmq.Client
	Interval     time.Duration
	FreshLimit   int
}

// Runner drives periodic processing cycles. Each cycle first pulls fresh
// catalog candidates into the queue, then claims and dispatches a batch.
// Wake messages from the API service trigger an extra cycle between ticks;
// losing them is harmless because the ticker covers the same work.
type Runner struct {
	logger       *slog.Logger
	processor    *Processor
	scheduler    *catalog.Scheduler
	rabbitClient *rabbitmq.Client
	interval     time.Duration
	freshLimit   int

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
}

// NewRunner creates a background runner
func NewRunner(cfg *RunnerConfig) *Runner {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	freshLimit := cfg.FreshLimit
	if freshLimit <= 0 {
		freshLimit = 50
	}

	return &Runner{
		logger:       cfg.Logger,
		processor:    cfg.Processor,
		scheduler:    cfg.Scheduler,
		rabbitClient: cfg.RabbitClient,
		interval:     interval,
		freshLimit:   freshLimit,
		stopChan:     make(chan struct{}),
	}
}

// Start launches the ticker loop and the wake message consumer. It returns
// once both loops are running; they stop when ctx is cancelled or Stop is
// called.
func (r *Runner) Start(ctx context.Context) error {
	r.logger.Info("Starting runner",
		slog.Duration("interval", r.interval),
		slog.Int("fresh_limit", r.freshLimit),
	)

	r.wg.Add(1)
	go r.tickLoop(ctx)

	messages, err := r.rabbitClient.Consume("worker-service")
	if err != nil {
		// Keep running on the ticker alone; wake messages are an
		// optimization, not a correctness requirement
		r.logger.Warn("Failed to start wake consumer, running on ticker only",
			slog.Any("error", err),
		)
		return nil
	}

	r.wg.Add(1)
	go r.consumeLoop(ctx, messages)

	return nil
}

// Stop signals both loops to exit and waits for in-flight cycles to finish
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
	r.wg.Wait()
}

func (r *Runner) tickLoop(ctx context.Context) {
	defer r.wg.Done()

	// Run one cycle immediately so a restart does not wait a full interval
	r.runCycle(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

func (r *Runner) consumeLoop(ctx context.Context, messages <-chan amqp.Delivery) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		case msg, ok := <-messages:
			if !ok {
				r.logger.Warn("Wake message channel closed, running on ticker only")
				return
			}

			r.logger.Debug("Wake message received")
			r.runCycle(ctx)

			if err := msg.Ack(false); err != nil {
				r.logger.Warn("Failed to ack wake message",
					slog.Any("error", err),
				)
			}
		}
	}
}

// runCycle schedules fresh catalog candidates, then processes one batch.
// Failures are logged and the runner keeps going; the next tick retries.
func (r *Runner) runCycle(ctx context.Context) {
	scheduled, err := r.scheduler.ScheduleFresh(ctx, r.freshLimit)
	if err != nil {
		r.logger.Error("Freshness scheduling failed",
			slog.Any("error", err),
		)
	} else if scheduled > 0 {
		r.logger.Info("Fresh candidates scheduled",
			slog.Int("scheduled", scheduled),
		)
	}

	result, err := r.processor.ProcessBatch(ctx, 0)
	if err != nil {
		r.logger.Error("Processing cycle failed",
			slog.Any("error", err),
		)
		return
	}

	r.logger.Info("Processing cycle complete",
		slog.Int("processed", result.Processed),
		slog.Int("success", result.SuccessCount),
		slog.Int("failed", result.FailCount),
		slog.Int("retry", result.RetryCount),
		slog.Int("released", result.Released),
		slog.Bool("quota_stop", result.QuotaStop),
	)
}
