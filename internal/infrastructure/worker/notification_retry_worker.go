package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// NotificationRetrier re-sends notifications whose delivery failed or stalled
type NotificationRetrier interface {
	RetryPending(ctx context.Context) (int, error)
}

// RetryWorkerConfig holds configuration for the notification retry worker
type RetryWorkerConfig struct {
	PollInterval time.Duration
	RunTimeout   time.Duration
}

// DefaultRetryWorkerConfig returns default configuration
func DefaultRetryWorkerConfig() RetryWorkerConfig {
	return RetryWorkerConfig{
		PollInterval: time.Minute,
		RunTimeout:   30 * time.Second,
	}
}

// NotificationRetryWorker periodically re-delivers failed notifications.
// Transitions never wait on it; it only repairs delivery after the fact.
type NotificationRetryWorker struct {
	config  RetryWorkerConfig
	retrier NotificationRetrier
	logger  *zap.Logger

	mu             sync.RWMutex
	cancel         context.CancelFunc
	done           chan struct{}
	isRunning      bool
	deliveredCount int
	failedRuns     int
	lastError      error
}

// NewNotificationRetryWorker creates a new retry worker
func NewNotificationRetryWorker(config RetryWorkerConfig, retrier NotificationRetrier, logger *zap.Logger) *NotificationRetryWorker {
	defaults := DefaultRetryWorkerConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = defaults.RunTimeout
	}
	return &NotificationRetryWorker{
		config:  config,
		retrier: retrier,
		logger:  logger,
	}
}

// Start begins the polling loop
func (w *NotificationRetryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning {
		return fmt.Errorf("notification retry worker already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true

	w.logger.Info("NotificationRetryWorker started",
		zap.Duration("poll_interval", w.config.PollInterval))

	go w.pollLoop(loopCtx, w.done)
	return nil
}

// Stop terminates the loop and waits for an in-flight run to finish
func (w *NotificationRetryWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	w.logger.Info("NotificationRetryWorker stopped",
		zap.Int("delivered_count", w.DeliveredCount()))
	return nil
}

// Name returns the worker name for identification
func (w *NotificationRetryWorker) Name() string {
	return "NotificationRetryWorker"
}

// DeliveredCount returns how many notifications the worker has delivered
func (w *NotificationRetryWorker) DeliveredCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.deliveredCount
}

// LastError returns the error of the most recent failed run
func (w *NotificationRetryWorker) LastError() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastError
}

func (w *NotificationRetryWorker) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// runOnce performs a single retry pass
func (w *NotificationRetryWorker) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, w.config.RunTimeout)
	defer cancel()

	delivered, err := w.retrier.RetryPending(runCtx)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.failedRuns++
		w.lastError = err
		w.logger.Error("Notification retry run failed",
			zap.Int("failed_runs", w.failedRuns),
			zap.Error(err))
		return
	}
	w.deliveredCount += delivered
	if delivered > 0 {
		w.logger.Info("Notifications re-delivered", zap.Int("delivered", delivered))
	}
}
