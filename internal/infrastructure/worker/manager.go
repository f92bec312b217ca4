package worker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Worker defines the interface for background workers
type Worker interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}

// WorkerManager manages lifecycle of the background workers. Workers are
// stopped in reverse start order.
type WorkerManager struct {
	logger *zap.Logger

	mu        sync.RWMutex
	workers   []Worker
	started   []Worker
	isRunning bool
	cancel    context.CancelFunc
}

// NewWorkerManager creates a new worker manager
func NewWorkerManager(logger *zap.Logger) *WorkerManager {
	return &WorkerManager{
		logger: logger,
	}
}

// Register adds a worker to be managed
func (m *WorkerManager) Register(worker Worker) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.workers = append(m.workers, worker)
	m.logger.Info("Worker registered",
		zap.String("worker_name", worker.Name()),
		zap.Int("total_workers", len(m.workers)))
}

// StartAll starts all registered workers. A worker that fails to start is
// logged and skipped.
func (m *WorkerManager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isRunning {
		return fmt.Errorf("workers already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.isRunning = true
	m.started = m.started[:0]

	m.logger.Info("Starting all workers", zap.Int("count", len(m.workers)))
	for _, worker := range m.workers {
		if err := worker.Start(runCtx); err != nil {
			m.logger.Error("Failed to start worker",
				zap.String("worker_name", worker.Name()),
				zap.Error(err))
			continue
		}
		m.started = append(m.started, worker)
		m.logger.Info("Worker started", zap.String("worker_name", worker.Name()))
	}
	return nil
}

// StopAll gracefully stops the started workers
func (m *WorkerManager) StopAll() error {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return nil
	}
	m.isRunning = false
	started := m.started
	m.started = nil
	cancel := m.cancel
	m.mu.Unlock()

	m.logger.Info("Stopping all workers", zap.Int("count", len(started)))

	var failed int
	for i := len(started) - 1; i >= 0; i-- {
		worker := started[i]
		if err := worker.Stop(); err != nil {
			failed++
			m.logger.Error("Failed to stop worker",
				zap.String("worker_name", worker.Name()),
				zap.Error(err))
			continue
		}
		m.logger.Info("Worker stopped", zap.String("worker_name", worker.Name()))
	}
	cancel()

	if failed > 0 {
		return fmt.Errorf("failed to stop %d workers", failed)
	}
	return nil
}

// GetWorkerCount returns the number of registered workers
func (m *WorkerManager) GetWorkerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workers)
}

// IsRunning returns whether workers are running
func (m *WorkerManager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isRunning
}
