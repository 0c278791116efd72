package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	syncpkg "github.com/alis-tech/crm-invoice-sync/internal/sync"
)

// State names for the sync loop.
const (
	StateRunning = "RUNNING"
	StateBackoff = "BACKOFF"
)

// CycleRunner runs one migration cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*syncpkg.Report, error)
}

// SyncWorker drives the pipeline forever: run a cycle, sleep the cycle
// interval, repeat. A failed cycle flips the worker into BACKOFF, where it
// sleeps the policy's delay for the current attempt count before returning
// to RUNNING; a clean cycle resets the attempt count.
type SyncWorker struct {
	pipeline CycleRunner
	backoff  *syncpkg.Backoff
	interval time.Duration
	logger   *zap.Logger

	mu             sync.RWMutex
	ctx            context.Context
	cancel         context.CancelFunc
	isRunning      bool
	state          string
	attempt        int
	cyclesComplete int
	cyclesFailed   int
	lastCycleAt    time.Time
	lastError      error
	startTime      time.Time
}

// NewSyncWorker creates the sync worker.
func NewSyncWorker(pipeline CycleRunner, backoff *syncpkg.Backoff, interval time.Duration, logger *zap.Logger) *SyncWorker {
	return &SyncWorker{
		pipeline: pipeline,
		backoff:  backoff,
		interval: interval,
		state:    StateRunning,
		logger:   logger,
	}
}

// Name returns the worker name for identification
func (w *SyncWorker) Name() string {
	return "SyncWorker"
}

// Start begins the sync loop in the background.
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("sync worker already running")
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.isRunning = true
	w.startTime = time.Now()
	w.mu.Unlock()

	w.logger.Info("SyncWorker started",
		zap.Duration("cycle_interval", w.interval),
		zap.Duration("backoff_base", w.backoff.Base),
		zap.Duration("backoff_cap", w.backoff.Cap))

	go w.loop()
	return nil
}

// Stop terminates the loop. In-flight HTTP calls are cancelled through the
// worker context.
func (w *SyncWorker) Stop() {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return
	}
	w.isRunning = false
	w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	w.logger.Info("SyncWorker stopped",
		zap.Int("cycles_complete", w.cyclesComplete),
		zap.Int("cycles_failed", w.cyclesFailed))
}

// Status is a point-in-time snapshot of the worker.
type Status struct {
	IsRunning      bool      `json:"is_running"`
	State          string    `json:"state"`
	Attempt        int       `json:"attempt"`
	CyclesComplete int       `json:"cycles_complete"`
	CyclesFailed   int       `json:"cycles_failed"`
	LastCycleAt    time.Time `json:"last_cycle_at"`
	LastError      string    `json:"last_error,omitempty"`
	Uptime         string    `json:"uptime"`
}

// GetStatus returns the current worker snapshot.
func (w *SyncWorker) GetStatus() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()

	s := Status{
		IsRunning:      w.isRunning,
		State:          w.state,
		Attempt:        w.attempt,
		CyclesComplete: w.cyclesComplete,
		CyclesFailed:   w.cyclesFailed,
		LastCycleAt:    w.lastCycleAt,
		Uptime:         time.Since(w.startTime).Round(time.Second).String(),
	}
	if w.lastError != nil {
		s.LastError = w.lastError.Error()
	}
	return s
}

// loop is the two-state cycle driver.
func (w *SyncWorker) loop() {
	for {
		if w.ctx.Err() != nil {
			return
		}

		report, err := w.pipeline.RunCycle(w.ctx)

		var pause time.Duration
		if err != nil {
			w.mu.Lock()
			w.state = StateBackoff
			w.cyclesFailed++
			w.lastError = err
			w.lastCycleAt = time.Now()
			attempt := w.attempt
			w.attempt++
			w.mu.Unlock()

			pause = w.backoff.Delay(attempt)
			w.logger.Error("Sync cycle failed",
				zap.String("stage", string(syncpkg.ErrorStage(err))),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", pause),
				zap.Error(err))
		} else {
			w.mu.Lock()
			w.state = StateRunning
			w.attempt = 0
			w.cyclesComplete++
			w.lastError = nil
			w.lastCycleAt = time.Now()
			w.mu.Unlock()

			pause = w.interval
			w.logger.Debug("Sync cycle complete",
				zap.String("cycle_id", report.CycleID),
				zap.Duration("next_in", pause))
		}

		select {
		case <-w.ctx.Done():
			return
		case <-time.After(pause):
		}
	}
}

// RunOnce executes a single cycle synchronously, for the `once` command
// and for tests.
func (w *SyncWorker) RunOnce(ctx context.Context) (*syncpkg.Report, error) {
	return w.pipeline.RunCycle(ctx)
}
