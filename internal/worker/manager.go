package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"airpay/internal/blockchain/evm"
	"airpay/internal/config"
	"airpay/internal/notify"
	"airpay/internal/session"
	"airpay/internal/store"
)

// Constants for worker configuration
const (
	HousekeepingInterval = time.Minute
	AwaitingAmountTTL    = 30 * time.Minute
	SweepTimeout         = 5 * time.Minute
	StoreTimeout         = 10 * time.Second
	NotifyTimeout        = 15 * time.Second
)

// WorkerManager owns the session registry and the per-session polling tasks
type WorkerManager struct {
	cfg    *config.Config
	logger *zap.Logger

	provider     evm.Provider
	forwarder    *evm.Forwarder
	transactions store.TransactionStore
	notifier     notify.Notifier

	registry *session.Registry
	monitor  *Monitor

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkerManager creates a new worker manager with all required dependencies
func NewWorkerManager(
	cfg *config.Config,
	provider evm.Provider,
	forwarder *evm.Forwarder,
	transactions store.TransactionStore,
	notifier notify.Notifier,
	logger *zap.Logger,
) *WorkerManager {
	logger = logger.Named("worker")

	ctx, cancel := context.WithCancel(context.Background())

	wm := &WorkerManager{
		cfg:          cfg,
		logger:       logger,
		provider:     provider,
		forwarder:    forwarder,
		transactions: transactions,
		notifier:     notifier,
		registry:     session.NewRegistry(),
		ctx:          ctx,
		cancel:       cancel,
	}
	wm.monitor = NewMonitor(wm)

	return wm
}

// Registry returns the session registry
func (wm *WorkerManager) Registry() *session.Registry {
	return wm.registry
}

// Monitor returns the deposit monitor
func (wm *WorkerManager) Monitor() *Monitor {
	return wm.monitor
}

// Start starts the housekeeping goroutine
func (wm *WorkerManager) Start() {
	wm.logger.Info("Starting worker manager",
		zap.Duration("poll_interval", wm.cfg.Deposit.PollInterval),
		zap.Int("max_poll_attempts", wm.cfg.Deposit.MaxPollAttempts),
		zap.String("confirm_tolerance", wm.cfg.Deposit.ConfirmTolerance.String()))

	wm.wg.Add(1)
	go func() {
		defer wm.wg.Done()
		wm.housekeeping(wm.ctx)
	}()

	wm.logger.Info("Worker manager started")
}

// housekeeping drops sessions that were asked for an amount but never got one
func (wm *WorkerManager) housekeeping(ctx context.Context) {
	ticker := time.NewTicker(HousekeepingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := wm.registry.EvictIdle(now.Add(-AwaitingAmountTTL)); n > 0 {
				wm.logger.Debug("Evicted idle sessions", zap.Int("count", n))
			}
		}
	}
}

// Shutdown gracefully stops all workers. Sessions still polling stay pending
// in the transaction log. Sweeps keep running until they settle or the
// timeout passes; those still running are logged with their wallet so the
// funds can be recovered by hand.
func (wm *WorkerManager) Shutdown(timeout time.Duration) error {
	wm.logger.Info("Shutting down worker manager",
		zap.Int("active_sessions", wm.registry.Len()),
		zap.Int("sweeps_in_flight", len(wm.monitor.Sweeping())))

	// Signal workers to stop
	wm.cancel()

	// Wait for workers to finish with timeout
	done := make(chan struct{})
	go func() {
		wm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wm.logger.Info("Worker manager shutdown complete")
		return nil
	case <-time.After(timeout):
	}

	abandoned := wm.monitor.Sweeping()
	for _, sw := range abandoned {
		wm.logger.Error("Sweep abandoned at shutdown",
			zap.String("user_id", sw.UserID),
			zap.String("record_id", sw.RecordID),
			zap.String("wallet", sw.Wallet.Hex()),
			zap.Duration("running", time.Since(sw.Started)))
	}
	return fmt.Errorf("worker shutdown timed out after %s with %d sweeps in flight", timeout, len(abandoned))
}

// notify delivers msg on a context detached from session cancellation
func (wm *WorkerManager) notify(userID string, msg notify.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), NotifyTimeout)
	defer cancel()

	if err := wm.notifier.Notify(ctx, userID, msg); err != nil {
		wm.logger.Error("Failed to notify user",
			zap.String("user_id", userID),
			zap.Error(err))
	}
}
