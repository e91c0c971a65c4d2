package worker

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"airpay/internal/blockchain/evm"
	"airpay/internal/metrics"
	"airpay/internal/models"
	"airpay/internal/notify"
	"airpay/internal/session"
)

// Monitor polls custodial wallets of pending sessions until the deposit
// arrives, the attempts run out or the provider fails.
type Monitor struct {
	manager *WorkerManager
	logger  *zap.Logger

	mu     sync.Mutex
	sweeps map[string]SweepInfo // keyed by record ID
}

// SweepInfo identifies a sweep that has been confirmed but not yet settled
type SweepInfo struct {
	UserID   string
	RecordID string
	Wallet   common.Address
	Started  time.Time
}

// NewMonitor creates a new balance monitor
func NewMonitor(manager *WorkerManager) *Monitor {
	return &Monitor{
		manager: manager,
		logger:  manager.logger.Named("monitor"),
		sweeps:  make(map[string]SweepInfo),
	}
}

// Sweeping lists sweeps still in flight, oldest first
func (m *Monitor) Sweeping() []SweepInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SweepInfo, 0, len(m.sweeps))
	for _, sw := range m.sweeps {
		out = append(out, sw)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out
}

func (m *Monitor) trackSweep(s *session.Session) func() {
	m.mu.Lock()
	m.sweeps[s.RecordID] = SweepInfo{
		UserID:   s.UserID,
		RecordID: s.RecordID,
		Wallet:   s.Wallet.Address,
		Started:  time.Now(),
	}
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.sweeps, s.RecordID)
		m.mu.Unlock()
	}
}

// Watch starts the polling task of a pending session
func (m *Monitor) Watch(s *session.Session) {
	ctx, cancel := context.WithCancel(m.manager.ctx)
	s.SetCancel(cancel)

	metrics.DepositsStarted.Inc()
	metrics.ActiveSessions.Inc()

	m.manager.wg.Add(1)
	go func() {
		defer m.manager.wg.Done()
		defer metrics.ActiveSessions.Dec()
		defer cancel()
		m.run(ctx, s)
	}()
}

// run executes the checks of one session. Checks are sequential, so ticks
// of the same session never overlap.
func (m *Monitor) run(ctx context.Context, s *session.Session) {
	interval := m.manager.cfg.Deposit.PollInterval
	maxAttempts := m.manager.cfg.Deposit.MaxPollAttempts
	threshold := s.TargetAmount.Mul(m.manager.cfg.Deposit.ConfirmTolerance)

	logger := m.logger.With(
		zap.String("user_id", s.UserID),
		zap.String("record_id", s.RecordID),
		zap.String("wallet", s.Wallet.Address.Hex()))

	logger.Info("Monitoring deposit",
		zap.String("target", s.TargetAmount.String()),
		zap.String("threshold", threshold.String()),
		zap.Duration("poll_interval", interval),
		zap.Int("max_attempts", maxAttempts))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			logger.Info("Monitoring stopped", zap.Int("attempt", attempt))
			return
		case <-ticker.C:
		}

		balance, err := m.manager.provider.GetBalance(ctx, s.Wallet.Address)
		if err != nil {
			if ctx.Err() != nil {
				// cancelled while the query was in flight
				return
			}
			metrics.PollErrors.Inc()
			logger.Error("Balance check failed",
				zap.Int("attempt", attempt),
				zap.Error(err))
			m.fail(s)
			return
		}

		amount := evm.FromWei(balance)
		logger.Debug("Balance checked",
			zap.Int("attempt", attempt),
			zap.String("balance", amount.String()))

		if amount.GreaterThanOrEqual(threshold) {
			m.confirm(s, balance)
			return
		}
	}

	m.expire(s)
}

// fail moves the session to error
func (m *Monitor) fail(s *session.Session) {
	now := time.Now().UTC()
	if !m.finish(s, models.DepositStatusError, now) {
		return
	}

	m.appendRecord(m.record(s, models.DepositStatusError, now))
	m.manager.notify(s.UserID, notify.MonitoringFailed())
}

// expire moves the session to expired once all attempts are used
func (m *Monitor) expire(s *session.Session) {
	now := time.Now().UTC()
	if !m.finish(s, models.DepositStatusExpired, now) {
		return
	}

	m.logger.Info("Deposit expired",
		zap.String("user_id", s.UserID),
		zap.String("record_id", s.RecordID))

	m.appendRecord(m.record(s, models.DepositStatusExpired, now))
	window := time.Duration(m.manager.cfg.Deposit.MaxPollAttempts) * m.manager.cfg.Deposit.PollInterval
	m.manager.notify(s.UserID, notify.DepositExpired(window.String()))
}

// confirm records the confirmation and sweeps the measured balance to the
// admin wallet. The confirmed record is written before anything is sent.
func (m *Monitor) confirm(s *session.Session, balance *big.Int) {
	now := time.Now().UTC()
	if !m.finish(s, models.DepositStatusConfirmed, now) {
		return
	}

	amount := evm.FromWei(balance).String()
	m.logger.Info("Deposit confirmed",
		zap.String("user_id", s.UserID),
		zap.String("record_id", s.RecordID),
		zap.String("balance", amount))

	rec := m.record(s, models.DepositStatusConfirmed, now)
	rec.Balance = models.StringPtr(amount)
	m.appendRecord(rec)
	m.manager.notify(s.UserID, notify.DepositConfirmed(amount))

	// the session context is already cancelled; the sweep must outlive it
	ctx, cancel := context.WithTimeout(context.Background(), SweepTimeout)
	defer cancel()

	untrack := m.trackSweep(s)
	defer untrack()

	admin := m.manager.cfg.Chain.AdminAddress()
	start := time.Now()
	txHash, err := m.manager.forwarder.Sweep(ctx, s.Wallet.PrivateKey, admin, balance)
	metrics.SweepDuration.Observe(time.Since(start).Seconds())

	done := time.Now().UTC()
	rec.UpdatedAt = &done
	if txHash != (common.Hash{}) {
		rec.SweepTxHash = models.StringPtr(txHash.Hex())
	}

	if err != nil {
		metrics.Transfers.WithLabelValues("sweep", metrics.ResultFailure).Inc()
		// funds stay in the custodial wallet; the key is in the record
		m.logger.Error("Sweep to admin wallet failed",
			zap.String("user_id", s.UserID),
			zap.String("record_id", s.RecordID),
			zap.String("wallet", s.Wallet.Address.Hex()),
			zap.String("tx_hash", txHash.Hex()),
			zap.Error(err))
		rec.Reason = models.StringPtr(models.ReasonSweepFailed)
		m.appendRecord(rec)
		m.manager.notify(s.UserID, notify.SweepFailed())
		return
	}

	metrics.Transfers.WithLabelValues("sweep", metrics.ResultSuccess).Inc()
	m.appendRecord(rec)
	m.manager.notify(s.UserID, notify.SweepSucceeded(admin.Hex(), txHash.Hex()))
}

// Cancel stops the session of userID. A pending session is recorded as
// expired with reason cancelled. It reports false if there was nothing to
// cancel or the monitor already finalised the session.
func (m *Monitor) Cancel(ctx context.Context, userID string) (bool, error) {
	s, ok := m.manager.registry.Get(userID)
	if !ok {
		return false, nil
	}

	wasPending := s.Status() == models.DepositStatusPending
	now := time.Now().UTC()
	if !m.finish(s, models.DepositStatusExpired, now) {
		return false, nil
	}
	if !wasPending {
		return true, nil
	}

	m.logger.Info("Deposit cancelled",
		zap.String("user_id", userID),
		zap.String("record_id", s.RecordID))

	rec := m.record(s, models.DepositStatusExpired, now)
	rec.Reason = models.StringPtr(models.ReasonCancelled)
	if err := m.manager.transactions.Append(ctx, rec); err != nil {
		return true, fmt.Errorf("failed to record cancellation: %w", err)
	}
	return true, nil
}

// finish claims the terminal transition and unregisters the session
func (m *Monitor) finish(s *session.Session, status models.DepositStatus, now time.Time) bool {
	if !s.Finish(status, now) {
		return false
	}
	m.manager.registry.Remove(s)
	if s.Wallet != nil {
		metrics.DepositOutcomes.WithLabelValues(string(status)).Inc()
	}
	return true
}

func (m *Monitor) record(s *session.Session, status models.DepositStatus, now time.Time) models.Transaction {
	return models.Transaction{
		ID:            s.RecordID,
		UserID:        s.UserID,
		WalletAddress: s.Wallet.Address.Hex(),
		PrivateKey:    s.Wallet.PrivateKeyHex(),
		Amount:        s.TargetAmount,
		Status:        status,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     &now,
	}
}

func (m *Monitor) appendRecord(rec models.Transaction) {
	ctx, cancel := context.WithTimeout(context.Background(), StoreTimeout)
	defer cancel()

	if err := m.manager.transactions.Append(ctx, rec); err != nil {
		m.logger.Error("Failed to append transaction record",
			zap.String("record_id", rec.ID),
			zap.String("status", string(rec.Status)),
			zap.Error(err))
	}
}
