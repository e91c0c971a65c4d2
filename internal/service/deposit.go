package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"airpay/internal/blockchain/evm"
	"airpay/internal/models"
	"airpay/internal/notify"
	"airpay/internal/session"
	"airpay/internal/store"
	"airpay/internal/worker"
)

// ErrInvalidAmount rejects amount input that is not a positive number of AMB
var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount parses user input as a positive AMB amount with at most 18
// decimal places.
func ParseAmount(text string) (decimal.Decimal, error) {
	text = strings.TrimSpace(text)

	amount, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, text)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s is not positive", ErrInvalidAmount, amount)
	}
	if !amount.Equal(amount.Truncate(evm.Decimals)) {
		return decimal.Zero, fmt.Errorf("%w: %s has more than %d decimals", ErrInvalidAmount, amount, evm.Decimals)
	}

	return amount, nil
}

// DepositService drives the single-deposit flow up to the point where the
// monitor takes over.
type DepositService struct {
	registry     *session.Registry
	monitor      *worker.Monitor
	transactions store.TransactionStore
	notifier     notify.Notifier
	logger       *zap.Logger
}

// NewDepositService creates a new deposit service
func NewDepositService(
	workers *worker.WorkerManager,
	transactions store.TransactionStore,
	notifier notify.Notifier,
	logger *zap.Logger,
) *DepositService {
	return &DepositService{
		registry:     workers.Registry(),
		monitor:      workers.Monitor(),
		transactions: transactions,
		notifier:     notifier,
		logger:       logger.Named("deposit"),
	}
}

// BeginDeposit asks the user for an amount. A deposit that is already being
// monitored is not replaced.
func (s *DepositService) BeginDeposit(ctx context.Context, userID string) error {
	sess, err := s.registry.StartAwaiting(userID, time.Now().UTC())
	if errors.Is(err, session.ErrSessionActive) {
		return s.notifier.Notify(ctx, userID, notify.DepositInProgress(sess.Wallet.Address.Hex()))
	}

	return s.notifier.Notify(ctx, userID, notify.AskDepositAmount())
}

// AwaitingAmount reports whether the next text from userID is a deposit amount
func (s *DepositService) AwaitingAmount(userID string) bool {
	sess, ok := s.registry.Get(userID)
	return ok && sess.Status() == models.DepositStatusAwaitingAmount
}

// SubmitAmount moves the session to pending: a custodial wallet is minted,
// the pending record is written and monitoring starts. Invalid input leaves
// the session waiting for an amount.
func (s *DepositService) SubmitAmount(ctx context.Context, userID, text string) error {
	sess, ok := s.registry.Get(userID)
	if !ok || sess.Status() != models.DepositStatusAwaitingAmount {
		return session.ErrNotAwaiting
	}

	amount, err := ParseAmount(text)
	if err != nil {
		s.logger.Debug("Rejected deposit amount",
			zap.String("user_id", userID),
			zap.Error(err))
		return s.notifier.Notify(ctx, userID, notify.InvalidDepositAmount())
	}

	wallet, err := evm.NewWallet()
	if err != nil {
		return fmt.Errorf("failed to create deposit wallet: %w", err)
	}

	now := time.Now().UTC()
	recordID := uuid.NewString()
	if err := sess.Begin(amount, wallet, recordID, now); err != nil {
		return err
	}

	rec := models.Transaction{
		ID:            recordID,
		UserID:        userID,
		WalletAddress: wallet.Address.Hex(),
		PrivateKey:    wallet.PrivateKeyHex(),
		Amount:        amount,
		Status:        models.DepositStatusPending,
		CreatedAt:     now,
	}
	if err := s.transactions.Append(ctx, rec); err != nil {
		// without a durable record the key would be lost; do not ask for funds
		sess.Finish(models.DepositStatusError, now)
		s.registry.Remove(sess)
		s.logger.Error("Failed to persist pending deposit",
			zap.String("user_id", userID),
			zap.String("record_id", recordID),
			zap.Error(err))
		if nerr := s.notifier.Notify(ctx, userID, notify.StorageFailed()); nerr != nil {
			s.logger.Error("Failed to notify user", zap.String("user_id", userID), zap.Error(nerr))
		}
		return err
	}

	s.logger.Info("Deposit pending",
		zap.String("user_id", userID),
		zap.String("record_id", recordID),
		zap.String("wallet", wallet.Address.Hex()),
		zap.String("amount", amount.String()))

	s.monitor.Watch(sess)

	return s.notifier.Notify(ctx, userID, notify.PaymentAddress(wallet.Address.Hex(), amount.String()))
}

// Cancel stops the user's deposit, if any, and confirms the cancellation
func (s *DepositService) Cancel(ctx context.Context, userID string) error {
	cancelled, err := s.monitor.Cancel(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to record cancellation",
			zap.String("user_id", userID),
			zap.Error(err))
	} else if cancelled {
		s.logger.Info("Deposit session cancelled", zap.String("user_id", userID))
	}

	if nerr := s.notifier.Notify(ctx, userID, notify.DepositCancelled()); nerr != nil {
		return errors.Join(err, nerr)
	}
	return err
}
