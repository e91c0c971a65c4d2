package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"airpay/internal/blockchain/evm"
	"airpay/internal/metrics"
	"airpay/internal/models"
	"airpay/internal/notify"
	"airpay/internal/store"
)

// BulkService manages the persistent per-user wallet used for bulk withdrawals
type BulkService struct {
	accounts  store.AccountStore
	provider  evm.Provider
	forwarder *evm.Forwarder
	notifier  notify.Notifier
	logger    *zap.Logger
}

// NewBulkService creates a new bulk withdrawal service
func NewBulkService(
	accounts store.AccountStore,
	provider evm.Provider,
	forwarder *evm.Forwarder,
	notifier notify.Notifier,
	logger *zap.Logger,
) *BulkService {
	return &BulkService{
		accounts:  accounts,
		provider:  provider,
		forwarder: forwarder,
		notifier:  notifier,
		logger:    logger.Named("bulk"),
	}
}

// Start greets the user and creates their account wallet on first contact
func (s *BulkService) Start(ctx context.Context, userID string) error {
	if err := s.notifier.Notify(ctx, userID, notify.Welcome()); err != nil {
		return err
	}

	account, err := s.accounts.Get(ctx, userID)
	switch {
	case err == nil:
		return s.notifier.Notify(ctx, userID, notify.WelcomeBack(account.WalletAddress))
	case !errors.Is(err, store.ErrAccountNotFound):
		return err
	}

	wallet, err := evm.NewWallet()
	if err != nil {
		return fmt.Errorf("failed to create account wallet: %w", err)
	}

	if err := s.accounts.Put(ctx, models.UserAccount{
		UserID:        userID,
		WalletAddress: wallet.Address.Hex(),
		PrivateKey:    wallet.PrivateKeyHex(),
	}); err != nil {
		s.notifyQuiet(ctx, userID, notify.StorageFailed())
		return err
	}

	s.logger.Info("Account created",
		zap.String("user_id", userID),
		zap.String("wallet", wallet.Address.Hex()))

	return s.notifier.Notify(ctx, userID, notify.BulkWalletCreated(wallet.Address.Hex()))
}

// CheckBalance reports the balance of the user's account wallet
func (s *BulkService) CheckBalance(ctx context.Context, userID string) error {
	account, ok, err := s.account(ctx, userID)
	if !ok {
		return err
	}

	balance, err := s.provider.GetBalance(ctx, common.HexToAddress(account.WalletAddress))
	if err != nil {
		s.logger.Error("Failed to check balance",
			zap.String("user_id", userID),
			zap.Error(err))
		s.notifyQuiet(ctx, userID, notify.BalanceFailed())
		return err
	}

	return s.notifier.Notify(ctx, userID, notify.Balance(evm.FromWei(balance).String()))
}

// BeginTransfer asks the user for the destination wallets
func (s *BulkService) BeginTransfer(ctx context.Context, userID string) error {
	account, ok, err := s.account(ctx, userID)
	if !ok {
		return err
	}

	account.AwaitingBulkWallets = true
	account.AwaitingTransferAmount = false
	account.BulkWallets = nil
	if err := s.accounts.Put(ctx, *account); err != nil {
		s.notifyQuiet(ctx, userID, notify.StorageFailed())
		return err
	}

	return s.notifier.Notify(ctx, userID, notify.AskBulkWallets(account.WalletAddress))
}

// HandleText routes free text to the step the user's account is waiting for.
// It reports false if the account is not waiting for input.
func (s *BulkService) HandleText(ctx context.Context, userID, text string) (bool, error) {
	account, err := s.accounts.Get(ctx, userID)
	if errors.Is(err, store.ErrAccountNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	switch {
	case account.AwaitingBulkWallets:
		return true, s.submitWallets(ctx, account, text)
	case account.AwaitingTransferAmount:
		return true, s.submitTransferAmount(ctx, account, text)
	}
	return false, nil
}

// submitWallets stores the destination list. Any invalid entry rejects the
// whole list and leaves the account unchanged.
func (s *BulkService) submitWallets(ctx context.Context, account *models.UserAccount, text string) error {
	addrs, err := evm.ValidateAddresses(text)
	if err != nil {
		var addrErr *evm.AddressError
		if errors.As(err, &addrErr) {
			return s.notifier.Notify(ctx, account.UserID, notify.InvalidBulkWallets(addrErr.Invalid))
		}
		return err
	}

	wallets := make([]string, len(addrs))
	for i, addr := range addrs {
		wallets[i] = addr.Hex()
	}

	account.BulkWallets = wallets
	account.AwaitingBulkWallets = false
	account.AwaitingTransferAmount = true
	if err := s.accounts.Put(ctx, *account); err != nil {
		s.notifyQuiet(ctx, account.UserID, notify.StorageFailed())
		return err
	}

	return s.notifier.Notify(ctx, account.UserID, notify.BulkWalletsSet(wallets))
}

// submitTransferAmount sends amount to every stored destination once the
// wallet is known to cover amount times the number of destinations.
func (s *BulkService) submitTransferAmount(ctx context.Context, account *models.UserAccount, text string) error {
	userID := account.UserID

	amount, err := ParseAmount(text)
	if err != nil {
		return s.notifier.Notify(ctx, userID, notify.InvalidTransferAmount())
	}

	wallet, err := evm.WalletFromHex(account.PrivateKey)
	if err != nil {
		return fmt.Errorf("failed to load account key of %s: %w", userID, err)
	}

	destinations := make([]common.Address, len(account.BulkWallets))
	for i, w := range account.BulkWallets {
		destinations[i] = common.HexToAddress(w)
	}
	total := BatchTotal(amount, len(destinations))

	balance, err := s.forwarder.CheckBatchFunds(ctx, wallet.Address, evm.ToWei(amount), len(destinations))
	if errors.Is(err, evm.ErrInsufficientFunds) {
		return s.notifier.Notify(ctx, userID, notify.InsufficientFunds(total.String(), evm.FromWei(balance).String()))
	}
	if err != nil {
		s.logger.Error("Failed to check funds",
			zap.String("user_id", userID),
			zap.Error(err))
		s.notifyQuiet(ctx, userID, notify.TransferError())
		return err
	}

	s.logger.Info("Starting bulk transfer",
		zap.String("user_id", userID),
		zap.String("amount", amount.String()),
		zap.Int("destinations", len(destinations)))
	s.notifyQuiet(ctx, userID, notify.Transferring(total.String()))

	results := s.forwarder.TransferBatch(ctx, wallet.PrivateKey, evm.ToWei(amount), destinations)
	for _, r := range results {
		if r.Err != nil {
			metrics.Transfers.WithLabelValues("bulk", metrics.ResultFailure).Inc()
			hash := ""
			if r.TxHash != (common.Hash{}) {
				hash = r.TxHash.Hex()
			}
			s.notifyQuiet(ctx, userID, notify.TransferFailed(r.Destination.Hex(), hash))
			continue
		}
		metrics.Transfers.WithLabelValues("bulk", metrics.ResultSuccess).Inc()
		s.notifyQuiet(ctx, userID, notify.TransferSucceeded(amount.String(), r.Destination.Hex(), r.TxHash.Hex()))
	}

	account.AwaitingTransferAmount = false
	account.BulkWallets = nil
	if err := s.accounts.Put(ctx, *account); err != nil {
		s.notifyQuiet(ctx, userID, notify.StorageFailed())
		return err
	}

	return s.notifier.Notify(ctx, userID, notify.WithdrawalComplete())
}

// account loads the user's account. ok is false when the caller should stop;
// a missing account is answered with a hint and is not an error.
func (s *BulkService) account(ctx context.Context, userID string) (*models.UserAccount, bool, error) {
	account, err := s.accounts.Get(ctx, userID)
	if errors.Is(err, store.ErrAccountNotFound) {
		return nil, false, s.notifier.Notify(ctx, userID, notify.NoAccount())
	}
	if err != nil {
		return nil, false, err
	}
	return account, true, nil
}

func (s *BulkService) notifyQuiet(ctx context.Context, userID string, msg notify.Message) {
	if err := s.notifier.Notify(ctx, userID, msg); err != nil {
		s.logger.Error("Failed to notify user",
			zap.String("user_id", userID),
			zap.Error(err))
	}
}
