package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// TransferGasLimit is the fixed gas limit of a plain value transfer
const TransferGasLimit uint64 = 21000

// ErrInsufficientFunds rejects a batch the source wallet cannot cover
var ErrInsufficientFunds = errors.New("insufficient funds")

// TransferFee is the cost of one plain transfer at gasPrice
func TransferFee(gasPrice *big.Int) *big.Int {
	return new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(TransferGasLimit))
}

// NetSweepValue is what a sweep of balance delivers when it also pays its own fee
func NetSweepValue(balance, gasPrice *big.Int) (*big.Int, error) {
	fee := TransferFee(gasPrice)
	value := new(big.Int).Sub(balance, fee)
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("%w: balance %s does not cover fee %s", ErrInsufficientFunds, balance, fee)
	}
	return value, nil
}

// TransferResult is the outcome of one destination of a batch
type TransferResult struct {
	Destination common.Address
	TxHash      common.Hash // zero if nothing was broadcast
	Err         error
}

// Forwarder moves native coins out of custodial wallets
type Forwarder struct {
	provider   Provider
	reserveGas bool
	logger     *zap.Logger
}

// NewForwarder creates a forwarder. With reserveGas set, sweeps leave the
// transfer fee in the source wallet instead of sending the full balance.
func NewForwarder(provider Provider, reserveGas bool, logger *zap.Logger) *Forwarder {
	return &Forwarder{
		provider:   provider,
		reserveGas: reserveGas,
		logger:     logger.Named("forwarder"),
	}
}

// Sweep sends amount from the key's wallet to destination and waits for the
// receipt. The hash is returned even if waiting fails.
func (f *Forwarder) Sweep(ctx context.Context, key *ecdsa.PrivateKey, destination common.Address, amount *big.Int) (common.Hash, error) {
	gasPrice, err := f.provider.GetGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}

	value := new(big.Int).Set(amount)
	if f.reserveGas {
		if value, err = NetSweepValue(amount, gasPrice); err != nil {
			return common.Hash{}, err
		}
	}

	f.logger.Info("Sweeping wallet",
		zap.String("from", crypto.PubkeyToAddress(key.PublicKey).Hex()),
		zap.String("to", destination.Hex()),
		zap.String("value_wei", value.String()))

	return f.send(ctx, key, destination, value, gasPrice)
}

// TransferBatch sends amount to every destination, one attempt each. A failed
// destination does not stop the remaining ones.
func (f *Forwarder) TransferBatch(ctx context.Context, key *ecdsa.PrivateKey, amount *big.Int, destinations []common.Address) []TransferResult {
	results := make([]TransferResult, 0, len(destinations))

	for _, dest := range destinations {
		result := TransferResult{Destination: dest}

		gasPrice, err := f.provider.GetGasPrice(ctx)
		if err != nil {
			result.Err = fmt.Errorf("failed to get gas price: %w", err)
		} else {
			result.TxHash, result.Err = f.send(ctx, key, dest, amount, gasPrice)
		}

		if result.Err != nil {
			f.logger.Error("Batch transfer failed",
				zap.String("to", dest.Hex()),
				zap.Error(result.Err))
		}
		results = append(results, result)
	}

	return results
}

// CheckBatchFunds returns the balance of from, or ErrInsufficientFunds if it
// is below amount times count.
func (f *Forwarder) CheckBatchFunds(ctx context.Context, from common.Address, amount *big.Int, count int) (*big.Int, error) {
	balance, err := f.provider.GetBalance(ctx, from)
	if err != nil {
		return nil, err
	}

	total := new(big.Int).Mul(amount, big.NewInt(int64(count)))
	if balance.Cmp(total) < 0 {
		return balance, fmt.Errorf("%w: need %s wei, have %s wei", ErrInsufficientFunds, total, balance)
	}
	return balance, nil
}

func (f *Forwarder) send(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, value, gasPrice *big.Int) (common.Hash, error) {
	txHash, err := f.provider.SendTransaction(ctx, key, to, value, TransferGasLimit, gasPrice)
	if err != nil {
		return common.Hash{}, err
	}

	receipt, err := f.provider.WaitForTransaction(ctx, txHash)
	if err != nil {
		return txHash, fmt.Errorf("transaction %s not confirmed: %w", txHash.Hex(), err)
	}

	fields := []zap.Field{zap.String("tx_hash", txHash.Hex()), zap.String("to", to.Hex())}
	if receipt != nil && receipt.BlockNumber != nil {
		fields = append(fields, zap.Uint64("block", receipt.BlockNumber.Uint64()))
	}
	f.logger.Info("Transfer confirmed", fields...)

	return txHash, nil
}
