// Package evmtest provides an in-memory evm.Provider for tests.
package evmtest

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// SentTx records a SendTransaction call
type SentTx struct {
	From     common.Address
	To       common.Address
	Value    *big.Int
	GasLimit uint64
	GasPrice *big.Int
	Hash     common.Hash
}

// Provider is a scriptable fake chain. All fields may be set before use;
// recorded calls are read through the accessor methods.
type Provider struct {
	// BalanceFunc answers GetBalance; call counts from 1 per address.
	BalanceFunc func(address common.Address, call int) (*big.Int, error)
	GasPrice    *big.Int
	GasPriceErr error
	SendErr     map[common.Address]error // keyed by destination
	WaitErr     map[common.Address]error // keyed by destination
	// WaitGate, when set, holds WaitForTransaction until it is closed or ctx ends.
	WaitGate <-chan struct{}
	Height   uint64

	mu           sync.Mutex
	balanceCalls map[common.Address]int
	sent         []SentTx
	destinations map[common.Hash]common.Address
}

// GetBalance implements evm.Provider
func (p *Provider) GetBalance(_ context.Context, address common.Address) (*big.Int, error) {
	p.mu.Lock()
	if p.balanceCalls == nil {
		p.balanceCalls = make(map[common.Address]int)
	}
	p.balanceCalls[address]++
	call := p.balanceCalls[address]
	p.mu.Unlock()

	if p.BalanceFunc == nil {
		return big.NewInt(0), nil
	}
	return p.BalanceFunc(address, call)
}

// GetGasPrice implements evm.Provider
func (p *Provider) GetGasPrice(context.Context) (*big.Int, error) {
	if p.GasPriceErr != nil {
		return nil, p.GasPriceErr
	}
	if p.GasPrice == nil {
		return big.NewInt(1_000_000_000), nil
	}
	return new(big.Int).Set(p.GasPrice), nil
}

// SendTransaction implements evm.Provider
func (p *Provider) SendTransaction(_ context.Context, key *ecdsa.PrivateKey, to common.Address, value *big.Int, gasLimit uint64, gasPrice *big.Int) (common.Hash, error) {
	if err := p.SendErr[to]; err != nil {
		return common.Hash{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	hash := crypto.Keccak256Hash([]byte(fmt.Sprintf("tx-%d-%s", len(p.sent), to.Hex())))
	p.sent = append(p.sent, SentTx{
		From:     crypto.PubkeyToAddress(key.PublicKey),
		To:       to,
		Value:    new(big.Int).Set(value),
		GasLimit: gasLimit,
		GasPrice: new(big.Int).Set(gasPrice),
		Hash:     hash,
	})
	if p.destinations == nil {
		p.destinations = make(map[common.Hash]common.Address)
	}
	p.destinations[hash] = to
	return hash, nil
}

// BlockNumber returns Height
func (p *Provider) BlockNumber(context.Context) (uint64, error) {
	return p.Height, nil
}

// WaitForTransaction implements evm.Provider
func (p *Provider) WaitForTransaction(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if p.WaitGate != nil {
		select {
		case <-p.WaitGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	to, ok := p.destinations[txHash]
	p.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("unknown transaction %s", txHash.Hex())
	}
	if err := p.WaitErr[to]; err != nil {
		return nil, err
	}
	return &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      txHash,
		BlockNumber: big.NewInt(1),
	}, nil
}

// Sent returns a copy of the recorded transactions
func (p *Provider) Sent() []SentTx {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SentTx(nil), p.sent...)
}

// BalanceCalls returns how often GetBalance was called for address
func (p *Provider) BalanceCalls(address common.Address) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balanceCalls[address]
}
