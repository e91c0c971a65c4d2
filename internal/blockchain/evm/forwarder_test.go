package evm

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"airpay/internal/blockchain/evm/evmtest"
)

var (
	destA = common.HexToAddress("0x5B38Da6a701c568545dCfcB03FcB875f56beddC4")
	destB = common.HexToAddress("0xAb8483F64d9C6d1EcF9b849Ae677dD3315835cb2")
	destC = common.HexToAddress("0x4B20993Bc481177ec7E8f571ceCaE8A9e22C02db")
)

func TestForwarder_SweepSendsMeasuredBalance(t *testing.T) {
	provider := &evmtest.Provider{GasPrice: big.NewInt(7)}
	forwarder := NewForwarder(provider, false, zap.NewNop())

	source, err := NewWallet()
	require.NoError(t, err)

	balance := ToWei(decimal.RequireFromString("9.95"))
	hash, err := forwarder.Sweep(context.Background(), source.PrivateKey, destA, balance)
	require.NoError(t, err)

	sent := provider.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, hash, sent[0].Hash)
	assert.Equal(t, source.Address, sent[0].From)
	assert.Equal(t, destA, sent[0].To)
	assert.Equal(t, 0, sent[0].Value.Cmp(balance), "value must equal the balance")
	assert.Equal(t, TransferGasLimit, sent[0].GasLimit)
	assert.Equal(t, int64(7), sent[0].GasPrice.Int64())
}

func TestForwarder_SweepReservesGas(t *testing.T) {
	provider := &evmtest.Provider{GasPrice: big.NewInt(10)}
	forwarder := NewForwarder(provider, true, zap.NewNop())

	source, err := NewWallet()
	require.NoError(t, err)

	_, err = forwarder.Sweep(context.Background(), source.PrivateKey, destA, big.NewInt(1_000_000))
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000-210_000), provider.Sent()[0].Value.Int64())

	_, err = forwarder.Sweep(context.Background(), source.PrivateKey, destA, big.NewInt(100))
	assert.True(t, errors.Is(err, ErrInsufficientFunds))
}

func TestNetSweepValue(t *testing.T) {
	gwei := big.NewInt(1_000_000_000)

	tests := []struct {
		name    string
		balance string
		want    string
		wantErr bool
	}{
		{name: "normal balance", balance: "9.95", want: "9.949979"},
		{name: "balance equal to fee", balance: "0.000021", wantErr: true},
		{name: "empty wallet", balance: "0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, err := NetSweepValue(ToWei(decimal.RequireFromString(tt.balance)), gwei)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInsufficientFunds))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, FromWei(value).String())
		})
	}
}

func TestForwarder_SweepWaitFailureKeepsHash(t *testing.T) {
	provider := &evmtest.Provider{
		WaitErr: map[common.Address]error{destA: errors.New("reverted")},
	}
	forwarder := NewForwarder(provider, false, zap.NewNop())

	source, err := NewWallet()
	require.NoError(t, err)

	hash, err := forwarder.Sweep(context.Background(), source.PrivateKey, destA, big.NewInt(5))
	assert.Error(t, err)
	assert.NotEqual(t, common.Hash{}, hash)
}

func TestForwarder_TransferBatchContinuesAfterFailure(t *testing.T) {
	provider := &evmtest.Provider{
		SendErr: map[common.Address]error{destB: errors.New("nonce too low")},
	}
	forwarder := NewForwarder(provider, false, zap.NewNop())

	source, err := NewWallet()
	require.NoError(t, err)

	amount := ToWei(decimal.NewFromInt(2))
	results := forwarder.TransferBatch(context.Background(), source.PrivateKey, amount, []common.Address{destA, destB, destC})
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.Equal(t, common.Hash{}, results[1].TxHash)
	assert.NoError(t, results[2].Err)

	sent := provider.Sent()
	require.Len(t, sent, 2, "exactly one attempt per reachable destination")
	assert.Equal(t, destA, sent[0].To)
	assert.Equal(t, destC, sent[1].To)
	for _, tx := range sent {
		assert.Equal(t, 0, tx.Value.Cmp(amount))
	}
}

func TestForwarder_CheckBatchFunds(t *testing.T) {
	tests := []struct {
		name        string
		balance     int64
		amount      int64
		count       int
		expectError bool
	}{
		{"exactly enough", 300, 100, 3, false},
		{"more than enough", 301, 100, 3, false},
		{"one short", 299, 100, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &evmtest.Provider{
				BalanceFunc: func(common.Address, int) (*big.Int, error) {
					return big.NewInt(tt.balance), nil
				},
			}
			forwarder := NewForwarder(provider, false, zap.NewNop())

			balance, err := forwarder.CheckBatchFunds(context.Background(), destA, big.NewInt(tt.amount), tt.count)
			if tt.expectError {
				assert.True(t, errors.Is(err, ErrInsufficientFunds))
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.balance, balance.Int64())
		})
	}
}
