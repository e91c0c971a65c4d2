package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"airpay/internal/blockchain/evm"
	"airpay/internal/blockchain/evm/evmtest"
	"airpay/internal/config"
	"airpay/internal/models"
	"airpay/internal/store/file"
)

// runCmd executes the root command with fresh flag values.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	outputJSON, verbose = false, false
	recordsUser, recordsStatus = "", ""
	recordsHistory, recordsShowKeys = false, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func setupFileStore(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	txPath := filepath.Join(dir, "transactions.json")
	usersPath := filepath.Join(dir, "users.json")

	t.Setenv("STORE_BACKEND", config.StoreFile)
	t.Setenv("TRANSACTIONS_FILE", txPath)
	t.Setenv("USERS_FILE", usersPath)
	return txPath, usersPath
}

func seedRecords(t *testing.T, path string) {
	t.Helper()
	log := file.NewTransactionLog(path)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for _, tx := range []models.Transaction{
		{ID: "a", UserID: "7", WalletAddress: "0xA", PrivateKey: "0xkey-a", Amount: decimal.NewFromInt(10), Status: models.DepositStatusPending, CreatedAt: created},
		{ID: "b", UserID: "8", WalletAddress: "0xB", PrivateKey: "0xkey-b", Amount: decimal.NewFromInt(2), Status: models.DepositStatusPending, CreatedAt: created.Add(time.Minute)},
		{ID: "a", UserID: "7", WalletAddress: "0xA", PrivateKey: "0xkey-a", Amount: decimal.NewFromInt(10), Status: models.DepositStatusConfirmed, Reason: models.StringPtr(models.ReasonSweepFailed), CreatedAt: created},
	} {
		require.NoError(t, log.Append(context.Background(), tx))
	}
}

func TestRecords(t *testing.T) {
	txPath, _ := setupFileStore(t)
	seedRecords(t, txPath)

	tests := []struct {
		name  string
		args  []string
		ids   []string
		keys  bool
		count int
	}{
		{name: "latest", args: []string{"records", "--json"}, count: 2},
		{name: "history", args: []string{"records", "--json", "--history"}, count: 3},
		{name: "by user", args: []string{"records", "--json", "--user", "8"}, count: 1},
		{name: "by status", args: []string{"records", "--json", "--status", "confirmed", "--show-keys"}, count: 1, keys: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCmd(t, tt.args...)
			require.NoError(t, err)

			var records []models.Transaction
			require.NoError(t, json.Unmarshal([]byte(out), &records))
			assert.Len(t, records, tt.count)
			for _, r := range records {
				assert.Equal(t, tt.keys, r.PrivateKey != "")
			}
		})
	}
}

func TestRecords_Table(t *testing.T) {
	txPath, _ := setupFileStore(t)
	seedRecords(t, txPath)

	out, err := runCmd(t, "records")
	require.NoError(t, err)
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "sweep_failed")
	assert.NotContains(t, out, "0xkey-a")
}

func TestAccounts(t *testing.T) {
	_, usersPath := setupFileStore(t)
	accounts := file.NewAccountFile(usersPath)
	require.NoError(t, accounts.Put(context.Background(), models.UserAccount{
		UserID: "1", WalletAddress: "0x1", PrivateKey: "0xsecret", AwaitingTransferAmount: true, BulkWallets: []string{"0x2", "0x3"},
	}))

	out, err := runCmd(t, "accounts", "--json")
	require.NoError(t, err)
	assert.NotContains(t, out, "0xsecret")

	var views []accountView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "awaiting_amount", views[0].State)
	assert.Len(t, views[0].BulkWallets, 2)
}

func TestBalance(t *testing.T) {
	setupFileStore(t)

	provider := &evmtest.Provider{
		Height: 1234567,
		BalanceFunc: func(common.Address, int) (*big.Int, error) {
			return evm.ToWei(decimal.RequireFromString("9.95")), nil
		},
	}
	orig := dialFn
	t.Cleanup(func() { dialFn = orig })
	dialFn = func(context.Context, *config.ChainConfig, *zap.Logger) (balanceReader, func(), error) {
		return provider, func() {}, nil
	}

	out, err := runCmd(t, "balance", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	require.NoError(t, err)
	assert.Contains(t, out, "9.95 AMB")
	assert.Contains(t, out, "(block 1234567)")

	out, err = runCmd(t, "balance", "--json", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	require.NoError(t, err)
	var view map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "1234567", view["block"])
	assert.Equal(t, "9950000000000000000", view["wei"])

	_, err = runCmd(t, "balance", "0x123")
	assert.True(t, errors.Is(err, evm.ErrInvalidAddress))
}
