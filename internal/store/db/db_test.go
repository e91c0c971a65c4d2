package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"airpay/internal/config"
	"airpay/internal/store/file"
)

func TestOpen_FileBackend(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Store: config.StoreConfig{
			Backend:          config.StoreFile,
			TransactionsFile: filepath.Join(dir, "transactions.json"),
			UsersFile:        filepath.Join(dir, "users.json"),
		},
	}

	stores, err := Open(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer stores.Close()

	assert.IsType(t, &file.TransactionLog{}, stores.Transactions)
	assert.IsType(t, &file.AccountFile{}, stores.Accounts)
	assert.NoError(t, stores.Close())
}

func TestOpen_UnknownBackend(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Backend: "etcd"}}

	_, err := Open(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}
