package evm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"airpay/internal/config"
)

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
}

// newRPCServer answers JSON-RPC calls from a method -> result table
func newRPCServer(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		result, ok := results[req.Method]
		if !ok {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"jsonrpc": "2.0",
				"id":      req.ID,
				"error":   map[string]interface{}{"code": -32601, "message": "method not found"},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newDeadServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func chainConfig(primary, backup string) *config.ChainConfig {
	return &config.ChainConfig{
		ChainID:           22040,
		Name:              "AirDAO",
		RPCEndpoint:       primary,
		BackupRPCEndpoint: backup,
		CallTimeout:       2 * time.Second,
	}
}

var healthyResults = map[string]string{
	"eth_blockNumber": "0x1b4",
	"eth_chainId":     "0x5618", // 22040
	"eth_getBalance":  "0x8a1580485b230000",
	"eth_gasPrice":    "0x3b9aca00",
}

func TestNewClient_UsesPrimaryWhenLive(t *testing.T) {
	primary := newRPCServer(t, healthyResults)
	backup := newRPCServer(t, healthyResults)

	client, err := NewClient(context.Background(), chainConfig(primary.URL, backup.URL), zap.NewNop())
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, primary.URL, client.Endpoint())
}

func TestNewClient_FailsOverToBackup(t *testing.T) {
	primary := newDeadServer(t)
	backup := newRPCServer(t, healthyResults)

	client, err := NewClient(context.Background(), chainConfig(primary.URL, backup.URL), zap.NewNop())
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, backup.URL, client.Endpoint())

	balance, err := client.GetBalance(context.Background(), common.HexToAddress("0x5B38Da6a701c568545dCfcB03FcB875f56beddC4"))
	require.NoError(t, err)
	assert.Equal(t, "9950000000000000000", balance.String())

	gasPrice, err := client.GetGasPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000_000), gasPrice.Int64())
}

func TestNewClient_BothEndpointsDown(t *testing.T) {
	primary := newDeadServer(t)
	backup := newDeadServer(t)

	_, err := NewClient(context.Background(), chainConfig(primary.URL, backup.URL), zap.NewNop())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoProvider))
}

func TestClient_ProviderErrorsAreWrapped(t *testing.T) {
	srv := newRPCServer(t, map[string]string{
		"eth_blockNumber": "0x1",
		"eth_chainId":     "0x5618",
	})

	client, err := NewClient(context.Background(), chainConfig(srv.URL, ""), zap.NewNop())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.GetBalance(context.Background(), common.Address{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProvider))
}
