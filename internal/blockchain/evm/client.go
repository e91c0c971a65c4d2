package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"airpay/internal/config"
)

const (
	DefaultCallTimeout   = 20 * time.Second
	DefaultTxWaitTimeout = 3 * time.Minute
	receiptPollInterval  = 2 * time.Second
)

var (
	// ErrNoProvider means neither the primary nor the backup endpoint answered
	ErrNoProvider = errors.New("no reachable RPC provider")
	// ErrProvider wraps any failed RPC call
	ErrProvider = errors.New("provider error")
)

// Provider is the subset of chain access used by deposits and forwarding
type Provider interface {
	GetBalance(ctx context.Context, address common.Address) (*big.Int, error)
	GetGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, value *big.Int, gasLimit uint64, gasPrice *big.Int) (common.Hash, error)
	WaitForTransaction(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Client wraps an Ethereum JSON-RPC connection bound to one live endpoint
type Client struct {
	ethClient   *ethclient.Client
	chainConfig *config.ChainConfig
	chainID     *big.Int
	endpoint    string
	limiter     *rate.Limiter
	logger      *zap.Logger

	callTimeout  time.Duration
	waitTimeout  time.Duration
	pollInterval time.Duration
}

// NewClient connects to the primary endpoint, falling back to the backup
// endpoint once if the primary fails its liveness check. The chosen endpoint
// is kept for the lifetime of the client.
func NewClient(ctx context.Context, chainCfg *config.ChainConfig, logger *zap.Logger) (*Client, error) {
	logger = logger.Named("evm")

	callTimeout := chainCfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	waitTimeout := chainCfg.TxWaitTimeout
	if waitTimeout <= 0 {
		waitTimeout = DefaultTxWaitTimeout
	}

	limit := rate.Inf
	if chainCfg.RateLimit > 0 {
		limit = rate.Limit(chainCfg.RateLimit)
	}
	burst := chainCfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	endpoints := []struct {
		role string
		url  string
	}{
		{"primary", chainCfg.RPCEndpoint},
		{"backup", chainCfg.BackupRPCEndpoint},
	}

	var lastErr error
	for _, ep := range endpoints {
		if ep.url == "" {
			continue
		}

		ethClient, height, err := dialLive(ctx, ep.url, callTimeout)
		if err != nil {
			logger.Warn("RPC endpoint failed liveness check",
				zap.String("role", ep.role),
				zap.String("endpoint", ep.url),
				zap.Error(err))
			lastErr = err
			continue
		}

		c := &Client{
			ethClient:    ethClient,
			chainConfig:  chainCfg,
			chainID:      big.NewInt(chainCfg.ChainID),
			endpoint:     ep.url,
			limiter:      rate.NewLimiter(limit, burst),
			logger:       logger,
			callTimeout:  callTimeout,
			waitTimeout:  waitTimeout,
			pollInterval: receiptPollInterval,
		}
		c.checkChainID(ctx)

		logger.Info("EVM client initialized",
			zap.String("role", ep.role),
			zap.String("endpoint", ep.url),
			zap.String("chain", chainCfg.Name),
			zap.Int64("chain_id", chainCfg.ChainID),
			zap.Uint64("block", height))

		return c, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no endpoint configured")
	}
	return nil, fmt.Errorf("%w: %w", ErrNoProvider, lastErr)
}

// dialLive connects to url and fetches the current block height
func dialLive(ctx context.Context, url string, timeout time.Duration) (*ethclient.Client, uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ethClient, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to connect to RPC endpoint %s: %w", url, err)
	}

	height, err := ethClient.BlockNumber(ctx)
	if err != nil {
		ethClient.Close()
		return nil, 0, fmt.Errorf("failed to get block number from %s: %w", url, err)
	}

	return ethClient, height, nil
}

// checkChainID warns when the endpoint serves a different chain than configured
func (c *Client) checkChainID(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	networkID, err := c.ethClient.ChainID(ctx)
	if err != nil {
		c.logger.Warn("Could not read chain ID from network", zap.Error(err))
		return
	}
	if networkID.Cmp(c.chainID) != 0 {
		c.logger.Warn("Configured chain ID differs from network",
			zap.String("configured", c.chainID.String()),
			zap.String("network", networkID.String()))
	}
}

// Close closes the underlying RPC connection
func (c *Client) Close() {
	c.ethClient.Close()
}

// Endpoint returns the RPC URL in use
func (c *Client) Endpoint() string {
	return c.endpoint
}

// ChainID returns the configured chain ID used for signing
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// call throttles and bounds a single RPC round trip
func (c *Client) call(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("%w: rate limiter: %w", ErrProvider, err)
	}
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	return callCtx, cancel, nil
}

// GetBalance returns the native balance of an address in wei
func (c *Client) GetBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	callCtx, cancel, err := c.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	balance, err := c.ethClient.BalanceAt(callCtx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get balance of %s: %w", ErrProvider, address.Hex(), err)
	}
	return balance, nil
}

// GetGasPrice returns the suggested gas price
func (c *Client) GetGasPrice(ctx context.Context) (*big.Int, error) {
	callCtx, cancel, err := c.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	gasPrice, err := c.ethClient.SuggestGasPrice(callCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to suggest gas price: %w", ErrProvider, err)
	}
	return gasPrice, nil
}

// BlockNumber returns the current chain height
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	callCtx, cancel, err := c.call(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	height, err := c.ethClient.BlockNumber(callCtx)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get block number: %w", ErrProvider, err)
	}
	return height, nil
}

// SendTransaction signs a plain value transfer with key and broadcasts it
func (c *Client) SendTransaction(
	ctx context.Context,
	key *ecdsa.PrivateKey,
	to common.Address,
	value *big.Int,
	gasLimit uint64,
	gasPrice *big.Int,
) (common.Hash, error) {
	from := crypto.PubkeyToAddress(key.PublicKey)

	callCtx, cancel, err := c.call(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	defer cancel()

	nonce, err := c.ethClient.PendingNonceAt(callCtx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: failed to get nonce: %w", ErrProvider, err)
	}

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, nil)

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.ethClient.SendTransaction(callCtx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("%w: failed to send transaction: %w", ErrProvider, err)
	}

	c.logger.Info("Transaction sent",
		zap.String("tx_hash", signedTx.Hash().Hex()),
		zap.String("from", from.Hex()),
		zap.String("to", to.Hex()),
		zap.String("value_wei", value.String()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas_limit", gasLimit))

	return signedTx.Hash(), nil
}

// WaitForTransaction waits for a transaction to be mined
func (c *Client) WaitForTransaction(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.waitTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: timeout waiting for transaction %s", ErrProvider, txHash.Hex())
		case <-ticker.C:
			receipt, err := c.ethClient.TransactionReceipt(ctx, txHash)
			if err == nil && receipt != nil {
				if receipt.Status == types.ReceiptStatusFailed {
					return receipt, fmt.Errorf("%w: transaction failed: %s", ErrProvider, txHash.Hex())
				}
				return receipt, nil
			}
			// Not mined yet
		}
	}
}
