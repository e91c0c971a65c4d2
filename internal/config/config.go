package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Store backends
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreMongo    = "mongodb"
)

const minAPIKeyLength = 16

// Config holds all configuration for the service
type Config struct {
	Server   ServerConfig
	Bot      BotConfig
	Chain    ChainConfig
	Deposit  DepositConfig
	Store    StoreConfig
	Database DatabaseConfig
	Mongo    MongoConfig
	Broker   BrokerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	APIKey          string        // Operator credential for /api/v1
	ShutdownTimeout time.Duration // Per shutdown stage
}

// BotConfig holds chat interface configuration
type BotConfig struct {
	Token  string
	APIURL string
}

// ChainConfig holds configuration for the EVM chain
type ChainConfig struct {
	ChainID           int64
	Name              string
	Symbol            string
	RPCEndpoint       string
	BackupRPCEndpoint string
	AdminWallet       string // Destination of deposit sweeps
	CallTimeout       time.Duration
	TxWaitTimeout     time.Duration
	RateLimit         float64 // RPC requests per second
	RateBurst         int
}

// DepositConfig holds deposit monitoring parameters
type DepositConfig struct {
	PollInterval     time.Duration
	MaxPollAttempts  int
	ConfirmTolerance decimal.Decimal // e.g. 0.99 accepts 1% short
	SweepReserveGas  bool
}

// StoreConfig selects the record store backend
type StoreConfig struct {
	Backend          string
	TransactionsFile string
	UsersFile        string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// MongoConfig holds MongoDB configuration
type MongoConfig struct {
	URI      string
	Database string
}

// BrokerConfig holds AMQP notification broker configuration
type BrokerConfig struct {
	URL      string
	Exchange string
}

// LoadConfig loads configuration from environment variables and validates it
func LoadConfig() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Load reads configuration from environment variables without validating it.
// Tools that only touch the record store use it with ValidateStore.
func Load() (*Config, error) {
	tolerance, err := decimal.NewFromString(getEnv("CONFIRM_TOLERANCE", "0.99"))
	if err != nil {
		return nil, fmt.Errorf("invalid CONFIRM_TOLERANCE: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvInt("SERVER_PORT", 8080),
			APIKey:          getEnv("API_KEY", ""),
			ShutdownTimeout: time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Bot: BotConfig{
			Token:  getEnv("BOT_TOKEN", ""),
			APIURL: getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
		},
		Chain: ChainConfig{
			ChainID:           int64(getEnvInt("CHAIN_ID", 22040)),
			Name:              getEnv("CHAIN_NAME", "AirDAO"),
			Symbol:            getEnv("CHAIN_SYMBOL", "AMB"),
			RPCEndpoint:       getEnv("RPC_URL", "https://network.ambrosus.io/"),
			BackupRPCEndpoint: getEnv("BACKUP_RPC_URL", "https://network.ambrosus.io/"),
			AdminWallet:       getEnv("ADMIN_WALLET", ""),
			CallTimeout:       time.Duration(getEnvInt("RPC_CALL_TIMEOUT_SECONDS", 20)) * time.Second,
			TxWaitTimeout:     time.Duration(getEnvInt("TX_WAIT_TIMEOUT_SECONDS", 180)) * time.Second,
			RateLimit:         float64(getEnvInt("RPC_RATE_LIMIT", 10)),
			RateBurst:         getEnvInt("RPC_RATE_BURST", 20),
		},
		Deposit: DepositConfig{
			PollInterval:     time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 15)) * time.Second,
			MaxPollAttempts:  getEnvInt("MAX_POLL_ATTEMPTS", 60),
			ConfirmTolerance: tolerance,
			SweepReserveGas:  getEnvBool("SWEEP_RESERVE_GAS", false),
		},
		Store: StoreConfig{
			Backend:          strings.ToLower(getEnv("STORE_BACKEND", StoreFile)),
			TransactionsFile: getEnv("TRANSACTIONS_FILE", "transactions.json"),
			UsersFile:        getEnv("USERS_FILE", "users.json"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "airpay"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Mongo: MongoConfig{
			URI:      getEnv("MONGO_URI", ""),
			Database: getEnv("MONGO_DATABASE", "airpay"),
		},
		Broker: BrokerConfig{
			URL:      getEnv("AMQP_URL", ""),
			Exchange: getEnv("AMQP_EXCHANGE", "airpay.notifications"),
		},
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Bot.Token == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}

	if len(c.Server.APIKey) < minAPIKeyLength {
		return fmt.Errorf("API_KEY must be at least %d characters", minAPIKeyLength)
	}

	if c.Server.Port <= 0 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", c.Server.ShutdownTimeout)
	}

	if c.Chain.RPCEndpoint == "" && c.Chain.BackupRPCEndpoint == "" {
		return fmt.Errorf("at least one of RPC_URL or BACKUP_RPC_URL is required")
	}

	if c.Chain.ChainID <= 0 {
		return fmt.Errorf("invalid chain id: %d", c.Chain.ChainID)
	}

	if !common.IsHexAddress(c.Chain.AdminWallet) {
		return fmt.Errorf("ADMIN_WALLET must be a valid address, got %q", c.Chain.AdminWallet)
	}

	if c.Deposit.PollInterval <= 0 {
		return fmt.Errorf("invalid poll interval: %s", c.Deposit.PollInterval)
	}

	if c.Deposit.MaxPollAttempts <= 0 {
		return fmt.Errorf("invalid max poll attempts: %d", c.Deposit.MaxPollAttempts)
	}

	if !c.Deposit.ConfirmTolerance.IsPositive() || c.Deposit.ConfirmTolerance.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("confirm tolerance must be in (0, 1], got %s", c.Deposit.ConfirmTolerance)
	}

	return c.ValidateStore()
}

// ValidateStore checks the record store settings
func (c *Config) ValidateStore() error {
	switch c.Store.Backend {
	case StoreFile:
		if c.Store.TransactionsFile == "" || c.Store.UsersFile == "" {
			return fmt.Errorf("TRANSACTIONS_FILE and USERS_FILE are required for the file store")
		}
	case StorePostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
	case StoreMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("MONGO_URI is required for the mongodb store")
		}
	default:
		return fmt.Errorf("unknown store backend: %s", c.Store.Backend)
	}

	return nil
}

// AdminAddress returns the sweep destination
func (c *ChainConfig) AdminAddress() common.Address {
	return common.HexToAddress(c.AdminWallet)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
