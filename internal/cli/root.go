// Package cli implements the airpayctl operator command-line interface.
//
// Flag values and the loaded configuration are package-level state, the usual
// layout for Cobra applications. They are set up in PersistentPreRunE.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"airpay/internal/blockchain/evm"
	"airpay/internal/config"
	"airpay/internal/store/db"
)

// balanceReader is the part of the provider the CLI needs
type balanceReader interface {
	GetBalance(ctx context.Context, address common.Address) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

var (
	// Global flags
	outputJSON bool
	verbose    bool

	// Global state initialized in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger

	// Replaced in tests
	openStoresFn = db.Open
	dialFn       = func(ctx context.Context, chain *config.ChainConfig, logger *zap.Logger) (balanceReader, func(), error) {
		client, err := evm.NewClient(ctx, chain, logger)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	}
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "airpayctl",
	Short: "Inspect AirPay deposit records and wallets",
	Long: `airpayctl reads the AirPay record store and queries the chain.

It uses the same environment variables (and .env file) as the server.

Example:
  airpayctl records --user 123456
  airpayctl records --status confirmed --show-keys
  airpayctl accounts
  airpayctl balance 0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return initGlobals()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "print JSON instead of a table")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")

	rootCmd.AddCommand(recordsCmd, accountsCmd, balanceCmd)
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func initGlobals() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return err
	}

	if verbose {
		logger, err = zap.NewDevelopment()
		if err != nil {
			return err
		}
	} else {
		logger = zap.NewNop()
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
