package cli

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"airpay/internal/blockchain/evm"
)

// balanceCmd queries the native balance of an address.
var balanceCmd = &cobra.Command{
	Use:     "balance <address>",
	Short:   "Show the balance of an address",
	Example: `  airpayctl balance 0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed`,
	Args:    cobra.ExactArgs(1),
	RunE:    runBalance,
}

func runBalance(cmd *cobra.Command, args []string) error {
	if !evm.IsValidAddress(args[0]) {
		return fmt.Errorf("%w: %s", evm.ErrInvalidAddress, args[0])
	}
	address := common.HexToAddress(args[0])

	ctx := cmd.Context()
	client, closeFn, err := dialFn(ctx, &cfg.Chain, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	height, err := client.BlockNumber(ctx)
	if err != nil {
		return err
	}

	wei, err := client.GetBalance(ctx, address)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		return writeJSON(out, map[string]string{
			"address": address.Hex(),
			"balance": evm.FromWei(wei).String(),
			"wei":     wei.String(),
			"block":   strconv.FormatUint(height, 10),
		})
	}

	_, err = fmt.Fprintf(out, "%s  %s %s  (block %d)\n", address.Hex(), evm.FromWei(wei), cfg.Chain.Symbol, height)
	return err
}
