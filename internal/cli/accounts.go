package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// accountView is an account without its key
type accountView struct {
	UserID        string   `json:"user_id"`
	WalletAddress string   `json:"wallet_address"`
	State         string   `json:"state"`
	BulkWallets   []string `json:"bulk_wallets,omitempty"`
}

// accountsCmd lists bulk-withdrawal accounts.
var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List bulk withdrawal accounts",
	Args:  cobra.NoArgs,
	RunE:  runAccounts,
}

func runAccounts(cmd *cobra.Command, _ []string) error {
	if err := cfg.ValidateStore(); err != nil {
		return err
	}

	ctx := cmd.Context()
	stores, err := openStoresFn(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	accounts, err := stores.Accounts.LoadAll(ctx)
	if err != nil {
		return err
	}

	views := make([]accountView, 0, len(accounts))
	for userID, a := range accounts {
		state := "idle"
		switch {
		case a.AwaitingBulkWallets:
			state = "awaiting_wallets"
		case a.AwaitingTransferAmount:
			state = "awaiting_amount"
		}
		views = append(views, accountView{
			UserID:        userID,
			WalletAddress: a.WalletAddress,
			State:         state,
			BulkWallets:   a.BulkWallets,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].UserID < views[j].UserID })

	out := cmd.OutOrStdout()
	if outputJSON {
		return writeJSON(out, views)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tWALLET\tSTATE\tDESTINATIONS")
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", v.UserID, v.WalletAddress, v.State, len(v.BulkWallets))
	}
	return tw.Flush()
}
