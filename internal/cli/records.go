package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"airpay/internal/models"
)

var (
	recordsUser     string
	recordsStatus   string
	recordsHistory  bool
	recordsShowKeys bool
)

// recordsCmd lists deposit records.
var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List deposit records",
	Long: `List deposit records from the transaction log.

By default each deposit is shown once, in its latest state. Use --history to
print every appended entry. Private keys are hidden unless --show-keys is set,
which is how funds of a failed sweep are recovered.`,
	Example: `  airpayctl records --user 123456
  airpayctl records --status confirmed --show-keys --json`,
	Args: cobra.NoArgs,
	RunE: runRecords,
}

func init() {
	recordsCmd.Flags().StringVar(&recordsUser, "user", "", "only records of this user ID")
	recordsCmd.Flags().StringVar(&recordsStatus, "status", "", "only records in this status")
	recordsCmd.Flags().BoolVar(&recordsHistory, "history", false, "print every log entry instead of the latest state")
	recordsCmd.Flags().BoolVar(&recordsShowKeys, "show-keys", false, "include private keys")
}

func runRecords(cmd *cobra.Command, _ []string) error {
	if err := cfg.ValidateStore(); err != nil {
		return err
	}

	ctx := cmd.Context()
	stores, err := openStoresFn(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	log, err := stores.Transactions.LoadAll(ctx)
	if err != nil {
		return err
	}
	if !recordsHistory {
		log = models.LatestTransactions(log)
	}

	records := make([]models.Transaction, 0, len(log))
	for _, tx := range log {
		if recordsUser != "" && tx.UserID != recordsUser {
			continue
		}
		if recordsStatus != "" && string(tx.Status) != recordsStatus {
			continue
		}
		if !recordsShowKeys {
			tx.PrivateKey = ""
		}
		records = append(records, tx)
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		return writeJSON(out, records)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := "ID\tUSER\tWALLET\tAMOUNT\tSTATUS\tBALANCE\tSWEEP TX\tREASON\tCREATED"
	if recordsShowKeys {
		header += "\tPRIVATE KEY"
	}
	fmt.Fprintln(tw, header)
	for _, tx := range records {
		line := fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s",
			tx.ID, tx.UserID, tx.WalletAddress, tx.Amount, tx.Status,
			deref(tx.Balance), deref(tx.SweepTxHash), deref(tx.Reason),
			tx.CreatedAt.Format("2006-01-02 15:04:05"))
		if recordsShowKeys {
			line += "\t" + tx.PrivateKey
		}
		fmt.Fprintln(tw, line)
	}
	return tw.Flush()
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
