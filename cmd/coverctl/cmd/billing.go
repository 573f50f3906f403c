package cmd

import (
	"strconv"

	"github.com/spf13/cobra"
)

var billingCmd = &cobra.Command{
	Use:   "billing",
	Short: "Collector billing batches (run as the collector address)",
}

var chargeCmd = &cobra.Command{
	Use:   "charge <addr1,addr2,...> <premium1,premium2,...> <batch-index>",
	Short: "Submit a premium charge batch",
	Long: `Submit a premium charge batch over HTTP. The batch index is the
idempotency key: a batch index at or below the last processed one is
acknowledged without effect.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		premiums, err := parseCSVInts(args[1])
		if err != nil {
			return err
		}
		batchIndex, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return err
		}
		return postJSON("/v1/billing/charge", map[string]interface{}{
			"accounts":    parseCSVStrings(args[0]),
			"premiums":    premiums,
			"batch_index": batchIndex,
		})
	},
}

var cancelBatchCmd = &cobra.Command{
	Use:   "cancel <addr1,addr2,...> <premium1,premium2,...>",
	Short: "Submit a bulk policy cancellation batch",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		premiums, err := parseCSVInts(args[1])
		if err != nil {
			return err
		}
		commandID, _ := cmd.Flags().GetString("command-id")
		return postJSON("/v1/billing/cancel", map[string]interface{}{
			"accounts":   parseCSVStrings(args[0]),
			"premiums":   premiums,
			"command_id": commandID,
		})
	},
}

func init() {
	cancelBatchCmd.Flags().String("command-id", "", "idempotency key for the cancel batch")

	billingCmd.AddCommand(chargeCmd, cancelBatchCmd)
	rootCmd.AddCommand(billingCmd)
}
