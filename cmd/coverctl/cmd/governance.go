package cmd

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

var govCmd = &cobra.Command{
	Use:   "gov",
	Short: "Governance seat handover",
}

var govPendingCmd = &cobra.Command{
	Use:   "pending <address>",
	Short: "Nominate the pending governance address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return postJSON("/v1/governance/pending", map[string]string{"address": args[0]})
	},
}

var govAcceptCmd = &cobra.Command{
	Use:   "accept",
	Short: "Accept the governance seat (run as the pending address)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return postJSON("/v1/governance/accept", struct{}{})
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Product configuration settings",
}

var setMaxRateCmd = &cobra.Command{
	Use:   "max-rate <num> <denom>",
	Short: "Set the premium rate ceiling",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		num, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("num: %w", err)
		}
		denom, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("denom: %w", err)
		}
		return postJSON("/v1/config/max-rate", map[string]int64{"num": num, "denom": denom})
	},
}

var setCycleCmd = &cobra.Command{
	Use:   "charge-cycle <HOURLY|DAILY|WEEKLY|MONTHLY>",
	Short: "Set the premium charge cycle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return postJSON("/v1/config/charge-cycle", map[string]string{"cycle": args[0]})
	},
}

var setPausedCmd = &cobra.Command{
	Use:   "paused <true|false>",
	Short: "Pause or resume new coverage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paused, err := strconv.ParseBool(args[0])
		if err != nil {
			return err
		}
		return postJSON("/v1/config/paused", map[string]bool{"enabled": paused})
	},
}

var setCooldownCmd = &cobra.Command{
	Use:   "cooldown <seconds>",
	Short: "Set the post-deactivation withdrawal cooldown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		seconds, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return err
		}
		return postJSON("/v1/config/cooldown", map[string]int64{"amount": seconds})
	},
}

var setReferralRewardCmd = &cobra.Command{
	Use:   "referral-reward <amount>",
	Short: "Set the referral reward amount",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return err
		}
		return postJSON("/v1/config/referral-reward", map[string]int64{"amount": amount})
	},
}

var setReferralOnCmd = &cobra.Command{
	Use:   "referral-on <true|false>",
	Short: "Enable or disable the referral program",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := strconv.ParseBool(args[0])
		if err != nil {
			return err
		}
		return postJSON("/v1/config/referral-on", map[string]bool{"enabled": on})
	},
}

var setBatchSizeCmd = &cobra.Command{
	Use:   "max-batch-size <n>",
	Short: "Set the maximum collector batch size",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}
		return postJSON("/v1/config/max-batch-size", map[string]int{"size": n})
	},
}

var setBaseURICmd = &cobra.Command{
	Use:   "base-uri <uri>",
	Short: "Set the policy token URI prefix",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return postJSON("/v1/config/base-uri", map[string]string{"uri": args[0]})
	},
}

var setCollectorCmd = &cobra.Command{
	Use:   "collector <address>",
	Short: "Set the premium collector address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return postJSON("/v1/config/collector", map[string]string{"address": args[0]})
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep <to-address> <amount>",
	Short: "Sweep collected premiums out of the pool",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return err
		}
		return postJSON("/v1/pool/sweep", map[string]interface{}{"to": args[0], "amount": amount})
	},
}

var signerAddCmd = &cobra.Command{
	Use:   "signer-add <key-id> <base64-public-key>",
	Short: "Trust an attestation signer key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return postJSON("/v1/signers", map[string]string{"key_id": args[0], "public_key": args[1]})
	},
}

var signerRemoveCmd = &cobra.Command{
	Use:   "signer-remove <key-id>",
	Short: "Revoke an attestation signer key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return deleteJSON("/v1/signers/" + url.PathEscape(args[0]))
	},
}

var assetAddCmd = &cobra.Command{
	Use:   "asset-add <symbol> <decimals>",
	Short: "Accept an asset for deposits",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		decimals, err := strconv.ParseUint(args[1], 10, 8)
		if err != nil {
			return err
		}
		stable, _ := cmd.Flags().GetBool("stable")
		return postJSON("/v1/assets", map[string]interface{}{
			"symbol":   args[0],
			"decimals": decimals,
			"stable":   stable,
		})
	},
}

var assetRemoveCmd = &cobra.Command{
	Use:   "asset-remove <symbol>",
	Short: "Stop accepting an asset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return deleteJSON("/v1/assets/" + url.PathEscape(args[0]))
	},
}

func init() {
	govCmd.AddCommand(govPendingCmd, govAcceptCmd)
	configCmd.AddCommand(setMaxRateCmd, setCycleCmd, setPausedCmd, setCooldownCmd,
		setReferralRewardCmd, setReferralOnCmd, setBatchSizeCmd, setBaseURICmd, setCollectorCmd)
	assetAddCmd.Flags().Bool("stable", false, "treat as stable (1:1) asset")

	rootCmd.AddCommand(govCmd, configCmd, sweepCmd,
		signerAddCmd, signerRemoveCmd, assetAddCmd, assetRemoveCmd)
}
