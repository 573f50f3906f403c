package cmd

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show node sequence, state hash, and projection watermark",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON("/v1/status")
	},
}

var riskCmd = &cobra.Command{
	Use:   "risk",
	Short: "Show capital capacity and strategy allocation",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON("/v1/risk")
	},
}

var productCmd = &cobra.Command{
	Use:   "product",
	Short: "Show product configuration and governance state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON("/v1/product")
	},
}

var accountCmd = &cobra.Command{
	Use:   "account <address>",
	Short: "Show an account's balances and withdrawal headroom",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON("/v1/accounts/" + url.PathEscape(args[0]))
	},
}

var premiumsCmd = &cobra.Command{
	Use:   "premiums <address>",
	Short: "Show an account's premium charge history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON("/v1/accounts/" + url.PathEscape(args[0]) + "/premiums")
	},
}

var policyCmd = &cobra.Command{
	Use:   "policy <policy-id>",
	Short: "Show one policy by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON("/v1/policies/" + url.PathEscape(args[0]))
	},
}

var policyOfCmd = &cobra.Command{
	Use:   "policy-of <owner-address>",
	Short: "Show the policy held by an owner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON("/v1/policies/owner/" + url.PathEscape(args[0]))
	},
}

var policiesCmd = &cobra.Command{
	Use:   "policies",
	Short: "List active policies",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		return getJSON(fmt.Sprintf("/v1/policies?limit=%d&offset=%d", limit, offset))
	},
}

var minBalanceCmd = &cobra.Command{
	Use:   "min-balance <cover-limit>",
	Short: "Show the minimum account balance required for a cover limit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON("/v1/min-required-balance?cover_limit=" + url.QueryEscape(args[0]))
	},
}

func init() {
	policiesCmd.Flags().Int("limit", 50, "page size")
	policiesCmd.Flags().Int("offset", 0, "page offset")

	rootCmd.AddCommand(statusCmd, riskCmd, productCmd, accountCmd,
		premiumsCmd, policyCmd, policyOfCmd, policiesCmd, minBalanceCmd)
}
