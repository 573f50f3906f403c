package cmd

import (
	"strconv"

	"github.com/spf13/cobra"
)

var strategyCmd = &cobra.Command{
	Use:   "strategy",
	Short: "Capital strategy registration and allocation",
}

var strategyAddCmd = &cobra.Command{
	Use:   "add <address> <weight>",
	Short: "Register a capital strategy",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		weight, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return err
		}
		return postJSON("/v1/strategies", map[string]interface{}{
			"address": args[0],
			"weight":  uint32(weight),
		})
	},
}

var strategyStatusesCmd = &cobra.Command{
	Use:   "statuses <addr1,addr2,...> <true,false,...>",
	Short: "Set strategy active flags",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		statuses, err := parseCSVBools(args[1])
		if err != nil {
			return err
		}
		return postJSON("/v1/strategies/statuses", map[string]interface{}{
			"addresses": parseCSVStrings(args[0]),
			"statuses":  statuses,
		})
	},
}

var strategyWeightsCmd = &cobra.Command{
	Use:   "weights <addr1,addr2,...> <w1,w2,...>",
	Short: "Reallocate strategy weights",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := parseCSVInts(args[1])
		if err != nil {
			return err
		}
		weights := make([]uint32, len(raw))
		for i, w := range raw {
			weights[i] = uint32(w)
		}
		return postJSON("/v1/strategies/weights", map[string]interface{}{
			"addresses": parseCSVStrings(args[0]),
			"weights":   weights,
		})
	},
}

var moverCmd = &cobra.Command{
	Use:   "mover",
	Short: "Balance mover registration",
}

var moverAddCmd = &cobra.Command{
	Use:   "add <address>",
	Short: "Register a balance mover",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return postJSON("/v1/movers", map[string]string{"address": args[0]})
	},
}

var moverStatusesCmd = &cobra.Command{
	Use:   "statuses <addr1,addr2,...> <true,false,...>",
	Short: "Set mover active flags",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		statuses, err := parseCSVBools(args[1])
		if err != nil {
			return err
		}
		return postJSON("/v1/movers/statuses", map[string]interface{}{
			"addresses": parseCSVStrings(args[0]),
			"statuses":  statuses,
		})
	},
}

var moverRemoveCmd = &cobra.Command{
	Use:   "remove <address>",
	Short: "Remove a balance mover entirely",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return deleteJSON("/v1/movers/" + args[0])
	},
}

var retainerStatusesCmd = &cobra.Command{
	Use:   "retainer-statuses <addr1,addr2,...> <true,false,...>",
	Short: "Set retainer active flags",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		statuses, err := parseCSVBools(args[1])
		if err != nil {
			return err
		}
		return postJSON("/v1/retainers/statuses", map[string]interface{}{
			"addresses": parseCSVStrings(args[0]),
			"statuses":  statuses,
		})
	},
}

var retainerRemoveCmd = &cobra.Command{
	Use:   "retainer-remove <address>",
	Short: "Remove a retainer entirely",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return deleteJSON("/v1/retainers/" + args[0])
	},
}

func init() {
	strategyCmd.AddCommand(strategyAddCmd, strategyStatusesCmd, strategyWeightsCmd)
	moverCmd.AddCommand(moverAddCmd, moverStatusesCmd, moverRemoveCmd)
	rootCmd.AddCommand(strategyCmd, moverCmd, retainerStatusesCmd, retainerRemoveCmd)
}
