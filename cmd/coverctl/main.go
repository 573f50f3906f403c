package main

import (
	"os"

	"CoverLedger/cmd/coverctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
