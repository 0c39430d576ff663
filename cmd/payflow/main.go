// Command payflow drives M-Pesa payments from the command line, serves a
// local payment service simulator and the operator API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "payflow",
		Short:         "payflow - M-Pesa payment confirmation client",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringSlice("env-file", nil, "Env files to load before reading the environment (default: ./.env)")

	rootCmd.AddCommand(payCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(opsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
