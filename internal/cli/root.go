// Package cli implements the gasrelay command.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "gasrelay",
	Short: "Gas-sponsoring transaction relay for EVM chains",
	Long: `gasrelay accepts user-signed transactions, funds the signer through the
gas payer contract when its balance cannot cover the gas cost, and forwards
the original bytes to the chain unchanged.`,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is env-only configuration)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
