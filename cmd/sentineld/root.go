// Package main is the sentineld command-line entrypoint, structured the
// way the teacher's archive/cmd/webworks/cli package is: a cobra root
// command with persistent config/verbose flags, subcommands registered
// via init().
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "sentineld",
	Short: "HIPS Sentinel - host intrusion prevention engine",
	Long: `sentineld observes activity on an endpoint, classifies it as typed
security events, routes those events through a rule-driven policy
evaluator and a stateful correlation engine, and defends its own
process against tampering.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to configuration file (yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
