// logsentry ingests log events, correlates them against detection rules,
// streams results to live subscribers and notifies external channels.
//
// Usage:
//
//	logsentry serve --config configs/logsentry.yaml
//	logsentry rules validate configs/rules.yaml
//	logsentry notify test --severity critical
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	version    = ""
	configFile string
)

func getVersion() string {
	if version != "" {
		return version
	}
	content, err := os.ReadFile("VERSION")
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(content))
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "logsentry",
		Short:         "Log correlation and security alerting service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path (YAML)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "logsentry %s\n", getVersion())
		},
	}
}
