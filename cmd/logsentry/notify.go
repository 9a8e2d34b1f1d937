package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"logsentry/internal/model"
	"logsentry/internal/utils"

	"github.com/spf13/cobra"
)

func notifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Exercise notification channels",
	}

	var (
		severity string
		sourceIP string
	)
	testCmd := &cobra.Command{
		Use:   "test",
		Short: "Send a sample alert through every configured channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			sev := model.ParseSeverity(severity)
			if sev.Rank() == 0 {
				return fmt.Errorf("unknown severity %q", severity)
			}

			cfg, err := utils.LoadConfig(configFile)
			if err != nil {
				return err
			}
			logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

			dispatcher, closeNotifiers, err := buildDispatcher(cfg, nil, logger)
			defer closeNotifiers()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.NotificationTimeout()+5*time.Second)
			defer cancel()

			results := dispatcher.Dispatch(ctx, model.Alert{
				Timestamp:   time.Now().UTC(),
				RuleName:    "notification_test",
				Severity:    sev,
				Description: "Test alert sent by logsentry notify test",
				SourceIP:    sourceIP,
			})
			return printResults(cmd, results)
		},
	}
	testCmd.Flags().StringVarP(&severity, "severity", "s", string(model.SeverityCritical), "Severity of the sample alert")
	testCmd.Flags().StringVar(&sourceIP, "source-ip", "203.0.113.10", "Source IP of the sample alert")

	cmd.AddCommand(testCmd)
	return cmd
}

func printResults(cmd *cobra.Command, results map[string]bool) error {
	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No notification handlers accepted the alert")
		return nil
	}

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := 0
	for _, name := range names {
		status := "ok"
		if !results[name] {
			status = "failed"
			failed++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", name, status)
	}
	if failed > 0 {
		return fmt.Errorf("%d notification handlers failed", failed)
	}
	return nil
}
