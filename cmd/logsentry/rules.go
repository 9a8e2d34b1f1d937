package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"logsentry/internal/model"
	"logsentry/internal/rules"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect detection rule files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Parse a rules file and report rules that would be disabled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logrus.New()
			logger.SetOutput(io.Discard)

			store := rules.NewStore(rules.NewCorrelationState(), logger)
			loaded, err := store.LoadFile(args[0])
			if err != nil {
				return err
			}
			if invalid := printRules(cmd.OutOrStdout(), loaded); invalid > 0 {
				return fmt.Errorf("%d of %d rules are invalid", invalid, len(loaded))
			}
			return nil
		},
	})
	return cmd
}

func printRules(out io.Writer, loaded []model.Rule) int {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSEVERITY\tTHRESHOLD\tWINDOW\tSTATUS")

	invalid := 0
	for _, r := range loaded {
		status := "enabled"
		switch {
		case r.LoadError != "":
			status = "invalid: " + r.LoadError
			invalid++
		case !r.Enabled:
			status = "disabled"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%ds\t%s\n",
			r.ID, r.Name, r.ConditionType, r.Severity, r.Threshold, r.TimeWindow, status)
	}
	_ = tw.Flush()
	return invalid
}
