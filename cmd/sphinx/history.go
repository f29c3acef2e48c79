package sphinx

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
	"github.com/Tsahi-Elkayam/sphinx/pkg/types"
)

// HistoryOptions holds options for the history command
type HistoryOptions struct {
	Resource string
	Since    time.Duration
	Output   string
	ShowIaC  bool
}

// NewHistoryCommand creates the history command
func NewHistoryCommand(logger *logrus.Logger) *cobra.Command {
	opts := &HistoryOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List applied changes, newest first",
		Example: `  sphinx history
  sphinx history --resource aws_ebs_volume.data --show-iac
  sphinx history --since 168h --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryCommand(cmd.Context(), opts, logger)
		},
	}

	cmd.Flags().StringVarP(&opts.Resource, "resource", "r", "", "Only records for this resource address")
	cmd.Flags().DurationVar(&opts.Since, "since", 0, "Only records applied within this duration (e.g. 24h)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Output format (table,json,yaml)")
	cmd.Flags().BoolVar(&opts.ShowIaC, "show-iac", false, "Print the applied file under each record")

	return cmd
}

// parseHistoryFilters converts command line options into history filters
func parseHistoryFilters(opts *HistoryOptions, now time.Time) types.HistoryFilters {
	filters := types.HistoryFilters{Resource: strings.TrimSpace(opts.Resource)}
	if opts.Since > 0 {
		after := now.Add(-opts.Since)
		filters.AppliedAfter = &after
	}
	return filters
}

func runHistoryCommand(ctx context.Context, opts *HistoryOptions, logger *logrus.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := NewApp(ctx, GetGlobalConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize sphinx: %w", err)
	}
	defer app.Close()

	records, err := app.Service.History(ctx, parseHistoryFilters(opts, time.Now().UTC()))
	if err != nil {
		return err
	}

	output := resolveOutput(opts.Output, app.Config.Output.Format)
	if output != "table" {
		return encodeTo(output, records)
	}

	if len(records) == 0 {
		fmt.Printf("📚 No applied changes recorded.\n")
		return nil
	}
	printHistory(records, opts.ShowIaC)
	return nil
}

func printHistory(records []models.ActionRecord, showIaC bool) {
	fmt.Printf("%-20s  %-36s  %-50s\n", "APPLIED", "RESOURCE", "TITLE")
	fmt.Println(strings.Repeat("-", 110))
	for _, record := range records {
		fmt.Printf("%-20s  %-36s  %-50s\n",
			record.AppliedAt.Local().Format("2006-01-02 15:04:05"),
			truncateString(record.ResourceAddress, 36),
			truncateString(record.OpportunityTitle, 50))
		if showIaC {
			for _, line := range strings.Split(strings.TrimRight(record.AppliedIaCContent, "\n"), "\n") {
				fmt.Printf("      %s\n", line)
			}
			fmt.Println()
		}
	}
	fmt.Printf("\nTotal records: %d\n", len(records))
}
