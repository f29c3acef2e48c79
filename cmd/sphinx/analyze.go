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

// AnalyzeOptions holds options for the analyze command
type AnalyzeOptions struct {
	Sources    []string
	Resources  []string
	Search     string
	Output     string
	NoHeader   bool
	NoTruncate bool
	ShowIaC    bool
}

// NewAnalyzeCommand creates the analyze command
func NewAnalyzeCommand(logger *logrus.Logger) *cobra.Command {
	opts := &AnalyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run one analysis cycle and list optimization opportunities",
		Long: `Run one analysis cycle: load the YAML rules and analyzers, fetch the
metrics they need over the analysis window, evaluate them and enrich every
opportunity with a suggested Terraform file.

Examples:
  # Everything the cycle found
  sphinx analyze

  # Only gp2 volumes, with the suggested Terraform
  sphinx analyze --source "EBS gp2 to gp3 Migration" --show-iac

  # Opportunities for one resource, as JSON
  sphinx analyze --resource vol-0abc123 --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyzeCommand(cmd.Context(), opts, logger)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Sources, "source", "s", []string{},
		"Only opportunities from these rules or analyzers (comma-separated)")
	cmd.Flags().StringSliceVarP(&opts.Resources, "resource", "r", []string{},
		"Only opportunities for these resources (comma-separated)")
	cmd.Flags().StringVar(&opts.Search, "search", "",
		"Only opportunities whose title or description contains this text")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "",
		"Output format (table,json,yaml); defaults to output.format")
	cmd.Flags().BoolVar(&opts.NoHeader, "no-header", false,
		"Don't print column headers")
	cmd.Flags().BoolVar(&opts.NoTruncate, "no-truncate", false,
		"Don't truncate long titles and resource names")
	cmd.Flags().BoolVar(&opts.ShowIaC, "show-iac", false,
		"Print the suggested IaC file under each opportunity")

	return cmd
}

// runAnalyzeCommand executes the analyze command
func runAnalyzeCommand(ctx context.Context, opts *AnalyzeOptions, logger *logrus.Logger) error {
	cfg := GetGlobalConfig()
	if cfg == nil {
		return fmt.Errorf("configuration not loaded")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize sphinx: %w", err)
	}
	defer app.Close()

	filters := parseAnalyzeFilters(opts)
	logger.Debugf("Using filters: %+v", filters)

	output := resolveOutput(opts.Output, cfg.Output.Format)
	if output == "table" {
		fmt.Printf("🔍 Running analysis cycle (%d rules, %d analyzers)...\n", len(app.Rules.LoadAll()), app.Analyzers.Count())
	}

	opportunities, err := app.Service.Analyze(ctx, filters)
	if err != nil {
		return err
	}

	if output == "table" && len(opportunities) == 0 {
		fmt.Printf("\n✅ No optimization opportunities found.\n")
		if !filters.IsEmpty() {
			fmt.Printf("💡 Try removing --source, --resource or --search to see everything the cycle found\n")
		}
		return nil
	}

	return outputOpportunities(opportunities, opts, output)
}

// parseAnalyzeFilters converts command line options into opportunity filters
func parseAnalyzeFilters(opts *AnalyzeOptions) types.OpportunityFilters {
	return types.OpportunityFilters{
		Sources:   opts.Sources,
		Resources: opts.Resources,
		Search:    strings.TrimSpace(opts.Search),
	}
}

// resolveOutput returns the flag value when set, else the configured format
func resolveOutput(flag, configured string) string {
	format := strings.ToLower(flag)
	if format == "" {
		format = strings.ToLower(configured)
	}
	switch format {
	case "json", "yaml":
		return format
	default:
		return "table"
	}
}

func outputOpportunities(opportunities []models.OptimizationOpportunity, opts *AnalyzeOptions, output string) error {
	if output != "table" {
		return encodeTo(output, map[string]interface{}{
			"opportunities": opportunities,
			"total":         len(opportunities),
			"timestamp":     time.Now().UTC().Format(time.RFC3339),
		})
	}
	return outputOpportunityTable(opportunities, opts)
}

// outputOpportunityTable prints opportunities as a table
func outputOpportunityTable(opportunities []models.OptimizationOpportunity, opts *AnalyzeOptions) error {
	idWidth, sourceWidth, resourceWidth, titleWidth := 8, 28, 30, 50
	rowFormat := fmt.Sprintf("%%-%ds  %%-%ds  %%-%ds  %%-%ds  %%s\n", idWidth, sourceWidth, resourceWidth, titleWidth)

	fmt.Printf("\n")
	if !opts.NoHeader {
		fmt.Printf(rowFormat, "ID", "SOURCE", "RESOURCE", "TITLE", "IAC")
		fmt.Println(strings.Repeat("-", idWidth+sourceWidth+resourceWidth+titleWidth+13))
	}

	for _, opportunity := range opportunities {
		source, resource, title := opportunity.Source, opportunity.ResourceAddress, opportunity.Title
		if !opts.NoTruncate {
			source = truncateString(source, sourceWidth)
			resource = truncateString(resource, resourceWidth)
			title = truncateString(title, titleWidth)
		}

		iacStatus := "-"
		if opportunity.IsEnriched() {
			iacStatus = "✅"
		}
		fmt.Printf(rowFormat, opportunity.ID.String()[:idWidth], source, resource, title, iacStatus)

		if opts.ShowIaC && opportunity.IsEnriched() {
			printSuggestedChange(opportunity.SuggestedChange)
		}
	}

	fmt.Printf("\nTotal opportunities: %d\n", len(opportunities))
	if !opts.ShowIaC {
		fmt.Printf("\n💡 Tip: Use --show-iac to print the suggested Terraform, or --output json for full ids\n")
	}

	return nil
}

func printSuggestedChange(change *models.SuggestedChange) {
	fmt.Printf("\n   📝 %s\n", change.ImpactAssessment)
	fmt.Printf("   📄 %s\n", change.SuggestedIaCFile.Filename)
	for _, line := range strings.Split(strings.TrimRight(change.SuggestedIaCFile.Content, "\n"), "\n") {
		fmt.Printf("      %s\n", line)
	}
	fmt.Printf("\n")
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
