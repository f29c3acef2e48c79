package sphinx

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
	"github.com/Tsahi-Elkayam/sphinx/pkg/plugins"
)

// AnalyzersOptions holds options for the analyzers command
type AnalyzersOptions struct {
	Output string
}

// NewAnalyzersCommand creates the analyzers command
func NewAnalyzersCommand(logger *logrus.Logger) *cobra.Command {
	opts := &AnalyzersOptions{}

	cmd := &cobra.Command{
		Use:     "analyzers",
		Aliases: []string{"rules"},
		Short:   "List the loaded rules and analyzers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyzersCommand(cmd.Context(), opts, logger)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Output format (table,json,yaml)")

	return cmd
}

func runAnalyzersCommand(ctx context.Context, opts *AnalyzersOptions, logger *logrus.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := NewApp(ctx, GetGlobalConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize sphinx: %w", err)
	}
	defer app.Close()

	rules := app.Rules.LoadAll()
	analyzers := app.Analyzers.Info()

	output := resolveOutput(opts.Output, app.Config.Output.Format)
	if output != "table" {
		return encodeTo(output, map[string]interface{}{
			"rules_file": app.Rules.Path(),
			"rules":      rules,
			"analyzers":  analyzers,
		})
	}

	printRules(app.Rules.Path(), rules)
	printAnalyzers(analyzers)
	return nil
}

func printRules(path string, rules []models.AnalysisRule) {
	fmt.Printf("📜 Rules (%s): %d\n", path, len(rules))
	for _, rule := range rules {
		fmt.Printf("   • %-40s %s %s %g for %dm\n",
			truncateString(rule.Name, 40), rule.MetricName, rule.Condition.Operator,
			rule.Condition.Threshold, rule.Condition.DurationMinutes)
	}
	fmt.Println()
}

func printAnalyzers(analyzers []plugins.AnalyzerInfo) {
	fmt.Printf("🧩 Analyzers: %d\n", len(analyzers))
	for _, analyzer := range analyzers {
		fmt.Printf("   • %-40s by %s (%s)\n", truncateString(analyzer.Name, 40), analyzer.Author, analyzer.Origin)
		if len(analyzer.Queries) > 0 {
			fmt.Printf("     queries: %s\n", strings.Join(analyzer.Queries, ", "))
		}
	}
}
