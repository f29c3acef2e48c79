package sphinx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
	"github.com/Tsahi-Elkayam/sphinx/pkg/service"
)

// IaCOptions holds options shared by the plan and apply commands
type IaCOptions struct {
	Workspace       string
	Output          string
	OpportunityID   string
	Title           string
	ResourceAddress string
}

// NewPlanCommand creates the plan command
func NewPlanCommand(logger *logrus.Logger) *cobra.Command {
	opts := &IaCOptions{}

	cmd := &cobra.Command{
		Use:   "plan <file>",
		Short: "Preview the changes a Terraform file would make",
		Long: `Run terraform init and plan for a single Terraform file in a throwaway workspace.

The remote state backend is the selected workspace's, else the terraform.backend
settings when bucket, key and region are all set, else none (local state).

Examples:
  sphinx plan main.tf
  sphinx plan main.tf --workspace prod
  sphinx plan main.tf --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlanCommand(cmd.Context(), args[0], opts, logger)
		},
	}

	cmd.Flags().StringVarP(&opts.Workspace, "workspace", "w", "", "Workspace whose backend holds the state")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Output format (table,json,yaml)")

	return cmd
}

// NewApplyCommand creates the apply command
func NewApplyCommand(logger *logrus.Logger) *cobra.Command {
	opts := &IaCOptions{}

	cmd := &cobra.Command{
		Use:   "apply <file>",
		Short: "Apply a Terraform file and record it in the history",
		Long: `Run terraform init and apply -auto-approve for a single Terraform file.

When --opportunity-id or --title is given, a successful apply is recorded in the
action history. An opportunity id from the current run fills in the title and
resource automatically.

Examples:
  sphinx apply main.tf --title "Migrate vol-0abc123 to gp3" --resource aws_ebs_volume.data
  sphinx apply main.tf --workspace prod --opportunity-id 6f1c...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApplyCommand(cmd.Context(), args[0], opts, logger)
		},
	}

	cmd.Flags().StringVarP(&opts.Workspace, "workspace", "w", "", "Workspace whose backend holds the state")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Output format (table,json,yaml)")
	cmd.Flags().StringVar(&opts.OpportunityID, "opportunity-id", "", "Opportunity this apply resolves")
	cmd.Flags().StringVar(&opts.Title, "title", "", "Title recorded in the history")
	cmd.Flags().StringVar(&opts.ResourceAddress, "resource", "", "Resource address recorded in the history")

	return cmd
}

// readIaCFile loads a Terraform file from disk
func readIaCFile(path string) (models.IaCFile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return models.IaCFile{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return models.NewIaCFile(filepath.Base(path), string(content)), nil
}

func runPlanCommand(ctx context.Context, path string, opts *IaCOptions, logger *logrus.Logger) error {
	file, err := readIaCFile(path)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := NewApp(ctx, GetGlobalConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize sphinx: %w", err)
	}
	defer app.Close()

	output := resolveOutput(opts.Output, app.Config.Output.Format)
	if output == "table" {
		fmt.Printf("🏗️  Planning %s...\n", file.Filename)
	}

	plan, err := app.Service.Plan(ctx, file, opts.Workspace)
	if err != nil {
		return err
	}

	if output != "table" {
		return encodeTo(output, plan)
	}
	printPlan(plan)
	if plan.Failed() {
		return fmt.Errorf("plan failed")
	}
	return nil
}

func runApplyCommand(ctx context.Context, path string, opts *IaCOptions, logger *logrus.Logger) error {
	file, err := readIaCFile(path)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := NewApp(ctx, GetGlobalConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize sphinx: %w", err)
	}
	defer app.Close()

	output := resolveOutput(opts.Output, app.Config.Output.Format)
	if output == "table" {
		fmt.Printf("🚀 Applying %s...\n", file.Filename)
	}

	result, err := app.Service.Apply(ctx, service.ApplyRequest{
		File:            file,
		Workspace:       opts.Workspace,
		OpportunityID:   opts.OpportunityID,
		Title:           opts.Title,
		ResourceAddress: opts.ResourceAddress,
	})
	if err != nil {
		return err
	}

	if output != "table" {
		return encodeTo(output, result)
	}

	if !result.Success {
		fmt.Printf("\n❌ Apply failed:\n%s\n", result.RawOutput)
		return fmt.Errorf("apply failed")
	}
	fmt.Printf("\n%s\n✅ Apply complete\n", result.RawOutput)
	if opts.OpportunityID != "" || opts.Title != "" {
		fmt.Printf("📚 Recorded in history (sphinx history)\n")
	}
	return nil
}

// printPlan prints a plan summary followed by its changes
func printPlan(plan models.ExecutionPlan) {
	switch plan.Status {
	case models.PlanError:
		fmt.Printf("\n❌ Plan failed:\n%s\n", plan.RawOutput)
		return
	case models.PlanNoChanges:
		fmt.Printf("\n✅ No changes. Infrastructure matches the configuration.\n")
		return
	}

	fmt.Printf("\n📋 %d resource change(s):\n", len(plan.Changes))
	for _, change := range plan.Changes {
		fmt.Printf("   %s %-8s %s\n", actionIcon(change.Action), change.Action, change.Address)
	}
	fmt.Printf("\n💡 Run 'sphinx apply' with the same file to make these changes\n")
}

func actionIcon(action models.ChangeAction) string {
	switch action {
	case models.ActionCreate:
		return "➕"
	case models.ActionDelete:
		return "➖"
	case models.ActionReplace:
		return "🔁"
	case models.ActionUpdate:
		return "✏️ "
	default:
		return "• "
	}
}
