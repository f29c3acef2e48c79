package sphinx

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
)

// WorkspaceOptions holds options for the workspace commands
type WorkspaceOptions struct {
	Bucket string
	Key    string
	Region string
	Output string
}

// NewWorkspaceCommand creates the workspace command
func NewWorkspaceCommand(logger *logrus.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Manage named remote-state backends",
		Long:  "Workspaces name an S3 remote-state backend that plan and apply can target with --workspace.",
	}

	cmd.AddCommand(newWorkspaceAddCommand(logger))
	cmd.AddCommand(newWorkspaceListCommand(logger))

	return cmd
}

func newWorkspaceAddCommand(logger *logrus.Logger) *cobra.Command {
	opts := &WorkspaceOptions{}

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a workspace",
		Example: `  sphinx workspace add prod --bucket my-tf-state --key prod/terraform.tfstate --region us-east-1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkspaceAddCommand(cmd.Context(), args[0], opts, logger)
		},
	}

	cmd.Flags().StringVar(&opts.Bucket, "bucket", "", "S3 bucket holding the state")
	cmd.Flags().StringVar(&opts.Key, "key", "", "State object key")
	cmd.Flags().StringVar(&opts.Region, "region", "", "Bucket region")
	_ = cmd.MarkFlagRequired("bucket")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("region")

	return cmd
}

func newWorkspaceListCommand(logger *logrus.Logger) *cobra.Command {
	opts := &WorkspaceOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workspaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkspaceListCommand(cmd.Context(), opts, logger)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Output format (table,json,yaml)")

	return cmd
}

func runWorkspaceAddCommand(ctx context.Context, name string, opts *WorkspaceOptions, logger *logrus.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := NewApp(ctx, GetGlobalConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize sphinx: %w", err)
	}
	defer app.Close()

	workspace, err := app.Service.AddWorkspace(ctx, name, models.BackendDescriptor{
		Bucket: strings.TrimSpace(opts.Bucket),
		Key:    strings.TrimSpace(opts.Key),
		Region: strings.TrimSpace(opts.Region),
	})
	if err != nil {
		return err
	}

	fmt.Printf("✅ Workspace %s created (s3://%s/%s in %s)\n",
		workspace.Name, workspace.Backend.Bucket, workspace.Backend.Key, workspace.Backend.Region)
	return nil
}

func runWorkspaceListCommand(ctx context.Context, opts *WorkspaceOptions, logger *logrus.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := NewApp(ctx, GetGlobalConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize sphinx: %w", err)
	}
	defer app.Close()

	workspaces, err := app.Service.Workspaces(ctx)
	if err != nil {
		return err
	}

	output := resolveOutput(opts.Output, app.Config.Output.Format)
	if output != "table" {
		return encodeTo(output, workspaces)
	}

	if len(workspaces) == 0 {
		fmt.Printf("No workspaces yet.\n")
		fmt.Printf("💡 Add one with: sphinx workspace add <name> --bucket ... --key ... --region ...\n")
		return nil
	}

	fmt.Printf("%-20s  %-30s  %-40s  %s\n", "NAME", "BUCKET", "KEY", "REGION")
	fmt.Println(strings.Repeat("-", 106))
	for _, workspace := range workspaces {
		fmt.Printf("%-20s  %-30s  %-40s  %s\n",
			truncateString(workspace.Name, 20),
			truncateString(workspace.Backend.Bucket, 30),
			truncateString(workspace.Backend.Key, 40),
			workspace.Backend.Region)
	}
	fmt.Printf("\nTotal workspaces: %d\n", len(workspaces))
	return nil
}
