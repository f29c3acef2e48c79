package sphinx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Tsahi-Elkayam/sphinx/pkg/service"
)

// GenerateOptions holds options for the generate command
type GenerateOptions struct {
	Out string
}

// NewGenerateCommand creates the generate command
func NewGenerateCommand(logger *logrus.Logger) *cobra.Command {
	opts := &GenerateOptions{}

	cmd := &cobra.Command{
		Use:   "generate <request...>",
		Short: "Generate a Terraform file from a free-text request",
		Long: `Ask the configured model for a complete Terraform file.

Requires llm.provider=gemini and an API key (GOOGLE_API_KEY).

Examples:
  sphinx generate "an encrypted S3 bucket with versioning"
  sphinx generate "a t3.micro instance in us-east-1" --out main.tf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateCommand(cmd.Context(), strings.Join(args, " "), opts, logger)
		},
	}

	cmd.Flags().StringVar(&opts.Out, "out", "", "Write the generated file here instead of stdout")

	return cmd
}

func runGenerateCommand(ctx context.Context, request string, opts *GenerateOptions, logger *logrus.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := NewApp(ctx, GetGlobalConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize sphinx: %w", err)
	}
	defer app.Close()

	file, err := app.Service.Generate(ctx, request)
	if errors.Is(err, service.ErrGeneratorUnavailable) {
		return fmt.Errorf("%w: set llm.provider to gemini and GOOGLE_API_KEY", err)
	}
	if err != nil {
		return err
	}

	if opts.Out == "" {
		fmt.Print(file.Content)
		if !strings.HasSuffix(file.Content, "\n") {
			fmt.Println()
		}
		return nil
	}

	if err := os.WriteFile(opts.Out, []byte(file.Content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", opts.Out, err)
	}
	fmt.Printf("✅ Wrote %s\n", opts.Out)
	fmt.Printf("💡 Preview it with: sphinx plan %s\n", opts.Out)
	return nil
}
