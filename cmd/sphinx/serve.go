package sphinx

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Tsahi-Elkayam/sphinx/pkg/server"
)

// ServeOptions holds options for the serve command
type ServeOptions struct {
	Address string
}

// NewServeCommand creates the serve command
func NewServeCommand(logger *logrus.Logger) *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and Prometheus metrics",
		Long: `Serve the JSON API under /api/v1 together with /healthz and /metrics.

Examples:
  sphinx serve
  sphinx serve --address :9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServeCommand(cmd.Context(), opts, logger)
		},
	}

	cmd.Flags().StringVar(&opts.Address, "address", "", "Listen address (defaults to server.address)")

	return cmd
}

func runServeCommand(ctx context.Context, opts *ServeOptions, logger *logrus.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, GetGlobalConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize sphinx: %w", err)
	}
	defer app.Close()

	serverConfig := app.Config.Server
	if opts.Address != "" {
		serverConfig.Address = opts.Address
	}

	fmt.Printf("🌐 Serving on %s (Ctrl+C to stop)\n", serverConfig.Address)
	return server.New(app.Service, serverConfig, app.Metrics, logger).Run(ctx)
}
