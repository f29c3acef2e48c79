package sphinx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/sphinx/internal/auth"
	"github.com/Tsahi-Elkayam/sphinx/pkg/backend"
	"github.com/Tsahi-Elkayam/sphinx/pkg/cache"
	"github.com/Tsahi-Elkayam/sphinx/pkg/config"
	"github.com/Tsahi-Elkayam/sphinx/pkg/demo"
	"github.com/Tsahi-Elkayam/sphinx/pkg/iac"
	"github.com/Tsahi-Elkayam/sphinx/pkg/llm"
	"github.com/Tsahi-Elkayam/sphinx/pkg/metrics"
	"github.com/Tsahi-Elkayam/sphinx/pkg/orchestrator"
	"github.com/Tsahi-Elkayam/sphinx/pkg/plugins"
	"github.com/Tsahi-Elkayam/sphinx/pkg/plugins/builtin"
	"github.com/Tsahi-Elkayam/sphinx/pkg/rules"
	"github.com/Tsahi-Elkayam/sphinx/pkg/service"
	"github.com/Tsahi-Elkayam/sphinx/pkg/sources"
	awssource "github.com/Tsahi-Elkayam/sphinx/pkg/sources/aws"
	promsource "github.com/Tsahi-Elkayam/sphinx/pkg/sources/prometheus"
	"github.com/Tsahi-Elkayam/sphinx/pkg/storage"
)

// App holds the components wired from one configuration
type App struct {
	Config    *config.Config
	Service   *service.Service
	Analyzers *plugins.Registry
	Rules     *rules.YAMLRepository
	Sources   *sources.Router
	Metrics   *prometheus.Registry

	closers []func() error
	logger  *logrus.Logger
}

// NewApp wires metric sources, rules, analyzers, enrichment, the Terraform
// adapter and storage into a service
func NewApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}

	app := &App{
		Config:  cfg,
		Metrics: prometheus.NewRegistry(),
		logger:  logger,
	}

	app.Metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := metrics.Register(app.Metrics); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	db, err := storage.NewDB(cfg.Storage.SQLitePath, logger)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, db.Close)

	authenticator := app.authenticate(ctx)
	if cfg.AWS.Enabled && authenticator == nil {
		app.Close()
		return nil, fmt.Errorf("aws inventory is enabled but authentication failed")
	}

	source, err := app.metricSource(ctx, authenticator)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Rules = rules.NewYAMLRepository(cfg.Rules.File, logger)

	app.Analyzers = plugins.NewRegistry(logger)
	if cfg.Plugins.Builtin {
		builtin.Register(app.Analyzers, logger)
	}
	if cfg.Plugins.Dir != "" {
		app.Analyzers.Discover(cfg.Plugins.Dir, plugins.SharedObjectLoader{})
	}

	enricher, generator := app.enrichment(ctx)

	cycle := orchestrator.NewOrchestrator(source, app.Rules, app.Analyzers, enricher, orchestrator.Options{
		Window:                    cfg.Analysis.Window,
		IsolateEnrichmentFailures: cfg.Analysis.IsolateEnrichmentFailures,
	}, logger)

	adapter := iac.NewTerraformAdapter(iac.ExecRunner{}, iac.Options{
		Binary:  cfg.Terraform.Binary,
		TempDir: cfg.Terraform.TempDir,
	}, logger)
	if cfg.Terraform.VerifyBackend {
		if authenticator != nil {
			adapter.WithVerifier(backend.NewS3Verifier(backend.AuthenticatedClients(authenticator), logger))
		} else {
			logger.Warn("Backend verification requested but AWS credentials are unavailable, skipping it")
		}
	}

	var (
		runner     service.CycleRunner    = cycle
		history    service.HistoryStore   = storage.NewHistoryRepository(db)
		workspaces service.WorkspaceStore = storage.NewWorkspaceRepository(db)
	)
	if cfg.Analysis.MockData {
		logger.Warn("Mock data mode: serving demo opportunities, history and workspaces")
		runner = &demo.CycleRunner{}
		history = demo.NewHistoryStore(time.Now().UTC())
		workspaces = demo.NewWorkspaceStore()
	}

	app.Service = service.New(runner, adapter, history, workspaces, cfg.SettingsBackend(), logger)
	if generator != nil {
		app.Service.WithGenerator(generator)
	}

	return app, nil
}

// authenticate returns nil when AWS is not needed or credentials cannot be resolved
func (a *App) authenticate(ctx context.Context) *auth.AWSAuthenticator {
	if !a.Config.AWS.Enabled && !a.Config.Terraform.VerifyBackend {
		return nil
	}

	authenticator := auth.NewAWSAuthenticator(&a.Config.AWS, a.logger)
	if _, err := authenticator.Authenticate(ctx); err != nil {
		a.logger.Errorf("AWS authentication failed: %v", err)
		return nil
	}
	return authenticator
}

// metricSource routes AWS inventory queries to the inventory source and the
// rest to Prometheus, optionally behind the Redis cache
func (a *App) metricSource(ctx context.Context, authenticator *auth.AWSAuthenticator) (orchestrator.MetricSource, error) {
	cfg := a.Config

	var fallback sources.Source
	if cfg.Prometheus.URL != "" {
		prom, err := promsource.NewSource(cfg.Prometheus.URL, cfg.Prometheus.Step, a.logger)
		if err != nil {
			return nil, err
		}
		fallback = prom
	}

	a.Sources = sources.NewRouter(fallback, a.logger)
	if authenticator != nil && cfg.AWS.Enabled {
		inventory := awssource.NewSource(awssource.NewClientFactory(authenticator), cfg.AWS.GetRegions(), a.logger)
		if err := a.Sources.Register(inventory); err != nil {
			return nil, fmt.Errorf("failed to register aws inventory source: %w", err)
		}
	}

	if !cfg.Cache.Enabled {
		return a.Sources, nil
	}

	client, err := cache.NewRedisClient(ctx, cfg.Cache.Address, cfg.Cache.Password, cfg.Cache.DB)
	if err != nil {
		a.logger.Warnf("Running without metric cache: %v", err)
		return a.Sources, nil
	}
	a.closers = append(a.closers, client.Close)
	a.logger.Infof("Connected to Redis at %s", cfg.Cache.Address)

	return cache.NewMetricCache(client, a.Sources, cache.Options{
		TTL:       cfg.Cache.TTL,
		KeyPrefix: cfg.Cache.KeyPrefix,
	}, a.logger), nil
}

// enrichment picks the solution enricher and the free-text generator for the
// configured provider. Gemini without an API key degrades to the static enricher.
func (a *App) enrichment(ctx context.Context) (orchestrator.Enricher, service.Generator) {
	cfg := a.Config.LLM

	switch cfg.Provider {
	case "none":
		return nil, nil
	case "static":
		return llm.NewStaticEnricher(), nil
	}

	client, err := llm.NewGeminiClient(ctx, llm.Options{
		APIKey:   cfg.APIKey,
		Model:    cfg.Model,
		Endpoint: cfg.Endpoint,
		Timeout:  cfg.Timeout,
	}, a.logger)
	if err != nil {
		if errors.Is(err, llm.ErrMissingAPIKey) {
			a.logger.Warn("No Gemini API key configured (GOOGLE_API_KEY), using static suggestions")
		} else {
			a.logger.Errorf("Failed to create Gemini client: %v", err)
		}
		return llm.NewStaticEnricher(), nil
	}
	return client, client
}

// Close releases the database and cache connections
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
