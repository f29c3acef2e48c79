package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/sphinx/pkg/analysis"
	"github.com/Tsahi-Elkayam/sphinx/pkg/metrics"
	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
	"github.com/Tsahi-Elkayam/sphinx/pkg/plugins"
)

// DefaultWindow is the trailing window fetched for every query
const DefaultWindow = 15 * time.Minute

// Options tunes an orchestrator
type Options struct {
	// Window is the trailing fetch window; zero means DefaultWindow
	Window time.Duration

	// IsolateEnrichmentFailures keeps an opportunity unenriched when its
	// enrichment fails instead of aborting the cycle
	IsolateEnrichmentFailures bool

	// Now overrides the clock
	Now func() time.Time
}

// Orchestrator runs analysis cycles
type Orchestrator struct {
	metrics   MetricSource
	rules     RuleSource
	analyzers AnalyzerSource
	enricher  Enricher
	engine    RuleEvaluator
	opts      Options
	logger    *logrus.Logger
}

// NewOrchestrator creates a new orchestrator. A nil enricher disables enrichment.
func NewOrchestrator(source MetricSource, rules RuleSource, analyzers AnalyzerSource, enricher Enricher, opts Options, logger *logrus.Logger) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		metrics:   source,
		rules:     rules,
		analyzers: analyzers,
		enricher:  enricher,
		engine:    analysis.NewEngine(logger),
		opts:      opts,
		logger:    logger,
	}
}

// WithEvaluator replaces the rule evaluation engine
func (o *Orchestrator) WithEvaluator(engine RuleEvaluator) *Orchestrator {
	o.engine = engine
	return o
}

// RunCycle runs one analysis cycle. Metric fetch and enrichment errors abort
// the cycle; no partial list is returned.
func (o *Orchestrator) RunCycle(ctx context.Context) ([]models.OptimizationOpportunity, error) {
	start := time.Now()

	opportunities, err := o.runCycle(ctx)
	if err != nil {
		metrics.ObserveCycle(time.Since(start), metrics.OutcomeError)
		return nil, err
	}

	metrics.ObserveCycle(time.Since(start), metrics.OutcomeSuccess)
	return opportunities, nil
}

func (o *Orchestrator) runCycle(ctx context.Context) ([]models.OptimizationOpportunity, error) {
	rules := o.loadRules()
	analyzers := o.loadAnalyzers()

	if len(rules) == 0 && len(analyzers) == 0 {
		o.logger.Info("No rules or analyzers loaded, skipping analysis")
		return []models.OptimizationOpportunity{}, nil
	}

	queries := CollectQueries(rules, analyzers)

	end := o.opts.Now()
	begin := end.Add(-o.opts.Window)

	working := make([]models.Metric, 0)
	for _, query := range queries {
		o.logger.Debugf("Fetching metrics for %q", query)
		fetched, err := o.metrics.Fetch(ctx, query, begin, end)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch metrics for %q: %w", query, err)
		}
		working = append(working, fetched...)
	}
	o.logger.Infof("Fetched %d series for %d queries", len(working), len(queries))

	opportunities := o.engine.Evaluate(working, rules)
	metrics.ObserveOpportunities("rule", len(opportunities))

	for _, analyzer := range analyzers {
		found := o.runAnalyzer(analyzer, working)
		metrics.ObserveOpportunities("analyzer", len(found))
		opportunities = append(opportunities, found...)
	}

	if err := o.enrich(ctx, opportunities); err != nil {
		return nil, err
	}

	o.logger.Infof("Analysis cycle found %d opportunities", len(opportunities))
	return opportunities, nil
}

func (o *Orchestrator) loadRules() []models.AnalysisRule {
	if o.rules == nil {
		return nil
	}
	return o.rules.LoadAll()
}

func (o *Orchestrator) loadAnalyzers() []plugins.Analyzer {
	if o.analyzers == nil {
		return nil
	}
	return o.analyzers.Analyzers()
}

func (o *Orchestrator) runAnalyzer(analyzer plugins.Analyzer, working []models.Metric) (found []models.OptimizationOpportunity) {
	defer func() {
		if rec := recover(); rec != nil {
			o.logger.Errorf("Analyzer %s panicked: %v", analyzer.Name(), rec)
			found = nil
		}
	}()

	found = analyzer.Analyze(working)
	for i := range found {
		if found[i].Source == "" {
			found[i].Source = analyzer.Name()
		}
	}
	o.logger.Debugf("Analyzer %s found %d opportunities", analyzer.Name(), len(found))
	return found
}

// enrich calls the enricher once per opportunity, in order
func (o *Orchestrator) enrich(ctx context.Context, opportunities []models.OptimizationOpportunity) error {
	if o.enricher == nil {
		return nil
	}

	for i := range opportunities {
		change, err := o.enricher.Propose(ctx, opportunities[i])
		if err != nil {
			if o.opts.IsolateEnrichmentFailures {
				o.logger.WithError(err).Warnf("Failed to enrich opportunity %s, keeping it without a suggestion", opportunities[i].ID)
				continue
			}
			return fmt.Errorf("failed to enrich opportunity %s: %w", opportunities[i].ID, err)
		}
		opportunities[i].SuggestedChange = &change
	}

	return nil
}

// CollectQueries returns the distinct metric queries of the rules, followed by
// any queries declared by analyzers, in first-seen order.
func CollectQueries(rules []models.AnalysisRule, analyzers []plugins.Analyzer) []string {
	seen := make(map[string]bool)
	queries := make([]string, 0, len(rules))

	add := func(query string) {
		if query == "" || seen[query] {
			return
		}
		seen[query] = true
		queries = append(queries, query)
	}

	for _, rule := range rules {
		add(rule.MetricName)
	}
	for _, analyzer := range analyzers {
		if qp, ok := analyzer.(plugins.QueryProvider); ok {
			for _, query := range qp.Queries() {
				add(query)
			}
		}
	}

	return queries
}
