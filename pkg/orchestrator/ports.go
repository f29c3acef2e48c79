package orchestrator

import (
	"context"
	"time"

	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
	"github.com/Tsahi-Elkayam/sphinx/pkg/plugins"
)

// MetricSource returns the series matching a query over a time window
type MetricSource interface {
	Fetch(ctx context.Context, query string, start, end time.Time) ([]models.Metric, error)
}

// RuleSource returns the declarative analysis rules
type RuleSource interface {
	LoadAll() []models.AnalysisRule
}

// AnalyzerSource returns the loaded programmatic analyzers
type AnalyzerSource interface {
	Analyzers() []plugins.Analyzer
}

// Enricher proposes a code change for an opportunity
type Enricher interface {
	Propose(ctx context.Context, opportunity models.OptimizationOpportunity) (models.SuggestedChange, error)
}

// RuleEvaluator turns metrics and rules into opportunities
type RuleEvaluator interface {
	Evaluate(metrics []models.Metric, rules []models.AnalysisRule) []models.OptimizationOpportunity
}
