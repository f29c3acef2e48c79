package analysis

import (
	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
)

// Engine evaluates declarative rules against metric series
type Engine struct {
	logger *logrus.Logger
}

// NewEngine creates a new rule evaluation engine
func NewEngine(logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{logger: logger}
}

// Evaluate runs every rule over the metrics and returns one opportunity per
// (rule, metric) pair that fires. Inputs are never mutated.
func (e *Engine) Evaluate(metrics []models.Metric, rules []models.AnalysisRule) []models.OptimizationOpportunity {
	opportunities := make([]models.OptimizationOpportunity, 0)

	for _, rule := range rules {
		for _, metric := range metrics {
			if metric.Name != rule.MetricName {
				continue
			}

			sorted := metric.SortedCopy()
			if !e.fires(sorted, rule) {
				continue
			}

			opportunity := e.buildOpportunity(sorted, rule)
			e.logger.Debugf("Rule %s fired for resource %s", rule.Name, opportunity.ResourceAddress)
			opportunities = append(opportunities, opportunity)
		}
	}

	e.logger.Debugf("Evaluated %d rules over %d metrics: %d opportunities", len(rules), len(metrics), len(opportunities))
	return opportunities
}

// fires expects datapoints sorted by timestamp
func (e *Engine) fires(metric models.Metric, rule models.AnalysisRule) bool {
	if len(metric.DataPoints) == 0 {
		return false
	}

	if metric.Span() < rule.Condition.Duration() {
		e.logger.Debugf("Rule %s: series %s spans %s, need %s", rule.Name, metric.Name, metric.Span(), rule.Condition.Duration())
		return false
	}

	// one violating sample anywhere suppresses the rule
	for _, dp := range metric.DataPoints {
		if !rule.Condition.Operator.Compare(dp.Value, rule.Condition.Threshold) {
			return false
		}
	}

	return true
}

func (e *Engine) buildOpportunity(metric models.Metric, rule models.AnalysisRule) models.OptimizationOpportunity {
	resourceID := metric.ResourceID()

	title := RenderTemplate(rule.OpportunityTitleTemplate, map[string]interface{}{
		PlaceholderResourceID: resourceID,
	})
	description := RenderTemplate(rule.OpportunityDescriptionTemplate, map[string]interface{}{
		PlaceholderResourceID:      resourceID,
		PlaceholderThreshold:       rule.Condition.Threshold * 100,
		PlaceholderDurationMinutes: rule.Condition.DurationMinutes,
	})

	opportunity := models.NewOpportunity(title, description, resourceID, metric)
	opportunity.Source = rule.Name
	return opportunity
}
