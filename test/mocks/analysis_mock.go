package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
	"github.com/Tsahi-Elkayam/sphinx/pkg/plugins"
)

// ErrMetricNotFound is returned when a query has no registered series
var ErrMetricNotFound = fmt.Errorf("metric not found")

// FetchCall records one Fetch invocation
type FetchCall struct {
	Query string
	Start time.Time
	End   time.Time
}

// MockMetricSource implements the metric source port for testing
type MockMetricSource struct {
	mu     sync.Mutex
	series map[string][]models.Metric
	errors map[string]error
	calls  []FetchCall
}

// NewMockMetricSource creates a new mock metric source
func NewMockMetricSource() *MockMetricSource {
	return &MockMetricSource{
		series: make(map[string][]models.Metric),
		errors: make(map[string]error),
	}
}

// AddMetric adds a series returned for query
func (m *MockMetricSource) AddMetric(query string, metric models.Metric) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[query] = append(m.series[query], metric)
}

// SetError sets an error for a specific query
func (m *MockMetricSource) SetError(query string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[query] = err
}

// Calls returns the recorded Fetch invocations
func (m *MockMetricSource) Calls() []FetchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]FetchCall(nil), m.calls...)
}

func (m *MockMetricSource) Fetch(ctx context.Context, query string, start, end time.Time) ([]models.Metric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, FetchCall{Query: query, Start: start, End: end})
	if err, exists := m.errors[query]; exists {
		return nil, err
	}
	return append([]models.Metric(nil), m.series[query]...), nil
}

// MockRuleSource implements the rule source port for testing
type MockRuleSource struct {
	Rules []models.AnalysisRule
	Loads int
}

// NewMockRuleSource creates a rule source returning rules
func NewMockRuleSource(rules ...models.AnalysisRule) *MockRuleSource {
	return &MockRuleSource{Rules: rules}
}

func (m *MockRuleSource) LoadAll() []models.AnalysisRule {
	m.Loads++
	return m.Rules
}

// MockAnalyzer implements plugins.Analyzer for testing
type MockAnalyzer struct {
	AnalyzerName  string
	Opportunities []models.OptimizationOpportunity
	QueryList     []string
	Seen          [][]models.Metric
}

// NewMockAnalyzer creates an analyzer returning opportunities
func NewMockAnalyzer(name string, opportunities ...models.OptimizationOpportunity) *MockAnalyzer {
	return &MockAnalyzer{AnalyzerName: name, Opportunities: opportunities}
}

func (m *MockAnalyzer) Name() string   { return m.AnalyzerName }
func (m *MockAnalyzer) Author() string { return "mock" }

func (m *MockAnalyzer) Analyze(metrics []models.Metric) []models.OptimizationOpportunity {
	m.Seen = append(m.Seen, metrics)
	return append([]models.OptimizationOpportunity(nil), m.Opportunities...)
}

// QueryingAnalyzer is a MockAnalyzer that declares its own queries
type QueryingAnalyzer struct {
	*MockAnalyzer
}

func (q QueryingAnalyzer) Queries() []string { return q.QueryList }

// MockAnalyzerSource implements the analyzer source port for testing
type MockAnalyzerSource struct {
	List []plugins.Analyzer
}

func (m *MockAnalyzerSource) Analyzers() []plugins.Analyzer {
	return m.List
}

// MockEnricher implements the enrichment port for testing
type MockEnricher struct {
	mu       sync.Mutex
	errors   map[string]error
	proposed []models.OptimizationOpportunity
}

// NewMockEnricher creates a new mock enricher
func NewMockEnricher() *MockEnricher {
	return &MockEnricher{errors: make(map[string]error)}
}

// SetError makes Propose fail for the opportunity with the given title
func (m *MockEnricher) SetError(title string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[title] = err
}

// Proposed returns the opportunities passed to Propose, in call order
func (m *MockEnricher) Proposed() []models.OptimizationOpportunity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.OptimizationOpportunity(nil), m.proposed...)
}

func (m *MockEnricher) Propose(ctx context.Context, opportunity models.OptimizationOpportunity) (models.SuggestedChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.proposed = append(m.proposed, opportunity)
	if err, exists := m.errors[opportunity.Title]; exists {
		return models.SuggestedChange{}, err
	}
	return CreateMockSuggestedChange(opportunity.ResourceAddress), nil
}

// Helper functions for testing

// CreateMockSeries creates a series of evenly spaced samples ending at end
func CreateMockSeries(name, job string, end time.Time, step time.Duration, values ...float64) models.Metric {
	points := make([]models.DataPoint, 0, len(values))
	start := end.Add(-time.Duration(len(values)-1) * step)
	for i, v := range values {
		points = append(points, models.DataPoint{Timestamp: start.Add(time.Duration(i) * step), Value: v})
	}
	return models.NewMetric(name, map[string]string{models.LabelJob: job, models.LabelName: name}, points...)
}

// CreateMockRule creates a rule on metricName
func CreateMockRule(name, metricName string, op models.Operator, threshold float64, minutes int) models.AnalysisRule {
	return models.AnalysisRule{
		Name:       name,
		MetricName: metricName,
		Condition: models.RuleCondition{
			Operator:        op,
			Threshold:       threshold,
			DurationMinutes: minutes,
		},
		OpportunityTitleTemplate:       name + " on {resource_id}",
		OpportunityDescriptionTemplate: "{resource_id} crossed {threshold}% for {duration_minutes} minutes",
	}
}

// CreateMockSuggestedChange creates a suggested change for a resource
func CreateMockSuggestedChange(resource string) models.SuggestedChange {
	return models.SuggestedChange{
		ImpactAssessment: "Lower cost for " + resource,
		SuggestedIaCFile: models.NewIaCFile("main.tf", fmt.Sprintf("# %s\n", resource)),
	}
}
