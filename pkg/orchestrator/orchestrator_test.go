package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
	"github.com/Tsahi-Elkayam/sphinx/pkg/plugins"
	"github.com/Tsahi-Elkayam/sphinx/test/mocks"
)

var fixedNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestOrchestrator(source MetricSource, rules RuleSource, analyzers []plugins.Analyzer, enricher Enricher, opts Options) *Orchestrator {
	opts.Now = func() time.Time { return fixedNow }
	return NewOrchestrator(source, rules, &mocks.MockAnalyzerSource{List: analyzers}, enricher, opts, logrus.New())
}

func TestRunCycleShortCircuitsWithoutRulesOrAnalyzers(t *testing.T) {
	source := mocks.NewMockMetricSource()
	enricher := mocks.NewMockEnricher()

	got, err := newTestOrchestrator(source, mocks.NewMockRuleSource(), nil, enricher, Options{}).RunCycle(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Empty(t, source.Calls())
	assert.Empty(t, enricher.Proposed())
}

func TestRunCycleFetchesDistinctQueriesOverWindow(t *testing.T) {
	source := mocks.NewMockMetricSource()
	rules := mocks.NewMockRuleSource(
		mocks.CreateMockRule("idle", "cpu", models.OperatorLessThan, 0.1, 10),
		mocks.CreateMockRule("very-idle", "cpu", models.OperatorLessThan, 0.05, 10),
		mocks.CreateMockRule("memory", "mem", models.OperatorGreaterThan, 0.9, 10),
	)

	_, err := newTestOrchestrator(source, rules, nil, nil, Options{}).RunCycle(context.Background())
	require.NoError(t, err)

	calls := source.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "cpu", calls[0].Query)
	assert.Equal(t, "mem", calls[1].Query)
	assert.Equal(t, fixedNow, calls[0].End)
	assert.Equal(t, fixedNow.Add(-15*time.Minute), calls[0].Start)
}

func TestRunCycleCombinesRulesAndAnalyzersAndEnriches(t *testing.T) {
	source := mocks.NewMockMetricSource()
	source.AddMetric("cpu", mocks.CreateMockSeries("cpu", "api", fixedNow, 5*time.Minute, 0.01, 0.02, 0.03))

	analyzer := mocks.NewMockAnalyzer("mock", models.NewOpportunity("from analyzer", "d", "vol-1"))
	enricher := mocks.NewMockEnricher()

	rules := mocks.NewMockRuleSource(mocks.CreateMockRule("idle", "cpu", models.OperatorLessThan, 0.1, 10))
	got, err := newTestOrchestrator(source, rules, []plugins.Analyzer{analyzer}, enricher, Options{}).RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "idle on api", got[0].Title)
	assert.Equal(t, "idle", got[0].Source)
	assert.Equal(t, "from analyzer", got[1].Title)
	assert.Equal(t, "mock", got[1].Source)

	for _, opportunity := range got {
		require.NotNil(t, opportunity.SuggestedChange)
		assert.Equal(t, "main.tf", opportunity.SuggestedChange.SuggestedIaCFile.Filename)
	}

	// analyzers see the full fetched set
	require.Len(t, analyzer.Seen, 1)
	assert.Len(t, analyzer.Seen[0], 1)

	proposed := enricher.Proposed()
	require.Len(t, proposed, 2)
	assert.Equal(t, got[0].ID, proposed[0].ID)
	assert.Equal(t, got[1].ID, proposed[1].ID)
}

func TestRunCycleAnalyzersOnlyStillRuns(t *testing.T) {
	source := mocks.NewMockMetricSource()
	analyzer := mocks.NewMockAnalyzer("mock", models.NewOpportunity("t", "d", "r"))

	got, err := newTestOrchestrator(source, mocks.NewMockRuleSource(), []plugins.Analyzer{analyzer}, nil, Options{}).RunCycle(context.Background())
	require.NoError(t, err)

	assert.Len(t, got, 1)
	assert.Empty(t, source.Calls())
	assert.Nil(t, got[0].SuggestedChange)
}

func TestRunCycleFetchesAnalyzerQueries(t *testing.T) {
	source := mocks.NewMockMetricSource()
	analyzer := mocks.QueryingAnalyzer{MockAnalyzer: mocks.NewMockAnalyzer("querying")}
	analyzer.QueryList = []string{"aws_ebs_volume_info", "cpu"}

	rules := mocks.NewMockRuleSource(mocks.CreateMockRule("idle", "cpu", models.OperatorLessThan, 0.1, 10))
	_, err := newTestOrchestrator(source, rules, []plugins.Analyzer{analyzer}, nil, Options{}).RunCycle(context.Background())
	require.NoError(t, err)

	calls := source.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "cpu", calls[0].Query)
	assert.Equal(t, "aws_ebs_volume_info", calls[1].Query)
}

func TestRunCyclePropagatesFetchError(t *testing.T) {
	source := mocks.NewMockMetricSource()
	source.SetError("cpu", errors.New("prometheus unreachable"))
	rules := mocks.NewMockRuleSource(mocks.CreateMockRule("idle", "cpu", models.OperatorLessThan, 0.1, 10))

	got, err := newTestOrchestrator(source, rules, nil, nil, Options{}).RunCycle(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "prometheus unreachable")
	assert.Nil(t, got)
}

func TestRunCycleEnrichmentFailure(t *testing.T) {
	build := func() (*mocks.MockMetricSource, *mocks.MockEnricher, []plugins.Analyzer) {
		source := mocks.NewMockMetricSource()
		enricher := mocks.NewMockEnricher()
		enricher.SetError("first", errors.New("quota exceeded"))
		analyzer := mocks.NewMockAnalyzer("mock",
			models.NewOpportunity("first", "d", "a"),
			models.NewOpportunity("second", "d", "b"),
		)
		return source, enricher, []plugins.Analyzer{analyzer}
	}

	t.Run("propagates by default", func(t *testing.T) {
		source, enricher, analyzers := build()
		got, err := newTestOrchestrator(source, mocks.NewMockRuleSource(), analyzers, enricher, Options{}).RunCycle(context.Background())

		require.Error(t, err)
		assert.Nil(t, got)
		assert.Len(t, enricher.Proposed(), 1)
	})

	t.Run("isolated when enabled", func(t *testing.T) {
		source, enricher, analyzers := build()
		opts := Options{IsolateEnrichmentFailures: true}
		got, err := newTestOrchestrator(source, mocks.NewMockRuleSource(), analyzers, enricher, opts).RunCycle(context.Background())

		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Nil(t, got[0].SuggestedChange)
		assert.NotNil(t, got[1].SuggestedChange)
	})
}

type panickingAnalyzer struct{}

func (panickingAnalyzer) Name() string   { return "panics" }
func (panickingAnalyzer) Author() string { return "tests" }
func (panickingAnalyzer) Analyze([]models.Metric) []models.OptimizationOpportunity {
	panic("nil map")
}

func TestRunCycleRecoversAnalyzerPanic(t *testing.T) {
	good := mocks.NewMockAnalyzer("good", models.NewOpportunity("t", "d", "r"))

	got, err := newTestOrchestrator(mocks.NewMockMetricSource(), mocks.NewMockRuleSource(),
		[]plugins.Analyzer{panickingAnalyzer{}, good}, nil, Options{}).RunCycle(context.Background())

	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCollectQueries(t *testing.T) {
	rules := []models.AnalysisRule{
		mocks.CreateMockRule("a", "x", models.OperatorLessThan, 1, 1),
		mocks.CreateMockRule("b", "y", models.OperatorLessThan, 1, 1),
		mocks.CreateMockRule("c", "x", models.OperatorLessThan, 1, 1),
	}

	assert.Equal(t, []string{"x", "y"}, CollectQueries(rules, nil))
	assert.Empty(t, CollectQueries(nil, nil))
}
