package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
)

const validDocument = `
rules:
  - name: idle-cpu
    metric_name: cpu_usage
    condition:
      operator: less_than
      threshold: 0.1
      duration_minutes: 10
    opportunity_title_template: "Idle {resource_id}"
    opportunity_description_template: "{resource_id} below {threshold}%"
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestYAMLRepositoryLoadAll(t *testing.T) {
	tests := []struct {
		name      string
		content   *string
		wantCount int
		wantLevel logrus.Level
	}{
		{name: "valid document", content: strPtr(validDocument), wantCount: 1, wantLevel: logrus.InfoLevel},
		{name: "missing file", content: nil, wantCount: 0, wantLevel: logrus.WarnLevel},
		{name: "empty document", content: strPtr(""), wantCount: 0, wantLevel: logrus.WarnLevel},
		{name: "no rules key", content: strPtr("other: 1\n"), wantCount: 0, wantLevel: logrus.WarnLevel},
		{name: "malformed yaml", content: strPtr("rules: [\n"), wantCount: 0, wantLevel: logrus.ErrorLevel},
		{
			name: "invalid operator",
			content: strPtr(`
rules:
  - name: bad
    metric_name: cpu
    condition: {operator: around, threshold: 1, duration_minutes: 1}
    opportunity_title_template: t
    opportunity_description_template: d
`),
			wantCount: 0,
			wantLevel: logrus.ErrorLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, hook := test.NewNullLogger()

			path := filepath.Join(t.TempDir(), "missing.yml")
			if tt.content != nil {
				path = writeFile(t, *tt.content)
			}

			got := NewYAMLRepository(path, logger).LoadAll()
			assert.Len(t, got, tt.wantCount)
			assert.NotNil(t, got)
			require.NotNil(t, hook.LastEntry())
			assert.Equal(t, tt.wantLevel, hook.LastEntry().Level)
		})
	}
}

func TestYAMLRepositoryCachesSuccessfulLoad(t *testing.T) {
	path := writeFile(t, validDocument)
	repo := NewYAMLRepository(path, nil)

	first := repo.LoadAll()
	require.Len(t, first, 1)
	assert.Equal(t, models.OperatorLessThan, first[0].Condition.Operator)
	assert.Equal(t, 10, first[0].Condition.DurationMinutes)

	require.NoError(t, os.Remove(path))
	assert.Len(t, repo.LoadAll(), 1)

	repo.Reload()
	assert.Empty(t, repo.LoadAll())
}

func TestMarshalRoundTrip(t *testing.T) {
	data, err := Marshal(ExampleRules())
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, ExampleRules(), parsed)
}

func TestParseRejectsDuplicateNames(t *testing.T) {
	data, err := Marshal([]models.AnalysisRule{ExampleRules()[0], ExampleRules()[0]})
	require.NoError(t, err)

	_, err = Parse(data)
	assert.Error(t, err)
}

func strPtr(s string) *string {
	return &s
}
