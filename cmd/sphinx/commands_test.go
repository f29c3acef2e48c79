package sphinx

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsahi-Elkayam/sphinx/pkg/config"
	"github.com/Tsahi-Elkayam/sphinx/pkg/llm"
	"github.com/Tsahi-Elkayam/sphinx/pkg/rules"
	"github.com/Tsahi-Elkayam/sphinx/pkg/types"
)

func TestParseAnalyzeFilters(t *testing.T) {
	tests := []struct {
		name string
		opts *AnalyzeOptions
		want types.OpportunityFilters
	}{
		{
			name: "no filters",
			opts: &AnalyzeOptions{},
			want: types.OpportunityFilters{},
		},
		{
			name: "sources and resources",
			opts: &AnalyzeOptions{
				Sources:   []string{"ebs-gp2", "idle-cpu"},
				Resources: []string{"vol-1"},
			},
			want: types.OpportunityFilters{
				Sources:   []string{"ebs-gp2", "idle-cpu"},
				Resources: []string{"vol-1"},
			},
		},
		{
			name: "search is trimmed",
			opts: &AnalyzeOptions{Search: "  gp3 "},
			want: types.OpportunityFilters{Search: "gp3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseAnalyzeFilters(tt.opts)
			assert.Equal(t, tt.want.Sources, got.Sources)
			assert.Equal(t, tt.want.Resources, got.Resources)
			assert.Equal(t, tt.want.Search, got.Search)
		})
	}
}

func TestParseHistoryFilters(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	got := parseHistoryFilters(&HistoryOptions{Resource: " vol-1 "}, now)
	assert.Equal(t, "vol-1", got.Resource)
	assert.Nil(t, got.AppliedAfter)

	got = parseHistoryFilters(&HistoryOptions{Since: 24 * time.Hour}, now)
	require.NotNil(t, got.AppliedAfter)
	assert.Equal(t, now.Add(-24*time.Hour), *got.AppliedAfter)
}

func TestResolveOutput(t *testing.T) {
	tests := []struct {
		flag       string
		configured string
		want       string
	}{
		{flag: "", configured: "table", want: "table"},
		{flag: "", configured: "json", want: "json"},
		{flag: "YAML", configured: "json", want: "yaml"},
		{flag: "json", configured: "yaml", want: "json"},
		{flag: "xml", configured: "json", want: "table"},
	}

	for _, tt := range tests {
		t.Run(tt.flag+"/"+tt.configured, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveOutput(tt.flag, tt.configured))
		})
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{name: "short string", input: "hello", maxLen: 10, want: "hello"},
		{name: "exact length", input: "hello", maxLen: 5, want: "hello"},
		{name: "long string", input: "this is a very long string that needs to be truncated", maxLen: 20, want: "this is a very lo..."},
		{name: "very short max length", input: "hello", maxLen: 3, want: "hel"},
		{name: "empty string", input: "", maxLen: 10, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncateString(tt.input, tt.maxLen))
		})
	}
}

func TestReadIaCFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "volume.tf")
	require.NoError(t, os.WriteFile(path, []byte("resource \"aws_ebs_volume\" \"data\" {}\n"), 0644))

	file, err := readIaCFile(path)
	require.NoError(t, err)
	assert.Equal(t, "volume.tf", file.Filename)
	assert.Contains(t, file.Content, "aws_ebs_volume")

	_, err = readIaCFile(filepath.Join(dir, "missing.tf"))
	assert.Error(t, err)
}

func TestRootCommandCreation(t *testing.T) {
	cmd := NewRootCommand(logrus.New())

	assert.Equal(t, "sphinx", cmd.Use)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("verbose"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("mock-data"))

	for _, name := range []string{"analyze", "plan", "apply", "generate", "workspace", "history", "analyzers", "serve", "config"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
}

func TestAnalyzeCommandCreation(t *testing.T) {
	cmd := NewAnalyzeCommand(logrus.New())

	assert.Equal(t, "analyze", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)

	flags := cmd.Flags()
	for flag, shorthand := range map[string]string{"source": "s", "resource": "r", "output": "o"} {
		f := flags.Lookup(flag)
		require.NotNil(t, f, flag)
		assert.Equal(t, shorthand, f.Shorthand)
	}
	assert.NotNil(t, flags.Lookup("show-iac"))
	assert.NotNil(t, flags.Lookup("search"))
}

func TestIaCCommandsRequireFile(t *testing.T) {
	for _, cmd := range []interface {
		ValidateArgs([]string) error
	}{NewPlanCommand(logrus.New()), NewApplyCommand(logrus.New())} {
		assert.Error(t, cmd.ValidateArgs(nil))
		assert.NoError(t, cmd.ValidateArgs([]string{"main.tf"}))
	}

	apply := NewApplyCommand(logrus.New())
	for _, flag := range []string{"workspace", "opportunity-id", "title", "resource"} {
		assert.NotNil(t, apply.Flags().Lookup(flag), flag)
	}
}

func TestWorkspaceAddRequiresBackendFlags(t *testing.T) {
	cmd := NewWorkspaceCommand(logrus.New())
	add, _, err := cmd.Find([]string{"add"})
	require.NoError(t, err)

	for _, flag := range []string{"bucket", "key", "region"} {
		f := add.Flags().Lookup(flag)
		require.NotNil(t, f, flag)
		assert.Contains(t, f.Annotations, "cobra_annotation_bind_flag_required", flag)
	}
}

func TestNewAppWiresComponents(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Storage.SQLitePath = filepath.Join(dir, "sphinx.db")
	cfg.Rules.File = filepath.Join(dir, "rules.yml")
	cfg.Plugins.Dir = filepath.Join(dir, "plugins")
	cfg.LLM.Provider = "static"

	logger, hook := test.NewNullLogger()
	app, err := NewApp(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.Service)
	assert.Positive(t, app.Analyzers.Count())
	assert.Empty(t, app.Rules.LoadAll())

	families, err := app.Metrics.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	warned := false
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warned = true
		}
	}
	assert.True(t, warned, "missing rules file and plugins dir are reported")

	_, err = app.Service.Generate(context.Background(), "an s3 bucket")
	assert.Error(t, err)
}

func TestNewAppMockData(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Storage.SQLitePath = filepath.Join(dir, "sphinx.db")
	cfg.Rules.File = filepath.Join(dir, "rules.yml")
	cfg.Plugins.Dir = ""
	cfg.LLM.Provider = "static"
	cfg.Analysis.MockData = true

	logger, _ := test.NewNullLogger()
	app, err := NewApp(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer app.Close()

	opportunities, err := app.Service.Analyze(context.Background(), types.OpportunityFilters{})
	require.NoError(t, err)
	assert.Len(t, opportunities, 3)

	workspaces, err := app.Service.Workspaces(context.Background())
	require.NoError(t, err)
	assert.Len(t, workspaces, 2)

	records, err := app.Service.History(context.Background(), types.HistoryFilters{})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestNewAppRequiresConfig(t *testing.T) {
	_, err := NewApp(context.Background(), nil, logrus.New())
	assert.Error(t, err)
}

func TestEnrichmentSelection(t *testing.T) {
	tests := []struct {
		name          string
		provider      string
		apiKey        string
		wantEnricher  bool
		wantGenerator bool
		wantStatic    bool
	}{
		{name: "none", provider: "none"},
		{name: "static", provider: "static", wantEnricher: true, wantStatic: true},
		{name: "gemini without key", provider: "gemini", wantEnricher: true, wantStatic: true},
		{name: "gemini with key", provider: "gemini", apiKey: "key", wantEnricher: true, wantGenerator: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.LLM.Provider = tt.provider
			cfg.LLM.APIKey = tt.apiKey

			logger, _ := test.NewNullLogger()
			app := &App{Config: cfg, logger: logger}
			enricher, generator := app.enrichment(context.Background())

			assert.Equal(t, tt.wantEnricher, enricher != nil)
			assert.Equal(t, tt.wantGenerator, generator != nil)
			if tt.wantStatic {
				assert.IsType(t, &llm.StaticEnricher{}, enricher)
			}
		})
	}
}

func TestValidateConfigWarnings(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = "key"
	assert.Empty(t, validateConfigWarnings(cfg))

	cfg.LLM.APIKey = ""
	cfg.Terraform.Backend.Bucket = "state"
	warnings := validateConfigWarnings(cfg)
	assert.Len(t, warnings, 2)
}

func TestWriteExampleRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "rules.yml")

	written, err := writeExampleRules(path, false)
	require.NoError(t, err)
	assert.True(t, written)

	loaded := rules.NewYAMLRepository(path, logrus.New()).LoadAll()
	assert.Equal(t, rules.ExampleRules(), loaded)

	require.NoError(t, os.WriteFile(path, []byte("rules: []\n"), 0644))
	written, err = writeExampleRules(path, false)
	require.NoError(t, err)
	assert.False(t, written)

	written, err = writeExampleRules(path, true)
	require.NoError(t, err)
	assert.True(t, written)
}

func TestRedactedHidesSecrets(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = "secret"
	cfg.Cache.Password = "hunter2"

	out := redacted(cfg)
	assert.Equal(t, "********", out.LLM.APIKey)
	assert.Equal(t, "********", out.Cache.Password)
	assert.Equal(t, "secret", cfg.LLM.APIKey)
}
