package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsahi-Elkayam/sphinx/pkg/iac"
	"github.com/Tsahi-Elkayam/sphinx/pkg/llm"
	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
	"github.com/Tsahi-Elkayam/sphinx/pkg/orchestrator"
	"github.com/Tsahi-Elkayam/sphinx/pkg/plugins"
	"github.com/Tsahi-Elkayam/sphinx/pkg/plugins/builtin"
	"github.com/Tsahi-Elkayam/sphinx/pkg/service"
	"github.com/Tsahi-Elkayam/sphinx/pkg/storage"
	"github.com/Tsahi-Elkayam/sphinx/pkg/types"
	"github.com/Tsahi-Elkayam/sphinx/test/mocks"
)

const planWithChanges = `Terraform will perform the following actions:

  # aws_ebs_volume.data will be updated in-place
  ~ resource "aws_ebs_volume" "data" {
      ~ type = "gp2" -> "gp3"
    }

Plan: 0 to add, 1 to change, 0 to destroy.
`

// TestOptimizationLifecycle runs a cycle, plans and applies the suggested
// file and reads it back from the history
func TestOptimizationLifecycle(t *testing.T) {
	if os.Getenv("SKIP_INTEGRATION_TESTS") == "true" {
		t.Skip("Skipping integration tests")
	}

	ctx := context.Background()
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	source := mocks.NewMockMetricSource()
	source.AddMetric("node_cpu_utilization", mocks.CreateMockSeries("node_cpu_utilization", "api", now, time.Minute, 4, 3, 2, 5, 1, 2))
	source.AddMetric("node_cpu_utilization", mocks.CreateMockSeries("node_cpu_utilization", "batch", now, time.Minute, 80, 85, 90, 70, 75, 88))
	source.AddMetric(builtin.EBSVolumeInfoMetric, models.NewMetric(builtin.EBSVolumeInfoMetric,
		map[string]string{"volume_id": "vol-0abc123", "volume_type": "gp2", "region": "us-east-1"},
		models.DataPoint{Timestamp: now, Value: 1},
	))

	rules := mocks.NewMockRuleSource(mocks.CreateMockRule("Idle CPU", "node_cpu_utilization", models.OperatorLessThan, 10, 5))

	registry := plugins.NewRegistry(logger)
	require.Equal(t, 2, builtin.Register(registry, logger))

	cycle := orchestrator.NewOrchestrator(source, rules, registry, llm.NewStaticEnricher(), orchestrator.Options{
		Window: 15 * time.Minute,
		Now:    func() time.Time { return now },
	}, logger)

	runner := mocks.NewMockCommandRunner()
	runner.SetResult("plan", iac.CommandResult{Stdout: []byte(planWithChanges), ExitCode: iac.PlanExitChanges})
	runner.SetResult("apply", iac.CommandResult{Stdout: []byte("Apply complete! Resources: 0 added, 1 changed, 0 destroyed.\n")})
	adapter := iac.NewTerraformAdapter(runner, iac.Options{Binary: "terraform", TempDir: t.TempDir()}, logger)

	db, err := storage.NewDB(filepath.Join(t.TempDir(), "sphinx.db"), logger)
	require.NoError(t, err)
	defer db.Close()

	svc := service.New(cycle, adapter, storage.NewHistoryRepository(db), storage.NewWorkspaceRepository(db), models.BackendDescriptor{}, logger)

	t.Run("analysis cycle", func(t *testing.T) {
		opportunities, err := svc.Analyze(ctx, types.OpportunityFilters{})
		require.NoError(t, err)
		require.Len(t, opportunities, 2)

		resources := []string{opportunities[0].ResourceAddress, opportunities[1].ResourceAddress}
		assert.ElementsMatch(t, []string{"api", "vol-0abc123"}, resources)
		for _, opportunity := range opportunities {
			assert.True(t, opportunity.IsEnriched(), opportunity.Title)
		}
	})

	gp2, err := svc.Analyze(ctx, types.OpportunityFilters{Resources: []string{"vol-0abc123"}})
	require.NoError(t, err)
	require.Len(t, gp2, 1)
	suggested := gp2[0].SuggestedChange.SuggestedIaCFile
	assert.Contains(t, suggested.Content, "gp3")

	t.Run("plan suggested change", func(t *testing.T) {
		plan, err := svc.Plan(ctx, suggested, "")
		require.NoError(t, err)
		assert.Equal(t, models.PlanChangesPresent, plan.Status)
		require.Len(t, plan.Changes, 1)
		assert.Equal(t, "aws_ebs_volume.data", plan.Changes[0].Address)
	})

	t.Run("apply records history", func(t *testing.T) {
		result, err := svc.Apply(ctx, service.ApplyRequest{
			File:          suggested,
			OpportunityID: gp2[0].ID.String(),
		})
		require.NoError(t, err)
		assert.True(t, result.Success)

		records, err := svc.History(ctx, types.HistoryFilters{Resource: "vol-0abc123"})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, gp2[0].ID.String(), records[0].OpportunityID)
		assert.Equal(t, suggested.Content, records[0].AppliedIaCContent)
	})

	assert.Equal(t, []string{"init", "plan", "init", "apply"}, runner.Subcommands())
}

// TestWorkspaceBackendFlow checks that a stored workspace's backend reaches init
// and that an init failure surfaces as a failed plan
func TestWorkspaceBackendFlow(t *testing.T) {
	if os.Getenv("SKIP_INTEGRATION_TESTS") == "true" {
		t.Skip("Skipping integration tests")
	}

	ctx := context.Background()
	logger := logrus.New()

	db, err := storage.NewDB(filepath.Join(t.TempDir(), "sphinx.db"), logger)
	require.NoError(t, err)
	defer db.Close()

	runner := mocks.NewMockCommandRunner()
	runner.SetResult("init", iac.CommandResult{Stderr: []byte("Error: Failed to get existing workspaces: AccessDenied"), ExitCode: 1})
	adapter := iac.NewTerraformAdapter(runner, iac.Options{Binary: "terraform", TempDir: t.TempDir()}, logger)

	svc := service.New(&mocks.MockCycleRunner{}, adapter, storage.NewHistoryRepository(db), storage.NewWorkspaceRepository(db), models.BackendDescriptor{}, logger)

	_, err = svc.AddWorkspace(ctx, "prod", models.BackendDescriptor{Bucket: "state", Key: "prod.tfstate", Region: "eu-west-1"})
	require.NoError(t, err)

	_, err = svc.AddWorkspace(ctx, "prod", models.BackendDescriptor{Bucket: "other", Key: "k", Region: "r"})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	plan, err := svc.Plan(ctx, models.NewIaCFile("main.tf", "resource \"null_resource\" \"x\" {}"), "prod")
	require.NoError(t, err)
	assert.True(t, plan.Failed())
	assert.Contains(t, plan.RawOutput, models.PlanErrorMarker)
	assert.Contains(t, plan.RawOutput, "AccessDenied")
	assert.Equal(t, []string{"init"}, runner.Subcommands())
	assert.Contains(t, runner.Commands()[0].Args, "-backend-config=bucket=state")
	assert.Contains(t, runner.Commands()[0].Args, "-backend-config=region=eu-west-1")

	_, err = svc.Plan(ctx, models.NewIaCFile("main.tf", "resource {}"), "staging")
	assert.ErrorIs(t, err, storage.ErrWorkspaceNotFound)
}
