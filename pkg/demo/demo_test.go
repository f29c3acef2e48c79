package demo

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
	"github.com/Tsahi-Elkayam/sphinx/pkg/service"
	"github.com/Tsahi-Elkayam/sphinx/pkg/storage"
	"github.com/Tsahi-Elkayam/sphinx/pkg/types"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestOpportunities(t *testing.T) {
	opportunities := Opportunities(fixedNow)
	require.Len(t, opportunities, 3)

	resources := make([]string, 0, len(opportunities))
	for _, opportunity := range opportunities {
		resources = append(resources, opportunity.ResourceAddress)
		assert.NotEmpty(t, opportunity.Evidence, opportunity.Title)
		assert.Equal(t, "demo", opportunity.Source)
	}
	assert.Equal(t, []string{"prometheus", "vol-012345abcdef", "api-service"}, resources)

	assert.True(t, opportunities[0].IsEnriched())
	assert.Contains(t, opportunities[0].SuggestedChange.SuggestedIaCFile.Content, `instance_type = "t2.micro"`)
	assert.Len(t, opportunities[0].Evidence[0].DataPoints, 15)
	assert.True(t, opportunities[1].IsEnriched())
	assert.False(t, opportunities[2].IsEnriched())

	// ids are fresh on every call
	assert.NotEqual(t, opportunities[0].ID, Opportunities(fixedNow)[0].ID)
}

func TestCycleRunner(t *testing.T) {
	runner := &CycleRunner{Now: func() time.Time { return fixedNow }}

	opportunities, err := runner.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Len(t, opportunities, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = (&CycleRunner{Delay: time.Minute}).RunCycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHistoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewHistoryStore(fixedNow)

	records, err := store.ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "prod-aurora-cluster", records[0].ResourceAddress)

	record := models.ActionRecord{OpportunityID: "op-1", AppliedAt: fixedNow, ResourceAddress: "vol-1"}
	require.NoError(t, store.AddRecord(ctx, record))
	assert.ErrorIs(t, store.AddRecord(ctx, record), storage.ErrAlreadyExists)

	records, err = store.ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "vol-1", records[0].ResourceAddress)
}

func TestWorkspaceStore(t *testing.T) {
	ctx := context.Background()
	store := NewWorkspaceStore()

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "prod-aws", list[0].Name)

	ws, err := store.GetByName(ctx, "staging")
	require.NoError(t, err)
	assert.True(t, ws.Backend.IsComplete())

	_, err = store.GetByName(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrWorkspaceNotFound)

	dev := models.NewWorkspace("dev", models.BackendDescriptor{Bucket: "b", Key: "k", Region: "r"})
	require.NoError(t, store.Add(ctx, dev))
	assert.ErrorIs(t, store.Add(ctx, dev), storage.ErrAlreadyExists)
}

func TestServiceOverFixtures(t *testing.T) {
	ctx := context.Background()
	svc := service.New(&CycleRunner{Now: func() time.Time { return fixedNow }}, nil, NewHistoryStore(fixedNow), NewWorkspaceStore(), models.BackendDescriptor{}, logrus.New())

	opportunities, err := svc.Analyze(ctx, types.OpportunityFilters{Resources: []string{"vol-012345abcdef"}})
	require.NoError(t, err)
	require.Len(t, opportunities, 1)

	found, err := svc.FindOpportunity(opportunities[0].ID.String())
	require.NoError(t, err)
	assert.Equal(t, "vol-012345abcdef", found.ResourceAddress)

	records, err := svc.History(ctx, types.HistoryFilters{Resource: "staging-load-balancer"})
	require.NoError(t, err)
	assert.Len(t, records, 1)

	workspaces, err := svc.Workspaces(ctx)
	require.NoError(t, err)
	assert.Len(t, workspaces, 2)
}
