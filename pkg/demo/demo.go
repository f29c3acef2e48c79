// Package demo serves fixture opportunities, history and workspaces so the
// CLI and HTTP API can be explored without Prometheus, AWS or a database.
package demo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
	"github.com/Tsahi-Elkayam/sphinx/pkg/storage"
)

const instanceTerraform = `resource "aws_instance" "web_server" {
  ami           = "ami-0c55b159cbfafe1f0"
  instance_type = "t2.micro" # down from t2.medium

  tags = {
    Name = "WebServer"
  }
}
`

const volumeTerraform = `# Change the type on the matching "aws_ebs_volume" resource.
# Example:
# resource "aws_ebs_volume" "example" {
#   type = "gp3"
# }
`

// Opportunities returns the fixture findings as of now
func Opportunities(now time.Time) []models.OptimizationOpportunity {
	cpu := make([]models.DataPoint, 0, 15)
	for i := 0; i < 15; i++ {
		cpu = append(cpu, models.DataPoint{
			Timestamp: now.Add(-time.Duration(15-i) * time.Minute),
			Value:     0.02 + float64(i%7)*0.01,
		})
	}

	idle := models.NewOpportunity(
		"Idle CPU detected for 'prometheus'",
		"CPU usage for 'prometheus' stayed below 10% for more than 15 minutes, which points to over-provisioning.",
		"prometheus",
		models.NewMetric("cpu_usage", map[string]string{"job": "prometheus"}, cpu...),
	)
	idle.Source = "demo"
	idle.SuggestedChange = &models.SuggestedChange{
		ImpactAssessment: "Downsizing from t2.medium to t2.micro saves roughly 50% with minimal performance impact given the low CPU usage.",
		SuggestedIaCFile: models.NewIaCFile("instance.tf", instanceTerraform),
	}

	volume := models.NewOpportunity(
		"Upgrade EBS volume from gp2 to gp3",
		"EBS volume 'vol-012345abcdef' is gp2. gp3 performs better and costs up to 20% less.",
		"vol-012345abcdef",
		models.NewMetric("aws_ebs_volume_info", map[string]string{"volume_id": "vol-012345abcdef", "volume_type": "gp2"}),
	)
	volume.Source = "demo"
	volume.SuggestedChange = &models.SuggestedChange{
		ImpactAssessment: "Moving to gp3 is an online operation with no downtime. Costs drop immediately and the baseline rises to 3,000 IOPS.",
		SuggestedIaCFile: models.NewIaCFile("ebs_volume.tf", volumeTerraform),
	}

	memory := models.NewOpportunity(
		"High memory usage detected for 'api-service'",
		"'api-service' is using more than 90% of its allocated memory. Consider raising the allocation or look for a leak.",
		"api-service",
		models.NewMetric("memory_usage", map[string]string{"job": "api-service"}, models.DataPoint{Timestamp: now, Value: 0.92}),
	)
	memory.Source = "demo"

	return []models.OptimizationOpportunity{idle, volume, memory}
}

// HistoryRecords returns the fixture history as of now, newest first
func HistoryRecords(now time.Time) []models.ActionRecord {
	return []models.ActionRecord{
		{
			OpportunityID:     uuid.NewString(),
			AppliedAt:         now.Add(-time.Hour),
			ResourceAddress:   "prod-aurora-cluster",
			OpportunityTitle:  "Resize idle database instance",
			AppliedIaCContent: "# Terraform code for db resizing...\n",
		},
		{
			OpportunityID:     uuid.NewString(),
			AppliedAt:         now.Add(-48 * time.Hour),
			ResourceAddress:   "staging-load-balancer",
			OpportunityTitle:  "Move load balancer to the current generation",
			AppliedIaCContent: "# Terraform code for LB upgrade...\n",
		},
	}
}

// Workspaces returns the fixture workspaces
func Workspaces() []models.Workspace {
	return []models.Workspace{
		models.NewWorkspace("prod-aws", models.BackendDescriptor{Bucket: "prod-tfstate-bucket", Key: "terraform.tfstate", Region: "us-east-1"}),
		models.NewWorkspace("staging", models.BackendDescriptor{Bucket: "stg-tfstate-bucket", Key: "terraform/state", Region: "us-central1"}),
	}
}

// CycleRunner returns the fixture opportunities on every cycle
type CycleRunner struct {
	// Now defaults to time.Now
	Now func() time.Time
	// Delay simulates a slow cycle
	Delay time.Duration
}

// RunCycle returns a fresh copy of the fixture opportunities
func (c *CycleRunner) RunCycle(ctx context.Context) ([]models.OptimizationOpportunity, error) {
	if c.Delay > 0 {
		timer := time.NewTimer(c.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return Opportunities(now().UTC()), nil
}

// HistoryStore keeps action records in memory, seeded with the fixtures
type HistoryStore struct {
	mu      sync.Mutex
	records []models.ActionRecord
}

// NewHistoryStore creates a store holding the fixture history
func NewHistoryStore(now time.Time) *HistoryStore {
	return &HistoryStore{records: HistoryRecords(now)}
}

// AddRecord stores a record; opportunity ids are unique
func (h *HistoryStore) AddRecord(ctx context.Context, record models.ActionRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, existing := range h.records {
		if existing.OpportunityID == record.OpportunityID {
			return fmt.Errorf("history record %s: %w", record.OpportunityID, storage.ErrAlreadyExists)
		}
	}
	h.records = append(h.records, record)
	return nil
}

// ListRecords returns every record, newest first
func (h *HistoryStore) ListRecords(ctx context.Context) ([]models.ActionRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	records := append([]models.ActionRecord(nil), h.records...)
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].AppliedAt.After(records[j].AppliedAt)
	})
	return records, nil
}

// WorkspaceStore keeps workspaces in memory, seeded with the fixtures
type WorkspaceStore struct {
	mu         sync.Mutex
	workspaces []models.Workspace
}

// NewWorkspaceStore creates a store holding the fixture workspaces
func NewWorkspaceStore() *WorkspaceStore {
	return &WorkspaceStore{workspaces: Workspaces()}
}

// Add stores a workspace; names are unique
func (w *WorkspaceStore) Add(ctx context.Context, workspace models.Workspace) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, existing := range w.workspaces {
		if existing.Name == workspace.Name {
			return fmt.Errorf("workspace %s: %w", workspace.Name, storage.ErrAlreadyExists)
		}
	}
	w.workspaces = append(w.workspaces, workspace)
	return nil
}

// List returns the workspaces ordered by name
func (w *WorkspaceStore) List(ctx context.Context) ([]models.Workspace, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	list := append([]models.Workspace(nil), w.workspaces...)
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

// GetByName returns the named workspace
func (w *WorkspaceStore) GetByName(ctx context.Context, name string) (*models.Workspace, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, workspace := range w.workspaces {
		if workspace.Name == name {
			found := workspace
			return &found, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", storage.ErrWorkspaceNotFound, name)
}
