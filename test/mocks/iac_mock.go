package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Tsahi-Elkayam/sphinx/pkg/iac"
	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
	"github.com/Tsahi-Elkayam/sphinx/pkg/storage"
)

// ErrWorkspaceNotFound is returned by MockWorkspaceStore for unknown names
var ErrWorkspaceNotFound = storage.ErrWorkspaceNotFound

// MockCommandRunner answers IaC subcommands with canned results
type MockCommandRunner struct {
	mu       sync.Mutex
	results  map[string]iac.CommandResult
	errors   map[string]error
	commands []iac.Command
}

// NewMockCommandRunner creates a runner where every subcommand exits 0
func NewMockCommandRunner() *MockCommandRunner {
	return &MockCommandRunner{
		results: make(map[string]iac.CommandResult),
		errors:  make(map[string]error),
	}
}

// SetResult sets the result for a subcommand such as "plan"
func (m *MockCommandRunner) SetResult(subcommand string, result iac.CommandResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[subcommand] = result
}

// SetError makes a subcommand fail to start
func (m *MockCommandRunner) SetError(subcommand string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[subcommand] = err
}

// Commands returns the commands run so far, in order
func (m *MockCommandRunner) Commands() []iac.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]iac.Command(nil), m.commands...)
}

// Subcommands returns the subcommands run so far, in order
func (m *MockCommandRunner) Subcommands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := make([]string, 0, len(m.commands))
	for _, cmd := range m.commands {
		if len(cmd.Args) > 0 {
			subs = append(subs, cmd.Args[0])
		}
	}
	return subs
}

func (m *MockCommandRunner) Run(ctx context.Context, cmd iac.Command) (iac.CommandResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.commands = append(m.commands, cmd)
	if len(cmd.Args) == 0 {
		return iac.CommandResult{}, nil
	}
	if err, exists := m.errors[cmd.Args[0]]; exists {
		return iac.CommandResult{}, err
	}
	return m.results[cmd.Args[0]], nil
}

// MockExecutor implements the plan/apply port for testing
type MockExecutor struct {
	mu          sync.Mutex
	PlanResult  models.ExecutionPlan
	ApplyResult models.ApplyResult
	PlanErr     error
	ApplyErr    error
	Planned     []models.IaCConfiguration
	Applied     []models.IaCConfiguration
}

// NewMockExecutor creates an executor whose applies succeed
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		PlanResult:  models.ExecutionPlan{Status: models.PlanNoChanges, Changes: []models.ResourceChange{}},
		ApplyResult: models.ApplyResult{Success: true},
	}
}

func (m *MockExecutor) Plan(ctx context.Context, cfg models.IaCConfiguration) (models.ExecutionPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Planned = append(m.Planned, cfg)
	return m.PlanResult, m.PlanErr
}

func (m *MockExecutor) Apply(ctx context.Context, cfg models.IaCConfiguration) (models.ApplyResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Applied = append(m.Applied, cfg)
	return m.ApplyResult, m.ApplyErr
}

// MockHistoryStore keeps action records in memory
type MockHistoryStore struct {
	mu      sync.Mutex
	Records []models.ActionRecord
	AddErr  error
}

func (m *MockHistoryStore) AddRecord(ctx context.Context, record models.ActionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AddErr != nil {
		return m.AddErr
	}
	m.Records = append(m.Records, record)
	return nil
}

func (m *MockHistoryStore) ListRecords(ctx context.Context) ([]models.ActionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := append([]models.ActionRecord{}, m.Records...)
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].AppliedAt.After(records[j].AppliedAt)
	})
	return records, nil
}

// MockWorkspaceStore keeps workspaces in memory
type MockWorkspaceStore struct {
	mu         sync.Mutex
	workspaces map[string]models.Workspace
}

// NewMockWorkspaceStore creates a store holding workspaces
func NewMockWorkspaceStore(workspaces ...models.Workspace) *MockWorkspaceStore {
	store := &MockWorkspaceStore{workspaces: make(map[string]models.Workspace)}
	for _, ws := range workspaces {
		store.workspaces[ws.Name] = ws
	}
	return store
}

func (m *MockWorkspaceStore) Add(ctx context.Context, workspace models.Workspace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.workspaces[workspace.Name]; exists {
		return fmt.Errorf("workspace %s: %w", workspace.Name, storage.ErrAlreadyExists)
	}
	m.workspaces[workspace.Name] = workspace
	return nil
}

func (m *MockWorkspaceStore) List(ctx context.Context) ([]models.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]models.Workspace, 0, len(m.workspaces))
	for _, ws := range m.workspaces {
		list = append(list, ws)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (m *MockWorkspaceStore) GetByName(ctx context.Context, name string) (*models.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, exists := m.workspaces[name]
	if !exists {
		return nil, fmt.Errorf("workspace %s: %w", name, ErrWorkspaceNotFound)
	}
	return &ws, nil
}

// MockGenerator returns a fixed IaC file for any request
type MockGenerator struct {
	File     models.IaCFile
	Err      error
	Requests []string
}

func (m *MockGenerator) GenerateIaC(ctx context.Context, request string) (models.IaCFile, error) {
	m.Requests = append(m.Requests, request)
	return m.File, m.Err
}

// MockCycleRunner returns fixed opportunities from RunCycle
type MockCycleRunner struct {
	mu            sync.Mutex
	Opportunities []models.OptimizationOpportunity
	Err           error
	Runs          int
}

func (m *MockCycleRunner) RunCycle(ctx context.Context) ([]models.OptimizationOpportunity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Runs++
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]models.OptimizationOpportunity{}, m.Opportunities...), nil
}
