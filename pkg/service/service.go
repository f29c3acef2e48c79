package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/sphinx/pkg/iac"
	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
	"github.com/Tsahi-Elkayam/sphinx/pkg/types"
)

var (
	// ErrNoCycle is returned when an opportunity is looked up before any cycle ran
	ErrNoCycle = errors.New("no analysis cycle has run yet")

	// ErrOpportunityNotFound is returned when the last cycle has no such opportunity
	ErrOpportunityNotFound = errors.New("opportunity not found")

	// ErrGeneratorUnavailable is returned by Generate when no LLM is configured
	ErrGeneratorUnavailable = errors.New("iac generation is not configured")

	// ErrInvalidRequest wraps input validation failures
	ErrInvalidRequest = errors.New("invalid request")
)

// CycleRunner runs one analysis cycle
type CycleRunner interface {
	RunCycle(ctx context.Context) ([]models.OptimizationOpportunity, error)
}

// Executor plans and applies IaC configurations
type Executor interface {
	Plan(ctx context.Context, cfg models.IaCConfiguration) (models.ExecutionPlan, error)
	Apply(ctx context.Context, cfg models.IaCConfiguration) (models.ApplyResult, error)
}

// HistoryStore persists applied actions
type HistoryStore interface {
	AddRecord(ctx context.Context, record models.ActionRecord) error
	ListRecords(ctx context.Context) ([]models.ActionRecord, error)
}

// WorkspaceStore persists named backends
type WorkspaceStore interface {
	Add(ctx context.Context, workspace models.Workspace) error
	List(ctx context.Context) ([]models.Workspace, error)
	GetByName(ctx context.Context, name string) (*models.Workspace, error)
}

// Generator turns a free-text request into an IaC file
type Generator interface {
	GenerateIaC(ctx context.Context, request string) (models.IaCFile, error)
}

// ApplyRequest describes an apply and the opportunity it resolves
type ApplyRequest struct {
	File            models.IaCFile `json:"file"`
	Workspace       string         `json:"workspace,omitempty"`
	OpportunityID   string         `json:"opportunity_id,omitempty"`
	Title           string         `json:"title,omitempty"`
	ResourceAddress string         `json:"resource_address,omitempty"`
}

// Service is the application layer shared by the CLI and the HTTP API.
// Cycles run one at a time; IaC executions against the same backend state do too.
type Service struct {
	cycle      CycleRunner
	executor   Executor
	history    HistoryStore
	workspaces WorkspaceStore
	generator  Generator
	settings   models.BackendDescriptor
	logger     *logrus.Logger

	cycleMu sync.Mutex

	locksMu  sync.Mutex
	iacLocks map[string]*sync.Mutex

	mu      sync.RWMutex
	last    []models.OptimizationOpportunity
	lastRun time.Time
}

// New creates a service. settings is the default backend used when no workspace is selected.
func New(cycle CycleRunner, executor Executor, history HistoryStore, workspaces WorkspaceStore, settings models.BackendDescriptor, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{
		cycle:      cycle,
		executor:   executor,
		history:    history,
		workspaces: workspaces,
		settings:   settings,
		logger:     logger,
		iacLocks:   make(map[string]*sync.Mutex),
	}
}

// WithGenerator enables free-text IaC generation
func (s *Service) WithGenerator(generator Generator) *Service {
	s.generator = generator
	return s
}

// Analyze runs a cycle, remembers its result and returns the filtered opportunities
func (s *Service) Analyze(ctx context.Context, filters types.OpportunityFilters) ([]models.OptimizationOpportunity, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	opportunities, err := s.cycle.RunCycle(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run analysis cycle: %w", err)
	}

	s.mu.Lock()
	s.last = opportunities
	s.lastRun = time.Now().UTC()
	s.mu.Unlock()

	filtered := filters.Apply(opportunities)
	s.logger.Infof("Analysis found %d opportunities (%d after filters)", len(opportunities), len(filtered))
	return filtered, nil
}

// LastCycle returns the opportunities of the latest cycle and when it finished
func (s *Service) LastCycle() ([]models.OptimizationOpportunity, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.OptimizationOpportunity(nil), s.last...), s.lastRun
}

// FindOpportunity looks an opportunity up by id in the latest cycle
func (s *Service) FindOpportunity(id string) (models.OptimizationOpportunity, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return models.OptimizationOpportunity{}, fmt.Errorf("%w: opportunity id %q: %v", ErrInvalidRequest, id, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastRun.IsZero() {
		return models.OptimizationOpportunity{}, ErrNoCycle
	}
	for _, opportunity := range s.last {
		if opportunity.ID == parsed {
			return opportunity, nil
		}
	}
	return models.OptimizationOpportunity{}, fmt.Errorf("%s: %w", id, ErrOpportunityNotFound)
}

// Session builds the IaC session for a workspace name; an empty name selects none
func (s *Service) Session(ctx context.Context, workspaceName string) (iac.Session, error) {
	if workspaceName == "" {
		return iac.Session{}, nil
	}

	workspace, err := s.workspaces.GetByName(ctx, workspaceName)
	if err != nil {
		return iac.Session{}, fmt.Errorf("failed to select workspace: %w", err)
	}
	return iac.Session{ActiveWorkspace: workspace}, nil
}

// Plan previews file against the backend resolved for workspaceName
func (s *Service) Plan(ctx context.Context, file models.IaCFile, workspaceName string) (models.ExecutionPlan, error) {
	cfg, err := s.configuration(ctx, file, workspaceName)
	if err != nil {
		return models.ExecutionPlan{}, err
	}

	unlock := s.lockState(cfg)
	defer unlock()
	return s.executor.Plan(ctx, cfg)
}

// Apply applies the request's file. A successful apply that names an
// opportunity is appended to the history.
func (s *Service) Apply(ctx context.Context, req ApplyRequest) (models.ApplyResult, error) {
	cfg, err := s.configuration(ctx, req.File, req.Workspace)
	if err != nil {
		return models.ApplyResult{}, err
	}

	unlock := s.lockState(cfg)
	result, err := s.executor.Apply(ctx, cfg)
	unlock()
	if err != nil {
		return result, err
	}
	if !result.Success {
		s.logger.Warnf("Apply of %s failed", req.File.Filename)
		return result, nil
	}

	if req.OpportunityID == "" && req.Title == "" {
		s.logger.Debug("Apply is not tied to an opportunity, skipping history")
		return result, nil
	}

	record := s.actionRecord(req)
	if err := s.history.AddRecord(ctx, record); err != nil {
		return result, fmt.Errorf("apply succeeded but failed to record history: %w", err)
	}
	s.logger.Infof("Recorded apply of %q on %s", record.OpportunityTitle, record.ResourceAddress)
	return result, nil
}

// actionRecord prefers the opportunity from the last cycle and lets the
// request's explicit fields override it
func (s *Service) actionRecord(req ApplyRequest) models.ActionRecord {
	opportunity := models.OptimizationOpportunity{ID: uuid.New()}
	if req.OpportunityID != "" {
		if found, err := s.FindOpportunity(req.OpportunityID); err == nil {
			opportunity = found
		}
	}

	record := models.NewActionRecord(opportunity, req.File.Content)
	if req.OpportunityID != "" {
		record.OpportunityID = req.OpportunityID
	}
	if req.Title != "" {
		record.OpportunityTitle = req.Title
	}
	if req.ResourceAddress != "" {
		record.ResourceAddress = req.ResourceAddress
	}
	return record
}

// lockState serialises runs that share remote state. Runs without a backend
// keep local state in their scratch workspace and share nothing.
func (s *Service) lockState(cfg models.IaCConfiguration) func() {
	if cfg.Backend == nil {
		return func() {}
	}
	key := fmt.Sprintf("s3://%s/%s", cfg.Backend.Bucket, cfg.Backend.Key)

	s.locksMu.Lock()
	lock, ok := s.iacLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.iacLocks[key] = lock
	}
	s.locksMu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (s *Service) configuration(ctx context.Context, file models.IaCFile, workspaceName string) (models.IaCConfiguration, error) {
	if strings.TrimSpace(file.Content) == "" {
		return models.IaCConfiguration{}, fmt.Errorf("%w: iac file %q is empty", ErrInvalidRequest, file.Filename)
	}
	if file.Filename == "" {
		file.Filename = "main.tf"
	}
	if err := iac.ValidateFilename(file.Filename); err != nil {
		return models.IaCConfiguration{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if file.Filename == iac.BackendFileName {
		return models.IaCConfiguration{}, fmt.Errorf("%w: %s is reserved for the backend block", ErrInvalidRequest, iac.BackendFileName)
	}

	session, err := s.Session(ctx, workspaceName)
	if err != nil {
		return models.IaCConfiguration{}, err
	}
	return iac.BuildConfiguration(file, session, s.settings), nil
}

// AddWorkspace stores a new named backend
func (s *Service) AddWorkspace(ctx context.Context, name string, backend models.BackendDescriptor) (models.Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Workspace{}, fmt.Errorf("%w: workspace name cannot be empty", ErrInvalidRequest)
	}
	if !backend.IsComplete() {
		return models.Workspace{}, fmt.Errorf("%w: workspace backend needs bucket, key and region", ErrInvalidRequest)
	}

	workspace := models.NewWorkspace(name, backend)
	if err := s.workspaces.Add(ctx, workspace); err != nil {
		return models.Workspace{}, fmt.Errorf("failed to add workspace: %w", err)
	}
	s.logger.Infof("Created workspace %s (s3://%s/%s)", name, backend.Bucket, backend.Key)
	return workspace, nil
}

// Workspaces lists the stored workspaces
func (s *Service) Workspaces(ctx context.Context) ([]models.Workspace, error) {
	return s.workspaces.List(ctx)
}

// History returns applied actions, newest first
func (s *Service) History(ctx context.Context, filters types.HistoryFilters) ([]models.ActionRecord, error) {
	records, err := s.history.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return filters.Apply(records), nil
}

// Generate produces an IaC file from a free-text request
func (s *Service) Generate(ctx context.Context, request string) (models.IaCFile, error) {
	if s.generator == nil {
		return models.IaCFile{}, ErrGeneratorUnavailable
	}
	if strings.TrimSpace(request) == "" {
		return models.IaCFile{}, fmt.Errorf("%w: request cannot be empty", ErrInvalidRequest)
	}
	return s.generator.GenerateIaC(ctx, request)
}
