package models

import (
	"time"

	"github.com/google/uuid"
)

// ActionRecord is an entry of the append-only apply history
type ActionRecord struct {
	OpportunityID     string    `json:"opportunity_id" yaml:"opportunity_id"`
	AppliedAt         time.Time `json:"applied_at" yaml:"applied_at"`
	ResourceAddress   string    `json:"resource_address" yaml:"resource_address"`
	OpportunityTitle  string    `json:"opportunity_title" yaml:"opportunity_title"`
	AppliedIaCContent string    `json:"applied_iac_content" yaml:"applied_iac_content"`
}

// NewActionRecord creates a history record for an applied opportunity
func NewActionRecord(opportunity OptimizationOpportunity, content string) ActionRecord {
	return ActionRecord{
		OpportunityID:     opportunity.ID.String(),
		AppliedAt:         time.Now().UTC(),
		ResourceAddress:   opportunity.ResourceAddress,
		OpportunityTitle:  opportunity.Title,
		AppliedIaCContent: content,
	}
}

// Workspace is a named remote-state backend
type Workspace struct {
	ID      uuid.UUID         `json:"id" yaml:"id"`
	Name    string            `json:"name" yaml:"name"`
	Backend BackendDescriptor `json:"backend_config" yaml:"backend_config"`
}

// NewWorkspace creates a workspace with a freshly generated id
func NewWorkspace(name string, backend BackendDescriptor) Workspace {
	return Workspace{
		ID:      uuid.New(),
		Name:    name,
		Backend: backend,
	}
}

// PaginationInfo represents pagination metadata
type PaginationInfo struct {
	Page    int  `json:"page"`
	PerPage int  `json:"per_page"`
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
	HasPrev bool `json:"has_prev"`
}

// Result represents a generic result with data and metadata
type Result struct {
	Data       interface{}            `json:"data"`
	Pagination *PaginationInfo        `json:"pagination,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}
