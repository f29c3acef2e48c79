package models

import (
	"github.com/google/uuid"
)

// SuggestedChange is a proposed remediation: a complete IaC file, not a diff
type SuggestedChange struct {
	ImpactAssessment string  `json:"impact_assessment" yaml:"impact_assessment"`
	SuggestedIaCFile IaCFile `json:"suggested_iac_file" yaml:"suggested_iac_file"`
}

// OptimizationOpportunity is a finding produced by a rule or an analyzer
type OptimizationOpportunity struct {
	ID              uuid.UUID        `json:"id" yaml:"id"`
	Title           string           `json:"title" yaml:"title"`
	Description     string           `json:"description" yaml:"description"`
	ResourceAddress string           `json:"resource_address" yaml:"resource_address"`
	Evidence        []Metric         `json:"evidence" yaml:"evidence"`
	SuggestedChange *SuggestedChange `json:"suggested_change,omitempty" yaml:"suggested_change,omitempty"`
	Source          string           `json:"source,omitempty" yaml:"source,omitempty"`
}

// NewOpportunity creates an opportunity with a freshly generated id
func NewOpportunity(title, description, resourceAddress string, evidence ...Metric) OptimizationOpportunity {
	if evidence == nil {
		evidence = []Metric{}
	}
	return OptimizationOpportunity{
		ID:              uuid.New(),
		Title:           title,
		Description:     description,
		ResourceAddress: resourceAddress,
		Evidence:        evidence,
	}
}

// IsEnriched reports whether a suggested change has been attached
func (o OptimizationOpportunity) IsEnriched() bool {
	return o.SuggestedChange != nil
}
