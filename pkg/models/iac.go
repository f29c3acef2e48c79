package models

import "strings"

// DefaultIaCProvider is the provider tag used when none is given
const DefaultIaCProvider = "terraform"

// IaCFile holds the full content of an infrastructure-as-code file
type IaCFile struct {
	Filename string `json:"filename" yaml:"filename"`
	Content  string `json:"content" yaml:"content"`
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
}

// NewIaCFile creates a terraform file
func NewIaCFile(filename, content string) IaCFile {
	return IaCFile{
		Filename: filename,
		Content:  content,
		Provider: DefaultIaCProvider,
	}
}

// BackendDescriptor locates remote state in blob storage
type BackendDescriptor struct {
	Bucket string `json:"bucket" yaml:"bucket"`
	Key    string `json:"key" yaml:"key"`
	Region string `json:"region" yaml:"region"`
}

// IsComplete reports whether bucket, key and region are all set
func (b BackendDescriptor) IsComplete() bool {
	return b.Bucket != "" && b.Key != "" && b.Region != ""
}

// IaCConfiguration is the unit of work for the execution adapter
type IaCConfiguration struct {
	MainFile IaCFile            `json:"main_file" yaml:"main_file"`
	Backend  *BackendDescriptor `json:"backend,omitempty" yaml:"backend,omitempty"`
}

// ChangeAction is the action the IaC tool will take on a resource
type ChangeAction string

const (
	ActionCreate  ChangeAction = "create"
	ActionUpdate  ChangeAction = "update"
	ActionDelete  ChangeAction = "delete"
	ActionReplace ChangeAction = "replace"
	ActionNoOp    ChangeAction = "no-op"
)

// String returns the string representation of ChangeAction
func (a ChangeAction) String() string {
	return string(a)
}

// ResourceChange is a single resource entry of a plan
type ResourceChange struct {
	Address string       `json:"address" yaml:"address"`
	Action  ChangeAction `json:"action" yaml:"action"`
}

// PlanStatus is the structured outcome of a plan
type PlanStatus string

const (
	PlanNoChanges      PlanStatus = "no_changes"
	PlanChangesPresent PlanStatus = "changes_present"
	PlanError          PlanStatus = "error"
)

// PlanErrorMarker prefixes the raw output of a failed plan.
// External consumers match on this literal text, so it must not change.
const PlanErrorMarker = "Erro no Terraform Plan"

// ApplyErrorMarker prefixes the raw output of a failed apply
const ApplyErrorMarker = "Erro no Terraform Apply"

// ExecutionPlan is the parsed result of a plan run
type ExecutionPlan struct {
	Changes   []ResourceChange `json:"changes" yaml:"changes"`
	RawOutput string           `json:"raw_output" yaml:"raw_output"`
	Status    PlanStatus       `json:"status" yaml:"status"`
}

// Failed reports whether the plan ended in error
func (p ExecutionPlan) Failed() bool {
	return p.Status == PlanError || strings.HasPrefix(p.RawOutput, PlanErrorMarker)
}

// ApplyResult is the outcome of an apply run
type ApplyResult struct {
	Success   bool   `json:"success" yaml:"success"`
	RawOutput string `json:"raw_output" yaml:"raw_output"`
}
