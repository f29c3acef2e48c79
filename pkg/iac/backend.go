package iac

import (
	"context"

	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
)

// Session carries the caller's explicit context for IaC operations
type Session struct {
	// ActiveWorkspace is the selected workspace, or nil
	ActiveWorkspace *models.Workspace
}

// BackendVerifier checks that a remote-state backend is reachable before init
type BackendVerifier interface {
	VerifyBackend(ctx context.Context, backend models.BackendDescriptor) error
}

// ResolveBackend picks the effective backend: the active workspace's backend
// wins, then the settings backend when bucket, key and region are all set,
// otherwise none.
func ResolveBackend(session Session, settings models.BackendDescriptor) *models.BackendDescriptor {
	if session.ActiveWorkspace != nil {
		backend := session.ActiveWorkspace.Backend
		return &backend
	}
	if settings.IsComplete() {
		backend := settings
		return &backend
	}
	return nil
}

// BuildConfiguration assembles the unit of work for a main file
func BuildConfiguration(mainFile models.IaCFile, session Session, settings models.BackendDescriptor) models.IaCConfiguration {
	return models.IaCConfiguration{
		MainFile: mainFile,
		Backend:  ResolveBackend(session, settings),
	}
}
