package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
)

// WorkspaceRepository stores named remote-state backends
type WorkspaceRepository struct {
	db *DB
}

// NewWorkspaceRepository creates a workspace repository on db
func NewWorkspaceRepository(db *DB) *WorkspaceRepository {
	return &WorkspaceRepository{db: db}
}

// Add saves a workspace; names are unique
func (r *WorkspaceRepository) Add(ctx context.Context, workspace models.Workspace) error {
	if workspace.Name == "" {
		return fmt.Errorf("workspace name cannot be empty")
	}

	backend, err := json.Marshal(workspace.Backend)
	if err != nil {
		return fmt.Errorf("failed to encode backend config: %w", err)
	}

	_, err = r.db.conn.ExecContext(ctx,
		"INSERT INTO workspaces (id, name, backend_config_json) VALUES (?, ?, ?)",
		workspace.ID.String(), workspace.Name, string(backend))
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("workspace %s: %w", workspace.Name, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to insert workspace: %w", err)
	}

	r.db.logger.Debugf("Saved workspace %s", workspace.Name)
	return nil
}

// List returns all workspaces ordered by name
func (r *WorkspaceRepository) List(ctx context.Context) ([]models.Workspace, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		"SELECT id, name, backend_config_json FROM workspaces ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query workspaces: %w", err)
	}
	defer rows.Close()

	workspaces := make([]models.Workspace, 0)
	for rows.Next() {
		workspace, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		workspaces = append(workspaces, workspace)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read workspaces: %w", err)
	}

	return workspaces, nil
}

// GetByName looks a workspace up by its unique name
func (r *WorkspaceRepository) GetByName(ctx context.Context, name string) (*models.Workspace, error) {
	row := r.db.conn.QueryRowContext(ctx,
		"SELECT id, name, backend_config_json FROM workspaces WHERE name = ?", name)

	workspace, err := scanWorkspace(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrWorkspaceNotFound, name)
		}
		return nil, err
	}

	return &workspace, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanWorkspace(row scanner) (models.Workspace, error) {
	var (
		workspace models.Workspace
		id        string
		backend   string
	)

	if err := row.Scan(&id, &workspace.Name, &backend); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return workspace, err
		}
		return workspace, fmt.Errorf("failed to scan workspace: %w", err)
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return workspace, fmt.Errorf("invalid workspace id %q: %w", id, err)
	}
	workspace.ID = parsed

	if err := json.Unmarshal([]byte(backend), &workspace.Backend); err != nil {
		return workspace, fmt.Errorf("invalid backend config for workspace %s: %w", workspace.Name, err)
	}

	return workspace, nil
}
