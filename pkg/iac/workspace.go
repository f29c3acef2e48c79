package iac

import (
	"fmt"
	"os"
	"path/filepath"
)

// BackendFileName is the backend declaration written next to the main file
const BackendFileName = "backend.tf"

// BackendFileContent declares an s3 backend. Bucket, key and region are
// passed to init instead of being written here.
const BackendFileContent = `terraform {
  backend "s3" {}
}
`

// workspace is a scratch directory owned by a single plan or apply call
type workspace struct {
	dir string
}

func newWorkspace(baseDir string) (*workspace, error) {
	dir, err := os.MkdirTemp(baseDir, "sphinx-iac-")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return &workspace{dir: dir}, nil
}

// ValidateFilename checks that name is a plain file name with no directory part
func ValidateFilename(name string) error {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return nil
}

// WriteFile writes content under name. name must be a plain file name.
func (w *workspace) WriteFile(name, content string) error {
	if err := ValidateFilename(name); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(w.dir, name), []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// Close removes the workspace and everything in it
func (w *workspace) Close() error {
	return os.RemoveAll(w.dir)
}
