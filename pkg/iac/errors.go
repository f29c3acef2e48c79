package iac

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidFilename is returned when a main file name is not a plain base name
	ErrInvalidFilename = errors.New("invalid IaC filename")

	// ErrEmptyCommand is returned when a runner is given no program
	ErrEmptyCommand = errors.New("command cannot be empty")
)

// ExecutionError is a hard failure running the IaC tool: the process could
// not be started or the workspace could not be prepared. Tool exits with a
// non-zero code are reported in plan and apply results instead.
type ExecutionError struct {
	Command []string
	Stage   string
	Cause   error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("terraform %s failed (%s): %v", e.Stage, strings.Join(e.Command, " "), e.Cause)
}

// Unwrap returns the underlying error
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// NewExecutionError creates a new execution error
func NewExecutionError(stage string, command []string, cause error) *ExecutionError {
	return &ExecutionError{
		Command: command,
		Stage:   stage,
		Cause:   cause,
	}
}

// IsExecutionError checks if an error is a hard execution failure
func IsExecutionError(err error) bool {
	var execErr *ExecutionError
	return errors.As(err, &execErr)
}
