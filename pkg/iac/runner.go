package iac

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// DefaultWaitDelay bounds how long Run waits for output pipes after the
// process is killed on cancellation
const DefaultWaitDelay = 5 * time.Second

// Command is one tool invocation inside a workspace
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string
}

// Argv returns the program followed by its arguments
func (c Command) Argv() []string {
	return append([]string{c.Name}, c.Args...)
}

// CommandResult is the raw outcome of a finished process
type CommandResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// CommandRunner runs a command to completion. A non-zero exit is not an
// error; error is reserved for processes that could not run at all or were
// cut short by the context.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (CommandResult, error)
}

// ExecRunner runs commands as local processes
type ExecRunner struct {
	// WaitDelay overrides DefaultWaitDelay when positive
	WaitDelay time.Duration
}

// Run executes the command and captures its output
func (r ExecRunner) Run(ctx context.Context, cmd Command) (CommandResult, error) {
	if cmd.Name == "" {
		return CommandResult{}, ErrEmptyCommand
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), cmd.Env...)
	c.WaitDelay = DefaultWaitDelay
	if r.WaitDelay > 0 {
		c.WaitDelay = r.WaitDelay
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	result := CommandResult{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, fmt.Errorf("%s interrupted: %w", cmd.Name, ctxErr)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("failed to run %s: %w", cmd.Name, err)
	}

	return result, nil
}
