package iac

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/sphinx/pkg/metrics"
	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
)

// DefaultBinary is the IaC tool executable
const DefaultBinary = "terraform"

// Plan exit codes with -detailed-exitcode
const (
	PlanExitNoChanges = 0
	PlanExitError     = 1
	PlanExitChanges   = 2
)

var commonFlags = []string{"-input=false", "-no-color"}

// Options configures the Terraform adapter
type Options struct {
	// Binary is the executable to run; empty means DefaultBinary
	Binary string

	// Env is appended to the process environment
	Env []string

	// TempDir is the parent of scratch workspaces; empty means the OS default
	TempDir string
}

// TerraformAdapter drives terraform init, plan and apply in scratch workspaces
type TerraformAdapter struct {
	runner   CommandRunner
	decoder  *Decoder
	verifier BackendVerifier
	opts     Options
	logger   *logrus.Logger
}

// NewTerraformAdapter creates a new adapter. A nil runner runs local processes.
func NewTerraformAdapter(runner CommandRunner, opts Options, logger *logrus.Logger) *TerraformAdapter {
	if runner == nil {
		runner = ExecRunner{}
	}
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &TerraformAdapter{
		runner:  runner,
		decoder: NewLocaleDecoder(),
		opts:    opts,
		logger:  logger,
	}
}

// WithVerifier sets a hook that checks the backend before init
func (t *TerraformAdapter) WithVerifier(verifier BackendVerifier) *TerraformAdapter {
	t.verifier = verifier
	return t
}

// WithDecoder overrides the output decoder
func (t *TerraformAdapter) WithDecoder(decoder *Decoder) *TerraformAdapter {
	t.decoder = decoder
	return t
}

// output is a decoded process result
type output struct {
	stdout   string
	stderr   string
	exitCode int
}

// Plan runs terraform plan. Tool failures are reported in the returned plan;
// error is reserved for failures to prepare the workspace or start the tool.
func (t *TerraformAdapter) Plan(ctx context.Context, cfg models.IaCConfiguration) (plan models.ExecutionPlan, err error) {
	started := time.Now()
	defer func() {
		outcome := metrics.OutcomeSuccess
		if err != nil || plan.Failed() {
			outcome = metrics.OutcomeError
		}
		metrics.ObserveIaCRun("plan", time.Since(started), outcome)
	}()

	ws, err := t.prepare(cfg)
	if err != nil {
		return models.ExecutionPlan{}, err
	}
	defer t.cleanup(ws)

	initialized, stderr, err := t.initialize(ctx, ws, cfg)
	if err != nil {
		return models.ExecutionPlan{}, err
	}
	if !initialized {
		return planFailure(stderr), nil
	}

	out, err := t.run(ctx, ws, "plan", flags("-detailed-exitcode"))
	if err != nil {
		return models.ExecutionPlan{}, err
	}

	if out.exitCode == PlanExitError {
		return planFailure(out.stderr), nil
	}

	changes := ParsePlanOutput(out.stdout)
	status := models.PlanChangesPresent
	if out.exitCode == PlanExitNoChanges || (out.exitCode != PlanExitChanges && len(changes) == 0) {
		status = models.PlanNoChanges
	}

	t.logger.Infof("Terraform plan finished with %d resource change(s)", len(changes))
	return models.ExecutionPlan{
		Changes:   changes,
		RawOutput: out.stdout,
		Status:    status,
	}, nil
}

// Apply runs terraform apply with auto-approve. Success is exit code 0.
func (t *TerraformAdapter) Apply(ctx context.Context, cfg models.IaCConfiguration) (result models.ApplyResult, err error) {
	started := time.Now()
	defer func() {
		outcome := metrics.OutcomeSuccess
		if err != nil || !result.Success {
			outcome = metrics.OutcomeError
		}
		metrics.ObserveIaCRun("apply", time.Since(started), outcome)
	}()

	ws, err := t.prepare(cfg)
	if err != nil {
		return models.ApplyResult{}, err
	}
	defer t.cleanup(ws)

	initialized, stderr, err := t.initialize(ctx, ws, cfg)
	if err != nil {
		return models.ApplyResult{}, err
	}
	if !initialized {
		return applyFailure(stderr), nil
	}

	out, err := t.run(ctx, ws, "apply", flags("-auto-approve"))
	if err != nil {
		return models.ApplyResult{}, err
	}

	if out.exitCode != 0 {
		return applyFailure(out.stderr), nil
	}

	t.logger.Info("Terraform apply finished successfully")
	return models.ApplyResult{Success: true, RawOutput: out.stdout}, nil
}

// prepare creates the workspace and writes the main and backend files
func (t *TerraformAdapter) prepare(cfg models.IaCConfiguration) (*workspace, error) {
	ws, err := newWorkspace(t.opts.TempDir)
	if err != nil {
		return nil, NewExecutionError("workspace", nil, err)
	}

	if err := ws.WriteFile(cfg.MainFile.Filename, cfg.MainFile.Content); err != nil {
		t.cleanup(ws)
		return nil, NewExecutionError("workspace", nil, err)
	}

	if cfg.Backend != nil {
		if err := ws.WriteFile(BackendFileName, BackendFileContent); err != nil {
			t.cleanup(ws)
			return nil, NewExecutionError("workspace", nil, err)
		}
	}

	return ws, nil
}

func (t *TerraformAdapter) cleanup(ws *workspace) {
	if err := ws.Close(); err != nil {
		t.logger.Warnf("Failed to remove workspace %s: %v", ws.dir, err)
	}
}

// initialize verifies the backend and runs init. initialized is false when
// verification or init failed; stderr then carries the reason.
func (t *TerraformAdapter) initialize(ctx context.Context, ws *workspace, cfg models.IaCConfiguration) (initialized bool, stderr string, err error) {
	if cfg.Backend != nil && t.verifier != nil {
		if verr := t.verifier.VerifyBackend(ctx, *cfg.Backend); verr != nil {
			t.logger.Errorf("Backend verification failed: %v", verr)
			return false, fmt.Sprintf("backend verification failed: %v", verr), nil
		}
	}

	out, err := t.run(ctx, ws, "init", InitArgs(cfg.Backend))
	if err != nil {
		return false, "", err
	}
	if out.exitCode != 0 {
		return false, out.stderr, nil
	}
	return true, "", nil
}

// InitArgs returns the init arguments, carrying the backend settings when present
func InitArgs(backend *models.BackendDescriptor) []string {
	args := flags()
	if backend != nil {
		args = append(args,
			"-backend-config=bucket="+backend.Bucket,
			"-backend-config=key="+backend.Key,
			"-backend-config=region="+backend.Region,
		)
	}
	return args
}

func flags(extra ...string) []string {
	args := make([]string, 0, len(commonFlags)+len(extra))
	args = append(args, commonFlags...)
	return append(args, extra...)
}

func (t *TerraformAdapter) run(ctx context.Context, ws *workspace, subcommand string, flags []string) (output, error) {
	cmd := Command{
		Name: t.opts.Binary,
		Args: append([]string{subcommand}, flags...),
		Dir:  ws.dir,
		Env:  t.opts.Env,
	}

	t.logger.Infof("Running in %s: %v", ws.dir, cmd.Argv())
	result, err := t.runner.Run(ctx, cmd)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return output{}, NewExecutionError(subcommand, cmd.Argv(), err)
	}

	out := output{
		stdout:   t.decoder.Decode(result.Stdout),
		stderr:   t.decoder.Decode(result.Stderr),
		exitCode: result.ExitCode,
	}
	if out.stdout != "" {
		t.logger.Debugf("terraform %s stdout:\n%s", subcommand, out.stdout)
	}
	if out.stderr != "" {
		t.logger.Warnf("terraform %s stderr:\n%s", subcommand, out.stderr)
	}
	return out, nil
}

func planFailure(stderr string) models.ExecutionPlan {
	return models.ExecutionPlan{
		Changes:   []models.ResourceChange{},
		RawOutput: models.PlanErrorMarker + ":\n" + stderr,
		Status:    models.PlanError,
	}
}

func applyFailure(stderr string) models.ApplyResult {
	return models.ApplyResult{
		Success:   false,
		RawOutput: models.ApplyErrorMarker + ":\n" + stderr,
	}
}
