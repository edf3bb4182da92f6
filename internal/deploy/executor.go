package deploy

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rileyhilliard/sshman/internal/errors"
	"github.com/rileyhilliard/sshman/internal/hooks"
	"github.com/rileyhilliard/sshman/internal/logger"
	"github.com/rileyhilliard/sshman/internal/util"
	"github.com/rileyhilliard/sshman/pkg/sshutil"
)

// HookRunner fires named hooks. *hooks.Engine satisfies it.
type HookRunner interface {
	Execute(ctx context.Context, name string, hctx map[string]any) hooks.Result
}

// FilePair is one local file and where it should end up.
type FilePair struct {
	Local  string `json:"local"`
	Remote string `json:"remote"`
}

// StepResult is the outcome of one executed step. Command has any sudo
// password masked.
type StepResult struct {
	Type     StepType      `json:"type"`
	Command  string        `json:"command"`
	ExitCode int           `json:"exitCode"`
	Stderr   string        `json:"stderr,omitempty"`
	Duration time.Duration `json:"duration"`
}

// FileReport is what happened to one file.
type FileReport struct {
	Local    string       `json:"local"`
	Remote   string       `json:"remote"`
	TempFile string       `json:"tempFile"`
	Success  bool         `json:"success"`
	Steps    []StepResult `json:"steps"`
	Warnings []string     `json:"warnings,omitempty"`
}

// Report covers a whole batch.
type Report struct {
	Server  string       `json:"server"`
	Success bool         `json:"success"`
	Files   []FileReport `json:"files"`
}

// Lines renders one line per file, plus any warnings.
func (r Report) Lines() []string {
	var lines []string
	for _, f := range r.Files {
		if f.Success {
			lines = append(lines, fmt.Sprintf("✓ %s → %s", f.Local, f.Remote))
		} else {
			lines = append(lines, fmt.Sprintf("✗ %s → %s", f.Local, f.Remote))
		}
		for _, w := range f.Warnings {
			lines = append(lines, "  ⚠ "+w)
		}
	}
	return lines
}

// StepError is a hard step failure.
type StepError struct {
	File     string
	Step     StepType
	ExitCode int
	Stderr   string
	Err      error
}

func (e *StepError) Error() string {
	detail := strings.TrimSpace(e.Stderr)
	if detail == "" && e.Err != nil {
		detail = e.Err.Error()
	}
	if detail == "" {
		return fmt.Sprintf("%s step failed for %s (exit %d)", e.Step, e.File, e.ExitCode)
	}
	return fmt.Sprintf("%s step failed for %s (exit %d): %s", e.Step, e.File, e.ExitCode, detail)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Executor runs deployment plans against a remote session.
type Executor struct {
	hooks    HookRunner
	log      logger.Logger
	tempName func(base string) string
}

// NewExecutor creates an executor. hooks may be nil.
func NewExecutor(h HookRunner, log logger.Logger) *Executor {
	if log == nil {
		log = logger.Noop()
	}
	return &Executor{hooks: h, log: log, tempName: TempFilename}
}

// Deploy uploads each file to a temp path and runs its plan. The first hard
// failure stops the batch; files already deployed stay deployed.
func (e *Executor) Deploy(ctx context.Context, session sshutil.Session, server string, files []FilePair, opts Options) (Report, error) {
	report := Report{Server: server}
	if len(files) == 0 {
		return report, errors.New(errors.ErrDeploy, "No files to deploy", "Pass at least one local:remote pair")
	}
	if err := ValidateOptions(opts); err != nil {
		return report, err
	}

	locals := make([]string, len(files))
	remotes := make([]string, len(files))
	for i, f := range files {
		locals[i], remotes[i] = f.Local, f.Remote
	}

	e.fire(ctx, hooks.PreDeploy, map[string]any{"server": server, "files": locals})

	for _, f := range files {
		fr, err := e.deployFile(ctx, session, f, opts)
		report.Files = append(report.Files, fr)
		if err != nil {
			e.fire(ctx, hooks.OnError, map[string]any{
				"server": server,
				"files":  locals,
				"file":   f.Local,
				"error":  errors.OneLine(err),
			})
			return report, err
		}
		e.log.Info("deployed %s to %s:%s", f.Local, server, f.Remote)
	}

	report.Success = true
	e.fire(ctx, hooks.PostDeploy, map[string]any{"server": server, "files": remotes})
	return report, nil
}

func (e *Executor) deployFile(ctx context.Context, session sshutil.Session, f FilePair, opts Options) (FileReport, error) {
	fr := FileReport{Local: f.Local, Remote: f.Remote}

	strategy, err := BuildStrategy(f.Remote, opts)
	if err != nil {
		return fr, err
	}

	fr.TempFile = e.tempName(filepath.Base(f.Local))
	if err := session.PutFile(ctx, f.Local, fr.TempFile); err != nil {
		return fr, errors.WrapWithCode(err, errors.ErrDeploy,
			fmt.Sprintf("Upload of %s failed", f.Local),
			"Check the local file exists and /tmp on the server is writable")
	}

	for i, step := range strategy.Steps {
		sr, runErr := e.runStep(ctx, session, step, fr.TempFile, opts.secret())
		fr.Steps = append(fr.Steps, sr)

		if runErr == nil && sr.ExitCode == 0 {
			continue
		}

		switch step.Type {
		case StepCleanup:
			e.log.Warn("cleanup of %s failed: %s", fr.TempFile, failureDetail(sr, runErr))
			continue
		case StepBackup:
			warning := fmt.Sprintf("backup of %s failed: %s", f.Remote, failureDetail(sr, runErr))
			fr.Warnings = append(fr.Warnings, warning)
			e.log.Warn("%s", warning)
			continue
		}

		stepErr := &StepError{File: f.Remote, Step: step.Type, ExitCode: sr.ExitCode, Stderr: sr.Stderr, Err: runErr}
		e.cleanupAfter(ctx, session, strategy.Steps[i+1:], fr.TempFile, &fr)
		return fr, errors.WrapWithCode(stepErr, errors.ErrDeploy,
			fmt.Sprintf("Deploying %s failed at the %s step", f.Remote, step.Type),
			suggestionFor(step.Type))
	}

	fr.Success = true
	return fr, nil
}

// cleanupAfter runs the cleanup step among rest, ignoring its outcome.
func (e *Executor) cleanupAfter(ctx context.Context, session sshutil.Session, rest []Step, tempFile string, fr *FileReport) {
	for _, step := range rest {
		if step.Type != StepCleanup {
			continue
		}
		sr, err := e.runStep(ctx, session, step, tempFile, "")
		fr.Steps = append(fr.Steps, sr)
		if err != nil || sr.ExitCode != 0 {
			e.log.Debug("cleanup of %s after failure: %s", tempFile, failureDetail(sr, err))
		}
	}
}

func (e *Executor) runStep(ctx context.Context, session sshutil.Session, step Step, tempFile, secret string) (StepResult, error) {
	cmd := step.Render(tempFile)
	masked := util.MaskSecret(cmd, secret)
	e.log.Debug("deploy %s: %s", step.Type, masked)

	res, err := session.Run(ctx, cmd)
	sr := StepResult{
		Type:     step.Type,
		Command:  masked,
		ExitCode: res.ExitCode,
		Stderr:   res.Stderr,
		Duration: res.Duration,
	}
	if err != nil && sr.ExitCode == 0 {
		sr.ExitCode = -1
	}
	return sr, err
}

func (e *Executor) fire(ctx context.Context, name string, hctx map[string]any) {
	if e.hooks == nil {
		return
	}
	if res := e.hooks.Execute(ctx, name, hctx); !res.Success {
		e.log.Warn("%s hook failed", name)
	}
}

func failureDetail(sr StepResult, err error) string {
	if err != nil {
		return errors.OneLine(err)
	}
	if msg := strings.TrimSpace(sr.Stderr); msg != "" {
		return msg
	}
	return fmt.Sprintf("exit %d", sr.ExitCode)
}

func suggestionFor(step StepType) string {
	switch step {
	case StepMove:
		return "Check the destination directory is writable, or deploy with sudo"
	case StepChown, StepChmod:
		return "Changing owner or mode usually needs sudo; pass sudo or a sudo password"
	case StepRestart:
		return "The file is in place; run the restart command by hand to see its output"
	default:
		return ""
	}
}
