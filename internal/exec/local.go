// Package exec runs commands on the local machine. Hook actions use it; remote
// commands go through pkg/sshutil instead.
package exec

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"os/exec"
	"time"

	"github.com/rileyhilliard/sshman/internal/errors"
)

// LocalResult holds the captured output of a local command.
type LocalResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Success reports whether the command exited with status 0.
func (r LocalResult) Success() bool {
	return r.ExitCode == 0
}

// Shell returns the shell used to interpret local commands: $SHELL, or /bin/sh.
func Shell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "/bin/sh"
}

// waitDelay bounds how long Run waits for output pipes after ctx expires,
// in case a background child still holds them open.
const waitDelay = 500 * time.Millisecond

// RunLocal runs cmd through the user's shell and captures stdout and stderr.
// A non-zero exit is not an error; ExitCode carries it. Errors mean the
// command couldn't be run at all (ExitCode -1) or ctx expired (ErrTimeout).
// When ctx expires the shell and everything it started are killed.
func RunLocal(ctx context.Context, cmd string, workDir string, env []string) (LocalResult, error) {
	start := time.Now()

	command := exec.CommandContext(ctx, Shell(), "-c", cmd)
	killProcessGroup(command)
	command.WaitDelay = waitDelay
	if workDir != "" {
		command.Dir = workDir
	}
	if len(env) > 0 {
		command.Env = append(os.Environ(), env...)
	}

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	runErr := command.Run()
	result := LocalResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		result.ExitCode = -1
		if stderrors.Is(ctxErr, context.DeadlineExceeded) {
			return result, errors.WrapWithCode(ctxErr, errors.ErrTimeout,
				"Local command timed out",
				"Make the command faster or raise hook_timeout in settings.yaml.")
		}
		return result, errors.WrapWithCode(ctxErr, errors.ErrExec,
			"Local command was cancelled", "")
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if stderrors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		result.ExitCode = -1
		return result, errors.WrapWithCode(runErr, errors.ErrExec,
			"Couldn't run the command locally",
			"Make sure the command exists and is executable.")
	}

	return result, nil
}
