package sshutil

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/rileyhilliard/sshman/internal/errors"
	"golang.org/x/crypto/ssh"
)

// Run executes cmd on the remote host and captures its output. If ctx ends
// before the command finishes, the remote process is signalled, the session
// is closed, and an ErrTimeout error is returned with whatever output was
// captured so far.
func (c *Client) Run(ctx context.Context, cmd string) (Result, error) {
	start := time.Now()

	session, err := c.ssh.NewSession()
	if err != nil {
		return Result{ExitCode: -1}, errors.WrapWithCode(err, errors.ErrSSH,
			"Failed to create SSH session",
			"Connection may have been closed. Try reconnecting.")
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	var runErr error
	select {
	case runErr = <-done:
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		session.Close()
		res := Result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: -1, Duration: time.Since(start)}
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return res, errors.WrapWithCode(ctx.Err(), errors.ErrTimeout,
				fmt.Sprintf("Command on '%s' timed out after %s", c.Name, res.Duration.Round(time.Millisecond)),
				"Raise command_timeout in settings.yaml, or run long jobs in the background (nohup ... &).")
		}
		return res, errors.WrapWithCode(ctx.Err(), errors.ErrExec,
			fmt.Sprintf("Command on '%s' was cancelled", c.Name), "")
	}

	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if runErr != nil {
		var exitErr *ssh.ExitError
		if stderrors.As(runErr, &exitErr) {
			res.ExitCode = exitErr.ExitStatus()
			return res, nil
		}
		res.ExitCode = -1
		return res, errors.WrapWithCode(runErr, errors.ErrExec,
			fmt.Sprintf("Failed to execute command on '%s'", c.Name),
			"The connection may have dropped. Try again.")
	}

	return res, nil
}
