package sshutil

import (
	"context"
	"time"
)

// Result is the outcome of a remote command.
// ExitCode is -1 if the command couldn't be run at all.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Success reports whether the command exited with status 0.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Session is a live connection to one remote server.
// Both the real Client and the mock in pkg/sshutil/testing satisfy it.
type Session interface {
	// Run executes cmd in a fresh channel. A non-zero exit with a nil error
	// means the command ran but failed.
	Run(ctx context.Context, cmd string) (Result, error)

	// PutFile copies a local file to remotePath over SFTP, creating parent
	// directories as needed.
	PutFile(ctx context.Context, localPath, remotePath string) error

	// GetFile copies remotePath to a local file.
	GetFile(ctx context.Context, remotePath, localPath string) error

	// Alive reports whether the connection still answers keepalives.
	Alive() bool

	// Close tears down the connection.
	Close() error
}
