// Package lock serializes operations on a server across sshman processes
// with a lock directory on the remote. mkdir is the atomic primitive: it
// fails when the directory already exists.
package lock

import (
	"context"
	stderrors "errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rileyhilliard/sshman/internal/errors"
	"github.com/rileyhilliard/sshman/internal/util"
	"github.com/rileyhilliard/sshman/pkg/sshutil"
)

// ErrLocked is the cause of a lock timeout; check it with errors.Is.
var ErrLocked = stderrors.New("lock is held by another process")

// Config controls acquisition.
type Config struct {
	Dir     string        // parent directory on the remote, default /tmp
	Timeout time.Duration // how long to wait for a held lock
	Stale   time.Duration // locks older than this are broken; zero never
	Poll    time.Duration // pause between attempts, default 2s
}

func (c Config) withDefaults() Config {
	if c.Dir == "" {
		c.Dir = "/tmp"
	}
	if c.Poll <= 0 {
		c.Poll = 2 * time.Second
	}
	return c
}

// Lock is a held lock.
type Lock struct {
	Dir     string
	Info    *Info
	session sshutil.Session
}

// Dir returns the lock directory for server under parent.
func Dir(parent, server string) string {
	if parent == "" {
		parent = "/tmp"
	}
	return path.Join(parent, "sshman-"+server+".lock")
}

// Acquire takes the lock for server, waiting up to cfg.Timeout while
// someone else holds it.
func Acquire(ctx context.Context, session sshutil.Session, server string, cfg Config, info *Info) (*Lock, error) {
	cfg = cfg.withDefaults()
	dir := Dir(cfg.Dir, server)
	infoFile := path.Join(dir, "info.json")

	payload, err := info.Marshal()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrLock, "Couldn't encode lock info", "")
	}

	deadline := time.Now().Add(cfg.Timeout)
	for {
		if cfg.Stale > 0 && isStale(ctx, session, infoFile, cfg.Stale) {
			_ = remove(ctx, session, dir)
		}

		res, err := session.Run(ctx, "mkdir "+util.ShellQuote(dir))
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrLock,
				fmt.Sprintf("Couldn't create lock %s on %s", dir, server),
				"Check the SSH connection")
		}
		if res.Success() {
			write := fmt.Sprintf("printf '%%s\\n' %s > %s", util.ShellQuote(string(payload)), util.ShellQuote(infoFile))
			if res, err := session.Run(ctx, write); err != nil || !res.Success() {
				_ = remove(ctx, session, dir)
				return nil, errors.New(errors.ErrLock,
					fmt.Sprintf("Couldn't write %s on %s", infoFile, server),
					"Check disk space and permissions on "+cfg.Dir)
			}
			return &Lock{Dir: dir, Info: info, session: session}, nil
		}

		if !time.Now().Before(deadline) {
			return nil, errors.WrapWithCode(ErrLocked, errors.ErrLock,
				fmt.Sprintf("Timed out after %s waiting for the lock on %s, held by %s",
					cfg.Timeout, server, holder(ctx, session, infoFile)),
				"Wait for the other operation to finish, or run 'sshman unlock "+server+"' if it died")
		}

		wait := min(cfg.Poll, time.Until(deadline))
		select {
		case <-ctx.Done():
			return nil, errors.WrapWithCode(ctx.Err(), errors.ErrTimeout,
				"Gave up waiting for the lock on "+server, "")
		case <-time.After(wait):
		}
	}
}

// Release removes the lock. Releasing a nil lock is a no-op.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil || l.session == nil {
		return nil
	}
	return remove(ctx, l.session, l.Dir)
}

// ForceRelease removes the lock for server regardless of who holds it, and
// returns the previous holder.
func ForceRelease(ctx context.Context, session sshutil.Session, server, parent string) (string, error) {
	dir := Dir(parent, server)
	who := Holder(ctx, session, server, parent)
	return who, remove(ctx, session, dir)
}

// Holder describes who holds the lock for server, or "" when it is free.
func Holder(ctx context.Context, session sshutil.Session, server, parent string) string {
	dir := Dir(parent, server)
	res, err := session.Run(ctx, "test -d "+util.ShellQuote(dir))
	if err != nil || !res.Success() {
		return ""
	}
	return holder(ctx, session, path.Join(dir, "info.json"))
}

func isStale(ctx context.Context, session sshutil.Session, infoFile string, threshold time.Duration) bool {
	res, err := session.Run(ctx, "cat "+util.ShellQuote(infoFile))
	if err != nil || !res.Success() {
		return false
	}
	info, err := ParseInfo([]byte(res.Stdout))
	if err != nil {
		return false
	}
	return info.Age() > threshold
}

func holder(ctx context.Context, session sshutil.Session, infoFile string) string {
	res, err := session.Run(ctx, "cat "+util.ShellQuote(infoFile))
	if err != nil || !res.Success() {
		return "unknown"
	}
	info, err := ParseInfo([]byte(res.Stdout))
	if err != nil {
		return strings.TrimSpace(res.Stdout)
	}
	return info.String()
}

func remove(ctx context.Context, session sshutil.Session, dir string) error {
	res, err := session.Run(ctx, "rm -rf "+util.ShellQuote(dir))
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrLock,
			"Couldn't remove lock "+dir, "Check the SSH connection")
	}
	if !res.Success() {
		return errors.New(errors.ErrLock,
			"Couldn't remove lock "+dir,
			strings.TrimSpace(res.Stderr))
	}
	return nil
}
