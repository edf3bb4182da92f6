// Package host keeps one live remote session per server.
package host

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rileyhilliard/sshman/internal/config"
	"github.com/rileyhilliard/sshman/internal/errors"
	"github.com/rileyhilliard/sshman/internal/logger"
	"github.com/rileyhilliard/sshman/pkg/sshutil"
)

// DialFunc opens a new session to t.
type DialFunc func(ctx context.Context, t sshutil.Target, timeout time.Duration) (sshutil.Session, error)

// DialSSH is the production DialFunc.
func DialSSH(ctx context.Context, t sshutil.Target, timeout time.Duration) (sshutil.Session, error) {
	client, err := sshutil.Dial(ctx, t, timeout)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// TargetFor converts a server record into a transport target.
func TargetFor(rec config.ServerRecord) sshutil.Target {
	return sshutil.Target{
		Name:     rec.Name,
		Host:     rec.Host,
		Port:     rec.Port,
		User:     rec.User,
		Password: rec.Password,
		KeyPath:  rec.KeyPath,
	}
}

// DefaultAliveTimeout bounds the keepalive check on a cached session when
// the registry has no connect timeout.
const DefaultAliveTimeout = 5 * time.Second

// ConnectHook runs around a dial that actually opens a new session.
type ConnectHook func(ctx context.Context, rec config.ServerRecord)

// Registry caches sessions by server name. Concurrent Get calls for the same
// server share a single dial; different servers connect independently.
type Registry struct {
	dial    DialFunc
	timeout time.Duration
	log     logger.Logger

	beforeDial ConnectHook
	afterDial  ConnectHook

	mu       sync.Mutex
	sessions map[string]sshutil.Session
	flight   singleflight.Group
}

// NewRegistry creates an empty registry.
func NewRegistry(dial DialFunc, timeout time.Duration, log logger.Logger) *Registry {
	if dial == nil {
		dial = DialSSH
	}
	if log == nil {
		log = logger.Noop()
	}
	return &Registry{
		dial:     dial,
		timeout:  timeout,
		log:      log,
		sessions: make(map[string]sshutil.Session),
	}
}

// WithConnectHooks sets functions run before and after a new session is
// dialed. Callers sharing an in-flight dial don't run them again; after only
// runs when the dial succeeds.
func (r *Registry) WithConnectHooks(before, after ConnectHook) *Registry {
	r.beforeDial = before
	r.afterDial = after
	return r
}

// Get returns the cached session for rec, dialing if there is none or the
// cached one no longer answers.
//
// The dial is detached from ctx so one caller giving up doesn't fail the
// others waiting on the same dial; ctx only bounds how long this caller waits.
func (r *Registry) Get(ctx context.Context, rec config.ServerRecord) (sshutil.Session, error) {
	if s := r.cached(ctx, rec.Name); s != nil {
		r.log.Debug("reusing session to %s", rec.Name)
		return s, nil
	}

	ch := r.flight.DoChan(rec.Name, func() (interface{}, error) {
		return r.connect(context.WithoutCancel(ctx), rec)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			r.log.Debug("shared in-flight connect to %s", rec.Name)
		}
		return res.Val.(sshutil.Session), nil
	case <-ctx.Done():
		return nil, errors.WrapWithCode(ctx.Err(), errors.ErrTimeout,
			fmt.Sprintf("Gave up waiting for the connection to '%s'", rec.Name),
			"The connection attempt continues in the background; try again shortly")
	}
}

func (r *Registry) connect(ctx context.Context, rec config.ServerRecord) (sshutil.Session, error) {
	// A flight that finished between cached() and DoChan may have stored one.
	if s := r.cached(ctx, rec.Name); s != nil {
		return s, nil
	}

	if r.beforeDial != nil {
		r.beforeDial(ctx, rec)
	}

	dialCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	r.log.Debug("connecting to %s (%s)", rec.Name, rec.Address())
	s, err := r.dial(dialCtx, TargetFor(rec), r.timeout)
	if err != nil {
		return nil, wrapDialError(err, rec)
	}

	r.mu.Lock()
	r.sessions[rec.Name] = s
	r.mu.Unlock()

	r.log.Info("connected to %s", rec.Name)
	if r.afterDial != nil {
		r.afterDial(ctx, rec)
	}
	return s, nil
}

// cached returns the session for name if it still answers a keepalive. The
// keepalive runs outside r.mu and is bounded, so a half-open connection to
// one server never stalls lookups for another.
func (r *Registry) cached(ctx context.Context, name string) sshutil.Session {
	r.mu.Lock()
	s, ok := r.sessions[name]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	if r.alive(ctx, s) {
		return s
	}
	if ctx.Err() != nil {
		return nil
	}

	r.mu.Lock()
	if r.sessions[name] == s {
		delete(r.sessions, name)
	}
	r.mu.Unlock()

	r.log.Debug("session to %s is dead, reconnecting", name)
	s.Close() //nolint:errcheck // Cleanup, error not actionable
	return nil
}

func (r *Registry) alive(ctx context.Context, s sshutil.Session) bool {
	wait := r.timeout
	if wait <= 0 {
		wait = DefaultAliveTimeout
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	done := make(chan bool, 1)
	go func() { done <- s.Alive() }()

	select {
	case ok := <-done:
		return ok
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func wrapDialError(err error, rec config.ServerRecord) error {
	if errors.CodeOf(err) != "" {
		return err
	}
	return errors.WrapWithCode(err, errors.ErrSSH,
		fmt.Sprintf("Couldn't connect to '%s' at %s", rec.Name, rec.Address()),
		"Check the server's host, port and credentials with: sshman test "+rec.Name)
}

// Close closes and forgets the session for name, if any.
func (r *Registry) Close(name string) {
	r.mu.Lock()
	s, ok := r.sessions[name]
	delete(r.sessions, name)
	r.mu.Unlock()

	if ok {
		s.Close() //nolint:errcheck // Cleanup, error not actionable
	}
}

// CloseAll closes every cached session. Call it on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]sshutil.Session)
	r.mu.Unlock()

	for name, s := range sessions {
		if err := s.Close(); err != nil {
			r.log.Debug("closing session to %s: %v", name, err)
		}
	}
}

// Has reports whether a session for name is cached. It doesn't check that
// the session is still alive.
func (r *Registry) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[name]
	return ok
}

// Size returns the number of cached sessions.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Names returns the cached server names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
