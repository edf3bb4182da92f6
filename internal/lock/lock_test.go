package lock

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/rileyhilliard/sshman/internal/errors"
	sshtesting "github.com/rileyhilliard/sshman/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quick() Config {
	return Config{Timeout: 50 * time.Millisecond, Poll: 10 * time.Millisecond}
}

func TestAcquireRelease(t *testing.T) {
	session := sshtesting.NewMockSession("web")
	ctx := context.Background()

	l, err := Acquire(ctx, session, "web", quick(), NewInfo("deploy"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/sshman-web.lock", l.Dir)
	assert.True(t, session.FS().IsDir(l.Dir))

	data, err := session.FS().ReadFile("/tmp/sshman-web.lock/info.json")
	require.NoError(t, err)
	info, err := ParseInfo(data)
	require.NoError(t, err)
	assert.Equal(t, "deploy", info.Operation)

	assert.Contains(t, Holder(ctx, session, "web", ""), "deploy")

	require.NoError(t, l.Release(ctx))
	assert.False(t, session.FS().Exists(l.Dir))
	assert.Empty(t, Holder(ctx, session, "web", ""))
}

func TestAcquire_HeldTimesOut(t *testing.T) {
	session := sshtesting.NewMockSession("web")
	ctx := context.Background()

	first, err := Acquire(ctx, session, "web", quick(), &Info{User: "alice", Hostname: "laptop", PID: 42, Started: time.Now()})
	require.NoError(t, err)

	_, err = Acquire(ctx, session, "web", quick(), NewInfo("deploy"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrLock))
	assert.True(t, stderrors.Is(err, ErrLocked))
	assert.Contains(t, errors.OneLine(err), "alice@laptop (pid 42")

	require.NoError(t, first.Release(ctx))
	second, err := Acquire(ctx, session, "web", quick(), NewInfo("deploy"))
	require.NoError(t, err)
	require.NoError(t, second.Release(ctx))
}

func TestAcquire_BreaksStaleLock(t *testing.T) {
	session := sshtesting.NewMockSession("web")
	ctx := context.Background()

	old := &Info{User: "bob", Hostname: "ci", PID: 7, Started: time.Now().Add(-time.Hour)}
	_, err := Acquire(ctx, session, "web", quick(), old)
	require.NoError(t, err)

	cfg := quick()
	cfg.Stale = time.Minute
	l, err := Acquire(ctx, session, "web", cfg, NewInfo("deploy"))
	require.NoError(t, err)
	assert.Contains(t, Holder(ctx, session, "web", ""), "deploy")
	require.NoError(t, l.Release(ctx))
}

func TestAcquire_ContextCancelled(t *testing.T) {
	session := sshtesting.NewMockSession("web")
	_, err := Acquire(context.Background(), session, "web", quick(), NewInfo("a"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := quick()
	cfg.Timeout = time.Minute
	_, err = Acquire(ctx, session, "web", cfg, NewInfo("b"))
	require.Error(t, err)
}

func TestForceRelease(t *testing.T) {
	session := sshtesting.NewMockSession("web")
	ctx := context.Background()

	_, err := Acquire(ctx, session, "web", Config{Dir: "/var/lock"}, &Info{User: "carol", Hostname: "h", PID: 1})
	require.NoError(t, err)

	who, err := ForceRelease(ctx, session, "web", "/var/lock")
	require.NoError(t, err)
	assert.Contains(t, who, "carol@h")
	assert.False(t, session.FS().Exists("/var/lock/sshman-web.lock"))
}

func TestReleaseNil(t *testing.T) {
	var l *Lock
	assert.NoError(t, l.Release(context.Background()))
}

func TestInfoString(t *testing.T) {
	info := &Info{User: "u", Hostname: "h", PID: 3}
	assert.Equal(t, "u@h (pid 3)", info.String())
}
