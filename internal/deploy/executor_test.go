package deploy

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rileyhilliard/sshman/internal/errors"
	"github.com/rileyhilliard/sshman/internal/hooks"
	"github.com/rileyhilliard/sshman/internal/logger"
	sshtesting "github.com/rileyhilliard/sshman/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type firedHook struct {
	name string
	ctx  map[string]any
}

type fakeHooks struct {
	mu    sync.Mutex
	fired []firedHook
}

func (f *fakeHooks) Execute(_ context.Context, name string, hctx map[string]any) hooks.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fired = append(f.fired, firedHook{name: name, ctx: hctx})
	return hooks.Result{Hook: name, Success: true}
}

func (f *fakeHooks) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, h := range f.fired {
		out = append(out, h.name)
	}
	return out
}

func (f *fakeHooks) get(name string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range f.fired {
		if h.name == name {
			return h.ctx
		}
	}
	return nil
}

func writeLocal(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func newTestExecutor() (*Executor, *fakeHooks, *logger.BufferLogger) {
	h := &fakeHooks{}
	log := logger.NewBufferLogger()
	return NewExecutor(h, log), h, log
}

func TestDeploy_BatchSucceeds(t *testing.T) {
	dir := t.TempDir()
	index := writeLocal(t, dir, "index.html", "<h1>hi</h1>")
	app := writeLocal(t, dir, "app.js", "console.log(1)")

	session := sshtesting.NewMockSession("web")
	e, h, _ := newTestExecutor()

	files := []FilePair{
		{Local: index, Remote: "/var/www/html/index.html"},
		{Local: app, Remote: "/var/www/html/js/app.js"},
	}
	report, err := e.Deploy(context.Background(), session, "web", files, Options{Restart: "nginx"})
	require.NoError(t, err)

	assert.True(t, report.Success)
	require.Len(t, report.Files, 2)
	for _, f := range report.Files {
		assert.True(t, f.Success)
		assert.Empty(t, f.Warnings)
	}

	got, ok := session.FS().Stat("/var/www/html/js/app.js")
	require.True(t, ok)
	assert.Equal(t, "console.log(1)", string(got.Content))
	assert.Equal(t, "www-data:www-data", got.Owner)
	assert.Equal(t, os.FileMode(0o644), got.Mode)

	assert.Empty(t, session.FS().Files("/tmp/"), "temp uploads are moved or cleaned up")

	assert.Equal(t, []string{hooks.PreDeploy, hooks.PostDeploy}, h.names())
	assert.Equal(t, "web", h.get(hooks.PreDeploy)["server"])
	assert.Equal(t, []string{index, app}, h.get(hooks.PreDeploy)["files"])
	assert.Equal(t, []string{"/var/www/html/index.html", "/var/www/html/js/app.js"}, h.get(hooks.PostDeploy)["files"])

	assert.Equal(t, []string{
		"✓ " + index + " → /var/www/html/index.html",
		"✓ " + app + " → /var/www/html/js/app.js",
	}, report.Lines())
}

func TestDeploy_BacksUpExistingFile(t *testing.T) {
	fixedNow(t)
	dir := t.TempDir()
	local := writeLocal(t, dir, "app.conf", "new")

	session := sshtesting.NewMockSession("web")
	sshtesting.WithFiles(session, map[string]string{"/srv/app/app.conf": "old"})

	e, _, _ := newTestExecutor()
	_, err := e.Deploy(context.Background(), session, "web",
		[]FilePair{{Local: local, Remote: "/srv/app/app.conf"}}, Options{})
	require.NoError(t, err)

	current, err := session.FS().ReadFile("/srv/app/app.conf")
	require.NoError(t, err)
	assert.Equal(t, "new", string(current))

	backup, err := session.FS().ReadFile("/srv/app/app.conf.bak-20240305-140709")
	require.NoError(t, err)
	assert.Equal(t, "old", string(backup))
}

func TestDeploy_BackupFailureIsSoft(t *testing.T) {
	dir := t.TempDir()
	local := writeLocal(t, dir, "a.txt", "a")

	session := sshtesting.NewMockSession("web")
	session.SetCommandResponse(`^\[ ! -e`, sshtesting.CommandResponse{ExitCode: 1, Stderr: "cp: Permission denied\n"})

	e, h, log := newTestExecutor()
	report, err := e.Deploy(context.Background(), session, "web",
		[]FilePair{{Local: local, Remote: "/srv/a.txt"}}, Options{})
	require.NoError(t, err)

	assert.True(t, report.Success)
	require.Len(t, report.Files[0].Warnings, 1)
	assert.Contains(t, report.Files[0].Warnings[0], "cp: Permission denied")
	assert.True(t, session.FS().IsFile("/srv/a.txt"))
	assert.True(t, log.HasLevel("warn"))
	assert.Equal(t, []string{hooks.PreDeploy, hooks.PostDeploy}, h.names())
	assert.Contains(t, report.Lines()[1], "⚠ backup of /srv/a.txt failed")
}

func TestDeploy_MoveFailureAbortsBatchWithoutRollback(t *testing.T) {
	dir := t.TempDir()
	a := writeLocal(t, dir, "a.txt", "a")
	b := writeLocal(t, dir, "b.txt", "b")
	c := writeLocal(t, dir, "c.txt", "c")

	session := sshtesting.NewMockSession("web")
	session.SetCommandResponse(`mv .* '/srv/b\.txt'$`, sshtesting.CommandResponse{ExitCode: 1, Stderr: "mv: Permission denied\n"})

	e, h, _ := newTestExecutor()
	files := []FilePair{
		{Local: a, Remote: "/srv/a.txt"},
		{Local: b, Remote: "/srv/b.txt"},
		{Local: c, Remote: "/srv/c.txt"},
	}
	report, err := e.Deploy(context.Background(), session, "web", files, Options{Backup: boolPtr(false)})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrDeploy))

	var stepErr *StepError
	require.True(t, stderrors.As(err, &stepErr))
	assert.Equal(t, StepMove, stepErr.Step)
	assert.Equal(t, "/srv/b.txt", stepErr.File)
	assert.Equal(t, 1, stepErr.ExitCode)
	assert.Contains(t, stepErr.Stderr, "mv: Permission denied")

	assert.False(t, report.Success)
	require.Len(t, report.Files, 2)
	assert.True(t, report.Files[0].Success)
	assert.False(t, report.Files[1].Success)

	assert.True(t, session.FS().IsFile("/srv/a.txt"), "earlier files stay deployed")
	assert.False(t, session.FS().IsFile("/srv/c.txt"))
	for _, cmd := range session.Commands() {
		assert.NotContains(t, cmd, "c.txt")
	}
	assert.Len(t, session.Uploads(), 2)

	assert.Empty(t, session.FS().Files("/tmp/"), "the failed file's temp upload is cleaned up")

	assert.Equal(t, []string{hooks.PreDeploy, hooks.OnError}, h.names())
	assert.Contains(t, h.get(hooks.OnError)["error"], "move step")
}

func TestDeploy_UploadFailureAborts(t *testing.T) {
	dir := t.TempDir()
	local := writeLocal(t, dir, "a.txt", "a")

	session := sshtesting.NewMockSession("web")
	session.FailPut(stderrors.New("sftp: permission denied"))

	e, h, _ := newTestExecutor()
	_, err := e.Deploy(context.Background(), session, "web",
		[]FilePair{{Local: local, Remote: "/srv/a.txt"}}, Options{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrDeploy))
	assert.Contains(t, errors.OneLine(err), "sftp: permission denied")
	assert.Empty(t, session.Commands())
	assert.Equal(t, []string{hooks.PreDeploy, hooks.OnError}, h.names())
}

func TestDeploy_MissingLocalFile(t *testing.T) {
	session := sshtesting.NewMockSession("web")
	e, _, _ := newTestExecutor()

	_, err := e.Deploy(context.Background(), session, "web",
		[]FilePair{{Local: filepath.Join(t.TempDir(), "nope"), Remote: "/srv/a.txt"}}, Options{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrDeploy))
}

func TestDeploy_CleanupFailureNeverFails(t *testing.T) {
	dir := t.TempDir()
	local := writeLocal(t, dir, "a.txt", "a")

	session := sshtesting.NewMockSession("web")
	session.SetCommandResponse(`^rm -f`, sshtesting.CommandResponse{ExitCode: 1, Stderr: "rm: busy\n"})

	e, h, log := newTestExecutor()
	report, err := e.Deploy(context.Background(), session, "web",
		[]FilePair{{Local: local, Remote: "/srv/a.txt"}}, Options{Backup: boolPtr(false)})
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Empty(t, report.Files[0].Warnings)
	assert.True(t, log.HasLevel("warn"))
	assert.Equal(t, []string{hooks.PreDeploy, hooks.PostDeploy}, h.names())
}

func TestDeploy_TransportErrorInStep(t *testing.T) {
	dir := t.TempDir()
	local := writeLocal(t, dir, "a.txt", "a")

	session := sshtesting.NewMockSession("web")
	session.SetCommandResponse(`chmod`, sshtesting.CommandResponse{Error: stderrors.New("connection reset")})

	e, _, _ := newTestExecutor()
	_, err := e.Deploy(context.Background(), session, "web",
		[]FilePair{{Local: local, Remote: "/srv/a.txt"}}, Options{Permissions: "600", Backup: boolPtr(false)})
	require.Error(t, err)

	var stepErr *StepError
	require.True(t, stderrors.As(err, &stepErr))
	assert.Equal(t, StepChmod, stepErr.Step)
	assert.Equal(t, -1, stepErr.ExitCode)
	assert.Contains(t, stepErr.Error(), "connection reset")
}

func TestDeploy_SudoPasswordIsMasked(t *testing.T) {
	dir := t.TempDir()
	local := writeLocal(t, dir, "a.txt", "a")

	session := sshtesting.NewMockSession("web")
	e, _, log := newTestExecutor()

	report, err := e.Deploy(context.Background(), session, "web",
		[]FilePair{{Local: local, Remote: "/srv/app/a.txt"}}, Options{SudoPassword: "hunter2"})
	require.NoError(t, err)
	assert.True(t, session.FS().IsFile("/srv/app/a.txt"))

	var sawSudo bool
	for _, step := range report.Files[0].Steps {
		assert.NotContains(t, step.Command, "hunter2")
		if strings.Contains(step.Command, "sudo -S") {
			sawSudo = true
			assert.Contains(t, step.Command, "'****'")
		}
	}
	assert.True(t, sawSudo)

	for _, msg := range log.Snapshot() {
		assert.NotContains(t, msg.Message, "hunter2")
	}
}

func TestDeploy_RejectsBadInput(t *testing.T) {
	session := sshtesting.NewMockSession("web")
	e, h, _ := newTestExecutor()

	_, err := e.Deploy(context.Background(), session, "web", nil, Options{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrDeploy))

	_, err = e.Deploy(context.Background(), session, "web",
		[]FilePair{{Local: "x", Remote: "/srv/x"}}, Options{Owner: "bad owner"})
	require.Error(t, err)
	assert.Contains(t, errors.OneLine(err), "Invalid owner")

	assert.Empty(t, h.names(), "no hooks fire for requests rejected up front")
	assert.Empty(t, session.Uploads())
}

func TestDeploy_NilHooks(t *testing.T) {
	dir := t.TempDir()
	local := writeLocal(t, dir, "a.txt", "a")
	session := sshtesting.NewMockSession("web")

	_, err := NewExecutor(nil, nil).Deploy(context.Background(), session, "web",
		[]FilePair{{Local: local, Remote: "/srv/a.txt"}}, Options{})
	require.NoError(t, err)
}
