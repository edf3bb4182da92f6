package tools

import (
	"context"
	stderrors "errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rileyhilliard/sshman/internal/deploy"
	"github.com/rileyhilliard/sshman/internal/errors"
	sshtesting "github.com/rileyhilliard/sshman/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute(t *testing.T) {
	tests := []struct {
		name        string
		server      string
		command     string
		cwd         string
		wantCommand string
		wantAlias   string
		wantStdout  string
		wantExit    int
	}{
		{
			name:        "default dir applied",
			server:      "prod",
			command:     "echo hello",
			wantCommand: "cd '/srv/app' && echo hello",
			wantStdout:  "hello\n",
		},
		{
			name:        "cwd overrides default dir",
			server:      "prod",
			command:     "echo hi",
			cwd:         "~/releases",
			wantCommand: "cd ~/'releases' && echo hi",
			wantStdout:  "hi\n",
		},
		{
			name:        "no dir",
			server:      "staging",
			command:     "echo hi",
			wantCommand: "echo hi",
			wantStdout:  "hi\n",
		},
		{
			name:        "alias expanded",
			server:      "staging",
			command:     "  disk ",
			wantCommand: "df -h",
			wantAlias:   "disk",
		},
		{
			name:        "non-zero exit is a result",
			server:      "staging",
			command:     "false",
			wantCommand: "false",
			wantExit:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			res, err := h.svc.Execute(context.Background(), tt.server, tt.command, tt.cwd)
			require.NoError(t, err)

			assert.Equal(t, tt.server, res.Server)
			assert.Equal(t, tt.wantCommand, res.Command)
			assert.Equal(t, tt.wantAlias, res.Alias)
			assert.Equal(t, tt.wantStdout, res.Stdout)
			assert.Equal(t, tt.wantExit, res.ExitCode)
			assert.Equal(t, tt.wantExit == 0, res.Success)
			assert.Equal(t, []string{tt.wantCommand}, h.session().Commands())
		})
	}
}

func TestExecute_EmptyCommand(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Execute(context.Background(), "prod", "   ", "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrExec))
	assert.Zero(t, h.dials())
}

func TestExecute_BenchHooks(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.ManageProfile("switch", "frappe")
	require.NoError(t, err)

	res, err := h.svc.Execute(context.Background(), "staging", "bench-update", "")
	require.NoError(t, err)
	assert.Equal(t, "bench-update", res.Alias)
	assert.Equal(t, "cd ~/frappe-bench && bench update", res.Command)

	assert.Equal(t, []string{
		`echo "Starting bench update on staging"`,
		`echo "bench update on staging exited 0"`,
	}, h.hookCommands())
}

func TestExecuteSudo_PasswordFromRecordIsMasked(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.ExecuteSudo(context.Background(), "prod", "echo s3cret", "", "")
	require.NoError(t, err)

	sent := h.session().Commands()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "printf '%s\\n' 's3cret' | sudo -S -p '' sh -c 'echo s3cret'")

	assert.NotContains(t, res.Command, "s3cret")
	assert.Contains(t, res.Command, "'****'")
	assert.True(t, res.Success)

	for _, m := range h.log.Snapshot() {
		assert.NotContains(t, m.Message, "s3cret")
	}
}

func TestExecuteSudo_OutputIsNotMasked(t *testing.T) {
	h := newHarness(t)
	h.prepare = func(s *sshtesting.MockSession) {
		s.SetCommandResponse(`ls -l`, sshtesting.CommandResponse{
			Stdout: "-rw-r--r-- 1 admin admin 12 Jan  1 app.conf\n",
		})
	}

	res, err := h.svc.ExecuteSudo(context.Background(), "prod", "ls -l", "admin", "")
	require.NoError(t, err)

	assert.Equal(t, "-rw-r--r-- 1 admin admin 12 Jan  1 app.conf\n", res.Stdout)
	assert.NotContains(t, res.Command, "'admin'")
	assert.Contains(t, res.Command, "'****'")
}

func TestExecuteSudo_ArgumentPasswordWins(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.ExecuteSudo(context.Background(), "prod", "whoami", "other", "/")
	require.NoError(t, err)
	assert.Equal(t, []string{"cd '/' && printf '%s\\n' 'other' | sudo -S -p '' sh -c 'whoami'"}, h.session().Commands())
}

func TestExecuteSudo_NoPassword(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.ExecuteSudo(context.Background(), "staging", "whoami", "", "")
	require.NoError(t, err)
	assert.Equal(t, "sudo -n sh -c 'whoami'", res.Command)
}

func TestUploadDownload(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	local := filepath.Join(dir, "app.conf")
	require.NoError(t, os.WriteFile(local, []byte("port=80"), 0o644))

	ctx := context.Background()
	up, err := h.svc.Upload(ctx, "prod", local, "/etc/app.conf")
	require.NoError(t, err)
	assert.Equal(t, "File uploaded successfully", up.Message)

	got, err := h.session().FS().ReadFile("/etc/app.conf")
	require.NoError(t, err)
	assert.Equal(t, "port=80", string(got))

	back := filepath.Join(dir, "copy.conf")
	down, err := h.svc.Download(ctx, "prod", "/etc/app.conf", back)
	require.NoError(t, err)
	assert.Equal(t, back, down.Local)

	data, err := os.ReadFile(back)
	require.NoError(t, err)
	assert.Equal(t, "port=80", string(data))
	assert.Equal(t, 1, h.dials())
}

func TestUpload_FailureFiresOnError(t *testing.T) {
	h := newHarness(t)
	h.prepare = func(s *sshtesting.MockSession) {
		s.FailPut(stderrors.New("permission denied"))
	}
	local := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(local, []byte("a"), 0o644))

	_, err := h.svc.Upload(context.Background(), "prod", local, "/root/a.txt")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrExec))
	assert.Contains(t, errors.OneLine(err), "permission denied")

	cmds := h.hookCommands()
	require.Len(t, cmds, 1)
	assert.Contains(t, cmds[0], "permission denied")
}

func TestDownload_MissingRemoteFile(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Download(context.Background(), "prod", "/nope", filepath.Join(t.TempDir(), "x"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrExec))
}

func TestTransfer_RequiresPaths(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Upload(context.Background(), "prod", "", "/tmp/x")
	assert.True(t, errors.IsCode(err, errors.ErrExec))
	_, err = h.svc.Download(context.Background(), "prod", "/tmp/x", " ")
	assert.True(t, errors.IsCode(err, errors.ErrExec))
	assert.Zero(t, h.dials())
}

func TestDeploy_UsesRecordSudoPassword(t *testing.T) {
	h := newHarness(t)
	local := filepath.Join(t.TempDir(), "index.html")
	require.NoError(t, os.WriteFile(local, []byte("<h1>hi</h1>"), 0o644))

	res, err := h.svc.Deploy(context.Background(), "prod",
		[]deploy.FilePair{{Local: local, Remote: "/var/www/html/index.html"}}, deploy.Options{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"✓ " + local + " → /var/www/html/index.html"}, res.Lines)

	f, ok := h.session().FS().Stat("/var/www/html/index.html")
	require.True(t, ok)
	assert.Equal(t, "www-data:www-data", f.Owner)

	var piped bool
	for _, c := range h.session().Commands() {
		if strings.Contains(c, "printf '%s\\n' 's3cret' | sudo -S -p ''") {
			piped = true
		}
	}
	assert.True(t, piped, "record sudo_password is piped to sudo")
	for _, fr := range res.Files {
		for _, step := range fr.Steps {
			assert.NotContains(t, step.Command, "s3cret")
		}
	}
}

func TestDeploy_FailureReported(t *testing.T) {
	h := newHarness(t)
	local := filepath.Join(t.TempDir(), "app.js")
	require.NoError(t, os.WriteFile(local, []byte("x"), 0o644))
	h.prepare = func(s *sshtesting.MockSession) {
		s.SetCommandResponse(`^mkdir -p .* && mv `, sshtesting.CommandResponse{Stderr: "read-only file system", ExitCode: 1})
	}

	res, err := h.svc.Deploy(context.Background(), "staging",
		[]deploy.FilePair{{Local: local, Remote: "/srv/app/app.js"}}, deploy.Options{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrDeploy))
	assert.False(t, res.Success)

	var stepErr *deploy.StepError
	require.True(t, stderrors.As(err, &stepErr))
	assert.Equal(t, deploy.StepMove, stepErr.Step)
}

func TestParseFilePair(t *testing.T) {
	tests := []struct {
		arg     string
		want    deploy.FilePair
		wantErr bool
	}{
		{arg: "./dist/index.html:/var/www/html/index.html", want: deploy.FilePair{Local: "./dist/index.html", Remote: "/var/www/html/index.html"}},
		{arg: `C:\build\app.js:/srv/app.js`, want: deploy.FilePair{Local: `C:\build\app.js`, Remote: "/srv/app.js"}},
		{arg: "no-colon", wantErr: true},
		{arg: ":/srv/x", wantErr: true},
		{arg: "local:", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := ParseFilePair(tt.arg)
			if tt.wantErr {
				assert.True(t, errors.IsCode(err, errors.ErrDeploy))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlan(t *testing.T) {
	h := newHarness(t)
	plans, err := h.svc.Plan([]deploy.FilePair{{Local: "a", Remote: "/usr/local/bin/tool"}}, deploy.Options{})
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Contains(t, plans[0].StepTypes(), deploy.StepChmod)
	assert.Zero(t, h.dials())
}

func TestTestConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	h := newHarness(t,
		"SSH_SERVER_LOCAL_HOST=127.0.0.1",
		"SSH_SERVER_LOCAL_USER=me",
		"SSH_SERVER_LOCAL_PORT="+strconv.Itoa(port),
	)

	ctx := context.Background()
	_, err = h.svc.Execute(ctx, "local", "true", "")
	require.NoError(t, err)

	report, err := h.svc.TestConnection(ctx, "local")
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, "local", report.Server)
	assert.Contains(t, report.System, "Linux local")
	assert.Equal(t, 2, h.dials(), "test always opens a fresh session")
}

func TestTestConnection_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	h := newHarness(t,
		"SSH_SERVER_GONE_HOST=127.0.0.1",
		"SSH_SERVER_GONE_USER=me",
		"SSH_SERVER_GONE_PORT="+strconv.Itoa(port),
	)

	_, err = h.svc.TestConnection(context.Background(), "gone")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSSH))
	assert.Contains(t, errors.OneLine(err), "Can't reach 'gone'")
	assert.Zero(t, h.dials())
}

func TestDeploy_HeldLockFails(t *testing.T) {
	h := newHarness(t)
	h.svc.settings.LockTimeout = 20 * time.Millisecond
	h.prepare = func(s *sshtesting.MockSession) {
		s.FS().MkdirAll("/tmp/sshman-prod.lock")
		s.FS().WriteFile("/tmp/sshman-prod.lock/info.json", []byte(`{"user":"dana","hostname":"ci","pid":9}`))
	}
	local := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(local, []byte("a"), 0o644))

	_, err := h.svc.Deploy(context.Background(), "prod",
		[]deploy.FilePair{{Local: local, Remote: "/srv/a.txt"}}, deploy.Options{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrLock))
	assert.Contains(t, errors.OneLine(err), "dana@ci")
	assert.Empty(t, h.session().Uploads())

	res, err := h.svc.Unlock(context.Background(), "prod")
	require.NoError(t, err)
	assert.Contains(t, res.Message, "dana@ci")
	assert.False(t, h.session().FS().Exists("/tmp/sshman-prod.lock"))
}

func TestDeploy_ReleasesLock(t *testing.T) {
	h := newHarness(t)
	local := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(local, []byte("a"), 0o644))

	_, err := h.svc.Deploy(context.Background(), "staging",
		[]deploy.FilePair{{Local: local, Remote: "/srv/a.txt"}}, deploy.Options{})
	require.NoError(t, err)
	assert.False(t, h.session().FS().Exists("/tmp/sshman-staging.lock"))

	res, err := h.svc.Unlock(context.Background(), "staging")
	require.NoError(t, err)
	assert.Equal(t, "No deploy lock held on 'staging'", res.Message)
}
