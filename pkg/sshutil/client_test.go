package sshutil

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/rileyhilliard/sshman/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// testServer is a minimal in-process SSH server with password auth, a few
// canned exec commands and an SFTP subsystem backed by the local disk.
type testServer struct {
	addr    string
	port    int
	hostKey ssh.Signer
}

func newSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	return signer
}

func startTestServer(t *testing.T, password string) *testServer {
	t.Helper()
	return startTestServerWithSFTP(t, password, nil)
}

// startTestServerWithSFTP serves SFTP from handlers instead of the local disk.
func startTestServerWithSFTP(t *testing.T, password string, handlers *sftp.Handlers) *testServer {
	t.Helper()

	hostKey := newSigner(t)
	cfg := &ssh.ServerConfig{
		PasswordCallback: func(_ ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if string(pass) == password {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected")
		},
	}
	cfg.AddHostKey(hostKey)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveConn(conn, cfg, handlers)
		}
	}()

	return &testServer{
		addr:    ln.Addr().String(),
		port:    ln.Addr().(*net.TCPAddr).Port,
		hostKey: hostKey,
	}
}

func serveConn(nc net.Conn, cfg *ssh.ServerConfig, handlers *sftp.Handlers) {
	_, chans, reqs, err := ssh.NewServerConn(nc, cfg)
	if err != nil {
		nc.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	for nch := range chans {
		if nch.ChannelType() != "session" {
			_ = nch.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}
		ch, chReqs, err := nch.Accept()
		if err != nil {
			continue
		}
		go handleSession(ch, chReqs, handlers)
	}
}

func handleSession(ch ssh.Channel, reqs <-chan *ssh.Request, handlers *sftp.Handlers) {
	defer ch.Close()

	for req := range reqs {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			_ = ssh.Unmarshal(req.Payload, &payload)
			_ = req.Reply(true, nil)
			code := fakeCommand(ch, payload.Command)
			_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{uint32(code)}))
			return
		case "subsystem":
			var payload struct{ Name string }
			_ = ssh.Unmarshal(req.Payload, &payload)
			if payload.Name != "sftp" {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)
			if handlers != nil {
				_ = sftp.NewRequestServer(ch, *handlers).Serve()
				return
			}
			srv, err := sftp.NewServer(ch)
			if err != nil {
				return
			}
			_ = srv.Serve()
			return
		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

func fakeCommand(ch ssh.Channel, cmd string) int {
	switch {
	case cmd == "echo hello":
		_, _ = io.WriteString(ch, "hello\n")
		return 0
	case cmd == "fail":
		_, _ = io.WriteString(ch.Stderr(), "boom\n")
		return 3
	case strings.HasPrefix(cmd, "sleep"):
		time.Sleep(2 * time.Second)
		return 0
	default:
		_, _ = io.WriteString(ch.Stderr(), "unknown command\n")
		return 127
	}
}

// isolateHome points HOME at a temp dir so known_hosts and ~/.ssh/config
// never touch the real ones.
func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SSH_AUTH_SOCK", "")
	return home
}

func setStrict(t *testing.T, strict bool) {
	t.Helper()
	prev := StrictHostKeyChecking
	StrictHostKeyChecking = strict
	t.Cleanup(func() { StrictHostKeyChecking = prev })
}

func (s *testServer) target(password string) Target {
	return Target{Name: "test", Host: "127.0.0.1", Port: s.port, User: "tester", Password: password}
}

func TestDial_RunAndAlive(t *testing.T) {
	home := isolateHome(t)
	setStrict(t, false)
	srv := startTestServer(t, "s3cret")

	client, err := Dial(context.Background(), srv.target("s3cret"), 5*time.Second)
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, "test", client.Name)
	assert.Equal(t, srv.addr, client.Address)
	assert.True(t, client.Alive())

	res, err := client.Run(context.Background(), "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, 0, res.ExitCode)
	assert.True(t, res.Success())

	res, err = client.Run(context.Background(), "fail")
	require.NoError(t, err, "non-zero exit is not an error")
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "boom\n", res.Stderr)

	// Unknown host was accepted and recorded.
	data, err := os.ReadFile(filepath.Join(home, ".ssh", "known_hosts"))
	require.NoError(t, err)
	assert.Contains(t, string(data), knownhosts.Normalize(srv.addr))

	require.NoError(t, client.Close())
	assert.False(t, client.Alive())
}

func TestRun_Timeout(t *testing.T) {
	isolateHome(t)
	setStrict(t, false)
	srv := startTestServer(t, "pw")

	client, err := Dial(context.Background(), srv.target("pw"), 5*time.Second)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	res, err := client.Run(ctx, "sleep 10")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrTimeout))
	assert.Equal(t, -1, res.ExitCode)
}

func TestDial_WrongPassword(t *testing.T) {
	isolateHome(t)
	setStrict(t, false)
	srv := startTestServer(t, "right")

	_, err := Dial(context.Background(), srv.target("wrong"), 5*time.Second)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSSH))
	assert.Contains(t, err.Error(), "rejected the password")
}

func TestDial_StrictRejectsUnknownHost(t *testing.T) {
	isolateHome(t)
	setStrict(t, true)
	srv := startTestServer(t, "pw")

	_, err := Dial(context.Background(), srv.target("pw"), 5*time.Second)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSSH))
}

func TestDial_HostKeyMismatch(t *testing.T) {
	home := isolateHome(t)
	setStrict(t, false)
	srv := startTestServer(t, "pw")

	other := newSigner(t)
	sshDir := filepath.Join(home, ".ssh")
	require.NoError(t, os.MkdirAll(sshDir, 0o700))
	line := knownhosts.Line([]string{knownhosts.Normalize(srv.addr)}, other.PublicKey())
	require.NoError(t, os.WriteFile(filepath.Join(sshDir, "known_hosts"), []byte(line+"\n"), 0o600))

	_, err := Dial(context.Background(), srv.target("pw"), 5*time.Second)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSSH))
	assert.Contains(t, err.Error(), "host key mismatch")
	assert.Contains(t, err.Error(), "ssh-keygen -R")
}

func TestDial_ConnectionRefused(t *testing.T) {
	isolateHome(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	_, err = Dial(context.Background(), Target{Name: "gone", Host: "127.0.0.1", Port: port, User: "u", Password: "p"}, 2*time.Second)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSSH))
	assert.Contains(t, err.Error(), "Can't reach 'gone'")
}

func TestDial_HandshakeTimeout(t *testing.T) {
	isolateHome(t)

	// Accepts TCP but never speaks SSH.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		var conns []net.Conn
		defer func() {
			for _, c := range conns {
				c.Close()
			}
		}()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conns = append(conns, conn)
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	start := time.Now()
	_, err = Dial(context.Background(), Target{Host: "127.0.0.1", Port: port, User: "u", Password: "p"}, 200*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrTimeout), "got %v", err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestPutAndGetFile(t *testing.T) {
	isolateHome(t)
	setStrict(t, false)
	srv := startTestServer(t, "pw")

	client, err := Dial(context.Background(), srv.target("pw"), 5*time.Second)
	require.NoError(t, err)
	defer client.Close()

	dir := t.TempDir()
	local := filepath.Join(dir, "app.conf")
	require.NoError(t, os.WriteFile(local, []byte("listen 80;\n"), 0o640))

	remote := filepath.Join(dir, "remote", "nested", "app.conf")
	require.NoError(t, client.PutFile(context.Background(), local, remote))

	data, err := os.ReadFile(remote)
	require.NoError(t, err)
	assert.Equal(t, "listen 80;\n", string(data))

	back := filepath.Join(dir, "down", "copy.conf")
	require.NoError(t, client.GetFile(context.Background(), remote, back))
	data, err = os.ReadFile(back)
	require.NoError(t, err)
	assert.Equal(t, "listen 80;\n", string(data))

	err = client.GetFile(context.Background(), filepath.Join(dir, "missing"), back)
	assert.True(t, errors.IsCode(err, errors.ErrExec))

	err = client.PutFile(context.Background(), filepath.Join(dir, "nope"), remote)
	assert.True(t, errors.IsCode(err, errors.ErrExec))
}

// failingCloseWriter accepts every write but fails on close, like a remote
// disk that fills up when the last buffered data is flushed.
type failingCloseWriter struct {
	io.WriterAt
}

func (failingCloseWriter) Close() error { return fmt.Errorf("no space left on device") }

type failingClosePut struct {
	next sftp.FileWriter
}

func (f failingClosePut) Filewrite(r *sftp.Request) (io.WriterAt, error) {
	w, err := f.next.Filewrite(r)
	if err != nil {
		return nil, err
	}
	return failingCloseWriter{w}, nil
}

func TestPutFile_CloseErrorFailsUpload(t *testing.T) {
	isolateHome(t)
	setStrict(t, false)
	handlers := sftp.InMemHandler()
	handlers.FilePut = failingClosePut{next: handlers.FilePut}
	srv := startTestServerWithSFTP(t, "pw", &handlers)

	client, err := Dial(context.Background(), srv.target("pw"), 5*time.Second)
	require.NoError(t, err)
	defer client.Close()

	local := filepath.Join(t.TempDir(), "app.conf")
	require.NoError(t, os.WriteFile(local, []byte("listen 80;\n"), 0o644))

	err = client.PutFile(context.Background(), local, "/app.conf")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrExec))
	assert.Contains(t, errors.OneLine(err), "Failed to upload")
}

func TestResolveSSHSettings(t *testing.T) {
	home := isolateHome(t)
	sshDir := filepath.Join(home, ".ssh")
	require.NoError(t, os.MkdirAll(sshDir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(sshDir, "config"), []byte(`
Host box
  HostName 10.1.2.3
  Port 2200
  IdentityFile ~/.ssh/box_key

Match host other
  User nobody
`), 0o600))

	t.Run("alias fills hostname and identity", func(t *testing.T) {
		s := resolveSSHSettings(Target{Host: "box", User: "me"})
		assert.Equal(t, "10.1.2.3", s.hostname)
		assert.Equal(t, "2200", s.port)
		assert.Equal(t, "me", s.user)
		assert.Equal(t, filepath.Join(home, ".ssh", "box_key"), s.identityFile)
		assert.False(t, s.explicitKey)
	})

	t.Run("explicit values win", func(t *testing.T) {
		s := resolveSSHSettings(Target{Host: "box", User: "me", Port: 22, KeyPath: "/keys/k"})
		assert.Equal(t, "22", s.port)
		assert.Equal(t, "/keys/k", s.identityFile)
		assert.True(t, s.explicitKey)
	})

	t.Run("password skips identity lookup", func(t *testing.T) {
		s := resolveSSHSettings(Target{Host: "box", User: "me", Password: "p"})
		assert.Empty(t, s.identityFile)
	})

	t.Run("plain host", func(t *testing.T) {
		s := resolveSSHSettings(Target{Host: "example.com", User: "me", Port: 2222})
		assert.Equal(t, "example.com:2222", s.address())
	})

	t.Run("resolved address", func(t *testing.T) {
		assert.Equal(t, "10.1.2.3:2200", ResolveAddress(Target{Host: "box"}))
	})
}

func TestSFTPPath(t *testing.T) {
	assert.Equal(t, ".", sftpPath("~"))
	assert.Equal(t, "app/x.txt", sftpPath("~/app/x.txt"))
	assert.Equal(t, "/etc/x", sftpPath("/etc/x"))
	assert.Equal(t, "rel/x", sftpPath("rel/x"))
}

func TestPreprocessSSHConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(path, []byte("Host a\n  HostName b\nMatch all\n  User x\n"), 0o600))

	content, matchLine, err := preprocessSSHConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, matchLine)
	assert.NotContains(t, string(content), "Match")
}

func TestBuildSSHConfig_ExplicitKey(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)
	keyPath := filepath.Join(dir, "id_test")
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600))

	cfg, err := buildSSHConfig(&sshSettings{user: "u", identityFile: keyPath, explicitKey: true}, time.Second)
	require.NoError(t, err)
	assert.Len(t, cfg.Auth, 1)

	encBlock, err := ssh.MarshalPrivateKeyWithPassphrase(priv, "", []byte("pass"))
	require.NoError(t, err)
	encPath := filepath.Join(dir, "id_enc")
	require.NoError(t, os.WriteFile(encPath, pem.EncodeToMemory(encBlock), 0o600))

	_, err = buildSSHConfig(&sshSettings{user: "u", identityFile: encPath, explicitKey: true}, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encrypted")

	_, err = buildSSHConfig(&sshSettings{user: "u", identityFile: filepath.Join(dir, "missing"), explicitKey: true}, time.Second)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSSH))
}

func TestBuildSSHConfig_NoAuth(t *testing.T) {
	isolateHome(t)
	_, err := buildSSHConfig(&sshSettings{user: "u"}, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No SSH auth methods available")
}
