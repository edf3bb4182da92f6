package testing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rileyhilliard/sshman/pkg/sshutil"
)

// CommandResponse is a canned reply for commands matching a pattern.
type CommandResponse struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Error    error
	// Delay makes the command take this long; ctx cancellation still applies.
	Delay time.Duration
}

type cannedResponse struct {
	pattern string
	re      *regexp.Regexp
	resp    CommandResponse
}

// Transfer records one PutFile or GetFile call.
type Transfer struct {
	Local  string
	Remote string
}

// MockSession is an in-memory sshutil.Session.
type MockSession struct {
	mu        sync.Mutex
	name      string
	fs        *MockFS
	closed    bool
	dead      bool
	canned    []cannedResponse
	commands  []string
	uploads   []Transfer
	downloads []Transfer
	putErr    error
	getErr    error

	aliveDelay time.Duration
}

var _ sshutil.Session = (*MockSession)(nil)

// NewMockSession returns a live session with an empty filesystem.
func NewMockSession(name string) *MockSession {
	fs := NewMockFS()
	fs.MkdirAll("/tmp")
	return &MockSession{name: name, fs: fs}
}

// Name returns the name the session was created with.
func (m *MockSession) Name() string { return m.name }

// FS returns the virtual filesystem.
func (m *MockSession) FS() *MockFS { return m.fs }

// SetCommandResponse registers a reply. pattern matches the exact command
// first, then as a regular expression. Earlier registrations win.
func (m *MockSession) SetCommandResponse(pattern string, resp CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	re, _ := regexp.Compile(pattern)
	m.canned = append(m.canned, cannedResponse{pattern: pattern, re: re, resp: resp})
}

// FailPut makes every PutFile return err.
func (m *MockSession) FailPut(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putErr = err
}

// FailGet makes every GetFile return err.
func (m *MockSession) FailGet(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr = err
}

// SetAlive simulates the connection dropping (false) or recovering.
func (m *MockSession) SetAlive(alive bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dead = !alive
}

// Commands returns every command passed to Run, in order.
func (m *MockSession) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.commands...)
}

// Uploads returns every PutFile call, in order.
func (m *MockSession) Uploads() []Transfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transfer(nil), m.uploads...)
}

// Downloads returns every GetFile call, in order.
func (m *MockSession) Downloads() []Transfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transfer(nil), m.downloads...)
}

// Closed reports whether Close was called.
func (m *MockSession) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Run records cmd and answers it from the canned responses or by
// interpreting it against the filesystem.
func (m *MockSession) Run(ctx context.Context, cmd string) (sshutil.Result, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return sshutil.Result{ExitCode: -1}, errors.New("connection closed")
	}
	m.commands = append(m.commands, cmd)
	resp, ok := m.match(cmd)
	m.mu.Unlock()

	if !ok {
		return m.interpret(cmd), nil
	}

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-ctx.Done():
			return sshutil.Result{ExitCode: -1}, ctx.Err()
		}
	}
	if resp.Error != nil {
		return sshutil.Result{ExitCode: -1}, resp.Error
	}
	return sshutil.Result{Stdout: resp.Stdout, Stderr: resp.Stderr, ExitCode: resp.ExitCode}, nil
}

func (m *MockSession) match(cmd string) (CommandResponse, bool) {
	for _, c := range m.canned {
		if c.pattern == cmd {
			return c.resp, true
		}
	}
	for _, c := range m.canned {
		if c.re != nil && c.re.MatchString(cmd) {
			return c.resp, true
		}
	}
	return CommandResponse{}, false
}

// PutFile copies a local file into the virtual filesystem.
func (m *MockSession) PutFile(ctx context.Context, localPath, remotePath string) error {
	m.mu.Lock()
	m.uploads = append(m.uploads, Transfer{Local: localPath, Remote: remotePath})
	closed, putErr := m.closed, m.putErr
	m.mu.Unlock()

	if closed {
		return errors.New("connection closed")
	}
	if putErr != nil {
		return putErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	m.fs.WriteFile(remotePath, data)
	return nil
}

// GetFile copies a file from the virtual filesystem to disk.
func (m *MockSession) GetFile(ctx context.Context, remotePath, localPath string) error {
	m.mu.Lock()
	m.downloads = append(m.downloads, Transfer{Local: localPath, Remote: remotePath})
	closed, getErr := m.closed, m.getErr
	m.mu.Unlock()

	if closed {
		return errors.New("connection closed")
	}
	if getErr != nil {
		return getErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := m.fs.ReadFile(remotePath)
	if err != nil {
		return fmt.Errorf("%s: %w", remotePath, err)
	}
	return os.WriteFile(localPath, data, 0o644)
}

// Alive reports false once closed or after SetAlive(false).
func (m *MockSession) Alive() bool {
	m.mu.Lock()
	delay := m.aliveDelay
	m.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed && !m.dead
}

// SetAliveDelay makes Alive stall for d, like a keepalive on a half-open
// connection.
func (m *MockSession) SetAliveDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aliveDelay = d
}

// Close marks the session closed.
func (m *MockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// interpret runs the small command language sshman emits.
func (m *MockSession) interpret(cmd string) sshutil.Result {
	cmd = stripSudo(strings.TrimSpace(cmd))

	for _, sh := range []string{"sh -c ", "bash -c "} {
		if strings.HasPrefix(cmd, sh) {
			if words := splitWords(cmd); len(words) == 3 {
				return m.interpret(words[2])
			}
		}
	}

	if left, right, ok := strings.Cut(cmd, " && "); ok {
		res := m.interpret(left)
		if !res.Success() {
			return res
		}
		return m.interpret(right)
	}
	if left, right, ok := strings.Cut(cmd, " || "); ok {
		res := m.interpret(left)
		if res.Success() {
			return res
		}
		return m.interpret(right)
	}

	words := splitWords(cmd)
	if n := len(words); n >= 3 && words[n-2] == ">" {
		res := m.exec(words[:n-2])
		if res.Success() {
			m.fs.WriteFile(words[n-1], []byte(res.Stdout))
			res.Stdout = ""
		}
		return res
	}
	return m.exec(words)
}

func (m *MockSession) exec(words []string) sshutil.Result {
	if len(words) == 0 {
		return sshutil.Result{}
	}

	fail := func(format string, args ...any) sshutil.Result {
		return sshutil.Result{Stderr: fmt.Sprintf(format, args...) + "\n", ExitCode: 1}
	}

	switch words[0] {
	case "cd", "true", "systemctl":
		return sshutil.Result{}
	case "echo":
		return sshutil.Result{Stdout: strings.Join(words[1:], " ") + "\n"}
	case "printf":
		if len(words) < 3 {
			return sshutil.Result{}
		}
		out := strings.Join(words[2:], " ")
		if strings.HasSuffix(words[1], `\n`) {
			out += "\n"
		}
		return sshutil.Result{Stdout: out}
	case "false":
		return sshutil.Result{ExitCode: 1}
	case "[", "test":
		return m.test(words)
	case "mv":
		args := flagsStripped(words[1:])
		if len(args) != 2 {
			return fail("mv: missing operand")
		}
		if err := m.fs.Rename(args[0], args[1]); err != nil {
			return fail("mv: cannot move '%s' to '%s': %v", args[0], args[1], err)
		}
		return sshutil.Result{}
	case "cp":
		args := flagsStripped(words[1:])
		if len(args) != 2 {
			return fail("cp: missing operand")
		}
		if err := m.fs.Copy(args[0], args[1]); err != nil {
			return fail("cp: cannot stat '%s': %v", args[0], err)
		}
		return sshutil.Result{}
	case "chown":
		args := flagsStripped(words[1:])
		if len(args) != 2 {
			return fail("chown: missing operand")
		}
		if err := m.fs.Chown(args[1], args[0]); err != nil {
			return fail("chown: cannot access '%s': %v", args[1], err)
		}
		return sshutil.Result{}
	case "chmod":
		args := flagsStripped(words[1:])
		if len(args) != 2 {
			return fail("chmod: missing operand")
		}
		mode, err := strconv.ParseUint(args[0], 8, 32)
		if err != nil {
			return sshutil.Result{}
		}
		if err := m.fs.Chmod(args[1], os.FileMode(mode)); err != nil {
			return fail("chmod: cannot access '%s': %v", args[1], err)
		}
		return sshutil.Result{}
	case "rm":
		for _, p := range flagsStripped(words[1:]) {
			m.fs.Remove(p)
		}
		return sshutil.Result{}
	case "mkdir":
		parents := len(words) > 1 && words[1] == "-p"
		for _, p := range flagsStripped(words[1:]) {
			if parents {
				m.fs.MkdirAll(p)
				continue
			}
			if err := m.fs.Mkdir(p); err != nil {
				return fail("mkdir: cannot create directory '%s': File exists", p)
			}
		}
		return sshutil.Result{}
	case "cat":
		var out strings.Builder
		for _, p := range flagsStripped(words[1:]) {
			data, err := m.fs.ReadFile(p)
			if err != nil {
				return fail("cat: %s: No such file or directory", p)
			}
			out.Write(data)
		}
		return sshutil.Result{Stdout: out.String()}
	case "uname":
		if len(words) > 1 && words[1] == "-a" {
			return sshutil.Result{Stdout: "Linux " + m.name + " 6.1.0 #1 SMP x86_64 GNU/Linux\n"}
		}
		return sshutil.Result{Stdout: "Linux\n"}
	}

	return sshutil.Result{}
}

func (m *MockSession) test(words []string) sshutil.Result {
	args := words[1:]
	if words[0] == "[" && len(args) > 0 && args[len(args)-1] == "]" {
		args = args[:len(args)-1]
	}

	negate := false
	if len(args) > 0 && args[0] == "!" {
		negate = true
		args = args[1:]
	}
	if len(args) != 2 {
		return sshutil.Result{ExitCode: 2}
	}

	var ok bool
	switch args[0] {
	case "-e":
		ok = m.fs.Exists(args[1])
	case "-f":
		ok = m.fs.IsFile(args[1])
	case "-d":
		ok = m.fs.IsDir(args[1])
	}
	if ok != negate {
		return sshutil.Result{}
	}
	return sshutil.Result{ExitCode: 1}
}

// stripSudo removes the sudo prefixes sshman adds to privileged commands.
func stripSudo(cmd string) string {
	const piped = "| sudo -S -p '' "
	if strings.HasPrefix(cmd, "printf ") {
		if i := strings.Index(cmd, piped); i >= 0 {
			return cmd[i+len(piped):]
		}
	}
	for _, prefix := range []string{"sudo -n ", "sudo "} {
		if strings.HasPrefix(cmd, prefix) {
			return cmd[len(prefix):]
		}
	}
	return cmd
}

func flagsStripped(words []string) []string {
	var out []string
	for _, w := range words {
		if strings.HasPrefix(w, "-") && len(w) > 1 {
			continue
		}
		out = append(out, w)
	}
	return out
}

// splitWords splits a command line into words, honoring single quotes,
// double quotes and backslash escapes.
func splitWords(s string) []string {
	var (
		words   []string
		cur     strings.Builder
		inWord  bool
		quote   byte
		escaped bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			cur.WriteByte(c)
			escaped = false
		case quote == '\'':
			if c == '\'' {
				quote = 0
			} else {
				cur.WriteByte(c)
			}
		case quote == '"':
			switch c {
			case '"':
				quote = 0
			case '\\':
				escaped = true
			default:
				cur.WriteByte(c)
			}
		case c == '\'' || c == '"':
			quote = c
			inWord = true
		case c == '\\':
			escaped = true
			inWord = true
		case c == ' ' || c == '\t' || c == '\n':
			if inWord {
				words = append(words, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteByte(c)
			inWord = true
		}
	}
	if inWord {
		words = append(words, cur.String())
	}
	return words
}
