package sshutil

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kevinburke/ssh_config"
	"github.com/pkg/sftp"
	"github.com/rileyhilliard/sshman/internal/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Target describes where and how to connect.
type Target struct {
	Name     string // server name, used in messages
	Host     string // hostname, IP, or ~/.ssh/config alias
	Port     int
	User     string
	Password string
	KeyPath  string
}

// Client wraps an SSH connection to one server.
type Client struct {
	ssh     *ssh.Client
	Name    string
	Address string

	sftpMu sync.Mutex
	sftp   *sftp.Client
}

var _ Session = (*Client)(nil)

// matchWarningOnce ensures the SSH config Match directive warning is only shown once per process.
var matchWarningOnce sync.Once

// WarningHandler receives non-fatal warnings. If nil, they go to log.Printf.
var WarningHandler func(message string)

func emitWarning(message string) {
	if WarningHandler != nil {
		WarningHandler(message)
	} else {
		log.Printf("Warning: %s", message)
	}
}

// StrictHostKeyChecking controls what happens with hosts missing from
// ~/.ssh/known_hosts. When true they are rejected. When false they are
// accepted and recorded. A changed key is always rejected.
var StrictHostKeyChecking = false

// Dial connects to t. The TCP connect and SSH handshake together are bounded
// by timeout and by ctx.
func Dial(ctx context.Context, t Target, timeout time.Duration) (*Client, error) {
	name := t.Name
	if name == "" {
		name = t.Host
	}

	settings := resolveSSHSettings(t)

	config, err := buildSSHConfig(settings, timeout)
	if err != nil {
		var smErr *errors.Error
		if stderrors.As(err, &smErr) {
			return nil, err
		}
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Couldn't set up SSH for '%s'", name),
			"Check your keys are loaded: ssh-add -l")
	}

	dialCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	address := settings.address()
	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", address)
	if err != nil {
		if isTimeout(err) || dialCtx.Err() != nil {
			return nil, errors.WrapWithCode(err, errors.ErrTimeout,
				fmt.Sprintf("Timed out connecting to '%s' at %s", name, address),
				suggestionForDialError(err))
		}
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Can't reach '%s' at %s", name, address),
			suggestionForDialError(err))
	}

	if deadline, ok := dialCtx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		conn.Close()

		var hostKeyErr *HostKeyMismatchError
		if stderrors.As(err, &hostKeyErr) {
			return nil, errors.New(errors.ErrSSH,
				hostKeyErr.Error(),
				hostKeyErr.Suggestion())
		}
		if isTimeout(err) || dialCtx.Err() != nil {
			return nil, errors.WrapWithCode(err, errors.ErrTimeout,
				fmt.Sprintf("SSH handshake with '%s' timed out", name),
				"The host accepted the connection but didn't finish the handshake. Try: ssh -v <host>")
		}

		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("SSH handshake with '%s' didn't go through", name),
			suggestionForHandshakeError(err, settings))
	}
	_ = conn.SetDeadline(time.Time{})

	return &Client{
		ssh:     ssh.NewClient(sshConn, chans, reqs),
		Name:    name,
		Address: address,
	}, nil
}

// Close closes the SFTP subsystem (if opened) and the SSH connection.
func (c *Client) Close() error {
	c.sftpMu.Lock()
	if c.sftp != nil {
		c.sftp.Close()
		c.sftp = nil
	}
	c.sftpMu.Unlock()

	if c.ssh == nil {
		return nil
	}
	return c.ssh.Close()
}

// Alive sends a keepalive global request. This is much cheaper than opening
// a session.
func (c *Client) Alive() bool {
	if c.ssh == nil {
		return false
	}
	_, _, err := c.ssh.SendRequest("keepalive@openssh.com", true, nil)
	return err == nil
}

// ResolveAddress returns the host:port Dial would connect to for t, after
// applying ~/.ssh/config.
func ResolveAddress(t Target) string {
	return resolveSSHSettings(t).address()
}

// sshSettings holds resolved SSH connection parameters.
type sshSettings struct {
	hostname      string
	port          string
	user          string
	password      string
	identityFile  string
	explicitKey   bool
	encryptedKeys []string
}

func (s *sshSettings) address() string {
	return net.JoinHostPort(s.hostname, s.port)
}

// resolveSSHSettings fills gaps in t from ~/.ssh/config: Host may be an
// alias with a HostName, and an IdentityFile is used when no key or password
// is configured.
func resolveSSHSettings(t Target) *sshSettings {
	settings := &sshSettings{
		hostname:     t.Host,
		port:         "22",
		user:         t.User,
		password:     t.Password,
		identityFile: expandPath(t.KeyPath),
		explicitKey:  t.KeyPath != "",
	}
	if t.Port > 0 {
		settings.port = strconv.Itoa(t.Port)
	}
	if settings.user == "" {
		settings.user = currentUser()
	}

	sshConfigPath := filepath.Join(homeDir(), ".ssh", "config")

	// kevinburke/ssh_config doesn't support Match, so only the content
	// before the first Match block is parsed.
	content, matchLine, err := preprocessSSHConfig(sshConfigPath)
	if err != nil {
		return settings
	}

	cfg, err := ssh_config.Decode(bytes.NewReader(content))
	if err != nil {
		return settings
	}

	hostFound := false
	if hostname, _ := cfg.Get(t.Host, "HostName"); hostname != "" {
		settings.hostname = hostname
		hostFound = true
	}
	if t.Port == 0 {
		if port, _ := cfg.Get(t.Host, "Port"); port != "" {
			settings.port = port
			hostFound = true
		}
	}
	if settings.identityFile == "" && settings.password == "" {
		if identity, _ := cfg.Get(t.Host, "IdentityFile"); identity != "" {
			settings.identityFile = expandPath(identity)
			hostFound = true
		}
	}

	if matchLine > 0 && !hostFound {
		matchWarningOnce.Do(func() {
			emitWarning(fmt.Sprintf(
				"Host '%s' not found in SSH config (config has a Match block at line %d that may hide later entries).",
				t.Host, matchLine))
		})
	}

	return settings
}

// buildSSHConfig picks auth methods. A password record uses password and
// keyboard-interactive auth only; an explicit key path must load; otherwise
// the agent, the ssh_config IdentityFile and default keys are tried.
func buildSSHConfig(settings *sshSettings, timeout time.Duration) (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	tryKeyFile := func(keyPath string) error {
		keyAuth, err := keyFileAuth(keyPath)
		if err != nil {
			var encErr *EncryptedKeyError
			if stderrors.As(err, &encErr) {
				settings.encryptedKeys = append(settings.encryptedKeys, keyPath)
			}
			return err
		}
		authMethods = append(authMethods, keyAuth)
		return nil
	}

	switch {
	case settings.password != "":
		password := settings.password
		authMethods = append(authMethods,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)

	case settings.explicitKey:
		if err := tryKeyFile(settings.identityFile); err != nil {
			var encErr *EncryptedKeyError
			if stderrors.As(err, &encErr) {
				return nil, errors.New(errors.ErrSSH,
					encErr.Error(),
					"Add it to the agent ("+addKeyCommand(settings.identityFile)+") and drop KEYPATH, or use an unencrypted key")
			}
			return nil, errors.WrapWithCode(err, errors.ErrSSH,
				"Couldn't load SSH key "+settings.identityFile,
				"Check KEYPATH points at a readable private key")
		}

	default:
		if agentAuth := sshAgentAuth(); agentAuth != nil {
			authMethods = append(authMethods, agentAuth)
		}
		if settings.identityFile != "" {
			_ = tryKeyFile(settings.identityFile)
		}
		for _, keyPath := range []string{
			filepath.Join(homeDir(), ".ssh", "id_ed25519"),
			filepath.Join(homeDir(), ".ssh", "id_rsa"),
			filepath.Join(homeDir(), ".ssh", "id_ecdsa"),
		} {
			if keyPath == settings.identityFile {
				continue
			}
			_ = tryKeyFile(keyPath)
		}
	}

	if len(authMethods) == 0 {
		msg := "No SSH auth methods available"
		suggestion := "Set a PASSWORD or KEYPATH for the server, or load a key: ssh-add -l"

		if len(settings.encryptedKeys) > 0 {
			msg = fmt.Sprintf("Found SSH key(s) but they're encrypted: %s", strings.Join(settings.encryptedKeys, ", "))
			suggestion = encryptedKeysSuggestion(settings.encryptedKeys)
		}
		return nil, errors.New(errors.ErrSSH, msg, suggestion)
	}

	knownHostsPath := filepath.Join(homeDir(), ".ssh", "known_hosts")
	hostKeyCallback, err := createHostKeyCallback(knownHostsPath, StrictHostKeyChecking)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}

	return &ssh.ClientConfig{
		User:            settings.user,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}, nil
}

var (
	agentConn     net.Conn
	agentClient   agent.ExtendedAgent
	agentConnOnce sync.Once
)

// sshAgentAuth returns an auth method using the SSH agent if it has keys.
// The agent connection is shared across dials.
func sshAgentAuth() ssh.AuthMethod {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil
	}

	agentConnOnce.Do(func() {
		conn, err := net.Dial("unix", socket)
		if err != nil {
			return
		}
		agentConn = conn
		agentClient = agent.NewClient(conn)
	})

	if agentClient == nil {
		return nil
	}

	// An empty agent causes auth failures when placed before other methods.
	signers, err := agentClient.Signers()
	if err != nil || len(signers) == 0 {
		return nil
	}

	return ssh.PublicKeysCallback(agentClient.Signers)
}

// CloseAgent closes the SSH agent connection if one is open.
func CloseAgent() {
	if agentConn != nil {
		agentConn.Close()
	}
}

// keyFileAuth returns an auth method using a private key file.
// Returns EncryptedKeyError if the key requires a passphrase.
func keyFileAuth(keyPath string) (ssh.AuthMethod, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if stderrors.As(err, &missing) ||
			strings.Contains(err.Error(), "encrypted") ||
			isEncryptedPEM(key) {
			return nil, &EncryptedKeyError{Path: keyPath}
		}
		return nil, err
	}

	return ssh.PublicKeys(signer), nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

func currentUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "root"
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}

func addKeyCommand(key string) string {
	if runtime.GOOS == "darwin" {
		return "ssh-add --apple-use-keychain " + key
	}
	return "ssh-add " + key
}

func encryptedKeysSuggestion(keys []string) string {
	var sb strings.Builder
	sb.WriteString("Add your key(s) to the agent:\n")
	for _, key := range keys {
		sb.WriteString("  " + addKeyCommand(key) + "\n")
	}
	sb.WriteString("\nNot sure which key? Check with: ssh -v <host>")
	return sb.String()
}

func suggestionForDialError(err error) string {
	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") {
		return "Is SSH running on that box? Check the HOST and PORT settings."
	}
	if strings.Contains(errStr, "no route to host") || strings.Contains(errStr, "network is unreachable") {
		return "Can't route to the host. Check your network connection."
	}
	if strings.Contains(errStr, "no such host") {
		return "The hostname doesn't resolve. Check the HOST setting."
	}
	if isTimeout(err) || strings.Contains(errStr, "timeout") {
		return "Connection timed out. Host might be offline or blocked by a firewall; connect_timeout is in settings.yaml."
	}
	return "Make sure the host is reachable: ping <host>"
}

func suggestionForHandshakeError(err error, settings *sshSettings) string {
	errStr := err.Error()
	if strings.Contains(errStr, "unable to authenticate") || strings.Contains(errStr, "no supported methods") {
		if settings.password != "" {
			return "The server rejected the password. Check the PASSWORD setting, and that the server allows password auth."
		}
		if len(settings.encryptedKeys) > 0 {
			return encryptedKeysSuggestion(settings.encryptedKeys)
		}
		return "Auth failed. Check your keys are loaded: ssh-add -l"
	}
	if strings.Contains(errStr, "host key") {
		return "Host key issue. Try connecting manually first: ssh <host>"
	}
	return "Something went wrong during SSH setup. Try: ssh -v <host>"
}

// EncryptedKeyError is returned when an SSH key requires a passphrase.
type EncryptedKeyError struct {
	Path string
}

func (e *EncryptedKeyError) Error() string {
	return fmt.Sprintf("SSH key at %s is encrypted (passphrase protected)", e.Path)
}

// HostKeyMismatchError provides helpful context when known_hosts verification fails.
type HostKeyMismatchError struct {
	Hostname     string
	ReceivedType string
	KnownHosts   string
	Want         []knownhosts.KnownKey
}

func (e *HostKeyMismatchError) Error() string {
	return fmt.Sprintf("host key mismatch for %s: server sent %s key", e.Hostname, e.ReceivedType)
}

// Suggestion returns actionable steps to fix the host key mismatch.
func (e *HostKeyMismatchError) Suggestion() string {
	host := e.Hostname
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	var wantTypes []string
	for _, k := range e.Want {
		wantTypes = append(wantTypes, k.Key.Type())
	}
	wantStr := "unknown"
	if len(wantTypes) > 0 {
		wantStr = strings.Join(wantTypes, ", ")
	}

	return fmt.Sprintf(
		"The server's host key doesn't match what's in known_hosts.\n"+
			"  Known types: %s\n"+
			"  Server sent: %s\n\n"+
			"  If the server was rebuilt, remove the old entry:\n"+
			"    ssh-keygen -R %s",
		wantStr, e.ReceivedType, host)
}

// UnknownHostError is returned for hosts missing from known_hosts when
// StrictHostKeyChecking is on.
type UnknownHostError struct {
	Hostname string
}

func (e *UnknownHostError) Error() string {
	return fmt.Sprintf("host %s is not in known_hosts", e.Hostname)
}

// preprocessSSHConfig reads the SSH config and returns content up to the first Match directive.
// Also returns the line number where Match was found (0 if not found).
func preprocessSSHConfig(configPath string) ([]byte, int, error) {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, 0, err
	}

	lines := strings.Split(string(content), "\n")
	var result []string
	matchLine := 0

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(trimmed), "match ") {
			matchLine = i + 1
			break
		}
		result = append(result, line)
	}

	return []byte(strings.Join(result, "\n")), matchLine, nil
}

func isEncryptedPEM(data []byte) bool {
	return bytes.Contains(data, []byte("ENCRYPTED"))
}

var knownHostsMu sync.Mutex

// createHostKeyCallback verifies host keys against known_hosts. Unknown hosts
// are appended unless strict is set.
func createHostKeyCallback(knownHostsPath string, strict bool) (ssh.HostKeyCallback, error) {
	if _, err := os.Stat(knownHostsPath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(knownHostsPath), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create .ssh directory: %w", err)
		}
		if err := os.WriteFile(knownHostsPath, []byte{}, 0o600); err != nil {
			return nil, fmt.Errorf("failed to create known_hosts: %w", err)
		}
	}

	callback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, err
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := callback(hostname, remote, key)
		if err == nil {
			return nil
		}

		var keyErr *knownhosts.KeyError
		if !stderrors.As(err, &keyErr) {
			return err
		}
		if len(keyErr.Want) > 0 {
			return &HostKeyMismatchError{
				Hostname:     hostname,
				ReceivedType: key.Type(),
				KnownHosts:   knownHostsPath,
				Want:         keyErr.Want,
			}
		}
		if strict {
			return &UnknownHostError{Hostname: hostname}
		}
		return appendKnownHost(knownHostsPath, hostname, remote, key)
	}, nil
}

func appendKnownHost(path, hostname string, remote net.Addr, key ssh.PublicKey) error {
	knownHostsMu.Lock()
	defer knownHostsMu.Unlock()

	addresses := []string{knownhosts.Normalize(hostname)}
	if remote != nil {
		if addr := knownhosts.Normalize(remote.String()); addr != addresses[0] {
			addresses = append(addresses, addr)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to record host key: %w", err)
	}
	defer f.Close()

	_, err = f.WriteString(knownhosts.Line(addresses, key) + "\n")
	return err
}
