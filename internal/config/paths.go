package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rileyhilliard/sshman/internal/errors"
)

const (
	// HomeEnv overrides the state home directory.
	HomeEnv = "SSHMAN_HOME"
	// DefaultHomeDir is the state home relative to the user's home directory.
	DefaultHomeDir = ".config/sshman"
)

// Paths locates every file sshman keeps under its state home.
type Paths struct {
	Home string
}

// ResolveHome picks the state home: explicit value, then $SSHMAN_HOME, then
// ~/.config/sshman.
func ResolveHome(explicit string) (Paths, error) {
	if explicit != "" {
		return Paths{Home: ExpandTilde(explicit)}, nil
	}
	if env := os.Getenv(HomeEnv); env != "" {
		return Paths{Home: ExpandTilde(env)}, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return Paths{}, errors.WrapWithCode(err, errors.ErrConfig,
			"Can't figure out where your home directory is",
			"Set "+HomeEnv+" or pass --home")
	}
	return Paths{Home: filepath.Join(home, DefaultHomeDir)}, nil
}

func (p Paths) Servers() string        { return filepath.Join(p.Home, "servers.yaml") }
func (p Paths) EnvFile() string        { return filepath.Join(p.Home, ".env") }
func (p Paths) ServerAliases() string  { return filepath.Join(p.Home, "server-aliases.yaml") }
func (p Paths) CommandAliases() string { return filepath.Join(p.Home, "command-aliases.yaml") }
func (p Paths) Hooks() string          { return filepath.Join(p.Home, "hooks.yaml") }
func (p Paths) HooksDir() string       { return filepath.Join(p.Home, "hooks") }
func (p Paths) ActiveProfile() string  { return filepath.Join(p.Home, "active-profile") }
func (p Paths) ProfilesDir() string    { return filepath.Join(p.Home, "profiles") }
func (p Paths) Settings() string       { return filepath.Join(p.Home, "settings.yaml") }

// EnsureHome creates the state home if it doesn't exist yet.
func (p Paths) EnsureHome() error {
	if err := os.MkdirAll(p.Home, 0o700); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't create "+p.Home,
			"Check permissions on the parent directory")
	}
	return nil
}

// ExpandTilde replaces ~ or ~/path with the user's home directory.
// Use this for LOCAL paths only; remote paths keep ~ for the remote shell.
func ExpandTilde(path string) string {
	if path == "" {
		return path
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}

	return path
}

// ExpandRemote rewrites ${HOME} to ~ so the remote shell expands it.
func ExpandRemote(path string) string {
	return strings.ReplaceAll(path, "${HOME}", "~")
}
