// Package profile loads named bundles of command aliases and hook
// definitions, and tracks which one is active.
package profile

import (
	"embed"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rileyhilliard/sshman/internal/config"
	"github.com/rileyhilliard/sshman/internal/errors"
	"github.com/rileyhilliard/sshman/internal/logger"
	"github.com/rileyhilliard/sshman/internal/store"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultName is the profile used when nothing else is selected.
	DefaultName = "default"
	// MinimalName is the last-resort fallback.
	MinimalName = "minimal"
	// ActiveEnv overrides the active-profile file.
	ActiveEnv = "SSHMAN_PROFILE"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Action is one step of a hook. Command may hold {key} placeholders.
type Action struct {
	Type    string `yaml:"type" json:"type"`
	Name    string `yaml:"name" json:"name"`
	Command string `yaml:"command" json:"command" validate:"required"`
}

// Hook is a named, toggleable list of actions.
type Hook struct {
	Enabled     bool     `yaml:"enabled" json:"enabled"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Actions     []Action `yaml:"actions" json:"actions" validate:"dive"`
}

// Profile bundles command aliases and hooks for a kind of server.
type Profile struct {
	Name           string            `yaml:"name" json:"name"`
	Description    string            `yaml:"description" json:"description"`
	CommandAliases map[string]string `yaml:"command_aliases" json:"commandAliases"`
	Hooks          map[string]Hook   `yaml:"hooks" json:"hooks"`
}

// Summary describes a profile for listings.
type Summary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	AliasCount  int    `json:"aliasCount"`
	HookCount   int    `json:"hookCount"`
	Active      bool   `json:"active"`
	BuiltIn     bool   `json:"builtIn"`
}

// Store resolves profiles from the user's profiles directory, falling back to
// the built-in set. A user profile with a built-in's name shadows it.
type Store struct {
	paths  config.Paths
	log    logger.Logger
	getenv func(string) string
}

// NewStore returns a Store rooted at paths.
func NewStore(paths config.Paths, log logger.Logger) *Store {
	if log == nil {
		log = logger.Noop()
	}
	return &Store{paths: paths, log: log, getenv: os.Getenv}
}

// Load returns the named profile. Unknown or unreadable profiles fall back to
// default, then minimal; the fallback is logged at debug level only.
func (s *Store) Load(name string) Profile {
	if p, ok := s.lookup(name); ok {
		return p
	}
	s.log.Debug("profile %q not found, falling back to %s", name, DefaultName)

	if p, ok := s.lookup(DefaultName); ok {
		return p
	}
	if p, ok := loadBuiltin(MinimalName); ok {
		return p
	}
	return normalize(Profile{Name: MinimalName})
}

// Exists reports whether name resolves to a user or built-in profile.
func (s *Store) Exists(name string) bool {
	_, ok := s.lookup(name)
	return ok
}

// ActiveName returns $SSHMAN_PROFILE, then the active-profile file, then default.
func (s *Store) ActiveName() string {
	if name := strings.TrimSpace(s.getenv(ActiveEnv)); name != "" {
		return name
	}

	var name string
	if err := store.Open(s.paths.ActiveProfile()).Load(&name); err != nil {
		s.log.Warn("couldn't read active profile: %s", err)
	}
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return DefaultName
}

// Active loads the active profile. It is re-read on every call so a switch
// takes effect without restarting.
func (s *Store) Active() Profile {
	return s.Load(s.ActiveName())
}

// SetActive persists name as the active profile.
func (s *Store) SetActive(name string) error {
	name = strings.TrimSpace(name)
	if !s.Exists(name) {
		return errors.New(errors.ErrConfig,
			"Profile '"+name+"' doesn't exist",
			"Available profiles: "+strings.Join(s.names(), ", "))
	}
	if err := s.paths.EnsureHome(); err != nil {
		return err
	}
	if err := store.Open(s.paths.ActiveProfile()).Save(name); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't save the active profile",
			"Check permissions on "+s.paths.Home)
	}
	return nil
}

// List returns every available profile sorted by name.
func (s *Store) List() []Summary {
	active := s.ActiveName()
	if !s.Exists(active) {
		active = DefaultName
	}

	var out []Summary
	for _, name := range s.names() {
		p, ok := s.lookup(name)
		if !ok {
			continue
		}
		out = append(out, Summary{
			Name:        name,
			Description: p.Description,
			AliasCount:  len(p.CommandAliases),
			HookCount:   len(p.Hooks),
			Active:      name == active,
			BuiltIn:     isBuiltin(name) && !s.hasUserProfile(name),
		})
	}
	return out
}

func (s *Store) names() []string {
	seen := make(map[string]bool)
	for _, name := range builtinNames() {
		seen[name] = true
	}

	entries, _ := os.ReadDir(s.paths.ProfilesDir())
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name, ok := profileFileName(e.Name()); ok {
			seen[name] = true
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Store) lookup(name string) (Profile, bool) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) {
		return Profile{}, false
	}

	if p, ok := s.loadUser(name); ok {
		return p, true
	}
	return loadBuiltin(name)
}

func (s *Store) hasUserProfile(name string) bool {
	for _, ext := range []string{".yaml", ".yml", ".json"} {
		if _, err := os.Stat(filepath.Join(s.paths.ProfilesDir(), name+ext)); err == nil {
			return true
		}
	}
	return false
}

func (s *Store) loadUser(name string) (Profile, bool) {
	for _, ext := range []string{".yaml", ".yml", ".json"} {
		path := filepath.Join(s.paths.ProfilesDir(), name+ext)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var p Profile
		if ext == ".json" {
			err = json.Unmarshal(data, &p)
		} else {
			err = yaml.Unmarshal(data, &p)
		}
		if err != nil {
			s.log.Warn("ignoring profile %s: %s", path, err)
			continue
		}
		if p.Name == "" {
			p.Name = name
		}
		return normalize(p), true
	}
	return Profile{}, false
}

func loadBuiltin(name string) (Profile, bool) {
	data, err := builtinFS.ReadFile("builtin/" + name + ".yaml")
	if err != nil {
		return Profile{}, false
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, false
	}
	return normalize(p), true
}

func builtinNames() []string {
	entries, _ := builtinFS.ReadDir("builtin")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if name, ok := profileFileName(e.Name()); ok {
			names = append(names, name)
		}
	}
	return names
}

func isBuiltin(name string) bool {
	_, err := builtinFS.ReadFile("builtin/" + name + ".yaml")
	return err == nil
}

func profileFileName(file string) (string, bool) {
	for _, ext := range []string{".yaml", ".yml", ".json"} {
		if strings.HasSuffix(file, ext) {
			return strings.TrimSuffix(file, ext), true
		}
	}
	return "", false
}

func normalize(p Profile) Profile {
	if p.CommandAliases == nil {
		p.CommandAliases = make(map[string]string)
	}
	if p.Hooks == nil {
		p.Hooks = make(map[string]Hook)
	}
	return p
}
