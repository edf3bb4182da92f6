package config

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// DefaultPort is used when a record doesn't set one.
const DefaultPort = 22

// AuthKind is how a server record authenticates.
type AuthKind string

const (
	AuthPassword AuthKind = "password"
	AuthKey      AuthKind = "key"
)

// ServerRecord is one named remote target.
type ServerRecord struct {
	Name         string `mapstructure:"-" yaml:"-" validate:"required"`
	Host         string `mapstructure:"host" yaml:"host" validate:"required"`
	User         string `mapstructure:"user" yaml:"user" validate:"required"`
	Port         int    `mapstructure:"port" yaml:"port,omitempty" validate:"min=1,max=65535"`
	Password     string `mapstructure:"password" yaml:"password,omitempty"`
	KeyPath      string `mapstructure:"keypath" yaml:"keypath,omitempty"`
	DefaultDir   string `mapstructure:"default_dir" yaml:"default_dir,omitempty"`
	SudoPassword string `mapstructure:"sudo_password" yaml:"sudo_password,omitempty"`
	Description  string `mapstructure:"description" yaml:"description,omitempty"`
}

// AuthKind reports password auth when a password is set, key auth otherwise
// (explicit key, ssh-agent or default identities).
func (r ServerRecord) AuthKind() AuthKind {
	if r.Password != "" {
		return AuthPassword
	}
	return AuthKey
}

// Address returns host:port.
func (r ServerRecord) Address() string {
	port := r.Port
	if port == 0 {
		port = DefaultPort
	}
	return r.Host + ":" + strconv.Itoa(port)
}

func (r ServerRecord) String() string {
	return fmt.Sprintf("%s (%s@%s)", r.Name, r.User, r.Address())
}

// Servers maps lower-cased server names to records.
type Servers map[string]ServerRecord

// Names returns the server names in sorted order.
func (s Servers) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is a configured server.
func (s Servers) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Settings are process-wide knobs read from settings.yaml.
type Settings struct {
	ConnectTimeout        time.Duration `mapstructure:"connect_timeout"`
	CommandTimeout        time.Duration `mapstructure:"command_timeout"`
	HookTimeout           time.Duration `mapstructure:"hook_timeout"`
	LockTimeout           time.Duration `mapstructure:"deploy_lock_timeout"`
	LockStale             time.Duration `mapstructure:"deploy_lock_stale"`
	StrictHostKeyChecking bool          `mapstructure:"strict_host_key_checking"`
	LogLevel              string        `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultSettings returns the settings used when settings.yaml is absent.
func DefaultSettings() Settings {
	return Settings{
		ConnectTimeout:        10 * time.Second,
		CommandTimeout:        10 * time.Minute,
		HookTimeout:           30 * time.Second,
		LockTimeout:           2 * time.Minute,
		LockStale:             30 * time.Minute,
		StrictHostKeyChecking: false,
		LogLevel:              "info",
	}
}
