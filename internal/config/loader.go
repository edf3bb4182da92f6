package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/rileyhilliard/sshman/internal/errors"
	"github.com/rileyhilliard/sshman/internal/logger"
	"github.com/spf13/viper"
)

// EnvPrefix starts every server variable: SSH_SERVER_<NAME>_<FIELD>.
const EnvPrefix = "SSH_SERVER_"

// envFields maps variable suffixes to record fields. Longer suffixes come
// first so SUDO_PASSWORD is not read as PASSWORD.
var envFields = []struct {
	suffix string
	field  string
}{
	{"_SUDO_PASSWORD", "sudo_password"},
	{"_DEFAULT_DIR", "default_dir"},
	{"_DESCRIPTION", "description"},
	{"_PASSWORD", "password"},
	{"_KEYPATH", "keypath"},
	{"_HOST", "host"},
	{"_USER", "user"},
	{"_PORT", "port"},
}

// Loader reads server records. Sources are applied in order, later ones
// overriding earlier ones field by field:
//  1. servers.yaml
//  2. .env in the state home
//  3. the process environment
type Loader struct {
	Paths   Paths
	Environ func() []string
	Log     logger.Logger
}

// NewLoader returns a Loader reading from paths and os.Environ.
func NewLoader(paths Paths, log logger.Logger) *Loader {
	if log == nil {
		log = logger.Noop()
	}
	return &Loader{Paths: paths, Environ: os.Environ, Log: log}
}

// Load reads every source and returns the valid records. Records that fail
// validation are dropped with a warning so one broken entry can't take the
// rest down.
func (l *Loader) Load() (Servers, error) {
	acc := make(map[string]*ServerRecord)

	if err := l.loadYAML(acc); err != nil {
		return nil, err
	}
	if err := l.loadDotEnv(acc); err != nil {
		return nil, err
	}
	environ := os.Environ
	if l.Environ != nil {
		environ = l.Environ
	}
	for _, kv := range environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		l.applyEnv(acc, key, value)
	}

	servers := make(Servers, len(acc))
	for name, rec := range acc {
		rec.Name = name
		if rec.Port == 0 {
			rec.Port = DefaultPort
		}
		rec.KeyPath = ExpandTilde(rec.KeyPath)
		rec.DefaultDir = ExpandRemote(rec.DefaultDir)

		if err := ValidateServer(*rec); err != nil {
			l.log().Warn("skipping server %q: %s", name, errors.OneLine(err))
			continue
		}
		servers[name] = *rec
	}

	return servers, nil
}

func (l *Loader) log() logger.Logger {
	if l.Log == nil {
		return logger.Noop()
	}
	return l.Log
}

func (l *Loader) loadYAML(acc map[string]*ServerRecord) error {
	path := l.Paths.Servers()
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't read "+path,
			"Check the file is valid YAML")
	}

	var doc struct {
		Servers map[string]ServerRecord `mapstructure:"servers"`
	}
	if err := v.Unmarshal(&doc); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid server definitions in "+path,
			"Each server needs host and user; port must be a number")
	}

	for name, rec := range doc.Servers {
		r := rec
		acc[strings.ToLower(name)] = &r
	}
	return nil
}

func (l *Loader) loadDotEnv(acc map[string]*ServerRecord) error {
	path := l.Paths.EnvFile()
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't read "+path,
			"Use KEY=value lines, e.g. SSH_SERVER_PROD_HOST=10.0.0.5")
	}

	for _, key := range v.AllKeys() {
		l.applyEnv(acc, key, v.GetString(key))
	}
	return nil
}

// ParseEnvKey splits SSH_SERVER_<NAME>_<FIELD> into a lower-cased server
// name and a field name. Matching is case-insensitive.
func ParseEnvKey(key string) (name, field string, ok bool) {
	upper := strings.ToUpper(key)
	if !strings.HasPrefix(upper, EnvPrefix) {
		return "", "", false
	}
	rest := upper[len(EnvPrefix):]

	for _, f := range envFields {
		if strings.HasSuffix(rest, f.suffix) && len(rest) > len(f.suffix) {
			return strings.ToLower(rest[:len(rest)-len(f.suffix)]), f.field, true
		}
	}
	return "", "", false
}

// invalidPort marks a record whose port couldn't be parsed, so validation
// skips that record instead of the whole load failing.
const invalidPort = -1

func (l *Loader) applyEnv(acc map[string]*ServerRecord, key, value string) {
	name, field, ok := ParseEnvKey(key)
	if !ok {
		return
	}

	rec, exists := acc[name]
	if !exists {
		rec = &ServerRecord{}
		acc[name] = rec
	}

	switch field {
	case "host":
		rec.Host = value
	case "user":
		rec.User = value
	case "port":
		port, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			l.log().Warn("%s isn't a valid port: %q", key, value)
			port = invalidPort
		}
		rec.Port = port
	case "password":
		rec.Password = value
	case "keypath":
		rec.KeyPath = value
	case "default_dir":
		rec.DefaultDir = value
	case "sudo_password":
		rec.SudoPassword = value
	case "description":
		rec.Description = value
	}
}

// LoadSettings reads settings.yaml over DefaultSettings.
func LoadSettings(paths Paths) (Settings, error) {
	def := DefaultSettings()

	v := viper.New()
	v.SetDefault("connect_timeout", def.ConnectTimeout.String())
	v.SetDefault("command_timeout", def.CommandTimeout.String())
	v.SetDefault("hook_timeout", def.HookTimeout.String())
	v.SetDefault("deploy_lock_timeout", def.LockTimeout.String())
	v.SetDefault("deploy_lock_stale", def.LockStale.String())
	v.SetDefault("strict_host_key_checking", def.StrictHostKeyChecking)
	v.SetDefault("log_level", def.LogLevel)

	path := paths.Settings()
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return def, errors.WrapWithCode(err, errors.ErrConfig,
				"Couldn't read "+path,
				"Check the file is valid YAML")
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return def, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid settings in "+path,
			"Timeouts use Go duration syntax, e.g. 30s or 5m")
	}
	if err := ValidateSettings(s); err != nil {
		return def, err
	}
	return s, nil
}
