// Package tools implements the operations sshman exposes: running commands,
// moving files, deploying, and managing aliases, hooks and profiles. The MCP
// server and the CLI are both thin layers over Service.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rileyhilliard/sshman/internal/alias"
	"github.com/rileyhilliard/sshman/internal/cmdalias"
	"github.com/rileyhilliard/sshman/internal/config"
	"github.com/rileyhilliard/sshman/internal/deploy"
	"github.com/rileyhilliard/sshman/internal/errors"
	"github.com/rileyhilliard/sshman/internal/hooks"
	"github.com/rileyhilliard/sshman/internal/host"
	"github.com/rileyhilliard/sshman/internal/logger"
	"github.com/rileyhilliard/sshman/internal/profile"
	"github.com/rileyhilliard/sshman/internal/util"
	"github.com/rileyhilliard/sshman/pkg/sshutil"
)

// Options configure a Service. Zero values use production defaults.
type Options struct {
	Settings config.Settings
	Log      logger.Logger
	// Dial opens sessions; defaults to real SSH.
	Dial host.DialFunc
	// Environ supplies SSH_SERVER_* variables; defaults to os.Environ.
	Environ func() []string
	// HookRunner runs hook actions; defaults to the local shell.
	HookRunner hooks.RunFunc
}

// Service wires the stores, the hook engine and the session registry.
type Service struct {
	paths    config.Paths
	settings config.Settings
	log      logger.Logger

	loader   *config.Loader
	profiles *profile.Store
	aliases  *alias.Resolver
	commands *cmdalias.Table
	hooks    *hooks.Engine
	registry *host.Registry
	deployer *deploy.Executor
}

// New creates a Service rooted at paths.
func New(paths config.Paths, opts Options) *Service {
	log := opts.Log
	if log == nil {
		log = logger.Noop()
	}
	settings := opts.Settings
	defaults := config.DefaultSettings()
	if settings.ConnectTimeout <= 0 {
		settings.ConnectTimeout = defaults.ConnectTimeout
	}
	if settings.CommandTimeout <= 0 {
		settings.CommandTimeout = defaults.CommandTimeout
	}
	if settings.HookTimeout <= 0 {
		settings.HookTimeout = defaults.HookTimeout
	}
	if settings.LockTimeout <= 0 {
		settings.LockTimeout = defaults.LockTimeout
	}

	s := &Service{paths: paths, settings: settings, log: log}

	s.loader = config.NewLoader(paths, log)
	if opts.Environ != nil {
		s.loader.Environ = opts.Environ
	}
	s.profiles = profile.NewStore(paths, log)
	s.aliases = alias.NewResolver(paths, log)
	s.commands = cmdalias.NewTable(paths, func() map[string]string {
		return s.profiles.Active().CommandAliases
	}, log)
	s.hooks = hooks.NewEngine(paths, func() map[string]hooks.Definition {
		return s.profiles.Active().Hooks
	}, settings.HookTimeout, log)
	if opts.HookRunner != nil {
		s.hooks.WithRunner(opts.HookRunner)
	}
	s.registry = host.NewRegistry(opts.Dial, settings.ConnectTimeout, log).WithConnectHooks(
		func(ctx context.Context, rec config.ServerRecord) {
			s.hooks.Execute(ctx, hooks.PreConnect, connectContext(rec))
		},
		func(ctx context.Context, rec config.ServerRecord) {
			s.hooks.Execute(ctx, hooks.PostConnect, connectContext(rec))
		},
	)
	s.deployer = deploy.NewExecutor(s.hooks, log)

	return s
}

// Close drops every cached session.
func (s *Service) Close() {
	s.registry.CloseAll()
}

// InitHooks creates the hooks directory and seeds hooks.yaml.
func (s *Service) InitHooks() error {
	return s.hooks.Initialize()
}

// Paths returns the state home layout.
func (s *Service) Paths() config.Paths {
	return s.paths
}

// resolve loads the servers fresh and maps name or alias to a record.
func (s *Service) resolve(name string) (config.ServerRecord, error) {
	servers, err := s.loader.Load()
	if err != nil {
		return config.ServerRecord{}, err
	}

	canonical, ok := s.aliases.Resolve(name, servers)
	if !ok {
		return config.ServerRecord{}, s.notFound(name, servers)
	}
	return servers[canonical], nil
}

func (s *Service) notFound(name string, servers config.Servers) error {
	aliases, _ := s.aliases.List()
	pairs := make([]string, 0, len(aliases))
	for _, a := range aliases {
		pairs = append(pairs, a.Alias+" → "+a.Server)
	}

	return errors.New(errors.ErrServerNotFound,
		fmt.Sprintf("Server '%s' not found. Available servers: %s. Aliases: %s",
			name, util.JoinOrNone(servers.Names()), util.JoinOrNone(pairs)),
		fmt.Sprintf("Add it to %s or set SSH_SERVER_%s_HOST and SSH_SERVER_%s_USER",
			s.paths.Servers(), strings.ToUpper(name), strings.ToUpper(name)))
}

// connect returns a session for rec. The registry fires the connect hooks
// when it has to open a new connection.
func (s *Service) connect(ctx context.Context, rec config.ServerRecord) (sshutil.Session, error) {
	session, err := s.registry.Get(ctx, rec)
	if err != nil {
		s.fireError(ctx, rec.Name, "connect", err)
		return nil, err
	}
	return session, nil
}

func connectContext(rec config.ServerRecord) map[string]any {
	return map[string]any{"server": rec.Name, "host": rec.Host, "user": rec.User}
}

// run executes cmd bounded by the command timeout. A transport failure other
// than a timeout drops the cached session so the next call reconnects.
func (s *Service) run(ctx context.Context, session sshutil.Session, rec config.ServerRecord, cmd string) (sshutil.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.CommandTimeout)
	defer cancel()

	res, err := session.Run(ctx, cmd)
	if err == nil {
		return res, nil
	}

	if !errors.IsCode(err, errors.ErrTimeout) {
		s.registry.Close(rec.Name)
	}
	if errors.CodeOf(err) == "" {
		err = errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Lost the connection to '%s'", rec.Name),
			"Run the command again to reconnect")
	}
	return res, err
}

func (s *Service) fireError(ctx context.Context, server, operation string, err error) {
	s.hooks.Execute(ctx, hooks.OnError, map[string]any{
		"server":    server,
		"operation": operation,
		"error":     errors.OneLine(err),
	})
}

// ServerInfo is a listing entry. Secrets are never included.
type ServerInfo struct {
	Name        string   `json:"name"`
	Host        string   `json:"host"`
	User        string   `json:"user"`
	Port        int      `json:"port"`
	Auth        string   `json:"auth"`
	DefaultDir  string   `json:"defaultDir,omitempty"`
	Description string   `json:"description,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
}

// ListServers returns every configured server, sorted by name.
func (s *Service) ListServers() ([]ServerInfo, error) {
	servers, err := s.loader.Load()
	if err != nil {
		return nil, err
	}
	aliasesFor := s.aliases.AliasesFor()

	out := make([]ServerInfo, 0, len(servers))
	for _, name := range servers.Names() {
		rec := servers[name]
		port := rec.Port
		if port == 0 {
			port = config.DefaultPort
		}
		names := aliasesFor[name]
		sort.Strings(names)
		out = append(out, ServerInfo{
			Name:        name,
			Host:        rec.Host,
			User:        rec.User,
			Port:        port,
			Auth:        string(rec.AuthKind()),
			DefaultDir:  rec.DefaultDir,
			Description: rec.Description,
			Aliases:     names,
		})
	}
	return out, nil
}
