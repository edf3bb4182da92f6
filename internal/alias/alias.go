// Package alias maps short server aliases onto configured server names.
// Aliases and server names share one namespace; an exact server name always
// wins over an alias.
package alias

import (
	"fmt"
	"strings"

	"github.com/rileyhilliard/sshman/internal/config"
	"github.com/rileyhilliard/sshman/internal/errors"
	"github.com/rileyhilliard/sshman/internal/logger"
	"github.com/rileyhilliard/sshman/internal/store"
	"github.com/rileyhilliard/sshman/internal/util"
)

// ServerAlias points an alias at a server name.
type ServerAlias struct {
	Alias  string `yaml:"alias" json:"alias"`
	Server string `yaml:"server" json:"server"`
}

type document struct {
	Aliases []ServerAlias `yaml:"aliases"`
}

// Resolver reads and edits the alias list in server-aliases.yaml.
type Resolver struct {
	file *store.File
	log  logger.Logger
}

// NewResolver returns a Resolver backed by the state home in paths.
func NewResolver(paths config.Paths, log logger.Logger) *Resolver {
	if log == nil {
		log = logger.Noop()
	}
	return &Resolver{file: store.Open(paths.ServerAliases()), log: log}
}

// Resolve maps input to a canonical server name. Matching is
// case-insensitive. An alias whose target no longer exists doesn't resolve.
func (r *Resolver) Resolve(input string, servers config.Servers) (string, bool) {
	name := normalize(input)
	if name == "" {
		return "", false
	}
	if servers.Has(name) {
		return name, true
	}

	aliases, err := r.List()
	if err != nil {
		r.log.Warn("couldn't read server aliases: %s", errors.OneLine(err))
		return "", false
	}
	for _, a := range aliases {
		if a.Alias == name {
			if servers.Has(a.Server) {
				return a.Server, true
			}
			r.log.Debug("alias %q points at missing server %q", a.Alias, a.Server)
			return "", false
		}
	}
	return "", false
}

// Add creates alias -> target, or retargets an existing alias in place.
// The target may itself be an alias; the canonical server name is stored.
func (r *Resolver) Add(alias, target string, servers config.Servers) error {
	name := normalize(alias)
	if name == "" || strings.ContainsAny(name, " \t\n") {
		return errors.New(errors.ErrAliasTarget,
			fmt.Sprintf("Invalid alias %q", alias),
			"Aliases are single words like 'prod' or 'db1'")
	}
	if servers.Has(name) {
		return errors.New(errors.ErrAliasTarget,
			fmt.Sprintf("'%s' is already a server name", name),
			"Pick an alias that doesn't collide with a configured server")
	}

	canonical, ok := r.Resolve(target, servers)
	if !ok {
		return errors.New(errors.ErrAliasTarget,
			fmt.Sprintf("Server '%s' not found", target),
			"Configured servers: "+util.JoinOrNone(servers.Names()))
	}

	err := store.Update(r.file, func(doc *document) error {
		for i := range doc.Aliases {
			if doc.Aliases[i].Alias == name {
				doc.Aliases[i].Server = canonical
				return nil
			}
		}
		doc.Aliases = append(doc.Aliases, ServerAlias{Alias: name, Server: canonical})
		return nil
	})
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't save server aliases",
			"Check permissions on "+r.file.Path())
	}
	return nil
}

// Remove deletes alias. Removing a missing alias is not an error.
func (r *Resolver) Remove(alias string) error {
	name := normalize(alias)
	err := store.Update(r.file, func(doc *document) error {
		kept := doc.Aliases[:0]
		for _, a := range doc.Aliases {
			if a.Alias != name {
				kept = append(kept, a)
			}
		}
		doc.Aliases = kept
		return nil
	})
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't save server aliases",
			"Check permissions on "+r.file.Path())
	}
	return nil
}

// List returns aliases in insertion order.
func (r *Resolver) List() ([]ServerAlias, error) {
	var doc document
	if err := r.file.Load(&doc); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't read server aliases",
			"Fix or delete "+r.file.Path())
	}
	return doc.Aliases, nil
}

// AliasesFor groups alias names by the server they point at.
func (r *Resolver) AliasesFor() map[string][]string {
	out := make(map[string][]string)
	aliases, err := r.List()
	if err != nil {
		r.log.Warn("couldn't read server aliases: %s", errors.OneLine(err))
		return out
	}
	for _, a := range aliases {
		out[a.Server] = append(out[a.Server], a.Alias)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
