// Package cmdalias expands short command names into full shell commands.
// The active profile supplies the base table; a custom overlay stored in
// command-aliases.yaml adds to it and overrides it.
package cmdalias

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rileyhilliard/sshman/internal/config"
	"github.com/rileyhilliard/sshman/internal/errors"
	"github.com/rileyhilliard/sshman/internal/logger"
	"github.com/rileyhilliard/sshman/internal/store"
)

// CommandAlias is one entry of the effective table.
type CommandAlias struct {
	Alias         string `json:"alias"`
	Command       string `json:"command"`
	IsFromProfile bool   `json:"isFromProfile"`
	IsCustom      bool   `json:"isCustom"`
}

// Merge overlays overlay onto base and returns the result sorted by alias.
// Neither input is modified.
func Merge(base, overlay map[string]string) []CommandAlias {
	merged := make(map[string]*CommandAlias, len(base)+len(overlay))
	for alias, cmd := range base {
		merged[alias] = &CommandAlias{Alias: alias, Command: cmd, IsFromProfile: true}
	}
	for alias, cmd := range overlay {
		if ca, ok := merged[alias]; ok {
			ca.Command = cmd
			ca.IsCustom = true
			continue
		}
		merged[alias] = &CommandAlias{Alias: alias, Command: cmd, IsCustom: true}
	}

	out := make([]CommandAlias, 0, len(merged))
	for _, ca := range merged {
		out = append(out, *ca)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}

type overlayDoc struct {
	Aliases map[string]string `yaml:"aliases"`
}

// Table is the effective command alias table.
type Table struct {
	file *store.File
	base func() map[string]string
	log  logger.Logger
}

// NewTable returns a Table whose base aliases come from base, which is called
// on every lookup so profile switches apply immediately.
func NewTable(paths config.Paths, base func() map[string]string, log logger.Logger) *Table {
	if log == nil {
		log = logger.Noop()
	}
	if base == nil {
		base = func() map[string]string { return nil }
	}
	return &Table{file: store.Open(paths.CommandAliases()), base: base, log: log}
}

// Expand returns the aliased command when the whole input (ignoring
// surrounding whitespace) is an alias, or the input unchanged otherwise.
func (t *Table) Expand(command string) string {
	key := strings.TrimSpace(command)
	if key == "" {
		return command
	}

	list, err := t.List()
	if err != nil {
		t.log.Warn("command aliases unavailable: %s", errors.OneLine(err))
		return command
	}
	for _, ca := range list {
		if ca.Alias == key {
			t.log.Debug("expanded alias %q", key)
			return ca.Command
		}
	}
	return command
}

// Add sets alias in the overlay, replacing any existing value.
func (t *Table) Add(alias, command string) error {
	alias = strings.TrimSpace(alias)
	if alias == "" || strings.ContainsAny(alias, " \t\n") {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Invalid command alias %q", alias),
			"Aliases are single words like 'logs' or 'disk'")
	}
	if strings.TrimSpace(command) == "" {
		return errors.New(errors.ErrConfig,
			"Alias '"+alias+"' needs a command",
			"Pass the command the alias should run")
	}

	return t.update(func(doc *overlayDoc) {
		doc.Aliases[alias] = command
	})
}

// Remove drops alias from the overlay. If the profile defines the alias, the
// overlay is reset to the profile's command so the base value shows again.
func (t *Table) Remove(alias string) error {
	alias = strings.TrimSpace(alias)
	base := t.base()

	return t.update(func(doc *overlayDoc) {
		if cmd, ok := base[alias]; ok {
			doc.Aliases[alias] = cmd
			return
		}
		delete(doc.Aliases, alias)
	})
}

// List returns the effective table.
func (t *Table) List() ([]CommandAlias, error) {
	var doc overlayDoc
	if err := t.file.Load(&doc); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't read command aliases",
			"Fix or delete "+t.file.Path())
	}
	return Merge(t.base(), doc.Aliases), nil
}

// Suggest returns entries whose alias or command contains term.
// Matching is case-sensitive.
func (t *Table) Suggest(term string) ([]CommandAlias, error) {
	list, err := t.List()
	if err != nil {
		return nil, err
	}

	var out []CommandAlias
	for _, ca := range list {
		if strings.Contains(ca.Alias, term) || strings.Contains(ca.Command, term) {
			out = append(out, ca)
		}
	}
	return out, nil
}

func (t *Table) update(fn func(doc *overlayDoc)) error {
	err := store.Update(t.file, func(doc *overlayDoc) error {
		if doc.Aliases == nil {
			doc.Aliases = make(map[string]string)
		}
		fn(doc)
		return nil
	})
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't save command aliases",
			"Check permissions on "+t.file.Path())
	}
	return nil
}
