package tools

import (
	"context"
	"strings"

	"github.com/rileyhilliard/sshman/internal/config"
	"github.com/rileyhilliard/sshman/internal/errors"
	"github.com/rileyhilliard/sshman/internal/hooks"
	"github.com/rileyhilliard/sshman/internal/util"
)

// ExecResult is the outcome of a remote command.
type ExecResult struct {
	Server   string `json:"server"`
	Command  string `json:"command"`
	Alias    string `json:"alias,omitempty"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
	Success  bool   `json:"success"`
}

// Execute runs command on server. A command alias is expanded first, and
// commands matching a known pattern (bench update, bench migrate) fire the
// matching pre- and post- hooks. cwd defaults to the server's default_dir.
// A non-zero exit is reported in the result, not as an error.
func (s *Service) Execute(ctx context.Context, server, command, cwd string) (ExecResult, error) {
	if strings.TrimSpace(command) == "" {
		return ExecResult{}, errors.New(errors.ErrExec, "Command is empty", "Pass the command to run")
	}

	rec, err := s.resolve(server)
	if err != nil {
		return ExecResult{}, err
	}

	expanded := s.commands.Expand(command)
	result := ExecResult{Server: rec.Name}
	if expanded != command {
		result.Alias = strings.TrimSpace(command)
		s.log.Debug("expanded alias %q to %q", result.Alias, expanded)
	}
	result.Command = withCwd(expanded, firstNonEmpty(cwd, rec.DefaultDir))

	return s.runWithHooks(ctx, rec, expanded, result, "")
}

// ExecuteSudo runs command as root. The password comes from the argument or
// the server's sudo_password; it is piped to sudo and masked in the echoed
// command. Output is returned as the server printed it.
func (s *Service) ExecuteSudo(ctx context.Context, server, command, password, cwd string) (ExecResult, error) {
	if strings.TrimSpace(command) == "" {
		return ExecResult{}, errors.New(errors.ErrExec, "Command is empty", "Pass the command to run")
	}

	rec, err := s.resolve(server)
	if err != nil {
		return ExecResult{}, err
	}

	password = firstNonEmpty(password, rec.SudoPassword)
	expanded := s.commands.Expand(command)
	result := ExecResult{Server: rec.Name}
	if expanded != command {
		result.Alias = strings.TrimSpace(command)
	}
	sudo := util.SudoPrefix(password) + "sh -c " + util.ShellQuote(expanded)
	result.Command = withCwd(sudo, firstNonEmpty(cwd, rec.DefaultDir))

	return s.runWithHooks(ctx, rec, expanded, result, password)
}

func (s *Service) runWithHooks(ctx context.Context, rec config.ServerRecord, expanded string, result ExecResult, secret string) (ExecResult, error) {
	suffix, matched := hooks.MatchCommand(expanded)
	hctx := map[string]any{"server": rec.Name, "command": expanded}
	if matched {
		s.hooks.Execute(ctx, "pre-"+suffix, hctx)
	}

	session, err := s.connect(ctx, rec)
	if err != nil {
		return result, err
	}

	s.log.Debug("running on %s: %s", rec.Name, util.MaskSecret(result.Command, secret))
	res, err := s.run(ctx, session, rec, result.Command)
	result.Command = util.MaskSecret(result.Command, secret)
	result.Stdout = res.Stdout
	result.Stderr = res.Stderr
	result.ExitCode = res.ExitCode
	result.Success = err == nil && res.Success()

	if err != nil {
		s.fireError(ctx, rec.Name, "execute", err)
		return result, err
	}

	if matched {
		hctx["exitCode"] = res.ExitCode
		hctx["success"] = result.Success
		s.hooks.Execute(ctx, "post-"+suffix, hctx)
	}
	return result, nil
}

// withCwd prefixes cmd with a cd into dir. A leading ~/ stays unquoted so the
// remote shell expands it.
func withCwd(cmd, dir string) string {
	if dir == "" {
		return cmd
	}
	return "cd " + util.ShellQuotePreserveTilde(dir) + " && " + cmd
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
