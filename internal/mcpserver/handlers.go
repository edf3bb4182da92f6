package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rileyhilliard/sshman/internal/deploy"
	"github.com/rileyhilliard/sshman/internal/errors"
	"github.com/rileyhilliard/sshman/internal/logger"
	"github.com/rileyhilliard/sshman/internal/tools"
)

type tool struct {
	def    mcp.Tool
	handle server.ToolHandlerFunc
}

type handlers struct {
	svc *tools.Service
	log logger.Logger
}

var serverParam = mcp.WithString("server",
	mcp.Required(),
	mcp.Description("Server name or alias, as listed by ssh_list_servers"),
)

func (h *handlers) tools() []tool {
	return []tool{
		{
			def: mcp.NewTool("ssh_execute",
				mcp.WithDescription("Run a command on a server. Command aliases are expanded first."),
				serverParam,
				mcp.WithString("command", mcp.Required(), mcp.Description("Command or command alias to run")),
				mcp.WithString("cwd", mcp.Description("Working directory; defaults to the server's default_dir")),
			),
			handle: h.execute,
		},
		{
			def: mcp.NewTool("ssh_execute_sudo",
				mcp.WithDescription("Run a command as root through sudo. The password is masked in the output."),
				serverParam,
				mcp.WithString("command", mcp.Required(), mcp.Description("Command or command alias to run")),
				mcp.WithString("password", mcp.Description("Sudo password; defaults to the server's sudo_password")),
				mcp.WithString("cwd", mcp.Description("Working directory; defaults to the server's default_dir")),
			),
			handle: h.executeSudo,
		},
		{
			def: mcp.NewTool("ssh_upload",
				mcp.WithDescription("Upload a local file to a server over SFTP."),
				serverParam,
				mcp.WithString("localPath", mcp.Required(), mcp.Description("Local file to upload")),
				mcp.WithString("remotePath", mcp.Required(), mcp.Description("Destination path on the server")),
			),
			handle: h.upload,
		},
		{
			def: mcp.NewTool("ssh_download",
				mcp.WithDescription("Download a file from a server over SFTP."),
				serverParam,
				mcp.WithString("remotePath", mcp.Required(), mcp.Description("File on the server")),
				mcp.WithString("localPath", mcp.Required(), mcp.Description("Local destination path")),
			),
			handle: h.download,
		},
		{
			def: mcp.NewTool("ssh_list_servers",
				mcp.WithDescription("List configured servers with their aliases. Passwords are never included."),
			),
			handle: h.listServers,
		},
		{
			def: mcp.NewTool("ssh_deploy",
				mcp.WithDescription("Deploy files: upload to a temp path, back up the target, move into place, "+
					"set owner and permissions, optionally restart a service. Defaults are inferred from the destination path."),
				serverParam,
				mcp.WithArray("files",
					mcp.Required(),
					mcp.Description(`Files to deploy, as {"local": "...", "remote": "..."} objects or "local:remote" strings`),
					mcp.Items(map[string]any{
						"type": "object",
						"properties": map[string]any{
							"local":  map[string]any{"type": "string"},
							"remote": map[string]any{"type": "string"},
						},
						"required": []string{"local", "remote"},
					}),
				),
				mcp.WithString("owner", mcp.Description("Owner as user or user:group")),
				mcp.WithString("permissions", mcp.Description("Octal mode such as 644")),
				mcp.WithBoolean("backup", mcp.Description("Back up an existing target first (default true)")),
				mcp.WithString("restart", mcp.Description("systemd unit, or a shell command, to run after the move")),
				mcp.WithBoolean("sudo", mcp.Description("Force sudo on or off; inferred from the path when omitted")),
				mcp.WithString("sudoPassword", mcp.Description("Sudo password; defaults to the server's sudo_password")),
			),
			handle: h.deploy,
		},
		{
			def: mcp.NewTool("ssh_test_connection",
				mcp.WithDescription("Check a server is reachable, open a fresh SSH session and report uname -a."),
				serverParam,
			),
			handle: h.testConnection,
		},
		{
			def: mcp.NewTool("ssh_alias",
				mcp.WithDescription("Manage server aliases."),
				mcp.WithString("action", mcp.Required(), mcp.Enum("add", "remove", "list")),
				mcp.WithString("alias", mcp.Description("Alias name (add, remove)")),
				mcp.WithString("server", mcp.Description("Target server (add)")),
			),
			handle: h.serverAlias,
		},
		{
			def: mcp.NewTool("ssh_command_alias",
				mcp.WithDescription("Manage command aliases. Removing a profile alias restores the profile's command."),
				mcp.WithString("action", mcp.Required(), mcp.Enum("add", "remove", "list", "suggest")),
				mcp.WithString("alias", mcp.Description("Alias name (add, remove)")),
				mcp.WithString("command", mcp.Description("Command (add) or search term (suggest)")),
			),
			handle: h.commandAlias,
		},
		{
			def: mcp.NewTool("ssh_hooks",
				mcp.WithDescription("List, enable, disable or inspect hooks."),
				mcp.WithString("action", mcp.Required(), mcp.Enum("list", "enable", "disable", "status")),
				mcp.WithString("hook", mcp.Description("Hook name (enable, disable, status)")),
			),
			handle: h.hooks,
		},
		{
			def: mcp.NewTool("ssh_profile",
				mcp.WithDescription("List profiles, switch the active profile, or show the current one."),
				mcp.WithString("action", mcp.Required(), mcp.Enum("list", "switch", "current")),
				mcp.WithString("profile", mcp.Description("Profile name (switch)")),
			),
			handle: h.profile,
		},
	}
}

func (h *handlers) execute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := required(req, "server", "command")
	if err != nil {
		return argError(err), nil
	}
	res, err := h.svc.Execute(ctx, args[0], args[1], req.GetString("cwd", ""))
	return h.respond("ssh_execute", res, err)
}

func (h *handlers) executeSudo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := required(req, "server", "command")
	if err != nil {
		return argError(err), nil
	}
	res, err := h.svc.ExecuteSudo(ctx, args[0], args[1], req.GetString("password", ""), req.GetString("cwd", ""))
	return h.respond("ssh_execute_sudo", res, err)
}

func (h *handlers) upload(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := required(req, "server", "localPath", "remotePath")
	if err != nil {
		return argError(err), nil
	}
	res, err := h.svc.Upload(ctx, args[0], args[1], args[2])
	return h.respond("ssh_upload", res, err)
}

func (h *handlers) download(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := required(req, "server", "remotePath", "localPath")
	if err != nil {
		return argError(err), nil
	}
	res, err := h.svc.Download(ctx, args[0], args[1], args[2])
	return h.respond("ssh_download", res, err)
}

func (h *handlers) listServers(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	servers, err := h.svc.ListServers()
	return h.respond("ssh_list_servers", map[string]any{"servers": servers, "count": len(servers)}, err)
}

func (h *handlers) deploy(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := required(req, "server")
	if err != nil {
		return argError(err), nil
	}
	files, err := filePairs(req.GetArguments()["files"])
	if err != nil {
		return argError(err), nil
	}

	opts := deploy.Options{
		Owner:        req.GetString("owner", ""),
		Permissions:  req.GetString("permissions", ""),
		Restart:      req.GetString("restart", ""),
		SudoPassword: req.GetString("sudoPassword", ""),
		Backup:       optionalBool(req, "backup"),
		Sudo:         optionalBool(req, "sudo"),
	}
	res, err := h.svc.Deploy(ctx, args[0], files, opts)
	return h.respond("ssh_deploy", res, err)
}

func (h *handlers) testConnection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := required(req, "server")
	if err != nil {
		return argError(err), nil
	}
	res, err := h.svc.TestConnection(ctx, args[0])
	return h.respond("ssh_test_connection", res, err)
}

func (h *handlers) serverAlias(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := required(req, "action")
	if err != nil {
		return argError(err), nil
	}
	res, err := h.svc.ManageServerAlias(args[0], req.GetString("alias", ""), req.GetString("server", ""))
	return h.respond("ssh_alias", res, err)
}

func (h *handlers) commandAlias(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := required(req, "action")
	if err != nil {
		return argError(err), nil
	}
	res, err := h.svc.ManageCommandAlias(args[0], req.GetString("alias", ""), req.GetString("command", ""))
	return h.respond("ssh_command_alias", res, err)
}

func (h *handlers) hooks(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := required(req, "action")
	if err != nil {
		return argError(err), nil
	}
	res, err := h.svc.ManageHooks(args[0], req.GetString("hook", ""))
	return h.respond("ssh_hooks", res, err)
}

func (h *handlers) profile(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := required(req, "action")
	if err != nil {
		return argError(err), nil
	}
	res, err := h.svc.ManageProfile(args[0], req.GetString("profile", ""))
	return h.respond("ssh_profile", res, err)
}

// respond encodes v as indented JSON, or err as a single-line tool error.
func (h *handlers) respond(name string, v any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		h.log.Warn("%s failed: %s", name, errors.OneLine(err))
		return mcp.NewToolResultError(errors.OneLine(err)), nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Couldn't encode the %s result: %s", name, err)), nil
	}
	h.log.Debug("%s ok", name)
	return mcp.NewToolResultText(string(data)), nil
}

func required(req mcp.CallToolRequest, keys ...string) ([]string, error) {
	values := make([]string, len(keys))
	for i, key := range keys {
		v, err := req.RequireString(key)
		if err != nil || strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("missing required argument %q", key)
		}
		values[i] = v
	}
	return values, nil
}

func argError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

// optionalBool returns nil when key is absent so the option keeps its default.
func optionalBool(req mcp.CallToolRequest, key string) *bool {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return nil
	}
	var v bool
	switch b := raw.(type) {
	case bool:
		v = b
	case string:
		v = b == "true" || b == "1" || b == "yes"
	default:
		return nil
	}
	return &v
}

func filePairs(raw any) ([]deploy.FilePair, error) {
	items, ok := raw.([]any)
	if !ok || len(items) == 0 {
		return nil, fmt.Errorf("files must be a non-empty array")
	}

	pairs := make([]deploy.FilePair, 0, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case string:
			pair, err := tools.ParseFilePair(v)
			if err != nil {
				return nil, fmt.Errorf("files[%d]: %s", i, errors.OneLine(err))
			}
			pairs = append(pairs, pair)
		case map[string]any:
			local, _ := v["local"].(string)
			remote, _ := v["remote"].(string)
			if local == "" || remote == "" {
				return nil, fmt.Errorf("files[%d] needs both local and remote", i)
			}
			pairs = append(pairs, deploy.FilePair{Local: local, Remote: remote})
		default:
			return nil, fmt.Errorf("files[%d] must be an object or a local:remote string", i)
		}
	}
	return pairs, nil
}
