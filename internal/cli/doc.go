// Package cli implements the sshman command-line interface.
//
// "sshman serve" runs the MCP stdio server that editors and agents talk to.
// Every MCP tool also has a human-facing command so servers, aliases, hooks
// and profiles can be inspected and changed from a shell:
//
//	sshman servers                      - List configured servers
//	sshman exec prod "df -h"            - Run a command (alias-aware)
//	sshman upload/download              - Copy files over SFTP
//	sshman deploy prod a:/var/www/a     - Deploy with backup/owner/mode
//	sshman test prod                    - Check reachability and auth
//	sshman alias|cmd-alias|hooks|profile - Manage the overlays
//
// Global flags (--home, --verbose, --no-color, --json) are defined on the
// root command. Commands write to cmd.OutOrStdout so tests can capture them.
package cli
