// Package ui renders sshman's human-facing CLI output: status lines, tables
// and the interactive server picker. MCP responses never go through here.
//
// Colors are plain ANSI codes so they follow the terminal's theme. Call
// DisableColors for --no-color or when stdout is not a terminal.
package ui
