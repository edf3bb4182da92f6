// Package util provides common utility functions used across the codebase.
package util

import "strings"

// ShellQuote wraps a string in single quotes, escaping any existing single quotes.
// This is safe for use in shell commands where the string should be treated literally.
func ShellQuote(s string) string {
	// Replace ' with '\'' (end quote, escaped quote, start quote)
	escaped := strings.ReplaceAll(s, "'", "'\\''")
	return "'" + escaped + "'"
}

// ShellQuotePreserveTilde quotes a path for shell execution while preserving tilde expansion.
// For paths starting with ~/, the tilde is kept unquoted and the rest is single-quoted.
// For other paths, the entire path is single-quoted.
func ShellQuotePreserveTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		return "~/" + ShellQuote(path[2:])
	}
	if path == "~" {
		return "~"
	}
	return ShellQuote(path)
}

// MaskSecret replaces every occurrence of secret (raw and shell-quoted) in s with "****".
func MaskSecret(s, secret string) string {
	if secret == "" {
		return s
	}
	s = strings.ReplaceAll(s, ShellQuote(secret), "'****'")
	return strings.ReplaceAll(s, secret, "****")
}

// SudoPrefix returns the prefix that runs the following command as root.
// Without a password sudo must not prompt (-n). With one, the password is
// piped to sudo -S with an empty prompt so nothing is echoed into output.
func SudoPrefix(password string) string {
	if password == "" {
		return "sudo -n "
	}
	return "printf '%s\\n' " + ShellQuote(password) + " | sudo -S -p '' "
}
