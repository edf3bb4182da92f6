package util

import "strings"

type quoteState int

const (
	unquoted quoteState = iota
	inSingle
	inDouble
)

// ExpandTemplate replaces {key} placeholders in a shell command template.
//
// Each value is quoted for the shell context the placeholder sits in, so the
// substituted text always reaches the command as one literal word:
//
//	echo {v}        -> echo 'value'
//	echo '{v}'      -> echo 'val'\''ue'
//	echo "x: {v}"   -> echo "x: val\"ue"
//
// Placeholders whose key is unknown are left as-is, as are ${VAR} shell
// expansions and {{double}} braces.
func ExpandTemplate(tmpl string, lookup func(key string) (string, bool)) string {
	var b strings.Builder
	b.Grow(len(tmpl))

	state := unquoted
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]

		switch {
		case c == '\\' && state != inSingle:
			b.WriteByte(c)
			if i+1 < len(tmpl) {
				i++
				b.WriteByte(tmpl[i])
			}
			continue
		case c == '\'' && state == unquoted:
			state = inSingle
		case c == '\'' && state == inSingle:
			state = unquoted
		case c == '"' && state == unquoted:
			state = inDouble
		case c == '"' && state == inDouble:
			state = unquoted
		case c == '{':
			if key, end, ok := placeholderAt(tmpl, i); ok {
				if value, found := lookup(key); found {
					b.WriteString(quoteFor(state, value))
					i = end
					continue
				}
			}
		}

		b.WriteByte(c)
	}

	return b.String()
}

// placeholderAt reports the key and closing-brace index of a {key} starting at i.
func placeholderAt(s string, i int) (string, int, bool) {
	if i > 0 && (s[i-1] == '$' || s[i-1] == '{') {
		return "", 0, false
	}
	if i+1 < len(s) && s[i+1] == '{' {
		return "", 0, false
	}

	end := strings.IndexByte(s[i+1:], '}')
	if end <= 0 {
		return "", 0, false
	}
	end += i + 1

	key := s[i+1 : end]
	for _, r := range key {
		if !isKeyRune(r) {
			return "", 0, false
		}
	}
	return key, end, true
}

func isKeyRune(r rune) bool {
	return r == '_' || r == '-' || r == '.' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func quoteFor(state quoteState, value string) string {
	switch state {
	case inSingle:
		return strings.ReplaceAll(value, "'", "'\\''")
	case inDouble:
		r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "$", `\$`, "`", "\\`")
		return r.Replace(value)
	default:
		return ShellQuote(value)
	}
}

// ReplacePlaceholder substitutes every literal occurrence of placeholder with
// the shell-quoted value.
func ReplacePlaceholder(tmpl, placeholder, value string) string {
	return strings.ReplaceAll(tmpl, placeholder, ShellQuote(value))
}
