// Package soql holds the escaping and identifier rules every SOQL fragment
// built by this module goes through.
package soql

import (
	"regexp"
	"strings"
	"unicode/utf8"

	libinjection "github.com/corazawaf/libinjection-go"
)

// MaxLiteralLength bounds an escaped string literal.
const MaxLiteralLength = 255

// maxIdentifierLength bounds a (possibly dotted) field or object name.
const maxIdentifierLength = 255

var identifierRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z][A-Za-z0-9_]*)*$`)

// Escape prepares s for use inside a single-quoted SOQL literal. Backslashes
// are escaped first, then single quotes, then the result is truncated to
// MaxLiteralLength. Truncation never leaves a dangling backslash that would
// escape the closing quote.
func Escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return truncate(s, MaxLiteralLength)
}

// EscapeLike is Escape plus escaping of the LIKE wildcards % and _, so
// user input matches literally inside a LIKE pattern.
func EscapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return truncate(s, MaxLiteralLength)
}

// Quote returns s escaped and wrapped in single quotes.
func Quote(s string) string {
	return "'" + Escape(s) + "'"
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	s = s[:cut]
	// An odd run of trailing backslashes means the last one was cut from its pair.
	trailing := len(s) - len(strings.TrimRight(s, `\`))
	if trailing%2 == 1 {
		s = s[:len(s)-1]
	}
	return s
}

// ValidIdentifier reports whether name is a safe object or field name,
// optionally a dotted relationship path such as RecordType.DeveloperName.
func ValidIdentifier(name string) bool {
	if name == "" || len(name) > maxIdentifierLength {
		return false
	}
	return identifierRe.MatchString(name)
}

// Identifier returns name when it is a valid identifier and fallback otherwise.
// Field names reach the query builder from tenant metadata, so they are
// never interpolated unchecked.
func Identifier(name, fallback string) string {
	if ValidIdentifier(name) {
		return name
	}
	return fallback
}

// Suspicious reports whether s looks like a SQL injection attempt and returns
// the libinjection fingerprint. It is used for logging only; Escape is what
// keeps the literal safe.
func Suspicious(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	isSQLi, fingerprint := libinjection.IsSQLi(s)
	if !isSQLi {
		return "", false
	}
	return string(fingerprint), true
}
