// Package xregexp composes regular expressions from small named operators,
// keeping grammars readable where a single long pattern would not be.
package xregexp

import (
	"regexp"
	"strings"
)

// Literal escapes s so it matches itself.
func Literal(s string) string {
	return regexp.QuoteMeta(s)
}

// Expression concatenates the expressions, each matching right after the
// previous one.
func Expression(res ...string) string {
	return strings.Join(res, "")
}

// Group wraps the expressions in a non-capturing group.
func Group(res ...string) string {
	return `(?:` + Expression(res...) + `)`
}

// Optional makes the wrapped expressions match zero or one time.
func Optional(res ...string) string {
	return Group(Expression(res...)) + `?`
}

// Any makes the wrapped expressions match zero or more times.
func Any(res ...string) string {
	return Group(Expression(res...)) + `*`
}

// Anchored pins the expressions to the start and end of the input.
func Anchored(res ...string) string {
	return `^` + Expression(res...) + `$`
}
