// Package privacy masks sensitive fragments of message text before it is
// written to the ledger.
package privacy

import (
	"fmt"
	"regexp"
	"sort"
)

const redactedPlaceholder = "[REDACTED]"

// Builtin are the named patterns that can be enabled by name.
var Builtin = map[string]string{
	"email":  `[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`,
	"phone":  `\+?\d[\d\s().-]{8,}\d`,
	"invite": `(?:t\.me|telegram\.me)/(?:joinchat/|\+)[A-Za-z0-9_-]+`,
	"card":   `\b\d(?:[ -]?\d){12,15}\b`,
}

// BuiltinNames returns the builtin pattern names, sorted.
func BuiltinNames() []string {
	names := make([]string, 0, len(Builtin))
	for name := range Builtin {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Redactor replaces every match of its patterns with [REDACTED].
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor compiles the named builtins followed by the custom patterns.
func NewRedactor(builtins, patterns []string) (*Redactor, error) {
	r := &Redactor{}
	for _, name := range builtins {
		expr, ok := Builtin[name]
		if !ok {
			return nil, fmt.Errorf("unknown builtin redact pattern %q", name)
		}
		r.patterns = append(r.patterns, regexp.MustCompile(expr))
	}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile redact pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

// Empty reports whether the redactor has no patterns.
func (r *Redactor) Empty() bool {
	return r == nil || len(r.patterns) == 0
}

// Redact returns text with all matches replaced.
func (r *Redactor) Redact(text string) string {
	if r == nil {
		return text
	}
	for _, re := range r.patterns {
		text = re.ReplaceAllString(text, redactedPlaceholder)
	}
	return text
}
