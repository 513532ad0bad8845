// Package logtemplate turns log-point templates into the wire format: a
// pattern with positional placeholders plus the ordered variable names.
package logtemplate

import (
	"errors"
	"strings"

	"github.com/tinytelemetry/lotus-live/internal/model"
	"github.com/tinytelemetry/lotus-live/internal/varmatch"
)

// ErrLiteralPlaceholder is returned by Check for raw text that already holds
// the placeholder token.
var ErrLiteralPlaceholder = errors.New("template contains a literal " + model.PlaceholderToken)

// Normalized is a template with every recognized variable reference
// replaced by model.PlaceholderToken. Variables[i] fills the i-th placeholder.
type Normalized struct {
	Pattern   string   `json:"pattern"`
	Variables []string `json:"variables"`
}

// Empty reports whether the pattern has no visible content.
func (n Normalized) Empty() bool {
	return strings.TrimSpace(n.Pattern) == ""
}

// Normalizer rewrites templates against a fixed variable scope.
type Normalizer struct {
	matcher *varmatch.Matcher
}

// NewNormalizer returns a Normalizer for the matcher's scope.
func NewNormalizer(m *varmatch.Matcher) *Normalizer {
	if m == nil {
		m = varmatch.New(nil)
	}
	return &Normalizer{matcher: m}
}

// ForScope is shorthand for NewNormalizer(varmatch.New(names)).
func ForScope(names []string) *Normalizer {
	return NewNormalizer(varmatch.New(names))
}

// Normalize replaces references left to right. Text that looks like a
// reference to an unknown variable is kept as literal text.
func (n *Normalizer) Normalize(raw string) Normalized {
	matches := n.matcher.FindAll(raw)
	out := Normalized{Pattern: raw, Variables: make([]string, 0, len(matches))}
	if len(matches) == 0 {
		return out
	}

	pattern := raw
	delta := 0
	for _, m := range matches {
		start := m.Offset - delta
		end := start + len(m.Text)
		pattern = pattern[:start] + model.PlaceholderToken + pattern[end:]
		delta += len(m.Text) - len(model.PlaceholderToken)
		out.Variables = append(out.Variables, m.Name)
	}
	out.Pattern = pattern
	return out
}

// Check rejects raw templates whose literal text contains the placeholder
// token. Such text cannot be told apart from a substituted reference once
// normalized, so the variables would land in the wrong slots.
func Check(raw string) error {
	if strings.Contains(raw, model.PlaceholderToken) {
		return ErrLiteralPlaceholder
	}
	return nil
}

// Render substitutes $name back into each placeholder, in order.
// Placeholders without a matching variable are left as they are.
func Render(pattern string, variables []string) string {
	args := make([]string, len(variables))
	for i, v := range variables {
		args[i] = "$" + v
	}
	return fill(pattern, args)
}

// FormatHit fills the placeholders of a normalized pattern with the values
// captured by one log hit.
func FormatHit(pattern string, args []string) string {
	return fill(pattern, args)
}

// CountPlaceholders returns how many placeholders pattern holds.
func CountPlaceholders(pattern string) int {
	return strings.Count(pattern, model.PlaceholderToken)
}

func fill(pattern string, args []string) string {
	if len(args) == 0 {
		return pattern
	}
	var b strings.Builder
	b.Grow(len(pattern))
	rest := pattern
	for _, arg := range args {
		i := strings.Index(rest, model.PlaceholderToken)
		if i < 0 {
			break
		}
		b.WriteString(rest[:i])
		b.WriteString(arg)
		rest = rest[i+len(model.PlaceholderToken):]
	}
	b.WriteString(rest)
	return b.String()
}
