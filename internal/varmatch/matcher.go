// Package varmatch recognizes references to in-scope variables inside
// user-authored template text, in either $name or ${name} form.
package varmatch

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Syntax selects which reference forms a Matcher recognizes.
type Syntax uint8

const (
	// Bare is the $name form.
	Bare Syntax = 1 << iota
	// Templated is the ${name} form.
	Templated

	AllSyntaxes = Bare | Templated
)

// Match is one recognized variable reference.
type Match struct {
	Offset int    // byte offset of the leading '$'
	Text   string // the full reference, e.g. "${total}"
	Name   string // the bare variable name
	Syntax Syntax
}

// End returns the byte offset just past the reference.
func (m Match) End() int { return m.Offset + len(m.Text) }

// Matcher finds references to a fixed set of variable names.
// A Matcher is immutable and safe for concurrent use.
type Matcher struct {
	names   []string
	ordered []string // longest first
	syntax  Syntax
	re      *regexp.Regexp
}

// New builds a Matcher for names. Duplicates and empty names are dropped.
// With no syntax given, both forms are recognized.
func New(names []string, syntaxes ...Syntax) *Matcher {
	syntax := AllSyntaxes
	if len(syntaxes) > 0 {
		syntax = 0
		for _, s := range syntaxes {
			syntax |= s
		}
	}

	m := &Matcher{names: dedupe(names), syntax: syntax}
	if len(m.names) == 0 || syntax&AllSyntaxes == 0 {
		return m
	}
	m.ordered = longestFirst(m.names)
	m.re = regexp.MustCompile(buildPattern(m.ordered, syntax))
	return m
}

// Names returns the distinct names in the order they were supplied.
func (m *Matcher) Names() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// Syntax reports the reference forms this matcher recognizes.
func (m *Matcher) Syntax() Syntax { return m.syntax }

// FindAll returns every reference in text, left to right and non-overlapping.
// A bare reference must not be followed by an identifier character, so
// $total never matches inside $totals or $café inside $cafés.
func (m *Matcher) FindAll(text string) []Match {
	if m.re == nil || text == "" {
		return nil
	}

	var out []Match
	for pos := 0; pos < len(text); {
		loc := m.re.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		match, ok := m.resolve(text, pos, loc)
		if !ok {
			pos += loc[0] + 1
			continue
		}
		out = append(out, match)
		pos = match.End()
	}
	return out
}

// Contains reports whether text references any known variable.
func (m *Matcher) Contains(text string) bool {
	return len(m.FindAll(text)) > 0
}

// resolve turns one regexp hit at base into a Match. A bare hit cut short by
// an identifier character falls back to the longest shorter name that ends
// on a boundary at the same offset.
func (m *Matcher) resolve(text string, base int, loc []int) (Match, bool) {
	offset := base + loc[0]
	if m.syntax&Templated != 0 && groupMatched(loc, templatedGroup(m.syntax)) {
		g := templatedGroup(m.syntax)
		return Match{
			Offset: offset,
			Text:   text[offset : base+loc[1]],
			Name:   text[base+loc[2*g] : base+loc[2*g+1]],
			Syntax: Templated,
		}, true
	}

	rest := text[offset+1:]
	for _, name := range m.ordered {
		if !strings.HasPrefix(rest, name) || !bounded(rest[len(name):], name) {
			continue
		}
		return Match{Offset: offset, Text: "$" + name, Name: name, Syntax: Bare}, true
	}
	return Match{}, false
}

// buildPattern joins the names, already ordered longest first, so that a name
// is never truncated to a shorter in-scope name it starts with. At one offset
// the templated form is tried before the bare one.
func buildPattern(ordered []string, syntax Syntax) string {
	quoted := make([]string, len(ordered))
	for i, n := range ordered {
		quoted[i] = regexp.QuoteMeta(n)
	}
	names := strings.Join(quoted, "|")

	var alts []string
	if syntax&Templated != 0 {
		alts = append(alts, `\$\{(`+names+`)\}`)
	}
	if syntax&Bare != 0 {
		alts = append(alts, `\$(`+names+`)`)
	}
	return strings.Join(alts, "|")
}

func longestFirst(names []string) []string {
	ordered := make([]string, len(names))
	copy(ordered, names)
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i]) > len(ordered[j])
	})
	return ordered
}

// bounded reports whether a bare reference to name may end where after
// begins. Names ending in punctuation need no boundary.
func bounded(after, name string) bool {
	last, _ := utf8.DecodeLastRuneInString(name)
	if !isIdentRune(last) || after == "" {
		return true
	}
	next, _ := utf8.DecodeRuneInString(after)
	return !isIdentRune(next)
}

func templatedGroup(Syntax) int { return 1 }

func groupMatched(loc []int, g int) bool {
	return 2*g+1 < len(loc) && loc[2*g] >= 0
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
