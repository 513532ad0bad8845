package logtemplate

import (
	"errors"
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	scope := []string{"i", "name", "data", "dataSet"}
	tests := []struct {
		name      string
		raw       string
		pattern   string
		variables []string
	}{
		{"empty", "", "", []string{}},
		{"no references", "plain text", "plain text", []string{}},
		{"bare", "i=$i", "i={}", []string{"i"}},
		{"templated", "hello ${name}!", "hello {}!", []string{"name"}},
		{"mixed order", "${name} has $i and ${i}", "{} has {} and {}", []string{"name", "i", "i"}},
		{"longest name", "value=$dataSet end", "value={} end", []string{"dataSet"}},
		{"unknown left literal", "$unknownVar $i", "$unknownVar {}", []string{"i"}},
		{"adjacent", "$i$name", "{}{}", []string{"i", "name"}},
	}

	n := ForScope(scope)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := n.Normalize(tt.raw)
			if got.Pattern != tt.pattern {
				t.Errorf("Pattern = %q, want %q", got.Pattern, tt.pattern)
			}
			if !reflect.DeepEqual(got.Variables, tt.variables) {
				t.Errorf("Variables = %v, want %v", got.Variables, tt.variables)
			}
			if c := CountPlaceholders(got.Pattern); c != len(got.Variables) {
				t.Errorf("placeholders = %d, variables = %d", c, len(got.Variables))
			}
		})
	}
}

func TestNormalize_UnicodeNames(t *testing.T) {
	t.Parallel()

	n := ForScope([]string{"café"})
	if got := n.Normalize("v=$cafés"); got.Pattern != "v=$cafés" || len(got.Variables) != 0 {
		t.Fatalf("Normalize = %+v, want literal text", got)
	}
	got := n.Normalize("v=$café, w=${café}")
	if got.Pattern != "v={}, w={}" || !reflect.DeepEqual(got.Variables, []string{"café", "café"}) {
		t.Fatalf("Normalize = %+v", got)
	}
}

func TestRender_RoundTrip(t *testing.T) {
	t.Parallel()

	n := ForScope([]string{"a", "bb", "ccc"})
	for _, raw := range []string{
		"a=$a bb=$bb ccc=$ccc",
		"$ccc$bb$a",
		"nothing here",
		"lead ${a} and $bb trail",
	} {
		norm := n.Normalize(raw)
		rendered := Render(norm.Pattern, norm.Variables)
		// Rendering uses the bare form, so compare against the bare-form
		// normalization of the original.
		again := n.Normalize(rendered)
		if !reflect.DeepEqual(again, norm) {
			t.Errorf("round trip of %q: %+v, want %+v", raw, again, norm)
		}
	}

	if got := Render("a={} b={}", []string{"a", "bb"}); got != "a=$a b=$bb" {
		t.Fatalf("Render = %q", got)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()

	n := ForScope([]string{"x", "y"})
	first := n.Normalize("x=$x y=${y}")
	second := n.Normalize(first.Pattern)
	if second.Pattern != first.Pattern {
		t.Fatalf("second pattern = %q, want %q", second.Pattern, first.Pattern)
	}
	if len(second.Variables) != 0 {
		t.Fatalf("second variables = %v, want none", second.Variables)
	}
}

func TestCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		wantErr bool
	}{
		{"set $x to 1", false},
		{"braces {x} are fine", false},
		{"set {} to $x", true},
		{"{}", true},
	}
	for _, tt := range tests {
		err := Check(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("Check(%q) = %v, wantErr %v", tt.raw, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrLiteralPlaceholder) {
			t.Errorf("Check(%q) = %v, want ErrLiteralPlaceholder", tt.raw, err)
		}
	}

	// Once checked, every placeholder belongs to a variable and a hit
	// fills the slots in order.
	raw := "set $x to $y"
	if err := Check(raw); err != nil {
		t.Fatalf("Check(%q) = %v", raw, err)
	}
	norm := ForScope([]string{"x", "y"}).Normalize(raw)
	if c := CountPlaceholders(norm.Pattern); c != len(norm.Variables) {
		t.Fatalf("placeholders = %d, variables = %d", c, len(norm.Variables))
	}
	if got := FormatHit(norm.Pattern, []string{"42", "7"}); got != "set 42 to 7" {
		t.Fatalf("FormatHit = %q, want %q", got, "set 42 to 7")
	}
}

func TestFormatHit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		args    []string
		want    string
	}{
		{"user {} logged in {} times", []string{"bob", "3"}, "user bob logged in 3 times"},
		{"no args", nil, "no args"},
		{"{} and {}", []string{"one"}, "one and {}"},
		{"{}", []string{"a", "extra"}, "a"},
	}
	for _, tt := range tests {
		if got := FormatHit(tt.pattern, tt.args); got != tt.want {
			t.Errorf("FormatHit(%q, %v) = %q, want %q", tt.pattern, tt.args, got, tt.want)
		}
	}
}

func TestNormalized_Empty(t *testing.T) {
	t.Parallel()

	if !(Normalized{Pattern: "  "}).Empty() {
		t.Fatal("blank pattern should be empty")
	}
	if (Normalized{Pattern: "{}"}).Empty() {
		t.Fatal("placeholder-only pattern should not be empty")
	}
}
