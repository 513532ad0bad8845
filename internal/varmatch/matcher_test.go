package varmatch

import (
	"reflect"
	"testing"
)

func names(ms []Match) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Name)
	}
	return out
}

func TestFindAll_LongestNameWins(t *testing.T) {
	t.Parallel()

	for _, scope := range [][]string{{"data", "dataSet"}, {"dataSet", "data"}} {
		m := New(scope)
		got := m.FindAll("value=$dataSet end")
		if len(got) != 1 {
			t.Fatalf("scope %v: matches = %v, want 1", scope, got)
		}
		if got[0].Name != "dataSet" || got[0].Offset != 6 || got[0].Text != "$dataSet" {
			t.Fatalf("scope %v: match = %+v, want dataSet at 6", scope, got[0])
		}
	}
}

func TestFindAll_RequiresIdentifierBoundary(t *testing.T) {
	t.Parallel()

	m := New([]string{"total"})
	tests := []struct {
		text string
		want []string
	}{
		{"$totals", nil},
		{"$total", []string{"total"}},
		{"$total.", []string{"total"}},
		{"$total items", []string{"total"}},
		{"$total$total", []string{"total", "total"}},
		{"sum=$total_2", nil},
		{"${total}s", []string{"total"}},
	}
	for _, tt := range tests {
		got := names(m.FindAll(tt.text))
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("FindAll(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestFindAll_UnicodeIdentifierBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		scope []string
		text  string
		want  []string
	}{
		{[]string{"café"}, "v=$cafés", nil},
		{[]string{"café"}, "v=$café!", []string{"café"}},
		{[]string{"total"}, "$totalé", nil},
		{[]string{"n"}, "$n٣", nil},
		{[]string{"größe"}, "${größe}n $größe", []string{"größe", "größe"}},
		// A longer name cut short falls back to a shorter one that ends cleanly.
		{[]string{"a.b", "a"}, "$a.bc", []string{"a"}},
	}
	for _, tt := range tests {
		got := names(New(tt.scope).FindAll(tt.text))
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("scope %v: FindAll(%q) = %v, want %v", tt.scope, tt.text, got, tt.want)
		}
	}
}

func TestFindAll_OrderAndOffsets(t *testing.T) {
	t.Parallel()

	m := New([]string{"a", "b"})
	got := m.FindAll("x=${b} y=$a z=$b")
	want := []Match{
		{Offset: 2, Text: "${b}", Name: "b", Syntax: Templated},
		{Offset: 9, Text: "$a", Name: "a", Syntax: Bare},
		{Offset: 14, Text: "$b", Name: "b", Syntax: Bare},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FindAll = %+v, want %+v", got, want)
	}
}

func TestFindAll_EmptyScopeMatchesNothing(t *testing.T) {
	t.Parallel()

	m := New(nil)
	if got := m.FindAll("$a ${b}"); got != nil {
		t.Fatalf("FindAll = %v, want nil", got)
	}
	if m.Contains("$a") {
		t.Fatal("Contains = true, want false")
	}
}

func TestFindAll_UnknownVariableIsLiteral(t *testing.T) {
	t.Parallel()

	m := New([]string{"known"})
	got := names(m.FindAll("$unknownVar and $known"))
	if !reflect.DeepEqual(got, []string{"known"}) {
		t.Fatalf("FindAll = %v, want [known]", got)
	}
}

func TestFindAll_EscapesMetacharacters(t *testing.T) {
	t.Parallel()

	m := New([]string{"a.b", "arr[0]"})
	got := names(m.FindAll("$a.b $axb $arr[0] $arr0"))
	if !reflect.DeepEqual(got, []string{"a.b", "arr[0]"}) {
		t.Fatalf("FindAll = %v, want [a.b arr[0]]", got)
	}
}

func TestFindAll_SyntaxSelection(t *testing.T) {
	t.Parallel()

	text := "$v and ${v}"
	tests := []struct {
		syntax Syntax
		want   []Syntax
	}{
		{Bare, []Syntax{Bare}},
		{Templated, []Syntax{Templated}},
		{AllSyntaxes, []Syntax{Bare, Templated}},
	}
	for _, tt := range tests {
		var got []Syntax
		for _, m := range New([]string{"v"}, tt.syntax).FindAll(text) {
			got = append(got, m.Syntax)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("syntax %d: got %v, want %v", tt.syntax, got, tt.want)
		}
	}
}

func TestNew_DedupesAndKeepsOrder(t *testing.T) {
	t.Parallel()

	m := New([]string{"b", "", "a", "b"})
	if got := m.Names(); !reflect.DeepEqual(got, []string{"b", "a"}) {
		t.Fatalf("Names() = %v, want [b a]", got)
	}
}
