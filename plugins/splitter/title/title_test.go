package title

import (
	"reflect"
	"testing"
)

func TestSplitDefaults(t *testing.T) {
	s := New(nil)
	cases := map[string][]string{
		"L'Étranger (roman)":       {"L", "Étranger", "roman"},
		"Jean-Paul Sartre":         {"Jean", "Paul", "Sartre"},
		"  The quick, brown fox  ": {"The", "quick", "brown", "fox"},
		"Aujourd’hui":              {"Aujourd", "hui"},
		"":                         nil,
		" - ":                      nil,
	}
	for in, want := range cases {
		got := s.Split(in)
		if len(want) == 0 && len(got) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("Split(%q)=%q, 预期 %q", in, got, want)
		}
	}
}

func TestSplitOptions(t *testing.T) {
	s := New(&Options{Separators: "_", KeepPunct: true})
	got := s.Split("a_b-c (d)")
	want := []string{"a", "b-c", "(d)"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q, 预期 %q", got, want)
	}
}
