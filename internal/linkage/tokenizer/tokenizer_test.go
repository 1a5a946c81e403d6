package tokenizer

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"simple", "Lincoln Elementary", []string{"lincoln", "elementary"}},
		{"punctuation", "St. Mary's Academy", []string{"st", "mary", "s", "academy"}},
		{"digits split", "District 49 Schools", []string{"district", "schools"}},
		{"empty", "", nil},
		{"only digits", "12345", nil},
		{"mixed case", "NORTH east High", []string{"north", "east", "high"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.input)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestTokenSet(t *testing.T) {
	set := TokenSet("school school District")
	if len(set) != 2 {
		t.Fatalf("expected 2 distinct tokens, got %d", len(set))
	}
	for _, tok := range []string{"school", "district"} {
		if _, ok := set[tok]; !ok {
			t.Errorf("missing token %q", tok)
		}
	}
}

func TestJoin(t *testing.T) {
	got := Join("St. Mary's   ACADEMY!")
	want := "st mary s academy"
	if got != want {
		t.Errorf("Join = %q, want %q", got, want)
	}
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"District 49", "district 49"},
		{"  Lincoln--Elementary ", "lincoln elementary"},
		{"", ""},
		{"A.B.C. 12", "a b c 12"},
	}
	for _, tt := range tests {
		if got := NormalizeKey(tt.input); got != tt.want {
			t.Errorf("NormalizeKey(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
