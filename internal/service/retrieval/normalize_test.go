package retrieval

import (
	"reflect"
	"testing"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "how does this work?", "how does this work?"},
		{"markdown stripped", "**bold** and `code`", "bold and code"},
		{"special chars dropped", "fees: $50 (per term)", "fees 50 per term"},
		{"whitespace collapsed", "a   b\n\n  c", "a b c"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanText(tt.in); got != tt.want {
				t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLexicalTokens(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"keeps long alpha words", "where are the placement results", []string{"where", "are", "the", "placement", "results"}},
		{"drops numbers and short tokens", "in 2024 we got 7 of 10", []string{"got"}},
		{"lowercases", "Placement Results", []string{"placement", "results"}},
		{"drops mixed alnum", "room b204 is closed", []string{"room", "closed"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LexicalTokens(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("LexicalTokens(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

