package moderation

import (
	"strings"
	"testing"
)

func TestNormalize_Substitution(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"single term", "my mom is here", "my lover is here"},
		{"case insensitive", "MY MOM is here", "MY lover is here"},
		{"mixed case", "My DaUgHtEr left", "My lover left"},
		{"multiple terms", "mom and dad and sister", "lover and lover and lover"},
		{"misspelling variant", "my daugther called", "my lover called"},
		{"age descriptor", "a teen and a boy and a girl", "a lover and a lover and a lover"},
		{"generic terms", "family matters to parents", "lover matters to lover"},
		{"with punctuation", "hello, mom!", "hello, lover!"},
		{"no terms", "hello world", "hello world"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.input)
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalize_WholeWordOnly(t *testing.T) {
	// Substrings of larger words must survive untouched.
	tests := []string{
		"boyfriend",  // contains "boy"
		"mothership", // contains "mother"
		"grandmaster",
		"sonata",
		"anthem", // contains "ant"
	}

	for _, input := range tests {
		got := Normalize(input)
		if got != input {
			t.Errorf("Normalize(%q) = %q, expected unchanged", input, got)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"my mom and dad",
		"lover already",
		"the whole family went out with the teenager",
		"nothing to replace here",
		"",
	}

	for _, input := range inputs {
		once := Normalize(input)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: first=%q second=%q", input, once, twice)
		}
	}
}

func TestNormalize_PlaceholderNotInVocabulary(t *testing.T) {
	for _, term := range familyTerms {
		if term == Placeholder {
			t.Fatalf("placeholder %q appears in the vocabulary; Normalize would not be idempotent", Placeholder)
		}
	}
}

func TestNormalize_PreservesStructure(t *testing.T) {
	input := "my mom said the weather is nice"
	got := Normalize(input)
	if !strings.Contains(got, "said the weather is nice") {
		t.Errorf("Normalize(%q) = %q, surrounding sentence was altered", input, got)
	}
}
