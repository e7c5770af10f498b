package dedupe

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"  What is HTMX? \r\n", "what is htmx?"},
		{"Line one\r\nLine two", "line one\nline two"},
		{"STRASSE", "strasse"},
		{"Straße", "strasse"},
		{"한국어", "한국어"},
	}

	for _, tc := range testCases {
		if got := Normalize(tc.input); got != tc.expected {
			t.Errorf("Normalize(%q) = %q, expected %q", tc.input, got, tc.expected)
		}
	}
}

func TestIndex(t *testing.T) {
	idx := NewIndex("Paris", "", "What is the capital of France?")

	t.Run("matches front case-insensitively", func(t *testing.T) {
		if !idx.Seen("what is the capital of france?", "somewhere") {
			t.Error("Expected front to be a duplicate")
		}
	})

	t.Run("matches back", func(t *testing.T) {
		if !idx.Seen("new question", "  PARIS ") {
			t.Error("Expected back to be a duplicate")
		}
	})

	t.Run("empty sides never match", func(t *testing.T) {
		if idx.Seen("", "brand new") {
			t.Error("Expected no duplicate")
		}
	})

	t.Run("added cards are remembered", func(t *testing.T) {
		idx.Add("Bonjour", "Hello")
		if !idx.Seen("hello", "") {
			t.Error("Expected added back to be a duplicate")
		}
		if idx.Len() != 4 {
			t.Errorf("Expected 4 texts, got %d", idx.Len())
		}
	})
}
