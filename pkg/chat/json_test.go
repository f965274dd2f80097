package chat

import (
	"errors"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{
			name:     "bare object",
			input:    `{"score": 80}`,
			expected: `{"score": 80}`,
		},
		{
			name:     "fenced with language tag",
			input:    "Here you go:\n```json\n{\"score\": 80}\n```\nThanks",
			expected: `{"score": 80}`,
		},
		{
			name:     "prose before and after",
			input:    `Sure. {"passed": true, "reason": "ok"} Let me know.`,
			expected: `{"passed": true, "reason": "ok"}`,
		},
		{
			name:     "nested objects and braces in strings",
			input:    `{"a": {"b": "}{"}, "c": "\"}"} trailing`,
			expected: `{"a": {"b": "}{"}, "c": "\"}"}`,
		},
		{
			name:    "no object",
			input:   "I cannot help with that.",
			wantErr: true,
		},
		{
			name:    "unterminated object",
			input:   `{"score": 80`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrNoJSON) {
					t.Fatalf("ExtractJSON(%q) error = %v; want ErrNoJSON", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractJSON(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("ExtractJSON(%q) = %q; want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Score     int    `json:"score"`
		Reasoning string `json:"reasoning"`
	}
	if err := DecodeJSON("```\n{\"score\": 42, \"reasoning\": \"vague\"}\n```", &out); err != nil {
		t.Fatalf("DecodeJSON returned error: %v", err)
	}
	if out.Score != 42 || out.Reasoning != "vague" {
		t.Errorf("DecodeJSON decoded %+v", out)
	}

	if err := DecodeJSON(`{"score": "high"}`, &out); err == nil {
		t.Error("expected type mismatch error")
	}
}
