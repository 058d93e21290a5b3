package indexer

import "testing"

func TestPreprocess(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"only whitespace", " \n\t\r\n ", ""},
		{"trim", "  The sky is blue.  ", "The sky is blue."},
		{"collapse spaces", "The   sky\t\tis blue.", "The sky is blue."},
		{"crlf", "line one\r\nline two", "line one\nline two"},
		{"trailing spaces on lines", "line one   \nline two", "line one\nline two"},
		{"paragraphs kept", "para one\n\npara two", "para one\n\npara two"},
		{"blank lines collapsed", "para one\n\n\n\n  \npara two", "para one\n\npara two"},
		{"control chars dropped", "Water\x00 boils\x07", "Water boils"},
		{"unicode", "Water boils at 100°C.", "Water boils at 100°C."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Preprocess(tt.in); got != tt.want {
				t.Errorf("Preprocess(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
