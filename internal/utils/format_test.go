package utils

import (
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Millisecond, "45ms"},
		{1500 * time.Millisecond, "1.5s"},
		{2*time.Minute + 30*time.Second, "2m 30s"},
		{5 * time.Minute, "5m"},
		{time.Hour + 15*time.Minute, "1h 15m"},
		{3 * time.Hour, "3h"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestTruncateText(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		maxLen int
		want   string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"truncated", "hello world", 8, "hello..."},
		{"newlines collapsed", "line one\nline two", 50, "line one line two"},
		{"tiny limit", "hello", 3, "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateText(tt.text, tt.maxLen); got != tt.want {
				t.Errorf("TruncateText(%q, %d) = %q, want %q", tt.text, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestEscapeForLogging(t *testing.T) {
	got := EscapeForLogging("evil\npayload\twith\rcontrol", 100)
	if got != "evil\\npayload\\twith\\rcontrol" {
		t.Errorf("escaped = %q", got)
	}

	long := EscapeForLogging("aaaaaaaaaa", 4)
	if long != "aaaa..." {
		t.Errorf("truncated = %q", long)
	}
}
