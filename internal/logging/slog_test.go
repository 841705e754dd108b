package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestSetup_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(&buf, "info", "json")
	if err != nil {
		t.Fatalf("Setup() returned an error: %v", err)
	}

	WithOperation(logger, "feed.fetch").Info("hello", UID("abc"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if record[KeyOperation] != "feed.fetch" {
		t.Errorf("Expected operation 'feed.fetch', got %v", record[KeyOperation])
	}
	if record[KeyUID] != "abc" {
		t.Errorf("Expected uid 'abc', got %v", record[KeyUID])
	}
}

func TestSetup_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(&buf, "warn", "text")
	if err != nil {
		t.Fatalf("Setup() returned an error: %v", err)
	}

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("Expected info record to be filtered at warn level, got %q", buf.String())
	}
}

func TestSetup_Invalid(t *testing.T) {
	if _, err := Setup(&bytes.Buffer{}, "loud", "text"); err == nil {
		t.Error("Expected error for invalid level")
	}
	if _, err := Setup(&bytes.Buffer{}, "info", "xml"); err == nil {
		t.Error("Expected error for invalid format")
	}
}

func TestErr(t *testing.T) {
	attr := Err(errors.New("boom"))
	if attr.Key != KeyError || attr.Value.String() != "boom" {
		t.Errorf("Err() = %v, want error=boom", attr)
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logger.Info("ok", Err(nil))
	if strings.Contains(buf.String(), KeyError+"=") {
		t.Errorf("Expected nil error to be omitted, got %q", buf.String())
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := SanitizeToken(""); got != "<empty>" {
		t.Errorf("SanitizeToken(\"\") = %q", got)
	}
	if got := SanitizeToken("ya29.secret"); got != "[token:11 chars]" {
		t.Errorf("SanitizeToken() = %q", got)
	}
}

func TestRedactURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://example.com/feed.ics", "https://example.com/feed.ics"},
		{"https://user:pw@example.com/feed.ics?token=abc#x", "https://example.com/feed.ics?redacted"},
		{"not a url", "(redacted)"},
	}
	for _, tt := range tests {
		if got := RedactURL(tt.in); got != tt.want {
			t.Errorf("RedactURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
