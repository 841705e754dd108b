package logging

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
)

// Common log attribute keys.
const (
	KeyOperation = "operation"
	KeyRunID     = "run_id"
	KeyCalendar  = "calendar_id"
	KeyUID       = "uid"
	KeyURL       = "url"
	KeyStatus    = "status"
	KeyError     = "error"
	KeyOutcome   = "outcome"
)

// Status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Setup builds a logger writing to w. format is "text" or "json"; level is
// one of debug, info, warn, error.
func Setup(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(level)))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: must be text or json", format)
	}
}

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// WithRunID returns a logger tagged with the sync run identifier.
func WithRunID(logger *slog.Logger, runID string) *slog.Logger {
	return logger.With(slog.String(KeyRunID, runID))
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// UID returns a slog attribute for an event UID.
func UID(uid string) slog.Attr {
	return slog.String(KeyUID, uid)
}

// Calendar returns a slog attribute for the target calendar.
func Calendar(id string) slog.Attr {
	return slog.String(KeyCalendar, id)
}

// Outcome returns a slog attribute for a per-event sync outcome.
func Outcome(outcome fmt.Stringer) slog.Attr {
	return slog.String(KeyOutcome, outcome.String())
}

// URL returns a slog attribute with query string and credentials removed.
func URL(u string) slog.Attr {
	return slog.String(KeyURL, RedactURL(u))
}

// Err returns a slog attribute for an error.
// If err is nil, returns an empty Group attribute that will be omitted from output.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// SanitizeToken returns a length indicator instead of the token itself.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}

// RedactURL drops user info, query and fragment so feed tokens embedded in
// URLs never reach the logs.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "(redacted)"
	}
	u.User = nil
	if u.RawQuery != "" {
		u.RawQuery = "redacted"
	}
	u.Fragment = ""
	return u.String()
}
