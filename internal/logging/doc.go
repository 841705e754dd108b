// Package logging provides structured logging helpers built on log/slog.
//
// Components receive a *slog.Logger and tag records with the attribute
// helpers defined here so keys stay consistent across the codebase:
//
//	logger := logging.WithOperation(slog.Default(), "sync.event")
//	logger.Info("event synced", logging.UID(uid), logging.Outcome(outcome))
//
// Tokens and feed URLs are never logged verbatim; use SanitizeToken and URL.
package logging
