package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/beekhof/ics-calendar-sync/internal/logging"
)

// ErrFetch is returned when the feed cannot be retrieved or is empty.
var ErrFetch = errors.New("feed fetch failed")

// maxErrorBody bounds how much of a failed response ends up in the error.
const maxErrorBody = 512

// Fetcher retrieves ICS documents over HTTP.
type Fetcher struct {
	client *http.Client
	logger *slog.Logger
}

// NewFetcher creates a Fetcher. A nil client means http.DefaultClient, which
// carries no timeout of its own; cancellation comes from the context.
func NewFetcher(client *http.Client, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{client: client, logger: logger}
}

// Fetch performs a plain GET of url and returns the body. Non-2xx statuses
// and empty bodies are errors.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("%w: feed URL is empty", ErrFetch)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}

	log := logging.WithOperation(f.logger, "feed.fetch")
	log.Info("fetching feed", logging.URL(url))

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read body: %v", ErrFetch, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: HTTP %d: %s", ErrFetch, resp.StatusCode, truncate(string(body), maxErrorBody))
	}
	if strings.TrimSpace(string(body)) == "" {
		return "", fmt.Errorf("%w: empty body", ErrFetch)
	}

	log.Info("feed fetched", logging.Status(logging.StatusSuccess), slog.Int("bytes", len(body)))
	return string(body), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
