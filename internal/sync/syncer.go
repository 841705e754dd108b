package sync

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	calclient "github.com/beekhof/ics-calendar-sync/internal/calendar"
	"github.com/beekhof/ics-calendar-sync/internal/config"
	"github.com/beekhof/ics-calendar-sync/internal/ics"
	"github.com/beekhof/ics-calendar-sync/internal/logging"
)

// Outcome is what happened to a single event.
type Outcome int

const (
	OutcomeCreated Outcome = iota + 1
	OutcomeUpdated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	default:
		return "unknown"
	}
}

// Summary tallies a sync run.
type Summary struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Processed int `json:"processed"`
}

// TokenProvider hands out bearer tokens for the calendar API.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// Syncer pushes parsed feed events into one Google calendar.
type Syncer struct {
	client     calclient.CalendarClient
	tokens     TokenProvider
	calendarID string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewSyncer creates a new Syncer instance. A positive cfg.SyncRateLimit paces
// event processing to that many events per second.
func NewSyncer(client calclient.CalendarClient, tokens TokenProvider, cfg *config.Config, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Syncer{
		client:     client,
		tokens:     tokens,
		calendarID: cfg.CalendarID,
		logger:     logging.WithOperation(logger, "sync"),
	}
	if cfg.SyncRateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.SyncRateLimit), 1)
	}
	return s
}

// SyncEvent creates or updates the remote copy of ev. The iCalUID lookup always
// precedes the write, so a UID already present is patched and never imported
// twice.
func (s *Syncer) SyncEvent(ctx context.Context, ev ics.Event) (Outcome, error) {
	// A credential failure aborts before any calendar request. The requests
	// themselves read the same session cache.
	if s.tokens != nil {
		if _, err := s.tokens.AccessToken(ctx); err != nil {
			return 0, err
		}
	}

	existing, err := s.client.FindEventByUID(ctx, s.calendarID, ev.UID)
	if err != nil {
		return 0, err
	}

	if existing != nil {
		body, err := calclient.PatchBody(ev)
		if err != nil {
			return 0, err
		}
		if err := s.client.PatchEvent(ctx, s.calendarID, existing.Id, body); err != nil {
			return 0, err
		}
		return OutcomeUpdated, nil
	}

	body, err := calclient.ImportBody(ev)
	if err != nil {
		return 0, err
	}
	if err := s.client.ImportEvent(ctx, s.calendarID, body); err != nil {
		return 0, err
	}
	return OutcomeCreated, nil
}

// Sync processes events in order, one at a time. The first failure stops the
// run; the returned Summary then covers the events completed before it.
func (s *Syncer) Sync(ctx context.Context, events []ics.Event) (Summary, error) {
	var summary Summary
	s.logger.Info("starting sync", logging.Calendar(s.calendarID), slog.Int("events", len(events)))

	for _, ev := range events {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return summary, fmt.Errorf("sync %q: %w", ev.UID, err)
			}
		}

		outcome, err := s.SyncEvent(ctx, ev)
		if err != nil {
			s.logger.Error("event sync failed", logging.UID(ev.UID), logging.Status(logging.StatusError), logging.Err(err))
			return summary, fmt.Errorf("sync %q: %w", ev.UID, err)
		}

		switch outcome {
		case OutcomeCreated:
			summary.Created++
		case OutcomeUpdated:
			summary.Updated++
		}
		summary.Processed++
		s.logger.Debug("event synced", logging.UID(ev.UID), logging.Outcome(outcome))
	}

	s.logger.Info("sync complete",
		logging.Status(logging.StatusSuccess),
		slog.Int("created", summary.Created),
		slog.Int("updated", summary.Updated),
		slog.Int("processed", summary.Processed))
	return summary, nil
}
