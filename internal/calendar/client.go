package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/beekhof/ics-calendar-sync/internal/logging"
)

// Scope grants read/write access to calendars the subject owns.
const Scope = gcal.CalendarScope

// CalendarClient is the set of remote calendar operations the syncer relies on.
type CalendarClient interface {
	// FindEventByUID returns the first event whose iCalUID equals uid, or nil.
	FindEventByUID(ctx context.Context, calendarID, uid string) (*gcal.Event, error)
	PatchEvent(ctx context.Context, calendarID, eventID string, event *gcal.Event) error
	ImportEvent(ctx context.Context, calendarID string, event *gcal.Event) error
}

// APIError describes a failed Google Calendar call.
type APIError struct {
	Op         string
	StatusCode int // 0 when no HTTP response was received
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("calendar %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("calendar %s failed: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error { return e.Err }

func wrapError(op string, err error) error {
	apiErr := &APIError{Op: op, Err: err}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		apiErr.StatusCode = gerr.Code
		apiErr.Body = gerr.Body
		if apiErr.Body == "" {
			apiErr.Body = gerr.Message
		}
	}
	return apiErr
}

// Client is a wrapper around the Google Calendar API service.
type Client struct {
	service *gcal.Service
	logger  *slog.Logger
}

// NewClient creates a Google Calendar client that sends every request through
// httpClient. A non-empty endpoint replaces the public API base URL.
func NewClient(ctx context.Context, httpClient *http.Client, endpoint string, logger *slog.Logger) (*Client, error) {
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}

	service, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{service: service, logger: logger}, nil
}

// FindEventByUID looks up an event by iCalUID. Recurring series are expanded
// so the lookup matches the same instance the import produced.
func (c *Client) FindEventByUID(ctx context.Context, calendarID, uid string) (*gcal.Event, error) {
	events, err := c.service.Events.List(calendarID).
		ICalUID(uid).
		MaxResults(1).
		SingleEvents(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapError("events.list", err)
	}
	if len(events.Items) == 0 {
		return nil, nil
	}
	return events.Items[0], nil
}

// PatchEvent applies a partial update; fields left empty on event are not sent.
func (c *Client) PatchEvent(ctx context.Context, calendarID, eventID string, event *gcal.Event) error {
	_, err := c.service.Events.Patch(calendarID, eventID, event).Context(ctx).Do()
	if err != nil {
		return wrapError("events.patch", err)
	}
	c.logger.Debug("event patched", logging.Calendar(calendarID), slog.String("event_id", eventID))
	return nil
}

// ImportEvent creates an event that keeps the caller's iCalUID.
func (c *Client) ImportEvent(ctx context.Context, calendarID string, event *gcal.Event) error {
	created, err := c.service.Events.Import(calendarID, event).Context(ctx).Do()
	if err != nil {
		return wrapError("events.import", err)
	}
	c.logger.Debug("event imported", logging.Calendar(calendarID), logging.UID(event.ICalUID), slog.String("event_id", created.Id))
	return nil
}
