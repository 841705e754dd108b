package calendar

import (
	"fmt"

	gcal "google.golang.org/api/calendar/v3"

	"github.com/beekhof/ics-calendar-sync/internal/ics"
)

// PatchBody builds the partial update sent for an existing event: summary,
// start, end, description, location and source.
func PatchBody(ev ics.Event) (*gcal.Event, error) {
	start, err := toEventDateTime(ev.Start)
	if err != nil {
		return nil, fmt.Errorf("event %q start: %w", ev.UID, err)
	}
	end, err := toEventDateTime(ev.End)
	if err != nil {
		return nil, fmt.Errorf("event %q end: %w", ev.UID, err)
	}

	body := &gcal.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       start,
		End:         end,
	}
	if ev.URL != "" {
		body.Source = &gcal.EventSource{Title: ev.Summary, Url: ev.URL}
	}
	return body, nil
}

// ImportBody is PatchBody plus the iCalUID the imported event keeps.
func ImportBody(ev ics.Event) (*gcal.Event, error) {
	body, err := PatchBody(ev)
	if err != nil {
		return nil, err
	}
	body.ICalUID = ev.UID
	return body, nil
}

func toEventDateTime(d ics.ParsedDate) (*gcal.EventDateTime, error) {
	switch v := d.(type) {
	case ics.AllDay:
		return &gcal.EventDateTime{Date: v.Date}, nil
	case ics.DateTime:
		return &gcal.EventDateTime{DateTime: v.DateTime, TimeZone: v.TimeZone}, nil
	default:
		return nil, fmt.Errorf("unsupported date value %T", d)
	}
}
