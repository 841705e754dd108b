package ics

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

// ProductID identifies documents written by Encode.
const ProductID = "-//ics-calendar-sync//normalized feed//EN"

// Encode writes events as a normalized VCALENDAR document. stamp becomes
// every event's DTSTAMP.
func Encode(w io.Writer, events []Event, stamp time.Time) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)

	for _, ev := range events {
		vevent := ical.NewEvent()
		vevent.Props.SetText(ical.PropUID, ev.UID)
		vevent.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
		vevent.Props.SetText(ical.PropSummary, ev.Summary)
		if ev.Description != "" {
			vevent.Props.SetText(ical.PropDescription, ev.Description)
		}
		if ev.Location != "" {
			vevent.Props.SetText(ical.PropLocation, ev.Location)
		}
		if ev.URL != "" {
			vevent.Props.SetText(ical.PropURL, ev.URL)
		}

		start, err := dateProp(ical.PropDateTimeStart, ev.Start)
		if err != nil {
			return fmt.Errorf("event %q: %w", ev.UID, err)
		}
		vevent.Props.Set(start)

		// An end equal to the start is what Parse yields for a missing DTEND.
		if !Equal(ev.Start, ev.End) {
			end, err := dateProp(ical.PropDateTimeEnd, ev.End)
			if err != nil {
				return fmt.Errorf("event %q: %w", ev.UID, err)
			}
			vevent.Props.Set(end)
		}

		cal.Children = append(cal.Children, vevent.Component)
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	return nil
}

func dateProp(name string, d ParsedDate) (*ical.Prop, error) {
	prop := ical.NewProp(name)
	switch v := d.(type) {
	case AllDay:
		prop.Params.Set(ical.ParamValue, "DATE")
		prop.Value = strings.ReplaceAll(v.Date, "-", "")
	case DateTime:
		prop.Value = strings.NewReplacer("-", "", ":", "").Replace(v.DateTime)
		if !v.IsUTC() && v.TimeZone != "" {
			prop.Params.Set(ical.ParamTimezoneID, v.TimeZone)
		}
	default:
		return nil, fmt.Errorf("unsupported date value %T", d)
	}
	return prop, nil
}
