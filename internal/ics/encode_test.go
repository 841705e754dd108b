package ics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_ParsesBack(t *testing.T) {
	events := []Event{
		{
			UID:         "a@example",
			Summary:     "Panel; Q&A, live",
			Description: "line one\nline two",
			Location:    "Playhouse",
			URL:         "https://example.org/a",
			Start:       DateTime{DateTime: "2025-10-15T19:00:00", TimeZone: "America/New_York"},
			End:         DateTime{DateTime: "2025-10-15T21:00:00", TimeZone: "America/New_York"},
		},
		{
			UID:     "b@example",
			Summary: "All day",
			Start:   AllDay{Date: "2025-10-16"},
			End:     AllDay{Date: "2025-10-16"},
		},
		{
			UID:     "c@example",
			Summary: "UTC",
			Start:   DateTime{DateTime: "2025-10-17T01:00:00Z", TimeZone: UTC},
			End:     DateTime{DateTime: "2025-10-17T02:00:00Z", TimeZone: UTC},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, events, time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, strings.Contains(buf.String(), "BEGIN:VCALENDAR"))
	assert.True(t, strings.Contains(buf.String(), ProductID))

	parsed, err := Parse(buf.String(), "Etc/Unknown")
	require.NoError(t, err)
	assert.Equal(t, events, parsed)
}

func TestEncode_OmitsEndEqualToStart(t *testing.T) {
	events := []Event{{
		UID:     "point@example",
		Summary: "Doors open",
		Start:   DateTime{DateTime: "2025-10-15T18:30:00", TimeZone: "America/New_York"},
		End:     DateTime{DateTime: "2025-10-15T18:30:00", TimeZone: "America/New_York"},
	}}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, events, time.Now()))
	assert.True(t, strings.Contains(buf.String(), "DTSTART"))
	assert.False(t, strings.Contains(buf.String(), "DTEND"))

	parsed, err := Parse(buf.String(), "Etc/Unknown")
	require.NoError(t, err)
	assert.Equal(t, events, parsed)
}

func TestEncode_UnsupportedDate(t *testing.T) {
	err := Encode(&bytes.Buffer{}, []Event{{UID: "x", Summary: "x"}}, time.Now())
	assert.Error(t, err)
}
