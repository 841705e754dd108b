package ics

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrParse is returned when a feed contains a date token that cannot be
// interpreted. Any other malformed fragment is dropped instead.
var ErrParse = errors.New("ics parse error")

// UTC is the zone name assigned to values carrying the trailing Z marker.
const UTC = "UTC"

// ParsedDate is either an AllDay date or a DateTime. The set is closed:
// consumers switch over both variants.
type ParsedDate interface {
	isParsedDate()
	String() string
}

// AllDay is a civil date without a time component, formatted YYYY-MM-DD.
type AllDay struct {
	Date string `json:"date"`
}

// DateTime is a wall-clock timestamp formatted YYYY-MM-DDTHH:MM:SS, with a Z
// suffix when the source value was UTC. TimeZone is an IANA identifier.
type DateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone,omitempty"`
}

func (AllDay) isParsedDate()   {}
func (DateTime) isParsedDate() {}

func (d AllDay) String() string { return d.Date }

func (d DateTime) String() string {
	if d.TimeZone == "" {
		return d.DateTime
	}
	return d.DateTime + " (" + d.TimeZone + ")"
}

// IsUTC reports whether the value was given with the UTC marker.
func (d DateTime) IsUTC() bool {
	return strings.HasSuffix(d.DateTime, "Z")
}

// Equal compares two parsed dates. An all-day date never equals a timestamp.
func Equal(a, b ParsedDate) bool {
	switch x := a.(type) {
	case AllDay:
		y, ok := b.(AllDay)
		return ok && x == y
	case DateTime:
		y, ok := b.(DateTime)
		return ok && x == y
	case nil:
		return b == nil
	default:
		return false
	}
}

var (
	datePattern     = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`)
	dateTimePattern = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})T(\d{2})(\d{2})(\d{2})?(Z)?$`)
)

// parseDate converts a DTSTART/DTEND value into a ParsedDate. params holds the
// property parameters with upper-cased keys.
func parseDate(value string, params map[string]string, defaultTZ string) (ParsedDate, error) {
	value = strings.TrimSpace(value)

	if strings.EqualFold(params["VALUE"], "DATE") || datePattern.MatchString(value) {
		m := datePattern.FindStringSubmatch(value)
		if m == nil {
			return nil, fmt.Errorf("%w: invalid date %q", ErrParse, value)
		}
		date := m[1] + "-" + m[2] + "-" + m[3]
		if _, err := time.Parse(time.DateOnly, date); err != nil {
			return nil, fmt.Errorf("%w: invalid date %q: %v", ErrParse, value, err)
		}
		return AllDay{Date: date}, nil
	}

	m := dateTimePattern.FindStringSubmatch(value)
	if m == nil {
		return nil, fmt.Errorf("%w: invalid date-time %q", ErrParse, value)
	}
	seconds := m[6]
	if seconds == "" {
		seconds = "00"
	}
	stamp := fmt.Sprintf("%s-%s-%sT%s:%s:%s", m[1], m[2], m[3], m[4], m[5], seconds)
	if _, err := time.Parse("2006-01-02T15:04:05", stamp); err != nil {
		return nil, fmt.Errorf("%w: invalid date-time %q: %v", ErrParse, value, err)
	}

	if m[7] == "Z" {
		return DateTime{DateTime: stamp + "Z", TimeZone: UTC}, nil
	}
	tz := params["TZID"]
	if tz == "" {
		tz = defaultTZ
	}
	return DateTime{DateTime: stamp, TimeZone: tz}, nil
}
