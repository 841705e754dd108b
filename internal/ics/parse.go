package ics

import (
	"fmt"
	"strings"
)

// Event is the normalized representation of a VEVENT handed to the sync
// engine. UID is the natural key used to find the remote copy.
type Event struct {
	UID         string     `json:"uid"`
	Summary     string     `json:"summary"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	URL         string     `json:"url,omitempty"`
	Start       ParsedDate `json:"start"`
	End         ParsedDate `json:"end"`
}

// Feed is the outcome of parsing one ICS document.
type Feed struct {
	Events []Event `json:"events"`
	// Skipped counts VEVENT blocks dropped for missing UID, SUMMARY or
	// DTSTART, plus repeated UIDs.
	Skipped int `json:"skipped"`
}

// Parse parses an ICS document into events. Date-time values without an
// explicit zone get defaultTZ.
func Parse(text, defaultTZ string) ([]Event, error) {
	feed, err := ParseFeed(text, defaultTZ)
	if err != nil {
		return nil, err
	}
	return feed.Events, nil
}

// ParseFeed is Parse with skip accounting.
func ParseFeed(text, defaultTZ string) (*Feed, error) {
	feed := &Feed{Events: []Event{}}
	seen := make(map[string]bool)

	var (
		current *partialEvent
		depth   int
	)

	for _, line := range unfold(text) {
		name, params, value, ok := splitProperty(line)
		if !ok {
			continue
		}

		if current == nil {
			if name == "BEGIN" && strings.EqualFold(strings.TrimSpace(value), "VEVENT") {
				current = &partialEvent{}
				depth = 0
			}
			continue
		}

		switch name {
		case "BEGIN":
			depth++
			continue
		case "END":
			if depth > 0 {
				depth--
				continue
			}
			if !strings.EqualFold(strings.TrimSpace(value), "VEVENT") {
				continue
			}
			ev, complete := current.finish()
			current = nil
			if !complete || seen[ev.UID] {
				feed.Skipped++
				continue
			}
			seen[ev.UID] = true
			feed.Events = append(feed.Events, ev)
			continue
		}

		if depth > 0 {
			continue
		}
		if err := current.apply(name, params, value, defaultTZ); err != nil {
			return nil, err
		}
	}
	if current != nil {
		// Input ended inside a VEVENT.
		feed.Skipped++
	}

	return feed, nil
}

// partialEvent accumulates VEVENT properties until END:VEVENT.
type partialEvent struct {
	uid, summary, location, url string
	description                 string
	hasDescription              bool
	start, end                  ParsedDate
}

func (p *partialEvent) apply(name string, params map[string]string, value, defaultTZ string) error {
	switch name {
	case "UID":
		p.uid = strings.TrimSpace(value)
	case "SUMMARY":
		p.summary = Unescape(value)
	case "DESCRIPTION":
		text := Unescape(value)
		if p.hasDescription {
			p.description += "\n" + text
		} else {
			p.description = text
			p.hasDescription = true
		}
	case "LOCATION":
		p.location = Unescape(value)
	case "URL":
		p.url = strings.TrimSpace(Unescape(value))
	case "DTSTART":
		d, err := parseDate(value, params, defaultTZ)
		if err != nil {
			return fmt.Errorf("DTSTART for %q: %w", p.uid, err)
		}
		p.start = d
	case "DTEND":
		d, err := parseDate(value, params, defaultTZ)
		if err != nil {
			return fmt.Errorf("DTEND for %q: %w", p.uid, err)
		}
		p.end = d
	}
	return nil
}

// finish reports whether the record carries everything the sync needs. A
// missing end takes the start value.
func (p *partialEvent) finish() (Event, bool) {
	if p.uid == "" || p.summary == "" || p.start == nil {
		return Event{}, false
	}
	end := p.end
	if end == nil {
		end = p.start
	}
	return Event{
		UID:         p.uid,
		Summary:     p.summary,
		Description: p.description,
		Location:    p.location,
		URL:         p.url,
		Start:       p.start,
		End:         end,
	}, true
}

// unfold turns physical lines into logical lines. A line starting with a
// single space or tab continues the previous one, minus that character.
func unfold(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	physical := strings.Split(text, "\n")
	logical := make([]string, 0, len(physical))
	for _, line := range physical {
		if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') && len(logical) > 0 {
			logical[len(logical)-1] += line[1:]
			continue
		}
		logical = append(logical, line)
	}
	return logical
}

// splitProperty splits NAME;KEY=VALUE:value at the first colon that is
// neither backslash-escaped nor inside a quoted parameter value.
func splitProperty(line string) (name string, params map[string]string, value string, ok bool) {
	idx := -1
	inQuote := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++
		case '"':
			inQuote = !inQuote
		case ':':
			if !inQuote {
				idx = i
			}
		}
		if idx >= 0 {
			break
		}
	}
	if idx < 0 {
		return "", nil, "", false
	}

	segments := splitOutsideQuotes(line[:idx], ';')
	name = strings.ToUpper(strings.TrimSpace(segments[0]))
	if name == "" {
		return "", nil, "", false
	}

	params = make(map[string]string, len(segments)-1)
	for _, seg := range segments[1:] {
		key, val, found := strings.Cut(seg, "=")
		if !found {
			continue
		}
		params[strings.ToUpper(strings.TrimSpace(key))] = strings.Trim(strings.TrimSpace(val), `"`)
	}
	return name, params, line[idx+1:], true
}

func splitOutsideQuotes(s string, sep byte) []string {
	var parts []string
	inQuote := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuote = !inQuote
		case sep:
			if !inQuote {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// Unescape decodes ICS TEXT escapes in a single pass, so \\n yields a
// backslash followed by n rather than a newline.
func Unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		switch next := s[i+1]; next {
		case 'n', 'N':
			b.WriteByte('\n')
		case ',', ';', '\\':
			b.WriteByte(next)
		default:
			b.WriteByte(c)
			b.WriteByte(next)
		}
		i++
	}
	return b.String()
}
