package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/beekhof/ics-calendar-sync/internal/ics"
)

const testCalendarID = "team@example.org"

type recordedRequest struct {
	Method string
	Path   string
	Query  map[string]string
	Body   map[string]any
}

// mockCalendarServer emulates the three Events endpoints the client uses.
type mockCalendarServer struct {
	server   *httptest.Server
	existing map[string]string // iCalUID -> event id
	failWith int
	requests []recordedRequest
}

func newMockCalendarServer() *mockCalendarServer {
	m := &mockCalendarServer{existing: map[string]string{}}
	m.server = httptest.NewServer(http.HandlerFunc(m.handler))
	return m
}

func (m *mockCalendarServer) Close() { m.server.Close() }

func (m *mockCalendarServer) client(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), m.server.Client(), m.server.URL+"/calendar/v3/", nil)
	require.NoError(t, err)
	return c
}

func (m *mockCalendarServer) handler(w http.ResponseWriter, r *http.Request) {
	rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Query: map[string]string{}}
	for k := range r.URL.Query() {
		rec.Query[k] = r.URL.Query().Get(k)
	}
	if r.Body != nil && r.Method != http.MethodGet {
		_ = json.NewDecoder(r.Body).Decode(&rec.Body)
	}
	m.requests = append(m.requests, rec)

	w.Header().Set("Content-Type", "application/json")
	if m.failWith != 0 {
		w.WriteHeader(m.failWith)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"Calendar usage limits exceeded."}}`))
		return
	}

	prefix := "/calendar/v3/calendars/" + testCalendarID + "/events"
	switch {
	case r.Method == http.MethodGet && r.URL.Path == prefix:
		items := []map[string]any{}
		if id, ok := m.existing[r.URL.Query().Get("iCalUID")]; ok {
			items = append(items, map[string]any{"id": id, "iCalUID": r.URL.Query().Get("iCalUID")})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"kind": "calendar#events", "items": items})
	case r.Method == http.MethodPost && r.URL.Path == prefix+"/import":
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "imported-1", "iCalUID": rec.Body["iCalUID"]})
	case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, prefix+"/"):
		_ = json.NewEncoder(w).Encode(map[string]any{"id": strings.TrimPrefix(r.URL.Path, prefix+"/")})
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Not Found"}}`))
	}
}

func TestClient_FindEventByUID(t *testing.T) {
	m := newMockCalendarServer()
	defer m.Close()
	m.existing["film-1@wff"] = "evt123"
	c := m.client(t)

	ev, err := c.FindEventByUID(context.Background(), testCalendarID, "film-1@wff")
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "evt123", ev.Id)

	require.Len(t, m.requests, 1)
	q := m.requests[0].Query
	assert.Equal(t, "film-1@wff", q["iCalUID"])
	assert.Equal(t, "1", q["maxResults"])
	assert.Equal(t, "true", q["singleEvents"])
}

func TestClient_FindEventByUID_NoMatch(t *testing.T) {
	m := newMockCalendarServer()
	defer m.Close()

	ev, err := m.client(t).FindEventByUID(context.Background(), testCalendarID, "missing")
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestClient_PatchEvent(t *testing.T) {
	m := newMockCalendarServer()
	defer m.Close()

	err := m.client(t).PatchEvent(context.Background(), testCalendarID, "evt123", &gcal.Event{Summary: "Renamed"})
	require.NoError(t, err)

	require.Len(t, m.requests, 1)
	assert.Equal(t, http.MethodPatch, m.requests[0].Method)
	assert.True(t, strings.HasSuffix(m.requests[0].Path, "/events/evt123"))
	assert.Equal(t, "Renamed", m.requests[0].Body["summary"])
}

func TestClient_ImportEvent(t *testing.T) {
	m := newMockCalendarServer()
	defer m.Close()

	body, err := ImportBody(ics.Event{
		UID:     "film-2@wff",
		Summary: "Shorts Block",
		URL:     "https://example.org/shorts",
		Start:   ics.AllDay{Date: "2025-10-16"},
		End:     ics.AllDay{Date: "2025-10-16"},
	})
	require.NoError(t, err)

	require.NoError(t, m.client(t).ImportEvent(context.Background(), testCalendarID, body))

	require.Len(t, m.requests, 1)
	req := m.requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.True(t, strings.HasSuffix(req.Path, "/events/import"))
	assert.Equal(t, "film-2@wff", req.Body["iCalUID"])
	assert.Equal(t, map[string]any{"date": "2025-10-16"}, req.Body["start"])
	assert.Equal(t, map[string]any{"title": "Shorts Block", "url": "https://example.org/shorts"}, req.Body["source"])
}

func TestClient_APIError(t *testing.T) {
	m := newMockCalendarServer()
	defer m.Close()
	m.failWith = http.StatusForbidden

	_, err := m.client(t).FindEventByUID(context.Background(), testCalendarID, "x")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "events.list", apiErr.Op)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "usage limits")
	assert.Contains(t, err.Error(), "403")
}

func TestAPIError_NoResponse(t *testing.T) {
	err := wrapError("events.import", errors.New("connection refused"))
	assert.Equal(t, "calendar events.import failed: connection refused", err.Error())
}

func TestPatchBody(t *testing.T) {
	body, err := PatchBody(ics.Event{
		UID:         "u",
		Summary:     "Gala",
		Description: "Red carpet",
		Location:    "Playhouse",
		Start:       ics.DateTime{DateTime: "2025-10-15T19:00:00", TimeZone: "America/New_York"},
		End:         ics.DateTime{DateTime: "2025-10-15T21:00:00Z", TimeZone: ics.UTC},
	})
	require.NoError(t, err)

	assert.Equal(t, "", body.ICalUID)
	assert.Nil(t, body.Source)
	assert.Equal(t, "Playhouse", body.Location)
	assert.Equal(t, &gcal.EventDateTime{DateTime: "2025-10-15T19:00:00", TimeZone: "America/New_York"}, body.Start)
	assert.Equal(t, &gcal.EventDateTime{DateTime: "2025-10-15T21:00:00Z", TimeZone: "UTC"}, body.End)
}

func TestPatchBody_MissingDate(t *testing.T) {
	_, err := PatchBody(ics.Event{UID: "u", Summary: "s", Start: ics.AllDay{Date: "2025-10-15"}})
	assert.Error(t, err)
}
