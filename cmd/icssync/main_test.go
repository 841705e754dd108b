package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beekhof/ics-calendar-sync/internal/ics"
	"github.com/beekhof/ics-calendar-sync/internal/runner"
)

const sampleFeed = "BEGIN:VCALENDAR\r\nBEGIN:VEVENT\r\nUID:a\r\nSUMMARY:Gala\r\nDTSTART:20251015T190000Z\r\nEND:VEVENT\r\nBEGIN:VEVENT\r\nSUMMARY:orphan\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"

func TestWriteFeed_JSON(t *testing.T) {
	feed, err := ics.ParseFeed(sampleFeed, "America/New_York")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeFeed(&buf, "json", feed))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, float64(1), decoded["skipped"])
	events := decoded["events"].([]any)
	require.Len(t, events, 1)
	assert.Equal(t, "Gala", events[0].(map[string]any)["summary"])
}

func TestWriteFeed_ICS(t *testing.T) {
	feed, err := ics.ParseFeed(sampleFeed, "America/New_York")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeFeed(&buf, "ics", feed))
	assert.True(t, strings.Contains(buf.String(), "UID:a"))
}

func TestParseCmd_InvalidFormat(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"parse", "--format", "xml"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xml")
}

func TestParseCmd_LocalInput(t *testing.T) {
	t.Setenv("FEED_URL", "")
	t.Setenv("DEFAULT_TIMEZONE", "")
	t.Setenv("GOOGLE_CREDENTIALS_PATH", "")
	dir := t.TempDir()
	input := filepath.Join(dir, "feed.ics")
	require.NoError(t, os.WriteFile(input, []byte(sampleFeed), 0644))

	root := newRootCmd()
	root.SetArgs([]string{"parse", "--input", input, "--env-file", filepath.Join(dir, "none.env"), "--format", "ics"})
	assert.NoError(t, root.Execute())
}

func TestSyncCmd_MissingConfigReportsFailure(t *testing.T) {
	var (
		mu    sync.Mutex
		hooks []map[string]any
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		mu.Lock()
		hooks = append(hooks, payload)
		mu.Unlock()
	}))
	defer hook.Close()

	for _, k := range []string{"GOOGLE_CALENDAR_ID", "GOOGLE_SERVICE_ACCOUNT_EMAIL", "GOOGLE_PRIVATE_KEY", "GOOGLE_CREDENTIALS_PATH", "METRICS_FILE", "SMTP_HOST", "FEED_URL", "CONFIG_FILE"} {
		t.Setenv(k, "")
	}
	t.Setenv("NOTIFY_WEBHOOK_URL", hook.URL)

	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs([]string{"sync", "--env-file", filepath.Join(t.TempDir(), "none.env")})
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})

	err := root.Execute()
	require.ErrorIs(t, err, errRunFailed)

	var res runner.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.False(t, res.Success)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.NotEmpty(t, res.RunID)
	assert.Contains(t, res.Error, "GOOGLE_CALENDAR_ID")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, hooks, 1)
	assert.Equal(t, "failure", hooks[0]["alert_type"])
	assert.Equal(t, res.RunID, hooks[0]["run_id"])
}

func TestSyncCmd_InvalidConfigPrintsEnvelope(t *testing.T) {
	t.Setenv("FEED_URL", "ftp://example.org/feed.ics")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs([]string{"sync", "--env-file", filepath.Join(t.TempDir(), "none.env")})
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})

	require.ErrorIs(t, root.Execute(), errRunFailed)

	var res runner.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "FEED_URL")
}
