package ics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetcher_Fetch(t *testing.T) {
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))
	}))
	defer server.Close()

	body, err := NewFetcher(server.Client(), nil).Fetch(context.Background(), server.URL+"/feed.ics")
	if err != nil {
		t.Fatalf("Fetch() returned an error: %v", err)
	}
	if body != "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n" {
		t.Errorf("Unexpected body %q", body)
	}
	if gotHeaders.Get("If-None-Match") != "" || gotHeaders.Get("Authorization") != "" {
		t.Errorf("Expected a plain GET without custom headers, got %v", gotHeaders)
	}
}

func TestFetcher_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non-success status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "gone", http.StatusNotFound)
			},
		},
		{
			name: "empty body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("  \r\n"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := NewFetcher(server.Client(), nil).Fetch(context.Background(), server.URL)
			if err == nil {
				t.Fatal("Expected an error")
			}
			if !errors.Is(err, ErrFetch) {
				t.Errorf("Expected ErrFetch, got %v", err)
			}
		})
	}
}

func TestFetcher_EmptyURL(t *testing.T) {
	_, err := NewFetcher(nil, nil).Fetch(context.Background(), "")
	if !errors.Is(err, ErrFetch) {
		t.Errorf("Expected ErrFetch for empty URL, got %v", err)
	}
}
