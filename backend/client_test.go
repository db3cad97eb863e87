package backend

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(rt roundTripFunc) *Client {
	c := NewClient("https://example.com/api/v1/", "secret", time.Second, nil, nil)
	c.httpClient = &http.Client{Transport: rt}
	return c
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     make(http.Header),
	}
}

func TestEntriesQueryValues(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	for _, tc := range []struct {
		name     string
		query    EntriesQuery
		expected string
	}{
		{name: "hours", query: EntriesQuery{Hours: 6}, expected: "hours=6"},
		{name: "count", query: EntriesQuery{Count: 10}, expected: "count=10"},
		{name: "hours wins over count", query: EntriesQuery{Hours: 2, Count: 10}, expected: "hours=2"},
		{
			name:     "range",
			query:    EntriesQuery{Start: start, End: start.Add(time.Hour)},
			expected: "end=1700003600000&start=1700000000000",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.query.Values().Encode(); got != tc.expected {
				t.Errorf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestDayQuery(t *testing.T) {
	q := DayQuery(time.Date(2024, 3, 1, 15, 4, 5, 0, time.UTC))
	if !q.Start.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected start %v", q.Start)
	}
	if !q.End.Equal(time.Date(2024, 3, 1, 23, 59, 59, 999_000_000, time.UTC)) {
		t.Errorf("unexpected end %v", q.End)
	}
}

func TestGetEntries(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/api/v1/entries" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		if got := req.URL.Query().Get("hours"); got != "2" {
			t.Errorf("expected hours=2, got %q", got)
		}
		if got := req.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if req.Header.Get("X-Request-ID") == "" {
			t.Errorf("expected a request id")
		}
		return jsonResponse(http.StatusOK, `[
			{"date": 1700000300000, "sgv": 120, "direction": "Flat", "type": "sgv"},
			{"date": "2023-11-14T22:13:20Z", "sgv": 95, "direction": "FortyFiveDown"},
			{"date": 1700000600000, "type": "mbg"},
			{"date": 1700000900000, "type": "sgv"}
		]`), nil
	})

	samples, err := client.GetEntries(context.Background(), EntriesQuery{Hours: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 usable samples, got %d: %+v", len(samples), samples)
	}
	if samples[0].Value != 120 || samples[0].Direction != DirectionFlat {
		t.Errorf("unexpected first sample %+v", samples[0])
	}
	if !samples[1].Time.Equal(time.UnixMilli(1_700_000_000_000)) {
		t.Errorf("ISO date parsed to %v", samples[1].Time)
	}
}

func TestGetStatusDefaults(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{
			"name": "Nightscout",
			"units": "mmol",
			"thresholds": {"bg_high": 250, "bg_low": 65}
		}`), nil
	})
	status, err := client.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := Thresholds{
		TargetTop:    DefaultTargetTop,
		TargetBottom: DefaultTargetBottom,
		AlarmHigh:    250,
		AlarmLow:     65,
		Units:        UnitsMmol,
	}
	if status.Thresholds != expected {
		t.Errorf("expected %+v, got %+v", expected, status.Thresholds)
	}
	if status.Name != "Nightscout" {
		t.Errorf("unexpected name %q", status.Name)
	}
}

func TestClientAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail": "Authentication required"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second, nil, NewMetrics())
	_, err := client.GetStatus(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if !apiErr.Unauthorized() {
		t.Errorf("expected unauthorized, got status %d", apiErr.StatusCode)
	}
	if !strings.Contains(apiErr.Error(), "Authentication required") {
		t.Errorf("expected server detail in error, got %q", apiErr.Error())
	}
}

func TestClientNotConfigured(t *testing.T) {
	client := NewClient("", "", time.Second, nil, nil)
	if _, err := client.GetEntries(context.Background(), EntriesQuery{Count: 1}); err == nil {
		t.Errorf("expected error for missing base URL")
	}
}
