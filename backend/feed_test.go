package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBackoffDelay(t *testing.T) {
	for _, tc := range []struct {
		attempt  int
		expected time.Duration
	}{
		{attempt: 0, expected: 2 * time.Second},
		{attempt: 1, expected: 2 * time.Second},
		{attempt: 2, expected: 3 * time.Second},
		{attempt: 3, expected: 4500 * time.Millisecond},
		{attempt: 5, expected: 10125 * time.Millisecond},
	} {
		if got := DefaultBackoff.Delay(tc.attempt); got != tc.expected {
			t.Errorf("attempt %d: expected %v, got %v", tc.attempt, tc.expected, got)
		}
	}
}

func TestEmitterOff(t *testing.T) {
	var e Emitter[int]
	var got []int
	off := e.On(func(v int) { got = append(got, v) })
	e.On(func(v int) { got = append(got, v*10) })
	e.Emit(1)
	off()
	e.Emit(2)
	expected := []int{1, 10, 20}
	if len(got) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("expected %v, got %v", expected, got)
			break
		}
	}
}

func TestWebSocketFeedDeliversEntries(t *testing.T) {
	upgrader := websocket.Upgrader{}
	pongs := make(chan struct{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("token"); got != "abc" {
			t.Errorf("expected token abc, got %q", got)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		if err := conn.WriteJSON(map[string]any{"type": "ping"}); err != nil {
			t.Errorf("write ping: %v", err)
			return
		}
		var reply message
		if err := conn.ReadJSON(&reply); err != nil {
			t.Errorf("read pong: %v", err)
			return
		}
		if reply.Type == messagePong {
			pongs <- struct{}{}
		}
		if err := conn.WriteJSON(map[string]any{"type": "new_entry", "data": map[string]any{"sgv": "bogus"}}); err != nil {
			return
		}
		if err := conn.WriteJSON(map[string]any{
			"type": "new_entry",
			"data": map[string]any{"date": 1_700_000_000_000, "sgv": 123, "direction": "SingleUp"},
		}); err != nil {
			t.Errorf("write entry: %v", err)
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	metrics := NewMetrics()
	feed := NewWebSocketFeed(WebSocketConfig{
		URL:          server.URL + "/api/v1/ws",
		Token:        "abc",
		PingInterval: time.Hour,
		Metrics:      metrics,
	})
	entries := make(chan Sample, 1)
	connected := make(chan struct{}, 1)
	feed.OnNewEntry(func(s Sample) { entries <- s })
	feed.OnLifecycle(func(l Lifecycle) {
		if l == LifecycleConnected {
			connected <- struct{}{}
		}
	})
	if err := feed.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer feed.Close()
	if err := feed.Start(context.Background()); err == nil {
		t.Errorf("expected second start to fail")
	}

	timeout := time.After(5 * time.Second)
	select {
	case <-connected:
	case <-timeout:
		t.Fatalf("feed never connected")
	}
	select {
	case <-pongs:
	case <-timeout:
		t.Fatalf("server ping never answered")
	}
	select {
	case s := <-entries:
		if s.Value != 123 || s.Direction != DirectionSingleUp || !s.Time.Equal(time.UnixMilli(1_700_000_000_000)) {
			t.Errorf("unexpected sample %+v", s)
		}
	case <-timeout:
		t.Fatalf("entry never delivered")
	}
	if got := testutil.ToFloat64(metrics.feedEntries.WithLabelValues(OutcomeRejected)); got != 1 {
		t.Errorf("expected the malformed entry to be rejected, got %v", got)
	}
}

func TestReadMessagesStopsWhenCanceled(t *testing.T) {
	upgrader := websocket.Upgrader{}
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		if err := conn.WriteJSON(map[string]any{"type": "ping"}); err != nil {
			t.Errorf("write ping: %v", err)
			return
		}
		<-release
	}))
	defer server.Close()
	defer close(release)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	// Nothing receives from incoming, so the reader parks on delivery.
	incoming := make(chan message)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		readMessages(ctx, conn, incoming, readErr)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("reader did not stop after cancellation")
	}
	select {
	case err := <-readErr:
		t.Errorf("unexpected read error: %v", err)
	default:
	}
}

func TestWebSocketFeedGivesUp(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	metrics := NewMetrics()
	feed := NewWebSocketFeed(WebSocketConfig{
		URL:     url,
		Backoff: Backoff{Base: time.Millisecond, Multiplier: 1.5, MaxAttempts: 3},
		Metrics: metrics,
	})
	gaveUp := make(chan struct{})
	feed.OnLifecycle(func(l Lifecycle) {
		if l == LifecycleGaveUp {
			close(gaveUp)
		}
	})
	if err := feed.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer feed.Close()
	select {
	case <-gaveUp:
	case <-time.After(5 * time.Second):
		t.Fatalf("feed never gave up")
	}
	if got := testutil.ToFloat64(metrics.reconnectAttempts); got != 3 {
		t.Errorf("expected 3 reconnect attempts, got %v", got)
	}
}

func TestWebSocketFeedRejectsScheme(t *testing.T) {
	feed := NewWebSocketFeed(WebSocketConfig{URL: "ftp://example.com/ws"})
	if err := feed.Start(context.Background()); err == nil {
		t.Errorf("expected unsupported scheme to fail")
	}
}
