package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrTransportDisconnected is reported when the push connection drops. The
// feed reconnects on its own; the chart keeps its last known series.
var ErrTransportDisconnected = errors.New("transport disconnected")

// Lifecycle is a connection state change published by a Feed.
type Lifecycle uint8

const (
	LifecycleConnected Lifecycle = iota
	LifecycleDisconnected
	// LifecycleGaveUp is published once the reconnect budget is exhausted.
	LifecycleGaveUp
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleConnected:
		return "connected"
	case LifecycleDisconnected:
		return "disconnected"
	case LifecycleGaveUp:
		return "gave up"
	default:
		return "unknown"
	}
}

// Feed delivers live samples. Callbacks run on the feed's goroutine; hosts
// must hand values over to their UI goroutine themselves.
type Feed interface {
	OnNewEntry(func(Sample)) (off func())
	OnLifecycle(func(Lifecycle)) (off func())
	Start(ctx context.Context) error
	Close() error
}

// Emitter is an observer list for a single event type.
type Emitter[T any] struct {
	lock      sync.Mutex
	nextID    int
	listeners map[int]func(T)
}

// On registers fn and returns a function removing it.
func (e *Emitter[T]) On(fn func(T)) (off func()) {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[int]func(T))
	}
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	return func() {
		e.lock.Lock()
		defer e.lock.Unlock()
		delete(e.listeners, id)
	}
}

// Emit invokes every registered listener in registration order.
func (e *Emitter[T]) Emit(v T) {
	e.lock.Lock()
	ids := make([]int, 0, len(e.listeners))
	for id := range e.listeners {
		ids = append(ids, id)
	}
	e.lock.Unlock()
	slices.Sort(ids)
	for _, id := range ids {
		e.lock.Lock()
		fn, ok := e.listeners[id]
		e.lock.Unlock()
		if ok {
			fn(v)
		}
	}
}

// Backoff describes the reconnect schedule.
type Backoff struct {
	Base        time.Duration
	Multiplier  float64
	MaxAttempts int
}

// DefaultBackoff is 2s, 3s, 4.5s, 6.75s, 10.125s and then give up.
var DefaultBackoff = Backoff{
	Base:        2 * time.Second,
	Multiplier:  1.5,
	MaxAttempts: 5,
}

// Delay returns the wait before the given 1-based attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(b.Base) * math.Pow(b.Multiplier, float64(attempt-1)))
}

// message is the envelope used on the push channel.
type message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	messageNewEntry = "new_entry"
	messagePing     = "ping"
	messagePong     = "pong"
)

// WebSocketConfig configures a WebSocketFeed.
type WebSocketConfig struct {
	// URL is the websocket endpoint. An http(s) URL is rewritten to ws(s).
	URL          string
	Token        string
	PingInterval time.Duration
	Backoff      Backoff
	Dialer       *websocket.Dialer
	Logger       *slog.Logger
	Metrics      *Metrics
}

// WebSocketFeed receives entries over a websocket, keeping the connection
// alive with application-level pings and reconnecting with backoff.
type WebSocketFeed struct {
	cfg       WebSocketConfig
	entries   Emitter[Sample]
	lifecycle Emitter[Lifecycle]

	lock    sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

var _ Feed = (*WebSocketFeed)(nil)

// NewWebSocketFeed constructs an idle feed. Zero config values take their
// defaults.
func NewWebSocketFeed(cfg WebSocketConfig) *WebSocketFeed {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 25 * time.Second
	}
	if cfg.Backoff.Base <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WebSocketFeed{cfg: cfg}
}

func (f *WebSocketFeed) OnNewEntry(fn func(Sample)) func() {
	return f.entries.On(fn)
}

func (f *WebSocketFeed) OnLifecycle(fn func(Lifecycle)) func() {
	return f.lifecycle.On(fn)
}

// Start connects in the background. It returns an error only if the feed
// was already started or the URL is unusable.
func (f *WebSocketFeed) Start(ctx context.Context) error {
	endpoint, err := f.endpoint()
	if err != nil {
		return err
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.started {
		return fmt.Errorf("websocket feed already started")
	}
	f.started = true
	ctx, f.cancel = context.WithCancel(ctx)
	f.done = make(chan struct{})
	go func() {
		defer close(f.done)
		f.run(ctx, endpoint)
	}()
	return nil
}

// Close stops the feed and waits for its goroutine to exit. No callbacks
// fire after Close returns.
func (f *WebSocketFeed) Close() error {
	f.lock.Lock()
	cancel, done := f.cancel, f.done
	f.lock.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (f *WebSocketFeed) endpoint() (string, error) {
	u, err := url.Parse(f.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse feed url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported feed url scheme %q", u.Scheme)
	}
	if f.cfg.Token != "" {
		q := u.Query()
		q.Set("token", f.cfg.Token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (f *WebSocketFeed) run(ctx context.Context, endpoint string) {
	log := f.cfg.Logger
	attempts := 0
	for {
		conn, _, err := f.cfg.Dialer.DialContext(ctx, endpoint, nil)
		if err == nil {
			attempts = 0
			f.cfg.Metrics.SetConnected(true)
			f.lifecycle.Emit(LifecycleConnected)
			err = f.serve(ctx, conn)
			f.cfg.Metrics.SetConnected(false)
			f.lifecycle.Emit(LifecycleDisconnected)
		}
		if ctx.Err() != nil {
			return
		}
		log.Warn("feed connection lost", "err", err)
		if attempts >= f.cfg.Backoff.MaxAttempts {
			log.Error("feed giving up", "attempts", attempts)
			f.lifecycle.Emit(LifecycleGaveUp)
			return
		}
		attempts++
		f.cfg.Metrics.ObserveReconnect()
		delay := f.cfg.Backoff.Delay(attempts)
		log.Info("feed reconnecting", "delay", delay, "attempt", attempts, "max", f.cfg.Backoff.MaxAttempts)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// serve pumps one connection until it fails or ctx is cancelled. Reads
// happen on a helper goroutine; all writes happen here.
func (f *WebSocketFeed) serve(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	incoming := make(chan message)
	readErr := make(chan error, 1)
	go readMessages(ctx, conn, incoming, readErr)

	ticker := time.NewTicker(f.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return ctx.Err()
		case err := <-readErr:
			return fmt.Errorf("%w: %v", ErrTransportDisconnected, err)
		case <-ticker.C:
			if err := conn.WriteJSON(message{Type: messagePing}); err != nil {
				return fmt.Errorf("%w: ping: %v", ErrTransportDisconnected, err)
			}
		case msg := <-incoming:
			switch msg.Type {
			case messageNewEntry:
				f.deliver(msg.Data)
			case messagePing:
				if err := conn.WriteJSON(message{Type: messagePong}); err != nil {
					return fmt.Errorf("%w: pong: %v", ErrTransportDisconnected, err)
				}
			case messagePong:
			default:
				f.cfg.Logger.Debug("ignoring feed message", "type", msg.Type)
			}
		}
	}
}

// readMessages decodes messages from conn until a read fails or ctx is done.
// readErr must be buffered.
func readMessages(ctx context.Context, conn *websocket.Conn, incoming chan<- message, readErr chan<- error) {
	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			readErr <- err
			return
		}
		select {
		case incoming <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (f *WebSocketFeed) deliver(data json.RawMessage) {
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		f.cfg.Metrics.ObserveEntry(false)
		f.cfg.Logger.Warn("malformed feed entry", "err", err)
		return
	}
	sample, err := entry.Sample()
	if err != nil {
		f.cfg.Metrics.ObserveEntry(false)
		f.cfg.Logger.Warn("rejected feed entry", "err", err)
		return
	}
	f.cfg.Metrics.ObserveEntry(true)
	f.entries.Emit(sample)
}
