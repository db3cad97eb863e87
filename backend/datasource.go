package backend

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Source identifies where the datasource's readings come from.
type Source uint8

const (
	SourceNone Source = iota
	SourceAPI
	SourceTrace
)

// State is a snapshot of the datasource published to the UI. Samples is
// replaced wholesale whenever Generation changes and must not be modified.
type State struct {
	Source     Source
	Status     ServerStatus
	Query      EntriesQuery
	Generation uint64
	Samples    []Sample
	Loading    bool
	Connection Lifecycle
	Live       bool
	TraceName  string
	Err        error
}

// Contains reports whether t falls inside the query's explicit range. Open
// queries contain every instant.
func (q EntriesQuery) Contains(t time.Time) bool {
	if !q.Start.IsZero() && t.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && t.After(q.End) {
		return false
	}
	return true
}

// Datasource loads windows of readings, owns the live feed, and publishes its
// state for the UI. Live samples are handed over on Entries.
type Datasource struct {
	appCtx     context.Context
	client     *Client
	newFeed    func() Feed
	logger     *slog.Logger
	invalidate func()
	entries    chan Sample

	lock        sync.Mutex
	state       State
	subscribers map[chan State]struct{}
	feed        Feed
	feedOff     []func()
	loadCancel  context.CancelFunc
	// sourceCancel ends the background work of the current source. It is
	// replaced whenever the source changes and called on Close.
	sourceCancel context.CancelFunc
	// trace holds every reading of the open trace file.
	trace []Sample
}

// NewDatasource constructs a datasource. newFeed may be nil when no push
// channel is configured. invalidate is called whenever new state or entries
// are available.
func NewDatasource(appCtx context.Context, client *Client, newFeed func() Feed, logger *slog.Logger, invalidate func()) *Datasource {
	if logger == nil {
		logger = slog.Default()
	}
	if invalidate == nil {
		invalidate = func() {}
	}
	return &Datasource{
		appCtx:      appCtx,
		client:      client,
		newFeed:     newFeed,
		logger:      logger,
		invalidate:  invalidate,
		entries:     make(chan Sample, 1024),
		subscribers: make(map[chan State]struct{}),
	}
}

// State streams snapshots until ctx is cancelled. The current snapshot is
// delivered immediately; slow readers only ever see the latest one.
func (d *Datasource) State(ctx context.Context) <-chan State {
	out := make(chan State, 1)
	d.lock.Lock()
	d.subscribers[out] = struct{}{}
	out <- d.state
	d.lock.Unlock()
	go func() {
		<-ctx.Done()
		d.lock.Lock()
		defer d.lock.Unlock()
		delete(d.subscribers, out)
		close(out)
	}()
	return out
}

// Entries delivers live samples in arrival order.
func (d *Datasource) Entries() <-chan Sample {
	return d.entries
}

// update mutates the state under the lock and publishes the result.
func (d *Datasource) update(fn func(*State)) {
	d.lock.Lock()
	fn(&d.state)
	st := d.state
	for sub := range d.subscribers {
		select {
		case <-sub:
		default:
		}
		sub <- st
	}
	d.lock.Unlock()
	d.invalidate()
}

// Snapshot returns the current state.
func (d *Datasource) Snapshot() State {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.state
}

// Connect switches to the API: it fetches the server status, loads the
// initial window, and starts the live feed.
func (d *Datasource) Connect(initial EntriesQuery) {
	connectCtx := d.switchSource()
	d.detachFeed()
	d.update(func(s *State) {
		*s = State{Source: SourceAPI, Query: initial, Loading: true, Status: ServerStatus{Thresholds: DefaultThresholds()}, Generation: s.Generation}
	})
	go func() {
		ctx, cancel := context.WithTimeout(connectCtx, 30*time.Second)
		defer cancel()
		status, err := d.client.GetStatus(ctx)
		if connectCtx.Err() != nil {
			d.logger.Debug("connect superseded")
			return
		}
		if err != nil {
			d.logger.Warn("status fetch failed, using default thresholds", "err", err)
			d.update(func(s *State) { s.Err = err })
		} else {
			d.update(func(s *State) { s.Status = status })
		}
		d.Load(initial)
		if d.newFeed != nil {
			if feed := d.newFeed(); feed != nil {
				d.attachFeed(connectCtx, feed)
			}
		}
	}()
}

// switchSource stops the background work of the previous source and returns
// the context owning the new one.
func (d *Datasource) switchSource() context.Context {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.sourceCancel != nil {
		d.sourceCancel()
	}
	ctx, cancel := context.WithCancel(d.appCtx)
	d.sourceCancel = cancel
	return ctx
}

// Load replaces the visible window with the readings matching q. For an
// open trace the query is applied to the trace's readings locally.
func (d *Datasource) Load(q EntriesQuery) {
	d.lock.Lock()
	if d.loadCancel != nil {
		d.loadCancel()
	}
	ctx, cancel := context.WithCancel(d.appCtx)
	d.loadCancel = cancel
	source := d.state.Source
	trace := d.trace
	d.lock.Unlock()

	if source == SourceTrace {
		samples := filterSamples(trace, q)
		d.update(func(s *State) {
			s.Query = q
			s.Samples = samples
			s.Generation++
			s.Loading = false
			s.Err = nil
		})
		cancel()
		return
	}

	d.update(func(s *State) {
		s.Query = q
		s.Loading = true
	})
	go func() {
		defer cancel()
		samples, err := d.client.GetEntries(ctx, q)
		if ctx.Err() != nil {
			// Superseded by a newer load.
			return
		}
		if err != nil {
			d.logger.Error("failed loading entries", "err", err)
			d.update(func(s *State) {
				s.Loading = false
				s.Err = fmt.Errorf("loading entries: %w", err)
			})
			return
		}
		d.logger.Info("loaded entries", "count", len(samples))
		d.update(func(s *State) {
			s.Samples = samples
			s.Generation++
			s.Loading = false
			s.Err = nil
		})
	}()
}

// OpenTrace switches to a trace file. All complete readings in the file are
// published at once and appended readings arrive on Entries.
func (d *Datasource) OpenTrace(file io.ReadCloser) error {
	traceCtx := d.switchSource()
	d.detachFeed()
	tail := NewTailFeed(file, d.logger, nil)
	backlog, err := tail.ReadBacklog()
	if err != nil {
		_ = tail.Close()
		d.update(func(s *State) { s.Err = err })
		return err
	}
	d.lock.Lock()
	d.trace = slices.Clone(backlog)
	d.lock.Unlock()
	d.update(func(s *State) {
		*s = State{
			Source:     SourceTrace,
			Status:     ServerStatus{Name: "trace", Thresholds: DefaultThresholds()},
			Samples:    backlog,
			Generation: s.Generation + 1,
			TraceName:  tail.Name(),
		}
	})
	d.attachFeed(traceCtx, tail)
	return nil
}

// attachFeed subscribes to feed and starts it. If owner is cancelled before
// or while the feed starts, the feed is closed instead of kept.
func (d *Datasource) attachFeed(owner context.Context, feed Feed) {
	offEntry := feed.OnNewEntry(func(sample Sample) {
		d.lock.Lock()
		if d.state.Source == SourceTrace {
			d.trace = append(d.trace, sample)
		}
		d.lock.Unlock()
		select {
		case d.entries <- sample:
		default:
			d.logger.Warn("dropping live entry, UI not keeping up", "time", sample.Time)
		}
		d.invalidate()
	})
	offLifecycle := feed.OnLifecycle(func(l Lifecycle) {
		d.logger.Info("feed lifecycle", "state", l.String())
		d.update(func(s *State) {
			s.Connection = l
			s.Live = l == LifecycleConnected
		})
	})
	discard := func() {
		offEntry()
		offLifecycle()
		_ = feed.Close()
	}
	d.lock.Lock()
	if owner.Err() != nil {
		d.lock.Unlock()
		discard()
		return
	}
	d.feed = feed
	d.feedOff = []func(){offEntry, offLifecycle}
	d.lock.Unlock()
	if err := feed.Start(owner); err != nil {
		d.logger.Error("failed starting feed", "err", err)
		d.update(func(s *State) { s.Err = err })
	}
	if owner.Err() != nil {
		// A concurrent detach may have closed the feed before it started.
		d.lock.Lock()
		if d.feed == feed {
			d.feed, d.feedOff = nil, nil
		}
		d.lock.Unlock()
		discard()
	}
}

func (d *Datasource) detachFeed() error {
	d.lock.Lock()
	feed, offs := d.feed, d.feedOff
	d.feed, d.feedOff = nil, nil
	d.lock.Unlock()
	for _, off := range offs {
		off()
	}
	if feed == nil {
		return nil
	}
	return feed.Close()
}

// Close tears down the live feed and any in-flight load.
func (d *Datasource) Close() error {
	d.lock.Lock()
	if d.sourceCancel != nil {
		d.sourceCancel()
	}
	if d.loadCancel != nil {
		d.loadCancel()
	}
	d.lock.Unlock()
	return d.detachFeed()
}

// filterSamples applies q to samples that are already held in memory. Hours
// and Count are measured back from the newest sample.
func filterSamples(samples []Sample, q EntriesQuery) []Sample {
	if len(samples) == 0 {
		return nil
	}
	sorted := slices.Clone(samples)
	slices.SortStableFunc(sorted, func(a, b Sample) int {
		return a.Time.Compare(b.Time)
	})
	switch {
	case !q.Start.IsZero() || !q.End.IsZero():
		return slices.DeleteFunc(sorted, func(s Sample) bool {
			return !q.Contains(s.Time)
		})
	case q.Hours > 0:
		cutoff := sorted[len(sorted)-1].Time.Add(-time.Duration(q.Hours) * time.Hour)
		return slices.DeleteFunc(sorted, func(s Sample) bool {
			return s.Time.Before(cutoff)
		})
	case q.Count > 0 && q.Count < len(sorted):
		return sorted[len(sorted)-q.Count:]
	default:
		return sorted
	}
}
