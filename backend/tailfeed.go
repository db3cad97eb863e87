package backend

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Trace files are CSV with one reading per line: date (epoch ms or RFC 3339),
// sgv in mg/dL, and an optional direction name. A leading header line is
// skipped.
var traceHeader = []string{"date", "sgv", "direction"}

// TraceWriter emits a trace file.
type TraceWriter struct {
	out *csv.Writer
}

// NewTraceWriter writes the trace header to w.
func NewTraceWriter(w io.Writer) (*TraceWriter, error) {
	tw := &TraceWriter{out: csv.NewWriter(w)}
	if err := tw.out.Write(traceHeader); err != nil {
		return nil, err
	}
	tw.out.Flush()
	return tw, tw.out.Error()
}

// Write appends one reading and flushes it, so followers see whole lines.
func (tw *TraceWriter) Write(s Sample) error {
	record := []string{
		strconv.FormatInt(s.Time.UnixMilli(), 10),
		strconv.FormatFloat(s.Value, 'f', -1, 64),
		s.Direction.String(),
	}
	if err := tw.out.Write(record); err != nil {
		return err
	}
	tw.out.Flush()
	return tw.out.Error()
}

// parseTraceRecord converts one CSV record. The header yields ok=false with
// no error.
func parseTraceRecord(rec []string) (s Sample, ok bool, err error) {
	if len(rec) < 2 {
		return Sample{}, false, fmt.Errorf("%w: want at least 2 fields, got %d", ErrInvalidSample, len(rec))
	}
	date := strings.TrimSpace(rec[0])
	if strings.EqualFold(date, traceHeader[0]) {
		return Sample{}, false, nil
	}
	ts, err := ParseTimestamp(date)
	if err != nil {
		return Sample{}, false, fmt.Errorf("%w: %v", ErrInvalidSample, err)
	}
	if ts.IsZero() {
		return Sample{}, false, fmt.Errorf("%w: missing timestamp", ErrInvalidSample)
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
	if err != nil {
		return Sample{}, false, fmt.Errorf("%w: sgv %q: %v", ErrInvalidSample, rec[1], err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Sample{}, false, fmt.Errorf("%w: sgv %q is not finite", ErrInvalidSample, rec[1])
	}
	s = Sample{Time: ts, Value: value}
	if len(rec) > 2 {
		s.Direction = ParseDirection(rec[2])
	}
	return s, true, nil
}

// TailFeed replays a trace file and then follows it as it grows, using
// fsnotify write notifications to wake up.
type TailFeed struct {
	file    io.ReadCloser
	name    string
	records *csv.Reader
	logger  *slog.Logger
	metrics *Metrics

	entries   Emitter[Sample]
	lifecycle Emitter[Lifecycle]

	lock    sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	watcher *fsnotify.Watcher
}

var _ Feed = (*TailFeed)(nil)

// NewTailFeed wraps file. If file exposes a Name (as *os.File does) the feed
// follows it for appended lines; otherwise it stops at the first EOF.
func NewTailFeed(file io.ReadCloser, logger *slog.Logger, metrics *Metrics) *TailFeed {
	if logger == nil {
		logger = slog.Default()
	}
	t := &TailFeed{
		file:    file,
		logger:  logger,
		metrics: metrics,
	}
	if named, ok := file.(interface{ Name() string }); ok {
		t.name = named.Name()
	}
	t.records = csv.NewReader(newLineReader(file))
	t.records.TrimLeadingSpace = true
	t.records.FieldsPerRecord = -1
	return t
}

// Name returns the path being followed, if any.
func (t *TailFeed) Name() string {
	return t.name
}

func (t *TailFeed) OnNewEntry(fn func(Sample)) func() {
	return t.entries.On(fn)
}

func (t *TailFeed) OnLifecycle(fn func(Lifecycle)) func() {
	return t.lifecycle.On(fn)
}

// ReadBacklog consumes every complete record currently in the file. It must
// be called before Start.
func (t *TailFeed) ReadBacklog() ([]Sample, error) {
	var samples []Sample
	for {
		s, err := t.next()
		if errors.Is(err, io.EOF) {
			return samples, nil
		}
		if errors.Is(err, ErrInvalidSample) {
			t.logger.Warn("skipping trace record", "file", t.name, "err", err)
			continue
		}
		if err != nil {
			return samples, fmt.Errorf("read trace %q: %w", t.name, err)
		}
		samples = append(samples, s)
	}
}

// next returns the next sample, skipping the header.
func (t *TailFeed) next() (Sample, error) {
	for {
		rec, err := t.records.Read()
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return Sample{}, fmt.Errorf("%w: %v", ErrInvalidSample, err)
			}
			return Sample{}, err
		}
		s, ok, err := parseTraceRecord(rec)
		if err != nil {
			return Sample{}, err
		}
		if ok {
			return s, nil
		}
	}
}

// Start begins delivering records in the background.
func (t *TailFeed) Start(ctx context.Context) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.done != nil {
		return fmt.Errorf("tail feed already started")
	}
	if t.name != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed creating file watcher: %w", err)
		}
		if err := watcher.Add(t.name); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed watching %q: %w", t.name, err)
		}
		t.watcher = watcher
	}
	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	go func() {
		defer close(t.done)
		t.follow(ctx)
	}()
	return nil
}

func (t *TailFeed) follow(ctx context.Context) {
	t.metrics.SetConnected(true)
	t.lifecycle.Emit(LifecycleConnected)
	defer func() {
		t.metrics.SetConnected(false)
		t.lifecycle.Emit(LifecycleDisconnected)
	}()
	for {
		s, err := t.next()
		switch {
		case err == nil:
			t.metrics.ObserveEntry(true)
			t.entries.Emit(s)
			continue
		case errors.Is(err, ErrInvalidSample):
			t.metrics.ObserveEntry(false)
			t.logger.Warn("skipping trace record", "file", t.name, "err", err)
			continue
		case !errors.Is(err, io.EOF):
			t.logger.Error("could not read trace", "file", t.name, "err", err)
			return
		}
		if t.watcher == nil {
			return
		}
		if !t.waitForWrite(ctx) {
			return
		}
	}
}

// waitForWrite blocks until the followed file is written to. It returns
// false once the feed should stop.
func (t *TailFeed) waitForWrite(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-t.watcher.Events:
			if !ok {
				return false
			}
			if ev.Has(fsnotify.Write) {
				return true
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				t.logger.Info("trace file went away", "file", t.name, "op", ev.Op.String())
				return false
			}
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return false
			}
			t.logger.Warn("file watcher error", "file", t.name, "err", err)
		case <-time.After(time.Minute):
			// Poll in case a notification was dropped.
			return true
		}
	}
}

// Close stops following and closes the file.
func (t *TailFeed) Close() error {
	t.lock.Lock()
	cancel, done, watcher := t.cancel, t.done, t.watcher
	t.lock.Unlock()
	var err error
	if cancel != nil {
		cancel()
		<-done
	}
	if watcher != nil {
		err = errors.Join(err, watcher.Close())
	}
	return errors.Join(err, t.file.Close())
}
