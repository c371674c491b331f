package logger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRecordsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "singularity",
		Subsystem: "log",
		Name:      "records_dropped_total",
		Help:      "Log records dropped because a sink queue was full or the hub was closed.",
	}, []string{"sink"})
	metricSinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "singularity",
		Subsystem: "log",
		Name:      "sink_errors_total",
		Help:      "Failed writes per log sink.",
	}, []string{"sink"})
)

// Sink receives records from one of the hub's delivery goroutines.
type Sink interface {
	Write(ctx context.Context, r Record) error
}

type delivery struct {
	record  Record
	flushed chan struct{}
}

// lane delivers to one sink on its own goroutine. A slow sink only fills
// its own queue.
type lane struct {
	name  string
	sink  func() Sink
	queue chan delivery
	done  chan struct{}
	log   *slog.Logger
}

func newLane(name string, size int, sink func() Sink, log *slog.Logger) *lane {
	l := &lane{
		name:  name,
		sink:  sink,
		queue: make(chan delivery, size),
		done:  make(chan struct{}),
		log:   log,
	}
	go l.run()
	return l
}

func (l *lane) run() {
	defer close(l.done)
	for d := range l.queue {
		if d.flushed != nil {
			close(d.flushed)
			continue
		}
		s := l.sink()
		if s == nil {
			continue
		}
		if err := s.Write(context.Background(), d.record); err != nil {
			metricSinkErrors.WithLabelValues(l.name).Inc()
			l.log.Error("Error while logging to "+l.name, slog.String("error", err.Error()))
		}
	}
}

func (l *lane) offer(r Record) {
	select {
	case l.queue <- delivery{record: r}:
	default:
		metricRecordsDropped.WithLabelValues(l.name).Inc()
	}
}

// Hub fans records out to the console, the recent-records ring, the daily
// file and the remote channel. The file and the remote channel each have
// their own queue and goroutine so callers never block on I/O.
type Hub struct {
	console *slog.Logger
	ring    *RingSink
	now     func() time.Time

	sinkMu sync.RWMutex
	file   Sink
	remote Sink

	mu         sync.RWMutex
	closed     bool
	fileLane   *lane
	remoteLane *lane
}

type HubOptions struct {
	Console   *slog.Logger
	File      Sink
	Remote    Sink
	QueueSize int
	RingSize  int
}

func NewHub(opts HubOptions) *Hub {
	if opts.Console == nil {
		opts.Console = slog.Default()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.RingSize <= 0 {
		opts.RingSize = 100
	}
	h := &Hub{
		console: opts.Console,
		ring:    NewRingSink(opts.RingSize),
		now:     time.Now,
		file:    opts.File,
		remote:  opts.Remote,
	}
	h.fileLane = newLane("file", opts.QueueSize, h.fileSink, opts.Console)
	h.remoteLane = newLane("channel", opts.QueueSize, h.remoteSink, opts.Console)
	return h
}

// SetRemote attaches the remote sink once the platform client exists.
func (h *Hub) SetRemote(s Sink) {
	h.sinkMu.Lock()
	h.remote = s
	h.sinkMu.Unlock()
}

func (h *Hub) fileSink() Sink {
	h.sinkMu.RLock()
	defer h.sinkMu.RUnlock()
	return h.file
}

func (h *Hub) remoteSink() Sink {
	h.sinkMu.RLock()
	defer h.sinkMu.RUnlock()
	return h.remote
}

// RecentOfType returns the kept records of type t, oldest first.
func (h *Hub) RecentOfType(t Type) []Record { return h.ring.Filter(t) }

func (h *Hub) emit(r Record, toFile, toRemote bool) {
	if r.Time.IsZero() {
		r.Time = h.now()
	}

	h.logConsole(r)
	_ = h.ring.Write(context.Background(), r)

	if !toFile && !toRemote {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		metricRecordsDropped.WithLabelValues("closed").Inc()
		return
	}
	if toFile {
		h.fileLane.offer(r)
	}
	if toRemote {
		h.remoteLane.offer(r)
	}
}

func (h *Hub) logConsole(r Record) {
	attrs := make([]any, 0, len(r.Extras)+2)
	attrs = append(attrs, slog.String("log_type", string(r.Type)))
	if r.Component != "" {
		attrs = append(attrs, slog.String("component", r.Component))
	}
	for _, e := range r.Extras {
		if e.Key == "component" {
			continue
		}
		attrs = append(attrs, slog.Any(e.Key, e.Value))
	}
	h.console.Log(context.Background(), levelFor(r.Type), r.Message, attrs...)
}

func levelFor(t Type) slog.Level {
	switch t {
	case TypeError:
		return slog.LevelError
	case TypeWarning, TypeMinorWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// Flush blocks until everything queued before the call has been delivered
// or ctx is done.
func (h *Hub) Flush(ctx context.Context) error {
	markers := make([]chan struct{}, 0, 2)

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return nil
	}
	for _, l := range []*lane{h.fileLane, h.remoteLane} {
		marker := make(chan struct{})
		select {
		case l.queue <- delivery{flushed: marker}:
			markers = append(markers, marker)
		case <-ctx.Done():
			h.mu.RUnlock()
			return ctx.Err()
		}
	}
	h.mu.RUnlock()

	for _, marker := range markers {
		select {
		case <-marker:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close stops accepting records and waits for both queues to drain.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.fileLane.queue)
		close(h.remoteLane.queue)
	}
	h.mu.Unlock()

	for _, l := range []*lane{h.fileLane, h.remoteLane} {
		select {
		case <-l.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if c, ok := h.fileSink().(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
