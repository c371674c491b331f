package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leeineian/singularity/internal/logger"
	"github.com/leeineian/singularity/internal/store"
)

// RetryOnErrorDelay is how long a worker waits after a failed run.
const RetryOnErrorDelay = 60 * time.Second

const (
	MsgWorkerStarting = "Starting %s worker (%s)..."
	MsgWorkerStopped  = "Worker %s stopped"
	MsgWorkerFailed   = "Worker %s failed: %v"
	MsgWorkerPanicked = "Worker %s panicked: %v"
)

var (
	ErrAlreadyRunning = errors.New("worker manager already running")
	// ErrWorkerStopped is returned when triggering a worker whose loop has
	// ended, either because it stopped rescheduling itself or because the
	// manager shut down.
	ErrWorkerStopped = errors.New("worker is stopped")
)

// RunRecorder persists finished runs. *store.Store satisfies it.
type RunRecorder interface {
	RecordWorkerRun(ctx context.Context, run store.WorkerRun) error
}

type Options struct {
	// Logger receives failures. Nil disables remote/file reporting.
	Logger     *logger.Logger
	Recorder   RunRecorder
	RetryDelay time.Duration
}

// Status is a point-in-time view of one worker.
type Status struct {
	Name      string
	Kind      Kind
	Runs      int
	Failures  int
	LastRun   time.Time
	LastError string
	NextRun   time.Time
	Running   bool
	Stopped   bool
}

// Summary renders the status as one markdown line, followed by a quoted
// line with the last error when there is one.
func (s Status) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** (%s) runs = %d, failures = %d", s.Name, s.Kind, s.Runs, s.Failures)
	switch {
	case s.Stopped:
		b.WriteString(", stopped")
	case s.Running:
		b.WriteString(", running")
	case !s.NextRun.IsZero():
		fmt.Fprintf(&b, ", next <t:%d:R>", s.NextRun.Unix())
	}
	if s.LastError != "" {
		fmt.Fprintf(&b, "\n> %s", s.LastError)
	}
	return b.String()
}

type state struct {
	status  Status
	trigger chan struct{}
}

// Manager drives the workers of a Registry.
type Manager struct {
	registry   *Registry
	log        *logger.Logger
	recorder   RunRecorder
	retryDelay time.Duration
	now        func() time.Time

	mu      sync.Mutex
	running bool
	states  map[string]*state
}

func NewManager(registry *Registry, opts Options) *Manager {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = RetryOnErrorDelay
	}
	return &Manager{
		registry:   registry,
		log:        opts.Logger,
		recorder:   opts.Recorder,
		retryDelay: opts.RetryDelay,
		now:        time.Now,
		states:     make(map[string]*state),
	}
}

// Run starts one goroutine per registered worker and blocks until ctx is
// cancelled and every worker has returned.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.running = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	g, gctx := errgroup.WithContext(ctx)
	for _, d := range m.registry.List() {
		st := m.state(d, true)
		logger.LogWorker(MsgWorkerStarting, d.Name, d.Kind)
		g.Go(func() error {
			metricActive.Inc()
			defer metricActive.Dec()
			m.loop(gctx, d, st)
			return nil
		})
	}
	return g.Wait()
}

// state returns the bookkeeping for d, creating it on first use. reset
// marks the worker as scheduled again.
func (m *Manager) state(d Descriptor, reset bool) *state {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[d.Name]
	if !ok {
		st = &state{trigger: make(chan struct{}, 1)}
		m.states[d.Name] = st
	}
	st.status.Name = d.Name
	st.status.Kind = d.Kind
	if reset {
		st.status.Stopped = false
	}
	return st
}

func (m *Manager) loop(ctx context.Context, d Descriptor, st *state) {
	defer func() {
		m.mu.Lock()
		st.status.Stopped = true
		st.status.NextRun = time.Time{}
		m.mu.Unlock()
		logger.LogWorker(MsgWorkerStopped, d.Name)
	}()

	delay := d.InitialDelay
	for {
		m.mu.Lock()
		st.status.NextRun = m.now().Add(delay)
		m.mu.Unlock()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-st.trigger:
			timer.Stop()
		case <-timer.C:
		}

		next, err := m.execute(ctx, d, st)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			delay = m.retryDelay
		case d.Kind == Periodic:
			delay = d.Frequency
		case next <= 0:
			return
		default:
			delay = next
		}
	}
}

func (m *Manager) execute(ctx context.Context, d Descriptor, st *state) (next time.Duration, err error) {
	started := m.now()

	m.mu.Lock()
	st.status.Running = true
	m.mu.Unlock()

	result := resultOK
	func() {
		defer func() {
			if r := recover(); r != nil {
				result = resultPanic
				err = fmt.Errorf("panic: %v", r)
				m.log.Log(fmt.Sprintf(MsgWorkerPanicked, d.Name, r),
					logger.With("worker", d.Name),
					logger.With("stack", string(debug.Stack())))
			}
		}()
		next, err = d.Run(ctx)
	}()
	if err != nil && result != resultPanic {
		result = resultError
		if ctx.Err() == nil {
			m.log.Log(fmt.Sprintf(MsgWorkerFailed, d.Name, err), logger.With("worker", d.Name))
		}
	}

	elapsed := m.now().Sub(started)
	metricRuns.WithLabelValues(d.Name, result).Inc()
	metricRunDuration.WithLabelValues(d.Name).Observe(elapsed.Seconds())

	m.mu.Lock()
	st.status.Running = false
	st.status.Runs++
	st.status.LastRun = started
	if err != nil {
		st.status.Failures++
		st.status.LastError = err.Error()
	} else {
		st.status.LastError = ""
	}
	m.mu.Unlock()

	if m.recorder != nil {
		run := store.WorkerRun{Worker: d.Name, StartedAt: started, Duration: elapsed}
		if err != nil {
			run.Err = err.Error()
		}
		// The run context may already be cancelled during shutdown.
		recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if recErr := m.recorder.RecordWorkerRun(recCtx, run); recErr != nil {
			logger.LogDatabase("Failed to record run of %s: %v", d.Name, recErr)
		}
		cancel()
	}
	return next, err
}

// Trigger requests an immediate run of the named worker. Repeated triggers
// before the worker wakes up collapse into one run.
func (m *Manager) Trigger(name string) error {
	d, ok := m.registry.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWorker, name)
	}
	st := m.state(d, false)

	m.mu.Lock()
	stopped := st.status.Stopped
	m.mu.Unlock()
	if stopped {
		return fmt.Errorf("%w: %s", ErrWorkerStopped, name)
	}

	select {
	case st.trigger <- struct{}{}:
	default:
	}
	return nil
}

// Snapshot returns the status of every registered worker in registration
// order. Workers that never started report zero values.
func (m *Manager) Snapshot() []Status {
	descs := m.registry.List()

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Status, 0, len(descs))
	for _, d := range descs {
		if st, ok := m.states[d.Name]; ok {
			out = append(out, st.status)
			continue
		}
		out = append(out, Status{Name: d.Name, Kind: d.Kind})
	}
	return out
}
