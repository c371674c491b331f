package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leeineian/singularity/internal/store"
)

func noop(context.Context) (time.Duration, error) { return 0, nil }

func TestRegistryRegister(t *testing.T) {
	tests := []struct {
		name    string
		desc    Descriptor
		wantErr error
	}{
		{"periodic", Descriptor{Name: "a", Kind: Periodic, Frequency: time.Second, Run: noop}, nil},
		{"self scheduling", Descriptor{Name: "b", Kind: SelfScheduling, Run: noop}, nil},
		{"empty name", Descriptor{Kind: SelfScheduling, Run: noop}, ErrInvalidWorker},
		{"no run", Descriptor{Name: "c", Kind: SelfScheduling}, ErrInvalidWorker},
		{"periodic without frequency", Descriptor{Name: "d", Kind: Periodic, Run: noop}, ErrInvalidWorker},
		{"negative delay", Descriptor{Name: "e", Kind: SelfScheduling, InitialDelay: -time.Second, Run: noop}, ErrInvalidWorker},
		{"unknown kind", Descriptor{Name: "f", Kind: Kind(7), Run: noop}, ErrInvalidWorker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRegistry().Register(tt.desc)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRegistryOrderAndDuplicates(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, r.Register(Descriptor{Name: name, Kind: SelfScheduling, Run: noop}))
	}
	assert.ErrorIs(t, r.Register(Descriptor{Name: "alpha", Kind: SelfScheduling, Run: noop}), ErrDuplicateWorker)

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, r.Names())
	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, "zeta", list[0].Name)

	_, ok := r.Get("missing")
	assert.False(t, ok)
}

type fakeRecorder struct {
	mu   sync.Mutex
	runs []store.WorkerRun
}

func (f *fakeRecorder) RecordWorkerRun(_ context.Context, run store.WorkerRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

func startManager(t *testing.T, r *Registry, opts Options) (*Manager, context.CancelFunc, <-chan error) {
	t.Helper()
	m := NewManager(r, opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	t.Cleanup(cancel)
	return m, cancel, done
}

func TestManagerPeriodic(t *testing.T) {
	var calls atomic.Int32
	r := NewRegistry()
	require.NoError(t, r.Register(Descriptor{
		Name:      "tick",
		Kind:      Periodic,
		Frequency: 5 * time.Millisecond,
		Run: func(context.Context) (time.Duration, error) {
			calls.Add(1)
			return 0, nil
		},
	}))

	rec := &fakeRecorder{}
	_, cancel, done := startManager(t, r, Options{Recorder: rec})

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.GreaterOrEqual(t, rec.count(), 3)
}

func TestManagerSelfSchedulingStops(t *testing.T) {
	var calls atomic.Int32
	r := NewRegistry()
	require.NoError(t, r.Register(Descriptor{
		Name: "countdown",
		Kind: SelfScheduling,
		Run: func(context.Context) (time.Duration, error) {
			if calls.Add(1) >= 2 {
				return 0, nil
			}
			return time.Millisecond, nil
		},
	}))

	m := NewManager(r, Options{})
	require.NoError(t, m.Run(context.Background()))

	assert.Equal(t, int32(2), calls.Load())
	snap := m.Snapshot()
	require.Len(t, snap, 1)
	assert.True(t, snap[0].Stopped)
	assert.Equal(t, 2, snap[0].Runs)

	err := m.Trigger("countdown")
	require.ErrorIs(t, err, ErrWorkerStopped)
	assert.Equal(t, 2, m.Snapshot()[0].Runs)
}

func TestManagerRetriesAfterErrorAndPanic(t *testing.T) {
	var calls atomic.Int32
	r := NewRegistry()
	require.NoError(t, r.Register(Descriptor{
		Name: "flaky",
		Kind: SelfScheduling,
		Run: func(context.Context) (time.Duration, error) {
			switch calls.Add(1) {
			case 1:
				return 0, errors.New("boom")
			case 2:
				panic("kaboom")
			default:
				return 0, nil
			}
		},
	}))

	rec := &fakeRecorder{}
	m := NewManager(r, Options{Recorder: rec, RetryDelay: time.Millisecond})
	require.NoError(t, m.Run(context.Background()))

	assert.Equal(t, int32(3), calls.Load())
	snap := m.Snapshot()[0]
	assert.Equal(t, 3, snap.Runs)
	assert.Equal(t, 2, snap.Failures)
	assert.Empty(t, snap.LastError)

	require.Len(t, rec.runs, 3)
	assert.Equal(t, "boom", rec.runs[0].Err)
	assert.Equal(t, "panic: kaboom", rec.runs[1].Err)
}

func TestManagerTrigger(t *testing.T) {
	ran := make(chan struct{}, 1)
	r := NewRegistry()
	require.NoError(t, r.Register(Descriptor{
		Name:         "slow",
		Kind:         Periodic,
		Frequency:    time.Hour,
		InitialDelay: time.Hour,
		Run: func(context.Context) (time.Duration, error) {
			ran <- struct{}{}
			return 0, nil
		},
	}))

	m, cancel, done := startManager(t, r, Options{})
	assert.ErrorIs(t, m.Trigger("nope"), ErrUnknownWorker)

	require.NoError(t, m.Trigger("slow"))
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("triggered worker did not run")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestManagerRunTwice(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Descriptor{Name: "idle", Kind: Periodic, Frequency: time.Hour, InitialDelay: time.Hour, Run: noop}))

	m, cancel, done := startManager(t, r, Options{})
	assert.Eventually(t, func() bool {
		return !m.Snapshot()[0].NextRun.IsZero()
	}, time.Second, time.Millisecond)
	assert.ErrorIs(t, m.Run(context.Background()), ErrAlreadyRunning)

	cancel()
	require.NoError(t, <-done)
}

func TestSnapshotBeforeRun(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Descriptor{Name: "later", Kind: SelfScheduling, Run: noop}))

	snap := NewManager(r, Options{}).Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, Status{Name: "later", Kind: SelfScheduling}, snap[0])
}

type fakePresence struct {
	texts []string
	err   error
}

func (f *fakePresence) SetStatus(_ context.Context, text string) error {
	if f.err != nil {
		return f.err
	}
	f.texts = append(f.texts, text)
	return nil
}

type fixedLatency time.Duration

func (l fixedLatency) Latency() time.Duration { return time.Duration(l) }

func TestPresenceWorker(t *testing.T) {
	p := &fakePresence{}
	d := Presence(p, fixedLatency(42*time.Millisecond), time.Now())
	assert.Equal(t, SelfScheduling, d.Kind)

	for range 5 {
		next, err := d.Run(context.Background())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, next, 15*time.Second)
		assert.LessOrEqual(t, next, 60*time.Second)
	}
	for i := 1; i < len(p.texts); i++ {
		assert.NotEqual(t, p.texts[i-1], p.texts[i])
	}

	p.err = errors.New("gateway closed")
	_, err := d.Run(context.Background())
	assert.Error(t, err)
}

func TestPickStatus(t *testing.T) {
	assert.Equal(t, "only", pickStatus([]string{"only"}, "only"))
	assert.Equal(t, "b", pickStatus([]string{"a", "b"}, "a"))
}

func TestUptimeStatus(t *testing.T) {
	assert.Equal(t, "Uptime: 26h 3m 4s", uptimeStatus(26*time.Hour+3*time.Minute+4*time.Second))
}

type fakeFiles struct {
	keep int
	err  error
}

func (f *fakeFiles) Prune(_ time.Time, keep int) (int, error) {
	f.keep = keep
	return 2, f.err
}

type fakeRuns struct{ cutoff time.Time }

func (f *fakeRuns) PruneWorkerRuns(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 1, nil
}

func TestLogRetentionWorker(t *testing.T) {
	files, runs := &fakeFiles{}, &fakeRuns{}
	d := LogRetention(files, runs, 14)
	assert.Equal(t, Periodic, d.Kind)

	_, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 14, files.keep)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -14), runs.cutoff, time.Minute)

	files.err = errors.New("permission denied")
	_, err = d.Run(context.Background())
	assert.ErrorContains(t, err, "prune log files")

	_, err = LogRetention(nil, nil, 1).Run(context.Background())
	assert.NoError(t, err)
}

func TestGatewayLatencyWorker(t *testing.T) {
	d := GatewayLatency(fixedLatency(time.Second))
	require.NoError(t, NewRegistry().Register(d))
	_, err := d.Run(context.Background())
	assert.NoError(t, err)
}
