package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"streamhostd/pkg/types"
)

// fakeProber returns scripted statuses, repeating the last one when the
// script is exhausted.
type fakeProber struct {
	mu     sync.Mutex
	script []types.ServiceStatus
	idx    int
	delay  time.Duration

	inFlight    int32
	maxInFlight int32
}

func (f *fakeProber) Probe(ctx context.Context) types.ServiceStatus {
	cur := atomic.AddInt32(&f.inFlight, 1)
	for {
		max := atomic.LoadInt32(&f.maxInFlight)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxInFlight, max, cur) {
			break
		}
	}
	defer atomic.AddInt32(&f.inFlight, -1)

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.script) == 0 {
		return types.StatusUnknown
	}
	s := f.script[f.idx]
	if f.idx < len(f.script)-1 {
		f.idx++
	}
	return s
}

func newTestMonitor(p Prober, cfg Config) *Monitor {
	return New(p, cfg, zerolog.Nop())
}

func TestForceProbePublishesOnChange(t *testing.T) {
	p := &fakeProber{script: []types.ServiceStatus{types.StatusOnline}}
	m := newTestMonitor(p, Config{Interval: time.Hour})
	ch, cancel := m.Subscribe()
	defer cancel()

	got, err := m.ForceProbe(context.Background())
	if err != nil {
		t.Fatalf("force probe: %v", err)
	}
	if got != types.StatusOnline {
		t.Fatalf("expected online, got %s", got)
	}
	select {
	case s := <-ch:
		if s != types.StatusOnline {
			t.Fatalf("expected online event, got %s", s)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a publish event")
	}
}

func TestIdenticalResultsPublishOnce(t *testing.T) {
	p := &fakeProber{script: []types.ServiceStatus{types.StatusOnline}}
	m := newTestMonitor(p, Config{Interval: time.Hour})
	ch, cancel := m.Subscribe()
	defer cancel()

	for i := 0; i < 3; i++ {
		if _, err := m.ForceProbe(context.Background()); err != nil {
			t.Fatalf("force probe: %v", err)
		}
	}
	if got := len(ch); got != 1 {
		t.Fatalf("expected exactly 1 publish, got %d", got)
	}
}

func TestDebounceSuppressesFlap(t *testing.T) {
	p := &fakeProber{script: []types.ServiceStatus{
		types.StatusOnline, types.StatusOnline, // settle online first
		types.StatusOffline, // single flap
		types.StatusOnline, types.StatusOnline,
	}}
	m := newTestMonitor(p, Config{Interval: time.Hour, DebounceCount: 2})
	ch, cancel := m.Subscribe()
	defer cancel()

	for i := 0; i < 5; i++ {
		if _, err := m.ForceProbe(context.Background()); err != nil {
			t.Fatalf("force probe: %v", err)
		}
	}
	// Only the initial unknown->online transition should have published;
	// the lone offline never reached two consecutive observations.
	if got := len(ch); got != 1 {
		t.Fatalf("expected 1 publish, got %d", got)
	}
	if s := <-ch; s != types.StatusOnline {
		t.Fatalf("expected online, got %s", s)
	}
}

func TestDebouncePublishesAfterConsecutive(t *testing.T) {
	p := &fakeProber{script: []types.ServiceStatus{
		types.StatusOnline, types.StatusOnline,
		types.StatusOffline, types.StatusOffline,
	}}
	m := newTestMonitor(p, Config{Interval: time.Hour, DebounceCount: 2})
	ch, cancel := m.Subscribe()
	defer cancel()

	for i := 0; i < 4; i++ {
		if _, err := m.ForceProbe(context.Background()); err != nil {
			t.Fatalf("force probe: %v", err)
		}
	}
	if got := len(ch); got != 2 {
		t.Fatalf("expected 2 publishes, got %d", got)
	}
	if s := <-ch; s != types.StatusOnline {
		t.Fatalf("expected online first, got %s", s)
	}
	if s := <-ch; s != types.StatusOffline {
		t.Fatalf("expected offline second, got %s", s)
	}
}

func TestSuspendSuppressesPublishes(t *testing.T) {
	p := &fakeProber{script: []types.ServiceStatus{types.StatusOnline}}
	m := newTestMonitor(p, Config{Interval: time.Hour})
	ch, cancel := m.Subscribe()
	defer cancel()

	m.Suspend(time.Hour)
	if _, err := m.ForceProbe(context.Background()); err != nil {
		t.Fatalf("force probe: %v", err)
	}
	if got := len(ch); got != 0 {
		t.Fatalf("expected no publishes while suspended, got %d", got)
	}
	snap := m.Snapshot()
	if !snap.Suspended {
		t.Fatal("expected suspended snapshot")
	}
	if snap.LastSeen.IsZero() {
		t.Fatal("expected last-seen refreshed even while suspended")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	p := &fakeProber{script: []types.ServiceStatus{types.StatusOffline}}
	m := newTestMonitor(p, Config{Interval: time.Hour})

	if snap := m.Snapshot(); snap.State != StateIdle {
		t.Fatalf("expected idle, got %s", snap.State)
	}
	// stopping before starting is a no-op
	m.StopPolling()
	if snap := m.Snapshot(); snap.State != StateStopped {
		t.Fatalf("expected stopped, got %s", snap.State)
	}

	m.StartPolling()
	m.StartPolling()
	if snap := m.Snapshot(); snap.State != StatePolling {
		t.Fatalf("expected polling, got %s", snap.State)
	}
	m.StopPolling()
	m.StopPolling()
	if snap := m.Snapshot(); snap.State != StateStopped {
		t.Fatalf("expected stopped, got %s", snap.State)
	}
}

func TestStartStopWithoutTickPublishesNothing(t *testing.T) {
	p := &fakeProber{script: []types.ServiceStatus{types.StatusOnline}}
	m := newTestMonitor(p, Config{Interval: time.Hour})
	ch, cancel := m.Subscribe()
	defer cancel()

	m.StartPolling()
	m.StopPolling()
	if got := len(ch); got != 0 {
		t.Fatalf("expected zero publishes, got %d", got)
	}
}

func TestProbeCyclesNeverOverlap(t *testing.T) {
	p := &fakeProber{
		script: []types.ServiceStatus{types.StatusOnline},
		delay:  30 * time.Millisecond,
	}
	m := newTestMonitor(p, Config{Interval: 5 * time.Millisecond})
	m.StartPolling()
	time.Sleep(150 * time.Millisecond)
	m.StopPolling()

	if max := atomic.LoadInt32(&p.maxInFlight); max > 1 {
		t.Fatalf("expected at most 1 probe in flight, saw %d", max)
	}
}

func TestSubscribeCancelStopsDelivery(t *testing.T) {
	p := &fakeProber{script: []types.ServiceStatus{
		types.StatusOnline, types.StatusOffline,
	}}
	m := newTestMonitor(p, Config{Interval: time.Hour})
	ch, cancel := m.Subscribe()

	if _, err := m.ForceProbe(context.Background()); err != nil {
		t.Fatalf("force probe: %v", err)
	}
	if got := len(ch); got != 1 {
		t.Fatalf("expected 1 event, got %d", got)
	}
	cancel()
	cancel() // safe to call twice
	if _, err := m.ForceProbe(context.Background()); err != nil {
		t.Fatalf("force probe: %v", err)
	}
	if got := len(ch); got != 1 {
		t.Fatalf("expected no delivery after cancel, got %d", got)
	}
}
