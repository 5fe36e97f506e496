// Package monitor polls the service probe on a fixed interval, debounces
// flapping, and publishes status-change events to subscribers.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"streamhostd/pkg/types"
)

// State is the monitor's lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StatePolling State = "polling"
	StateStopped State = "stopped"
)

// Prober issues one bounded probe. Satisfied by *service.Client.
type Prober interface {
	Probe(ctx context.Context) types.ServiceStatus
}

// Snapshot is a read-only projection of the monitor state.
type Snapshot struct {
	State      State
	LastStatus types.ServiceStatus
	LastSeen   time.Time
	Suspended  bool
}

// Config holds the monitor tunables.
type Config struct {
	Interval time.Duration
	// Consecutive identical probes required before a change publishes.
	// Values below 1 behave as 1 (publish immediately).
	DebounceCount int
}

// Monitor drives the probe and publishes state changes. Two probe cycles
// never overlap: a tick that arrives while a probe is in flight is skipped.
type Monitor struct {
	prober   Prober
	interval time.Duration
	debounce int
	log      zerolog.Logger

	// probeSem serializes probe cycles. Ticker cycles try-acquire and skip
	// when busy; ForceProbe acquires blocking.
	probeSem chan struct{}

	mu             sync.Mutex
	state          State
	lastPublished  types.ServiceStatus
	candidate      types.ServiceStatus
	candidateCount int
	lastSeen       time.Time
	suspendedUntil time.Time
	subs           map[int]chan types.ServiceStatus
	nextSubID      int
	cancel         context.CancelFunc
	done           chan struct{}
}

// New creates a monitor in the idle state.
func New(prober Prober, cfg Config, log zerolog.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.DebounceCount < 1 {
		cfg.DebounceCount = 1
	}
	return &Monitor{
		prober:        prober,
		interval:      cfg.Interval,
		debounce:      cfg.DebounceCount,
		log:           log.With().Str("component", "monitor").Logger(),
		probeSem:      make(chan struct{}, 1),
		state:         StateIdle,
		lastPublished: types.StatusUnknown,
		subs:          make(map[int]chan types.ServiceStatus),
	}
}

// StartPolling begins the recurring probe loop. Calling it while already
// polling is a no-op.
func (m *Monitor) StartPolling() {
	m.mu.Lock()
	if m.state == StatePolling {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.state = StatePolling
	done := m.done
	m.mu.Unlock()

	m.log.Info().Dur("interval", m.interval).Int("debounce", m.debounce).Msg("polling started")
	go m.run(ctx, done)
}

// StopPolling cancels any scheduled probe and stops the loop. An in-flight
// probe is allowed to finish but its result is discarded. Stopping twice,
// or stopping while idle, is a no-op.
func (m *Monitor) StopPolling() {
	m.mu.Lock()
	if m.state != StatePolling {
		m.state = StateStopped
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	done := m.done
	m.state = StateStopped
	m.mu.Unlock()

	cancel()
	<-done
	m.log.Info().Msg("polling stopped")
}

// ForceProbe runs one probe immediately, bypassing the interval. It waits
// for any in-flight cycle to complete first so cycles never overlap. The
// classified status is returned and published through the normal path.
func (m *Monitor) ForceProbe(ctx context.Context) (types.ServiceStatus, error) {
	select {
	case m.probeSem <- struct{}{}:
	case <-ctx.Done():
		return types.StatusUnknown, ctx.Err()
	}
	defer func() { <-m.probeSem }()

	status := m.prober.Probe(ctx)
	m.observe(status, false)
	return status, nil
}

// Subscribe registers a status-change listener. The returned cancel func
// unregisters it; calling cancel more than once is safe.
func (m *Monitor) Subscribe() (<-chan types.ServiceStatus, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSubID
	m.nextSubID++
	ch := make(chan types.ServiceStatus, 8)
	m.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
	return ch, cancel
}

// Suspend suppresses status publishes for d, used after driver changes so
// stale statuses during re-detection are not trusted. Probing continues and
// the last-seen timestamp keeps refreshing.
func (m *Monitor) Suspend(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until := time.Now().Add(d)
	if until.After(m.suspendedUntil) {
		m.suspendedUntil = until
	}
	m.log.Debug().Dur("for", d).Msg("status publishes suspended")
}

// Snapshot returns a read-only view of the monitor state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:      m.state,
		LastStatus: m.lastPublished,
		LastSeen:   m.lastSeen,
		Suspended:  time.Now().Before(m.suspendedUntil),
	}
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case m.probeSem <- struct{}{}:
			default:
				// previous cycle still running, skip this tick
				m.log.Debug().Msg("probe cycle skipped, previous still in flight")
				probesSkipped.Inc()
				continue
			}
			go func() {
				defer func() { <-m.probeSem }()
				status := m.prober.Probe(ctx)
				if ctx.Err() != nil {
					// stopped while in flight, discard
					return
				}
				m.observe(status, true)
			}()
		}
	}
}

// observe records one probe result: refreshes last-seen unconditionally,
// then debounces and publishes on change.
func (m *Monitor) observe(status types.ServiceStatus, fromLoop bool) {
	probesTotal.WithLabelValues(string(status)).Inc()

	m.mu.Lock()
	m.lastSeen = time.Now()

	if fromLoop && m.state != StatePolling {
		m.mu.Unlock()
		return
	}
	if time.Now().Before(m.suspendedUntil) {
		m.mu.Unlock()
		return
	}
	if status == m.lastPublished {
		m.candidate = ""
		m.candidateCount = 0
		m.mu.Unlock()
		return
	}
	if status == m.candidate {
		m.candidateCount++
	} else {
		m.candidate = status
		m.candidateCount = 1
	}
	if m.candidateCount < m.debounce {
		m.mu.Unlock()
		return
	}
	prev := m.lastPublished
	m.lastPublished = status
	m.candidate = ""
	m.candidateCount = 0
	subs := make([]chan types.ServiceStatus, 0, len(m.subs))
	for _, ch := range m.subs {
		subs = append(subs, ch)
	}
	m.mu.Unlock()

	statusChangesTotal.Inc()
	setCurrentStatus(status)
	m.log.Info().Str("from", string(prev)).Str("to", string(status)).Msg("service status changed")
	for _, ch := range subs {
		select {
		case ch <- status:
		default:
			m.log.Warn().Msg("subscriber channel full, dropping status event")
		}
	}
}
