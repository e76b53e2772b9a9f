package gating

import (
	"sync"
	"time"
)

// State is the gating state of the trigger.
type State int

const (
	// StateLive means decisions are sent downstream.
	StateLive State = iota
	// StatePaused means triggers were disabled by the operator.
	StatePaused
	// StateDead means the downstream consumer reported busy.
	StateDead

	stateCount
)

// States lists every gating state in reporting order.
var States = []State{StateLive, StatePaused, StateDead}

func (s State) String() string {
	switch s {
	case StateLive:
		return "live"
	case StatePaused:
		return "paused"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Valid reports whether s is one of the three gating states.
func (s State) Valid() bool {
	return s >= StateLive && s < stateCount
}

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time { return time.Now() }

// Times is a consistent view of the time spent in each state.
type Times struct {
	State  State
	Live   time.Duration
	Paused time.Duration
	Dead   time.Duration
}

// Total returns the time covered by the snapshot.
func (t Times) Total() time.Duration {
	return t.Live + t.Paused + t.Dead
}

// Deadtime is the time triggers were suppressed for any reason.
func (t Times) Deadtime() time.Duration {
	return t.Paused + t.Dead
}

// Of returns the duration recorded for state s.
func (t Times) Of(s State) time.Duration {
	switch s {
	case StateLive:
		return t.Live
	case StatePaused:
		return t.Paused
	case StateDead:
		return t.Dead
	default:
		return 0
	}
}

// Gate tracks the current gating state and the cumulative time spent in each state.
// All transitions go through transition, guarded by mu.
type Gate struct {
	mu          sync.Mutex
	clock       Clock
	current     State
	createdAt   time.Time
	enteredAt   time.Time
	accumulated [stateCount]time.Duration
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock overrides the clock used for accounting.
func WithClock(clock Clock) Option {
	return func(g *Gate) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// NewGate creates a gate in the given initial state.
func NewGate(initial State, opts ...Option) (*Gate, error) {
	if !initial.Valid() {
		return nil, ErrInvalidState
	}
	g := &Gate{clock: SystemClock{}, current: initial}
	for _, opt := range opts {
		opt(g)
	}
	now := g.clock.Now()
	g.createdAt = now
	g.enteredAt = now
	return g, nil
}

// Pause moves the gate to Paused.
func (g *Gate) Pause() {
	g.transition(StatePaused)
}

// Resume moves the gate to Live.
func (g *Gate) Resume() {
	g.transition(StateLive)
}

// MarkBusy moves the gate to Dead when busy is true. Clearing busy leaves the
// state untouched; Live is only re-entered through Resume.
func (g *Gate) MarkBusy(busy bool) {
	if !busy {
		return
	}
	g.transition(StateDead)
}

// SetState moves the gate to an arbitrary valid state.
func (g *Gate) SetState(target State) error {
	if !target.Valid() {
		return ErrInvalidState
	}
	g.transition(target)
	return nil
}

func (g *Gate) transition(target State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.clock.Now()
	g.accumulated[g.current] += now.Sub(g.enteredAt)
	g.current = target
	g.enteredAt = now
}

// State returns the current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Elapsed returns the time spent in s, including the open interval when s is current.
func (g *Gate) Elapsed(s State) time.Duration {
	if !s.Valid() {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	elapsed := g.accumulated[s]
	if s == g.current {
		elapsed += g.clock.Now().Sub(g.enteredAt)
	}
	return elapsed
}

// Times returns all three durations computed from a single clock read.
func (g *Gate) Times() Times {
	g.mu.Lock()
	defer g.mu.Unlock()
	acc := g.accumulated
	acc[g.current] += g.clock.Now().Sub(g.enteredAt)
	return Times{
		State:  g.current,
		Live:   acc[StateLive],
		Paused: acc[StatePaused],
		Dead:   acc[StateDead],
	}
}

// CreatedAt returns the time the gate was created.
func (g *Gate) CreatedAt() time.Time {
	return g.createdAt
}
