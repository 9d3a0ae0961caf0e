// Package halt implements the process-wide HALT flag and the kind-tagged
// error bus every component reports unrecoverable conditions to.
package halt

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Kind classifies a reported error without relying on Go error types,
// matching the taxonomy in spec.md §7.
type Kind string

const (
	KindBrokerTransient Kind = "BROKER_TRANSIENT"
	KindBrokerAuth      Kind = "BROKER_AUTH"
	KindOrderRejection  Kind = "ORDER_REJECTION"
	KindInternal        Kind = "INTERNAL"
	KindDataQuality     Kind = "DATA_QUALITY"
)

// Event is one entry reported to the error bus.
type Event struct {
	Kind      Kind
	Code      string
	Message   string
	Component string
	At        time.Time
}

// State is the current HALT status: whether new entries are rejected and,
// if so, why.
type State struct {
	Halted    bool
	Reason    string
	Component string
	SetAt     time.Time
}

// Bus is the process-wide HALT flag plus a bounded ring of recent error
// events. Existing positions remain managed while HALT is set; only new
// entries are rejected.
type Bus struct {
	mu       sync.RWMutex
	log      zerolog.Logger
	state    State
	events   []Event
	capacity int
}

// NewBus creates a Bus with the given event-ring capacity.
func NewBus(capacity int, log zerolog.Logger) *Bus {
	if capacity <= 0 {
		capacity = 256
	}
	return &Bus{log: log, capacity: capacity}
}

// Halt sets the HALT flag with a cause; it is idempotent — a second Halt
// call while already halted overwrites the recorded reason but does not
// stack.
func (b *Bus) Halt(reason, component string, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = State{Halted: true, Reason: reason, Component: component, SetAt: now}
	b.log.Error().Str("reason", reason).Str("component", component).Msg("halt: HALT set")
}

// Reset clears HALT but does not affect any separate kill-switch a caller
// may maintain (spec.md §4.7: "admin reset clears HALT but not the
// kill-switch").
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = State{}
}

// IsHalted reports the current HALT state.
func (b *Bus) IsHalted() (bool, State) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state.Halted, b.state
}

// Report appends an event to the bus. Broker auth failures and internal
// assertions that are fatal should call Halt as well; Report alone never
// halts.
func (b *Bus) Report(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	if len(b.events) > b.capacity {
		b.events = b.events[len(b.events)-b.capacity:]
	}
	b.log.Warn().Str("kind", string(ev.Kind)).Str("code", ev.Code).Str("component", ev.Component).Msg(ev.Message)
}

// ReportAuthFailure is a convenience wrapper: broker auth/session failures
// MUST set HALT (spec.md §7).
func (b *Bus) ReportAuthFailure(component, message string, now time.Time) {
	b.Report(Event{Kind: KindBrokerAuth, Code: "AUTH_FAILURE", Message: message, Component: component, At: now})
	b.Halt("broker auth/session expired", component, now)
}

// Recent returns a copy of the most recent events, newest last.
func (b *Bus) Recent() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}
