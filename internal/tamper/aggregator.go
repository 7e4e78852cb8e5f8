package tamper

import (
	"github.com/google/uuid"

	"github.com/technosupport/ts-aegis/internal/detect"
)

// Per-kind lifecycle: idle -> arming -> active -> cooling -> idle.
type phase int

const (
	phaseIdle phase = iota
	phaseArming
	phaseActive
	phaseCooling
)

const (
	// DefaultSustainSecs is how long a detector must stay continuously
	// tripped before an incident opens.
	DefaultSustainSecs = 2.0

	// FastRepositionSustainSecs shortens the window for the reposition
	// fast path; a 25 px jerk should not wait two seconds to alert.
	FastRepositionSustainSecs = 1.0

	// GroupingWindowSecs is the cooling window: a re-trip of the same
	// kind inside it reopens the incident instead of creating a new one.
	GroupingWindowSecs = 5.0

	// RetainedIncidents caps the in-memory recent list. Persistence
	// keeps the full history.
	RetainedIncidents = 5
)

type kindState struct {
	phase      phase
	armStart   float64
	lastActive float64
	incident   *Incident
	fastPath   bool
}

// Aggregator maintains one state machine per detector kind. Single
// caller: the pipeline thread. Wall-time deltas all derive from the
// frame clock passed to Observe.
type Aggregator struct {
	states map[detect.Kind]*kindState
	recent []Incident
}

func NewAggregator() *Aggregator {
	return &Aggregator{states: make(map[detect.Kind]*kindState)}
}

// Observe advances the state machine for one signal at frame time now
// and returns any transitions to emit. At most one active incident per
// kind exists at any time.
func (a *Aggregator) Observe(sig detect.Signal, now float64) []Transition {
	st, ok := a.states[sig.Kind]
	if !ok {
		st = &kindState{}
		a.states[sig.Kind] = st
	}

	var out []Transition

	switch st.phase {
	case phaseIdle:
		if sig.Tripped {
			st.phase = phaseArming
			st.armStart = now
			st.fastPath = subtypeOf(sig) == "fast"
		}

	case phaseArming:
		if !sig.Tripped {
			st.phase = phaseIdle
			break
		}
		if subtypeOf(sig) == "fast" {
			st.fastPath = true
		}
		if now-st.armStart >= a.sustain(st) {
			out = append(out, a.open(st, sig, now))
		}

	case phaseActive:
		if sig.Tripped {
			st.incident.LastSeen = now
			st.incident.Description = describe(sig)
			st.lastActive = now
			out = append(out, Transition{Type: IncidentUpdated, Incident: *st.incident, TS: now})
		} else {
			st.phase = phaseCooling
		}

	case phaseCooling:
		switch {
		case sig.Tripped && now-st.lastActive <= GroupingWindowSecs:
			st.phase = phaseActive
			st.incident.Count++
			st.incident.LastSeen = now
			st.lastActive = now
			out = append(out, Transition{Type: IncidentReopened, Incident: *st.incident, TS: now})
		case now-st.lastActive > GroupingWindowSecs:
			closed := *st.incident
			st.incident = nil
			st.phase = phaseIdle
			out = append(out, Transition{Type: IncidentClosed, Incident: closed, TS: now})
			// The same frame may carry a fresh trip: start arming anew.
			if sig.Tripped {
				st.phase = phaseArming
				st.armStart = now
				st.fastPath = subtypeOf(sig) == "fast"
			}
		}
	}

	return out
}

func (a *Aggregator) sustain(st *kindState) float64 {
	if st.fastPath {
		return FastRepositionSustainSecs
	}
	return DefaultSustainSecs
}

func (a *Aggregator) open(st *kindState, sig detect.Signal, now float64) Transition {
	inc := &Incident{
		ID:          uuid.New(),
		Kind:        sig.Kind,
		Subtype:     subtypeOf(sig),
		FirstSeen:   st.armStart,
		LastSeen:    now,
		Count:       1,
		Description: describe(sig),
	}
	st.incident = inc
	st.phase = phaseActive
	st.lastActive = now

	a.retain(*inc)
	return Transition{Type: IncidentOpened, Incident: *inc, TS: now}
}

func (a *Aggregator) retain(inc Incident) {
	a.recent = append(a.recent, inc)
	if len(a.recent) > RetainedIncidents {
		a.recent = a.recent[len(a.recent)-RetainedIncidents:]
	}
}

// Recent returns the retained incident snapshots, newest last.
func (a *Aggregator) Recent() []Incident {
	out := make([]Incident, len(a.recent))
	copy(out, a.recent)
	return out
}

// Active reports the open incident for a kind, or nil.
func (a *Aggregator) Active(kind detect.Kind) *Incident {
	st, ok := a.states[kind]
	if !ok || st.incident == nil {
		return nil
	}
	cp := *st.incident
	return &cp
}

// Dismiss force-closes a kind and returns it to idle, emitting a closed
// transition if an incident was open. Used by the operator acknowledge
// path for reposition alerts.
func (a *Aggregator) Dismiss(kind detect.Kind, now float64) []Transition {
	st, ok := a.states[kind]
	if !ok {
		return nil
	}
	var out []Transition
	if st.incident != nil {
		closed := *st.incident
		out = append(out, Transition{Type: IncidentClosed, Incident: closed, TS: now})
	}
	*st = kindState{}
	return out
}
