package api

import (
	"sync"
	"time"

	"github.com/yok-tottii/EzS2T-Realtime/internal/turn"
)

// Status tracks what the turn loop is doing for the status endpoint and the tray
type Status struct {
	mu sync.RWMutex

	mode        string
	phase       turn.Phase
	turns       int
	outcomes    map[string]int
	lastOutcome string
	lastError   string
	lastInput   string
	lastTurnAt  time.Time
	retriesLeft int
	startedAt   time.Time

	listeners []func(Snapshot)
}

// Snapshot is a point-in-time copy of Status
type Snapshot struct {
	Mode        string         `json:"mode"`
	Phase       string         `json:"phase"`
	Busy        bool           `json:"busy"`
	Turns       int            `json:"turns"`
	Outcomes    map[string]int `json:"outcomes"`
	LastOutcome string         `json:"last_outcome,omitempty"`
	LastError   string         `json:"last_error,omitempty"`
	LastInput   string         `json:"last_input,omitempty"`
	LastTurnAt  *time.Time     `json:"last_turn_at,omitempty"`
	RetriesLeft int            `json:"retries_left"`
	Uptime      string         `json:"uptime"`

	phase turn.Phase
}

// PhaseValue returns the phase as a turn.Phase
func (s Snapshot) PhaseValue() turn.Phase {
	return s.phase
}

// NewStatus creates a tracker for a loop running mode with the given retry budget
func NewStatus(mode string, retries int) *Status {
	return &Status{
		mode:        mode,
		phase:       turn.PhaseIdle,
		outcomes:    make(map[string]int),
		retriesLeft: retries,
		startedAt:   time.Now(),
	}
}

// Subscribe registers fn for every change. fn runs on the updating goroutine.
func (s *Status) Subscribe(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// SetPhase records a phase transition
func (s *Status) SetPhase(p turn.Phase) {
	s.update(func() { s.phase = p })
}

// RecordTurn records a finished turn
func (s *Status) RecordTurn(r turn.Report) {
	s.update(func() {
		s.turns++
		s.outcomes[r.Outcome]++
		s.lastOutcome = r.Outcome
		s.lastInput = r.Input
		s.lastTurnAt = time.Now()
		s.lastError = ""
		if r.Err != nil {
			s.lastError = r.Err.Error()
		}
	})
}

// SetRetriesLeft records the remaining transport retry budget
func (s *Status) SetRetriesLeft(n int) {
	s.update(func() { s.retriesLeft = n })
}

func (s *Status) update(fn func()) {
	s.mu.Lock()
	fn()
	snap := s.snapshotLocked()
	listeners := append([]func(Snapshot){}, s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}

// Snapshot returns the current state
func (s *Status) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Status) snapshotLocked() Snapshot {
	outcomes := make(map[string]int, len(s.outcomes))
	for k, v := range s.outcomes {
		outcomes[k] = v
	}

	snap := Snapshot{
		Mode:        s.mode,
		Phase:       s.phase.String(),
		Busy:        s.phase.Busy(),
		Turns:       s.turns,
		Outcomes:    outcomes,
		LastOutcome: s.lastOutcome,
		LastError:   s.lastError,
		LastInput:   s.lastInput,
		RetriesLeft: s.retriesLeft,
		Uptime:      time.Since(s.startedAt).Truncate(time.Second).String(),
		phase:       s.phase,
	}
	if !s.lastTurnAt.IsZero() {
		at := s.lastTurnAt
		snap.LastTurnAt = &at
	}
	return snap
}
