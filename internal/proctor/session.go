// Package proctor is the violation-detection and session-termination state machine.
//
// A Machine drives one Session: every tick it pulls a frame, runs the identity and
// prohibited-object detectors on it, checks the foreground window, folds the results
// into monotonic violation flags and, on the first qualifying violation, terminates
// the session and writes the audit report.
package proctor

import (
	"time"

	"github.com/andresmejia3/proctor/internal/types"
	"github.com/google/uuid"
)

// Violation enumerates the rule breaches a session tracks.
type Violation int

// Declaration order is the canonical report order.
const (
	MultipleOrUnknownUser Violation = iota
	PhoneDetected
	WindowSwitched
	NoUserDetected
	numViolations
)

// Violations lists every kind in canonical order.
var Violations = [numViolations]Violation{MultipleOrUnknownUser, PhoneDetected, WindowSwitched, NoUserDetected}

var violationNames = [numViolations]string{
	MultipleOrUnknownUser: "Multiple or Unknown User",
	PhoneDetected:         "Phone Detected",
	WindowSwitched:        "Window Switched",
	NoUserDetected:        "No User Detected",
}

func (v Violation) String() string {
	if v < 0 || v >= numViolations {
		return "Unknown Violation"
	}
	return violationNames[v]
}

// Flags is the per-session violation table. Flags can be set but never cleared.
type Flags struct {
	set [numViolations]bool
}

// Set marks v as observed.
func (f *Flags) Set(v Violation) {
	f.set[v] = true
}

// Has reports whether v has been observed in this session.
func (f Flags) Has(v Violation) bool {
	return f.set[v]
}

// Active returns the observed violations in canonical order.
func (f Flags) Active() []Violation {
	var out []Violation
	for _, v := range Violations {
		if f.set[v] {
			out = append(out, v)
		}
	}
	return out
}

// UnknownUser is logged for every unmatched face seen when MultipleOrUnknownUser fires.
type UnknownUser struct {
	Embedding []float64
	Timestamp time.Time
}

// State is the session lifecycle tag.
type State int

const (
	StateMonitoring State = iota
	StateTerminated
)

func (s State) String() string {
	if s == StateTerminated {
		return "TERMINATED"
	}
	return "MONITORING"
}

// Session is the long-lived aggregate owned by a Machine. It is only touched from the
// monitoring loop, so it carries no locks.
type Session struct {
	ID string

	enrolled       []types.Identity
	lastKnownTitle string
	flags          Flags
	unknownUsers   []UnknownUser
	state          State
	cause          Violation
}

// NewSession starts a session in StateMonitoring. enrolled is shared, not copied.
func NewSession(enrolled []types.Identity) *Session {
	return &Session{ID: uuid.NewString(), enrolled: enrolled, state: StateMonitoring}
}

func (s *Session) State() State { return s.state }

func (s *Session) Flags() Flags { return s.flags }

func (s *Session) LastKnownTitle() string { return s.lastKnownTitle }

func (s *Session) Enrolled() []types.Identity { return s.enrolled }

// Cause is the violation that ended the session. It is meaningless while StateMonitoring.
func (s *Session) Cause() Violation { return s.cause }

// UnknownUsers returns a copy of the unknown-user log, oldest first.
func (s *Session) UnknownUsers() []UnknownUser {
	out := make([]UnknownUser, len(s.unknownUsers))
	copy(out, s.unknownUsers)
	return out
}

func (s *Session) recordUnknown(embedding []float64, at time.Time) {
	s.unknownUsers = append(s.unknownUsers, UnknownUser{Embedding: embedding, Timestamp: at})
}

// observeTitle compares the current title with the remembered one and keeps the session in sync.
func (s *Session) observeTitle(current string) (types.FocusEvent, bool) {
	if current == s.lastKnownTitle {
		return types.FocusEvent{}, false
	}
	ev := types.FocusEvent{Previous: s.lastKnownTitle, Current: current}
	s.lastKnownTitle = current
	return ev, true
}

// terminate moves the session to its absorbing state. Only the first call has any effect.
func (s *Session) terminate(cause Violation) bool {
	if s.state == StateTerminated {
		return false
	}
	s.state = StateTerminated
	s.cause = cause
	return true
}
