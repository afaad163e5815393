// Package lifecycle implements the forecast run state machine.
package lifecycle

import (
	"fmt"
	"sync"
	"time"

	"github.com/dwsmith1983/forecastd/pkg/types"
)

// Transition table: from -> allowed tos
var validTransitions = map[types.RunStatus][]types.RunStatus{
	types.RunPending:   {types.RunRunning, types.RunFailed, types.RunCancelled},
	types.RunRunning:   {types.RunIngesting, types.RunCompleted, types.RunFailed, types.RunCancelled},
	types.RunIngesting: {types.RunCompleted, types.RunFailed, types.RunCancelled},
	types.RunCompleted: {},
	types.RunFailed:    {},
	types.RunCancelled: {},
}

// CanTransition checks if transitioning from one run status to another is valid.
func CanTransition(from, to types.RunStatus) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates and returns the new status, or an error if the transition is invalid.
func Transition(from, to types.RunStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminal returns true if the status is a terminal (final) state.
func IsTerminal(status types.RunStatus) bool {
	return status == types.RunCompleted || status == types.RunFailed || status == types.RunCancelled
}

// Step is one recorded status change.
type Step struct {
	Status types.RunStatus
	At     time.Time
}

// Tracker follows one run through the state machine.
type Tracker struct {
	mu      sync.Mutex
	status  types.RunStatus
	history []Step
	now     func() time.Time
}

// NewTracker starts a run in PENDING.
func NewTracker() *Tracker {
	t := &Tracker{status: types.RunPending, now: time.Now}
	t.history = []Step{{Status: types.RunPending, At: t.now()}}
	return t
}

// Status returns the current status.
func (t *Tracker) Status() types.RunStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Advance moves the run to status to, rejecting transitions the table forbids.
func (t *Tracker) Advance(to types.RunStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := Transition(t.status, to); err != nil {
		return err
	}
	t.status = to
	t.history = append(t.history, Step{Status: to, At: t.now()})
	return nil
}

// History returns a copy of the recorded steps, oldest first.
func (t *Tracker) History() []Step {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Step(nil), t.history...)
}
