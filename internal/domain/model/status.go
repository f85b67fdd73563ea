package model

import "fmt"

// Status is a session lifecycle state. Transitions are validated centrally
// through the transition table below; operations never flip the field
// directly.
type Status string

// Session lifecycle states.
const (
	StatusCreated   Status = "created"
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusSettling  Status = "settling"
	StatusSettled   Status = "settled"
	StatusCancelled Status = "cancelled"
)

// transitions is the authoritative state machine. Free sessions go
// created -> active -> completed. Staked sessions go
// created -> waiting -> active -> settling -> settled, with
// waiting -> cancelled on join-deadline expiry.
var transitions = map[Status][]Status{
	StatusCreated:  {StatusWaiting, StatusActive},
	StatusWaiting:  {StatusActive, StatusCancelled},
	StatusActive:   {StatusCompleted, StatusSettling},
	StatusSettling: {StatusSettled},
}

// CanTransition reports whether moving from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Transition validates and applies a status change on the session.
func (s *Session) Transition(next Status) error {
	if !s.Status.CanTransition(next) {
		return fmt.Errorf("transition %s -> %s: %w", s.Status, next, ErrInvalidState)
	}
	s.Status = next
	return nil
}
