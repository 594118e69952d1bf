package feed

import (
	"errors"
	"fmt"
)

// ErrIllegalTransition is returned when a state change is not in the table.
var ErrIllegalTransition = errors.New("illegal state transition")

// ConnState is the connection lifecycle state of a session.
type ConnState int

const (
	StateIdle ConnState = iota
	StateConnecting
	StateLive
	StateBackoff
	StateClosed
)

var stateNames = [...]string{
	StateIdle:       "idle",
	StateConnecting: "connecting",
	StateLive:       "live",
	StateBackoff:    "backoff",
	StateClosed:     "closed",
}

func (s ConnState) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state name, for status endpoints and logs.
func (s ConnState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// transitions lists the allowed targets for each state. Closed is terminal.
var transitions = map[ConnState][]ConnState{
	StateIdle:       {StateConnecting, StateClosed},
	StateConnecting: {StateLive, StateBackoff, StateClosed},
	StateLive:       {StateBackoff, StateClosed},
	StateBackoff:    {StateConnecting, StateClosed},
	StateClosed:     nil,
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to ConnState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AcceptsMessages reports whether frames may be applied in this state.
func (s ConnState) AcceptsMessages() bool {
	return s == StateConnecting || s == StateLive
}
