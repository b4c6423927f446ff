// Package call models two-party call signaling sessions and their
// lifecycle. Signaling is transient: nothing in this package is persisted
// and all state is lost on process restart.
package call

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"live-hub/domain"
)

type Type string

const (
	TypeAudio Type = "audio"
	TypeVideo Type = "video"
)

type State string

const (
	StateRinging   State = "RINGING"
	StateActive    State = "ACTIVE"
	StateUpgrading State = "UPGRADING"
	StateEnded     State = "ENDED"
	StateRejected  State = "REJECTED"
	StateTimedOut  State = "TIMED_OUT"
)

// allowedTransitions is the full edge set of the signaling lifecycle.
// Accepting a ring goes straight to ACTIVE; UPGRADING covers the window
// between a video upgrade request and its acceptance.
var allowedTransitions = map[State]map[State]struct{}{
	StateRinging: {
		StateActive:   {},
		StateRejected: {},
		StateTimedOut: {},
		StateEnded:    {},
	},
	StateActive: {
		StateUpgrading: {},
		StateEnded:     {},
	},
	StateUpgrading: {
		StateActive: {},
		StateEnded:  {},
	},
	StateEnded:    {},
	StateRejected: {},
	StateTimedOut: {},
}

func (s State) CanTransition(to State) bool {
	_, ok := allowedTransitions[s][to]
	return ok
}

// Terminal reports whether no further signaling event is accepted from s.
func (s State) Terminal() bool {
	return len(allowedTransitions[s]) == 0
}

// ID is the structured form of the wire call id
// "call_<unix millis>_<caller>_<receiver>". It is parsed once when a call
// enters the hub and threaded through the session afterwards, so later
// events never have to re-derive who the other party is.
type ID struct {
	At       time.Time
	Caller   domain.Identity
	Receiver domain.Identity
}

func NewID(caller, receiver domain.Identity) ID {
	return ID{At: time.Now().UTC(), Caller: caller, Receiver: receiver}
}

// ParseID decodes the wire form. The caller segment must not contain
// underscores; the receiver segment is the remainder and may.
func ParseID(raw string) (ID, error) {
	parts := strings.SplitN(raw, "_", 4)
	if len(parts) != 4 || parts[0] != "call" {
		return ID{}, fmt.Errorf("malformed call id %q", raw)
	}
	millis, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return ID{}, fmt.Errorf("malformed call id timestamp %q: %w", parts[1], err)
	}
	if parts[2] == "" || parts[3] == "" {
		return ID{}, fmt.Errorf("call id %q is missing a party", raw)
	}
	return ID{
		At:       time.UnixMilli(millis).UTC(),
		Caller:   domain.Identity(parts[2]),
		Receiver: domain.Identity(parts[3]),
	}, nil
}

func (id ID) String() string {
	return fmt.Sprintf("call_%d_%s_%s", id.At.UnixMilli(), id.Caller, id.Receiver)
}

// Other returns the counterpart of the given party, used to route every
// post-initiate notification.
func (id ID) Other(party domain.Identity) domain.Identity {
	if party == id.Caller {
		return id.Receiver
	}
	return id.Caller
}

// Session is one live signaling session. Exactly one caller, one
// receiver. Mutation goes through the call service which owns the lock.
type Session struct {
	ID    ID
	Type  Type
	State State
	Video bool
}

func NewSession(id ID, callType Type) *Session {
	return &Session{ID: id, Type: callType, State: StateRinging, Video: callType == TypeVideo}
}
