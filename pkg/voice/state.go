package voice

import (
	"encoding/json"
	"time"
)

// ConnectionState is the lifecycle state of a voice session.
type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s ConnectionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *ConnectionState) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	switch name {
	case "connecting":
		*s = StateConnecting
	case "connected":
		*s = StateConnected
	case "disconnecting":
		*s = StateDisconnecting
	case "error":
		*s = StateError
	default:
		*s = StateIdle
	}
	return nil
}

var validTransitions = map[ConnectionState][]ConnectionState{
	StateIdle:          {StateConnecting, StateError},
	StateConnecting:    {StateConnected, StateError, StateIdle},
	StateConnected:     {StateDisconnecting, StateError, StateIdle},
	StateDisconnecting: {StateIdle, StateError},
	StateError:         {StateConnecting, StateConnected, StateDisconnecting, StateIdle},
}

// CanTransition reports whether from -> to is an edge of the session lifecycle.
func CanTransition(from, to ConnectionState) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError represents an invalid state transition attempt.
type InvalidTransitionError struct {
	From ConnectionState
	To   ConnectionState
}

func (e *InvalidTransitionError) Error() string {
	return "invalid state transition from " + e.From.String() + " to " + e.To.String()
}

// Snapshot is the observable state of one conversation session.
type Snapshot struct {
	SessionID      string          `json:"session_id,omitempty"`
	AgentID        string          `json:"agent_id,omitempty"`
	State          ConnectionState `json:"state"`
	Speaking       bool            `json:"speaking"`
	Muted          bool            `json:"muted"`
	MicPermission  bool            `json:"mic_permission"`
	LastError      string          `json:"last_error,omitempty"`
	ActionInFlight bool            `json:"action_in_flight"`
	// SessionOpen is true from Start until the provider session is gone.
	SessionOpen bool      `json:"session_open"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Connected reports whether the session is live and talking.
func (s Snapshot) Connected() bool { return s.State == StateConnected }

// StateChange is delivered to listeners after every snapshot mutation.
// From and To are equal when only a field other than State changed.
type StateChange struct {
	From     ConnectionState
	To       ConnectionState
	Reason   string
	Snapshot Snapshot
}

// Listener observes controller changes. Calls are made outside the
// controller lock and in mutation order.
type Listener interface {
	OnStateChange(change StateChange)
}

// MessageListener is an optional Listener extension that also receives
// messages observed during a session.
type MessageListener interface {
	OnSessionMessage(sessionID string, msg Message)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(change StateChange)

func (f ListenerFunc) OnStateChange(change StateChange) { f(change) }
