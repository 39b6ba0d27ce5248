package voice

import (
	"context"
	"errors"
	"time"
)

// SessionConfig is passed to the provider when a session is opened.
type SessionConfig struct {
	AgentID string
}

// SessionClient is the external real-time voice session. Events for the
// session are delivered to the Events value the client was constructed with.
type SessionClient interface {
	StartSession(ctx context.Context, cfg SessionConfig) error
	EndSession(ctx context.Context) error
	// SetVolume sets output volume in [0,1].
	SetVolume(ctx context.Context, volume float64) error
}

// Events is the callback table a SessionClient dispatches to.
type Events interface {
	OnConnect()
	OnDisconnect()
	OnMessage(msg Message)
	OnError(err error)
	OnSpeakingChanged(speaking bool)
}

// Source identifies who produced a message.
type Source string

const (
	SourceUser Source = "user"
	SourceAI   Source = "ai"
)

// Message is a transcript or response observed during a session.
type Message struct {
	Source Source    `json:"source"`
	Text   string    `json:"message"`
	Final  bool      `json:"final"`
	Time   time.Time `json:"time"`
}

// SessionError is an error reported by the provider. Message is surfaced to
// the user verbatim.
type SessionError struct {
	Code    string
	Message string
}

func (e *SessionError) Error() string { return e.Message }

// ErrorMessage extracts the user-facing text of a provider error: the
// structured message when present, otherwise the error string.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var se *SessionError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return err.Error()
}
