// Package voice implements the session lifecycle controller for a real-time
// voice conversation: it gates the session on microphone permission, opens and
// closes the provider session, toggles output mute, and folds provider events
// into an observable Snapshot.
package voice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harunnryd/synapchat/pkg/errorsx"
	"github.com/harunnryd/synapchat/pkg/logging"
	"github.com/harunnryd/synapchat/pkg/metrics"
	"github.com/harunnryd/synapchat/pkg/notify"
	"github.com/harunnryd/synapchat/pkg/redact"
)

// Config configures a Controller.
type Config struct {
	// AgentID is forwarded to the provider on every Start. It is not
	// validated locally; a bad value surfaces as a start failure.
	AgentID string

	Logger   *slog.Logger
	Notifier notify.Notifier
	Observer metrics.Observer

	// Now and NewSessionID are overridable for tests.
	Now          func() time.Time
	NewSessionID func() string
}

// ClientFactory builds the provider session bound to the controller's events.
type ClientFactory func(events Events) SessionClient

// Controller owns one conversation session. It is safe for concurrent use;
// provider callbacks may arrive on any goroutine.
type Controller struct {
	cfg    Config
	log    *slog.Logger
	client SessionClient

	mu             sync.Mutex
	snap           Snapshot
	closed         bool
	connectStarted time.Time
	listeners      []Listener
	pending        []StateChange

	// deliverMu keeps listener delivery in mutation order.
	deliverMu sync.Mutex
}

// New creates a controller in the Idle state without microphone permission.
func New(cfg Config, factory ClientFactory) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Noop{}
	}
	if cfg.Observer == nil {
		cfg.Observer = metrics.NoopObserver{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewSessionID == nil {
		cfg.NewSessionID = uuid.NewString
	}
	c := &Controller{
		cfg: cfg,
		log: logging.NewComponentLogger(cfg.Logger, "voice.controller"),
	}
	c.snap = Snapshot{State: StateIdle, AgentID: cfg.AgentID, UpdatedAt: cfg.Now()}
	c.client = factory(c)
	return c
}

// Subscribe registers a listener for every subsequent change.
func (c *Controller) Subscribe(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Snapshot returns the current observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// SetMicPermission records the result of the one-time microphone request.
// A grant is permanent; a denial records the user-facing error.
func (c *Controller) SetMicPermission(granted bool) {
	c.mu.Lock()
	if c.snap.MicPermission {
		c.mu.Unlock()
		return
	}
	if granted {
		c.snap.MicPermission = true
		c.touchLocked("mic permission granted")
	} else {
		c.snap.LastError = errorsx.UserMessage(errorsx.ReasonMicDenied)
		c.touchLocked("mic permission denied")
	}
	c.mu.Unlock()
	c.flush()

	metrics.Record(c.cfg.Observer, metrics.EventPermission, boolValue(granted), nil)
	if !granted {
		c.log.Warn("mic_permission_denied")
	}
}

// Start opens a provider session. It is a no-op returning
// ErrPermissionRequired until microphone access has been granted.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if err := c.guardLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if !c.snap.MicPermission {
		c.mu.Unlock()
		return ErrPermissionRequired
	}
	if c.snap.SessionOpen || (c.snap.State != StateIdle && c.snap.State != StateError) {
		state := c.snap.State
		c.mu.Unlock()
		return fmt.Errorf("start from %s: %w", state, ErrInvalidState)
	}
	c.snap.ActionInFlight = true
	c.snap.SessionID = c.cfg.NewSessionID()
	c.snap.AgentID = c.cfg.AgentID
	c.snap.SessionOpen = true
	c.connectStarted = c.cfg.Now()
	c.transitionLocked(StateConnecting, "start requested")
	sessionID := c.snap.SessionID
	c.mu.Unlock()
	c.flush()

	c.log.Info("session_starting",
		slog.String("session_id", sessionID),
		slog.String("agent_id", c.cfg.AgentID))

	err := c.client.StartSession(ctx, SessionConfig{AgentID: c.cfg.AgentID})

	c.mu.Lock()
	c.snap.ActionInFlight = false
	closed := c.closed
	switch {
	case closed:
		c.snap.SessionOpen = false
	case err != nil:
		c.snap.SessionOpen = false
		c.snap.LastError = errorsx.UserMessage(errorsx.ReasonSessionStart)
		c.moveLocked(StateError, "start failed")
	default:
		c.touchLocked("start returned")
	}
	c.mu.Unlock()
	c.flush()

	if closed {
		if err == nil {
			c.abandon(ctx, sessionID)
		}
		return ErrClosed
	}
	if err != nil {
		return c.fail(ctx, "start", errorsx.ReasonSessionStart, sessionID, err)
	}
	return nil
}

// abandon ends a session whose start completed after Close.
func (c *Controller) abandon(ctx context.Context, sessionID string) {
	endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	c.log.Info("session_abandoned", slog.String("session_id", sessionID))
	if err := c.client.EndSession(endCtx); err != nil {
		c.log.Warn("session_abandon_failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
	}

	c.mu.Lock()
	if c.snap.State != StateIdle {
		c.moveLocked(StateIdle, "controller closed")
	}
	c.mu.Unlock()
	c.flush()
}

// End closes the open provider session.
func (c *Controller) End(ctx context.Context) error {
	c.mu.Lock()
	if err := c.guardLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if !c.snap.SessionOpen || (c.snap.State != StateConnected && c.snap.State != StateError) {
		state := c.snap.State
		c.mu.Unlock()
		return fmt.Errorf("end from %s: %w", state, ErrInvalidState)
	}
	c.snap.ActionInFlight = true
	c.transitionLocked(StateDisconnecting, "end requested")
	sessionID := c.snap.SessionID
	c.mu.Unlock()
	c.flush()

	err := c.client.EndSession(ctx)

	c.mu.Lock()
	c.snap.ActionInFlight = false
	if err != nil {
		c.snap.LastError = errorsx.UserMessage(errorsx.ReasonSessionEnd)
		if c.snap.State == StateDisconnecting {
			c.moveLocked(StateError, "end failed")
		} else {
			c.touchLocked("end failed")
		}
	} else {
		c.snap.SessionOpen = false
		if c.snap.State == StateDisconnecting {
			c.snap.LastError = ""
			c.moveLocked(StateIdle, "end completed")
		} else {
			c.touchLocked("end completed")
		}
	}
	c.mu.Unlock()
	c.flush()

	if err != nil {
		return c.fail(ctx, "end", errorsx.ReasonSessionEnd, sessionID, err)
	}
	c.log.Info("session_ended", slog.String("session_id", sessionID))
	return nil
}

// ToggleMute flips output mute on a connected session. Muted is only
// updated after the provider accepted the new volume.
func (c *Controller) ToggleMute(ctx context.Context) error {
	c.mu.Lock()
	if err := c.guardLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.snap.State != StateConnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	target := !c.snap.Muted
	volume := 1.0
	if target {
		volume = 0
	}
	c.snap.ActionInFlight = true
	c.touchLocked("mute requested")
	sessionID := c.snap.SessionID
	c.mu.Unlock()
	c.flush()

	err := c.client.SetVolume(ctx, volume)

	c.mu.Lock()
	c.snap.ActionInFlight = false
	if err != nil {
		c.snap.LastError = errorsx.UserMessage(errorsx.ReasonVolumeChange)
		c.touchLocked("volume change failed")
	} else {
		c.snap.Muted = target
		c.touchLocked("volume changed")
	}
	c.mu.Unlock()
	c.flush()

	if err != nil {
		return c.fail(ctx, "toggle_mute", errorsx.ReasonVolumeChange, sessionID, err)
	}
	c.log.Debug("volume_changed", slog.String("session_id", sessionID), slog.Float64("volume", volume))
	return nil
}

// Close tears down an open session and rejects further actions.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	open := c.snap.SessionOpen
	sessionID := c.snap.SessionID
	c.mu.Unlock()

	if !open {
		return nil
	}
	c.log.Info("session_teardown", slog.String("session_id", sessionID))
	err := c.client.EndSession(ctx)

	c.mu.Lock()
	if err == nil {
		c.snap.SessionOpen = false
		if c.snap.State != StateIdle {
			c.moveLocked(StateIdle, "controller closed")
		}
	}
	c.mu.Unlock()
	c.flush()

	if err != nil {
		return errorsx.Wrap(fmt.Errorf("teardown session %s: %w", sessionID, err), errorsx.ReasonSessionEnd)
	}
	return nil
}

// Drain implements runner.Drainer.
func (c *Controller) Drain() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.Close(ctx)
}

// OnConnect implements Events.
func (c *Controller) OnConnect() {
	c.mu.Lock()
	state := c.snap.State
	switch {
	case state == StateConnecting, state == StateError && c.snap.SessionOpen:
		c.snap.LastError = ""
		c.transitionLocked(StateConnected, "provider connected")
	default:
		c.mu.Unlock()
		c.log.Warn("connect_event_ignored", slog.String("state", state.String()))
		return
	}
	latency := c.cfg.Now().Sub(c.connectStarted)
	sessionID := c.snap.SessionID
	c.mu.Unlock()
	c.flush()

	metrics.Record(c.cfg.Observer, metrics.EventConnectLatency, float64(latency.Milliseconds()), map[string]string{
		metrics.TagSessionID: sessionID,
	})
	c.log.Info("session_connected",
		slog.String("session_id", sessionID),
		slog.Duration("latency", latency))
}

// OnDisconnect implements Events.
func (c *Controller) OnDisconnect() {
	c.mu.Lock()
	c.snap.SessionOpen = false
	from := c.snap.State
	if from == StateIdle {
		c.mu.Unlock()
		return
	}
	if from == StateConnected || from == StateDisconnecting {
		c.snap.LastError = ""
	}
	c.transitionLocked(StateIdle, "provider disconnected")
	sessionID := c.snap.SessionID
	c.mu.Unlock()
	c.flush()

	c.log.Info("session_disconnected",
		slog.String("session_id", sessionID),
		slog.String("from", from.String()))
}

// OnMessage implements Events. Messages are observed only.
func (c *Controller) OnMessage(msg Message) {
	c.mu.Lock()
	sessionID := c.snap.SessionID
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	c.log.Debug("message_received",
		slog.String("session_id", sessionID),
		slog.String("source", string(msg.Source)),
		slog.Bool("final", msg.Final),
		slog.String("text", redact.Text(msg.Text)))

	c.flush()
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	for _, l := range listeners {
		if ml, ok := l.(MessageListener); ok {
			ml.OnSessionMessage(sessionID, msg)
		}
	}
}

// OnError implements Events. The provider message is stored verbatim.
func (c *Controller) OnError(err error) {
	message := ErrorMessage(err)
	c.mu.Lock()
	c.snap.LastError = message
	c.moveLocked(StateError, "provider error")
	sessionID := c.snap.SessionID
	c.mu.Unlock()
	c.flush()

	c.log.Error("session_error",
		slog.String("session_id", sessionID),
		slog.String("error", message))
	metrics.Record(c.cfg.Observer, metrics.EventRemoteError, 1, map[string]string{
		metrics.TagSessionID: sessionID,
		"reason":             string(errorsx.ReasonSessionRemote),
	})
	c.notify(context.Background(), notify.LevelError, message)
}

// OnSpeakingChanged implements Events. Ignored unless connected.
func (c *Controller) OnSpeakingChanged(speaking bool) {
	c.mu.Lock()
	if c.snap.State != StateConnected || c.snap.Speaking == speaking {
		c.mu.Unlock()
		return
	}
	c.snap.Speaking = speaking
	c.touchLocked("speaking changed")
	c.mu.Unlock()
	c.flush()
}

func (c *Controller) guardLocked() error {
	if c.closed {
		return ErrClosed
	}
	if c.snap.ActionInFlight {
		return ErrActionInFlight
	}
	return nil
}

// transitionLocked moves to a new state. Invalid edges are logged and dropped.
func (c *Controller) transitionLocked(to ConnectionState, reason string) {
	from := c.snap.State
	if !CanTransition(from, to) {
		err := &InvalidTransitionError{From: from, To: to}
		c.log.Error("state_transition_rejected", slog.String("error", err.Error()), slog.String("reason", reason))
		return
	}
	c.snap.State = to
	if to != StateConnected {
		c.snap.Speaking = false
	}
	c.snap.UpdatedAt = c.cfg.Now()
	c.pending = append(c.pending, StateChange{From: from, To: to, Reason: reason, Snapshot: c.snap})
}

// moveLocked transitions when the state differs and only records otherwise.
func (c *Controller) moveLocked(to ConnectionState, reason string) {
	if c.snap.State == to {
		c.touchLocked(reason)
		return
	}
	c.transitionLocked(to, reason)
}

func (c *Controller) touchLocked(reason string) {
	c.snap.UpdatedAt = c.cfg.Now()
	c.pending = append(c.pending, StateChange{From: c.snap.State, To: c.snap.State, Reason: reason, Snapshot: c.snap})
}

func (c *Controller) flush() {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.mu.Unlock()
			return
		}
		change := c.pending[0]
		c.pending = c.pending[1:]
		listeners := append([]Listener(nil), c.listeners...)
		c.mu.Unlock()

		if change.From != change.To {
			metrics.Record(c.cfg.Observer, metrics.EventStateChange, 1, map[string]string{
				metrics.TagSessionID: change.Snapshot.SessionID,
				"from":               change.From.String(),
				"to":                 change.To.String(),
			})
			c.log.Debug("state_changed",
				slog.String("from", change.From.String()),
				slog.String("to", change.To.String()),
				slog.String("reason", change.Reason))
		}
		for _, l := range listeners {
			l.OnStateChange(change)
		}
	}
}

func (c *Controller) fail(ctx context.Context, action string, reason errorsx.ReasonCode, sessionID string, err error) error {
	c.log.Error("session_action_failed",
		slog.String("action", action),
		slog.String("session_id", sessionID),
		slog.String("error", err.Error()))
	metrics.Record(c.cfg.Observer, metrics.EventActionFailed, 1, map[string]string{
		metrics.TagSessionID: sessionID,
		"action":             action,
		"reason":             string(reason),
	})
	c.notify(ctx, notify.LevelError, errorsx.UserMessage(reason))
	return errorsx.Wrap(fmt.Errorf("%s session: %w", action, err), reason)
}

func (c *Controller) notify(ctx context.Context, level notify.Level, message string) {
	if err := notify.Send(ctx, c.cfg.Notifier, level, message); err != nil {
		c.log.Warn("notify_failed", slog.String("error", err.Error()))
	}
}

func boolValue(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

var _ Events = (*Controller)(nil)
