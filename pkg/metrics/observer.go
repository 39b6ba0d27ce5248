package metrics

import "time"

// Event names recorded by the session controller.
const (
	EventStateChange    = "voice.state_change"
	EventConnectLatency = "voice.connect_latency_ms"
	EventActionFailed   = "voice.action_failed"
	EventRemoteError    = "voice.remote_error"
	EventPermission     = "voice.mic_permission"

	// TagSessionID groups events by conversation.
	TagSessionID = "session_id"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// Record stamps and forwards an event; a nil observer is ignored.
func Record(obs Observer, name string, value float64, tags map[string]string) {
	if obs == nil {
		return
	}
	obs.RecordEvent(MetricsEvent{
		Name:  name,
		Time:  time.Now(),
		Value: value,
		Tags:  tags,
	})
}
