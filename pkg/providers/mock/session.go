package mock

import (
	"context"
	"sync"
	"time"

	"github.com/harunnryd/synapchat/pkg/voice"
)

// SessionConfig controls the scripted behavior of Session.
type SessionConfig struct {
	// AutoConnect fires OnConnect before StartSession returns.
	AutoConnect bool
	// AutoDisconnect fires OnDisconnect before EndSession returns.
	AutoDisconnect bool
	// Greeting, when set, is emitted as an AI message after connect.
	Greeting string
}

// Session is an in-memory voice.SessionClient for local runs and tests.
type Session struct {
	cfg    SessionConfig
	events voice.Events

	mu      sync.Mutex
	open    bool
	volume  float64
	configs []voice.SessionConfig
	volumes []float64
	ends    int

	// Optional overrides; when set they replace the scripted behavior.
	StartFunc     func(ctx context.Context, cfg voice.SessionConfig) error
	EndFunc       func(ctx context.Context) error
	SetVolumeFunc func(ctx context.Context, volume float64) error
}

// NewSession returns a session bound to events.
func NewSession(events voice.Events, cfg SessionConfig) *Session {
	return &Session{cfg: cfg, events: events, volume: 1}
}

// Factory adapts NewSession to voice.ClientFactory.
func Factory(cfg SessionConfig) voice.ClientFactory {
	return func(events voice.Events) voice.SessionClient {
		return NewSession(events, cfg)
	}
}

func (s *Session) StartSession(ctx context.Context, cfg voice.SessionConfig) error {
	s.mu.Lock()
	s.configs = append(s.configs, cfg)
	s.mu.Unlock()

	if s.StartFunc != nil {
		if err := s.StartFunc(ctx, cfg); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.open = true
	s.mu.Unlock()

	if s.cfg.AutoConnect {
		s.events.OnConnect()
		if s.cfg.Greeting != "" {
			s.events.OnMessage(voice.Message{Source: voice.SourceAI, Text: s.cfg.Greeting, Final: true, Time: time.Now()})
		}
	}
	return nil
}

func (s *Session) EndSession(ctx context.Context) error {
	s.mu.Lock()
	s.ends++
	s.mu.Unlock()

	if s.EndFunc != nil {
		if err := s.EndFunc(ctx); err != nil {
			return err
		}
	}
	s.mu.Lock()
	wasOpen := s.open
	s.open = false
	s.mu.Unlock()

	if s.cfg.AutoDisconnect && wasOpen {
		s.events.OnDisconnect()
	}
	return nil
}

func (s *Session) SetVolume(ctx context.Context, volume float64) error {
	s.mu.Lock()
	s.volumes = append(s.volumes, volume)
	s.mu.Unlock()

	if s.SetVolumeFunc != nil {
		if err := s.SetVolumeFunc(ctx, volume); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.volume = volume
	s.mu.Unlock()
	return nil
}

// Test helpers

// SimulateConnect fires OnConnect.
func (s *Session) SimulateConnect() { s.events.OnConnect() }

// SimulateDisconnect marks the session closed and fires OnDisconnect.
func (s *Session) SimulateDisconnect() {
	s.mu.Lock()
	s.open = false
	s.mu.Unlock()
	s.events.OnDisconnect()
}

// SimulateMessage fires OnMessage.
func (s *Session) SimulateMessage(source voice.Source, text string) {
	s.events.OnMessage(voice.Message{Source: source, Text: text, Final: true, Time: time.Now()})
}

// SimulateError fires OnError.
func (s *Session) SimulateError(err error) { s.events.OnError(err) }

// SimulateSpeaking fires OnSpeakingChanged.
func (s *Session) SimulateSpeaking(speaking bool) { s.events.OnSpeakingChanged(speaking) }

// Open reports whether a session is currently open.
func (s *Session) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Volume returns the last accepted volume.
func (s *Session) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// VolumeCalls returns every volume passed to SetVolume, accepted or not.
func (s *Session) VolumeCalls() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.volumes...)
}

// StartConfigs returns every config passed to StartSession.
func (s *Session) StartConfigs() []voice.SessionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]voice.SessionConfig(nil), s.configs...)
}

// EndCalls returns how many times EndSession was called.
func (s *Session) EndCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ends
}

var _ voice.SessionClient = (*Session)(nil)
