//go:build !portaudio
// +build !portaudio

package audio

import (
	"context"
	"errors"
	"log/slog"
)

// ErrUnavailable is returned by the device types in builds without portaudio.
var ErrUnavailable = errors.New("audio devices not available: rebuild with -tags portaudio")

// MicrophoneSource stub when portaudio is not available
type MicrophoneSource struct {
	logger *slog.Logger
}

func NewMicrophoneSource(sampleRate int, logger *slog.Logger) *MicrophoneSource {
	return &MicrophoneSource{logger: logger}
}

func (m *MicrophoneSource) Name() string {
	return "microphone"
}

func (m *MicrophoneSource) Start(_ context.Context) error {
	return ErrUnavailable
}

func (m *MicrophoneSource) Read(_ context.Context) ([]byte, error) {
	return nil, ErrUnavailable
}

func (m *MicrophoneSource) Stop() error {
	return nil
}

// Speaker stub when portaudio is not available
type Speaker struct {
	logger *slog.Logger
}

func NewSpeaker(sampleRate int, logger *slog.Logger) *Speaker {
	return &Speaker{logger: logger}
}

func (s *Speaker) Start(_ context.Context) error { return ErrUnavailable }

func (s *Speaker) Write(_ []byte) error { return ErrUnavailable }

func (s *Speaker) Stop() error { return nil }

// MicrophoneProbe stub; access is always refused.
type MicrophoneProbe struct{}

func NewMicrophoneProbe(sampleRate int) *MicrophoneProbe {
	return &MicrophoneProbe{}
}

func (p *MicrophoneProbe) RequestAccess(_ context.Context) error {
	return ErrUnavailable
}
