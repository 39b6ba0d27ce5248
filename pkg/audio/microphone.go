//go:build portaudio
// +build portaudio

package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// MicrophoneSource reads the default input device.
type MicrophoneSource struct {
	stream     *portaudio.Stream
	sampleRate int
	logger     *slog.Logger

	mu     sync.Mutex
	buffer []int16
}

func NewMicrophoneSource(sampleRate int, logger *slog.Logger) *MicrophoneSource {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MicrophoneSource{
		sampleRate: sampleRate,
		logger:     logger,
		buffer:     make([]int16, FramesPerBuffer),
	}
}

func (m *MicrophoneSource) Name() string {
	return "microphone"
}

func (m *MicrophoneSource) Start(_ context.Context) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.sampleRate), len(m.buffer), m.buffer)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("opening input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("starting input stream: %w", err)
	}
	m.stream = stream

	m.logger.Info("microphone started", "sampleRate", m.sampleRate)
	return nil
}

func (m *MicrophoneSource) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		return nil, fmt.Errorf("microphone not started")
	}
	if err := m.stream.Read(); err != nil {
		return nil, fmt.Errorf("reading from stream: %w", err)
	}
	return SamplesToBytes(m.buffer), nil
}

func (m *MicrophoneSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream != nil {
		m.stream.Stop()
		m.stream.Close()
		m.stream = nil
	}
	portaudio.Terminate()
	return nil
}

// Speaker plays PCM on the default output device.
type Speaker struct {
	stream     *portaudio.Stream
	sampleRate int
	logger     *slog.Logger

	mu     sync.Mutex
	buffer []int16
}

func NewSpeaker(sampleRate int, logger *slog.Logger) *Speaker {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Speaker{
		sampleRate: sampleRate,
		logger:     logger,
		buffer:     make([]int16, FramesPerBuffer),
	}
}

func (s *Speaker) Start(_ context.Context) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(s.sampleRate), len(s.buffer), s.buffer)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("opening output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("starting output stream: %w", err)
	}
	s.stream = stream
	s.logger.Info("speaker started", "sampleRate", s.sampleRate)
	return nil
}

// Write plays pcm in FramesPerBuffer slices, padding the last one with silence.
func (s *Speaker) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return fmt.Errorf("speaker not started")
	}
	samples := BytesToSamples(pcm)
	for len(samples) > 0 {
		n := copy(s.buffer, samples)
		for i := n; i < len(s.buffer); i++ {
			s.buffer[i] = 0
		}
		if err := s.stream.Write(); err != nil {
			return fmt.Errorf("writing to stream: %w", err)
		}
		samples = samples[n:]
	}
	return nil
}

func (s *Speaker) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		s.stream.Stop()
		s.stream.Close()
		s.stream = nil
	}
	portaudio.Terminate()
	return nil
}

// MicrophoneProbe asks the platform for microphone access by opening and
// closing the default input device.
type MicrophoneProbe struct {
	sampleRate int
}

func NewMicrophoneProbe(sampleRate int) *MicrophoneProbe {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &MicrophoneProbe{sampleRate: sampleRate}
}

func (p *MicrophoneProbe) RequestAccess(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}
	defer portaudio.Terminate()

	buffer := make([]int16, FramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(p.sampleRate), len(buffer), buffer)
	if err != nil {
		return fmt.Errorf("opening input device: %w", err)
	}
	return stream.Close()
}
