package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/harunnryd/synapchat/pkg/audio"
)

// Source is a scripted audio.Source. Queued chunks are returned in order
// and Read blocks once the queue is empty.
type Source struct {
	chunks chan []byte

	// StartErr, when set, is returned from Start.
	StartErr error

	mu      sync.Mutex
	started bool
	starts  int
	stops   int
}

func NewSource(chunks ...[]byte) *Source {
	s := &Source{chunks: make(chan []byte, len(chunks)+16)}
	for _, c := range chunks {
		s.chunks <- c
	}
	return s
}

func (s *Source) Name() string { return "mock_microphone" }

func (s *Source) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	if s.StartErr != nil {
		return s.StartErr
	}
	s.started = true
	return nil
}

func (s *Source) Read(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return nil, errors.New("not started")
	}
	select {
	case b := <-s.chunks:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	s.stops++
	return nil
}

// Push queues another chunk. It drops the chunk when the queue is full.
func (s *Source) Push(pcm []byte) {
	select {
	case s.chunks <- pcm:
	default:
	}
}

// Starts and Stops report how often the device was opened and closed.
func (s *Source) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

func (s *Source) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

var _ audio.Source = (*Source)(nil)
