// Package audio moves raw PCM16 little-endian mono audio between the local
// devices and a voice session.
package audio

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
)

// DefaultSampleRate matches the provider's default pcm_16000 format.
const DefaultSampleRate = 16000

// FramesPerBuffer is the device buffer size in samples.
const FramesPerBuffer = 1024

// Source produces microphone audio.
type Source interface {
	Name() string
	Start(ctx context.Context) error
	// Read blocks until the next buffer of PCM16 bytes is available.
	Read(ctx context.Context) ([]byte, error)
	Stop() error
}

// Sink plays audio received from the agent.
type Sink interface {
	Start(ctx context.Context) error
	Write(pcm []byte) error
	Stop() error
}

// Gain scales PCM16 samples by volume, clamped to [0, 1]. A volume of 1
// returns pcm unchanged; 0 returns silence of the same length.
func Gain(pcm []byte, volume float64) []byte {
	switch {
	case volume >= 1:
		return pcm
	case volume <= 0:
		return make([]byte, len(pcm))
	}
	out := make([]byte, len(pcm)-len(pcm)%2)
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(binary.LittleEndian.Uint16(pcm[i:]))
		v := math.Round(float64(s) * volume)
		binary.LittleEndian.PutUint16(out[i:], uint16(int16(v)))
	}
	return out
}

// SamplesToBytes encodes samples as PCM16 little-endian.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToSamples decodes PCM16 little-endian bytes. A trailing odd byte is dropped.
func BytesToSamples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// Discard is a Sink that only counts what it receives. Used for headless runs.
type Discard struct {
	mu     sync.Mutex
	bytes  int
	chunks [][]byte
	keep   bool
}

// NewDiscard returns a sink; when keep is set every chunk is retained.
func NewDiscard(keep bool) *Discard {
	return &Discard{keep: keep}
}

func (d *Discard) Start(context.Context) error { return nil }

func (d *Discard) Write(pcm []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bytes += len(pcm)
	if d.keep {
		d.chunks = append(d.chunks, append([]byte(nil), pcm...))
	}
	return nil
}

func (d *Discard) Stop() error { return nil }

// Bytes returns the total number of bytes written.
func (d *Discard) Bytes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bytes
}

// Chunks returns retained chunks.
func (d *Discard) Chunks() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.chunks...)
}
