// Package audiomock is an in-memory audio.Device used by ringer and
// signalling-client tests. It never touches real hardware: playback
// "loops" until Stop is called, and streams echo writes into an
// inspectable buffer.
package audiomock

import (
	"context"
	"sync"

	"github.com/rotarycore/phonecore/internal/audio"
)

// Device is the mock audio.Device.
type Device struct {
	mu      sync.Mutex
	plays   []string // waveform paths started, in order
	closed  bool
	streams int
}

// New creates an empty mock device.
func New() *Device { return &Device{} }

// Plays returns every waveform path Play was called with, in order.
func (d *Device) Plays() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.plays...)
}

func (d *Device) Play(ctx context.Context, path string) (audio.Playback, error) {
	d.mu.Lock()
	d.plays = append(d.plays, path)
	d.mu.Unlock()
	return &Playback{done: make(chan struct{})}, nil
}

func (d *Device) OpenStream(ctx context.Context, micGain, speakerGain float64) (audio.Stream, error) {
	d.mu.Lock()
	d.streams++
	d.mu.Unlock()
	return &Stream{micGain: micGain, speakerGain: speakerGain}, nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Playback is the mock audio.Playback: it never ends on its own, matching a
// looping waveform — tests call Stop explicitly, exactly as the ringer's
// cadence loop does.
type Playback struct {
	mu      sync.Mutex
	done    chan struct{}
	stopped bool
}

func (p *Playback) Done() <-chan struct{} { return p.done }

func (p *Playback) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	close(p.done)
}

// Stream is the mock audio.Stream: mic reads return silence, speaker
// writes are retained for test assertions.
type Stream struct {
	mu          sync.Mutex
	micGain     float64
	speakerGain float64
	written     [][]int16
	closed      bool
}

func (s *Stream) ReadMic(buf []int16) (int, error) {
	for i := range buf {
		buf[i] = 0
	}
	return len(buf), nil
}

func (s *Stream) WriteSpeaker(buf []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := append([]int16(nil), buf...)
	s.written = append(s.written, cp)
	return nil
}

// Written returns every buffer passed to WriteSpeaker, in order.
func (s *Stream) Written() [][]int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]int16(nil), s.written...)
}

func (s *Stream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
