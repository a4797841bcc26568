// Package ringer drives the ringer amplifier-enable output and plays the
// ring waveform on the process-wide audio device in a cadenced loop.
package ringer

import (
	"context"
	"sync"
	"time"

	"github.com/rotarycore/phonecore/internal/audio"
	"github.com/rotarycore/phonecore/internal/gpio"
)

// Ringer drives one enable-output GPIO pin plus the shared audio device in
// the cadenced ring/pause loop. The ringer never owns the audio device
// exclusively — it trusts the call manager to never start a Ring while a
// call is connected (spec invariant P3).
type Ringer struct {
	port       gpio.Port
	enablePin  int
	device     audio.Device
	ringFile   string
	ringDur    time.Duration
	ringPause  time.Duration

	mu      sync.Mutex
	ringing bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New constructs a Ringer. Call Start to configure the enable pin.
func New(port gpio.Port, enablePin int, device audio.Device, ringFile string, ringDur, ringPause time.Duration) *Ringer {
	return &Ringer{
		port:      port,
		enablePin: enablePin,
		device:    device,
		ringFile:  ringFile,
		ringDur:   ringDur,
		ringPause: ringPause,
	}
}

// Start configures the enable pin as an output, initially low.
func (r *Ringer) Start() error {
	return r.port.ConfigureOutput(r.enablePin)
}

// Ring begins the cadenced ring/pause loop if not already ringing. It
// returns immediately; the loop runs until Stop is called.
func (r *Ringer) Ring() {
	r.mu.Lock()
	if r.ringing {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.ringing = true
	r.cancel = cancel
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	go r.loop(ctx, done)
}

// Stop clears ringing, cancels any in-flight playback, and forces the
// enable output low. Safe to call when not ringing.
func (r *Ringer) Stop() {
	r.mu.Lock()
	if !r.ringing {
		r.mu.Unlock()
		return
	}
	r.ringing = false
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	cancel()
	<-done
	_ = r.port.Write(r.enablePin, gpio.Low)
}

// Ringing reports whether the cadence loop is currently running.
func (r *Ringer) Ringing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ringing
}

func (r *Ringer) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		if ctx.Err() != nil {
			return
		}
		if err := r.port.Write(r.enablePin, gpio.High); err != nil {
			return
		}

		pb, err := r.device.Play(ctx, r.ringFile)
		if err != nil {
			_ = r.port.Write(r.enablePin, gpio.Low)
			return
		}
		select {
		case <-pb.Done():
		case <-time.After(r.ringDur):
			pb.Stop()
		case <-ctx.Done():
			pb.Stop()
			_ = r.port.Write(r.enablePin, gpio.Low)
			return
		}

		if err := r.port.Write(r.enablePin, gpio.Low); err != nil {
			return
		}

		select {
		case <-time.After(r.ringPause):
		case <-ctx.Done():
			return
		}
	}
}
