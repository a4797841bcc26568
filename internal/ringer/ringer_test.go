package ringer

import (
	"testing"
	"time"

	"github.com/rotarycore/phonecore/internal/audio/audiomock"
	"github.com/rotarycore/phonecore/internal/gpio"
	"github.com/rotarycore/phonecore/internal/gpio/gpiomock"
)

func TestRingRaisesEnableAndPlaysWaveform(t *testing.T) {
	port := gpiomock.New()
	device := audiomock.New()
	r := New(port, 5, device, "ring.pcm", 50*time.Millisecond, 20*time.Millisecond)
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}

	r.Ring()
	time.Sleep(10 * time.Millisecond)

	lvl, err := readRaw(port, 5)
	if err != nil {
		t.Fatal(err)
	}
	if lvl != gpio.High {
		t.Fatal("expected enable pin high while ringing")
	}

	r.Stop()

	lvl, err = readRaw(port, 5)
	if err != nil {
		t.Fatal(err)
	}
	if lvl != gpio.Low {
		t.Fatal("expected enable pin low after Stop")
	}
	if len(device.Plays()) == 0 {
		t.Fatal("expected at least one waveform play")
	}
}

func TestRingIsIdempotentWhileAlreadyRinging(t *testing.T) {
	port := gpiomock.New()
	device := audiomock.New()
	r := New(port, 5, device, "ring.pcm", 50*time.Millisecond, 20*time.Millisecond)
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}

	r.Ring()
	r.Ring() // second call must be a no-op, not a second concurrent loop
	time.Sleep(10 * time.Millisecond)
	if !r.Ringing() {
		t.Fatal("expected ringer to be ringing")
	}
	r.Stop()
	if r.Ringing() {
		t.Fatal("expected ringer to be stopped")
	}
}

func TestStopWhenIdleIsSafe(t *testing.T) {
	port := gpiomock.New()
	device := audiomock.New()
	r := New(port, 5, device, "ring.pcm", 50*time.Millisecond, 20*time.Millisecond)
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	r.Stop() // no panic, no deadlock
}

func readRaw(port *gpiomock.Port, pin int) (gpio.Level, error) {
	return port.Read(pin)
}
