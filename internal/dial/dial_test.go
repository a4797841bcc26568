package dial

import (
	"testing"
	"time"

	"github.com/rotarycore/phonecore/internal/gpio"
	"github.com/rotarycore/phonecore/internal/gpio/gpiomock"
)

func pulseN(t *testing.T, port *gpiomock.Port, pin, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		port.SetLevel(pin, gpio.Low)
		port.SetLevel(pin, gpio.High)
	}
}

func TestSinglePulseYieldsDigitOne(t *testing.T) {
	port := gpiomock.New()
	digits := make(chan int, 8)
	r := New(port, 1, 20*time.Millisecond, func(d int) { digits <- d })
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}

	pulseN(t, port, 1, 1)

	select {
	case d := <-digits:
		if d != 1 {
			t.Fatalf("expected digit 1, got %d", d)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for digit")
	}
}

func TestTenPulsesYieldsZero(t *testing.T) {
	port := gpiomock.New()
	digits := make(chan int, 8)
	r := New(port, 1, 20*time.Millisecond, func(d int) { digits <- d })
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}

	pulseN(t, port, 1, 10)

	select {
	case d := <-digits:
		if d != 0 {
			t.Fatalf("expected digit 0 for ten pulses, got %d", d)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for digit")
	}
}

func TestActiveDuringAccumulation(t *testing.T) {
	port := gpiomock.New()
	r := New(port, 1, 200*time.Millisecond, func(int) {})
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}

	port.SetLevel(1, gpio.Low)
	port.SetLevel(1, gpio.High)

	if !r.Active() {
		t.Fatal("expected reader to be active immediately after a pulse")
	}
	time.Sleep(300 * time.Millisecond)
	if r.Active() {
		t.Fatal("expected reader to be idle after quiescence timeout elapsed")
	}
}

func TestStopCancelsPendingDigit(t *testing.T) {
	port := gpiomock.New()
	digits := make(chan int, 8)
	r := New(port, 1, 50*time.Millisecond, func(d int) { digits <- d })
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}

	pulseN(t, port, 1, 3)
	if err := r.Stop(); err != nil {
		t.Fatal(err)
	}

	select {
	case d := <-digits:
		t.Fatalf("expected no digit after Stop, got %d", d)
	case <-time.After(150 * time.Millisecond):
	}
}
