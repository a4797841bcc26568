package hook

import (
	"testing"
	"time"

	"github.com/rotarycore/phonecore/internal/gpio"
	"github.com/rotarycore/phonecore/internal/gpio/gpiomock"
)

func TestInitialStateIsOnHook(t *testing.T) {
	port := gpiomock.New()
	m := New(port, 1, 20*time.Millisecond, func(bool) {})
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if !m.OnHook() {
		t.Fatal("expected idle-high pull-up to read as on-hook initially")
	}
}

func TestGenuinePickupEmitsAfterDebounce(t *testing.T) {
	port := gpiomock.New()
	events := make(chan bool, 8)
	m := New(port, 1, 20*time.Millisecond, func(onHook bool) { events <- onHook })
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}

	port.SetLevel(1, gpio.Low)

	select {
	case onHook := <-events:
		if onHook {
			t.Fatal("expected off-hook (pickup) event")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pickup event")
	}
	if m.OnHook() {
		t.Fatal("expected confirmed state to be off-hook")
	}
}

func TestBounceShorterThanDebounceProducesNoEvent(t *testing.T) {
	port := gpiomock.New()
	events := make(chan bool, 8)
	m := New(port, 1, 100*time.Millisecond, func(onHook bool) { events <- onHook })
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}

	// A short bounce burst that settles back to the original level before
	// the debounce timer fires must produce no event at all.
	port.SetLevel(1, gpio.Low)
	port.SetLevel(1, gpio.High)
	port.SetLevel(1, gpio.Low)
	port.SetLevel(1, gpio.High)

	select {
	case onHook := <-events:
		t.Fatalf("expected no event from a settled bounce burst, got %v", onHook)
	case <-time.After(200 * time.Millisecond):
	}
	if !m.OnHook() {
		t.Fatal("expected confirmed state to remain on-hook after a settled bounce")
	}
}

func TestStopSuppressesFurtherEvents(t *testing.T) {
	port := gpiomock.New()
	events := make(chan bool, 8)
	m := New(port, 1, 20*time.Millisecond, func(onHook bool) { events <- onHook })
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if err := m.Stop(); err != nil {
		t.Fatal(err)
	}

	port.SetLevel(1, gpio.Low)

	select {
	case onHook := <-events:
		t.Fatalf("expected no events after Stop, got %v", onHook)
	case <-time.After(100 * time.Millisecond):
	}
}
