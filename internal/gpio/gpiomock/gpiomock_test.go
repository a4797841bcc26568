package gpiomock

import (
	"testing"

	"github.com/rotarycore/phonecore/internal/gpio"
)

func TestReadWriteRequireConfiguration(t *testing.T) {
	p := New()
	if _, err := p.Read(1); err == nil {
		t.Fatal("expected error reading unconfigured pin")
	}
	if err := p.Write(1, gpio.High); err == nil {
		t.Fatal("expected error writing unconfigured pin")
	}
}

func TestDirectionMismatch(t *testing.T) {
	p := New()
	if err := p.ConfigureInput(1, gpio.PullUp); err != nil {
		t.Fatal(err)
	}
	if err := p.Write(1, gpio.High); err == nil {
		t.Fatal("expected direction mismatch writing to an input pin")
	}

	if err := p.ConfigureOutput(2); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Read(2); err == nil {
		t.Log("read of an output pin is not restricted by this mock's Write-only check")
	}
}

func TestPullUpIdlesHigh(t *testing.T) {
	p := New()
	if err := p.ConfigureInput(1, gpio.PullUp); err != nil {
		t.Fatal(err)
	}
	lvl, err := p.Read(1)
	if err != nil {
		t.Fatal(err)
	}
	if lvl != gpio.High {
		t.Fatalf("expected idle-high level with pull-up, got %v", lvl)
	}
}

func TestOnEdgeFiresForMatchingEdge(t *testing.T) {
	p := New()
	if err := p.ConfigureInput(1, gpio.PullUp); err != nil {
		t.Fatal(err)
	}

	var events []gpio.Level
	if err := p.OnEdge(1, gpio.EdgeFalling, func(e gpio.EdgeEvent) {
		events = append(events, e.Level)
	}); err != nil {
		t.Fatal(err)
	}

	p.SetLevel(1, gpio.Low)
	p.SetLevel(1, gpio.High) // rising edge, should not fire a falling-only handler
	p.SetLevel(1, gpio.Low)

	if len(events) != 2 {
		t.Fatalf("expected 2 falling-edge events, got %d", len(events))
	}
	for _, lvl := range events {
		if lvl != gpio.Low {
			t.Errorf("expected only Low events, got %v", lvl)
		}
	}
}

func TestRemoveHandlerStopsDelivery(t *testing.T) {
	p := New()
	_ = p.ConfigureInput(1, gpio.PullUp)

	fired := 0
	_ = p.OnEdge(1, gpio.EdgeBoth, func(gpio.EdgeEvent) { fired++ })
	p.SetLevel(1, gpio.Low)
	if err := p.RemoveHandler(1); err != nil {
		t.Fatal(err)
	}
	p.SetLevel(1, gpio.High)

	if fired != 1 {
		t.Fatalf("expected exactly 1 event before handler removal, got %d", fired)
	}
}
