// Package gpiomock is an in-memory gpio.Port used by every component's
// tests. It supports scripted stimulation (SetLevel, Pulse) so dial-reader,
// hook-monitor, and ringer tests can drive realistic waveforms without
// touching hardware.
package gpiomock

import (
	"sync"
	"time"

	"github.com/rotarycore/phonecore/internal/coreerr"
	"github.com/rotarycore/phonecore/internal/gpio"
)

type direction int

const (
	unconfigured direction = iota
	input
	output
)

type pinState struct {
	dir     direction
	pull    gpio.Pull
	level   gpio.Level
	edge    gpio.Edge
	handler gpio.EdgeHandler
}

// Port is the mock gpio.Port implementation.
type Port struct {
	mu   sync.Mutex
	pins map[int]*pinState
}

// New creates an empty mock port; every pin starts unconfigured.
func New() *Port {
	return &Port{pins: make(map[int]*pinState)}
}

func (p *Port) pin(n int) *pinState {
	ps, ok := p.pins[n]
	if !ok {
		ps = &pinState{}
		p.pins[n] = ps
	}
	return ps
}

func (p *Port) ConfigureInput(pin int, pull gpio.Pull) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ps := p.pin(pin)
	ps.dir = input
	ps.pull = pull
	ps.level = pullIdleLevel(pull)
	return nil
}

func pullIdleLevel(pull gpio.Pull) gpio.Level {
	if pull == gpio.PullUp {
		return gpio.High
	}
	return gpio.Low
}

func (p *Port) ConfigureOutput(pin int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ps := p.pin(pin)
	ps.dir = output
	ps.level = gpio.Low
	return nil
}

func (p *Port) Read(pin int) (gpio.Level, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ps, ok := p.pins[pin]
	if !ok || ps.dir == unconfigured {
		return gpio.Low, &coreerr.ErrPinUnconfigured{Pin: pin}
	}
	return ps.level, nil
}

func (p *Port) Write(pin int, level gpio.Level) error {
	p.mu.Lock()
	ps, ok := p.pins[pin]
	if !ok || ps.dir == unconfigured {
		p.mu.Unlock()
		return &coreerr.ErrPinUnconfigured{Pin: pin}
	}
	if ps.dir != output {
		p.mu.Unlock()
		return &coreerr.ErrDirectionMismatch{Pin: pin, Wanted: "write", Configured: "input"}
	}
	ps.level = level
	p.mu.Unlock()
	return nil
}

func (p *Port) OnEdge(pin int, edge gpio.Edge, handler gpio.EdgeHandler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ps, ok := p.pins[pin]
	if !ok || ps.dir == unconfigured {
		return &coreerr.ErrPinUnconfigured{Pin: pin}
	}
	if ps.dir != input {
		return &coreerr.ErrDirectionMismatch{Pin: pin, Wanted: "edge handler", Configured: "output"}
	}
	ps.edge = edge
	ps.handler = handler
	return nil
}

func (p *Port) RemoveHandler(pin int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ps, ok := p.pins[pin]
	if !ok {
		return &coreerr.ErrPinUnconfigured{Pin: pin}
	}
	ps.handler = nil
	return nil
}

func (p *Port) Close() error { return nil }

// SetLevel drives pin directly to level and fires the registered edge
// handler, if any, exactly as a hardware transition would. Intended for
// tests only.
func (p *Port) SetLevel(pin int, level gpio.Level) {
	p.mu.Lock()
	ps, ok := p.pins[pin]
	if !ok || ps.dir != input {
		p.mu.Unlock()
		return
	}
	old := ps.level
	if old == level {
		p.mu.Unlock()
		return
	}
	ps.level = level
	handler := ps.handler
	edge := ps.edge
	p.mu.Unlock()

	if handler == nil {
		return
	}
	matches := edge == gpio.EdgeBoth ||
		(edge == gpio.EdgeRising && level == gpio.High) ||
		(edge == gpio.EdgeFalling && level == gpio.Low)
	if !matches {
		return
	}
	handler(gpio.EdgeEvent{Pin: pin, Level: level, Timestamp: time.Now()})
}

// Pulse drives pin low for lowUs microseconds then high for highUs
// microseconds, synchronously, firing edge handlers along the way. It is
// used to script rotary dial pulse trains in dial-reader tests.
func (p *Port) Pulse(pin int, lowUs, highUs int) {
	p.SetLevel(pin, gpio.Low)
	time.Sleep(time.Duration(lowUs) * time.Microsecond)
	p.SetLevel(pin, gpio.High)
	time.Sleep(time.Duration(highUs) * time.Microsecond)
}
