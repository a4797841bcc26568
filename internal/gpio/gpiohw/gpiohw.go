// Package gpiohw is the real gpio.Port binding for Raspberry Pi-class
// single-board computers, built on the Linux GPIO character-device ABI via
// github.com/warthog618/go-gpiocdev.
package gpiohw

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/rotarycore/phonecore/internal/coreerr"
	"github.com/rotarycore/phonecore/internal/gpio"
)

type direction int

const (
	unconfigured direction = iota
	input
	output
)

type lineState struct {
	dir  direction
	line *gpiocdev.Line
}

// Port drives physical GPIO lines on chipName (e.g. "gpiochip0") using BCM
// pin numbering, matching spec §6's "GPIO (BCM numbering by default)".
type Port struct {
	chipName string

	mu    sync.Mutex
	lines map[int]*lineState
}

// New returns a Port for chipName. The chip is not queried until the first
// ConfigureInput/ConfigureOutput call, matching gpiocdev's per-line request
// model.
func New(chipName string) *Port {
	return &Port{chipName: chipName, lines: make(map[int]*lineState)}
}

func (p *Port) ConfigureInput(pin int, pull gpio.Pull) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.releaseLocked(pin)

	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput}
	switch pull {
	case gpio.PullUp:
		opts = append(opts, gpiocdev.WithPullUp)
	case gpio.PullDown:
		opts = append(opts, gpiocdev.WithPullDown)
	}

	line, err := gpiocdev.RequestLine(p.chipName, pin, opts...)
	if err != nil {
		return fmt.Errorf("gpiohw: requesting input line %d: %w", pin, err)
	}
	p.lines[pin] = &lineState{dir: input, line: line}
	return nil
}

func (p *Port) ConfigureOutput(pin int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.releaseLocked(pin)

	line, err := gpiocdev.RequestLine(p.chipName, pin, gpiocdev.AsOutput(0))
	if err != nil {
		return fmt.Errorf("gpiohw: requesting output line %d: %w", pin, err)
	}
	p.lines[pin] = &lineState{dir: output, line: line}
	return nil
}

func (p *Port) releaseLocked(pin int) {
	if ls, ok := p.lines[pin]; ok && ls.line != nil {
		ls.line.Close()
	}
	delete(p.lines, pin)
}

func (p *Port) Read(pin int) (gpio.Level, error) {
	p.mu.Lock()
	ls, ok := p.lines[pin]
	p.mu.Unlock()
	if !ok || ls.dir == unconfigured {
		return gpio.Low, &coreerr.ErrPinUnconfigured{Pin: pin}
	}
	if ls.dir != input {
		return gpio.Low, &coreerr.ErrDirectionMismatch{Pin: pin, Wanted: "read", Configured: "output"}
	}
	v, err := ls.line.Value()
	if err != nil {
		return gpio.Low, fmt.Errorf("gpiohw: reading line %d: %w", pin, err)
	}
	return v != 0, nil
}

func (p *Port) Write(pin int, level gpio.Level) error {
	p.mu.Lock()
	ls, ok := p.lines[pin]
	p.mu.Unlock()
	if !ok || ls.dir == unconfigured {
		return &coreerr.ErrPinUnconfigured{Pin: pin}
	}
	if ls.dir != output {
		return &coreerr.ErrDirectionMismatch{Pin: pin, Wanted: "write", Configured: "input"}
	}
	v := 0
	if level == gpio.High {
		v = 1
	}
	if err := ls.line.SetValue(v); err != nil {
		return fmt.Errorf("gpiohw: writing line %d: %w", pin, err)
	}
	return nil
}

func (p *Port) OnEdge(pin int, edge gpio.Edge, handler gpio.EdgeHandler) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ls, ok := p.lines[pin]
	if !ok || ls.dir != input {
		return &coreerr.ErrPinUnconfigured{Pin: pin}
	}

	var edgeOpt gpiocdev.LineReqOption
	switch edge {
	case gpio.EdgeRising:
		edgeOpt = gpiocdev.WithRisingEdge
	case gpio.EdgeFalling:
		edgeOpt = gpiocdev.WithFallingEdge
	default:
		edgeOpt = gpiocdev.WithBothEdges
	}

	if ls.line != nil {
		ls.line.Close()
	}

	eventHandler := func(evt gpiocdev.LineEvent) {
		level := evt.Type == gpiocdev.LineEventRisingEdge
		handler(gpio.EdgeEvent{Pin: pin, Level: gpio.Level(level), Timestamp: time.Unix(0, int64(evt.Timestamp))})
	}

	line, err := gpiocdev.RequestLine(p.chipName, pin, edgeOpt, gpiocdev.WithEventHandler(eventHandler))
	if err != nil {
		return fmt.Errorf("gpiohw: requesting edge line %d: %w", pin, err)
	}
	ls.line = line
	return nil
}

func (p *Port) RemoveHandler(pin int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ls, ok := p.lines[pin]
	if !ok {
		return &coreerr.ErrPinUnconfigured{Pin: pin}
	}
	if ls.line != nil {
		ls.line.Close()
	}
	delete(p.lines, pin)
	return nil
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for pin := range p.lines {
		p.releaseLocked(pin)
	}
	return nil
}
