// Package hook monitors a telephone hook switch and emits debounced
// on-hook/off-hook transitions.
package hook

import (
	"sync"
	"time"

	"github.com/rotarycore/phonecore/internal/gpio"
)

// EventHandler is invoked once per confirmed transition, outside the
// monitor's critical section.
type EventHandler func(onHook bool)

// Monitor watches a pulled-up hook pin (idle/high = on-hook, low =
// off-hook) and debounces transitions by deferred confirmation: every edge
// (re)schedules a one-shot timer, and only when that timer fires without a
// further edge is the new line level sampled and, if different from the
// last-confirmed level, reported.
type Monitor struct {
	port         gpio.Port
	pin          int
	debounceTime time.Duration
	onTransition EventHandler

	mu        sync.Mutex
	confirmed bool // true = on-hook
	timer     *time.Timer
}

// New constructs a Monitor. Call Start to configure the pin, sample the
// initial confirmed level, and begin watching edges.
func New(port gpio.Port, pin int, debounceTime time.Duration, onTransition EventHandler) *Monitor {
	return &Monitor{port: port, pin: pin, debounceTime: debounceTime, onTransition: onTransition}
}

// Start configures the pin as a pulled-up input, samples its initial level
// as the confirmed baseline, and registers a both-edge handler.
func (m *Monitor) Start() error {
	if err := m.port.ConfigureInput(m.pin, gpio.PullUp); err != nil {
		return err
	}
	lvl, err := m.port.Read(m.pin)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.confirmed = lvl == gpio.High
	m.mu.Unlock()

	return m.port.OnEdge(m.pin, gpio.EdgeBoth, m.onEdge)
}

// Stop removes the edge handler and cancels any pending debounce timer.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()
	return m.port.RemoveHandler(m.pin)
}

func (m *Monitor) onEdge(gpio.EdgeEvent) {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.debounceTime, m.onConfirm)
	m.mu.Unlock()
}

func (m *Monitor) onConfirm() {
	lvl, err := m.port.Read(m.pin)
	if err != nil {
		return // a read failure here is a transient hardware condition; the next edge retries
	}
	onHook := lvl == gpio.High

	m.mu.Lock()
	m.timer = nil
	changed := onHook != m.confirmed
	if changed {
		m.confirmed = onHook
	}
	m.mu.Unlock()

	if changed {
		m.onTransition(onHook)
	}
}

// OnHook reports the last-confirmed hook state.
func (m *Monitor) OnHook() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.confirmed
}
