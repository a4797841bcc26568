// Package dial decodes rotary pulse-dial input into decimal digits.
package dial

import (
	"sync"
	"time"

	"github.com/rotarycore/phonecore/internal/gpio"
)

// DigitHandler is invoked once per completed dial pulse-train, outside the
// reader's critical section, with the decoded digit (0-9).
type DigitHandler func(digit int)

// Reader decodes falling-edge pulses on a single GPIO pin into digits using
// pulse accumulation with a quiescence timeout: pulses are counted while
// they keep arriving within pulseTimeout of one another; once that long
// elapses without another pulse, the accumulated count N is consumed as
// digit N mod 10 (ten pulses therefore encodes zero).
type Reader struct {
	port         gpio.Port
	pin          int
	pulseTimeout time.Duration
	onDigit      DigitHandler

	mu     sync.Mutex
	count  int
	timer  *time.Timer
	active bool
}

// New constructs a Reader. It does not configure the pin or start
// listening; call Start for that.
func New(port gpio.Port, pin int, pulseTimeout time.Duration, onDigit DigitHandler) *Reader {
	return &Reader{port: port, pin: pin, pulseTimeout: pulseTimeout, onDigit: onDigit}
}

// Start configures the pin as a pulled-up input, idle high, and begins
// decoding falling edges as dial pulses.
func (r *Reader) Start() error {
	if err := r.port.ConfigureInput(r.pin, gpio.PullUp); err != nil {
		return err
	}
	return r.port.OnEdge(r.pin, gpio.EdgeFalling, r.onEdge)
}

// Stop removes the edge handler and cancels any pending quiescence timer.
func (r *Reader) Stop() error {
	r.mu.Lock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.mu.Unlock()
	return r.port.RemoveHandler(r.pin)
}

func (r *Reader) onEdge(gpio.EdgeEvent) {
	r.mu.Lock()
	r.count++
	r.active = true
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.pulseTimeout, r.onQuiescence)
	r.mu.Unlock()
}

func (r *Reader) onQuiescence() {
	r.mu.Lock()
	n := r.count
	r.count = 0
	r.active = false
	r.timer = nil
	r.mu.Unlock()

	if n == 0 {
		return
	}
	digit := n % 10
	r.onDigit(digit) // dispatched outside the lock so policy evaluation cannot block pulse intake
}

// Active reports whether a pulse train is currently being accumulated
// (i.e. the quiescence timer is pending).
func (r *Reader) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}
