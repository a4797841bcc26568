package callmanager

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rotarycore/phonecore/internal/audio"
	"github.com/rotarycore/phonecore/internal/callstore"
	"github.com/rotarycore/phonecore/internal/config"
	"github.com/rotarycore/phonecore/internal/dial"
	"github.com/rotarycore/phonecore/internal/events"
	"github.com/rotarycore/phonecore/internal/hook"
	"github.com/rotarycore/phonecore/internal/ringer"
	"github.com/rotarycore/phonecore/internal/signalling"
)

// inputMsg is the marker interface for everything that can flow through the
// manager's input queue.
type inputMsg interface{ isInputMsg() }

type hookMsg struct{ onHook bool }
type digitMsg struct{ digit int }
type interDigitTimeoutMsg struct{}
type callAttemptTimeoutMsg struct{}
type callStateMsg struct{ transition signalling.StateTransition }
type incomingMsg struct {
	call     signalling.CallHandle
	callerID string
}
type configMsg struct {
	section string
	mutate  func(*config.Config)
	result  chan error
}

func (hookMsg) isInputMsg()              {}
func (digitMsg) isInputMsg()              {}
func (interDigitTimeoutMsg) isInputMsg()  {}
func (callAttemptTimeoutMsg) isInputMsg() {}
func (callStateMsg) isInputMsg()          {}
func (incomingMsg) isInputMsg()           {}
func (configMsg) isInputMsg()             {}

// inputQueueSize bounds the non-hook input queue; the hook queue is kept
// small since hook events must never pile up behind dialling traffic.
const inputQueueSize = 64
const hookQueueSize = 8

// Manager is the phone call core's state machine. Construct with New, wire
// in its subordinate components with Attach, then run its input loop with
// Run until the supplied context is cancelled.
type Manager struct {
	logger *slog.Logger
	bus    *events.Bus
	store  *callstore.Store
	device audio.Device

	dial   *dial.Reader
	hook   *hook.Monitor
	ringer *ringer.Ringer
	client signalling.Client

	inputCh chan inputMsg
	hookCh  chan inputMsg

	cfg *config.Config

	// mu protects every field read by CurrentState/snapshotting from
	// outside the run loop; every field it guards is otherwise only
	// touched from the run loop goroutine.
	mu            sync.Mutex
	state         State
	buffer        string
	currentNumber string
	errMsg        string

	haveActiveCall bool
	activeCall     signalling.CallHandle
	inboundCaller  string

	recordOpen  bool
	recordID    int64
	recordStart time.Time
	answeredAt  time.Time

	tonePlayback audio.Playback

	interDigitTimer  *time.Timer
	callAttemptTimer *time.Timer

	runCtx context.Context
}

// New constructs a Manager in state Idle. cfg is the initial validated
// configuration; the manager takes ownership of applying runtime updates to
// it via ApplyConfig.
func New(cfg *config.Config, bus *events.Bus, store *callstore.Store, device audio.Device) *Manager {
	return &Manager{
		logger:  slog.Default().With("component", "callmanager"),
		bus:     bus,
		store:   store,
		device:  device,
		cfg:     cfg,
		inputCh: make(chan inputMsg, inputQueueSize),
		hookCh:  make(chan inputMsg, hookQueueSize),
		state:   Idle,
	}
}

// Attach wires in the subordinate components and registers the manager's
// callbacks with them. Must be called once, before Run, after all four
// components have been constructed — breaking the construction cycle
// described in the design notes: components are built first (with the
// manager's bound methods as their callbacks), then handed back here.
func (m *Manager) Attach(dialReader *dial.Reader, hookMonitor *hook.Monitor, rng *ringer.Ringer, client signalling.Client) {
	m.dial = dialReader
	m.hook = hookMonitor
	m.ringer = rng
	m.client = client
	client.OnIncoming(m.enqueueIncoming)
	client.OnCallState(m.enqueueCallState)
}

// OnDigit is the dial.DigitHandler passed to dial.New.
func (m *Manager) OnDigit(digit int) { m.enqueue(digitMsg{digit: digit}) }

// OnHookTransition is the hook.EventHandler passed to hook.New.
func (m *Manager) OnHookTransition(onHook bool) { m.enqueueHook(hookMsg{onHook: onHook}) }

func (m *Manager) enqueueIncoming(call signalling.CallHandle, callerID string) {
	m.enqueue(incomingMsg{call: call, callerID: callerID})
}

func (m *Manager) enqueueCallState(tr signalling.StateTransition) {
	m.enqueue(callStateMsg{transition: tr})
}

func (m *Manager) enqueue(msg inputMsg) {
	select {
	case m.inputCh <- msg:
	case <-time.After(time.Second):
		m.logger.Warn("input queue full, dropping message", "type", msg)
	}
}

// enqueueHook never blocks: a full hook queue means something is
// pathologically wrong upstream, and blocking here would risk wedging the
// one component (hook monitor) whose events must preempt everything else.
func (m *Manager) enqueueHook(msg inputMsg) {
	select {
	case m.hookCh <- msg:
	default:
		m.logger.Warn("hook queue full, dropping message")
	}
}

// ApplyConfig validates and commits a configuration mutation from the run
// loop goroutine, publishing ConfigChanged only if the named section's
// value actually changed. Safe to call concurrently with Run.
func (m *Manager) ApplyConfig(ctx context.Context, section string, mutate func(*config.Config)) error {
	result := make(chan error, 1)
	msg := configMsg{section: section, mutate: mutate, result: result}
	select {
	case m.inputCh <- msg:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CurrentState returns a point-in-time snapshot of the machine's state,
// dial buffer, and last error message.
func (m *Manager) CurrentState() (state State, buffer string, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.buffer, m.errMsg
}

// Run processes the input queues until ctx is cancelled. Hook events are
// drained ahead of every other input type whenever both are ready,
// implementing the preemption spec.md §4.6 requires.
func (m *Manager) Run(ctx context.Context) {
	m.runCtx = ctx
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.hookCh:
			m.dispatch(msg)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return
		case msg := <-m.hookCh:
			m.dispatch(msg)
		case msg := <-m.inputCh:
			m.dispatch(msg)
		}
	}
}

func (m *Manager) dispatch(msg inputMsg) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch v := msg.(type) {
	case hookMsg:
		m.handleHook(v.onHook)
	case digitMsg:
		m.handleDigit(v.digit)
	case interDigitTimeoutMsg:
		m.handleInterDigitTimeout()
	case callAttemptTimeoutMsg:
		m.handleCallAttemptTimeout()
	case callStateMsg:
		m.handleCallState(v.transition)
	case incomingMsg:
		m.handleIncoming(v.call, v.callerID)
	case configMsg:
		changed, err := m.cfg.ApplySection(v.section, v.mutate)
		if err == nil && changed {
			m.bus.Publish(events.ConfigChanged{Section: v.section})
		}
		v.result <- err
	}
}

func (m *Manager) config() *config.Config {
	return m.cfg
}
