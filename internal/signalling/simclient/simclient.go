// Package simclient is a deterministic in-memory signalling.Client used by
// every call-manager test. It never touches a network; remote-party
// behaviour is driven entirely by the stimulation hooks (SimulateIncoming,
// SimulateRemoteAnswer, SimulateRemoteHangup, SimulateNetworkFailure).
package simclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/rotarycore/phonecore/internal/coreerr"
	"github.com/rotarycore/phonecore/internal/signalling"
)

// Client is the in-memory signalling.Client.
type Client struct {
	mu sync.Mutex

	registered bool
	regFails   int

	active       *callState
	onIncoming   signalling.IncomingHandler
	onCallState  signalling.StateHandler
}

type callState struct {
	handle   signalling.CallHandle
	outbound bool
	state    signalling.CallState
}

// New constructs an unregistered Client with no active call.
func New() *Client {
	return &Client{}
}

func (c *Client) Register(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.regFails > 0 {
		c.regFails--
		return &coreerr.ErrRegistrationFailed{Reason: "simulated registration failure"}
	}
	c.registered = true
	return nil
}

// FailNextRegistrations makes the next n Register calls fail, for signalling
// fatal-error scenario tests.
func (c *Client) FailNextRegistrations(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regFails = n
}

func (c *Client) PlaceCall(ctx context.Context, destination string) (signalling.CallHandle, error) {
	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return signalling.CallHandle{}, coreerr.ErrBusy
	}
	handle := signalling.CallHandle{ID: uuid.NewString()}
	c.active = &callState{handle: handle, outbound: true, state: signalling.Initiating}
	c.mu.Unlock()

	c.emit(handle, signalling.Initiating, signalling.CauseNone)
	c.emit(handle, signalling.Ringing, signalling.CauseNone)
	return handle, nil
}

func (c *Client) Answer(ctx context.Context, call signalling.CallHandle) error {
	c.mu.Lock()
	if c.active == nil || c.active.handle != call {
		c.mu.Unlock()
		return fmt.Errorf("simclient: no such active call %q", call.ID)
	}
	c.active.state = signalling.Connected
	c.mu.Unlock()

	c.emit(call, signalling.Answered, signalling.CauseNone)
	c.emit(call, signalling.Connected, signalling.CauseNone)
	return nil
}

func (c *Client) Reject(ctx context.Context, call signalling.CallHandle) error {
	c.mu.Lock()
	if c.active == nil || c.active.handle != call {
		c.mu.Unlock()
		return fmt.Errorf("simclient: no such active call %q", call.ID)
	}
	c.active = nil
	c.mu.Unlock()

	c.emit(call, signalling.Ended, signalling.Rejected)
	return nil
}

func (c *Client) Hangup(ctx context.Context, call signalling.CallHandle) error {
	c.mu.Lock()
	if c.active == nil || c.active.handle != call {
		c.mu.Unlock()
		return nil // hangup on an already-ended call is a no-op, matching forced-cancellation semantics
	}
	c.active = nil
	c.mu.Unlock()

	c.emit(call, signalling.Ended, signalling.Normal)
	return nil
}

func (c *Client) OnIncoming(handler signalling.IncomingHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onIncoming = handler
}

func (c *Client) OnCallState(handler signalling.StateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCallState = handler
}

func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	active := c.active
	c.active = nil
	c.registered = false
	c.mu.Unlock()

	if active != nil {
		c.emit(active.handle, signalling.Ended, signalling.NetworkError)
	}
	return nil
}

// SimulateIncoming delivers an inbound call from callerID. Fails if a call
// is already active, matching the "only one active call" contract.
func (c *Client) SimulateIncoming(callerID string) (signalling.CallHandle, error) {
	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return signalling.CallHandle{}, coreerr.ErrBusy
	}
	handle := signalling.CallHandle{ID: uuid.NewString()}
	c.active = &callState{handle: handle, outbound: false, state: signalling.Ringing}
	handler := c.onIncoming
	c.mu.Unlock()

	if handler != nil {
		handler(handle, callerID)
	}
	c.emit(handle, signalling.Ringing, signalling.CauseNone)
	return handle, nil
}

// SimulateRemoteAnswer reports that the far end answered an in-flight
// outbound call.
func (c *Client) SimulateRemoteAnswer(call signalling.CallHandle) {
	c.mu.Lock()
	if c.active == nil || c.active.handle != call {
		c.mu.Unlock()
		return
	}
	c.active.state = signalling.Connected
	c.mu.Unlock()

	c.emit(call, signalling.Answered, signalling.CauseNone)
	c.emit(call, signalling.Connected, signalling.CauseNone)
}

// SimulateRemoteHangup ends call as the far party hanging up, with cause
// inferred from whether the call had reached Connected.
func (c *Client) SimulateRemoteHangup(call signalling.CallHandle) {
	c.mu.Lock()
	cs := c.active
	if cs == nil || cs.handle != call {
		c.mu.Unlock()
		return
	}
	wasConnected := cs.state == signalling.Connected
	c.active = nil
	c.mu.Unlock()

	cause := signalling.NoAnswer
	if wasConnected {
		cause = signalling.Normal
	}
	c.emit(call, signalling.Ended, cause)
}

// SimulateNetworkFailure ends call with EndCause NetworkError, modelling a
// transport-level failure mid-call.
func (c *Client) SimulateNetworkFailure(call signalling.CallHandle) {
	c.mu.Lock()
	if c.active == nil || c.active.handle != call {
		c.mu.Unlock()
		return
	}
	c.active = nil
	c.mu.Unlock()

	c.emit(call, signalling.Ended, signalling.NetworkError)
}

// Registered reports whether the last Register call succeeded.
func (c *Client) Registered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registered
}

func (c *Client) emit(call signalling.CallHandle, state signalling.CallState, cause signalling.EndCause) {
	c.mu.Lock()
	handler := c.onCallState
	c.mu.Unlock()
	if handler != nil {
		handler(signalling.StateTransition{Call: call, State: state, Cause: cause})
	}
}
