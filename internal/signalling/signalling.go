// Package signalling defines the abstract registration and call-lifecycle
// contract the call manager drives. Two implementations satisfy Client:
// sipclient (a real SIP/RTP stack) and simclient (a deterministic in-memory
// simulator used by every call-manager test).
package signalling

import "context"

// CallState is a per-call lifecycle stage.
type CallState int

const (
	Initiating CallState = iota
	Ringing
	EarlyMedia
	Answered
	Connected
	Ended
)

func (s CallState) String() string {
	switch s {
	case Initiating:
		return "Initiating"
	case Ringing:
		return "Ringing"
	case EarlyMedia:
		return "EarlyMedia"
	case Answered:
		return "Answered"
	case Connected:
		return "Connected"
	case Ended:
		return "Ended"
	default:
		return "Unknown"
	}
}

// EndCause classifies how a call ended. Only meaningful once State == Ended.
type EndCause int

const (
	CauseNone EndCause = iota
	Normal
	Busy
	NoAnswer
	Rejected
	NetworkError
)

func (c EndCause) String() string {
	switch c {
	case Normal:
		return "Normal"
	case Busy:
		return "Busy"
	case NoAnswer:
		return "NoAnswer"
	case Rejected:
		return "Rejected"
	case NetworkError:
		return "NetworkError"
	default:
		return "None"
	}
}

// CallHandle identifies one call for the lifetime of place_call/answer/
// reject/hangup calls against it.
type CallHandle struct {
	ID string
}

// StateTransition is delivered to an OnCallState handler on every
// call-lifecycle transition.
type StateTransition struct {
	Call  CallHandle
	State CallState
	Cause EndCause // meaningful only when State == Ended
}

// IncomingHandler is invoked when an inbound call arrives.
type IncomingHandler func(call CallHandle, callerID string)

// StateHandler is invoked on every call-lifecycle transition.
type StateHandler func(StateTransition)

// Client is the abstract contract the call manager drives. Exactly one
// active call is permitted at a time; a second PlaceCall while one is in
// flight fails with coreerr's Busy sentinel.
type Client interface {
	// Register attempts registration with the configured peer, idempotently,
	// returning once a terminal registration status is known or ctx is done.
	// It applies no registration timeout of its own; timing.RegistrationMS
	// is not read by either implementation.
	Register(ctx context.Context) error
	// PlaceCall starts an outbound call and returns immediately; progress is
	// reported asynchronously via the OnCallState handler.
	PlaceCall(ctx context.Context, destination string) (CallHandle, error)
	// Answer accepts an inbound call that is currently Ringing.
	Answer(ctx context.Context, call CallHandle) error
	// Reject declines an inbound call that is currently Ringing.
	Reject(ctx context.Context, call CallHandle) error
	// Hangup terminates an in-progress call regardless of its current state.
	Hangup(ctx context.Context, call CallHandle) error
	// OnIncoming registers the callback invoked when an inbound call
	// arrives. Registering again replaces the previous handler.
	OnIncoming(handler IncomingHandler)
	// OnCallState registers the callback invoked on every call-lifecycle
	// transition. Registering again replaces the previous handler.
	OnCallState(handler StateHandler)
	// Shutdown cancels registration, terminates all calls, and releases
	// audio/network resources.
	Shutdown(ctx context.Context) error
}
