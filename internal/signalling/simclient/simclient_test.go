package simclient

import (
	"context"
	"testing"

	"github.com/rotarycore/phonecore/internal/coreerr"
	"github.com/rotarycore/phonecore/internal/signalling"
)

func TestRegisterSucceedsByDefault(t *testing.T) {
	c := New()
	if err := c.Register(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !c.Registered() {
		t.Fatal("expected Registered() true after successful Register")
	}
}

func TestFailNextRegistrationsReturnsTypedError(t *testing.T) {
	c := New()
	c.FailNextRegistrations(1)
	err := c.Register(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	var rf *coreerr.ErrRegistrationFailed
	if !asRegFailed(err, &rf) {
		t.Fatalf("expected ErrRegistrationFailed, got %v", err)
	}
	if err := c.Register(context.Background()); err != nil {
		t.Fatalf("expected second Register to succeed, got %v", err)
	}
}

func asRegFailed(err error, out **coreerr.ErrRegistrationFailed) bool {
	rf, ok := err.(*coreerr.ErrRegistrationFailed)
	if ok {
		*out = rf
	}
	return ok
}

func TestSecondPlaceCallFailsBusy(t *testing.T) {
	c := New()
	if _, err := c.PlaceCall(context.Background(), "+15551234567"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.PlaceCall(context.Background(), "+15559999999"); err != coreerr.ErrBusy {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestOutboundAnsweredThenHangupReachesEnded(t *testing.T) {
	c := New()
	var transitions []signalling.CallState
	c.OnCallState(func(tr signalling.StateTransition) { transitions = append(transitions, tr.State) })

	handle, err := c.PlaceCall(context.Background(), "+15551234567")
	if err != nil {
		t.Fatal(err)
	}
	c.SimulateRemoteAnswer(handle)
	if err := c.Hangup(context.Background(), handle); err != nil {
		t.Fatal(err)
	}

	want := []signalling.CallState{signalling.Initiating, signalling.Ringing, signalling.Answered, signalling.Connected, signalling.Ended}
	if len(transitions) != len(want) {
		t.Fatalf("expected %v, got %v", want, transitions)
	}
	for i, w := range want {
		if transitions[i] != w {
			t.Fatalf("expected %v, got %v", want, transitions)
		}
	}
}

func TestIncomingCallInvokesIncomingHandler(t *testing.T) {
	c := New()
	var gotCaller string
	c.OnIncoming(func(call signalling.CallHandle, callerID string) { gotCaller = callerID })

	if _, err := c.SimulateIncoming("+15551234567"); err != nil {
		t.Fatal(err)
	}
	if gotCaller != "+15551234567" {
		t.Fatalf("expected caller id to be reported, got %q", gotCaller)
	}
}

func TestMissedCallEndsWithNoAnswerCause(t *testing.T) {
	c := New()
	var lastCause signalling.EndCause
	c.OnCallState(func(tr signalling.StateTransition) {
		if tr.State == signalling.Ended {
			lastCause = tr.Cause
		}
	})

	handle, err := c.SimulateIncoming("+15551234567")
	if err != nil {
		t.Fatal(err)
	}
	c.SimulateRemoteHangup(handle)

	if lastCause != signalling.NoAnswer {
		t.Fatalf("expected NoAnswer cause for a call ended before pickup, got %v", lastCause)
	}
}
