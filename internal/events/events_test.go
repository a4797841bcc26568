package events

import (
	"context"
	"testing"
	"time"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus(nil)
	ch1, unsub1 := bus.Subscribe()
	defer unsub1()
	ch2, unsub2 := bus.Subscribe()
	defer unsub2()

	bus.Publish(DigitDialed{Digit: 5, NumberSoFar: "5"})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			dd, ok := ev.(DigitDialed)
			if !ok || dd.Digit != 5 {
				t.Fatalf("unexpected event: %#v", ev)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(nil)
	ch, unsub := bus.Subscribe()
	unsub()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	bus := NewBus(nil)
	ch, _ := bus.Subscribe()

	for i := 0; i < subscriberQueueSize+10; i++ {
		bus.Publish(ConfigChanged{Section: "sip"})
	}

	if bus.SubscriberCount() != 0 {
		t.Fatal("expected the overwhelmed subscriber to have been dropped")
	}

	// Draining ch must eventually observe the channel closed, not block
	// forever, since Publish closed it on drop.
	for range ch {
	}
}

func TestPushForwarderForwardsUntilCancelled(t *testing.T) {
	bus := NewBus(nil)
	out := make(chan Event, 4)
	fwd := NewPushForwarder(nil, out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		fwd.Run(ctx, bus)
		close(done)
	}()

	// Run subscribes from its own goroutine; events published before that
	// subscription exists are not forwarded.
	for bus.SubscriberCount() == 0 {
		time.Sleep(time.Millisecond)
	}

	bus.Publish(CallStarted{Direction: Outbound, Number: "+15551234567"})

	select {
	case ev := <-out:
		cs, ok := ev.(CallStarted)
		if !ok || cs.Number != "+15551234567" {
			t.Fatalf("unexpected event: %#v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for forwarded event")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forwarder did not exit after cancellation")
	}
}
