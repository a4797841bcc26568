package events

import (
	"context"
	"log/slog"
)

// PushForwarder subscribes to a Bus and forwards every event to an attached
// out-of-process channel (spec §4.7 "a second subscriber forwards events to
// an out-of-process push channel"). The channel's far side — an admin UI or
// mobile push gateway — is out of scope for this core.
type PushForwarder struct {
	log *slog.Logger
	out chan<- Event
}

// NewPushForwarder constructs a forwarder that writes every received event
// to out. out is owned by the caller; PushForwarder never closes it.
func NewPushForwarder(log *slog.Logger, out chan<- Event) *PushForwarder {
	if log == nil {
		log = slog.Default()
	}
	return &PushForwarder{log: log.With("component", "push_forwarder"), out: out}
}

// Run subscribes to bus and forwards events until ctx is cancelled. Forward
// attempts never block the bus: a full out channel causes this event to be
// dropped and logged, not buffered.
func (f *PushForwarder) Run(ctx context.Context, bus *Bus) {
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			select {
			case f.out <- ev:
			default:
				f.log.Warn("push channel full, dropping event")
			}
		}
	}
}
