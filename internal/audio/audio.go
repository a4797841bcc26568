// Package audio defines the process-wide audio device abstraction shared,
// never concurrently, by the ringer (waveform playback) and the signalling
// client's RTP path (mic capture / speaker output). Concurrency is not
// enforced here — the call manager's transition table is the sole
// guarantor that no state permits both a ring and a connected call at once
// (spec invariant P3).
package audio

import "context"

// Playback represents one looping waveform playback started by Device.Play.
// The waveform loops automatically until Stop is called or the device
// determines playback has permanently failed, at which point Done closes.
type Playback interface {
	// Done is closed when playback ends, whether through Stop or on its
	// own (device failure).
	Done() <-chan struct{}
	// Stop ends playback and releases the waveform. Safe to call more than
	// once and safe to call after Done has already closed.
	Stop()
}

// Stream is a gain-adjusted full-duplex PCM connection to the audio
// device's native input/output, used by the signalling client to bridge
// microphone/speaker audio into and out of RTP.
type Stream interface {
	// ReadMic fills buf with the next mic samples, gain already applied,
	// and returns the number of samples written.
	ReadMic(buf []int16) (int, error)
	// WriteSpeaker plays buf through the speaker, gain already applied.
	WriteSpeaker(buf []int16) error
	// Close releases the stream, returning the device to availability.
	Close() error
}

// Device is the process-wide audio resource. Exactly one implementation is
// constructed by the process controller and handed, as scoped access, to
// the ringer and the signalling client.
type Device interface {
	// Play starts looping playback of the waveform at path and returns a
	// handle to stop it. Waveforms shorter than the caller's desired
	// duration are expected to loop within that window; the caller is
	// responsible for calling Stop once its own timeout elapses.
	Play(ctx context.Context, path string) (Playback, error)
	// OpenStream opens the full-duplex mic/speaker stream used for an
	// active call, applying the given gain multipliers (each in [0.0,
	// 2.0]; spec §3 "Gain"). Only one Stream may be open at a time.
	OpenStream(ctx context.Context, micGain, speakerGain float64) (Stream, error)
	// Close releases the underlying hardware device.
	Close() error
}
