// Package audiohw is the real audio.Device binding, built on
// github.com/gordonklaus/portaudio against the process's single USB audio
// class device (spec §6 "Audio device").
package audiohw

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/rotarycore/phonecore/internal/audio"
)

const (
	sampleRate     = 8000 // narrowband telephony rate; matches the codecs the SIP stack negotiates
	framesPerBlock = 160  // 20ms at 8kHz
)

// Device is the real audio.Device. It opens the portaudio default
// input/output device lazily, on first Play or OpenStream, so a headless
// build (no audio hardware present) only fails when audio is actually
// needed.
type Device struct {
	mu   sync.Mutex
	init bool
}

// New constructs a Device. portaudio.Initialize is deferred to first use.
func New() *Device {
	return &Device{}
}

func (d *Device) ensureInit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.init {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("audiohw: initializing portaudio: %w", err)
	}
	d.init = true
	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.init {
		return nil
	}
	d.init = false
	return portaudio.Terminate()
}

// Play starts looping playback of a 16-bit PCM waveform file at sampleRate
// through the default output device until Stop is called.
func (d *Device) Play(ctx context.Context, path string) (audio.Playback, error) {
	if err := d.ensureInit(); err != nil {
		return nil, err
	}

	samples, err := loadPCM16(path)
	if err != nil {
		return nil, fmt.Errorf("audiohw: loading waveform %q: %w", path, err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("audiohw: waveform %q is empty", path)
	}

	out := make([]int16, framesPerBlock)
	stream, err := openStreamWithRetry(ctx, func() (*portaudio.Stream, error) {
		return portaudio.OpenDefaultStream(0, 1, float64(sampleRate), len(out), &out)
	})
	if err != nil {
		return nil, fmt.Errorf("audiohw: opening output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("audiohw: starting output stream: %w", err)
	}

	pb := &playback{done: make(chan struct{})}
	go func() {
		defer close(pb.done)
		defer stream.Close()
		pos := 0
		for {
			select {
			case <-pb.stop:
				stream.Stop()
				return
			default:
			}
			for i := range out {
				out[i] = samples[pos]
				pos++
				if pos >= len(samples) {
					pos = 0 // loop: a waveform shorter than the caller's window repeats
				}
			}
			if err := stream.Write(); err != nil {
				return
			}
		}
	}()
	return pb, nil
}

type playback struct {
	done chan struct{}
	stop chan struct{}
	once sync.Once
}

func (p *playback) Done() <-chan struct{} { return p.done }

func (p *playback) Stop() {
	p.once.Do(func() {
		if p.stop == nil {
			p.stop = make(chan struct{})
		}
		close(p.stop)
	})
	<-p.done
}

// OpenStream opens a full-duplex mic/speaker stream, applying the gain
// multipliers in software before/after the portaudio callback.
func (d *Device) OpenStream(ctx context.Context, micGain, speakerGain float64) (audio.Stream, error) {
	if err := d.ensureInit(); err != nil {
		return nil, err
	}

	in := make([]int16, framesPerBlock)
	out := make([]int16, framesPerBlock)
	stream, err := openStreamWithRetry(ctx, func() (*portaudio.Stream, error) {
		return portaudio.OpenDefaultStream(1, 1, float64(sampleRate), framesPerBlock, &in, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("audiohw: opening duplex stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("audiohw: starting duplex stream: %w", err)
	}

	return &hwStream{
		stream:      stream,
		in:          in,
		out:         out,
		micGain:     micGain,
		speakerGain: speakerGain,
	}, nil
}

type hwStream struct {
	mu          sync.Mutex
	stream      *portaudio.Stream
	in, out     []int16
	micGain     float64
	speakerGain float64
}

func (s *hwStream) ReadMic(buf []int16) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.stream.Read(); err != nil {
		return 0, fmt.Errorf("audiohw: reading mic samples: %w", err)
	}
	n := copy(buf, s.in)
	applyGain(buf[:n], s.micGain)
	return n, nil
}

func (s *hwStream) WriteSpeaker(buf []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := copy(s.out, buf)
	applyGain(s.out[:n], s.speakerGain)
	for i := n; i < len(s.out); i++ {
		s.out[i] = 0
	}
	if err := s.stream.Write(); err != nil {
		return fmt.Errorf("audiohw: writing speaker samples: %w", err)
	}
	return nil
}

func (s *hwStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream.Close()
}

func applyGain(buf []int16, gain float64) {
	if gain == 1.0 {
		return
	}
	for i, v := range buf {
		scaled := float64(v) * gain
		if scaled > 32767 {
			scaled = 32767
		} else if scaled < -32768 {
			scaled = -32768
		}
		buf[i] = int16(scaled)
	}
}

// streamOpenRetries/streamOpenBackoff absorb the brief "device busy" window
// a USB audio class device can report right after the previous stream on it
// closed (e.g. the ringer releasing the device as the signalling client's
// media session claims it).
const (
	streamOpenRetries = 3
	streamOpenBackoff = 50 * time.Millisecond
)

func openStreamWithRetry(ctx context.Context, open func() (*portaudio.Stream, error)) (*portaudio.Stream, error) {
	var lastErr error
	for attempt := 0; attempt < streamOpenRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(streamOpenBackoff):
			}
		}
		stream, err := open()
		if err == nil {
			return stream, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// loadPCM16 reads a raw headerless little-endian 16-bit PCM waveform file.
// Waveform authoring/conversion (from WAV or any other container format) is
// a packaging concern outside this core; operators provide pre-converted
// raw PCM files for ring/dial-tone/busy-tone/error-tone (spec §3 "Audio
// assignments").
func loadPCM16(path string) ([]int16, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var samples []int16
	for {
		var v int16
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		samples = append(samples, v)
	}
	return samples, nil
}
