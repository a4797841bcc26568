package sipclient

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/sdp/v3"
	"github.com/zaf/g711"

	"github.com/rotarycore/phonecore/internal/audio"
)

// pcmuPayloadType is the static RTP payload type for G.711 µ-law, the only
// codec this endpoint offers or accepts.
const pcmuPayloadType = 0

const (
	rtpSampleRate   = 8000
	rtpFrameSamples = 160 // 20ms at 8kHz, matching audiohw's block size
	rtpFrameDur     = 20 * time.Millisecond
)

// portAllocator hands out RTP ports from a fixed range, one at a time, by
// attempting a UDP bind and returning on the first success. Mirrors the
// pack's RTP proxy, which also draws from a bounded configured range rather
// than trusting the kernel's ephemeral allocator.
type portAllocator struct {
	mu   sync.Mutex
	next int
	min  int
	max  int
}

func newPortAllocator(min, max int) *portAllocator {
	if min <= 0 || max < min {
		min, max = 20000, 20200
	}
	return &portAllocator{next: min, min: min, max: max}
}

func (a *portAllocator) listen(host string) (*net.UDPConn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for tries := 0; tries <= a.max-a.min; tries++ {
		port := a.next
		a.next++
		if a.next > a.max {
			a.next = a.min
		}
		conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(host), Port: port})
		if err == nil {
			return conn, nil
		}
	}
	return nil, fmt.Errorf("sipclient: no free rtp port in [%d,%d]", a.min, a.max)
}

// buildOfferSDP constructs an SDP offer advertising PCMU on localAddr.
func buildOfferSDP(localIP string, rtpPort int) ([]byte, error) {
	return buildSDP(localIP, rtpPort, "rotarycore")
}

// buildAnswerSDP constructs an SDP answer to an inbound offer, accepting
// PCMU at our local RTP endpoint.
func buildAnswerSDP(localIP string, rtpPort int) ([]byte, error) {
	return buildSDP(localIP, rtpPort, "rotarycore-answer")
}

func buildSDP(localIP string, rtpPort int, sessionName string) ([]byte, error) {
	desc := &sdp.SessionDescription{
		Origin: sdp.Origin{
			Username:       "rotarycore",
			SessionID:      1,
			SessionVersion: 1,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: localIP,
		},
		SessionName: sdp.SessionName(sessionName),
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: localIP},
		},
		TimeDescriptions: []sdp.TimeDescription{{Timing: sdp.Timing{StartTime: 0, StopTime: 0}}},
		MediaDescriptions: []*sdp.MediaDescription{
			{
				MediaName: sdp.MediaName{
					Media:   "audio",
					Port:    sdp.RangedPort{Value: rtpPort},
					Protos:  []string{"RTP", "AVP"},
					Formats: []string{"0"},
				},
				Attributes: []sdp.Attribute{
					{Key: "rtpmap", Value: "0 PCMU/8000"},
					{Key: "sendrecv"},
				},
			},
		},
	}
	return desc.Marshal()
}

// remoteRTPEndpoint parses an SDP answer/offer body and returns the remote
// party's RTP address for the first audio media description offering PCMU.
func remoteRTPEndpoint(body []byte) (*net.UDPAddr, error) {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal(body); err != nil {
		return nil, fmt.Errorf("parsing remote sdp: %w", err)
	}
	host := ""
	if desc.ConnectionInformation != nil && desc.ConnectionInformation.Address != nil {
		host = desc.ConnectionInformation.Address.Address
	}
	for _, md := range desc.MediaDescriptions {
		if md.MediaName.Media != "audio" {
			continue
		}
		h := host
		if md.ConnectionInformation != nil && md.ConnectionInformation.Address != nil {
			h = md.ConnectionInformation.Address.Address
		}
		if h == "" {
			return nil, fmt.Errorf("remote sdp audio media has no connection address")
		}
		return &net.UDPAddr{IP: net.ParseIP(h), Port: md.MediaName.Port.Value}, nil
	}
	return nil, fmt.Errorf("remote sdp has no audio media description")
}

// mediaSession bridges RTP/G.711 to the local audio.Device for the
// lifetime of one connected call. Exactly one mediaSession runs at a time,
// matching the device's single-Stream contract.
type mediaSession struct {
	logger *slog.Logger

	conn   *net.UDPConn
	remote *net.UDPAddr
	stream audio.Stream

	ssrc      uint32
	seq       uint16
	timestamp uint32

	cancel context.CancelFunc
	done   chan struct{}
}

func startMediaSession(ctx context.Context, logger *slog.Logger, conn *net.UDPConn, remote *net.UDPAddr, stream audio.Stream) *mediaSession {
	sessCtx, cancel := context.WithCancel(ctx)
	m := &mediaSession{
		logger: logger,
		conn:   conn,
		remote: remote,
		stream: stream,
		ssrc:   ssrcSeed(),
		seq:    1,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go m.run(sessCtx)
	return m
}

func (m *mediaSession) run(ctx context.Context) {
	defer close(m.done)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); m.sendLoop(ctx) }()
	go func() { defer wg.Done(); m.recvLoop(ctx) }()
	wg.Wait()
}

func (m *mediaSession) sendLoop(ctx context.Context) {
	ticker := time.NewTicker(rtpFrameDur)
	defer ticker.Stop()
	pcm := make([]int16, rtpFrameSamples)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n, err := m.stream.ReadMic(pcm)
		if err != nil {
			m.logger.Warn("mic read failed, ending media session", "error", err)
			return
		}
		payload := g711.EncodeUlaw(int16SamplesToBytes(pcm[:n]))
		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    pcmuPayloadType,
				SequenceNumber: m.seq,
				Timestamp:      m.timestamp,
				SSRC:           m.ssrc,
			},
			Payload: payload,
		}
		data, err := pkt.Marshal()
		if err != nil {
			m.logger.Warn("marshalling outbound rtp packet failed", "error", err)
			continue
		}
		if _, err := m.conn.WriteToUDP(data, m.remote); err != nil {
			m.logger.Warn("writing rtp packet failed", "error", err)
		}
		m.seq++
		m.timestamp += rtpFrameSamples
	}
}

func (m *mediaSession) recvLoop(ctx context.Context) {
	buf := make([]byte, 1500)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_ = m.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, _, err := m.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}
		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}
		pcmBytes := g711.DecodeUlaw(pkt.Payload)
		if err := m.stream.WriteSpeaker(bytesToInt16Samples(pcmBytes)); err != nil {
			m.logger.Warn("speaker write failed", "error", err)
			return
		}
	}
}

// Close stops the media bridge and releases the RTP socket and stream. Safe
// to call more than once.
func (m *mediaSession) Close() {
	m.cancel()
	<-m.done
	m.conn.Close()
	m.stream.Close()
}

func ssrcSeed() uint32 {
	return uint32(time.Now().UnixNano()) | 1
}

func int16SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

func bytesToInt16Samples(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return out
}
