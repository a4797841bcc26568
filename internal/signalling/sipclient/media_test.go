package sipclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOfferSDPAdvertisesPCMU(t *testing.T) {
	body, err := buildOfferSDP("127.0.0.1", 20010)
	require.NoError(t, err)
	assert.Contains(t, string(body), "m=audio 20010 RTP/AVP 0")
	assert.Contains(t, string(body), "a=rtpmap:0 PCMU/8000")
	assert.Contains(t, string(body), "c=IN IP4 127.0.0.1")
}

func TestRemoteRTPEndpointParsesSessionLevelAddress(t *testing.T) {
	offer, err := buildOfferSDP("192.0.2.10", 30000)
	require.NoError(t, err)

	addr, err := remoteRTPEndpoint(offer)
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.10", addr.IP.String())
	assert.Equal(t, 30000, addr.Port)
}

func TestRemoteRTPEndpointRejectsMissingAudioMedia(t *testing.T) {
	_, err := remoteRTPEndpoint([]byte("v=0\r\no=- 1 1 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"))
	assert.Error(t, err)
}

func TestInt16ByteRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 1234}
	got := bytesToInt16Samples(int16SamplesToBytes(samples))
	assert.Equal(t, samples, got)
}

func TestPortAllocatorAvoidsHandingOutTheSamePortTwiceConcurrently(t *testing.T) {
	a := newPortAllocator(20100, 20110)
	conn1, err := a.listen("127.0.0.1")
	require.NoError(t, err)
	defer conn1.Close()

	conn2, err := a.listen("127.0.0.1")
	require.NoError(t, err)
	defer conn2.Close()

	assert.NotEqual(t, conn1.LocalAddr().String(), conn2.LocalAddr().String())
}

func TestCauseForStatus(t *testing.T) {
	cases := map[int]string{
		486: "Busy",
		600: "Busy",
		480: "NoAnswer",
		408: "NoAnswer",
		603: "Rejected",
		403: "Rejected",
		500: "NetworkError",
	}
	for status, want := range cases {
		assert.Equal(t, want, causeForStatus(status).String())
	}
}
