package callmanager

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rotarycore/phonecore/internal/config"
	"github.com/rotarycore/phonecore/internal/events"
	"github.com/rotarycore/phonecore/internal/signalling"
)

func TestResolveDestinationSpeedDialMatch(t *testing.T) {
	cfg := &config.Config{SpeedDial: map[string]string{"1": "+15551234567"}}
	dest, code, permitted := resolveDestination(cfg, "1")
	assert.True(t, permitted)
	assert.Equal(t, "+15551234567", dest)
	assert.Equal(t, "1", code)
}

func TestResolveDestinationAllowListExactMatch(t *testing.T) {
	cfg := &config.Config{AllowList: []string{"+15551234567"}}
	dest, code, permitted := resolveDestination(cfg, "+15551234567")
	assert.True(t, permitted)
	assert.Equal(t, "+15551234567", dest)
	assert.Empty(t, code)
}

func TestResolveDestinationAllowListTrimsLeadingPlus(t *testing.T) {
	cfg := &config.Config{AllowList: []string{"15551234567"}}
	_, _, permitted := resolveDestination(cfg, "+15551234567")
	assert.True(t, permitted)
}

func TestResolveDestinationWildcard(t *testing.T) {
	cfg := &config.Config{AllowList: []string{"*"}}
	dest, _, permitted := resolveDestination(cfg, "5551234")
	assert.True(t, permitted)
	assert.Equal(t, "5551234", dest)
}

func TestResolveDestinationNotPermitted(t *testing.T) {
	cfg := &config.Config{AllowList: []string{"+15551234567"}}
	_, _, permitted := resolveDestination(cfg, "900555")
	assert.False(t, permitted)
}

func TestCauseToStatus(t *testing.T) {
	cases := map[signalling.EndCause]events.CallStatus{
		signalling.NoAnswer:     events.StatusMissed,
		signalling.Rejected:     events.StatusRejected,
		signalling.Busy:         events.StatusFailed,
		signalling.NetworkError: events.StatusFailed,
	}
	for cause, want := range cases {
		assert.Equal(t, want, causeToStatus(cause), "cause %v", cause)
	}
}

func TestCauseToMessageNeverEmpty(t *testing.T) {
	for _, cause := range []signalling.EndCause{
		signalling.Busy, signalling.NoAnswer, signalling.Rejected,
		signalling.NetworkError, signalling.Normal, signalling.CauseNone,
	} {
		assert.NotEmpty(t, causeToMessage(cause))
	}
}
