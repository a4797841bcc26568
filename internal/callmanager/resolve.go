package callmanager

import (
	"strings"

	"github.com/rotarycore/phonecore/internal/config"
	"github.com/rotarycore/phonecore/internal/events"
	"github.com/rotarycore/phonecore/internal/signalling"
)

// resolveDestination implements spec.md §4.6's destination resolution: an
// exact speed-dial match first, then an allow-list match (trimming a
// leading '+' as a literal before comparing), then not-permitted.
func resolveDestination(cfg *config.Config, buffer string) (destination, speedDialCode string, permitted bool) {
	if dest, ok := cfg.SpeedDial[buffer]; ok {
		return dest, buffer, true
	}

	trimmed := strings.TrimPrefix(buffer, "+")
	for _, entry := range cfg.AllowList {
		if entry == "*" {
			return buffer, "", true
		}
		if entry == buffer || strings.TrimPrefix(entry, "+") == trimmed {
			return buffer, "", true
		}
	}
	return "", "", false
}

// causeToStatus maps a call's terminal EndCause, observed while the local
// leg never reached Connected, to the call-log status it closes with.
func causeToStatus(cause signalling.EndCause) events.CallStatus {
	switch cause {
	case signalling.NoAnswer:
		return events.StatusMissed
	case signalling.Rejected:
		return events.StatusRejected
	default:
		return events.StatusFailed
	}
}

// causeToMessage produces the human-readable error_message recorded
// alongside a non-Completed closure.
func causeToMessage(cause signalling.EndCause) string {
	switch cause {
	case signalling.Busy:
		return "destination busy"
	case signalling.NoAnswer:
		return "no answer"
	case signalling.Rejected:
		return "call rejected"
	case signalling.NetworkError:
		return "signalling network error"
	default:
		return "call ended"
	}
}
