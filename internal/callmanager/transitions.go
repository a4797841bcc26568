package callmanager

import (
	"time"

	"github.com/rotarycore/phonecore/internal/callstore"
	"github.com/rotarycore/phonecore/internal/coreerr"
	"github.com/rotarycore/phonecore/internal/events"
	"github.com/rotarycore/phonecore/internal/signalling"
)

// maxBufferLen is the digit-buffer safety bound (spec.md §4.6).
const maxBufferLen = 20

// handleHook implements every row of the transition table keyed on a hook
// edge. Called with m.mu held.
func (m *Manager) handleHook(onHook bool) {
	if !onHook {
		m.handlePickup()
		return
	}
	m.handleHangup()
}

func (m *Manager) handlePickup() {
	switch m.state {
	case Ringing:
		if m.haveActiveCall {
			if err := m.client.Answer(m.runCtx, m.activeCall); err != nil {
				m.logger.Error("answering inbound call failed", "error", err)
			}
		}
		m.ringer.Stop()
		m.answeredAt = time.Now()
		m.setState(Connected)
	case Idle:
		m.setState(OffHookWaiting)
		m.playTone(m.cfg.Audio.DialToneFile)
	default:
		// Already off-hook; a second pickup edge is a debounce artifact.
	}
}

func (m *Manager) handleHangup() {
	if m.state == Idle || m.state == Ringing {
		return
	}
	m.hangupEverything()
}

// hangupEverything implements the "any (off-hook) hang-up -> Idle" row:
// terminate any active call, close any in-flight record, stop tones and the
// ringer, clear the dial buffer, and return to Idle.
func (m *Manager) hangupEverything() {
	m.cancelInterDigitTimer()
	m.cancelCallAttemptTimer()
	m.stopTone()
	m.ringer.Stop()

	if m.haveActiveCall {
		if err := m.client.Hangup(m.runCtx, m.activeCall); err != nil {
			m.logger.Error("hangup failed", "error", err)
		}
		m.haveActiveCall = false
	}

	if m.recordOpen {
		if !m.answeredAt.IsZero() {
			m.closeRecord(events.StatusCompleted, "")
		} else {
			m.closeRecord(events.StatusFailed, "")
		}
	}

	m.setState(Idle)
}

func (m *Manager) handleDigit(digit int) {
	switch m.state {
	case OffHookWaiting:
		m.stopTone()
		m.buffer += digitRune(digit)
		m.currentNumber = m.buffer
		m.resetInterDigitTimer()
		m.setState(Dialing)
		m.bus.Publish(events.DigitDialed{Digit: digit, NumberSoFar: m.buffer})
	case Dialing:
		if len(m.buffer) < maxBufferLen {
			m.buffer += digitRune(digit)
			m.currentNumber = m.buffer
			m.bus.Publish(events.DigitDialed{Digit: digit, NumberSoFar: m.buffer})
		}
		m.resetInterDigitTimer()
	default:
		// A digit arriving outside OffHookWaiting/Dialing (e.g. a stray
		// pulse while Connected) is not part of the transition table and
		// is ignored.
	}
}

func digitRune(d int) string {
	return string(rune('0' + d%10))
}

func (m *Manager) handleInterDigitTimeout() {
	if m.state != Dialing {
		return
	}
	if m.buffer == "" {
		return
	}

	m.setState(Validating)

	dialed := m.buffer
	dest, speedCode, permitted := resolveDestination(m.cfg, m.buffer)
	if !permitted {
		m.openRecord(events.Outbound, dialed, "", "", "")
		m.closeRecord(events.StatusFailed, "blocked by allow-list policy")
		m.errMsg = "destination not permitted"
		m.playTone(m.cfg.Audio.ErrorToneFile)
		m.setState(Error)
		return
	}

	m.setState(Calling)
	m.openRecord(events.Outbound, dialed, dest, speedCode, "")

	handle, err := m.client.PlaceCall(m.runCtx, dest)
	if err != nil {
		m.closeRecord(events.StatusFailed, err.Error())
		m.errMsg = err.Error()
		m.setState(Error)
		return
	}
	m.haveActiveCall = true
	m.activeCall = handle
	m.resetCallAttemptTimer()
}

func (m *Manager) handleCallAttemptTimeout() {
	if m.state != Calling {
		return
	}
	if m.haveActiveCall {
		if err := m.client.Hangup(m.runCtx, m.activeCall); err != nil {
			m.logger.Error("hangup of timed-out call attempt failed", "error", err)
		}
		m.haveActiveCall = false
	}
	m.closeRecord(events.StatusFailed, "call attempt timed out")
	m.errMsg = "call attempt timed out"
	m.setState(Error)
}

func (m *Manager) handleCallState(tr signalling.StateTransition) {
	if !m.haveActiveCall || tr.Call != m.activeCall {
		return
	}

	switch tr.State {
	case signalling.Connected:
		if m.state == Calling {
			m.cancelCallAttemptTimer()
			m.answeredAt = time.Now()
			m.setState(Connected)
		}
	case signalling.Ended:
		m.handleCallEnded(tr.Cause)
	}
}

func (m *Manager) handleCallEnded(cause signalling.EndCause) {
	switch m.state {
	case Calling:
		m.cancelCallAttemptTimer()
		m.haveActiveCall = false
		m.closeRecord(causeToStatus(cause), causeToMessage(cause))
		m.errMsg = causeToMessage(cause)
		m.setState(Error)
	case Connected:
		// "awaiting hang-up": the local handset is still off-hook, so the
		// phone stays logically Connected until the user hangs up; only
		// the record closes now.
		m.haveActiveCall = false
		m.closeRecord(events.StatusCompleted, "")
	case Ringing:
		m.haveActiveCall = false
		m.ringer.Stop()
		m.closeRecord(events.StatusMissed, "")
		m.setState(Idle)
	}
}

func (m *Manager) handleIncoming(call signalling.CallHandle, callerID string) {
	if m.state != Idle {
		if err := m.client.Reject(m.runCtx, call); err != nil {
			m.logger.Error("rejecting incoming call while busy failed", "error", err)
		}
		return
	}

	m.activeCall = call
	m.haveActiveCall = true
	m.inboundCaller = callerID
	m.currentNumber = callerID
	m.setState(Ringing)
	m.ringer.Ring()
	m.openRecord(events.Inbound, "", "", "", callerID)
}

// setState transitions to new, clearing the dial buffer on every entry into
// Idle and publishing PhoneStateChanged for every actual state change.
func (m *Manager) setState(new State) {
	old := m.state
	if old == new {
		return
	}
	m.state = new
	if new == Idle {
		m.buffer = ""
		m.currentNumber = ""
	}
	if new != Error {
		m.errMsg = ""
	}
	m.bus.Publish(events.PhoneStateChanged{
		Old:           old.String(),
		New:           new.String(),
		CurrentNumber: m.currentNumber,
		Error:         m.errMsg,
	})
}

func (m *Manager) resetInterDigitTimer() {
	m.cancelInterDigitTimer()
	timeout := time.Duration(m.cfg.Timing.InterDigitMS) * time.Millisecond
	m.interDigitTimer = time.AfterFunc(timeout, func() { m.enqueue(interDigitTimeoutMsg{}) })
}

func (m *Manager) cancelInterDigitTimer() {
	if m.interDigitTimer != nil {
		m.interDigitTimer.Stop()
		m.interDigitTimer = nil
	}
}

func (m *Manager) resetCallAttemptTimer() {
	m.cancelCallAttemptTimer()
	timeout := time.Duration(m.cfg.Timing.CallAttemptMS) * time.Millisecond
	m.callAttemptTimer = time.AfterFunc(timeout, func() { m.enqueue(callAttemptTimeoutMsg{}) })
}

func (m *Manager) cancelCallAttemptTimer() {
	if m.callAttemptTimer != nil {
		m.callAttemptTimer.Stop()
		m.callAttemptTimer = nil
	}
}

func (m *Manager) playTone(path string) {
	m.stopTone()
	if path == "" || m.device == nil {
		return
	}
	pb, err := m.device.Play(m.runCtx, path)
	if err != nil {
		m.logger.Error("playing tone failed", "path", path, "error", err)
		return
	}
	m.tonePlayback = pb
}

func (m *Manager) stopTone() {
	if m.tonePlayback != nil {
		m.tonePlayback.Stop()
		m.tonePlayback = nil
	}
}

func (m *Manager) openRecord(direction events.Direction, dialedNumber, destination, speedDialCode, callerID string) {
	if m.recordOpen {
		// P1: at most one in-progress CallRecord at a time. Every transition
		// path closes the prior record before a new call can reach Calling
		// or Ringing, so reaching here means that guarantee broke.
		coreerr.Invariant("openRecord called while a record is already open")
	}
	now := time.Now().UTC()
	r := &callstore.Record{
		Timestamp:     now,
		Direction:     direction,
		Status:        events.StatusInProgress,
		CallerID:      callerID,
		DialedNumber:  dialedNumber,
		Destination:   destination,
		SpeedDialCode: speedDialCode,
	}
	if err := m.store.Create(m.runCtx, r); err != nil {
		m.logger.Error("creating call record failed", "error", err)
		return
	}
	m.recordOpen = true
	m.recordID = r.ID
	m.recordStart = now
	m.answeredAt = time.Time{}

	number := destination
	if direction == events.Inbound {
		number = callerID
	}
	m.bus.Publish(events.CallStarted{Direction: direction, Number: number})
}

func (m *Manager) closeRecord(status events.CallStatus, errMsg string) {
	if !m.recordOpen {
		return
	}
	duration := 0
	if !m.answeredAt.IsZero() {
		duration = int(time.Since(m.answeredAt).Seconds())
	}
	if err := m.store.Close(m.runCtx, m.recordID, status, duration, errMsg); err != nil {
		m.logger.Error("closing call record failed", "error", err)
	}
	m.bus.Publish(events.CallLogUpdated{RecordID: m.recordID})
	m.bus.Publish(events.CallEnded{Status: status, DurationSeconds: duration})
	m.recordOpen = false
	m.answeredAt = time.Time{}
}
