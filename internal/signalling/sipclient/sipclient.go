// Package sipclient is the real signalling.Client: SIP registration and
// call control over github.com/emiago/sipgo, with RTP/G.711 media bridged
// through an audio.Device. It is grounded on the teacher's internal/sip
// package (trunk registration's digest-auth retry, the dialog manager's
// call-state bookkeeping, and the outbound INVITE response loop), adapted
// from a PBX's trunk/extension roles to a single endpoint that both places
// and receives calls against one SIP peer.
package sipclient

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/icholy/digest"

	"github.com/rotarycore/phonecore/internal/audio"
	"github.com/rotarycore/phonecore/internal/config"
	"github.com/rotarycore/phonecore/internal/coreerr"
	"github.com/rotarycore/phonecore/internal/signalling"
)

// Options configures a real SIP/RTP Client.
type Options struct {
	SIP config.SIPConfig
	// Device is the shared audio device the media session reads mic and
	// writes speaker samples through. Never used concurrently with the
	// ringer (spec invariant P3) — the call manager enforces that.
	Device audio.Device
	// LocalHost is the host this endpoint binds its SIP and RTP sockets
	// to and advertises in Contact/SDP, e.g. "0.0.0.0" or a LAN address.
	LocalHost string
	// LocalSIPPort is the UDP port the SIP stack listens on. 0 is invalid;
	// the phone core always runs a fixed local SIP port.
	LocalSIPPort int
	RTPPortMin   int
	RTPPortMax   int
	MicGain      float64
	SpeakerGain  float64
}

// Client is the real signalling.Client, backed by one SIP UA registered
// with a single peer. Exactly one active call is tracked at a time,
// matching the abstract contract.
type Client struct {
	opts   Options
	logger *slog.Logger

	ua  *sipgo.UserAgent
	srv *sipgo.Server
	cl  *sipgo.Client

	rtpPorts *portAllocator

	mu          sync.Mutex
	registered  bool
	active      *activeCall
	onIncoming  signalling.IncomingHandler
	onCallState signalling.StateHandler

	listenCancel context.CancelFunc
	listenWG     sync.WaitGroup
}

// activeCall tracks the one in-flight call, outbound or inbound.
type activeCall struct {
	handle   signalling.CallHandle
	outbound bool
	state    signalling.CallState
	callID   string

	// Outbound bookkeeping.
	inviteReq *sip.Request
	inviteTx  sip.ClientTransaction
	inviteRes *sip.Response

	// Inbound bookkeeping.
	serverReq *sip.Request
	serverTx  sip.ServerTransaction

	rtpConn  *net.UDPConn
	rtpPort  int
	media    *mediaSession
	cancel   context.CancelFunc
}

// New constructs a Client and starts its SIP listener. The returned Client
// is not registered until Register is called.
func New(opts Options) (*Client, error) {
	logger := slog.Default().With("component", "sipclient")

	ua, err := sipgo.NewUA(
		sipgo.WithUserAgent("rotarycore"),
		sipgo.WithUserAgentHostname(opts.LocalHost),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sip user agent: %w", err)
	}

	srv, err := sipgo.NewServer(ua, sipgo.WithServerLogger(logger))
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("creating sip server: %w", err)
	}

	cl, err := sipgo.NewClient(ua, sipgo.WithClientLogger(logger))
	if err != nil {
		srv.Close()
		ua.Close()
		return nil, fmt.Errorf("creating sip client: %w", err)
	}

	c := &Client{
		opts:     opts,
		logger:   logger,
		ua:       ua,
		srv:      srv,
		cl:       cl,
		rtpPorts: newPortAllocator(opts.RTPPortMin, opts.RTPPortMax),
	}

	c.srv.OnInvite(c.handleInvite)
	c.srv.OnBye(c.handleBye)
	c.srv.OnCancel(c.handleCancel)
	c.srv.OnAck(c.handleAck)

	ctx, cancel := context.WithCancel(context.Background())
	c.listenCancel = cancel
	addr := fmt.Sprintf("%s:%d", opts.LocalHost, opts.LocalSIPPort)
	c.listenWG.Add(1)
	go func() {
		defer c.listenWG.Done()
		if err := c.srv.ListenAndServe(ctx, "udp", addr); err != nil {
			c.logger.Error("sip udp listener stopped", "error", err)
		}
	}()

	return c, nil
}

// Register sends a REGISTER to the configured peer, retrying once with
// digest credentials on a 401/407 challenge, following the teacher's
// TrunkRegistrar.sendRegister.
func (c *Client) Register(ctx context.Context) error {
	recipientStr := fmt.Sprintf("sip:%s:%d", c.opts.SIP.Host, c.opts.SIP.Port)
	var recipient sip.Uri
	if err := sip.ParseUri(recipientStr, &recipient); err != nil {
		return fmt.Errorf("parsing registrar uri: %w", err)
	}

	req := sip.NewRequest(sip.REGISTER, recipient)
	req.SetTransport("UDP")

	aor := fmt.Sprintf("<sip:%s@%s>", c.opts.SIP.User, c.opts.SIP.Host)
	req.AppendHeader(sip.NewHeader("From", aor))
	req.AppendHeader(sip.NewHeader("To", aor))
	contact := fmt.Sprintf("<sip:%s@%s:%d>", c.opts.SIP.User, c.opts.LocalHost, c.opts.LocalSIPPort)
	req.AppendHeader(sip.NewHeader("Contact", contact))
	expiry := c.opts.SIP.RegisterIntervalS
	if expiry <= 0 {
		expiry = 3600
	}
	req.AppendHeader(sip.NewHeader("Expires", strconv.Itoa(expiry)))

	tx, err := c.cl.TransactionRequest(ctx, req, sipgo.ClientRequestRegisterBuild)
	if err != nil {
		return &coreerr.ErrRegistrationFailed{Reason: err.Error()}
	}
	res, err := awaitResponse(ctx, tx)
	tx.Terminate()
	if err != nil {
		return &coreerr.ErrRegistrationFailed{Reason: err.Error()}
	}

	if res.StatusCode == 401 || res.StatusCode == 407 {
		res, err = c.retryWithAuth(ctx, req, res, recipientStr)
		if err != nil {
			return &coreerr.ErrRegistrationFailed{Reason: err.Error()}
		}
	}

	if res.StatusCode != 200 {
		return &coreerr.ErrRegistrationFailed{Reason: fmt.Sprintf("register failed with status %d %s", res.StatusCode, res.Reason)}
	}

	c.mu.Lock()
	c.registered = true
	c.mu.Unlock()
	return nil
}

// retryWithAuth re-sends origReq with digest credentials computed from the
// challenge in challengeRes.
func (c *Client) retryWithAuth(ctx context.Context, origReq *sip.Request, challengeRes *sip.Response, uri string) (*sip.Response, error) {
	authHeader, authzHeader := "WWW-Authenticate", "Authorization"
	if challengeRes.StatusCode == 407 {
		authHeader, authzHeader = "Proxy-Authenticate", "Proxy-Authorization"
	}

	wwwAuth := challengeRes.GetHeader(authHeader)
	if wwwAuth == nil {
		return nil, fmt.Errorf("received %d but no %s header", challengeRes.StatusCode, authHeader)
	}
	chal, err := digest.ParseChallenge(wwwAuth.Value())
	if err != nil {
		return nil, fmt.Errorf("parsing auth challenge: %w", err)
	}
	cred, err := digest.Digest(chal, digest.Options{
		Method:   origReq.Method.String(),
		URI:      uri,
		Username: c.opts.SIP.User,
		Password: c.opts.SIP.Credential,
	})
	if err != nil {
		return nil, fmt.Errorf("computing digest: %w", err)
	}

	authReq := origReq.Clone()
	authReq.RemoveHeader("Via")
	authReq.AppendHeader(sip.NewHeader(authzHeader, cred.String()))

	tx, err := c.cl.TransactionRequest(ctx, authReq, sipgo.ClientRequestIncreaseCSEQ, sipgo.ClientRequestAddVia)
	if err != nil {
		return nil, fmt.Errorf("sending authenticated request: %w", err)
	}
	defer tx.Terminate()
	return awaitResponse(ctx, tx)
}

func awaitResponse(ctx context.Context, tx sip.ClientTransaction) (*sip.Response, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-tx.Done():
		return nil, fmt.Errorf("transaction terminated: %w", tx.Err())
	case res := <-tx.Responses():
		return res, nil
	}
}

// PlaceCall starts an outbound INVITE to destination, returning once the
// request is sent; state progress is reported via OnCallState.
func (c *Client) PlaceCall(ctx context.Context, destination string) (signalling.CallHandle, error) {
	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return signalling.CallHandle{}, coreerr.ErrBusy
	}
	handle := signalling.CallHandle{ID: newCallID()}
	callCtx, cancel := context.WithCancel(context.Background())
	ac := &activeCall{handle: handle, outbound: true, state: signalling.Initiating, callID: handle.ID, cancel: cancel}
	c.active = ac
	c.mu.Unlock()

	rtpConn, err := c.rtpPorts.listen(c.opts.LocalHost)
	if err != nil {
		c.clearActive(handle)
		return signalling.CallHandle{}, err
	}
	ac.rtpConn = rtpConn
	ac.rtpPort = rtpConn.LocalAddr().(*net.UDPAddr).Port

	offer, err := buildOfferSDP(c.opts.LocalHost, ac.rtpPort)
	if err != nil {
		rtpConn.Close()
		c.clearActive(handle)
		return signalling.CallHandle{}, err
	}

	recipientStr := fmt.Sprintf("sip:%s@%s:%d", destination, c.opts.SIP.Host, c.opts.SIP.Port)
	var recipient sip.Uri
	if err := sip.ParseUri(recipientStr, &recipient); err != nil {
		rtpConn.Close()
		c.clearActive(handle)
		return signalling.CallHandle{}, fmt.Errorf("parsing destination uri: %w", err)
	}

	req := sip.NewRequest(sip.INVITE, recipient)
	req.SetTransport("UDP")
	req.SetBody(offer)
	req.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
	req.AppendHeader(sip.NewHeader("Call-ID", handle.ID))
	from := &sip.FromHeader{
		DisplayName: c.opts.SIP.User,
		Address:     sip.Uri{Scheme: "sip", User: c.opts.SIP.User, Host: c.opts.LocalHost},
	}
	from.Params.Add("tag", sip.GenerateTagN(16))
	req.AppendHeader(from)

	ac.inviteReq = req

	tx, err := c.cl.TransactionRequest(ctx, req, sipgo.ClientRequestBuild)
	if err != nil {
		rtpConn.Close()
		c.clearActive(handle)
		return signalling.CallHandle{}, fmt.Errorf("sending invite: %w", err)
	}
	ac.inviteTx = tx

	c.emit(handle, signalling.Initiating, signalling.CauseNone)
	go c.watchOutboundInvite(callCtx, ac, tx)

	return handle, nil
}

func (c *Client) watchOutboundInvite(ctx context.Context, ac *activeCall, tx sip.ClientTransaction) {
	ringingSent := false
	for {
		select {
		case <-ctx.Done():
			tx.Terminate()
			return
		case <-tx.Done():
			c.endActive(ac.handle, signalling.NetworkError)
			return
		case res := <-tx.Responses():
			switch {
			case res.StatusCode == 100:
				continue
			case res.StatusCode == 180:
				if !ringingSent {
					ringingSent = true
					c.emit(ac.handle, signalling.Ringing, signalling.CauseNone)
				}
			case res.StatusCode == 183:
				c.emit(ac.handle, signalling.EarlyMedia, signalling.CauseNone)
			case res.StatusCode == 401 || res.StatusCode == 407:
				authRes, err := c.retryWithAuth(ctx, ac.inviteReq, res, ac.inviteReq.Recipient.String())
				if err != nil {
					c.logger.Error("outbound invite auth retry failed", "error", err)
					c.endActive(ac.handle, signalling.NetworkError)
					return
				}
				if authRes.StatusCode >= 200 && authRes.StatusCode < 300 {
					c.completeOutbound(ac, authRes)
					return
				}
				if authRes.StatusCode >= 300 {
					c.failOutbound(ac, authRes.StatusCode)
					return
				}
			case res.StatusCode >= 200 && res.StatusCode < 300:
				c.completeOutbound(ac, res)
				return
			case res.StatusCode >= 300:
				c.failOutbound(ac, res.StatusCode)
				return
			}
		}
	}
}

func (c *Client) completeOutbound(ac *activeCall, res *sip.Response) {
	ac.inviteRes = res
	c.sendACK(ac, res)

	remote, err := remoteRTPEndpoint(res.Body())
	if err != nil {
		c.logger.Error("could not determine remote rtp endpoint", "error", err)
		c.endActive(ac.handle, signalling.NetworkError)
		return
	}
	c.emit(ac.handle, signalling.Answered, signalling.CauseNone)
	c.startMedia(ac, remote)
	c.emit(ac.handle, signalling.Connected, signalling.CauseNone)
}

func (c *Client) failOutbound(ac *activeCall, statusCode int) {
	c.endActive(ac.handle, causeForStatus(statusCode))
}

// causeForStatus maps a final SIP failure response to the EndCause the
// call manager expects.
func causeForStatus(statusCode int) signalling.EndCause {
	switch statusCode {
	case 486, 600:
		return signalling.Busy
	case 480, 408:
		return signalling.NoAnswer
	case 603, 403:
		return signalling.Rejected
	default:
		return signalling.NetworkError
	}
}

func (c *Client) sendACK(ac *activeCall, res *sip.Response) {
	ack := sip.NewRequest(sip.ACK, ac.inviteReq.Recipient)
	ack.SetTransport(ac.inviteReq.Transport())
	if h := ac.inviteReq.From(); h != nil {
		ack.AppendHeader(sip.HeaderClone(h))
	}
	if h := res.To(); h != nil {
		ack.AppendHeader(sip.HeaderClone(h))
	}
	if h := ac.inviteReq.CallID(); h != nil {
		ack.AppendHeader(sip.HeaderClone(h))
	}
	ack.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: sip.ACK})
	maxFwd := sip.MaxForwardsHeader(70)
	ack.AppendHeader(&maxFwd)
	if err := c.cl.WriteRequest(ack); err != nil {
		c.logger.Error("failed to send ack", "error", err)
	}
}

// handleInvite is the inbound-INVITE server handler. Only one call is
// tracked at a time; a second inbound INVITE while one is active is
// rejected 486 Busy Here.
func (c *Client) handleInvite(req *sip.Request, tx sip.ServerTransaction) {
	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		res := sip.NewResponseFromRequest(req, 486, "Busy Here", nil)
		tx.Respond(res)
		return
	}
	callID := ""
	if cid := req.CallID(); cid != nil {
		callID = cid.Value()
	}
	handle := signalling.CallHandle{ID: callID}
	_, cancel := context.WithCancel(context.Background())
	ac := &activeCall{handle: handle, outbound: false, state: signalling.Ringing, callID: callID, serverReq: req, serverTx: tx, cancel: cancel}
	c.active = ac
	handler := c.onIncoming
	c.mu.Unlock()

	callerID := ""
	if from := req.From(); from != nil {
		callerID = from.Address.User
	}

	ringing := sip.NewResponseFromRequest(req, 180, "Ringing", nil)
	if err := tx.Respond(ringing); err != nil {
		c.logger.Error("failed to send 180 ringing", "error", err)
	}

	if handler != nil {
		handler(handle, callerID)
	}
	c.emit(handle, signalling.Ringing, signalling.CauseNone)
}

// Answer accepts a Ringing inbound call with a 200 OK carrying an SDP
// answer, then starts the media bridge.
func (c *Client) Answer(ctx context.Context, call signalling.CallHandle) error {
	c.mu.Lock()
	ac := c.active
	if ac == nil || ac.handle != call || ac.outbound {
		c.mu.Unlock()
		return fmt.Errorf("sipclient: no such ringing inbound call %q", call.ID)
	}
	c.mu.Unlock()

	remote, err := remoteRTPEndpoint(ac.serverReq.Body())
	if err != nil {
		return fmt.Errorf("parsing inbound sdp offer: %w", err)
	}

	rtpConn, err := c.rtpPorts.listen(c.opts.LocalHost)
	if err != nil {
		return err
	}
	ac.rtpConn = rtpConn
	ac.rtpPort = rtpConn.LocalAddr().(*net.UDPAddr).Port

	answer, err := buildAnswerSDP(c.opts.LocalHost, ac.rtpPort)
	if err != nil {
		rtpConn.Close()
		return err
	}

	ok := sip.NewResponseFromRequest(ac.serverReq, 200, "OK", answer)
	ok.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
	contact := fmt.Sprintf("<sip:%s@%s:%d>", c.opts.SIP.User, c.opts.LocalHost, c.opts.LocalSIPPort)
	ok.AppendHeader(sip.NewHeader("Contact", contact))
	if err := ac.serverTx.Respond(ok); err != nil {
		rtpConn.Close()
		return fmt.Errorf("responding 200 ok: %w", err)
	}

	c.emit(call, signalling.Answered, signalling.CauseNone)
	c.startMedia(ac, remote)
	c.emit(call, signalling.Connected, signalling.CauseNone)
	return nil
}

// Reject declines a Ringing inbound call with a 486 Busy Here.
func (c *Client) Reject(ctx context.Context, call signalling.CallHandle) error {
	c.mu.Lock()
	ac := c.active
	if ac == nil || ac.handle != call || ac.outbound {
		c.mu.Unlock()
		return fmt.Errorf("sipclient: no such ringing inbound call %q", call.ID)
	}
	c.mu.Unlock()

	res := sip.NewResponseFromRequest(ac.serverReq, 486, "Busy Here", nil)
	if err := ac.serverTx.Respond(res); err != nil {
		c.logger.Error("failed to respond to reject", "error", err)
	}
	c.endActive(call, signalling.Rejected)
	return nil
}

// Hangup terminates the active call regardless of direction or stage: an
// outbound call not yet answered is cancelled, an inbound call not yet
// answered is declined, and a connected call of either direction is ended
// with BYE.
func (c *Client) Hangup(ctx context.Context, call signalling.CallHandle) error {
	c.mu.Lock()
	ac := c.active
	if ac == nil || ac.handle != call {
		c.mu.Unlock()
		return nil
	}
	state := ac.state
	c.mu.Unlock()

	switch {
	case ac.outbound && state != signalling.Connected:
		if ac.inviteTx != nil {
			cancel := sip.NewRequest(sip.CANCEL, ac.inviteReq.Recipient)
			cancel.SetTransport(ac.inviteReq.Transport())
			if h := ac.inviteReq.CallID(); h != nil {
				cancel.AppendHeader(sip.HeaderClone(h))
			}
			if h := ac.inviteReq.From(); h != nil {
				cancel.AppendHeader(sip.HeaderClone(h))
			}
			if err := c.cl.WriteRequest(cancel); err != nil {
				c.logger.Error("failed to send cancel", "error", err)
			}
		}
	case !ac.outbound && state != signalling.Connected:
		res := sip.NewResponseFromRequest(ac.serverReq, 487, "Request Terminated", nil)
		ac.serverTx.Respond(res)
	default:
		c.sendBye(ac)
	}

	c.endActive(call, signalling.Normal)
	return nil
}

func (c *Client) sendBye(ac *activeCall) {
	var recipient sip.Uri
	var byeReq *sip.Request
	if ac.outbound {
		recipient = ac.inviteReq.Recipient
		byeReq = sip.NewRequest(sip.BYE, recipient)
		if h := ac.inviteReq.From(); h != nil {
			byeReq.AppendHeader(sip.HeaderClone(h))
		}
		if ac.inviteRes != nil {
			if h := ac.inviteRes.To(); h != nil {
				byeReq.AppendHeader(sip.HeaderClone(h))
			}
		}
	} else {
		recipient = ac.serverReq.Recipient
		byeReq = sip.NewRequest(sip.BYE, recipient)
		if h := ac.serverReq.To(); h != nil {
			fromHeader := h.AsFrom()
			byeReq.AppendHeader(&fromHeader)
		}
		if h := ac.serverReq.From(); h != nil {
			toHeader := h.AsTo()
			byeReq.AppendHeader(&toHeader)
		}
	}
	if h := ac.callID; h != "" {
		byeReq.AppendHeader(sip.NewHeader("Call-ID", h))
	}
	byeReq.AppendHeader(&sip.CSeqHeader{SeqNo: 2, MethodName: sip.BYE})
	if err := c.cl.WriteRequest(byeReq); err != nil {
		c.logger.Error("failed to send bye", "error", err)
	}
}

// handleBye processes an in-dialog BYE from the remote party, ending
// whichever call is active.
func (c *Client) handleBye(req *sip.Request, tx sip.ServerTransaction) {
	res := sip.NewResponseFromRequest(req, 200, "OK", nil)
	if err := tx.Respond(res); err != nil {
		c.logger.Error("failed to respond to bye", "error", err)
	}

	c.mu.Lock()
	ac := c.active
	c.mu.Unlock()
	if ac == nil {
		return
	}
	wasConnected := ac.state == signalling.Connected
	cause := signalling.Normal
	if !wasConnected {
		cause = signalling.NoAnswer
	}
	c.endActive(ac.handle, cause)
}

// handleCancel processes a CANCEL for a ringing inbound call that the
// remote party abandoned before it was answered.
func (c *Client) handleCancel(req *sip.Request, tx sip.ServerTransaction) {
	res := sip.NewResponseFromRequest(req, 200, "OK", nil)
	if err := tx.Respond(res); err != nil {
		c.logger.Error("failed to respond to cancel", "error", err)
	}

	c.mu.Lock()
	ac := c.active
	c.mu.Unlock()
	if ac == nil || ac.outbound {
		return
	}
	terminated := sip.NewResponseFromRequest(ac.serverReq, 487, "Request Terminated", nil)
	ac.serverTx.Respond(terminated)
	c.endActive(ac.handle, signalling.NoAnswer)
}

func (c *Client) handleAck(req *sip.Request, tx sip.ServerTransaction) {
	// ACKs are not transactional and need no response; the call is already
	// Connected by the time one arrives.
}

func (c *Client) startMedia(ac *activeCall, remote *net.UDPAddr) {
	stream, err := c.opts.Device.OpenStream(context.Background(), c.opts.MicGain, c.opts.SpeakerGain)
	if err != nil {
		c.logger.Error("opening audio stream for call failed", "error", err)
		return
	}
	ac.media = startMediaSession(context.Background(), c.logger, ac.rtpConn, remote, stream)
}

// OnIncoming registers the inbound-call callback.
func (c *Client) OnIncoming(handler signalling.IncomingHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onIncoming = handler
}

// OnCallState registers the call-lifecycle callback.
func (c *Client) OnCallState(handler signalling.StateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCallState = handler
}

// Shutdown ends any active call, stops the SIP listener, and releases
// resources.
func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	ac := c.active
	c.active = nil
	c.registered = false
	c.mu.Unlock()

	if ac != nil {
		if ac.state == signalling.Connected {
			c.sendBye(ac)
		}
		if ac.media != nil {
			ac.media.Close()
		}
		ac.cancel()
		c.emit(ac.handle, signalling.Ended, signalling.NetworkError)
	}

	if c.listenCancel != nil {
		c.listenCancel()
	}
	c.listenWG.Wait()
	c.srv.Close()
	c.ua.Close()
	return nil
}

// Registered reports whether the last Register call succeeded.
func (c *Client) Registered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registered
}

func (c *Client) emit(call signalling.CallHandle, state signalling.CallState, cause signalling.EndCause) {
	c.mu.Lock()
	if c.active != nil && c.active.handle == call {
		c.active.state = state
	}
	handler := c.onCallState
	c.mu.Unlock()
	if handler != nil {
		handler(signalling.StateTransition{Call: call, State: state, Cause: cause})
	}
}

func (c *Client) endActive(call signalling.CallHandle, cause signalling.EndCause) {
	c.mu.Lock()
	ac := c.active
	if ac == nil || ac.handle != call {
		c.mu.Unlock()
		return
	}
	c.active = nil
	c.mu.Unlock()

	if ac.media != nil {
		ac.media.Close()
	} else if ac.rtpConn != nil {
		ac.rtpConn.Close()
	}
	ac.cancel()
	c.emit(call, signalling.Ended, cause)
}

func (c *Client) clearActive(call signalling.CallHandle) {
	c.mu.Lock()
	if c.active != nil && c.active.handle == call {
		c.active = nil
	}
	c.mu.Unlock()
}

func newCallID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	var sb strings.Builder
	for _, b := range buf {
		fmt.Fprintf(&sb, "%02x", b)
	}
	return sb.String()
}
