package chathub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

const DefaultChatHubEndpoint = "wss://sydney.bing.com/sydney/ChatHub"

// Socket is a message-oriented bidirectional connection. Receive returns
// io.EOF once the peer has closed the connection and an empty payload when a
// read produced no data. Both calls honour the context deadline.
type Socket interface {
	Send(ctx context.Context, data []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens sockets to the ChatHub endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint string, header http.Header) (Socket, error)
}

// State tracks a Stream through one request/response exchange.
type State int

const (
	StateConnecting State = iota
	StateHandshakeSent
	StateAwaitingAck
	StateRequestSent
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshakeSent:
		return "handshake_sent"
	case StateAwaitingAck:
		return "awaiting_ack"
	case StateRequestSent:
		return "request_sent"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) terminal() bool { return s >= StateCompleted }

// TransportOptions tunes the per-turn socket exchange.
type TransportOptions struct {
	Endpoint          string
	ReceiveTimeout    time.Duration
	WriteTimeout      time.Duration
	RetryBudget       int
	KeepaliveInterval time.Duration
	Clock             func() time.Time
}

// DefaultTransportOptions mirrors the service's observed tolerances.
func DefaultTransportOptions() TransportOptions {
	return TransportOptions{
		Endpoint:          DefaultChatHubEndpoint,
		ReceiveTimeout:    900 * time.Second,
		WriteTimeout:      5 * time.Second,
		RetryBudget:       5,
		KeepaliveInterval: 6 * time.Second,
		Clock:             time.Now,
	}
}

func (o TransportOptions) withDefaults() TransportOptions {
	d := DefaultTransportOptions()
	if o.Endpoint == "" {
		o.Endpoint = d.Endpoint
	}
	if o.ReceiveTimeout <= 0 {
		o.ReceiveTimeout = d.ReceiveTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.RetryBudget <= 0 {
		o.RetryBudget = d.RetryBudget
	}
	if o.KeepaliveInterval <= 0 {
		o.KeepaliveInterval = d.KeepaliveInterval
	}
	if o.Clock == nil {
		o.Clock = d.Clock
	}
	return o
}

// Transport opens one Stream per turn.
type Transport struct {
	dialer Dialer
	opts   TransportOptions
	logger zerolog.Logger
}

func NewTransport(dialer Dialer, opts TransportOptions, logger zerolog.Logger) *Transport {
	return &Transport{
		dialer: dialer,
		opts:   opts.withDefaults(),
		logger: logger.With().Str("component", "transport").Logger(),
	}
}

// Open connects, performs the protocol handshake and sends the request.
// The returned Stream yields the server frames for this turn.
func (t *Transport) Open(ctx context.Context, conv Conversation, creds Credentials, req ChatRequest) (*Stream, error) {
	payload, err := EncodeRequest(req)
	if err != nil {
		return nil, transportError("encode request frame", err)
	}

	endpoint, err := socketURL(t.opts.Endpoint, conv)
	if err != nil {
		return nil, transportError("invalid chat endpoint", err)
	}

	s := &Stream{
		opts:   t.opts,
		logger: t.logger.With().Str("conversation_id", conv.ConversationID).Logger(),
		state:  StateConnecting,
		budget: t.opts.RetryBudget,
	}

	sock, err := t.dialer.Dial(ctx, endpoint, socketHeaders(creds))
	if err != nil {
		return nil, s.fail(ctx, transportError("connect chat socket", err))
	}
	s.sock = sock

	if err := s.send(ctx, handshakeFrame); err != nil {
		return nil, s.fail(ctx, transportError("send handshake", err))
	}
	s.state = StateHandshakeSent

	s.state = StateAwaitingAck
	if _, err := s.receive(ctx); err != nil {
		if errors.Is(err, io.EOF) {
			err = transportError("socket closed before handshake ack", nil)
		}
		return nil, s.fail(ctx, err)
	}

	if err := s.send(ctx, pingFrame); err != nil {
		return nil, s.fail(ctx, transportError("send keepalive", err))
	}
	s.markPing(s.opts.Clock())

	if err := s.send(ctx, payload); err != nil {
		return nil, s.fail(ctx, transportError("send request frame", err))
	}
	s.state = StateRequestSent
	s.logger.Debug().Int("bytes", len(payload)).Msg("request frame sent")

	return s, nil
}

func socketURL(endpoint string, conv Conversation) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	if conv.SecAccessToken != "" {
		q := u.Query()
		q.Set("sec_access_token", conv.SecAccessToken)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Stream is the frame sequence of one turn. It is driven by a single
// goroutine: receive, keepalive and classification all happen inside Next.
type Stream struct {
	sock   Socket
	opts   TransportOptions
	logger zerolog.Logger

	state       State
	err         error
	pending     []Frame
	pendingErr  error // raised once the frames received before it are drained
	budget      int
	lastPing    time.Time
	lastPingSec int64
}

// State reports the current lifecycle state.
func (s *Stream) State() State { return s.state }

// Next returns the next frame. It returns io.EOF after the completion frame
// has been delivered or once the socket is closed by the peer.
func (s *Stream) Next(ctx context.Context) (Frame, error) {
	for {
		if len(s.pending) > 0 {
			f := s.pending[0]
			s.pending = s.pending[1:]
			if f.Type == FrameResult {
				s.finish(StateCompleted)
			}
			return f, nil
		}

		if err := s.pendingErr; err != nil {
			s.pendingErr = nil
			return Frame{}, s.fail(ctx, err)
		}

		if s.state.terminal() {
			if s.err != nil {
				return Frame{}, s.err
			}
			return Frame{}, io.EOF
		}

		if err := ctx.Err(); err != nil {
			return Frame{}, s.fail(ctx, cancelledError(err))
		}
		s.state = StateStreaming

		data, err := s.receive(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Debug().Msg("socket closed by server")
				s.finish(StateCompleted)
				return Frame{}, io.EOF
			}
			return Frame{}, s.fail(ctx, err)
		}

		s.keepalive(ctx)

		if len(data) == 0 {
			s.budget--
			s.logger.Debug().Int("retry_budget", s.budget).Msg("empty receive")
			if s.budget <= 0 {
				return Frame{}, s.fail(ctx, newError(KindStreamTimeout, "no response from server", "", nil))
			}
			continue
		}
		s.budget = s.opts.RetryBudget

		s.pendingErr = s.enqueue(data)
	}
}

// enqueue splits one receive into frames, stopping at the completion frame.
// Frames decoded before a bad document stay pending; the returned error is
// raised only after they have been delivered.
func (s *Stream) enqueue(data []byte) error {
	for _, doc := range splitFrames(data) {
		f, err := decodeFrame(doc)
		if err != nil {
			return newError(KindTransport, "malformed frame", string(doc), err)
		}
		if f.Type != FrameResult {
			s.pending = append(s.pending, f)
			continue
		}

		var rf resultFrame
		if err := json.Unmarshal(doc, &rf); err != nil {
			return newError(KindTransport, "malformed completion frame", string(doc), err)
		}
		if r := rf.Item.Result; r.failed() {
			return newError(KindService, r.Value+": "+r.Message, "", nil)
		}
		s.pending = append(s.pending, f)
		return nil
	}
	return nil
}

// keepalive sends a ping on ticks that land on a six-second boundary, or
// when the interval has elapsed without one, at most once per second.
func (s *Stream) keepalive(ctx context.Context) {
	now := s.opts.Clock()
	sec := now.Unix()
	if sec == s.lastPingSec {
		return
	}
	if sec%6 != 0 && now.Sub(s.lastPing) < s.opts.KeepaliveInterval {
		return
	}
	if err := s.send(ctx, pingFrame); err != nil {
		s.logger.Debug().Err(err).Msg("keepalive skipped")
		return
	}
	s.markPing(now)
}

func (s *Stream) markPing(now time.Time) {
	s.lastPing = now
	s.lastPingSec = now.Unix()
}

func (s *Stream) send(ctx context.Context, data []byte) error {
	wctx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
	defer cancel()
	return s.sock.Send(wctx, data)
}

// receive performs one bounded read and maps its failure modes.
func (s *Stream) receive(ctx context.Context) ([]byte, error) {
	rctx, cancel := context.WithTimeout(ctx, s.opts.ReceiveTimeout)
	defer cancel()

	data, err := s.sock.Receive(rctx)
	if err == nil || errors.Is(err, io.EOF) {
		return data, err
	}
	if ctx.Err() != nil {
		return nil, cancelledError(ctx.Err())
	}
	if errors.Is(rctx.Err(), context.DeadlineExceeded) {
		return nil, newError(KindStreamTimeout, "no data within receive timeout", s.opts.ReceiveTimeout.String(), err)
	}
	return nil, transportError("receive failed", err)
}

// fail moves the stream into a terminal failure state and closes the socket.
// A cancelled context always wins so callers can tell cancellation apart.
func (s *Stream) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil && !errors.Is(err, ErrCancelled) {
		err = cancelledError(ctx.Err())
	}
	state := StateFailed
	if errors.Is(err, ErrCancelled) {
		state = StateCancelled
	}
	s.err = err
	s.finish(state)
	s.logger.Debug().Err(err).Str("state", state.String()).Msg("stream ended")
	return err
}

func (s *Stream) finish(state State) {
	if s.state.terminal() {
		return
	}
	s.state = state
	s.pending = nil
	if s.sock != nil {
		_ = s.sock.Close()
	}
}

// Complete ends a stream whose consumer has already seen the end of the
// turn, such as suggestions or a filtered reply, and releases the socket.
// A stream that already failed keeps its state.
func (s *Stream) Complete() {
	s.pendingErr = nil
	s.finish(StateCompleted)
}

// Close releases the socket. Closing a stream that is still running marks
// it cancelled.
func (s *Stream) Close() error {
	if !s.state.terminal() {
		s.err = cancelledError(context.Canceled)
		s.finish(StateCancelled)
	}
	return nil
}
