package chathub

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testConversation = Conversation{ConversationID: "conv-1", ClientID: "client-1", Signature: "sig"}

func openStream(t *testing.T, sock *fakeSocket, opts TransportOptions) (*Stream, *fakeDialer) {
	t.Helper()
	dialer := &fakeDialer{sock: sock}
	tr := NewTransport(dialer, opts, zerolog.Nop())
	s, err := tr.Open(context.Background(), testConversation, Credentials{"_U": "token"}, ChatRequest{ConversationID: "conv-1"})
	require.NoError(t, err)
	return s, dialer
}

func drain(t *testing.T, s *Stream) ([]Frame, error) {
	t.Helper()
	var frames []Frame
	for {
		f, err := s.Next(context.Background())
		if err != nil {
			if errors.Is(err, io.EOF) {
				return frames, nil
			}
			return frames, err
		}
		frames = append(frames, f)
	}
}

func TestTransport_OpenHandshake(t *testing.T) {
	sock := newFakeSocket(step{data: ack})
	s, dialer := openStream(t, sock, quietOptions(fixedClock(1001)))

	sent := sock.sentFrames()
	require.Len(t, sent, 3)
	assert.Equal(t, "{\"protocol\":\"json\",\"version\":1}\x1e", sent[0])
	assert.Equal(t, "{\"type\":6}\x1e", sent[1])
	assert.True(t, strings.HasSuffix(sent[2], "\x1e"))

	var req map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSuffix(sent[2], "\x1e")), &req))
	assert.Equal(t, "0", req["invocationId"])
	assert.Equal(t, "chat", req["target"])
	assert.EqualValues(t, 4, req["type"])
	assert.Len(t, req["arguments"], 1)

	assert.Equal(t, StateRequestSent, s.State())
	assert.Equal(t, DefaultChatHubEndpoint, dialer.endpoint)
	assert.Equal(t, "_U=token; ", dialer.header.Get("Cookie"))
}

func TestTransport_SecAccessTokenQuery(t *testing.T) {
	dialer := &fakeDialer{sock: newFakeSocket(step{data: ack})}
	tr := NewTransport(dialer, quietOptions(fixedClock(1001)), zerolog.Nop())

	conv := testConversation
	conv.SecAccessToken = "a+b/c"
	_, err := tr.Open(context.Background(), conv, nil, ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, DefaultChatHubEndpoint+"?sec_access_token=a%2Bb%2Fc", dialer.endpoint)
}

func TestTransport_DialFailure(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("connection refused")}
	tr := NewTransport(dialer, quietOptions(fixedClock(1001)), zerolog.Nop())

	_, err := tr.Open(context.Background(), testConversation, nil, ChatRequest{})
	assert.ErrorIs(t, err, ErrTransport)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestTransport_AckClosed(t *testing.T) {
	sock := newFakeSocket(step{err: io.EOF})
	tr := NewTransport(&fakeDialer{sock: sock}, quietOptions(fixedClock(1001)), zerolog.Nop())

	_, err := tr.Open(context.Background(), testConversation, nil, ChatRequest{})
	assert.ErrorIs(t, err, ErrTransport)
	assert.True(t, sock.isClosed())
}

func TestStream_SplitsAndStopsAtCompletion(t *testing.T) {
	sock := newFakeSocket(
		step{data: ack},
		step{data: replyFrame("a", true, nil) + replyFrame("ab", false, nil)},
		step{data: "\x1e" + replyFrame("abc", false, nil) + resultFrameJSON("Success", "", nil) + replyFrame("never", false, nil)},
		step{data: replyFrame("after completion", false, nil)},
	)
	s, _ := openStream(t, sock, quietOptions(fixedClock(1001)))

	frames, err := drain(t, s)
	require.NoError(t, err)
	require.Len(t, frames, 4)
	assert.Equal(t, []int{1, 1, 1, 2}, []int{frames[0].Type, frames[1].Type, frames[2].Type, frames[3].Type})
	assert.Equal(t, StateCompleted, s.State())
	assert.True(t, sock.isClosed())
}

func TestStream_SocketClosureEndsStream(t *testing.T) {
	sock := newFakeSocket(step{data: ack}, step{data: replyFrame("hi", true, nil)}, step{err: io.EOF})
	s, _ := openStream(t, sock, quietOptions(fixedClock(1001)))

	frames, err := drain(t, s)
	require.NoError(t, err)
	assert.Len(t, frames, 1)
	assert.Equal(t, StateCompleted, s.State())
}

func TestStream_RetryBudgetExhausted(t *testing.T) {
	sock := newFakeSocket(
		step{data: ack},
		step{}, step{}, step{}, step{}, step{},
		step{data: replyFrame("too late", true, nil)},
	)
	s, _ := openStream(t, sock, quietOptions(fixedClock(1001)))

	frames, err := drain(t, s)
	assert.Empty(t, frames)
	assert.ErrorIs(t, err, ErrStreamTimeout)
	assert.Equal(t, StateFailed, s.State())
	assert.True(t, sock.isClosed())

	// The failure is sticky.
	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, ErrStreamTimeout)
}

func TestStream_RetryBudgetRefillsOnData(t *testing.T) {
	sock := newFakeSocket(
		step{data: ack},
		step{}, step{}, step{}, step{},
		step{data: replyFrame("a", true, nil)},
		step{}, step{}, step{}, step{},
		step{data: resultFrameJSON("Success", "", nil)},
	)
	s, _ := openStream(t, sock, quietOptions(fixedClock(1001)))

	frames, err := drain(t, s)
	require.NoError(t, err)
	assert.Len(t, frames, 2)
}

func TestStream_ServiceError(t *testing.T) {
	sock := newFakeSocket(
		step{data: ack},
		step{data: replyFrame("a", true, nil)},
		step{data: frameJSON(map[string]any{
			"type": 2,
			"item": map[string]any{"result": map[string]any{
				"value": "Throttled", "message": "Request is throttled.", "error": "Request is throttled.",
			}},
		})},
	)
	s, _ := openStream(t, sock, quietOptions(fixedClock(1001)))

	frames, err := drain(t, s)
	assert.Len(t, frames, 1)
	require.ErrorIs(t, err, ErrService)
	assert.Equal(t, "Throttled: Request is throttled.", err.Error())
	assert.Equal(t, StateFailed, s.State())
}

func TestStream_ErrorCompletionDeliversEarlierFrames(t *testing.T) {
	sock := newFakeSocket(
		step{data: ack},
		step{data: replyFrame("Partial answer", false, nil) + resultFrameJSON("Throttled", "limit hit", nil)},
	)
	s, _ := openStream(t, sock, quietOptions(fixedClock(1001)))

	events, err := collect(t, s)
	assert.Equal(t, []Event{TextDelta{Text: "Partial answer"}}, events)
	require.ErrorIs(t, err, ErrService)
	assert.Equal(t, "Throttled: limit hit", err.Error())
	assert.Equal(t, StateFailed, s.State())
	assert.True(t, sock.isClosed())
}

func TestStream_MalformedFrameAfterValidFrame(t *testing.T) {
	sock := newFakeSocket(step{data: ack}, step{data: replyFrame("a", true, nil) + "{not json\x1e"})
	s, _ := openStream(t, sock, quietOptions(fixedClock(1001)))

	frames, err := drain(t, s)
	assert.Len(t, frames, 1)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, StateFailed, s.State())
}

func TestStream_MalformedFrame(t *testing.T) {
	sock := newFakeSocket(step{data: ack}, step{data: "{not json\x1e"})
	s, _ := openStream(t, sock, quietOptions(fixedClock(1001)))

	_, err := drain(t, s)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestStream_KeepaliveOnWallClock(t *testing.T) {
	sock := newFakeSocket(
		step{data: ack},
		step{data: replyFrame("a", true, nil)},
		step{data: replyFrame("ab", false, nil)},
		step{data: replyFrame("abc", false, nil)},
		step{data: replyFrame("abcd", false, nil)},
		step{data: resultFrameJSON("Success", "", nil)},
	)
	// Open at 1001, then one clock read per receive tick.
	s, _ := openStream(t, sock, quietOptions(fixedClock(1001, 1001, 1002, 1002, 1003, 1009)))

	_, err := drain(t, s)
	require.NoError(t, err)

	pings := 0
	for _, f := range sock.sentFrames() {
		if f == "{\"type\":6}\x1e" {
			pings++
		}
	}
	// One after the ack, one on the 1002 boundary, one after the interval lapsed.
	assert.Equal(t, 3, pings)
}

func TestStream_CancelBeforeReceive(t *testing.T) {
	sock := newFakeSocket(step{data: ack}, step{data: replyFrame("a", true, nil)})
	s, _ := openStream(t, sock, quietOptions(fixedClock(1001)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTransport)
	assert.Equal(t, StateCancelled, s.State())
	assert.True(t, sock.isClosed())
}

func TestStream_CancelDuringReceive(t *testing.T) {
	sock := newFakeSocket(step{data: ack}, step{block: true})
	s, _ := openStream(t, sock, quietOptions(fixedClock(1001)))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, StateCancelled, s.State())
}

func TestStream_ReceiveTimeout(t *testing.T) {
	sock := newFakeSocket(step{data: ack}, step{block: true})
	opts := quietOptions(fixedClock(1001))
	opts.ReceiveTimeout = 20 * time.Millisecond
	s, _ := openStream(t, sock, opts)

	_, err := s.Next(context.Background())
	assert.ErrorIs(t, err, ErrStreamTimeout)
	assert.Equal(t, StateFailed, s.State())
}

func TestStream_CloseMarksCancelled(t *testing.T) {
	sock := newFakeSocket(step{data: ack})
	s, _ := openStream(t, sock, quietOptions(fixedClock(1001)))

	require.NoError(t, s.Close())
	assert.Equal(t, StateCancelled, s.State())
	_, err := s.Next(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestStream_CompleteAfterTerminalEvent(t *testing.T) {
	sock := newFakeSocket(step{data: ack}, step{data: replyFrame("done", true, map[string]any{
		"suggestedResponses": []any{map[string]any{"text": "More"}},
	})})
	s, _ := openStream(t, sock, quietOptions(fixedClock(1001)))

	agg := NewAggregator(s, zerolog.Nop())
	_, err := agg.Next(context.Background())
	require.NoError(t, err)
	ev, err := agg.Next(context.Background())
	require.NoError(t, err)
	require.True(t, IsTerminal(ev))

	s.Complete()
	require.NoError(t, s.Close())
	assert.Equal(t, StateCompleted, s.State())
	assert.True(t, sock.isClosed())

	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestStream_CompleteKeepsFailure(t *testing.T) {
	sock := newFakeSocket(step{data: ack}, step{data: "{not json\x1e"})
	s, _ := openStream(t, sock, quietOptions(fixedClock(1001)))

	_, err := drain(t, s)
	require.ErrorIs(t, err, ErrTransport)

	s.Complete()
	assert.Equal(t, StateFailed, s.State())
}
