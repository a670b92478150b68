package chathub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chatHubServer plays the server side of one turn over a real socket.
func chatHubServer(t *testing.T, received chan<- string, frames ...string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// handshake, ack, ping, request
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- string(msg)
		if err := conn.WriteMessage(websocket.TextMessage, []byte(ack)); err != nil {
			return
		}
		for range 2 {
			if _, msg, err = conn.ReadMessage(); err != nil {
				return
			}
			received <- string(msg)
		}

		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}

		// Drain until the client closes.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWebSocket_FullTurn(t *testing.T) {
	received := make(chan string, 8)
	srv := chatHubServer(t, received,
		replyFrame("Hello", false, nil),
		replyFrame("Hello there", false, nil)+resultFrameJSON("Success", "", nil),
	)

	dialer, err := NewWebSocketDialer("", 5*time.Second)
	require.NoError(t, err)

	opts := DefaultTransportOptions()
	opts.Endpoint = "ws" + strings.TrimPrefix(srv.URL, "http")
	tr := NewTransport(dialer, opts, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := tr.Open(ctx, Conversation{ConversationID: "c1", ClientID: "u1"}, nil, ChatRequest{ConversationID: "c1"})
	require.NoError(t, err)
	defer stream.Close()

	agg := NewAggregator(stream, zerolog.Nop())
	var text strings.Builder
	var sawDone bool
	for {
		ev, err := agg.Next(ctx)
		if err != nil {
			break
		}
		switch e := ev.(type) {
		case TextDelta:
			text.WriteString(e.Text)
		case Done:
			sawDone = true
		}
	}

	assert.Equal(t, "Hello there", text.String())
	assert.True(t, sawDone)
	assert.Equal(t, StateCompleted, stream.State())

	assert.Equal(t, string(handshakeFrame), <-received)
	assert.Equal(t, string(pingFrame), <-received)
	assert.Contains(t, <-received, `"target":"chat"`)
}

func TestWebSocket_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	dialer, err := NewWebSocketDialer("", time.Second)
	require.NoError(t, err)

	_, err = dialer.Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestNewWebSocketDialer_InvalidProxy(t *testing.T) {
	_, err := NewWebSocketDialer("://bad", time.Second)
	assert.Error(t, err)
}
