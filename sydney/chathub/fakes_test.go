package chathub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"
)

// step is one scripted receive. A blocking step waits for the receive
// context to end.
type step struct {
	data  string
	err   error
	block bool
}

type fakeSocket struct {
	mu     sync.Mutex
	steps  []step
	sent   [][]byte
	closed bool
}

func newFakeSocket(steps ...step) *fakeSocket {
	return &fakeSocket{steps: steps}
}

func (f *fakeSocket) Send(ctx context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("socket closed")
	}
	f.sent = append(f.sent, bytes.Clone(data))
	return nil
}

func (f *fakeSocket) Receive(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	if len(f.steps) == 0 {
		f.mu.Unlock()
		return nil, io.EOF
	}
	s := f.steps[0]
	f.steps = f.steps[1:]
	f.mu.Unlock()

	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.data == "" {
		return nil, s.err
	}
	return []byte(s.data), s.err
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSocket) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSocket) sentFrames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, string(s))
	}
	return out
}

type fakeDialer struct {
	sock     *fakeSocket
	err      error
	endpoint string
	header   http.Header
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint string, header http.Header) (Socket, error) {
	d.endpoint = endpoint
	d.header = header
	if d.err != nil {
		return nil, d.err
	}
	return d.sock, nil
}

// fixedClock returns the given unix seconds in order, repeating the last.
func fixedClock(secs ...int64) func() time.Time {
	var mu sync.Mutex
	i := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		s := secs[min(i, len(secs)-1)]
		i++
		return time.Unix(s, 0)
	}
}

const ack = "{}\x1e"

func frameJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b) + "\x1e"
}

func replyFrame(text string, cursor bool, extra map[string]any) string {
	msg := map[string]any{"text": text, "author": "bot"}
	for k, v := range extra {
		msg[k] = v
	}
	arg := map[string]any{"messages": []any{msg}, "requestId": "r1"}
	if cursor {
		arg["cursor"] = map[string]any{"j": "$['a7613'].adaptiveCards[0].body[0].text", "p": -1}
	}
	return frameJSON(map[string]any{"type": 1, "target": "update", "arguments": []any{arg}})
}

func typedFrame(messageType string, fields map[string]any) string {
	msg := map[string]any{"messageType": messageType, "author": "bot"}
	for k, v := range fields {
		msg[k] = v
	}
	return frameJSON(map[string]any{
		"type":      1,
		"target":    "update",
		"arguments": []any{map[string]any{"messages": []any{msg}}},
	})
}

func resultFrameJSON(value, message string, last map[string]any) string {
	item := map[string]any{"result": map[string]any{"value": value, "message": message}}
	if last != nil {
		item["messages"] = []any{map[string]any{"author": "user", "text": "hi"}, last}
	}
	return frameJSON(map[string]any{"type": 2, "invocationId": "0", "item": item})
}

func quietOptions(clock func() time.Time) TransportOptions {
	opts := DefaultTransportOptions()
	opts.ReceiveTimeout = 2 * time.Second
	opts.Clock = clock
	return opts
}
