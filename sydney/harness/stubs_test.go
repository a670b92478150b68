package harness

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/sydney-stream/sydney/chathub"
	ports "github.com/ZanzyTHEbar/sydney-stream/sydney/harness/ports"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
)

// stubSession implements ConversationCreator for testing.
type stubSession struct {
	mu         sync.Mutex
	calls      int
	createFunc func(ctx context.Context, creds chathub.Credentials) (chathub.Conversation, error)
}

func (s *stubSession) Create(ctx context.Context, creds chathub.Credentials) (chathub.Conversation, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()
	if s.createFunc != nil {
		return s.createFunc(ctx, creds)
	}
	return chathub.Conversation{
		ConversationID: "conv-" + string(rune('0'+n)),
		ClientID:       "client-1",
		Signature:      "sig",
	}, nil
}

func (s *stubSession) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// step is one scripted socket receive. A blocking step waits for the
// receive context to end.
type step struct {
	data  string
	err   error
	block bool
}

type scriptedSocket struct {
	mu    sync.Mutex
	steps []step
	sent  []string
}

func (s *scriptedSocket) Send(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, string(data))
	return nil
}

func (s *scriptedSocket) Receive(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	if len(s.steps) == 0 {
		s.mu.Unlock()
		return nil, io.EOF
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	s.mu.Unlock()

	if st.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if st.data == "" {
		return nil, st.err
	}
	return []byte(st.data), st.err
}

func (s *scriptedSocket) Close() error { return nil }

// requestFrame decodes the request frame sent on the socket.
func (s *scriptedSocket) requestFrame() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, raw := range s.sent {
		var doc map[string]any
		if err := json.Unmarshal([]byte(raw[:len(raw)-1]), &doc); err != nil {
			continue
		}
		if doc["target"] == "chat" {
			return doc
		}
	}
	return nil
}

// queueDialer hands out one socket per dial, in order.
type queueDialer struct {
	mu      sync.Mutex
	sockets []*scriptedSocket
}

func (d *queueDialer) Dial(ctx context.Context, endpoint string, header http.Header) (chathub.Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sockets) == 0 {
		return nil, errors.New("no socket scripted")
	}
	sock := d.sockets[0]
	d.sockets = d.sockets[1:]
	return sock, nil
}

func script(steps ...step) *scriptedSocket {
	return &scriptedSocket{steps: append([]step{{data: ackFrame}}, steps...)}
}

func newTestTransport(sockets ...*scriptedSocket) *chathub.Transport {
	opts := chathub.DefaultTransportOptions()
	opts.ReceiveTimeout = 2 * time.Second
	opts.Clock = func() time.Time { return time.Unix(1001, 0) }
	return chathub.NewTransport(&queueDialer{sockets: sockets}, opts, zerolog.Nop())
}

const ackFrame = "{}\x1e"

func frameJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b) + "\x1e"
}

func updateFrame(msg map[string]any, cursor bool) string {
	arg := map[string]any{"messages": []any{msg}}
	if cursor {
		arg["cursor"] = map[string]any{"j": "$['a7613'].adaptiveCards[0].body[0].text", "p": -1}
	}
	return frameJSON(map[string]any{"type": 1, "target": "update", "arguments": []any{arg}})
}

func reply(text string, cursor bool) string {
	return updateFrame(map[string]any{"text": text, "author": "bot"}, cursor)
}

func apology() string {
	return updateFrame(map[string]any{"text": "Sorry, let's talk about something else.", "author": "bot", "contentOrigin": "Apology"}, false)
}

func suggestions(text string, options ...string) string {
	var replies []any
	for _, o := range options {
		replies = append(replies, map[string]any{"text": o})
	}
	return updateFrame(map[string]any{"text": text, "author": "bot", "suggestedResponses": replies}, false)
}

func typed(messageType, hidden string) string {
	return updateFrame(map[string]any{"messageType": messageType, "hiddenText": hidden, "author": "bot"}, false)
}

func completion() string {
	return frameJSON(map[string]any{"type": 2, "invocationId": "0", "item": map[string]any{
		"result": map[string]any{"value": "Success"},
	}})
}

// stubTranscriptStore implements TranscriptStore for testing.
type stubTranscriptStore struct {
	mu    sync.Mutex
	saved map[string]ports.SavedTranscript
	err   error
}

func (s *stubTranscriptStore) SaveTranscript(ctx context.Context, workspaceID, content string, turnCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.saved == nil {
		s.saved = make(map[string]ports.SavedTranscript)
	}
	s.saved[workspaceID] = ports.SavedTranscript{WorkspaceID: workspaceID, Content: content, TurnCount: turnCount}
	return nil
}

func (s *stubTranscriptStore) LoadTranscript(ctx context.Context, workspaceID string) (ports.SavedTranscript, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.saved[workspaceID]
	return t, ok, nil
}

func (s *stubTranscriptStore) Revisions(ctx context.Context, workspaceID string, k int) ([]ports.SavedTranscript, error) {
	return nil, nil
}

// mockUploader implements ImageUploader with testify expectations.
type mockUploader struct {
	mock.Mock
}

func (m *mockUploader) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	args := m.Called(ctx, filename, data)
	return args.String(0), args.Error(1)
}

type recordingTracer struct {
	mu     sync.Mutex
	spans  []string
	events []string
}

func (t *recordingTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	t.mu.Lock()
	t.spans = append(t.spans, name)
	t.mu.Unlock()
	return ctx, func(error) {}
}

func (t *recordingTracer) Event(ctx context.Context, name string, attrs map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, name)
}

var (
	_ ports.ConversationCreator = (*stubSession)(nil)
	_ ports.TranscriptStore     = (*stubTranscriptStore)(nil)
	_ ports.ImageUploader       = (*mockUploader)(nil)
	_ ports.Tracer              = (*recordingTracer)(nil)
	_ chathub.Dialer            = (*queueDialer)(nil)
)
