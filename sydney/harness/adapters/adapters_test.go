package adapters

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/sydney-stream/sydney/db"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCache_EvictsAndExpires(t *testing.T) {
	ctx := context.Background()
	cache, err := NewLRUCache(2)
	require.NoError(t, err)

	now := time.Unix(1000, 0)
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Set(ctx, "a", []byte("1"), 60))
	require.NoError(t, cache.Set(ctx, "b", []byte("2"), 0))

	// Touch a so b becomes the eviction candidate.
	v, ok := cache.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	require.NoError(t, cache.Set(ctx, "c", []byte("3"), 60))
	_, ok = cache.Get(ctx, "b")
	assert.False(t, ok)
	assert.Equal(t, 2, cache.Len())

	now = now.Add(61 * time.Second)
	_, ok = cache.Get(ctx, "a")
	assert.False(t, ok, "expired entry")

	require.NoError(t, cache.Delete(ctx, "c"))
	_, ok = cache.Get(ctx, "c")
	assert.False(t, ok)
}

func TestNewLRUCache_InvalidCapacity(t *testing.T) {
	_, err := NewLRUCache(0)
	assert.Error(t, err)
}

func TestTokenBucket(t *testing.T) {
	ctx := context.Background()
	tb := NewTokenBucket(2, time.Hour)

	for range 2 {
		release, err := tb.Acquire(ctx, "create")
		require.NoError(t, err)
		release()
	}

	_, err := tb.Acquire(ctx, "create")
	require.Error(t, err)
	var rle *RateLimitError
	assert.True(t, errors.As(err, &rle))
	assert.ErrorIs(t, err, ErrRateLimitExceeded)

	// Keys are limited independently.
	_, err = tb.Acquire(ctx, "upload")
	assert.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = tb.Acquire(cancelled, "other")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTokenBucket_Unlimited(t *testing.T) {
	tb := NewTokenBucket(1, 0)
	for range 10 {
		_, err := tb.Acquire(context.Background(), "k")
		require.NoError(t, err)
	}
}

func TestZerologTracer_SpanFields(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewZerologTracer(zerolog.New(&buf))

	ctx, finish := tracer.StartSpan(context.Background(), "turn", map[string]any{"workspace": "w1"})
	tracer.Event(ctx, "text_delta", map[string]any{"bytes": 5})
	finish(errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, `"span":"turn"`)
	assert.Contains(t, out, `"workspace":"w1"`)
	assert.Contains(t, out, `"event":"text_delta"`)
	assert.Contains(t, out, `"error":"boom"`)

	buf.Reset()
	tracer.Event(context.Background(), "orphan", nil)
	assert.NotContains(t, buf.String(), `"span"`)
}

func TestPrometheusTracer(t *testing.T) {
	reg := prometheus.NewRegistry()
	tracer, err := NewPrometheusTracer(reg)
	require.NoError(t, err)

	ctx, finish := tracer.StartSpan(context.Background(), "turn", nil)
	tracer.Event(ctx, "auto_reply", nil)
	finish(nil)
	_, finish = tracer.StartSpan(context.Background(), "turn", nil)
	finish(errors.New("x"))

	assert.Equal(t, 1.0, testutil.ToFloat64(tracer.spans.WithLabelValues("turn", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(tracer.spans.WithLabelValues("turn", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(tracer.events.WithLabelValues("auto_reply")))
	assert.Equal(t, 1, testutil.CollectAndCount(tracer.duration))

	// Registering twice on the same registry fails.
	_, err = NewPrometheusTracer(reg)
	assert.Error(t, err)
}

type recordingTracer struct {
	spans  []string
	events []string
	ended  []error
}

func (r *recordingTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	r.spans = append(r.spans, name)
	return ctx, func(err error) { r.ended = append(r.ended, err) }
}

func (r *recordingTracer) Event(ctx context.Context, name string, attrs map[string]any) {
	r.events = append(r.events, name)
}

func TestMultiTracer(t *testing.T) {
	a, b := &recordingTracer{}, &recordingTracer{}
	m := MultiTracer{a, b}

	ctx, finish := m.StartSpan(context.Background(), "turn", nil)
	m.Event(ctx, "done", nil)
	finish(nil)

	for _, r := range []*recordingTracer{a, b} {
		assert.Equal(t, []string{"turn"}, r.spans)
		assert.Equal(t, []string{"done"}, r.events)
		assert.Len(t, r.ended, 1)
	}
}

func TestLibSQLTranscriptStore(t *testing.T) {
	ctx := context.Background()
	conn, err := db.ConnectToDB(ctx, filepath.Join(t.TempDir(), "transcripts.db"), zerolog.Nop())
	require.NoError(t, err)
	defer conn.Close()

	store := NewLibSQLTranscriptStore(conn)
	tick := time.UnixMilli(1_700_000_000_000)
	store.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	_, found, err := store.LoadTranscript(ctx, "w1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.SaveTranscript(ctx, "w1", "[user](#message)\nhi\n\n", 1))
	require.NoError(t, store.SaveTranscript(ctx, "w1", "[user](#message)\nhi\n\n[assistant](#message)\nhello\n\n", 2))
	require.NoError(t, store.SaveTranscript(ctx, "w2", "[user](#message)\nother\n\n", 1))

	saved, found, err := store.LoadTranscript(ctx, "w1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, saved.TurnCount)
	assert.Contains(t, saved.Content, "hello")
	assert.Equal(t, tick.Add(-time.Second).UnixMilli(), saved.UpdatedAt.UnixMilli())

	revs, err := store.Revisions(ctx, "w1", 10)
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.NotContains(t, revs[0].Content, "hello")
	assert.Contains(t, revs[1].Content, "hello")

	revs, err = store.Revisions(ctx, "w1", 1)
	require.NoError(t, err)
	require.Len(t, revs, 1)
	assert.Contains(t, revs[0].Content, "hello")

	assert.Error(t, store.SaveTranscript(ctx, "", "x", 0))
}
