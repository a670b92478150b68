package harness

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ZanzyTHEbar/sydney-stream/sydney/chathub"
	"github.com/ZanzyTHEbar/sydney-stream/sydney/config"
	"github.com/ZanzyTHEbar/sydney-stream/sydney/harness/adapters"
	ports "github.com/ZanzyTHEbar/sydney-stream/sydney/harness/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Factory creates and wires harness components from configuration.
type Factory struct {
	cfg    *config.Config
	db     *sql.DB // Optional, for the transcript store
	logger zerolog.Logger

	// Registerer receives the turn metrics when metrics are enabled.
	Registerer prometheus.Registerer
	// Dialer overrides the WebSocket dialer built from the proxy settings.
	Dialer chathub.Dialer
}

// NewFactory creates a new harness factory.
func NewFactory(cfg *config.Config, db *sql.DB, logger zerolog.Logger) *Factory {
	return &Factory{
		cfg:        cfg,
		db:         db,
		logger:     logger,
		Registerer: prometheus.DefaultRegisterer,
	}
}

// CreateOrchestrator creates a fully wired Orchestrator from config.
func (f *Factory) CreateOrchestrator(creds ports.CredentialSource) (*Orchestrator, error) {
	hub := f.cfg.ChatHub

	style := chathub.StyleCreative
	if hub.Style != "" {
		parsed, err := chathub.ParseStyle(hub.Style)
		if err != nil {
			return nil, err
		}
		style = parsed
	}

	cache, err := f.createCache()
	if err != nil {
		return nil, err
	}
	tracer, err := f.createTracer()
	if err != nil {
		return nil, err
	}
	guardrails, err := f.CreateGuardrails()
	if err != nil {
		return nil, err
	}

	dialer := f.Dialer
	if dialer == nil {
		ws, err := chathub.NewWebSocketDialer(hub.Proxy, hub.HandshakeTimeout)
		if err != nil {
			return nil, err
		}
		dialer = ws
	}

	deps := Dependencies{
		Session: chathub.NewSession(chathub.SessionOptions{
			Endpoint: hub.CreateEndpoint,
			Proxy:    hub.Proxy,
			Timeout:  hub.CreateTimeout,
		}, f.logger),
		Transport: chathub.NewTransport(dialer, chathub.TransportOptions{
			Endpoint:          hub.ChatEndpoint,
			ReceiveTimeout:    hub.ReceiveTimeout,
			WriteTimeout:      hub.WriteTimeout,
			RetryBudget:       hub.RetryBudget,
			KeepaliveInterval: hub.KeepaliveInterval,
		}, f.logger),
		Uploader: chathub.NewUploader(chathub.UploadOptions{
			Endpoint: hub.UploadEndpoint,
			Proxy:    hub.Proxy,
			Timeout:  hub.UploadTimeout,
			Style:    style,
		}, f.logger),
		Credentials: creds,
		Builder:     NewRequestBuilder(style, hub.Locale),
		Assembler:   NewContextAssembler(Budget{MaxContextChars: f.cfg.Harness.MaxContextChars}, nil),
		Guardrails:  guardrails,
		Store:       f.createStore(),
		Cache:       cache,
		Limiter:     f.createRateLimiter(),
		Tracer:      tracer,
	}

	return NewOrchestrator(deps, f.CreatePolicy(), f.logger), nil
}

func (f *Factory) createCache() (ports.Cache, error) {
	if !f.cfg.Harness.CacheEnabled {
		return &noOpCache{}, nil
	}
	return adapters.NewLRUCache(f.cfg.Harness.CacheCapacity)
}

func (f *Factory) createRateLimiter() ports.RateLimiter {
	if !f.cfg.Harness.RateLimitEnabled {
		return &noOpRateLimiter{}
	}
	return adapters.NewTokenBucket(f.cfg.Harness.RateLimitCapacity, f.cfg.Harness.RateLimitRefillRate)
}

// createTracer combines the log and metric tracers that are enabled.
func (f *Factory) createTracer() (ports.Tracer, error) {
	var tracers adapters.MultiTracer
	if f.cfg.Harness.EnableTracing {
		tracers = append(tracers, adapters.NewZerologTracer(f.logger))
	}
	if f.cfg.Harness.EnableMetrics {
		reg := f.Registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		pt, err := adapters.NewPrometheusTracer(reg)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		tracers = append(tracers, pt)
	}

	switch len(tracers) {
	case 0:
		return &noOpTracer{}, nil
	case 1:
		return tracers[0], nil
	default:
		return tracers, nil
	}
}

func (f *Factory) createStore() ports.TranscriptStore {
	if f.db == nil || !f.cfg.Harness.PersistTranscripts {
		return &noOpStore{}
	}
	return adapters.NewLibSQLTranscriptStore(f.db)
}

// CreateGuardrails returns nil when guardrails are disabled.
func (f *Factory) CreateGuardrails() (*Guardrails, error) {
	if !f.cfg.Harness.EnableGuardrails {
		return nil, nil
	}
	return NewGuardrails(f.cfg.Harness.BlockedWords, f.cfg.Harness.MaxPromptChars)
}

// CreatePolicy creates a policy from config with validation.
func (f *Factory) CreatePolicy() *Policy {
	h := f.cfg.Harness
	policy := &Policy{
		MaxAutoReplies:      h.MaxAutoReplies,
		AutoReplyPrompt:     h.AutoReplyPrompt,
		RecordSearchResults: h.RecordSearchTurns,
		RecordLoading:       h.RecordLoaderTurns,
		CacheTTLSeconds:     h.CacheTTLSeconds,
	}

	if policy.MaxAutoReplies < 0 {
		policy.MaxAutoReplies = 0
		f.logger.Warn().Int("max_auto_replies", h.MaxAutoReplies).Msg("MaxAutoReplies clamped to minimum of 0")
	}
	if policy.MaxAutoReplies > 5 {
		policy.MaxAutoReplies = 5
		f.logger.Warn().Int("max_auto_replies", h.MaxAutoReplies).Msg("MaxAutoReplies clamped to maximum of 5")
	}

	return policy
}

// staticCredentials is the anonymous credential source.
type staticCredentials struct{}

func (staticCredentials) Current() chathub.Credentials { return chathub.Credentials{} }

// noOpCache implements Cache interface with no-op behavior for testing/disabled cache.
type noOpCache struct{}

func (c *noOpCache) Get(ctx context.Context, key string) ([]byte, bool) { return nil, false }
func (c *noOpCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	return nil
}
func (c *noOpCache) Delete(ctx context.Context, key string) error { return nil }

type noOpRateLimiter struct{}

func (r *noOpRateLimiter) Acquire(ctx context.Context, key string) (release func(), err error) {
	return func() {}, nil
}

type noOpTracer struct{}

func (t *noOpTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	return ctx, func(err error) {}
}

func (t *noOpTracer) Event(ctx context.Context, name string, attrs map[string]any) {}

type noOpStore struct{}

func (s *noOpStore) SaveTranscript(ctx context.Context, workspaceID, content string, turnCount int) error {
	return nil
}

func (s *noOpStore) LoadTranscript(ctx context.Context, workspaceID string) (ports.SavedTranscript, bool, error) {
	return ports.SavedTranscript{}, false, nil
}

func (s *noOpStore) Revisions(ctx context.Context, workspaceID string, k int) ([]ports.SavedTranscript, error) {
	return nil, nil
}

// Ensure all no-op types implement their interfaces.
var (
	_ ports.Cache            = (*noOpCache)(nil)
	_ ports.RateLimiter      = (*noOpRateLimiter)(nil)
	_ ports.Tracer           = (*noOpTracer)(nil)
	_ ports.TranscriptStore  = (*noOpStore)(nil)
	_ ports.CredentialSource = staticCredentials{}
)
