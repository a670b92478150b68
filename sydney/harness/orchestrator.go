package harness

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/ZanzyTHEbar/sydney-stream/sydney/chathub"
	ports "github.com/ZanzyTHEbar/sydney-stream/sydney/harness/ports"
	"github.com/ZanzyTHEbar/sydney-stream/sydney/transcript"

	"github.com/rs/zerolog"
)

var (
	// ErrTurnInFlight rejects a turn or revoke while another turn runs.
	ErrTurnInFlight = errors.New("a turn is already in flight")
	// ErrNothingToRevoke is returned when the transcript has no user message.
	ErrNothingToRevoke = errors.New("nothing to revoke")
)

// Policy controls how a turn reacts to filtering and what it records.
type Policy struct {
	MaxAutoReplies      int    // automatic retries after a filtered reply
	AutoReplyPrompt     string // prompt sent on retry, offered as suggestion otherwise
	RecordSearchResults bool
	RecordLoading       bool
	CacheTTLSeconds     int // blob id cache lifetime
}

// DefaultPolicy returns sensible defaults.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAutoReplies:  1,
		AutoReplyPrompt: "Continue from where you stopped.",
		CacheTTLSeconds: 3600,
	}
}

// TurnRequest describes one user turn.
type TurnRequest struct {
	WorkspaceID string // optional; when set the transcript is saved after the turn
	Transcript  []transcript.Turn
	Prompt      string
	ImageURL    string
	NoSearch    bool
	Style       chathub.Style
	Locale      string
}

// TurnResult is the state after a turn. It is returned on failure too, so
// the partial transcript is never lost.
type TurnResult struct {
	Transcript  []transcript.Turn
	Suggestions []string
	Filtered    bool // the last reply was withheld by the service
	Revoked     bool // the withheld reply had already started streaming
	AutoReplies int
}

// EventSink observes events in receive order. It runs on the turn goroutine.
type EventSink func(chathub.Event)

// Dependencies are the collaborators of an Orchestrator. Cache, Limiter,
// Tracer and Store may be nil.
type Dependencies struct {
	Session     ports.ConversationCreator
	Transport   *chathub.Transport
	Uploader    ports.ImageUploader
	Credentials ports.CredentialSource
	Builder     *RequestBuilder
	Assembler   *ContextAssembler
	Guardrails  *Guardrails
	Store       ports.TranscriptStore
	Cache       ports.Cache
	Limiter     ports.RateLimiter
	Tracer      ports.Tracer
}

// Orchestrator drives turns: conversation creation, request building,
// streaming and folding events into the transcript. At most one turn runs
// at a time.
type Orchestrator struct {
	deps     Dependencies
	policy   *Policy
	logger   zerolog.Logger
	inFlight atomic.Bool
}

func NewOrchestrator(deps Dependencies, policy *Policy, logger zerolog.Logger) *Orchestrator {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if deps.Builder == nil {
		deps.Builder = NewRequestBuilder("", "")
	}
	if deps.Assembler == nil {
		deps.Assembler = NewContextAssembler(Budget{}, nil)
	}
	if deps.Credentials == nil {
		deps.Credentials = staticCredentials{}
	}
	if deps.Store == nil {
		deps.Store = &noOpStore{}
	}
	if deps.Cache == nil {
		deps.Cache = &noOpCache{}
	}
	if deps.Limiter == nil {
		deps.Limiter = &noOpRateLimiter{}
	}
	if deps.Tracer == nil {
		deps.Tracer = &noOpTracer{}
	}
	return &Orchestrator{
		deps:   deps,
		policy: policy,
		logger: logger.With().Str("component", "orchestrator").Logger(),
	}
}

// RunTurn runs one user turn to completion. Events reach sink in receive
// order. The returned result is non-nil whenever the turn started, even
// when err is set.
func (o *Orchestrator) RunTurn(ctx context.Context, req TurnRequest, sink EventSink) (*TurnResult, error) {
	if !o.inFlight.CompareAndSwap(false, true) {
		return nil, ErrTurnInFlight
	}
	defer o.inFlight.Store(false)

	if o.deps.Guardrails != nil {
		if err := o.deps.Guardrails.ValidatePrompt(req.Prompt); err != nil {
			return nil, fmt.Errorf("invalid prompt: %w", err)
		}
	}

	ctx, finish := o.deps.Tracer.StartSpan(ctx, "turn", map[string]any{
		"workspace_id": req.WorkspaceID,
		"prior_turns":  len(req.Transcript),
	})

	tr := transcript.New(req.Transcript)
	res := &TurnResult{}
	err := o.drive(ctx, req, tr, sink, res)
	res.Transcript = tr.Turns()
	finish(err)

	if req.WorkspaceID != "" {
		o.persist(context.WithoutCancel(ctx), req.WorkspaceID, tr)
	}
	return res, err
}

// drive runs attempts until one is not filtered or the auto-reply budget
// is spent.
func (o *Orchestrator) drive(ctx context.Context, req TurnRequest, tr *transcript.Transcript, sink EventSink, res *TurnResult) error {
	for depth := 0; ; depth++ {
		filtered, err := o.attempt(ctx, req, tr, sink, res)
		if err != nil {
			return err
		}
		if filtered == nil {
			res.Filtered, res.Revoked = false, false
			return nil
		}

		res.Filtered, res.Revoked = true, filtered.Revoked
		if o.policy.AutoReplyPrompt == "" || depth >= o.policy.MaxAutoReplies {
			if o.policy.AutoReplyPrompt != "" {
				res.Suggestions = []string{o.policy.AutoReplyPrompt}
			}
			return nil
		}

		o.deps.Tracer.Event(ctx, "auto_reply", map[string]any{"depth": depth + 1, "revoked": filtered.Revoked})
		res.AutoReplies++
		req.Prompt = o.policy.AutoReplyPrompt
		req.ImageURL = ""
	}
}

// attempt streams one request. It returns the ContentFiltered event when
// the reply was withheld.
func (o *Orchestrator) attempt(ctx context.Context, req TurnRequest, tr *transcript.Transcript, sink EventSink, res *TurnResult) (*chathub.ContentFiltered, error) {
	release, err := o.deps.Limiter.Acquire(ctx, "create_conversation")
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	defer release()

	creds := o.deps.Credentials.Current()
	conv, err := o.deps.Session.Create(ctx, creds)
	if err != nil {
		return nil, err
	}
	o.deps.Tracer.Event(ctx, "conversation_created", map[string]any{"conversation_id": conv.ConversationID})

	tr.Append(transcript.RoleUser, transcript.KindMessage, req.Prompt)

	chatReq := o.deps.Builder.Build(conv, BuildInput{
		Prompt:   req.Prompt,
		Context:  o.deps.Assembler.Pack(tr.Turns()),
		ImageURL: req.ImageURL,
		NoSearch: req.NoSearch,
		Style:    req.Style,
		Locale:   req.Locale,
	})
	if o.deps.Guardrails != nil {
		if err := o.deps.Guardrails.ValidateRequest(chatReq); err != nil {
			return nil, fmt.Errorf("invalid request: %w", err)
		}
	}

	stream, err := o.deps.Transport.Open(ctx, conv, creds, chatReq)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	res.Suggestions = nil
	fold := newTurnFolder(tr, o.policy)
	agg := chathub.NewAggregator(stream, o.logger)
	var filtered *chathub.ContentFiltered
	for {
		ev, err := agg.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		fold.apply(ev)
		if sink != nil {
			sink(ev)
		}

		switch e := ev.(type) {
		case chathub.Suggestions:
			res.Suggestions = e.Options
		case chathub.ContentFiltered:
			filtered = &e
		case chathub.Unclassified:
			o.deps.Tracer.Event(ctx, "unclassified_message", map[string]any{"message_type": e.MessageType})
		}
	}
	stream.Complete()
	return filtered, nil
}

func (o *Orchestrator) persist(ctx context.Context, workspaceID string, tr *transcript.Transcript) {
	if err := o.deps.Store.SaveTranscript(ctx, workspaceID, tr.String(), tr.Len()); err != nil {
		// Log but don't fail
		o.logger.Warn().Err(err).Str("workspace_id", workspaceID).Msg("failed to save transcript")
	}
}

// LoadWorkspace returns the saved transcript of a workspace, or nil when
// none was saved yet.
func (o *Orchestrator) LoadWorkspace(ctx context.Context, workspaceID string) ([]transcript.Turn, error) {
	saved, found, err := o.deps.Store.LoadTranscript(ctx, workspaceID)
	if err != nil || !found {
		return nil, err
	}
	return transcript.Parse(saved.Content), nil
}

// Revoke removes the last user message and everything after it, returning
// the remaining turns and the revoked text. It is rejected while a turn is
// in flight.
func (o *Orchestrator) Revoke(ctx context.Context, workspaceID string, turns []transcript.Turn) ([]transcript.Turn, string, error) {
	if !o.inFlight.CompareAndSwap(false, true) {
		return nil, "", ErrTurnInFlight
	}
	defer o.inFlight.Store(false)

	remaining, revoked, ok := transcript.RevokeLast(turns)
	if !ok {
		return nil, "", ErrNothingToRevoke
	}
	if workspaceID != "" {
		o.persist(ctx, workspaceID, transcript.New(remaining))
	}
	return remaining, revoked, nil
}

// AttachImage uploads an image once per content hash and returns the
// reference URL to send with a turn.
func (o *Orchestrator) AttachImage(ctx context.Context, filename string, data []byte) (string, error) {
	if o.deps.Uploader == nil {
		return "", errors.New("image upload is not configured")
	}

	sum := sha256.Sum256(data)
	key := "blob:" + hex.EncodeToString(sum[:])
	if cached, ok := o.deps.Cache.Get(ctx, key); ok {
		o.deps.Tracer.Event(ctx, "cache_hit", map[string]any{"key": key})
		return chathub.ImageReference(string(cached)), nil
	}

	release, err := o.deps.Limiter.Acquire(ctx, "upload")
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	defer release()

	ctx, finish := o.deps.Tracer.StartSpan(ctx, "upload", map[string]any{"filename": filename, "bytes": len(data)})
	blobID, err := o.deps.Uploader.Upload(ctx, filename, data)
	finish(err)
	if err != nil {
		return "", err
	}

	if err := o.deps.Cache.Set(ctx, key, []byte(blobID), o.policy.CacheTTLSeconds); err != nil {
		o.logger.Warn().Err(err).Msg("failed to cache blob id")
	}
	return chathub.ImageReference(blobID), nil
}
