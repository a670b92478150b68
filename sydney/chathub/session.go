package chathub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const DefaultCreateEndpoint = "https://edgeservices.bing.com/edgesvc/turing/conversation/create"

// Conversation identifies one server-side conversation. It is created fresh
// for every turn and never mutated afterwards.
type Conversation struct {
	ConversationID string `json:"conversationId"`
	ClientID       string `json:"clientId"`
	Signature      string `json:"conversationSignature"`
	SecAccessToken string `json:"-"`
}

type createResponse struct {
	Conversation
	Result *wireResult `json:"result"`
}

// SessionOptions configures conversation creation.
type SessionOptions struct {
	Endpoint string
	Proxy    string
	Timeout  time.Duration
}

// Session allocates conversations. It performs no retries.
type Session struct {
	client   *resty.Client
	endpoint string
	logger   zerolog.Logger
}

// NewSession builds a Session around a resty client honouring the proxy.
func NewSession(opts SessionOptions, logger zerolog.Logger) *Session {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultCreateEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	client := resty.New().SetTimeout(opts.Timeout)
	if opts.Proxy != "" {
		client.SetProxy(opts.Proxy)
	}

	return &Session{
		client:   client,
		endpoint: opts.Endpoint,
		logger:   logger.With().Str("component", "session").Logger(),
	}
}

// Create performs the conversation handshake with the given credentials.
func (s *Session) Create(ctx context.Context, creds Credentials) (Conversation, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeaderMultiValues(createHeaders(creds)).
		Get(s.endpoint)
	if err != nil {
		if ctx.Err() != nil {
			return Conversation{}, cancelledError(ctx.Err())
		}
		return Conversation{}, transportError("create conversation request failed", err)
	}

	body := resp.Body()
	if !resp.IsSuccess() {
		return Conversation{}, newError(KindTransport, "create conversation returned "+resp.Status(), string(body), nil)
	}

	var parsed createResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Conversation{}, newError(KindTransport, "create conversation returned malformed JSON", string(body), err)
	}
	if parsed.Result != nil && parsed.Result.Value != "Success" {
		return Conversation{}, newError(KindAuth, parsed.Result.Value+": "+parsed.Result.Message, string(body), nil)
	}
	if err := validateDocument(conversationResponseSchema, body); err != nil {
		return Conversation{}, newError(KindTransport, "unexpected create conversation response", string(body), err)
	}

	conv := parsed.Conversation
	conv.SecAccessToken = resp.Header().Get("X-Sydney-Encryptedconversationsignature")

	s.logger.Debug().
		Str("conversation_id", conv.ConversationID).
		Bool("sec_access_token", conv.SecAccessToken != "").
		Msg("created conversation")

	return conv, nil
}
