package harness

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/ZanzyTHEbar/sydney-stream/sydney/chathub"

	"github.com/google/uuid"
)

// contextMessageID is the fixed id the service expects on the context turn.
const contextMessageID = "discover-web--page-ping-mriduna-----"

const noSearchSuffix = " #no_search"

// BuildInput is everything about one turn that varies per request.
type BuildInput struct {
	Prompt   string
	Context  string // serialized transcript sent as the context turn
	ImageURL string
	NoSearch bool
	Style    chathub.Style // empty uses the builder default
	Locale   string        // empty uses the builder default
}

// RequestBuilder assembles the ChatHub request payload for a turn.
type RequestBuilder struct {
	style   chathub.Style
	locale  string
	newID   func() string
	traceID func() string
}

func NewRequestBuilder(style chathub.Style, locale string) *RequestBuilder {
	if style == "" {
		style = chathub.StyleCreative
	}
	if locale == "" {
		locale = "en-US"
	}
	return &RequestBuilder{
		style:   style,
		locale:  locale,
		newID:   uuid.NewString,
		traceID: randomHex,
	}
}

// Build produces the request for conv. Prompt text is normalized the same
// way transcript bodies are so the context and the message agree.
func (b *RequestBuilder) Build(conv chathub.Conversation, in BuildInput) chathub.ChatRequest {
	style := in.Style
	if style == "" {
		style = b.style
	}
	locale := in.Locale
	if locale == "" {
		locale = b.locale
	}

	prompt := strings.TrimSpace(strings.ReplaceAll(in.Prompt, "\r\n", "\n"))
	if in.NoSearch {
		prompt += noSearchSuffix
	}

	var imageURL *string
	if in.ImageURL != "" {
		imageURL = &in.ImageURL
	}

	id := b.newID()
	return chathub.ChatRequest{
		OptionsSets:         style.OptionSets(),
		Source:              "cib",
		AllowedMessageTypes: chathub.AllowedMessageTypes(),
		SliceIDs:            chathub.SliceIDs(),
		TraceID:             b.traceID(),
		IsStartOfSession:    true,
		RequestID:           id,
		Message: chathub.ChatMessage{
			Locale:        locale,
			Market:        locale,
			Region:        chathub.Region(locale),
			LocationHints: chathub.LocationHints(locale),
			Author:        "user",
			InputMethod:   "Keyboard",
			Text:          prompt,
			MessageType:   "Chat",
			RequestID:     id,
			MessageID:     id,
			ImageURL:      imageURL,
		},
		Tone:                  style.Tone(),
		SpokenTextMode:        "None",
		Verbosity:             "verbose",
		Scenario:              "SERP",
		ConversationSignature: conv.Signature,
		Participant:           chathub.Participant{ID: conv.ClientID},
		ConversationID:        conv.ConversationID,
		PreviousMessages: []chathub.PreviousMessage{{
			Author:      "user",
			Description: in.Context,
			ContextType: "WebPage",
			MessageType: "Context",
			MessageID:   contextMessageID,
		}},
	}
}

func randomHex() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
