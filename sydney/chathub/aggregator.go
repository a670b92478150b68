package chathub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Message types dispatched by the aggregator.
const (
	MessageSearchQuery  = "InternalSearchQuery"
	MessageSearchResult = "InternalSearchResult"
	MessageLoader       = "InternalLoaderMessage"
	MessageGenerate     = "GenerateContentQuery"

	contentTypeImage = "IMAGE"

	originApology    = "Apology"
	noRelevantResult = "Web search returned no relevant result"
)

// FrameSource yields raw frames; *Stream implements it.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
}

// Aggregator turns the raw frames of one turn into Events. Its only state
// is the write cursor over the current assistant message.
type Aggregator struct {
	src    FrameSource
	logger zerolog.Logger

	wrote    int
	replied  bool
	newBlock bool
	queue    []Event
	done     bool
}

func NewAggregator(src FrameSource, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		src:    src,
		logger: logger.With().Str("component", "aggregator").Logger(),
	}
}

// Next returns the next event. After a terminal event it returns io.EOF.
func (a *Aggregator) Next(ctx context.Context) (Event, error) {
	for {
		if len(a.queue) > 0 {
			ev := a.queue[0]
			a.queue = a.queue[1:]
			if IsTerminal(ev) {
				a.done = true
				a.queue = nil
			}
			return ev, nil
		}
		if a.done {
			return nil, io.EOF
		}

		f, err := a.src.Next(ctx)
		if errors.Is(err, io.EOF) {
			a.emit(Done{})
			continue
		}
		if err != nil {
			return nil, err
		}

		switch f.Type {
		case FrameUpdate:
			a.handleUpdate(f.Data)
		case FrameResult:
			a.handleResult(f.Data)
		default:
			a.logger.Debug().Int("type", f.Type).Msg("ignoring frame")
		}
	}
}

func (a *Aggregator) emit(ev Event) {
	a.queue = append(a.queue, ev)
}

func (a *Aggregator) handleUpdate(data json.RawMessage) {
	var uf updateFrame
	if err := json.Unmarshal(data, &uf); err != nil {
		a.logger.Warn().Err(err).Msg("undecodable update frame")
		return
	}
	if len(uf.Arguments) == 0 || len(uf.Arguments[0].Messages) == 0 {
		return
	}
	arg := uf.Arguments[0]
	raw := arg.Messages[0]

	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		a.logger.Warn().Err(err).Msg("undecodable message")
		return
	}

	switch msg.MessageType {
	case MessageSearchQuery:
		a.emit(SearchQuery{Query: firstOf(msg.HiddenText, msg.Text)})
	case MessageSearchResult:
		a.emit(a.searchResult(firstOf(msg.HiddenText, msg.Text)))
	case MessageLoader:
		status := string(raw)
		if msg.HiddenText != nil {
			status = *msg.HiddenText
		} else if msg.Text != nil {
			status = *msg.Text
		}
		a.emit(Loader{Status: status})
	case MessageGenerate:
		if msg.ContentType != contentTypeImage {
			a.emit(Unclassified{MessageType: msg.MessageType, Raw: raw})
			return
		}
		a.emit(GenerativeImage{Prompt: firstOf(msg.Text, msg.HiddenText)})
	case "":
		a.handleReply(msg, len(arg.Cursor) > 0)
	default:
		a.logger.Debug().Str("message_type", msg.MessageType).Msg("unclassified message")
		a.emit(Unclassified{MessageType: msg.MessageType, Raw: raw})
	}
}

// handleReply applies one tick of the assistant message.
func (a *Aggregator) handleReply(msg wireMessage, cursor bool) {
	if cursor {
		a.wrote = 0
		a.newBlock = true
	}

	if msg.ContentOrigin == originApology {
		a.emit(ContentFiltered{Revoked: a.replied})
		return
	}

	text := firstOf(msg.Text)
	if len(text) > a.wrote {
		a.emit(TextDelta{Text: text[a.wrote:], NewBlock: a.newBlock})
		a.wrote = len(text)
		a.newBlock = false
		a.replied = true
	}

	if opts := suggestionTexts(msg.SuggestedResponses); len(opts) > 0 {
		a.emit(Suggestions{Options: opts})
	}
}

func (a *Aggregator) handleResult(data json.RawMessage) {
	var rf resultFrame
	if err := json.Unmarshal(data, &rf); err != nil {
		a.logger.Warn().Err(err).Msg("undecodable completion frame")
		return
	}
	if len(rf.Item.Messages) == 0 {
		return
	}

	var last wireMessage
	if err := json.Unmarshal(rf.Item.Messages[len(rf.Item.Messages)-1], &last); err != nil {
		a.logger.Warn().Err(err).Msg("undecodable completion message")
		return
	}
	if opts := suggestionTexts(last.SuggestedResponses); len(opts) > 0 {
		a.emit(Suggestions{Options: opts})
	}
}

func (a *Aggregator) searchResult(hidden string) SearchResult {
	if strings.Contains(hidden, noRelevantResult) {
		return SearchResult{Raw: hidden}
	}
	links, err := parseSearchLinks(hidden)
	if err != nil {
		a.logger.Warn().Err(err).Msg("search results degraded to raw text")
		return SearchResult{Raw: hidden}
	}
	return SearchResult{Links: links, Raw: hidden}
}

type searchEntry struct {
	Index json.RawMessage `json:"index"`
	Title string          `json:"title"`
	URL   string          `json:"url"`
}

// parseSearchLinks reads the fenced JSON document of a search result. The
// document maps group names to link lists; group order is preserved.
func parseSearchLinks(hidden string) ([]Link, error) {
	body := strings.TrimSpace(hidden)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimSuffix(body, "```")

	dec := json.NewDecoder(strings.NewReader(body))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read search results: %w", err)
	}

	var links []Link
	appendGroup := func() error {
		var group []searchEntry
		if err := dec.Decode(&group); err != nil {
			return fmt.Errorf("decode search group: %w", err)
		}
		for _, e := range group {
			idx := strings.Trim(string(e.Index), `"`)
			if idx == "" || idx == "null" {
				idx = strconv.Itoa(len(links) + 1)
			}
			links = append(links, Link{Index: idx, Title: e.Title, URL: e.URL})
		}
		return nil
	}

	switch tok {
	case json.Delim('{'):
		for dec.More() {
			if _, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("read search group name: %w", err)
			}
			if err := appendGroup(); err != nil {
				return nil, err
			}
		}
	case json.Delim('['):
		for dec.More() {
			if err := appendGroup(); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("unexpected search results token %v", tok)
	}

	if len(links) == 0 {
		return nil, errors.New("search results contain no links")
	}
	return links, nil
}

func suggestionTexts(replies []wireSuggestedReply) []string {
	if len(replies) == 0 {
		return nil
	}
	out := make([]string, 0, len(replies))
	for _, r := range replies {
		out = append(out, r.Text)
	}
	return out
}

func firstOf(values ...*string) string {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return ""
}
