package chathub

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Event is one classified item of a turn's reply. The set of
// implementations is closed.
type Event interface {
	Kind() string
	sealed()
}

// SearchQuery is the web query the assistant issued.
type SearchQuery struct {
	Query string
}

// Link is one numbered web search reference.
type Link struct {
	Index string `json:"index"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// SearchResult carries structured links, or Raw when they could not be parsed.
type SearchResult struct {
	Links []Link
	Raw   string
}

// Text renders the result the way it is recorded in a transcript.
func (r SearchResult) Text() string {
	if len(r.Links) == 0 {
		return r.Raw
	}
	parts := make([]string, 0, len(r.Links))
	for _, l := range r.Links {
		parts = append(parts, fmt.Sprintf("[^%s^][%s](%s)", l.Index, l.Title, l.URL))
	}
	return strings.Join(parts, "\n\n")
}

// Loader is a progress/status message.
type Loader struct {
	Status string
}

// GenerativeImage is an image the assistant asked the service to draw.
// Prompt is the image description.
type GenerativeImage struct {
	Prompt string
}

// TextDelta is the next unseen suffix of the assistant message. NewBlock is
// set on the first delta after the service restarted rendering.
type TextDelta struct {
	Text     string
	NewBlock bool
}

// Suggestions ends the turn with follow-up prompts.
type Suggestions struct {
	Options []string
}

// ContentFiltered ends the turn because the service withheld the reply.
// Revoked is set when text had already been streamed before the apology.
type ContentFiltered struct {
	Revoked bool
}

// Done ends a turn that finished without suggestions.
type Done struct{}

// Unclassified carries a message whose type the client does not interpret.
type Unclassified struct {
	MessageType string
	Raw         json.RawMessage
}

func (SearchQuery) Kind() string     { return "search_query" }
func (SearchResult) Kind() string    { return "search_result" }
func (Loader) Kind() string          { return "loader" }
func (GenerativeImage) Kind() string { return "generative_image" }
func (TextDelta) Kind() string       { return "text_delta" }
func (Suggestions) Kind() string     { return "suggestions" }
func (ContentFiltered) Kind() string { return "content_filtered" }
func (Done) Kind() string            { return "done" }
func (Unclassified) Kind() string    { return "unclassified" }

func (SearchQuery) sealed()     {}
func (SearchResult) sealed()    {}
func (Loader) sealed()          {}
func (GenerativeImage) sealed() {}
func (TextDelta) sealed()       {}
func (Suggestions) sealed()     {}
func (ContentFiltered) sealed() {}
func (Done) sealed()            {}
func (Unclassified) sealed()    {}

// IsTerminal reports whether no further events follow ev in the turn.
func IsTerminal(ev Event) bool {
	switch ev.(type) {
	case Suggestions, ContentFiltered, Done:
		return true
	default:
		return false
	}
}
