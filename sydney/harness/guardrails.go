package harness

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ZanzyTHEbar/sydney-stream/sydney/chathub"

	"github.com/xeipuuv/gojsonschema"
)

// ErrEmptyPrompt is returned for a blank user message.
var ErrEmptyPrompt = errors.New("prompt is empty")

// requestSchema is the minimum a turn request must carry to be accepted
// by the service.
const requestSchema = `{
  "type": "object",
  "required": ["conversationId", "participant", "message", "optionsSets", "tone", "previousMessages"],
  "properties": {
    "conversationId": {"type": "string", "minLength": 1},
    "participant": {
      "type": "object",
      "required": ["id"],
      "properties": {"id": {"type": "string", "minLength": 1}}
    },
    "optionsSets": {"type": "array", "minItems": 1, "items": {"type": "string"}},
    "tone": {"enum": ["Creative", "Balanced", "Precise"]},
    "message": {
      "type": "object",
      "required": ["text", "author", "locale"],
      "properties": {
        "text": {"type": "string", "minLength": 1},
        "author": {"const": "user"},
        "imageUrl": {"type": ["string", "null"]}
      }
    },
    "previousMessages": {
      "type": "array",
      "maxItems": 1,
      "items": {
        "type": "object",
        "required": ["messageType", "description"],
        "properties": {"messageType": {"const": "Context"}}
      }
    }
  }
}`

// Guardrails checks prompts and outgoing requests before a turn starts.
type Guardrails struct {
	blockedWords   []string
	maxPromptChars int
	schema         *gojsonschema.Schema
}

// NewGuardrails builds guardrails. maxPromptChars <= 0 disables the length
// check.
func NewGuardrails(blockedWords []string, maxPromptChars int) (*Guardrails, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(requestSchema))
	if err != nil {
		return nil, fmt.Errorf("compile request schema: %w", err)
	}
	words := make([]string, 0, len(blockedWords))
	for _, w := range blockedWords {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			words = append(words, w)
		}
	}
	return &Guardrails{blockedWords: words, maxPromptChars: maxPromptChars, schema: schema}, nil
}

// ValidatePrompt rejects blank, oversized or blocked prompts.
func (g *Guardrails) ValidatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}
	if g.maxPromptChars > 0 {
		if n := utf8.RuneCountInString(prompt); n > g.maxPromptChars {
			return fmt.Errorf("prompt length %d exceeds maximum %d", n, g.maxPromptChars)
		}
	}
	lower := strings.ToLower(prompt)
	for _, word := range g.blockedWords {
		if strings.Contains(lower, word) {
			return fmt.Errorf("prompt contains blocked word: %s", word)
		}
	}
	return nil
}

// ValidateRequest checks the request payload against the request schema.
func (g *Guardrails) ValidateRequest(req chathub.ChatRequest) error {
	doc, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	result, err := g.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var errs []string
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
