// Package transcript converts the flat annotated chat log to and from an
// ordered sequence of turns.
//
// The exchange format is a sequence of blocks:
//
//	[role](#kind)
//	body
//
// separated by one blank line. Role is one of system, user or assistant;
// kind is an open tag such as "message" or "search_query".
package transcript

import (
	"regexp"
	"slices"
	"strings"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Well-known turn kinds. Any other kind is carried through untouched.
const (
	KindMessage        = "message"
	KindSearchQuery    = "search_query"
	KindSearchResults  = "search_results"
	KindLoading        = "loading"
	KindGenerativeImg  = "generative_image"
	KindWebpageContext = "webpage_context"
	KindAdditionalInst = "additional_instructions"
)

// Turn is one role-tagged block of transcript text.
type Turn struct {
	Role Role   `json:"role"`
	Kind string `json:"kind"`
	Text string `json:"text"`
}

var headerPattern = regexp.MustCompile(`^\[(?i:(system|user|assistant))\]\(#([^)]*)\)$`)

// Header renders the block header line for a turn.
func (t Turn) Header() string {
	return "[" + string(t.Role) + "](#" + t.Kind + ")"
}

// Parse splits a transcript into turns. Text before the first header is
// ignored and input without any header yields an empty result.
func Parse(text string) []Turn {
	var (
		turns []Turn
		cur   *Turn
		body  []string
	)

	flush := func() {
		if cur == nil {
			return
		}
		cur.Text = strings.TrimSpace(strings.Join(body, "\n"))
		turns = append(turns, *cur)
	}

	for _, line := range strings.Split(text, "\n") {
		if m := headerPattern.FindStringSubmatch(strings.TrimRight(line, " \t\r")); m != nil {
			flush()
			cur = &Turn{Role: Role(strings.ToLower(m[1])), Kind: m[2]}
			body = body[:0]
			continue
		}
		if cur != nil {
			body = append(body, line)
		}
	}
	flush()

	return turns
}

// Serialize renders turns back into the flat text format, each block
// separated by a blank line and the whole text followed by one.
func Serialize(turns []Turn) string {
	if len(turns) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, t := range turns {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(t.Header())
		sb.WriteString("\n")
		sb.WriteString(t.Text)
	}
	sb.WriteString("\n\n")
	return sb.String()
}

// IsHeader reports whether a line would be read as a block header.
func IsHeader(line string) bool {
	return headerPattern.MatchString(strings.TrimRight(line, " \t\r"))
}

// RevokeLast drops the most recent user message and everything after it.
// It returns the remaining turns and the revoked message text; ok is false
// when the transcript holds no user message.
func RevokeLast(turns []Turn) (remaining []Turn, revoked string, ok bool) {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleUser && turns[i].Kind == KindMessage {
			return slices.Clone(turns[:i]), turns[i].Text, true
		}
	}
	return turns, "", false
}
