package chathub

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Delimiter terminates every JSON document on the ChatHub socket.
const Delimiter = '\x1e'

// Frame types used by the ChatHub protocol.
const (
	FrameUpdate  = 1
	FrameResult  = 2
	FrameRequest = 4
	FramePing    = 6
	FrameClose   = 7
)

// Frame is one delimiter-terminated JSON document received from the socket.
type Frame struct {
	Type int
	Data json.RawMessage
}

type frameHeader struct {
	Type int `json:"type"`
}

var (
	handshakeFrame = mustEncode(map[string]any{"protocol": "json", "version": 1})
	pingFrame      = mustEncode(frameHeader{Type: FramePing})
)

// encodeFrame marshals v without HTML escaping and appends the delimiter.
func encodeFrame(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	out := bytes.TrimRight(buf.Bytes(), "\n")
	return append(out, Delimiter), nil
}

func mustEncode(v any) []byte {
	b, err := encodeFrame(v)
	if err != nil {
		panic(err)
	}
	return b
}

// splitFrames cuts one receive into its non-empty JSON documents.
func splitFrames(data []byte) [][]byte {
	parts := bytes.Split(data, []byte{Delimiter})
	out := parts[:0]
	for _, p := range parts {
		if len(bytes.TrimSpace(p)) == 0 {
			continue
		}
		out = append(out, p)
	}
	return out
}

func decodeFrame(doc []byte) (Frame, error) {
	var h frameHeader
	if err := json.Unmarshal(doc, &h); err != nil {
		return Frame{}, fmt.Errorf("malformed frame: %w", err)
	}
	return Frame{Type: h.Type, Data: json.RawMessage(doc)}, nil
}

// wireMessage is the subset of a ChatHub message the client interprets.
// Text and HiddenText are pointers so absence can be told apart from "".
type wireMessage struct {
	Text               *string              `json:"text"`
	HiddenText         *string              `json:"hiddenText"`
	Author             string               `json:"author"`
	MessageType        string               `json:"messageType"`
	ContentOrigin      string               `json:"contentOrigin"`
	ContentType        string               `json:"contentType"`
	SuggestedResponses []wireSuggestedReply `json:"suggestedResponses"`
}

type wireSuggestedReply struct {
	Text string `json:"text"`
}

type updateFrame struct {
	Arguments []struct {
		Messages []json.RawMessage `json:"messages"`
		Cursor   json.RawMessage   `json:"cursor"`
	} `json:"arguments"`
}

type wireResult struct {
	Value   string `json:"value"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

type resultFrame struct {
	Item struct {
		Messages []json.RawMessage `json:"messages"`
		Result   *wireResult       `json:"result"`
	} `json:"item"`
}

// failed reports whether a completion result carries an error.
func (r *wireResult) failed() bool {
	if r == nil {
		return false
	}
	if r.Error != "" {
		return true
	}
	return r.Value != "" && r.Value != "Success"
}

// ChatRequest is the turn payload carried in the single request frame.
type ChatRequest struct {
	OptionsSets           []string          `json:"optionsSets"`
	Source                string            `json:"source"`
	AllowedMessageTypes   []string          `json:"allowedMessageTypes"`
	SliceIDs              []string          `json:"sliceIds"`
	TraceID               string            `json:"traceId"`
	IsStartOfSession      bool              `json:"isStartOfSession"`
	RequestID             string            `json:"requestId"`
	Message               ChatMessage       `json:"message"`
	Tone                  string            `json:"tone"`
	SpokenTextMode        string            `json:"spokenTextMode"`
	Verbosity             string            `json:"verbosity"`
	Scenario              string            `json:"scenario"`
	ConversationSignature string            `json:"conversationSignature,omitempty"`
	Participant           Participant       `json:"participant"`
	ConversationID        string            `json:"conversationId"`
	PreviousMessages      []PreviousMessage `json:"previousMessages"`
}

// ChatMessage is the user's message inside a ChatRequest.
type ChatMessage struct {
	Locale        string         `json:"locale"`
	Market        string         `json:"market"`
	Region        string         `json:"region"`
	LocationHints []LocationHint `json:"locationHints"`
	Author        string         `json:"author"`
	InputMethod   string         `json:"inputMethod"`
	Text          string         `json:"text"`
	MessageType   string         `json:"messageType"`
	RequestID     string         `json:"requestId"`
	MessageID     string         `json:"messageId"`
	ImageURL      *string        `json:"imageUrl"`
}

type Participant struct {
	ID string `json:"id"`
}

// PreviousMessage carries prior context, here the serialized transcript.
type PreviousMessage struct {
	Author      string `json:"author"`
	Description string `json:"description"`
	ContextType string `json:"contextType"`
	MessageType string `json:"messageType"`
	MessageID   string `json:"messageId"`
}

type requestFrame struct {
	Arguments    []ChatRequest `json:"arguments"`
	InvocationID string        `json:"invocationId"`
	Target       string        `json:"target"`
	Type         int           `json:"type"`
}

// EncodeRequest wraps a ChatRequest into a delimiter-terminated request frame.
func EncodeRequest(req ChatRequest) ([]byte, error) {
	return encodeFrame(requestFrame{
		Arguments:    []ChatRequest{req},
		InvocationID: "0",
		Target:       "chat",
		Type:         FrameRequest,
	})
}
