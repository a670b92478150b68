package harnessports

import (
	"context"

	"github.com/ZanzyTHEbar/sydney-stream/sydney/chathub"
)

// ConversationCreator allocates a fresh server-side conversation.
type ConversationCreator interface {
	Create(ctx context.Context, creds chathub.Credentials) (chathub.Conversation, error)
}

// ImageUploader turns image bytes into a blob id.
type ImageUploader interface {
	Upload(ctx context.Context, filename string, data []byte) (string, error)
}

// CredentialSource yields the cookies to use for the next turn.
type CredentialSource interface {
	Current() chathub.Credentials
}
