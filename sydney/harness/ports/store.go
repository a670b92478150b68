package harnessports

import (
	"context"
	"time"
)

// SavedTranscript is one stored copy of a workspace transcript in the
// flat annotated format.
type SavedTranscript struct {
	WorkspaceID string
	Content     string
	TurnCount   int
	UpdatedAt   time.Time
}

// TranscriptStore persists transcripts per workspace. Every save also
// keeps a revision so earlier states can be listed.
type TranscriptStore interface {
	SaveTranscript(ctx context.Context, workspaceID, content string, turnCount int) error
	LoadTranscript(ctx context.Context, workspaceID string) (SavedTranscript, bool, error)
	Revisions(ctx context.Context, workspaceID string, k int) ([]SavedTranscript, error) // last-k, oldest first
}
