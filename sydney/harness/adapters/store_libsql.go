package adapters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	ports "github.com/ZanzyTHEbar/sydney-stream/sydney/harness/ports"
)

// LibSQLTranscriptStore implements TranscriptStore on the migrated
// transcripts schema.
type LibSQLTranscriptStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewLibSQLTranscriptStore(db *sql.DB) *LibSQLTranscriptStore {
	return &LibSQLTranscriptStore{db: db, now: time.Now}
}

// SaveTranscript upserts the current transcript and appends a revision in
// one transaction.
func (s *LibSQLTranscriptStore) SaveTranscript(ctx context.Context, workspaceID, content string, turnCount int) error {
	if workspaceID == "" {
		return errors.New("workspace id is empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UnixMilli()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO transcripts (workspace_id, content, turn_count, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (workspace_id) DO UPDATE SET
			content = excluded.content,
			turn_count = excluded.turn_count,
			updated_at = excluded.updated_at
	`, workspaceID, content, turnCount, now)
	if err != nil {
		return fmt.Errorf("failed to save transcript: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transcript_revisions (workspace_id, content, saved_at)
		VALUES (?, ?, ?)
	`, workspaceID, content, now)
	if err != nil {
		return fmt.Errorf("failed to save transcript revision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transcript: %w", err)
	}
	return nil
}

// LoadTranscript returns the latest transcript of a workspace.
func (s *LibSQLTranscriptStore) LoadTranscript(ctx context.Context, workspaceID string) (ports.SavedTranscript, bool, error) {
	saved := ports.SavedTranscript{WorkspaceID: workspaceID}
	var updated int64
	err := s.db.QueryRowContext(ctx, `
		SELECT content, turn_count, updated_at FROM transcripts
		WHERE workspace_id = ?
	`, workspaceID).Scan(&saved.Content, &saved.TurnCount, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.SavedTranscript{}, false, nil
	}
	if err != nil {
		return ports.SavedTranscript{}, false, fmt.Errorf("failed to load transcript: %w", err)
	}
	saved.UpdatedAt = time.UnixMilli(updated)
	return saved, true, nil
}

// Revisions loads the last k saved revisions, oldest first.
func (s *LibSQLTranscriptStore) Revisions(ctx context.Context, workspaceID string, k int) ([]ports.SavedTranscript, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT content, saved_at FROM transcript_revisions
		WHERE workspace_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, workspaceID, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query revisions: %w", err)
	}
	defer rows.Close()

	var revs []ports.SavedTranscript
	for rows.Next() {
		rev := ports.SavedTranscript{WorkspaceID: workspaceID}
		var saved int64
		if err := rows.Scan(&rev.Content, &saved); err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}
		rev.UpdatedAt = time.UnixMilli(saved)
		revs = append(revs, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating revisions: %w", err)
	}

	// Reverse to get chronological order (oldest first)
	for i, j := 0, len(revs)-1; i < j; i, j = i+1, j-1 {
		revs[i], revs[j] = revs[j], revs[i]
	}
	return revs, nil
}

// Ensure LibSQLTranscriptStore implements the TranscriptStore interface.
var _ ports.TranscriptStore = (*LibSQLTranscriptStore)(nil)
