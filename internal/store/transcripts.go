package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"splicer/internal/media"
)

type transcriptRow struct {
	MediaItemID string         `db:"media_item_id"`
	WordsJSON   string         `db:"words_json"`
	WordCount   int            `db:"word_count"`
	Provider    string         `db:"provider"`
	Metadata    sql.NullString `db:"metadata_json"`
	CreatedAt   string         `db:"created_at"`
}

// PutTranscript writes the single transcript row of a media item inside one
// transaction, replacing any previous row. The media item must exist.
func (s *Store) PutTranscript(ctx context.Context, t media.Transcript) error {
	wordsJSON, err := json.Marshal(t.Words)
	if err != nil {
		return fmt.Errorf("encode words: %w", err)
	}
	var metaJSON any
	if len(t.Metadata) > 0 {
		encoded, err := json.Marshal(t.Metadata)
		if err != nil {
			return fmt.Errorf("encode provider metadata: %w", err)
		}
		metaJSON = string(encoded)
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var exists int
		if err := tx.GetContext(ctx, &exists, `SELECT COUNT(1) FROM media_items WHERE id = ?`, t.MediaItemID); err != nil {
			return fmt.Errorf("check media item: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("media item %s: %w", t.MediaItemID, ErrNotFound)
		}
		now := nowString()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transcripts (media_item_id, words_json, word_count, provider, metadata_json, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?)
             ON CONFLICT(media_item_id) DO UPDATE SET
                 words_json = excluded.words_json,
                 word_count = excluded.word_count,
                 provider = excluded.provider,
                 metadata_json = excluded.metadata_json,
                 updated_at = excluded.updated_at`,
			t.MediaItemID, string(wordsJSON), len(t.Words), t.Provider, metaJSON, now, now,
		); err != nil {
			return fmt.Errorf("upsert transcript: %w", err)
		}
		return nil
	})
}

// TranscriptByMediaItem loads the transcript owned by a media item.
func (s *Store) TranscriptByMediaItem(ctx context.Context, mediaItemID string) (*media.Transcript, error) {
	var row transcriptRow
	if err := s.get(ctx, &row,
		`SELECT media_item_id, words_json, word_count, provider, metadata_json, created_at
         FROM transcripts WHERE media_item_id = ?`, mediaItemID,
	); err != nil {
		return nil, fmt.Errorf("transcript for %s: %w", mediaItemID, err)
	}
	t := &media.Transcript{
		MediaItemID: row.MediaItemID,
		Provider:    row.Provider,
		CreatedAt:   parseTime(row.CreatedAt),
	}
	if err := json.Unmarshal([]byte(row.WordsJSON), &t.Words); err != nil {
		return nil, fmt.Errorf("decode words for %s: %w", mediaItemID, err)
	}
	if len(t.Words) != row.WordCount {
		return nil, fmt.Errorf("transcript for %s: stored %d words, decoded %d", mediaItemID, row.WordCount, len(t.Words))
	}
	if row.Metadata.Valid && row.Metadata.String != "" {
		if err := json.Unmarshal([]byte(row.Metadata.String), &t.Metadata); err != nil {
			return nil, fmt.Errorf("decode provider metadata for %s: %w", mediaItemID, err)
		}
	}
	return t, nil
}

// DeleteTranscripts removes every transcript row referencing a media item and
// returns how many rows were deleted.
func (s *Store) DeleteTranscripts(ctx context.Context, mediaItemID string) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM transcripts WHERE media_item_id = ?`, mediaItemID)
	if err != nil {
		return 0, fmt.Errorf("delete transcripts for %s: %w", mediaItemID, err)
	}
	return res.RowsAffected()
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
