package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"splicer/internal/media"
)

type templateRow struct {
	ID           string         `db:"id"`
	Owner        string         `db:"owner"`
	IntroMediaID sql.NullString `db:"intro_media_id"`
	OutroMediaID sql.NullString `db:"outro_media_id"`
	MusicMediaID sql.NullString `db:"music_media_id"`
	MusicGainDB  float64        `db:"music_gain_db"`
	DuckGainDB   float64        `db:"duck_gain_db"`
	IntroOverlap float64        `db:"intro_overlap_s"`
}

// CreateTemplate inserts a mixing template.
func (s *Store) CreateTemplate(ctx context.Context, t *media.Template) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if _, err := s.exec(ctx,
		`INSERT INTO templates (id, owner, intro_media_id, outro_media_id, music_media_id,
             music_gain_db, duck_gain_db, intro_overlap_s, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Owner,
		nullableString(t.IntroMediaID), nullableString(t.OutroMediaID), nullableString(t.MusicMediaID),
		t.MusicGainDB, t.DuckGainDB, t.IntroOverlapSeconds, nowString(),
	); err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

// GetTemplate fetches a template by id.
func (s *Store) GetTemplate(ctx context.Context, id string) (*media.Template, error) {
	var row templateRow
	if err := s.get(ctx, &row,
		`SELECT id, owner, intro_media_id, outro_media_id, music_media_id, music_gain_db, duck_gain_db, intro_overlap_s
         FROM templates WHERE id = ?`, id,
	); err != nil {
		return nil, fmt.Errorf("get template %s: %w", id, err)
	}
	return &media.Template{
		ID:                  row.ID,
		Owner:               row.Owner,
		IntroMediaID:        row.IntroMediaID.String,
		OutroMediaID:        row.OutroMediaID.String,
		MusicMediaID:        row.MusicMediaID.String,
		MusicGainDB:         row.MusicGainDB,
		DuckGainDB:          row.DuckGainDB,
		IntroOverlapSeconds: row.IntroOverlap,
	}, nil
}
