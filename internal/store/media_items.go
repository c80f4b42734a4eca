package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"splicer/internal/media"
)

const mediaItemColumns = "id, owner, category, storage_key, source_uri, lookup_key, transcript_ready, provider_decision_json, duration_s, created_at, updated_at"

type mediaItemRow struct {
	ID               string         `db:"id"`
	Owner            string         `db:"owner"`
	Category         string         `db:"category"`
	StorageKey       string         `db:"storage_key"`
	SourceURI        sql.NullString `db:"source_uri"`
	LookupKey        sql.NullString `db:"lookup_key"`
	TranscriptReady  int            `db:"transcript_ready"`
	ProviderDecision sql.NullString `db:"provider_decision_json"`
	DurationSeconds  float64        `db:"duration_s"`
	CreatedAt        string         `db:"created_at"`
	UpdatedAt        string         `db:"updated_at"`
}

func (r mediaItemRow) toMediaItem() (*media.MediaItem, error) {
	item := &media.MediaItem{
		ID:              r.ID,
		Owner:           r.Owner,
		Category:        media.Category(r.Category),
		StorageKey:      r.StorageKey,
		SourceURI:       r.SourceURI.String,
		TranscriptReady: r.TranscriptReady != 0,
		DurationSeconds: r.DurationSeconds,
		CreatedAt:       parseTime(r.CreatedAt),
		UpdatedAt:       parseTime(r.UpdatedAt),
	}
	if r.ProviderDecision.Valid && r.ProviderDecision.String != "" {
		var decision media.ProviderDecision
		if err := json.Unmarshal([]byte(r.ProviderDecision.String), &decision); err != nil {
			return nil, fmt.Errorf("decode provider decision for %s: %w", r.ID, err)
		}
		item.ProviderDecision = &decision
	}
	return item, nil
}

// CreateMediaItem inserts a new media item. An empty ID is assigned a uuid.
func (s *Store) CreateMediaItem(ctx context.Context, item *media.MediaItem) error {
	if item == nil {
		return fmt.Errorf("create media item: nil item")
	}
	if strings.TrimSpace(item.StorageKey) == "" {
		return fmt.Errorf("create media item: storage key is required")
	}
	if !item.Category.Valid() {
		return fmt.Errorf("create media item: invalid category %q", item.Category)
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := nowString()
	lookup := media.NormalizeIdentity(item.SourceURI)
	if lookup == "" {
		lookup = media.NormalizeIdentity(item.StorageKey)
	}
	if _, err := s.exec(ctx,
		`INSERT INTO media_items (`+mediaItemColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.Owner,
		string(item.Category),
		item.StorageKey,
		nullableString(item.SourceURI),
		nullableString(lookup),
		boolToInt(item.TranscriptReady),
		nil,
		item.DurationSeconds,
		now,
		now,
	); err != nil {
		return fmt.Errorf("insert media item: %w", err)
	}
	item.CreatedAt = parseTime(now)
	item.UpdatedAt = item.CreatedAt
	return nil
}

// GetMediaItem fetches a media item by id.
func (s *Store) GetMediaItem(ctx context.Context, id string) (*media.MediaItem, error) {
	var row mediaItemRow
	if err := s.get(ctx, &row, `SELECT `+mediaItemColumns+` FROM media_items WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("get media item %s: %w", id, err)
	}
	return row.toMediaItem()
}

// MediaItemByStorageKey fetches the media item stored under key.
func (s *Store) MediaItemByStorageKey(ctx context.Context, key string) (*media.MediaItem, error) {
	var row mediaItemRow
	if err := s.get(ctx, &row, `SELECT `+mediaItemColumns+` FROM media_items WHERE storage_key = ?`, key); err != nil {
		return nil, fmt.Errorf("media item by storage key: %w", err)
	}
	return row.toMediaItem()
}

// MediaItemsByBaseName returns media items whose storage key or source URI
// ends in the given basename, newest first.
func (s *Store) MediaItemsByBaseName(ctx context.Context, base string) ([]*media.MediaItem, error) {
	if base == "" {
		return nil, nil
	}
	var rows []mediaItemRow
	if err := s.selectRows(ctx, &rows,
		`SELECT `+mediaItemColumns+` FROM media_items
         WHERE storage_key = ? OR storage_key LIKE ? ESCAPE '\'
            OR source_uri = ? OR source_uri LIKE ? ESCAPE '\'
         ORDER BY created_at DESC`,
		base, "%/"+escapeLike(base), base, "%/"+escapeLike(base),
	); err != nil {
		return nil, fmt.Errorf("media items by basename: %w", err)
	}
	return toMediaItems(rows)
}

// MediaItemsByLookupKey returns media items whose normalized identity matches key.
func (s *Store) MediaItemsByLookupKey(ctx context.Context, key string) ([]*media.MediaItem, error) {
	if key == "" {
		return nil, nil
	}
	var rows []mediaItemRow
	if err := s.selectRows(ctx, &rows,
		`SELECT `+mediaItemColumns+` FROM media_items WHERE lookup_key = ? ORDER BY created_at DESC`, key,
	); err != nil {
		return nil, fmt.Errorf("media items by lookup key: %w", err)
	}
	return toMediaItems(rows)
}

// SetTranscriptReady flips the ready flag of a media item.
func (s *Store) SetTranscriptReady(ctx context.Context, id string, ready bool) error {
	res, err := s.exec(ctx,
		`UPDATE media_items SET transcript_ready = ?, updated_at = ? WHERE id = ?`,
		boolToInt(ready), nowString(), id,
	)
	if err != nil {
		return fmt.Errorf("set transcript ready: %w", err)
	}
	return requireAffected(res, "media item", id)
}

// SetProviderDecision records how the media item was transcribed.
func (s *Store) SetProviderDecision(ctx context.Context, id string, decision media.ProviderDecision) error {
	payload, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("encode provider decision: %w", err)
	}
	res, err := s.exec(ctx,
		`UPDATE media_items SET provider_decision_json = ?, updated_at = ? WHERE id = ?`,
		string(payload), nowString(), id,
	)
	if err != nil {
		return fmt.Errorf("set provider decision: %w", err)
	}
	return requireAffected(res, "media item", id)
}

// SetMediaDuration stores the probed duration of a media item.
func (s *Store) SetMediaDuration(ctx context.Context, id string, seconds float64) error {
	res, err := s.exec(ctx,
		`UPDATE media_items SET duration_s = ?, updated_at = ? WHERE id = ?`,
		seconds, nowString(), id,
	)
	if err != nil {
		return fmt.Errorf("set media duration: %w", err)
	}
	return requireAffected(res, "media item", id)
}

// DeleteMediaItem removes a media item. Transcripts referencing it must be
// deleted first; the foreign key rejects the delete otherwise. Deleting a
// missing item is not an error.
func (s *Store) DeleteMediaItem(ctx context.Context, id string) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM media_items WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete media item %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func toMediaItems(rows []mediaItemRow) ([]*media.MediaItem, error) {
	items := make([]*media.MediaItem, 0, len(rows))
	for _, row := range rows {
		item, err := row.toMediaItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func escapeLike(value string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(value)
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
