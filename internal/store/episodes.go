package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"splicer/internal/media"
)

const episodeColumns = "id, owner, tier, title, status, media_item_id, template_id, working_audio, commands_json, options_json, final_audio, derivatives_json, metadata_json, warnings_json, error_message, job_handle, attempts, last_heartbeat, created_at, updated_at"

// ErrInvalidTransition is returned when an episode is not in a state that
// permits the requested change.
var ErrInvalidTransition = errors.New("invalid episode transition")

type episodeRow struct {
	ID            string         `db:"id"`
	Owner         string         `db:"owner"`
	Tier          sql.NullString `db:"tier"`
	Title         string         `db:"title"`
	Status        string         `db:"status"`
	MediaItemID   sql.NullString `db:"media_item_id"`
	TemplateID    sql.NullString `db:"template_id"`
	WorkingAudio  sql.NullString `db:"working_audio"`
	CommandsJSON  sql.NullString `db:"commands_json"`
	OptionsJSON   sql.NullString `db:"options_json"`
	FinalAudio    sql.NullString `db:"final_audio"`
	Derivatives   sql.NullString `db:"derivatives_json"`
	MetadataJSON  sql.NullString `db:"metadata_json"`
	WarningsJSON  sql.NullString `db:"warnings_json"`
	ErrorMessage  sql.NullString `db:"error_message"`
	JobHandle     sql.NullString `db:"job_handle"`
	Attempts      int            `db:"attempts"`
	LastHeartbeat sql.NullString `db:"last_heartbeat"`
	CreatedAt     string         `db:"created_at"`
	UpdatedAt     string         `db:"updated_at"`
}

func (r episodeRow) toEpisode() (*media.Episode, error) {
	ep := &media.Episode{
		ID:           r.ID,
		Owner:        r.Owner,
		Tier:         r.Tier.String,
		Title:        r.Title,
		Status:       media.EpisodeStatus(r.Status),
		MediaItemID:  r.MediaItemID.String,
		TemplateID:   r.TemplateID.String,
		WorkingAudio: r.WorkingAudio.String,
		OptionsJSON:  r.OptionsJSON.String,
		FinalAudio:   r.FinalAudio.String,
		ErrorMessage: r.ErrorMessage.String,
		JobHandle:    r.JobHandle.String,
		Attempts:     r.Attempts,
		CreatedAt:    parseTime(r.CreatedAt),
		UpdatedAt:    parseTime(r.UpdatedAt),
	}
	decode := []struct {
		name string
		raw  sql.NullString
		dest any
	}{
		{"commands", r.CommandsJSON, &ep.Commands},
		{"derivatives", r.Derivatives, &ep.Derivatives},
		{"metadata", r.MetadataJSON, &ep.Metadata},
		{"warnings", r.WarningsJSON, &ep.Warnings},
	}
	for _, d := range decode {
		if !d.raw.Valid || d.raw.String == "" {
			continue
		}
		if err := json.Unmarshal([]byte(d.raw.String), d.dest); err != nil {
			return nil, fmt.Errorf("decode %s for episode %s: %w", d.name, r.ID, err)
		}
	}
	if r.LastHeartbeat.Valid && r.LastHeartbeat.String != "" {
		hb := parseTime(r.LastHeartbeat.String)
		ep.LastHeartbeat = &hb
	}
	return ep, nil
}

func encodeJSON(value any) (any, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	if string(payload) == "null" {
		return nil, nil
	}
	return string(payload), nil
}

// CreateEpisode inserts a draft episode. An empty ID is assigned a uuid.
func (s *Store) CreateEpisode(ctx context.Context, ep *media.Episode) error {
	if ep == nil {
		return errors.New("create episode: nil episode")
	}
	if ep.ID == "" {
		ep.ID = uuid.NewString()
	}
	if strings.TrimSpace(ep.Title) == "" {
		ep.Title = "Untitled episode"
	}
	ep.Status = media.StatusDraft
	now := nowString()
	if _, err := s.exec(ctx,
		`INSERT INTO episodes (id, owner, tier, title, status, media_item_id, template_id, attempts, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		ep.ID, ep.Owner, nullableString(ep.Tier), ep.Title, string(ep.Status),
		nullableString(ep.MediaItemID), nullableString(ep.TemplateID), now, now,
	); err != nil {
		return fmt.Errorf("insert episode: %w", err)
	}
	ep.CreatedAt = parseTime(now)
	ep.UpdatedAt = ep.CreatedAt
	return nil
}

// GetEpisode fetches an episode by id.
func (s *Store) GetEpisode(ctx context.Context, id string) (*media.Episode, error) {
	var row episodeRow
	if err := s.get(ctx, &row, `SELECT `+episodeColumns+` FROM episodes WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("get episode %s: %w", id, err)
	}
	return row.toEpisode()
}

// ListEpisodes returns episodes filtered by status (all when none given),
// oldest first.
func (s *Store) ListEpisodes(ctx context.Context, statuses ...media.EpisodeStatus) ([]*media.Episode, error) {
	query := `SELECT ` + episodeColumns + ` FROM episodes`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (?)`
		values := make([]string, 0, len(statuses))
		for _, st := range statuses {
			values = append(values, string(st))
		}
		var err error
		query, args, err = sqlx.In(query, values)
		if err != nil {
			return nil, fmt.Errorf("build episode query: %w", err)
		}
	}
	query += ` ORDER BY created_at, id`
	var rows []episodeRow
	if err := s.selectRows(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	out := make([]*media.Episode, 0, len(rows))
	for _, row := range rows {
		ep, err := row.toEpisode()
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, nil
}

// QueueEpisode stores the confirmed command list and options of an assembly
// request and moves a draft or failed episode to queued under a new job
// handle. When the episode is already queued or processing, the existing
// episode is returned unchanged with queued=false.
func (s *Store) QueueEpisode(ctx context.Context, id string, cmds []media.Command, optionsJSON string) (ep *media.Episode, queued bool, err error) {
	commandsJSON, err := encodeJSON(cmds)
	if err != nil {
		return nil, false, fmt.Errorf("encode commands: %w", err)
	}
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		var status string
		if err := tx.GetContext(ctx, &status, `SELECT status FROM episodes WHERE id = ?`, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("episode %s: %w", id, ErrNotFound)
			}
			return err
		}
		switch media.EpisodeStatus(status) {
		case media.StatusQueued, media.StatusProcessing:
			queued = false
			return nil
		case media.StatusDraft, media.StatusError:
		default:
			return fmt.Errorf("episode %s is %s: %w", id, status, ErrInvalidTransition)
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE episodes SET status = ?, commands_json = ?, options_json = ?, job_handle = ?,
                 error_message = NULL, last_heartbeat = NULL, updated_at = ?
             WHERE id = ? AND status = ?`,
			string(media.StatusQueued), commandsJSON, nullableString(optionsJSON), uuid.NewString(),
			nowString(), id, status,
		)
		if err != nil {
			return fmt.Errorf("queue episode: %w", err)
		}
		queued = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	ep, err = s.GetEpisode(ctx, id)
	return ep, queued, err
}

// NextQueued returns up to limit queued episode ids, oldest first.
func (s *Store) NextQueued(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	if err := s.selectRows(ctx, &ids,
		`SELECT id FROM episodes WHERE status = ? ORDER BY updated_at, id LIMIT ?`,
		string(media.StatusQueued), limit,
	); err != nil {
		return nil, fmt.Errorf("next queued: %w", err)
	}
	return ids, nil
}

// ClaimEpisode moves a queued episode to processing. It reports false when
// another worker claimed it first.
func (s *Store) ClaimEpisode(ctx context.Context, id string) (bool, error) {
	now := nowString()
	res, err := s.exec(ctx,
		`UPDATE episodes SET status = ?, attempts = attempts + 1, last_heartbeat = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(media.StatusProcessing), now, now, id, string(media.StatusQueued),
	)
	if err != nil {
		return false, fmt.Errorf("claim episode %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdateHeartbeat refreshes the heartbeat of a processing episode.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	now := nowString()
	if _, err := s.exec(ctx,
		`UPDATE episodes SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now, now, id, string(media.StatusProcessing),
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleProcessing returns processing episodes whose heartbeat is older
// than cutoff to queued.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx,
		`UPDATE episodes SET status = ?, last_heartbeat = NULL, updated_at = ?
         WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		string(media.StatusQueued), nowString(), string(media.StatusProcessing), formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale episodes: %w", err)
	}
	return res.RowsAffected()
}

// ResetStuckProcessing returns every processing episode to queued. The daemon
// calls it at startup, when no attempt can be running.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx,
		`UPDATE episodes SET status = ?, last_heartbeat = NULL, updated_at = ? WHERE status = ?`,
		string(media.StatusQueued), nowString(), string(media.StatusProcessing),
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck episodes: %w", err)
	}
	return res.RowsAffected()
}

// EpisodeResult is the outcome of a successful assembly attempt.
type EpisodeResult struct {
	WorkingAudio string
	FinalAudio   string
	Derivatives  []media.Derivative
	Metadata     media.EpisodeMetadata
	Warnings     []string
}

// CompleteEpisode moves a processing episode to processed. Completing an
// episode that is already processed or published is a no-op that returns
// changed=false.
func (s *Store) CompleteEpisode(ctx context.Context, id string, result EpisodeResult) (bool, error) {
	derivatives, err := encodeJSON(result.Derivatives)
	if err != nil {
		return false, fmt.Errorf("encode derivatives: %w", err)
	}
	metadata, err := encodeJSON(result.Metadata)
	if err != nil {
		return false, fmt.Errorf("encode metadata: %w", err)
	}
	warnings, err := encodeJSON(result.Warnings)
	if err != nil {
		return false, fmt.Errorf("encode warnings: %w", err)
	}
	res, err := s.exec(ctx,
		`UPDATE episodes SET status = ?, working_audio = ?, final_audio = ?, derivatives_json = ?,
             metadata_json = ?, warnings_json = ?, error_message = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(media.StatusProcessed), nullableString(result.WorkingAudio), nullableString(result.FinalAudio),
		derivatives, metadata, warnings, nowString(), id, string(media.StatusProcessing),
	)
	if err != nil {
		return false, fmt.Errorf("complete episode %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	ep, err := s.GetEpisode(ctx, id)
	if err != nil {
		return false, err
	}
	if ep.Status == media.StatusProcessed || ep.Status == media.StatusPublished {
		return false, nil
	}
	return false, fmt.Errorf("episode %s is %s: %w", id, ep.Status, ErrInvalidTransition)
}

// FailEpisode moves a queued or processing episode to error with reason.
func (s *Store) FailEpisode(ctx context.Context, id, reason string, warnings []string) error {
	encoded, err := encodeJSON(warnings)
	if err != nil {
		return fmt.Errorf("encode warnings: %w", err)
	}
	res, err := s.exec(ctx,
		`UPDATE episodes SET status = ?, error_message = ?, warnings_json = COALESCE(?, warnings_json),
             last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		string(media.StatusError), reason, encoded, nowString(), id,
		string(media.StatusQueued), string(media.StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("fail episode %s: %w", id, err)
	}
	return requireTransition(res, id)
}

// PublishEpisode moves a processed episode to published.
func (s *Store) PublishEpisode(ctx context.Context, id string) error {
	res, err := s.exec(ctx,
		`UPDATE episodes SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(media.StatusPublished), nowString(), id, string(media.StatusProcessed),
	)
	if err != nil {
		return fmt.Errorf("publish episode %s: %w", id, err)
	}
	return requireTransition(res, id)
}

// SetEpisodeMedia attaches the main media item and template to a draft episode.
func (s *Store) SetEpisodeMedia(ctx context.Context, id, mediaItemID, templateID string) error {
	res, err := s.exec(ctx,
		`UPDATE episodes SET media_item_id = ?, template_id = ?, updated_at = ? WHERE id = ? AND status IN (?, ?)`,
		nullableString(mediaItemID), nullableString(templateID), nowString(), id,
		string(media.StatusDraft), string(media.StatusError),
	)
	if err != nil {
		return fmt.Errorf("set episode media: %w", err)
	}
	return requireTransition(res, id)
}

func requireTransition(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("episode %s: %w", id, ErrInvalidTransition)
	}
	return nil
}

// Stats returns a count of episodes grouped by status.
func (s *Store) Stats(ctx context.Context) (map[media.EpisodeStatus]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"n"`
	}
	if err := s.selectRows(ctx, &rows, `SELECT status, COUNT(1) AS n FROM episodes GROUP BY status`); err != nil {
		return nil, fmt.Errorf("episode stats: %w", err)
	}
	stats := make(map[media.EpisodeStatus]int, len(rows))
	for _, r := range rows {
		stats[media.EpisodeStatus(r.Status)] = r.Count
	}
	return stats, nil
}
