package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"splicer/internal/media"
)

const commandColumns = "command_id, media_item_id, kind, start_s, end_s, marker_index, prompt_text, response_text, override_text, audio_ref, superseded_ref, audio_s, voice, review_state, generation_state, failure_reason, regenerations, context, created_at, updated_at"

type commandRow struct {
	ID            string         `db:"command_id"`
	MediaItemID   string         `db:"media_item_id"`
	Kind          string         `db:"kind"`
	Start         float64        `db:"start_s"`
	End           float64        `db:"end_s"`
	MarkerIndex   int            `db:"marker_index"`
	PromptText    sql.NullString `db:"prompt_text"`
	ResponseText  sql.NullString `db:"response_text"`
	OverrideText  sql.NullString `db:"override_text"`
	AudioRef      sql.NullString `db:"audio_ref"`
	SupersededRef sql.NullString `db:"superseded_ref"`
	AudioSeconds  float64        `db:"audio_s"`
	Voice         sql.NullString `db:"voice"`
	Review        string         `db:"review_state"`
	Generation    sql.NullString `db:"generation_state"`
	FailureReason sql.NullString `db:"failure_reason"`
	Regenerations int            `db:"regenerations"`
	Context       sql.NullString `db:"context"`
	CreatedAt     string         `db:"created_at"`
	UpdatedAt     string         `db:"updated_at"`
}

func (r commandRow) toCommand() media.Command {
	return media.Command{
		ID:            r.ID,
		MediaItemID:   r.MediaItemID,
		Kind:          media.CommandKind(r.Kind),
		Start:         r.Start,
		End:           r.End,
		MarkerIndex:   r.MarkerIndex,
		PromptText:    r.PromptText.String,
		ResponseText:  r.ResponseText.String,
		OverrideText:  r.OverrideText.String,
		AudioRef:      r.AudioRef.String,
		SupersededRef: r.SupersededRef.String,
		AudioSeconds:  r.AudioSeconds,
		Voice:         r.Voice.String,
		Review:        media.ReviewState(r.Review),
		Generation:    media.GenerationState(r.Generation.String),
		FailureReason: r.FailureReason.String,
		Regenerations: r.Regenerations,
		Context:       r.Context.String,
		CreatedAt:     parseTime(r.CreatedAt),
		UpdatedAt:     parseTime(r.UpdatedAt),
	}
}

func commandArgs(c media.Command, created, updated string) []any {
	return []any{
		c.ID,
		c.MediaItemID,
		string(c.Kind),
		c.Start,
		c.End,
		c.MarkerIndex,
		nullableString(c.PromptText),
		nullableString(c.ResponseText),
		nullableString(c.OverrideText),
		nullableString(c.AudioRef),
		nullableString(c.SupersededRef),
		c.AudioSeconds,
		nullableString(c.Voice),
		string(c.Review),
		nullableString(string(c.Generation)),
		nullableString(c.FailureReason),
		c.Regenerations,
		nullableString(c.Context),
		created,
		updated,
	}
}

// InsertDetectedCommands stores freshly detected commands. Commands whose id
// already exists keep their reviewed state, so re-running detection never
// discards review edits. It returns the stored version of every command.
func (s *Store) InsertDetectedCommands(ctx context.Context, cmds []media.Command) ([]media.Command, error) {
	if len(cmds) == 0 {
		return nil, nil
	}
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		now := nowString()
		for _, c := range cmds {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO commands (`+commandColumns+`)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
                 ON CONFLICT(command_id) DO NOTHING`,
				commandArgs(c, now, now)...,
			); err != nil {
				return fmt.Errorf("insert command %s: %w", c.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]media.Command, 0, len(cmds))
	for _, c := range cmds {
		stored, err := s.GetCommand(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, *stored)
	}
	return out, nil
}

// GetCommand fetches a command by id.
func (s *Store) GetCommand(ctx context.Context, id string) (*media.Command, error) {
	var row commandRow
	if err := s.get(ctx, &row, `SELECT `+commandColumns+` FROM commands WHERE command_id = ?`, id); err != nil {
		return nil, fmt.Errorf("get command %s: %w", id, err)
	}
	c := row.toCommand()
	return &c, nil
}

// CommandsForMediaItem lists the commands detected on a media item in
// timeline order.
func (s *Store) CommandsForMediaItem(ctx context.Context, mediaItemID string) ([]media.Command, error) {
	var rows []commandRow
	if err := s.selectRows(ctx, &rows,
		`SELECT `+commandColumns+` FROM commands WHERE media_item_id = ? ORDER BY start_s, marker_index`, mediaItemID,
	); err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	out := make([]media.Command, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toCommand())
	}
	return out, nil
}

// UpdateCommand persists every mutable field of a command.
func (s *Store) UpdateCommand(ctx context.Context, c *media.Command) error {
	now := nowString()
	res, err := s.exec(ctx,
		`UPDATE commands SET
            start_s = ?, end_s = ?, prompt_text = ?, response_text = ?, override_text = ?,
            audio_ref = ?, superseded_ref = ?, audio_s = ?, voice = ?, review_state = ?, generation_state = ?,
            failure_reason = ?, regenerations = ?, context = ?, updated_at = ?
         WHERE command_id = ?`,
		c.Start, c.End,
		nullableString(c.PromptText),
		nullableString(c.ResponseText),
		nullableString(c.OverrideText),
		nullableString(c.AudioRef),
		nullableString(c.SupersededRef),
		c.AudioSeconds,
		nullableString(c.Voice),
		string(c.Review),
		nullableString(string(c.Generation)),
		nullableString(c.FailureReason),
		c.Regenerations,
		nullableString(c.Context),
		now,
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("update command %s: %w", c.ID, err)
	}
	if err := requireAffected(res, "command", c.ID); err != nil {
		return err
	}
	c.UpdatedAt = parseTime(now)
	return nil
}

// ReserveRegeneration atomically increments the regeneration counter of a
// command when it is below limit. It reports false once the budget is spent.
func (s *Store) ReserveRegeneration(ctx context.Context, id string, limit int) (bool, error) {
	res, err := s.exec(ctx,
		`UPDATE commands SET regenerations = regenerations + 1, updated_at = ?
         WHERE command_id = ? AND regenerations < ?`,
		nowString(), id, limit,
	)
	if err != nil {
		return false, fmt.Errorf("reserve regeneration for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		if _, err := s.GetCommand(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}
