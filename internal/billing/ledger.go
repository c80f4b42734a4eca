package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"splicer/internal/logging"
	"splicer/internal/media"
	"splicer/internal/services"
	"splicer/internal/store"
)

// AssemblyReason labels assembly charges.
const AssemblyReason = "episode_assembly"

// CorrelationID returns the idempotency key of an episode's assembly charge.
func CorrelationID(episodeID string) string {
	return "episode:" + episodeID + ":assembly"
}

// ErrNoEntry is returned when no ledger entry matches a correlation id.
var ErrNoEntry = errors.New("ledger entry not found")

type entryRow struct {
	ID            int64  `db:"id"`
	CorrelationID string `db:"correlation_id"`
	Owner         string `db:"owner"`
	EpisodeID     string `db:"episode_id"`
	Amount        int64  `db:"amount"`
	Reason        string `db:"reason"`
	Refunded      int    `db:"refunded"`
	CreatedAt     string `db:"created_at"`
}

func (r entryRow) entry() media.LedgerEntry {
	created, _ := time.Parse(time.RFC3339Nano, r.CreatedAt)
	return media.LedgerEntry{
		ID:            r.ID,
		CorrelationID: r.CorrelationID,
		Owner:         r.Owner,
		EpisodeID:     r.EpisodeID,
		Amount:        r.Amount,
		Reason:        r.Reason,
		Refunded:      r.Refunded != 0,
		CreatedAt:     created,
	}
}

const selectEntry = `SELECT id, correlation_id, owner, episode_id, amount, reason, refunded, created_at
    FROM ledger_entries WHERE correlation_id = ?`

// Ledger reads and writes the ledger_entries table.
type Ledger struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewLedger wraps a database handle that carries the ledger_entries table.
func NewLedger(db *sqlx.DB, logger *slog.Logger) *Ledger {
	return &Ledger{db: db, logger: logging.NewComponentLogger(logger, "billing"), now: time.Now}
}

// Charge records e unless an entry with the same correlation id exists. It
// returns the stored entry and whether this call created it. An existing
// entry is returned unchanged. Any other failure rolls back and wraps
// ErrBillingConflict.
func (l *Ledger) Charge(ctx context.Context, e media.LedgerEntry) (media.LedgerEntry, bool, error) {
	if strings.TrimSpace(e.CorrelationID) == "" {
		return media.LedgerEntry{}, false, services.Wrap(services.ErrValidation, "billing", "charge", "missing correlation id", nil)
	}
	var (
		stored  media.LedgerEntry
		created bool
	)
	err := store.RetryOnBusy(ctx, func() error {
		tx, err := l.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		stored, created, err = l.chargeTx(ctx, tx, e)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
	if err != nil && isUniqueViolation(err) {
		existing, getErr := l.Get(ctx, e.CorrelationID)
		if getErr == nil {
			return existing, false, nil
		}
	}
	if err != nil {
		return media.LedgerEntry{}, false, services.Wrap(services.ErrBillingConflict, "billing", "charge", e.CorrelationID, err)
	}
	if created {
		l.logger.Info("ledger charge recorded",
			logging.String(logging.FieldCorrelationID, e.CorrelationID),
			logging.String(logging.FieldEpisodeID, e.EpisodeID),
			logging.Int64("amount", e.Amount),
		)
	} else {
		l.logger.Info("ledger charge already recorded",
			logging.String(logging.FieldCorrelationID, e.CorrelationID),
			logging.Int64("ledger_id", stored.ID),
		)
	}
	return stored, created, nil
}

func (l *Ledger) chargeTx(ctx context.Context, tx *sqlx.Tx, e media.LedgerEntry) (media.LedgerEntry, bool, error) {
	var row entryRow
	err := tx.GetContext(ctx, &row, selectEntry, e.CorrelationID)
	if err == nil {
		return row.entry(), false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return media.LedgerEntry{}, false, fmt.Errorf("read ledger entry: %w", err)
	}
	createdAt := l.now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (correlation_id, owner, episode_id, amount, reason, refunded, created_at)
         VALUES (?, ?, ?, ?, ?, 0, ?)`,
		e.CorrelationID, e.Owner, e.EpisodeID, e.Amount, e.Reason, createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return media.LedgerEntry{}, false, fmt.Errorf("insert ledger entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return media.LedgerEntry{}, false, fmt.Errorf("ledger entry id: %w", err)
	}
	e.ID = id
	e.Refunded = false
	e.CreatedAt = createdAt
	return e, true, nil
}

// Get loads the entry for correlationID.
func (l *Ledger) Get(ctx context.Context, correlationID string) (media.LedgerEntry, error) {
	var row entryRow
	err := store.RetryOnBusy(ctx, func() error {
		return l.db.GetContext(ctx, &row, selectEntry, correlationID)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return media.LedgerEntry{}, ErrNoEntry
	}
	if err != nil {
		return media.LedgerEntry{}, fmt.Errorf("get ledger entry: %w", err)
	}
	return row.entry(), nil
}

// ForEpisode lists the entries recorded for an episode.
func (l *Ledger) ForEpisode(ctx context.Context, episodeID string) ([]media.LedgerEntry, error) {
	var rows []entryRow
	err := store.RetryOnBusy(ctx, func() error {
		return l.db.SelectContext(ctx, &rows,
			`SELECT id, correlation_id, owner, episode_id, amount, reason, refunded, created_at
             FROM ledger_entries WHERE episode_id = ? ORDER BY id`, episodeID)
	})
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	out := make([]media.LedgerEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.entry())
	}
	return out, nil
}

// Refund flags the entry for correlationID as refunded. It reports whether
// this call changed the entry; refunding twice is a no-op.
func (l *Ledger) Refund(ctx context.Context, correlationID string) (bool, error) {
	var affected int64
	err := store.RetryOnBusy(ctx, func() error {
		res, err := l.db.ExecContext(ctx,
			`UPDATE ledger_entries SET refunded = 1 WHERE correlation_id = ? AND refunded = 0`, correlationID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, services.Wrap(services.ErrBillingConflict, "billing", "refund", correlationID, err)
	}
	if affected > 0 {
		l.logger.Info("ledger charge refunded", logging.String(logging.FieldCorrelationID, correlationID))
	}
	return affected > 0, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// reinstate clears the refunded flag of correlationID's entry. It reports
// whether this call changed the entry.
func (l *Ledger) reinstate(ctx context.Context, correlationID string) (bool, error) {
	var affected int64
	err := store.RetryOnBusy(ctx, func() error {
		res, err := l.db.ExecContext(ctx,
			`UPDATE ledger_entries SET refunded = 0 WHERE correlation_id = ? AND refunded = 1`, correlationID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, services.Wrap(services.ErrBillingConflict, "billing", "reinstate", correlationID, err)
	}
	if affected > 0 {
		l.logger.Info("refunded ledger charge reinstated", logging.String(logging.FieldCorrelationID, correlationID))
	}
	return affected > 0, nil
}
