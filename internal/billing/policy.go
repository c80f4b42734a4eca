package billing

import (
	"context"
	"errors"

	"splicer/internal/config"
	"splicer/internal/media"
)

// Policy decides what an assembly costs and whether failures are refunded.
type Policy struct {
	Amount          int64
	RefundOnFailure bool
}

// PolicyFromConfig maps the billing section.
func PolicyFromConfig(b config.Billing) Policy {
	return Policy{Amount: b.EpisodeAmount, RefundOnFailure: b.RefundOnFailure}
}

// ChargeAssembly charges ep's assembly once. A charge refunded after an
// earlier failed attempt is reinstated, since this attempt delivers the
// episode; the ledger still holds a single entry.
func (l *Ledger) ChargeAssembly(ctx context.Context, ep *media.Episode, p Policy) (media.LedgerEntry, bool, error) {
	entry, created, err := l.Charge(ctx, media.LedgerEntry{
		CorrelationID: CorrelationID(ep.ID),
		Owner:         ep.Owner,
		EpisodeID:     ep.ID,
		Amount:        p.Amount,
		Reason:        AssemblyReason,
	})
	if err != nil || created || !entry.Refunded {
		return entry, created, err
	}
	reinstated, err := l.reinstate(ctx, entry.CorrelationID)
	if err != nil {
		return entry, false, err
	}
	entry.Refunded = false
	return entry, reinstated, nil
}

// RefundAssembly refunds ep's assembly charge when the policy allows it. A
// missing charge is not an error.
func (l *Ledger) RefundAssembly(ctx context.Context, ep *media.Episode, p Policy) (bool, error) {
	if !p.RefundOnFailure {
		return false, nil
	}
	if _, err := l.Get(ctx, CorrelationID(ep.ID)); errors.Is(err, ErrNoEntry) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return l.Refund(ctx, CorrelationID(ep.ID))
}
