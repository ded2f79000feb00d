package ledger

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/stake-plus/commons/src/observability"
	"github.com/stake-plus/commons/src/shared/gov"
	"github.com/stake-plus/commons/src/store"
)

// Publisher fans committed entries out to readers. Publishing happens after
// commit and is best-effort: the ledger rows are the source of truth.
type Publisher interface {
	Publish(ctx context.Context, entries []gov.LedgerEntry) error
}

// NopPublisher discards entries.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, []gov.LedgerEntry) error { return nil }

const defaultRetries = 3

// Committer runs one state transition atomically together with its ledger
// entries, retrying a bounded number of times on optimistic-lock conflicts.
type Committer struct {
	store     store.Store
	publisher Publisher
	retries   int
}

func NewCommitter(st store.Store, pub Publisher) *Committer {
	if pub == nil {
		pub = NopPublisher{}
	}
	return &Committer{store: st, publisher: pub, retries: defaultRetries}
}

// Commit calls fn inside Store.Atomic. fn re-reads all state on every
// attempt, so a retry after a lost race sees the winner's result.
func (c *Committer) Commit(ctx context.Context, fn func(tx store.Tx) ([]Event, error)) ([]gov.LedgerEntry, error) {
	var (
		entries []gov.LedgerEntry
		err     error
	)
	for attempt := 0; ; attempt++ {
		entries = nil
		err = c.store.Atomic(ctx, func(tx store.Tx) error {
			events, err := fn(tx)
			if err != nil {
				return err
			}
			entries, err = Append(ctx, tx, events...)
			return err
		})
		if !errors.Is(err, gov.ErrConflict) {
			break
		}
		if attempt+1 >= c.retries {
			observability.RecordConflict(true)
			return nil, err
		}
		observability.RecordConflict(false)
	}
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		observability.RecordTransition(e.Kind)
	}
	if err := c.publisher.Publish(ctx, entries); err != nil {
		log.Warn().Err(err).Int("entries", len(entries)).Msg("ledger: publish failed")
	}
	return entries, nil
}
