// Package consent owns bilateral relationships: a consent contract is offered
// by one member and accepted by the other, after which either party may
// restate boundaries, pause the relationship in cooldown or end it. Leaving
// cooldown needs both parties.
package consent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/stake-plus/commons/src/ledger"
	"github.com/stake-plus/commons/src/membership"
	"github.com/stake-plus/commons/src/observability"
	"github.com/stake-plus/commons/src/shared/gov"
	"github.com/stake-plus/commons/src/store"
)

const (
	// DefaultCooldown is how long a cooldown is expected to last. It is
	// informational: only both parties confirming ends a cooldown.
	DefaultCooldown = 72 * time.Hour

	maxTextLen    = 10000
	consentSeqKey = "consent"
)

type Engine struct {
	store    store.Store
	members  membership.Oracle
	commit   *ledger.Committer
	cooldown time.Duration
	now      func() time.Time
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(st store.Store, members membership.Oracle, commit *ledger.Committer, cooldown time.Duration, opts ...Option) (*Engine, error) {
	if cooldown <= 0 {
		return nil, fmt.Errorf("consent: cooldown must be positive, got %s", cooldown)
	}
	e := &Engine{
		store:    st,
		members:  members,
		commit:   commit,
		cooldown: cooldown,
		now:      time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

func (e *Engine) Cooldown() time.Duration { return e.cooldown }

func (e *Engine) clock() time.Time { return e.now().UTC() }

func (e *Engine) requireMember(ctx context.Context, principal string) error {
	ok, err := e.members.IsMember(ctx, principal)
	if err != nil {
		return fmt.Errorf("membership oracle: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", gov.ErrNotAMember, principal)
	}
	return nil
}

func checkText(field, s string) (string, error) {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > maxTextLen {
		return "", fmt.Errorf("%w: %s too long", gov.ErrInvalidPayload, field)
	}
	return s, nil
}

func openRelationship(ctx context.Context, tx store.Tx, a, b string) error {
	rel, err := tx.FindOpenRelationship(ctx, a, b)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", gov.ErrRelationshipOpen, rel.ID)
	case errors.Is(err, gov.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("find open relationship: %w", err)
	}
}

// ProposeRelationship offers counterparty a relationship of the given type.
// Earlier unaccepted offers between the same pair do not block a new one.
func (e *Engine) ProposeRelationship(ctx context.Context, initiator, counterparty string, typ gov.RelationshipType, terms string) (_ *gov.ConsentContract, err error) {
	defer func() { observability.RecordOutcome("propose_relationship", err) }()

	counterparty = strings.TrimSpace(counterparty)
	if counterparty == "" {
		return nil, fmt.Errorf("%w: counterparty is required", gov.ErrInvalidPayload)
	}
	if counterparty == initiator {
		return nil, fmt.Errorf("%w: cannot propose a relationship with yourself", gov.ErrInvalidPayload)
	}
	if typ, err = gov.ParseRelationshipType(string(typ)); err != nil {
		return nil, err
	}
	if terms, err = checkText("terms", terms); err != nil {
		return nil, err
	}
	if err := e.requireMember(ctx, initiator); err != nil {
		return nil, err
	}
	if err := e.requireMember(ctx, counterparty); err != nil {
		return nil, err
	}

	var out gov.ConsentContract
	_, err = e.commit.Commit(ctx, func(tx store.Tx) ([]ledger.Event, error) {
		now := e.clock()
		if err := openRelationship(ctx, tx, initiator, counterparty); err != nil {
			return nil, err
		}
		nonce, err := tx.NextSequence(ctx, consentSeqKey)
		if err != nil {
			return nil, fmt.Errorf("consent nonce: %w", err)
		}
		c := gov.ConsentContract{
			ID:               ContractID(initiator, counterparty, nonce),
			Initiator:        initiator,
			Counterparty:     counterparty,
			InitiatedConsent: true,
			ProposedAt:       now,
			RelationshipType: typ,
			Terms:            terms,
			Nonce:            nonce,
		}
		if err := tx.CreateConsent(ctx, &c); err != nil {
			return nil, fmt.Errorf("create consent contract: %w", err)
		}
		out = c
		return []ledger.Event{{
			Kind: "RelationshipProposed", EntityType: ledger.EntityConsent, EntityID: c.ID,
			Actor: initiator, At: now,
			Data: map[string]any{
				"consentId":        c.ID,
				"initiator":        initiator,
				"counterparty":     counterparty,
				"relationshipType": typ,
			},
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ConsentToRelationship accepts a contract and establishes the relationship.
func (e *Engine) ConsentToRelationship(ctx context.Context, member, contractID string) (_ *gov.Relationship, err error) {
	defer func() { observability.RecordOutcome("consent", err) }()

	c, err := e.store.GetConsent(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if member != c.Counterparty {
		return nil, fmt.Errorf("%w: %s on %s", gov.ErrNotCounterparty, member, contractID)
	}
	if err := e.requireMember(ctx, member); err != nil {
		return nil, err
	}
	if err := e.requireMember(ctx, c.Initiator); err != nil {
		return nil, err
	}

	var out gov.Relationship
	_, err = e.commit.Commit(ctx, func(tx store.Tx) ([]ledger.Event, error) {
		now := e.clock()
		c, err := tx.LockConsent(ctx, contractID)
		if err != nil {
			return nil, err
		}
		if c.CounterpartyConsent {
			return nil, fmt.Errorf("%w: %s", gov.ErrAlreadyConsented, contractID)
		}
		if err := openRelationship(ctx, tx, c.Initiator, c.Counterparty); err != nil {
			return nil, err
		}

		pair := gov.PairKey(c.Initiator, c.Counterparty)
		rel := gov.Relationship{
			ID:               RelationshipID(c.ID),
			ConsentID:        c.ID,
			PartyA:           c.Initiator,
			PartyB:           c.Counterparty,
			PairKey:          pair,
			OpenPair:         &pair,
			RelationshipType: c.RelationshipType,
			Boundaries:       c.Terms,
			Status:           gov.RelationshipActive,
			CreatedAt:        now,
		}
		if err := tx.CreateRelationship(ctx, &rel); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return nil, fmt.Errorf("%w: %v", gov.ErrRelationshipOpen, err)
			}
			return nil, fmt.Errorf("create relationship: %w", err)
		}

		c.CounterpartyConsent = true
		c.ConsentedAt = &now
		c.RelationshipID = rel.ID
		if err := tx.UpdateConsent(ctx, c); err != nil {
			return nil, fmt.Errorf("update consent contract: %w", err)
		}
		out = rel
		return []ledger.Event{
			{
				Kind: "RelationshipConsented", EntityType: ledger.EntityConsent, EntityID: c.ID,
				Actor: member, At: now,
				Data: map[string]any{"consentId": c.ID, "relationshipId": rel.ID},
			},
			{
				Kind: "RelationshipEstablished", EntityType: ledger.EntityRelationship, EntityID: rel.ID,
				Actor: member, At: now,
				Data: map[string]any{
					"relationshipId":   rel.ID,
					"partyA":           rel.PartyA,
					"partyB":           rel.PartyB,
					"relationshipType": rel.RelationshipType,
				},
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// mutate loads the relationship under lock, checks that member is a party,
// and lets fn apply one transition. fn returns the events to record.
func (e *Engine) mutate(ctx context.Context, member, relID string, fn func(tx store.Tx, rel *gov.Relationship, now time.Time) ([]ledger.Event, error)) (*gov.Relationship, error) {
	var out gov.Relationship
	_, err := e.commit.Commit(ctx, func(tx store.Tx) ([]ledger.Event, error) {
		now := e.clock()
		rel, err := tx.LockRelationship(ctx, relID)
		if err != nil {
			return nil, err
		}
		if !rel.HasParty(member) {
			return nil, fmt.Errorf("%w: %s on %s", gov.ErrNotAParty, member, relID)
		}
		events, err := fn(tx, rel, now)
		if err != nil {
			return nil, err
		}
		if err := tx.UpdateRelationship(ctx, rel); err != nil {
			return nil, fmt.Errorf("update relationship: %w", err)
		}
		out = *rel
		for i := range events {
			events[i].EntityType, events[i].EntityID, events[i].Actor, events[i].At = ledger.EntityRelationship, relID, member, now
		}
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateBoundaries overwrites the boundaries text. Either party may do so
// without the other's approval, but only while Active.
func (e *Engine) UpdateBoundaries(ctx context.Context, member, relID, boundaries string) (_ *gov.Relationship, err error) {
	defer func() { observability.RecordOutcome("update_boundaries", err) }()

	if boundaries, err = checkText("boundaries", boundaries); err != nil {
		return nil, err
	}
	return e.mutate(ctx, member, relID, func(_ store.Tx, rel *gov.Relationship, _ time.Time) ([]ledger.Event, error) {
		if rel.Status != gov.RelationshipActive {
			return nil, fmt.Errorf("%w: %s is %s", gov.ErrNotActive, relID, rel.Status)
		}
		rel.Boundaries = boundaries
		return []ledger.Event{{
			Kind: "BoundariesUpdated",
			Data: map[string]any{"relationshipId": relID, "member": member},
		}}, nil
	})
}

// InitiateCooldown pauses an Active relationship and opens a new episode.
func (e *Engine) InitiateCooldown(ctx context.Context, member, relID string) (_ *gov.Relationship, err error) {
	defer func() { observability.RecordOutcome("initiate_cooldown", err) }()

	return e.mutate(ctx, member, relID, func(_ store.Tx, rel *gov.Relationship, now time.Time) ([]ledger.Event, error) {
		if rel.Status != gov.RelationshipActive {
			return nil, fmt.Errorf("%w: %s is %s", gov.ErrNotActive, relID, rel.Status)
		}
		end := now.Add(e.cooldown)
		rel.Status = gov.RelationshipCooldown
		rel.CooldownEnd = &end
		rel.CooldownEpisode++
		return []ledger.Event{{
			Kind: "CooldownInitiated",
			Data: map[string]any{"relationshipId": relID, "cooldownEnd": end.Unix(), "episode": rel.CooldownEpisode},
		}}, nil
	})
}

// ConfirmCooldownEnd records member's agreement to end the current cooldown.
// The relationship returns to Active once both parties have confirmed.
func (e *Engine) ConfirmCooldownEnd(ctx context.Context, member, relID string) (_ *gov.Relationship, err error) {
	defer func() { observability.RecordOutcome("confirm_cooldown", err) }()

	return e.mutate(ctx, member, relID, func(tx store.Tx, rel *gov.Relationship, now time.Time) ([]ledger.Event, error) {
		if rel.Status != gov.RelationshipCooldown {
			return nil, fmt.Errorf("%w: %s is %s, confirmations need Cooldown", gov.ErrWrongState, relID, rel.Status)
		}
		conf := gov.CooldownConfirmation{RelationshipID: relID, Episode: rel.CooldownEpisode, Member: member, ConfirmedAt: now}
		if err := tx.CreateCooldownConfirmation(ctx, &conf); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return nil, fmt.Errorf("%w: %s on %s", gov.ErrDuplicateConfirm, member, relID)
			}
			return nil, fmt.Errorf("record confirmation: %w", err)
		}
		confs, err := tx.ListCooldownConfirmations(ctx, relID, rel.CooldownEpisode)
		if err != nil {
			return nil, fmt.Errorf("list confirmations: %w", err)
		}

		events := []ledger.Event{{
			Kind: "CooldownConfirmRecorded",
			Data: map[string]any{"relationshipId": relID, "member": member, "episode": rel.CooldownEpisode},
		}}
		if bothConfirmed(rel, confs) {
			rel.Status = gov.RelationshipActive
			rel.CooldownEnd = nil
			events = append(events, ledger.Event{
				Kind: "RelationshipReactivated",
				Data: map[string]any{"relationshipId": relID, "episode": rel.CooldownEpisode},
			})
		}
		return events, nil
	})
}

func bothConfirmed(rel *gov.Relationship, confs []gov.CooldownConfirmation) bool {
	var a, b bool
	for _, c := range confs {
		switch c.Member {
		case rel.PartyA:
			a = true
		case rel.PartyB:
			b = true
		}
	}
	return a && b
}

// TerminateRelationship ends the relationship from Active or Cooldown. The
// pair is free to start a new one afterwards.
func (e *Engine) TerminateRelationship(ctx context.Context, member, relID, reason string) (_ *gov.Relationship, err error) {
	defer func() { observability.RecordOutcome("terminate", err) }()

	if reason, err = checkText("reason", reason); err != nil {
		return nil, err
	}
	return e.mutate(ctx, member, relID, func(_ store.Tx, rel *gov.Relationship, now time.Time) ([]ledger.Event, error) {
		if rel.Status == gov.RelationshipTerminated {
			return nil, fmt.Errorf("%w: %s is already terminated", gov.ErrWrongState, relID)
		}
		from := rel.Status
		rel.Status = gov.RelationshipTerminated
		rel.TerminatedAt = &now
		rel.TerminationReason = reason
		rel.CooldownEnd = nil
		rel.OpenPair = nil
		return []ledger.Event{{
			Kind: "RelationshipTerminated",
			Data: map[string]any{"relationshipId": relID, "from": from, "reason": reason},
		}}, nil
	})
}
