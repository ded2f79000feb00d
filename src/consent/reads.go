package consent

import (
	"context"
	"errors"
	"time"

	"github.com/stake-plus/commons/src/shared/gov"
)

// View is a relationship as presented to readers. CooldownElapsed marks a
// cooldown past its nominal end that is still waiting on confirmations.
type View struct {
	gov.Relationship
	CooldownElapsed bool `json:"cooldownElapsed"`
}

func (e *Engine) viewOf(rel gov.Relationship, now time.Time) View {
	v := View{Relationship: rel}
	if rel.Status == gov.RelationshipCooldown && rel.CooldownEnd != nil && !now.Before(*rel.CooldownEnd) {
		v.CooldownElapsed = true
	}
	return v
}

func (e *Engine) GetRelationship(ctx context.Context, id string) (*View, error) {
	rel, err := e.store.GetRelationship(ctx, id)
	if err != nil {
		return nil, err
	}
	v := e.viewOf(*rel, e.clock())
	return &v, nil
}

func (e *Engine) ListRelationshipsByMember(ctx context.Context, addr string) ([]View, error) {
	rels, err := e.store.ListRelationshipsByMember(ctx, addr)
	if err != nil {
		return nil, err
	}
	now := e.clock()
	out := make([]View, 0, len(rels))
	for _, r := range rels {
		out = append(out, e.viewOf(r, now))
	}
	return out, nil
}

func (e *Engine) GetConsentContract(ctx context.Context, id string) (*gov.ConsentContract, error) {
	return e.store.GetConsent(ctx, id)
}

func (e *Engine) ListConsentContractsByMember(ctx context.Context, addr string) ([]gov.ConsentContract, error) {
	return e.store.ListConsentsByMember(ctx, addr)
}

// HasActiveRelationship reports whether a and b share an Active or Cooldown
// relationship.
func (e *Engine) HasActiveRelationship(ctx context.Context, a, b string) (bool, error) {
	_, err := e.store.FindOpenRelationship(ctx, a, b)
	if errors.Is(err, gov.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// CooldownConfirmations lists the confirmations of the current cooldown
// episode. It is empty unless the relationship is in Cooldown.
func (e *Engine) CooldownConfirmations(ctx context.Context, relID string) ([]gov.CooldownConfirmation, error) {
	rel, err := e.store.GetRelationship(ctx, relID)
	if err != nil {
		return nil, err
	}
	if rel.Status != gov.RelationshipCooldown {
		return []gov.CooldownConfirmation{}, nil
	}
	return e.store.ListCooldownConfirmations(ctx, relID, rel.CooldownEpisode)
}
