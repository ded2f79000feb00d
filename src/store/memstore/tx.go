package memstore

import (
	"context"
	"fmt"
	"math"

	"github.com/stake-plus/commons/src/shared/gov"
	"github.com/stake-plus/commons/src/store"
)

// tx mutates the private copy owned by one Atomic call.
type tx struct {
	reader
}

var _ store.Tx = (*tx)(nil)

func (t *tx) LockProposal(ctx context.Context, id uint64) (*gov.Proposal, error) {
	return t.GetProposal(ctx, id)
}

func (t *tx) LockConsent(ctx context.Context, id string) (*gov.ConsentContract, error) {
	return t.GetConsent(ctx, id)
}

func (t *tx) LockRelationship(ctx context.Context, id string) (*gov.Relationship, error) {
	return t.GetRelationship(ctx, id)
}

func (t *tx) LockLedgerHead(_ context.Context) (*gov.LedgerEntry, error) {
	if len(t.st.ledger) == 0 {
		return nil, notFound("ledger entry", "head")
	}
	e := t.st.ledger[len(t.st.ledger)-1]
	return &e, nil
}

func (t *tx) NextSequence(_ context.Context, name string) (uint64, error) {
	t.st.sequences[name]++
	return t.st.sequences[name], nil
}

func (t *tx) CreateMember(_ context.Context, m *gov.Member) error {
	if _, ok := t.st.members[m.Address]; ok {
		return fmt.Errorf("member %s: %w", m.Address, store.ErrDuplicate)
	}
	t.st.members[m.Address] = *m
	return nil
}

func (t *tx) UpdateMember(_ context.Context, m *gov.Member) error {
	if _, ok := t.st.members[m.Address]; !ok {
		return notFound("member", m.Address)
	}
	t.st.members[m.Address] = *m
	return nil
}

func (t *tx) CreateProposal(_ context.Context, p *gov.Proposal) error {
	t.st.lastProposalID++
	p.ID = t.st.lastProposalID
	p.Version = 0
	t.st.proposals[p.ID] = *p
	return nil
}

func (t *tx) UpdateProposal(_ context.Context, p *gov.Proposal) error {
	cur, ok := t.st.proposals[p.ID]
	if !ok {
		return notFound("proposal", p.ID)
	}
	if cur.Version != p.Version {
		return gov.ErrConflict
	}
	p.Version++
	t.st.proposals[p.ID] = *p
	return nil
}

func (t *tx) CreateResponse(_ context.Context, r *gov.Response) error {
	k := pairKey{r.ProposalID, r.Member}
	if _, ok := t.st.responses[k]; ok {
		return fmt.Errorf("response %d/%s: %w", r.ProposalID, r.Member, store.ErrDuplicate)
	}
	t.st.lastResponseID++
	r.ID = t.st.lastResponseID
	t.st.responses[k] = *r
	return nil
}

func (t *tx) CreateVote(_ context.Context, v *gov.Vote) error {
	k := pairKey{v.ProposalID, v.Member}
	if _, ok := t.st.votes[k]; ok {
		return fmt.Errorf("vote %d/%s: %w", v.ProposalID, v.Member, store.ErrDuplicate)
	}
	t.st.lastVoteID++
	v.ID = t.st.lastVoteID
	t.st.votes[k] = *v
	return nil
}

func (t *tx) CreateConsent(_ context.Context, c *gov.ConsentContract) error {
	if _, ok := t.st.consents[c.ID]; ok {
		return fmt.Errorf("consent %s: %w", c.ID, store.ErrDuplicate)
	}
	c.Version = 0
	t.st.consents[c.ID] = *c
	return nil
}

func (t *tx) UpdateConsent(_ context.Context, c *gov.ConsentContract) error {
	cur, ok := t.st.consents[c.ID]
	if !ok {
		return notFound("consent contract", c.ID)
	}
	if cur.Version != c.Version {
		return gov.ErrConflict
	}
	c.Version++
	t.st.consents[c.ID] = *c
	return nil
}

func (t *tx) CreateRelationship(_ context.Context, r *gov.Relationship) error {
	if _, ok := t.st.relationships[r.ID]; ok {
		return fmt.Errorf("relationship %s: %w", r.ID, store.ErrDuplicate)
	}
	if err := t.checkOpenPair(r); err != nil {
		return err
	}
	r.Version = 0
	t.st.relationships[r.ID] = *r
	return nil
}

func (t *tx) checkOpenPair(r *gov.Relationship) error {
	if r.OpenPair == nil {
		return nil
	}
	for id, other := range t.st.relationships {
		if id != r.ID && other.OpenPair != nil && *other.OpenPair == *r.OpenPair {
			return fmt.Errorf("open relationship for %s: %w", *r.OpenPair, store.ErrDuplicate)
		}
	}
	return nil
}

func (t *tx) UpdateRelationship(_ context.Context, r *gov.Relationship) error {
	cur, ok := t.st.relationships[r.ID]
	if !ok {
		return notFound("relationship", r.ID)
	}
	if cur.Version != r.Version {
		return gov.ErrConflict
	}
	if err := t.checkOpenPair(r); err != nil {
		return err
	}
	r.Version++
	t.st.relationships[r.ID] = *r
	return nil
}

func (t *tx) CreateCooldownConfirmation(_ context.Context, c *gov.CooldownConfirmation) error {
	k := confirmKey{c.RelationshipID, c.Episode, c.Member}
	if _, ok := t.st.confirmations[k]; ok {
		return fmt.Errorf("cooldown confirmation %s/%d/%s: %w", c.RelationshipID, c.Episode, c.Member, store.ErrDuplicate)
	}
	t.st.confirmations[k] = *c
	return nil
}

func (t *tx) AppendLedger(_ context.Context, e *gov.LedgerEntry) error {
	var want uint64 = 1
	if n := len(t.st.ledger); n > 0 {
		want = t.st.ledger[n-1].Seq + 1
	}
	if e.Seq != want {
		return gov.ErrConflict
	}
	t.st.ledger = append(t.st.ledger, *e)
	return nil
}

func (t *tx) CreditTreasury(_ context.Context, d *gov.TreasuryDeposit) error {
	if d.Amount > math.MaxUint64-t.st.treasury.Balance {
		return fmt.Errorf("credit %d to %d: %w", d.Amount, t.st.treasury.Balance, store.ErrBalanceOverflow)
	}
	t.st.lastDepositID++
	d.ID = t.st.lastDepositID
	t.st.deposits = append(t.st.deposits, *d)
	t.st.treasury.Balance += d.Amount
	t.st.treasury.Version++
	return nil
}

func (t *tx) DebitTreasury(ctx context.Context, p *gov.TreasuryPayout) error {
	if t.st.treasury.Balance < p.Amount {
		return fmt.Errorf("debit %d from %d: %w", p.Amount, t.st.treasury.Balance, store.ErrInsufficientFunds)
	}
	if err := t.RecordPayout(ctx, p); err != nil {
		return err
	}
	t.st.treasury.Balance -= p.Amount
	t.st.treasury.Version++
	return nil
}

func (t *tx) RecordPayout(_ context.Context, p *gov.TreasuryPayout) error {
	for _, existing := range t.st.payouts {
		if existing.ProposalID == p.ProposalID {
			return fmt.Errorf("payout for proposal %d: %w", p.ProposalID, store.ErrDuplicate)
		}
	}
	t.st.lastPayoutID++
	p.ID = t.st.lastPayoutID
	t.st.payouts = append(t.st.payouts, *p)
	return nil
}

func (t *tx) SettlePayout(_ context.Context, proposalID uint64, reference string) error {
	for i, p := range t.st.payouts {
		if p.ProposalID == proposalID && p.Reference == "" {
			t.st.payouts[i].Reference = reference
			return nil
		}
	}
	return notFound("unsettled payout for proposal", proposalID)
}

func (t *tx) ReleasePayout(_ context.Context, proposalID uint64) error {
	for i, p := range t.st.payouts {
		if p.ProposalID == proposalID && p.Reference == "" {
			t.st.payouts = append(t.st.payouts[:i], t.st.payouts[i+1:]...)
			return nil
		}
	}
	return notFound("unsettled payout for proposal", proposalID)
}
