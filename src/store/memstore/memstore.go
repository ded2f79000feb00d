// Package memstore is an in-process store.Store. A single mutex serializes
// transactions; each transaction works on a copy of the state that replaces
// the live one only when fn returns nil.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/stake-plus/commons/src/shared/gov"
	"github.com/stake-plus/commons/src/store"
)

type pairKey struct {
	proposalID uint64
	member     string
}

type confirmKey struct {
	relationshipID string
	episode        uint32
	member         string
}

type state struct {
	members       map[string]gov.Member
	sequences     map[string]uint64
	proposals     map[uint64]gov.Proposal
	responses     map[pairKey]gov.Response
	votes         map[pairKey]gov.Vote
	consents      map[string]gov.ConsentContract
	relationships map[string]gov.Relationship
	confirmations map[confirmKey]gov.CooldownConfirmation
	ledger        []gov.LedgerEntry
	treasury      gov.TreasuryBalance
	deposits      []gov.TreasuryDeposit
	payouts       []gov.TreasuryPayout

	lastProposalID uint64
	lastResponseID uint64
	lastVoteID     uint64
	lastDepositID  uint64
	lastPayoutID   uint64
}

func newState() *state {
	return &state{
		members:       map[string]gov.Member{},
		sequences:     map[string]uint64{},
		proposals:     map[uint64]gov.Proposal{},
		responses:     map[pairKey]gov.Response{},
		votes:         map[pairKey]gov.Vote{},
		consents:      map[string]gov.ConsentContract{},
		relationships: map[string]gov.Relationship{},
		confirmations: map[confirmKey]gov.CooldownConfirmation{},
		treasury:      gov.TreasuryBalance{ID: 1},
	}
}

func (s *state) clone() *state {
	c := *s
	c.members = cloneMap(s.members)
	c.sequences = cloneMap(s.sequences)
	c.proposals = cloneMap(s.proposals)
	c.responses = cloneMap(s.responses)
	c.votes = cloneMap(s.votes)
	c.consents = cloneMap(s.consents)
	c.relationships = cloneMap(s.relationships)
	c.confirmations = cloneMap(s.confirmations)
	c.ledger = append([]gov.LedgerEntry(nil), s.ledger...)
	c.deposits = append([]gov.TreasuryDeposit(nil), s.deposits...)
	c.payouts = append([]gov.TreasuryPayout(nil), s.payouts...)
	return &c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Store is the in-memory store.Store.
type Store struct {
	mu    sync.RWMutex
	state *state
}

// New returns an empty store.
func New() *Store {
	return &Store{state: newState()}
}

// Atomic runs fn against a private copy and publishes it on success.
func (s *Store) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&tx{reader{work}}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) read() reader {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return reader{s.state}
}

// Reads outside a transaction see the last committed snapshot. Committed
// snapshots are never mutated, so the reader can be used after unlocking.

func (s *Store) GetMember(ctx context.Context, addr string) (*gov.Member, error) {
	return s.read().GetMember(ctx, addr)
}

func (s *Store) CountMembers(ctx context.Context, activeOnly bool) (int64, error) {
	return s.read().CountMembers(ctx, activeOnly)
}

func (s *Store) GetProposal(ctx context.Context, id uint64) (*gov.Proposal, error) {
	return s.read().GetProposal(ctx, id)
}

func (s *Store) ListProposals(ctx context.Context, f store.ProposalFilter) ([]gov.Proposal, error) {
	return s.read().ListProposals(ctx, f)
}

func (s *Store) CountProposals(ctx context.Context) (int64, error) {
	return s.read().CountProposals(ctx)
}

func (s *Store) GetResponse(ctx context.Context, proposalID uint64, member string) (*gov.Response, error) {
	return s.read().GetResponse(ctx, proposalID, member)
}

func (s *Store) ListResponses(ctx context.Context, proposalID uint64) ([]gov.Response, error) {
	return s.read().ListResponses(ctx, proposalID)
}

func (s *Store) GetVote(ctx context.Context, proposalID uint64, member string) (*gov.Vote, error) {
	return s.read().GetVote(ctx, proposalID, member)
}

func (s *Store) GetConsent(ctx context.Context, id string) (*gov.ConsentContract, error) {
	return s.read().GetConsent(ctx, id)
}

func (s *Store) ListConsentsByMember(ctx context.Context, addr string) ([]gov.ConsentContract, error) {
	return s.read().ListConsentsByMember(ctx, addr)
}

func (s *Store) GetRelationship(ctx context.Context, id string) (*gov.Relationship, error) {
	return s.read().GetRelationship(ctx, id)
}

func (s *Store) ListRelationshipsByMember(ctx context.Context, addr string) ([]gov.Relationship, error) {
	return s.read().ListRelationshipsByMember(ctx, addr)
}

func (s *Store) FindOpenRelationship(ctx context.Context, a, b string) (*gov.Relationship, error) {
	return s.read().FindOpenRelationship(ctx, a, b)
}

func (s *Store) ListCooldownConfirmations(ctx context.Context, relationshipID string, episode uint32) ([]gov.CooldownConfirmation, error) {
	return s.read().ListCooldownConfirmations(ctx, relationshipID, episode)
}

func (s *Store) ListLedger(ctx context.Context, afterSeq uint64, limit int) ([]gov.LedgerEntry, error) {
	return s.read().ListLedger(ctx, afterSeq, limit)
}

func (s *Store) GetTreasury(ctx context.Context) (gov.TreasuryBalance, error) {
	return s.read().GetTreasury(ctx)
}

func (s *Store) ListPayouts(ctx context.Context, limit int) ([]gov.TreasuryPayout, error) {
	return s.read().ListPayouts(ctx, limit)
}

func (s *Store) GetPayout(ctx context.Context, proposalID uint64) (*gov.TreasuryPayout, error) {
	return s.read().GetPayout(ctx, proposalID)
}

type reader struct {
	st *state
}

func notFound(what string, key any) error {
	return fmt.Errorf("%w: %s %v", gov.ErrNotFound, what, key)
}

func (r reader) GetMember(_ context.Context, addr string) (*gov.Member, error) {
	m, ok := r.st.members[addr]
	if !ok {
		return nil, notFound("member", addr)
	}
	return &m, nil
}

func (r reader) CountMembers(_ context.Context, activeOnly bool) (int64, error) {
	var n int64
	for _, m := range r.st.members {
		if !activeOnly || m.Active {
			n++
		}
	}
	return n, nil
}

func (r reader) GetProposal(_ context.Context, id uint64) (*gov.Proposal, error) {
	p, ok := r.st.proposals[id]
	if !ok {
		return nil, notFound("proposal", id)
	}
	return &p, nil
}

func (r reader) ListProposals(_ context.Context, f store.ProposalFilter) ([]gov.Proposal, error) {
	want := map[gov.ProposalStatus]bool{}
	for _, st := range f.Statuses {
		want[st] = true
	}
	out := make([]gov.Proposal, 0)
	for _, p := range r.st.proposals {
		if len(want) > 0 && !want[p.Status] {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r reader) CountProposals(_ context.Context) (int64, error) {
	return int64(len(r.st.proposals)), nil
}

func (r reader) GetResponse(_ context.Context, proposalID uint64, member string) (*gov.Response, error) {
	resp, ok := r.st.responses[pairKey{proposalID, member}]
	if !ok {
		return nil, notFound("response", member)
	}
	return &resp, nil
}

func (r reader) ListResponses(_ context.Context, proposalID uint64) ([]gov.Response, error) {
	out := make([]gov.Response, 0)
	for k, resp := range r.st.responses {
		if k.proposalID == proposalID {
			out = append(out, resp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r reader) GetVote(_ context.Context, proposalID uint64, member string) (*gov.Vote, error) {
	v, ok := r.st.votes[pairKey{proposalID, member}]
	if !ok {
		return nil, notFound("vote", member)
	}
	return &v, nil
}

func (r reader) GetConsent(_ context.Context, id string) (*gov.ConsentContract, error) {
	c, ok := r.st.consents[id]
	if !ok {
		return nil, notFound("consent contract", id)
	}
	return &c, nil
}

func (r reader) ListConsentsByMember(_ context.Context, addr string) ([]gov.ConsentContract, error) {
	out := make([]gov.ConsentContract, 0)
	for _, c := range r.st.consents {
		if c.Initiator == addr || c.Counterparty == addr {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nonce < out[j].Nonce })
	return out, nil
}

func (r reader) GetRelationship(_ context.Context, id string) (*gov.Relationship, error) {
	rel, ok := r.st.relationships[id]
	if !ok {
		return nil, notFound("relationship", id)
	}
	return &rel, nil
}

func (r reader) ListRelationshipsByMember(_ context.Context, addr string) ([]gov.Relationship, error) {
	out := make([]gov.Relationship, 0)
	for _, rel := range r.st.relationships {
		if rel.HasParty(addr) {
			out = append(out, rel)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r reader) FindOpenRelationship(_ context.Context, a, b string) (*gov.Relationship, error) {
	key := gov.PairKey(a, b)
	for _, rel := range r.st.relationships {
		if rel.OpenPair != nil && *rel.OpenPair == key {
			return &rel, nil
		}
	}
	return nil, notFound("open relationship", key)
}

func (r reader) ListCooldownConfirmations(_ context.Context, relationshipID string, episode uint32) ([]gov.CooldownConfirmation, error) {
	out := make([]gov.CooldownConfirmation, 0, 2)
	for k, c := range r.st.confirmations {
		if k.relationshipID == relationshipID && k.episode == episode {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConfirmedAt.Before(out[j].ConfirmedAt) })
	return out, nil
}

func (r reader) ListLedger(_ context.Context, afterSeq uint64, limit int) ([]gov.LedgerEntry, error) {
	out := make([]gov.LedgerEntry, 0)
	for _, e := range r.st.ledger {
		if e.Seq <= afterSeq {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r reader) GetTreasury(_ context.Context) (gov.TreasuryBalance, error) {
	return r.st.treasury, nil
}

func (r reader) ListPayouts(_ context.Context, limit int) ([]gov.TreasuryPayout, error) {
	out := make([]gov.TreasuryPayout, 0, len(r.st.payouts))
	for i := len(r.st.payouts) - 1; i >= 0; i-- {
		out = append(out, r.st.payouts[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r reader) GetPayout(_ context.Context, proposalID uint64) (*gov.TreasuryPayout, error) {
	for _, p := range r.st.payouts {
		if p.ProposalID == proposalID {
			return &p, nil
		}
	}
	return nil, notFound("payout for proposal", proposalID)
}
