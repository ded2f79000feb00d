package governance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stake-plus/commons/src/shared/gov"
	"github.com/stake-plus/commons/src/store"
)

// GetProposal returns the proposal with its display phase.
func (e *Engine) GetProposal(ctx context.Context, id uint64) (*View, error) {
	p, err := e.store.GetProposal(ctx, id)
	if err != nil {
		return nil, err
	}
	v := viewOf(*p, e.clock())
	return &v, nil
}

// ListActiveProposals lists Listening, Voting and ConsensusBlocked
// proposals, newest first.
func (e *Engine) ListActiveProposals(ctx context.Context) ([]View, error) {
	return e.ListProposals(ctx, []gov.ProposalStatus{
		gov.StatusListening, gov.StatusConsensusBlocked, gov.StatusVoting,
	}, 0)
}

// ListProposals filters by stored status; no statuses means all.
func (e *Engine) ListProposals(ctx context.Context, statuses []gov.ProposalStatus, limit int) ([]View, error) {
	ps, err := e.store.ListProposals(ctx, store.ProposalFilter{Statuses: statuses, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	now := e.clock()
	out := make([]View, 0, len(ps))
	for _, p := range ps {
		out = append(out, viewOf(p, now))
	}
	return out, nil
}

func (e *Engine) CountProposals(ctx context.Context) (int64, error) {
	return e.store.CountProposals(ctx)
}

func (e *Engine) ListResponses(ctx context.Context, id uint64) ([]gov.Response, error) {
	if _, err := e.store.GetProposal(ctx, id); err != nil {
		return nil, err
	}
	return e.store.ListResponses(ctx, id)
}

// VotingStatus is the tally of a proposal as it stands.
type VotingStatus struct {
	ProposalID   uint64     `json:"proposalId"`
	ForVotes     uint32     `json:"forVotes"`
	AgainstVotes uint32     `json:"againstVotes"`
	TotalVotes   uint32     `json:"totalVotes"`
	QuorumMet    bool       `json:"quorumMet"`
	Passing      bool       `json:"passing"`
	VotingEnd    *time.Time `json:"votingEnd,omitempty"`
	Phase        Phase      `json:"phase"`
}

func (e *Engine) GetVotingStatus(ctx context.Context, id uint64) (*VotingStatus, error) {
	p, err := e.store.GetProposal(ctx, id)
	if err != nil {
		return nil, err
	}
	return &VotingStatus{
		ProposalID:   p.ID,
		ForVotes:     p.ForVotes,
		AgainstVotes: p.AgainstVotes,
		TotalVotes:   p.TotalVotes,
		QuorumMet:    e.params.QuorumMet(p.TotalVotes),
		Passing:      e.params.Passes(p.ForVotes, p.TotalVotes),
		VotingEnd:    p.VotingEnd,
		Phase:        EffectivePhase(p, e.clock()),
	}, nil
}

// Participation is one member's involvement in a proposal.
type Participation struct {
	Responded     bool `json:"responded"`
	RaisedConcern bool `json:"raisedConcern"`
	Voted         bool `json:"voted"`
}

func (e *Engine) Participation(ctx context.Context, id uint64, member string) (*Participation, error) {
	if _, err := e.store.GetProposal(ctx, id); err != nil {
		return nil, err
	}
	var out Participation
	r, err := e.store.GetResponse(ctx, id, member)
	switch {
	case err == nil:
		out.Responded = true
		out.RaisedConcern = r.RaisesCoreConcern
	case !errors.Is(err, gov.ErrNotFound):
		return nil, fmt.Errorf("load response: %w", err)
	}
	_, err = e.store.GetVote(ctx, id, member)
	switch {
	case err == nil:
		out.Voted = true
	case !errors.Is(err, gov.ErrNotFound):
		return nil, fmt.Errorf("load vote: %w", err)
	}
	return &out, nil
}
