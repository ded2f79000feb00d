// Package governance runs the listen-then-vote proposal lifecycle:
// Listening -> {ConsensusBlocked | Voting} -> {Executed | Rejected}.
// Phase changes are lazy; nothing advances until an operation is called.
package governance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/stake-plus/commons/src/ledger"
	"github.com/stake-plus/commons/src/membership"
	"github.com/stake-plus/commons/src/observability"
	"github.com/stake-plus/commons/src/polkadot"
	"github.com/stake-plus/commons/src/shared/gov"
	"github.com/stake-plus/commons/src/store"
	"github.com/stake-plus/commons/src/treasury"
)

const (
	maxTitleLen = 255
	maxTextLen  = 10000
	day         = 24 * time.Hour
)

type Engine struct {
	store    store.Store
	members  membership.Oracle
	commit   *ledger.Committer
	transfer treasury.Transferer
	remote   treasury.Remote
	params   Params
	now      func() time.Time
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithTransferer replaces the default local treasury pool.
func WithTransferer(t treasury.Transferer) Option {
	return func(e *Engine) { e.transfer = t }
}

// WithRemotePayouts pays Funding proposals through r instead of an
// in-transaction Transferer.
func WithRemotePayouts(r treasury.Remote) Option {
	return func(e *Engine) { e.remote = r }
}

func New(st store.Store, members membership.Oracle, commit *ledger.Committer, params Params, opts ...Option) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("governance params: %w", err)
	}
	e := &Engine{
		store:    st,
		members:  members,
		commit:   commit,
		transfer: treasury.Pool{},
		params:   params,
		now:      time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

func (e *Engine) Params() Params { return e.params }

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

// ProposalInput is the type-specific payload of a new proposal.
type ProposalInput struct {
	Type          gov.ProposalType
	Title         string
	Description   string
	Amount        uint64
	Recipient     string
	DebugTarget   string
	ListeningDays uint32
	VotingDays    uint32
}

func (e *Engine) validate(in *ProposalInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Recipient = strings.TrimSpace(in.Recipient)
	in.DebugTarget = strings.TrimSpace(in.DebugTarget)

	if in.Title == "" || utf8.RuneCountInString(in.Title) > maxTitleLen {
		return fmt.Errorf("%w: title must be 1..%d characters", gov.ErrInvalidPayload, maxTitleLen)
	}
	if utf8.RuneCountInString(in.Description) > maxTextLen {
		return fmt.Errorf("%w: description too long", gov.ErrInvalidPayload)
	}
	for name, days := range map[string]uint32{"listening": in.ListeningDays, "voting": in.VotingDays} {
		if days == 0 || days > e.params.MaxPhaseDays {
			return fmt.Errorf("%w: %s days must be in 1..%d", gov.ErrInvalidPayload, name, e.params.MaxPhaseDays)
		}
	}

	switch in.Type {
	case gov.ProposalFunding:
		if in.Amount == 0 {
			return fmt.Errorf("%w: funding amount must be positive", gov.ErrInvalidPayload)
		}
		if !polkadot.ValidAddress(in.Recipient) {
			return fmt.Errorf("%w: invalid funding recipient %q", gov.ErrInvalidPayload, in.Recipient)
		}
	case gov.ProposalDebug:
		if in.DebugTarget == "" || utf8.RuneCountInString(in.DebugTarget) > maxTextLen {
			return fmt.Errorf("%w: debug proposals need a target", gov.ErrInvalidPayload)
		}
	case gov.ProposalRuleChange, gov.ProposalEmergency:
	default:
		return fmt.Errorf("%w: unknown proposal type %q", gov.ErrInvalidPayload, in.Type)
	}
	if in.Type != gov.ProposalFunding && (in.Amount != 0 || in.Recipient != "") {
		return fmt.Errorf("%w: only funding proposals carry an amount", gov.ErrInvalidPayload)
	}
	return nil
}

func proposalID(id uint64) string { return strconv.FormatUint(id, 10) }

// CreateProposal opens a proposal in Listening.
func (e *Engine) CreateProposal(ctx context.Context, proposer string, in ProposalInput) (_ *gov.Proposal, err error) {
	defer func() { observability.RecordOutcome("create_proposal", err) }()

	if err := e.requireMember(ctx, proposer); err != nil {
		return nil, err
	}
	if err := e.validate(&in); err != nil {
		return nil, err
	}

	var out gov.Proposal
	_, err = e.commit.Commit(ctx, func(tx store.Tx) ([]ledger.Event, error) {
		now := e.clock()
		p := gov.Proposal{
			Proposer:     proposer,
			Type:         in.Type,
			Title:        in.Title,
			Description:  in.Description,
			Amount:       in.Amount,
			Recipient:    in.Recipient,
			DebugTarget:  in.DebugTarget,
			VotingDays:   in.VotingDays,
			ListeningEnd: now.Add(time.Duration(in.ListeningDays) * day),
			Status:       gov.StatusListening,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.CreateProposal(ctx, &p); err != nil {
			return nil, fmt.Errorf("create proposal: %w", err)
		}
		out = p
		return []ledger.Event{{
			Kind: "ProposalCreated", EntityType: ledger.EntityProposal, EntityID: proposalID(p.ID),
			Actor: proposer, At: now,
			Data: map[string]any{
				"id":           p.ID,
				"proposer":     proposer,
				"type":         p.Type,
				"title":        p.Title,
				"amount":       p.Amount,
				"recipient":    p.Recipient,
				"listeningEnd": p.ListeningEnd.Unix(),
				"votingDays":   p.VotingDays,
			},
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func lockProposal(ctx context.Context, tx store.Tx, id uint64) (*gov.Proposal, error) {
	p, err := tx.LockProposal(ctx, id)
	if err != nil {
		if errors.Is(err, gov.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load proposal %d: %w", id, err)
	}
	return p, nil
}

// RespondToProposal records member's listening-phase response.
func (e *Engine) RespondToProposal(ctx context.Context, member string, id uint64, comment string, raisesCoreConcern bool) (_ *gov.Response, err error) {
	defer func() { observability.RecordOutcome("respond", err) }()

	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > maxTextLen {
		return nil, fmt.Errorf("%w: comment too long", gov.ErrInvalidPayload)
	}
	if err := e.requireMember(ctx, member); err != nil {
		return nil, err
	}

	var out gov.Response
	_, err = e.commit.Commit(ctx, func(tx store.Tx) ([]ledger.Event, error) {
		now := e.clock()
		p, err := lockProposal(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if p.Status != gov.StatusListening {
			return nil, fmt.Errorf("%w: proposal %d is %s, responses need Listening", gov.ErrWrongState, id, p.Status)
		}
		if !now.Before(p.ListeningEnd) {
			return nil, fmt.Errorf("%w: listening period of proposal %d has ended", gov.ErrWrongState, id)
		}

		if _, err := tx.GetResponse(ctx, id, member); err == nil {
			return nil, fmt.Errorf("%w: %s on proposal %d", gov.ErrDuplicateResp, member, id)
		} else if !errors.Is(err, gov.ErrNotFound) {
			return nil, fmt.Errorf("load response: %w", err)
		}

		r := gov.Response{ProposalID: id, Member: member, Comment: comment, RaisesCoreConcern: raisesCoreConcern, CreatedAt: now}
		if err := tx.CreateResponse(ctx, &r); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return nil, fmt.Errorf("%w: %s on proposal %d", gov.ErrDuplicateResp, member, id)
			}
			return nil, fmt.Errorf("create response: %w", err)
		}
		if raisesCoreConcern {
			p.CoreConcernCount++
			p.UpdatedAt = now
			if err := tx.UpdateProposal(ctx, p); err != nil {
				return nil, fmt.Errorf("update proposal: %w", err)
			}
		}
		out = r
		return []ledger.Event{{
			Kind: "RespondedToProposal", EntityType: ledger.EntityProposal, EntityID: proposalID(id),
			Actor: member, At: now,
			Data: map[string]any{"id": id, "member": member, "raisesCoreConcern": raisesCoreConcern},
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// OpenVoting advances an elapsed Listening proposal. Anyone may call it.
func (e *Engine) OpenVoting(ctx context.Context, caller string, id uint64) (_ *gov.Proposal, err error) {
	defer func() { observability.RecordOutcome("open_voting", err) }()

	var out gov.Proposal
	_, err = e.commit.Commit(ctx, func(tx store.Tx) ([]ledger.Event, error) {
		now := e.clock()
		p, err := lockProposal(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if p.Status != gov.StatusListening {
			return nil, fmt.Errorf("%w: proposal %d is %s", gov.ErrWrongState, id, p.Status)
		}
		if now.Before(p.ListeningEnd) {
			return nil, fmt.Errorf("%w: listening on proposal %d ends %s", gov.ErrTooEarly, id, p.ListeningEnd.Format(time.RFC3339))
		}

		var ev ledger.Event
		if e.params.Blocks(p.CoreConcernCount) {
			p.Status = gov.StatusConsensusBlocked
			p.ResolvedAt = &now
			ev = ledger.Event{
				Kind: "ConsensusBlocked",
				Data: map[string]any{"id": id, "coreConcernCount": p.CoreConcernCount},
			}
		} else {
			end := now.Add(time.Duration(p.VotingDays) * day)
			p.Status = gov.StatusVoting
			p.VotingEnd = &end
			ev = ledger.Event{
				Kind: "VotingOpened",
				Data: map[string]any{"id": id, "votingEnd": end.Unix()},
			}
		}
		p.UpdatedAt = now
		if err := tx.UpdateProposal(ctx, p); err != nil {
			return nil, fmt.Errorf("update proposal: %w", err)
		}
		out = *p
		ev.EntityType, ev.EntityID, ev.Actor, ev.At = ledger.EntityProposal, proposalID(id), caller, now
		return []ledger.Event{ev}, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Vote casts member's ballot. Only members who responded during listening
// may vote.
func (e *Engine) Vote(ctx context.Context, member string, id uint64, support bool) (_ *gov.Proposal, err error) {
	defer func() { observability.RecordOutcome("vote", err) }()

	if err := e.requireMember(ctx, member); err != nil {
		return nil, err
	}

	var out gov.Proposal
	_, err = e.commit.Commit(ctx, func(tx store.Tx) ([]ledger.Event, error) {
		now := e.clock()
		p, err := lockProposal(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if p.Status != gov.StatusVoting {
			return nil, fmt.Errorf("%w: proposal %d is %s, votes need Voting", gov.ErrWrongState, id, p.Status)
		}
		if p.VotingEnd == nil || !now.Before(*p.VotingEnd) {
			return nil, fmt.Errorf("%w: voting period of proposal %d has ended", gov.ErrWrongState, id)
		}

		if _, err := tx.GetResponse(ctx, id, member); errors.Is(err, gov.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s did not respond to proposal %d", gov.ErrMustListen, member, id)
		} else if err != nil {
			return nil, fmt.Errorf("load response: %w", err)
		}
		if _, err := tx.GetVote(ctx, id, member); err == nil {
			return nil, fmt.Errorf("%w: %s on proposal %d", gov.ErrDuplicateVote, member, id)
		} else if !errors.Is(err, gov.ErrNotFound) {
			return nil, fmt.Errorf("load vote: %w", err)
		}

		v := gov.Vote{ProposalID: id, Member: member, Support: support, CreatedAt: now}
		if err := tx.CreateVote(ctx, &v); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return nil, fmt.Errorf("%w: %s on proposal %d", gov.ErrDuplicateVote, member, id)
			}
			return nil, fmt.Errorf("create vote: %w", err)
		}
		if support {
			p.ForVotes++
		} else {
			p.AgainstVotes++
		}
		p.TotalVotes++
		p.UpdatedAt = now
		if err := tx.UpdateProposal(ctx, p); err != nil {
			return nil, fmt.Errorf("update proposal: %w", err)
		}
		out = *p
		return []ledger.Event{{
			Kind: "Voted", EntityType: ledger.EntityProposal, EntityID: proposalID(id),
			Actor: member, At: now,
			Data: map[string]any{"id": id, "member": member, "support": support},
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ExecuteProposal resolves an elapsed Voting proposal. Anyone may call it.
// For a passing Funding proposal the transfer is part of the same
// transaction; if it fails nothing is written and the call can be retried.
// Remote payouts are submitted once before that transaction, see
// submitRemotePayout.
func (e *Engine) ExecuteProposal(ctx context.Context, caller string, id uint64) (_ *gov.Proposal, err error) {
	defer func() { observability.RecordOutcome("execute", err) }()

	var remoteRef string
	if e.remote != nil {
		if remoteRef, err = e.submitRemotePayout(ctx, id); err != nil {
			return nil, err
		}
	}

	var out gov.Proposal
	_, err = e.commit.Commit(ctx, func(tx store.Tx) ([]ledger.Event, error) {
		now := e.clock()
		p, err := lockProposal(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if p.Status != gov.StatusVoting {
			return nil, fmt.Errorf("%w: proposal %d is %s", gov.ErrWrongState, id, p.Status)
		}
		if p.VotingEnd == nil || now.Before(*p.VotingEnd) {
			return nil, fmt.Errorf("%w: voting on proposal %d is open", gov.ErrVotingStillOpen, id)
		}

		passed := e.params.Passes(p.ForVotes, p.TotalVotes)
		events := []ledger.Event{}
		if passed {
			p.Status = gov.StatusExecuted
			if p.Type == gov.ProposalFunding {
				ref := remoteRef
				if e.remote == nil {
					ref, err = e.transfer.Transfer(ctx, tx, treasury.Payout{
						ProposalID: id, Recipient: p.Recipient, Amount: p.Amount, At: now,
					})
					if err != nil {
						if !errors.Is(err, gov.ErrTransferFailed) && !errors.Is(err, gov.ErrConflict) {
							err = fmt.Errorf("%w: %v", gov.ErrTransferFailed, err)
						}
						return nil, err
					}
				} else if ref == "" {
					return nil, fmt.Errorf("%w: payout for proposal %d was not submitted", gov.ErrTransferFailed, id)
				}
				events = append(events, ledger.Event{
					Kind: "FundsTransferred",
					Data: map[string]any{"id": id, "recipient": p.Recipient, "amount": p.Amount, "reference": ref},
				})
			}
		} else {
			p.Status = gov.StatusRejected
		}
		p.ResolvedAt = &now
		p.UpdatedAt = now
		if err := tx.UpdateProposal(ctx, p); err != nil {
			return nil, fmt.Errorf("update proposal: %w", err)
		}
		out = *p

		events = append([]ledger.Event{{
			Kind: "ProposalExecuted",
			Data: map[string]any{
				"id": id, "passed": passed, "status": p.Status,
				"forVotes": p.ForVotes, "againstVotes": p.AgainstVotes, "totalVotes": p.TotalVotes,
			},
		}}, events...)
		for i := range events {
			events[i].EntityType, events[i].EntityID, events[i].Actor, events[i].At = ledger.EntityProposal, proposalID(id), caller, now
		}
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// duePayout reports whether executing p now releases funds.
func (e *Engine) duePayout(p *gov.Proposal, now time.Time) bool {
	return p.Type == gov.ProposalFunding &&
		p.Status == gov.StatusVoting &&
		p.VotingEnd != nil && !now.Before(*p.VotingEnd) &&
		e.params.Passes(p.ForVotes, p.TotalVotes)
}

// submitRemotePayout claims the payout row of a proposal that is due funds,
// submits the transfer and stores its reference, each step in its own
// transaction. The claim is keyed by proposal, so a retried or repeated
// execution reuses the stored reference instead of paying again. It returns
// "" when nothing is due; the execution transaction then reports why.
func (e *Engine) submitRemotePayout(ctx context.Context, id uint64) (string, error) {
	var (
		claim gov.TreasuryPayout
		fresh bool
	)
	err := e.store.Atomic(ctx, func(tx store.Tx) error {
		claim, fresh = gov.TreasuryPayout{}, false
		now := e.clock()
		p, err := lockProposal(ctx, tx, id)
		if err != nil {
			return err
		}
		if !e.duePayout(p, now) {
			return nil
		}
		existing, err := tx.GetPayout(ctx, id)
		if err == nil {
			claim = *existing
			return nil
		}
		if !errors.Is(err, gov.ErrNotFound) {
			return fmt.Errorf("load payout: %w", err)
		}
		claim = gov.TreasuryPayout{ProposalID: id, Recipient: p.Recipient, Amount: p.Amount, CreatedAt: now}
		if err := tx.RecordPayout(ctx, &claim); err != nil {
			return err
		}
		fresh = true
		return nil
	})
	switch {
	case errors.Is(err, store.ErrDuplicate):
		return "", fmt.Errorf("%w: payout for proposal %d is in flight", gov.ErrTransferFailed, id)
	case err != nil:
		return "", err
	case claim.ProposalID == 0:
		return "", nil
	case claim.Reference != "":
		return claim.Reference, nil
	case !fresh:
		return "", fmt.Errorf("%w: payout for proposal %d is in flight", gov.ErrTransferFailed, id)
	}

	ref, err := e.remote.Submit(ctx, treasury.Payout{
		ProposalID: id, Recipient: claim.Recipient, Amount: claim.Amount, At: claim.CreatedAt,
	})
	if err != nil {
		if rerr := e.store.Atomic(ctx, func(tx store.Tx) error { return tx.ReleasePayout(ctx, id) }); rerr != nil {
			log.Error().Err(rerr).Uint64("proposal", id).Msg("governance: refused payout claim not released")
		}
		if !errors.Is(err, gov.ErrTransferFailed) {
			err = fmt.Errorf("%w: %v", gov.ErrTransferFailed, err)
		}
		return "", err
	}
	if err := e.store.Atomic(ctx, func(tx store.Tx) error { return tx.SettlePayout(ctx, id, ref) }); err != nil {
		// The claim stays unsettled, which blocks any second submission.
		log.Error().Err(err).Uint64("proposal", id).Str("reference", ref).
			Msg("governance: payout submitted but reference not stored")
		return "", fmt.Errorf("store payout reference: %w", err)
	}
	return ref, nil
}
