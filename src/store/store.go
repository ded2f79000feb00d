// Package store defines the ledger-backed persistence contract shared by the
// governance and consent engines. Every state transition runs inside
// Store.Atomic; implementations guarantee that no transaction observes a
// partially applied one.
package store

import (
	"context"
	"errors"

	"github.com/stake-plus/commons/src/shared/gov"
)

var (
	// ErrDuplicate is returned when a uniqueness constraint rejects a row.
	ErrDuplicate = errors.New("duplicate record")
	// ErrInsufficientFunds is returned by DebitTreasury.
	ErrInsufficientFunds = errors.New("insufficient treasury balance")
	// ErrBalanceOverflow is returned by CreditTreasury when the balance
	// would exceed the largest storable amount.
	ErrBalanceOverflow = errors.New("treasury balance overflow")
)

// ProposalFilter narrows ListProposals. Empty Statuses lists everything.
type ProposalFilter struct {
	Statuses []gov.ProposalStatus
	Limit    int
}

// Reader holds the side-effect free queries. Missing rows are reported as a
// wrapped gov.ErrNotFound.
type Reader interface {
	GetMember(ctx context.Context, addr string) (*gov.Member, error)
	CountMembers(ctx context.Context, activeOnly bool) (int64, error)

	GetProposal(ctx context.Context, id uint64) (*gov.Proposal, error)
	ListProposals(ctx context.Context, f ProposalFilter) ([]gov.Proposal, error)
	CountProposals(ctx context.Context) (int64, error)
	GetResponse(ctx context.Context, proposalID uint64, member string) (*gov.Response, error)
	ListResponses(ctx context.Context, proposalID uint64) ([]gov.Response, error)
	GetVote(ctx context.Context, proposalID uint64, member string) (*gov.Vote, error)

	GetConsent(ctx context.Context, id string) (*gov.ConsentContract, error)
	ListConsentsByMember(ctx context.Context, addr string) ([]gov.ConsentContract, error)
	GetRelationship(ctx context.Context, id string) (*gov.Relationship, error)
	ListRelationshipsByMember(ctx context.Context, addr string) ([]gov.Relationship, error)
	FindOpenRelationship(ctx context.Context, a, b string) (*gov.Relationship, error)
	ListCooldownConfirmations(ctx context.Context, relationshipID string, episode uint32) ([]gov.CooldownConfirmation, error)

	ListLedger(ctx context.Context, afterSeq uint64, limit int) ([]gov.LedgerEntry, error)

	GetTreasury(ctx context.Context) (gov.TreasuryBalance, error)
	ListPayouts(ctx context.Context, limit int) ([]gov.TreasuryPayout, error)
	GetPayout(ctx context.Context, proposalID uint64) (*gov.TreasuryPayout, error)
}

// Tx is the write side of one atomic unit of work. Update* methods are
// compare-and-transition writes: they succeed only when the stored Version
// equals the entity's Version, bump it, and return gov.ErrConflict
// otherwise.
type Tx interface {
	Reader

	LockProposal(ctx context.Context, id uint64) (*gov.Proposal, error)
	LockConsent(ctx context.Context, id string) (*gov.ConsentContract, error)
	LockRelationship(ctx context.Context, id string) (*gov.Relationship, error)
	LockLedgerHead(ctx context.Context) (*gov.LedgerEntry, error)

	NextSequence(ctx context.Context, name string) (uint64, error)

	CreateMember(ctx context.Context, m *gov.Member) error
	UpdateMember(ctx context.Context, m *gov.Member) error

	CreateProposal(ctx context.Context, p *gov.Proposal) error
	UpdateProposal(ctx context.Context, p *gov.Proposal) error
	CreateResponse(ctx context.Context, r *gov.Response) error
	CreateVote(ctx context.Context, v *gov.Vote) error

	CreateConsent(ctx context.Context, c *gov.ConsentContract) error
	UpdateConsent(ctx context.Context, c *gov.ConsentContract) error
	CreateRelationship(ctx context.Context, r *gov.Relationship) error
	UpdateRelationship(ctx context.Context, r *gov.Relationship) error
	CreateCooldownConfirmation(ctx context.Context, c *gov.CooldownConfirmation) error

	AppendLedger(ctx context.Context, e *gov.LedgerEntry) error

	CreditTreasury(ctx context.Context, d *gov.TreasuryDeposit) error
	// DebitTreasury takes p.Amount from the local pool and records p.
	DebitTreasury(ctx context.Context, p *gov.TreasuryPayout) error
	// RecordPayout records a payout settled outside the local pool. A row
	// with an empty Reference is a claim whose transfer is not yet known.
	RecordPayout(ctx context.Context, p *gov.TreasuryPayout) error
	// SettlePayout stores the transfer reference on a claimed payout.
	SettlePayout(ctx context.Context, proposalID uint64, reference string) error
	// ReleasePayout drops an unsettled claim after its transfer was refused.
	ReleasePayout(ctx context.Context, proposalID uint64) error
}

// Store is a transactional entity store.
type Store interface {
	Reader
	Atomic(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
