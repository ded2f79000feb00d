// Package gormstore implements store.Store on MySQL through gorm. Lock*
// methods take row locks (SELECT ... FOR UPDATE) and Update* methods are
// guarded by "WHERE version = ?", so a lost race surfaces as gov.ErrConflict
// rather than a silent overwrite.
package gormstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/stake-plus/commons/src/shared/gov"
	"github.com/stake-plus/commons/src/store"
)

const treasuryRow = 1

type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// New wraps db. The connection should be opened with TranslateError so
// unique violations map to store.ErrDuplicate.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(&tx{reader{gtx}})
	})
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translate(err error, what string, key any) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %s %v", gov.ErrNotFound, what, key)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s %v: %w", what, key, store.ErrDuplicate)
	default:
		return fmt.Errorf("%s %v: %w", what, key, err)
	}
}

type reader struct {
	db *gorm.DB
}

func (s *Store) r(ctx context.Context) reader { return reader{s.db.WithContext(ctx)} }

func (s *Store) GetMember(ctx context.Context, addr string) (*gov.Member, error) {
	return s.r(ctx).GetMember(ctx, addr)
}

func (s *Store) CountMembers(ctx context.Context, activeOnly bool) (int64, error) {
	return s.r(ctx).CountMembers(ctx, activeOnly)
}

func (s *Store) GetProposal(ctx context.Context, id uint64) (*gov.Proposal, error) {
	return s.r(ctx).GetProposal(ctx, id)
}

func (s *Store) ListProposals(ctx context.Context, f store.ProposalFilter) ([]gov.Proposal, error) {
	return s.r(ctx).ListProposals(ctx, f)
}

func (s *Store) CountProposals(ctx context.Context) (int64, error) {
	return s.r(ctx).CountProposals(ctx)
}

func (s *Store) GetResponse(ctx context.Context, proposalID uint64, member string) (*gov.Response, error) {
	return s.r(ctx).GetResponse(ctx, proposalID, member)
}

func (s *Store) ListResponses(ctx context.Context, proposalID uint64) ([]gov.Response, error) {
	return s.r(ctx).ListResponses(ctx, proposalID)
}

func (s *Store) GetVote(ctx context.Context, proposalID uint64, member string) (*gov.Vote, error) {
	return s.r(ctx).GetVote(ctx, proposalID, member)
}

func (s *Store) GetConsent(ctx context.Context, id string) (*gov.ConsentContract, error) {
	return s.r(ctx).GetConsent(ctx, id)
}

func (s *Store) ListConsentsByMember(ctx context.Context, addr string) ([]gov.ConsentContract, error) {
	return s.r(ctx).ListConsentsByMember(ctx, addr)
}

func (s *Store) GetRelationship(ctx context.Context, id string) (*gov.Relationship, error) {
	return s.r(ctx).GetRelationship(ctx, id)
}

func (s *Store) ListRelationshipsByMember(ctx context.Context, addr string) ([]gov.Relationship, error) {
	return s.r(ctx).ListRelationshipsByMember(ctx, addr)
}

func (s *Store) FindOpenRelationship(ctx context.Context, a, b string) (*gov.Relationship, error) {
	return s.r(ctx).FindOpenRelationship(ctx, a, b)
}

func (s *Store) ListCooldownConfirmations(ctx context.Context, relationshipID string, episode uint32) ([]gov.CooldownConfirmation, error) {
	return s.r(ctx).ListCooldownConfirmations(ctx, relationshipID, episode)
}

func (s *Store) ListLedger(ctx context.Context, afterSeq uint64, limit int) ([]gov.LedgerEntry, error) {
	return s.r(ctx).ListLedger(ctx, afterSeq, limit)
}

func (s *Store) GetTreasury(ctx context.Context) (gov.TreasuryBalance, error) {
	return s.r(ctx).GetTreasury(ctx)
}

func (s *Store) ListPayouts(ctx context.Context, limit int) ([]gov.TreasuryPayout, error) {
	return s.r(ctx).ListPayouts(ctx, limit)
}

func (s *Store) GetPayout(ctx context.Context, proposalID uint64) (*gov.TreasuryPayout, error) {
	return s.r(ctx).GetPayout(ctx, proposalID)
}

func (r reader) GetMember(ctx context.Context, addr string) (*gov.Member, error) {
	var m gov.Member
	if err := r.db.WithContext(ctx).Where("address = ?", addr).Take(&m).Error; err != nil {
		return nil, translate(err, "member", addr)
	}
	return &m, nil
}

func (r reader) CountMembers(ctx context.Context, activeOnly bool) (int64, error) {
	q := r.db.WithContext(ctx).Model(&gov.Member{})
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

func (r reader) GetProposal(ctx context.Context, id uint64) (*gov.Proposal, error) {
	var p gov.Proposal
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&p).Error; err != nil {
		return nil, translate(err, "proposal", id)
	}
	return &p, nil
}

func (r reader) ListProposals(ctx context.Context, f store.ProposalFilter) ([]gov.Proposal, error) {
	q := r.db.WithContext(ctx).Order("id DESC")
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	out := make([]gov.Proposal, 0)
	err := q.Find(&out).Error
	return out, err
}

func (r reader) CountProposals(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&gov.Proposal{}).Count(&n).Error
	return n, err
}

func (r reader) GetResponse(ctx context.Context, proposalID uint64, member string) (*gov.Response, error) {
	var resp gov.Response
	err := r.db.WithContext(ctx).Where("proposal_id = ? AND member = ?", proposalID, member).Take(&resp).Error
	if err != nil {
		return nil, translate(err, "response", member)
	}
	return &resp, nil
}

func (r reader) ListResponses(ctx context.Context, proposalID uint64) ([]gov.Response, error) {
	out := make([]gov.Response, 0)
	err := r.db.WithContext(ctx).Where("proposal_id = ?", proposalID).Order("id ASC").Find(&out).Error
	return out, err
}

func (r reader) GetVote(ctx context.Context, proposalID uint64, member string) (*gov.Vote, error) {
	var v gov.Vote
	err := r.db.WithContext(ctx).Where("proposal_id = ? AND member = ?", proposalID, member).Take(&v).Error
	if err != nil {
		return nil, translate(err, "vote", member)
	}
	return &v, nil
}

func (r reader) GetConsent(ctx context.Context, id string) (*gov.ConsentContract, error) {
	var c gov.ConsentContract
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&c).Error; err != nil {
		return nil, translate(err, "consent contract", id)
	}
	return &c, nil
}

func (r reader) ListConsentsByMember(ctx context.Context, addr string) ([]gov.ConsentContract, error) {
	out := make([]gov.ConsentContract, 0)
	err := r.db.WithContext(ctx).
		Where("initiator = ? OR counterparty = ?", addr, addr).
		Order("nonce ASC").
		Find(&out).Error
	return out, err
}

func (r reader) GetRelationship(ctx context.Context, id string) (*gov.Relationship, error) {
	var rel gov.Relationship
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&rel).Error; err != nil {
		return nil, translate(err, "relationship", id)
	}
	return &rel, nil
}

func (r reader) ListRelationshipsByMember(ctx context.Context, addr string) ([]gov.Relationship, error) {
	out := make([]gov.Relationship, 0)
	err := r.db.WithContext(ctx).
		Where("party_a = ? OR party_b = ?", addr, addr).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

func (r reader) FindOpenRelationship(ctx context.Context, a, b string) (*gov.Relationship, error) {
	key := gov.PairKey(a, b)
	var rel gov.Relationship
	if err := r.db.WithContext(ctx).Where("open_pair = ?", key).Take(&rel).Error; err != nil {
		return nil, translate(err, "open relationship", key)
	}
	return &rel, nil
}

func (r reader) ListCooldownConfirmations(ctx context.Context, relationshipID string, episode uint32) ([]gov.CooldownConfirmation, error) {
	out := make([]gov.CooldownConfirmation, 0, 2)
	err := r.db.WithContext(ctx).
		Where("relationship_id = ? AND episode = ?", relationshipID, episode).
		Order("confirmed_at ASC").
		Find(&out).Error
	return out, err
}

func (r reader) ListLedger(ctx context.Context, afterSeq uint64, limit int) ([]gov.LedgerEntry, error) {
	q := r.db.WithContext(ctx).Where("seq > ?", afterSeq).Order("seq ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	out := make([]gov.LedgerEntry, 0)
	err := q.Find(&out).Error
	return out, err
}

func (r reader) GetTreasury(ctx context.Context) (gov.TreasuryBalance, error) {
	var b gov.TreasuryBalance
	err := r.db.WithContext(ctx).Where("id = ?", treasuryRow).Take(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return gov.TreasuryBalance{ID: treasuryRow}, nil
	}
	return b, err
}

func (r reader) ListPayouts(ctx context.Context, limit int) ([]gov.TreasuryPayout, error) {
	q := r.db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	out := make([]gov.TreasuryPayout, 0)
	err := q.Find(&out).Error
	return out, err
}

func (r reader) GetPayout(ctx context.Context, proposalID uint64) (*gov.TreasuryPayout, error) {
	var p gov.TreasuryPayout
	if err := r.db.WithContext(ctx).Where("proposal_id = ?", proposalID).Take(&p).Error; err != nil {
		return nil, translate(err, "payout for proposal", proposalID)
	}
	return &p, nil
}
