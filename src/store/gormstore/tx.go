package gormstore

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stake-plus/commons/src/shared/gov"
	"github.com/stake-plus/commons/src/store"
)

type tx struct {
	reader
}

var _ store.Tx = (*tx)(nil)

func (t *tx) forUpdate(ctx context.Context) *gorm.DB {
	return t.db.WithContext(ctx).Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}

func (t *tx) LockProposal(ctx context.Context, id uint64) (*gov.Proposal, error) {
	var p gov.Proposal
	if err := t.forUpdate(ctx).Where("id = ?", id).Take(&p).Error; err != nil {
		return nil, translate(err, "proposal", id)
	}
	return &p, nil
}

func (t *tx) LockConsent(ctx context.Context, id string) (*gov.ConsentContract, error) {
	var c gov.ConsentContract
	if err := t.forUpdate(ctx).Where("id = ?", id).Take(&c).Error; err != nil {
		return nil, translate(err, "consent contract", id)
	}
	return &c, nil
}

func (t *tx) LockRelationship(ctx context.Context, id string) (*gov.Relationship, error) {
	var rel gov.Relationship
	if err := t.forUpdate(ctx).Where("id = ?", id).Take(&rel).Error; err != nil {
		return nil, translate(err, "relationship", id)
	}
	return &rel, nil
}

func (t *tx) LockLedgerHead(ctx context.Context) (*gov.LedgerEntry, error) {
	var e gov.LedgerEntry
	if err := t.forUpdate(ctx).Order("seq DESC").Take(&e).Error; err != nil {
		return nil, translate(err, "ledger entry", "head")
	}
	return &e, nil
}

// NextSequence bumps the named counter with an upsert, which also locks the
// row until the transaction ends.
func (t *tx) NextSequence(ctx context.Context, name string) (uint64, error) {
	db := t.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.Assignments(map[string]any{"value": gorm.Expr("value + 1")}),
	}).Create(&gov.Sequence{Name: name, Value: 1}).Error
	if err != nil {
		return 0, fmt.Errorf("sequence %s: %w", name, err)
	}
	var seq gov.Sequence
	if err := db.Where("name = ?", name).Take(&seq).Error; err != nil {
		return 0, fmt.Errorf("sequence %s: %w", name, err)
	}
	return seq.Value, nil
}

func (t *tx) CreateMember(ctx context.Context, m *gov.Member) error {
	return translate(t.db.WithContext(ctx).Create(m).Error, "member", m.Address)
}

func (t *tx) UpdateMember(ctx context.Context, m *gov.Member) error {
	res := t.db.WithContext(ctx).Model(&gov.Member{}).
		Where("address = ?", m.Address).
		Select("discord", "is_admin", "active").
		Updates(map[string]any{"discord": m.Discord, "is_admin": m.IsAdmin, "active": m.Active})
	if res.Error != nil {
		return translate(res.Error, "member", m.Address)
	}
	if res.RowsAffected == 0 {
		// MySQL reports zero rows when nothing changed, so confirm the row exists.
		if _, err := t.GetMember(ctx, m.Address); err != nil {
			return err
		}
	}
	return nil
}

// casUpdate writes next over the row matching id and the old version.
func (t *tx) casUpdate(ctx context.Context, model, next any, id any, version uint64) error {
	res := t.db.WithContext(ctx).Model(model).
		Where("id = ? AND version = ?", id, version).
		Select("*").Omit("id").
		Updates(next)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gov.ErrConflict
	}
	return nil
}

func (t *tx) CreateProposal(ctx context.Context, p *gov.Proposal) error {
	p.ID = 0
	p.Version = 0
	return translate(t.db.WithContext(ctx).Create(p).Error, "proposal", p.Title)
}

func (t *tx) UpdateProposal(ctx context.Context, p *gov.Proposal) error {
	next := *p
	next.Version = p.Version + 1
	if err := t.casUpdate(ctx, &gov.Proposal{}, &next, p.ID, p.Version); err != nil {
		return translate(err, "proposal", p.ID)
	}
	p.Version = next.Version
	return nil
}

func (t *tx) CreateResponse(ctx context.Context, r *gov.Response) error {
	return translate(t.db.WithContext(ctx).Create(r).Error, "response", r.Member)
}

func (t *tx) CreateVote(ctx context.Context, v *gov.Vote) error {
	return translate(t.db.WithContext(ctx).Create(v).Error, "vote", v.Member)
}

func (t *tx) CreateConsent(ctx context.Context, c *gov.ConsentContract) error {
	c.Version = 0
	return translate(t.db.WithContext(ctx).Create(c).Error, "consent contract", c.ID)
}

func (t *tx) UpdateConsent(ctx context.Context, c *gov.ConsentContract) error {
	next := *c
	next.Version = c.Version + 1
	if err := t.casUpdate(ctx, &gov.ConsentContract{}, &next, c.ID, c.Version); err != nil {
		return translate(err, "consent contract", c.ID)
	}
	c.Version = next.Version
	return nil
}

func (t *tx) CreateRelationship(ctx context.Context, r *gov.Relationship) error {
	r.Version = 0
	return translate(t.db.WithContext(ctx).Create(r).Error, "relationship", r.ID)
}

func (t *tx) UpdateRelationship(ctx context.Context, r *gov.Relationship) error {
	next := *r
	next.Version = r.Version + 1
	if err := t.casUpdate(ctx, &gov.Relationship{}, &next, r.ID, r.Version); err != nil {
		return translate(err, "relationship", r.ID)
	}
	r.Version = next.Version
	return nil
}

func (t *tx) CreateCooldownConfirmation(ctx context.Context, c *gov.CooldownConfirmation) error {
	return translate(t.db.WithContext(ctx).Create(c).Error, "cooldown confirmation", c.Member)
}

// AppendLedger inserts e. A duplicate seq means another transaction
// appended first; that is reported as a conflict so the commit is retried.
func (t *tx) AppendLedger(ctx context.Context, e *gov.LedgerEntry) error {
	err := t.db.WithContext(ctx).Create(e).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return gov.ErrConflict
	}
	return translate(err, "ledger entry", e.Seq)
}

// CreditTreasury locks the balance row first so the overflow check and the
// increment see the same balance.
func (t *tx) CreditTreasury(ctx context.Context, d *gov.TreasuryDeposit) error {
	var cur gov.TreasuryBalance
	err := t.forUpdate(ctx).Where("id = ?", treasuryRow).Take(&cur).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return translate(err, "treasury", treasuryRow)
	}
	if d.Amount > math.MaxUint64-cur.Balance {
		return fmt.Errorf("credit %d to %d: %w", d.Amount, cur.Balance, store.ErrBalanceOverflow)
	}

	db := t.db.WithContext(ctx)
	if err := db.Create(d).Error; err != nil {
		return translate(err, "deposit", d.Depositor)
	}
	err = db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"balance": gorm.Expr("balance + ?", d.Amount),
			"version": gorm.Expr("version + 1"),
		}),
	}).Create(&gov.TreasuryBalance{ID: treasuryRow, Balance: d.Amount, Version: 1}).Error
	return translate(err, "treasury", treasuryRow)
}

func (t *tx) DebitTreasury(ctx context.Context, p *gov.TreasuryPayout) error {
	res := t.db.WithContext(ctx).Model(&gov.TreasuryBalance{}).
		Where("id = ? AND balance >= ?", treasuryRow, p.Amount).
		Updates(map[string]any{
			"balance": gorm.Expr("balance - ?", p.Amount),
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return translate(res.Error, "treasury", treasuryRow)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("debit %d: %w", p.Amount, store.ErrInsufficientFunds)
	}
	return t.RecordPayout(ctx, p)
}

func (t *tx) RecordPayout(ctx context.Context, p *gov.TreasuryPayout) error {
	return translate(t.db.WithContext(ctx).Create(p).Error, "payout for proposal", p.ProposalID)
}

func (t *tx) SettlePayout(ctx context.Context, proposalID uint64, reference string) error {
	res := t.db.WithContext(ctx).Model(&gov.TreasuryPayout{}).
		Where("proposal_id = ? AND reference = ?", proposalID, "").
		Update("reference", reference)
	if res.Error != nil {
		return translate(res.Error, "payout for proposal", proposalID)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: unsettled payout for proposal %d", gov.ErrNotFound, proposalID)
	}
	return nil
}

func (t *tx) ReleasePayout(ctx context.Context, proposalID uint64) error {
	res := t.db.WithContext(ctx).
		Where("proposal_id = ? AND reference = ?", proposalID, "").
		Delete(&gov.TreasuryPayout{})
	if res.Error != nil {
		return translate(res.Error, "payout for proposal", proposalID)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: unsettled payout for proposal %d", gov.ErrNotFound, proposalID)
	}
	return nil
}
