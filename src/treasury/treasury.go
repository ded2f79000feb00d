// Package treasury is the value-transfer primitive behind Funding proposals.
package treasury

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"

	"github.com/stake-plus/commons/src/ledger"
	"github.com/stake-plus/commons/src/observability"
	"github.com/stake-plus/commons/src/shared/gov"
	"github.com/stake-plus/commons/src/store"
)

// Payout is one requested transfer.
type Payout struct {
	ProposalID uint64
	Recipient  string
	Amount     uint64
	At         time.Time
}

// Transferer moves funds as part of the execution transaction tx. Any error
// aborts that transaction; implementations return errors wrapping
// gov.ErrTransferFailed when the caller may retry.
type Transferer interface {
	Transfer(ctx context.Context, tx store.Tx, p Payout) (reference string, err error)
}

// Pool pays out of the locally held treasury balance, inside the same
// database transaction as the execution itself.
type Pool struct{}

func (Pool) Transfer(ctx context.Context, tx store.Tx, p Payout) (string, error) {
	row := gov.TreasuryPayout{
		ProposalID: p.ProposalID,
		Recipient:  p.Recipient,
		Amount:     p.Amount,
		CreatedAt:  p.At,
	}
	if err := tx.DebitTreasury(ctx, &row); err != nil {
		observability.RecordTransfer("pool", false)
		if errors.Is(err, store.ErrInsufficientFunds) || errors.Is(err, store.ErrDuplicate) {
			return "", fmt.Errorf("%w: %v", gov.ErrTransferFailed, err)
		}
		return "", err
	}
	observability.RecordTransfer("pool", true)
	return "pool:" + strconv.FormatUint(row.ID, 10), nil
}

// ChainSubmitter is the part of polkadot.Client ChainTransfer needs.
type ChainSubmitter interface {
	Transfer(from signature.KeyringPair, dest string, amount uint64) (string, error)
}

// Remote moves funds outside the database, so it cannot take part in the
// execution transaction. Callers claim the proposal's payout row before
// calling Submit and store the returned reference on it; a claimed row is
// never submitted twice.
type Remote interface {
	Submit(ctx context.Context, p Payout) (reference string, err error)
}

// ChainTransfer pays from an on-chain account.
type ChainTransfer struct {
	chain  ChainSubmitter
	signer signature.KeyringPair
}

var _ Remote = (*ChainTransfer)(nil)

func NewChainTransfer(chain ChainSubmitter, signer signature.KeyringPair) *ChainTransfer {
	return &ChainTransfer{chain: chain, signer: signer}
}

// Submit sends the transfer extrinsic. A refused submission wraps
// gov.ErrTransferFailed.
func (c *ChainTransfer) Submit(_ context.Context, p Payout) (string, error) {
	ref, err := c.chain.Transfer(c.signer, p.Recipient, p.Amount)
	if err != nil {
		observability.RecordTransfer("chain", false)
		return "", fmt.Errorf("%w: %v", gov.ErrTransferFailed, err)
	}
	observability.RecordTransfer("chain", true)
	return ref, nil
}

// Service exposes treasury reads and deposits.
type Service struct {
	store  store.Store
	commit *ledger.Committer
	now    func() time.Time
}

func NewService(st store.Store, commit *ledger.Committer, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: st, commit: commit, now: now}
}

// Deposit credits the local pool.
func (s *Service) Deposit(ctx context.Context, depositor string, amount uint64, note string) (*gov.TreasuryDeposit, error) {
	if amount == 0 {
		return nil, fmt.Errorf("%w: deposit amount must be positive", gov.ErrInvalidPayload)
	}
	var out gov.TreasuryDeposit
	_, err := s.commit.Commit(ctx, func(tx store.Tx) ([]ledger.Event, error) {
		now := s.now().UTC()
		d := gov.TreasuryDeposit{Depositor: depositor, Amount: amount, Note: strings.TrimSpace(note), CreatedAt: now}
		if err := tx.CreditTreasury(ctx, &d); err != nil {
			if errors.Is(err, store.ErrBalanceOverflow) {
				return nil, fmt.Errorf("%w: %w", gov.ErrInvalidPayload, err)
			}
			return nil, fmt.Errorf("credit treasury: %w", err)
		}
		out = d
		return []ledger.Event{{
			Kind: "TreasuryDeposit", EntityType: ledger.EntityTreasury, EntityID: strconv.FormatUint(d.ID, 10),
			Actor: depositor, At: now,
			Data: map[string]any{"depositor": depositor, "amount": amount},
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Summary is the treasury read model.
type Summary struct {
	Balance uint64               `json:"balance"`
	Payouts []gov.TreasuryPayout `json:"payouts"`
}

func (s *Service) Summary(ctx context.Context, recent int) (*Summary, error) {
	bal, err := s.store.GetTreasury(ctx)
	if err != nil {
		return nil, fmt.Errorf("treasury balance: %w", err)
	}
	payouts, err := s.store.ListPayouts(ctx, recent)
	if err != nil {
		return nil, fmt.Errorf("treasury payouts: %w", err)
	}
	return &Summary{Balance: bal.Balance, Payouts: payouts}, nil
}
