package treasury

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stake-plus/commons/src/ledger"
	"github.com/stake-plus/commons/src/shared/gov"
	"github.com/stake-plus/commons/src/store"
	"github.com/stake-plus/commons/src/store/memstore"
)

var now = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

func TestPoolDebitsBalance(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	svc := NewService(st, ledger.NewCommitter(st, nil), func() time.Time { return now })

	_, err := svc.Deposit(ctx, "alice", 100, "seed")
	require.NoError(t, err)

	var ref string
	err = st.Atomic(ctx, func(tx store.Tx) error {
		var err error
		ref, err = Pool{}.Transfer(ctx, tx, Payout{ProposalID: 1, Recipient: "bob", Amount: 60, At: now})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "pool:1", ref)

	sum, err := svc.Summary(ctx, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 40, sum.Balance)
	require.Len(t, sum.Payouts, 1)
	assert.Equal(t, "bob", sum.Payouts[0].Recipient)
}

func TestPoolInsufficientFundsIsRetryable(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()

	err := st.Atomic(ctx, func(tx store.Tx) error {
		_, err := Pool{}.Transfer(ctx, tx, Payout{ProposalID: 1, Recipient: "bob", Amount: 1, At: now})
		return err
	})
	require.ErrorIs(t, err, gov.ErrTransferFailed)
	assert.True(t, gov.Retryable(err))
}

func TestDepositRejectsZero(t *testing.T) {
	st := memstore.New()
	svc := NewService(st, ledger.NewCommitter(st, nil), nil)
	_, err := svc.Deposit(context.Background(), "alice", 0, "")
	assert.ErrorIs(t, err, gov.ErrInvalidPayload)
}

type fakeChain struct {
	err   error
	calls int
}

func (f *fakeChain) Transfer(_ signature.KeyringPair, _ string, _ uint64) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "0xfeed", nil
}

func TestChainTransferSubmit(t *testing.T) {
	ctx := context.Background()

	chain := &fakeChain{err: errors.New("pool full")}
	_, err := NewChainTransfer(chain, signature.KeyringPair{}).Submit(ctx, Payout{ProposalID: 3, Recipient: "bob", Amount: 5, At: now})
	require.ErrorIs(t, err, gov.ErrTransferFailed)
	assert.True(t, gov.Retryable(err))

	chain = &fakeChain{}
	ref, err := NewChainTransfer(chain, signature.KeyringPair{}).Submit(ctx, Payout{ProposalID: 3, Recipient: "bob", Amount: 5, At: now})
	require.NoError(t, err)
	assert.Equal(t, "0xfeed", ref)
	assert.Equal(t, 1, chain.calls)
}

func TestDepositRejectsOverflow(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	svc := NewService(st, ledger.NewCommitter(st, nil), func() time.Time { return now })

	_, err := svc.Deposit(ctx, "alice", math.MaxUint64-10, "")
	require.NoError(t, err)

	_, err = svc.Deposit(ctx, "bob", 11, "")
	require.ErrorIs(t, err, gov.ErrInvalidPayload)
	assert.ErrorIs(t, err, store.ErrBalanceOverflow)

	sum, err := svc.Summary(ctx, 0)
	require.NoError(t, err)
	assert.EqualValues(t, uint64(math.MaxUint64-10), sum.Balance)

	_, err = svc.Deposit(ctx, "bob", 10, "")
	require.NoError(t, err)
}
