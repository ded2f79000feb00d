package governance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/stake-plus/commons/src/ledger"
	"github.com/stake-plus/commons/src/membership"
	"github.com/stake-plus/commons/src/shared/gov"
	"github.com/stake-plus/commons/src/store"
	"github.com/stake-plus/commons/src/store/gormstore"
	"github.com/stake-plus/commons/src/store/memstore"
	"github.com/stake-plus/commons/src/treasury"
)

// contendedStore fails the next `conflicts` ledger appends with
// gov.ErrConflict, as if another commit had taken the ledger head first.
type contendedStore struct {
	*memstore.Store

	mu        sync.Mutex
	conflicts int
}

func (s *contendedStore) setConflicts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts = n
}

func (s *contendedStore) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.Atomic(ctx, func(tx store.Tx) error {
		return fn(contendedTx{Tx: tx, s: s})
	})
}

type contendedTx struct {
	store.Tx
	s *contendedStore
}

func (t contendedTx) AppendLedger(ctx context.Context, e *gov.LedgerEntry) error {
	t.s.mu.Lock()
	lose := t.s.conflicts > 0
	if lose {
		t.s.conflicts--
	}
	t.s.mu.Unlock()
	if lose {
		return gov.ErrConflict
	}
	return t.Tx.AppendLedger(ctx, e)
}

type countingRemote struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *countingRemote) Submit(_ context.Context, p treasury.Payout) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	return fmt.Sprintf("0xpay%d", p.ProposalID), nil
}

func (r *countingRemote) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

var payoutVoters = []string{"a", "b", "c"}

// commitAttempts matches ledger.Committer's retry bound.
const commitAttempts = 3

func newContendedFixture(t *testing.T, remote treasury.Remote) (*fixture, *contendedStore) {
	t.Helper()
	cs := &contendedStore{Store: memstore.New()}
	clock := &testClock{t: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	commit := ledger.NewCommitter(cs, nil)
	opts := []Option{WithClock(clock.Now)}
	if remote != nil {
		opts = append(opts, WithRemotePayouts(remote))
	}
	oracle := membership.Static{}
	for _, m := range payoutVoters {
		oracle[m] = true
	}
	eng, err := New(cs, oracle, commit, DefaultParams(), opts...)
	require.NoError(t, err)
	return &fixture{
		ctx:    context.Background(),
		st:     cs.Store,
		clock:  clock,
		engine: eng,
		funds:  treasury.NewService(cs, commit, clock.Now),
	}, cs
}

// passFunding drives a Funding proposal to an elapsed, passing vote.
func (f *fixture) passFunding(t *testing.T, amount uint64) *gov.Proposal {
	t.Helper()
	p := f.propose(t, payoutVoters[0], ProposalInput{
		Type: gov.ProposalFunding, Title: "Garden tools", Amount: amount, Recipient: aliceSS58,
		ListeningDays: 1, VotingDays: 1,
	})
	for _, m := range payoutVoters {
		_, err := f.engine.RespondToProposal(f.ctx, m, p.ID, "", false)
		require.NoError(t, err)
	}
	f.clock.Advance(day)
	_, err := f.engine.OpenVoting(f.ctx, payoutVoters[0], p.ID)
	require.NoError(t, err)
	for _, m := range payoutVoters {
		_, err := f.engine.Vote(f.ctx, m, p.ID, true)
		require.NoError(t, err)
	}
	f.clock.Advance(day)
	return p
}

func (f *fixture) kinds(t *testing.T) map[string]int {
	t.Helper()
	entries, err := f.st.ListLedger(f.ctx, 0, 0)
	require.NoError(t, err)
	out := map[string]int{}
	for _, e := range entries {
		out[e.Kind]++
	}
	return out
}

func TestRemotePayoutSubmittedOnceAcrossCommitRetry(t *testing.T) {
	remote := &countingRemote{}
	f, cs := newContendedFixture(t, remote)
	p := f.passFunding(t, 250)

	cs.setConflicts(1)
	done, err := f.engine.ExecuteProposal(f.ctx, "c", p.ID)
	require.NoError(t, err)
	assert.Equal(t, gov.StatusExecuted, done.Status)
	assert.Equal(t, 1, remote.count())

	payout, err := f.st.GetPayout(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "0xpay1", payout.Reference)
	assert.Equal(t, 1, f.kinds(t)["FundsTransferred"])

	rep, err := ledger.VerifyStore(f.ctx, f.st, 0)
	require.NoError(t, err)
	assert.True(t, rep.OK)
}

func TestRemotePayoutNotRepeatedAfterFailedCommit(t *testing.T) {
	remote := &countingRemote{}
	f, cs := newContendedFixture(t, remote)
	p := f.passFunding(t, 250)

	cs.setConflicts(commitAttempts)
	_, err := f.engine.ExecuteProposal(f.ctx, "c", p.ID)
	require.ErrorIs(t, err, gov.ErrConflict)

	still, err := f.engine.GetProposal(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, gov.StatusVoting, still.Status)
	assert.Equal(t, 1, remote.count())

	done, err := f.engine.ExecuteProposal(f.ctx, "b", p.ID)
	require.NoError(t, err)
	assert.Equal(t, gov.StatusExecuted, done.Status)
	assert.Equal(t, 1, remote.count(), "the stored reference is reused")

	sum, err := f.funds.Summary(f.ctx, 0)
	require.NoError(t, err)
	require.Len(t, sum.Payouts, 1)
	assert.Equal(t, "0xpay1", sum.Payouts[0].Reference)
}

func TestRemotePayoutRefusedReleasesClaim(t *testing.T) {
	remote := &countingRemote{err: errors.New("rpc unavailable")}
	f, _ := newContendedFixture(t, remote)
	p := f.passFunding(t, 250)

	_, err := f.engine.ExecuteProposal(f.ctx, "c", p.ID)
	require.ErrorIs(t, err, gov.ErrTransferFailed)
	assert.True(t, gov.Retryable(err))

	_, err = f.st.GetPayout(f.ctx, p.ID)
	assert.ErrorIs(t, err, gov.ErrNotFound)
	still, err := f.engine.GetProposal(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, gov.StatusVoting, still.Status)
	assert.Zero(t, f.kinds(t)["ProposalExecuted"])

	remote.mu.Lock()
	remote.err = nil
	remote.mu.Unlock()

	done, err := f.engine.ExecuteProposal(f.ctx, "c", p.ID)
	require.NoError(t, err)
	assert.Equal(t, gov.StatusExecuted, done.Status)
	assert.Equal(t, 2, remote.count())
}

func TestPoolPayoutRolledBackWithLostRace(t *testing.T) {
	f, cs := newContendedFixture(t, nil)
	p := f.passFunding(t, 250)
	_, err := f.funds.Deposit(f.ctx, "b", 1000, "")
	require.NoError(t, err)

	cs.setConflicts(1)
	done, err := f.engine.ExecuteProposal(f.ctx, "c", p.ID)
	require.NoError(t, err)
	assert.Equal(t, gov.StatusExecuted, done.Status)

	sum, err := f.funds.Summary(f.ctx, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 750, sum.Balance)
	assert.Len(t, sum.Payouts, 1)
}

// executeConcurrently fires n ExecuteProposal calls at once and returns
// their errors.
func executeConcurrently(f *fixture, id uint64, n int) []error {
	var wg sync.WaitGroup
	errs := make([]error, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.engine.ExecuteProposal(f.ctx, payoutVoters[i%len(payoutVoters)], id)
		}(i)
	}
	close(start)
	wg.Wait()
	return errs
}

func TestConcurrentExecuteResolvesOnce(t *testing.T) {
	f, _ := newContendedFixture(t, nil)
	p := f.passFunding(t, 250)
	_, err := f.funds.Deposit(f.ctx, "b", 1000, "")
	require.NoError(t, err)

	succeeded := 0
	for _, err := range executeConcurrently(f, p.ID, 8) {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, gov.ErrWrongState)
	}
	assert.Equal(t, 1, succeeded)

	sum, err := f.funds.Summary(f.ctx, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 750, sum.Balance)
	kinds := f.kinds(t)
	assert.Equal(t, 1, kinds["ProposalExecuted"])
	assert.Equal(t, 1, kinds["FundsTransferred"])
}

func TestConcurrentExecuteSubmitsRemotePayoutOnce(t *testing.T) {
	remote := &countingRemote{}
	f, _ := newContendedFixture(t, remote)
	p := f.passFunding(t, 250)

	succeeded := 0
	for _, err := range executeConcurrently(f, p.ID, 8) {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, gov.ErrWrongState) || errors.Is(err, gov.ErrTransferFailed), err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, remote.count())
	assert.Equal(t, 1, f.kinds(t)["FundsTransferred"])
}

func TestExecuteAfterLostVersionRaceOnMySQL(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err)
	st := gormstore.New(db)

	end := time.Date(2026, 4, 3, 9, 0, 0, 0, time.UTC)
	cols := []string{"id", "type", "title", "status", "voting_end", "for_votes", "against_votes", "total_votes", "version"}
	lock := "SELECT \\* FROM `proposals` WHERE id = \\?.*FOR UPDATE"

	mock.ExpectBegin()
	mock.ExpectQuery(lock).WillReturnRows(sqlmock.NewRows(cols).
		AddRow(7, "RuleChange", "Quiet hours", "Voting", end, 3, 0, 3, 2))
	mock.ExpectExec("UPDATE `proposals` SET").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectQuery(lock).WillReturnRows(sqlmock.NewRows(cols).
		AddRow(7, "RuleChange", "Quiet hours", "Executed", end, 3, 0, 3, 3))
	mock.ExpectRollback()

	eng, err := New(st, membership.Static{}, ledger.NewCommitter(st, nil), DefaultParams(),
		WithClock(func() time.Time { return end.Add(time.Hour) }))
	require.NoError(t, err)

	_, err = eng.ExecuteProposal(context.Background(), "anyone", 7)
	assert.ErrorIs(t, err, gov.ErrWrongState, "the retry sees the winner's result")
	assert.NoError(t, mock.ExpectationsWereMet())
}
