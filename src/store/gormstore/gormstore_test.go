package gormstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/stake-plus/commons/src/ledger"
	"github.com/stake-plus/commons/src/shared/gov"
	"github.com/stake-plus/commons/src/store"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err)
	return New(db), mock
}

func txOf(s *Store) *tx { return &tx{reader{s.db}} }

func TestLockProposalSelectsForUpdate(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("SELECT \\* FROM `proposals` WHERE id = \\?.*FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "status", "version"}).
			AddRow(7, "Quiet hours", "Listening", 2))

	p, err := txOf(s).LockProposal(context.Background(), 7)
	require.NoError(t, err)
	assert.EqualValues(t, 7, p.ID)
	assert.EqualValues(t, 2, p.Version)
	assert.Equal(t, gov.StatusListening, p.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMemberNotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("SELECT \\* FROM `members`").
		WillReturnRows(sqlmock.NewRows([]string{"address"}))

	_, err := s.GetMember(context.Background(), "nobody")
	assert.ErrorIs(t, err, gov.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProposalVersionGuard(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("UPDATE `proposals` SET").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE `proposals` SET").WillReturnResult(sqlmock.NewResult(0, 1))

	p := &gov.Proposal{ID: 3, Title: "x", Status: gov.StatusVoting, Version: 4}
	err := txOf(s).UpdateProposal(context.Background(), p)
	assert.ErrorIs(t, err, gov.ErrConflict)
	assert.EqualValues(t, 4, p.Version)

	require.NoError(t, txOf(s).UpdateProposal(context.Background(), p))
	assert.EqualValues(t, 5, p.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDuplicateKeys(t *testing.T) {
	s, mock := newMock(t)
	dup := &mysqldrv.MySQLError{Number: 1062, Message: "Duplicate entry"}
	mock.ExpectExec("INSERT INTO `responses`").WillReturnError(dup)
	mock.ExpectExec("INSERT INTO `ledger_entries`").WillReturnError(dup)

	err := txOf(s).CreateResponse(context.Background(), &gov.Response{ProposalID: 1, Member: "alice"})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	err = txOf(s).AppendLedger(context.Background(), &gov.LedgerEntry{Seq: 9, Kind: "Voted"})
	assert.ErrorIs(t, err, gov.ErrConflict, "a taken seq means another commit won the head")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDebitTreasuryInsufficient(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("UPDATE `treasury_balances` SET").WillReturnResult(sqlmock.NewResult(0, 0))

	err := txOf(s).DebitTreasury(context.Background(), &gov.TreasuryPayout{ProposalID: 1, Amount: 50})
	assert.ErrorIs(t, err, store.ErrInsufficientFunds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAtomicRollsBack(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := s.Atomic(context.Background(), func(store.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTreasuryDefaultsToEmpty(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("SELECT \\* FROM `treasury_balances`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "version"}))

	b, err := s.GetTreasury(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, b.ID)
	assert.Zero(t, b.Balance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitRetriesWhenLedgerHeadTaken(t *testing.T) {
	s, mock := newMock(t)
	dup := &mysqldrv.MySQLError{Number: 1062, Message: "Duplicate entry"}
	head := func(seq uint64) *sqlmock.Rows {
		return sqlmock.NewRows([]string{"seq", "kind", "hash"}).AddRow(seq, "Voted", fmt.Sprintf("%064d", seq))
	}
	lockHead := "SELECT \\* FROM `ledger_entries`.*FOR UPDATE"

	mock.ExpectBegin()
	mock.ExpectQuery(lockHead).WillReturnRows(head(4))
	mock.ExpectExec("INSERT INTO `ledger_entries`").WillReturnError(dup)
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectQuery(lockHead).WillReturnRows(head(5))
	mock.ExpectExec("INSERT INTO `ledger_entries`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	attempts := 0
	entries, err := ledger.NewCommitter(s, nil).Commit(context.Background(), func(store.Tx) ([]ledger.Event, error) {
		attempts++
		return []ledger.Event{{
			Kind: "TreasuryDeposit", EntityType: ledger.EntityTreasury, EntityID: "1",
			Actor: "alice", At: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
			Data: map[string]any{"amount": 5},
		}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	require.Len(t, entries, 1)
	assert.EqualValues(t, 6, entries[0].Seq)
	assert.Equal(t, fmt.Sprintf("%064d", 5), entries[0].PrevHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditTreasuryRejectsOverflow(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("SELECT \\* FROM `treasury_balances` WHERE id = \\?.*FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "version"}).AddRow(1, int64(1)<<62, 3))

	err := txOf(s).CreditTreasury(context.Background(), &gov.TreasuryDeposit{
		Depositor: "alice", Amount: math.MaxUint64 - (1 << 62) + 1,
	})
	assert.ErrorIs(t, err, store.ErrBalanceOverflow)
	assert.NoError(t, mock.ExpectationsWereMet(), "nothing is written")
}

func TestSettleAndReleaseOnlyTouchUnsettledClaims(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("UPDATE `treasury_payouts` SET `reference`=\\? WHERE proposal_id = \\? AND reference = \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE `treasury_payouts` SET `reference`=\\?").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM `treasury_payouts` WHERE proposal_id = \\? AND reference = \\?").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	require.NoError(t, txOf(s).SettlePayout(ctx, 4, "0xfeed"))
	assert.ErrorIs(t, txOf(s).SettlePayout(ctx, 4, "0xbeef"), gov.ErrNotFound)
	assert.ErrorIs(t, txOf(s).ReleasePayout(ctx, 4), gov.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
