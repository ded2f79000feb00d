package membership

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stake-plus/commons/src/ledger"
	"github.com/stake-plus/commons/src/shared/gov"
	"github.com/stake-plus/commons/src/store/memstore"
)

func newRegistry(t *testing.T) (*Registry, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	clock := func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return NewRegistry(st, ledger.NewCommitter(st, nil), WithClock(clock)), st
}

func TestJoinOnce(t *testing.T) {
	ctx := context.Background()
	r, st := newRegistry(t)

	ok, err := r.IsMember(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	m, err := r.Join(ctx, "alice", "alice#1")
	require.NoError(t, err)
	assert.True(t, m.Active)
	assert.False(t, m.IsAdmin)

	ok, err = r.IsMember(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = r.Join(ctx, "alice", "")
	assert.ErrorIs(t, err, gov.ErrAlreadyMember)

	total, err := r.Total(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	entries, err := st.ListLedger(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "MemberJoined", entries[0].Kind)
}

func TestDeactivateRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)

	require.NoError(t, r.EnsureAdmin(ctx, "root"))
	_, err := r.Join(ctx, "alice", "")
	require.NoError(t, err)
	_, err = r.Join(ctx, "bob", "")
	require.NoError(t, err)

	assert.ErrorIs(t, r.Deactivate(ctx, "bob", "alice"), gov.ErrNotAdmin)
	require.NoError(t, r.Deactivate(ctx, "root", "alice"))
	assert.ErrorIs(t, r.Deactivate(ctx, "root", "alice"), gov.ErrWrongState)

	ok, err := r.IsMember(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	admin, err := r.IsAdmin(ctx, "root")
	require.NoError(t, err)
	assert.True(t, admin)

	total, err := r.Total(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r, st := newRegistry(t)

	require.NoError(t, r.EnsureAdmin(ctx, "root"))
	require.NoError(t, r.EnsureAdmin(ctx, "root"))

	entries, err := st.ListLedger(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCachedAnswersAreInvalidatedOnJoin(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	st := memstore.New()
	r := NewRegistry(st, ledger.NewCommitter(st, nil), WithCache(rdb, time.Minute))

	ok, err := r.IsMember(ctx, "carol")
	require.NoError(t, err)
	assert.False(t, ok)
	cached, err := mr.Get(cachePrefix + "carol")
	require.NoError(t, err)
	assert.Equal(t, "0", cached)

	_, err = r.Join(ctx, "carol", "")
	require.NoError(t, err)
	assert.False(t, mr.Exists(cachePrefix+"carol"))

	ok, err = r.IsMember(ctx, "carol")
	require.NoError(t, err)
	assert.True(t, ok)
}
