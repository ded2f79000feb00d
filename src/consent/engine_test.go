package consent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stake-plus/commons/src/ledger"
	"github.com/stake-plus/commons/src/membership"
	"github.com/stake-plus/commons/src/shared/gov"
	"github.com/stake-plus/commons/src/store/memstore"
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	ctx    context.Context
	st     *memstore.Store
	clock  *testClock
	oracle membership.Static
	engine *Engine
}

func newFixture(t *testing.T, members ...string) *fixture {
	t.Helper()
	oracle := membership.Static{}
	for _, m := range members {
		oracle[m] = true
	}
	st := memstore.New()
	clock := &testClock{t: time.Date(2026, 5, 2, 18, 30, 0, 0, time.UTC)}
	eng, err := New(st, oracle, ledger.NewCommitter(st, nil), DefaultCooldown, WithClock(clock.Now))
	require.NoError(t, err)
	return &fixture{ctx: context.Background(), st: st, clock: clock, oracle: oracle, engine: eng}
}

// establish runs propose + consent and returns the new relationship.
func (f *fixture) establish(t *testing.T, a, b string) *gov.Relationship {
	t.Helper()
	c, err := f.engine.ProposeRelationship(f.ctx, a, b, gov.RelationshipCollaborative, "share the garden")
	require.NoError(t, err)
	rel, err := f.engine.ConsentToRelationship(f.ctx, b, c.ID)
	require.NoError(t, err)
	return rel
}

func TestContractIDsAreDeterministic(t *testing.T) {
	assert.Equal(t, ContractID("a", "b", 1), ContractID("a", "b", 1))
	assert.NotEqual(t, ContractID("a", "b", 1), ContractID("b", "a", 1))
	assert.NotEqual(t, ContractID("a", "b", 1), ContractID("a", "b", 2))
	assert.Len(t, ContractID("a", "b", 1), 66)
	assert.NotEqual(t, ContractID("a", "b", 1), RelationshipID(ContractID("a", "b", 1)))
}

func TestEstablishRelationship(t *testing.T) {
	f := newFixture(t, "alice", "bob")

	c, err := f.engine.ProposeRelationship(f.ctx, "alice", "bob", "mentorship", "  weekly check-in ")
	require.NoError(t, err)
	assert.True(t, c.InitiatedConsent)
	assert.False(t, c.CounterpartyConsent)
	assert.Equal(t, gov.RelationshipMentorship, c.RelationshipType)
	assert.Equal(t, "weekly check-in", c.Terms)
	assert.EqualValues(t, 1, c.Nonce)

	_, err = f.engine.ConsentToRelationship(f.ctx, "alice", c.ID)
	assert.ErrorIs(t, err, gov.ErrNotCounterparty)

	rel, err := f.engine.ConsentToRelationship(f.ctx, "bob", c.ID)
	require.NoError(t, err)
	assert.Equal(t, gov.RelationshipActive, rel.Status)
	assert.Equal(t, "weekly check-in", rel.Boundaries)
	assert.Equal(t, RelationshipID(c.ID), rel.ID)
	assert.Equal(t, f.clock.Now(), rel.CreatedAt)

	stored, err := f.engine.GetConsentContract(f.ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, stored.CounterpartyConsent)
	require.NotNil(t, stored.ConsentedAt)
	assert.Equal(t, rel.ID, stored.RelationshipID)

	_, err = f.engine.ConsentToRelationship(f.ctx, "bob", c.ID)
	assert.ErrorIs(t, err, gov.ErrAlreadyConsented)

	ok, err := f.engine.HasActiveRelationship(f.ctx, "bob", "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	rep, err := ledger.VerifyStore(f.ctx, f.st, 0)
	require.NoError(t, err)
	assert.True(t, rep.OK)
	assert.Equal(t, 3, rep.Checked)
}

func TestProposeValidation(t *testing.T) {
	f := newFixture(t, "alice", "bob")

	_, err := f.engine.ProposeRelationship(f.ctx, "alice", "alice", gov.RelationshipEmotional, "")
	assert.ErrorIs(t, err, gov.ErrInvalidPayload)
	_, err = f.engine.ProposeRelationship(f.ctx, "alice", " ", gov.RelationshipEmotional, "")
	assert.ErrorIs(t, err, gov.ErrInvalidPayload)
	_, err = f.engine.ProposeRelationship(f.ctx, "alice", "bob", "Business", "")
	assert.ErrorIs(t, err, gov.ErrInvalidPayload)
	_, err = f.engine.ProposeRelationship(f.ctx, "mallory", "bob", gov.RelationshipEmotional, "")
	assert.ErrorIs(t, err, gov.ErrNotAMember)
	_, err = f.engine.ProposeRelationship(f.ctx, "alice", "mallory", gov.RelationshipEmotional, "")
	assert.ErrorIs(t, err, gov.ErrNotAMember)
	_, err = f.engine.ConsentToRelationship(f.ctx, "bob", "0xmissing")
	assert.ErrorIs(t, err, gov.ErrNotFound)
}

func TestUnconsentedContractDoesNotBlockNewProposal(t *testing.T) {
	f := newFixture(t, "alice", "bob")

	first, err := f.engine.ProposeRelationship(f.ctx, "alice", "bob", gov.RelationshipMentorship, "weekly check-in")
	require.NoError(t, err)
	second, err := f.engine.ProposeRelationship(f.ctx, "alice", "bob", gov.RelationshipMentorship, "weekly check-in")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	rels, err := f.engine.ListRelationshipsByMember(f.ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, rels)

	contracts, err := f.engine.ListConsentContractsByMember(f.ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, contracts, 2)
}

func TestOnePairOneOpenRelationship(t *testing.T) {
	f := newFixture(t, "alice", "bob")

	c1, err := f.engine.ProposeRelationship(f.ctx, "alice", "bob", gov.RelationshipSolidarity, "")
	require.NoError(t, err)
	c2, err := f.engine.ProposeRelationship(f.ctx, "bob", "alice", gov.RelationshipRomantic, "")
	require.NoError(t, err)

	rel, err := f.engine.ConsentToRelationship(f.ctx, "bob", c1.ID)
	require.NoError(t, err)

	_, err = f.engine.ConsentToRelationship(f.ctx, "alice", c2.ID)
	assert.ErrorIs(t, err, gov.ErrRelationshipOpen)
	_, err = f.engine.ProposeRelationship(f.ctx, "bob", "alice", gov.RelationshipEmotional, "")
	assert.ErrorIs(t, err, gov.ErrRelationshipOpen)

	_, err = f.engine.InitiateCooldown(f.ctx, "alice", rel.ID)
	require.NoError(t, err)
	_, err = f.engine.ConsentToRelationship(f.ctx, "alice", c2.ID)
	assert.ErrorIs(t, err, gov.ErrRelationshipOpen, "cooldown still holds the pair")

	_, err = f.engine.TerminateRelationship(f.ctx, "bob", rel.ID, "moving away")
	require.NoError(t, err)
	again, err := f.engine.ConsentToRelationship(f.ctx, "alice", c2.ID)
	require.NoError(t, err)
	assert.Equal(t, gov.RelationshipRomantic, again.RelationshipType)
	assert.Equal(t, "bob", again.PartyA)
}

func TestBoundariesOnlyWhileActive(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	rel := f.establish(t, "alice", "bob")

	updated, err := f.engine.UpdateBoundaries(f.ctx, "bob", rel.ID, "no calls after 10pm")
	require.NoError(t, err)
	assert.Equal(t, "no calls after 10pm", updated.Boundaries)

	_, err = f.engine.UpdateBoundaries(f.ctx, "carol", rel.ID, "mine now")
	assert.ErrorIs(t, err, gov.ErrNotAParty)

	_, err = f.engine.InitiateCooldown(f.ctx, "alice", rel.ID)
	require.NoError(t, err)
	_, err = f.engine.UpdateBoundaries(f.ctx, "alice", rel.ID, "changed during cooldown")
	assert.ErrorIs(t, err, gov.ErrNotActive)

	got, err := f.engine.GetRelationship(f.ctx, rel.ID)
	require.NoError(t, err)
	assert.Equal(t, "no calls after 10pm", got.Boundaries)
}

func TestCooldownNeedsBothConfirmations(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	rel := f.establish(t, "alice", "bob")

	_, err := f.engine.ConfirmCooldownEnd(f.ctx, "alice", rel.ID)
	assert.ErrorIs(t, err, gov.ErrWrongState)

	cool, err := f.engine.InitiateCooldown(f.ctx, "bob", rel.ID)
	require.NoError(t, err)
	assert.Equal(t, gov.RelationshipCooldown, cool.Status)
	require.NotNil(t, cool.CooldownEnd)
	assert.Equal(t, f.clock.Now().Add(DefaultCooldown), *cool.CooldownEnd)
	assert.EqualValues(t, 1, cool.CooldownEpisode)

	_, err = f.engine.InitiateCooldown(f.ctx, "alice", rel.ID)
	assert.ErrorIs(t, err, gov.ErrNotActive)

	one, err := f.engine.ConfirmCooldownEnd(f.ctx, "alice", rel.ID)
	require.NoError(t, err)
	assert.Equal(t, gov.RelationshipCooldown, one.Status)

	_, err = f.engine.ConfirmCooldownEnd(f.ctx, "alice", rel.ID)
	assert.ErrorIs(t, err, gov.ErrDuplicateConfirm)

	f.clock.Advance(DefaultCooldown)
	view, err := f.engine.GetRelationship(f.ctx, rel.ID)
	require.NoError(t, err)
	assert.True(t, view.CooldownElapsed)
	assert.Equal(t, gov.RelationshipCooldown, view.Status)

	confs, err := f.engine.CooldownConfirmations(f.ctx, rel.ID)
	require.NoError(t, err)
	require.Len(t, confs, 1)
	assert.Equal(t, "alice", confs[0].Member)

	both, err := f.engine.ConfirmCooldownEnd(f.ctx, "bob", rel.ID)
	require.NoError(t, err)
	assert.Equal(t, gov.RelationshipActive, both.Status)
	assert.Nil(t, both.CooldownEnd)

	confs, err = f.engine.CooldownConfirmations(f.ctx, rel.ID)
	require.NoError(t, err)
	assert.Empty(t, confs)
}

func TestConfirmationsAreScopedToEpisode(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	rel := f.establish(t, "alice", "bob")

	_, err := f.engine.InitiateCooldown(f.ctx, "alice", rel.ID)
	require.NoError(t, err)
	_, err = f.engine.ConfirmCooldownEnd(f.ctx, "alice", rel.ID)
	require.NoError(t, err)
	_, err = f.engine.ConfirmCooldownEnd(f.ctx, "bob", rel.ID)
	require.NoError(t, err)

	second, err := f.engine.InitiateCooldown(f.ctx, "bob", rel.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, second.CooldownEpisode)

	again, err := f.engine.ConfirmCooldownEnd(f.ctx, "alice", rel.ID)
	require.NoError(t, err, "a new episode accepts a fresh confirmation")
	assert.Equal(t, gov.RelationshipCooldown, again.Status)
}

func TestTerminationPreemptsCooldown(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	rel := f.establish(t, "alice", "bob")

	_, err := f.engine.InitiateCooldown(f.ctx, "alice", rel.ID)
	require.NoError(t, err)
	done, err := f.engine.TerminateRelationship(f.ctx, "bob", rel.ID, "incompatible")
	require.NoError(t, err)
	assert.Equal(t, gov.RelationshipTerminated, done.Status)
	assert.Equal(t, "incompatible", done.TerminationReason)
	require.NotNil(t, done.TerminatedAt)
	assert.Nil(t, done.CooldownEnd)

	for _, m := range []string{"alice", "bob"} {
		_, err = f.engine.ConfirmCooldownEnd(f.ctx, m, rel.ID)
		assert.ErrorIs(t, err, gov.ErrWrongState)
	}
	_, err = f.engine.TerminateRelationship(f.ctx, "alice", rel.ID, "again")
	assert.ErrorIs(t, err, gov.ErrWrongState)
	_, err = f.engine.InitiateCooldown(f.ctx, "alice", rel.ID)
	assert.ErrorIs(t, err, gov.ErrNotActive)
	_, err = f.engine.UpdateBoundaries(f.ctx, "alice", rel.ID, "x")
	assert.ErrorIs(t, err, gov.ErrNotActive)

	ok, err := f.engine.HasActiveRelationship(f.ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFormerMemberCanStillLeave(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	rel := f.establish(t, "alice", "bob")
	delete(f.oracle, "bob")

	_, err := f.engine.TerminateRelationship(f.ctx, "bob", rel.ID, "left the commons")
	require.NoError(t, err)
}

func TestNonPositiveCooldownRejected(t *testing.T) {
	st := memstore.New()
	_, err := New(st, membership.Static{}, ledger.NewCommitter(st, nil), 0)
	assert.Error(t, err)
}

func TestSiblingContractsAcceptedAtOnce(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	first, err := f.engine.ProposeRelationship(f.ctx, "alice", "bob", gov.RelationshipMentorship, "weekly")
	require.NoError(t, err)
	second, err := f.engine.ProposeRelationship(f.ctx, "bob", "alice", gov.RelationshipCollaborative, "garden")
	require.NoError(t, err)

	accepts := []struct{ member, contract string }{{"bob", first.ID}, {"alice", second.ID}}
	errs := make([]error, len(accepts))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, a := range accepts {
		wg.Add(1)
		go func(i int, member, contract string) {
			defer wg.Done()
			<-start
			_, errs[i] = f.engine.ConsentToRelationship(f.ctx, member, contract)
		}(i, a.member, a.contract)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, gov.ErrRelationshipOpen)
	}
	assert.Equal(t, 1, succeeded)

	entries, err := f.st.ListLedger(f.ctx, 0, 0)
	require.NoError(t, err)
	established := 0
	for _, e := range entries {
		if e.Kind == "RelationshipEstablished" {
			established++
		}
	}
	assert.Equal(t, 1, established)

	rels, err := f.engine.ListRelationshipsByMember(f.ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, rels, 1)
}
