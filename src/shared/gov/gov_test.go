package gov

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorsKeepIdentityWhenWrapped(t *testing.T) {
	err := fmt.Errorf("proposal 4: %w", fmt.Errorf("%w: listening ends tomorrow", ErrTooEarly))
	assert.ErrorIs(t, err, ErrTooEarly)
	assert.NotErrorIs(t, err, ErrVotingStillOpen)

	e, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "TooEarly", e.Code)
	assert.Equal(t, KindState, e.Kind)

	_, ok = AsError(errors.New("plain"))
	assert.False(t, ok)
	_, ok = AsError(ErrConflict)
	assert.False(t, ok)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(fmt.Errorf("%w: rpc down", ErrTransferFailed)))
	assert.False(t, Retryable(ErrWrongState))
	assert.False(t, Retryable(ErrConflict))
	assert.False(t, Retryable(nil))
}

func TestParsers(t *testing.T) {
	typ, err := ParseProposalType(" funding ")
	require.NoError(t, err)
	assert.Equal(t, ProposalFunding, typ)
	_, err = ParseProposalType("grant")
	assert.ErrorIs(t, err, ErrInvalidPayload)

	st, err := ParseProposalStatus("consensusblocked")
	require.NoError(t, err)
	assert.Equal(t, StatusConsensusBlocked, st)
	_, err = ParseProposalStatus("")
	assert.ErrorIs(t, err, ErrInvalidPayload)

	rt, err := ParseRelationshipType("ROMANTIC")
	require.NoError(t, err)
	assert.Equal(t, RelationshipRomantic, rt)
	_, err = ParseRelationshipType("friends")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestProposalTransitions(t *testing.T) {
	cases := []struct {
		from, to ProposalStatus
		ok       bool
	}{
		{StatusListening, StatusVoting, true},
		{StatusListening, StatusConsensusBlocked, true},
		{StatusListening, StatusExecuted, false},
		{StatusVoting, StatusExecuted, true},
		{StatusVoting, StatusRejected, true},
		{StatusVoting, StatusListening, false},
		{StatusConsensusBlocked, StatusVoting, false},
		{StatusExecuted, StatusRejected, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, c.from.CanTransitionTo(c.to), "%s -> %s", c.from, c.to)
		if c.ok {
			assert.Greater(t, c.to.Rank(), c.from.Rank())
		}
	}
	assert.True(t, StatusConsensusBlocked.Terminal())
	assert.False(t, StatusVoting.Terminal())
	assert.True(t, StatusConsensusBlocked.Active())
	assert.False(t, StatusRejected.Active())
}

func TestRelationshipOpen(t *testing.T) {
	assert.True(t, RelationshipActive.Open())
	assert.True(t, RelationshipCooldown.Open())
	assert.False(t, RelationshipTerminated.Open())
}
