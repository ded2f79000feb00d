package polkadot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchRemark(t *testing.T) {
	nonce := "3f1c2a9e-5d8b-4e47-9a61-0b7d2c4e8f10"

	assert.True(t, MatchRemark([]byte(nonce), nonce))
	assert.True(t, MatchRemark([]byte(" "+nonce+"\n"), nonce))
	assert.False(t, MatchRemark([]byte("something else"), nonce))
	assert.False(t, MatchRemark([]byte("short"), "short"))
	assert.False(t, MatchRemark([]byte(Confirmed), Confirmed))
}
