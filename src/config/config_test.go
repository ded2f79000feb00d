package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stake-plus/commons/src/data"
)

func writeParams(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "params.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadProtocolDefaults(t *testing.T) {
	data.SetSettings(nil)
	p, err := LoadProtocol("")
	require.NoError(t, err)
	assert.Equal(t, DefaultProtocol(), p)
	assert.EqualValues(t, 3, p.Governance.CoreConcernThreshold)
	assert.EqualValues(t, 60, p.Governance.SupermajorityPercent)
	assert.Equal(t, 72*time.Hour, p.Cooldown)
}

func TestLoadProtocolLayers(t *testing.T) {
	path := writeParams(t, `
min_quorum = 5
supermajority_percent = 67
cooldown_duration = "48h"
`)
	data.SetSettings(map[string]string{"min_quorum": "7"})
	t.Cleanup(func() { data.SetSettings(nil) })

	p, err := LoadProtocol(path)
	require.NoError(t, err)
	assert.EqualValues(t, 7, p.Governance.MinQuorum, "settings table wins over the file")
	assert.EqualValues(t, 67, p.Governance.SupermajorityPercent)
	assert.EqualValues(t, 3, p.Governance.CoreConcernThreshold, "unset keys keep defaults")
	assert.Equal(t, 48*time.Hour, p.Cooldown)
}

func TestLoadProtocolRejectsBadInput(t *testing.T) {
	data.SetSettings(nil)

	_, err := LoadProtocol(writeParams(t, `supermajority_percent = 101`))
	assert.Error(t, err)

	_, err = LoadProtocol(writeParams(t, `cooldown_duration = "soon"`))
	assert.Error(t, err)

	_, err = LoadProtocol(writeParams(t, `quorum = 3`))
	assert.ErrorContains(t, err, "unknown key")
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("ADMIN_ADDRESSES", "5Grw,5FHn")
	e, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "memory", e.StoreDriver)
	assert.Equal(t, []string{"5Grw", "5FHn"}, e.AdminAddresses)
	assert.Equal(t, "8080", e.Port)
	assert.Equal(t, 30*time.Second, e.MembershipCacheTTL)

	t.Setenv("STORE_DRIVER", "mysql")
	t.Setenv("MYSQL_DSN", "")
	_, err = LoadEnv()
	assert.Error(t, err)
}

func TestParseBoolDefault(t *testing.T) {
	assert.True(t, parseBoolDefault("Yes", false))
	assert.False(t, parseBoolDefault("off", true))
	assert.True(t, parseBoolDefault("maybe", true))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"https://a", "https://b"}, splitList(" https://a, ,https://b "))
	assert.Nil(t, splitList(""))
}
