package config

import (
	"strconv"
	"strings"
	"time"
)

// APIConfig configures the HTTP surface.
type APIConfig struct {
	Port            string
	JWTSecret       string
	JWTTTL          time.Duration
	CORSOrigins     []string
	WritesPerMinute int
	WriteBurst      int
	ShutdownTimeout time.Duration
}

func LoadAPIConfig(e Env) APIConfig {
	ttlHours, _ := strconv.Atoi(GetSetting("jwt_ttl_hours", "JWT_TTL_HOURS", "24"))
	if ttlHours <= 0 {
		ttlHours = 24
	}
	perMinute, _ := strconv.Atoi(GetSetting("writes_per_minute", "WRITES_PER_MINUTE", "30"))
	burst, _ := strconv.Atoi(GetSetting("write_burst", "WRITE_BURST", "10"))

	return APIConfig{
		Port:            e.Port,
		JWTSecret:       GetSetting("jwt_secret", "JWT_SECRET", e.JWTSecret),
		JWTTTL:          time.Duration(ttlHours) * time.Hour,
		CORSOrigins:     splitList(GetSetting("cors_origins", "CORS_ORIGINS", "*")),
		WritesPerMinute: perMinute,
		WriteBurst:      burst,
		ShutdownTimeout: e.ShutdownTimeout,
	}
}

// ChainConfig configures the Substrate collaborators.
type ChainConfig struct {
	SS58Prefix    uint16
	PayoutRPCURL  string
	PayoutSeed    string
	RemarkRPCURL  string
	PayoutEnabled bool
	RemarkEnabled bool
}

func LoadChainConfig(e Env) ChainConfig {
	payoutURL := GetSetting("payout_rpc_url", "PAYOUT_RPC_URL", e.PayoutRPCURL)
	remarkURL := GetSetting("remark_rpc_url", "REMARK_RPC_URL", e.RemarkRPCURL)
	return ChainConfig{
		SS58Prefix:    e.SS58Prefix,
		PayoutRPCURL:  payoutURL,
		PayoutSeed:    e.PayoutSeed,
		RemarkRPCURL:  remarkURL,
		PayoutEnabled: getBoolSetting("enable_chain_payouts", "ENABLE_CHAIN_PAYOUTS", payoutURL != "" && e.PayoutSeed != ""),
		RemarkEnabled: getBoolSetting("enable_remark_watcher", "ENABLE_REMARK_WATCHER", remarkURL != ""),
	}
}

// DiscordConfig configures the event notifier.
type DiscordConfig struct {
	Token     string
	ChannelID string
	// PublicURL is the web front end announcements link to.
	PublicURL string
	Enabled   bool
}

func LoadDiscordConfig(e Env) DiscordConfig {
	token := GetSetting("discord_token", "DISCORD_TOKEN", e.DiscordToken)
	channel := GetSetting("discord_channel_id", "DISCORD_CHANNEL_ID", e.DiscordChannelID)
	return DiscordConfig{
		Token:     token,
		ChannelID: channel,
		PublicURL: GetSetting("public_url", "PUBLIC_URL", ""),
		Enabled:   getBoolSetting("enable_discord_notifier", "ENABLE_DISCORD_NOTIFIER", token != "" && channel != ""),
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
