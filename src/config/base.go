package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/stake-plus/commons/src/data"
)

// Env is the process environment. Values that operators may want to change
// without a restart live in the settings table instead and are read with
// GetSetting.
type Env struct {
	StoreDriver string `env:"STORE_DRIVER" envDefault:"mysql"`
	MySQLDSN    string `env:"MYSQL_DSN"`
	RedisURL    string `env:"REDIS_URL"`

	Port      string `env:"PORT" envDefault:"8080"`
	JWTSecret string `env:"JWT_SECRET"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	ParamsFile     string   `env:"COMMONS_PARAMS_FILE"`
	AdminAddresses []string `env:"ADMIN_ADDRESSES" envSeparator:","`
	SS58Prefix     uint16   `env:"SS58_PREFIX" envDefault:"42"`

	PayoutRPCURL string `env:"PAYOUT_RPC_URL"`
	PayoutSeed   string `env:"PAYOUT_SEED"`
	RemarkRPCURL string `env:"REMARK_RPC_URL"`

	DiscordToken     string `env:"DISCORD_TOKEN"`
	DiscordChannelID string `env:"DISCORD_CHANNEL_ID"`

	MembershipCacheTTL time.Duration `env:"MEMBERSHIP_CACHE_TTL" envDefault:"30s"`
	StreamMaxLen       int64         `env:"EVENTS_STREAM_MAXLEN" envDefault:"10000"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// LoadEnv parses the environment into Env.
func LoadEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	e.StoreDriver = strings.ToLower(strings.TrimSpace(e.StoreDriver))
	switch e.StoreDriver {
	case "mysql":
		if strings.TrimSpace(e.MySQLDSN) == "" {
			return Env{}, fmt.Errorf("MYSQL_DSN is required with STORE_DRIVER=mysql")
		}
	case "memory":
	default:
		return Env{}, fmt.Errorf("unknown STORE_DRIVER %q", e.StoreDriver)
	}
	return e, nil
}

// GetSetting retrieves a setting with env fallback
func GetSetting(name, envKey, defaultValue string) string {
	val := data.GetSetting(name)
	if val == "" && envKey != "" {
		val = os.Getenv(envKey)
	}
	if val == "" {
		val = defaultValue
	}
	return val
}

func getBoolSetting(settingKey, envKey string, defaultValue bool) bool {
	if v := data.GetSetting(settingKey); v != "" {
		return parseBoolDefault(v, defaultValue)
	}
	if envKey != "" {
		if v := os.Getenv(envKey); v != "" {
			return parseBoolDefault(v, defaultValue)
		}
	}
	return defaultValue
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
