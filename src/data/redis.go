package data

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/stake-plus/commons/src/polkadot"
)

const (
	noncePrefix = "nonce:"
	nonceTTL    = 5 * time.Minute
)

func MustRedis(url string) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Fatal().Err(err).Msg("redis: parse url")
	}
	return redis.NewClient(opt)
}

var _ polkadot.NonceBook = (*NonceStore)(nil)

// NonceStore keeps short-lived login challenges keyed by address.
type NonceStore struct {
	rdb *redis.Client
}

func NewNonceStore(rdb *redis.Client) *NonceStore {
	return &NonceStore{rdb: rdb}
}

func (n *NonceStore) SetNonce(ctx context.Context, addr, nonce string) error {
	return n.rdb.Set(ctx, noncePrefix+addr, nonce, nonceTTL).Err()
}

// GetNonce returns "" when no challenge is pending for addr.
func (n *NonceStore) GetNonce(ctx context.Context, addr string) (string, error) {
	v, err := n.rdb.Get(ctx, noncePrefix+addr).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (n *NonceStore) ConfirmNonce(ctx context.Context, addr string) error {
	return n.rdb.Set(ctx, noncePrefix+addr, polkadot.Confirmed, nonceTTL).Err()
}

// consumeNonce deletes KEYS[1] only while it still holds ARGV[1].
var consumeNonce = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ConsumeNonce deletes the challenge if it is still nonce. Only one caller
// can consume a given challenge; a replaced or already used one reports
// false.
func (n *NonceStore) ConsumeNonce(ctx context.Context, addr, nonce string) (bool, error) {
	deleted, err := consumeNonce.Run(ctx, n.rdb, []string{noncePrefix + addr}, nonce).Int()
	if err != nil {
		return false, err
	}
	return deleted == 1, nil
}
