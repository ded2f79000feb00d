// Package events publishes committed ledger entries on a redis stream and
// lets background consumers tail it.
package events

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stake-plus/commons/src/shared/gov"
)

// DefaultStream is the stream committed transitions are published to.
const DefaultStream = "commons.events"

// Message is one stream record.
type Message struct {
	StreamID   string
	Seq        uint64
	Kind       string
	EntityType string
	EntityID   string
	Actor      string
	Payload    string
	Hash       string
}

// RedisPublisher implements ledger.Publisher with XADD.
type RedisPublisher struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

func NewRedisPublisher(rdb *redis.Client, stream string, maxLen int64) *RedisPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisPublisher{rdb: rdb, stream: stream, maxLen: maxLen}
}

func (p *RedisPublisher) Publish(ctx context.Context, entries []gov.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	pipe := p.rdb.Pipeline()
	for _, e := range entries {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: p.stream,
			MaxLen: p.maxLen,
			Approx: p.maxLen > 0,
			Values: map[string]interface{}{
				"seq":        strconv.FormatUint(e.Seq, 10),
				"kind":       e.Kind,
				"entityType": e.EntityType,
				"entityId":   e.EntityID,
				"actor":      e.Actor,
				"payload":    e.Payload,
				"hash":       e.Hash,
			},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

// Reader tails the stream from a starting id ("$" for new entries only).
type Reader struct {
	rdb    *redis.Client
	stream string
	lastID string
	block  time.Duration
}

func NewReader(rdb *redis.Client, stream, fromID string) *Reader {
	if stream == "" {
		stream = DefaultStream
	}
	if fromID == "" {
		fromID = "$"
	}
	return &Reader{rdb: rdb, stream: stream, lastID: fromID, block: 5 * time.Second}
}

// Next blocks up to the reader's block interval. It returns no messages and
// no error when nothing arrived.
func (r *Reader) Next(ctx context.Context, count int64) ([]Message, error) {
	res, err := r.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{r.stream, r.lastID},
		Count:   count,
		Block:   r.block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xread %s: %w", r.stream, err)
	}

	var out []Message
	for _, s := range res {
		for _, m := range s.Messages {
			out = append(out, decode(m))
			r.lastID = m.ID
		}
	}
	return out, nil
}

func decode(m redis.XMessage) Message {
	str := func(k string) string {
		if v, ok := m.Values[k].(string); ok {
			return v
		}
		return ""
	}
	seq, _ := strconv.ParseUint(str("seq"), 10, 64)
	return Message{
		StreamID:   m.ID,
		Seq:        seq,
		Kind:       str("kind"),
		EntityType: str("entityType"),
		EntityID:   str("entityId"),
		Actor:      str("actor"),
		Payload:    str("payload"),
		Hash:       str("hash"),
	}
}
