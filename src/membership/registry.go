// Package membership is the commons' membership oracle: who may take part in
// governance and consent. Members self-register once; admins can deactivate.
package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/stake-plus/commons/src/ledger"
	"github.com/stake-plus/commons/src/shared/gov"
	"github.com/stake-plus/commons/src/store"
)

// Oracle answers whether a principal is an active member.
type Oracle interface {
	IsMember(ctx context.Context, principal string) (bool, error)
}

const cachePrefix = "member:"

// Registry is the store-backed Oracle.
type Registry struct {
	store  store.Store
	commit *ledger.Committer
	now    func() time.Time

	rdb      *redis.Client
	cacheTTL time.Duration
}

type Option func(*Registry)

// WithCache memoizes IsMember answers in redis for ttl.
func WithCache(rdb *redis.Client, ttl time.Duration) Option {
	return func(r *Registry) {
		r.rdb = rdb
		r.cacheTTL = ttl
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(st store.Store, commit *ledger.Committer, opts ...Option) *Registry {
	r := &Registry{store: st, commit: commit, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Registry) IsMember(ctx context.Context, principal string) (bool, error) {
	if strings.TrimSpace(principal) == "" {
		return false, nil
	}
	if r.rdb != nil {
		if v, err := r.rdb.Get(ctx, cachePrefix+principal).Result(); err == nil {
			return v == "1", nil
		}
	}

	m, err := r.store.GetMember(ctx, principal)
	if errors.Is(err, gov.ErrNotFound) {
		r.remember(ctx, principal, false)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup member: %w", err)
	}
	r.remember(ctx, principal, m.Active)
	return m.Active, nil
}

func (r *Registry) remember(ctx context.Context, principal string, active bool) {
	if r.rdb == nil {
		return
	}
	v := "0"
	if active {
		v = "1"
	}
	if err := r.rdb.Set(ctx, cachePrefix+principal, v, r.cacheTTL).Err(); err != nil {
		log.Debug().Err(err).Str("addr", principal).Msg("membership: cache write failed")
	}
}

func (r *Registry) forget(ctx context.Context, principal string) {
	if r.rdb == nil {
		return
	}
	if err := r.rdb.Del(ctx, cachePrefix+principal).Err(); err != nil {
		log.Warn().Err(err).Str("addr", principal).Msg("membership: cache invalidation failed")
	}
}

// IsAdmin reports whether principal is an active admin member.
func (r *Registry) IsAdmin(ctx context.Context, principal string) (bool, error) {
	m, err := r.store.GetMember(ctx, principal)
	if errors.Is(err, gov.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m.Active && m.IsAdmin, nil
}

func (r *Registry) Get(ctx context.Context, principal string) (*gov.Member, error) {
	return r.store.GetMember(ctx, principal)
}

// Total counts active members.
func (r *Registry) Total(ctx context.Context) (int64, error) {
	return r.store.CountMembers(ctx, true)
}

// Join registers principal. A principal joins at most once; a deactivated
// member cannot rejoin on its own.
func (r *Registry) Join(ctx context.Context, principal, discord string) (*gov.Member, error) {
	if strings.TrimSpace(principal) == "" {
		return nil, fmt.Errorf("%w: empty principal", gov.ErrInvalidPayload)
	}
	var out gov.Member
	_, err := r.commit.Commit(ctx, func(tx store.Tx) ([]ledger.Event, error) {
		now := r.now().UTC()
		m := gov.Member{Address: principal, Discord: discord, Active: true, JoinedAt: now}
		if err := tx.CreateMember(ctx, &m); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return nil, fmt.Errorf("%w: %s", gov.ErrAlreadyMember, principal)
			}
			return nil, fmt.Errorf("create member: %w", err)
		}
		out = m
		return []ledger.Event{{
			Kind: "MemberJoined", EntityType: ledger.EntityMember, EntityID: principal,
			Actor: principal, At: now,
			Data: map[string]any{"member": principal, "joinedAt": now.Unix()},
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	r.forget(ctx, principal)
	return &out, nil
}

// Deactivate removes principal's standing. Only admins may call it.
func (r *Registry) Deactivate(ctx context.Context, admin, principal string) error {
	_, err := r.commit.Commit(ctx, func(tx store.Tx) ([]ledger.Event, error) {
		caller, err := tx.GetMember(ctx, admin)
		if err != nil || !caller.Active || !caller.IsAdmin {
			return nil, gov.ErrNotAdmin
		}
		m, err := tx.GetMember(ctx, principal)
		if err != nil {
			return nil, err
		}
		if !m.Active {
			return nil, fmt.Errorf("%w: member %s already inactive", gov.ErrWrongState, principal)
		}
		m.Active = false
		if err := tx.UpdateMember(ctx, m); err != nil {
			return nil, fmt.Errorf("update member: %w", err)
		}
		return []ledger.Event{{
			Kind: "MemberDeactivated", EntityType: ledger.EntityMember, EntityID: principal,
			Actor: admin, At: r.now().UTC(),
			Data: map[string]any{"member": principal},
		}}, nil
	})
	if err != nil {
		return err
	}
	r.forget(ctx, principal)
	return nil
}

// EnsureAdmin registers principal if needed and grants it admin rights.
// Used at startup to seed the first admins.
func (r *Registry) EnsureAdmin(ctx context.Context, principal string) error {
	_, err := r.commit.Commit(ctx, func(tx store.Tx) ([]ledger.Event, error) {
		now := r.now().UTC()
		m, err := tx.GetMember(ctx, principal)
		switch {
		case errors.Is(err, gov.ErrNotFound):
			m = &gov.Member{Address: principal, Active: true, IsAdmin: true, JoinedAt: now}
			if err := tx.CreateMember(ctx, m); err != nil {
				return nil, fmt.Errorf("create admin: %w", err)
			}
		case err != nil:
			return nil, err
		case m.IsAdmin && m.Active:
			return nil, nil
		default:
			m.IsAdmin = true
			m.Active = true
			if err := tx.UpdateMember(ctx, m); err != nil {
				return nil, fmt.Errorf("promote admin: %w", err)
			}
		}
		return []ledger.Event{{
			Kind: "AdminGranted", EntityType: ledger.EntityMember, EntityID: principal,
			Actor: principal, At: now,
			Data: map[string]any{"member": principal},
		}}, nil
	})
	if err != nil {
		return err
	}
	r.forget(ctx, principal)
	return nil
}

// Static is a fixed member set, handy for tools and tests.
type Static map[string]bool

func (s Static) IsMember(_ context.Context, principal string) (bool, error) {
	return s[principal], nil
}
