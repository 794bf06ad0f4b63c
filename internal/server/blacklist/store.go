// Package blacklist records access-token ids revoked before their natural
// expiry. The TwoTier store keeps a fast cache and a durable table; either
// tier reporting a jti is authoritative.
package blacklist

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/timex"
)

// Store is the blacklist contract.
type Store interface {
	// Blacklist records jti until expiresAt. It returns false, with no
	// writes, when expiresAt is not in the future.
	Blacklist(ctx context.Context, jti string, expiresAt time.Time) (bool, error)
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
	// PurgeExpired drops durable entries that can no longer matter.
	PurgeExpired(ctx context.Context) (int64, error)
}

// Cache is the fast tier. Entries expire on their own after ttl.
type Cache interface {
	Set(ctx context.Context, jti string, ttl time.Duration) error
	Exists(ctx context.Context, jti string) (bool, error)
}

// Durable is the tier of record, consulted on every cache miss.
type Durable interface {
	Add(ctx context.Context, jti string, expiresAt time.Time) error
	Exists(ctx context.Context, jti string, now time.Time) (bool, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// TwoTier writes the cache then the durable row, and reads cache first.
type TwoTier struct {
	cache   Cache
	durable Durable
	clock   timex.Clock
	log     logging.Logger
}

func NewTwoTier(cache Cache, durable Durable, clock timex.Clock, log logging.Logger) *TwoTier {
	if clock == nil {
		clock = timex.SystemClock{}
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &TwoTier{cache: cache, durable: durable, clock: clock, log: log}
}

// Blacklist writes both tiers in sequence. One failed tier leaves the entry
// recorded in the other and is only logged; both failing is an error.
func (s *TwoTier) Blacklist(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(s.clock.Now())
	if ttl <= 0 {
		return false, nil
	}

	cacheErr := s.cache.Set(ctx, jti, ttl)
	if cacheErr != nil {
		s.log.Warn(ctx, "blacklist cache write failed", "jti", jti, "error", cacheErr)
	}

	durableErr := s.durable.Add(ctx, jti, expiresAt)
	if durableErr != nil {
		s.log.Warn(ctx, "blacklist durable write failed", "jti", jti, "error", durableErr)
	}

	if cacheErr != nil && durableErr != nil {
		return false, errors.Join(cacheErr, durableErr)
	}
	return true, nil
}

// IsBlacklisted treats a cache miss or cache error as "ask the durable tier".
func (s *TwoTier) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	hit, err := s.cache.Exists(ctx, jti)
	switch {
	case err != nil:
		s.log.Warn(ctx, "blacklist cache read failed", "jti", jti, "error", err)
	case hit:
		return true, nil
	}

	return s.durable.Exists(ctx, jti, s.clock.Now())
}

func (s *TwoTier) PurgeExpired(ctx context.Context) (int64, error) {
	return s.durable.PurgeExpired(ctx, s.clock.Now())
}

// Noop accepts every blacklist request and never reports a token revoked.
// It suits deployments that rely on short access-token lifetimes alone.
type Noop struct{}

func (Noop) Blacklist(context.Context, string, time.Time) (bool, error) { return true, nil }
func (Noop) IsBlacklisted(context.Context, string) (bool, error)        { return false, nil }
func (Noop) PurgeExpired(context.Context) (int64, error)                { return 0, nil }
