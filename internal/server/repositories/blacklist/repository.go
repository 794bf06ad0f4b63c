// Package blacklist is the durable tier of the access-token blacklist.
package blacklist

import (
	"context"
	"time"
)

type Repository interface {
	// Add records jti until expiresAt. Adding an existing jti is a no-op.
	Add(ctx context.Context, jti string, expiresAt time.Time) error
	// Exists reports whether jti is recorded with expires_at after now.
	Exists(ctx context.Context, jti string, now time.Time) (bool, error)
	// PurgeExpired drops rows whose expiry is at or before now.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
