package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshTokenStatus is the lifecycle state of a refresh-token row.
type RefreshTokenStatus string

const (
	RefreshTokenActive  RefreshTokenStatus = "active"
	RefreshTokenRevoked RefreshTokenStatus = "revoked"
	RefreshTokenExpired RefreshTokenStatus = "expired"
)

// RefreshToken is the durable row behind a refresh token. Only the hash of
// the plaintext is stored. ExpiresAt is the rolling expiry and never exceeds
// AbsoluteExpiresAt.
type RefreshToken struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	SessionID         uuid.UUID
	TokenHash         string
	AccessJTI         string
	ExpiresAt         time.Time
	AbsoluteExpiresAt time.Time
	Status            RefreshTokenStatus
	RevokedAt         *time.Time
	DeviceID          string
	UserAgent         string
	CreatedAt         time.Time
}

// UsableAt reports whether the row can still be exchanged at now.
func (t *RefreshToken) UsableAt(now time.Time) bool {
	return t.Status == RefreshTokenActive && now.Before(t.ExpiresAt) && now.Before(t.AbsoluteExpiresAt)
}
