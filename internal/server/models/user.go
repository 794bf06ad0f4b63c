// Package models defines server-side data models persisted in the database.
package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the credential record owned by the identity store. The session
// subsystem only ever writes LockoutUntil.
type User struct {
	ID             uuid.UUID
	Email          string
	PasswordHash   string
	EmailConfirmed bool
	LockoutUntil   *time.Time
	Roles          []string
	CreatedAt      time.Time
}

// IsLockedAt reports whether the account is locked at now.
func (u *User) IsLockedAt(now time.Time) bool {
	return u.LockoutUntil != nil && u.LockoutUntil.After(now)
}
