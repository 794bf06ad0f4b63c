// Package users declares the identity store used by the session subsystem.
package users

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
)

// Repository reads credential records and persists lockout state.
// Lookups return common.ErrorNotFound when no record exists.
type Repository interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// SetLockoutUntil stores (or clears, with nil) the lockout deadline.
	SetLockoutUntil(ctx context.Context, id uuid.UUID, until *time.Time) error
	// Create is used by the seeding tool only.
	Create(ctx context.Context, user *models.User) (*models.User, error)
}
