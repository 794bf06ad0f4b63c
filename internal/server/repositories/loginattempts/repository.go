// Package loginattempts stores failed login attempts used to compute the
// rolling failure count for lockout.
package loginattempts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, attempt *models.LoginAttempt) error
	// CountSince counts attempts for email in [from, to).
	CountSince(ctx context.Context, email string, from, to time.Time) (int, error)
	// DeleteByEmail removes all attempts for email. Zero rows is not an error.
	DeleteByEmail(ctx context.Context, email string) (int64, error)
}
