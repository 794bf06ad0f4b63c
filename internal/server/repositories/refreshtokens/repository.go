// Package refreshtokens declares the refresh-token store. Inserts report a
// typed outcome so that a token-hash collision is an explicit branch for the
// caller rather than an error to unwrap.
package refreshtokens

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
)

// OutcomeKind classifies the result of Insert.
type OutcomeKind int

const (
	// OutcomeOK means the row was stored.
	OutcomeOK OutcomeKind = iota
	// OutcomeConflict means the token hash already exists. Retrying with a
	// freshly generated token may succeed.
	OutcomeConflict
	// OutcomeFault is any other failure; Err carries the cause.
	OutcomeFault
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeConflict:
		return "conflict"
	case OutcomeFault:
		return "fault"
	default:
		return "unknown"
	}
}

// InsertOutcome is the result of Insert.
type InsertOutcome struct {
	Kind OutcomeKind
	Row  *models.RefreshToken
	Err  error
}

func OK(row *models.RefreshToken) InsertOutcome { return InsertOutcome{Kind: OutcomeOK, Row: row} }
func Conflict() InsertOutcome                   { return InsertOutcome{Kind: OutcomeConflict} }
func Fault(err error) InsertOutcome             { return InsertOutcome{Kind: OutcomeFault, Err: err} }

// Repository persists refresh-token rows. Revocations are idempotent: a
// revoke that matches no Active row affects zero rows and is not an error.
type Repository interface {
	Insert(ctx context.Context, row *models.RefreshToken) InsertOutcome
	// RevokeSession moves the Active row of (userID, sessionID) to Revoked.
	RevokeSession(ctx context.Context, userID, sessionID uuid.UUID, now time.Time) (int64, error)
	// RevokeByID moves one Active row to Revoked.
	RevokeByID(ctx context.Context, id uuid.UUID, now time.Time) (int64, error)
	// FindByHash returns common.ErrorNotFound when no row has the hash.
	FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	// ExpireStale moves Active rows past their absolute expiry to Expired.
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}
