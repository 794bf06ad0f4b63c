package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/dbx"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
)

// TokenHashConstraint is the unique index guarding token_hash.
const TokenHashConstraint = "refresh_tokens_token_hash_key"

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert stores row. A unique violation on token_hash is reported as
// OutcomeConflict; every other failure, including a violation of the
// one-active-row-per-session index, is OutcomeFault.
func (r *PostgresRepository) Insert(ctx context.Context, row *models.RefreshToken) InsertOutcome {
	query := `
		INSERT INTO refresh_tokens (id, user_id, session_id, token_hash, access_jti,
			expires_at, absolute_expires_at, status, device_id, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if row.ExpiresAt.After(row.AbsoluteExpiresAt) {
		return Fault(fmt.Errorf("rolling expiry %s after absolute expiry %s", row.ExpiresAt, row.AbsoluteExpiresAt))
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.Status == "" {
		row.Status = models.RefreshTokenActive
	}

	_, err := r.db.ExecContext(ctx, query,
		row.ID, row.UserID, row.SessionID, row.TokenHash, row.AccessJTI,
		row.ExpiresAt, row.AbsoluteExpiresAt, string(row.Status), row.DeviceID, row.UserAgent, row.CreatedAt,
	)
	if err != nil {
		if dbx.IsUniqueViolation(err, TokenHashConstraint) {
			return Conflict()
		}
		return Fault(fmt.Errorf("db error: %w", err))
	}
	return OK(row)
}

func (r *PostgresRepository) RevokeSession(ctx context.Context, userID, sessionID uuid.UUID, now time.Time) (int64, error) {
	query := `
		UPDATE refresh_tokens SET status = 'revoked', revoked_at = $3
		WHERE user_id = $1 AND session_id = $2 AND status = 'active'
	`
	res, err := r.db.ExecContext(ctx, query, userID, sessionID, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return dbx.RowsAffected(res), nil
}

func (r *PostgresRepository) RevokeByID(ctx context.Context, id uuid.UUID, now time.Time) (int64, error) {
	query := `
		UPDATE refresh_tokens SET status = 'revoked', revoked_at = $2
		WHERE id = $1 AND status = 'active'
	`
	res, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return dbx.RowsAffected(res), nil
}

// FindByHash returns the row for tokenHash, or common.ErrorNotFound.
func (r *PostgresRepository) FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, session_id, token_hash, access_jti, expires_at, absolute_expires_at,
			status, revoked_at, device_id, user_agent, created_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`
	var (
		t       models.RefreshToken
		status  string
		revoked sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&t.ID, &t.UserID, &t.SessionID, &t.TokenHash, &t.AccessJTI, &t.ExpiresAt, &t.AbsoluteExpiresAt,
		&status, &revoked, &t.DeviceID, &t.UserAgent, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	t.Status = models.RefreshTokenStatus(status)
	if revoked.Valid {
		v := revoked.Time
		t.RevokedAt = &v
	}
	return &t, nil
}

func (r *PostgresRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE refresh_tokens SET status = 'expired'
		WHERE status = 'active' AND absolute_expires_at <= $1
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return dbx.RowsAffected(res), nil
}
