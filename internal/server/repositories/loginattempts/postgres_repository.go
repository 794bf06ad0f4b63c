package loginattempts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/dbx"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, a *models.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (email, ip_address, user_agent, attempted_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.ExecContext(ctx, query, normalize(a.Email), a.IPAddress, a.UserAgent, a.AttemptedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CountSince(ctx context.Context, email string, from, to time.Time) (int, error) {
	query := `
		SELECT count(*) FROM login_attempts
		WHERE lower(email) = $1 AND attempted_at >= $2 AND attempted_at < $3
	`
	var n int
	if err := r.db.QueryRowContext(ctx, query, normalize(email), from, to).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) DeleteByEmail(ctx context.Context, email string) (int64, error) {
	query := `
		DELETE FROM login_attempts
		WHERE lower(email) = $1
	`
	res, err := r.db.ExecContext(ctx, query, normalize(email))
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return dbx.RowsAffected(res), nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
