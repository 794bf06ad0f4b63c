package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/dbx"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
)

const selectUser = `
		SELECT id, email, password_hash, email_confirmed, lockout_until, roles, created_at
		FROM users
	`

// PostgresRepository implements Repository over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := selectUser + `WHERE lower(email) = lower($1)`
	return r.scanOne(r.db.QueryRowContext(ctx, query, strings.TrimSpace(email)))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := selectUser + `WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) SetLockoutUntil(ctx context.Context, id uuid.UUID, until *time.Time) error {
	query := `
		UPDATE users SET lockout_until = $2
		WHERE id = $1
	`
	var v sql.NullTime
	if until != nil {
		v = sql.NullTime{Time: *until, Valid: true}
	}

	res, err := r.db.ExecContext(ctx, query, id, v)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if dbx.RowsAffected(res) == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (id, email, password_hash, email_confirmed, roles)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	roles := user.Roles
	if len(roles) == 0 {
		roles = common.DefaultRoles
	}

	err := r.db.QueryRowContext(ctx, query,
		user.ID, strings.TrimSpace(user.Email), user.PasswordHash, user.EmailConfirmed, strings.Join(roles, ","),
	).Scan(&user.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, "") {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	user.Roles = roles
	return user, nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.User, error) {
	var (
		u       models.User
		lockout sql.NullTime
		roles   string
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.EmailConfirmed, &lockout, &roles, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if lockout.Valid {
		t := lockout.Time
		u.LockoutUntil = &t
	}
	u.Roles = splitRoles(roles)
	return &u, nil
}

func splitRoles(s string) []string {
	var out []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), common.DefaultRoles...)
	}
	return out
}
