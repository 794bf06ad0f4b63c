package main

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/flagx"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/users"
)

const minPasswordLength = 12

var (
	errSeedingDisabled = errors.New("seeding is disabled; set SK_ALLOW_SEED_LOGIN=true")
	errWeakPassword    = fmt.Errorf("password must be at least %d characters", minPasswordLength)
)

// hasher is the part of password.Hasher used here.
type hasher interface {
	Hash(plain string) (string, error)
}

type seedRequest struct {
	Email     string
	Password  []byte
	Roles     string
	Confirmed bool
}

// seedUser validates the request and stores a new account with an argon2id
// hash. The plaintext is wiped before returning.
func seedUser(ctx context.Context, repo users.Repository, h hasher, req seedRequest) (*models.User, error) {
	defer common.WipeByteArray(req.Password)

	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil || addr.Address != strings.TrimSpace(req.Email) {
		return nil, fmt.Errorf("invalid email %q", req.Email)
	}
	if len(req.Password) < minPasswordLength {
		return nil, errWeakPassword
	}

	hash, err := h.Hash(string(req.Password))
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	roles := flagx.SplitList(req.Roles)
	if len(roles) == 0 {
		roles = append(roles, common.DefaultRoles...)
	}

	u, err := repo.Create(ctx, &models.User{
		ID:             uuid.New(),
		Email:          strings.ToLower(addr.Address),
		PasswordHash:   hash,
		EmailConfirmed: req.Confirmed,
		Roles:          roles,
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, fmt.Errorf("user %s already exists", addr.Address)
		}
		return nil, err
	}
	return u, nil
}
