package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/password"
)

type fakeUsers struct {
	created   *models.User
	createErr error
}

func (f *fakeUsers) GetByEmail(context.Context, string) (*models.User, error) {
	return nil, common.ErrorNotFound
}
func (f *fakeUsers) GetByID(context.Context, uuid.UUID) (*models.User, error) {
	return nil, common.ErrorNotFound
}
func (f *fakeUsers) SetLockoutUntil(context.Context, uuid.UUID, *time.Time) error { return nil }
func (f *fakeUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = u
	return u, nil
}

type failingHasher struct{}

func (failingHasher) Hash(string) (string, error) { return "", errors.New("no entropy") }

var fastParams = password.Params{Memory: 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func TestSeedUser_CreatesVerifiableAccount(t *testing.T) {
	repo := &fakeUsers{}
	h := password.NewHasher(fastParams)
	pw := []byte("correct horse battery")

	u, err := seedUser(context.Background(), repo, h, seedRequest{
		Email: "Admin@Example.com", Password: pw, Roles: "admin, user", Confirmed: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "admin@example.com", u.Email)
	assert.Equal(t, []string{"admin", "user"}, u.Roles)
	assert.True(t, u.EmailConfirmed)
	assert.NotEqual(t, uuid.Nil, u.ID)
	assert.True(t, strings.HasPrefix(u.PasswordHash, "$argon2id$"))

	ok, err := h.Verify("correct horse battery", repo.created.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, make([]byte, len(pw)), pw, "plaintext is wiped")
}

func TestSeedUser_DefaultRoles(t *testing.T) {
	repo := &fakeUsers{}
	u, err := seedUser(context.Background(), repo, password.NewHasher(fastParams), seedRequest{
		Email: "a@example.com", Password: []byte("long enough password"),
	})
	require.NoError(t, err)
	assert.Equal(t, common.DefaultRoles, u.Roles)
	assert.False(t, u.EmailConfirmed)
}

func TestSeedUser_Rejections(t *testing.T) {
	h := password.NewHasher(fastParams)

	cases := []struct {
		name string
		repo *fakeUsers
		h    hasher
		req  seedRequest
		want string
	}{
		{"bad email", &fakeUsers{}, h, seedRequest{Email: "not-an-email", Password: []byte("long enough password")}, "invalid email"},
		{"display name", &fakeUsers{}, h, seedRequest{Email: "Bob <bob@example.com>", Password: []byte("long enough password")}, "invalid email"},
		{"short password", &fakeUsers{}, h, seedRequest{Email: "a@example.com", Password: []byte("short")}, "at least"},
		{"hash failure", &fakeUsers{}, failingHasher{}, seedRequest{Email: "a@example.com", Password: []byte("long enough password")}, "hash password"},
		{"duplicate", &fakeUsers{createErr: common.ErrorAlreadyExists}, h, seedRequest{Email: "a@example.com", Password: []byte("long enough password")}, "already exists"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := seedUser(context.Background(), tc.repo, tc.h, tc.req)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
			assert.Nil(t, tc.repo.created)
		})
	}
}

func TestGetPassword_FromPipe(t *testing.T) {
	orig := isTerminal
	isTerminal = func(int) bool { return false }
	defer func() { isTerminal = orig }()

	var out bytes.Buffer
	pw, err := getPassword(0, bufio.NewReader(strings.NewReader("s3cret-value\r\n")), "Password: ", &out)
	require.NoError(t, err)
	assert.Equal(t, "s3cret-value", string(pw))
	assert.Equal(t, "Password: ", out.String())
}

func TestGetPassword_FromTerminal(t *testing.T) {
	origTerm, origRead := isTerminal, readPassword
	isTerminal = func(int) bool { return true }
	readPassword = func(int) ([]byte, error) { return []byte("typed"), nil }
	defer func() { isTerminal, readPassword = origTerm, origRead }()

	var out bytes.Buffer
	pw, err := getPassword(0, bufio.NewReader(strings.NewReader("")), "Password: ", &out)
	require.NoError(t, err)
	assert.Equal(t, "typed", string(pw))
	assert.Equal(t, "Password: \n", out.String())
}

func TestGetPassword_EmptyPipe(t *testing.T) {
	orig := isTerminal
	isTerminal = func(int) bool { return false }
	defer func() { isTerminal = orig }()

	_, err := getPassword(0, bufio.NewReader(strings.NewReader("")), "Password: ", &bytes.Buffer{})
	assert.Error(t, err)
}
