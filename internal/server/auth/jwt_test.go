package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/timex"
)

type fakeBlacklist struct {
	mu        sync.Mutex
	revoked   map[string]time.Time
	lookupErr error
	calls     []string
}

func newFakeBlacklist() *fakeBlacklist {
	return &fakeBlacklist{revoked: map[string]time.Time{}}
}

func (f *fakeBlacklist) Blacklist(_ context.Context, jti string, exp time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, jti)
	f.revoked[jti] = exp
	return true, nil
}

func (f *fakeBlacklist) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return false, f.lookupErr
	}
	_, ok := f.revoked[jti]
	return ok, nil
}

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestSigner(t *testing.T, kr *KeyRing, clock timex.Clock, bl BlacklistStore) *Signer {
	t.Helper()
	if kr == nil {
		var err error
		kr, err = NewKeyRing(Key{ID: "k1", Secret: []byte("secret-one")})
		require.NoError(t, err)
	}
	s, err := NewSigner(Options{
		Keys:      kr,
		Issuer:    "sessionkeeper",
		Audience:  "clients",
		AccessTTL: 15 * time.Minute,
		Clock:     clock,
		Blacklist: bl,
	})
	require.NoError(t, err)
	return s
}

func TestNewSigner_Validation(t *testing.T) {
	kr, _ := NewKeyRing(Key{ID: "k1", Secret: []byte("s")})

	_, err := NewSigner(Options{Blacklist: newFakeBlacklist(), AccessTTL: time.Minute})
	assert.Error(t, err)
	_, err = NewSigner(Options{Keys: kr, AccessTTL: time.Minute})
	assert.Error(t, err)
	_, err = NewSigner(Options{Keys: kr, Blacklist: newFakeBlacklist()})
	assert.Error(t, err)
}

func TestCreateAndValidate_Success(t *testing.T) {
	clock := timex.NewManualClock(t0)
	s := newTestSigner(t, nil, clock, newFakeBlacklist())

	userID := uuid.New()
	at, err := s.CreateAccessToken(userID, "user@example.com", []string{"user", "admin"}, "dev-1", "ua/1", nil)
	require.NoError(t, err)

	assert.NotEmpty(t, at.Token)
	assert.NotEmpty(t, at.JTI)
	assert.NotEqual(t, uuid.Nil, at.SessionID)
	assert.Equal(t, userID, at.UserID)
	assert.Equal(t, t0, at.IssuedAt)
	assert.Equal(t, t0.Add(15*time.Minute), at.ExpiresAt)

	clock.Advance(time.Minute)
	claims, err := s.Validate(context.Background(), at.Token)
	require.NoError(t, err)

	gotUser, err := claims.UserID()
	require.NoError(t, err)
	gotSession, err := claims.Session()
	require.NoError(t, err)
	assert.Equal(t, userID, gotUser)
	assert.Equal(t, at.SessionID, gotSession)
	assert.Equal(t, at.JTI, claims.ID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, []string{"user", "admin"}, claims.Roles)
	assert.Equal(t, "dev-1", claims.DeviceID)
}

func TestCreateAccessToken_ReusesSessionAndDefaultsRoles(t *testing.T) {
	s := newTestSigner(t, nil, timex.NewManualClock(t0), newFakeBlacklist())

	sid := uuid.New()
	a, err := s.CreateAccessToken(uuid.New(), "", nil, "", "", &sid)
	require.NoError(t, err)
	b, err := s.CreateAccessToken(uuid.New(), "", nil, "", "", &sid)
	require.NoError(t, err)

	assert.Equal(t, sid, a.SessionID)
	assert.NotEqual(t, a.JTI, b.JTI)

	claims, err := s.Inspect(a.Token)
	require.NoError(t, err)
	assert.Equal(t, common.DefaultRoles, claims.Roles)

	nilSession := uuid.Nil
	c, err := s.CreateAccessToken(uuid.New(), "", nil, "", "", &nilSession)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, c.SessionID)
}

func TestValidate_ExpiryFollowsInjectedClock(t *testing.T) {
	clock := timex.NewManualClock(t0)
	s := newTestSigner(t, nil, clock, newFakeBlacklist())

	at, err := s.CreateAccessToken(uuid.New(), "", nil, "", "", nil)
	require.NoError(t, err)

	clock.Advance(15*time.Minute - time.Second)
	_, err = s.Validate(context.Background(), at.Token)
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = s.Validate(context.Background(), at.Token)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestValidate_RejectsBlacklistedJTI(t *testing.T) {
	bl := newFakeBlacklist()
	s := newTestSigner(t, nil, timex.NewManualClock(t0), bl)

	at, err := s.CreateAccessToken(uuid.New(), "", nil, "", "", nil)
	require.NoError(t, err)

	_, err = s.Validate(context.Background(), at.Token)
	require.NoError(t, err)

	ok, err := s.Blacklist(context.Background(), "Bearer "+at.Token)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, at.ExpiresAt.Equal(bl.revoked[at.JTI]), "blacklist entry uses the token's own expiry")

	_, err = s.Validate(context.Background(), at.Token)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestValidate_BlacklistLookupFailureFailsClosed(t *testing.T) {
	bl := newFakeBlacklist()
	s := newTestSigner(t, nil, timex.NewManualClock(t0), bl)

	at, err := s.CreateAccessToken(uuid.New(), "", nil, "", "", nil)
	require.NoError(t, err)

	bl.lookupErr = errors.New("redis down")
	_, err = s.Validate(context.Background(), at.Token)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestValidate_KeyHandling(t *testing.T) {
	clock := timex.NewManualClock(t0)
	old, err := NewKeyRing(Key{ID: "k0", Secret: []byte("old-secret")})
	require.NoError(t, err)
	rolled, err := NewKeyRing(Key{ID: "k1", Secret: []byte("new-secret")}, Key{ID: "k0", Secret: []byte("old-secret")})
	require.NoError(t, err)
	other, err := NewKeyRing(Key{ID: "k0", Secret: []byte("forged")})
	require.NoError(t, err)

	oldSigner := newTestSigner(t, old, clock, newFakeBlacklist())
	rolledSigner := newTestSigner(t, rolled, clock, newFakeBlacklist())
	forger := newTestSigner(t, other, clock, newFakeBlacklist())

	tok, err := oldSigner.CreateAccessToken(uuid.New(), "", nil, "", "", nil)
	require.NoError(t, err)

	t.Run("previous key still verifies during rollover", func(t *testing.T) {
		_, err := rolledSigner.Validate(context.Background(), tok.Token)
		assert.NoError(t, err)
	})

	t.Run("new tokens carry the new kid", func(t *testing.T) {
		fresh, err := rolledSigner.CreateAccessToken(uuid.New(), "", nil, "", "", nil)
		require.NoError(t, err)
		parsed, _, err := jwt.NewParser().ParseUnverified(fresh.Token, &Claims{})
		require.NoError(t, err)
		assert.Equal(t, "k1", parsed.Header["kid"])

		_, err = oldSigner.Validate(context.Background(), fresh.Token)
		assert.ErrorIs(t, err, common.ErrInvalidToken, "unknown kid")
	})

	t.Run("wrong secret for kid", func(t *testing.T) {
		forged, err := forger.CreateAccessToken(uuid.New(), "", nil, "", "", nil)
		require.NoError(t, err)
		_, err = oldSigner.Validate(context.Background(), forged.Token)
		assert.ErrorIs(t, err, common.ErrInvalidToken)
	})

	t.Run("missing kid", func(t *testing.T) {
		claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
			ID: "x", Issuer: "sessionkeeper", Audience: jwt.ClaimStrings{"clients"},
			ExpiresAt: jwt.NewNumericDate(t0.Add(time.Hour)),
		}, SessionID: uuid.NewString()}
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("old-secret"))
		require.NoError(t, err)
		_, err = oldSigner.Validate(context.Background(), raw)
		assert.ErrorIs(t, err, common.ErrInvalidToken)
	})

	t.Run("other algorithm", func(t *testing.T) {
		claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
			ID: "x", Issuer: "sessionkeeper", Audience: jwt.ClaimStrings{"clients"},
			ExpiresAt: jwt.NewNumericDate(t0.Add(time.Hour)),
		}, SessionID: uuid.NewString()}
		tok := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
		tok.Header["kid"] = "k0"
		raw, err := tok.SignedString([]byte("old-secret"))
		require.NoError(t, err)
		_, err = oldSigner.Validate(context.Background(), raw)
		assert.ErrorIs(t, err, common.ErrInvalidToken)
	})
}

func TestValidate_IssuerAndAudience(t *testing.T) {
	clock := timex.NewManualClock(t0)
	kr, _ := NewKeyRing(Key{ID: "k1", Secret: []byte("secret-one")})
	s := newTestSigner(t, kr, clock, newFakeBlacklist())

	other, err := NewSigner(Options{
		Keys: kr, Issuer: "someone-else", Audience: "clients",
		AccessTTL: time.Minute, Clock: clock, Blacklist: newFakeBlacklist(),
	})
	require.NoError(t, err)
	tok, err := other.CreateAccessToken(uuid.New(), "", nil, "", "", nil)
	require.NoError(t, err)
	_, err = s.Validate(context.Background(), tok.Token)
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	otherAud, err := NewSigner(Options{
		Keys: kr, Issuer: "sessionkeeper", Audience: "admins",
		AccessTTL: time.Minute, Clock: clock, Blacklist: newFakeBlacklist(),
	})
	require.NoError(t, err)
	tok, err = otherAud.CreateAccessToken(uuid.New(), "", nil, "", "", nil)
	require.NoError(t, err)
	_, err = s.Validate(context.Background(), tok.Token)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestValidate_MalformedRejectedBeforeParsing(t *testing.T) {
	s := newTestSigner(t, nil, timex.NewManualClock(t0), newFakeBlacklist())

	for _, tok := range []string{
		"",
		"abc",
		"a.b",
		"a..c",
		".b.c",
		"a.b.c.d",
		strings.Repeat("a", maxTokenLength) + ".b.c",
		"not.a.jwt",
	} {
		_, err := s.Validate(context.Background(), tok)
		assert.ErrorIs(t, err, common.ErrInvalidToken, tok)
	}
}

func TestInspect_IgnoresExpiryButNotSignature(t *testing.T) {
	clock := timex.NewManualClock(t0)
	s := newTestSigner(t, nil, clock, newFakeBlacklist())

	at, err := s.CreateAccessToken(uuid.New(), "", nil, "", "", nil)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	claims, err := s.Inspect("Bearer " + at.Token)
	require.NoError(t, err)
	assert.Equal(t, at.JTI, claims.ID)

	forgedKeys, _ := NewKeyRing(Key{ID: "k1", Secret: []byte("forged")})
	forged, err := newTestSigner(t, forgedKeys, clock, newFakeBlacklist()).CreateAccessToken(uuid.New(), "", nil, "", "", nil)
	require.NoError(t, err)
	_, err = s.Inspect(forged.Token)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestBlacklist_UnverifiedExtraction(t *testing.T) {
	bl := newFakeBlacklist()
	clock := timex.NewManualClock(t0)
	s := newTestSigner(t, nil, clock, bl)

	// signed under a key this signer does not know
	foreignKeys, _ := NewKeyRing(Key{ID: "zz", Secret: []byte("foreign")})
	foreign := newTestSigner(t, foreignKeys, clock, newFakeBlacklist())
	at, err := foreign.CreateAccessToken(uuid.New(), "", nil, "", "", nil)
	require.NoError(t, err)

	ok, err := s.Blacklist(context.Background(), "bearer  "+at.Token)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{at.JTI}, bl.calls)

	_, err = s.Blacklist(context.Background(), "Bearer garbage")
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	noJTI, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(t0.Add(time.Hour)),
	}).SignedString([]byte("k"))
	require.NoError(t, err)
	_, err = s.Blacklist(context.Background(), noJTI)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestStripBearer(t *testing.T) {
	assert.Equal(t, "abc", StripBearer("Bearer abc"))
	assert.Equal(t, "abc", StripBearer("  bearer   abc "))
	assert.Equal(t, "abc", StripBearer("abc"))
	assert.Equal(t, "Bear", StripBearer("Bear"))
}
