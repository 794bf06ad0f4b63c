package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
	"github.com/dmitrijs2005/sessionkeeper/internal/timex"
)

type fakePurger struct {
	n     int64
	err   error
	calls int
}

func (p *fakePurger) PurgeExpired(context.Context) (int64, error) {
	p.calls++
	return p.n, p.err
}

func newSweeperTest(t *testing.T, purger Purger, interval time.Duration) (*Sweeper, *fakeTokens, *timex.ManualClock) {
	t.Helper()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	tokens := newFakeTokens()
	clock := timex.NewManualClock(t0)
	rm := &fakeRepoManager{users: &fakeUsers{}, attempts: &fakeAttempts{}, tokens: tokens}
	return NewSweeper(db, rm, purger, clock, nil, interval), tokens, clock
}

func TestSweepOnce_ExpiresPastAbsolute(t *testing.T) {
	purger := &fakePurger{n: 4}
	s, tokens, clock := newSweeperTest(t, purger, time.Minute)

	old := &models.RefreshToken{ID: uuid.New(), TokenHash: "old", Status: models.RefreshTokenActive,
		ExpiresAt: t0.Add(time.Hour), AbsoluteExpiresAt: t0.Add(time.Hour)}
	fresh := &models.RefreshToken{ID: uuid.New(), TokenHash: "fresh", Status: models.RefreshTokenActive,
		ExpiresAt: t0.Add(48 * time.Hour), AbsoluteExpiresAt: t0.Add(48 * time.Hour)}
	tokens.byHash[old.TokenHash] = old
	tokens.byHash[fresh.TokenHash] = fresh

	clock.Advance(2 * time.Hour)
	res, err := s.SweepOnce(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 1, res.ExpiredRefreshTokens)
	assert.EqualValues(t, 4, res.PurgedBlacklist)
	assert.Equal(t, models.RefreshTokenExpired, old.Status)
	assert.Equal(t, models.RefreshTokenActive, fresh.Status)
}

func TestSweepOnce_PurgeErrorStillExpires(t *testing.T) {
	purger := &fakePurger{err: errBoom}
	s, tokens, clock := newSweeperTest(t, purger, time.Minute)
	tokens.byHash["x"] = &models.RefreshToken{ID: uuid.New(), TokenHash: "x", Status: models.RefreshTokenActive,
		ExpiresAt: t0, AbsoluteExpiresAt: t0}

	clock.Advance(time.Second)
	res, err := s.SweepOnce(context.Background())
	assert.ErrorIs(t, err, errBoom)
	assert.EqualValues(t, 1, res.ExpiredRefreshTokens)
}

type countingPurger struct{ calls atomic.Int64 }

func (p *countingPurger) PurgeExpired(context.Context) (int64, error) {
	p.calls.Add(1)
	return 0, nil
}

func TestSweeper_RunTicksUntilCancel(t *testing.T) {
	purger := &countingPurger{}
	s, _, _ := newSweeperTest(t, purger, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return purger.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeper_DisabledReturnsImmediately(t *testing.T) {
	s, _, _ := newSweeperTest(t, nil, 0)
	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled sweeper kept running")
	}
}
