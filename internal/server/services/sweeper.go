package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sessionkeeper/internal/timex"
)

// sweepTimeout bounds a single sweep pass.
const sweepTimeout = 30 * time.Second

// Purger drops blacklist entries past their token expiry.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Sweeper periodically marks refresh rows past their absolute expiry as
// expired and purges stale blacklist entries.
type Sweeper struct {
	db        *sql.DB
	repos     repomanager.RepositoryManager
	blacklist Purger
	clock     timex.Clock
	log       logging.Logger
	interval  time.Duration
}

func NewSweeper(db *sql.DB, repos repomanager.RepositoryManager, blacklist Purger, clock timex.Clock, log logging.Logger, interval time.Duration) *Sweeper {
	if clock == nil {
		clock = timex.SystemClock{}
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Sweeper{
		db:        db,
		repos:     repos,
		blacklist: blacklist,
		clock:     clock,
		log:       log.With("component", "sweeper"),
		interval:  interval,
	}
}

// SweepResult reports how many rows one pass touched.
type SweepResult struct {
	ExpiredRefreshTokens int64
	PurgedBlacklist      int64
}

// SweepOnce runs one pass. A failure in one step does not skip the other;
// the first error is returned.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var (
		res      SweepResult
		firstErr error
	)

	n, err := s.repos.RefreshTokens(s.db).ExpireStale(ctx, s.clock.Now())
	if err != nil {
		s.log.Error(ctx, "expire refresh tokens", "error", err)
		firstErr = err
	}
	res.ExpiredRefreshTokens = n

	if s.blacklist != nil {
		n, err = s.blacklist.PurgeExpired(ctx)
		if err != nil {
			s.log.Error(ctx, "purge blacklist", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
		res.PurgedBlacklist = n
	}

	if res.ExpiredRefreshTokens > 0 || res.PurgedBlacklist > 0 {
		s.log.Info(ctx, "sweep done", "expired_refresh_tokens", res.ExpiredRefreshTokens, "purged_blacklist", res.PurgedBlacklist)
	}
	return res, firstErr
}

// Run sweeps every interval until ctx is done. A non-positive interval
// disables the sweeper.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.log.Info(ctx, "sweeper disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sctx, cancel := context.WithTimeout(ctx, sweepTimeout)
			_, _ = s.SweepOnce(sctx)
			cancel()
		case <-ctx.Done():
			s.log.Info(ctx, "sweeper stopped")
			return
		}
	}
}
