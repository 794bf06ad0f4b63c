// Package server wires the session subsystem together and runs it: the HTTP
// API, the gRPC health endpoint and the background sweeper, with graceful
// shutdown on SIGINT, SIGTERM or SIGQUIT.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/auth"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/blacklist"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/captcha"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/config"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/lockout"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/password"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/services"
	"github.com/dmitrijs2005/sessionkeeper/internal/timex"

	gs "github.com/dmitrijs2005/sessionkeeper/internal/server/grpc"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	rdb       *redis.Client
	sessions  *services.SessionService
	sweeper   *services.Sweeper
	blacklist blacklist.Store
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger := NewLogger(c.LogLevel)
	clock := timex.SystemClock{}

	db, err := sql.Open(repomanager.DriverName, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app := &App{config: c, logger: logger, db: db}

	switch c.BlacklistMode {
	case config.BlacklistNoop:
		logger.Warn(ctx, "token blacklist disabled, logout will not revoke access tokens early")
		app.blacklist = blacklist.Noop{}
	default:
		app.rdb = redis.NewClient(&redis.Options{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		})
		app.blacklist = blacklist.NewTwoTier(
			blacklist.NewRedisCache(app.rdb),
			rm.Blacklist(db),
			clock,
			logger.With("module", "blacklist"),
		)
	}

	keys, err := keyRing(c)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("signing keys: %w", err)
	}

	signer, err := auth.NewSigner(auth.Options{
		Keys:      keys,
		Issuer:    c.Issuer,
		Audience:  c.Audience,
		AccessTTL: c.AccessTokenTTL,
		Clock:     clock,
		Blacklist: app.blacklist,
		Logger:    logger.With("module", "signer"),
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("signer: %w", err)
	}

	var cv captcha.Verifier
	if c.CaptchaSecret == "" {
		logger.Warn(ctx, "captcha secret not set, only bypass and seeding logins can pass the bot check")
		cv = captcha.Static{Result: false}
	} else {
		cv = captcha.NewSiteVerify(c.CaptchaSecret, c.CaptchaVerifyURL, nil)
	}

	app.sessions = services.NewSessionService(db, rm, signer, password.NewHasher(password.DefaultParams), cv, clock, logger,
		services.SessionOptions{
			Lockout: lockout.Policy{
				MaxAttempts: c.MaxAttempts,
				Window:      c.Window,
				Duration:    c.LockoutDuration,
			},
			RefreshRollingTTL:  c.RefreshRollingTTL,
			RefreshAbsoluteTTL: c.RefreshAbsoluteTTL,
			AllowSeedLogin:     c.AllowSeedLogin,
			BypassEmail:        c.IsBypassEmail,
		})
	app.sweeper = services.NewSweeper(db, rm, app.blacklist, clock, logger, c.SweepInterval)

	return app, nil
}

// NewLogger builds the JSON logger at the named level; unknown names mean info.
func NewLogger(level string) logging.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return logging.NewJSONLogger(os.Stdout, lvl)
}

func keyRing(c *config.Config) (*auth.KeyRing, error) {
	extra, err := config.ParseVerificationKeys(c.VerificationKeys)
	if err != nil {
		return nil, err
	}
	verification := make([]auth.Key, 0, len(extra))
	for kid, secret := range extra {
		verification = append(verification, auth.Key{ID: kid, Secret: []byte(secret)})
	}
	return auth.NewKeyRing(auth.Key{ID: c.SigningKeyID, Secret: []byte(c.SigningSecret)}, verification...)
}

func (app *App) probes() []gs.Probe {
	probes := []gs.Probe{{Name: "postgres", Check: app.db.PingContext}}
	if app.rdb != nil {
		probes = append(probes, gs.Probe{Name: "redis", Check: func(ctx context.Context) error {
			return app.rdb.Ping(ctx).Err()
		}})
	}
	return probes
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	h := httpapi.NewHandler(app.sessions, httpapi.CookieOptions{
		Name:   app.config.RefreshTokenCookieName,
		Domain: app.config.CookieDomain,
		Secure: app.config.CookieSecure,
	}, timex.SystemClock{}, app.logger)

	s := httpapi.NewServer(app.config.HTTPAddr, h.Router(), app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.GRPCAddr, app.logger, 0, app.probes()...)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.sweeper.Run(ctx)
	}()

	wg.Wait()

	app.Close()
	app.logger.Info(context.Background(), "App stopped")
}

// Close releases the database and redis connections.
func (app *App) Close() {
	if app.rdb != nil {
		if err := app.rdb.Close(); err != nil {
			app.logger.Warn(context.Background(), "redis close", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Warn(context.Background(), "db close", "error", err)
		}
	}
}
