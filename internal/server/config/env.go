package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dmitrijs2005/sessionkeeper/internal/flagx"
)

// EnvPrefix prefixes every environment variable read by the server.
const EnvPrefix = "SK_"

// parseEnv loads an optional .env file (existing variables win) and then
// overlays SK_* variables onto config. A malformed value panics, the same
// as a malformed flag or JSON file.
func parseEnv(config *Config) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(fmt.Errorf("load .env: %w", err))
	}
	if err := applyEnv(config, os.LookupEnv); err != nil {
		panic(err)
	}
}

type lookupFunc func(key string) (string, bool)

func applyEnv(config *Config, lookup lookupFunc) error {
	e := envReader{lookup: lookup}

	e.str("HTTP_ADDR", &config.HTTPAddr)
	e.str("GRPC_ADDR", &config.GRPCAddr)
	e.str("DATABASE_DSN", &config.DatabaseDSN)
	e.str("REDIS_ADDR", &config.RedisAddr)
	e.str("REDIS_PASSWORD", &config.RedisPassword)
	e.int("REDIS_DB", &config.RedisDB)
	e.str("BLACKLIST_MODE", &config.BlacklistMode)

	e.str("SIGNING_KEY_ID", &config.SigningKeyID)
	e.str("SIGNING_SECRET", &config.SigningSecret)
	e.list("VERIFICATION_KEYS", &config.VerificationKeys)
	e.str("ISSUER", &config.Issuer)
	e.str("AUDIENCE", &config.Audience)

	e.int("MAX_ATTEMPTS", &config.MaxAttempts)
	e.units("WINDOW_MINUTES", time.Minute, &config.Window)
	e.units("LOCKOUT_MINUTES", time.Minute, &config.LockoutDuration)
	e.units("ACCESS_TOKEN_EXPIRY_MINUTES", time.Minute, &config.AccessTokenTTL)
	e.units("REFRESH_TOKEN_EXPIRY_DAYS_ROLLING", day, &config.RefreshRollingTTL)
	e.units("REFRESH_TOKEN_EXPIRY_DAYS_ABSOLUTE", day, &config.RefreshAbsoluteTTL)
	e.str("COOKIE_NAME", &config.RefreshTokenCookieName)
	e.str("COOKIE_DOMAIN", &config.CookieDomain)
	e.bool("COOKIE_SECURE", &config.CookieSecure)

	e.str("CAPTCHA_SECRET", &config.CaptchaSecret)
	e.str("CAPTCHA_VERIFY_URL", &config.CaptchaVerifyURL)
	e.bool("CAPTCHA_BYPASS_ENABLED", &config.CaptchaBypassEnabled)
	e.list("CAPTCHA_BYPASS_EMAILS", &config.CaptchaBypassEmails)
	e.bool("ALLOW_SEED_LOGIN", &config.AllowSeedLogin)

	e.duration("SWEEP_INTERVAL", &config.SweepInterval)
	e.str("LOG_LEVEL", &config.LogLevel)

	return errors.Join(e.errs...)
}

type envReader struct {
	lookup lookupFunc
	errs   []error
}

func (e *envReader) get(name string) (string, bool) {
	v, ok := e.lookup(EnvPrefix + name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) fail(name, v string, err error) {
	e.errs = append(e.errs, fmt.Errorf("env %s%s=%q: %w", EnvPrefix, name, v, err))
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e *envReader) list(name string, dst *[]string) {
	if v, ok := e.get(name); ok {
		*dst = flagx.SplitList(v)
	}
}

func (e *envReader) int(name string, dst *int) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(name, v, err)
		return
	}
	*dst = n
}

func (e *envReader) units(name string, unit time.Duration, dst *time.Duration) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(name, v, err)
		return
	}
	*dst = time.Duration(n) * unit
}

func (e *envReader) bool(name string, dst *bool) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(name, v, err)
		return
	}
	*dst = b
}

func (e *envReader) duration(name string, dst *time.Duration) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(name, v, err)
		return
	}
	*dst = d
}
