package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/flagx"
	"github.com/dmitrijs2005/sessionkeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Lockout and
// token lifetimes use whole minutes/days under their documented option
// names; SweepInterval accepts either "10m" or integer nanoseconds.
//
// Keys absent from the file keep their current value.
type JsonConfig struct {
	HTTPAddr      string `json:"httpAddr"`
	GRPCAddr      string `json:"grpcAddr"`
	DatabaseDSN   string `json:"databaseDsn"`
	RedisAddr     string `json:"redisAddr"`
	RedisPassword string `json:"redisPassword"`
	RedisDB       int    `json:"redisDb"`
	BlacklistMode string `json:"blacklistMode"`

	SigningKeyID     string   `json:"signingKeyId"`
	SigningSecret    string   `json:"signingSecret"`
	VerificationKeys []string `json:"verificationKeys"`
	Issuer           string   `json:"issuer"`
	Audience         string   `json:"audience"`

	MaxAttempts                    int    `json:"maxAttempts"`
	WindowMinutes                  int    `json:"windowMinutes"`
	LockoutMinutes                 int    `json:"lockoutMinutes"`
	AccessTokenExpiryMinutes       int    `json:"accessTokenExpiryMinutes"`
	RefreshTokenExpiryDaysRolling  int    `json:"refreshTokenExpiryDaysRolling"`
	RefreshTokenExpiryDaysAbsolute int    `json:"refreshTokenExpiryDaysAbsolute"`
	CookieName                     string `json:"cookieName"`
	CookieDomain                   string `json:"cookieDomain"`
	CookieSecure                   bool   `json:"cookieSecure"`

	CaptchaSecret        string   `json:"captchaSecret"`
	CaptchaVerifyURL     string   `json:"captchaVerifyUrl"`
	CaptchaBypassEnabled bool     `json:"captchaBypassEnabled"`
	CaptchaBypassEmails  []string `json:"captchaBypassEmails"`
	AllowSeedLogin       bool     `json:"allowSeedLogin"`

	SweepInterval timex.Duration `json:"sweepInterval"`
	LogLevel      string         `json:"logLevel"`
}

func toJson(c *Config) *JsonConfig {
	return &JsonConfig{
		HTTPAddr:      c.HTTPAddr,
		GRPCAddr:      c.GRPCAddr,
		DatabaseDSN:   c.DatabaseDSN,
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
		BlacklistMode: c.BlacklistMode,

		SigningKeyID:     c.SigningKeyID,
		SigningSecret:    c.SigningSecret,
		VerificationKeys: c.VerificationKeys,
		Issuer:           c.Issuer,
		Audience:         c.Audience,

		MaxAttempts:                    c.MaxAttempts,
		WindowMinutes:                  int(c.Window / time.Minute),
		LockoutMinutes:                 int(c.LockoutDuration / time.Minute),
		AccessTokenExpiryMinutes:       int(c.AccessTokenTTL / time.Minute),
		RefreshTokenExpiryDaysRolling:  int(c.RefreshRollingTTL / day),
		RefreshTokenExpiryDaysAbsolute: int(c.RefreshAbsoluteTTL / day),
		CookieName:                     c.RefreshTokenCookieName,
		CookieDomain:                   c.CookieDomain,
		CookieSecure:                   c.CookieSecure,

		CaptchaSecret:        c.CaptchaSecret,
		CaptchaVerifyURL:     c.CaptchaVerifyURL,
		CaptchaBypassEnabled: c.CaptchaBypassEnabled,
		CaptchaBypassEmails:  c.CaptchaBypassEmails,
		AllowSeedLogin:       c.AllowSeedLogin,

		SweepInterval: timex.Duration{Duration: c.SweepInterval},
		LogLevel:      c.LogLevel,
	}
}

func (j *JsonConfig) apply(c *Config) {
	c.HTTPAddr = j.HTTPAddr
	c.GRPCAddr = j.GRPCAddr
	c.DatabaseDSN = j.DatabaseDSN
	c.RedisAddr = j.RedisAddr
	c.RedisPassword = j.RedisPassword
	c.RedisDB = j.RedisDB
	c.BlacklistMode = j.BlacklistMode

	c.SigningKeyID = j.SigningKeyID
	c.SigningSecret = j.SigningSecret
	c.VerificationKeys = j.VerificationKeys
	c.Issuer = j.Issuer
	c.Audience = j.Audience

	c.MaxAttempts = j.MaxAttempts
	c.Window = time.Duration(j.WindowMinutes) * time.Minute
	c.LockoutDuration = time.Duration(j.LockoutMinutes) * time.Minute
	c.AccessTokenTTL = time.Duration(j.AccessTokenExpiryMinutes) * time.Minute
	c.RefreshRollingTTL = time.Duration(j.RefreshTokenExpiryDaysRolling) * day
	c.RefreshAbsoluteTTL = time.Duration(j.RefreshTokenExpiryDaysAbsolute) * day
	c.RefreshTokenCookieName = j.CookieName
	c.CookieDomain = j.CookieDomain
	c.CookieSecure = j.CookieSecure

	c.CaptchaSecret = j.CaptchaSecret
	c.CaptchaVerifyURL = j.CaptchaVerifyURL
	c.CaptchaBypassEnabled = j.CaptchaBypassEnabled
	c.CaptchaBypassEmails = j.CaptchaBypassEmails
	c.AllowSeedLogin = j.AllowSeedLogin

	c.SweepInterval = j.SweepInterval.Duration
	c.LogLevel = j.LogLevel
}

// parseJson loads configuration values from a JSON file into config.
//
// The file path comes from the -c or -config command-line flag; without it
// nothing is loaded. The file is decoded on top of the current values, so
// it only needs to carry the keys it changes. An unreadable file or invalid
// JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFileFlag(os.Args[1:])

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := toJson(config)
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}
	c.apply(config)
}
