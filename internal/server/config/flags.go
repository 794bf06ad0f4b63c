package config

import (
	"flag"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-g string   gRPC health bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-r string   Redis address
//	-b string   blacklist mode: redis | noop
//	-s string   signing secret for the active key
//	-k string   active signing key id
//	-m int      maxAttempts
//	-w int      lockout window, minutes
//	-l int      lockout duration, minutes
//	-t int      access token expiry, minutes
//	-e string   captcha bypass emails, comma separated
//
// Only the flags above are parsed; other arguments are dropped through
// flagx.FilterArgs so that -c/-config and foreign flags do not collide.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-g", "-d", "-r", "-b", "-s", "-k", "-m", "-w", "-l", "-t", "-e"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run http server")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "address and port to run grpc health server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.BlacklistMode, "b", config.BlacklistMode, "blacklist mode (redis|noop)")
	fs.StringVar(&config.SigningSecret, "s", config.SigningSecret, "signing secret")
	fs.StringVar(&config.SigningKeyID, "k", config.SigningKeyID, "signing key id")
	fs.IntVar(&config.MaxAttempts, "m", config.MaxAttempts, "max failed attempts per window")

	window := fs.Int("w", int(config.Window/time.Minute), "lockout window (in minutes)")
	lockout := fs.Int("l", int(config.LockoutDuration/time.Minute), "lockout duration (in minutes)")
	access := fs.Int("t", int(config.AccessTokenTTL/time.Minute), "access token expiry (in minutes)")
	bypass := fs.String("e", strings.Join(config.CaptchaBypassEmails, ","), "captcha bypass emails")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.Window = time.Duration(*window) * time.Minute
	config.LockoutDuration = time.Duration(*lockout) * time.Minute
	config.AccessTokenTTL = time.Duration(*access) * time.Minute
	config.CaptchaBypassEmails = flagx.SplitList(*bypass)
}
