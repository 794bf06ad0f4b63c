// Package logging is the structured logger used by every sessionkeeper
// component. Request-scoped values put on the context with WithRequestID
// are attached to each record.
package logging

import "context"

// Logger is a context-aware, structured logger. Args are key/value pairs:
//
//	log.Warn(ctx, "login rejected", "email", email, "reason", "locked")
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes args.
	With(args ...any) Logger
}
