// Package obslog wraps zerolog with the handful of context loggers
// the engine needs: a package-level logger plus component/branch
// scoped children.
package obslog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the package-level logger. Callers reassign it via Init.
var Logger = zerolog.New(os.Stderr).Level(zerolog.InfoLevel).With().Timestamp().Logger()

// Config controls Init.
type Config struct {
	Level  zerolog.Level
	Output io.Writer
}

// Init configures the package-level logger. Safe to call once at
// Database open; uninitialized, Logger writes JSON to stderr at the
// default (info) level.
func Init(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	Logger = zerolog.New(out).Level(cfg.Level).With().Timestamp().Logger()
}

// WithComponent returns a child logger tagged with a component name.
func WithComponent(component string) *zerolog.Logger {
	l := Logger.With().Str("component", component).Logger()
	return &l
}

// WithBranch returns a child logger tagged with a branch id's string form.
func WithBranch(component, branch string) *zerolog.Logger {
	l := Logger.With().Str("component", component).Str("branch", branch).Logger()
	return &l
}
