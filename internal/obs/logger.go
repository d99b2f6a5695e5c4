// Package obs wires up loom's structured logging. Every command and
// long-lived component logs through a zerolog.Logger obtained here rather
// than through the stdlib log package.
package obs

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New builds the process-wide logger, tagging every line with the
// component name so multiplexed loomctl output (dial + listen in one
// process, say) stays attributable.
func New(component string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).With().Timestamp().Str("component", component).Logger()
	log.Logger = logger
	return logger
}

// WithSession returns a child logger annotating every subsequent line with
// a session identifier, so interleaved connections can be told apart in a
// server log.
func WithSession(logger zerolog.Logger, sessionID string) zerolog.Logger {
	return logger.With().Str("session", sessionID).Logger()
}
