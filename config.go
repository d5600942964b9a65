package h2disp

import (
	"time"

	"github.com/domsolutions/h2disp/internal/logging"
)

// Config carries the ambient knobs the teacher's ConnOpts covered for a
// single raw connection, generalized to apply on either side of the
// dispatcher.
type Config struct {
	// PingInterval is resolved to DefaultPingInterval when zero. The
	// dispatcher does not read it: a *TickerFailureDetector takes its
	// probe period from its own Interval field.
	PingInterval time.Duration

	// FailureDetector overrides the liveness monitor. Nil means a
	// NullDetector that never declares failure; opt into active PING
	// liveness checking by setting a *TickerFailureDetector explicitly.
	FailureDetector FailureDetector

	// Logger receives lifecycle and error diagnostics. Defaults to a
	// discard logger.
	Logger logging.Logger
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.FailureDetector == nil {
		c.FailureDetector = NullDetector{}
	}
	if c.Logger == nil {
		c.Logger = logging.Discard
	}
	return c
}
