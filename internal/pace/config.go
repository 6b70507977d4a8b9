package pace

import (
	"errors"
	"fmt"
	"time"

	"github.com/rcrowley/go-metrics"

	"github.com/banshee-data/freed-tools/internal/freed"
	"github.com/banshee-data/freed-tools/internal/timeutil"
)

// ErrAlreadyRun is returned when Run is called on a Player that has
// already run.
var ErrAlreadyRun = errors.New("pace: player already run")

// ErrorPolicy decides whether a failed send ends the run.
type ErrorPolicy int

const (
	// StopOnError treats any send failure as fatal.
	StopOnError ErrorPolicy = iota
	// SkipOnError reports the failure and continues with the next packet.
	SkipOnError
)

func (p ErrorPolicy) String() string {
	if p == SkipOnError {
		return "skip"
	}
	return "stop"
}

// Progress reports how far a run has got.
type Progress struct {
	Pass int
	// Sent counts packets delivered across all passes.
	Sent int
	// Index is the position of the last delivered packet in its pass.
	Index int
	// Total is the replay sequence length, 0 in live mode.
	Total int
	// Failed counts sends that returned an error.
	Failed  int
	Elapsed time.Duration
	// Packet is the last delivered packet.
	Packet freed.Packet
}

// Config controls pacing. Use DefaultConfig as a starting point.
type Config struct {
	// Speed scales replay timing; 2.0 plays twice as fast.
	Speed float64
	// Loop restarts replay from the first packet after each pass.
	Loop bool
	// Rate is the live tick rate in packets per second.
	Rate float64
	// Duration bounds the whole run; zero means unbounded.
	Duration time.Duration

	ErrorPolicy ErrorPolicy
	// OnError observes every failed send, whatever the policy.
	OnError func(SendError)
	// OnProgress is called after every delivered packet.
	OnProgress func(Progress)

	// Clock defaults to timeutil.RealClock.
	Clock timeutil.Clock
	// Metrics defaults to a private registry.
	Metrics metrics.Registry
}

// DefaultConfig returns real-time, single-pass replay at 30 Hz live rate.
func DefaultConfig() Config {
	return Config{Speed: 1.0, Rate: 30}
}

// ConfigError reports an invalid construction argument. It is always
// returned before any timing starts.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("pace: invalid %s: %s", e.Field, e.Reason)
}

func (c *Config) withDefaults() {
	if c.Clock == nil {
		c.Clock = timeutil.RealClock{}
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NewRegistry()
	}
}

func (c Config) validate(live bool) error {
	if live {
		if !(c.Rate > 0) {
			return &ConfigError{Field: "rate", Reason: fmt.Sprintf("must be > 0, got %v", c.Rate)}
		}
	} else if !(c.Speed > 0) {
		return &ConfigError{Field: "speed", Reason: fmt.Sprintf("must be > 0, got %v", c.Speed)}
	}
	if c.Duration < 0 {
		return &ConfigError{Field: "duration", Reason: "must not be negative"}
	}
	if c.ErrorPolicy != StopOnError && c.ErrorPolicy != SkipOnError {
		return &ConfigError{Field: "error policy", Reason: fmt.Sprintf("unknown policy %d", int(c.ErrorPolicy))}
	}
	return nil
}
