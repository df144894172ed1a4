package resolver

import (
	"math"
	"strings"
	"time"

	"billing-workers/internal/common/config"

	"k8s.io/apimachinery/pkg/util/wait"
)

// Config is the immutable policy of a Resolver.
type Config struct {
	Enabled bool
	// MaxRetries is the number of fetches allowed after the first one.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	Jitter         float64
	// Deadline bounds the whole poll loop. Zero disables it.
	Deadline time.Duration
	// FailedStatuses are statuses treated as terminal failures.
	FailedStatuses []string
}

// DefaultConfig polls four times over roughly three and a half seconds.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     4 * time.Second,
		BackoffFactor:  2,
		Deadline:       15 * time.Second,
	}
}

// ConfigFromSettings converts the loaded resolver section.
func ConfigFromSettings(rc config.ResolverConfig) Config {
	return Config{
		Enabled:        rc.Enabled,
		MaxRetries:     rc.MaxRetries,
		InitialBackoff: time.Duration(rc.InitialBackoffMs) * time.Millisecond,
		MaxBackoff:     time.Duration(rc.MaxBackoffMs) * time.Millisecond,
		BackoffFactor:  rc.BackoffFactor,
		Jitter:         rc.Jitter,
		Deadline:       time.Duration(rc.DeadlineMs) * time.Millisecond,
		FailedStatuses: append([]string(nil), rc.FailedStatuses...),
	}
}

func (c Config) maxFetches() int {
	if c.MaxRetries < 0 {
		return 1
	}
	return c.MaxRetries + 1
}

// backoff returns a fresh schedule; wait.Backoff is mutated by Step.
func (c Config) backoff() wait.Backoff {
	factor := c.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	steps := c.MaxRetries
	if steps < 1 {
		steps = 1
	}
	return wait.Backoff{
		Duration: c.InitialBackoff,
		Factor:   factor,
		Jitter:   math.Max(c.Jitter, 0),
		Steps:    steps,
		Cap:      c.MaxBackoff,
	}
}

func (c Config) isFailedStatus(status string) bool {
	for _, s := range c.FailedStatuses {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if strings.EqualFold(s, status) {
			return true
		}
	}
	return false
}
