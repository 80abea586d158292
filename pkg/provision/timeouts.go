package provision

import (
	"os"
	"time"
)

// Timeouts carries every time bound the supervisor enforces. Values are
// explicit and injected at construction time; nothing in this package
// reads mutable global configuration.
type Timeouts struct {
	// Apply is the wall-clock ceiling for provisioning runs.
	Apply time.Duration

	// Destroy is the wall-clock ceiling for destruction runs.
	Destroy time.Duration

	// Init is the ceiling for initialisation runs.
	Init time.Duration

	// ProgressInterval is how often a progress summary is emitted.
	ProgressInterval time.Duration

	// ActivityGrace is how long the process may stay silent past the
	// ceiling before it is considered stuck.
	ActivityGrace time.Duration

	// Extension is the extra budget granted once when known-slow
	// resource types are still in flight at the ceiling.
	Extension time.Duration

	// KillGrace is how long to wait between the graceful signal and the
	// forced kill.
	KillGrace time.Duration
}

// DefaultTimeouts returns the standard time bounds. Cluster and managed
// dependency creation routinely runs tens of minutes, so the ceilings
// are generous.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Apply:            2 * time.Hour,
		Destroy:          1 * time.Hour,
		Init:             5 * time.Minute,
		ProgressInterval: 30 * time.Second,
		ActivityGrace:    5 * time.Minute,
		Extension:        20 * time.Minute,
		KillGrace:        10 * time.Second,
	}
}

// TimeoutsFromEnv returns the defaults overlaid with any BB_*_TIMEOUT
// environment overrides. Unparsable values are ignored.
func TimeoutsFromEnv() Timeouts {
	t := DefaultTimeouts()
	t.Apply = envDuration("BB_APPLY_TIMEOUT", t.Apply)
	t.Destroy = envDuration("BB_DESTROY_TIMEOUT", t.Destroy)
	t.Init = envDuration("BB_INIT_TIMEOUT", t.Init)
	t.ProgressInterval = envDuration("BB_PROGRESS_INTERVAL", t.ProgressInterval)
	t.ActivityGrace = envDuration("BB_ACTIVITY_GRACE", t.ActivityGrace)
	return t
}

// ForOperation returns the ceiling for the given operation.
func (t Timeouts) ForOperation(op Operation) time.Duration {
	switch op {
	case OpDestroy:
		return t.Destroy
	case OpInit:
		return t.Init
	case OpApply:
		return t.Apply
	default:
		return t.Init
	}
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
