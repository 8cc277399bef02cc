package gatecred

import (
	"errors"
	"time"
)

// Config is the engine's configuration tree. Zero values are filled in by
// defaults during Build; Validate rejects combinations that would silently
// disable an invariant.
type Config struct {
	RateLimit RateLimitConfig
	Blacklist BlacklistConfig
	Upstream  UpstreamConfig
	Reconcile ReconcileConfig
	Audit     AuditConfig
	Metrics   MetricsConfig

	// StoreTimeout bounds every store call issued from the request path.
	// On timeout the same fail-open policy applies as for a store error.
	StoreTimeout time.Duration
}

// RateLimitConfig sets the fixed-window quotas. Traffic quota is consumed
// per request; login quota is consumed per reported failure.
type RateLimitConfig struct {
	TrafficQuota  int64
	TrafficWindow time.Duration
	LoginQuota    int64
	LoginWindow   time.Duration
}

// BlacklistConfig caps the TTL of blacklist entries. A revoked token is held
// for its remaining validity, never longer than the matching cap.
type BlacklistConfig struct {
	AccessTTLCap  time.Duration
	RefreshTTLCap time.Duration
}

// UpstreamConfig points at the external identity provider.
type UpstreamConfig struct {
	BaseURL string
	Timeout time.Duration
}

// ReconcileConfig controls the periodic expired-entry reconciliation task.
type ReconcileConfig struct {
	Enabled  bool
	Interval time.Duration
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls Prometheus metric registration.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the reference policy: 100 requests per 60s window
// for traffic, 5 failed attempts per 300s window for login, blacklist caps
// of 1 hour (access) and 7 days (refresh), hourly reconciliation.
func DefaultConfig() Config {
	return Config{
		RateLimit: RateLimitConfig{
			TrafficQuota:  100,
			TrafficWindow: 60 * time.Second,
			LoginQuota:    5,
			LoginWindow:   300 * time.Second,
		},
		Blacklist: BlacklistConfig{
			AccessTTLCap:  time.Hour,
			RefreshTTLCap: 7 * 24 * time.Hour,
		},
		Upstream: UpstreamConfig{
			Timeout: 10 * time.Second,
		},
		Reconcile: ReconcileConfig{
			Enabled:  true,
			Interval: time.Hour,
		},
		Audit: AuditConfig{
			BufferSize: 256,
			DropIfFull: true,
		},
		StoreTimeout: 2 * time.Second,
	}
}

// Validate checks the configuration after defaults have been applied.
func (c Config) Validate() error {
	if c.RateLimit.TrafficQuota <= 0 || c.RateLimit.LoginQuota <= 0 {
		return errors.New("rate limit quotas must be positive")
	}
	if c.RateLimit.TrafficWindow <= 0 || c.RateLimit.LoginWindow <= 0 {
		return errors.New("rate limit windows must be positive")
	}
	if c.Blacklist.AccessTTLCap <= 0 || c.Blacklist.RefreshTTLCap <= 0 {
		return errors.New("blacklist TTL caps must be positive")
	}
	if c.Blacklist.AccessTTLCap > c.Blacklist.RefreshTTLCap {
		return errors.New("access blacklist cap must not exceed refresh cap")
	}
	if c.Reconcile.Enabled && c.Reconcile.Interval <= 0 {
		return errors.New("reconcile interval must be positive when enabled")
	}
	if c.StoreTimeout <= 0 {
		return errors.New("store timeout must be positive")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit buffer size must be positive when enabled")
	}
	return nil
}

// withDefaults fills zero values from DefaultConfig without touching
// explicitly set fields.
func (c Config) withDefaults() Config {
	def := DefaultConfig()

	if c.RateLimit.TrafficQuota == 0 {
		c.RateLimit.TrafficQuota = def.RateLimit.TrafficQuota
	}
	if c.RateLimit.TrafficWindow == 0 {
		c.RateLimit.TrafficWindow = def.RateLimit.TrafficWindow
	}
	if c.RateLimit.LoginQuota == 0 {
		c.RateLimit.LoginQuota = def.RateLimit.LoginQuota
	}
	if c.RateLimit.LoginWindow == 0 {
		c.RateLimit.LoginWindow = def.RateLimit.LoginWindow
	}
	if c.Blacklist.AccessTTLCap == 0 {
		c.Blacklist.AccessTTLCap = def.Blacklist.AccessTTLCap
	}
	if c.Blacklist.RefreshTTLCap == 0 {
		c.Blacklist.RefreshTTLCap = def.Blacklist.RefreshTTLCap
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = def.Upstream.Timeout
	}
	if c.Reconcile.Interval == 0 {
		c.Reconcile.Interval = def.Reconcile.Interval
	}
	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = def.Audit.BufferSize
	}
	if c.StoreTimeout == 0 {
		c.StoreTimeout = def.StoreTimeout
	}
	return c
}
