package gatecred

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Alenazd/gatecred/internal/rate"
	"github.com/Alenazd/gatecred/kv"
	"github.com/Alenazd/gatecred/tokencache"
	"github.com/Alenazd/gatecred/upstream"
)

// Builder assembles an [Engine]. Construction is allocation-only; no I/O
// happens until the first Engine method call, except the janitor goroutine
// started by Build when reconciliation is enabled.
type Builder struct {
	config Config
	store  kv.Store
	idp    IdentityProvider
	log    *zap.Logger
	sink   AuditSink
	reg    prometheus.Registerer
	clock  func() time.Time

	built bool
}

// New returns a Builder preloaded with the reference policy defaults.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the configuration. Zero fields are backfilled with
// defaults at Build time.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStore injects the shared store handle used by both the rate limiter
// and the token cache. The caller retains ownership of the handle.
func (b *Builder) WithStore(store kv.Store) *Builder {
	b.store = store
	return b
}

// WithRedis is shorthand for WithStore(kv.NewRedis(client)).
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.store = kv.NewRedis(client)
	return b
}

// WithIdentityProvider injects the upstream auth service. When omitted,
// Build constructs an [upstream.Client] from Config.Upstream.BaseURL.
func (b *Builder) WithIdentityProvider(idp IdentityProvider) *Builder {
	b.idp = idp
	return b
}

// WithLogger sets the engine logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.log = log
	return b
}

// WithAuditSink sets the audit destination. Audit must also be enabled in
// the configuration for events to flow.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithMetricsRegisterer sets where collectors register. Defaults to the
// Prometheus default registerer.
func (b *Builder) WithMetricsRegisterer(reg prometheus.Registerer) *Builder {
	b.reg = reg
	return b
}

// WithClock overrides the engine clock, for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// Build validates the configuration and wires the engine. A Builder can
// build at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("a store handle is required")
	}

	idp := b.idp
	if idp == nil {
		if cfg.Upstream.BaseURL == "" {
			return nil, errors.New("an identity provider or upstream base URL is required")
		}
		idp = upstream.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.Timeout)
	}

	log := b.log
	if log == nil {
		log = zap.NewNop()
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	reg := b.reg
	if !cfg.Metrics.Enabled {
		// Collectors still exist so call sites never branch, but they
		// register on a private registry nobody scrapes.
		reg = prometheus.NewRegistry()
	}

	e := &Engine{
		config:  cfg,
		store:   b.store,
		limiter: rate.New(b.store),
		tokens:  tokencache.NewWithClock(b.store, clock),
		idp:     idp,
		audit:   newAuditDispatcher(cfg.Audit, b.sink),
		metrics: newMetrics(reg),
		log:     log,
		now:     clock,
	}

	if cfg.Reconcile.Enabled {
		e.janitor = tokencache.NewJanitor(e.ReconcileExpired, cfg.Reconcile.Interval, log)
		e.janitor.Start()
	}

	b.built = true
	return e, nil
}
