package goSSO

import (
	"errors"
	"fmt"
	"io"

	"github.com/MrEthical07/goSSO/deserializer"
	"github.com/MrEthical07/goSSO/identity"
	internalaudit "github.com/MrEthical07/goSSO/internal/audit"
	"github.com/MrEthical07/goSSO/session"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Builder assembles a [Client]. A Builder can be built once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	custom []namedDeserializer

	auditSink AuditSink
	logger    logrus.FieldLogger

	built bool
}

type namedDeserializer struct {
	name string
	d    deserializer.Deserializer
}

// New returns a Builder holding the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration. cfg is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client used by the session store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithDeserializer registers a custom deserializer under name, next to the
// providers listed in the configuration. Custom deserializers are never cached.
func (b *Builder) WithDeserializer(name string, d deserializer.Deserializer) *Builder {
	b.custom = append(b.custom, namedDeserializer{name: name, d: d})
	return b
}

// WithAuditSink sets the sink fed by the audit dispatcher when auditing is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger. Without one the client logs nothing.
func (b *Builder) WithLogger(logger logrus.FieldLogger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled toggles in-process metrics.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the conversion latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.LatencyHistograms = enabled
	return b
}

// Build validates the configuration, constructs every provider's
// deserializer and returns a ready [Client].
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Providers) == 0 && len(b.custom) == 0 {
		return nil, fmt.Errorf("%w: at least one provider is required", ErrInvalidConfig)
	}

	// -------- PROVIDERS --------
	registry := deserializer.NewRegistry()
	caches := make(map[string]*deserializer.Cache)

	for _, p := range cfg.Providers {
		d, cacheable, err := newProviderDeserializer(p)
		if err != nil {
			return nil, fmt.Errorf("%w: provider %q: %v", ErrInvalidConfig, p.Name, err)
		}
		if cfg.Cache.Enabled && cacheable {
			cached, err := deserializer.Cached(d, cfg.Cache.Size)
			if err != nil {
				return nil, fmt.Errorf("%w: provider %q: %v", ErrInvalidConfig, p.Name, err)
			}
			caches[p.Name] = cached
			d = cached
		}
		if err := registry.Register(p.Name, d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	for _, c := range b.custom {
		if err := registry.Register(c.name, c.d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	defaultProvider := cfg.DefaultProvider
	if defaultProvider == "" && registry.Len() == 1 {
		defaultProvider = registry.Names()[0]
	}
	if defaultProvider != "" {
		if err := registry.SetDefault(defaultProvider); err != nil {
			return nil, fmt.Errorf("%w: default provider: %v", ErrInvalidConfig, err)
		}
	}

	registry.Freeze()

	// -------- SESSION STORE --------
	var store *session.Store
	if cfg.Session.Enabled {
		if b.redis == nil {
			return nil, fmt.Errorf("%w: session store requires redis client", ErrInvalidConfig)
		}
		codec, err := identity.CodecByName(cfg.Session.Codec)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		store = session.NewStore(b.redis, session.Options{
			Prefix:      cfg.Session.KeyPrefix,
			Codec:       codec,
			Sliding:     cfg.Session.Sliding,
			IdleTimeout: cfg.Session.IdleTimeout,
			JitterRange: cfg.Session.JitterRange,
		})
	}

	logger := b.logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	client := &Client{
		config:   cloneConfig(cfg),
		registry: registry,
		caches:   caches,
		store:    store,
		metrics:  NewMetrics(cfg.Metrics),
		logger:   logger,
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			Reserve:    cfg.Audit.BufferSize * cfg.Audit.ReservePercent / 100,
		}, b.auditSink),
	}

	b.built = true

	return client, nil
}
