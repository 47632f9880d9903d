package goSSO

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/MrEthical07/goSSO/identity"
	"gopkg.in/yaml.v3"
)

// Config is the complete client configuration. Build it in code or load it
// from YAML with [LoadConfig]; fields left out of a YAML document keep their
// defaults.
type Config struct {
	// DefaultProvider is used when a call passes an empty provider name. With a
	// single provider configured it may be left empty.
	DefaultProvider string           `yaml:"default_provider"`
	Providers       []ProviderConfig `yaml:"providers"`
	Session         SessionConfig    `yaml:"session"`
	Cache           CacheConfig      `yaml:"cache"`
	Audit           AuditConfig      `yaml:"audit"`
	Metrics         MetricsConfig    `yaml:"metrics"`
}

/*
====================================
PROVIDER CONFIG
====================================
*/

// ProviderFormat selects the deserializer built for a provider.
type ProviderFormat string

const (
	// FormatJSON reads JSON user-info objects.
	FormatJSON ProviderFormat = "json"
	// FormatCAS reads CAS serviceResponse XML.
	FormatCAS ProviderFormat = "cas"
	// FormatJWT reads signed JWTs.
	FormatJWT ProviderFormat = "jwt"
)

// ProviderConfig describes one SSO server and the payload format it returns.
type ProviderConfig struct {
	Name   string         `yaml:"name"`
	Format ProviderFormat `yaml:"format"`

	// IDField names where the identifier lives: a (dotted) JSON field, a CAS
	// element or a JWT claim. Empty selects the format's default.
	IDField string `yaml:"id_field"`

	// JSON only.
	ExposeID bool              `yaml:"expose_id"`
	Required map[string]string `yaml:"required"`
	Schema   string            `yaml:"schema"`

	// JWT only.
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig holds verification settings for a FormatJWT provider. Keys are
// given as strings: HS256 secrets verbatim, Ed25519 public keys as PEM.
type JWTConfig struct {
	Method       string            `yaml:"method"`
	Secret       string            `yaml:"secret"`
	PublicKey    string            `yaml:"public_key"`
	Keys         map[string]string `yaml:"keys"`
	Issuer       string            `yaml:"issuer"`
	Audience     string            `yaml:"audience"`
	ValidateTime bool              `yaml:"validate_time"`
	Leeway       time.Duration     `yaml:"leeway"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the Redis session store used by Login.
type SessionConfig struct {
	Enabled     bool          `yaml:"enabled"`
	KeyPrefix   string        `yaml:"key_prefix"`
	TTL         time.Duration `yaml:"ttl"`
	Sliding     bool          `yaml:"sliding"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	JitterRange time.Duration `yaml:"jitter_range"`
	// Codec is "binary" or "json".
	Codec string `yaml:"codec"`
}

// CacheConfig controls memoization of successful conversions.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	Size    int  `yaml:"size"`
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
	// ReservePercent is the share of the buffer kept free of successful
	// conversion events so that failures and session events survive a burst.
	// Only used with DropIfFull.
	ReservePercent int `yaml:"reserve_percent"`
}

// MetricsConfig controls in-process metrics.
type MetricsConfig struct {
	Enabled           bool `yaml:"enabled"`
	LatencyHistograms bool `yaml:"latency_histograms"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			Enabled:     false,
			KeyPrefix:   "sso",
			TTL:         8 * time.Hour,
			Sliding:     false,
			IdleTimeout: 0,
			JitterRange: 0,
			Codec:       "binary",
		},
		Cache: CacheConfig{
			Enabled: false,
			Size:    1024,
		},
		Audit: AuditConfig{
			Enabled:        false,
			BufferSize:     1024,
			DropIfFull:     true,
			ReservePercent: 25,
		},
		Metrics: MetricsConfig{
			Enabled:           false,
			LatencyHistograms: false,
		},
	}
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Providers != nil {
		out.Providers = make([]ProviderConfig, len(cfg.Providers))
		for i, p := range cfg.Providers {
			p.Required = cloneStringMap(p.Required)
			p.JWT.Keys = cloneStringMap(p.JWT.Keys)
			out.Providers[i] = p
		}
	}
	return out
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

/*
====================================
LOADING
====================================
*/

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a YAML document over the defaults and validates the
// result. Unknown keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := defaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks structural consistency. Provider key material is checked
// when the client is built. Every error wraps [ErrInvalidConfig].
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) validate() error {
	seen := make(map[string]struct{}, len(c.Providers))
	for i, p := range c.Providers {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return fmt.Errorf("provider %d: name is required", i)
		}
		if name != p.Name {
			return fmt.Errorf("provider %q: name has surrounding whitespace", p.Name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("provider %q defined twice", name)
		}
		seen[name] = struct{}{}

		switch p.Format {
		case FormatJSON:
			for field, kind := range p.Required {
				if _, err := identity.ParseKind(kind); err != nil {
					return fmt.Errorf("provider %q: required field %q: %v", name, field, err)
				}
			}
		case FormatCAS:
			if len(p.Required) > 0 || p.Schema != "" {
				return fmt.Errorf("provider %q: required and schema apply to json providers only", name)
			}
		case FormatJWT:
			if len(p.Required) > 0 || p.Schema != "" {
				return fmt.Errorf("provider %q: required and schema apply to json providers only", name)
			}
			if p.JWT.Method == "" {
				return fmt.Errorf("provider %q: jwt method is required", name)
			}
		default:
			return fmt.Errorf("provider %q: unknown format %q", name, p.Format)
		}
	}

	if c.Session.Enabled {
		if strings.TrimSpace(c.Session.KeyPrefix) == "" {
			return errors.New("Session KeyPrefix must not be empty")
		}
		if c.Session.TTL <= 0 {
			return errors.New("Session TTL must be > 0")
		}
		if c.Session.IdleTimeout < 0 || c.Session.IdleTimeout > c.Session.TTL {
			return errors.New("Session IdleTimeout must be between 0 and TTL")
		}
		if c.Session.JitterRange < 0 {
			return errors.New("Session JitterRange must be >= 0")
		}
		if _, err := identity.CodecByName(c.Session.Codec); err != nil {
			return fmt.Errorf("Session Codec: %v", err)
		}
	}

	if c.Cache.Enabled && c.Cache.Size <= 0 {
		return errors.New("Cache Size must be > 0 when Enabled is true")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when Enabled is true")
	}
	if c.Audit.ReservePercent < 0 || c.Audit.ReservePercent > 90 {
		return errors.New("Audit ReservePercent must be between 0 and 90")
	}

	return nil
}
