package goSSO

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleConfigYAML = `
default_provider: corp
providers:
  - name: corp
    format: json
    id_field: uid
    required:
      email: string
  - name: cas
    format: cas
  - name: idp
    format: jwt
    jwt:
      method: hs256
      secret: 0123456789abcdef0123456789abcdef
      issuer: https://sso.example
      audience: app
session:
  enabled: true
  key_prefix: sso
  ttl: 8h
  sliding: true
  idle_timeout: 30m
  codec: json
cache: {enabled: true, size: 256}
audit: {enabled: true, buffer_size: 64, drop_if_full: true}
metrics: {enabled: true, latency_histograms: true}
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfigYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.DefaultProvider != "corp" || len(cfg.Providers) != 3 {
		t.Fatalf("unexpected providers %+v", cfg)
	}
	if cfg.Providers[0].Required["email"] != "string" {
		t.Fatalf("unexpected required map %v", cfg.Providers[0].Required)
	}
	idp := cfg.Providers[2]
	if idp.Format != FormatJWT || idp.JWT.Issuer != "https://sso.example" {
		t.Fatalf("unexpected jwt provider %+v", idp)
	}
	if cfg.Session.TTL != 8*time.Hour || cfg.Session.IdleTimeout != 30*time.Minute || cfg.Session.Codec != "json" {
		t.Fatalf("unexpected session config %+v", cfg.Session)
	}
	if !cfg.Cache.Enabled || cfg.Cache.Size != 256 {
		t.Fatalf("unexpected cache config %+v", cfg.Cache)
	}
	if !cfg.Metrics.LatencyHistograms || cfg.Audit.BufferSize != 64 {
		t.Fatalf("unexpected observability config %+v %+v", cfg.Metrics, cfg.Audit)
	}
}

func TestParseConfigKeepsDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("providers:\n  - {name: corp, format: json}\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	def := defaultConfig()
	if cfg.Session != def.Session || cfg.Cache != def.Cache || cfg.Audit != def.Audit {
		t.Fatalf("expected defaults preserved, got %+v", cfg)
	}

	empty, err := ParseConfig(nil)
	if err != nil {
		t.Fatalf("empty document: %v", err)
	}
	if empty.Session.KeyPrefix != "sso" {
		t.Fatalf("expected default prefix, got %q", empty.Session.KeyPrefix)
	}
}

func TestParseConfigRejectsInvalidDocuments(t *testing.T) {
	docs := map[string]string{
		"unknown key":    "providers: []\nbogus: 1\n",
		"bad duration":   "session: {enabled: true, ttl: forever}\n",
		"not yaml":       "providers: [\n",
		"unknown format": "providers:\n  - {name: x, format: saml}\n",
	}
	for name, doc := range docs {
		if _, err := ParseConfig([]byte(doc)); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults",
			mutate:    func(*Config) {},
			wantValid: true,
		},
		{
			name: "provider name required",
			mutate: func(c *Config) {
				c.Providers = []ProviderConfig{{Format: FormatJSON}}
			},
		},
		{
			name: "provider name padded",
			mutate: func(c *Config) {
				c.Providers = []ProviderConfig{{Name: " corp", Format: FormatJSON}}
			},
		},
		{
			name: "duplicate provider",
			mutate: func(c *Config) {
				c.Providers = []ProviderConfig{{Name: "a", Format: FormatJSON}, {Name: "a", Format: FormatCAS}}
			},
		},
		{
			name: "invalid required kind",
			mutate: func(c *Config) {
				c.Providers = []ProviderConfig{{Name: "a", Format: FormatJSON, Required: map[string]string{"x": "date"}}}
			},
		},
		{
			name: "schema on cas provider",
			mutate: func(c *Config) {
				c.Providers = []ProviderConfig{{Name: "a", Format: FormatCAS, Schema: "{}"}}
			},
		},
		{
			name: "required fields on jwt provider",
			mutate: func(c *Config) {
				c.Providers = []ProviderConfig{{Name: "a", Format: FormatJWT, Required: map[string]string{"email": "string"},
					JWT: JWTConfig{Method: "hs256", Secret: "s"}}}
			},
		},
		{
			name: "schema on jwt provider",
			mutate: func(c *Config) {
				c.Providers = []ProviderConfig{{Name: "a", Format: FormatJWT, Schema: "{}",
					JWT: JWTConfig{Method: "hs256", Secret: "s"}}}
			},
		},
		{
			name: "jwt method required",
			mutate: func(c *Config) {
				c.Providers = []ProviderConfig{{Name: "a", Format: FormatJWT}}
			},
		},
		{
			name: "session ttl",
			mutate: func(c *Config) {
				c.Session.Enabled = true
				c.Session.TTL = 0
			},
		},
		{
			name: "session idle longer than ttl",
			mutate: func(c *Config) {
				c.Session.Enabled = true
				c.Session.IdleTimeout = 9 * time.Hour
			},
		},
		{
			name: "session codec",
			mutate: func(c *Config) {
				c.Session.Enabled = true
				c.Session.Codec = "msgpack"
			},
		},
		{
			name: "disabled session skips checks",
			mutate: func(c *Config) {
				c.Session.TTL = 0
				c.Session.Codec = "msgpack"
			},
			wantValid: true,
		},
		{
			name: "cache size",
			mutate: func(c *Config) {
				c.Cache.Enabled = true
				c.Cache.Size = 0
			},
		},
		{
			name: "audit reserve",
			mutate: func(c *Config) {
				c.Audit.ReservePercent = 95
			},
		},
		{
			name: "audit buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.wantValid {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !errors.Is(err, ErrInvalidConfig) {
					t.Fatalf("expected ErrInvalidConfig, got %v", err)
				}
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sso.yaml")
	if err := os.WriteFile(path, []byte(sampleConfigYAML), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DefaultProvider != "corp" {
		t.Fatalf("unexpected default provider %q", cfg.DefaultProvider)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for missing file, got %v", err)
	}
}

func TestCloneConfigIsIndependent(t *testing.T) {
	cfg := defaultConfig()
	cfg.Providers = []ProviderConfig{{
		Name:     "corp",
		Format:   FormatJSON,
		Required: map[string]string{"email": "string"},
		JWT:      JWTConfig{Keys: map[string]string{"k1": "secret"}},
	}}

	clone := cloneConfig(cfg)
	clone.Providers[0].Name = "other"
	clone.Providers[0].Required["email"] = "number"
	clone.Providers[0].JWT.Keys["k1"] = "changed"

	if cfg.Providers[0].Name != "corp" ||
		cfg.Providers[0].Required["email"] != "string" ||
		!strings.EqualFold(cfg.Providers[0].JWT.Keys["k1"], "secret") {
		t.Fatalf("clone shares state with original: %+v", cfg.Providers[0])
	}
}
