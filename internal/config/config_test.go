package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
engines:
  simple:
    base_url: http://kv:8081
  complex:
    base_url: http://fts:9200
`

func TestLoadFromFileAppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want default 8080", cfg.Server.Port)
	}
	if cfg.Engines.Simple.BaseURL != "http://kv:8081" {
		t.Errorf("simple base_url = %s", cfg.Engines.Simple.BaseURL)
	}
	if cfg.Engines.Simple.Timeout != 5*time.Second {
		t.Errorf("simple timeout = %v, want default 5s", cfg.Engines.Simple.Timeout)
	}
	if cfg.Cache.L1.MaxEntries != 10000 {
		t.Errorf("l1 max_entries = %d", cfg.Cache.L1.MaxEntries)
	}
	if cfg.Dispatch.DefaultTimeoutMS != 700 {
		t.Errorf("default timeout = %d", cfg.Dispatch.DefaultTimeoutMS)
	}
	if !cfg.Dispatch.Coalesce() {
		t.Error("coalescing must default on")
	}
	if cfg.Routing.SharedIndex != "search-shared" {
		t.Errorf("shared index = %s", cfg.Routing.SharedIndex)
	}
}

func TestLoadFromFileOverrides(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig+`
server:
  port: 9090
cache:
  l2:
    enabled: true
    addr: redis:6379
dispatch:
  default_timeout_ms: 500
  coalesce_misses: false
routing:
  dedicated_tenants:
    - tenant_id: big-corp
      shard_count: 6
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if !cfg.Cache.L2.Enabled || cfg.Cache.L2.Addr != "redis:6379" {
		t.Errorf("l2 = %+v", cfg.Cache.L2)
	}
	if cfg.Dispatch.DefaultTimeoutMS != 500 {
		t.Errorf("timeout = %d", cfg.Dispatch.DefaultTimeoutMS)
	}
	if cfg.Dispatch.Coalesce() {
		t.Error("coalesce_misses: false was ignored")
	}
	if len(cfg.Routing.DedicatedTenants) != 1 || cfg.Routing.DedicatedTenants[0].TenantID != "big-corp" {
		t.Errorf("dedicated tenants = %+v", cfg.Routing.DedicatedTenants)
	}
}

func TestLoadFromFileExpandsEnv(t *testing.T) {
	t.Setenv("KV_URL", "http://kv-from-env:8081")
	t.Setenv("HMAC_SECRET", "s3cret")

	cfg, err := LoadFromFile(writeConfig(t, `
engines:
  simple:
    base_url: ${KV_URL}
  complex:
    base_url: http://fts:9200
auth:
  hmac_secret: ${HMAC_SECRET}
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engines.Simple.BaseURL != "http://kv-from-env:8081" {
		t.Errorf("base_url = %s", cfg.Engines.Simple.BaseURL)
	}
	if cfg.Auth.HMACSecret != "s3cret" {
		t.Errorf("hmac_secret = %s", cfg.Auth.HMACSecret)
	}
}

func TestValidateRejections(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Engines.Simple.BaseURL = "http://kv:8081"
		cfg.Engines.Complex.BaseURL = "http://fts:9200"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "port",
		},
		{
			name:    "missing simple engine",
			mutate:  func(c *Config) { c.Engines.Simple.BaseURL = "" },
			wantErr: "engines.simple.base_url",
		},
		{
			name:    "missing complex engine",
			mutate:  func(c *Config) { c.Engines.Complex.BaseURL = "" },
			wantErr: "engines.complex.base_url",
		},
		{
			name:    "l2 enabled without addr",
			mutate:  func(c *Config) { c.Cache.L2.Enabled = true },
			wantErr: "cache.l2.addr",
		},
		{
			name: "inverted timeout bounds",
			mutate: func(c *Config) {
				c.Dispatch.MinTimeoutMS = 3000
				c.Dispatch.MaxTimeoutMS = 1000
			},
			wantErr: "min_timeout_ms",
		},
		{
			name: "inverted classifier thresholds",
			mutate: func(c *Config) {
				c.Classifier.SimpleThreshold = 5
				c.Classifier.ComplexThreshold = 3
			},
			wantErr: "simple_threshold",
		},
		{
			name: "dedicated tenant without id",
			mutate: func(c *Config) {
				c.Routing.DedicatedTenants = []DedicatedTenantConfig{{IndexName: "x"}}
			},
			wantErr: "tenant_id",
		},
		{
			name: "rate limit enabled without rate",
			mutate: func(c *Config) {
				c.RateLimit.Enabled = true
				c.RateLimit.RequestsPerSecond = 0
			},
			wantErr: "requests_per_second",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("want validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engines.Simple.BaseURL = "http://kv:8081"
	cfg.Engines.Complex.BaseURL = "http://fts:9200"
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("want error for missing file")
	}
}
