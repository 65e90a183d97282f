package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.DynamicLimit != 50 {
		t.Errorf("expected dynamic limit 50, got %d", cfg.DynamicLimit)
	}
	if len(cfg.Manifest) != len(DefaultManifest) {
		t.Errorf("expected %d manifest entries, got %d", len(DefaultManifest), len(cfg.Manifest))
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Setenv("TEST_ORIGIN", "http://origin.test:3000")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
origin: ${TEST_ORIGIN}
caches:
  static: app-static-v2
  dynamic: app-dynamic-v2
dynamicLimit: 10
manifest:
  - /
  - /index.html
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Origin != "http://origin.test:3000" {
		t.Errorf("expected expanded origin, got %s", cfg.Origin)
	}
	if cfg.Caches.Static != "app-static-v2" || cfg.Caches.Dynamic != "app-dynamic-v2" {
		t.Errorf("unexpected cache names: %+v", cfg.Caches)
	}
	if cfg.DynamicLimit != 10 || len(cfg.Manifest) != 2 {
		t.Errorf("unexpected limit %d or manifest %v", cfg.DynamicLimit, cfg.Manifest)
	}
	if cfg.Listen != ":8080" {
		t.Errorf("expected default listen address, got %s", cfg.Listen)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"same names", func(c *Config) { c.Caches.Dynamic = c.Caches.Static }},
		{"empty name", func(c *Config) { c.Caches.Static = "" }},
		{"zero limit", func(c *Config) { c.DynamicLimit = 0 }},
		{"relative path", func(c *Config) { c.Manifest = []string{"index.html"} }},
		{"bad scope", func(c *Config) { c.Scope = "file:///tmp" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestScopeFallsBackToOrigin(t *testing.T) {
	cfg := Default()
	u, err := cfg.ScopeURL()
	if err != nil {
		t.Fatal(err)
	}
	if u.String() != cfg.Origin {
		t.Errorf("expected scope %s, got %s", cfg.Origin, u)
	}
}
