package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the offline cache configuration.
type Config struct {
	// Address the cache proxy listens on.
	Listen string `yaml:"listen"`
	// Origin server URL. Requests not served from cache are fetched from here.
	Origin string `yaml:"origin"`
	// Directory with static assets, used when serving the origin in-process.
	Root string `yaml:"root"`
	// Cache database file, or "memory".
	DB string `yaml:"db"`
	// Scope URL, i.e. the origin as seen by clients. Defaults to the origin.
	Scope string `yaml:"scope"`

	Caches       CacheNames `yaml:"caches"`
	DynamicLimit int        `yaml:"dynamicLimit"`
	Manifest     []string   `yaml:"manifest"`
}

// CacheNames are the names of the current cache generations.
// Changing a name replaces that generation on the next activation.
type CacheNames struct {
	Static  string `yaml:"static"`
	Dynamic string `yaml:"dynamic"`
}

// DefaultManifest is the list of assets precached at install.
var DefaultManifest = []string{
	"/",
	"/index.html",
	"/styles-ios.css",
	"/script.js",
	"/register-sw.js",
	"/manifest.json",
	"/assets/favicon.ico",
	"/assets/icons/apple-touch-icon.png",
	"/assets/icons/icon-192.png",
	"/assets/icons/icon-512.png",
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	manifest := make([]string, len(DefaultManifest))
	copy(manifest, DefaultManifest)
	return &Config{
		Listen: ":8080",
		Origin: "http://127.0.0.1:3000",
		Root:   ".",
		DB:     "offline-cache.db",
		Caches: CacheNames{
			Static:  "calculadora-enlace-static-v1.1.0",
			Dynamic: "calculadora-enlace-dynamic-v1.1.0",
		},
		DynamicLimit: 50,
		Manifest:     manifest,
	}
}

// Load reads a YAML config file over the defaults and expands environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration can be used to create a worker.
func (c *Config) Validate() error {
	if c.Caches.Static == "" || c.Caches.Dynamic == "" {
		return fmt.Errorf("cache names must not be empty")
	}
	if c.Caches.Static == c.Caches.Dynamic {
		return fmt.Errorf("static and dynamic cache names must differ (both %q)", c.Caches.Static)
	}
	if c.DynamicLimit <= 0 {
		return fmt.Errorf("dynamicLimit must be positive, is %d", c.DynamicLimit)
	}
	for _, path := range c.Manifest {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("manifest path %q is not root-relative", path)
		}
	}
	if _, err := c.ScopeURL(); err != nil {
		return err
	}
	return nil
}

// ScopeURL returns the scope as a URL, falling back to the origin.
func (c *Config) ScopeURL() (*url.URL, error) {
	scope := c.Scope
	if scope == "" {
		scope = c.Origin
	}
	u, err := url.Parse(scope)
	if err != nil {
		return nil, fmt.Errorf("parse scope: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("scope %q is not an http(s) URL", scope)
	}
	return u, nil
}
