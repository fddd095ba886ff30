package fetcher_test

import (
	"testing"
	"time"

	"regwatch/internal/infra/fetcher"
)

func TestDefaultConfig(t *testing.T) {
	cfg := fetcher.DefaultConfig()

	if cfg.Timeout != 30*time.Second {
		t.Errorf("expected Timeout=30s, got %v", cfg.Timeout)
	}
	if cfg.MaxBodySize != 10*1024*1024 {
		t.Errorf("expected MaxBodySize=10MB, got %d", cfg.MaxBodySize)
	}
	if cfg.MaxRedirects != 5 {
		t.Errorf("expected MaxRedirects=5, got %d", cfg.MaxRedirects)
	}
	if !cfg.DenyPrivateIPs {
		t.Error("expected DenyPrivateIPs=true by default (security)")
	}
	if !cfg.RespectRobots {
		t.Error("expected RespectRobots=true by default")
	}
	if len(cfg.ChromeSelectors) == 0 {
		t.Error("expected default chrome selectors")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid, got error: %v", err)
	}
}

func TestConfigValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*fetcher.Config)
	}{
		{"zero timeout", func(c *fetcher.Config) { c.Timeout = 0 }},
		{"negative timeout", func(c *fetcher.Config) { c.Timeout = -time.Second }},
		{"body size too small", func(c *fetcher.Config) { c.MaxBodySize = 512 }},
		{"body size too large", func(c *fetcher.Config) { c.MaxBodySize = 200 * 1024 * 1024 }},
		{"negative redirects", func(c *fetcher.Config) { c.MaxRedirects = -1 }},
		{"too many redirects", func(c *fetcher.Config) { c.MaxRedirects = 11 }},
		{"zero host rate", func(c *fetcher.Config) { c.HostRate = 0 }},
		{"zero host burst", func(c *fetcher.Config) { c.HostBurst = 0 }},
		{"empty user agent", func(c *fetcher.Config) { c.UserAgent = "  " }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := fetcher.DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error for %s", tt.name)
			}
		})
	}
}

func TestLoadConfigFromEnv_CustomValues(t *testing.T) {
	t.Setenv("FETCH_TIMEOUT", "20s")
	t.Setenv("FETCH_MAX_BODY_SIZE", "20971520")
	t.Setenv("FETCH_MAX_REDIRECTS", "3")
	t.Setenv("FETCH_DENY_PRIVATE_IPS", "false")
	t.Setenv("FETCH_USER_AGENT", "TestBot/2.0")
	t.Setenv("FETCH_RESPECT_ROBOTS", "false")
	t.Setenv("FETCH_HOST_RATE", "0.5")
	t.Setenv("FETCH_HOST_BURST", "4")
	t.Setenv("FETCH_CHROME_SELECTORS", "nav, .ads ,")

	cfg, err := fetcher.LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Timeout != 20*time.Second {
		t.Errorf("expected Timeout=20s, got %v", cfg.Timeout)
	}
	if cfg.MaxBodySize != 20971520 {
		t.Errorf("expected MaxBodySize=20MB, got %d", cfg.MaxBodySize)
	}
	if cfg.MaxRedirects != 3 {
		t.Errorf("expected MaxRedirects=3, got %d", cfg.MaxRedirects)
	}
	if cfg.DenyPrivateIPs {
		t.Error("expected DenyPrivateIPs=false")
	}
	if cfg.UserAgent != "TestBot/2.0" {
		t.Errorf("expected UserAgent=TestBot/2.0, got %q", cfg.UserAgent)
	}
	if cfg.RespectRobots {
		t.Error("expected RespectRobots=false")
	}
	if cfg.HostRate != 0.5 || cfg.HostBurst != 4 {
		t.Errorf("expected rate 0.5 burst 4, got %v %d", cfg.HostRate, cfg.HostBurst)
	}
	if len(cfg.ChromeSelectors) != 2 || cfg.ChromeSelectors[1] != ".ads" {
		t.Errorf("unexpected selectors %v", cfg.ChromeSelectors)
	}
}

func TestLoadConfigFromEnv_InvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		envVar string
		value  string
	}{
		{name: "invalid timeout (wrong format)", envVar: "FETCH_TIMEOUT", value: "10"},
		{name: "invalid max body size (not a number)", envVar: "FETCH_MAX_BODY_SIZE", value: "huge"},
		{name: "invalid max redirects (not a number)", envVar: "FETCH_MAX_REDIRECTS", value: "few"},
		{name: "invalid host rate", envVar: "FETCH_HOST_RATE", value: "fast"},
		{name: "invalid host burst", envVar: "FETCH_HOST_BURST", value: "lots"},
		{name: "fails validation", envVar: "FETCH_MAX_REDIRECTS", value: "50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.envVar, tt.value)

			if _, err := fetcher.LoadConfigFromEnv(); err == nil {
				t.Errorf("expected error for invalid %s=%q, got nil", tt.envVar, tt.value)
			}
		})
	}
}
