package fetcher

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls the HTTP fetcher.
//
// Security settings:
//   - DenyPrivateIPs blocks URLs resolving to private addresses (SSRF)
//   - MaxBodySize bounds memory per response
//   - MaxRedirects bounds redirect chains; every hop is validated
//
// Politeness settings:
//   - RespectRobots consults robots.txt before each fetch
//   - HostRate and HostBurst bound requests per host
type Config struct {
	// Timeout is the maximum duration for a single HTTP request.
	// Default: 30s
	Timeout time.Duration

	// MaxBodySize is the maximum response body size in bytes, enforced while
	// reading. Default: 10485760 (10MB)
	MaxBodySize int64

	// MaxRedirects is the maximum number of redirects to follow. Default: 5
	MaxRedirects int

	// DenyPrivateIPs should always be true in production. Default: true
	DenyPrivateIPs bool

	// UserAgent is sent with every request and matched against robots.txt.
	UserAgent string

	// RespectRobots turns robots.txt checks on. Default: true
	RespectRobots bool

	// HostRate is the sustained requests per second allowed per host.
	// Default: 1
	HostRate float64

	// HostBurst is the token bucket size per host. Default: 2
	HostBurst int

	// ChromeSelectors are removed from HTML before text extraction.
	ChromeSelectors []string
}

// DefaultChromeSelectors strips page furniture that changes independently
// of the regulatory content.
var DefaultChromeSelectors = []string{
	"script", "style", "noscript", "iframe", "svg", "form",
	"nav", "header", "footer", "aside",
	"[role=navigation]", "[role=banner]", "[role=contentinfo]",
	".cookie-banner", "#cookie-consent", ".breadcrumb",
}

func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		MaxBodySize:     10 * 1024 * 1024,
		MaxRedirects:    5,
		DenyPrivateIPs:  true,
		UserAgent:       "RegwatchBot/1.0",
		RespectRobots:   true,
		HostRate:        1,
		HostBurst:       2,
		ChromeSelectors: DefaultChromeSelectors,
	}
}

// Validate rejects configurations that would disable a safety limit.
//
// Validation rules:
//   - Timeout: > 0
//   - MaxBodySize: 1KB-100MB
//   - MaxRedirects: 0-10
//   - HostRate: > 0, HostBurst: >= 1
//   - UserAgent: non-empty
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}

	minBodySize := int64(1024)
	maxBodySize := int64(100 * 1024 * 1024)
	if c.MaxBodySize < minBodySize || c.MaxBodySize > maxBodySize {
		return fmt.Errorf("max body size must be between %d and %d bytes, got %d", minBodySize, maxBodySize, c.MaxBodySize)
	}

	if c.MaxRedirects < 0 || c.MaxRedirects > 10 {
		return fmt.Errorf("max redirects must be between 0 and 10, got %d", c.MaxRedirects)
	}

	if c.HostRate <= 0 {
		return fmt.Errorf("host rate must be positive, got %v", c.HostRate)
	}
	if c.HostBurst < 1 {
		return fmt.Errorf("host burst must be at least 1, got %d", c.HostBurst)
	}

	if strings.TrimSpace(c.UserAgent) == "" {
		return fmt.Errorf("user agent must not be empty")
	}

	return nil
}

// LoadConfigFromEnv loads configuration from environment variables.
// Unset variables keep their defaults; unparsable ones are errors.
//
// Environment variables:
//   - FETCH_TIMEOUT: duration string, e.g. "30s"
//   - FETCH_MAX_BODY_SIZE: integer in bytes
//   - FETCH_MAX_REDIRECTS: integer
//   - FETCH_DENY_PRIVATE_IPS: "true" or "false"
//   - FETCH_USER_AGENT: string
//   - FETCH_RESPECT_ROBOTS: "true" or "false"
//   - FETCH_HOST_RATE: float, requests per second per host
//   - FETCH_HOST_BURST: integer
//   - FETCH_CHROME_SELECTORS: comma separated CSS selectors, replaces the defaults
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if val := os.Getenv("FETCH_TIMEOUT"); val != "" {
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return cfg, fmt.Errorf("invalid FETCH_TIMEOUT: %v (expected format: '10s', '1m')", err)
		}
		cfg.Timeout = parsed
	}

	if val := os.Getenv("FETCH_MAX_BODY_SIZE"); val != "" {
		parsed, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid FETCH_MAX_BODY_SIZE: %v", err)
		}
		cfg.MaxBodySize = parsed
	}

	if val := os.Getenv("FETCH_MAX_REDIRECTS"); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return cfg, fmt.Errorf("invalid FETCH_MAX_REDIRECTS: %v", err)
		}
		cfg.MaxRedirects = parsed
	}

	if val := os.Getenv("FETCH_DENY_PRIVATE_IPS"); val != "" {
		cfg.DenyPrivateIPs = val == "true"
	}

	if val := os.Getenv("FETCH_USER_AGENT"); val != "" {
		cfg.UserAgent = val
	}

	if val := os.Getenv("FETCH_RESPECT_ROBOTS"); val != "" {
		cfg.RespectRobots = val == "true"
	}

	if val := os.Getenv("FETCH_HOST_RATE"); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid FETCH_HOST_RATE: %v", err)
		}
		cfg.HostRate = parsed
	}

	if val := os.Getenv("FETCH_HOST_BURST"); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return cfg, fmt.Errorf("invalid FETCH_HOST_BURST: %v", err)
		}
		cfg.HostBurst = parsed
	}

	if val := os.Getenv("FETCH_CHROME_SELECTORS"); val != "" {
		var selectors []string
		for _, s := range strings.Split(val, ",") {
			if s = strings.TrimSpace(s); s != "" {
				selectors = append(selectors, s)
			}
		}
		cfg.ChromeSelectors = selectors
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}
