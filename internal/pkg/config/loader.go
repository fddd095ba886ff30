// Package config loads worker settings from the environment. Loaders never
// fail: a malformed or out-of-range value falls back to the default and
// produces a warning for the caller to log.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ConfigLoadResult is the outcome of one loader call. Value holds the
// parsed value or the default when FallbackApplied is set.
//
//	result := LoadEnvDuration("FETCH_TIMEOUT", 30*time.Second, ValidatePositiveDuration)
//	for _, w := range result.Warnings {
//	    logger.Warn(w)
//	}
//	timeout := result.Value.(time.Duration)
type ConfigLoadResult struct {
	Value           interface{}
	Warnings        []string
	FallbackApplied bool
}

// LoadEnvString returns the variable or defaultValue when it is unset or empty.
func LoadEnvString(envKey, defaultValue string) string {
	if value := os.Getenv(envKey); value != "" {
		return value
	}
	return defaultValue
}

// loadEnv reads envKey, parses it and validates it. Unset values return the
// default silently; parse and validation errors return it with a warning.
// parseErr replaces the parser's error text when non-empty.
func loadEnv[T any](envKey string, defaultValue T, parse func(string) (T, error), parseErr string, validator func(T) error) ConfigLoadResult {
	raw := os.Getenv(envKey)
	if raw == "" {
		return ConfigLoadResult{Value: defaultValue}
	}

	fallback := func(reason any) ConfigLoadResult {
		return ConfigLoadResult{
			Value: defaultValue,
			Warnings: []string{fmt.Sprintf("Invalid %s='%s': %v, falling back to default '%v'",
				envKey, raw, reason, defaultValue)},
			FallbackApplied: true,
		}
	}

	value, err := parse(raw)
	if err != nil {
		if parseErr != "" {
			return fallback(parseErr)
		}
		return fallback(err)
	}
	if validator != nil {
		if err := validator(value); err != nil {
			return fallback(err)
		}
	}
	return ConfigLoadResult{Value: value}
}

// LoadEnvWithFallback loads a string checked by validator, which may be nil.
// Used for cron schedules and timezones.
func LoadEnvWithFallback(envKey, defaultValue string, validator func(string) error) ConfigLoadResult {
	return loadEnv(envKey, defaultValue, func(s string) (string, error) { return s, nil }, "", validator)
}

// LoadEnvDuration loads a time.ParseDuration string such as "30s" or "1h30m".
func LoadEnvDuration(envKey string, defaultValue time.Duration, validator func(time.Duration) error) ConfigLoadResult {
	return loadEnv(envKey, defaultValue, time.ParseDuration, "", validator)
}

// LoadEnvInt loads a base-10 integer. Surrounding whitespace is ignored.
func LoadEnvInt(envKey string, defaultValue int, validator func(int) error) ConfigLoadResult {
	parse := func(s string) (int, error) { return strconv.Atoi(strings.TrimSpace(s)) }
	return loadEnv(envKey, defaultValue, parse, "invalid integer format", validator)
}

// LoadEnvFloat loads a decimal number such as "0.25".
func LoadEnvFloat(envKey string, defaultValue float64, validator func(float64) error) ConfigLoadResult {
	parse := func(s string) (float64, error) { return strconv.ParseFloat(strings.TrimSpace(s), 64) }
	return loadEnv(envKey, defaultValue, parse, "invalid number format", validator)
}

// LoadEnvBool accepts the strconv.ParseBool spellings "1", "t", "true" and
// their false counterparts.
func LoadEnvBool(envKey string, defaultValue bool) ConfigLoadResult {
	return loadEnv(envKey, defaultValue, strconv.ParseBool,
		"invalid boolean format, expected 'true' or 'false'", nil)
}
