package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// RateLimitConfig configures one token bucket. Scope names the protected
// surface (login, import) and becomes part of the Redis key.
type RateLimitConfig struct {
	Enabled        bool
	Scope          string
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string
	Prefix         string
	Debug          bool
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables, with per-scope overrides
// such as RATE_LIMIT_LOGIN_CAPACITY taking precedence over the shared ones.
func LoadRateLimitConfig(scope string, capacity int, every time.Duration) RateLimitConfig {
	up := strings.ToUpper(scope)
	scoped := func(name string) string { return "RATE_LIMIT_" + up + "_" + name }

	def := RateLimitConfig{
		Enabled:        envBool(scoped("ENABLED"), envBool("RATE_LIMIT_ENABLED", true)),
		Scope:          scope,
		Capacity:       envInt(scoped("CAPACITY"), envInt("RATE_LIMIT_CAPACITY", capacity)),
		RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: envDur(scoped("REFILL_INTERVAL"), envDur("RATE_LIMIT_REFILL_INTERVAL", every)),
		TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    envStr(scoped("KEY_STRATEGY"), envStr("RATE_LIMIT_KEY_STRATEGY", "ip_route")),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
		Debug:          envBool("RATE_LIMIT_DEBUG", false),
	}
	if def.Capacity < 1 {
		def.Capacity = 1
	}
	if def.RefillTokens < 1 {
		def.RefillTokens = 1
	}
	if def.RefillInterval <= 0 {
		def.RefillInterval = time.Second
	}
	if minTTL := 5 * def.RefillInterval; def.TTL < minTTL {
		def.TTL = minTTL
	}
	return def
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	if dur, err := time.ParseDuration(os.Getenv(k)); err == nil {
		return dur
	}
	return d
}

func envFloat(k string, d float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(k), 64); err == nil {
		return f
	}
	return d
}
