package config

import (
	"strings"
	"time"

	"github.com/agrifin/auth-service/internal/ratelimit"
)

// RateLimitConfig carries the per-endpoint throttling policies and
// the keying strategy. Keying is a deployment decision (see
// KeyStrategy values in the ratelimit package): IP-only throttling
// enables lockout of shared NATs, account-only enables remote
// lockout abuse, so the default combines both for login.
type RateLimitConfig struct {
	Enabled     bool
	KeyStrategy ratelimit.KeyStrategy
	Prefix      string

	Login   ratelimit.Policy // failed-login budget, fail-closed
	Refresh ratelimit.Policy // token rotation budget, fail-closed
	Reset   ratelimit.Policy // forgot-password budget, fail-closed
	Read    ratelimit.Policy // low-risk authenticated reads, fail-open
}

// LoadRateLimitConfig reads environment variables to build a
// RateLimitConfig. Defaults: 5 failed logins per 15 minutes, 30
// refreshes per 15 minutes, 3 reset requests per hour.
func LoadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:     envBool("RATE_LIMIT_ENABLED", true),
		KeyStrategy: parseKeyStrategy(envStr("RATE_LIMIT_KEY_STRATEGY", "ip_account")),
		Prefix:      envStr("RATE_LIMIT_PREFIX", "rl"),
		Login: ratelimit.Policy{
			Limit:  envInt("RATE_LIMIT_LOGIN_MAX", 5),
			Window: envDur("RATE_LIMIT_LOGIN_WINDOW", 15*time.Minute),
		},
		Refresh: ratelimit.Policy{
			Limit:  envInt("RATE_LIMIT_REFRESH_MAX", 30),
			Window: envDur("RATE_LIMIT_REFRESH_WINDOW", 15*time.Minute),
		},
		Reset: ratelimit.Policy{
			Limit:  envInt("RATE_LIMIT_RESET_MAX", 3),
			Window: envDur("RATE_LIMIT_RESET_WINDOW", time.Hour),
		},
		Read: ratelimit.Policy{
			Limit:    envInt("RATE_LIMIT_READ_MAX", 120),
			Window:   envDur("RATE_LIMIT_READ_WINDOW", time.Minute),
			FailOpen: true,
		},
	}
}

func parseKeyStrategy(s string) ratelimit.KeyStrategy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ip":
		return ratelimit.KeyByIP
	case "account":
		return ratelimit.KeyByAccount
	default:
		return ratelimit.KeyByIPAccount
	}
}
