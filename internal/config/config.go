package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values. Each field
// corresponds to an environment variable. Token lifetimes are
// durations with defaults (15m access, 7d refresh, 15m reset) that
// apply unless explicitly overridden.
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string // HTTP port to listen on

	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	JWTSecret         string // HS256 signing secret (used when no key pair is configured)
	JWTPrivateKeyFile string // PEM RSA private key; enables RS256 signing when set
	JWTPublicKeyFile  string // PEM RSA public key for verification (optional with private key)

	AccessTTL  time.Duration // access token lifetime
	RefreshTTL time.Duration // refresh token lifetime
	ResetTTL   time.Duration // password-reset token lifetime
	BcryptCost int           // bcrypt cost for password hashing
}

// Load reads configuration from environment variables. Required
// variables are enforced by must() and missing values cause the
// program to exit with a fatal log message. The JWT material is
// required in one of two shapes: an RSA private key file (preferred,
// downstream services verify with the public key only) or a shared
// HS256 secret.
func Load() Config {
	cfg := Config{
		Env:               envStr("APP_ENV", "dev"),
		Port:              envStr("APP_PORT", "8080"),
		DBUser:            must("DB_USER"),
		DBPass:            os.Getenv("DB_PASS"),
		DBHost:            must("DB_HOST"),
		DBPort:            must("DB_PORT"),
		DBName:            must("DB_NAME"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		JWTPrivateKeyFile: os.Getenv("JWT_PRIVATE_KEY_FILE"),
		JWTPublicKeyFile:  os.Getenv("JWT_PUBLIC_KEY_FILE"),
		AccessTTL:         envDur("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTTL:        envDur("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		ResetTTL:          envDur("RESET_TOKEN_TTL", 15*time.Minute),
		BcryptCost:        envInt("BCRYPT_COST", 12),
	}
	if cfg.JWTPrivateKeyFile == "" && cfg.JWTSecret == "" {
		log.Fatal("either JWT_PRIVATE_KEY_FILE or JWT_SECRET must be set")
	}
	return cfg
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
