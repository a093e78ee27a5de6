package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	LogLevel    string

	ChallengeTTLSeconds    int
	ChallengeMaxTTLSeconds int
	ChallengeSweepSeconds  int

	VerifyCacheTTLSeconds int
	BatchMaxIdentifiers   int

	PolicyBundlePath string
	PolicyBundleID   string

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitMaxKeys       int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:               addr,
		PostgresDSN:            os.Getenv("POSTGRES_DSN"),
		LogLevel:               envDefault("LOG_LEVEL", "info"),
		ChallengeTTLSeconds:    envIntDefault("CHALLENGE_TTL_SECONDS", 300),
		ChallengeMaxTTLSeconds: envIntDefault("CHALLENGE_MAX_TTL_SECONDS", 3600),
		ChallengeSweepSeconds:  envIntDefault("CHALLENGE_SWEEP_SECONDS", 60),
		VerifyCacheTTLSeconds:  envIntDefault("VERIFY_CACHE_TTL_SECONDS", 0),
		BatchMaxIdentifiers:    envIntDefault("BATCH_MAX_IDENTIFIERS", 100),
		PolicyBundlePath:       os.Getenv("POLICY_BUNDLE_PATH"),
		PolicyBundleID:         os.Getenv("POLICY_BUNDLE_ID"),
		RateLimitRequests:      envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds: envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitMaxKeys:       envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                envIntDefault("REDIS_DB", 0),
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func (c Config) ChallengeTTL() time.Duration {
	return time.Duration(c.ChallengeTTLSeconds) * time.Second
}

func (c Config) ChallengeMaxTTL() time.Duration {
	return time.Duration(c.ChallengeMaxTTLSeconds) * time.Second
}

func (c Config) ChallengeSweepInterval() time.Duration {
	return time.Duration(c.ChallengeSweepSeconds) * time.Second
}

func (c Config) VerifyCacheTTL() time.Duration {
	return time.Duration(c.VerifyCacheTTLSeconds) * time.Second
}

func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}
