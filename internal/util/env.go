package util

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/OFFIS-RIT/graphrag/pkg/logger"

	"github.com/joho/godotenv"
)

// LoadEnv loads .env files into the process environment. Variables that are
// already set win, and a missing file only logs at debug level.
func LoadEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		logger.Debug("[Env] No .env file loaded", "err", err)
	}
}

// GetEnv returns the trimmed value of key, "" when unset.
func GetEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func GetEnvString(key string, fallback string) string {
	if v := GetEnv(key); v != "" {
		return v
	}
	return fallback
}

// lookup parses key with parse and falls back on a missing or malformed
// value.
func lookup[T any](key string, fallback T, parse func(string) (T, error)) T {
	v := GetEnv(key)
	if v == "" {
		return fallback
	}
	parsed, err := parse(v)
	if err != nil {
		logger.Warn("[Env] Ignoring malformed value", "key", key, "value", v)
		return fallback
	}
	return parsed
}

func GetEnvInt(key string, fallback int) int {
	return lookup(key, fallback, strconv.Atoi)
}

func GetEnvFloat(key string, fallback float64) float64 {
	return lookup(key, fallback, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

func GetEnvBool(key string, fallback bool) bool {
	return lookup(key, fallback, strconv.ParseBool)
}

// GetEnvDuration parses values like "30s" or "5m".
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	return lookup(key, fallback, time.ParseDuration)
}

// GetEnvList splits a comma separated value and drops empty items.
func GetEnvList(key string, fallback []string) []string {
	var out []string
	for _, part := range strings.Split(GetEnv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
