// Package config layers a .env file of defaults (per
// lritter14-helloworld-ai's config.Load) under flag.Parse, so
// cmd/chatimport can be operated either way: an .env checked into a
// deployment, or one-off flag overrides on the command line.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Defaults holds the CHATX_* environment defaults consulted before
// flags are parsed, per SPEC_FULL.md §9.
type Defaults struct {
	OutputDir   string
	RecoveryDir string
	Workers     int
	Verbose     bool
}

// Load reads a .env file from the current directory (ignored if
// absent, exactly as godotenv.Load behaves when called with no
// existing file) and returns the CHATX_* defaults, falling back to
// hard-coded values matching spec.md §6's CLI surface when a variable
// is unset or unparsable.
func Load() Defaults {
	_ = godotenv.Load()

	return Defaults{
		OutputDir:   getEnv("CHATX_OUTPUT_DIR", "out"),
		RecoveryDir: getEnv("CHATX_RECOVERY_DIR", "recovered_files"),
		Workers:     getEnvInt("CHATX_WORKERS", 4),
		Verbose:     getEnvBool("CHATX_VERBOSE", false),
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}
