package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// GetEnv returns the environment variable value or a default.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// LookupIntEnv parses an integer variable. ok is false when the variable
// is unset or empty.
func LookupIntEnv(key string) (value int, ok bool, err error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false, nil
	}
	value, err = strconv.Atoi(raw)
	if err != nil {
		return 0, true, fmt.Errorf("%s must be an integer, got %q", key, raw)
	}
	return value, true, nil
}

// LookupDurationEnv parses a duration variable such as "10s".
func LookupDurationEnv(key string) (value time.Duration, ok bool, err error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false, nil
	}
	value, err = time.ParseDuration(raw)
	if err != nil {
		return 0, true, fmt.Errorf("%s must be a duration, got %q", key, raw)
	}
	return value, true, nil
}

// LookupBoolEnv parses a boolean variable in any form strconv.ParseBool accepts.
func LookupBoolEnv(key string) (value bool, ok bool, err error) {
	raw := os.Getenv(key)
	if raw == "" {
		return false, false, nil
	}
	value, err = strconv.ParseBool(raw)
	if err != nil {
		return false, true, fmt.Errorf("%s must be a boolean, got %q", key, raw)
	}
	return value, true, nil
}

// GetSecretFile reads a secret from a file path.
// Works with Docker secrets (/run/secrets/) and pipeline secure files.
func GetSecretFile(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// LoadEnvFile loads variables from a .env file without overriding the
// existing environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}
