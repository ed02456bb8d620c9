// loader.go implements the configuration loading lifecycle:
//
//  1. Enforce UTC timezone to prevent drift bugs.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Populate the Config struct from envconfig struct tags.
//  4. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"notifgate/internal/types"
)

// Load builds and validates the process configuration. It fails fast: any
// missing required value or invalid format returns an error and the caller
// is expected to exit.
func Load() (*Config, error) {
	// All timestamps in the pipeline are UTC.
	time.Local = time.UTC

	// A missing .env is fine; real environments set variables directly.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, types.NewAppError(types.ErrCodeConfigInvalid, "failed to process environment", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, types.NewAppError(types.ErrCodeConfigInvalid, "configuration validation failed", err)
	}

	// Decode eagerly so a malformed pattern map fails startup, not the
	// first normalized event.
	if _, err := cfg.Redirect.Patterns(); err != nil {
		return nil, types.NewAppError(types.ErrCodeConfigInvalid,
			fmt.Sprintf("invalid redirect patterns: %v", err), err)
	}

	return &cfg, nil
}
