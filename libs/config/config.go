// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Validator is implemented by settings that check themselves after parsing.
type Validator interface {
	Validate() error
}

// String reads key, falling back when it is unset or blank. Only the few
// values needed before the full config is parsed, such as the service name,
// go through here.
func String(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// Parse fills target from `env` and `envDefault` struct tags, then runs its
// Validate method when it has one.
func Parse(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if v, ok := target.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}
	return nil
}

// ValidPort checks a TCP port number.
func ValidPort(name, value string) error {
	p, err := strconv.Atoi(value)
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("%s must be a valid TCP port (got %q)", name, value)
	}
	return nil
}
