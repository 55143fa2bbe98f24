// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	return parse(target, env.Options{})
}

// ParseEnvFrom loads configuration from environ instead of the process
// environment.
func ParseEnvFrom(target any, environ map[string]string) error {
	if environ == nil {
		environ = map[string]string{}
	}
	return parse(target, env.Options{Environment: environ})
}

// parse counts every offending field rather than stopping at the first.
func parse(target any, opts env.Options) error {
	err := env.ParseWithOptions(target, opts)
	if err == nil {
		return nil
	}
	var agg env.AggregateError
	if errors.As(err, &agg) && len(agg.Errors) > 1 {
		return fmt.Errorf("parse env (%d problems): %w", len(agg.Errors), err)
	}
	return fmt.Errorf("parse env: %w", err)
}
