// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// Durations are written as Go duration strings ("25s", "1m").
package config
