// Package config handles configuration loading and validation for the mixing service.
// It supports YAML configuration files with environment variable expansion,
// default values and per-section validation.
package config
