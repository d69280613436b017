// Package config provides the time machine configuration.
//
// This package defines the configuration structure and validation:
//
//   - spec.go: Config struct definition
//   - default.go: Default configuration values
//   - verify.go: Validation (backend names, ranges, addresses)
//   - sanitize.go: Log sanitization (mask profile identifiers)
//   - convert.go: Conversion to component configurations
//   - load.go: Loading through internal/infra/confloader
//
// Configuration sources, highest priority first: flags, TIMEMACHINE_
// environment variables, the YAML file, defaults.
package config
