// Package config provides configuration loading and validation for the echo service.
// Values come from built-in defaults, an optional YAML file and command line flags,
// in that order of precedence.
package config
