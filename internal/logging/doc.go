// Package logging builds the service's slog logger from the logging configuration.
package logging
