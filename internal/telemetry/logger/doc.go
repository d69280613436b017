// Package logger provides structured logging for the time machine.
//
// It wraps log/slog:
//
//   - logger.go: handler construction, the Logger interface and a global level
//   - context.go: context propagation of loggers and request IDs
//   - redact.go: masking of profile identifiers and secrets
//
// Components that take a *slog.Logger get one from Logger.Slog, so every
// record passes through the same level and redaction settings.
package logger
