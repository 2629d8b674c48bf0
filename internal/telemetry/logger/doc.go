// Package logger builds the structured logger used across meshsync.
//
// It wraps log/slog:
//
//   - logger.go: handler construction, level control, optional rotating file
//   - context.go: operation and workspace ids carried on a context
//   - redact.go: masking of key material before it reaches a sink
//
// Components take a *slog.Logger; the Logger interface here exists for the
// CLI layer, which also needs to close the file sink on exit.
package logger
