// Package logger provides structured logging for trustm-go.
//
//   - logger.go: slog handler construction and level control
//   - context.go: context-carried logger and request IDs
//   - redact.go: redaction of PINs, secrets and plaintext
//
// Components receive a *slog.Logger; nothing in the engine logs key
// material or message contents.
package logger
