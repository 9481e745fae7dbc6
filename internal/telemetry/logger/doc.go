// Package logger provides structured logging for DirMesh.
//
//   - logger.go: slog handler setup and runtime level changes
//   - redact.go: Sensitive data redaction
//
// Components take a *slog.Logger; the server builds it here and changes the
// level when log.level is edited in the configuration file.
package logger
