// Copyright (C) 2026 Dockhand Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for the dockhand CLI.
//
// The logger is built on Go's standard library slog package with a
// multi-destination handler: human-readable text on stderr for the
// operator, and a run-scoped JSON log file that mirrors everything
// written to the terminal.
//
// # Run-Scoped Log Files
//
// Each deployment run writes to its own file, named with the run start
// timestamp:
//
//	logger := logging.New(logging.Config{
//	    LogDir:  "~/.dockhand/logs",
//	    Service: "deploy",
//	})
//	defer logger.Close()
//
// This creates "deploy_2026-08-25_143012.log" under ~/.dockhand/logs.
// There is no rotation or retention policy; one run, one file.
//
// # Secret Redaction
//
// The logger never sees the access token by contract: callers sanitize
// command strings before logging. As a second line of defense, Config
// accepts RedactValues; any attribute or message containing one of
// those exact values is rewritten to "[REDACTED]" before it reaches any
// destination.
//
// # Log Levels
//
// Four levels matching slog conventions: Debug, Info, Warn, Error.
// Advisory pipeline failures log at Warn; fatal ones at Error.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents log severity, ordered Debug < Info < Warn < Error.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns "DEBUG", "INFO", "WARN", "ERROR", or "UNKNOWN".
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// toSlogLevel bridges our Level type to the standard library.
func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config configures Logger behavior. A zero-value Config creates a
// logger that writes Info+ messages to stderr in text format.
type Config struct {
	// Level sets the minimum log level. Messages below it are discarded.
	// Default: LevelInfo.
	Level Level

	// LogDir enables file logging to the specified directory. When set,
	// logs are written both to stderr and to a run-scoped JSON file named
	// "{Service}_{timestamp}.log". Supports ~ expansion. The directory is
	// created with 0750 permissions if absent.
	LogDir string

	// Service identifies the component generating logs. It is included
	// in every entry as the "service" attribute and in the log filename.
	Service string

	// Quiet disables stderr output. Logs go only to the file (if LogDir
	// is set). Used by machine-oriented invocations.
	Quiet bool

	// RedactValues are exact strings that must never appear in output.
	// Any message or string attribute containing one is rewritten to
	// "[REDACTED]" before the record reaches a handler.
	RedactValues []string
}

// Logger wraps slog.Logger with multi-destination output, run-scoped
// file naming, and value redaction. Safe for concurrent use.
type Logger struct {
	slog     *slog.Logger
	config   Config
	file     *os.File
	redactor *redactor
	mu       sync.Mutex
}

// New creates a Logger for one run.
//
// The returned Logger must be closed with Close() to flush and release
// the log file.
func New(config Config) *Logger {
	var handlers []slog.Handler

	opts := &slog.HandlerOptions{
		Level: config.Level.toSlogLevel(),
	}

	if !config.Quiet {
		handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
	}

	logger := &Logger{
		config:   config,
		redactor: &redactor{values: config.RedactValues},
	}

	if config.LogDir != "" {
		logDir := expandPath(config.LogDir)
		if err := os.MkdirAll(logDir, 0750); err == nil {
			serviceName := config.Service
			if serviceName == "" {
				serviceName = "dockhand"
			}
			filename := fmt.Sprintf("%s_%s.log", serviceName, time.Now().Format("2006-01-02_150405"))
			logPath := filepath.Join(logDir, filename)

			file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
			if err == nil {
				logger.file = file
				// File logs are always JSON, intended for machine processing.
				handlers = append(handlers, slog.NewJSONHandler(file, opts))
			}
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(os.Stderr, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}

	// The redact handler is always installed so values registered later
	// via Redact() take effect too.
	handler = &redactHandler{next: handler, redactor: logger.redactor}

	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{
			slog.String("service", config.Service),
		})
	}

	logger.slog = slog.New(handler)
	return logger
}

// Debug logs a message at Debug level with key-value attributes.
func (l *Logger) Debug(msg string, args ...any) {
	l.slog.Debug(msg, args...)
}

// Info logs a message at Info level with key-value attributes.
func (l *Logger) Info(msg string, args ...any) {
	l.slog.Info(msg, args...)
}

// Warn logs a message at Warn level. Advisory pipeline failures land here.
func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Warn(msg, args...)
}

// Error logs a message at Error level. Fatal stage failures land here
// just before the process exits with the stage's code.
func (l *Logger) Error(msg string, args ...any) {
	l.slog.Error(msg, args...)
}

// With returns a new Logger carrying additional attributes. The parent
// is not modified; the log file handle and redact list are shared.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:     l.slog.With(args...),
		config:   l.config,
		file:     l.file,
		redactor: l.redactor,
	}
}

// Redact registers a value that must never appear in output from this
// point on. Used for secrets only known after the logger is built, like
// the interactively collected access token.
func (l *Logger) Redact(value string) {
	l.redactor.add(value)
}

// Path returns the run log file path, or "" if file logging is disabled.
func (l *Logger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return ""
	}
	return l.file.Name()
}

// Close syncs and closes the run log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		l.file.Close()
		return fmt.Errorf("sync log file: %w", err)
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	l.file = nil
	return nil
}

// =============================================================================
// Multi-Handler (Internal)
// =============================================================================

// multiHandler fans out log records to multiple slog handlers, enabling
// simultaneous text output on stderr and JSON output in the run file.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// =============================================================================
// Redact Handler (Internal)
// =============================================================================

const redactedPlaceholder = "[REDACTED]"

// redactor holds the mutable redact list shared by a Logger and every
// derived handler.
type redactor struct {
	mu     sync.RWMutex
	values []string
}

func (r *redactor) add(value string) {
	if value == "" {
		return
	}
	r.mu.Lock()
	r.values = append(r.values, value)
	r.mu.Unlock()
}

func (r *redactor) redact(s string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.values {
		if v != "" && strings.Contains(s, v) {
			s = strings.ReplaceAll(s, v, redactedPlaceholder)
		}
	}
	return s
}

// redactHandler rewrites any message or string attribute containing one
// of the registered values before passing the record on.
type redactHandler struct {
	next     slog.Handler
	redactor *redactor
}

func (h *redactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *redactHandler) Handle(ctx context.Context, r slog.Record) error {
	clean := slog.NewRecord(r.Time, r.Level, h.redactor.redact(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		if a.Value.Kind() == slog.KindString {
			a.Value = slog.StringValue(h.redactor.redact(a.Value.String()))
		}
		clean.AddAttrs(a)
		return true
	})
	return h.next.Handle(ctx, clean)
}

func (h *redactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cleaned := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		if a.Value.Kind() == slog.KindString {
			a.Value = slog.StringValue(h.redactor.redact(a.Value.String()))
		}
		cleaned[i] = a
	}
	return &redactHandler{next: h.next.WithAttrs(cleaned), redactor: h.redactor}
}

func (h *redactHandler) WithGroup(name string) slog.Handler {
	return &redactHandler{next: h.next.WithGroup(name), redactor: h.redactor}
}

// =============================================================================
// Helper Functions
// =============================================================================

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
