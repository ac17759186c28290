// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package logger is the process-wide structured logging surface. Every
// other package logs through here rather than reaching for fmt.Println or
// a locally constructed logger, so that log formatting and level are
// controlled from one place at startup.
package logger

import (
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/stacklok/toolhive-core/env"
	"github.com/stacklok/toolhive-core/logging"
	"go.uber.org/zap"
)

var singleton atomic.Pointer[slog.Logger]

type osEnvReader struct{}

func (osEnvReader) Getenv(key string) string {
	return os.Getenv(key)
}

// unstructuredLogsWithEnv reports whether plain-text (as opposed to JSON)
// log output should be used, per UNSTRUCTURED_LOGS. Any value other than
// the literal string "false" is treated as true, matching the teacher's
// permissive default.
func unstructuredLogsWithEnv(e env.Reader) bool {
	v := e.Getenv("UNSTRUCTURED_LOGS")
	return v != "false"
}

func unstructuredLogs() bool {
	return unstructuredLogsWithEnv(osEnvReader{})
}

// Initialize sets up the process-wide logger from the real OS environment.
func Initialize() {
	InitializeWithEnv(osEnvReader{})
}

// InitializeWithEnv sets up the process-wide logger, reading the
// UNSTRUCTURED_LOGS toggle through the supplied env.Reader so tests can
// substitute a mock.
func InitializeWithEnv(e env.Reader) {
	format := logging.FormatJSON
	if unstructuredLogsWithEnv(e) {
		format = logging.FormatText
	}
	opts := []logging.Option{
		logging.WithLevel(slog.LevelInfo),
		logging.WithFormat(format),
	}
	singleton.Store(logging.New(opts...))
}

func get() *slog.Logger {
	if l := singleton.Load(); l != nil {
		return l
	}
	return slog.Default()
}

// Get returns the current process-wide logger.
func Get() *slog.Logger {
	return get()
}

// NewSugared returns a zap.SugaredLogger for consumers whose interfaces
// take zap directly (the discovery router). It honors the same
// UNSTRUCTURED_LOGS toggle as Initialize, falling back to a no-op
// logger if zap construction fails.
func NewSugared() *zap.SugaredLogger {
	var (
		zl  *zap.Logger
		err error
	)
	if unstructuredLogs() {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return zl.Sugar()
}

// NewLogr returns a logr.Logger backed by the current process-wide
// logger, for consumers (the supervisor loop's health probes) that expect
// the controller-style logr interface instead of slog.
func NewLogr() logr.Logger {
	return logr.FromSlogHandler(get().Handler())
}

func Debug(msg string)                            { get().Debug(msg) }
func Debugf(format string, args ...any)            { get().Debug(sprintf(format, args...)) }
func Debugw(msg string, kv ...any)                  { get().Debug(msg, kv...) }

func Info(msg string)                             { get().Info(msg) }
func Infof(format string, args ...any)             { get().Info(sprintf(format, args...)) }
func Infow(msg string, kv ...any)                   { get().Info(msg, kv...) }

func Warn(msg string)                             { get().Warn(msg) }
func Warnf(format string, args ...any)             { get().Warn(sprintf(format, args...)) }
func Warnw(msg string, kv ...any)                   { get().Warn(msg, kv...) }

func Error(msg string)                            { get().Error(msg) }
func Errorf(format string, args ...any)            { get().Error(sprintf(format, args...)) }
func Errorw(msg string, kv ...any)                  { get().Error(msg, kv...) }

// DPanic logs at error level in production but is reserved for conditions
// that indicate a programmer error; it never panics itself.
func DPanic(msg string)                 { get().Error(msg) }
func DPanicf(format string, args ...any) { get().Error(sprintf(format, args...)) }
func DPanicw(msg string, kv ...any)       { get().Error(msg, kv...) }

// Panic logs at error level and then panics with the message.
func Panic(msg string) {
	get().Error(msg)
	panic(msg)
}

func Panicf(format string, args ...any) {
	msg := sprintf(format, args...)
	get().Error(msg)
	panic(msg)
}

func Panicw(msg string, kv ...any) {
	get().Error(msg, kv...)
	panic(msg)
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
