// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package slog builds structured loggers from the logging configuration.
package slog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/gardener/housekeeping/pkg/core/config"
)

// ErrInvalidLogLevel is an error, which is returned when an invalid log level
// has been configured.
var ErrInvalidLogLevel = errors.New("invalid log level")

// ErrInvalidLogFormat is an error, which is returned when an invalid log format
// has been configured.
var ErrInvalidLogFormat = errors.New("invalid log format")

// LogLevel represents the log level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogFormat represents the format of log events.
type LogFormat string

const (
	FormatText LogFormat = "text"
	FormatJSON LogFormat = "json"
)

// ParseLevel returns the [slog.Level] for the given level name. An empty
// name yields [slog.LevelInfo].
func ParseLevel(name string) (slog.Level, error) {
	switch LogLevel(strings.ToLower(name)) {
	case LevelDebug:
		return slog.LevelDebug, nil
	case "", LevelInfo:
		return slog.LevelInfo, nil
	case LevelWarn, "warning":
		return slog.LevelWarn, nil
	case LevelError:
		return slog.LevelError, nil
	}

	return slog.LevelInfo, fmt.Errorf("%w: %s", ErrInvalidLogLevel, name)
}

// NewFromConfig creates a new [slog.Logger], which writes to w according to
// the given [config.LoggingConfig]. The configured attributes are added to
// every event in key order.
func NewFromConfig(w io.Writer, conf config.LoggingConfig) (*slog.Logger, error) {
	level, err := ParseLevel(conf.Level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		AddSource: conf.AddSource,
		Level:     level,
	}

	var handler slog.Handler
	switch LogFormat(strings.ToLower(conf.Format)) {
	case "", FormatText:
		handler = slog.NewTextHandler(w, opts)
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidLogFormat, conf.Format)
	}

	keys := make([]string, 0, len(conf.Attributes))
	for k := range conf.Attributes {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.String(k, conf.Attributes[k]))
	}

	return slog.New(handler.WithAttrs(attrs)), nil
}
