// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

// Package errutil logs and asserts on oops errors.
package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at error level along with attrs. An oops error also
// contributes its code and context.
func LogError(logger *slog.Logger, msg string, err error, attrs ...any) {
	logger.Error(msg, append(attrs, Attrs(err)...)...)
}

// Attrs returns slog key/value pairs describing err.
func Attrs(err error) []any {
	if err == nil {
		return nil
	}
	out := []any{"error", err.Error()}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return out
	}
	if code := oopsErr.Code(); code != nil {
		out = append(out, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		out = append(out, "context", ctx)
	}
	return out
}
