// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package errutil holds helpers for logging and asserting oops errors.
package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs an error with structured context if it's an oops error.
// For oops errors, it extracts and logs the message, code and context.
// For standard errors, it logs the error string. attrs are appended as-is.
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error, attrs ...any) {
	fields := make([]any, 0, len(attrs)+6)
	if oopsErr, ok := oops.AsOops(err); ok {
		fields = append(fields, "error", oopsErr.Error())
		if code := oopsErr.Code(); code != nil {
			fields = append(fields, "code", code)
		}
		if errCtx := oopsErr.Context(); len(errCtx) > 0 {
			fields = append(fields, "context", errCtx)
		}
	} else {
		fields = append(fields, "error", err)
	}
	logger.ErrorContext(ctx, msg, append(fields, attrs...)...)
}

// Code returns the oops code carried by err, or "" when there is none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}
