// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store provides PostgreSQL connection setup and schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectOptions controls how Connect waits for the database.
type ConnectOptions struct {
	// MaxRetries is the number of additional ping attempts after the first.
	MaxRetries uint64
	// BaseDelay is the first backoff delay; it doubles on each attempt.
	BaseDelay time.Duration
	// MaxDelay caps a single backoff delay.
	MaxDelay time.Duration
}

// DefaultConnectOptions returns options that wait up to roughly half a minute.
func DefaultConnectOptions() ConnectOptions {
	return ConnectOptions{
		MaxRetries: 6,
		BaseDelay:  250 * time.Millisecond,
		MaxDelay:   8 * time.Second,
	}
}

// pinger is satisfied by *pgxpool.Pool.
type pinger interface {
	Ping(ctx context.Context) error
}

// Connect creates a pgx connection pool and waits until the database answers
// a ping. The pool is safe for concurrent use and should be shared.
func Connect(ctx context.Context, databaseURL string, opts ConnectOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := waitForDatabase(ctx, pool, opts); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func waitForDatabase(ctx context.Context, db pinger, opts ConnectOptions) error {
	backoff := retry.NewExponential(opts.BaseDelay)
	if opts.MaxDelay > 0 {
		backoff = retry.WithCappedDuration(opts.MaxDelay, backoff)
	}
	backoff = retry.WithMaxRetries(opts.MaxRetries, backoff)

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := db.Ping(ctx); err != nil {
			slog.WarnContext(ctx, "database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}
