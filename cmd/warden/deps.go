// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"net"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/holomush/warden/internal/store"
)

// ServeDeps holds the dependencies serve uses that tests replace.
// Nil fields get production defaults.
type ServeDeps struct {
	// Listen opens the API listener.
	// Default: net.Listen
	Listen func(network, address string) (net.Listener, error)

	// MigratorFactory creates the migrator used when auto-migrating.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (AutoMigrator, error)

	// PoolFactory connects to PostgreSQL.
	// Default: store.Connect with store.DefaultConnectOptions
	PoolFactory func(ctx context.Context, databaseURL string) (*pgxpool.Pool, error)

	// OnReady is called with the API address once it accepts requests.
	OnReady func(addr string)
}

// AutoMigrator is the subset of store.Migrator used at start-up.
type AutoMigrator interface {
	Up() error
	Close() error
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.Listen == nil {
		out.Listen = net.Listen
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (AutoMigrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if out.PoolFactory == nil {
		out.PoolFactory = func(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
			return store.Connect(ctx, databaseURL, store.DefaultConnectOptions())
		}
	}
	if out.OnReady == nil {
		out.OnReady = func(string) {}
	}
	return &out
}
