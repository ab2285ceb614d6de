// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/warden/internal/store"
)

var _ = Describe("PostgreSQL setup", func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		connStr   string
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("warden_test"),
			postgres.WithUsername("warden"),
			postgres.WithPassword("warden"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(container.Terminate(ctx)).To(Succeed())
	})

	Describe("Connect", func() {
		It("returns a pool that answers queries", func() {
			pool, err := store.Connect(ctx, connStr, store.DefaultConnectOptions())
			Expect(err).NotTo(HaveOccurred())
			defer pool.Close()

			var one int
			Expect(pool.QueryRow(ctx, "SELECT 1").Scan(&one)).To(Succeed())
			Expect(one).To(Equal(1))
		})
	})

	Describe("Migrator", func() {
		var migrator *store.Migrator

		BeforeEach(func() {
			var err error
			migrator, err = store.NewMigrator(connStr)
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			Expect(migrator.Close()).To(Succeed())
		})

		It("starts at version zero", func() {
			version, dirty, err := migrator.Version()
			Expect(err).NotTo(HaveOccurred())
			Expect(version).To(BeZero())
			Expect(dirty).To(BeFalse())
		})

		It("creates and drops the users table", func() {
			Expect(migrator.Up()).To(Succeed())
			Expect(migrator.Up()).To(Succeed(), "re-running Up is a no-op")

			version, dirty, err := migrator.Version()
			Expect(err).NotTo(HaveOccurred())
			Expect(version).To(Equal(uint(1)))
			Expect(dirty).To(BeFalse())

			pending, err := migrator.PendingMigrations()
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(BeEmpty())

			pool, err := store.Connect(ctx, connStr, store.DefaultConnectOptions())
			Expect(err).NotTo(HaveOccurred())
			defer pool.Close()

			var exists bool
			Expect(pool.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'users')`,
			).Scan(&exists)).To(Succeed())
			Expect(exists).To(BeTrue())

			Expect(migrator.Down()).To(Succeed())

			Expect(pool.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'users')`,
			).Scan(&exists)).To(Succeed())
			Expect(exists).To(BeFalse())

			version, _, err = migrator.Version()
			Expect(err).NotTo(HaveOccurred())
			Expect(version).To(BeZero())
		})

		It("forces a version without running migrations", func() {
			Expect(migrator.Force(1)).To(Succeed())

			version, dirty, err := migrator.Version()
			Expect(err).NotTo(HaveOccurred())
			Expect(version).To(Equal(uint(1)))
			Expect(dirty).To(BeFalse())
		})
	})
})
