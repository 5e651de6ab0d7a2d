// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

//go:build integration

package store_test

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/roito2356/giiku-23/internal/store"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

var _ = Describe("Schema", Ordered, func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		pool      *pgxpool.Pool
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("giiku_test"),
			postgres.WithUsername("giiku"),
			postgres.WithPassword("giiku"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err := container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		migrator, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Close()).To(Succeed())

		pool, err = store.Connect(ctx, connStr, store.ConnectOptions{MaxConns: 4})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if pool != nil {
			pool.Close()
		}
		if container != nil {
			_ = container.Terminate(ctx)
		}
	})

	BeforeEach(func() {
		_, err := pool.Exec(ctx, `TRUNCATE users, sessions, completions CASCADE`)
		Expect(err).NotTo(HaveOccurred())
	})

	insertUser := func(id, email, username, role string) error {
		_, err := pool.Exec(ctx,
			`INSERT INTO users (id, email, username, password_hash, role) VALUES ($1, $2, $3, 'x', $4)`,
			id, email, username, role)
		return err
	}

	It("rejects emails differing only in case", func() {
		Expect(insertUser("u1", "Ann@Example.com", "ann", "regular")).To(Succeed())
		err := insertUser("u2", "ann@example.COM", "ann2", "regular")
		Expect(pgCode(err)).To(Equal(pgerrcode.UniqueViolation))
	})

	It("rejects unknown roles", func() {
		err := insertUser("u1", "ann@example.com", "ann", "owner")
		Expect(pgCode(err)).To(Equal(pgerrcode.CheckViolation))
	})

	It("rejects ratings outside 1..5", func() {
		Expect(insertUser("u1", "ann@example.com", "ann", "regular")).To(Succeed())
		_, err := pool.Exec(ctx, `INSERT INTO completions (id, user_id, rating) VALUES ('c1', 'u1', 6)`)
		Expect(pgCode(err)).To(Equal(pgerrcode.CheckViolation))
	})

	It("cascades user deletion to sessions and completions", func() {
		Expect(insertUser("u1", "ann@example.com", "ann", "regular")).To(Succeed())
		_, err := pool.Exec(ctx, `INSERT INTO completions (id, user_id, rating) VALUES ('c1', 'u1', 4)`)
		Expect(err).NotTo(HaveOccurred())
		_, err = pool.Exec(ctx,
			`INSERT INTO sessions (id, user_id, token_hash, expires_at) VALUES ('s1', 'u1', 'h1', now() + interval '1 hour')`)
		Expect(err).NotTo(HaveOccurred())

		_, err = pool.Exec(ctx, `DELETE FROM users WHERE id = 'u1'`)
		Expect(err).NotTo(HaveOccurred())

		var n int
		Expect(pool.QueryRow(ctx, `SELECT (SELECT count(*) FROM sessions) + (SELECT count(*) FROM completions)`).Scan(&n)).To(Succeed())
		Expect(n).To(BeZero())
	})
})
