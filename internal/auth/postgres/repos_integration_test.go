// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/roito2356/giiku-23/internal/access"
	"github.com/roito2356/giiku-23/internal/auth"
	"github.com/roito2356/giiku-23/internal/auth/postgres"
)

func newUser(email, username string) *auth.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &auth.User{
		ID:           auth.NewID(),
		Email:        email,
		Username:     username,
		PasswordHash: "digest",
		Role:         auth.RoleRegular,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

var _ = Describe("UserRepository", func() {
	var (
		ctx   context.Context
		users *postgres.UserRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		truncateAll(ctx)
		users = postgres.NewUserRepository(testPool)
	})

	It("round-trips a user", func() {
		u := newUser("Alice@Example.com", "Alice")
		Expect(users.Create(ctx, u)).To(Succeed())

		got, err := users.GetByEmail(ctx, "alice@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(u.ID))
		Expect(got.Email).To(Equal("Alice@Example.com"))
		Expect(got.Role).To(Equal(auth.RoleRegular))
		Expect(got.CreatedAt.Equal(u.CreatedAt)).To(BeTrue())
	})

	It("rejects case-insensitive duplicates with the field name", func() {
		Expect(users.Create(ctx, newUser("a@example.com", "alice"))).To(Succeed())

		err := users.Create(ctx, newUser("A@EXAMPLE.COM", "other"))
		Expect(auth.KindOf(err)).To(Equal(auth.KindDuplicate))
		Expect(auth.FieldOf(err)).To(Equal("email"))

		err = users.Create(ctx, newUser("b@example.com", "ALICE"))
		Expect(auth.FieldOf(err)).To(Equal("username"))
	})

	It("lists in id order", func() {
		var ids []string
		for i := range 15 {
			u := newUser(fmt.Sprintf("u%d@example.com", i), fmt.Sprintf("u%d", i))
			ids = append(ids, u.ID.String())
			Expect(users.Create(ctx, u)).To(Succeed())
		}

		first, err := users.List(ctx, 0, 10)
		Expect(err).NotTo(HaveOccurred())
		second, err := users.List(ctx, 10, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(first).To(HaveLen(10))
		Expect(second).To(HaveLen(5))

		var got []string
		for _, u := range append(first, second...) {
			got = append(got, u.ID.String())
		}
		Expect(got).To(Equal(ids))
	})

	It("cascades sessions and completions on delete", func() {
		u := newUser("a@example.com", "alice")
		Expect(users.Create(ctx, u)).To(Succeed())

		now := time.Now().UTC()
		s, err := auth.NewSession(u.ID, "hash", auth.SessionMeta{}, now, now.Add(time.Hour))
		Expect(err).NotTo(HaveOccurred())
		Expect(postgres.NewSessionRepository(testPool).Create(ctx, s)).To(Succeed())

		c, err := auth.NewCompletion(u.ID, 5, "", time.Now())
		Expect(err).NotTo(HaveOccurred())
		Expect(postgres.NewCompletionRepository(testPool).Create(ctx, c)).To(Succeed())

		Expect(users.Delete(ctx, u.ID)).To(Succeed())

		_, err = postgres.NewSessionRepository(testPool).GetByTokenHash(ctx, "hash")
		Expect(err).To(MatchError(auth.ErrNotFound))
		left, err := postgres.NewCompletionRepository(testPool).ListByUser(ctx, u.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(left).To(BeEmpty())
	})
})

var _ = Describe("SessionRepository", func() {
	It("deletes expired sessions only", func() {
		ctx := context.Background()
		truncateAll(ctx)
		u := newUser("a@example.com", "alice")
		Expect(postgres.NewUserRepository(testPool).Create(ctx, u)).To(Succeed())

		sessions := postgres.NewSessionRepository(testPool)
		now := time.Now().UTC()
		live, err := auth.NewSession(u.ID, "live", auth.SessionMeta{}, now, now.Add(time.Hour))
		Expect(err).NotTo(HaveOccurred())
		stale, err := auth.NewSession(u.ID, "stale", auth.SessionMeta{}, now.Add(-2*time.Hour), now.Add(-time.Hour))
		Expect(err).NotTo(HaveOccurred())
		Expect(sessions.Create(ctx, live)).To(Succeed())
		Expect(sessions.Create(ctx, stale)).To(Succeed())

		n, err := sessions.DeleteExpired(ctx, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(1)))

		_, err = sessions.GetByTokenHash(ctx, "live")
		Expect(err).NotTo(HaveOccurred())
	})
})

var _ = Describe("Service on PostgreSQL", func() {
	var (
		ctx context.Context
		svc *auth.Service
		dir *auth.Directory
	)

	BeforeEach(func() {
		ctx = context.Background()
		truncateAll(ctx)

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		users := postgres.NewUserRepository(testPool)
		sessionRepo := postgres.NewSessionRepository(testPool)
		codec, err := auth.NewHashPool(auth.NewArgon2idHasherWithParams(auth.Argon2Params{
			Time: 1, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32,
		}), 4)
		Expect(err).NotTo(HaveOccurred())

		dir, err = auth.NewDirectory(users, postgres.NewCompletionRepository(testPool), sessionRepo,
			postgres.NewTransactor(testPool), codec, auth.WithLogger(logger))
		Expect(err).NotTo(HaveOccurred())
		sessions, err := auth.NewSessionManager(sessionRepo, users, auth.WithLogger(logger))
		Expect(err).NotTo(HaveOccurred())
		guard, err := auth.NewGuard(sessions, access.NewStaticAccessControl())
		Expect(err).NotTo(HaveOccurred())
		svc, err = auth.NewService(dir, sessions, guard, codec, auth.WithLogger(logger))
		Expect(err).NotTo(HaveOccurred())
	})

	It("lets exactly one concurrent same-email registration succeed", func() {
		const workers = 12
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			results = map[auth.Kind]int{}
		)
		for i := range workers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := svc.Register(ctx, auth.RegisterInput{
					Email:                "race@example.com",
					Username:             fmt.Sprintf("racer%d", i),
					Password:             "pw",
					PasswordConfirmation: "pw",
				})
				mu.Lock()
				results[auth.KindOf(err)]++
				mu.Unlock()
			}()
		}
		wg.Wait()

		Expect(results[""]).To(Equal(1))
		Expect(results[auth.KindDuplicate]).To(Equal(workers - 1))
	})

	It("protects administrators and cascades regular deletions", func() {
		admin, err := dir.Register(access.WithSystemSubject(ctx), "admin@example.com", "Admin User", "123", auth.RoleAdministrator)
		Expect(err).NotTo(HaveOccurred())
		bob, err := svc.Register(ctx, auth.RegisterInput{Email: "bob@example.com", Username: "bob", Password: "pw", PasswordConfirmation: "pw"})
		Expect(err).NotTo(HaveOccurred())

		adminLogin, err := svc.Login(ctx, "admin@example.com", "123", auth.SessionMeta{})
		Expect(err).NotTo(HaveOccurred())
		bobLogin, err := svc.Login(ctx, "bob@example.com", "pw", auth.SessionMeta{})
		Expect(err).NotTo(HaveOccurred())
		_, err = svc.RecordCompletion(ctx, bobLogin.Token, 3, "ok")
		Expect(err).NotTo(HaveOccurred())

		Expect(auth.KindOf(svc.DeleteAccount(ctx, adminLogin.Token, admin.ID))).To(Equal(auth.KindProtected))
		Expect(svc.DeleteAccount(ctx, adminLogin.Token, bob.ID)).To(Succeed())

		_, err = svc.CurrentUser(ctx, bobLogin.Token)
		Expect(auth.KindOf(err)).To(Equal(auth.KindUnauthenticated))
	})
})
