// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

//go:build integration

package integration

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/gatehouse/gatehouse/internal/auth"
)

var _ = Describe("Registration and login flow", func() {
	ctx := context.Background()

	AfterEach(func() {
		truncateUsers(ctx, env.pool)
	})

	It("registers, logs in and resolves the session", func() {
		user, err := env.Service.Register(ctx, "alice", "alice@example.com", "s3cret!pass")
		Expect(err).NotTo(HaveOccurred())
		Expect(user.ID).NotTo(BeZero())
		Expect(user.PasswordHash).To(HavePrefix("$argon2id$"))

		sess, token, err := env.Service.Login(ctx, "alice", "s3cret!pass")
		Expect(err).NotTo(HaveOccurred())
		Expect(token).NotTo(BeEmpty())
		Expect(sess.UserID).To(Equal(user.ID))

		resolved, err := env.Service.CurrentSession(ctx, token)
		Expect(err).NotTo(HaveOccurred())
		Expect(resolved.Username).To(Equal("alice"))

		profile, err := env.Service.Profile(ctx, user.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(profile.Email).To(Equal("alice@example.com"))
	})

	It("matches usernames case-insensitively at login", func() {
		_, err := env.Service.Register(ctx, "Bob", "bob@example.com", "s3cret!pass")
		Expect(err).NotTo(HaveOccurred())

		_, _, err = env.Service.Login(ctx, "bob", "s3cret!pass")
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects a wrong password with the credentials outcome", func() {
		_, err := env.Service.Register(ctx, "carol", "carol@example.com", "s3cret!pass")
		Expect(err).NotTo(HaveOccurred())

		_, _, err = env.Service.Login(ctx, "carol", "wrong-password")
		Expect(errors.Is(err, auth.ErrInvalidCredentials)).To(BeTrue())
	})

	It("rejects an unknown username with the same outcome", func() {
		_, _, err := env.Service.Login(ctx, "nobody", "whatever")
		Expect(errors.Is(err, auth.ErrInvalidCredentials)).To(BeTrue())
	})

	It("refuses a duplicate username through the store constraint", func() {
		_, err := env.Service.Register(ctx, "dave", "dave@example.com", "s3cret!pass")
		Expect(err).NotTo(HaveOccurred())

		_, err = env.Service.Register(ctx, "dave", "other@example.com", "s3cret!pass")
		Expect(errors.Is(err, auth.ErrDuplicate)).To(BeTrue())
	})

	It("refuses a duplicate username differing only in case", func() {
		_, err := env.Service.Register(ctx, "erin", "erin@example.com", "s3cret!pass")
		Expect(err).NotTo(HaveOccurred())

		_, err = env.Service.Register(ctx, "Erin", "erin2@example.com", "s3cret!pass")
		Expect(errors.Is(err, auth.ErrDuplicate)).To(BeTrue())
	})

	It("refuses a duplicate email", func() {
		_, err := env.Service.Register(ctx, "frank", "frank@example.com", "s3cret!pass")
		Expect(err).NotTo(HaveOccurred())

		_, err = env.Service.Register(ctx, "frank2", "frank@example.com", "s3cret!pass")
		Expect(errors.Is(err, auth.ErrDuplicate)).To(BeTrue())
	})

	It("resolves concurrent registrations of one username to a single success", func() {
		const racers = 8

		var wg sync.WaitGroup
		errs := make([]error, racers)
		for i := range racers {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				defer GinkgoRecover()
				_, errs[i] = env.Service.Register(ctx, "grace", "grace@example.com", "s3cret!pass")
			}(i)
		}
		wg.Wait()

		successes := 0
		for _, err := range errs {
			if err == nil {
				successes++
				continue
			}
			Expect(errors.Is(err, auth.ErrDuplicate)).To(BeTrue(),
				"racer failed with something other than the duplicate outcome: %v", err)
		}
		Expect(successes).To(Equal(1))
	})
})

var _ = Describe("Session lifecycle", func() {
	ctx := context.Background()

	AfterEach(func() {
		truncateUsers(ctx, env.pool)
	})

	login := func(username, email string) string {
		_, err := env.Service.Register(ctx, username, email, "s3cret!pass")
		Expect(err).NotTo(HaveOccurred())
		_, token, err := env.Service.Login(ctx, username, "s3cret!pass")
		Expect(err).NotTo(HaveOccurred())
		return token
	}

	It("destroys a session on logout and treats a replay as anonymous", func() {
		token := login("henry", "henry@example.com")

		Expect(env.Service.Logout(ctx, token)).To(Succeed())

		_, err := env.Service.CurrentSession(ctx, token)
		Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())

		// Logout of an already destroyed session is a no-op.
		Expect(env.Service.Logout(ctx, token)).To(Succeed())
	})

	It("treats an expired session as absent and purges it", func() {
		token := login("iris", "iris@example.com")

		// Expire the session directly in the store.
		_, err := env.pool.Exec(ctx,
			"UPDATE web_sessions SET expires_at = $1", time.Now().Add(-time.Hour))
		Expect(err).NotTo(HaveOccurred())

		_, lookupErr := env.Service.CurrentSession(ctx, token)
		Expect(errors.Is(lookupErr, auth.ErrNotFound)).To(BeTrue())

		purged, err := env.Sessions.DeleteExpired(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(purged).To(BeNumerically(">=", 1))
	})

	It("removes sessions when the user row goes away", func() {
		token := login("judy", "judy@example.com")

		_, err := env.pool.Exec(ctx, "DELETE FROM users WHERE username = 'judy'")
		Expect(err).NotTo(HaveOccurred())

		_, lookupErr := env.Service.CurrentSession(ctx, token)
		Expect(errors.Is(lookupErr, auth.ErrNotFound)).To(BeTrue())
	})
})
