// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

//go:build integration

package auth_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/authcore/authcore/internal/auth"
)

var _ = Describe("Auth facade", func() {
	var (
		ctx   context.Context
		clock *testClock
		svc   *auth.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		env.reset()
		clock = newTestClock()
		svc = newService(clock)
	})

	Describe("Register", func() {
		It("stores a hashed password and default flags", func() {
			identity, err := svc.Register(ctx, registration("ada", "ada@example.com"))
			Expect(err).NotTo(HaveOccurred())
			Expect(identity.PasswordHash).To(HavePrefix("$argon2id$"))
			Expect(identity.IsActive).To(BeTrue())
			Expect(identity.IsVerified).To(BeFalse())
		})

		It("lets exactly one of many concurrent registrations win", func() {
			const workers = 8
			errs := make([]error, workers)
			var wg sync.WaitGroup
			for i := range workers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, errs[i] = svc.Register(ctx, registration("racer", fmt.Sprintf("racer%d@example.com", i)))
				}()
			}
			wg.Wait()

			succeeded := 0
			for _, err := range errs {
				if err == nil {
					succeeded++
					continue
				}
				Expect(auth.KindOf(err)).To(Equal(auth.KindConflict))
				Expect(auth.ErrorCode(err)).To(Equal(auth.CodeDuplicateUsername))
			}
			Expect(succeeded).To(Equal(1))
		})

		It("reports the conflicting field for a taken email", func() {
			_, err := svc.Register(ctx, registration("ada", "ada@example.com"))
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Register(ctx, registration("lovelace", "ada@example.com"))
			Expect(err).To(MatchError(auth.ErrConflict))
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeDuplicateEmail))
		})
	})

	Describe("Login and Authenticate", func() {
		var userID string

		BeforeEach(func() {
			identity, err := svc.Register(ctx, registration("ada", "ada@example.com"))
			Expect(err).NotTo(HaveOccurred())
			userID = identity.ID.String()
		})

		DescribeTable("resolves the credential to the identity",
			func(identifier string, mode auth.Mode) {
				result, err := svc.Login(ctx, identifier, "Passw0rd", mode)
				Expect(err).NotTo(HaveOccurred())
				Expect(result.Mode).To(Equal(mode))

				got, err := svc.Authenticate(ctx, result.Credential())
				Expect(err).NotTo(HaveOccurred())
				Expect(got.String()).To(Equal(userID))
			},
			Entry("session by username", "ada", auth.ModeSession),
			Entry("session by email", "ada@example.com", auth.ModeSession),
			Entry("token by username", "ada", auth.ModeToken),
			Entry("token by email", "ada@example.com", auth.ModeToken),
		)

		It("gives unknown users and wrong passwords the same error", func() {
			_, wrongPassword := svc.Login(ctx, "ada", "Wr0ngpass", auth.ModeToken)
			_, unknownUser := svc.Login(ctx, "nobody", "Passw0rd", auth.ModeToken)

			Expect(auth.ErrorCode(wrongPassword)).To(Equal(auth.CodeInvalidCredentials))
			Expect(auth.ErrorCode(unknownUser)).To(Equal(auth.CodeInvalidCredentials))
			Expect(wrongPassword.Error()).To(Equal(unknownUser.Error()))
		})

		It("expires idle sessions", func() {
			result, err := svc.Login(ctx, "ada", "Passw0rd", auth.ModeSession)
			Expect(err).NotTo(HaveOccurred())

			clock.Advance(29 * time.Minute)
			_, err = svc.Authenticate(ctx, result.Credential())
			Expect(err).NotTo(HaveOccurred(), "activity inside the idle window keeps the session")

			clock.Advance(31 * time.Minute)
			_, err = svc.Authenticate(ctx, result.Credential())
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeUnauthenticated))
		})

		It("expires bearer tokens", func() {
			result, err := svc.Login(ctx, "ada", "Passw0rd", auth.ModeToken)
			Expect(err).NotTo(HaveOccurred())

			clock.Advance(time.Hour + time.Second)
			_, err = svc.Authenticate(ctx, result.Credential())
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeUnauthenticated))
		})

		It("locks the account after repeated failures", func() {
			for range 3 {
				_, err := svc.Login(ctx, "ada", "Wr0ngpass", auth.ModeSession)
				Expect(auth.ErrorCode(err)).To(Equal(auth.CodeInvalidCredentials))
			}

			_, err := svc.Login(ctx, "ada", "Passw0rd", auth.ModeSession)
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeAccountLocked))

			clock.Advance(16 * time.Minute)
			_, err = svc.Login(ctx, "ada", "Passw0rd", auth.ModeSession)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("Logout", func() {
		BeforeEach(func() {
			_, err := svc.Register(ctx, registration("ada", "ada@example.com"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("destroys the session", func() {
			result, err := svc.Login(ctx, "ada", "Passw0rd", auth.ModeSession)
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.Logout(ctx, result.Credential())).To(Succeed())
			_, err = svc.Authenticate(ctx, result.Credential())
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeUnauthenticated))
			Expect(svc.Logout(ctx, result.Credential())).To(Succeed(), "logout is idempotent")
		})

		It("revokes a token for every engine sharing the registry", func() {
			other := newService(clock)
			result, err := svc.Login(ctx, "ada", "Passw0rd", auth.ModeToken)
			Expect(err).NotTo(HaveOccurred())

			Expect(other.Logout(ctx, result.Credential())).To(Succeed())

			_, err = svc.Authenticate(ctx, result.Credential())
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeUnauthenticated))
		})

		It("leaves other tokens of the same user valid", func() {
			first, err := svc.Login(ctx, "ada", "Passw0rd", auth.ModeToken)
			Expect(err).NotTo(HaveOccurred())
			second, err := svc.Login(ctx, "ada", "Passw0rd", auth.ModeToken)
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.Logout(ctx, first.Credential())).To(Succeed())
			_, err = svc.Authenticate(ctx, second.Credential())
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("Account lifecycle", func() {
		var identity *auth.UserIdentity

		BeforeEach(func() {
			var err error
			identity, err = svc.Register(ctx, registration("ada", "ada@example.com"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("invalidates every credential when the account is deleted", func() {
			session, err := svc.Login(ctx, "ada", "Passw0rd", auth.ModeSession)
			Expect(err).NotTo(HaveOccurred())
			token, err := svc.Login(ctx, "ada", "Passw0rd", auth.ModeToken)
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.DeleteAccount(ctx, identity.ID)).To(Succeed())

			for _, cred := range []auth.Credential{session.Credential(), token.Credential()} {
				_, err := svc.Authenticate(ctx, cred)
				Expect(auth.ErrorCode(err)).To(Equal(auth.CodeUnauthenticated))
			}

			err = svc.DeleteAccount(ctx, identity.ID)
			Expect(err).To(MatchError(auth.ErrNotFound))

			_, err = svc.Register(ctx, registration("ada", "ada@example.com"))
			Expect(err).NotTo(HaveOccurred(), "username and email are free again")
		})

		It("rejects logins of a deactivated account", func() {
			token, err := svc.Login(ctx, "ada", "Passw0rd", auth.ModeToken)
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.Deactivate(ctx, identity.ID)).To(Succeed())

			_, err = svc.Authenticate(ctx, token.Credential())
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeUnauthenticated))
			_, err = svc.Login(ctx, "ada", "Passw0rd", auth.ModeToken)
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeAccountInactive))
		})

		It("updates the profile and enforces uniqueness", func() {
			_, err := svc.Register(ctx, registration("grace", "grace@example.com"))
			Expect(err).NotTo(HaveOccurred())

			taken := "grace@example.com"
			_, err = svc.UpdateProfile(ctx, identity.ID, auth.ProfilePatch{Email: &taken})
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeDuplicateEmail))

			first := "Augusta"
			updated, err := svc.UpdateProfile(ctx, identity.ID, auth.ProfilePatch{FirstName: &first})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.FirstName).To(Equal("Augusta"))
			Expect(updated.Username).To(Equal("ada"))
		})

		It("changes the password used at login", func() {
			password := "N3wpassword"
			_, err := svc.UpdateProfile(ctx, identity.ID, auth.ProfilePatch{Password: &password})
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Login(ctx, "ada", "Passw0rd", auth.ModeSession)
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeInvalidCredentials))
			_, err = svc.Login(ctx, "ada", password, auth.ModeSession)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("Verification tokens", func() {
		var identity *auth.UserIdentity

		BeforeEach(func() {
			var err error
			identity, err = svc.Register(ctx, registration("ada", "ada@example.com"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("verifies the email once and resets on email change", func() {
			token, err := svc.RequestEmailVerification(ctx, identity.ID)
			Expect(err).NotTo(HaveOccurred())

			verified, err := svc.VerifyEmail(ctx, token)
			Expect(err).NotTo(HaveOccurred())
			Expect(verified.IsVerified).To(BeTrue())

			_, err = svc.VerifyEmail(ctx, token)
			Expect(auth.ErrorCode(err)).To(Equal(auth.CodeAlreadyVerified))

			email := "countess@example.com"
			updated, err := svc.UpdateProfile(ctx, identity.ID, auth.ProfilePatch{Email: &email})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.IsVerified).To(BeFalse())
		})

		It("issues reset tokens only for registered addresses", func() {
			token, err := svc.IssuePasswordResetToken(ctx, "nobody@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(token).To(BeEmpty())

			token, err = svc.IssuePasswordResetToken(ctx, "ada@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(token).NotTo(BeEmpty())

			userID, err := svc.VerifyPasswordResetToken(ctx, token)
			Expect(err).NotTo(HaveOccurred())
			Expect(userID).To(Equal(identity.ID))

			_, err = svc.VerifyEmail(ctx, token)
			Expect(err).To(MatchError(auth.ErrAuthentication), "a reset token is not an email verification token")
		})
	})
})
