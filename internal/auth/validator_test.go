package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/attendance-management/internal"
)

var _ = ginkgo.Describe("JWTTokenIssuer", func() {
	var (
		issuer *JWTTokenIssuer
		clock  time.Time
	)

	ginkgo.BeforeEach(func() {
		clock = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
		issuer = NewJWTTokenIssuer(testSecret, time.Hour)
		issuer.Now = func() time.Time { return clock }
	})

	ginkgo.It("round-trips every identity field", func() {
		record := int64(9)
		identity := Identity{UserID: 5, Email: "s@example.com", Username: "sam", Role: RoleStudent, AssignToID: &record}

		token, expiresAt, err := issuer.Issue(identity)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(expiresAt).To(gomega.Equal(clock.Add(time.Hour)))

		claims, err := issuer.Parse(token)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(claims.Identity()).To(gomega.Equal(identity))
		gomega.Expect(claims.Subject).To(gomega.Equal("5"))
	})

	ginkgo.It("reports an elapsed token as expired", func() {
		token, _, err := issuer.Issue(Identity{UserID: 5, Role: RoleStudent})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		clock = clock.Add(2 * time.Hour)
		_, err = issuer.Parse(token)

		gomega.Expect(errors.Is(err, internal.ErrTokenExpired)).To(gomega.BeTrue())
	})

	ginkgo.It("reports a token signed with another key as invalid", func() {
		other := NewJWTTokenIssuer("another-secret-that-is-also-32-bytes-long", time.Hour)
		other.Now = issuer.Now
		token, _, err := other.Issue(Identity{UserID: 5})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		_, err = issuer.Parse(token)

		gomega.Expect(errors.Is(err, internal.ErrTokenInvalid)).To(gomega.BeTrue())
		gomega.Expect(errors.Is(err, internal.ErrTokenExpired)).To(gomega.BeFalse())
	})

	ginkgo.It("reports garbage as invalid", func() {
		_, err := issuer.Parse("not.a.token")
		gomega.Expect(errors.Is(err, internal.ErrTokenInvalid)).To(gomega.BeTrue())
	})

	ginkgo.It("rejects the none algorithm", func() {
		claims := &Claims{UserID: 5, RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(clock.Add(time.Hour))}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		_, err = issuer.Parse(token)
		gomega.Expect(errors.Is(err, internal.ErrTokenInvalid)).To(gomega.BeTrue())
	})
})

var _ = ginkgo.Describe("SessionValidator", func() {
	var (
		ctx       context.Context
		issuer    *JWTTokenIssuer
		sessions  *memorySessions
		service   *Service
		validator *SessionValidator
		clock     time.Time
		token     string
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		clock = time.Now()
		issuer = NewJWTTokenIssuer(testSecret, 0)
		issuer.Now = func() time.Time { return clock }
		sessions = newMemorySessions()
		sessions.now = func() time.Time { return clock }
		service = NewService(newMockUserRepository(), sessions, issuer, bcrypt.MinCost)
		validator = NewSessionValidator(issuer, sessions)

		resp, err := service.Authenticate(ctx, LoginDTO{Email: "lecturer@example.com", Password: "correct_password"})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		token = resp.Token
	})

	ginkgo.It("attaches the identity for a live session", func() {
		identity, raw, err := validator.Validate(ctx, "Bearer "+token)

		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(raw).To(gomega.Equal(token))
		gomega.Expect(identity.UserID).To(gomega.Equal(int64(2)))
		gomega.Expect(identity.ActingAs()).To(gomega.Equal(int64(77)))
	})

	ginkgo.DescribeTable("fails in strict order",
		func(header func() string, expected *internal.AppError) {
			_, _, err := validator.Validate(ctx, header())

			gomega.Expect(errors.Is(err, expected)).To(gomega.BeTrue(), "got %v", err)
			gomega.Expect(asAppError(err).StatusCode).To(gomega.Equal(http.StatusUnauthorized))
		},
		ginkgo.Entry("absent header", func() string { return "" }, internal.ErrMalformedHeader),
		ginkgo.Entry("wrong scheme", func() string { return "Basic " + token }, internal.ErrMalformedHeader),
		ginkgo.Entry("scheme without separator", func() string { return "Bearer" }, internal.ErrMalformedHeader),
		ginkgo.Entry("empty token", func() string { return "Bearer " }, internal.ErrMissingToken),
		ginkgo.Entry("blank token", func() string { return "Bearer    " }, internal.ErrMissingToken),
		ginkgo.Entry("garbled token", func() string { return "Bearer " + token + "x" }, internal.ErrTokenInvalid),
	)

	ginkgo.It("fails with SessionInvalid after sign-out, not TokenExpired", func() {
		gomega.Expect(service.Revoke(ctx, token)).To(gomega.Succeed())

		_, _, err := validator.Validate(ctx, "Bearer "+token)

		gomega.Expect(errors.Is(err, internal.ErrSessionInvalid)).To(gomega.BeTrue())
	})

	ginkgo.It("fails with TokenExpired once the embedded expiry passes even if the row survives", func() {
		clock = clock.Add(8 * 24 * time.Hour)
		sessions.now = func() time.Time { return time.Time{} }

		_, _, err := validator.Validate(ctx, "Bearer "+token)

		gomega.Expect(errors.Is(err, internal.ErrTokenExpired)).To(gomega.BeTrue())
		gomega.Expect(sessions.count()).To(gomega.Equal(1))
	})

	ginkgo.It("surfaces a store outage as a 500 rather than a 401", func() {
		sessions.checkErr = errors.New("i/o timeout")

		_, _, err := validator.Validate(ctx, "Bearer "+token)

		appErr := asAppError(err)
		gomega.Expect(appErr.Type).To(gomega.Equal(internal.ErrorTypeTransport))
		gomega.Expect(appErr.StatusCode).To(gomega.Equal(http.StatusInternalServerError))
	})
})
