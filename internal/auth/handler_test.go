package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
)

type envelope struct {
	Success bool            `json:"success"`
	Message interface{}     `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(rec *httptest.ResponseRecorder) envelope {
	var env envelope
	gomega.ExpectWithOffset(1, json.Unmarshal(rec.Body.Bytes(), &env)).To(gomega.Succeed())
	return env
}

var _ = ginkgo.Describe("Handler", func() {
	var (
		handler   *Handler
		sessions  *memorySessions
		protected http.Handler
	)

	signIn := func(email, password string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(LoginDTO{Email: email, Password: password})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signin", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		handler.SignIn(rec, req)
		return rec
	}

	call := func(h http.Handler, method, header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/api/v1/auth/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	ginkgo.BeforeEach(func() {
		issuer := NewJWTTokenIssuer(testSecret, 0)
		sessions = newMemorySessions()
		service := NewService(newMockUserRepository(), sessions, issuer, bcrypt.MinCost)
		handler = NewHandler(service, NewSessionValidator(issuer, sessions))
		protected = handler.AuthMiddleware(http.HandlerFunc(handler.Me))
	})

	ginkgo.Describe("SignIn", func() {
		ginkgo.It("returns the token in the success envelope", func() {
			rec := signIn("admin@example.com", "correct_password")

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			env := decodeEnvelope(rec)
			gomega.Expect(env.Success).To(gomega.BeTrue())

			var resp AuthResponse
			gomega.Expect(json.Unmarshal(env.Data, &resp)).To(gomega.Succeed())
			gomega.Expect(resp.Token).ToNot(gomega.BeEmpty())
			gomega.Expect(resp.User.Role).To(gomega.Equal(RoleAdmin))
		})

		ginkgo.It("answers a wrong password with 401", func() {
			rec := signIn("admin@example.com", "wrong_password")

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
			env := decodeEnvelope(rec)
			gomega.Expect(env.Success).To(gomega.BeFalse())
			gomega.Expect(env.Message).To(gomega.Equal("Invalid email or password"))
		})

		ginkgo.It("answers an unknown email with 404", func() {
			rec := signIn("ghost@example.com", "whatever")

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusNotFound))
			gomega.Expect(decodeEnvelope(rec).Message).To(gomega.Equal("User not found"))
		})

		ginkgo.It("answers a broken body with 400", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signin", bytes.NewBufferString("{"))
			rec := httptest.NewRecorder()
			handler.SignIn(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
		})
	})

	ginkgo.Describe("AuthMiddleware", func() {
		ginkgo.It("lets a live session through with its identity", func() {
			var token string
			{
				env := decodeEnvelope(signIn("lecturer@example.com", "correct_password"))
				var resp AuthResponse
				gomega.Expect(json.Unmarshal(env.Data, &resp)).To(gomega.Succeed())
				token = resp.Token
			}

			rec := call(protected, http.MethodGet, "Bearer "+token)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			var identity Identity
			gomega.Expect(json.Unmarshal(decodeEnvelope(rec).Data, &identity)).To(gomega.Succeed())
			gomega.Expect(identity.Email).To(gomega.Equal("lecturer@example.com"))
		})

		ginkgo.It("distinguishes a malformed header from a missing token", func() {
			malformed := call(protected, http.MethodGet, "Token abc")
			missing := call(protected, http.MethodGet, "Bearer ")

			gomega.Expect(malformed.Code).To(gomega.Equal(http.StatusUnauthorized))
			gomega.Expect(missing.Code).To(gomega.Equal(http.StatusUnauthorized))
			gomega.Expect(decodeEnvelope(malformed).Message).To(gomega.Equal("Malformed authorization header"))
			gomega.Expect(decodeEnvelope(missing).Message).To(gomega.Equal("Missing access token"))
		})

		ginkgo.It("never calls the next handler on failure", func() {
			reached := false
			h := handler.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { reached = true }))

			rec := call(h, http.MethodGet, "")

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
			gomega.Expect(reached).To(gomega.BeFalse())
		})
	})

	ginkgo.Describe("SignOut", func() {
		ginkgo.It("revokes the session so the same token is refused afterwards", func() {
			var resp AuthResponse
			gomega.Expect(json.Unmarshal(decodeEnvelope(signIn("admin@example.com", "correct_password")).Data, &resp)).To(gomega.Succeed())
			signOut := handler.AuthMiddleware(http.HandlerFunc(handler.SignOut))

			out := call(signOut, http.MethodPost, "Bearer "+resp.Token)
			gomega.Expect(out.Code).To(gomega.Equal(http.StatusOK))

			again := call(protected, http.MethodGet, "Bearer "+resp.Token)
			gomega.Expect(again.Code).To(gomega.Equal(http.StatusUnauthorized))
			gomega.Expect(decodeEnvelope(again).Message).To(gomega.Equal("Session is invalid or has been signed out"))
		})
	})

	ginkgo.It("reads the identity back from the context", func() {
		ctx := ContextWithIdentity(context.Background(), &Identity{UserID: 3}, "tok")

		identity, ok := IdentityFromContext(ctx)
		gomega.Expect(ok).To(gomega.BeTrue())
		gomega.Expect(identity.ActorID()).To(gomega.Equal("3"))
		token, ok := TokenFromContext(ctx)
		gomega.Expect(ok).To(gomega.BeTrue())
		gomega.Expect(token).To(gomega.Equal("tok"))
	})
})
