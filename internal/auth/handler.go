package auth

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/attendance-management/internal"
	"github.com/frahmantamala/attendance-management/internal/transport"
	"github.com/frahmantamala/attendance-management/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	Service   ServiceAPI
	Validator Validator
}

func NewHandler(svc ServiceAPI, validator Validator) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
		Validator:   validator,
	}
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var dto LoginDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	resp, err := h.Service.Authenticate(r.Context(), dto)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, "Signed in successfully", resp)
}

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var dto SignUpDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	identity, err := h.Service.SignUp(r.Context(), dto)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusCreated, "Account created", identity)
}

// SignOut must run behind AuthMiddleware; it revokes the token that
// authenticated the request.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	token, ok := TokenFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, r, internal.ErrMissingToken)
		return
	}

	if err := h.Service.Revoke(r.Context(), token); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, "Signed out successfully", nil)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, r, internal.ErrMissingToken)
		return
	}
	h.WriteSuccess(w, http.StatusOK, "OK", identity)
}

// AuthMiddleware runs the session validator and attaches the identity and
// raw token to the request context. Failures never reach the next handler.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, token, err := h.Validator.Validate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			h.WriteAppError(w, r, err)
			return
		}

		ctx := ContextWithIdentity(r.Context(), identity, token)
		ctx = logger.With(ctx, "user_id", identity.UserID, "assign_type", identity.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
