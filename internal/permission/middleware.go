package permission

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/attendance-management/internal"
	"github.com/frahmantamala/attendance-management/internal/auth"
	"github.com/frahmantamala/attendance-management/internal/transport"
)

// Checker is the read side the middleware needs.
type Checker interface {
	HasPermission(ctx context.Context, identity *auth.Identity, key string) (bool, error)
}

type RBACAuthorization struct {
	*transport.BaseHandler
	checker Checker
	logger  *slog.Logger
}

func NewRBACAuthorization(checker Checker, logger *slog.Logger) *RBACAuthorization {
	base := transport.NewBaseHandler(logger)
	return &RBACAuthorization{
		BaseHandler: base,
		checker:     checker,
		logger:      base.Logger,
	}
}

// RequireRole denies with 403 unless the identity's assign type is listed.
// It must run after auth.AuthMiddleware.
func (ra *RBACAuthorization) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				ra.logger.WarnContext(r.Context(), "authorization check failed: identity not found in context")
				ra.WriteAppError(w, r, internal.ErrMissingToken)
				return
			}

			if err := Authorize(identity, roles...); err != nil {
				ra.logger.WarnContext(r.Context(), "access denied: role not allowed",
					"user_id", identity.UserID,
					"assign_type", identity.Role,
					"required_roles", roles)
				ra.WriteAppError(w, r, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission denies with 403 unless key is in the identity's
// effective permission set.
func (ra *RBACAuthorization) RequirePermission(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				ra.logger.WarnContext(r.Context(), "authorization check failed: identity not found in context")
				ra.WriteAppError(w, r, internal.ErrMissingToken)
				return
			}

			hasAccess, err := ra.checker.HasPermission(r.Context(), identity, key)
			if err != nil {
				ra.logger.ErrorContext(r.Context(), "authorization check failed", "error", err, "user_id", identity.UserID, "permission", key)
				ra.WriteAppError(w, r, err)
				return
			}

			if !hasAccess {
				ra.logger.WarnContext(r.Context(), "access denied: insufficient permissions",
					"user_id", identity.UserID,
					"required_permission", key)
				ra.WriteAppError(w, r, internal.ErrForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
