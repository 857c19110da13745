package permission

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/attendance-management/internal"
	"github.com/frahmantamala/attendance-management/internal/audit"
	"github.com/frahmantamala/attendance-management/internal/auth"
	"github.com/frahmantamala/attendance-management/internal/command"
	"github.com/frahmantamala/attendance-management/internal/transport"
	"github.com/frahmantamala/attendance-management/pkg/logger"
)

// ToggleRequest carries the complete desired set of direct grants. The ids
// stay raw so a non-array body is rejected with a precise message.
type ToggleRequest struct {
	PermissionIDs json.RawMessage `json:"permission_ids"`
}

type ToggleResponse struct {
	UserID  int64           `json:"user_id"`
	Entries []command.Entry `json:"entries"`
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	Audit   *audit.Builder
}

func NewHandler(svc ServiceAPI, builder *audit.Builder) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	if builder == nil {
		builder = audit.NewBuilder("")
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
		Audit:       builder,
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	perms, err := h.Service.List(r.Context())
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteSuccess(w, http.StatusOK, "OK", perms)
}

func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, r, internal.ErrMissingToken)
		return
	}

	perms, err := h.Service.Effective(r.Context(), identity)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteSuccess(w, http.StatusOK, "OK", perms)
}

func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, r, internal.ErrMissingToken)
		return
	}

	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteAppError(w, r, internal.NewBadRequestError("invalid user id"))
		return
	}

	var req ToggleRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	ac, err := h.Audit.Build(r, identity)
	if err != nil {
		h.WriteAppError(w, r, internal.NewInternalError("failed to build audit context", err))
		return
	}

	res, err := h.Service.TogglePermissions(r.Context(), ac, userID, req.PermissionIDs)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, res.Message(), ToggleResponse{UserID: userID, Entries: res.Entries})
}
