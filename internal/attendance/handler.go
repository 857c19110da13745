package attendance

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/attendance-management/internal"
	"github.com/frahmantamala/attendance-management/internal/audit"
	"github.com/frahmantamala/attendance-management/internal/auth"
	"github.com/frahmantamala/attendance-management/internal/transport"
	"github.com/frahmantamala/attendance-management/pkg/logger"
)

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

func (h *Handler) MarkAttendance(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, r, internal.ErrMissingToken)
		return
	}

	var dto MarkAttendanceDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	ac, err := h.Audit.Build(r, identity)
	if err != nil {
		h.WriteAppError(w, r, internal.NewInternalError("failed to build audit context", err))
		return
	}

	res, err := h.Service.MarkAttendance(r.Context(), ac, identity, dto)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, res.Message(), markOutcome(res, len(dto.Records)))
}

func (h *Handler) ReviewLeaveRequests(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, r, internal.ErrMissingToken)
		return
	}

	var dto ReviewLeaveDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	ac, err := h.Audit.Build(r, identity)
	if err != nil {
		h.WriteAppError(w, r, internal.NewInternalError("failed to build audit context", err))
		return
	}

	res, err := h.Service.ReviewLeaveRequests(r.Context(), ac, identity, dto)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, Summary(res, "leave requests"), outcomeOf(res))
}
