package transport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/attendance-management/internal"
	"github.com/frahmantamala/attendance-management/pkg/logger"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool        `json:"success"`
	Message interface{} `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// BaseHandler provides common functionality for HTTP handlers
type BaseHandler struct {
	Logger *slog.Logger
}

// NewBaseHandler creates a base handler with logger
func NewBaseHandler(lg *slog.Logger) *BaseHandler {
	if lg == nil {
		lg = logger.LoggerWrapper()
		if lg == nil {
			lg = slog.Default()
		}
	}
	return &BaseHandler{Logger: lg}
}

// WriteJSON writes a JSON response
func (h *BaseHandler) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *BaseHandler) WriteSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	h.WriteJSON(w, status, Envelope{Success: true, Message: message, Data: data})
}

// WriteError writes a failure envelope with a plain message.
func (h *BaseHandler) WriteError(w http.ResponseWriter, status int, message string) {
	h.WriteJSON(w, status, Envelope{Success: false, Message: message})
}

// WriteAppError maps err onto a status and public message. Anything that is
// not an AppError is treated as an internal failure and never echoed.
func (h *BaseHandler) WriteAppError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	lg := logger.From(ctx)

	appErr, ok := internal.IsAppError(err)
	if !ok {
		lg.ErrorContext(ctx, "unclassified error", "error", err, "path", r.URL.Path)
		h.WriteError(w, http.StatusInternalServerError, internal.GenericFailureMessage)
		return
	}

	if appErr.StatusCode >= http.StatusInternalServerError {
		lg.ErrorContext(ctx, "request failed",
			"type", appErr.Type,
			"code", appErr.Code,
			"error", appErr.Error(),
			"path", r.URL.Path)
	} else {
		lg.WarnContext(ctx, "request rejected",
			"status", appErr.StatusCode,
			"code", appErr.Code,
			"message", appErr.GetDetailedMessage(),
			"path", r.URL.Path)
	}

	env := Envelope{Success: false, Message: appErr.PublicMessage()}
	if appErr.Details != nil && appErr.StatusCode < http.StatusInternalServerError {
		env.Data = appErr.Details
	}
	h.WriteJSON(w, appErr.StatusCode, env)
}

// MaxBodyBytes caps every request body the API reads.
const MaxBodyBytes int64 = 1 << 20

// DecodeJSON reads at most MaxBodyBytes of the request body into dst. An
// oversized body fails with a 413, anything else unreadable with a 400.
func (h *BaseHandler) DecodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return internal.NewBadRequestError("request body is required")
	}
	body := http.MaxBytesReader(nil, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return internal.NewPayloadTooLargeError(tooLarge.Limit)
		}
		return internal.NewBadRequestError("invalid request body")
	}
	return nil
}
