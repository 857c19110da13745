package permission

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/frahmantamala/attendance-management/internal"
	"github.com/frahmantamala/attendance-management/internal/audit"
	"github.com/frahmantamala/attendance-management/internal/auth"
	"github.com/frahmantamala/attendance-management/internal/command"
	"github.com/frahmantamala/attendance-management/pkg/logger"
)

type ServiceAPI interface {
	List(ctx context.Context) ([]Permission, error)
	Effective(ctx context.Context, identity *auth.Identity) ([]Permission, error)
	HasPermission(ctx context.Context, identity *auth.Identity, key string) (bool, error)
	TogglePermissions(ctx context.Context, ac audit.Context, userID int64, raw json.RawMessage) (command.Result, error)
}

type Service struct {
	repo   RepositoryAPI
	writer GrantWriter
	logger *slog.Logger
}

var _ ServiceAPI = (*Service)(nil)

func NewService(repo RepositoryAPI, writer GrantWriter) *Service {
	return &Service{
		repo:   repo,
		writer: writer,
		logger: logger.LoggerWrapper(),
	}
}

func (s *Service) List(ctx context.Context) ([]Permission, error) {
	perms, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return nil, internal.NewTransportError("failed to list permissions", err)
	}
	return perms, nil
}

// Effective is the union of the identity's role grants and its direct grants,
// read fresh from the store.
func (s *Service) Effective(ctx context.Context, identity *auth.Identity) ([]Permission, error) {
	if identity == nil {
		return nil, internal.ErrMissingToken
	}
	perms, err := s.repo.EffectivePermissions(ctx, identity.UserID, identity.Role)
	if err != nil {
		return nil, internal.NewTransportError("failed to load permissions", err)
	}
	return perms, nil
}

func (s *Service) HasPermission(ctx context.Context, identity *auth.Identity, key string) (bool, error) {
	perms, err := s.Effective(ctx, identity)
	if err != nil {
		return false, err
	}
	return Set(perms).Has(key), nil
}

// TogglePermissions validates the raw id list before anything reaches the
// writer, then replaces the user's direct grants with it.
func (s *Service) TogglePermissions(ctx context.Context, ac audit.Context, userID int64, raw json.RawMessage) (command.Result, error) {
	if userID <= 0 {
		return command.Result{}, internal.NewBadRequestError("user id must be positive")
	}
	ids, err := ParsePermissionIDs(raw)
	if err != nil {
		return command.Result{}, err
	}

	res, err := s.writer.ToggleUserPermissions(ctx, ac, userID, ids)
	if err != nil {
		if _, ok := internal.IsAppError(err); !ok {
			err = internal.NewTransportError("failed to toggle permissions", err)
		}
		return res, err
	}

	s.logger.InfoContext(ctx, "user permissions toggled",
		"target_user_id", userID,
		"permission_ids", ids,
		"actor_id", ac.ActorID,
		"fingerprint", ac.SessionFingerprint)
	return res, nil
}

// KeySet is a request-scoped view of effective permissions, for callers that
// make several decisions off one read.
type KeySet map[string]struct{}

func Set(perms []Permission) KeySet {
	set := make(KeySet, len(perms))
	for _, p := range perms {
		set[p.Key] = struct{}{}
	}
	return set
}

func (k KeySet) Has(key string) bool {
	_, ok := k[key]
	return ok
}

// HasID reports whether perms contains the numeric id, for callers that
// hold ids rather than keys.
func HasID(perms []Permission, id int64) bool {
	for _, p := range perms {
		if p.ID == id {
			return true
		}
	}
	return false
}
