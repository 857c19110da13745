package permission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/frahmantamala/attendance-management/internal"
	"github.com/frahmantamala/attendance-management/internal/audit"
	"github.com/frahmantamala/attendance-management/internal/auth"
	"github.com/frahmantamala/attendance-management/internal/command"
)

// Permission keys checked by handlers.
const (
	KeyManagePermissions = "permissions.manage"
	KeyMarkAttendance    = "attendance.mark"
	KeyViewAttendance    = "attendance.view"
	KeyReviewLeave       = "leave_requests.review"
	KeySubmitLeave       = "leave_requests.submit"
)

type Permission struct {
	ID          int64  `json:"id"`
	Key         string `json:"key"`
	Description string `json:"description,omitempty"`
}

// RepositoryAPI reads grants. Every call hits the store; nothing is cached.
type RepositoryAPI interface {
	EffectivePermissions(ctx context.Context, userID int64, role string) ([]Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
}

// GrantWriter replaces a user's direct grants with the desired set in one
// atomic step. A rejected toggle returns both the result and a taxonomy error.
type GrantWriter interface {
	ToggleUserPermissions(ctx context.Context, ac audit.Context, userID int64, desired []int64) (command.Result, error)
}

// Authorize is the coarse role gate.
func Authorize(identity *auth.Identity, roles ...string) error {
	if identity == nil {
		return internal.ErrMissingToken
	}
	for _, role := range roles {
		if identity.Role == role {
			return nil
		}
	}
	return internal.ErrForbidden
}

// ParsePermissionIDs accepts only a JSON array of positive integers.
// Duplicates collapse; order of first appearance is kept.
func ParsePermissionIDs(raw json.RawMessage) ([]int64, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, internal.NewBadRequestError("permission_ids must be an array of integers")
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, internal.NewBadRequestError("permission_ids must be an array of integers")
	}

	ids := make([]int64, 0, len(items))
	seen := make(map[int64]struct{}, len(items))
	for i, item := range items {
		id, err := strconv.ParseInt(string(bytes.TrimSpace(item)), 10, 64)
		if err != nil {
			return nil, internal.NewBadRequestError(fmt.Sprintf("permission_ids[%d] is not an integer", i))
		}
		if id <= 0 {
			return nil, internal.NewBadRequestError(fmt.Sprintf("permission_ids[%d] must be positive", i))
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// Delta is the symmetric difference between current and desired grants,
// split into what to add and what to remove. Both slices are sorted.
func Delta(current, desired []int64) (grant, revoke []int64) {
	have := make(map[int64]struct{}, len(current))
	for _, id := range current {
		have[id] = struct{}{}
	}
	want := make(map[int64]struct{}, len(desired))
	for _, id := range desired {
		want[id] = struct{}{}
	}

	for id := range want {
		if _, ok := have[id]; !ok {
			grant = append(grant, id)
		}
	}
	for id := range have {
		if _, ok := want[id]; !ok {
			revoke = append(revoke, id)
		}
	}
	sort.Slice(grant, func(i, j int) bool { return grant[i] < grant[j] })
	sort.Slice(revoke, func(i, j int) bool { return revoke[i] < revoke[j] })
	return grant, revoke
}

// ProcedureGrantWriter hands the whole toggle to sp_toggle_user_permissions,
// which computes the delta inside the invoker's transaction.
type ProcedureGrantWriter struct {
	runner command.Runner
}

var _ GrantWriter = (*ProcedureGrantWriter)(nil)

func NewProcedureGrantWriter(runner command.Runner) *ProcedureGrantWriter {
	return &ProcedureGrantWriter{runner: runner}
}

func (w *ProcedureGrantWriter) ToggleUserPermissions(ctx context.Context, ac audit.Context, userID int64, desired []int64) (command.Result, error) {
	if desired == nil {
		desired = []int64{}
	}
	idsJSON, err := command.EncodeList(desired)
	if err != nil {
		return command.Result{}, internal.NewInternalError("failed to encode permission ids", err)
	}
	return w.runner.Mutate(ctx, "sp_toggle_user_permissions", ac, userID, idsJSON)
}
