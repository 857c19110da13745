package attendance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/attendance-management/internal"
	"github.com/frahmantamala/attendance-management/internal/audit"
	"github.com/frahmantamala/attendance-management/internal/auth"
	"github.com/frahmantamala/attendance-management/internal/command"
	"github.com/frahmantamala/attendance-management/pkg/logger"
)

const (
	markAttendanceOperation = "sp_mark_attendance"
	reviewLeaveOperation    = "sp_review_leave_requests"
)

// BatchOutcome reports a bulk command item by item.
type BatchOutcome struct {
	Applied  int             `json:"applied"`
	Failed   int             `json:"failed"`
	Entries  []command.Entry `json:"entries"`
	Failures []command.Entry `json:"failures,omitempty"`
}

func outcomeOf(res command.Result) BatchOutcome {
	return outcomeOfItems(res.Entries)
}

// markOutcome drops the batch header sp_mark_attendance puts in front of the
// per-student entries, so applied counts records only.
func markOutcome(res command.Result, records int) BatchOutcome {
	items := res.Entries
	if extra := len(items) - records; extra > 0 {
		items = items[extra:]
	}
	return outcomeOfItems(items)
}

func outcomeOfItems(items []command.Entry) BatchOutcome {
	var failures []command.Entry
	for _, e := range items {
		if e.Code != 0 {
			failures = append(failures, e)
		}
	}
	return BatchOutcome{
		Applied:  len(items) - len(failures),
		Failed:   len(failures),
		Entries:  items,
		Failures: failures,
	}
}

type ServiceAPI interface {
	MarkAttendance(ctx context.Context, ac audit.Context, identity *auth.Identity, dto MarkAttendanceDTO) (command.Result, error)
	ReviewLeaveRequests(ctx context.Context, ac audit.Context, identity *auth.Identity, dto ReviewLeaveDTO) (command.Result, error)
}

type Service struct {
	runner command.Runner
	logger *slog.Logger
}

var _ ServiceAPI = (*Service)(nil)

func NewService(runner command.Runner) *Service {
	return &Service{runner: runner, logger: logger.LoggerWrapper()}
}

// MarkAttendance records a whole class session at once. One bad record
// rolls back the batch.
func (s *Service) MarkAttendance(ctx context.Context, ac audit.Context, identity *auth.Identity, dto MarkAttendanceDTO) (command.Result, error) {
	if identity == nil {
		return command.Result{}, internal.ErrMissingToken
	}
	if err := dto.Validate(); err != nil {
		return command.Result{}, err
	}

	recordsJSON, err := command.EncodeList(dto.Records)
	if err != nil {
		return command.Result{}, internal.NewInternalError("failed to encode attendance records", err)
	}

	res, err := s.runner.MutateBulk(ctx, markAttendanceOperation, ac, command.AllOrNothing,
		dto.ClassSessionID, identity.ActingAs(), recordsJSON)
	if err != nil {
		return res, err
	}

	s.logger.InfoContext(ctx, "attendance marked",
		"class_session_id", dto.ClassSessionID,
		"records", len(dto.Records),
		"marked_by", identity.ActingAs())
	return res, nil
}

// ReviewLeaveRequests decides many requests independently. Whatever applied
// stays applied; the call fails only when nothing did.
func (s *Service) ReviewLeaveRequests(ctx context.Context, ac audit.Context, identity *auth.Identity, dto ReviewLeaveDTO) (command.Result, error) {
	if identity == nil {
		return command.Result{}, internal.ErrMissingToken
	}
	if err := dto.Validate(); err != nil {
		return command.Result{}, err
	}

	idsJSON, err := command.EncodeList(uniqueIDs(dto.RequestIDs))
	if err != nil {
		return command.Result{}, internal.NewInternalError("failed to encode leave request ids", err)
	}

	res, err := s.runner.MutateBulk(ctx, reviewLeaveOperation, ac, command.BestEffort,
		identity.ActingAs(), dto.Decision, dto.Remarks, idsJSON)
	if err != nil {
		return res, err
	}

	if failed := res.Failures(); len(failed) > 0 {
		s.logger.WarnContext(ctx, "leave review partially applied",
			"decision", dto.Decision,
			"failed", len(failed),
			"total", len(res.Entries))
	}
	return res, nil
}

// Summary is the envelope message for a best-effort batch.
func Summary(res command.Result, noun string) string {
	failed := len(res.Failures())
	if failed == 0 {
		return res.Message()
	}
	return fmt.Sprintf("%d of %d %s processed", len(res.Entries)-failed, len(res.Entries), noun)
}

func uniqueIDs(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
