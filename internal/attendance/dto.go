package attendance

import (
	"fmt"

	"github.com/frahmantamala/attendance-management/internal"
	"github.com/frahmantamala/attendance-management/internal/core/common/validation"
)

const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
	StatusLate    = "late"
	StatusExcused = "excused"

	DecisionApproved = "approved"
	DecisionRejected = "rejected"

	maxBatchSize = 500
)

// Record is one student's mark within a class session.
type Record struct {
	StudentID int64  `json:"student_id"`
	Status    string `json:"status"`
	Note      string `json:"note,omitempty"`
}

type MarkAttendanceDTO struct {
	ClassSessionID int64    `json:"class_session_id"`
	Records        []Record `json:"records"`
}

func (d MarkAttendanceDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("class_session_id", d.ClassSessionID).Required().Positive()
	v.Field("records", d.Records).Custom(func(value interface{}) *internal.AppError {
		records, _ := value.([]Record)
		if len(records) == 0 {
			return internal.NewValidationFieldError("records", "records must not be empty", internal.ErrCodeValidationFailed)
		}
		if len(records) > maxBatchSize {
			return internal.NewValidationFieldError("records", fmt.Sprintf("records must not exceed %d entries", maxBatchSize), internal.ErrCodeValidationFailed)
		}
		seen := make(map[int64]struct{}, len(records))
		for i, rec := range records {
			field := fmt.Sprintf("records[%d]", i)
			if rec.StudentID <= 0 {
				return internal.NewValidationFieldError(field, field+".student_id must be positive", internal.ErrCodeValidationFailed)
			}
			if _, dup := seen[rec.StudentID]; dup {
				return internal.NewValidationFieldError(field, fmt.Sprintf("student %d appears more than once", rec.StudentID), internal.ErrCodeValidationFailed)
			}
			seen[rec.StudentID] = struct{}{}
			switch rec.Status {
			case StatusPresent, StatusAbsent, StatusLate, StatusExcused:
			default:
				return internal.NewValidationFieldError(field, field+".status must be one of: present, absent, late, excused", internal.ErrCodeValidationFailed)
			}
		}
		return nil
	})
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type ReviewLeaveDTO struct {
	RequestIDs []int64 `json:"request_ids"`
	Decision   string  `json:"decision"`
	Remarks    string  `json:"remarks"`
}

func (d ReviewLeaveDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("decision", d.Decision).Required().OneOf(DecisionApproved, DecisionRejected)
	v.Field("remarks", d.Remarks).MaxLength(500)
	v.Field("request_ids", d.RequestIDs).Custom(func(value interface{}) *internal.AppError {
		ids, _ := value.([]int64)
		if len(ids) == 0 {
			return internal.NewValidationFieldError("request_ids", "request_ids must not be empty", internal.ErrCodeValidationFailed)
		}
		if len(ids) > maxBatchSize {
			return internal.NewValidationFieldError("request_ids", fmt.Sprintf("request_ids must not exceed %d entries", maxBatchSize), internal.ErrCodeValidationFailed)
		}
		for i, id := range ids {
			if id <= 0 {
				return internal.NewValidationFieldError("request_ids", fmt.Sprintf("request_ids[%d] must be positive", i), internal.ErrCodeValidationFailed)
			}
		}
		return nil
	})
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}
