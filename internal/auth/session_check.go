package auth

import (
	"context"

	"github.com/frahmantamala/attendance-management/internal"
	"github.com/frahmantamala/attendance-management/internal/command"
)

const checkSessionOperation = "sp_check_session"

// ProcedureSessionChecker asks the backing store whether a token still has
// a live session, through the stored-procedure protocol.
type ProcedureSessionChecker struct {
	runner command.Runner
}

var _ SessionChecker = (*ProcedureSessionChecker)(nil)

func NewProcedureSessionChecker(runner command.Runner) *ProcedureSessionChecker {
	return &ProcedureSessionChecker{runner: runner}
}

func (c *ProcedureSessionChecker) CheckSession(ctx context.Context, token string) error {
	res, err := c.runner.Invoke(ctx, checkSessionOperation, token)
	if err != nil {
		return err
	}

	switch res.Outcome {
	case command.OutcomeSuccess:
		return nil
	case command.OutcomeDecodeError:
		return internal.NewProtocolError("session check result could not be decoded", res.DecodeErr)
	default:
		return internal.ErrSessionInvalid
	}
}
