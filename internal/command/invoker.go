package command

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/frahmantamala/attendance-management/internal"
	"github.com/frahmantamala/attendance-management/internal/audit"
	"github.com/frahmantamala/attendance-management/pkg/logger"
)

// Runner is the surface consumers depend on.
type Runner interface {
	Invoke(ctx context.Context, op string, args ...any) (Result, error)
	Mutate(ctx context.Context, op string, ac audit.Context, args ...any) (Result, error)
	MutateBulk(ctx context.Context, op string, ac audit.Context, policy BulkPolicy, args ...any) (Result, error)
}

// session is satisfied by both *sqlx.Conn and *sqlx.Tx.
type session interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row
}

type Invoker struct {
	db      *sqlx.DB
	dialect Dialect
	timeout time.Duration
	logger  *slog.Logger
	metrics *Metrics
}

var _ Runner = (*Invoker)(nil)

func NewInvoker(db *sqlx.DB, dialect Dialect, timeout time.Duration, lg *slog.Logger, metrics *Metrics) *Invoker {
	if lg == nil {
		lg = slog.Default()
	}
	return &Invoker{
		db:      db,
		dialect: dialect,
		timeout: timeout,
		logger:  lg,
		metrics: metrics,
	}
}

// Invoke runs a read-only command. The returned error is only ever a
// transport failure; callers inspect the Result themselves.
func (i *Invoker) Invoke(ctx context.Context, op string, args ...any) (Result, error) {
	if !validOperation(op) {
		return Result{}, internal.NewBadRequestError(fmt.Sprintf("invalid operation name %q", op))
	}

	ctx, cancel := internal.WithTimeout(ctx, i.timeout)
	defer cancel()

	started := time.Now()
	conn, err := i.db.Connx(ctx)
	if err != nil {
		return Result{}, i.transportFailure(ctx, op, started, err)
	}
	defer conn.Close()

	res, err := i.roundTrip(ctx, conn, op, args)
	if err != nil {
		return Result{}, i.transportFailure(ctx, op, started, err)
	}

	i.metrics.observe(op, outcomeLabel(res), started)
	if res.Outcome == OutcomeDecodeError {
		i.log(ctx).ErrorContext(ctx, "command result protocol violation", "operation", op, "error", res.DecodeErr)
	}
	return res, nil
}

// Mutate runs a state-changing command under the FirstEntry policy.
func (i *Invoker) Mutate(ctx context.Context, op string, ac audit.Context, args ...any) (Result, error) {
	return i.MutateBulk(ctx, op, ac, FirstEntry, args...)
}

// MutateBulk appends the audit triple after the business arguments and runs
// reset, call and fetch inside one transaction on one connection. The
// transaction commits only when policy accepts the decoded result.
func (i *Invoker) MutateBulk(ctx context.Context, op string, ac audit.Context, policy BulkPolicy, args ...any) (Result, error) {
	if !validOperation(op) {
		return Result{}, internal.NewBadRequestError(fmt.Sprintf("invalid operation name %q", op))
	}
	if ac.ActorID == "" {
		return Result{}, internal.NewInternalError("mutating command without audit context", audit.ErrAnonymousActor)
	}

	full := make([]any, 0, len(args)+3)
	full = append(full, args...)
	full = append(full, ac.Args()...)

	ctx, cancel := internal.WithTimeout(ctx, i.timeout)
	defer cancel()

	started := time.Now()
	conn, err := i.db.Connx(ctx)
	if err != nil {
		return Result{}, i.transportFailure(ctx, op, started, err)
	}
	defer conn.Close()

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return Result{}, i.transportFailure(ctx, op, started, err)
	}

	res, err := i.roundTrip(ctx, tx, op, full)
	if err != nil {
		i.rollback(ctx, tx, op)
		return Result{}, i.transportFailure(ctx, op, started, err)
	}

	if judged := policy.Judge(res); judged != nil {
		i.rollback(ctx, tx, op)
		i.metrics.observe(op, outcomeLabel(res), started)
		i.logJudged(ctx, op, policy, res, judged)
		return res, judged
	}

	if err := tx.Commit(); err != nil {
		return res, i.transportFailure(ctx, op, started, err)
	}

	i.metrics.observe(op, outcomeSuccess, started)
	i.log(ctx).DebugContext(ctx, "command committed",
		"operation", op,
		"policy", policy.String(),
		"entries", len(res.Entries),
		"actor_id", ac.ActorID)
	return res, nil
}

func (i *Invoker) roundTrip(ctx context.Context, s session, op string, args []any) (Result, error) {
	if _, err := s.ExecContext(ctx, i.dialect.ResetStatement()); err != nil {
		return Result{}, fmt.Errorf("reset out parameter: %w", err)
	}

	callArgs := make([]any, 0, len(args)+1)
	callArgs = append(callArgs, args...)
	callArgs = append(callArgs, i.dialect.PlaceholderArgs()...)
	if _, err := s.ExecContext(ctx, i.dialect.CallStatement(op, len(args)), callArgs...); err != nil {
		return Result{}, fmt.Errorf("call %s: %w", op, err)
	}

	var raw sql.NullString
	if err := s.QueryRowxContext(ctx, i.dialect.FetchStatement()).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Decode(sql.NullString{}), nil
		}
		return Result{}, fmt.Errorf("fetch out parameter: %w", err)
	}
	return Decode(raw), nil
}

// log prefers the request-scoped logger so trace and user fields are kept.
func (i *Invoker) log(ctx context.Context) *slog.Logger {
	if l, ok := logger.FromContext(ctx); ok {
		return l
	}
	return i.logger
}

func (i *Invoker) rollback(ctx context.Context, tx *sqlx.Tx, op string) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		i.log(ctx).ErrorContext(ctx, "command rollback failed", "operation", op, "error", err)
	}
}

func (i *Invoker) transportFailure(ctx context.Context, op string, started time.Time, err error) error {
	i.metrics.observe(op, outcomeTransport, started)
	i.log(ctx).ErrorContext(ctx, "command transport failure", "operation", op, "error", err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return internal.NewTransportError("backing store did not respond in time", err)
	}
	return internal.NewTransportError("backing store call failed", err)
}

func (i *Invoker) logJudged(ctx context.Context, op string, policy BulkPolicy, res Result, judged error) {
	if res.Outcome == OutcomeDecodeError || res.Outcome == OutcomeEmpty {
		i.log(ctx).ErrorContext(ctx, "command result protocol violation",
			"operation", op,
			"outcome", res.Outcome.String(),
			"error", judged)
		return
	}
	i.log(ctx).InfoContext(ctx, "command rejected",
		"operation", op,
		"policy", policy.String(),
		"message", res.Message(),
		"failed_entries", len(res.Failures()))
}

func outcomeLabel(res Result) string {
	switch res.Outcome {
	case OutcomeSuccess:
		return outcomeSuccess
	case OutcomeRejected:
		return outcomeRejected
	default:
		return outcomeProtocol
	}
}

// EncodeList serialises a list-shaped argument into one positional slot.
func EncodeList(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode list argument: %w", err)
	}
	if len(b) == 0 || b[0] != '[' {
		return "", fmt.Errorf("encode list argument: %T is not list shaped", v)
	}
	return string(b), nil
}
