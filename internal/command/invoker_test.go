package command_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/frahmantamala/attendance-management/internal"
	"github.com/frahmantamala/attendance-management/internal/audit"
	"github.com/frahmantamala/attendance-management/internal/command"
	pkglogger "github.com/frahmantamala/attendance-management/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Invoker", func() {
	var (
		mock    sqlmock.Sqlmock
		db      *sqlx.DB
		logger  *slog.Logger
		ac      audit.Context
		timeout time.Duration
	)

	newInvoker := func(d command.Dialect) *command.Invoker {
		return command.NewInvoker(db, d, timeout, logger, command.NewMetrics(prometheus.NewRegistry()))
	}

	BeforeEach(func() {
		rawDB, m, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		Expect(err).NotTo(HaveOccurred())
		mock = m
		db = sqlx.NewDb(rawDB, "sqlmock")
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		ac = audit.Context{ActorID: "42", OriginAddress: "10.0.0.1", SessionFingerprint: "attendance-api-42-1700000000000"}
		timeout = time.Second
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
		_ = db.Close()
	})

	Describe("with the MySQL dialect", func() {
		It("resets, calls and fetches the session variable on one connection", func() {
			mock.ExpectExec("SET @p_result = NULL").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec("CALL sp_check_session(?, @p_result)").
				WithArgs("token-abc").
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery("SELECT @p_result").
				WillReturnRows(sqlmock.NewRows([]string{"@p_result"}).AddRow(`[{"code":0,"message":"Session active"}]`))

			res, err := newInvoker(command.NewMySQL()).Invoke(context.Background(), "sp_check_session", "token-abc")

			Expect(err).NotTo(HaveOccurred())
			Expect(res.OK()).To(BeTrue())
			Expect(res.Message()).To(Equal("Session active"))
		})

		It("returns a decode-error result rather than failing when the variable is NULL", func() {
			mock.ExpectExec("SET @p_result = NULL").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec("CALL sp_check_session(?, @p_result)").
				WithArgs("token-abc").
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery("SELECT @p_result").
				WillReturnRows(sqlmock.NewRows([]string{"@p_result"}).AddRow(nil))

			res, err := newInvoker(command.NewMySQL()).Invoke(context.Background(), "sp_check_session", "token-abc")

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(command.OutcomeDecodeError))
			Expect(res.OK()).To(BeFalse())
		})
	})

	Describe("with the Postgres dialect", func() {
		It("appends the audit triple after business args and before the out slot, then commits", func() {
			mock.ExpectBegin()
			mock.ExpectExec("SELECT set_config('attendance.command_result', '', false)").
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec("CALL sp_toggle_user_permissions($1, $2, $3, $4, $5, $6)").
				WithArgs(7, "[3,5]", "42", "10.0.0.1", "attendance-api-42-1700000000000", "attendance.command_result").
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery("SELECT current_setting('attendance.command_result', true)").
				WillReturnRows(sqlmock.NewRows([]string{"current_setting"}).AddRow(`[{"code":0,"message":"Permissions updated"}]`))
			mock.ExpectCommit()

			res, err := newInvoker(command.NewPostgres()).Mutate(context.Background(), "sp_toggle_user_permissions", ac, 7, "[3,5]")

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Message()).To(Equal("Permissions updated"))
		})

		It("rolls back and reports a validation failure when the procedure rejects the input", func() {
			mock.ExpectBegin()
			mock.ExpectExec("SELECT set_config('attendance.command_result', '', false)").
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec("CALL sp_review_leave_requests($1, $2, $3, $4, $5, $6)").
				WithArgs("approved", "[1]", "42", "10.0.0.1", "attendance-api-42-1700000000000", "attendance.command_result").
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery("SELECT current_setting('attendance.command_result', true)").
				WillReturnRows(sqlmock.NewRows([]string{"current_setting"}).AddRow(`[{"code":4,"message":"Leave request 1 is not pending"}]`))
			mock.ExpectRollback()

			_, err := newInvoker(command.NewPostgres()).Mutate(context.Background(), "sp_review_leave_requests", ac, "approved", "[1]")

			appErr := appError(err)
			Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(appErr.PublicMessage()).To(Equal("Leave request 1 is not pending"))
		})

		It("rolls back an empty result as a protocol failure", func() {
			mock.ExpectBegin()
			mock.ExpectExec("SELECT set_config('attendance.command_result', '', false)").
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec("CALL sp_mark_attendance($1, $2, $3, $4, $5, $6)").
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery("SELECT current_setting('attendance.command_result', true)").
				WillReturnRows(sqlmock.NewRows([]string{"current_setting"}).AddRow(`[]`))
			mock.ExpectRollback()

			_, err := newInvoker(command.NewPostgres()).Mutate(context.Background(), "sp_mark_attendance", ac, 3, "[]")

			appErr := appError(err)
			Expect(appErr.Type).To(Equal(internal.ErrorTypeProtocol))
			Expect(appErr.PublicMessage()).To(Equal(internal.GenericFailureMessage))
		})

		It("rolls back a partially failed batch under AllOrNothing", func() {
			mock.ExpectBegin()
			mock.ExpectExec("SELECT set_config('attendance.command_result', '', false)").
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec("CALL sp_mark_attendance($1, $2, $3, $4, $5, $6)").
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery("SELECT current_setting('attendance.command_result', true)").
				WillReturnRows(sqlmock.NewRows([]string{"current_setting"}).
					AddRow(`[{"code":0,"message":"student 7 marked"},{"code":1,"message":"student 9 is not enrolled"}]`))
			mock.ExpectRollback()

			res, err := newInvoker(command.NewPostgres()).
				MutateBulk(context.Background(), "sp_mark_attendance", ac, command.AllOrNothing, 3, `[{"student_id":7},{"student_id":9}]`)

			Expect(err).To(HaveOccurred())
			Expect(appError(err).PublicMessage()).To(Equal("student 9 is not enrolled"))
			Expect(res.Entries).To(HaveLen(2))
		})

		It("commits a partially failed batch under BestEffort", func() {
			mock.ExpectBegin()
			mock.ExpectExec("SELECT set_config('attendance.command_result', '', false)").
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec("CALL sp_review_leave_requests($1, $2, $3, $4, $5, $6)").
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery("SELECT current_setting('attendance.command_result', true)").
				WillReturnRows(sqlmock.NewRows([]string{"current_setting"}).
					AddRow(`[{"code":0,"message":"request 1 approved"},{"code":4,"message":"request 2 is not pending"}]`))
			mock.ExpectCommit()

			res, err := newInvoker(command.NewPostgres()).
				MutateBulk(context.Background(), "sp_review_leave_requests", ac, command.BestEffort, "approved", "[1,2]")

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Failures()).To(HaveLen(1))
		})

		It("converts a failing call into a transport failure and rolls back", func() {
			mock.ExpectBegin()
			mock.ExpectExec("SELECT set_config('attendance.command_result', '', false)").
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec("CALL sp_mark_attendance($1, $2, $3, $4, $5, $6)").
				WillReturnError(errors.New("connection reset by peer"))
			mock.ExpectRollback()

			_, err := newInvoker(command.NewPostgres()).Mutate(context.Background(), "sp_mark_attendance", ac, 3, "[]")

			appErr := appError(err)
			Expect(appErr.Type).To(Equal(internal.ErrorTypeTransport))
			Expect(appErr.PublicMessage()).NotTo(ContainSubstring("connection reset"))
		})
	})

	It("fails with a transport failure when the store does not answer in time", func() {
		timeout = 20 * time.Millisecond
		mock.ExpectExec("SET @p_result = NULL").
			WillDelayFor(500 * time.Millisecond).
			WillReturnResult(sqlmock.NewResult(0, 0))

		_, err := newInvoker(command.NewMySQL()).Invoke(context.Background(), "sp_check_session", "token-abc")

		Expect(appError(err).Type).To(Equal(internal.ErrorTypeTransport))
	})

	It("logs a transport failure with the request-scoped fields", func() {
		var buf bytes.Buffer
		reqLogger := slog.New(slog.NewTextHandler(&buf, nil)).With("trace_id", "trace-7")
		ctx := pkglogger.NewContext(context.Background(), reqLogger)
		mock.ExpectExec("SET @p_result = NULL").
			WillReturnError(errors.New("broken pipe"))

		_, err := newInvoker(command.NewMySQL()).Invoke(ctx, "sp_check_session", "token-abc")

		Expect(appError(err).Type).To(Equal(internal.ErrorTypeTransport))
		Expect(buf.String()).To(ContainSubstring("command transport failure"))
		Expect(buf.String()).To(ContainSubstring("trace_id=trace-7"))
	})

	It("rejects operation names that are not plain identifiers before touching the store", func() {
		_, err := newInvoker(command.NewMySQL()).Invoke(context.Background(), "sp_x(); DROP TABLE users; --")

		Expect(appError(err).Code).To(Equal(internal.ErrCodeBadRequest))
	})

	It("refuses to run a mutation without an actor", func() {
		_, err := newInvoker(command.NewPostgres()).Mutate(context.Background(), "sp_mark_attendance", audit.Context{}, 3, "[]")

		Expect(err).To(MatchError(ContainSubstring("audit context")))
	})
})
