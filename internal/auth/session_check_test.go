package auth

import (
	"context"
	"errors"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/frahmantamala/attendance-management/internal"
	"github.com/frahmantamala/attendance-management/internal/audit"
	"github.com/frahmantamala/attendance-management/internal/command"
)

type stubRunner struct {
	result command.Result
	err    error
	calls  []string
	args   [][]any
}

func (s *stubRunner) Invoke(ctx context.Context, op string, args ...any) (command.Result, error) {
	s.calls = append(s.calls, op)
	s.args = append(s.args, args)
	return s.result, s.err
}

func (s *stubRunner) Mutate(ctx context.Context, op string, ac audit.Context, args ...any) (command.Result, error) {
	return s.MutateBulk(ctx, op, ac, command.FirstEntry, args...)
}

func (s *stubRunner) MutateBulk(ctx context.Context, op string, ac audit.Context, policy command.BulkPolicy, args ...any) (command.Result, error) {
	s.calls = append(s.calls, op)
	s.args = append(s.args, args)
	return s.result, s.err
}

var _ = ginkgo.Describe("ProcedureSessionChecker", func() {
	var (
		runner  *stubRunner
		checker *ProcedureSessionChecker
	)

	ginkgo.BeforeEach(func() {
		runner = &stubRunner{}
		checker = NewProcedureSessionChecker(runner)
	})

	ginkgo.It("passes the raw token to the session procedure", func() {
		runner.result = command.NewResult(command.Entry{Code: 0, Message: "Session active"})

		gomega.Expect(checker.CheckSession(context.Background(), "tok")).To(gomega.Succeed())
		gomega.Expect(runner.calls).To(gomega.Equal([]string{"sp_check_session"}))
		gomega.Expect(runner.args[0]).To(gomega.Equal([]any{"tok"}))
	})

	ginkgo.It("treats a non-zero first code as a dead session", func() {
		runner.result = command.NewResult(command.Entry{Code: 1, Message: "Session expired"})

		err := checker.CheckSession(context.Background(), "tok")
		gomega.Expect(errors.Is(err, internal.ErrSessionInvalid)).To(gomega.BeTrue())
	})

	ginkgo.It("treats an empty result as a dead session", func() {
		runner.result = command.DecodeString("[]")

		err := checker.CheckSession(context.Background(), "tok")
		gomega.Expect(errors.Is(err, internal.ErrSessionInvalid)).To(gomega.BeTrue())
	})

	ginkgo.It("reports an undecodable result as a protocol failure", func() {
		runner.result = command.DecodeString("{oops")

		err := checker.CheckSession(context.Background(), "tok")
		gomega.Expect(asAppError(err).Type).To(gomega.Equal(internal.ErrorTypeProtocol))
	})

	ginkgo.It("passes transport failures through", func() {
		runner.err = internal.NewTransportError("backing store call failed", errors.New("eof"))

		err := checker.CheckSession(context.Background(), "tok")
		gomega.Expect(asAppError(err).Type).To(gomega.Equal(internal.ErrorTypeTransport))
	})
})
