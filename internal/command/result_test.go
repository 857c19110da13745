package command_test

import (
	"database/sql"
	"net/http"

	"github.com/frahmantamala/attendance-management/internal"
	"github.com/frahmantamala/attendance-management/internal/command"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func appError(err error) *internal.AppError {
	appErr, ok := internal.IsAppError(err)
	Expect(ok).To(BeTrue(), "expected an AppError, got %v", err)
	return appErr
}

var _ = Describe("Decode", func() {
	It("classifies an empty array as failure", func() {
		res := command.DecodeString(`[]`)

		Expect(res.Outcome).To(Equal(command.OutcomeEmpty))
		Expect(res.OK()).To(BeFalse())
		Expect(res.Message()).To(Equal(command.FallbackMessage))

		appErr := appError(res.Err())
		Expect(appErr.Type).To(Equal(internal.ErrorTypeProtocol))
		Expect(appErr.StatusCode).To(Equal(http.StatusInternalServerError))
	})

	It("classifies a zero first code as success", func() {
		res := command.DecodeString(`[{"code":0,"message":"ok"}]`)

		Expect(res.Outcome).To(Equal(command.OutcomeSuccess))
		Expect(res.OK()).To(BeTrue())
		Expect(res.Message()).To(Equal("ok"))
		Expect(res.Err()).NotTo(HaveOccurred())
	})

	It("classifies non-JSON payloads as a protocol failure", func() {
		var res command.Result
		Expect(func() { res = command.DecodeString(`Duplicate entry 'x'`) }).NotTo(Panic())

		Expect(res.Outcome).To(Equal(command.OutcomeDecodeError))
		Expect(res.DecodeErr).To(HaveOccurred())
		Expect(res.OK()).To(BeFalse())
		Expect(appError(res.Err()).Code).To(Equal(internal.ErrCodeProtocolFailure))
	})

	It("never treats NULL, blank, JSON null or malformed entries as success", func() {
		for _, res := range []command.Result{
			command.Decode(sql.NullString{}),
			command.Decode(sql.NullString{Valid: true, String: ""}),
			command.Decode(sql.NullString{Valid: true, String: "   "}),
			command.DecodeString("null"),
			command.DecodeString(`{"code":0,"message":"ok"}`),
			command.DecodeString(`[null]`),
			command.DecodeString(`[{}]`),
			command.DecodeString(`[{"message":"boom"}]`),
			command.DecodeString(`[{"status":"error"}]`),
			command.DecodeString(`[{"code":0,"message":"ok"},{"message":"missing code"}]`),
			command.DecodeString(`[{"code":"0","message":"quoted"}]`),
			command.DecodeString(`[{"code":1.5,"message":"fraction"}]`),
			command.DecodeString(`[[0,"ok"]]`),
		} {
			Expect(res.Outcome).To(Equal(command.OutcomeDecodeError))
			Expect(res.OK()).To(BeFalse())
		}
	})

	It("surfaces the procedure message when the first code is non-zero", func() {
		res := command.DecodeString(`[{"code":2,"message":"Leave request already reviewed"}]`)

		Expect(res.Outcome).To(Equal(command.OutcomeRejected))
		appErr := appError(res.Err())
		Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(appErr.Code).To(Equal(internal.ErrCodeCommandRejected))
		Expect(appErr.PublicMessage()).To(Equal("Leave request already reviewed"))
	})

	It("falls back to a generic message when the failing entry has none", func() {
		res := command.DecodeString(`[{"code":1}]`)
		Expect(res.Message()).To(Equal(command.FallbackMessage))
	})
})

var _ = Describe("BulkPolicy", func() {
	partial := command.NewResult(
		command.Entry{Code: 0, Message: "student 7 marked"},
		command.Entry{Code: 1, Message: "student 9 is not enrolled"},
		command.Entry{Code: 0, Message: "student 11 marked"},
	)

	It("accepts a partial batch under FirstEntry because only entry zero is inspected", func() {
		Expect(command.FirstEntry.Judge(partial)).To(Succeed())
	})

	It("rejects a partial batch under AllOrNothing with the first failing message", func() {
		err := command.AllOrNothing.Judge(partial)
		Expect(err).To(HaveOccurred())
		Expect(appError(err).PublicMessage()).To(Equal("student 9 is not enrolled"))
	})

	It("accepts a partial batch under BestEffort and exposes the failures", func() {
		Expect(command.BestEffort.Judge(partial)).To(Succeed())
		Expect(partial.Failures()).To(ConsistOf(command.Entry{Code: 1, Message: "student 9 is not enrolled"}))
	})

	It("rejects under BestEffort when every item failed", func() {
		allFailed := command.NewResult(
			command.Entry{Code: 3, Message: "request 1 not pending"},
			command.Entry{Code: 3, Message: "request 2 not pending"},
		)
		err := command.BestEffort.Judge(allFailed)
		Expect(err).To(HaveOccurred())
		Expect(appError(err).PublicMessage()).To(Equal("request 1 not pending"))
	})

	It("never accepts an empty result under any policy", func() {
		empty := command.NewResult()
		for _, p := range []command.BulkPolicy{command.FirstEntry, command.AllOrNothing, command.BestEffort} {
			Expect(p.Judge(empty)).To(HaveOccurred(), p.String())
		}
	})
})

var _ = Describe("EncodeList", func() {
	It("serialises slices as one JSON argument", func() {
		encoded, err := command.EncodeList([]int64{3, 5})
		Expect(err).NotTo(HaveOccurred())
		Expect(encoded).To(Equal("[3,5]"))
	})

	It("refuses values that are not list shaped", func() {
		_, err := command.EncodeList(map[string]int{"a": 1})
		Expect(err).To(HaveOccurred())
	})
})
