package command

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/frahmantamala/attendance-management/internal"
)

// FallbackMessage is used when a failed result carries no message of its own.
const FallbackMessage = "Operation failed"

// Entry is one {code, message} pair written by a stored procedure.
type Entry struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Outcome tags how a raw out-parameter value decoded.
type Outcome int

const (
	OutcomeDecodeError Outcome = iota
	OutcomeEmpty
	OutcomeRejected
	OutcomeSuccess
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRejected:
		return "rejected"
	case OutcomeEmpty:
		return "empty"
	default:
		return "decode_error"
	}
}

var (
	errNullResult  = errors.New("command result is NULL")
	errBlankResult = errors.New("command result is blank")

	errEntryNotObject   = errors.New("result entry is not an object")
	errEntryWithoutCode = errors.New("result entry has no code")
)

type Result struct {
	Entries []Entry
	Outcome Outcome
	// DecodeErr is set only when Outcome is OutcomeDecodeError.
	DecodeErr error
}

// NewResult builds a result from entries already in hand, classifying it the
// same way Decode would.
func NewResult(entries ...Entry) Result {
	return classify(entries)
}

// Decode turns the out-parameter value into a Result. It never fails: NULL,
// blank and malformed payloads become OutcomeDecodeError.
func Decode(raw sql.NullString) Result {
	if !raw.Valid {
		return Result{Outcome: OutcomeDecodeError, DecodeErr: errNullResult}
	}
	return DecodeString(raw.String)
}

func DecodeString(raw string) Result {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Result{Outcome: OutcomeDecodeError, DecodeErr: errBlankResult}
	}
	if trimmed == "null" {
		return Result{Outcome: OutcomeDecodeError, DecodeErr: errNullResult}
	}

	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &elems); err != nil {
		return Result{Outcome: OutcomeDecodeError, DecodeErr: err}
	}
	entries := make([]Entry, 0, len(elems))
	for i, elem := range elems {
		e, err := decodeEntry(elem)
		if err != nil {
			return Result{Outcome: OutcomeDecodeError, DecodeErr: fmt.Errorf("entry %d: %w", i, err)}
		}
		entries = append(entries, e)
	}
	return classify(entries)
}

// wireEntry keeps pointers so an absent code is told apart from code 0.
type wireEntry struct {
	Code    *int    `json:"code"`
	Message *string `json:"message"`
}

func decodeEntry(raw json.RawMessage) (Entry, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Entry{}, errEntryNotObject
	}
	var w wireEntry
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return Entry{}, err
	}
	if w.Code == nil {
		return Entry{}, errEntryWithoutCode
	}
	e := Entry{Code: *w.Code}
	if w.Message != nil {
		e.Message = *w.Message
	}
	return e, nil
}

func classify(entries []Entry) Result {
	switch {
	case len(entries) == 0:
		return Result{Entries: []Entry{}, Outcome: OutcomeEmpty}
	case entries[0].Code == 0:
		return Result{Entries: entries, Outcome: OutcomeSuccess}
	default:
		return Result{Entries: entries, Outcome: OutcomeRejected}
	}
}

// OK is the canonical success test: non-empty and the first code is zero.
func (r Result) OK() bool {
	return r.Outcome == OutcomeSuccess && len(r.Entries) > 0 && r.Entries[0].Code == 0
}

// Message is the first entry's message, or FallbackMessage.
func (r Result) Message() string {
	if len(r.Entries) > 0 && strings.TrimSpace(r.Entries[0].Message) != "" {
		return r.Entries[0].Message
	}
	return FallbackMessage
}

// Failures lists every entry with a non-zero code, in order.
func (r Result) Failures() []Entry {
	var failed []Entry
	for _, e := range r.Entries {
		if e.Code != 0 {
			failed = append(failed, e)
		}
	}
	return failed
}

// Err maps the result onto the error taxonomy using the FirstEntry policy.
func (r Result) Err() error {
	return FirstEntry.Judge(r)
}

// BulkPolicy decides whether a result with several entries counts as success.
type BulkPolicy int

const (
	// FirstEntry trusts entries[0] only.
	FirstEntry BulkPolicy = iota
	// AllOrNothing requires every entry to succeed; anything else rolls back.
	AllOrNothing
	// BestEffort keeps whatever applied and fails only if every entry failed.
	BestEffort
)

func (p BulkPolicy) String() string {
	switch p {
	case AllOrNothing:
		return "all_or_nothing"
	case BestEffort:
		return "best_effort"
	default:
		return "first_entry"
	}
}

// Judge returns nil when the policy accepts r, otherwise a taxonomy error.
func (p BulkPolicy) Judge(r Result) error {
	switch r.Outcome {
	case OutcomeDecodeError:
		return internal.NewProtocolError("command result could not be decoded", r.DecodeErr)
	case OutcomeEmpty:
		return internal.NewProtocolError("command returned no result entries", nil)
	}

	switch p {
	case AllOrNothing:
		if failed := r.Failures(); len(failed) > 0 {
			return internal.NewCommandRejectedError(messageOr(failed[0].Message))
		}
		return nil
	case BestEffort:
		if len(r.Failures()) == len(r.Entries) {
			return internal.NewCommandRejectedError(r.Message())
		}
		return nil
	default:
		if !r.OK() {
			return internal.NewCommandRejectedError(r.Message())
		}
		return nil
	}
}

func messageOr(msg string) string {
	if strings.TrimSpace(msg) == "" {
		return FallbackMessage
	}
	return msg
}
