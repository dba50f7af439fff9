package catalog

// errors.go defines the pipeline error taxonomy and the mapping from
// technical errors to user-facing messages.
//
// Only three kinds of error propagate to the caller as hard failures:
//   - decode.ParseError  (malformed document, surfaced unchanged)
//   - SchemaError        (required canonical columns unresolved)
//   - StoreFatalError    (infrastructure-level store failure)
// Row-level problems are folded into RowError lists and never abort a run.

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoData is returned when the uploaded file decodes cleanly but contains
// no data rows.
var ErrNoData = errors.New("no data rows to import")

// ErrFileTooLarge is returned when the upload exceeds the configured size
// ceiling before any decoding is attempted.
var ErrFileTooLarge = errors.New("file exceeds maximum allowed size")

// SchemaError reports canonical fields that no uploaded header resolved to.
type SchemaError struct {
	Missing []Field
}

func (e *SchemaError) Error() string {
	names := make([]string, len(e.Missing))
	for i, f := range e.Missing {
		names[i] = string(f)
	}
	return fmt.Sprintf("required columns not found: %s", strings.Join(names, ", "))
}

// StoreFatalError wraps a store failure that is not attributable to a single
// row. It aborts the run and no ledger entry is written.
type StoreFatalError struct {
	Err error
}

func (e *StoreFatalError) Error() string {
	return fmt.Sprintf("catalog store failure: %v", e.Err)
}

func (e *StoreFatalError) Unwrap() error { return e.Err }

// UserMessage is a user-facing rendering of an error, with an action hint and
// a short code users can quote to support.
type UserMessage struct {
	Message string
	Action  string
	Code    string
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// Matched case-insensitively with strings.Contains; first match wins, so
// specific patterns come before general ones.
var errorPatterns = []errorPattern{
	{
		pattern: "no data rows",
		msg: UserMessage{
			Message: "The file contains no data rows",
			Action:  "Add at least one row below the header and upload again",
			Code:    "FILE001",
		},
	},
	{
		pattern: "maximum allowed size",
		msg: UserMessage{
			Message: "The file is too large",
			Action:  "Split the catalog into smaller files and upload each one",
			Code:    "FILE002",
		},
	},
	{
		pattern: "required columns not found",
		msg: UserMessage{
			Message: "Required columns are missing from the file",
			Action:  "Make sure the header row includes BookCode and BookName columns",
			Code:    "SCH001",
		},
	},
	{
		pattern: "parse",
		msg: UserMessage{
			Message: "The file could not be read as a spreadsheet",
			Action:  "Save the file as .xlsx or .csv and try again",
			Code:    "FILE003",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "The catalog database is unavailable",
			Action:  "Please try again in a few moments",
			Code:    "DB001",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The import timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "DB002",
		},
	},
	{
		pattern: "catalog store failure",
		msg: UserMessage{
			Message: "The import failed due to a database problem",
			Action:  "No changes were recorded; please try again",
			Code:    "DB003",
		},
	},
}

// MapError translates a technical error into a UserMessage. Unrecognized
// errors map to a generic message; the technical detail stays server-side.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{Message: "Success", Code: ""}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return UserMessage{
		Message: "An unexpected error occurred",
		Action:  "Please try again or contact support",
		Code:    "ERR000",
	}
}
