// Package syncerr defines the error kinds produced by the sheet backup path.
package syncerr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure by what the operator has to do about it.
type Kind string

const (
	KindConfigMissing          Kind = "config_missing"
	KindInvalidCredential      Kind = "invalid_credential"
	KindMalformedKey           Kind = "malformed_key"
	KindKeyDecode              Kind = "key_decode_error"
	KindKeyImport              Kind = "key_import_error"
	KindTokenExchange          Kind = "token_exchange_failed"
	KindSpreadsheetNotFound    Kind = "spreadsheet_not_found"
	KindSpreadsheetNotShared   Kind = "spreadsheet_not_shared"
	KindSpreadsheetUnreachable Kind = "spreadsheet_unreachable"
	KindWriteExhausted         Kind = "write_exhausted"
	KindTimeout                Kind = "timeout"
	KindCanceled               Kind = "canceled"
	KindInProgress             Kind = "backup_in_progress"
	KindUnknownDocument        Kind = "unknown_document_type"
	KindSheetConflict          Kind = "sheet_title_conflict"
	KindStorage                Kind = "storage"
	KindPartial                Kind = "partial"
	KindUnknown                Kind = "unknown"
)

var hints = map[Kind]string{
	KindConfigMissing:          "Save the spreadsheet ID and service account JSON in the backup settings.",
	KindInvalidCredential:      "Re-enter the service account credentials; the JSON is missing required fields.",
	KindMalformedKey:           "Re-download the service account JSON key; the private key PEM markers are missing.",
	KindKeyDecode:              "Check the private key format; it contains characters that are not valid base64.",
	KindKeyImport:              "The private key is not a valid PKCS#8 RSA key; it is likely truncated or in the wrong format.",
	KindTokenExchange:          "Google rejected the token request; check that the service account is enabled and the clock is correct.",
	KindSpreadsheetNotFound:    "The spreadsheet was not found; check the spreadsheet ID.",
	KindSpreadsheetNotShared:   "Share the spreadsheet with the service account email as an editor.",
	KindSpreadsheetUnreachable: "The spreadsheet service returned an error; try again later.",
	KindWriteExhausted:         "Every write format was rejected; see the attempt history in the backup log.",
	KindTimeout:                "The spreadsheet service did not answer in time; try again later.",
	KindInProgress:             "A backup is already running; wait for it to finish.",
	KindUnknownDocument:        "Check the document type; see the list of supported document types.",
	KindSheetConflict:          "Two document types write the same sheet; give one of them another sheet name or spreadsheet.",
}

// Error is a classified failure. Status and Detail carry upstream HTTP
// diagnostics when the failure came from a remote service.
type Error struct {
	Kind   Kind
	Msg    string
	Status int
	Detail string
	Err    error
}

// New returns a classified error wrapping err (which may be nil).
func New(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func (e *Error) Error() string {
	s := e.Msg
	if e.Status != 0 {
		s = fmt.Sprintf("%s (status %d)", s, e.Status)
	}
	if e.Detail != "" {
		s += ": " + e.Detail
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the kind of the first classified error in err's chain.
// Context errors that were never classified map to timeout/canceled.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsUnreachable reports whether err means the spreadsheet could not be reached at all.
func IsUnreachable(err error) bool {
	switch KindOf(err) {
	case KindSpreadsheetNotFound, KindSpreadsheetNotShared, KindSpreadsheetUnreachable:
		return true
	}
	return false
}

// Hint returns the operator remediation text for kind, or "".
func Hint(kind Kind) string {
	return hints[kind]
}
