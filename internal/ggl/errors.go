// Package ggl implements the verification stages applied to a GGL payload:
// boundary extraction, the character contract check, parsing, legality
// checking and lowering. Each stage is a pure function of its input and the
// loaded contracts.
package ggl

import (
	"errors"
	"fmt"
)

// Stage-level result codes. These are the stable machine-readable codes
// reported by the oracle.
const (
	CodeBoundary        = "E_GGL_BOUNDARY"
	CodeOutsideText     = "E_GGL_OUTSIDE_TEXT"
	CodeDisallowedChar  = "E_TOK_DISALLOWED_CHAR"
	CodeOutOfRange      = "E_TOK_OUT_OF_RANGE"
	CodeRegexMismatch   = "E_TOK_REGEX_MISMATCH"
	CodeDisallowedRegex = "E_TOK_DISALLOWED_REGEX"
	CodeParse           = "E_PARSE"
	CodeLegal           = "E_LEGAL"
	CodeLower           = "E_LOWER"
	CodeOK              = "OK"
)

// Fine-grained detail codes naming the cause behind a generic stage code.
const (
	DetailParseEmpty       = "E_PARSE_EMPTY"
	DetailMissingAST       = "E_AST_MISSING"
	DetailLegalASTType     = "E_LEGAL_AST_TYPE"
	DetailLegalEmpty       = "E_LEGAL_EMPTY"
	DetailLegalMaxLength   = "E_LEGAL_MAX_LENGTH"
	DetailLowerBody        = "E_LOWER_BODY"
	DetailRegexUnavailable = "E_TOK_REGEX_ERROR"
)

// Sentinel causes, matchable with errors.Is.
var (
	ErrEmptyPayload       = errors.New("empty GGL payload")
	ErrMissingAST         = errors.New("missing AST")
	ErrTypeMismatch       = errors.New("ast type mismatch")
	ErrBodyMissingOrEmpty = errors.New("GGL body missing or empty")
	ErrBodyTooLong        = errors.New("GGL body too long")
	ErrMissingBody        = errors.New("missing GGL body for lowering")
	ErrCharContract       = errors.New("character contract violation")
)

// Error is a coded stage failure.
type Error struct {
	Stage   string // tokenize, parse, legal, lower
	Code    string // stable code reported to callers
	Detail  string // fine-grained cause code, empty when Code says it all
	Message string
	Line    int // 1-based, 0 when not applicable
	Col     int
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s at %d:%d: %s", e.Code, e.Line, e.Col, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the sentinel cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// At sets the position of the failure.
func (e *Error) At(line, col int) *Error {
	e.Line = line
	e.Col = col
	return e
}

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func stageError(stage, code, detail string, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Stage:   stage,
		Code:    code,
		Detail:  detail,
		Message: fmt.Sprintf(format, args...),
		Err:     cause,
	}
}
