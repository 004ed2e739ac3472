package waf

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error codes
const (
	ErrCodeExtractionFailed = "EXTRACTION_FAILED"
	ErrCodeDecodeEmpty      = "DECODE_EMPTY"
	ErrCodeCookieNotFound   = "COOKIE_NOT_FOUND"
	ErrCodeNetworkFailed    = "NETWORK_FAILED"
	ErrCodeTokenMissing     = "TOKEN_MISSING"
	ErrCodeScriptFailed     = "SCRIPT_FAILED"
)

// Group names a required parameter group of a challenge script.
type Group string

const (
	GroupArray Group = "array"
	GroupSeed  Group = "seed"
	GroupLoop1 Group = "loop1"
	GroupLoop2 Group = "loop2"
	GroupLoop3 Group = "loop3"
)

// Phase names which of the two page fetches failed.
type Phase string

const (
	PhaseEntry      Phase = "entry"
	PhaseRevalidate Phase = "revalidate"
)

// Error represents a structured error with code and details
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Details != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Details)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler
func (e *Error) MarshalJSON() ([]byte, error) {
	type Alias Error
	return json.Marshal(&struct {
		*Alias
		Error string `json:"error"`
	}{
		Alias: (*Alias)(e),
		Error: e.Error(),
	})
}

// NewError creates a new Error with the given code and message
func NewError(code string, message string, details ...any) *Error {
	e := &Error{
		Code:    code,
		Message: message,
	}
	if len(details) > 0 {
		e.Details = details[0]
	}
	return e
}

func extractionError(group Group) *Error {
	return NewError(ErrCodeExtractionFailed, "challenge parameter group not found", group)
}

func decodeEmptyError(n int) *Error {
	return NewError(ErrCodeDecodeEmpty, "byte array too short to decode", map[string]int{"length": n, "min": MinArrayLen})
}

func cookieNotFoundError(cause error) *Error {
	e := NewError(ErrCodeCookieNotFound, "decoded fragment has no cookie")
	e.Err = cause
	return e
}

func networkError(phase Phase, cause error) *Error {
	e := NewError(ErrCodeNetworkFailed, "page fetch failed", phase)
	e.Err = cause
	return e
}

func scriptError(engine string, cause error) *Error {
	e := NewError(ErrCodeScriptFailed, "script evaluation failed", engine)
	e.Err = cause
	return e
}

func tokenMissingError() *Error {
	return NewError(ErrCodeTokenMissing, "secondary token not found")
}

// find walks the wrap tree for an *Error with the given code.
func find(err error, code string) (*Error, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Code == code {
			return e, true
		}
		if multi, ok := err.(interface{ Unwrap() []error }); ok {
			for _, inner := range multi.Unwrap() {
				if e, ok := find(inner, code); ok {
					return e, true
				}
			}
			return nil, false
		}
		err = errors.Unwrap(err)
	}
	return nil, false
}

// MissingGroup reports the parameter group an extraction failure names.
func MissingGroup(err error) (Group, bool) {
	e, ok := find(err, ErrCodeExtractionFailed)
	if !ok {
		return "", false
	}
	g, ok := e.Details.(Group)
	return g, ok
}

// FailedPhase reports which fetch a network failure happened in.
func FailedPhase(err error) (Phase, bool) {
	e, ok := find(err, ErrCodeNetworkFailed)
	if !ok {
		return "", false
	}
	p, ok := e.Details.(Phase)
	return p, ok
}

// IsExtraction returns true if a parameter group was missing from the page
func IsExtraction(err error) bool {
	_, ok := find(err, ErrCodeExtractionFailed)
	return ok
}

// IsDecodeEmpty returns true if the byte array was too short to decode
func IsDecodeEmpty(err error) bool {
	_, ok := find(err, ErrCodeDecodeEmpty)
	return ok
}

// IsCookieNotFound returns true if no cookie assignment could be recovered
func IsCookieNotFound(err error) bool {
	_, ok := find(err, ErrCodeCookieNotFound)
	return ok
}

// IsNetwork returns true if a page fetch failed
func IsNetwork(err error) bool {
	_, ok := find(err, ErrCodeNetworkFailed)
	return ok
}

// IsTokenMissing returns true if the cycle completed without a secondary token
func IsTokenMissing(err error) bool {
	_, ok := find(err, ErrCodeTokenMissing)
	return ok
}

// IsScript returns true if the script engine fallback failed
func IsScript(err error) bool {
	_, ok := find(err, ErrCodeScriptFailed)
	return ok
}
