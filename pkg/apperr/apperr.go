// Package apperr carries the error taxonomy shared by every service. Handlers
// translate a Kind into an HTTP status; services only decide which kind applies.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindBusinessRule
	KindProvider
	KindConsistency
	KindNotFound
	KindUnauthorized
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindBusinessRule:
		return "business_rule"
	case KindProvider:
		return "provider"
	case KindConsistency:
		return "consistency"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Business rule codes.
const (
	CodeValidation        = "VALIDATION_FAILED"
	CodeNoRoomAvailable   = "NO_ROOM_AVAILABLE"
	CodeAlreadyRefunded   = "ALREADY_REFUNDED"
	CodeAmountOutOfRange  = "AMOUNT_OUT_OF_RANGE"
	CodeNotCaptured       = "NOT_CAPTURED"
	CodeAlreadyPaid       = "ALREADY_PAID"
	CodeAccountLocked     = "ACCOUNT_LOCKED"
	CodeAccountInactive   = "ACCOUNT_INACTIVE"
	CodeEmailExists       = "EMAIL_EXISTS"
	CodeDuplicateRoomType = "DUPLICATE_ROOM_TYPE"
	CodeRoomHasBookings   = "ROOM_HAS_RESERVATIONS"
	CodeInvalidCreds      = "INVALID_CREDENTIALS"
	CodeInvalidToken      = "INVALID_TOKEN"
	CodeCaptchaFailed     = "CAPTCHA_FAILED"
	CodeReviewExists      = "REVIEW_EXISTS"
	CodeNotPaid           = "NOT_PAID"
	CodeResInactive       = "RESERVATION_INACTIVE"
	CodeQRExpired         = "QR_EXPIRED"
	CodeQRMismatch        = "QR_MISMATCH"
	CodeWrongMethod       = "WRONG_PAYMENT_METHOD"
	CodeSelfTarget        = "SELF_TARGET"
	CodeProviderFailure   = "PROVIDER_FAILURE"
	CodeConsistency       = "CONSISTENCY_FAILURE"
	CodeNotFound          = "NOT_FOUND"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString("; ")
			}
			fmt.Fprintf(&b, "%s: %s", k, e.Fields[k])
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind and Code so sentinel values work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

func Validation(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: "validation failed", Fields: fields}
}

func BusinessRule(code, msg string) *Error {
	return &Error{Kind: KindBusinessRule, Code: code, Message: msg}
}

func Provider(msg string, err error) *Error {
	return &Error{Kind: KindProvider, Code: CodeProviderFailure, Message: msg, Err: err}
}

func Consistency(msg string, err error) *Error {
	return &Error{Kind: KindConsistency, Code: CodeConsistency, Message: msg, Err: err}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: msg}
}

func Unauthorized(code, msg string) *Error {
	if code == "" {
		code = CodeUnauthorized
	}
	return &Error{Kind: KindUnauthorized, Code: code, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Code: CodeForbidden, Message: msg}
}

// As extracts an *Error from a wrapped chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf reports the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code string) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

// FieldErrors accumulates field-level messages before rejecting a request.
type FieldErrors map[string]string

func (f FieldErrors) Add(field, msg string) {
	if _, exists := f[field]; !exists {
		f[field] = msg
	}
}

func (f FieldErrors) Has(field string) bool {
	_, ok := f[field]
	return ok
}

// Err returns a Validation error when any field failed, nil otherwise.
func (f FieldErrors) Err() error {
	if len(f) == 0 {
		return nil
	}
	return Validation(map[string]string(f))
}
