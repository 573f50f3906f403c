// internal/errs/errors.go
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Category classifies engine errors for callers and the API layer.
type Category string

const (
	Validation    Category = "validation"
	Authorization Category = "authorization"
	Capacity      Category = "capacity"
	Balance       Category = "balance"
	State         Category = "state"
	Signature     Category = "signature"
)

// Error is the typed error returned by every engine operation.
// All-or-nothing semantics: an operation that returns a non-nil *Error
// has made no state change.
type Error struct {
	Category Category
	Message  string
	Err      error
	Details  map[string]interface{}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two engine errors by category, so callers can use
// errors.Is(err, errs.New(errs.Balance, "")) style sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Category == t.Category
}

// WithDetail attaches a named value for diagnostics and API payloads.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func New(category Category, message string) *Error {
	return &Error{Category: category, Message: message}
}

func Newf(category Category, format string, args ...interface{}) *Error {
	return &Error{Category: category, Message: fmt.Sprintf(format, args...)}
}

func Wrap(category Category, message string, err error) *Error {
	return &Error{Category: category, Message: message, Err: err}
}

// CategoryOf extracts the category from any error in the chain.
func CategoryOf(err error) (Category, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Category, true
	}
	return "", false
}

func isCategory(err error, c Category) bool {
	got, ok := CategoryOf(err)
	return ok && got == c
}

func IsValidation(err error) bool    { return isCategory(err, Validation) }
func IsAuthorization(err error) bool { return isCategory(err, Authorization) }
func IsCapacity(err error) bool      { return isCategory(err, Capacity) }
func IsBalance(err error) bool       { return isCategory(err, Balance) }
func IsState(err error) bool         { return isCategory(err, State) }
func IsSignature(err error) bool     { return isCategory(err, Signature) }

// HTTPStatus maps an error to the status code the API layer serves.
// Unclassified errors are internal failures.
func HTTPStatus(err error) int {
	category, ok := CategoryOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch category {
	case Validation:
		return http.StatusBadRequest
	case Authorization:
		return http.StatusForbidden
	case Signature:
		return http.StatusUnauthorized
	case Balance:
		return http.StatusPaymentRequired
	case Capacity:
		return http.StatusUnprocessableEntity
	case State:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
