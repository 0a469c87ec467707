package response

import (
	"errors"
	"fmt"
)

// Error is a domain error that knows the HTTP status it maps to.
type Error struct {
	Code int
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Is(target error) bool {
	var t *Error
	ok := errors.As(target, &t)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Err.Error() == t.Err.Error()
}

func NewError(code int, err string) error {
	return &Error{code, errors.New(err)}
}

// Wrap attaches cause to a domain error while keeping errors.Is/As on the
// domain error working.
func Wrap(domainErr error, cause error) error {
	if cause == nil {
		return domainErr
	}
	return fmt.Errorf("%w: %v", domainErr, cause)
}
