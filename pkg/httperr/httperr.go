package httperr

import (
	"errors"
	"fmt"
)

// BadRequestError marks caller input the service refused. Its message is safe to show.
type BadRequestError struct {
	msg string
}

func (e *BadRequestError) Error() string { return e.msg }

func NewBadRequest(msg string) error { return &BadRequestError{msg: msg} }

func NewBadRequestf(format string, args ...any) error {
	return &BadRequestError{msg: fmt.Sprintf(format, args...)}
}

func IsBadRequest(err error) bool {
	_, ok := errors.AsType[*BadRequestError](err)
	return ok
}

// BadRequestMessage returns the user-facing message of the first bad request in err's chain.
func BadRequestMessage(err error) (string, bool) {
	e, ok := errors.AsType[*BadRequestError](err)
	if !ok {
		return "", false
	}
	return e.msg, true
}
