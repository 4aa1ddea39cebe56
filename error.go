package postbox

import (
	"bytes"
	"errors"
	"fmt"
)

// Application error codes
const (
	EINVALID      = "invalid"
	EUNAUTHORIZED = "unauthorized"
	EINTERNAL     = "internal"
)

// Error represents an application error
type Error struct {
	Code    string
	Message string
	Op      string
	Err     error
}

// ErrUnauthorized is returned by Confirm whatever the reason the token was rejected.
var ErrUnauthorized = &Error{Code: EUNAUTHORIZED, Message: "Invalid token."}

// Errorf returns an application error with the given code and formatted message.
func Errorf(code string, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// ErrorCode returns the code of the first application error in err's chain.
func ErrorCode(err error) string {
	var e *Error
	if err == nil {
		return ""
	} else if !errors.As(err, &e) {
		return EINTERNAL
	} else if e.Code != "" {
		return e.Code
	} else if e.Err != nil {
		return ErrorCode(e.Err)
	}

	return EINTERNAL
}

// ErrorMessage returns the human-readable message of err, hiding internal details.
func ErrorMessage(err error) string {
	var e *Error
	if err == nil {
		return ""
	} else if !errors.As(err, &e) {
		return "An internal error has occurred."
	} else if e.Message != "" {
		return e.Message
	} else if e.Err != nil {
		return ErrorMessage(e.Err)
	}

	return "An internal error has occurred."
}

func (e *Error) Error() string {
	var buf bytes.Buffer

	if e.Op != "" {
		fmt.Fprintf(&buf, "%s: ", e.Op)
	}

	if e.Err != nil {
		buf.WriteString(e.Err.Error())
	} else {
		if e.Code != "" {
			fmt.Fprintf(&buf, "<%s> ", e.Code)
		}
		buf.WriteString(e.Message)
	}

	return buf.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}
