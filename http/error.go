package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/hlog"

	"github.com/quantonganh/postbox"
)

type appHandler func(w http.ResponseWriter, r *http.Request) error

// Error parse HTTP error and write to header and body
func (s *Server) Error(fn appHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		clientError, ok := err.(ClientError)
		if !ok {
			clientError = fromAppError(err)
		}

		status, headers := clientError.Headers()
		if status >= http.StatusInternalServerError {
			hlog.FromRequest(r).Error().Err(err).Msg("Request failed")
			sentry.CaptureException(err)
		} else {
			hlog.FromRequest(r).Warn().Err(err).Msg("Request rejected")
		}

		body, err := clientError.Body()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		for k, v := range headers {
			w.Header().Set(k, v)
		}

		w.WriteHeader(status)

		_, _ = w.Write(body)
	}
}

// fromAppError maps the code of an application error to an HTTP status
func fromAppError(err error) *Error {
	var status int
	switch postbox.ErrorCode(err) {
	case postbox.EINVALID:
		status = http.StatusBadRequest
	case postbox.EUNAUTHORIZED:
		status = http.StatusUnauthorized
	default:
		status = http.StatusInternalServerError
	}

	return &Error{
		Cause:   err,
		Message: postbox.ErrorMessage(err),
		Status:  status,
	}
}

// ClientError is the interface that wraps methods related to error on the client side
type ClientError interface {
	Error() string
	Body() ([]byte, error)
	Headers() (int, map[string]string)
}

// Error represents a detail error message
type Error struct {
	Cause   error  `json:"-"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

// Body returns response body from error
func (e *Error) Body() ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("Error while parsing response body: %v", err)
	}
	return body, nil
}

// Headers returns status and header
func (e *Error) Headers() (int, map[string]string) {
	headers := map[string]string{
		"Content-Type": "application/json; charset=utf-8",
	}
	if e.Status == http.StatusUnauthorized {
		headers["WWW-Authenticate"] = "Bearer"
	}
	return e.Status, headers
}

// NewError returns new error message
func NewError(err error, status int, message string) error {
	return &Error{
		Cause:   err,
		Message: message,
		Status:  status,
	}
}
