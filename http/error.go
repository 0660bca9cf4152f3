package http

import (
	"encoding/json"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/hlog"

	"github.com/athomewithrose/homeletter"
)

type appHandler func(w http.ResponseWriter, r *http.Request) error

// Error turns the error returned by fn into a JSON response. Coded domain errors keep
// their message; anything else is logged, reported and answered with a generic message.
func (s *Server) Error(fn appHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		logger := hlog.FromRequest(r)

		clientError, ok := err.(ClientError)
		if !ok {
			clientError = fromDomainError(err)
		}

		status, headers := clientError.Headers()
		if status >= http.StatusInternalServerError {
			logger.Error().Msg(err.Error())
			sentry.CaptureException(err)
		} else {
			logger.Info().Int("status", status).Msg(err.Error())
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

// ClientError is the interface that wraps methods related to error on the client side
type ClientError interface {
	Error() string
	Body() ([]byte, error)
	Headers() (int, map[string]string)
}

// Error represents a detail error message
type Error struct {
	Cause   error  `json:"-"`
	Success bool   `json:"success"`
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
	return json.Marshal(e)
}

// Headers returns status and header
func (e *Error) Headers() (int, map[string]string) {
	return e.Status, map[string]string{
		"Content-Type": "application/json; charset=utf-8",
	}
}

// NewError returns new error message
func NewError(err error, status int, message string) error {
	return &Error{
		Cause:   err,
		Message: message,
		Status:  status,
	}
}

func fromDomainError(err error) *Error {
	status := http.StatusInternalServerError
	switch homeletter.ErrorCode(err) {
	case homeletter.ErrInvalid, homeletter.ErrConflict:
		status = http.StatusBadRequest
	case homeletter.ErrNotFound:
		status = http.StatusNotFound
	case homeletter.ErrUnauthorized:
		status = http.StatusUnauthorized
	}

	return &Error{
		Cause:   err,
		Message: homeletter.ErrorMessage(err),
		Status:  status,
	}
}

func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	//nolint:errcheck
	json.NewEncoder(w).Encode(response)
}
