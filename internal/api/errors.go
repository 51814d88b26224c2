package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/retro-board/pkg/domain"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func NewBadRequestError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    lower(http.StatusText(http.StatusBadRequest)),
	}
}

// NewNotFoundError reports err's message to the caller, so the body names the
// missing entity.
func NewNotFoundError(err error) *ApiError {
	msg := lower(http.StatusText(http.StatusNotFound))
	if err != nil {
		msg = err.Error()
	}

	return &ApiError{
		StatusCode: http.StatusNotFound,
		Message:    msg,
		Err:        err,
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

func NewServiceUnavailableError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusServiceUnavailable,
		Message:    lower(http.StatusText(http.StatusServiceUnavailable)),
		Err:        err,
	}
}

// errorFor maps a service error onto the response sent to the caller.
func errorFor(err error) *ApiError {
	var nf *domain.NotFoundError
	if errors.As(err, &nf) {
		return NewNotFoundError(nf)
	}
	return NewInternalServerError(err)
}
