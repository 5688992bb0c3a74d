package errors

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	ErrCodeModelUnavailable ErrCode = "MODEL_UNAVAILABLE"
	ErrCodeInputInvalid     ErrCode = "INPUT_INVALID"
	ErrCodeNotFound         ErrCode = "NOT_FOUND"
	ErrCodeUpstream         ErrCode = "UPSTREAM"
	ErrCodeInternal         ErrCode = "INTERNAL"
)

type ErrCode string

// ErrorInfo is the error shape returned across the HTTP boundary.
// Only Message is serialized; Cause is kept for logging.
type ErrorInfo struct {
	HttpStatus int     `json:"-"`
	Code       ErrCode `json:"-"`
	Message    string  `json:"error"`
	Cause      error   `json:"-"`
}

func (e ErrorInfo) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e ErrorInfo) Unwrap() error {
	return e.Cause
}

func IsErrCode(err error, code ErrCode) bool {
	if err == nil {
		return false
	}
	info := ErrorInfo{}
	if errors.As(err, &info) {
		return info.Code == code
	}
	return false
}

func NewModelUnavailableError() ErrorInfo {
	return ErrorInfo{HttpStatus: http.StatusInternalServerError, Code: ErrCodeModelUnavailable, Message: "Model not available"}
}

func NewInputError(msg string) ErrorInfo {
	return ErrorInfo{HttpStatus: http.StatusBadRequest, Code: ErrCodeInputInvalid, Message: msg}
}

func NewNotFoundError(msg string) ErrorInfo {
	return ErrorInfo{HttpStatus: http.StatusNotFound, Code: ErrCodeNotFound, Message: msg}
}

func NewUpstreamError(service string, cause error) ErrorInfo {
	return ErrorInfo{
		HttpStatus: http.StatusInternalServerError,
		Code:       ErrCodeUpstream,
		Message:    fmt.Sprintf("%s service unavailable", service),
		Cause:      cause,
	}
}

func NewInternalError(cause error) ErrorInfo {
	return ErrorInfo{HttpStatus: http.StatusInternalServerError, Code: ErrCodeInternal, Message: "Internal error", Cause: cause}
}
