package response

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Machine-readable error codes carried alongside the human message.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeUserExists         = "USER_EXISTS"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAccountSuspended   = "ACCOUNT_SUSPENDED"
	CodeSamePassword       = "SAME_PASSWORD"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL_ERROR"
)

type Response struct {
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	Code       string `json:"code,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

func OK() Response {
	return Response{Status: StatusOK}
}

func Error(code, msg string) Response {
	return Response{
		Status: StatusError,
		Error:  msg,
		Code:   code,
	}
}

func Internal() Response {
	return Error(CodeInternal, "Internal error")
}

func Unauthorized(msg string) Response {
	return Error(CodeUnauthorized, msg)
}

// RateLimited carries the seconds until the caller may retry.
func RateLimited(retryAfter int) Response {
	resp := Error(CodeRateLimited, "Too many requests")
	resp.RetryAfter = retryAfter
	return resp
}

func ValidationError(errs validator.ValidationErrors) Response {
	var msgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("field %s is required", err.Field()))
		case "email":
			msgs = append(msgs, fmt.Sprintf("field %s must be a valid email", err.Field()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("field %s is too short", err.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("field %s is invalid", err.Field()))
		}
	}

	return Error(CodeValidation, strings.Join(msgs, ", "))
}
