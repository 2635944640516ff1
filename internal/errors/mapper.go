// internal/errors/mapper.go
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-engagement/internal/payments"
	"github.com/oggyb/muzz-engagement/internal/repository"
	"github.com/oggyb/muzz-engagement/internal/utils/pagination"
)

// Error is an API error with an HTTP status and a machine-readable code.
// Details are merged into the top level of the JSON body.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Body renders the client-facing payload. Causes are never included.
func (e *Error) Body() map[string]any {
	body := map[string]any{"error": e.Code}
	if e.Message != "" {
		body["message"] = e.Message
	}
	for k, v := range e.Details {
		body[k] = v
	}
	return body
}

// With returns a copy of e carrying an extra detail field.
func (e *Error) With(key string, value any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// Wrap attaches an internal cause for logging.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.cause = cause
	return &cp
}

func newError(status int, code, msg string) *Error {
	return &Error{Status: status, Code: code, Message: msg}
}

// Map converts repo/infra errors into API errors.
// Keeps service layer clean by centralizing error mapping.
func Map(err error) *Error {
	if err == nil {
		return nil
	}

	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr

	case errors.Is(err, repository.ErrProfileNotFound):
		return NotFound("profile_not_found", "profile not found").Wrap(err)

	case errors.Is(err, repository.ErrPurchaseNotFound):
		return NotFound("purchase_not_found", "purchase not found").Wrap(err)

	case errors.Is(err, repository.ErrPurchaseUnavailable):
		return Conflict("purchase_unavailable", "purchase is not available for redemption").Wrap(err)

	case errors.Is(err, repository.ErrPurchaseOwnership):
		return Conflict("purchase_conflict", "provider transaction already recorded for another user or sku").Wrap(err)

	case errors.Is(err, payments.ErrChargeDeclined):
		msg := "payment was declined"
		var decline *payments.DeclineError
		if errors.As(err, &decline) && decline.Reason != "" {
			msg = decline.Reason
		}
		return PaymentFailed(msg).Wrap(err)

	case errors.Is(err, payments.ErrUnavailable):
		return Upstream("payment_unavailable", "payment processor unavailable").Wrap(err)

	case errors.Is(err, pagination.ErrInvalidToken):
		return InvalidArgument("invalid_pagination_token", "pagination token is malformed").Wrap(err)

	case errors.Is(err, gorm.ErrRecordNotFound):
		return NotFound("not_found", "record not found").Wrap(err)

	case errors.Is(err, context.DeadlineExceeded):
		return newError(http.StatusGatewayTimeout, "timeout", "request timed out").Wrap(err)

	case errors.Is(err, context.Canceled):
		return newError(499, "canceled", "request was canceled").Wrap(err)

	default:
		// internal detail stays in logs only
		return Internal().Wrap(err)
	}
}

// Internal is the generic 500 returned for unexpected failures.
func Internal() *Error {
	return newError(http.StatusInternalServerError, "internal_error", "internal server error")
}

// InvalidArgument is used in the service layer for bad input validation.
func InvalidArgument(code, msg string) *Error {
	return newError(http.StatusBadRequest, code, msg)
}

// Unauthorized is returned when the caller identity is missing or invalid.
func Unauthorized() *Error {
	return newError(http.StatusUnauthorized, "unauthorized", "")
}

// Forbidden is returned when a shared secret does not match.
func Forbidden() *Error {
	return newError(http.StatusForbidden, "forbidden", "")
}

func NotFound(code, msg string) *Error {
	return newError(http.StatusNotFound, code, msg)
}

func MethodNotAllowed() *Error {
	return newError(http.StatusMethodNotAllowed, "method_not_allowed", "")
}

// Conflict signals a failed precondition on shared state (already consumed, etc).
func Conflict(code, msg string) *Error {
	return newError(http.StatusConflict, code, msg)
}

func TooManyRequests(code, msg string) *Error {
	return newError(http.StatusTooManyRequests, code, msg)
}

// PaymentFailed is a caller-fixable charge rejection (declined card, bad method).
func PaymentFailed(msg string) *Error {
	return newError(http.StatusBadRequest, "payment_failed", msg)
}

// Unavailable is returned when a required collaborator is not configured.
func Unavailable(code, msg string) *Error {
	return newError(http.StatusServiceUnavailable, code, msg)
}

// Upstream is a non caller-fixable failure of an external collaborator.
func Upstream(code, msg string) *Error {
	return newError(http.StatusBadGateway, code, msg)
}
