package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	NotFound     Kind = "not_found"
	Conflict     Kind = "conflict"
	BadRequest   Kind = "bad_request"
	Unauthorized Kind = "unauthorized"
	Forbidden    Kind = "forbidden"
	Internal     Kind = "internal"
)

// Machine-readable codes returned to API clients.
const (
	CodeNotFound               = "NOT_FOUND"
	CodeConflict               = "CONFLICT"
	CodeEventFull              = "EVENT_FULL"
	CodeBadRequest             = "BAD_REQUEST"
	CodePaidRequiresTaxRate    = "PAID_REQUIRES_TAX_RATE"
	CodeFreeCannotHaveTaxRate  = "FREE_CANNOT_HAVE_TAX_RATE"
	CodeIncompatibleTaxRate    = "INCOMPATIBLE_TAX_RATE"
	CodeCancellationNotAllowed = "CANCELLATION_NOT_ALLOWED"
	CodeCutoffPassed           = "CUTOFF_PASSED"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeForbidden              = "FORBIDDEN"
	CodeInternal               = "INTERNAL_SERVER_ERROR"
)

type AppError struct {
	Kind      Kind
	Code      string
	PublicMsg string // safe to show to the caller
	Err       error  // internal cause, logged only
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.PublicMsg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.PublicMsg)
}

func (e *AppError) Unwrap() error { return e.Err }

func New(kind Kind, code, publicMsg string, err error) *AppError {
	return &AppError{Kind: kind, Code: code, PublicMsg: publicMsg, Err: err}
}

func NotFoundErr(err error, publicMsg string) *AppError {
	return New(NotFound, CodeNotFound, publicMsg, err)
}

func ConflictErr(code string, err error, publicMsg string) *AppError {
	if code == "" {
		code = CodeConflict
	}
	return New(Conflict, code, publicMsg, err)
}

func BadRequestErr(code string, err error, publicMsg string) *AppError {
	if code == "" {
		code = CodeBadRequest
	}
	return New(BadRequest, code, publicMsg, err)
}

func ForbiddenErr(err error, publicMsg string) *AppError {
	return New(Forbidden, CodeForbidden, publicMsg, err)
}

// Wrap marks err as an internal failure. AppErrors pass through untouched.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	return New(Internal, CodeInternal, "internal server error", err)
}

func As(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

func IsKind(err error, kind Kind) bool {
	ae, ok := As(err)
	return ok && ae.Kind == kind
}

func Code(err error) string {
	if ae, ok := As(err); ok {
		return ae.Code
	}
	return CodeInternal
}

func HTTPStatus(err error) int {
	if ae, ok := As(err); ok {
		switch ae.Kind {
		case BadRequest:
			return http.StatusBadRequest
		case Unauthorized:
			return http.StatusUnauthorized
		case Forbidden:
			return http.StatusForbidden
		case NotFound:
			return http.StatusNotFound
		case Conflict:
			return http.StatusConflict
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}

func PublicMessage(err error) string {
	if ae, ok := As(err); ok && ae.PublicMsg != "" {
		return ae.PublicMsg
	}
	return "internal server error"
}
