package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorUnauthorized      = "PROVISION_UNAUTHORIZED"
	ErrorBadPayload        = "PROVISION_BAD_PAYLOAD"
	ErrorMissingEmail      = "PROVISION_MISSING_EMAIL"
	ErrorIdentityFailed    = "PROVISION_IDENTITY_FAILED"
	ErrorPersistenceFailed = "PROVISION_PERSISTENCE_FAILED"
	ErrorBadInput          = "PROVISION_BAD_INPUT"
	ErrorInternal          = "PROVISION_INTERNAL_ERROR"
)

// MapError guarantees every error that crosses the service boundary carries a
// category, an HTTP status, and a text code.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"), strings.Contains(msg, "hmac"):
		return newError(err.Error(), goerrors.CategoryAuth, ErrorUnauthorized)
	case strings.Contains(msg, "parse"), strings.Contains(msg, "malformed"):
		return newError(err.Error(), goerrors.CategoryBadInput, ErrorBadPayload)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newError(err.Error(), goerrors.CategoryBadInput, ErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

// HTTPStatus extracts the response status for an error envelope, falling back
// to the category mapping for bare errors.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	mapped := MapError(err)
	if mapped == nil {
		return http.StatusOK
	}
	if mapped.Code > 0 {
		return mapped.Code
	}
	return httpStatusFor(mapped.Category)
}

func newError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatusFor(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorUnauthorized
	case goerrors.CategoryExternal:
		return ErrorIdentityFailed
	default:
		return ErrorInternal
	}
}

func httpStatusFor(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
