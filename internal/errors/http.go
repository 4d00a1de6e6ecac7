package errors

import (
	"errors"
	"net/http"

	"github.com/momentum-oss/momentum/internal/errors/i18n"
)

// DefaultLocale is the default locale for error messages.
const DefaultLocale = "en-US"

// Response is the JSON error body returned by REST endpoints.
type Response struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// HandleHTTP converts domain errors to an HTTP status and response body.
// The body message is formatted from the i18n catalog for the given locale,
// defaulting to en-US if the locale is empty. Non-domain errors collapse to
// a generic internal error so internals never leak to clients.
func HandleHTTP(err error, locale string) (int, Response) {
	if err == nil {
		return http.StatusOK, Response{}
	}

	if locale == "" {
		locale = DefaultLocale
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		catalog := i18n.GetCatalog(locale)
		return appErr.Code.HTTPStatus(), Response{
			Code:     string(appErr.Code),
			Message:  catalog.Format(string(appErr.Code), appErr.Metadata),
			Metadata: appErr.Metadata,
		}
	}

	return http.StatusInternalServerError, Response{
		Code:    string(CodeUnknown),
		Message: "an unexpected error occurred",
	}
}

// GetCode extracts the error code from any error.
// Returns CodeUnknown if the error is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// GetMetadata extracts metadata from an error if present.
// Returns nil if the error is not a domain error or has no metadata.
func GetMetadata(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Metadata
	}
	return nil
}
