// Package apierror defines the JSON error body returned by every endpoint.
package apierror

import (
	"net/http"
	"strings"
)

// Machine-readable error codes.
const (
	CodeValidationFailed = "validation_failed"
	CodeNotFound         = "not_found"
	CodeInternal         = "internal_error"
	CodeUnauthorized     = "unauthorized"
	CodeForbidden        = "forbidden"
	CodeMethodNotAllowed = "method_not_allowed"
	CodeTooLarge         = "payload_too_large"
	CodeRateLimited      = "rate_limited"
	CodeUnavailable      = "service_unavailable"
	CodeTimeout          = "timeout"
	CodeBadRequest       = "bad_request"
)

// Body is the error response shape.
type Body struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

func New(code, message string) Body {
	return Body{Error: code, Message: message}
}

func Validation(message string, fields []string) Body {
	return Body{Error: CodeValidationFailed, Message: message, Fields: fields}
}

func NotFound(message string) Body {
	return Body{Error: CodeNotFound, Message: message}
}

// Internal never carries the underlying cause.
func Internal() Body {
	return Body{Error: CodeInternal, Message: "internal server error"}
}

var statusCodes = map[int]string{
	http.StatusBadRequest:            CodeBadRequest,
	http.StatusUnauthorized:          CodeUnauthorized,
	http.StatusForbidden:             CodeForbidden,
	http.StatusNotFound:              CodeNotFound,
	http.StatusMethodNotAllowed:      CodeMethodNotAllowed,
	http.StatusRequestEntityTooLarge: CodeTooLarge,
	http.StatusTooManyRequests:       CodeRateLimited,
	http.StatusInternalServerError:   CodeInternal,
	http.StatusServiceUnavailable:    CodeUnavailable,
	http.StatusGatewayTimeout:        CodeTimeout,
}

// CodeForStatus maps an HTTP status to an error code. Unlisted statuses use
// their snake_cased status text.
func CodeForStatus(status int) string {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	if status >= 500 {
		return CodeInternal
	}
	text := http.StatusText(status)
	if text == "" {
		return CodeBadRequest
	}
	return strings.ToLower(strings.NewReplacer(" ", "_", "-", "_", "'", "").Replace(text))
}
