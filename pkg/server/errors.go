package server

import "net/http"

// Error codes returned in ErrorResponse.
const (
	CodeInvalidRequest = "invalid_request"
	CodeInvalidQuery   = "invalid_query"
	CodeBodyTooLarge   = "body_too_large"
	CodeUnauthorized   = "unauthorized"
	CodeAuditFailure   = "audit_failure"
	CodeInternal       = "internal_error"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

func denyUnauthorized(w http.ResponseWriter, _ *http.Request, err error) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="arbiter"`)
	writeError(w, http.StatusUnauthorized, CodeUnauthorized, err.Error())
}
