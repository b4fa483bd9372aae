package hostfuncs

import "encoding/json"

// ErrorResponse is the structured denial a guest receives instead of a
// trap. Code mirrors the domain error reason so guests can branch on it.
type ErrorResponse struct {
	// Error is the machine-readable category ("DENIED", "VALIDATION_ERROR",
	// "NOT_FOUND", "INTERNAL_ERROR").
	Error string `json:"error"`

	// Code is the specific reason, e.g. "host_not_allowed".
	Code string `json:"code,omitempty"`

	// Message is human-readable detail.
	Message string `json:"message"`
}

// ToJSON serializes the response. Returns nil only if marshalling
// fails, which cannot happen for this type.
func (e ErrorResponse) ToJSON() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	return data
}

// NewDeniedError builds the guest-visible form of a guard denial.
func NewDeniedError(code, message string) ErrorResponse {
	return ErrorResponse{Error: "DENIED", Code: code, Message: message}
}

// NewValidationError reports malformed guest input.
func NewValidationError(message string) ErrorResponse {
	return ErrorResponse{Error: "VALIDATION_ERROR", Message: message}
}

// NewNotFoundError reports an unknown host-function name.
func NewNotFoundError(name string) ErrorResponse {
	return ErrorResponse{Error: "NOT_FOUND", Message: "unknown host function: " + name}
}

// NewInternalError reports an unexpected host-side failure.
func NewInternalError(message string) ErrorResponse {
	return ErrorResponse{Error: "INTERNAL_ERROR", Message: message}
}

// NewPanicError converts a recovered panic into a structured error.
func NewPanicError(panicValue any) ErrorResponse {
	var msg string
	switch v := panicValue.(type) {
	case error:
		msg = v.Error()
	case string:
		msg = v
	default:
		msg = "panic recovered"
	}
	return ErrorResponse{Error: "INTERNAL_ERROR", Message: "panic: " + msg}
}
