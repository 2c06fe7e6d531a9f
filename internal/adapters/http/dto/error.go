package dto

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

func NewErrorResponse(err string, message string, code int) *ErrorResponse {
	return &ErrorResponse{
		Error:   err,
		Message: message,
		Code:    code,
	}
}

// Error types returned in ErrorResponse.Error
const (
	ErrorInvalidRequest = "invalid_request"
	ErrorValidation     = "validation_error"
	ErrorNotFound       = "not_found"
	ErrorConflict       = "conflict"
	ErrorTimeout        = "timeout"
	ErrorInternal       = "internal_error"
)
