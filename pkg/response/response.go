package response

import "errors"

type Response struct {
	ResponseError `json:"error,omitzero"`
}

type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes returned on the wire.
type ErrCode string

var (
	FAILED_REQUEST     ErrCode = "REQUEST_FAILED"
	BAD_REQUEST        ErrCode = "FAILED_TO_DECODE"
	VALIDATION         ErrCode = "VALIDATION_ERROR"
	NOT_FOUND          ErrCode = "NOT_FOUND"
	LOCKED             ErrCode = "LOCKED"
	SLOT_CONFLICT      ErrCode = "SLOT_CONFLICT"
	ALREADY_CANCELLED  ErrCode = "ALREADY_CANCELLED"
	INVALID_TRANSITION ErrCode = "INVALID_TRANSITION"
)

// Sentinel errors forming the engine's error taxonomy. Handlers map them to
// status codes; services wrap them with operation context.
var (
	ErrBadRequest = errors.New("bad request")
	// ErrValidation covers malformed input and unknown tenant/service/staff.
	// Never retried automatically.
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("resource not found")
	ErrLocked     = errors.New("resource is locked")
	// ErrSlotConflict means the interval was taken between read and write.
	// The caller re-fetches availability and retries once.
	ErrSlotConflict = errors.New("slot is no longer available")
	// ErrAlreadyCancelled guards against double-refund: cancelling twice is a
	// hard failure, not an idempotent success.
	ErrAlreadyCancelled  = errors.New("booking already cancelled")
	ErrInvalidTransition = errors.New("invalid booking status transition")
)

func Error(code, msg string) Response {
	return Response{
		ResponseError: ResponseError{
			Code:    code,
			Message: msg,
		},
	}
}
