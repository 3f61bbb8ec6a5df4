package job

import "fmt"

// Error is the structured failure record surfaced at every boundary of the
// core (spec.md §7): a code, a human message, and an optional wrapped cause.
// It implements the standard error interface and Unwrap so callers can use
// errors.Is/errors.As, following the apierr.Error shape used for the same
// purpose elsewhere in the reference pack.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

// Error kinds from the taxonomy in spec.md §7.
const (
	CodeInvalidJob          = "INVALID_JOB"
	CodeInvalidJobID        = "INVALID_JOB_ID"
	CodeValidationError     = "VALIDATION_ERROR"
	CodeJobNotFound         = "JOB_NOT_FOUND"
	CodeJobUpdateConflict   = "JOB_UPDATE_CONFLICT"
	CodeJobCreateFailed     = "JOB_CREATE_FAILED"
	CodeJobStoreError       = "JOB_STORE_ERROR"
	CodeOperationCancelled  = "OPERATION_CANCELLED"
	CodeRecoveryExhausted   = "RECOVERY_EXHAUSTED"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeDeserializationFail = "DESERIALIZATION_FAILED"
	CodeHandlerPanic        = "HANDLER_PANIC"
	CodeHandlerMissing      = "HANDLER_MISSING"
)

// New builds an Error with no wrapped cause.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an Error carrying cause as its Unwrap target.
func Wrap(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Cause)
	case e.Code != "":
		return e.Code
	default:
		return "job: error"
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
