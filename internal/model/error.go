package model

import "errors"

// ErrorResponse represents a standardised error response.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// Standard error codes for API responses
const (
	ErrCodeInvalidJSON        = "INVALID_JSON"
	ErrCodeUnauthenticated    = "UNAUTHENTICATED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeOrderNotFound      = "ORDER_NOT_FOUND"
	ErrCodeMalformedPayload   = "MALFORMED_PAYLOAD"
	ErrCodeAmountMismatch     = "AMOUNT_MISMATCH"
	ErrCodePaymentUnverified  = "PAYMENT_UNVERIFIED"
	ErrCodeGatewayUnavailable = "GATEWAY_UNAVAILABLE"
	ErrCodeLedgerWriteFailed  = "LEDGER_WRITE_FAILED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// DomainError is a business error carrying a stable code.
// Two DomainErrors match under errors.Is when their codes are equal, so a
// detailed error built with NewDomainError still matches the sentinel values.
type DomainError struct {
	Code      string
	Message   string
	Retryable bool
	Err       error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError with the same code.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithCause returns a copy of e with message and cause attached.
func (e *DomainError) WithCause(message string, cause error) *DomainError {
	return &DomainError{
		Code:      e.Code,
		Message:   message,
		Retryable: e.Retryable,
		Err:       cause,
	}
}

// WithMessage returns a copy of e carrying a more specific message.
func (e *DomainError) WithMessage(message string) *DomainError {
	return e.WithCause(message, nil)
}

// IsRetryable reports whether err is a DomainError the caller may retry.
func IsRetryable(err error) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}

// Common domain errors
var (
	ErrUnauthenticated    = NewDomainError(ErrCodeUnauthenticated, "Authentication required")
	ErrForbidden          = NewDomainError(ErrCodeForbidden, "Access to this resource is denied")
	ErrOrderNotFound      = NewDomainError(ErrCodeOrderNotFound, "Order not found")
	ErrMalformedPayload   = NewDomainError(ErrCodeMalformedPayload, "Order payload is malformed")
	ErrAmountMismatch     = NewDomainError(ErrCodeAmountMismatch, "Order amount does not match the verified payment")
	ErrPaymentUnverified  = NewDomainError(ErrCodePaymentUnverified, "Payment could not be verified")
	ErrGatewayUnavailable = &DomainError{Code: ErrCodeGatewayUnavailable, Message: "Payment gateway unavailable", Retryable: true}
	ErrLedgerWriteFailed  = &DomainError{Code: ErrCodeLedgerWriteFailed, Message: "Failed to record order", Retryable: true}
)
