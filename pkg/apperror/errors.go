package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"payment-session-reconciler/internal/core/domain"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Sessions (SES) ----

func ErrSessionNotFound() *AppError {
	return Wrap("SES_001", "Payment session not found", http.StatusNotFound, domain.ErrSessionNotFound)
}

func ErrSessionAlreadyActive() *AppError {
	return Wrap("SES_002", "Payment session already has an active worker", http.StatusConflict, domain.ErrAlreadyActive)
}

func ErrSessionTerminal() *AppError {
	return Wrap("SES_003", "Payment session is already terminal", http.StatusConflict, domain.ErrRaceLost)
}

func ErrEngineUnavailable() *AppError {
	return Wrap("SES_004", "Reconciliation engine is shutting down", http.StatusServiceUnavailable, domain.ErrDispatcherClosed)
}

// ---- Validation (VAL) ----

func ErrInvalidAmount() *AppError {
	return New("VAL_001", "Expected amount must be a positive integer in ledger base units", http.StatusBadRequest)
}

func ErrInvalidAddress() *AppError {
	return New("VAL_002", "Invalid recipient address", http.StatusBadRequest)
}

func ErrInvalidExpiry(max int) *AppError {
	return New("VAL_003", fmt.Sprintf("expires_in_minutes must be between 1 and %d", max), http.StatusBadRequest)
}

func ErrInvalidSessionID() *AppError {
	return New("VAL_004", "Invalid session ID", http.StatusBadRequest)
}

// Validation returns a generic request validation error.
func Validation(message string) *AppError {
	return New("VAL_000", message, http.StatusBadRequest)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_001", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

// InternalError wraps an unexpected error as a SYS_000 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_000", "Internal server error", http.StatusInternalServerError, err)
}

// FromDomain maps engine sentinel errors to their API error, falling back to
// a database error for anything unrecognised.
func FromDomain(err error) *AppError {
	var appErr *AppError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, domain.ErrSessionNotFound):
		return ErrSessionNotFound()
	case errors.Is(err, domain.ErrAlreadyActive):
		return ErrSessionAlreadyActive()
	case errors.Is(err, domain.ErrRaceLost):
		return ErrSessionTerminal()
	case errors.Is(err, domain.ErrDispatcherClosed):
		return ErrEngineUnavailable()
	default:
		return ErrDatabaseError(err)
	}
}
