package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error codes carried by AppError.
const (
	CodeDocumentOpen = "DOCUMENT_OPEN"
	CodeRasterize    = "RASTERIZE"
	CodeInvalidInput = "INVALID_INPUT"
	CodeConfig       = "CONFIG_ERROR"
	CodeModel        = "MODEL_ERROR"
	CodeStorage      = "STORAGE_ERROR"
)

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
	ErrConfig       = errors.New("configuration error")
	ErrDocumentOpen = errors.New("document cannot be opened")
	ErrRasterize    = errors.New("document cannot be rendered")
	ErrQueueClosed  = errors.New("queue is shutting down")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// DocumentOpenError marks a document that is missing or not a readable PDF.
// The returned error matches ErrDocumentOpen with errors.Is.
func DocumentOpenError(path string, cause error) error {
	return NewAppError(CodeDocumentOpen, "open "+path, errors.Join(ErrDocumentOpen, cause))
}

// InvalidInputError reports a caller mistake.
func InvalidInputError(message string) error {
	return NewAppError(CodeInvalidInput, message, ErrInvalidInput)
}

// IsFatal reports whether err aborts an extraction run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDocumentOpen) || errors.Is(err, ErrRasterize)
}
