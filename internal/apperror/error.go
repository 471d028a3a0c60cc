package apperror

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// AppError implements the error interface and provides structured error handling
type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Class   Class  `json:"class"`
	Context string `json:"context,omitempty"`
	cause   error
	stack   []uintptr
}

// Error implements the error interface
func (e *AppError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Code))
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Context != "" {
		sb.WriteString(" (")
		sb.WriteString(e.Context)
		sb.WriteString(")")
	}
	if e.cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.cause.Error())
	}
	return sb.String()
}

// Unwrap implements the errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.cause
}

// Is implements errors.Is interface for error comparison
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// LogAttrs returns err as key/value pairs for structured logging. Errors
// that are not AppErrors are reported as internal.
func LogAttrs(err error) []any {
	var e *AppError
	if !errors.As(err, &e) {
		return []any{"class", ClassInternal, "error", err.Error()}
	}

	attrs := []any{"code", e.Code, "class", e.Class, "message", e.Message}
	if e.Context != "" {
		attrs = append(attrs, "context", e.Context)
	}
	if e.cause != nil {
		attrs = append(attrs, "cause", e.cause.Error())
	}
	if len(e.stack) > 0 {
		attrs = append(attrs, "stack", e.formatStack())
	}
	return attrs
}

// formatStack formats the stack trace
func (e *AppError) formatStack() string {
	var sb strings.Builder
	frames := runtime.CallersFrames(e.stack)
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			sb.WriteString(fmt.Sprintf("\n\t%s:%d %s", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}
	return sb.String()
}

// captureStack captures the current stack trace
func captureStack() []uintptr {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[:n]
}

// New creates a new AppError with the given code and options
func New(code Code, opts ...Option) *AppError {
	err := &AppError{
		Code:    code,
		Message: messages[code],
		Class:   classOf(code),
		stack:   captureStack(),
	}

	for _, opt := range opts {
		opt(err)
	}

	// If message wasn't set by options and isn't in messages map, use code as message
	if err.Message == "" {
		err.Message = string(code)
	}

	return err
}

// Option is a functional option for AppError
type Option func(*AppError)

// WithMessage sets a custom message
func WithMessage(message string) Option {
	return func(e *AppError) {
		e.Message = message
	}
}

// WithContext adds context information
func WithContext(context string) Option {
	return func(e *AppError) {
		e.Context = context
	}
}

// WithContextf adds formatted context information
func WithContextf(format string, args ...any) Option {
	return func(e *AppError) {
		e.Context = fmt.Sprintf(format, args...)
	}
}

// WithCause wraps an underlying error
func WithCause(cause error) Option {
	return func(e *AppError) {
		e.cause = cause
	}
}

// Wrap wraps a standard error into AppError
func Wrap(err error, code Code, context string) *AppError {
	if err == nil {
		return nil
	}

	// If it's already an AppError, keep its code
	var appErr *AppError
	if errors.As(err, &appErr) {
		if context != "" && appErr.Context == "" {
			appErr.Context = context
		}
		return appErr
	}

	return New(code, WithContext(context), WithCause(err))
}

// GetCode extracts the error code from an error
func GetCode(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknownError
}

// IsCode reports whether err carries code.
func IsCode(err error, code Code) bool {
	return err != nil && GetCode(err) == code
}
