package errors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeParse      ErrorType = "parse"
	ErrorTypeExpression ErrorType = "expression"
	ErrorTypeRender     ErrorType = "render"
	ErrorTypeLoader     ErrorType = "loader"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// TesseraError is a structured error type with context.
type TesseraError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Template    string
	FilePath    string
	Offset      int
	Line        int
	Column      int
	Recoverable bool
}

// Error implements the error interface.
func (e *TesseraError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Template != "" {
		parts = append(parts, "template:"+e.Template)
	}

	location := e.FilePath
	if e.Line > 0 {
		location += fmt.Sprintf(":%d", e.Line)
		if e.Column > 0 {
			location += fmt.Sprintf(":%d", e.Column)
		}
	}
	if location != "" {
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *TesseraError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *TesseraError) Is(target error) bool {
	var t *TesseraError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *TesseraError) WithContext(key string, value interface{}) *TesseraError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithPosition records where in the source the error was detected.
func (e *TesseraError) WithPosition(offset, line, column int) *TesseraError {
	e.Offset = offset
	e.Line = line
	e.Column = column

	return e
}

// WithFile adds the source file path.
func (e *TesseraError) WithFile(filePath string) *TesseraError {
	e.FilePath = filePath

	return e
}

// WithTemplate adds the name of the template involved.
func (e *TesseraError) WithTemplate(name string) *TesseraError {
	e.Template = name

	return e
}

// Error creation functions

// NewParseError creates a markup parse error at the given source position.
func NewParseError(code, message string, offset, line, column int) *TesseraError {
	return &TesseraError{
		Type:        ErrorTypeParse,
		Code:        code,
		Message:     message,
		Offset:      offset,
		Line:        line,
		Column:      column,
		Recoverable: true,
	}
}

// NewExpressionError creates an expression grammar error.
func NewExpressionError(code, message string) *TesseraError {
	return &TesseraError{
		Type:        ErrorTypeExpression,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewRenderError creates a runtime rendering error.
func NewRenderError(code, message string, cause error) *TesseraError {
	return &TesseraError{
		Type:        ErrorTypeRender,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewLoaderError wraps a failure to load the template source at path.
func NewLoaderError(path string, cause error) *TesseraError {
	return &TesseraError{
		Type:        ErrorTypeLoader,
		Code:        ErrCodeLoadFailed,
		Message:     "failed to load template source",
		Cause:       cause,
		FilePath:    path,
		Recoverable: false,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *TesseraError {
	return &TesseraError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *TesseraError {
	return &TesseraError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *TesseraError {
	return &TesseraError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// Error recovery and handling utilities

func hasType(err error, t ErrorType) bool {
	var te *TesseraError
	for err != nil {
		if !errors.As(err, &te) {
			return false
		}
		if te.Type == t {
			return true
		}
		err = te.Cause
	}

	return false
}

// AsTessera returns the outermost TesseraError in err's chain.
func AsTessera(err error) (*TesseraError, bool) {
	var te *TesseraError
	if errors.As(err, &te) {
		return te, true
	}

	return nil, false
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var te *TesseraError
	if errors.As(err, &te) {
		return te.Recoverable
	}

	return false
}

// IsParseError reports whether err, or any error it wraps, is a parse error.
func IsParseError(err error) bool { return hasType(err, ErrorTypeParse) }

// IsExpressionError reports whether err wraps an expression grammar error.
func IsExpressionError(err error) bool { return hasType(err, ErrorTypeExpression) }

// IsRenderError reports whether err wraps a rendering error.
func IsRenderError(err error) bool { return hasType(err, ErrorTypeRender) }

// IsLoaderError reports whether err wraps a loader error.
func IsLoaderError(err error) bool { return hasType(err, ErrorTypeLoader) }

// Position extracts the outermost source position carried by err.
func Position(err error) (offset, line, column int, ok bool) {
	var te *TesseraError
	for err != nil {
		if !errors.As(err, &te) {
			return 0, 0, 0, false
		}
		if te.Line > 0 {
			return te.Offset, te.Line, te.Column, true
		}
		err = te.Cause
	}

	return 0, 0, 0, false
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle processes an error with appropriate logging.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var te *TesseraError
	if !errors.As(err, &te) {
		h.logger.Error(ctx, err, "Unhandled error occurred")

		return
	}

	fields := contextFields(GetErrorContext(err))
	switch te.Type {
	case ErrorTypeParse, ErrorTypeExpression, ErrorTypeLoader:
		h.logger.Warn(ctx, err, "Template source rejected", fields...)
	case ErrorTypeRender:
		h.logger.Warn(ctx, err, "Render failed", fields...)
	default:
		if IsRecoverable(err) {
			h.logger.Warn(ctx, err, "Recoverable error", fields...)
			return
		}
		h.logger.Error(ctx, err, "Error occurred", fields...)
	}
}

// contextFields flattens an error context into sorted key/value pairs.
func contextFields(context map[string]interface{}) []interface{} {
	keys := make([]string, 0, len(context))
	for k := range context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]interface{}, 0, 2*len(keys))
	for _, k := range keys {
		fields = append(fields, k, context[k])
	}
	return fields
}

// Common error codes.
const (
	ErrCodeUnexpectedEOF       = "ERR_UNEXPECTED_EOF"
	ErrCodeTagMismatch         = "ERR_TAG_MISMATCH"
	ErrCodeRootElement         = "ERR_ROOT_ELEMENT"
	ErrCodeMissingName         = "ERR_MISSING_NAME"
	ErrCodeTrailingContent     = "ERR_TRAILING_CONTENT"
	ErrCodeMalformedExpression = "ERR_MALFORMED_EXPRESSION"
	ErrCodeMultipleDefaults    = "ERR_MULTIPLE_DEFAULTS"
	ErrCodeUnknownFunction     = "ERR_UNKNOWN_FUNCTION"
	ErrCodeTemplateNotFound    = "ERR_TEMPLATE_NOT_FOUND"
	ErrCodeNotIterable         = "ERR_NOT_ITERABLE"
	ErrCodeAttributeShape      = "ERR_ATTRIBUTE_SHAPE"
	ErrCodeConditionType       = "ERR_CONDITION_TYPE"
	ErrCodeArgument            = "ERR_ARGUMENT"
	ErrCodeFunctionFailed      = "ERR_FUNCTION_FAILED"
	ErrCodeDepthExceeded       = "ERR_DEPTH_EXCEEDED"
	ErrCodeRenderIO            = "ERR_RENDER_IO"
	ErrCodeLoadFailed          = "ERR_LOAD_FAILED"
	ErrCodeFileNotFound        = "ERR_FILE_NOT_FOUND"
	ErrCodeConfigInvalid       = "ERR_CONFIG_INVALID"
	ErrCodeInternalError       = "ERR_INTERNAL"
)

// ErrTemplateNotFound creates the error returned when a template name is
// absent from the registry.
func ErrTemplateNotFound(name string) *TesseraError {
	return NewRenderError(ErrCodeTemplateNotFound, "template not found: "+name, nil).
		WithTemplate(name)
}

// ErrUnknownFunction creates the error returned when a function call names
// nothing in the catalog.
func ErrUnknownFunction(name string) *TesseraError {
	return NewRenderError(ErrCodeUnknownFunction, "unknown function: "+name, nil)
}
