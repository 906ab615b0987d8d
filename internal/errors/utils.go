package errors

import (
	"errors"
)

// Wrap wraps an error with additional context, creating a TesseraError if the input is not already one
func Wrap(err error, errType ErrorType, code, message string) *TesseraError {
	if err == nil {
		return nil
	}

	// Keep location details of an inner TesseraError visible on the wrapper.
	var te *TesseraError
	if errors.As(err, &te) {
		return &TesseraError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       err,
			Template:    te.Template,
			FilePath:    te.FilePath,
			Offset:      te.Offset,
			Line:        te.Line,
			Column:      te.Column,
			Recoverable: te.Recoverable,
		}
	}

	return &TesseraError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeParse || errType == ErrorTypeRender,
	}
}

// WrapIO wraps an error as an I/O error
func WrapIO(err error, code, message string) *TesseraError {
	e := Wrap(err, ErrorTypeIO, code, message)
	if e != nil {
		e.Recoverable = false
	}
	return e
}

// WrapRender wraps an error as a rendering error for the named template.
func WrapRender(err error, code, message, template string) *TesseraError {
	e := Wrap(err, ErrorTypeRender, code, message)
	if e != nil && e.Template == "" {
		e.Template = template
	}
	return e
}

// WrapConfig wraps an error as a configuration error
func WrapConfig(err error, code, message string) *TesseraError {
	e := Wrap(err, ErrorTypeConfig, code, message)
	if e != nil {
		e.Recoverable = false
	}
	return e
}

// GetErrorContext extracts context information from a TesseraError
func GetErrorContext(err error) map[string]interface{} {
	var te *TesseraError
	if errors.As(err, &te) {
		context := make(map[string]interface{})
		for k, v := range te.Context {
			context[k] = v
		}
		if te.Template != "" {
			context["template"] = te.Template
		}
		if te.FilePath != "" {
			context["file"] = te.FilePath
		}
		if te.Line > 0 {
			context["offset"] = te.Offset
			context["line"] = te.Line
			context["column"] = te.Column
		}
		context["type"] = string(te.Type)
		context["code"] = te.Code
		context["recoverable"] = te.Recoverable
		return context
	}

	return map[string]interface{}{
		"message": err.Error(),
		"type":    "unknown",
	}
}
