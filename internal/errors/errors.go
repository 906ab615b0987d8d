// Package errors defines the error taxonomy shared by the template engine
// and its tooling.
//
// Markup and expression problems surface as parse and expression errors that
// carry a byte offset, line and column. Runtime failures are render errors
// scoped to a single render call. Directory loading wraps both in loader
// errors that name the offending file. The ErrorCollector gathers
// diagnostics across many files for batch reporting and for the preview
// server's error overlay.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
)

// Diagnostic is one reportable problem attached to a template source.
type Diagnostic struct {
	Template  string
	File      string
	Line      int
	Column    int
	Code      string
	Message   string
	Severity  ErrorSeverity
	Timestamp time.Time
}

// ErrorSeverity represents the severity of an error
type ErrorSeverity int

const (
	ErrorSeverityInfo ErrorSeverity = iota
	ErrorSeverityWarning
	ErrorSeverityError
	ErrorSeverityFatal
)

// String returns the string representation of the severity
func (s ErrorSeverity) String() string {
	switch s {
	case ErrorSeverityInfo:
		return "info"
	case ErrorSeverityWarning:
		return "warning"
	case ErrorSeverityError:
		return "error"
	case ErrorSeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error implements the error interface
func (d *Diagnostic) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s: %s", d.File, d.Line, d.Column, d.Severity, d.Message)
}

// DiagnosticFrom converts err into a Diagnostic, lifting position and file
// information out of any TesseraError in its chain.
func DiagnosticFrom(err error) Diagnostic {
	d := Diagnostic{Message: err.Error(), Severity: ErrorSeverityError}

	var te *TesseraError
	if errors.As(err, &te) {
		d.Code = te.Code
		d.Template = te.Template
		d.File = te.FilePath
	}
	if _, line, column, ok := Position(err); ok {
		d.Line = line
		d.Column = column
	}

	return d
}

// ErrorCollector collects diagnostics from many template sources
type ErrorCollector struct {
	diagnostics []Diagnostic
	mutex       sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		diagnostics: make([]Diagnostic, 0),
	}
}

// Add adds a diagnostic to the collector
func (ec *ErrorCollector) Add(d Diagnostic) {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	d.Timestamp = time.Now()
	ec.diagnostics = append(ec.diagnostics, d)
}

// AddError converts err to a diagnostic and records it
func (ec *ErrorCollector) AddError(err error) {
	if err == nil {
		return
	}
	ec.Add(DiagnosticFrom(err))
}

// GetErrors returns all collected diagnostics ordered by file and line
func (ec *ErrorCollector) GetErrors() []Diagnostic {
	ec.mutex.RLock()
	result := make([]Diagnostic, len(ec.diagnostics))
	copy(result, ec.diagnostics)
	ec.mutex.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].File != result[j].File {
			return result[i].File < result[j].File
		}
		return result[i].Line < result[j].Line
	})
	return result
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.diagnostics) > 0
}

// Clear clears all errors
func (ec *ErrorCollector) Clear() {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.diagnostics = ec.diagnostics[:0]
}

// ClearFile drops diagnostics recorded for file, used once it loads cleanly.
func (ec *ErrorCollector) ClearFile(file string) {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	kept := ec.diagnostics[:0]
	for _, d := range ec.diagnostics {
		if d.File != file {
			kept = append(kept, d)
		}
	}
	ec.diagnostics = kept
}

// GetErrorsByFile returns errors for a specific file
func (ec *ErrorCollector) GetErrorsByFile(file string) []Diagnostic {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	var fileErrors []Diagnostic
	for _, d := range ec.diagnostics {
		if d.File == file {
			fileErrors = append(fileErrors, d)
		}
	}
	return fileErrors
}

// ErrorOverlay generates an HTML fragment listing every diagnostic.
func (ec *ErrorCollector) ErrorOverlay() string {
	diagnostics := ec.GetErrors()
	if len(diagnostics) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(`<div id="tessera-error-overlay" style="position:fixed;inset:0;background:rgba(0,0,0,0.85);` +
		`color:#fff;font-family:monospace;font-size:14px;z-index:9999;padding:20px;overflow:auto">`)
	b.WriteString(`<h2 style="color:#ff6b6b;margin-top:0">Template errors</h2>`)

	for _, d := range diagnostics {
		color := "#ff6b6b"
		switch d.Severity {
		case ErrorSeverityWarning:
			color = "#feca57"
		case ErrorSeverityInfo:
			color = "#48dbfb"
		}

		fmt.Fprintf(&b, `<div style="background:#2d3748;padding:12px;margin-bottom:12px;border-left:4px solid %s">`+
			`<div style="color:%s;font-weight:bold">%s %s</div>`+
			`<div>%s</div><div style="color:#a0aec0;font-size:12px">%s:%d:%d</div></div>`,
			color, color, d.Severity, html.EscapeString(d.Code), html.EscapeString(d.Message),
			html.EscapeString(d.File), d.Line, d.Column)
	}

	b.WriteString(`</div>`)
	return b.String()
}
