// Package errs is the three-kind error taxonomy from spec §6/§7: Parse,
// Execution and Plugin errors, each carrying a machine-readable code and an
// optional cause chain. Modeled on sqlvibe's internal/SF/errors Error shape,
// but cause preservation goes through github.com/pkg/errors instead of a
// hand-rolled Unwrap, matching how the rest of the corpus wraps errors.
package errs

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

type Code string

const (
	CodeParse     Code = "PARSE_ERROR"
	CodeExecution Code = "EXECUTION_ERROR"
	CodePlugin    Code = "PLUGIN_ERROR"
	CodeCancelled Code = "PLUGIN_CANCELLED"
	CodeTimeout   Code = "PLUGIN_TIMEOUT"
)

// Error is the single concrete error type for all three taxonomy kinds; Code
// distinguishes them. Details carries free-form diagnostic context (offending
// identifier, line/column, plugin name) that callers may render but must not
// parse.
type Error struct {
	Code    Code
	Message string
	Cause   error
	Details map[string]interface{}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(code Code, msg string, cause error, details map[string]interface{}) *Error {
	var wrapped error
	if cause != nil {
		wrapped = errors.WithStack(cause)
	}
	return &Error{Code: code, Message: msg, Cause: wrapped, Details: details}
}

// Parse reports a lexer/parser failure. line/column are 1-based; 0 means unknown.
func Parse(msg string, line, column int) *Error {
	return newErr(CodeParse, msg, nil, map[string]interface{}{"line": line, "column": column})
}

// ParseAt wraps an existing error (usually from the lexer) as a parse failure.
func ParseAt(msg string, line, column int, cause error) *Error {
	e := newErr(CodeParse, msg, cause, map[string]interface{}{"line": line, "column": column})
	return e
}

// Execution reports an execution-kind error (unknown table, invalid SHOW
// target, invalid cache command) naming the offending identifier.
func Execution(msg, identifier string) *Error {
	details := map[string]interface{}{}
	if identifier != "" {
		details["identifier"] = identifier
	}
	return newErr(CodeExecution, msg, nil, details)
}

// ExecutionWrap wraps an underlying error as an execution failure.
func ExecutionWrap(msg string, cause error) *Error {
	return newErr(CodeExecution, msg, cause, nil)
}

// Plugin reports a failure attributable to a named plugin, preserving cause.
func Plugin(source, operation string, cause error) *Error {
	return newErr(CodePlugin, fmt.Sprintf("%s failed for plugin %q", operation, source), cause,
		map[string]interface{}{"source": source, "operation": operation})
}

// Cancelled reports plugin-call cancellation as a dedicated code so callers
// can distinguish it from a genuine plugin failure (spec §7).
func Cancelled(source, operation string, cause error) *Error {
	e := Plugin(source, operation, cause)
	e.Code = CodeCancelled
	return e
}

// TimedOut reports a plugin call that exceeded its deadline.
func TimedOut(source, operation string, cause error) *Error {
	e := Plugin(source, operation, cause)
	e.Code = CodeTimeout
	return e
}

// As reports whether err (or any error in its chain) is an *Error, populating target.
func As(err error, target **Error) bool {
	return errors.As(err, target)
}

// CodeOf returns the taxonomy code of err, or "" if err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsTransient reports whether err carries one of the retry-eligible signals
// named in spec §5: timeout, connection reset, host unreachable, throttling,
// rate-limit, service-unavailable.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range transientSignals {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

var transientSignals = []string{
	"timeout",
	"timed out",
	"connection reset",
	"host unreachable",
	"throttl",
	"rate limit",
	"rate-limit",
	"service unavailable",
	"unavailable",
}
