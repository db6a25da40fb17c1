package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/tether/internal/model"
	"github.com/roach88/tether/internal/orchestrator"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation ran but did not succeed (import rejected, restore found nothing)
	ExitCommandError = 2 // Command error (bad flags, unreadable config, store unavailable)
)

// ExitError carries the exit code a command wants the process to end with.
type ExitError struct {
	Code    int
	Message string
	Err     error
	Details any // written as error details in JSON output
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError without an underlying cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// errorDetails returns the Details of the first ExitError in err's chain.
func errorDetails(err error) any {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Details
	}
	return nil
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ErrorCode names the failure class of err for JSON output: the model error
// code when there is one, otherwise a CLI-level code.
func ErrorCode(err error) string {
	if code := model.CodeOf(err); code != "" {
		return string(code)
	}
	switch {
	case errors.Is(err, orchestrator.ErrPeerSyncDisabled),
		errors.Is(err, orchestrator.ErrAnchorDisabled),
		errors.Is(err, orchestrator.ErrStoreDisabled):
		return "FEATURE_DISABLED"
	case GetExitCode(err) == ExitCommandError:
		return "COMMAND_ERROR"
	default:
		return "FAILURE"
	}
}

// Texter is implemented by results that have a human-readable form.
type Texter interface {
	Text() string
}

// OutputFormatter writes command results as JSON envelopes or text.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; defaults to Writer
	Verbose   bool
}

// Response is the JSON envelope every command writes with --format json.
type Response struct {
	Status string         `json:"status"` // "ok" or "error"
	Data   any            `json:"data,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError is the error half of Response.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success writes data. In text mode a Texter renders itself, raw JSON is
// written as is, and anything else goes through fmt.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(Response{Status: "ok", Data: data})
	}

	switch v := data.(type) {
	case Texter:
		_, err := fmt.Fprintln(f.Writer, v.Text())
		return err
	case json.RawMessage:
		_, err := fmt.Fprintln(f.Writer, string(v))
		return err
	default:
		_, err := fmt.Fprintln(f.Writer, v)
		return err
	}
}

// Error writes a failure with the given code.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(Response{
			Status: "error",
			Error:  &ResponseError{Code: code, Message: message, Details: details},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog writes a diagnostic line when verbose mode is on. It never
// writes to Writer in JSON mode unless ErrWriter is unset.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
