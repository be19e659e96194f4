package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the backend rejected the operation
	ExitCommandError = 2 // bad flags, unreachable backend, broken config
)

// ExitError carries the exit code a command should terminate with.
type ExitError struct {
	Code    int
	Message string
	Err     error
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

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from err. Plain errors map to ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter renders results as text or JSON.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Response is the JSON envelope printed by every command.
type Response struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error part of Response.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Success prints a report.
func (f *OutputFormatter) Success(r Report) error {
	if f.Format == "json" {
		return f.writeJSON(Response{Status: "ok", Data: r})
	}
	_, err := io.WriteString(f.Writer, r.Text())
	return err
}

// Failure prints an error and returns it wrapped with code.
func (f *OutputFormatter) Failure(exitCode int, code, message string, err error) error {
	if f.Format == "json" {
		if werr := f.writeJSON(Response{Status: "error", Error: &CLIError{Code: code, Message: message}}); werr != nil {
			return werr
		}
	} else {
		fmt.Fprintf(f.Writer, "error: %s\n", message)
	}
	return WrapExitError(exitCode, message, err)
}

func (f *OutputFormatter) writeJSON(v any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Text renders the report for a terminal.
func (r Report) Text() string {
	var b strings.Builder
	if r.UserID == "" {
		b.WriteString("signed out\n")
	} else {
		fmt.Fprintf(&b, "user:     %s <%s>\n", r.UserID, r.Email)
		if r.ProfileState == "loaded" {
			fmt.Fprintf(&b, "name:     %s\n", r.FullName)
			fmt.Fprintf(&b, "role:     %s\n", r.Role)
			fmt.Fprintf(&b, "tier:     %s\n", r.Tier)
		} else {
			fmt.Fprintf(&b, "profile:  %s\n", r.ProfileState)
		}
	}
	fmt.Fprintf(&b, "state:    %s\n", r.State)
	fmt.Fprintf(&b, "location: %s\n", r.Location)
	for _, to := range r.Redirects {
		fmt.Fprintf(&b, "redirect: %s\n", to)
	}
	for _, n := range r.Notices {
		fmt.Fprintf(&b, "[%s] %s: %s\n", n.Level, n.Title, n.Message)
	}
	return b.String()
}
