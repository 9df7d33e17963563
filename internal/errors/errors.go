// Package errors provides the error taxonomy for zerepyctl. It defines
// sentinel errors, typed errors for each lifecycle step, and helpers that
// classify an error as fatal or non-fatal and map it to a process exit code.
//
// # Error Types
//
// Every lifecycle step has its own error type:
//   - ToolError: a required or optional external tool is missing
//   - FetchError: the application source could not be cloned
//   - ProvisionError: the virtual environment could not be created or populated
//   - StartupError: the application exited before its liveness check
//   - TerminationError: the application could not be stopped (never fatal)
//   - PreconditionError: serve was invoked before install
//
// # Usage
//
//	err := errors.NewFetchError("clone failed", cause).
//	    WithRemote(remote).
//	    WithOutput(out)
//
//	if errors.IsFatal(err) {
//	    os.Exit(errors.ExitCode(err))
//	}
//
// # Fatality
//
// Fatal errors abort the running command with exit code 1. Non-fatal errors
// are reported as warnings and execution continues.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that degrade functionality but let the run continue.
	SeverityWarning
	// SeverityError is for errors that abort the current command.
	SeverityError
	// SeverityCritical is for errors that abort and leave state needing manual attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Tool-related sentinel errors
var (
	// ErrToolMissing indicates that a tool's detection command did not succeed.
	ErrToolMissing = New("tool not found")
)

// Source-related sentinel errors
var (
	// ErrCloneFailed indicates that the initial clone of the source failed.
	ErrCloneFailed = New("clone failed")
	// ErrPullFailed indicates that updating an existing checkout failed.
	ErrPullFailed = New("pull failed")
	// ErrNotDirectory indicates that the checkout path exists but is not a directory.
	ErrNotDirectory = New("path is not a directory")
)

// Environment-related sentinel errors
var (
	// ErrEnvCreateFailed indicates that the virtual environment could not be created.
	ErrEnvCreateFailed = New("environment creation failed")
	// ErrInstallFailed indicates that a dependency installation step failed.
	ErrInstallFailed = New("dependency installation failed")
)

// Process-related sentinel errors
var (
	// ErrProcessExited indicates that the application exited before it was considered alive.
	ErrProcessExited = New("process exited during startup")
	// ErrLaunchFailed indicates that the application could not be started at all.
	ErrLaunchFailed = New("process could not be launched")
	// ErrNotRunning indicates that a stop was requested for a process that is not running.
	ErrNotRunning = New("process not running")
)

// Precondition sentinel errors
var (
	// ErrNotInstalled indicates that the source checkout does not exist.
	ErrNotInstalled = New("source not installed")
	// ErrEnvMissing indicates that the virtual environment does not exist.
	ErrEnvMissing = New("environment not provisioned")
)

// General sentinel errors
var (
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// LauncherError is the base interface for all zerepyctl errors.
type LauncherError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsFatal returns true if the error must abort the current command.
	IsFatal() bool

	// Step names the lifecycle step that produced the error.
	Step() string
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message  string
	cause    error
	severity Severity
	fatal    bool
	step     string
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsFatal returns whether the error aborts the command.
func (e *baseError) IsFatal() bool {
	return e.fatal
}

// Step returns the lifecycle step name.
func (e *baseError) Step() string {
	return e.step
}

// format renders "<kind> [k=v, ...]: message: cause".
func (e *baseError) format(kind string, parts []string) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

func fatalBase(step, message string, cause error) baseError {
	return baseError{
		message:  message,
		cause:    cause,
		severity: SeverityError,
		fatal:    true,
		step:     step,
	}
}

// -----------------------------------------------------------------------------
// Step Errors
// -----------------------------------------------------------------------------

// ToolError represents a missing or unusable external tool.
//
// Example:
//
//	err := errors.NewToolError("git", true, cause)
//	fmt.Println(err) // "missing tool [tool=git]: git is required but was not found: ..."
type ToolError struct {
	baseError
	Tool    string
	Command string
}

// NewToolError creates a ToolError. Fatal tools abort the run; non-fatal
// tools produce a warning-severity error.
func NewToolError(tool string, fatal bool, cause error) *ToolError {
	msg := fmt.Sprintf("%s is required but was not found", tool)
	sev := SeverityError
	if !fatal {
		msg = fmt.Sprintf("%s was not found", tool)
		sev = SeverityWarning
	}
	if cause == nil {
		cause = ErrToolMissing
	}
	return &ToolError{
		baseError: baseError{
			message:  msg,
			cause:    cause,
			severity: sev,
			fatal:    fatal,
			step:     "probe",
		},
		Tool: tool,
	}
}

// WithCommand records the detection command that failed.
func (e *ToolError) WithCommand(command string) *ToolError {
	e.Command = command
	return e
}

// Error returns the formatted error message.
func (e *ToolError) Error() string {
	var parts []string
	if e.Tool != "" {
		parts = append(parts, fmt.Sprintf("tool=%s", e.Tool))
	}
	return e.format("missing tool", parts)
}

// Is checks if this error matches the target.
func (e *ToolError) Is(target error) bool {
	if _, ok := target.(*ToolError); ok {
		return true
	}
	if target == ErrToolMissing {
		return true
	}
	return e.baseError.Is(target)
}

// FetchError represents a failure to obtain the application source.
//
// Example:
//
//	err := errors.NewFetchError("git clone failed", errors.ErrCloneFailed).
//	    WithRemote("https://github.com/org/repo.git").
//	    WithDir("/work/repo")
type FetchError struct {
	baseError
	Remote string
	Dir    string
	Output string // Captured git output
}

// NewFetchError creates a new FetchError.
func NewFetchError(message string, cause error) *FetchError {
	return &FetchError{baseError: fatalBase("fetch", message, cause)}
}

// WithRemote adds the remote URL to the error context.
func (e *FetchError) WithRemote(remote string) *FetchError {
	e.Remote = remote
	return e
}

// WithDir adds the local checkout directory to the error context.
func (e *FetchError) WithDir(dir string) *FetchError {
	e.Dir = dir
	return e
}

// WithOutput adds captured git output to the error context.
func (e *FetchError) WithOutput(output string) *FetchError {
	e.Output = output
	return e
}

// AsWarning downgrades the error to a non-fatal warning.
// Used for pull failures on an existing checkout.
func (e *FetchError) AsWarning() *FetchError {
	e.fatal = false
	e.severity = SeverityWarning
	return e
}

// Error returns the formatted error message.
func (e *FetchError) Error() string {
	var parts []string
	if e.Remote != "" {
		parts = append(parts, fmt.Sprintf("remote=%s", e.Remote))
	}
	if e.Dir != "" {
		parts = append(parts, fmt.Sprintf("dir=%s", e.Dir))
	}
	return e.format("fetch error", parts)
}

// Is checks if this error matches the target.
func (e *FetchError) Is(target error) bool {
	if _, ok := target.(*FetchError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ProvisionError represents a failure to create or populate the environment.
type ProvisionError struct {
	baseError
	EnvDir string
	Action string // e.g. "create", "install requirements", "poetry install"
	Output string
}

// NewProvisionError creates a new ProvisionError.
func NewProvisionError(message string, cause error) *ProvisionError {
	return &ProvisionError{baseError: fatalBase("provision", message, cause)}
}

// WithEnvDir adds the environment directory to the error context.
func (e *ProvisionError) WithEnvDir(dir string) *ProvisionError {
	e.EnvDir = dir
	return e
}

// WithAction records which provisioning action failed.
func (e *ProvisionError) WithAction(action string) *ProvisionError {
	e.Action = action
	return e
}

// WithOutput adds the failing command's output.
func (e *ProvisionError) WithOutput(output string) *ProvisionError {
	e.Output = output
	return e
}

// Error returns the formatted error message.
func (e *ProvisionError) Error() string {
	var parts []string
	if e.Action != "" {
		parts = append(parts, fmt.Sprintf("action=%s", e.Action))
	}
	if e.EnvDir != "" {
		parts = append(parts, fmt.Sprintf("env=%s", e.EnvDir))
	}
	return e.format("provision error", parts)
}

// Is checks if this error matches the target.
func (e *ProvisionError) Is(target error) bool {
	if _, ok := target.(*ProvisionError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// StartupError represents an application that failed to come up.
//
// Example:
//
//	err := errors.NewStartupError("server exited during startup", errors.ErrProcessExited).
//	    WithCommand("venv/bin/python main.py --server").
//	    WithExitCode(1).
//	    WithOutput(tail)
type StartupError struct {
	baseError
	Command  string
	ExitCode int
	Output   string
}

// NewStartupError creates a new StartupError.
func NewStartupError(message string, cause error) *StartupError {
	return &StartupError{baseError: fatalBase("launch", message, cause), ExitCode: -1}
}

// WithCommand records the command line that was started.
func (e *StartupError) WithCommand(command string) *StartupError {
	e.Command = command
	return e
}

// WithExitCode records the process exit code.
func (e *StartupError) WithExitCode(code int) *StartupError {
	e.ExitCode = code
	return e
}

// WithOutput attaches the process output captured before it exited.
func (e *StartupError) WithOutput(output string) *StartupError {
	e.Output = output
	return e
}

// Error returns the formatted error message.
func (e *StartupError) Error() string {
	var parts []string
	if e.ExitCode >= 0 {
		parts = append(parts, fmt.Sprintf("exit=%d", e.ExitCode))
	}
	return e.format("startup error", parts)
}

// Is checks if this error matches the target.
func (e *StartupError) Is(target error) bool {
	if _, ok := target.(*StartupError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// TerminationError represents a failed attempt to stop a process.
// It is never fatal; termination is best-effort cleanup.
type TerminationError struct {
	baseError
	PID int
}

// NewTerminationError creates a new TerminationError.
func NewTerminationError(pid int, cause error) *TerminationError {
	return &TerminationError{
		baseError: baseError{
			message:  "failed to terminate process",
			cause:    cause,
			severity: SeverityWarning,
			fatal:    false,
			step:     "stop",
		},
		PID: pid,
	}
}

// Error returns the formatted error message.
func (e *TerminationError) Error() string {
	var parts []string
	if e.PID > 0 {
		parts = append(parts, fmt.Sprintf("pid=%d", e.PID))
	}
	return e.format("termination error", parts)
}

// Is checks if this error matches the target.
func (e *TerminationError) Is(target error) bool {
	if _, ok := target.(*TerminationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// PreconditionError represents a serve invoked without a completed install.
type PreconditionError struct {
	baseError
	Path string
	Hint string
}

// NewPreconditionError creates a new PreconditionError for the missing path.
func NewPreconditionError(path string, cause error) *PreconditionError {
	return &PreconditionError{
		baseError: fatalBase("precondition", "required path does not exist", cause),
		Path:      path,
		Hint:      "run 'install' first",
	}
}

// Error returns the formatted error message.
func (e *PreconditionError) Error() string {
	msg := e.format("precondition failed", []string{fmt.Sprintf("path=%s", e.Path)})
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

// Is checks if this error matches the target.
func (e *PreconditionError) Is(target error) bool {
	if _, ok := target.(*PreconditionError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsFatal returns true if the error must abort the current command.
// Errors that don't implement LauncherError are treated as fatal, except
// context cancellation which is a user-initiated stop.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var launcherErr LauncherError
	if As(err, &launcherErr) {
		return launcherErr.IsFatal()
	}

	return !Is(err, ErrCanceled)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement LauncherError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var launcherErr LauncherError
	if As(err, &launcherErr) {
		return launcherErr.Severity()
	}

	return SeverityError
}

// StepOf returns the lifecycle step recorded on the error, or "" if none.
func StepOf(err error) string {
	var launcherErr LauncherError
	if As(err, &launcherErr) {
		return launcherErr.Step()
	}
	return ""
}

// ExitCode maps an error to the launcher's process exit code:
// 0 for nil or non-fatal errors, 1 otherwise.
func ExitCode(err error) int {
	if !IsFatal(err) {
		return 0
	}
	return 1
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike fmt.Errorf with %w, this preserves the LauncherError interface.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
