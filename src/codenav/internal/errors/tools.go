package errors

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// ToolExecutionError indicates that a tool rejected its arguments or failed in its own logic.
type ToolExecutionError struct {
	Tool string
	Err  error
}

// ToolError builds a ToolExecutionError from a format string.
func ToolError(tool string, format string, args ...interface{}) error {
	return &ToolExecutionError{Tool: tool, Err: fmt.Errorf(format, args...)}
}

// Error is an implementation of the error interface.
func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Tool, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ToolExecutionError) Unwrap() error { return e.Err }

// Kind returns KindToolExecution.
func (e *ToolExecutionError) Kind() Kind { return KindToolExecution }

// ConfigResolutionError indicates contradictory context, mode or exclusion configuration.
type ConfigResolutionError struct {
	Reasons []string
}

// NewConfigResolutionError combines every error in errs into a single ConfigResolutionError.
// It returns nil when errs holds no errors.
func NewConfigResolutionError(errs error) error {
	all := multierr.Errors(errs)
	if len(all) == 0 {
		return nil
	}
	reasons := make([]string, 0, len(all))
	for _, err := range all {
		reasons = append(reasons, err.Error())
	}
	return &ConfigResolutionError{Reasons: reasons}
}

// Error is an implementation of the error interface.
func (e *ConfigResolutionError) Error() string {
	return fmt.Sprintf("invalid tool exposure configuration: %s", strings.Join(e.Reasons, "; "))
}

// Kind returns KindConfigResolution.
func (e *ConfigResolutionError) Kind() Kind { return KindConfigResolution }

// ProjectNotActiveError indicates that a tool needing a project was called with none active.
type ProjectNotActiveError struct {
	Tool string
}

// Error is an implementation of the error interface.
func (e *ProjectNotActiveError) Error() string {
	if e.Tool == "" {
		return "no project is active; call activate_project first"
	}
	return fmt.Sprintf("tool %q requires an active project; call activate_project first", e.Tool)
}

// Kind returns KindProjectNotActive.
func (e *ProjectNotActiveError) Kind() Kind { return KindProjectNotActive }

// NoSuchToolError indicates a call to a tool that is not in the exposed table.
type NoSuchToolError struct {
	Name string
}

// Error is an implementation of the error interface.
func (e *NoSuchToolError) Error() string {
	return fmt.Sprintf("no such tool %q", e.Name)
}

// Kind returns KindNoSuchTool.
func (e *NoSuchToolError) Kind() Kind { return KindNoSuchTool }

// ShuttingDownError indicates that a call arrived after shutdown began.
type ShuttingDownError struct{}

// Error is an implementation of the error interface.
func (e *ShuttingDownError) Error() string { return "session is shutting down" }

// Kind returns KindShuttingDown.
func (e *ShuttingDownError) Kind() Kind { return KindShuttingDown }

// FileSizeLimitError indicates that a file exceeds the project's indexed size limit.
type FileSizeLimitError struct {
	Path  string
	Size  int64
	Limit int64
}

// Error is an implementation of the error interface.
func (e *FileSizeLimitError) Error() string {
	return fmt.Sprintf("%s: size of %d bytes exceeds permitted limit of %d", e.Path, e.Size, e.Limit)
}

// Kind returns KindToolExecution.
func (e *FileSizeLimitError) Kind() Kind { return KindToolExecution }

// PathOutsideProjectError indicates a path that resolves outside the active project root.
type PathOutsideProjectError struct {
	Path string
	Root string
}

// Error is an implementation of the error interface.
func (e *PathOutsideProjectError) Error() string {
	return fmt.Sprintf("path %q is outside project root %q", e.Path, e.Root)
}

// Kind returns KindToolExecution.
func (e *PathOutsideProjectError) Kind() Kind { return KindToolExecution }

// UnsupportedLanguageError indicates that no language server is configured for a file.
type UnsupportedLanguageError struct {
	Path string
}

// Error is an implementation of the error interface.
func (e *UnsupportedLanguageError) Error() string {
	return fmt.Sprintf("no language server configured for %q", e.Path)
}

// Kind returns KindToolExecution.
func (e *UnsupportedLanguageError) Kind() Kind { return KindToolExecution }
