package errors

import (
	"fmt"
	"time"
)

// StartupError indicates that a language server could not be spawned or did not complete its handshake.
type StartupError struct {
	Server string
	Err    error
}

// Error is an implementation of the error interface.
func (e *StartupError) Error() string {
	return fmt.Sprintf("starting language server %q: %v", e.Server, e.Err)
}

// Unwrap returns the underlying cause.
func (e *StartupError) Unwrap() error { return e.Err }

// Kind returns KindStartup.
func (e *StartupError) Kind() Kind { return KindStartup }

// ProtocolError indicates a malformed or unexpected message exchanged with a language server.
type ProtocolError struct {
	Server string
	Method string
	Err    error
}

// Error is an implementation of the error interface.
func (e *ProtocolError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("protocol error from %q: %v", e.Server, e.Err)
	}
	return fmt.Sprintf("protocol error from %q during %s: %v", e.Server, e.Method, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ProtocolError) Unwrap() error { return e.Err }

// Kind returns KindProtocol.
func (e *ProtocolError) Kind() Kind { return KindProtocol }

// TimeoutError indicates that a request did not receive a response before its deadline.
type TimeoutError struct {
	Server  string
	Method  string
	Timeout time.Duration
}

// Error is an implementation of the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s on %q timed out after %s", e.Method, e.Server, e.Timeout)
}

// Kind returns KindTimeout.
func (e *TimeoutError) Kind() Kind { return KindTimeout }

// CrashError indicates that a language server process is no longer running.
// Fatal is set once the restart policy has been exhausted.
type CrashError struct {
	Server string
	Err    error
	Fatal  bool
}

// Error is an implementation of the error interface.
func (e *CrashError) Error() string {
	msg := fmt.Sprintf("language server %q crashed", e.Server)
	if e.Fatal {
		msg = fmt.Sprintf("language server %q crashed again after restart", e.Server)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *CrashError) Unwrap() error { return e.Err }

// Kind returns KindCrash.
func (e *CrashError) Kind() Kind { return KindCrash }

// ResponseError is an error response returned by a live language server.
type ResponseError struct {
	Server  string
	Method  string
	Code    int64
	Message string
}

// Error is an implementation of the error interface.
func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s on %q failed (%d): %s", e.Method, e.Server, e.Code, e.Message)
}

// Kind returns KindToolExecution, since the server is alive and the operation itself failed.
func (e *ResponseError) Kind() Kind { return KindToolExecution }
