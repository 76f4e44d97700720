package errors

import (
	"context"
	stderr "errors"
)

// Kind is the stable, caller-visible classification of an error.
type Kind string

const (
	// KindStartup reports a failed spawn or initialize handshake.
	KindStartup Kind = "StartupError"
	// KindProtocol reports a malformed or unexpected message on a language server connection.
	KindProtocol Kind = "ProtocolError"
	// KindTimeout reports a request that exceeded its deadline. The server is presumed alive.
	KindTimeout Kind = "TimeoutError"
	// KindCrash reports that a language server process died.
	KindCrash Kind = "CrashError"
	// KindToolExecution reports a failure in a tool's own validation or logic.
	KindToolExecution Kind = "ToolExecutionError"
	// KindConfigResolution reports contradictory exposure configuration.
	KindConfigResolution Kind = "ConfigResolutionError"
	// KindProjectNotActive reports a call that needs an active project while none is active.
	KindProjectNotActive Kind = "ProjectNotActive"
	// KindNoSuchTool reports a call to a tool that is not currently exposed.
	KindNoSuchTool Kind = "NoSuchTool"
	// KindCancelled reports that the caller abandoned the call.
	KindCancelled Kind = "Cancelled"
	// KindShuttingDown reports a call received after session shutdown began.
	KindShuttingDown Kind = "ShuttingDown"
)

// Kinded is implemented by every error type in this package.
type Kinded interface {
	error
	Kind() Kind
}

// New returns an error that formats as the given text.
// Each call to New returns a distinct error value even if the text is identical.
func New(msg string) error {
	return stderr.New(msg)
}

// KindOf returns the Kind of the first classified error in err's chain.
// Unclassified errors are reported as tool execution failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var k Kinded
	if stderr.As(err, &k) {
		return k.Kind()
	}

	if stderr.Is(err, context.Canceled) {
		return KindCancelled
	}
	if stderr.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindToolExecution
}

// IsCrash reports whether err was caused by a language server process dying.
func IsCrash(err error) bool {
	var c *CrashError
	return stderr.As(err, &c)
}

// IsFatal reports whether err is a crash that survived the restart policy.
func IsFatal(err error) bool {
	var c *CrashError
	return stderr.As(err, &c) && c.Fatal
}
