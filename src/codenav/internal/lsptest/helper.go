package lsptest

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
)

const (
	_envHelper         = "CODENAV_LSPTEST_HELPER"
	_envCrashFile      = "CODENAV_LSPTEST_CRASH_FILE"
	_envIgnoreShutdown = "CODENAV_LSPTEST_IGNORE_SHUTDOWN"
	_envHangMethod     = "CODENAV_LSPTEST_HANG_METHOD"
)

// IsHelper reports whether the current process was launched through HelperCommand to act as a fake language server.
func IsHelper() bool {
	return os.Getenv(_envHelper) == "1"
}

// HelperCommand returns the command, arguments and environment that re-execute the running test
// binary as a fake language server configured by opts. The binary's TestMain must call Main when IsHelper is true.
func HelperCommand(opts Options) (string, []string, []string) {
	env := []string{_envHelper + "=1"}
	if opts.CrashCounterFile != "" {
		env = append(env, _envCrashFile+"="+opts.CrashCounterFile)
	}
	if opts.IgnoreShutdown {
		env = append(env, _envIgnoreShutdown+"=1")
	}
	if opts.HangMethod != "" {
		env = append(env, _envHangMethod+"="+opts.HangMethod)
	}
	return os.Args[0], []string{"-test.run=^$"}, env
}

// Main serves LSP over stdin and stdout and exits the process when the connection ends.
func Main() {
	opts := Options{
		CrashCounterFile: os.Getenv(_envCrashFile),
		IgnoreShutdown:   os.Getenv(_envIgnoreShutdown) == "1",
		HangMethod:       os.Getenv(_envHangMethod),
		Exit:             os.Exit,
	}
	if opts.IgnoreShutdown {
		signal.Ignore(syscall.SIGTERM)
	}

	s := Serve(context.Background(), stdio{in: os.Stdin, out: os.Stdout}, opts)
	<-s.Done()
	if opts.IgnoreShutdown {
		// Only SIGKILL stops a server that ignores shutdown.
		for {
			time.Sleep(time.Hour)
		}
	}
	os.Exit(0)
}

type stdio struct {
	in  io.ReadCloser
	out io.WriteCloser
}

func (s stdio) Read(p []byte) (int, error)  { return s.in.Read(p) }
func (s stdio) Write(p []byte) (int, error) { return s.out.Write(p) }
func (s stdio) Close() error                { return multierr.Append(s.in.Close(), s.out.Close()) }
