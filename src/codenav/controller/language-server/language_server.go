// Package languageserver supervises language server child processes and exposes typed LSP operations over them.
package languageserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uber-go/tally"
	"github.com/uber/codenav/src/codenav/entity"
	"github.com/uber/codenav/src/codenav/internal/executor"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	_configKeyToolTimeout    = "toolTimeoutSeconds"
	_configKeyStartupTimeout = "startupTimeoutSeconds"
	_configKeyShutdownGrace  = "shutdownGraceMilliseconds"
	_configKeyForceKill      = "forceKillMilliseconds"

	_defaultToolTimeout    = 60 * time.Second
	_defaultStartupTimeout = 30 * time.Second
	_defaultShutdownGrace  = 2 * time.Second
	_defaultForceKill      = 2 * time.Second

	_clientName    = "codenav"
	_clientVersion = "0.1.0"
)

// Module provides the language server Factory.
var Module = fx.Provide(NewFactory)

// Process is a supervised language server for one language of one project.
// Every operation fails immediately with a CrashError unless the process is Running.
type Process interface {
	ID() entity.ServerID
	State() State
	Capabilities() entity.Capabilities
	// Pid returns the operating system id of the current child, or 0 when there is none.
	Pid() int
	// Requests returns the number of LSP requests sent across every instance of this process.
	Requests() int64

	// Start spawns the child and performs the initialize handshake. It is valid from NotStarted and Crashed.
	Start(ctx context.Context) error
	// Restart shuts down the current child, if any, and starts a new one.
	Restart(ctx context.Context) error
	// Stop shuts the child down gracefully, escalating to SIGTERM and SIGKILL. The process cannot be started again.
	Stop(ctx context.Context) error

	// DocumentSymbols returns the raw textDocument/documentSymbol result for doc.
	DocumentSymbols(ctx context.Context, doc entity.Document) (json.RawMessage, error)
	FindReferences(ctx context.Context, doc entity.Document, pos entity.Position, includeDeclaration bool) ([]entity.Location, error)
	FindDefinition(ctx context.Context, doc entity.Document, pos entity.Position) ([]entity.Location, error)
	// Rename returns the edits that rename the symbol at pos. It does not apply them.
	Rename(ctx context.Context, doc entity.Document, pos entity.Position, newName string) (entity.WorkspaceEdit, error)

	NotifyOpened(ctx context.Context, doc entity.Document) error
	NotifyChanged(ctx context.Context, doc entity.Document) error
	NotifyClosed(ctx context.Context, path string) error
}

// Handlers answer requests initiated by the language server.
type Handlers struct {
	// ApplyEdit applies a server initiated workspace/applyEdit.
	ApplyEdit func(ctx context.Context, edit entity.WorkspaceEdit) error
}

// Factory creates processes.
type Factory interface {
	New(id entity.ServerID, root string, desc entity.LaunchDescriptor, handlers Handlers) Process
}

// Timeouts bound the blocking steps of a process.
type Timeouts struct {
	Request       time.Duration
	Startup       time.Duration
	ShutdownGrace time.Duration
	ForceKill     time.Duration
}

// Params are inbound parameters to create a Factory.
type Params struct {
	fx.In

	Config   config.Provider
	Executor executor.Executor
	Logger   *zap.SugaredLogger
	Stats    tally.Scope
}

type factory struct {
	timeouts Timeouts
	executor executor.Executor
	logger   *zap.SugaredLogger
	stats    tally.Scope
}

// NewFactory creates a Factory configured from the timeout settings.
func NewFactory(p Params) (Factory, error) {
	timeouts, err := loadTimeouts(p.Config)
	if err != nil {
		return nil, err
	}
	return &factory{
		timeouts: timeouts,
		executor: p.Executor,
		logger:   p.Logger,
		stats:    p.Stats.SubScope("language_server"),
	}, nil
}

// New creates a process in the NotStarted state. Its supervisor runs until Stop.
func (f *factory) New(id entity.ServerID, root string, desc entity.LaunchDescriptor, handlers Handlers) Process {
	return newProcess(processOptions{
		id:       id,
		root:     root,
		desc:     desc,
		handlers: handlers,
		timeouts: f.timeouts,
		executor: f.executor,
		logger:   f.logger,
		stats:    f.stats,
	})
}

func loadTimeouts(cfg config.Provider) (Timeouts, error) {
	t := Timeouts{
		Request:       _defaultToolTimeout,
		Startup:       _defaultStartupTimeout,
		ShutdownGrace: _defaultShutdownGrace,
		ForceKill:     _defaultForceKill,
	}
	for _, setting := range []struct {
		key  string
		unit time.Duration
		dst  *time.Duration
	}{
		{_configKeyToolTimeout, time.Second, &t.Request},
		{_configKeyStartupTimeout, time.Second, &t.Startup},
		{_configKeyShutdownGrace, time.Millisecond, &t.ShutdownGrace},
		{_configKeyForceKill, time.Millisecond, &t.ForceKill},
	} {
		val := cfg.Get(setting.key)
		if !val.HasValue() {
			continue
		}
		var n int64
		if err := val.Populate(&n); err != nil {
			return Timeouts{}, fmt.Errorf("getting config field %q: %w", setting.key, err)
		}
		if n <= 0 {
			return Timeouts{}, fmt.Errorf("config field %q must be positive", setting.key)
		}
		*setting.dst = time.Duration(n) * setting.unit
	}
	return t, nil
}
