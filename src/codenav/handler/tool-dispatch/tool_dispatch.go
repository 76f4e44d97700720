// Package tooldispatch publishes the exposed tool set and routes tool calls to it.
package tooldispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/uber-go/tally"
	"github.com/uber/codenav/src/codenav/controller/capability"
	"github.com/uber/codenav/src/codenav/controller/orchestrator"
	"github.com/uber/codenav/src/codenav/controller/tools"
	"github.com/uber/codenav/src/codenav/entity"
	"github.com/uber/codenav/src/codenav/internal/clock"
	naverrors "github.com/uber/codenav/src/codenav/internal/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the dispatch Server.
var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(RegisterJSONRPC),
)

// AuditHook observes every tool call that reached a tool.
type AuditHook func(toolName string, durationMs int64, success bool)

// ToolDescription is the published form of an exposed tool.
type ToolDescription struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	InputSchema entity.Schema `json:"inputSchema"`
}

// ErrorBody is the structured error of a failed call.
type ErrorBody struct {
	Kind    naverrors.Kind `json:"kind"`
	Message string         `json:"message"`
}

// Result is the outcome of a call: exactly one of Value and Error is set.
type Result struct {
	Value interface{} `json:"result,omitempty"`
	Error *ErrorBody  `json:"error,omitempty"`
}

// IsError reports whether the call failed.
func (r Result) IsError() bool { return r.Error != nil }

// Text renders the result for text based protocols. A string value is returned as is; anything else is JSON.
func (r Result) Text() string {
	if r.Error != nil {
		b, _ := json.Marshal(r.Error)
		return string(b)
	}
	if s, ok := r.Value.(string); ok {
		return s
	}
	b, err := json.MarshalIndent(r.Value, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", r.Value)
	}
	return string(b)
}

func errorResult(err error) Result {
	return Result{Error: &ErrorBody{Kind: naverrors.KindOf(err), Message: err.Error()}}
}

// Server is the tool dispatch server.
type Server interface {
	// Start publishes the initial tool set. A contradictory exposure configuration fails it.
	Start(ctx context.Context) error
	// Refresh recomputes and republishes the tool set. On failure the previous set stays published.
	Refresh() error
	List() []ToolDescription
	// Call runs an exposed tool. Failures are returned as structured results, never as panics.
	Call(ctx context.Context, name string, args json.RawMessage) Result
	// Instructions returns the instructions of the active context.
	Instructions() string
	// OnToolsChanged registers fn to receive every newly published tool set.
	OnToolsChanged(fn func([]ToolDescription))
	// Shutdown stops accepting calls, waits for calls in flight and tears down the active project.
	Shutdown(ctx context.Context) error
}

// Params are inbound parameters to create a Server.
type Params struct {
	fx.In

	Registry     tools.Registry
	Orchestrator orchestrator.Orchestrator
	Source       capability.Source
	Clock        clock.Clock
	Stats        tally.Scope
	Logger       *zap.SugaredLogger
	Lifecycle    fx.Lifecycle
	AuditHook    AuditHook `optional:"true"`
}

type table struct {
	byName map[string]tools.Tool
	list   []ToolDescription
}

type server struct {
	registry     tools.Registry
	orchestrator orchestrator.Orchestrator
	source       capability.Source
	clock        clock.Clock
	stats        tally.Scope
	logger       *zap.SugaredLogger
	audit        AuditHook

	table atomic.Pointer[table]

	// refreshMu orders publications.
	refreshMu   sync.Mutex
	publishers  []func([]ToolDescription)
	unsubscribe func()

	callMu   sync.Mutex
	closing  bool
	inflight sync.WaitGroup
}

// New creates the Server. It starts and stops with the application.
func New(p Params) Server {
	audit := p.AuditHook
	if audit == nil {
		audit = func(string, int64, bool) {}
	}
	s := &server{
		registry:     p.Registry,
		orchestrator: p.Orchestrator,
		source:       p.Source,
		clock:        p.Clock,
		stats:        p.Stats.SubScope("tool_dispatch"),
		logger:       p.Logger.With("component", "tool_dispatch"),
		audit:        audit,
	}
	s.table.Store(&table{byName: map[string]tools.Tool{}})

	p.Lifecycle.Append(fx.Hook{
		OnStart: s.Start,
		OnStop:  s.Shutdown,
	})
	return s
}

func (s *server) Start(context.Context) error {
	if err := s.Refresh(); err != nil {
		return err
	}
	s.unsubscribe = s.orchestrator.Subscribe(s.Refresh)
	return nil
}

func (s *server) Refresh() error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	state := s.orchestrator.ExposureState()
	names, err := capability.Resolve(capability.NewInput(s.registry.Infos(), s.source.Exposure(), state))
	if err != nil {
		s.logger.Warnw("tool resolution failed, keeping the published tool set", zap.Error(err))
		return err
	}

	next := &table{byName: make(map[string]tools.Tool, len(names)), list: make([]ToolDescription, 0, len(names))}
	for _, name := range names {
		t, ok := s.registry.Get(name)
		if !ok {
			continue
		}
		next.byName[name] = t
		next.list = append(next.list, ToolDescription{Name: name, Description: t.Description(), InputSchema: t.Schema()})
	}
	s.table.Store(next)
	s.orchestrator.SetExposedTools(names)
	s.stats.Gauge("exposed_tools").Update(float64(len(names)))
	s.logger.Infow("published tools", "count", len(names), "context", state.Context, "modes", state.Modes)

	for _, publish := range s.publishers {
		publish(append([]ToolDescription(nil), next.list...))
	}
	return nil
}

func (s *server) List() []ToolDescription {
	return append([]ToolDescription(nil), s.table.Load().list...)
}

func (s *server) OnToolsChanged(fn func([]ToolDescription)) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	s.publishers = append(s.publishers, fn)
}

func (s *server) Instructions() string {
	state := s.orchestrator.ExposureState()
	return s.source.Exposure().Contexts[state.Context].Instructions
}

// enter registers a call in flight unless shutdown has begun.
func (s *server) enter() bool {
	s.callMu.Lock()
	defer s.callMu.Unlock()
	if s.closing {
		return false
	}
	s.inflight.Add(1)
	return true
}

func (s *server) Call(ctx context.Context, name string, args json.RawMessage) Result {
	if !s.enter() {
		return errorResult(&naverrors.ShuttingDownError{})
	}
	defer s.inflight.Done()

	t, ok := s.table.Load().byName[name]
	if !ok {
		s.countError(name, naverrors.KindNoSuchTool)
		return errorResult(&naverrors.NoSuchToolError{Name: name})
	}
	if t.RequiresActiveProject() && s.orchestrator.Active() == nil {
		s.countError(name, naverrors.KindProjectNotActive)
		return errorResult(&naverrors.ProjectNotActiveError{Tool: name})
	}

	scope := s.stats.Tagged(map[string]string{"tool": name})
	scope.Counter("calls").Inc(1)
	start := s.clock.Now()
	value, err := s.apply(ctx, t, args)
	elapsed := s.clock.Since(start)
	scope.Timer("latency").Record(elapsed)
	s.audit(name, elapsed.Milliseconds(), err == nil)

	if err != nil {
		kind := naverrors.KindOf(err)
		s.countError(name, kind)
		s.logger.Warnw("tool call failed", "tool", name, "kind", kind, "duration", elapsed, zap.Error(err))
		return errorResult(err)
	}
	s.logger.Infow("tool call", "tool", name, "duration", elapsed)
	return Result{Value: value}
}

// apply runs t, converting a panic into a ToolExecutionError.
func (s *server) apply(ctx context.Context, t tools.Tool, args json.RawMessage) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("tool panicked", "tool", t.Name(), "panic", r, "stack", string(debug.Stack()))
			value, err = nil, naverrors.ToolError(t.Name(), "internal error: %v", r)
		}
	}()
	return t.Apply(ctx, args)
}

func (s *server) countError(name string, kind naverrors.Kind) {
	s.stats.Tagged(map[string]string{"tool": name, "kind": string(kind)}).Counter("errors").Inc(1)
}

func (s *server) Shutdown(ctx context.Context) error {
	s.callMu.Lock()
	alreadyClosing := s.closing
	s.closing = true
	s.callMu.Unlock()
	if alreadyClosing {
		return nil
	}
	if s.unsubscribe != nil {
		s.unsubscribe()
	}

	drained := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		s.logger.Warnw("tool calls still running at shutdown", zap.Error(ctx.Err()))
	}

	start := time.Now()
	err := s.orchestrator.Shutdown(ctx)
	s.logger.Infow("tool dispatch shut down", "teardown", time.Since(start), zap.Error(err))
	return err
}
