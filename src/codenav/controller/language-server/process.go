package languageserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/uber-go/tally"
	"github.com/uber/codenav/src/codenav/entity"
	naverrors "github.com/uber/codenav/src/codenav/internal/errors"
	"github.com/uber/codenav/src/codenav/internal/executor"
	"github.com/uber/codenav/src/codenav/internal/jsonrpc"
	"github.com/uber/codenav/src/codenav/internal/logfilewriter"
	"github.com/uber/codenav/src/codenav/mapper"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var errTerminated = errors.New("process has been terminated")

type commandKind int

const (
	_commandStart commandKind = iota
	_commandRestart
	_commandStop
)

type command struct {
	ctx   context.Context
	kind  commandKind
	reply chan error
}

type processOptions struct {
	id       entity.ServerID
	root     string
	desc     entity.LaunchDescriptor
	handlers Handlers
	timeouts Timeouts
	executor executor.Executor
	logger   *zap.SugaredLogger
	stats    tally.Scope
}

// process is driven by a single supervisor goroutine. Start, restart and stop commands and child exit
// events reach it over channels; all other methods only read the published state and instance.
type process struct {
	processOptions

	state    atomic.Int32
	current  atomic.Pointer[instance]
	caps     atomic.Pointer[entity.Capabilities]
	requests atomic.Int64

	commands chan command
	exits    chan *instance
	quit     chan struct{}
}

// instance is one spawned child and its connection. Document sync state belongs to the instance,
// so a restarted server sees every document opened afresh.
type instance struct {
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	dispatcher *jsonrpc.Dispatcher
	exited     chan struct{}
	waitErr    error

	docsMu sync.Mutex
	docs   map[string]*document
}

func newProcess(opts processOptions) *process {
	opts.logger = opts.logger.With("server", opts.id.String())
	opts.stats = opts.stats.Tagged(map[string]string{"language": string(opts.id.Language)})

	p := &process{
		processOptions: opts,
		commands:       make(chan command),
		exits:          make(chan *instance),
		quit:           make(chan struct{}),
	}
	p.caps.Store(&entity.Capabilities{})
	go p.run()
	return p
}

func (p *process) ID() entity.ServerID { return p.id }

func (p *process) State() State { return State(p.state.Load()) }

func (p *process) Capabilities() entity.Capabilities { return *p.caps.Load() }

func (p *process) Requests() int64 { return p.requests.Load() }

func (p *process) Pid() int {
	inst := p.current.Load()
	if inst == nil || inst.cmd.Process == nil {
		return 0
	}
	return inst.cmd.Process.Pid
}

func (p *process) Start(ctx context.Context) error { return p.send(ctx, _commandStart) }

func (p *process) Restart(ctx context.Context) error { return p.send(ctx, _commandRestart) }

func (p *process) Stop(ctx context.Context) error {
	err := p.send(ctx, _commandStop)
	if errors.Is(err, errTerminated) {
		return nil
	}
	return err
}

func (p *process) send(ctx context.Context, kind commandKind) error {
	cmd := command{ctx: ctx, kind: kind, reply: make(chan error, 1)}
	select {
	case p.commands <- cmd:
	case <-p.quit:
		return errTerminated
	case <-ctx.Done():
		return ctx.Err()
	}
	// The supervisor always replies, bounded by the command's context.
	return <-cmd.reply
}

func (p *process) setState(s State) {
	old := State(p.state.Swap(int32(s)))
	if old != s {
		p.logger.Debugw("state changed", "from", old, "to", s)
	}
}

func (p *process) run() {
	defer close(p.quit)

	for {
		select {
		case cmd := <-p.commands:
			switch cmd.kind {
			case _commandStart:
				cmd.reply <- p.start(cmd.ctx)
			case _commandRestart:
				p.stats.Counter("restarts").Inc(1)
				if inst := p.current.Load(); inst != nil {
					p.setState(StateShuttingDown)
					p.shutdown(cmd.ctx, inst)
					p.current.Store(nil)
					p.setState(StateNotStarted)
				}
				cmd.reply <- p.start(cmd.ctx)
			case _commandStop:
				if inst := p.current.Load(); inst != nil {
					p.setState(StateShuttingDown)
					p.shutdown(cmd.ctx, inst)
					p.current.Store(nil)
				}
				p.setState(StateTerminated)
				p.logger.Infow("language server terminated")
				cmd.reply <- nil
				return
			}
		case inst := <-p.exits:
			p.handleExit(inst)
		}
	}
}

// start runs on the supervisor goroutine.
func (p *process) start(ctx context.Context) error {
	switch p.State() {
	case StateRunning:
		return nil
	case StateNotStarted, StateCrashed:
	default:
		return &naverrors.StartupError{Server: p.id.String(), Err: fmt.Errorf("cannot start from state %s", p.State())}
	}

	p.setState(StateStarting)
	p.stats.Counter("starts").Inc(1)

	inst, err := p.spawn()
	if err != nil {
		p.setState(StateCrashed)
		return &naverrors.StartupError{Server: p.id.String(), Err: err}
	}

	caps, err := p.handshake(ctx, inst)
	if err != nil {
		inst.kill()
		inst.dispatcher.Close()
		p.setState(StateCrashed)
		p.logger.Errorw("language server failed to start", zap.Error(err))
		return &naverrors.StartupError{Server: p.id.String(), Err: err}
	}

	p.caps.Store(&caps)
	p.current.Store(inst)
	p.setState(StateRunning)
	p.logger.Infow("language server running", "pid", inst.cmd.Process.Pid, "capabilities", caps)
	return nil
}

func (p *process) spawn() (*instance, error) {
	cmd := exec.Command(p.desc.Command, p.desc.Args...)
	cmd.Dir = p.root
	if wd := p.desc.WorkingDirectory; wd != "" {
		if !filepath.IsAbs(wd) {
			wd = filepath.Join(p.root, wd)
		}
		cmd.Dir = wd
	}
	cmd.Env = append(os.Environ(), p.desc.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr := logfilewriter.New(p.logger.With("stream", "stderr"), zapcore.DebugLevel)
	cmd.Stderr = stderr

	if err := p.executor.Start(cmd); err != nil {
		return nil, fmt.Errorf("spawning %q: %w", p.desc.Command, err)
	}

	inst := &instance{
		cmd:    cmd,
		stdin:  stdin,
		exited: make(chan struct{}),
		docs:   make(map[string]*document),
	}
	inst.dispatcher = jsonrpc.NewDispatcher(
		jsonrpc.NewTransport(&jsonrpc.ProcessPipe{Stdout: stdout, Stdin: stdin}),
		jsonrpc.WithName(p.id.String()),
		jsonrpc.WithLogger(p.logger),
		jsonrpc.WithStats(p.stats),
		jsonrpc.WithMaxConcurrentRequests(p.desc.MaxConcurrentRequests),
	)
	p.registerHandlers(inst.dispatcher)
	inst.dispatcher.Start()

	go func() {
		inst.waitErr = cmd.Wait()
		stderr.Close()
		close(inst.exited)
	}()
	go p.monitor(inst)

	return inst, nil
}

func (p *process) handshake(ctx context.Context, inst *instance) (entity.Capabilities, error) {
	params := mapper.NewInitializeParams(p.root, _clientName, _clientVersion, p.desc.InitializationOptions)

	var result json.RawMessage
	if err := inst.dispatcher.Call(ctx, protocol.MethodInitialize, params, p.timeouts.Startup, &result); err != nil {
		return entity.Capabilities{}, err
	}
	caps, err := mapper.Capabilities(result)
	if err != nil {
		return entity.Capabilities{}, &naverrors.ProtocolError{Server: p.id.String(), Method: protocol.MethodInitialize, Err: err}
	}
	if err := inst.dispatcher.Notify(ctx, protocol.MethodInitialized, struct{}{}); err != nil {
		return entity.Capabilities{}, err
	}
	return caps, nil
}

// monitor reports the end of an instance to the supervisor, whether the child exited or its connection broke.
func (p *process) monitor(inst *instance) {
	select {
	case <-inst.exited:
	case <-inst.dispatcher.Done():
	}
	select {
	case p.exits <- inst:
	case <-p.quit:
	}
}

// handleExit runs on the supervisor goroutine.
func (p *process) handleExit(inst *instance) {
	if p.current.Load() != inst || p.State() != StateRunning {
		return
	}

	p.setState(StateCrashed)
	p.current.Store(nil)
	p.stats.Counter("crashes").Inc(1)
	p.logger.Errorw("language server crashed", "connection", inst.dispatcher.Err(), "exited", inst.hasExited())

	// A broken connection can leave the child alive; only one live child is allowed per process.
	inst.kill()
	go inst.dispatcher.Close()
}

// shutdown stops inst: shutdown request, exit notification, closed stdin, then SIGTERM and SIGKILL
// after the grace and force-kill periods. An expired ctx skips straight to SIGKILL.
func (p *process) shutdown(ctx context.Context, inst *instance) {
	if !inst.hasExited() {
		if err := inst.dispatcher.Call(ctx, protocol.MethodShutdown, nil, p.timeouts.ShutdownGrace, nil); err != nil {
			p.logger.Warnw("shutdown request failed", zap.Error(err))
		}
		if err := inst.dispatcher.Notify(ctx, protocol.MethodExit, nil); err != nil {
			p.logger.Debugw("exit notification failed", zap.Error(err))
		}
		inst.stdin.Close()
	}

	if !inst.wait(ctx, p.timeouts.ShutdownGrace) {
		p.logger.Warnw("language server did not exit, sending SIGTERM", "pid", inst.cmd.Process.Pid)
		_ = inst.cmd.Process.Signal(syscall.SIGTERM)
		if !inst.wait(ctx, p.timeouts.ForceKill) {
			p.logger.Warnw("language server ignored SIGTERM, killing", "pid", inst.cmd.Process.Pid)
			inst.kill()
			<-inst.exited
		}
	}

	if err := inst.dispatcher.Close(); err != nil {
		p.logger.Debugw("closing connection", zap.Error(err))
	}
	p.logger.Infow("language server stopped", "wait", inst.waitErr)
}

func (p *process) registerHandlers(d *jsonrpc.Dispatcher) {
	d.OnNotification(protocol.MethodWindowLogMessage, func(ctx context.Context, params json.RawMessage) {
		var msg mapper.LogMessageParams
		if err := json.Unmarshal(params, &msg); err == nil {
			p.logger.Debugw("language server log", "type", msg.Type, "message", msg.Message)
		}
	})
	d.OnNotification(protocol.MethodWindowShowMessage, func(ctx context.Context, params json.RawMessage) {
		var msg mapper.LogMessageParams
		if err := json.Unmarshal(params, &msg); err == nil {
			p.logger.Infow("language server message", "type", msg.Type, "message", msg.Message)
		}
	})

	d.OnRequest(protocol.MethodWorkspaceApplyEdit, p.applyEdit)
	d.OnRequest(protocol.MethodWorkspaceConfiguration, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		var req struct {
			Items []json.RawMessage `json:"items"`
		}
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, err
		}
		return make([]interface{}, len(req.Items)), nil
	})
	acknowledge := func(ctx context.Context, params json.RawMessage) (interface{}, error) { return nil, nil }
	d.OnRequest(protocol.MethodWorkDoneProgressCreate, acknowledge)
	d.OnRequest(protocol.MethodClientRegisterCapability, acknowledge)
	d.OnRequest(protocol.MethodClientUnregisterCapability, acknowledge)
}

func (p *process) applyEdit(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req mapper.ApplyWorkspaceEditParams
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}
	edit, err := mapper.WorkspaceEdit(req.Edit)
	if err != nil {
		return mapper.ApplyWorkspaceEditResult{FailureReason: err.Error()}, nil
	}
	if p.handlers.ApplyEdit == nil {
		return mapper.ApplyWorkspaceEditResult{FailureReason: "edits are not accepted"}, nil
	}
	if err := p.handlers.ApplyEdit(ctx, edit); err != nil {
		p.logger.Warnw("applying server edit failed", "label", req.Label, zap.Error(err))
		return mapper.ApplyWorkspaceEditResult{FailureReason: err.Error()}, nil
	}
	return mapper.ApplyWorkspaceEditResult{Applied: true}, nil
}

func (inst *instance) hasExited() bool {
	select {
	case <-inst.exited:
		return true
	default:
		return false
	}
}

// wait reports whether the child exited within d.
func (inst *instance) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-inst.exited:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return inst.hasExited()
	}
}

func (inst *instance) kill() {
	if inst.cmd.Process != nil && !inst.hasExited() {
		_ = inst.cmd.Process.Kill()
	}
}
