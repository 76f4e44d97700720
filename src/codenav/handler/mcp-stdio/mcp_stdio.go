// Package mcpstdio serves the dispatch server to an MCP client over stdin and stdout.
package mcpstdio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	tooldispatch "github.com/uber/codenav/src/codenav/handler/tool-dispatch"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	_configKeyTransport   = "transport"
	_configKeyServiceName = "service.name"

	// TransportStdio enables this inbound. It is the default transport.
	TransportStdio = "stdio"

	// Version is reported to MCP clients during initialization.
	Version = "0.1.0"
)

// Module registers the stdio adapter with the application lifecycle.
var Module = fx.Invoke(Register)

// Params are the dependencies of the stdio adapter.
type Params struct {
	fx.In

	Server     tooldispatch.Server
	Config     config.Provider
	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Logger     *zap.SugaredLogger
}

// Adapter translates MCP tool requests into dispatch server calls.
type Adapter struct {
	dispatch tooldispatch.Server
	mcp      *server.MCPServer
	logger   *zap.SugaredLogger
}

// New creates an Adapter publishing the tools of dispatch. Tool set changes are pushed to the client.
// Instructions are read from dispatch on every initialize, so they follow the active context.
func New(dispatch tooldispatch.Server, name string, logger *zap.SugaredLogger) *Adapter {
	a := &Adapter{
		dispatch: dispatch,
		logger:   logger.With("component", "mcp"),
	}

	hooks := &server.Hooks{}
	hooks.AddAfterInitialize(a.initialized)
	hooks.AddOnError(func(_ context.Context, id any, method mcp.MCPMethod, _ any, err error) {
		a.logger.Debugw("MCP request failed", "id", id, "method", method, zap.Error(err))
	})

	a.mcp = server.NewMCPServer(
		name,
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithHooks(hooks),
	)
	a.publish(dispatch.List())
	dispatch.OnToolsChanged(a.publish)
	return a
}

// Register serves the adapter on the process stdio when the configured transport is "stdio".
// The application shuts down when the client closes stdin.
func Register(p Params) error {
	var transport string
	if err := p.Config.Get(_configKeyTransport).Populate(&transport); err != nil {
		return fmt.Errorf("getting config field %q: %w", _configKeyTransport, err)
	}
	if transport != "" && transport != TransportStdio {
		return nil
	}
	var name string
	if err := p.Config.Get(_configKeyServiceName).Populate(&name); err != nil {
		return fmt.Errorf("getting config field %q: %w", _configKeyServiceName, err)
	}
	if name == "" {
		name = "codenav"
	}

	var (
		a      *Adapter
		cancel context.CancelFunc
		wg     sync.WaitGroup
	)
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			// Built on start so the published tools reflect the started dispatch server.
			a = New(p.Server, name, p.Logger)
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := a.Serve(ctx, os.Stdin, os.Stdout)
				if ctx.Err() != nil {
					return
				}
				if err != nil {
					a.logger.Errorw("MCP stdio transport failed", zap.Error(err))
				} else {
					a.logger.Infow("MCP client closed stdin")
				}
				if err := p.Shutdowner.Shutdown(); err != nil {
					a.logger.Warnw("requesting shutdown", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel == nil {
				return nil
			}
			cancel()
			done := make(chan struct{})
			go func() {
				wg.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
	return nil
}

// Serve reads MCP messages from in and writes responses to out until in is closed or ctx is done.
func (a *Adapter) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(a.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(a.logger.Desugar()))
	a.logger.Infow("serving MCP over stdio", "tools", len(a.dispatch.List()))
	return stdio.Listen(ctx, in, out)
}

func (a *Adapter) initialized(_ context.Context, _ any, _ *mcp.InitializeRequest, result *mcp.InitializeResult) {
	result.Instructions = a.dispatch.Instructions()
}

func (a *Adapter) publish(list []tooldispatch.ToolDescription) {
	tools := make([]server.ServerTool, 0, len(list))
	for _, d := range list {
		schema, err := json.Marshal(d.InputSchema)
		if err != nil {
			a.logger.Errorw("encoding tool schema", "tool", d.Name, zap.Error(err))
			continue
		}
		tools = append(tools, server.ServerTool{
			Tool:    mcp.NewToolWithRawSchema(d.Name, d.Description, schema),
			Handler: a.handler(d.Name),
		})
	}
	a.mcp.SetTools(tools...)
}

func (a *Adapter) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args json.RawMessage
		if req.Params.Arguments != nil {
			raw, err := json.Marshal(req.Params.Arguments)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("encoding arguments: %v", err)), nil
			}
			args = raw
		}
		res := a.dispatch.Call(ctx, name, args)
		if res.IsError() {
			return mcp.NewToolResultError(res.Text()), nil
		}
		return mcp.NewToolResultText(res.Text()), nil
	}
}
