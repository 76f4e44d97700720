package tooldispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/uber-go/tally"
	"github.com/uber/codenav/src/codenav/internal/jsonrpcfx"
	"go.lsp.dev/jsonrpc2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Methods served to JSON-RPC clients.
const (
	MethodToolsList        = "tools/list"
	MethodToolsCall        = "tools/call"
	MethodInstructions     = "session/instructions"
	MethodToolsListChanged = "notifications/tools/list_changed"
)

// ListResult is the result of tools/list.
type ListResult struct {
	Tools []ToolDescription `json:"tools"`
}

// CallParams are the parameters of tools/call.
type CallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// JSONRPCParams are the dependencies of the JSON-RPC inbound registration.
type JSONRPCParams struct {
	fx.In

	// Server precedes Module so that the inbound stops before the dispatch server drains.
	Server Server
	Module jsonrpcfx.JSONRPCModule
	Stats  tally.Scope
	Logger *zap.SugaredLogger
}

// RegisterJSONRPC serves the dispatch server to clients of the JSON-RPC inbound.
func RegisterJSONRPC(p JSONRPCParams) error {
	if !p.Module.Enabled() {
		return nil
	}
	c := newConnectionManager(p.Server, p.Stats, p.Logger)
	p.Server.OnToolsChanged(c.broadcast)
	return p.Module.RegisterConnectionManager(c)
}

type jsonRPCConnectionManager struct {
	server Server
	stats  tally.Scope
	logger *zap.SugaredLogger

	mu    sync.Mutex
	conns map[uuid.UUID]jsonrpc2.Conn
}

func newConnectionManager(server Server, stats tally.Scope, logger *zap.SugaredLogger) *jsonRPCConnectionManager {
	return &jsonRPCConnectionManager{
		server: server,
		stats:  stats.SubScope("json_rpc"),
		logger: logger,
		conns:  make(map[uuid.UUID]jsonrpc2.Conn),
	}
}

// NewConnection will store a new connection and return a router that includes its UUID.
func (c *jsonRPCConnectionManager) NewConnection(ctx context.Context, conn jsonrpc2.Conn) (jsonrpcfx.Router, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("error while creating new connection: %w", err)
	}

	c.mu.Lock()
	c.conns[id] = conn
	c.stats.Gauge("connections").Update(float64(len(c.conns)))
	c.mu.Unlock()

	return &jsonRPCRouter{server: c.server, uuid: id, stats: c.stats}, nil
}

// RemoveConnection cleans up a closed connection.
func (c *jsonRPCConnectionManager) RemoveConnection(ctx context.Context, id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conns, id)
	c.stats.Gauge("connections").Update(float64(len(c.conns)))
}

// broadcast tells every connected client that the tool list changed.
func (c *jsonRPCConnectionManager) broadcast([]ToolDescription) {
	c.mu.Lock()
	conns := make([]jsonrpc2.Conn, 0, len(c.conns))
	for _, conn := range c.conns {
		conns = append(conns, conn)
	}
	c.mu.Unlock()

	for _, conn := range conns {
		if err := conn.Notify(context.Background(), MethodToolsListChanged, struct{}{}); err != nil {
			c.logger.Warnw("notifying tool list change", zap.Error(err))
		}
	}
}

type jsonRPCRouter struct {
	server Server
	uuid   uuid.UUID
	stats  tally.Scope
}

// HandleReq handles routing for a single request.
func (r *jsonRPCRouter) HandleReq(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	r.stats.Tagged(map[string]string{"method": req.Method()}).Counter("requests").Inc(1)

	switch req.Method() {
	case MethodToolsList:
		return reply(ctx, ListResult{Tools: r.server.List()}, nil)

	case MethodToolsCall:
		var params CallParams
		if err := json.Unmarshal(req.Params(), &params); err != nil {
			return reply(ctx, nil, fmt.Errorf("%s: %w", jsonrpc2.ErrInvalidParams, err))
		}
		if params.Name == "" {
			return reply(ctx, nil, fmt.Errorf("%s: missing tool name", jsonrpc2.ErrInvalidParams))
		}
		return reply(ctx, r.server.Call(ctx, params.Name, params.Arguments), nil)

	case MethodInstructions:
		return reply(ctx, r.server.Instructions(), nil)

	default:
		return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
	}
}

// UUID returns the id of the connection served by this router.
func (r *jsonRPCRouter) UUID() uuid.UUID {
	return r.uuid
}
