package jsonrpcfx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/uber/codenav/src/codenav/internal/serverinfofile"
	"go.lsp.dev/jsonrpc2"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	_configKeyTransport = "transport"
	_configKeyAddress   = "jsonrpc.address"
	_outputKey          = "jsonrpc-address"

	// TransportTCP enables this inbound.
	TransportTCP = "tcp"
)

// Module is an fx module to handle JSON-RPC requests over TCP.
var Module = fx.Provide(New)

// JSONRPCModule represents a module to manage JSON-RPC connections.
type JSONRPCModule interface {
	OnStart(ctx context.Context) error
	OnStop(ctx context.Context) error
	ServeStream(ctx context.Context, conn jsonrpc2.Conn) error
	RegisterConnectionManager(connectionManager ConnectionManager) error
	Enabled() bool
	Address() string
}

// Router serves as the interface through which handling of requests will be implemented.
type Router interface {
	HandleReq(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error
	UUID() uuid.UUID
}

// ConnectionManager will manage each active connection and its corresponding Router throughout the lifecycle of a connection.
type ConnectionManager interface {
	NewConnection(ctx context.Context, conn jsonrpc2.Conn) (router Router, err error)
	RemoveConnection(ctx context.Context, id uuid.UUID)
}

type module struct {
	address string
	enabled bool

	mu             sync.Mutex
	connectionMgr  ConnectionManager
	ln             net.Listener
	cancel         context.CancelFunc
	served         chan struct{}
	logger         *zap.SugaredLogger
	serverInfoFile serverinfofile.ServerInfoFile
}

// Params define values to be used by the JSON-RPC inbound.
type Params struct {
	fx.In

	Config         config.Provider
	Lifecycle      fx.Lifecycle
	Logger         *zap.SugaredLogger
	ServerInfoFile serverinfofile.ServerInfoFile
}

// New creates a JSON-RPC inbound. It only listens when the configured transport is "tcp".
func New(p Params) (JSONRPCModule, error) {
	if p.Lifecycle == nil || p.Config == nil {
		return nil, errors.New("required parameters are missing")
	}

	m := &module{
		logger:         p.Logger,
		serverInfoFile: p.ServerInfoFile,
	}

	if err := m.processConfig(p.Config); err != nil {
		return nil, err
	}

	if m.enabled {
		p.Lifecycle.Append(fx.Hook{
			OnStart: m.OnStart,
			OnStop:  m.OnStop,
		})
	}

	return m, nil
}

// OnStart opens the listener and begins handling incoming connections.
func (m *module) OnStart(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connectionMgr == nil {
		return errors.New("cannot start JSON-RPC inbound, no connection manager set")
	}

	ln, err := net.Listen("tcp", m.address)
	if err != nil {
		return fmt.Errorf("listening on %q: %w", m.address, err)
	}
	m.ln = ln
	m.address = ln.Addr().String()

	if err := m.serverInfoFile.UpdateField(_outputKey, m.address); err != nil {
		ln.Close()
		return err
	}

	serveCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.served = make(chan struct{})
	go m.serve(serveCtx, ln, m.served)

	m.logger.Infow("started JSON-RPC inbound", zap.String("address", m.address))
	return nil
}

// OnStop closes the listener and every open connection.
func (m *module) OnStop(ctx context.Context) error {
	m.mu.Lock()
	cancel, served, ln := m.cancel, m.served, m.ln
	m.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	ln.Close()

	select {
	case <-served:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ServeStream is called when a new connection is initiated. Requests received via the connection will be routed to the handler, and answered via the connection's replier.
func (m *module) ServeStream(ctx context.Context, conn jsonrpc2.Conn) error {
	m.mu.Lock()
	connectionMgr := m.connectionMgr
	m.mu.Unlock()

	if connectionMgr == nil {
		m.logger.Errorf("cannot serve connection, no connection manager set")
		return errors.New("cannot serve connection, no connection manager set")
	}

	// Start handling the connection.
	handler, err := connectionMgr.NewConnection(ctx, conn)
	if err != nil {
		return err
	}
	m.logger.Infow("client connected", zap.Stringer("uuid", handler.UUID()))
	conn.Go(ctx, handler.HandleReq)

	// Block until the connection closes or the inbound stops.
	select {
	case <-conn.Done():
	case <-ctx.Done():
		conn.Close()
		<-conn.Done()
	}

	// Cleanup after connection.
	connectionMgr.RemoveConnection(ctx, handler.UUID())
	m.logger.Infow("client disconnected", zap.Stringer("uuid", handler.UUID()))

	if err := conn.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// RegisterConnectionManager sets the connection manager, which keeps track of current active connections and provides a Router implementation.
func (m *module) RegisterConnectionManager(connectionMgr ConnectionManager) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connectionMgr != nil {
		return errors.New("cannot register a duplicate connection manager")
	}
	m.connectionMgr = connectionMgr
	return nil
}

// Enabled reports whether the inbound is configured to listen.
func (m *module) Enabled() bool {
	return m.enabled
}

// Address returns the listening address once started, or the configured address before.
func (m *module) Address() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.address
}

func (m *module) serve(ctx context.Context, ln net.Listener, served chan struct{}) {
	defer close(served)

	err := jsonrpc2.Serve(ctx, ln, m, 0)
	if err != nil && ctx.Err() == nil {
		m.logger.Errorw("JSON-RPC inbound stopped", zap.Error(err))
	}
}

// processConfig will parse the configuration for any values required by this module.
func (m *module) processConfig(cfg config.Provider) error {
	var transport string
	if err := cfg.Get(_configKeyTransport).Populate(&transport); err != nil {
		return fmt.Errorf("getting config field %q: %w", _configKeyTransport, err)
	}
	m.enabled = transport == TransportTCP
	if !m.enabled {
		return nil
	}

	val := cfg.Get(_configKeyAddress)
	if err := val.Populate(&m.address); err != nil {
		// incorrectly formatted config
		return fmt.Errorf("getting config field %q: %w", _configKeyAddress, err)
	}

	if m.address == "" {
		// yaml is missing either the key or value
		return fmt.Errorf("missing field %q in config", _configKeyAddress)
	}

	return nil
}
