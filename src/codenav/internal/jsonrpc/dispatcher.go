package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/uber-go/tally"
	naverrors "github.com/uber/codenav/src/codenav/internal/errors"
	"go.lsp.dev/jsonrpc2"
	"go.uber.org/zap"
)

// NotificationHandler handles a notification sent by the peer.
type NotificationHandler func(ctx context.Context, params json.RawMessage)

// RequestHandler answers a request sent by the peer.
type RequestHandler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Dispatcher owns one Transport. It correlates responses with pending calls and routes
// notifications and peer requests to registered handlers.
type Dispatcher struct {
	name      string
	transport *Transport
	logger    *zap.SugaredLogger
	stats     tally.Scope

	nextID atomic.Int32
	sent   atomic.Int64
	slots  chan struct{}

	mu      sync.Mutex
	pending map[jsonrpc2.ID]*pendingRequest
	closed  bool
	err     error

	handlersMu    sync.RWMutex
	notifications map[string]NotificationHandler
	peerRequests  map[string]RequestHandler

	startOnce sync.Once
	inbound   sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

type pendingRequest struct {
	method   string
	deadline time.Time
	resolved chan response
}

type response struct {
	result json.RawMessage
	err    error
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithName sets the server name reported in errors and logs.
func WithName(name string) Option {
	return func(d *Dispatcher) {
		d.name = name
	}
}

// WithLogger overrides the default noop logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithStats sets the scope that receives request metrics.
func WithStats(scope tally.Scope) Option {
	return func(d *Dispatcher) {
		d.stats = scope
	}
}

// WithMaxConcurrentRequests sets how many calls may be outstanding at once. Values below 1 mean 1.
func WithMaxConcurrentRequests(n int) Option {
	return func(d *Dispatcher) {
		if n < 1 {
			n = 1
		}
		d.slots = make(chan struct{}, n)
	}
}

// NewDispatcher creates a Dispatcher over t. Start must be called to begin reading.
func NewDispatcher(t *Transport, opts ...Option) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		name:          "language-server",
		transport:     t,
		logger:        zap.NewNop().Sugar(),
		stats:         tally.NoopScope,
		slots:         make(chan struct{}, 1),
		pending:       make(map[jsonrpc2.ID]*pendingRequest),
		notifications: make(map[string]NotificationHandler),
		peerRequests:  make(map[string]RequestHandler),
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnNotification registers the handler for notifications of method.
func (d *Dispatcher) OnNotification(method string, h NotificationHandler) {
	d.handlersMu.Lock()
	defer d.handlersMu.Unlock()
	d.notifications[method] = h
}

// OnRequest registers the handler for peer requests of method.
func (d *Dispatcher) OnRequest(method string, h RequestHandler) {
	d.handlersMu.Lock()
	defer d.handlersMu.Unlock()
	d.peerRequests[method] = h
}

// Start launches the reader loop. Calling it more than once has no effect.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		go d.readLoop()
	})
}

// Done is closed once the reader loop has stopped and every pending call has been failed.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Err returns the reason the reader loop stopped, or nil while it is running.
func (d *Dispatcher) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Requests returns the number of calls sent so far.
func (d *Dispatcher) Requests() int64 {
	return d.sent.Load()
}

// Close closes the transport and waits for the reader loop and peer request handlers to finish.
func (d *Dispatcher) Close() error {
	err := d.transport.Close()
	d.startOnce.Do(func() {
		d.terminate(errors.New("closed before start"))
	})
	<-d.done
	d.inbound.Wait()
	return err
}

// Call sends a request and waits for its response, the timeout or ctx, whichever comes first.
// On success the result is decoded into result, which may be nil to discard it.
// A timeout leaves the connection untouched; a response arriving later is dropped.
func (d *Dispatcher) Call(ctx context.Context, method string, params interface{}, timeout time.Duration, result interface{}) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case d.slots <- struct{}{}:
	case <-timer.C:
		return &naverrors.TimeoutError{Server: d.name, Method: method, Timeout: timeout}
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return d.crashError()
	}
	defer func() { <-d.slots }()

	id := jsonrpc2.NewNumberID(d.nextID.Add(1))
	call, err := jsonrpc2.NewCall(id, method, params)
	if err != nil {
		return &naverrors.ProtocolError{Server: d.name, Method: method, Err: err}
	}

	p := &pendingRequest{
		method:   method,
		deadline: time.Now().Add(timeout),
		resolved: make(chan response, 1),
	}
	if err := d.register(id, p); err != nil {
		return err
	}

	d.sent.Add(1)
	d.stats.Tagged(map[string]string{"method": method}).Counter("requests").Inc(1)
	start := time.Now()
	defer func() {
		d.stats.Tagged(map[string]string{"method": method}).Timer("latency").Record(time.Since(start))
	}()

	if err := d.transport.Send(ctx, call); err != nil {
		d.remove(id)
		return &naverrors.CrashError{Server: d.name, Err: fmt.Errorf("sending %s: %w", method, err)}
	}

	select {
	case resp := <-p.resolved:
		if resp.err != nil {
			return resp.err
		}
		if result == nil || len(resp.result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.result, result); err != nil {
			return &naverrors.ProtocolError{Server: d.name, Method: method, Err: fmt.Errorf("decoding result: %w", err)}
		}
		return nil
	case <-timer.C:
		d.remove(id)
		d.stats.Tagged(map[string]string{"method": method}).Counter("timeouts").Inc(1)
		return &naverrors.TimeoutError{Server: d.name, Method: method, Timeout: timeout}
	case <-ctx.Done():
		d.remove(id)
		return ctx.Err()
	}
}

// Notify sends a notification. It returns once the message has been written.
func (d *Dispatcher) Notify(ctx context.Context, method string, params interface{}) error {
	select {
	case <-d.done:
		return d.crashError()
	default:
	}

	n, err := jsonrpc2.NewNotification(method, params)
	if err != nil {
		return &naverrors.ProtocolError{Server: d.name, Method: method, Err: err}
	}
	if err := d.transport.Send(ctx, n); err != nil {
		return &naverrors.CrashError{Server: d.name, Err: fmt.Errorf("sending %s: %w", method, err)}
	}
	return nil
}

func (d *Dispatcher) register(id jsonrpc2.ID, p *pendingRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return &naverrors.CrashError{Server: d.name, Err: d.err}
	}
	d.pending[id] = p
	return nil
}

func (d *Dispatcher) remove(id jsonrpc2.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, id)
}

func (d *Dispatcher) crashError() error {
	return &naverrors.CrashError{Server: d.name, Err: d.Err()}
}

func (d *Dispatcher) readLoop() {
	for {
		msg, err := d.transport.Receive(d.ctx)
		if err != nil {
			d.terminate(fmt.Errorf("reader stopped: %w", err))
			return
		}

		switch m := msg.(type) {
		case *jsonrpc2.Response:
			d.resolve(m)
		case *jsonrpc2.Notification:
			d.handleNotification(m)
		case *jsonrpc2.Call:
			d.handleCall(m)
		default:
			d.logger.Warnw("dropping unexpected message", "server", d.name, "type", fmt.Sprintf("%T", msg))
		}
	}
}

func (d *Dispatcher) resolve(resp *jsonrpc2.Response) {
	d.mu.Lock()
	p, ok := d.pending[resp.ID()]
	if ok {
		delete(d.pending, resp.ID())
	}
	d.mu.Unlock()

	if !ok {
		d.logger.Warnw("dropping response for unknown request", "server", d.name, "id", fmt.Sprint(resp.ID()))
		return
	}

	var result response
	if err := resp.Err(); err != nil {
		var rpcErr *jsonrpc2.Error
		if errors.As(err, &rpcErr) {
			result.err = &naverrors.ResponseError{Server: d.name, Method: p.method, Code: int64(rpcErr.Code), Message: rpcErr.Message}
		} else {
			result.err = &naverrors.ProtocolError{Server: d.name, Method: p.method, Err: err}
		}
	} else {
		result.result = resp.Result()
	}
	p.resolved <- result
}

func (d *Dispatcher) handleNotification(n *jsonrpc2.Notification) {
	d.handlersMu.RLock()
	h, ok := d.notifications[n.Method()]
	d.handlersMu.RUnlock()

	if !ok {
		d.logger.Debugw("dropping notification", "server", d.name, "method", n.Method())
		return
	}
	h(d.ctx, n.Params())
}

// handleCall answers a peer request on its own goroutine so that a slow handler never blocks the reader loop.
func (d *Dispatcher) handleCall(c *jsonrpc2.Call) {
	d.handlersMu.RLock()
	h, ok := d.peerRequests[c.Method()]
	d.handlersMu.RUnlock()

	d.inbound.Add(1)
	go func() {
		defer d.inbound.Done()

		var (
			result interface{}
			err    error
		)
		if ok {
			result, err = h(d.ctx, c.Params())
		} else {
			d.logger.Debugw("rejecting unknown request", "server", d.name, "method", c.Method())
			err = jsonrpc2.NewError(jsonrpc2.MethodNotFound, fmt.Sprintf("method not found: %s", c.Method()))
		}

		resp, rerr := jsonrpc2.NewResponse(c.ID(), result, err)
		if rerr != nil {
			d.logger.Errorw("encoding response", "server", d.name, "method", c.Method(), "error", rerr)
			return
		}
		if werr := d.transport.Send(d.ctx, resp); werr != nil {
			d.logger.Debugw("sending response", "server", d.name, "method", c.Method(), "error", werr)
		}
	}()
}

// terminate fails every pending call with a crash error. Only the first call has any effect.
func (d *Dispatcher) terminate(cause error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.err = cause
	pending := d.pending
	d.pending = make(map[jsonrpc2.ID]*pendingRequest)
	d.mu.Unlock()

	for _, p := range pending {
		p.resolved <- response{err: &naverrors.CrashError{Server: d.name, Err: cause}}
	}
	if len(pending) > 0 {
		d.logger.Warnw("failed pending requests", "server", d.name, "count", len(pending), "error", cause)
	}

	d.cancel()
	close(d.done)
}
