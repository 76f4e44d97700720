package tooldispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"go.lsp.dev/jsonrpc2"
	"go.uber.org/zap"
)

// stubServer answers the router with canned values and records the calls it receives.
type stubServer struct {
	tools        []ToolDescription
	result       Result
	instructions string

	calledName string
	calledArgs json.RawMessage
}

func (s *stubServer) Start(context.Context) error            { return nil }
func (s *stubServer) Refresh() error                         { return nil }
func (s *stubServer) List() []ToolDescription                { return s.tools }
func (s *stubServer) Instructions() string                   { return s.instructions }
func (s *stubServer) OnToolsChanged(func([]ToolDescription)) {}
func (s *stubServer) Shutdown(context.Context) error         { return nil }

func (s *stubServer) Call(_ context.Context, name string, args json.RawMessage) Result {
	s.calledName, s.calledArgs = name, args
	return s.result
}

type captured struct {
	result interface{}
	err    error
}

func capture(c *captured) jsonrpc2.Replier {
	return func(_ context.Context, result interface{}, err error) error {
		c.result, c.err = result, err
		return nil
	}
}

func TestHandleReq(t *testing.T) {
	ctx := context.Background()
	server := &stubServer{
		tools:        []ToolDescription{{Name: "read_file"}},
		result:       Result{Value: "def foo(): pass\n"},
		instructions: "be brief",
	}
	r := &jsonRPCRouter{server: server, uuid: uuid.Must(uuid.NewV4()), stats: tally.NoopScope}

	t.Run("list", func(t *testing.T) {
		req, err := jsonrpc2.NewCall(jsonrpc2.NewNumberID(1), MethodToolsList, nil)
		require.NoError(t, err)

		var c captured
		require.NoError(t, r.HandleReq(ctx, capture(&c), req))
		require.NoError(t, c.err)
		assert.Equal(t, ListResult{Tools: []ToolDescription{{Name: "read_file"}}}, c.result)
	})

	t.Run("call", func(t *testing.T) {
		req, err := jsonrpc2.NewCall(jsonrpc2.NewNumberID(2), MethodToolsCall, map[string]interface{}{
			"name":      "read_file",
			"arguments": map[string]string{"relative_path": "main.py"},
		})
		require.NoError(t, err)

		var c captured
		require.NoError(t, r.HandleReq(ctx, capture(&c), req))
		require.NoError(t, c.err)
		assert.Equal(t, Result{Value: "def foo(): pass\n"}, c.result)
		assert.Equal(t, "read_file", server.calledName)
		assert.JSONEq(t, `{"relative_path":"main.py"}`, string(server.calledArgs))
	})

	t.Run("call without name", func(t *testing.T) {
		req, err := jsonrpc2.NewCall(jsonrpc2.NewNumberID(3), MethodToolsCall, map[string]interface{}{})
		require.NoError(t, err)

		var c captured
		require.NoError(t, r.HandleReq(ctx, capture(&c), req))
		assert.ErrorContains(t, c.err, "missing tool name")
	})

	t.Run("instructions", func(t *testing.T) {
		req, err := jsonrpc2.NewCall(jsonrpc2.NewNumberID(4), MethodInstructions, nil)
		require.NoError(t, err)

		var c captured
		require.NoError(t, r.HandleReq(ctx, capture(&c), req))
		assert.Equal(t, "be brief", c.result)
	})

	t.Run("unknown method", func(t *testing.T) {
		req, err := jsonrpc2.NewCall(jsonrpc2.NewNumberID(5), "sampleMethod", []string{"val1", "val2"})
		require.NoError(t, err)

		var c captured
		require.NoError(t, r.HandleReq(ctx, capture(&c), req))
		assert.True(t, errors.Is(c.err, jsonrpc2.ErrMethodNotFound))
	})
}

func TestUUID(t *testing.T) {
	id := uuid.Must(uuid.NewV4())
	r := jsonRPCRouter{uuid: id}
	assert.Equal(t, id, r.UUID())
}

func TestConnectionManager(t *testing.T) {
	stats := tally.NewTestScope("", nil)
	c := newConnectionManager(&stubServer{}, stats, zap.NewNop().Sugar())

	router, err := c.NewConnection(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, c.conns, 1)
	assert.Equal(t, float64(1), stats.Snapshot().Gauges()["json_rpc.connections+"].Value())

	c.RemoveConnection(context.Background(), router.UUID())
	assert.Empty(t, c.conns)
	assert.Equal(t, float64(0), stats.Snapshot().Gauges()["json_rpc.connections+"].Value())
}
