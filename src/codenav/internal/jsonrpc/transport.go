// Package jsonrpc implements the client side of a JSON-RPC connection to a language server:
// Content-Length framed transport, request correlation and routing of unsolicited messages.
package jsonrpc

import (
	"context"
	"io"
	"sync"

	"go.lsp.dev/jsonrpc2"
	"go.uber.org/multierr"
)

// Transport frames JSON-RPC messages over a duplex byte stream.
// Send may be called concurrently; Receive must only be called from a single reader loop.
type Transport struct {
	stream  jsonrpc2.Stream
	writeMu sync.Mutex
}

// NewTransport returns a Transport over rwc using LSP base protocol framing.
func NewTransport(rwc io.ReadWriteCloser) *Transport {
	return &Transport{stream: jsonrpc2.NewStream(rwc)}
}

// Send writes a single framed message.
func (t *Transport) Send(ctx context.Context, msg jsonrpc2.Message) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	_, err := t.stream.Write(ctx, msg)
	return err
}

// Receive blocks until the next framed message has been read and decoded.
func (t *Transport) Receive(ctx context.Context) (jsonrpc2.Message, error) {
	msg, _, err := t.stream.Read(ctx)
	return msg, err
}

// Close closes the underlying stream.
func (t *Transport) Close() error {
	return t.stream.Close()
}

// ProcessPipe joins the stdout and stdin pipes of a child process into one stream.
type ProcessPipe struct {
	Stdout io.ReadCloser
	Stdin  io.WriteCloser
}

var _ io.ReadWriteCloser = (*ProcessPipe)(nil)

// Read reads from the child's stdout.
func (p *ProcessPipe) Read(b []byte) (int, error) {
	return p.Stdout.Read(b)
}

// Write writes to the child's stdin.
func (p *ProcessPipe) Write(b []byte) (int, error) {
	return p.Stdin.Write(b)
}

// Close closes both pipes.
func (p *ProcessPipe) Close() error {
	return multierr.Append(p.Stdin.Close(), p.Stdout.Close())
}
