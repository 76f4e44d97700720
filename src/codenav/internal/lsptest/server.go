// Package lsptest provides a fake language server for tests. It speaks the LSP base protocol over any
// stream and answers documentSymbol, references, definition and rename for a small subset of Python.
//
// The server runs in-process over a net.Pipe, or as a child process by re-executing the test binary:
//
//	func TestMain(m *testing.M) {
//		if lsptest.IsHelper() {
//			lsptest.Main()
//		}
//		os.Exit(m.Run())
//	}
package lsptest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/uri"
)

// Options control fault injection in the fake server.
type Options struct {
	// CrashCounterFile holds a number. While it is above zero, each documentSymbol request decrements it and kills the server.
	CrashCounterFile string
	// IgnoreShutdown makes the server ignore shutdown, exit and SIGTERM.
	IgnoreShutdown bool
	// HangMethod is a request method that is never answered.
	HangMethod string
	// Exit is called when the server must stop abruptly. It defaults to closing the connection.
	Exit func(code int)
}

// Stats counts the traffic seen by an in-process server.
type Stats struct {
	Opens          int
	Changes        int
	Closes         int
	SymbolRequests int
	ShutdownCalled bool
}

// Server is a fake language server bound to one connection.
type Server struct {
	opts Options
	conn jsonrpc2.Conn

	mu    sync.Mutex
	root  string
	docs  map[string]string
	stats Stats
}

// Serve answers LSP requests on rwc until the connection closes or exit is received.
func Serve(ctx context.Context, rwc io.ReadWriteCloser, opts Options) *Server {
	s := &Server{
		opts: opts,
		conn: jsonrpc2.NewConn(jsonrpc2.NewStream(rwc)),
		docs: map[string]string{},
	}
	if s.opts.Exit == nil {
		s.opts.Exit = func(int) { s.conn.Close() }
	}
	s.conn.Go(ctx, s.handle)
	return s
}

// Done is closed when the connection has stopped.
func (s *Server) Done() <-chan struct{} {
	return s.conn.Done()
}

// Close stops the server.
func (s *Server) Close() error {
	return s.conn.Close()
}

// Stats returns a snapshot of the traffic counters.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Document returns the text of an open document as last synced by the client.
func (s *Server) Document(path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[path]
	return text, ok
}

type textDocumentItem struct {
	URI  string `json:"uri"`
	Text string `json:"text"`
}

type textDocumentIdentifier struct {
	URI string `json:"uri"`
}

type positionParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
	Position     position               `json:"position"`
	NewName      string                 `json:"newName"`
	Context      struct {
		IncludeDeclaration bool `json:"includeDeclaration"`
	} `json:"context"`
}

type location struct {
	URI   string `json:"uri"`
	Range span   `json:"range"`
}

type textEdit struct {
	Range   span   `json:"range"`
	NewText string `json:"newText"`
}

func (s *Server) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	if s.opts.HangMethod != "" && req.Method() == s.opts.HangMethod {
		return nil
	}

	switch req.Method() {
	case "initialize":
		var params struct {
			RootPath string `json:"rootPath"`
			RootURI  string `json:"rootUri"`
		}
		if err := json.Unmarshal(req.Params(), &params); err != nil {
			return reply(ctx, nil, jsonrpc2.NewError(jsonrpc2.InvalidParams, err.Error()))
		}
		s.mu.Lock()
		s.root = params.RootPath
		if s.root == "" {
			s.root = toPath(params.RootURI)
		}
		s.mu.Unlock()
		return reply(ctx, map[string]interface{}{
			"capabilities": map[string]interface{}{
				"textDocumentSync":       1,
				"documentSymbolProvider": true,
				"referencesProvider":     true,
				"definitionProvider":     true,
				"renameProvider":         true,
			},
			"serverInfo": map[string]string{"name": "lsptest"},
		}, nil)

	case "initialized":
		return s.conn.Notify(ctx, "window/logMessage", map[string]interface{}{"type": 3, "message": "lsptest ready"})

	case "textDocument/didOpen":
		var params struct {
			TextDocument textDocumentItem `json:"textDocument"`
		}
		if err := json.Unmarshal(req.Params(), &params); err != nil {
			return err
		}
		s.mu.Lock()
		s.docs[toPath(params.TextDocument.URI)] = params.TextDocument.Text
		s.stats.Opens++
		s.mu.Unlock()
		return nil

	case "textDocument/didChange":
		var params struct {
			TextDocument   textDocumentIdentifier `json:"textDocument"`
			ContentChanges []struct {
				Text string `json:"text"`
			} `json:"contentChanges"`
		}
		if err := json.Unmarshal(req.Params(), &params); err != nil {
			return err
		}
		if n := len(params.ContentChanges); n > 0 {
			s.mu.Lock()
			s.docs[toPath(params.TextDocument.URI)] = params.ContentChanges[n-1].Text
			s.stats.Changes++
			s.mu.Unlock()
		}
		return nil

	case "textDocument/didClose":
		var params struct {
			TextDocument textDocumentIdentifier `json:"textDocument"`
		}
		if err := json.Unmarshal(req.Params(), &params); err != nil {
			return err
		}
		s.mu.Lock()
		delete(s.docs, toPath(params.TextDocument.URI))
		s.stats.Closes++
		s.mu.Unlock()
		return nil

	case "textDocument/documentSymbol":
		var params positionParams
		if err := json.Unmarshal(req.Params(), &params); err != nil {
			return reply(ctx, nil, jsonrpc2.NewError(jsonrpc2.InvalidParams, err.Error()))
		}
		if s.shouldCrash() {
			s.opts.Exit(3)
			return nil
		}
		s.mu.Lock()
		s.stats.SymbolRequests++
		s.mu.Unlock()
		text, err := s.text(toPath(params.TextDocument.URI))
		if err != nil {
			return reply(ctx, nil, jsonrpc2.NewError(jsonrpc2.InvalidParams, err.Error()))
		}
		symbols := parseSymbols(text)
		if symbols == nil {
			symbols = []documentSymbol{}
		}
		return reply(ctx, symbols, nil)

	case "textDocument/definition":
		var params positionParams
		if err := json.Unmarshal(req.Params(), &params); err != nil {
			return reply(ctx, nil, jsonrpc2.NewError(jsonrpc2.InvalidParams, err.Error()))
		}
		name, ok := s.wordAt(params)
		if !ok {
			return reply(ctx, nil, nil)
		}
		var out []location
		for _, path := range s.workspaceFiles() {
			text, err := s.text(path)
			if err != nil {
				continue
			}
			if r, ok := definitionOf(text, name); ok {
				out = append(out, location{URI: string(uri.File(path)), Range: r})
			}
		}
		return reply(ctx, out, nil)

	case "textDocument/references":
		var params positionParams
		if err := json.Unmarshal(req.Params(), &params); err != nil {
			return reply(ctx, nil, jsonrpc2.NewError(jsonrpc2.InvalidParams, err.Error()))
		}
		name, ok := s.wordAt(params)
		if !ok {
			return reply(ctx, []location{}, nil)
		}
		out := []location{}
		for _, path := range s.workspaceFiles() {
			text, err := s.text(path)
			if err != nil {
				continue
			}
			def, hasDef := definitionOf(text, name)
			for _, r := range occurrences(text, name) {
				if hasDef && r == def && !params.Context.IncludeDeclaration {
					continue
				}
				out = append(out, location{URI: string(uri.File(path)), Range: r})
			}
		}
		return reply(ctx, out, nil)

	case "textDocument/rename":
		var params positionParams
		if err := json.Unmarshal(req.Params(), &params); err != nil {
			return reply(ctx, nil, jsonrpc2.NewError(jsonrpc2.InvalidParams, err.Error()))
		}
		name, ok := s.wordAt(params)
		if !ok {
			return reply(ctx, nil, jsonrpc2.NewError(jsonrpc2.InvalidParams, "no symbol at position"))
		}
		if params.NewName == "" {
			return reply(ctx, nil, jsonrpc2.NewError(jsonrpc2.InvalidParams, "newName is required"))
		}
		changes := map[string][]textEdit{}
		for _, path := range s.workspaceFiles() {
			text, err := s.text(path)
			if err != nil {
				continue
			}
			for _, r := range occurrences(text, name) {
				u := string(uri.File(path))
				changes[u] = append(changes[u], textEdit{Range: r, NewText: params.NewName})
			}
		}
		return reply(ctx, map[string]interface{}{"changes": changes}, nil)

	case "shutdown":
		if s.opts.IgnoreShutdown {
			return nil
		}
		s.mu.Lock()
		s.stats.ShutdownCalled = true
		s.mu.Unlock()
		return reply(ctx, nil, nil)

	case "exit":
		if s.opts.IgnoreShutdown {
			return nil
		}
		s.opts.Exit(0)
		return nil
	}

	if _, isCall := req.(*jsonrpc2.Call); isCall {
		return reply(ctx, nil, jsonrpc2.NewError(jsonrpc2.MethodNotFound, fmt.Sprintf("method not found: %s", req.Method())))
	}
	return nil
}

// shouldCrash decrements the crash counter and reports whether the server must die.
func (s *Server) shouldCrash() bool {
	if s.opts.CrashCounterFile == "" {
		return false
	}
	data, err := os.ReadFile(s.opts.CrashCounterFile)
	if err != nil {
		return false
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || n <= 0 {
		return false
	}
	if err := os.WriteFile(s.opts.CrashCounterFile, []byte(strconv.Itoa(n-1)), 0644); err != nil {
		return false
	}
	return true
}

func (s *Server) wordAt(params positionParams) (string, bool) {
	text, err := s.text(toPath(params.TextDocument.URI))
	if err != nil {
		return "", false
	}
	return wordAt(text, params.Position)
}

// text returns the synced content of path, falling back to the file on disk.
func (s *Server) text(path string) (string, error) {
	s.mu.Lock()
	text, ok := s.docs[path]
	s.mu.Unlock()
	if ok {
		return text, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// workspaceFiles returns every Python file under the root plus every open document, sorted.
func (s *Server) workspaceFiles() []string {
	s.mu.Lock()
	root := s.root
	seen := map[string]bool{}
	for path := range s.docs {
		seen[path] = true
	}
	s.mu.Unlock()

	if root != "" {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() && strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			if !d.IsDir() && strings.HasSuffix(path, ".py") {
				seen[path] = true
			}
			return nil
		})
	}

	out := make([]string, 0, len(seen))
	for path := range seen {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

func toPath(u string) string {
	if !strings.HasPrefix(u, uri.FileScheme+"://") {
		return u
	}
	return uri.URI(u).Filename()
}
