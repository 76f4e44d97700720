package languageserver

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/uber/codenav/src/codenav/entity"
	naverrors "github.com/uber/codenav/src/codenav/internal/errors"
	"github.com/uber/codenav/src/codenav/mapper"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

// document is the sync state of one file on one instance. Its lock serializes sync-then-read for the file.
type document struct {
	lock    chan struct{}
	open    bool
	version int32
	hash    [sha256.Size]byte
}

func (inst *instance) document(path string) *document {
	inst.docsMu.Lock()
	defer inst.docsMu.Unlock()

	d, ok := inst.docs[path]
	if !ok {
		d = &document{lock: make(chan struct{}, 1)}
		inst.docs[path] = d
	}
	return d
}

// running returns the current instance, or a CrashError unless the process is Running.
func (p *process) running() (*instance, error) {
	if s := p.State(); s != StateRunning {
		return nil, &naverrors.CrashError{Server: p.id.String(), Err: fmt.Errorf("language server is %s", s)}
	}
	inst := p.current.Load()
	if inst == nil {
		return nil, &naverrors.CrashError{Server: p.id.String(), Err: fmt.Errorf("language server is not running")}
	}
	return inst, nil
}

// withDocument syncs doc to the server and runs fn while holding the file's lock,
// so the server has acknowledged the latest content before the read is sent.
func (p *process) withDocument(ctx context.Context, doc entity.Document, fn func(inst *instance) error) error {
	inst, err := p.running()
	if err != nil {
		return err
	}

	d := inst.document(doc.Path)
	select {
	case d.lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-inst.dispatcher.Done():
		return &naverrors.CrashError{Server: p.id.String(), Err: inst.dispatcher.Err()}
	}
	defer func() { <-d.lock }()

	if err := p.sync(ctx, inst, d, doc); err != nil {
		return err
	}
	if fn == nil {
		return nil
	}
	return fn(inst)
}

// sync sends didOpen the first time a file is seen by the instance and a full-text didChange when its content changed.
func (p *process) sync(ctx context.Context, inst *instance, d *document, doc entity.Document) error {
	hash := sha256.Sum256(doc.Text)
	switch {
	case !d.open:
		if err := inst.dispatcher.Notify(ctx, protocol.MethodTextDocumentDidOpen, mapper.DidOpen(doc, p.languageID(), 1)); err != nil {
			return err
		}
		d.open, d.version, d.hash = true, 1, hash
	case d.hash != hash:
		if err := inst.dispatcher.Notify(ctx, protocol.MethodTextDocumentDidChange, mapper.DidChange(doc, d.version+1)); err != nil {
			return err
		}
		d.version++
		d.hash = hash
	}
	return nil
}

func (p *process) languageID() string {
	if p.desc.LSPLanguageID != "" {
		return p.desc.LSPLanguageID
	}
	return string(p.id.Language)
}

func (p *process) call(ctx context.Context, inst *instance, method string, params interface{}, result interface{}) error {
	p.requests.Add(1)
	return inst.dispatcher.Call(ctx, method, params, p.timeouts.Request, result)
}

func (p *process) unsupported(method string) error {
	return &naverrors.ResponseError{Server: p.id.String(), Method: method, Code: int64(jsonrpc2.MethodNotFound), Message: "not supported by this language server"}
}

func (p *process) DocumentSymbols(ctx context.Context, doc entity.Document) (json.RawMessage, error) {
	if !p.Capabilities().DocumentSymbol && p.State() == StateRunning {
		return nil, p.unsupported(protocol.MethodTextDocumentDocumentSymbol)
	}

	var raw json.RawMessage
	err := p.withDocument(ctx, doc, func(inst *instance) error {
		return p.call(ctx, inst, protocol.MethodTextDocumentDocumentSymbol, mapper.DocumentSymbolParams(doc.Path), &raw)
	})
	return raw, err
}

func (p *process) FindReferences(ctx context.Context, doc entity.Document, pos entity.Position, includeDeclaration bool) ([]entity.Location, error) {
	if !p.Capabilities().References && p.State() == StateRunning {
		return nil, p.unsupported(protocol.MethodTextDocumentReferences)
	}

	var raw json.RawMessage
	err := p.withDocument(ctx, doc, func(inst *instance) error {
		return p.call(ctx, inst, protocol.MethodTextDocumentReferences, mapper.ReferenceParams(doc.Path, pos, includeDeclaration), &raw)
	})
	if err != nil {
		return nil, err
	}
	return p.locations(protocol.MethodTextDocumentReferences, raw)
}

func (p *process) FindDefinition(ctx context.Context, doc entity.Document, pos entity.Position) ([]entity.Location, error) {
	if !p.Capabilities().Definition && p.State() == StateRunning {
		return nil, p.unsupported(protocol.MethodTextDocumentDefinition)
	}

	var raw json.RawMessage
	err := p.withDocument(ctx, doc, func(inst *instance) error {
		return p.call(ctx, inst, protocol.MethodTextDocumentDefinition, mapper.DefinitionParams(doc.Path, pos), &raw)
	})
	if err != nil {
		return nil, err
	}
	return p.locations(protocol.MethodTextDocumentDefinition, raw)
}

func (p *process) Rename(ctx context.Context, doc entity.Document, pos entity.Position, newName string) (entity.WorkspaceEdit, error) {
	if !p.Capabilities().Rename && p.State() == StateRunning {
		return entity.WorkspaceEdit{}, p.unsupported(protocol.MethodTextDocumentRename)
	}

	var raw json.RawMessage
	err := p.withDocument(ctx, doc, func(inst *instance) error {
		return p.call(ctx, inst, protocol.MethodTextDocumentRename, mapper.RenameParams(doc.Path, pos, newName), &raw)
	})
	if err != nil {
		return entity.WorkspaceEdit{}, err
	}
	edit, err := mapper.WorkspaceEdit(raw)
	if err != nil {
		return entity.WorkspaceEdit{}, &naverrors.ProtocolError{Server: p.id.String(), Method: protocol.MethodTextDocumentRename, Err: err}
	}
	return edit, nil
}

func (p *process) locations(method string, raw json.RawMessage) ([]entity.Location, error) {
	locations, err := mapper.Locations(raw)
	if err != nil {
		return nil, &naverrors.ProtocolError{Server: p.id.String(), Method: method, Err: err}
	}
	return locations, nil
}

func (p *process) NotifyOpened(ctx context.Context, doc entity.Document) error {
	return p.withDocument(ctx, doc, nil)
}

func (p *process) NotifyChanged(ctx context.Context, doc entity.Document) error {
	return p.withDocument(ctx, doc, nil)
}

// NotifyClosed sends didClose for a file the instance has open. Closing an unknown file is a no-op.
func (p *process) NotifyClosed(ctx context.Context, path string) error {
	inst, err := p.running()
	if err != nil {
		return err
	}

	inst.docsMu.Lock()
	d, ok := inst.docs[path]
	inst.docsMu.Unlock()
	if !ok {
		return nil
	}

	select {
	case d.lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-d.lock }()

	if !d.open {
		return nil
	}
	if err := inst.dispatcher.Notify(ctx, protocol.MethodTextDocumentDidClose, mapper.DidClose(path)); err != nil {
		return err
	}
	d.open = false
	return nil
}
