// Package mapper converts between LSP wire messages and codenav entities.
package mapper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/uber/codenav/src/codenav/entity"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// PathToURI returns the file URI of an absolute path.
func PathToURI(path string) protocol.DocumentURI {
	return protocol.DocumentURI(uri.File(path))
}

// URIToPath returns the absolute path of a file URI. Non-file URIs report false.
func URIToPath(u protocol.DocumentURI) (string, bool) {
	if !strings.HasPrefix(string(u), uri.FileScheme+"://") {
		return "", false
	}
	return uri.URI(u).Filename(), true
}

// Position converts an entity position to its protocol form.
func Position(p entity.Position) protocol.Position {
	return protocol.Position{Line: uint32(p.Line), Character: uint32(p.Character)}
}

// FromPosition converts a protocol position to its entity form.
func FromPosition(p protocol.Position) entity.Position {
	return entity.Position{Line: int(p.Line), Character: int(p.Character)}
}

// FromRange converts a protocol range to its entity form.
func FromRange(r protocol.Range) entity.Range {
	return entity.Range{Start: FromPosition(r.Start), End: FromPosition(r.End)}
}

// ClientInfo identifies this client in the initialize request.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// WorkspaceFolder is a root folder announced to the server.
type WorkspaceFolder struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

// InitializeParams are the parameters of the initialize request.
type InitializeParams struct {
	ProcessID             int                    `json:"processId"`
	ClientInfo            *ClientInfo            `json:"clientInfo,omitempty"`
	RootPath              string                 `json:"rootPath"`
	RootURI               protocol.DocumentURI   `json:"rootUri"`
	WorkspaceFolders      []WorkspaceFolder      `json:"workspaceFolders"`
	Capabilities          map[string]interface{} `json:"capabilities"`
	InitializationOptions map[string]interface{} `json:"initializationOptions,omitempty"`
}

// NewInitializeParams builds the initialize request for a project rooted at root.
func NewInitializeParams(root string, name string, version string, options map[string]interface{}) InitializeParams {
	rootURI := PathToURI(root)
	return InitializeParams{
		ProcessID:  os.Getpid(),
		ClientInfo: &ClientInfo{Name: name, Version: version},
		RootPath:   root,
		RootURI:    rootURI,
		WorkspaceFolders: []WorkspaceFolder{
			{URI: string(rootURI), Name: name},
		},
		Capabilities:          clientCapabilities(),
		InitializationOptions: options,
	}
}

func clientCapabilities() map[string]interface{} {
	return map[string]interface{}{
		"workspace": map[string]interface{}{
			"applyEdit":        true,
			"workspaceEdit":    map[string]interface{}{"documentChanges": true},
			"workspaceFolders": true,
			"configuration":    true,
			"symbol":           map[string]interface{}{"dynamicRegistration": false},
		},
		"textDocument": map[string]interface{}{
			"synchronization": map[string]interface{}{"didSave": false, "dynamicRegistration": false},
			"documentSymbol": map[string]interface{}{
				"hierarchicalDocumentSymbolSupport": true,
			},
			"references": map[string]interface{}{"dynamicRegistration": false},
			"definition": map[string]interface{}{"linkSupport": true},
			"rename":     map[string]interface{}{"prepareSupport": false},
		},
		"window": map[string]interface{}{"workDoneProgress": true},
	}
}

// Capabilities extracts the capability flags from an initialize result.
func Capabilities(raw json.RawMessage) (entity.Capabilities, error) {
	var result struct {
		Capabilities map[string]json.RawMessage `json:"capabilities"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return entity.Capabilities{}, fmt.Errorf("decoding initialize result: %w", err)
	}

	c := result.Capabilities
	return entity.Capabilities{
		DocumentSymbol:  provided(c["documentSymbolProvider"]),
		References:      provided(c["referencesProvider"]),
		Definition:      provided(c["definitionProvider"]),
		Rename:          provided(c["renameProvider"]),
		WorkspaceSymbol: provided(c["workspaceSymbolProvider"]),
	}, nil
}

// provided reports whether a capability value is present and not false or null.
func provided(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) > 0 && !bytes.Equal(v, []byte("false")) && !bytes.Equal(v, []byte("null"))
}

// TextDocumentItem is an opened document.
type TextDocumentItem struct {
	URI        protocol.DocumentURI `json:"uri"`
	LanguageID string               `json:"languageId"`
	Version    int32                `json:"version"`
	Text       string               `json:"text"`
}

// DidOpenParams are the parameters of textDocument/didOpen.
type DidOpenParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

// VersionedTextDocumentIdentifier identifies a specific version of a document.
type VersionedTextDocumentIdentifier struct {
	URI     protocol.DocumentURI `json:"uri"`
	Version int32                `json:"version"`
}

// ContentChange replaces the whole document text.
type ContentChange struct {
	Text string `json:"text"`
}

// DidChangeParams are the parameters of a full-text textDocument/didChange.
type DidChangeParams struct {
	TextDocument   VersionedTextDocumentIdentifier `json:"textDocument"`
	ContentChanges []ContentChange                 `json:"contentChanges"`
}

// DidCloseParams are the parameters of textDocument/didClose.
type DidCloseParams struct {
	TextDocument protocol.TextDocumentIdentifier `json:"textDocument"`
}

// DidOpen builds the didOpen notification for doc.
func DidOpen(doc entity.Document, languageID string, version int32) DidOpenParams {
	return DidOpenParams{TextDocument: TextDocumentItem{
		URI:        PathToURI(doc.Path),
		LanguageID: languageID,
		Version:    version,
		Text:       string(doc.Text),
	}}
}

// DidChange builds a full-text didChange notification for doc.
func DidChange(doc entity.Document, version int32) DidChangeParams {
	return DidChangeParams{
		TextDocument:   VersionedTextDocumentIdentifier{URI: PathToURI(doc.Path), Version: version},
		ContentChanges: []ContentChange{{Text: string(doc.Text)}},
	}
}

// DidClose builds the didClose notification for path.
func DidClose(path string) DidCloseParams {
	return DidCloseParams{TextDocument: protocol.TextDocumentIdentifier{URI: PathToURI(path)}}
}

// DocumentSymbolParams builds a textDocument/documentSymbol request.
func DocumentSymbolParams(path string) *protocol.DocumentSymbolParams {
	return &protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: PathToURI(path)},
	}
}

func positionParams(path string, pos entity.Position) protocol.TextDocumentPositionParams {
	return protocol.TextDocumentPositionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: PathToURI(path)},
		Position:     Position(pos),
	}
}

// ReferenceParams builds a textDocument/references request.
func ReferenceParams(path string, pos entity.Position, includeDeclaration bool) *protocol.ReferenceParams {
	return &protocol.ReferenceParams{
		TextDocumentPositionParams: positionParams(path, pos),
		Context:                    protocol.ReferenceContext{IncludeDeclaration: includeDeclaration},
	}
}

// DefinitionParams builds a textDocument/definition request.
func DefinitionParams(path string, pos entity.Position) *protocol.DefinitionParams {
	return &protocol.DefinitionParams{
		TextDocumentPositionParams: positionParams(path, pos),
	}
}

// RenameParams builds a textDocument/rename request.
func RenameParams(path string, pos entity.Position, newName string) *protocol.RenameParams {
	return &protocol.RenameParams{
		TextDocumentPositionParams: positionParams(path, pos),
		NewName:                    newName,
	}
}

type locationOrLink struct {
	URI                  protocol.DocumentURI `json:"uri"`
	Range                protocol.Range       `json:"range"`
	TargetURI            protocol.DocumentURI `json:"targetUri"`
	TargetSelectionRange protocol.Range       `json:"targetSelectionRange"`
}

// Locations decodes a result that may be null, a Location, a Location array or a LocationLink array.
// Locations outside the file scheme are dropped.
func Locations(raw json.RawMessage) ([]entity.Location, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var items []locationOrLink
	if raw[0] == '{' {
		var single locationOrLink
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, fmt.Errorf("decoding location: %w", err)
		}
		items = append(items, single)
	} else if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decoding locations: %w", err)
	}

	locations := make([]entity.Location, 0, len(items))
	for _, item := range items {
		u, r := item.URI, item.Range
		if item.TargetURI != "" {
			u, r = item.TargetURI, item.TargetSelectionRange
		}
		path, ok := URIToPath(u)
		if !ok {
			continue
		}
		locations = append(locations, entity.Location{Path: path, Range: FromRange(r)})
	}
	return locations, nil
}

type workspaceEdit struct {
	Changes         map[protocol.DocumentURI][]protocol.TextEdit `json:"changes"`
	DocumentChanges []documentChange                             `json:"documentChanges"`
}

type documentChange struct {
	Kind         string `json:"kind"`
	TextDocument struct {
		URI protocol.DocumentURI `json:"uri"`
	} `json:"textDocument"`
	Edits []protocol.TextEdit `json:"edits"`
}

// WorkspaceEdit decodes a WorkspaceEdit. File create, rename and delete operations are rejected.
func WorkspaceEdit(raw json.RawMessage) (entity.WorkspaceEdit, error) {
	out := entity.WorkspaceEdit{Changes: map[string][]entity.TextEdit{}}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return out, nil
	}

	var edit workspaceEdit
	if err := json.Unmarshal(raw, &edit); err != nil {
		return out, fmt.Errorf("decoding workspace edit: %w", err)
	}

	add := func(u protocol.DocumentURI, edits []protocol.TextEdit) error {
		path, ok := URIToPath(u)
		if !ok {
			return fmt.Errorf("unsupported document uri %q", u)
		}
		for _, e := range edits {
			out.Changes[path] = append(out.Changes[path], entity.TextEdit{Range: FromRange(e.Range), NewText: e.NewText})
		}
		return nil
	}

	if len(edit.DocumentChanges) > 0 {
		for _, dc := range edit.DocumentChanges {
			if dc.Kind != "" {
				return out, fmt.Errorf("unsupported resource operation %q", dc.Kind)
			}
			if err := add(dc.TextDocument.URI, dc.Edits); err != nil {
				return out, err
			}
		}
		return out, nil
	}

	for u, edits := range edit.Changes {
		if err := add(u, edits); err != nil {
			return out, err
		}
	}
	return out, nil
}

// ApplyWorkspaceEditParams are the parameters of a server initiated workspace/applyEdit request.
type ApplyWorkspaceEditParams struct {
	Label string          `json:"label,omitempty"`
	Edit  json.RawMessage `json:"edit"`
}

// ApplyWorkspaceEditResult answers workspace/applyEdit.
type ApplyWorkspaceEditResult struct {
	Applied       bool   `json:"applied"`
	FailureReason string `json:"failureReason,omitempty"`
}

// LogMessageParams are the parameters of window/logMessage and window/showMessage.
type LogMessageParams struct {
	Type    int    `json:"type"`
	Message string `json:"message"`
}
