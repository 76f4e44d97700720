package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	languageserver "github.com/uber/codenav/src/codenav/controller/language-server"
	"github.com/uber/codenav/src/codenav/controller/orchestrator"
	"github.com/uber/codenav/src/codenav/controller/project"
	"github.com/uber/codenav/src/codenav/entity"
	naverrors "github.com/uber/codenav/src/codenav/internal/errors"
	"github.com/uber/codenav/src/codenav/internal/textedit"
)

type symbolEditArgs struct {
	NamePath     string `json:"name_path"`
	RelativePath string `json:"relative_path"`
	Body         string `json:"body"`
}

type renameResult struct {
	Files []string `json:"files"`
	Diff  string   `json:"diff"`
}

func symbolEditSchema(bodyDescription string) entity.Schema {
	return entity.ObjectSchema(map[string]entity.Property{
		"name_path":     str("The name path of the symbol, as accepted by find_symbol."),
		"relative_path": str("The file containing the symbol."),
		"body":          str(bodyDescription),
	}, "name_path", "relative_path", "body")
}

func (h *handler) editTools() []Tool {
	return []Tool{
		&tool{
			name:         "replace_symbol_body",
			description:  "Replaces the complete definition of a symbol, including its signature.",
			mutates:      true,
			needsProject: true,
			schema:       symbolEditSchema("The new definition of the symbol."),
			apply:        h.replaceSymbolBody,
		},
		&tool{
			name:         "insert_after_symbol",
			description:  "Inserts code on the line after the end of a symbol's definition.",
			mutates:      true,
			needsProject: true,
			schema:       symbolEditSchema("The code to insert."),
			apply:        h.insertAfterSymbol,
		},
		&tool{
			name:         "insert_before_symbol",
			description:  "Inserts code on the line before the start of a symbol's definition.",
			mutates:      true,
			needsProject: true,
			schema:       symbolEditSchema("The code to insert."),
			apply:        h.insertBeforeSymbol,
		},
		&tool{
			name:         "rename_symbol",
			description:  "Renames a symbol and every reference to it across the project using the language server.",
			mutates:      true,
			needsProject: true,
			schema: entity.ObjectSchema(map[string]entity.Property{
				"name_path":     str("The name path of the symbol, as accepted by find_symbol."),
				"relative_path": str("The file containing the symbol."),
				"new_name":      str("The new name."),
			}, "name_path", "relative_path", "new_name"),
			apply: h.renameSymbol,
		},
	}
}

// editSymbol locates the symbol named in args and applies the edit computed by fn.
func (h *handler) editSymbol(ctx context.Context, tool string, raw json.RawMessage, fn func(doc entity.Document, s entity.Symbol, body string) entity.TextEdit) (interface{}, error) {
	var args symbolEditArgs
	if err := decodeArgs(tool, raw, &args); err != nil {
		return nil, err
	}
	p, err := h.active(tool)
	if err != nil {
		return nil, err
	}
	doc, target, err := h.uniqueSymbol(ctx, tool, p, args.RelativePath, args.NamePath, kindFilter{})
	if err != nil {
		return nil, err
	}

	edit := fn(doc, target, args.Body)
	changes, err := h.orchestrator.ApplyEdits(ctx, entity.WorkspaceEdit{Changes: map[string][]entity.TextEdit{doc.Path: {edit}}})
	if err != nil {
		return nil, err
	}
	h.logger.Infow("edited symbol", "tool", tool, "symbol", target.NamePath, "path", relative(p, doc.Path))
	return writeResult{Path: relative(p, doc.Path), Diff: diffChanges(p, changes, false)}, nil
}

func (h *handler) replaceSymbolBody(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	return h.editSymbol(ctx, "replace_symbol_body", raw, func(_ entity.Document, s entity.Symbol, body string) entity.TextEdit {
		return entity.TextEdit{Range: s.Range, NewText: strings.TrimRight(body, "\n")}
	})
}

func (h *handler) insertAfterSymbol(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	return h.editSymbol(ctx, "insert_after_symbol", raw, func(doc entity.Document, s entity.Symbol, body string) entity.TextEdit {
		line := s.Range.End.Line + 1
		if s.Range.End.Character == 0 && s.Range.End.Line > s.Range.Start.Line {
			line = s.Range.End.Line
		}
		text := withNewline(body)
		content := textedit.New(doc.Text)
		if offset, err := content.LineOffset(line); err == nil && offset == len(doc.Text) &&
			len(doc.Text) > 0 && !bytes.HasSuffix(doc.Text, []byte("\n")) {
			text = "\n" + text
		}
		return textedit.InsertLine(line, text)
	})
}

func (h *handler) insertBeforeSymbol(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	return h.editSymbol(ctx, "insert_before_symbol", raw, func(_ entity.Document, s entity.Symbol, body string) entity.TextEdit {
		return textedit.InsertLine(s.Range.Start.Line, withNewline(body))
	})
}

func (h *handler) renameSymbol(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args struct {
		NamePath     string `json:"name_path"`
		RelativePath string `json:"relative_path"`
		NewName      string `json:"new_name"`
	}
	if err := decodeArgs("rename_symbol", raw, &args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.NewName) == "" {
		return nil, naverrors.ToolError("rename_symbol", "new_name must not be empty")
	}
	p, err := h.active("rename_symbol")
	if err != nil {
		return nil, err
	}
	doc, target, err := h.uniqueSymbol(ctx, "rename_symbol", p, args.RelativePath, args.NamePath, kindFilter{})
	if err != nil {
		return nil, err
	}

	var edit entity.WorkspaceEdit
	err = h.orchestrator.WithServer(ctx, doc.Path, func(ctx context.Context, server languageserver.Process) error {
		var renameErr error
		edit, renameErr = server.Rename(ctx, doc, target.SelectionRange.Start, args.NewName)
		return renameErr
	})
	if err != nil {
		return nil, err
	}
	if len(edit.Changes) == 0 {
		return nil, naverrors.ToolError("rename_symbol", "the language server produced no edits for %q", args.NamePath)
	}

	changes, err := h.orchestrator.ApplyEdits(ctx, edit)
	if err != nil {
		return nil, err
	}
	result := renameResult{Files: make([]string, 0, len(changes)), Diff: diffChanges(p, changes, true)}
	for _, c := range changes {
		result.Files = append(result.Files, relative(p, c.Path))
	}
	h.logger.Infow("renamed symbol", "symbol", target.NamePath, "newName", args.NewName, "files", len(changes))
	return result, nil
}

// diffChanges renders the diff of every change, preceded by a file header when headers is set.
func diffChanges(p *project.Project, changes []orchestrator.FileChange, headers bool) string {
	var out strings.Builder
	for _, c := range changes {
		if headers {
			fmt.Fprintf(&out, "--- %s\n", relative(p, c.Path))
		}
		out.WriteString(lineDiff(c.Before, c.After))
	}
	return out.String()
}

func withNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
