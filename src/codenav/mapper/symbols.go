package mapper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/uber/codenav/src/codenav/entity"
	"github.com/uber/codenav/src/codenav/internal/textedit"
	"go.lsp.dev/protocol"
)

type symbolProbe struct {
	Location *json.RawMessage `json:"location"`
}

// DocumentSymbols normalizes a textDocument/documentSymbol result for doc into a symbol tree.
// Both the hierarchical DocumentSymbol and the flat SymbolInformation shapes are accepted.
// Siblings are ordered by position; every node carries its name path and body text.
func DocumentSymbols(raw json.RawMessage, doc entity.Document) ([]entity.Symbol, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []entity.Symbol{}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decoding document symbols: %w", err)
	}

	var (
		tree  []entity.Symbol
		infos []protocol.SymbolInformation
	)
	for _, item := range items {
		var probe symbolProbe
		if err := json.Unmarshal(item, &probe); err != nil {
			return nil, fmt.Errorf("decoding document symbol: %w", err)
		}
		if probe.Location != nil {
			var info protocol.SymbolInformation
			if err := json.Unmarshal(item, &info); err != nil {
				return nil, fmt.Errorf("decoding symbol information: %w", err)
			}
			infos = append(infos, info)
			continue
		}

		var ds protocol.DocumentSymbol
		if err := json.Unmarshal(item, &ds); err != nil {
			return nil, fmt.Errorf("decoding document symbol: %w", err)
		}
		tree = append(tree, fromDocumentSymbol(ds, doc.Path))
	}

	tree = append(tree, nestSymbolInformation(infos, doc.Path)...)

	content := textedit.New(doc.Text)
	finish(tree, "", content)
	return tree, nil
}

func fromDocumentSymbol(ds protocol.DocumentSymbol, path string) entity.Symbol {
	s := entity.Symbol{
		Name:           ds.Name,
		Kind:           entity.SymbolKind(ds.Kind),
		Detail:         ds.Detail,
		Path:           path,
		Range:          FromRange(ds.Range),
		SelectionRange: FromRange(ds.SelectionRange),
	}
	for _, child := range ds.Children {
		s.Children = append(s.Children, fromDocumentSymbol(child, path))
	}
	return s
}

// nestSymbolInformation rebuilds a tree from flat symbols by range containment.
func nestSymbolInformation(infos []protocol.SymbolInformation, path string) []entity.Symbol {
	flat := make([]entity.Symbol, 0, len(infos))
	for _, info := range infos {
		p, ok := URIToPath(info.Location.URI)
		if !ok || p != path {
			continue
		}
		r := FromRange(info.Location.Range)
		flat = append(flat, entity.Symbol{
			Name:           info.Name,
			Kind:           entity.SymbolKind(info.Kind),
			Detail:         info.ContainerName,
			Path:           path,
			Range:          r,
			SelectionRange: r,
		})
	}

	// Outer symbols sort before the symbols they contain.
	sort.SliceStable(flat, func(i, j int) bool {
		a, b := flat[i].Range, flat[j].Range
		if a.Start != b.Start {
			return a.Start.Before(b.Start)
		}
		return b.End.Before(a.End)
	})

	var roots []entity.Symbol
	var insert func(nodes *[]entity.Symbol, s entity.Symbol)
	insert = func(nodes *[]entity.Symbol, s entity.Symbol) {
		if n := len(*nodes); n > 0 {
			last := &(*nodes)[n-1]
			if last.Range.Contains(s.Range.Start) && last.Range.Contains(s.Range.End) && last.Range != s.Range {
				insert(&last.Children, s)
				return
			}
		}
		*nodes = append(*nodes, s)
	}
	for _, s := range flat {
		insert(&roots, s)
	}
	return roots
}

// finish sorts siblings and fills name paths and bodies.
func finish(nodes []entity.Symbol, parent string, content *textedit.Content) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Range.Start.Before(nodes[j].Range.Start)
	})
	for i := range nodes {
		s := &nodes[i]
		s.NamePath = s.Name
		if parent != "" {
			s.NamePath = parent + "/" + s.Name
		}
		if body, err := content.Slice(s.Range); err == nil {
			s.Body = string(body)
		}
		finish(s.Children, s.NamePath, content)
	}
}
