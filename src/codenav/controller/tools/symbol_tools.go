package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	languageserver "github.com/uber/codenav/src/codenav/controller/language-server"
	"github.com/uber/codenav/src/codenav/controller/project"
	"github.com/uber/codenav/src/codenav/entity"
	naverrors "github.com/uber/codenav/src/codenav/internal/errors"
	"github.com/uber/codenav/src/codenav/internal/textedit"
)

type symbolView struct {
	NamePath     string            `json:"name_path"`
	Kind         entity.SymbolKind `json:"kind"`
	RelativePath string            `json:"relative_path"`
	StartLine    int               `json:"start_line"`
	EndLine      int               `json:"end_line"`
	Body         string            `json:"body,omitempty"`
	Children     []symbolView      `json:"children,omitempty"`
}

type referenceView struct {
	// NamePath is the innermost symbol containing the reference. It is empty for references at the top level.
	NamePath     string            `json:"name_path,omitempty"`
	Kind         entity.SymbolKind `json:"kind,omitempty"`
	RelativePath string            `json:"relative_path"`
	Line         int               `json:"line"`
	Character    int               `json:"character"`
	Snippet      string            `json:"snippet"`
}

type locationView struct {
	RelativePath string       `json:"relative_path"`
	Range        entity.Range `json:"range"`
	Snippet      string       `json:"snippet,omitempty"`
}

func newSymbolView(p *project.Project, s entity.Symbol) symbolView {
	v := symbolView{
		NamePath:     s.NamePath,
		Kind:         s.Kind,
		RelativePath: relative(p, s.Path),
		StartLine:    s.Range.Start.Line,
		EndLine:      s.Range.End.Line,
		Body:         s.Body,
	}
	for _, c := range s.Children {
		v.Children = append(v.Children, newSymbolView(p, c))
	}
	return v
}

func (h *handler) symbolTools() []Tool {
	kinds := "Symbol kind names such as Class, Method, Function or Variable."
	return []Tool{
		&tool{
			name:         "get_symbols_overview",
			description:  "Returns the top-level symbols of a file, or of every source file below a directory.",
			needsProject: true,
			schema: entity.ObjectSchema(map[string]entity.Property{
				"relative_path": str("A file or directory relative to the project root."),
			}, "relative_path"),
			apply: h.symbolsOverview,
		},
		&tool{
			name: "find_symbol",
			description: "Finds symbols by name path. \"b\" matches any symbol named b, \"A/b\" matches b directly inside A, " +
				"and \"/A/b\" additionally requires A to be top-level.",
			needsProject: true,
			schema: entity.ObjectSchema(map[string]entity.Property{
				"name_path":          str("The name path pattern."),
				"relative_path":      str("Restricts the search to a file or directory. Defaults to the whole project."),
				"depth":              integer("The number of levels of children to include."),
				"include_body":       boolean("Whether to include the source of each symbol."),
				"substring_matching": boolean("Whether the last name path segment may match part of a name."),
				"include_kinds":      stringList(kinds),
				"exclude_kinds":      stringList(kinds),
			}, "name_path"),
			apply: h.findSymbol,
		},
		&tool{
			name:         "find_referencing_symbols",
			description:  "Finds the references to a symbol and the symbols that contain them.",
			needsProject: true,
			schema: entity.ObjectSchema(map[string]entity.Property{
				"name_path":     str("The name path of the referenced symbol."),
				"relative_path": str("The file containing the referenced symbol."),
				"include_kinds": stringList(kinds),
				"exclude_kinds": stringList(kinds),
			}, "name_path", "relative_path"),
			apply: h.findReferencingSymbols,
		},
		&tool{
			name:         "find_definition",
			description:  "Returns the definition locations of the symbol at a zero-based position of a file.",
			needsProject: true,
			schema: entity.ObjectSchema(map[string]entity.Property{
				"relative_path": str("The file relative to the project root."),
				"line":          integer("The zero-based line."),
				"character":     integer("The zero-based UTF-16 column."),
			}, "relative_path", "line", "character"),
			apply: h.findDefinition,
		},
	}
}

// sourceFiles returns the absolute paths of the files served by a language at or below rel.
func (h *handler) sourceFiles(ctx context.Context, p *project.Project, rel string) ([]string, error) {
	path, err := p.Resolve(rel)
	if err != nil {
		return nil, err
	}
	isFile, err := h.fs.FileExists(path)
	if err != nil {
		return nil, err
	}
	if isFile {
		return []string{path}, nil
	}

	files, err := p.Files(ctx, rel)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, f := range files {
		if _, ok := p.LanguageFor(f); ok {
			abs, err := p.Resolve(f)
			if err != nil {
				return nil, err
			}
			out = append(out, abs)
		}
	}
	return out, nil
}

// skippable reports whether a file can be left out of a multi-file search.
func skippable(err error) bool {
	var (
		unsupported *naverrors.UnsupportedLanguageError
		tooLarge    *naverrors.FileSizeLimitError
	)
	return errors.As(err, &unsupported) || errors.As(err, &tooLarge)
}

func (h *handler) symbolsOverview(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args struct {
		RelativePath string `json:"relative_path"`
	}
	if err := decodeArgs("get_symbols_overview", raw, &args); err != nil {
		return nil, err
	}
	p, err := h.active("get_symbols_overview")
	if err != nil {
		return nil, err
	}
	files, err := h.sourceFiles(ctx, p, args.RelativePath)
	if err != nil {
		return nil, err
	}

	overview := make(map[string][]symbolView, len(files))
	for _, file := range files {
		_, symbols, err := h.orchestrator.Symbols(ctx, file)
		if err != nil {
			if len(files) > 1 && skippable(err) {
				continue
			}
			return nil, err
		}
		views := make([]symbolView, 0, len(symbols))
		for _, s := range symbols {
			views = append(views, newSymbolView(p, truncate(s, 0, false)))
		}
		overview[relative(p, file)] = views
	}
	return overview, nil
}

func (h *handler) findSymbol(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args struct {
		NamePath          string   `json:"name_path"`
		RelativePath      string   `json:"relative_path"`
		Depth             int      `json:"depth"`
		IncludeBody       bool     `json:"include_body"`
		SubstringMatching bool     `json:"substring_matching"`
		IncludeKinds      []string `json:"include_kinds"`
		ExcludeKinds      []string `json:"exclude_kinds"`
	}
	if err := decodeArgs("find_symbol", raw, &args); err != nil {
		return nil, err
	}
	pattern, ok := parseNamePattern(args.NamePath, args.SubstringMatching)
	if !ok {
		return nil, naverrors.ToolError("find_symbol", "invalid name path %q", args.NamePath)
	}
	kinds, unknown := newKindFilter(args.IncludeKinds, args.ExcludeKinds)
	if len(unknown) > 0 {
		return nil, naverrors.ToolError("find_symbol", "unknown symbol kinds %v", unknown)
	}
	p, err := h.active("find_symbol")
	if err != nil {
		return nil, err
	}
	files, err := h.sourceFiles(ctx, p, args.RelativePath)
	if err != nil {
		return nil, err
	}

	matches := []symbolView{}
	for _, file := range files {
		_, symbols, err := h.orchestrator.Symbols(ctx, file)
		if err != nil {
			if len(files) > 1 && skippable(err) {
				continue
			}
			return nil, err
		}
		for _, s := range findSymbols(symbols, pattern, kinds) {
			matches = append(matches, newSymbolView(p, truncate(s, args.Depth, args.IncludeBody)))
		}
	}
	return matches, nil
}

// uniqueSymbol returns the document at rel and its only symbol matching namePath.
func (h *handler) uniqueSymbol(ctx context.Context, tool string, p *project.Project, rel, namePath string, kinds kindFilter) (entity.Document, entity.Symbol, error) {
	pattern, ok := parseNamePattern(namePath, false)
	if !ok {
		return entity.Document{}, entity.Symbol{}, naverrors.ToolError(tool, "invalid name path %q", namePath)
	}
	doc, symbols, err := h.orchestrator.Symbols(ctx, rel)
	if err != nil {
		return entity.Document{}, entity.Symbol{}, err
	}

	matches := findSymbols(symbols, pattern, kinds)
	switch len(matches) {
	case 0:
		return entity.Document{}, entity.Symbol{}, naverrors.ToolError(tool, "no symbol matches %q in %s", namePath, rel)
	case 1:
		return doc, matches[0], nil
	default:
		paths := make([]string, 0, len(matches))
		for _, m := range matches {
			paths = append(paths, m.NamePath)
		}
		return entity.Document{}, entity.Symbol{}, naverrors.ToolError(tool,
			"%q is ambiguous in %s, matching %s; use a more specific name path", namePath, rel, strings.Join(paths, ", "))
	}
}

func (h *handler) findReferencingSymbols(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args struct {
		NamePath     string   `json:"name_path"`
		RelativePath string   `json:"relative_path"`
		IncludeKinds []string `json:"include_kinds"`
		ExcludeKinds []string `json:"exclude_kinds"`
	}
	if err := decodeArgs("find_referencing_symbols", raw, &args); err != nil {
		return nil, err
	}
	kinds, unknown := newKindFilter(args.IncludeKinds, args.ExcludeKinds)
	if len(unknown) > 0 {
		return nil, naverrors.ToolError("find_referencing_symbols", "unknown symbol kinds %v", unknown)
	}
	p, err := h.active("find_referencing_symbols")
	if err != nil {
		return nil, err
	}
	doc, target, err := h.uniqueSymbol(ctx, "find_referencing_symbols", p, args.RelativePath, args.NamePath, kindFilter{})
	if err != nil {
		return nil, err
	}

	var locations []entity.Location
	err = h.orchestrator.WithServer(ctx, doc.Path, func(ctx context.Context, server languageserver.Process) error {
		var refErr error
		locations, refErr = server.FindReferences(ctx, doc, target.SelectionRange.Start, false)
		return refErr
	})
	if err != nil {
		return nil, err
	}

	type fileSymbols struct {
		content *textedit.Content
		symbols []entity.Symbol
	}
	files := make(map[string]fileSymbols)
	refs := []referenceView{}
	for _, loc := range locations {
		rel, err := p.Relative(loc.Path)
		if err != nil || p.IsExcluded(rel) {
			continue
		}
		entry, ok := files[loc.Path]
		if !ok {
			refDoc, symbols, err := h.orchestrator.Symbols(ctx, loc.Path)
			if err != nil {
				return nil, err
			}
			entry = fileSymbols{content: textedit.New(refDoc.Text), symbols: symbols}
			files[loc.Path] = entry
		}

		view := referenceView{
			RelativePath: rel,
			Line:         loc.Range.Start.Line,
			Character:    loc.Range.Start.Character,
			Snippet:      lineText(entry.content, loc.Range.Start.Line),
		}
		if container, ok := innermost(entry.symbols, loc.Range.Start); ok {
			if !kinds.admits(container.Kind) {
				continue
			}
			view.NamePath, view.Kind = container.NamePath, container.Kind
		} else if len(args.IncludeKinds) > 0 {
			continue
		}
		refs = append(refs, view)
	}
	return refs, nil
}

func (h *handler) findDefinition(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args struct {
		RelativePath string `json:"relative_path"`
		Line         int    `json:"line"`
		Character    int    `json:"character"`
	}
	if err := decodeArgs("find_definition", raw, &args); err != nil {
		return nil, err
	}
	p, err := h.active("find_definition")
	if err != nil {
		return nil, err
	}
	path, err := p.Resolve(args.RelativePath)
	if err != nil {
		return nil, err
	}
	doc, err := p.ReadDocument(path)
	if err != nil {
		return nil, err
	}

	var locations []entity.Location
	pos := entity.Position{Line: args.Line, Character: args.Character}
	err = h.orchestrator.WithServer(ctx, path, func(ctx context.Context, server languageserver.Process) error {
		var defErr error
		locations, defErr = server.FindDefinition(ctx, doc, pos)
		return defErr
	})
	if err != nil {
		return nil, err
	}

	views := make([]locationView, 0, len(locations))
	for _, loc := range locations {
		view := locationView{RelativePath: relative(p, loc.Path), Range: loc.Range}
		if data, err := h.fs.ReadFile(loc.Path); err == nil {
			view.Snippet = lineText(textedit.New(data), loc.Range.Start.Line)
		}
		views = append(views, view)
	}
	return views, nil
}

// lineText returns line without its terminator and surrounding blanks.
func lineText(c *textedit.Content, line int) string {
	start, err := c.LineOffset(line)
	if err != nil {
		return ""
	}
	end, err := c.LineOffset(line + 1)
	if err != nil {
		end = len(c.Bytes())
	}
	return strings.TrimSpace(string(c.Bytes()[start:end]))
}
