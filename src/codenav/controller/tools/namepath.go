package tools

import (
	"strings"

	"github.com/uber/codenav/src/codenav/entity"
)

// namePattern matches symbols by name path.
//
//	"b"     any symbol named b
//	"A/b"   a symbol b directly under a symbol A, at any depth
//	"/A/b"  a symbol b directly under a top-level symbol A
type namePattern struct {
	segments  []string
	anchored  bool
	substring bool
}

func parseNamePattern(pattern string, substring bool) (namePattern, bool) {
	pattern = strings.TrimSpace(pattern)
	anchored := strings.HasPrefix(pattern, "/")
	pattern = strings.Trim(pattern, "/")
	if pattern == "" {
		return namePattern{}, false
	}
	segments := strings.Split(pattern, "/")
	for _, s := range segments {
		if s == "" {
			return namePattern{}, false
		}
	}
	return namePattern{segments: segments, anchored: anchored, substring: substring}, true
}

// matches reports whether the symbol with the given name path matches. Substring matching applies to the last segment only.
func (p namePattern) matches(namePath string) bool {
	chain := strings.Split(namePath, "/")
	if len(chain) < len(p.segments) || (p.anchored && len(chain) != len(p.segments)) {
		return false
	}

	last := len(p.segments) - 1
	name := chain[len(chain)-1]
	if p.substring {
		if !strings.Contains(name, p.segments[last]) {
			return false
		}
	} else if name != p.segments[last] {
		return false
	}

	offset := len(chain) - len(p.segments)
	for i := 0; i < last; i++ {
		if chain[offset+i] != p.segments[i] {
			return false
		}
	}
	return true
}

// kindFilter admits symbol kinds by inclusion and exclusion lists. An empty inclusion list admits every kind.
type kindFilter struct {
	include map[entity.SymbolKind]struct{}
	exclude map[entity.SymbolKind]struct{}
}

func newKindFilter(include, exclude []string) (kindFilter, []string) {
	var unknown []string
	parse := func(names []string) map[entity.SymbolKind]struct{} {
		if len(names) == 0 {
			return nil
		}
		kinds := make(map[entity.SymbolKind]struct{}, len(names))
		for _, name := range names {
			k, ok := entity.ParseSymbolKind(name)
			if !ok {
				unknown = append(unknown, name)
				continue
			}
			kinds[k] = struct{}{}
		}
		return kinds
	}
	return kindFilter{include: parse(include), exclude: parse(exclude)}, unknown
}

func (f kindFilter) admits(k entity.SymbolKind) bool {
	if f.include != nil {
		if _, ok := f.include[k]; !ok {
			return false
		}
	}
	_, excluded := f.exclude[k]
	return !excluded
}

// findSymbols returns every symbol in the trees that matches the pattern and the kind filter, in document order.
func findSymbols(trees []entity.Symbol, pattern namePattern, kinds kindFilter) []entity.Symbol {
	var matches []entity.Symbol
	for i := range trees {
		trees[i].Walk(func(s *entity.Symbol) bool {
			if pattern.matches(s.NamePath) && kinds.admits(s.Kind) {
				matches = append(matches, *s)
			}
			return true
		})
	}
	return matches
}

// innermost returns the deepest symbol whose range contains pos.
func innermost(trees []entity.Symbol, pos entity.Position) (entity.Symbol, bool) {
	var (
		found entity.Symbol
		ok    bool
	)
	for i := range trees {
		trees[i].Walk(func(s *entity.Symbol) bool {
			if !s.Range.Contains(pos) {
				return false
			}
			found, ok = *s, true
			return true
		})
	}
	return found, ok
}

// truncate returns s limited to depth levels of children. Depth 0 drops every child.
func truncate(s entity.Symbol, depth int, includeBody bool) entity.Symbol {
	if !includeBody {
		s.Body = ""
	}
	if depth <= 0 {
		s.Children = nil
		return s
	}
	children := make([]entity.Symbol, 0, len(s.Children))
	for _, c := range s.Children {
		children = append(children, truncate(c, depth-1, includeBody))
	}
	s.Children = children
	return s
}
