package lsptest

import (
	"regexp"
	"strings"
)

// The fake server understands a tiny subset of Python: def and class statements nested by indentation.
var _definition = regexp.MustCompile(`^(\s*)(def|class)\s+([A-Za-z_][A-Za-z0-9_]*)`)

const (
	_kindClass    = 5
	_kindMethod   = 6
	_kindFunction = 12
)

type position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type span struct {
	Start position `json:"start"`
	End   position `json:"end"`
}

type documentSymbol struct {
	Name           string           `json:"name"`
	Kind           int              `json:"kind"`
	Range          span             `json:"range"`
	SelectionRange span             `json:"selectionRange"`
	Children       []documentSymbol `json:"children,omitempty"`
}

type frame struct {
	indent int
	symbol *documentSymbol
}

// parseSymbols returns the definitions of text as a DocumentSymbol tree.
// Columns are byte offsets, which match UTF-16 offsets for ASCII sources.
func parseSymbols(text string) []documentSymbol {
	lines := strings.Split(text, "\n")
	root := &documentSymbol{}
	stack := []frame{{indent: -1, symbol: root}}

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		for len(stack) > 1 && indent <= stack[len(stack)-1].indent {
			stack = stack[:len(stack)-1]
		}

		m := _definition.FindStringSubmatchIndex(line)
		if m == nil {
			continue
		}
		keyword := line[m[4]:m[5]]
		name := line[m[6]:m[7]]
		parent := stack[len(stack)-1].symbol

		kind := _kindFunction
		switch {
		case keyword == "class":
			kind = _kindClass
		case parent.Kind == _kindClass:
			kind = _kindMethod
		}

		end := blockEnd(lines, i, indent)
		parent.Children = append(parent.Children, documentSymbol{
			Name: name,
			Kind: kind,
			Range: span{
				Start: position{Line: i, Character: indent},
				End:   position{Line: end, Character: len(strings.TrimRight(lines[end], "\r"))},
			},
			SelectionRange: span{
				Start: position{Line: i, Character: m[6]},
				End:   position{Line: i, Character: m[7]},
			},
		})
		stack = append(stack, frame{indent: indent, symbol: &parent.Children[len(parent.Children)-1]})
	}
	return root.Children
}

// blockEnd returns the last line belonging to the block opened at line start.
func blockEnd(lines []string, start int, indent int) int {
	end := start
	for j := start + 1; j < len(lines); j++ {
		if strings.TrimSpace(lines[j]) == "" {
			continue
		}
		if len(lines[j])-len(strings.TrimLeft(lines[j], " \t")) <= indent {
			break
		}
		end = j
	}
	return end
}

func isIdent(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// wordAt returns the identifier covering pos.
func wordAt(text string, pos position) (string, bool) {
	lines := strings.Split(text, "\n")
	if pos.Line < 0 || pos.Line >= len(lines) {
		return "", false
	}
	line := lines[pos.Line]
	if pos.Character < 0 || pos.Character > len(line) {
		return "", false
	}
	start, end := pos.Character, pos.Character
	for start > 0 && isIdent(line[start-1]) {
		start--
	}
	for end < len(line) && isIdent(line[end]) {
		end++
	}
	if start == end {
		return "", false
	}
	return line[start:end], true
}

// occurrences returns the ranges of every whole-word occurrence of name.
func occurrences(text string, name string) []span {
	var out []span
	for i, line := range strings.Split(text, "\n") {
		for offset := 0; ; {
			j := strings.Index(line[offset:], name)
			if j < 0 {
				break
			}
			start := offset + j
			end := start + len(name)
			if (start == 0 || !isIdent(line[start-1])) && (end == len(line) || !isIdent(line[end])) {
				out = append(out, span{Start: position{Line: i, Character: start}, End: position{Line: i, Character: end}})
			}
			offset = end
		}
	}
	return out
}

// definitionOf returns the selection range of the def or class statement introducing name.
func definitionOf(text string, name string) (span, bool) {
	var found *span
	var walk func([]documentSymbol)
	walk = func(symbols []documentSymbol) {
		for i := range symbols {
			if found != nil {
				return
			}
			if symbols[i].Name == name {
				found = &symbols[i].SelectionRange
				return
			}
			walk(symbols[i].Children)
		}
	}
	walk(parseSymbols(text))
	if found == nil {
		return span{}, false
	}
	return *found, true
}
