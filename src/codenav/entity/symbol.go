package entity

import "fmt"

// SymbolKind is the LSP symbol kind, numbered as in the protocol.
type SymbolKind int

const (
	SymbolKindFile SymbolKind = iota + 1
	SymbolKindModule
	SymbolKindNamespace
	SymbolKindPackage
	SymbolKindClass
	SymbolKindMethod
	SymbolKindProperty
	SymbolKindField
	SymbolKindConstructor
	SymbolKindEnum
	SymbolKindInterface
	SymbolKindFunction
	SymbolKindVariable
	SymbolKindConstant
	SymbolKindString
	SymbolKindNumber
	SymbolKindBoolean
	SymbolKindArray
	SymbolKindObject
	SymbolKindKey
	SymbolKindNull
	SymbolKindEnumMember
	SymbolKindStruct
	SymbolKindEvent
	SymbolKindOperator
	SymbolKindTypeParameter
)

var _symbolKindNames = []string{
	"", "File", "Module", "Namespace", "Package", "Class", "Method", "Property", "Field",
	"Constructor", "Enum", "Interface", "Function", "Variable", "Constant", "String",
	"Number", "Boolean", "Array", "Object", "Key", "Null", "EnumMember", "Struct",
	"Event", "Operator", "TypeParameter",
}

func (k SymbolKind) String() string {
	if k > 0 && int(k) < len(_symbolKindNames) {
		return _symbolKindNames[k]
	}
	return fmt.Sprintf("SymbolKind(%d)", int(k))
}

// MarshalText encodes the kind as its name.
func (k SymbolKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseSymbolKind returns the kind named s.
func ParseSymbolKind(s string) (SymbolKind, bool) {
	for i, name := range _symbolKindNames {
		if i > 0 && name == s {
			return SymbolKind(i), true
		}
	}
	return 0, false
}

// Position is a zero-based line and UTF-16 character offset.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Before reports whether p comes strictly before o.
func (p Position) Before(o Position) bool {
	return p.Line < o.Line || (p.Line == o.Line && p.Character < o.Character)
}

// Range is a half-open span of positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Contains reports whether pos lies within the range, inclusive of both ends.
func (r Range) Contains(pos Position) bool {
	return !pos.Before(r.Start) && !r.End.Before(pos)
}

// Location is a range within a file. Path is absolute.
type Location struct {
	Path  string `json:"path"`
	Range Range  `json:"range"`
}

// Symbol is a node of the normalized symbol tree of one file.
type Symbol struct {
	Name string     `json:"name"`
	Kind SymbolKind `json:"kind"`
	// NamePath is the slash separated chain of ancestor names ending in Name.
	NamePath       string   `json:"namePath"`
	Detail         string   `json:"detail,omitempty"`
	Path           string   `json:"path"`
	Range          Range    `json:"range"`
	SelectionRange Range    `json:"selectionRange"`
	Body           string   `json:"body,omitempty"`
	Children       []Symbol `json:"children,omitempty"`
}

// Walk calls fn for s and every descendant in depth-first order; returning false skips the children.
func (s *Symbol) Walk(fn func(*Symbol) bool) {
	if !fn(s) {
		return
	}
	for i := range s.Children {
		s.Children[i].Walk(fn)
	}
}

// Document is the content of a file as it should be seen by a language server.
type Document struct {
	Path string
	Text []byte
}

// TextEdit replaces Range with NewText.
type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

// WorkspaceEdit is a set of text edits keyed by absolute file path.
type WorkspaceEdit struct {
	Changes map[string][]TextEdit `json:"changes"`
}
