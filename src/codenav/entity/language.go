package entity

import (
	"fmt"
	"path/filepath"
	"strings"
)

// LanguageID identifies a configured language, e.g. "python" or "go".
type LanguageID string

// LaunchDescriptor describes how to start the language server for one language.
type LaunchDescriptor struct {
	Command          string   `yaml:"command"`
	Args             []string `yaml:"args"`
	WorkingDirectory string   `yaml:"workingDirectory"`
	Env              []string `yaml:"env"`
	// Extensions lists the file extensions, including the leading dot, served by this language.
	Extensions []string `yaml:"extensions"`
	// LSPLanguageID is sent in didOpen. Defaults to the configured language key.
	LSPLanguageID         string                 `yaml:"languageId"`
	InitializationOptions map[string]interface{} `yaml:"initializationOptions"`
	// MaxConcurrentRequests allows more than one in-flight request on the connection when set above 1.
	MaxConcurrentRequests int `yaml:"maxConcurrentRequests"`
}

// Validate ensures the descriptor can be launched.
func (d LaunchDescriptor) Validate(id LanguageID) error {
	if d.Command == "" {
		return fmt.Errorf("language %q: command is required", id)
	}
	if len(d.Extensions) == 0 {
		return fmt.Errorf("language %q: at least one extension is required", id)
	}
	for _, ext := range d.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("language %q: extension %q must start with a dot", id, ext)
		}
	}
	if d.MaxConcurrentRequests < 0 {
		return fmt.Errorf("language %q: maxConcurrentRequests must not be negative", id)
	}
	return nil
}

// Languages maps each configured language to its launch descriptor.
type Languages map[LanguageID]LaunchDescriptor

// ForPath returns the language serving the file at path, matched by extension.
func (l Languages) ForPath(path string) (LanguageID, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return "", false
	}
	for id, d := range l {
		for _, candidate := range d.Extensions {
			if strings.ToLower(candidate) == ext {
				return id, true
			}
		}
	}
	return "", false
}

// ServerID identifies a language server instance within a project.
type ServerID struct {
	Project  string
	Language LanguageID
}

func (s ServerID) String() string {
	return fmt.Sprintf("%s/%s", s.Project, s.Language)
}

// Capabilities are the features a language server advertised in its initialize response.
type Capabilities struct {
	DocumentSymbol  bool `json:"documentSymbol"`
	References      bool `json:"references"`
	Definition      bool `json:"definition"`
	Rename          bool `json:"rename"`
	WorkspaceSymbol bool `json:"workspaceSymbol"`
}
