package tools

import (
	"bytes"
	"context"
	"encoding/json"
	iofs "io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/uber/codenav/src/codenav/entity"
	naverrors "github.com/uber/codenav/src/codenav/internal/errors"
)

const (
	_replaceModeLiteral = "literal"
	_replaceModeRegex   = "regex"
)

type dirListing struct {
	Dirs  []string `json:"dirs"`
	Files []string `json:"files"`
}

type writeResult struct {
	Path    string `json:"path"`
	Created bool   `json:"created"`
	Diff    string `json:"diff,omitempty"`
}

func (h *handler) fileTools() []Tool {
	return []Tool{
		&tool{
			name:         "list_dir",
			description:  "Lists the files and directories below a project directory. Excluded paths are never listed.",
			needsProject: true,
			schema: entity.ObjectSchema(map[string]entity.Property{
				"relative_path": str("The directory relative to the project root. Use \".\" for the root."),
				"recursive":     boolean("Whether to descend into subdirectories."),
			}, "relative_path"),
			apply: h.listDir,
		},
		&tool{
			name:         "find_file",
			description:  "Finds files whose name, or project relative path when the mask contains a slash, matches a glob mask. \"**\" matches any number of directories.",
			needsProject: true,
			schema: entity.ObjectSchema(map[string]entity.Property{
				"file_mask":     str("The glob mask, e.g. \"*.py\" or \"src/**/test_*.py\"."),
				"relative_path": str("The directory to search. Defaults to the project root."),
			}, "file_mask"),
			apply: h.findFile,
		},
		&tool{
			name:         "read_file",
			description:  "Reads a file of the project, optionally restricted to a window of lines.",
			needsProject: true,
			schema: entity.ObjectSchema(map[string]entity.Property{
				"relative_path": str("The file relative to the project root."),
				"start_line":    integer("The zero-based first line to return."),
				"max_lines":     integer("The maximum number of lines to return. Zero returns every remaining line."),
			}, "relative_path"),
			apply: h.readFile,
		},
		&tool{
			name:         "create_text_file",
			description:  "Creates or overwrites a file of the project. Language servers are notified of the new content.",
			mutates:      true,
			needsProject: true,
			schema: entity.ObjectSchema(map[string]entity.Property{
				"relative_path": str("The file relative to the project root."),
				"content":       str("The complete new content."),
			}, "relative_path", "content"),
			apply: h.createTextFile,
		},
		&tool{
			name:         "replace_content",
			description:  "Replaces occurrences of a literal string or a regular expression in a file and returns a diff of the change.",
			mutates:      true,
			needsProject: true,
			schema: entity.ObjectSchema(map[string]entity.Property{
				"relative_path": str("The file relative to the project root."),
				"needle":        str("The text or RE2 regular expression to replace."),
				"replacement":   str("The replacement. In regex mode $1 refers to the first group."),
				"mode": {
					Type:        "string",
					Description: "How the needle is interpreted.",
					Enum:        []string{_replaceModeLiteral, _replaceModeRegex},
					Default:     _replaceModeLiteral,
				},
				"allow_multiple_occurrences": boolean("Replace every occurrence instead of failing when the needle matches more than once."),
			}, "relative_path", "needle", "replacement"),
			apply: h.replaceContent,
		},
	}
}

func (h *handler) listDir(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args struct {
		RelativePath string `json:"relative_path"`
		Recursive    bool   `json:"recursive"`
	}
	if err := decodeArgs("list_dir", raw, &args); err != nil {
		return nil, err
	}
	p, err := h.active("list_dir")
	if err != nil {
		return nil, err
	}
	dir, err := p.Resolve(args.RelativePath)
	if err != nil {
		return nil, err
	}
	if ok, err := h.fs.DirExists(dir); err != nil || !ok {
		return nil, naverrors.ToolError("list_dir", "%q is not a directory", args.RelativePath)
	}

	listing := dirListing{Dirs: []string{}, Files: []string{}}
	err = p.Walk(ctx, args.RelativePath, func(rel string, d iofs.DirEntry) error {
		if !d.IsDir() {
			listing.Files = append(listing.Files, rel)
			return nil
		}
		listing.Dirs = append(listing.Dirs, rel)
		if !args.Recursive {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(listing.Dirs)
	sort.Strings(listing.Files)
	return listing, nil
}

func (h *handler) findFile(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args struct {
		FileMask     string `json:"file_mask"`
		RelativePath string `json:"relative_path"`
	}
	if err := decodeArgs("find_file", raw, &args); err != nil {
		return nil, err
	}
	if !doublestar.ValidatePattern(args.FileMask) {
		return nil, naverrors.ToolError("find_file", "invalid file mask %q", args.FileMask)
	}
	p, err := h.active("find_file")
	if err != nil {
		return nil, err
	}

	files, err := p.Files(ctx, args.RelativePath)
	if err != nil {
		return nil, err
	}
	matches := []string{}
	for _, rel := range files {
		subject := rel
		if !strings.Contains(args.FileMask, "/") {
			subject = filepath.Base(filepath.FromSlash(rel))
		}
		if ok, _ := doublestar.Match(args.FileMask, subject); ok {
			matches = append(matches, rel)
		}
	}
	return map[string][]string{"files": matches}, nil
}

func (h *handler) readFile(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var args struct {
		RelativePath string `json:"relative_path"`
		StartLine    int    `json:"start_line"`
		MaxLines     int    `json:"max_lines"`
	}
	if err := decodeArgs("read_file", raw, &args); err != nil {
		return nil, err
	}
	if args.StartLine < 0 || args.MaxLines < 0 {
		return nil, naverrors.ToolError("read_file", "start_line and max_lines must not be negative")
	}
	p, err := h.active("read_file")
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
	if args.StartLine == 0 && args.MaxLines == 0 {
		return string(doc.Text), nil
	}

	lines := strings.SplitAfter(string(doc.Text), "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if args.StartLine >= len(lines) {
		return nil, naverrors.ToolError("read_file", "start_line %d is past the end of the file (%d lines)", args.StartLine, len(lines))
	}
	end := len(lines)
	if args.MaxLines > 0 && args.StartLine+args.MaxLines < end {
		end = args.StartLine + args.MaxLines
	}
	return strings.Join(lines[args.StartLine:end], ""), nil
}

func (h *handler) createTextFile(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args struct {
		RelativePath string `json:"relative_path"`
		Content      string `json:"content"`
	}
	if err := decodeArgs("create_text_file", raw, &args); err != nil {
		return nil, err
	}
	p, err := h.active("create_text_file")
	if err != nil {
		return nil, err
	}
	if p.ReadOnly() {
		return nil, naverrors.ToolError("create_text_file", "project %q is read-only", p.Name())
	}
	path, err := p.Resolve(args.RelativePath)
	if err != nil {
		return nil, err
	}
	if rel := relative(p, path); p.IsExcluded(rel) {
		return nil, naverrors.ToolError("create_text_file", "%q is excluded from the project", rel)
	}

	exists, err := h.fs.FileExists(path)
	if err != nil {
		return nil, err
	}
	if err := h.fs.WriteFile(path, []byte(args.Content)); err != nil {
		return nil, err
	}
	if err := h.orchestrator.NotifyWritten(ctx, path, []byte(args.Content)); err != nil {
		return nil, err
	}
	return writeResult{Path: relative(p, path), Created: !exists}, nil
}

func (h *handler) replaceContent(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args struct {
		RelativePath  string `json:"relative_path"`
		Needle        string `json:"needle"`
		Replacement   string `json:"replacement"`
		Mode          string `json:"mode"`
		AllowMultiple bool   `json:"allow_multiple_occurrences"`
	}
	if err := decodeArgs("replace_content", raw, &args); err != nil {
		return nil, err
	}
	if args.Needle == "" {
		return nil, naverrors.ToolError("replace_content", "needle must not be empty")
	}
	p, err := h.active("replace_content")
	if err != nil {
		return nil, err
	}
	if p.ReadOnly() {
		return nil, naverrors.ToolError("replace_content", "project %q is read-only", p.Name())
	}
	path, err := p.Resolve(args.RelativePath)
	if err != nil {
		return nil, err
	}
	doc, err := p.ReadDocument(path)
	if err != nil {
		return nil, err
	}

	var (
		count int
		after []byte
	)
	switch args.Mode {
	case "", _replaceModeLiteral:
		count = bytes.Count(doc.Text, []byte(args.Needle))
		after = bytes.ReplaceAll(doc.Text, []byte(args.Needle), []byte(args.Replacement))
	case _replaceModeRegex:
		re, err := regexp.Compile(args.Needle)
		if err != nil {
			return nil, naverrors.ToolError("replace_content", "invalid regular expression: %v", err)
		}
		count = len(re.FindAllIndex(doc.Text, -1))
		after = re.ReplaceAll(doc.Text, []byte(args.Replacement))
	default:
		return nil, naverrors.ToolError("replace_content", "unknown mode %q", args.Mode)
	}

	switch {
	case count == 0:
		return nil, naverrors.ToolError("replace_content", "%q does not occur in %s", args.Needle, args.RelativePath)
	case count > 1 && !args.AllowMultiple:
		return nil, naverrors.ToolError("replace_content",
			"%q occurs %d times in %s; set allow_multiple_occurrences to replace all of them", args.Needle, count, args.RelativePath)
	}

	if err := h.fs.WriteFile(path, after); err != nil {
		return nil, err
	}
	if err := h.orchestrator.NotifyWritten(ctx, path, after); err != nil {
		return nil, err
	}
	return writeResult{Path: relative(p, path), Diff: lineDiff(doc.Text, after)}, nil
}
