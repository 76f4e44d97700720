package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"github.com/uber/codenav/src/codenav/controller/orchestrator"
	"github.com/uber/codenav/src/codenav/controller/orchestrator/orchestratormock"
	"github.com/uber/codenav/src/codenav/controller/project"
	"github.com/uber/codenav/src/codenav/entity"
	"github.com/uber/codenav/src/codenav/internal/clock"
	naverrors "github.com/uber/codenav/src/codenav/internal/errors"
	"github.com/uber/codenav/src/codenav/internal/fs"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func newRegistry(t *testing.T) (Registry, *orchestratormock.MockOrchestrator) {
	t.Helper()
	orch := orchestratormock.NewMockOrchestrator(gomock.NewController(t))
	r, err := New(Params{Orchestrator: orch, FS: fs.New(), Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)
	return r, orch
}

func newProject(t *testing.T, cfg entity.ProjectConfig, files map[string]string) *project.Project {
	t.Helper()
	if cfg.RootPath == "" {
		cfg.RootPath = t.TempDir()
	}
	if cfg.Name == "" {
		cfg.Name = "sample"
	}
	for name, content := range files {
		path := filepath.Join(cfg.RootPath, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	p, err := project.New(cfg, project.Deps{
		Languages: entity.Languages{"python": {Command: "pylsp", Extensions: []string{".py"}}},
		FS:        fs.New(),
		Clock:     clock.New(),
		Stats:     tally.NoopScope,
		Logger:    zap.NewNop().Sugar(),
	})
	require.NoError(t, err)
	return p
}

func apply(t *testing.T, r Registry, name string, args interface{}) (interface{}, error) {
	t.Helper()
	tool, ok := r.Get(name)
	require.True(t, ok, "tool %s", name)
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	return tool.Apply(context.Background(), raw)
}

func TestRegistry(t *testing.T) {
	r, _ := newRegistry(t)

	var names []string
	for _, tool := range r.Tools() {
		names = append(names, tool.Name())
		assert.NotEmpty(t, tool.Description(), tool.Name())
		assert.Equal(t, "object", tool.Schema().Type, tool.Name())
		for _, required := range tool.Schema().Required {
			assert.Contains(t, tool.Schema().Properties, required, tool.Name())
		}
	}
	assert.Equal(t, []string{
		"activate_project",
		"create_text_file",
		"find_definition",
		"find_file",
		"find_referencing_symbols",
		"find_symbol",
		"get_current_config",
		"get_symbols_overview",
		"insert_after_symbol",
		"insert_before_symbol",
		"list_dir",
		"read_file",
		"rename_symbol",
		"replace_content",
		"replace_symbol_body",
		"restart_language_server",
		"switch_modes",
	}, names)

	mutating := map[string]bool{}
	unscoped := map[string]bool{}
	for _, info := range r.Infos() {
		if info.MutatesState {
			mutating[info.Name] = true
		}
		if !info.RequiresActiveProject {
			unscoped[info.Name] = true
		}
	}
	assert.Equal(t, map[string]bool{
		"create_text_file":     true,
		"insert_after_symbol":  true,
		"insert_before_symbol": true,
		"rename_symbol":        true,
		"replace_content":      true,
		"replace_symbol_body":  true,
	}, mutating)
	assert.Equal(t, map[string]bool{
		"activate_project":   true,
		"get_current_config": true,
		"switch_modes":       true,
	}, unscoped)
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(&tool{name: "a"}, &tool{name: "a"})
	assert.EqualError(t, err, `tool "a" is registered twice`)
}

func TestDecodeArgs(t *testing.T) {
	type args struct {
		Path string `json:"relative_path"`
	}
	tests := []struct {
		name    string
		raw     string
		want    args
		wantErr string
	}{
		{name: "empty", raw: "", want: args{}},
		{name: "null", raw: " null ", want: args{}},
		{name: "fields", raw: `{"relative_path":"a.py"}`, want: args{Path: "a.py"}},
		{name: "unknown field", raw: `{"path":"a.py"}`, wantErr: `read_file: invalid arguments: json: unknown field "path"`},
		{name: "wrong type", raw: `{"relative_path":3}`, wantErr: "read_file: invalid arguments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got args
			err := decodeArgs("read_file", json.RawMessage(tt.raw), &got)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Equal(t, naverrors.KindToolExecution, naverrors.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToolsRequireActiveProject(t *testing.T) {
	r, orch := newRegistry(t)
	orch.EXPECT().Active().Return(nil).AnyTimes()

	for _, info := range r.Infos() {
		if !info.RequiresActiveProject || info.Name == "restart_language_server" {
			continue
		}
		tool, _ := r.Get(info.Name)
		args := map[string]interface{}{}
		for _, required := range tool.Schema().Required {
			switch tool.Schema().Properties[required].Type {
			case "integer":
				args[required] = 0
			case "array":
				args[required] = []string{"x"}
			default:
				args[required] = "x"
			}
		}
		_, err := apply(t, r, info.Name, args)
		assert.Equal(t, naverrors.KindProjectNotActive, naverrors.KindOf(err), info.Name)
	}
}

func TestListDir(t *testing.T) {
	r, orch := newRegistry(t)
	p := newProject(t, entity.ProjectConfig{ExcludedGlobs: []string{"**/__pycache__/**"}}, map[string]string{
		"main.py":                  "",
		"pkg/util.py":              "",
		"pkg/deep/more.py":         "",
		"pkg/__pycache__/util.pyc": "",
	})
	orch.EXPECT().Active().Return(p).AnyTimes()

	got, err := apply(t, r, "list_dir", map[string]interface{}{"relative_path": "."})
	require.NoError(t, err)
	assert.Equal(t, dirListing{Dirs: []string{"pkg"}, Files: []string{"main.py"}}, got)

	got, err = apply(t, r, "list_dir", map[string]interface{}{"relative_path": ".", "recursive": true})
	require.NoError(t, err)
	assert.Equal(t, dirListing{
		Dirs:  []string{"pkg", "pkg/deep"},
		Files: []string{"main.py", "pkg/deep/more.py", "pkg/util.py"},
	}, got)

	_, err = apply(t, r, "list_dir", map[string]interface{}{"relative_path": "main.py"})
	assert.ErrorContains(t, err, "is not a directory")

	_, err = apply(t, r, "list_dir", map[string]interface{}{"relative_path": "../"})
	assert.Error(t, err)
}

func TestFindFile(t *testing.T) {
	r, orch := newRegistry(t)
	p := newProject(t, entity.ProjectConfig{}, map[string]string{
		"main.py":         "",
		"pkg/util.py":     "",
		"pkg/README.md":   "",
		"tests/test_a.py": "",
	})
	orch.EXPECT().Active().Return(p).AnyTimes()

	tests := []struct {
		mask string
		dir  string
		want []string
	}{
		{mask: "*.py", want: []string{"main.py", "pkg/util.py", "tests/test_a.py"}},
		{mask: "*.py", dir: "pkg", want: []string{"pkg/util.py"}},
		{mask: "test_*", want: []string{"tests/test_a.py"}},
		{mask: "pkg/*", want: []string{"pkg/README.md", "pkg/util.py"}},
		{mask: "*.go", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.mask+" in "+tt.dir, func(t *testing.T) {
			got, err := apply(t, r, "find_file", map[string]interface{}{"file_mask": tt.mask, "relative_path": tt.dir})
			require.NoError(t, err)
			assert.Equal(t, map[string][]string{"files": tt.want}, got)
		})
	}

	_, err := apply(t, r, "find_file", map[string]interface{}{"file_mask": "[", "relative_path": ""})
	assert.ErrorContains(t, err, "invalid file mask")
}

func TestReadFile(t *testing.T) {
	r, orch := newRegistry(t)
	p := newProject(t, entity.ProjectConfig{MaxFileSizeBytes: 64}, map[string]string{
		"main.py": "one\ntwo\nthree\n",
		"big.py":  string(make([]byte, 128)),
	})
	orch.EXPECT().Active().Return(p).AnyTimes()

	tests := []struct {
		name    string
		args    map[string]interface{}
		want    string
		wantErr string
	}{
		{name: "whole file", args: map[string]interface{}{"relative_path": "main.py"}, want: "one\ntwo\nthree\n"},
		{name: "window", args: map[string]interface{}{"relative_path": "main.py", "start_line": 1, "max_lines": 1}, want: "two\n"},
		{name: "from line", args: map[string]interface{}{"relative_path": "main.py", "start_line": 2}, want: "three\n"},
		{name: "past end", args: map[string]interface{}{"relative_path": "main.py", "start_line": 3}, wantErr: "past the end"},
		{name: "negative", args: map[string]interface{}{"relative_path": "main.py", "max_lines": -1}, wantErr: "must not be negative"},
		{name: "too large", args: map[string]interface{}{"relative_path": "big.py"}, wantErr: "big.py"},
		{name: "outside root", args: map[string]interface{}{"relative_path": "../etc/passwd"}, wantErr: "outside"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := apply(t, r, "read_file", tt.args)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreateTextFile(t *testing.T) {
	r, orch := newRegistry(t)
	p := newProject(t, entity.ProjectConfig{ExcludedGlobs: []string{"build/**"}}, map[string]string{"main.py": "old\n"})
	orch.EXPECT().Active().Return(p).AnyTimes()

	newPath := filepath.Join(p.Root(), "pkg", "new.py")
	orch.EXPECT().NotifyWritten(gomock.Any(), newPath, []byte("x = 1\n")).Return(nil)
	got, err := apply(t, r, "create_text_file", map[string]interface{}{"relative_path": "pkg/new.py", "content": "x = 1\n"})
	require.NoError(t, err)
	assert.Equal(t, writeResult{Path: "pkg/new.py", Created: true}, got)
	content, err := os.ReadFile(newPath)
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", string(content))

	orch.EXPECT().NotifyWritten(gomock.Any(), filepath.Join(p.Root(), "main.py"), []byte("new\n")).Return(nil)
	got, err = apply(t, r, "create_text_file", map[string]interface{}{"relative_path": "main.py", "content": "new\n"})
	require.NoError(t, err)
	assert.Equal(t, writeResult{Path: "main.py"}, got)

	_, err = apply(t, r, "create_text_file", map[string]interface{}{"relative_path": "build/out.py", "content": ""})
	assert.ErrorContains(t, err, "excluded")
}

func TestCreateTextFileReadOnly(t *testing.T) {
	r, orch := newRegistry(t)
	p := newProject(t, entity.ProjectConfig{Name: "frozen", ReadOnly: true}, nil)
	orch.EXPECT().Active().Return(p).AnyTimes()

	_, err := apply(t, r, "create_text_file", map[string]interface{}{"relative_path": "a.py", "content": ""})
	assert.EqualError(t, err, `create_text_file: project "frozen" is read-only`)
	_, err = os.Stat(filepath.Join(p.Root(), "a.py"))
	assert.True(t, os.IsNotExist(err))
}

func TestReplaceContent(t *testing.T) {
	const source = "def foo():\n    return 1\n\ndef bar():\n    return 1\n"

	tests := []struct {
		name     string
		args     map[string]interface{}
		want     string
		wantDiff string
		wantErr  string
	}{
		{
			name:     "literal",
			args:     map[string]interface{}{"needle": "def foo", "replacement": "def baz"},
			want:     "def baz():\n    return 1\n\ndef bar():\n    return 1\n",
			wantDiff: "-def foo():\n+def baz():\n     return 1\n \n...\n",
		},
		{
			name:    "multiple without permission",
			args:    map[string]interface{}{"needle": "return 1", "replacement": "return 2"},
			wantErr: "occurs 2 times",
		},
		{
			name: "multiple",
			args: map[string]interface{}{"needle": "return 1", "replacement": "return 2", "allow_multiple_occurrences": true},
			want: "def foo():\n    return 2\n\ndef bar():\n    return 2\n",
		},
		{
			name: "regex",
			args: map[string]interface{}{"needle": `def (\w+)\(\)`, "replacement": "def ${1}_v2()", "mode": "regex", "allow_multiple_occurrences": true},
			want: "def foo_v2():\n    return 1\n\ndef bar_v2():\n    return 1\n",
		},
		{name: "missing", args: map[string]interface{}{"needle": "qux", "replacement": ""}, wantErr: "does not occur"},
		{name: "bad regex", args: map[string]interface{}{"needle": "(", "replacement": "", "mode": "regex"}, wantErr: "invalid regular expression"},
		{name: "bad mode", args: map[string]interface{}{"needle": "x", "replacement": "", "mode": "glob"}, wantErr: "unknown mode"},
		{name: "empty needle", args: map[string]interface{}{"needle": "", "replacement": "x"}, wantErr: "needle must not be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, orch := newRegistry(t)
			p := newProject(t, entity.ProjectConfig{}, map[string]string{"main.py": source})
			orch.EXPECT().Active().Return(p).AnyTimes()
			path := filepath.Join(p.Root(), "main.py")
			if tt.wantErr == "" {
				orch.EXPECT().NotifyWritten(gomock.Any(), path, []byte(tt.want)).Return(nil)
			}

			tt.args["relative_path"] = "main.py"
			got, err := apply(t, r, "replace_content", tt.args)
			content, readErr := os.ReadFile(path)
			require.NoError(t, readErr)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				assert.Equal(t, source, string(content))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(content))
			if tt.wantDiff != "" {
				assert.Equal(t, tt.wantDiff, got.(writeResult).Diff)
			}
		})
	}
}

func TestSessionTools(t *testing.T) {
	r, orch := newRegistry(t)
	p := newProject(t, entity.ProjectConfig{}, nil)

	orch.EXPECT().Activate(gomock.Any(), "sample").Return(p, nil)
	got, err := apply(t, r, "activate_project", map[string]interface{}{"project": "sample"})
	require.NoError(t, err)
	assert.Equal(t, activatedProject{Name: "sample", RootPath: p.Root()}, got)

	orch.EXPECT().SetModes([]string{"planning"}).Return(nil)
	orch.EXPECT().ExposureState().Return(entity.ExposureState{Context: "agent", Modes: []string{"planning"}})
	got, err = apply(t, r, "switch_modes", map[string]interface{}{"modes": []string{"planning"}})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"modes": {"planning"}}, got)

	orch.EXPECT().RestartServers(gomock.Any(), entity.LanguageID("")).
		Return([]entity.ServerID{{Project: "sample", Language: "python"}, {Project: "sample", Language: "go"}}, nil)
	got, err = apply(t, r, "restart_language_server", map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"restarted": {"sample/go", "sample/python"}}, got)

	orch.EXPECT().Snapshot().Return(orchestrator.Snapshot{Context: "agent"})
	got, err = apply(t, r, "get_current_config", nil)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.Snapshot{Context: "agent"}, got)

	_, err = apply(t, r, "get_current_config", map[string]interface{}{"verbose": true})
	assert.ErrorContains(t, err, "invalid arguments")
}
