package languageserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"github.com/uber/codenav/src/codenav/entity"
	naverrors "github.com/uber/codenav/src/codenav/internal/errors"
	"github.com/uber/codenav/src/codenav/internal/executor"
	"github.com/uber/codenav/src/codenav/internal/lsptest"
	"github.com/uber/codenav/src/codenav/mapper"
	"go.uber.org/config"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	if lsptest.IsHelper() {
		lsptest.Main()
	}
	os.Exit(m.Run())
}

var _fastTimeouts = Timeouts{
	Request:       5 * time.Second,
	Startup:       10 * time.Second,
	ShutdownGrace: time.Second,
	ForceKill:     time.Second,
}

type fixture struct {
	root    string
	process *process
	stats   tally.TestScope
}

func newFixture(t *testing.T, opts lsptest.Options, timeouts Timeouts) *fixture {
	t.Helper()
	root := t.TempDir()
	cmd, args, env := lsptest.HelperCommand(opts)
	stats := tally.NewTestScope("", nil)

	p := newProcess(processOptions{
		id:   entity.ServerID{Project: "sample", Language: "python"},
		root: root,
		desc: entity.LaunchDescriptor{
			Command:    cmd,
			Args:       args,
			Env:        env,
			Extensions: []string{".py"},
		},
		timeouts: timeouts,
		executor: executor.NewExecutor(),
		logger:   zap.NewNop().Sugar(),
		stats:    stats,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		assert.NoError(t, p.Stop(ctx))
	})
	return &fixture{root: root, process: p, stats: stats}
}

func (f *fixture) write(t *testing.T, name string, content string) entity.Document {
	path := filepath.Join(f.root, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return entity.Document{Path: path, Text: []byte(content)}
}

func symbolNames(t *testing.T, raw json.RawMessage) []string {
	var symbols []struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(raw, &symbols))
	names := make([]string, 0, len(symbols))
	for _, s := range symbols {
		names = append(names, s.Name)
	}
	return names
}

func alive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

func TestProcessLifecycle(t *testing.T) {
	f := newFixture(t, lsptest.Options{}, _fastTimeouts)
	p := f.process
	ctx := context.Background()

	assert.Equal(t, StateNotStarted, p.State())
	assert.Equal(t, 0, p.Pid())

	require.NoError(t, p.Start(ctx))
	assert.Equal(t, StateRunning, p.State())
	assert.Equal(t, entity.Capabilities{DocumentSymbol: true, References: true, Definition: true, Rename: true}, p.Capabilities())

	pid := p.Pid()
	require.NotZero(t, pid)
	assert.True(t, alive(pid))

	// Starting a running process is a no-op.
	require.NoError(t, p.Start(ctx))
	assert.Equal(t, pid, p.Pid())

	doc := f.write(t, "main.py", "def foo(): pass\n")
	raw, err := p.DocumentSymbols(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"foo"}, symbolNames(t, raw))
	assert.Equal(t, int64(1), p.Requests())

	require.NoError(t, p.Stop(ctx))
	assert.Equal(t, StateTerminated, p.State())
	assert.False(t, alive(pid))

	_, err = p.DocumentSymbols(ctx, doc)
	assert.True(t, naverrors.IsCrash(err))
	assert.Error(t, p.Start(ctx))
	assert.NoError(t, p.Stop(ctx))

	snapshot := f.stats.Snapshot().Counters()
	require.Contains(t, snapshot, "starts+language=python")
	assert.Equal(t, int64(1), snapshot["starts+language=python"].Value())
}

func TestProcessNotRunning(t *testing.T) {
	f := newFixture(t, lsptest.Options{}, _fastTimeouts)
	ctx := context.Background()
	doc := entity.Document{Path: filepath.Join(f.root, "main.py")}

	_, err := f.process.DocumentSymbols(ctx, doc)
	assert.Equal(t, naverrors.KindCrash, naverrors.KindOf(err))
	_, err = f.process.FindReferences(ctx, doc, entity.Position{}, true)
	assert.Equal(t, naverrors.KindCrash, naverrors.KindOf(err))
	_, err = f.process.FindDefinition(ctx, doc, entity.Position{})
	assert.Equal(t, naverrors.KindCrash, naverrors.KindOf(err))
	_, err = f.process.Rename(ctx, doc, entity.Position{}, "x")
	assert.Equal(t, naverrors.KindCrash, naverrors.KindOf(err))
	assert.True(t, naverrors.IsCrash(f.process.NotifyChanged(ctx, doc)))
	assert.True(t, naverrors.IsCrash(f.process.NotifyClosed(ctx, doc.Path)))
}

func TestProcessDocumentSync(t *testing.T) {
	f := newFixture(t, lsptest.Options{}, _fastTimeouts)
	p := f.process
	ctx := context.Background()
	require.NoError(t, p.Start(ctx))

	doc := f.write(t, "main.py", "def foo(): pass\n")

	// The server answers from the synced text rather than the file on disk.
	doc.Text = []byte("def bar(): pass\n")
	raw, err := p.DocumentSymbols(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"bar"}, symbolNames(t, raw))

	doc.Text = []byte("def baz(): pass\n\ndef qux(): pass\n")
	require.NoError(t, p.NotifyChanged(ctx, doc))
	raw, err = p.DocumentSymbols(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"baz", "qux"}, symbolNames(t, raw))

	d := p.current.Load().document(doc.Path)
	assert.Equal(t, int32(2), d.version)

	require.NoError(t, p.NotifyClosed(ctx, doc.Path))
	assert.False(t, d.open)
	require.NoError(t, p.NotifyClosed(ctx, filepath.Join(f.root, "unknown.py")))
}

func TestProcessNavigation(t *testing.T) {
	f := newFixture(t, lsptest.Options{}, _fastTimeouts)
	p := f.process
	ctx := context.Background()
	require.NoError(t, p.Start(ctx))

	main := f.write(t, "main.py", "def helper(x):\n    return x\n\nhelper(1)\n")
	other := f.write(t, "other.py", "from main import helper\n")

	refs, err := p.FindReferences(ctx, main, entity.Position{Line: 0, Character: 5}, false)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, main.Path, refs[0].Path)
	assert.Equal(t, entity.Range{Start: entity.Position{Line: 3}, End: entity.Position{Line: 3, Character: 6}}, refs[0].Range)
	assert.Equal(t, other.Path, refs[1].Path)

	defs, err := p.FindDefinition(ctx, other, entity.Position{Line: 0, Character: 18})
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, main.Path, defs[0].Path)
	assert.Equal(t, entity.Position{Line: 0, Character: 4}, defs[0].Range.Start)

	edit, err := p.Rename(ctx, main, entity.Position{Line: 0, Character: 5}, "assist")
	require.NoError(t, err)
	assert.Len(t, edit.Changes[main.Path], 2)
	assert.Len(t, edit.Changes[other.Path], 1)
	assert.Equal(t, "assist", edit.Changes[other.Path][0].NewText)
}

func TestProcessCrashAndRestart(t *testing.T) {
	counter := filepath.Join(t.TempDir(), "crashes")
	require.NoError(t, os.WriteFile(counter, []byte("1"), 0644))

	f := newFixture(t, lsptest.Options{CrashCounterFile: counter}, _fastTimeouts)
	p := f.process
	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	firstPid := p.Pid()

	doc := f.write(t, "main.py", "def foo(): pass\n")
	doc.Text = []byte("def synced(): pass\n")

	_, err := p.DocumentSymbols(ctx, doc)
	require.Error(t, err)
	assert.True(t, naverrors.IsCrash(err))
	assert.False(t, naverrors.IsFatal(err))

	require.Eventually(t, func() bool { return p.State() == StateCrashed }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return !alive(firstPid) }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, p.Start(ctx))
	assert.NotEqual(t, firstPid, p.Pid())

	// The new instance has no document state, so the file is opened again with the synced text.
	raw, err := p.DocumentSymbols(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"synced"}, symbolNames(t, raw))

	assert.Equal(t, int64(1), f.stats.Snapshot().Counters()["crashes+language=python"].Value())
}

func TestProcessRestart(t *testing.T) {
	f := newFixture(t, lsptest.Options{}, _fastTimeouts)
	p := f.process
	ctx := context.Background()

	require.NoError(t, p.Restart(ctx))
	firstPid := p.Pid()
	require.NotZero(t, firstPid)

	require.NoError(t, p.Restart(ctx))
	assert.Equal(t, StateRunning, p.State())
	assert.NotEqual(t, firstPid, p.Pid())
	assert.False(t, alive(firstPid))
}

func TestProcessRequestTimeout(t *testing.T) {
	timeouts := _fastTimeouts
	timeouts.Request = 200 * time.Millisecond

	f := newFixture(t, lsptest.Options{HangMethod: "textDocument/references"}, timeouts)
	p := f.process
	ctx := context.Background()
	require.NoError(t, p.Start(ctx))

	doc := f.write(t, "main.py", "def foo(): pass\n")
	_, err := p.FindReferences(ctx, doc, entity.Position{Character: 5}, true)
	var timeoutErr *naverrors.TimeoutError
	require.True(t, errors.As(err, &timeoutErr))

	// A timeout does not mean the server is dead.
	assert.Equal(t, StateRunning, p.State())
	raw, err := p.DocumentSymbols(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"foo"}, symbolNames(t, raw))
}

func TestProcessCancelledRequest(t *testing.T) {
	f := newFixture(t, lsptest.Options{HangMethod: "textDocument/definition"}, _fastTimeouts)
	p := f.process
	require.NoError(t, p.Start(context.Background()))

	doc := f.write(t, "main.py", "def foo(): pass\n")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := p.FindDefinition(ctx, doc, entity.Position{Character: 5})
	assert.Equal(t, naverrors.KindTimeout, naverrors.KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateRunning, p.State())
}

func TestProcessForcedShutdown(t *testing.T) {
	timeouts := _fastTimeouts
	timeouts.ShutdownGrace = 200 * time.Millisecond
	timeouts.ForceKill = 200 * time.Millisecond

	f := newFixture(t, lsptest.Options{IgnoreShutdown: true}, timeouts)
	p := f.process
	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	pid := p.Pid()

	start := time.Now()
	require.NoError(t, p.Stop(ctx))
	assert.Equal(t, StateTerminated, p.State())
	assert.False(t, alive(pid))
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
}

func TestProcessStartupFailures(t *testing.T) {
	t.Run("missing binary", func(t *testing.T) {
		p := newProcess(processOptions{
			id:       entity.ServerID{Project: "sample", Language: "python"},
			root:     t.TempDir(),
			desc:     entity.LaunchDescriptor{Command: "/nonexistent/codenav-language-server", Extensions: []string{".py"}},
			timeouts: _fastTimeouts,
			executor: executor.NewExecutor(),
			logger:   zap.NewNop().Sugar(),
			stats:    tally.NoopScope,
		})
		defer p.Stop(context.Background())

		err := p.Start(context.Background())
		assert.Equal(t, naverrors.KindStartup, naverrors.KindOf(err))
		assert.Equal(t, StateCrashed, p.State())
	})

	t.Run("handshake timeout", func(t *testing.T) {
		timeouts := _fastTimeouts
		timeouts.Startup = 200 * time.Millisecond

		f := newFixture(t, lsptest.Options{HangMethod: "initialize"}, timeouts)
		err := f.process.Start(context.Background())
		assert.Equal(t, naverrors.KindStartup, naverrors.KindOf(err))
		var timeoutErr *naverrors.TimeoutError
		assert.True(t, errors.As(err, &timeoutErr))
		assert.Equal(t, StateCrashed, f.process.State())
		assert.Equal(t, 0, f.process.Pid())
	})
}

func TestApplyEdit(t *testing.T) {
	const edit = `{"changes":{"file:///repo/%s":[{"range":{"start":{"line":0,"character":0},"end":{"line":0,"character":3}},"newText":"abc"}]}}`

	tests := []struct {
		name     string
		params   string
		handlers Handlers
		want     mapper.ApplyWorkspaceEditResult
		wantErr  bool
	}{
		{
			name:   "applied",
			params: `{"label":"fix","edit":` + fmt.Sprintf(edit, "main.py") + `}`,
			handlers: Handlers{ApplyEdit: func(ctx context.Context, e entity.WorkspaceEdit) error {
				if len(e.Changes["/repo/main.py"]) != 1 {
					return errors.New("unexpected edit")
				}
				return nil
			}},
			want: mapper.ApplyWorkspaceEditResult{Applied: true},
		},
		{
			name:   "handler failure",
			params: `{"edit":` + fmt.Sprintf(edit, "main.py") + `}`,
			handlers: Handlers{ApplyEdit: func(ctx context.Context, e entity.WorkspaceEdit) error {
				return errors.New("sample")
			}},
			want: mapper.ApplyWorkspaceEditResult{FailureReason: "sample"},
		},
		{
			name:   "no handler",
			params: `{"edit":` + fmt.Sprintf(edit, "main.py") + `}`,
			want:   mapper.ApplyWorkspaceEditResult{FailureReason: "edits are not accepted"},
		},
		{
			name:   "resource operation",
			params: `{"edit":{"documentChanges":[{"kind":"create","uri":"file:///repo/new.py"}]}}`,
			want:   mapper.ApplyWorkspaceEditResult{FailureReason: "unsupported resource operation \"create\""},
		},
		{
			name:    "malformed",
			params:  `[`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &process{processOptions: processOptions{logger: zap.NewNop().Sugar(), handlers: tt.handlers}}
			result, err := p.applyEdit(context.Background(), json.RawMessage(tt.params))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, result)
		})
	}
}

func TestLoadTimeouts(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]interface{}
		want    Timeouts
		wantErr bool
	}{
		{
			name:   "defaults",
			config: map[string]interface{}{},
			want:   Timeouts{Request: 60 * time.Second, Startup: 30 * time.Second, ShutdownGrace: 2 * time.Second, ForceKill: 2 * time.Second},
		},
		{
			name: "configured",
			config: map[string]interface{}{
				"toolTimeoutSeconds":        10,
				"startupTimeoutSeconds":     5,
				"shutdownGraceMilliseconds": 300,
				"forceKillMilliseconds":     100,
			},
			want: Timeouts{Request: 10 * time.Second, Startup: 5 * time.Second, ShutdownGrace: 300 * time.Millisecond, ForceKill: 100 * time.Millisecond},
		},
		{
			name:    "not a number",
			config:  map[string]interface{}{"toolTimeoutSeconds": "soon"},
			wantErr: true,
		},
		{
			name:    "not positive",
			config:  map[string]interface{}{"forceKillMilliseconds": 0},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := config.NewStaticProvider(tt.config)
			require.NoError(t, err)

			got, err := loadTimeouts(provider)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewFactory(t *testing.T) {
	provider, err := config.NewStaticProvider(map[string]interface{}{"toolTimeoutSeconds": 1})
	require.NoError(t, err)

	f, err := NewFactory(Params{
		Config:   provider,
		Executor: executor.NewExecutor(),
		Logger:   zap.NewNop().Sugar(),
		Stats:    tally.NoopScope,
	})
	require.NoError(t, err)

	p := f.New(entity.ServerID{Project: "sample", Language: "go"}, t.TempDir(), entity.LaunchDescriptor{Command: "gopls"}, Handlers{})
	assert.Equal(t, entity.ServerID{Project: "sample", Language: "go"}, p.ID())
	assert.Equal(t, StateNotStarted, p.State())
	assert.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, StateTerminated, p.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Running", StateRunning.String())
	assert.Equal(t, "Crashed", StateCrashed.String())
	assert.Equal(t, "Unknown", State(42).String())
	text, err := StateShuttingDown.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "ShuttingDown", string(text))
}
