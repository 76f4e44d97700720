package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"github.com/uber/codenav/src/codenav/controller/capability"
	languageserver "github.com/uber/codenav/src/codenav/controller/language-server"
	"github.com/uber/codenav/src/codenav/controller/language-server/languageservermock"
	"github.com/uber/codenav/src/codenav/entity"
	"github.com/uber/codenav/src/codenav/internal/clock"
	naverrors "github.com/uber/codenav/src/codenav/internal/errors"
	"github.com/uber/codenav/src/codenav/internal/executor"
	"github.com/uber/codenav/src/codenav/internal/fs"
	"github.com/uber/codenav/src/codenav/internal/lsptest"
	"go.uber.org/config"
	"go.uber.org/fx/fxtest"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	if lsptest.IsHelper() {
		lsptest.Main()
	}
	os.Exit(m.Run())
}

type fixture struct {
	root  string
	orch  Orchestrator
	stats tally.TestScope
	lc    *fxtest.Lifecycle
}

func baseConfig(root string, desc map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"languages": map[string]interface{}{"python": desc},
		"projects": map[string]interface{}{
			"sample": map[string]interface{}{"rootPath": root},
			"frozen": map[string]interface{}{"rootPath": root, "readOnly": true},
		},
		"projectDefaults": map[string]interface{}{"excludedGlobs": []string{"**/.git/**"}},
		"exposure": map[string]interface{}{
			"activeContext": "agent",
			"contexts":      map[string]interface{}{"agent": map[string]interface{}{"name": "agent"}},
			"modes": map[string]interface{}{
				"planning": map[string]interface{}{"name": "planning", "deny": []string{"replace_*"}},
				"editing":  map[string]interface{}{"name": "editing"},
			},
		},
	}
}

func helperDescriptor(opts lsptest.Options) map[string]interface{} {
	cmd, args, env := lsptest.HelperCommand(opts)
	return map[string]interface{}{
		"command":    cmd,
		"args":       args,
		"env":        env,
		"extensions": []string{".py"},
	}
}

func newFixture(t *testing.T, cfg func(root string) map[string]interface{}, factory languageserver.Factory) *fixture {
	t.Helper()
	root := t.TempDir()
	provider, err := config.NewStaticProvider(cfg(root))
	require.NoError(t, err)

	logger := zap.NewNop().Sugar()
	stats := tally.NewTestScope("", nil)
	lc := fxtest.NewLifecycle(t)

	source, err := capability.NewSource(capability.Params{Config: provider, FS: fs.New(), Lifecycle: lc, Logger: logger})
	require.NoError(t, err)

	if factory == nil {
		factory, err = languageserver.NewFactory(languageserver.Params{
			Config:   provider,
			Executor: executor.NewExecutor(),
			Logger:   logger,
			Stats:    stats,
		})
		require.NoError(t, err)
	}

	orch, err := New(Params{
		Config:    provider,
		Source:    source,
		Factory:   factory,
		FS:        fs.New(),
		Clock:     clock.New(),
		Stats:     stats,
		Logger:    logger,
		Lifecycle: lc,
	})
	require.NoError(t, err)

	lc.RequireStart()
	t.Cleanup(func() { lc.RequireStop() })
	return &fixture{root: root, orch: orch, stats: stats, lc: lc}
}

func (f *fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.root, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func names(symbols []entity.Symbol) []string {
	var out []string
	for _, s := range symbols {
		out = append(out, s.Name)
	}
	return out
}

func withHelper(opts lsptest.Options) func(string) map[string]interface{} {
	return func(root string) map[string]interface{} {
		return baseConfig(root, helperDescriptor(opts))
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     map[string]interface{}
		wantErr string
	}{
		{
			name:    "language without command",
			cfg:     map[string]interface{}{"languages": map[string]interface{}{"go": map[string]interface{}{"extensions": []string{".go"}}}},
			wantErr: `language "go": command is required`,
		},
		{
			name:    "relative project root",
			cfg:     map[string]interface{}{"projects": map[string]interface{}{"demo": map[string]interface{}{"rootPath": "demo"}}},
			wantErr: `project "demo": project rootPath must be absolute`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := config.NewStaticProvider(tt.cfg)
			require.NoError(t, err)
			lc := fxtest.NewLifecycle(t)
			source, err := capability.NewSource(capability.Params{Config: provider, FS: fs.New(), Lifecycle: lc, Logger: zap.NewNop().Sugar()})
			require.NoError(t, err)

			_, err = New(Params{Config: provider, Source: source, FS: fs.New(), Clock: clock.New(), Stats: tally.NoopScope, Logger: zap.NewNop().Sugar(), Lifecycle: lc})
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestActivate(t *testing.T) {
	f := newFixture(t, withHelper(lsptest.Options{}), nil)
	ctx := context.Background()

	assert.Nil(t, f.orch.Active())
	assert.False(t, f.orch.ExposureState().ProjectActive)

	var notified int
	f.orch.Subscribe(func() error { notified++; return nil })

	p, err := f.orch.Activate(ctx, "sample")
	require.NoError(t, err)
	assert.Equal(t, "sample", p.Name())
	assert.Equal(t, 1, notified)
	assert.Equal(t, []string{"**/.git/**"}, p.Config().ExcludedGlobs)

	same, err := f.orch.Activate(ctx, "sample")
	require.NoError(t, err)
	assert.Same(t, p, same)
	assert.Equal(t, 1, notified, "re-activating the active project is a no-op")

	frozen, err := f.orch.Activate(ctx, "frozen")
	require.NoError(t, err)
	assert.True(t, f.orch.ExposureState().ReadOnly)
	assert.Equal(t, 2, notified)

	byPath, err := f.orch.Activate(ctx, t.TempDir())
	require.NoError(t, err)
	assert.NotEqual(t, frozen.Root(), byPath.Root())
	assert.False(t, f.orch.ExposureState().ReadOnly)

	_, err = f.orch.Activate(ctx, "unknown")
	assert.ErrorContains(t, err, `"unknown" is neither a configured project ([frozen sample])`)

	assert.Equal(t, float64(1), f.stats.Snapshot().Gauges()["orchestrator.active_projects+"].Value())
	require.NoError(t, f.orch.Deactivate(ctx))
	assert.Nil(t, f.orch.Active())
	assert.Equal(t, float64(0), f.stats.Snapshot().Gauges()["orchestrator.active_projects+"].Value())
}

func TestActivateRejectedKeepsPrevious(t *testing.T) {
	f := newFixture(t, withHelper(lsptest.Options{}), nil)
	ctx := context.Background()

	rejection := errors.New("refresh failed")
	unsubscribe := f.orch.Subscribe(func() error {
		if f.orch.ExposureState().ReadOnly {
			return rejection
		}
		return nil
	})
	defer unsubscribe()

	sample, err := f.orch.Activate(ctx, "sample")
	require.NoError(t, err)
	path := f.write(t, "main.py", "def foo(): pass\n")
	_, _, err = f.orch.Symbols(ctx, path)
	require.NoError(t, err)

	frozen, err := f.orch.Activate(ctx, "frozen")
	assert.ErrorIs(t, err, rejection)
	assert.Nil(t, frozen)
	assert.Same(t, sample, f.orch.Active())
	assert.False(t, f.orch.ExposureState().ReadOnly)
	assert.Equal(t, "sample", f.orch.Snapshot().Project.Name)

	// The previous project was not closed by the rejected activation.
	_, symbols, err := f.orch.Symbols(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"foo"}, names(symbols))
	assert.Equal(t, float64(1), f.stats.Snapshot().Gauges()["orchestrator.active_projects+"].Value())
}

func TestActivateRejectedWithoutPrevious(t *testing.T) {
	f := newFixture(t, withHelper(lsptest.Options{}), nil)

	rejection := errors.New("refresh failed")
	f.orch.Subscribe(func() error { return rejection })

	_, err := f.orch.Activate(context.Background(), "sample")
	assert.ErrorIs(t, err, rejection)
	assert.Nil(t, f.orch.Active())
	assert.False(t, f.orch.ExposureState().ProjectActive)
	assert.Nil(t, f.orch.Snapshot().Project)
}

func TestExposureReload(t *testing.T) {
	f := newFixture(t, withHelper(lsptest.Options{}), nil)
	o := f.orch.(*orchestrator)
	require.NoError(t, f.orch.SetModes([]string{"editing"}))

	rejection := errors.New("refresh failed")
	unsubscribe := f.orch.Subscribe(func() error { return rejection })
	o.exposureChanged(entity.ExposureConfig{ActiveContext: "desktop", ActiveModes: []string{"planning"}})
	assert.Equal(t, "agent", f.orch.ExposureState().Context, "rejected context is rolled back")
	assert.Equal(t, []string{"editing"}, f.orch.ExposureState().Modes, "rejected modes are rolled back")
	assert.Equal(t, "agent", f.orch.Snapshot().Context)
	assert.Equal(t, []string{"editing"}, f.orch.Snapshot().Modes)

	unsubscribe()
	o.exposureChanged(entity.ExposureConfig{ActiveContext: "desktop", ActiveModes: []string{"planning"}})
	assert.Equal(t, "desktop", f.orch.ExposureState().Context)
	assert.Equal(t, []string{"planning"}, f.orch.ExposureState().Modes)

	// An empty context and nil modes leave the current values in place.
	o.exposureChanged(entity.ExposureConfig{})
	assert.Equal(t, "desktop", f.orch.ExposureState().Context)
	assert.Equal(t, []string{"planning"}, f.orch.ExposureState().Modes)
}

func TestSetModes(t *testing.T) {
	f := newFixture(t, withHelper(lsptest.Options{}), nil)

	require.NoError(t, f.orch.SetModes([]string{"planning", "planning", "editing"}))
	assert.Equal(t, []string{"planning", "editing"}, f.orch.ExposureState().Modes)
	assert.Equal(t, "agent", f.orch.ExposureState().Context)

	err := f.orch.SetModes([]string{"editing", "interactive"})
	assert.Equal(t, naverrors.KindConfigResolution, naverrors.KindOf(err))
	assert.ErrorContains(t, err, `mode "interactive" is not defined`)

	rejection := errors.New("refresh failed")
	unsubscribe := f.orch.Subscribe(func() error { return rejection })
	assert.ErrorIs(t, f.orch.SetModes([]string{"editing"}), rejection)
	assert.Equal(t, []string{"planning", "editing"}, f.orch.ExposureState().Modes, "rejected modes are rolled back")

	unsubscribe()
	require.NoError(t, f.orch.SetModes(nil))
	assert.Empty(t, f.orch.ExposureState().Modes)
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t, withHelper(lsptest.Options{}), nil)
	ctx := context.Background()
	f.orch.SetExposedTools([]string{"find_symbol", "read_file"})

	snap := f.orch.Snapshot()
	assert.Equal(t, f.orch.SessionID().String(), snap.SessionID)
	assert.Nil(t, snap.Project)
	assert.Equal(t, []string{"frozen", "sample"}, snap.ConfiguredProjects)
	assert.Equal(t, []string{"python"}, snap.Languages)
	assert.Equal(t, []string{"find_symbol", "read_file"}, snap.Tools)

	_, err := f.orch.Activate(ctx, "sample")
	require.NoError(t, err)
	path := f.write(t, "main.py", "def foo(): pass\n")
	_, _, err = f.orch.Symbols(ctx, path)
	require.NoError(t, err)

	snap = f.orch.Snapshot()
	require.NotNil(t, snap.Project)
	assert.Equal(t, "sample", snap.Project.Name)
	assert.Equal(t, map[string]string{"python": "Running"}, snap.Servers)
}

func TestRequiresActiveProject(t *testing.T) {
	f := newFixture(t, withHelper(lsptest.Options{}), nil)
	ctx := context.Background()

	_, _, err := f.orch.Symbols(ctx, "main.py")
	assert.Equal(t, naverrors.KindProjectNotActive, naverrors.KindOf(err))
	_, err = f.orch.ApplyEdits(ctx, entity.WorkspaceEdit{})
	assert.Equal(t, naverrors.KindProjectNotActive, naverrors.KindOf(err))
	_, err = f.orch.RestartServers(ctx, "")
	assert.Equal(t, naverrors.KindProjectNotActive, naverrors.KindOf(err))
}

func TestSymbolsCacheCoherence(t *testing.T) {
	f := newFixture(t, withHelper(lsptest.Options{}), nil)
	ctx := context.Background()
	p, err := f.orch.Activate(ctx, "sample")
	require.NoError(t, err)

	path := f.write(t, "main.py", "def foo(): pass\n")
	doc, symbols, err := f.orch.Symbols(ctx, "main.py")
	require.NoError(t, err)
	assert.Equal(t, path, doc.Path)
	assert.Equal(t, []string{"foo"}, names(symbols))

	server := p.Servers()["python"]
	requests := server.Requests()
	_, symbols, err = f.orch.Symbols(ctx, "main.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"foo"}, names(symbols))
	assert.Equal(t, requests, server.Requests(), "unchanged content is served from the cache")

	updated := []byte("def foo(): pass\n\ndef bar(): pass\n")
	require.NoError(t, os.WriteFile(path, updated, 0o644))
	_, symbols, err = f.orch.Symbols(ctx, "main.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"foo", "bar"}, names(symbols), "an external change is never served stale")

	counters := f.stats.Snapshot().Counters()
	assert.Equal(t, int64(1), counters["symbol_cache.hits+"].Value())
	assert.Equal(t, int64(2), counters["symbol_cache.misses+"].Value())

	_, _, err = f.orch.Symbols(ctx, "../outside.py")
	var outside *naverrors.PathOutsideProjectError
	assert.ErrorAs(t, err, &outside)

	f.write(t, "README.md", "# sample\n")
	_, _, err = f.orch.Symbols(ctx, "README.md")
	var unsupported *naverrors.UnsupportedLanguageError
	assert.ErrorAs(t, err, &unsupported)
}

func TestApplyEdits(t *testing.T) {
	f := newFixture(t, withHelper(lsptest.Options{}), nil)
	ctx := context.Background()
	_, err := f.orch.Activate(ctx, "sample")
	require.NoError(t, err)

	mainPath := f.write(t, "main.py", "def foo(): pass\n")
	utilPath := f.write(t, "util.py", "from main import foo\nfoo()\n")
	_, symbols, err := f.orch.Symbols(ctx, mainPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"foo"}, names(symbols))

	rename := func(line, char int) entity.TextEdit {
		return entity.TextEdit{
			Range:   entity.Range{Start: entity.Position{Line: line, Character: char}, End: entity.Position{Line: line, Character: char + 3}},
			NewText: "baz",
		}
	}
	changes, err := f.orch.ApplyEdits(ctx, entity.WorkspaceEdit{Changes: map[string][]entity.TextEdit{
		utilPath: {rename(0, 17), rename(1, 0)},
		mainPath: {rename(0, 4)},
	}})
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, mainPath, changes[0].Path)
	assert.Equal(t, "def foo(): pass\n", string(changes[0].Before))

	data, err := os.ReadFile(utilPath)
	require.NoError(t, err)
	assert.Equal(t, "from main import baz\nbaz()\n", string(data))

	_, symbols, err = f.orch.Symbols(ctx, mainPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"baz"}, names(symbols))

	_, err = f.orch.ApplyEdits(ctx, entity.WorkspaceEdit{Changes: map[string][]entity.TextEdit{
		mainPath: {rename(0, 4)},
		utilPath: {rename(9, 0)},
	}})
	require.Error(t, err)
	data, err = os.ReadFile(mainPath)
	require.NoError(t, err)
	assert.Equal(t, "def baz(): pass\n", string(data), "nothing is written when an edit is invalid")
}

func TestApplyEditsReadOnly(t *testing.T) {
	f := newFixture(t, withHelper(lsptest.Options{}), nil)
	_, err := f.orch.Activate(context.Background(), "frozen")
	require.NoError(t, err)

	_, err = f.orch.ApplyEdits(context.Background(), entity.WorkspaceEdit{})
	assert.ErrorContains(t, err, `project "frozen" is read-only`)
}

func TestCrashRecovery(t *testing.T) {
	counter := filepath.Join(t.TempDir(), "crashes")
	require.NoError(t, os.WriteFile(counter, []byte("1"), 0o644))

	f := newFixture(t, withHelper(lsptest.Options{CrashCounterFile: counter}), nil)
	ctx := context.Background()
	p, err := f.orch.Activate(ctx, "sample")
	require.NoError(t, err)
	f.write(t, "main.py", "def foo(): pass\n")

	_, symbols, err := f.orch.Symbols(ctx, "main.py")
	require.NoError(t, err, "one crash is hidden by a restart and a retry")
	assert.Equal(t, []string{"foo"}, names(symbols))
	assert.Equal(t, languageserver.StateRunning, p.Servers()["python"].State())
	assert.Equal(t, int64(1), f.stats.Snapshot().Counters()["orchestrator.restarts+language=python"].Value())
}

func TestCrashTwiceIsFatal(t *testing.T) {
	counter := filepath.Join(t.TempDir(), "crashes")
	require.NoError(t, os.WriteFile(counter, []byte("2"), 0o644))

	f := newFixture(t, withHelper(lsptest.Options{CrashCounterFile: counter}), nil)
	ctx := context.Background()
	_, err := f.orch.Activate(ctx, "sample")
	require.NoError(t, err)
	f.write(t, "main.py", "def foo(): pass\n")

	_, _, err = f.orch.Symbols(ctx, "main.py")
	require.Error(t, err)
	assert.True(t, naverrors.IsFatal(err))
	assert.Equal(t, naverrors.KindCrash, naverrors.KindOf(err))

	_, symbols, err := f.orch.Symbols(ctx, "main.py")
	require.NoError(t, err, "a later call restarts the server again")
	assert.Equal(t, []string{"foo"}, names(symbols))
}

func TestShutdownTerminatesServers(t *testing.T) {
	f := newFixture(t, withHelper(lsptest.Options{}), nil)
	ctx := context.Background()
	p, err := f.orch.Activate(ctx, "sample")
	require.NoError(t, err)
	f.write(t, "main.py", "def foo(): pass\n")
	_, _, err = f.orch.Symbols(ctx, "main.py")
	require.NoError(t, err)

	pid := p.Servers()["python"].Pid()
	require.NotZero(t, pid)

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, f.orch.Shutdown(shutdownCtx))
	require.Eventually(t, func() bool {
		return errors.Is(syscall.Kill(pid, 0), syscall.ESRCH)
	}, 5*time.Second, 50*time.Millisecond, "language server %d is still alive", pid)

	_, err = f.orch.Activate(ctx, "sample")
	assert.Equal(t, naverrors.KindShuttingDown, naverrors.KindOf(err))
	assert.NoError(t, f.orch.Shutdown(ctx), "shutdown is idempotent")
}

func TestRestartServers(t *testing.T) {
	f := newFixture(t, withHelper(lsptest.Options{}), nil)
	ctx := context.Background()
	p, err := f.orch.Activate(ctx, "sample")
	require.NoError(t, err)

	ids, err := f.orch.RestartServers(ctx, "python")
	require.NoError(t, err)
	assert.Equal(t, []entity.ServerID{{Project: "sample", Language: "python"}}, ids)
	firstPid := p.Servers()["python"].Pid()

	ids, err = f.orch.RestartServers(ctx, "")
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	assert.NotEqual(t, firstPid, p.Servers()["python"].Pid())

	_, err = f.orch.RestartServers(ctx, "rust")
	assert.ErrorContains(t, err, `language "rust" is not configured`)
}

func TestWithServerRestartPolicy(t *testing.T) {
	crash := &naverrors.CrashError{Server: "sample/python"}
	id := entity.ServerID{Project: "sample", Language: "python"}

	tests := []struct {
		name       string
		initial    languageserver.State
		results    []error
		restartErr error
		wantCalls  int
		wantFatal  bool
		wantReason string
	}{
		{name: "success", initial: languageserver.StateRunning, results: []error{nil}, wantCalls: 1},
		{name: "tool error is not retried", initial: languageserver.StateRunning, results: []error{errors.New("bad symbol")}, wantCalls: 1, wantReason: "bad symbol"},
		{name: "crash then success", initial: languageserver.StateRunning, results: []error{crash, nil}, wantCalls: 2},
		{name: "crash twice", initial: languageserver.StateRunning, results: []error{crash, crash}, wantCalls: 2, wantFatal: true},
		{name: "restart fails", initial: languageserver.StateRunning, results: []error{crash}, restartErr: errors.New("exec failed"), wantCalls: 1, wantFatal: true},
		{name: "crashed before the call", initial: languageserver.StateCrashed, results: []error{nil}, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			factory := languageservermock.NewMockFactory(ctrl)
			server := languageservermock.NewMockProcess(ctrl)
			state := tt.initial

			factory.EXPECT().New(id, gomock.Any(), gomock.Any(), gomock.Any()).Return(server)
			server.EXPECT().ID().Return(id).AnyTimes()
			server.EXPECT().State().DoAndReturn(func() languageserver.State { return state }).AnyTimes()
			server.EXPECT().Restart(gomock.Any()).DoAndReturn(func(context.Context) error {
				if tt.restartErr == nil {
					state = languageserver.StateRunning
				}
				return tt.restartErr
			}).MaxTimes(1)
			server.EXPECT().Stop(gomock.Any()).Return(nil).AnyTimes()

			f := newFixture(t, func(root string) map[string]interface{} {
				return baseConfig(root, map[string]interface{}{"command": "pylsp", "extensions": []string{".py"}})
			}, factory)
			_, err := f.orch.Activate(context.Background(), "sample")
			require.NoError(t, err)

			calls := 0
			err = f.orch.WithServer(context.Background(), filepath.Join(f.root, "main.py"), func(context.Context, languageserver.Process) error {
				result := tt.results[calls]
				calls++
				return result
			})

			assert.Equal(t, tt.wantCalls, calls)
			switch {
			case tt.wantFatal:
				assert.True(t, naverrors.IsFatal(err))
			case tt.wantReason != "":
				assert.EqualError(t, err, tt.wantReason)
			default:
				assert.NoError(t, err)
			}
		})
	}
}
