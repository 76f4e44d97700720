// Package orchestrator owns the session: the active project, the active context and modes, and the
// language server restart policy every tool goes through.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/uber-go/tally"
	"github.com/uber/codenav/src/codenav/controller/capability"
	languageserver "github.com/uber/codenav/src/codenav/controller/language-server"
	"github.com/uber/codenav/src/codenav/controller/project"
	"github.com/uber/codenav/src/codenav/entity"
	"github.com/uber/codenav/src/codenav/internal/clock"
	naverrors "github.com/uber/codenav/src/codenav/internal/errors"
	"github.com/uber/codenav/src/codenav/internal/fs"
	"github.com/uber/codenav/src/codenav/internal/textedit"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	_configKeyLanguages       = "languages"
	_configKeyProjects        = "projects"
	_configKeyProjectDefaults = "projectDefaults"
	_configKeyActiveProject   = "activeProject"
)

// Module provides the Orchestrator.
var Module = fx.Provide(New)

// ServerFunc is run against a Running language server.
type ServerFunc func(ctx context.Context, server languageserver.Process) error

// Orchestrator is the only mutator of session state. Tools reach language servers exclusively through it.
type Orchestrator interface {
	SessionID() uuid.UUID

	// Activate makes the project with the configured name, or rooted at the given absolute path, the active one.
	// The previously active project is closed once the new tool set is accepted; if it is rejected,
	// the previous project stays active and the error is returned.
	Activate(ctx context.Context, nameOrPath string) (*project.Project, error)
	// Deactivate closes the active project, if any.
	Deactivate(ctx context.Context) error
	// Active returns the active project, or nil.
	Active() *project.Project
	// ConfiguredProjects returns the sorted names of the projects in configuration.
	ConfiguredProjects() []string

	// ExposureState returns the session state that feeds tool resolution.
	ExposureState() entity.ExposureState
	// SetModes replaces the active modes. If a subscriber rejects the change, the previous modes are restored.
	SetModes(modes []string) error
	// SetExposedTools records the currently published tool names.
	SetExposedTools(names []string)
	// Subscribe registers fn to run after the resolution inputs change.
	Subscribe(fn func() error) (unsubscribe func())
	Snapshot() Snapshot

	// WithServer runs fn against the language server for path, restarting a crashed server once and retrying once.
	WithServer(ctx context.Context, path string, fn ServerFunc) error
	// Symbols returns the document at path and its symbol tree, served from the symbol cache when the content is unchanged.
	Symbols(ctx context.Context, path string) (entity.Document, []entity.Symbol, error)
	// ApplyEdits writes every edit to disk and notifies the affected servers. Nothing is written when any edit is invalid.
	ApplyEdits(ctx context.Context, edit entity.WorkspaceEdit) ([]FileChange, error)
	// NotifyWritten tells the server of path about new content and drops cached symbols of the file.
	NotifyWritten(ctx context.Context, path string, data []byte) error
	// RestartServers restarts the servers of language, or every started server when language is empty.
	RestartServers(ctx context.Context, language entity.LanguageID) ([]entity.ServerID, error)

	// Shutdown closes the active project. Later activations fail.
	Shutdown(ctx context.Context) error
}

// FileChange is the result of applying edits to one file.
type FileChange struct {
	Path   string
	Before []byte
	After  []byte
}

// Snapshot describes the session for reporting.
type Snapshot struct {
	SessionID          string            `json:"sessionId"`
	Project            *ProjectSnapshot  `json:"project,omitempty"`
	Context            string            `json:"context"`
	Modes              []string          `json:"modes"`
	Tools              []string          `json:"tools"`
	ConfiguredProjects []string          `json:"configuredProjects"`
	Languages          []string          `json:"languages"`
	Servers            map[string]string `json:"servers,omitempty"`
}

// ProjectSnapshot describes the active project.
type ProjectSnapshot struct {
	Name     string `json:"name"`
	RootPath string `json:"rootPath"`
	ReadOnly bool   `json:"readOnly"`
}

// Params are inbound parameters to create an Orchestrator.
type Params struct {
	fx.In

	Config    config.Provider
	Source    capability.Source
	Factory   languageserver.Factory
	FS        fs.FS
	Clock     clock.Clock
	Stats     tally.Scope
	Logger    *zap.SugaredLogger
	Lifecycle fx.Lifecycle
}

type orchestrator struct {
	sessionID uuid.UUID
	languages entity.Languages
	projects  map[string]entity.ProjectConfig
	defaults  entity.ProjectConfig
	source    capability.Source
	factory   languageserver.Factory
	fs        fs.FS
	clock     clock.Clock
	scope     tally.Scope
	stats     tally.Scope
	logger    *zap.SugaredLogger

	// activation serializes project switches.
	activation sync.Mutex

	mu          sync.RWMutex
	active      *project.Project
	activeCtx   string
	modes       []string
	exposed     []string
	closed      bool
	subscribers map[int]func() error
	nextID      int
}

// New creates the Orchestrator from configuration. The configured active project is activated on start.
func New(p Params) (Orchestrator, error) {
	languages := entity.Languages{}
	if err := p.Config.Get(_configKeyLanguages).Populate(&languages); err != nil {
		return nil, fmt.Errorf("loading languages: %w", err)
	}
	for id, desc := range languages {
		if err := desc.Validate(id); err != nil {
			return nil, err
		}
	}

	projects := map[string]entity.ProjectConfig{}
	if err := p.Config.Get(_configKeyProjects).Populate(&projects); err != nil {
		return nil, fmt.Errorf("loading projects: %w", err)
	}
	var defaults entity.ProjectConfig
	if err := p.Config.Get(_configKeyProjectDefaults).Populate(&defaults); err != nil {
		return nil, fmt.Errorf("loading project defaults: %w", err)
	}
	for name, cfg := range projects {
		if cfg.Name == "" {
			cfg.Name = name
		}
		cfg = cfg.WithDefaults(defaults)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("project %q: %w", name, err)
		}
		projects[name] = cfg
	}

	var activeProject string
	if err := p.Config.Get(_configKeyActiveProject).Populate(&activeProject); err != nil {
		return nil, fmt.Errorf("loading active project: %w", err)
	}

	sessionID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("creating session id: %w", err)
	}

	exposure := p.Source.Exposure()
	o := &orchestrator{
		sessionID:   sessionID,
		languages:   languages,
		projects:    projects,
		defaults:    defaults,
		source:      p.Source,
		factory:     p.Factory,
		fs:          p.FS,
		clock:       p.Clock,
		scope:       p.Stats,
		stats:       p.Stats.SubScope("orchestrator"),
		logger:      p.Logger.With("component", "orchestrator", "session", sessionID.String()),
		activeCtx:   exposure.ActiveContext,
		modes:       exposure.ActiveModes,
		subscribers: make(map[int]func() error),
	}
	o.stats.Gauge("active_projects").Update(0)

	var unsubscribe func()
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			unsubscribe = p.Source.Subscribe(o.exposureChanged)
			if activeProject == "" {
				return nil
			}
			_, err := o.Activate(ctx, activeProject)
			return err
		},
		OnStop: func(ctx context.Context) error {
			if unsubscribe != nil {
				unsubscribe()
			}
			return o.Shutdown(ctx)
		},
	})
	return o, nil
}

func (o *orchestrator) SessionID() uuid.UUID { return o.sessionID }

func (o *orchestrator) Activate(ctx context.Context, nameOrPath string) (*project.Project, error) {
	cfg, err := o.projectConfig(nameOrPath)
	if err != nil {
		return nil, err
	}

	o.activation.Lock()
	defer o.activation.Unlock()

	o.mu.RLock()
	current, closed := o.active, o.closed
	o.mu.RUnlock()
	if closed {
		return nil, &naverrors.ShuttingDownError{}
	}
	if current != nil && current.Root() == cfg.RootPath && current.Name() == cfg.Name {
		return current, nil
	}

	p, err := project.New(cfg, project.Deps{
		Languages: o.languages,
		Factory:   o.factory,
		Handlers:  languageserver.Handlers{ApplyEdit: o.applyServerEdit},
		FS:        o.fs,
		Clock:     o.clock,
		Stats:     o.scope,
		Logger:    o.logger,
	})
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.active = p
	o.mu.Unlock()

	// A rejected tool set puts the previous project back; it is closed only once p is accepted.
	if err := o.notify(); err != nil {
		o.mu.Lock()
		o.active = current
		o.mu.Unlock()
		if closeErr := p.Close(ctx); closeErr != nil {
			o.logger.Warnw("closing rejected project", "project", cfg.Name, zap.Error(closeErr))
		}
		if restoreErr := o.notify(); restoreErr != nil {
			o.logger.Warnw("restoring previous tool set", zap.Error(restoreErr))
		}
		o.logger.Warnw("project activation rejected", "project", cfg.Name, zap.Error(err))
		return nil, err
	}

	if current != nil {
		if err := current.Close(ctx); err != nil {
			o.logger.Warnw("closing previous project", "project", current.Name(), zap.Error(err))
		}
	}
	o.stats.Gauge("active_projects").Update(1)
	o.logger.Infow("project activated", "project", cfg.Name, "root", cfg.RootPath)
	return p, nil
}

// projectConfig looks nameOrPath up among the configured projects, by name and then by root.
// An unconfigured absolute path becomes a project with the default settings.
func (o *orchestrator) projectConfig(nameOrPath string) (entity.ProjectConfig, error) {
	if cfg, ok := o.projects[nameOrPath]; ok {
		return cfg, nil
	}
	if !filepath.IsAbs(nameOrPath) {
		return entity.ProjectConfig{}, naverrors.ToolError("activate_project",
			"%q is neither a configured project (%v) nor an absolute path", nameOrPath, o.ConfiguredProjects())
	}

	root := filepath.Clean(nameOrPath)
	for _, cfg := range o.projects {
		if cfg.RootPath == root {
			return cfg, nil
		}
	}
	return entity.ProjectConfig{RootPath: root}.WithDefaults(o.defaults), nil
}

func (o *orchestrator) Deactivate(ctx context.Context) error {
	o.activation.Lock()
	defer o.activation.Unlock()

	o.mu.Lock()
	current := o.active
	o.active = nil
	o.mu.Unlock()
	if current == nil {
		return nil
	}

	err := current.Close(ctx)
	o.stats.Gauge("active_projects").Update(0)
	o.logger.Infow("project deactivated", "project", current.Name())
	return multierr.Append(err, o.notify())
}

func (o *orchestrator) Active() *project.Project {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.active
}

func (o *orchestrator) ConfiguredProjects() []string {
	names := make([]string, 0, len(o.projects))
	for name := range o.projects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (o *orchestrator) ExposureState() entity.ExposureState {
	o.mu.RLock()
	defer o.mu.RUnlock()

	state := entity.ExposureState{
		Context: o.activeCtx,
		Modes:   append([]string(nil), o.modes...),
	}
	if o.active != nil {
		state.ProjectActive = true
		state.ReadOnly = o.active.ReadOnly()
	}
	return state
}

func (o *orchestrator) SetModes(modes []string) error {
	defined := o.source.Exposure().Modes
	var errs error
	seen := make(map[string]struct{}, len(modes))
	deduped := make([]string, 0, len(modes))
	for _, m := range modes {
		if _, ok := defined[m]; !ok {
			errs = multierr.Append(errs, fmt.Errorf("mode %q is not defined", m))
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		deduped = append(deduped, m)
	}
	if err := naverrors.NewConfigResolutionError(errs); err != nil {
		return err
	}

	o.mu.Lock()
	previous := o.modes
	o.modes = deduped
	o.mu.Unlock()

	if err := o.notify(); err != nil {
		o.mu.Lock()
		o.modes = previous
		o.mu.Unlock()
		return err
	}
	o.logger.Infow("modes changed", "modes", deduped)
	return nil
}

func (o *orchestrator) SetExposedTools(names []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.exposed = append([]string(nil), names...)
}

func (o *orchestrator) Subscribe(fn func() error) func() {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextID
	o.nextID++
	o.subscribers[id] = fn
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.subscribers, id)
	}
}

// notify runs every subscriber in registration order and combines their errors.
func (o *orchestrator) notify() error {
	o.mu.RLock()
	ids := make([]int, 0, len(o.subscribers))
	for id := range o.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func() error, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, o.subscribers[id])
	}
	o.mu.RUnlock()

	var errs error
	for _, fn := range fns {
		errs = multierr.Append(errs, fn())
	}
	return errs
}

// exposureChanged adopts the active context and modes of a reloaded configuration.
// A rejected reload restores the previous context and modes.
func (o *orchestrator) exposureChanged(cfg entity.ExposureConfig) {
	o.mu.Lock()
	previousCtx, previousModes := o.activeCtx, o.modes
	if cfg.ActiveContext != "" {
		o.activeCtx = cfg.ActiveContext
	}
	if cfg.ActiveModes != nil {
		o.modes = append([]string(nil), cfg.ActiveModes...)
	}
	o.mu.Unlock()

	if err := o.notify(); err != nil {
		o.mu.Lock()
		o.activeCtx, o.modes = previousCtx, previousModes
		o.mu.Unlock()
		o.logger.Warnw("exposure reload rejected, keeping the previous tool set", zap.Error(err))
	}
}

func (o *orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	active := o.active
	snap := Snapshot{
		SessionID:          o.sessionID.String(),
		Context:            o.activeCtx,
		Modes:              append([]string{}, o.modes...),
		Tools:              append([]string{}, o.exposed...),
		ConfiguredProjects: o.ConfiguredProjects(),
	}
	o.mu.RUnlock()

	for id := range o.languages {
		snap.Languages = append(snap.Languages, string(id))
	}
	sort.Strings(snap.Languages)

	if active != nil {
		cfg := active.Config()
		snap.Project = &ProjectSnapshot{Name: cfg.Name, RootPath: cfg.RootPath, ReadOnly: cfg.ReadOnly}
		snap.Servers = make(map[string]string)
		for lang, server := range active.Servers() {
			snap.Servers[string(lang)] = server.State().String()
		}
	}
	return snap
}

// requireActive returns the active project or a ProjectNotActiveError.
func (o *orchestrator) requireActive() (*project.Project, error) {
	p := o.Active()
	if p == nil {
		return nil, &naverrors.ProjectNotActiveError{}
	}
	return p, nil
}

func (o *orchestrator) WithServer(ctx context.Context, path string, fn ServerFunc) error {
	p, err := o.requireActive()
	if err != nil {
		return err
	}
	lang, ok := p.LanguageFor(path)
	if !ok {
		return &naverrors.UnsupportedLanguageError{Path: path}
	}

	server, err := p.Server(ctx, lang)
	if err != nil {
		return err
	}

	err = runOnServer(ctx, server, fn)
	if !naverrors.IsCrash(err) {
		return err
	}

	id := server.ID().String()
	o.logger.Warnw("language server crashed, restarting", "server", id, zap.Error(err))
	o.stats.Tagged(map[string]string{"language": string(lang)}).Counter("restarts").Inc(1)
	if restartErr := server.Restart(ctx); restartErr != nil {
		return &naverrors.CrashError{Server: id, Err: restartErr, Fatal: true}
	}

	err = runOnServer(ctx, server, fn)
	if naverrors.IsCrash(err) {
		return &naverrors.CrashError{Server: id, Err: err, Fatal: true}
	}
	return err
}

func runOnServer(ctx context.Context, server languageserver.Process, fn ServerFunc) error {
	if server.State() == languageserver.StateCrashed {
		return &naverrors.CrashError{Server: server.ID().String()}
	}
	return fn(ctx, server)
}

func (o *orchestrator) Symbols(ctx context.Context, path string) (entity.Document, []entity.Symbol, error) {
	p, err := o.requireActive()
	if err != nil {
		return entity.Document{}, nil, err
	}
	abs, err := p.Resolve(path)
	if err != nil {
		return entity.Document{}, nil, err
	}
	lang, ok := p.LanguageFor(abs)
	if !ok {
		return entity.Document{}, nil, &naverrors.UnsupportedLanguageError{Path: abs}
	}
	doc, err := p.ReadDocument(abs)
	if err != nil {
		return entity.Document{}, nil, err
	}

	var symbols []entity.Symbol
	err = o.WithServer(ctx, abs, func(ctx context.Context, server languageserver.Process) error {
		var loadErr error
		symbols, loadErr = p.Cache(lang).Get(ctx, doc, func(ctx context.Context) (json.RawMessage, error) {
			return server.DocumentSymbols(ctx, doc)
		})
		return loadErr
	})
	if err != nil {
		return entity.Document{}, nil, err
	}
	return doc, symbols, nil
}

func (o *orchestrator) ApplyEdits(ctx context.Context, edit entity.WorkspaceEdit) ([]FileChange, error) {
	p, err := o.requireActive()
	if err != nil {
		return nil, err
	}
	if p.ReadOnly() {
		return nil, naverrors.ToolError("apply_edits", "project %q is read-only", p.Name())
	}

	paths := make([]string, 0, len(edit.Changes))
	for path := range edit.Changes {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	changes := make([]FileChange, 0, len(paths))
	for _, path := range paths {
		abs, err := p.Resolve(path)
		if err != nil {
			return nil, err
		}
		before, err := o.fs.ReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", abs, err)
		}
		after, err := textedit.Apply(before, edit.Changes[path])
		if err != nil {
			return nil, fmt.Errorf("applying edits to %q: %w", abs, err)
		}
		changes = append(changes, FileChange{Path: abs, Before: before, After: after})
	}

	for _, change := range changes {
		if err := o.fs.WriteFile(change.Path, change.After); err != nil {
			return nil, fmt.Errorf("writing %q: %w", change.Path, err)
		}
	}
	var errs error
	for _, change := range changes {
		errs = multierr.Append(errs, o.NotifyWritten(ctx, change.Path, change.After))
	}
	o.logger.Infow("applied edits", "files", len(changes))
	return changes, errs
}

// applyServerEdit serves workspace/applyEdit requests from language servers.
func (o *orchestrator) applyServerEdit(ctx context.Context, edit entity.WorkspaceEdit) error {
	_, err := o.ApplyEdits(ctx, edit)
	return err
}

func (o *orchestrator) NotifyWritten(ctx context.Context, path string, data []byte) error {
	p, err := o.requireActive()
	if err != nil {
		return err
	}
	lang, ok := p.LanguageFor(path)
	if !ok {
		return nil
	}
	p.Cache(lang).Invalidate(path)

	server, ok := p.Servers()[lang]
	if !ok || server.State() != languageserver.StateRunning {
		// The next read opens the document with the new content.
		return nil
	}
	err = server.NotifyChanged(ctx, entity.Document{Path: path, Text: data})
	if naverrors.IsCrash(err) {
		o.logger.Warnw("server crashed before change notification", "server", server.ID().String(), zap.Error(err))
		return nil
	}
	return err
}

func (o *orchestrator) RestartServers(ctx context.Context, language entity.LanguageID) ([]entity.ServerID, error) {
	p, err := o.requireActive()
	if err != nil {
		return nil, err
	}

	servers := p.Servers()
	if language != "" {
		if _, ok := o.languages[language]; !ok {
			return nil, naverrors.ToolError("restart_language_server", "language %q is not configured", language)
		}
		server, ok := servers[language]
		if !ok {
			// Never started, so starting it is the restart.
			server, err = p.Server(ctx, language)
			if err != nil {
				return nil, err
			}
			return []entity.ServerID{server.ID()}, nil
		}
		servers = map[entity.LanguageID]languageserver.Process{language: server}
	}

	langs := make([]entity.LanguageID, 0, len(servers))
	for lang := range servers {
		langs = append(langs, lang)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i] < langs[j] })

	var (
		restarted []entity.ServerID
		errs      error
	)
	for _, lang := range langs {
		server := servers[lang]
		if err := server.Restart(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("restarting %s: %w", server.ID(), err))
			continue
		}
		p.Cache(lang).Clear()
		restarted = append(restarted, server.ID())
	}
	return restarted, errs
}

func (o *orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	alreadyClosed := o.closed
	o.closed = true
	o.mu.Unlock()
	if alreadyClosed {
		return nil
	}

	err := o.Deactivate(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		o.logger.Warnw("shutdown deadline exceeded while stopping language servers", zap.Error(err))
	}
	o.logger.Infow("session shut down")
	return err
}
