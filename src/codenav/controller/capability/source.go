package capability

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/uber/codenav/src/codenav/entity"
	"github.com/uber/codenav/src/codenav/internal/fs"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	_configKeyExposure = "exposure"
	_debounceTimeout   = 250 * time.Millisecond
)

// Module provides the exposure Source.
var Module = fx.Provide(NewSource)

// Source supplies the exposure configuration and announces changes to the overrides file.
type Source interface {
	// Exposure returns the current configuration, with overrides applied.
	Exposure() entity.ExposureConfig
	// Subscribe registers fn to run after every reload. The returned func removes it.
	Subscribe(fn func(entity.ExposureConfig)) (unsubscribe func())
}

// Params are inbound parameters to initialize a Source.
type Params struct {
	fx.In

	Config    config.Provider
	FS        fs.FS
	Lifecycle fx.Lifecycle
	Logger    *zap.SugaredLogger
}

type source struct {
	base    entity.ExposureConfig
	fs      fs.FS
	logger  *zap.SugaredLogger
	watcher *fsnotify.Watcher
	closer  chan struct{}
	done    chan struct{}

	mu          sync.RWMutex
	current     entity.ExposureConfig
	subscribers map[int]func(entity.ExposureConfig)
	nextID      int

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// NewSource loads the exposure configuration. When an overrides file is configured it is loaded now and
// watched while the application runs; a malformed overrides file fails startup.
func NewSource(p Params) (Source, error) {
	var base entity.ExposureConfig
	if err := p.Config.Get(_configKeyExposure).Populate(&base); err != nil {
		return nil, fmt.Errorf("loading exposure config: %w", err)
	}

	s := &source{
		base:        base,
		fs:          p.FS,
		logger:      p.Logger.With("component", "exposure"),
		subscribers: make(map[int]func(entity.ExposureConfig)),
	}

	current, err := s.load()
	if err != nil {
		return nil, err
	}
	s.current = current

	if base.OverridesFile != "" {
		p.Lifecycle.Append(fx.Hook{
			OnStart: s.start,
			OnStop:  s.stop,
		})
	}
	return s, nil
}

func (s *source) Exposure() entity.ExposureConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *source) Subscribe(fn func(entity.ExposureConfig)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// load returns the base configuration merged with the overrides file, if it exists.
func (s *source) load() (entity.ExposureConfig, error) {
	if s.base.OverridesFile == "" {
		return s.base, nil
	}

	data, err := s.fs.ReadFile(s.base.OverridesFile)
	if errors.Is(err, os.ErrNotExist) {
		return s.base, nil
	}
	if err != nil {
		return entity.ExposureConfig{}, fmt.Errorf("reading exposure overrides: %w", err)
	}

	var overrides entity.ExposureConfig
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return entity.ExposureConfig{}, fmt.Errorf("parsing exposure overrides %q: %w", s.base.OverridesFile, err)
	}
	return merge(s.base, overrides), nil
}

// merge applies overrides on top of base. Lists are replaced when set, and contexts and modes are replaced by name.
func merge(base, overrides entity.ExposureConfig) entity.ExposureConfig {
	out := base
	if overrides.Include != nil {
		out.Include = overrides.Include
	}
	if overrides.Exclude != nil {
		out.Exclude = overrides.Exclude
	}
	if overrides.ActiveContext != "" {
		out.ActiveContext = overrides.ActiveContext
	}
	if overrides.ActiveModes != nil {
		out.ActiveModes = overrides.ActiveModes
	}

	out.Contexts = make(map[string]entity.Context, len(base.Contexts)+len(overrides.Contexts))
	for name, c := range base.Contexts {
		out.Contexts[name] = c
	}
	for name, c := range overrides.Contexts {
		out.Contexts[name] = c
	}
	out.Modes = make(map[string]entity.Mode, len(base.Modes)+len(overrides.Modes))
	for name, m := range base.Modes {
		out.Modes[name] = m
	}
	for name, m := range overrides.Modes {
		out.Modes[name] = m
	}
	out.OverridesFile = base.OverridesFile
	return out
}

func (s *source) start(context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating overrides watcher: %w", err)
	}
	// Editors replace files by rename, so the directory is watched instead of the file.
	dir := filepath.Dir(s.base.OverridesFile)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %q: %w", dir, err)
	}

	s.watcher = watcher
	s.closer = make(chan struct{})
	s.done = make(chan struct{})
	go s.handleChanges()
	return nil
}

func (s *source) stop(ctx context.Context) error {
	close(s.closer)
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *source) handleChanges() {
	defer close(s.done)
	target := filepath.Clean(s.base.OverridesFile)
	for {
		select {
		case event := <-s.watcher.Events:
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			s.handleDebounce()
		case err := <-s.watcher.Errors:
			s.logger.Warnf("Failure in exposure overrides watcher: %v", err)
		case <-s.closer:
			s.debounceMu.Lock()
			if s.debounceTimer != nil {
				s.debounceTimer.Stop()
				s.debounceTimer = nil
			}
			s.debounceMu.Unlock()

			if err := s.watcher.Close(); err != nil {
				s.logger.Warnf("Failed to close exposure overrides watcher: %v", err)
			}
			return
		}
	}
}

func (s *source) handleDebounce() {
	s.debounceMu.Lock()
	defer s.debounceMu.Unlock()

	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	s.debounceTimer = time.AfterFunc(_debounceTimeout, s.reload)
}

// reload publishes the new configuration. A file that fails to load keeps the previous configuration.
func (s *source) reload() {
	cfg, err := s.load()
	if err != nil {
		s.logger.Warnf("Failed to reload exposure overrides: %v", err)
		return
	}

	s.mu.Lock()
	s.current = cfg
	subscribers := make([]func(entity.ExposureConfig), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subscribers = append(subscribers, fn)
	}
	s.mu.Unlock()

	s.logger.Infow("exposure overrides reloaded", "file", s.base.OverridesFile)
	for _, fn := range subscribers {
		fn(cfg)
	}
}
