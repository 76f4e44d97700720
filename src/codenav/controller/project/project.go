// Package project holds the state of an activated project: its root, exclusions, language servers and symbol caches.
package project

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/uber-go/tally"
	languageserver "github.com/uber/codenav/src/codenav/controller/language-server"
	symbolcache "github.com/uber/codenav/src/codenav/controller/symbol-cache"
	"github.com/uber/codenav/src/codenav/entity"
	"github.com/uber/codenav/src/codenav/internal/clock"
	naverrors "github.com/uber/codenav/src/codenav/internal/errors"
	"github.com/uber/codenav/src/codenav/internal/fs"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned by a project after Close.
var ErrClosed = errors.New("project has been closed")

// Deps are the collaborators shared by every project of a session.
type Deps struct {
	Languages entity.Languages
	Factory   languageserver.Factory
	Handlers  languageserver.Handlers
	FS        fs.FS
	Clock     clock.Clock
	Stats     tally.Scope
	Logger    *zap.SugaredLogger
}

// Project is an activated project. Language servers are created lazily, one per language.
type Project struct {
	config entity.ProjectConfig
	deps   Deps
	logger *zap.SugaredLogger

	mu      sync.Mutex
	servers map[entity.LanguageID]languageserver.Process
	caches  map[entity.LanguageID]*symbolcache.Cache
	closed  bool
}

// New validates cfg and creates a project rooted at an existing directory.
func New(cfg entity.ProjectConfig, deps Deps) (*Project, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.RootPath = filepath.Clean(cfg.RootPath)
	for _, glob := range cfg.ExcludedGlobs {
		if !doublestar.ValidatePattern(glob) {
			return nil, fmt.Errorf("project %q: invalid excluded glob %q", cfg.Name, glob)
		}
	}

	exists, err := deps.FS.DirExists(cfg.RootPath)
	if err != nil {
		return nil, fmt.Errorf("checking project root: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("project root %q is not a directory", cfg.RootPath)
	}

	return &Project{
		config:  cfg,
		deps:    deps,
		logger:  deps.Logger.With("project", cfg.Name),
		servers: make(map[entity.LanguageID]languageserver.Process),
		caches:  make(map[entity.LanguageID]*symbolcache.Cache),
	}, nil
}

// Name returns the project name.
func (p *Project) Name() string { return p.config.Name }

// Root returns the absolute project root.
func (p *Project) Root() string { return p.config.RootPath }

// Config returns the effective project configuration.
func (p *Project) Config() entity.ProjectConfig { return p.config }

// ReadOnly reports whether mutating tools are disabled for this project.
func (p *Project) ReadOnly() bool { return p.config.ReadOnly }

// Resolve returns the absolute path of rel, which may also be absolute, and ensures it lies within the root.
func (p *Project) Resolve(rel string) (string, error) {
	path := rel
	if !filepath.IsAbs(path) {
		path = filepath.Join(p.config.RootPath, rel)
	}
	path = filepath.Clean(path)

	if _, err := p.Relative(path); err != nil {
		return "", err
	}
	return path, nil
}

// Relative returns the slash separated path of abs relative to the root.
func (p *Project) Relative(abs string) (string, error) {
	rel, err := filepath.Rel(p.config.RootPath, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &naverrors.PathOutsideProjectError{Path: abs, Root: p.config.RootPath}
	}
	return filepath.ToSlash(rel), nil
}

// IsExcluded reports whether the slash separated relative path matches an excluded glob.
func (p *Project) IsExcluded(rel string) bool {
	for _, glob := range p.config.ExcludedGlobs {
		if ok, _ := doublestar.Match(glob, rel); ok {
			return true
		}
	}
	return false
}

// isExcludedDir reports whether every entry below the directory rel is excluded by a directory pattern, such as "build/**".
func (p *Project) isExcludedDir(rel string) bool {
	return p.IsExcluded(rel) || p.IsExcluded(rel+"/_")
}

// Walk calls fn with the relative path of every file and directory below dir, skipping excluded entries.
// The root itself is not reported.
func (p *Project) Walk(ctx context.Context, dir string, fn func(rel string, d iofs.DirEntry) error) error {
	start, err := p.Resolve(dir)
	if err != nil {
		return err
	}

	return p.deps.FS.WalkDir(start, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == p.config.RootPath {
			return nil
		}
		rel, relErr := p.Relative(path)
		if relErr != nil {
			return relErr
		}
		if d.IsDir() {
			if p.isExcludedDir(rel) {
				return filepath.SkipDir
			}
		} else if p.IsExcluded(rel) {
			return nil
		}
		if path == start {
			return nil
		}
		return fn(rel, d)
	})
}

// Files returns the sorted relative paths of every non-excluded file below dir.
func (p *Project) Files(ctx context.Context, dir string) ([]string, error) {
	var files []string
	err := p.Walk(ctx, dir, func(rel string, d iofs.DirEntry) error {
		if !d.IsDir() {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ReadDocument reads the file at the absolute path, enforcing the size limit.
func (p *Project) ReadDocument(path string) (entity.Document, error) {
	if limit := p.config.MaxFileSizeBytes; limit > 0 {
		info, err := p.deps.FS.Stat(path)
		if err != nil {
			return entity.Document{}, err
		}
		if info.Size() > limit {
			return entity.Document{}, &naverrors.FileSizeLimitError{Path: path, Size: info.Size(), Limit: limit}
		}
	}
	data, err := p.deps.FS.ReadFile(path)
	if err != nil {
		return entity.Document{}, err
	}
	return entity.Document{Path: path, Text: data}, nil
}

// LanguageFor returns the language serving the file at path.
func (p *Project) LanguageFor(path string) (entity.LanguageID, bool) {
	return p.deps.Languages.ForPath(path)
}

// Server returns the process for lang, creating it on first use and starting it while it has never been started.
// A crashed process is returned as is; restarting it is up to the caller.
func (p *Project) Server(ctx context.Context, lang entity.LanguageID) (languageserver.Process, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	server, ok := p.servers[lang]
	if !ok {
		desc, known := p.deps.Languages[lang]
		if !known {
			p.mu.Unlock()
			return nil, fmt.Errorf("language %q is not configured", lang)
		}
		id := entity.ServerID{Project: p.config.Name, Language: lang}
		server = p.deps.Factory.New(id, p.config.RootPath, desc, p.deps.Handlers)
		p.servers[lang] = server
		p.logger.Infow("created language server", "language", lang)
	}
	p.mu.Unlock()

	if server.State() == languageserver.StateNotStarted {
		if err := server.Start(ctx); err != nil {
			return server, err
		}
	}
	return server, nil
}

// Cache returns the symbol cache of lang.
func (p *Project) Cache(lang entity.LanguageID) *symbolcache.Cache {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.caches[lang]
	if !ok {
		c = symbolcache.New(p.deps.Clock, p.deps.Stats)
		p.caches[lang] = c
	}
	return c
}

// Servers returns the processes created so far.
func (p *Project) Servers() map[entity.LanguageID]languageserver.Process {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[entity.LanguageID]languageserver.Process, len(p.servers))
	for lang, s := range p.servers {
		out[lang] = s
	}
	return out
}

// Close stops every language server in parallel and clears the caches. Later calls have no effect.
func (p *Project) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	servers := p.servers
	caches := p.caches
	p.servers = make(map[entity.LanguageID]languageserver.Process)
	p.caches = make(map[entity.LanguageID]*symbolcache.Cache)
	p.mu.Unlock()

	for _, c := range caches {
		c.Clear()
	}

	var (
		mu   sync.Mutex
		errs error
	)
	var g errgroup.Group
	for lang, server := range servers {
		lang, server := lang, server
		g.Go(func() error {
			if err := server.Stop(ctx); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("stopping %s server: %w", lang, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Infow("project closed", "servers", len(servers), zap.Error(errs))
	return errs
}
