// Package tools implements the tool set exposed to agents. Every tool declares a static argument schema and
// reaches language servers only through the orchestrator.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/uber/codenav/src/codenav/controller/orchestrator"
	"github.com/uber/codenav/src/codenav/controller/project"
	"github.com/uber/codenav/src/codenav/entity"
	naverrors "github.com/uber/codenav/src/codenav/internal/errors"
	"github.com/uber/codenav/src/codenav/internal/fs"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the tool Registry.
var Module = fx.Provide(New)

// Tool is a named operation with a static argument schema.
type Tool interface {
	Name() string
	Description() string
	Schema() entity.Schema
	MutatesState() bool
	RequiresActiveProject() bool
	// Apply runs the tool. The result is either a string, returned to the client verbatim, or a value encoded as JSON.
	Apply(ctx context.Context, args json.RawMessage) (interface{}, error)
}

// Registry is the fixed universe of tools.
type Registry interface {
	// Tools returns every tool sorted by name.
	Tools() []Tool
	Get(name string) (Tool, bool)
	// Infos returns the capability markers of every tool for exposure resolution.
	Infos() []entity.ToolInfo
}

// Params are inbound parameters to create the Registry.
type Params struct {
	fx.In

	Orchestrator orchestrator.Orchestrator
	FS           fs.FS
	Logger       *zap.SugaredLogger
}

type registry struct {
	tools  []Tool
	byName map[string]Tool
}

// NewRegistry creates a registry of the given tools. Names must be unique.
func NewRegistry(tools ...Tool) (Registry, error) {
	r := &registry{byName: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if _, ok := r.byName[t.Name()]; ok {
			return nil, fmt.Errorf("tool %q is registered twice", t.Name())
		}
		r.byName[t.Name()] = t
		r.tools = append(r.tools, t)
	}
	sort.Slice(r.tools, func(i, j int) bool { return r.tools[i].Name() < r.tools[j].Name() })
	return r, nil
}

// New creates the Registry holding the complete tool set.
func New(p Params) (Registry, error) {
	h := &handler{
		orchestrator: p.Orchestrator,
		fs:           p.FS,
		logger:       p.Logger.With("component", "tools"),
	}

	var all []Tool
	all = append(all, h.sessionTools()...)
	all = append(all, h.fileTools()...)
	all = append(all, h.symbolTools()...)
	all = append(all, h.editTools()...)
	return NewRegistry(all...)
}

func (r *registry) Tools() []Tool {
	return append([]Tool(nil), r.tools...)
}

func (r *registry) Get(name string) (Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

func (r *registry) Infos() []entity.ToolInfo {
	infos := make([]entity.ToolInfo, 0, len(r.tools))
	for _, t := range r.tools {
		infos = append(infos, entity.ToolInfo{
			Name:                  t.Name(),
			MutatesState:          t.MutatesState(),
			RequiresActiveProject: t.RequiresActiveProject(),
		})
	}
	return infos
}

// tool is a Tool built from its declaration.
type tool struct {
	name         string
	description  string
	schema       entity.Schema
	mutates      bool
	needsProject bool
	apply        func(ctx context.Context, args json.RawMessage) (interface{}, error)
}

func (t *tool) Name() string                { return t.name }
func (t *tool) Description() string         { return t.description }
func (t *tool) Schema() entity.Schema       { return t.schema }
func (t *tool) MutatesState() bool          { return t.mutates }
func (t *tool) RequiresActiveProject() bool { return t.needsProject }

func (t *tool) Apply(ctx context.Context, args json.RawMessage) (interface{}, error) {
	return t.apply(ctx, args)
}

// handler carries the dependencies shared by every tool.
type handler struct {
	orchestrator orchestrator.Orchestrator
	fs           fs.FS
	logger       *zap.SugaredLogger
}

// decodeArgs decodes the arguments of tool into v, rejecting unknown fields.
func decodeArgs(tool string, args json.RawMessage, v interface{}) error {
	args = bytes.TrimSpace(args)
	if len(args) == 0 || bytes.Equal(args, []byte("null")) {
		args = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return naverrors.ToolError(tool, "invalid arguments: %v", err)
	}
	return nil
}

// active returns the active project for tool.
func (h *handler) active(tool string) (*project.Project, error) {
	p := h.orchestrator.Active()
	if p == nil {
		return nil, &naverrors.ProjectNotActiveError{Tool: tool}
	}
	return p, nil
}

// relative returns the project relative form of an absolute path, or the path itself when it lies outside the root.
func relative(p *project.Project, abs string) string {
	rel, err := p.Relative(abs)
	if err != nil {
		return abs
	}
	return rel
}

func str(description string) entity.Property {
	return entity.Property{Type: "string", Description: description}
}

func integer(description string) entity.Property {
	return entity.Property{Type: "integer", Description: description}
}

func boolean(description string) entity.Property {
	return entity.Property{Type: "boolean", Description: description}
}

func stringList(description string) entity.Property {
	return entity.Property{Type: "array", Description: description, Items: &entity.Property{Type: "string"}}
}
