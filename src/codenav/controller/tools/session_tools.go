package tools

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/uber/codenav/src/codenav/entity"
)

type activatedProject struct {
	Name     string   `json:"name"`
	RootPath string   `json:"rootPath"`
	ReadOnly bool     `json:"readOnly"`
	Excluded []string `json:"excludedGlobs,omitempty"`
}

func (h *handler) sessionTools() []Tool {
	return []Tool{
		&tool{
			name:        "activate_project",
			description: "Activates a project by its configured name or by the absolute path of its root. Language servers of the previously active project are stopped.",
			schema: entity.ObjectSchema(map[string]entity.Property{
				"project": str("The configured project name or an absolute path to the project root."),
			}, "project"),
			apply: h.activateProject,
		},
		&tool{
			name:        "get_current_config",
			description: "Returns the active project, context, modes, exposed tools and the state of every language server.",
			schema:      entity.ObjectSchema(nil),
			apply:       h.currentConfig,
		},
		&tool{
			name:        "switch_modes",
			description: "Replaces the active modes. The exposed tool set is recomputed.",
			schema: entity.ObjectSchema(map[string]entity.Property{
				"modes": stringList("The names of the modes to activate, e.g. [\"editing\", \"interactive\"]."),
			}, "modes"),
			apply: h.switchModes,
		},
		&tool{
			name:         "restart_language_server",
			description:  "Restarts the language server of one language, or every started server. Use it when a server returns stale results.",
			needsProject: true,
			schema: entity.ObjectSchema(map[string]entity.Property{
				"language": str("The language to restart. Restarts every started server when empty."),
			}),
			apply: h.restartLanguageServer,
		},
	}
}

func (h *handler) activateProject(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args struct {
		Project string `json:"project"`
	}
	if err := decodeArgs("activate_project", raw, &args); err != nil {
		return nil, err
	}

	p, err := h.orchestrator.Activate(ctx, args.Project)
	if err != nil {
		return nil, err
	}
	cfg := p.Config()
	return activatedProject{
		Name:     cfg.Name,
		RootPath: cfg.RootPath,
		ReadOnly: cfg.ReadOnly,
		Excluded: cfg.ExcludedGlobs,
	}, nil
}

func (h *handler) currentConfig(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var args struct{}
	if err := decodeArgs("get_current_config", raw, &args); err != nil {
		return nil, err
	}
	return h.orchestrator.Snapshot(), nil
}

func (h *handler) switchModes(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var args struct {
		Modes []string `json:"modes"`
	}
	if err := decodeArgs("switch_modes", raw, &args); err != nil {
		return nil, err
	}
	if err := h.orchestrator.SetModes(args.Modes); err != nil {
		return nil, err
	}
	return map[string][]string{"modes": h.orchestrator.ExposureState().Modes}, nil
}

func (h *handler) restartLanguageServer(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args struct {
		Language string `json:"language"`
	}
	if err := decodeArgs("restart_language_server", raw, &args); err != nil {
		return nil, err
	}

	ids, err := h.orchestrator.RestartServers(ctx, entity.LanguageID(args.Language))
	if err != nil {
		return nil, err
	}
	restarted := make([]string, 0, len(ids))
	for _, id := range ids {
		restarted = append(restarted, id.String())
	}
	sort.Strings(restarted)
	return map[string][]string{"restarted": restarted}, nil
}
