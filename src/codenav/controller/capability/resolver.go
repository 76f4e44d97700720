// Package capability decides which tools are exposed for the current context, modes and project.
package capability

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/uber/codenav/src/codenav/entity"
	naverrors "github.com/uber/codenav/src/codenav/internal/errors"
	"go.uber.org/multierr"
)

// Input is everything that determines the exposed tool set.
type Input struct {
	Tools []entity.ToolInfo
	// Include and Exclude are global name patterns. An empty Include admits every tool.
	Include []string
	Exclude []string
	// Context is the active context name. Empty means no context restriction.
	Context string
	Modes   []string
	// Contexts and ModeDefs hold the definitions that Context and Modes refer to.
	Contexts map[string]entity.Context
	ModeDefs map[string]entity.Mode
	ReadOnly bool
}

// NewInput assembles the resolver input from the exposure configuration and the session state.
func NewInput(tools []entity.ToolInfo, cfg entity.ExposureConfig, state entity.ExposureState) Input {
	return Input{
		Tools:    tools,
		Include:  cfg.Include,
		Exclude:  cfg.Exclude,
		Context:  state.Context,
		Modes:    state.Modes,
		Contexts: cfg.Contexts,
		ModeDefs: cfg.Modes,
		ReadOnly: state.ReadOnly,
	}
}

// Resolve returns the sorted names of the exposed tools.
// The same input always yields the same output, and contradictory configuration yields a ConfigResolutionError.
func Resolve(in Input) ([]string, error) {
	known := make(map[string]entity.ToolInfo, len(in.Tools))
	for _, t := range in.Tools {
		known[t.Name] = t
	}

	global := entity.Policy{Allow: in.Include, Deny: in.Exclude}
	policies := []namedPolicy{{label: "global include/exclude", policy: global}}

	var errs error
	if in.Context != "" {
		ctx, ok := in.Contexts[in.Context]
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("context %q is not defined", in.Context))
		} else {
			policies = append(policies, namedPolicy{label: fmt.Sprintf("context %q", in.Context), policy: ctx.Policy})
		}
	}
	for _, name := range in.Modes {
		mode, ok := in.ModeDefs[name]
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("mode %q is not defined", name))
			continue
		}
		policies = append(policies, namedPolicy{label: fmt.Sprintf("mode %q", name), policy: mode.Policy})
	}
	for _, p := range policies {
		errs = multierr.Append(errs, p.validate(known))
	}
	if err := naverrors.NewConfigResolutionError(errs); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(known))
	for name, t := range known {
		if in.ReadOnly && t.MutatesState {
			continue
		}
		if admittedByAll(policies, name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

type namedPolicy struct {
	label  string
	policy entity.Policy
}

// validate reports malformed patterns, exact names both allowed and denied, and exact allow names unknown to the registry.
func (p namedPolicy) validate(known map[string]entity.ToolInfo) error {
	var errs error
	for _, pattern := range append(append([]string(nil), p.policy.Allow...), p.policy.Deny...) {
		if _, err := path.Match(pattern, ""); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: malformed pattern %q", p.label, pattern))
		}
	}

	denied := make(map[string]struct{}, len(p.policy.Deny))
	for _, pattern := range p.policy.Deny {
		if !isGlob(pattern) {
			denied[pattern] = struct{}{}
		}
	}
	for _, pattern := range p.policy.Allow {
		if isGlob(pattern) {
			continue
		}
		if _, ok := denied[pattern]; ok {
			errs = multierr.Append(errs, fmt.Errorf("%s: tool %q is both allowed and denied", p.label, pattern))
		}
		if _, ok := known[pattern]; !ok {
			errs = multierr.Append(errs, fmt.Errorf("%s: allowed tool %q does not exist", p.label, pattern))
		}
	}
	return errs
}

func (p namedPolicy) admits(name string) bool {
	if len(p.policy.Allow) > 0 && !matchAny(p.policy.Allow, name) {
		return false
	}
	return !matchAny(p.policy.Deny, name)
}

func admittedByAll(policies []namedPolicy, name string) bool {
	for _, p := range policies {
		if !p.admits(name) {
			return false
		}
	}
	return true
}

func matchAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func isGlob(pattern string) bool {
	return strings.ContainsAny(pattern, `*?[\`)
}
