package tools

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/cosmikwolf/sazid/internal/core/domain"
)

// Registry is an immutable set of tool definitions keyed by name.
type Registry struct {
	defs  map[string]domain.ToolDefinition
	order []string
}

// NewRegistry checks and registers definitions. Names must be unique.
func NewRegistry(defs ...domain.ToolDefinition) (*Registry, error) {
	r := &Registry{defs: make(map[string]domain.ToolDefinition, len(defs))}
	for _, def := range defs {
		if err := checkDefinition(def); err != nil {
			return nil, domain.NewError(domain.KindConfiguration, fmt.Sprintf("tool %q", def.Name), err)
		}
		if _, dup := r.defs[def.Name]; dup {
			return nil, domain.Errorf(domain.KindConfiguration, "tool %q registered twice", def.Name)
		}
		r.defs[def.Name] = cloneDefinition(def)
		r.order = append(r.order, def.Name)
	}
	return r, nil
}

// Lookup returns the named definition.
func (r *Registry) Lookup(name string) (domain.ToolDefinition, bool) {
	def, ok := r.defs[name]
	if !ok {
		return domain.ToolDefinition{}, false
	}
	return cloneDefinition(def), true
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	return slices.Clone(r.order)
}

// Definitions returns every definition in registration order.
func (r *Registry) Definitions() []domain.ToolDefinition {
	out := make([]domain.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, cloneDefinition(r.defs[name]))
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.order)
}

func checkDefinition(def domain.ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !def.Kind.IsValid() {
		return fmt.Errorf("unknown kind %q", def.Kind)
	}
	if def.Program == "" {
		return fmt.Errorf("program is required")
	}
	if strings.ContainsAny(def.Program, " \t\n") {
		return fmt.Errorf("program %q must be a single executable name", def.Program)
	}

	seen := make(map[string]bool, len(def.Parameters))
	for _, p := range def.Parameters {
		if p.Name == "" {
			return fmt.Errorf("parameter without a name")
		}
		if seen[p.Name] {
			return fmt.Errorf("parameter %q declared twice", p.Name)
		}
		seen[p.Name] = true

		if !p.Type.IsValid() {
			return fmt.Errorf("parameter %q: unknown type %q", p.Name, p.Type)
		}
		if (p.Type == domain.ParamEnum || p.Type == domain.ParamOptions) && len(p.AllowedValues) == 0 {
			return fmt.Errorf("parameter %q: %s requires allowed_values", p.Name, p.Type)
		}
		if p.Pattern != "" {
			if _, err := regexp.Compile(anchor(p.Pattern)); err != nil {
				return fmt.Errorf("parameter %q: invalid pattern: %w", p.Name, err)
			}
		}
	}
	return nil
}

func cloneDefinition(def domain.ToolDefinition) domain.ToolDefinition {
	def.Args = slices.Clone(def.Args)
	def.SuccessExitCodes = slices.Clone(def.SuccessExitCodes)
	def.EmptyExitCodes = slices.Clone(def.EmptyExitCodes)
	params := make([]domain.ParameterSpec, len(def.Parameters))
	for i, p := range def.Parameters {
		p.AllowedValues = slices.Clone(p.AllowedValues)
		params[i] = p
	}
	def.Parameters = params
	return def
}

// anchor makes a pattern match the whole value.
func anchor(pattern string) string {
	return "^(?:" + pattern + ")$"
}
