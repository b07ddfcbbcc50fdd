package tools

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/core/ports/driven"
)

// JSONSchema renders a tool's parameters as a JSON schema object for
// function calling. Arguments outside the declared set are disallowed.
func JSONSchema(def domain.ToolDefinition) map[string]any {
	props := make(map[string]any, len(def.Parameters))
	required := []string{}
	for _, p := range def.Parameters {
		props[p.Name] = propertySchema(p)
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func propertySchema(p domain.ParameterSpec) map[string]any {
	prop := map[string]any{"type": p.Type.JSONType()}
	desc := p.Description

	switch p.Type {
	case domain.ParamEnum:
		prop["enum"] = append([]string(nil), p.AllowedValues...)
	case domain.ParamOptions:
		desc = strings.TrimSpace(fmt.Sprintf("%s Allowed: %s.", desc, strings.Join(p.AllowedValues, ", ")))
	case domain.ParamPath, domain.ParamPaths:
		desc = strings.TrimSpace(desc + " Must stay inside the project root.")
	case domain.ParamString:
		if p.Pattern != "" {
			prop["pattern"] = anchor(p.Pattern)
		}
	}
	if desc != "" {
		prop["description"] = desc
	}

	if p.Default != "" {
		switch p.Type {
		case domain.ParamInteger:
			if n, err := strconv.Atoi(p.Default); err == nil {
				prop["default"] = n
			}
		case domain.ParamBoolean:
			if b, err := strconv.ParseBool(p.Default); err == nil {
				prop["default"] = b
			}
		default:
			prop["default"] = p.Default
		}
	}
	return prop
}

// Specs converts registered tools into completion tool specs.
func Specs(defs []domain.ToolDefinition) []driven.ToolSpec {
	specs := make([]driven.ToolSpec, 0, len(defs))
	for _, def := range defs {
		specs = append(specs, driven.ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  JSONSchema(def),
		})
	}
	return specs
}
