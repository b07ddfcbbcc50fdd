package tools

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cosmikwolf/sazid/internal/core/domain"
)

// Manifest is the YAML file declaring extra command-line tools.
//
//	tools:
//	  - name: go_test
//	    description: Run go test for a package.
//	    program: go
//	    args: [test]
//	    timeout: 2m
//	    parameters:
//	      - name: package
//	        type: string
//	        pattern: '\./[A-Za-z0-9_/.]*'
//	        default: ./...
type Manifest struct {
	Tools []ManifestTool `yaml:"tools"`
}

// ManifestTool is one tool entry in a manifest.
type ManifestTool struct {
	Name             string                 `yaml:"name"`
	Description      string                 `yaml:"description"`
	Program          string                 `yaml:"program"`
	Args             []string               `yaml:"args"`
	Timeout          string                 `yaml:"timeout"`
	SuccessExitCodes []int                  `yaml:"success_exit_codes"`
	EmptyExitCodes   []int                  `yaml:"empty_exit_codes"`
	Parameters       []domain.ParameterSpec `yaml:"parameters"`
}

// LoadManifest reads tool definitions from a manifest file.
// A missing file yields no tools.
func LoadManifest(path string) ([]domain.ToolDefinition, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tool manifest: %w", err)
	}
	return ParseManifest(bytes.NewReader(data))
}

// ParseManifest decodes a manifest. Unknown keys are rejected.
func ParseManifest(r io.Reader) ([]domain.ToolDefinition, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, domain.NewError(domain.KindConfiguration, "parse tool manifest", err)
	}

	defs := make([]domain.ToolDefinition, 0, len(m.Tools))
	for i, t := range m.Tools {
		def, err := t.definition()
		if err != nil {
			return nil, domain.NewError(domain.KindConfiguration, fmt.Sprintf("tool manifest entry %d", i), err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (t ManifestTool) definition() (domain.ToolDefinition, error) {
	def := domain.ToolDefinition{
		Name:             t.Name,
		Description:      t.Description,
		Kind:             domain.ToolKindCLI,
		Program:          t.Program,
		Args:             t.Args,
		Parameters:       t.Parameters,
		SuccessExitCodes: t.SuccessExitCodes,
		EmptyExitCodes:   t.EmptyExitCodes,
	}
	if t.Timeout != "" {
		d, err := time.ParseDuration(t.Timeout)
		if err != nil {
			return def, fmt.Errorf("timeout: %w", err)
		}
		if d < 0 {
			return def, fmt.Errorf("timeout must not be negative")
		}
		def.Timeout = d
	}
	return def, nil
}
