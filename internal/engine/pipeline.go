package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leapgis/pkg/core"
)

// Pipeline is a pipeline file: layers to import, then steps to run.
type Pipeline struct {
	Layers []LayerSource  `yaml:"layers" json:"layers"`
	Steps  []core.Request `yaml:"steps" json:"steps"`

	// dir is the directory relative layer paths are resolved against.
	dir string
}

// LayerSource names a file to import before the steps run.
type LayerSource struct {
	ID   string `yaml:"id" json:"id"`
	Path string `yaml:"path" json:"path"`
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
}

// LoadPipeline reads a YAML or JSON pipeline file.
func LoadPipeline(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline: %w", err)
	}
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}
	p, err := ParsePipeline(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p.dir = filepath.Dir(path)
	return p, nil
}

// ParsePipeline decodes a pipeline. JSON numbers keep their text form so the
// validator sees json.Number.
func ParsePipeline(data []byte, format string) (*Pipeline, error) {
	var p Pipeline
	switch format {
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("invalid pipeline JSON: %w", err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("invalid pipeline YAML: %w", err)
		}
	}
	if len(p.Steps) == 0 {
		return nil, fmt.Errorf("pipeline has no steps")
	}
	for i, l := range p.Layers {
		if l.ID == "" || l.Path == "" {
			return nil, fmt.Errorf("layer %d: id and path are required", i+1)
		}
	}
	return &p, nil
}

// RunPipeline imports the pipeline's layers into the session, then runs its steps.
func (s *Session) RunPipeline(ctx context.Context, p *Pipeline, opts RunOptions) (*Report, error) {
	for _, src := range p.Layers {
		if !filepath.IsAbs(src.Path) && p.dir != "" {
			src.Path = filepath.Join(p.dir, src.Path)
		}
		if _, err := s.Import(ctx, src); err != nil {
			return nil, fmt.Errorf("layer %s: %w", src.ID, err)
		}
	}
	return s.Run(ctx, p.Steps, opts)
}
