package io

import (
	"context"
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"

	"github.com/cementlab/simops/internal/model"
)

// SubmissionYAMLRepository loads operation submissions from YAML files.
type SubmissionYAMLRepository struct {
	fs fs.FS
}

// NewSubmissionYAMLRepository creates a new YAML submission repository.
func NewSubmissionYAMLRepository(filesystem fs.FS) *SubmissionYAMLRepository {
	return &SubmissionYAMLRepository{fs: filesystem}
}

// GetSubmission loads an operation submission from a YAML file and returns a
// validated domain model.
func (r *SubmissionYAMLRepository) GetSubmission(ctx context.Context, path string) (model.SubmissionConfig, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return model.SubmissionConfig{}, fmt.Errorf("reading submission file: %w", err)
	}

	if ctx.Err() != nil {
		return model.SubmissionConfig{}, ctx.Err()
	}

	var sub Submission
	if err := yaml.Unmarshal(data, &sub); err != nil {
		return model.SubmissionConfig{}, fmt.Errorf("parsing YAML: %w", err)
	}

	cfg := sub.toModel()
	if err := cfg.Validate(); err != nil {
		return model.SubmissionConfig{}, fmt.Errorf("invalid submission: %w", err)
	}

	return cfg, nil
}

// Submission represents the YAML structure of an operation submission.
type Submission struct {
	Name       string         `yaml:"name"`
	Type       string         `yaml:"type"`
	Parent     string         `yaml:"parent,omitempty"`
	Parameters map[string]any `yaml:"parameters"`
}

func (s Submission) toModel() model.SubmissionConfig {
	return model.SubmissionConfig{
		Name:       s.Name,
		Type:       model.OperationType(s.Type),
		ParentName: s.Parent,
		Parameters: model.Parameters(s.Parameters),
	}
}
