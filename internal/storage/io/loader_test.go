package io_test

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cementlab/simops/internal/model"
	storageio "github.com/cementlab/simops/internal/storage/io"
)

func TestGetSubmission(t *testing.T) {
	tests := map[string]struct {
		yaml      string
		expConfig model.SubmissionConfig
		expErr    bool
	}{
		"valid submission": {
			yaml: `
name: paste-28d
type: hydration
parent: base-micro
parameters:
  binder:
    w_c_ratio: 0.45
  curing:
    days: 28
`,
			expConfig: model.SubmissionConfig{
				Name:       "paste-28d",
				Type:       model.OperationTypeHydration,
				ParentName: "base-micro",
				Parameters: model.Parameters{
					"binder": map[string]any{"w_c_ratio": 0.45},
					"curing": map[string]any{"days": 28},
				},
			},
		},
		"missing name should fail validation": {
			yaml: `
type: hydration
parameters:
  curing:
    days: 28
`,
			expErr: true,
		},
		"unknown type should fail validation": {
			yaml: `
name: paste-28d
type: diffusion
parameters:
  curing:
    days: 28
`,
			expErr: true,
		},
		"broken yaml should fail": {
			yaml:   "name: [unclosed",
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			fsys := fstest.MapFS{
				"submission.yaml": &fstest.MapFile{Data: []byte(test.yaml)},
			}
			loader := storageio.NewSubmissionYAMLRepository(fsys)

			cfg, err := loader.GetSubmission(context.Background(), "submission.yaml")

			if test.expErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, test.expConfig, cfg)
			}
		})
	}
}

func TestGetSubmissionMissingFile(t *testing.T) {
	loader := storageio.NewSubmissionYAMLRepository(fstest.MapFS{})

	_, err := loader.GetSubmission(context.Background(), "nope.yaml")
	require.Error(t, err)
}
