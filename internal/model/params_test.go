package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cementlab/simops/internal/model"
)

func TestParametersClone(t *testing.T) {
	original := model.Parameters{
		"binder": map[string]any{
			"w_c_ratio": 0.45,
			"phases":    []any{"c3s", "c2s"},
		},
		"seed": 8731,
	}

	clone, err := original.Clone()
	require.NoError(t, err)

	// Mutating the original must never reach the clone.
	original["seed"] = 1
	original["binder"].(map[string]any)["w_c_ratio"] = 0.99
	original["binder"].(map[string]any)["phases"].([]any)[0] = "c4af"

	assert.Equal(t, float64(8731), clone["seed"])
	binder := clone["binder"].(map[string]any)
	assert.Equal(t, 0.45, binder["w_c_ratio"])
	assert.Equal(t, "c3s", binder["phases"].([]any)[0])
}

func TestParametersCloneNil(t *testing.T) {
	var p model.Parameters

	clone, err := p.Clone()
	require.NoError(t, err)
	assert.NotNil(t, clone)
	assert.Empty(t, clone)
}

func TestParametersFlatten(t *testing.T) {
	tests := map[string]struct {
		params   model.Parameters
		expLines []string
	}{
		"flat keys are sorted": {
			params: model.Parameters{
				"seed":      8731,
				"grid_size": 100,
			},
			expLines: []string{
				"grid_size 100",
				"seed 8731",
			},
		},
		"nested keys are dotted": {
			params: model.Parameters{
				"binder": map[string]any{
					"w_c_ratio": 0.45,
					"fineness":  385,
				},
				"curing": map[string]any{
					"days": 28,
				},
			},
			expLines: []string{
				"binder.fineness 385",
				"binder.w_c_ratio 0.45",
				"curing.days 28",
			},
		},
		"lists are space joined": {
			params: model.Parameters{
				"output_times": []any{1, 7, 28},
			},
			expLines: []string{
				"output_times 1 7 28",
			},
		},
		"empty parameters flatten to nothing": {
			params:   model.Parameters{},
			expLines: []string{},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expLines, test.params.Flatten())
		})
	}
}
