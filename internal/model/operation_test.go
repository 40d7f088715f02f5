package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cementlab/simops/internal/model"
)

func TestOperationStatusTerminal(t *testing.T) {
	tests := map[string]struct {
		status      model.OperationStatus
		expTerminal bool
	}{
		"queued is not terminal":       {status: model.OperationStatusQueued, expTerminal: false},
		"running is not terminal":      {status: model.OperationStatusRunning, expTerminal: false},
		"paused is not terminal":       {status: model.OperationStatusPaused, expTerminal: false},
		"unregistered is not terminal": {status: model.OperationStatusUnregistered, expTerminal: false},
		"completed is terminal":        {status: model.OperationStatusCompleted, expTerminal: true},
		"failed is terminal":           {status: model.OperationStatusFailed, expTerminal: true},
		"cancelled is terminal":        {status: model.OperationStatusCancelled, expTerminal: true},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expTerminal, test.status.Terminal())
		})
	}
}

func TestOperationStatusCanTransition(t *testing.T) {
	tests := map[string]struct {
		from  model.OperationStatus
		to    model.OperationStatus
		expOK bool
	}{
		"queued to running":          {from: model.OperationStatusQueued, to: model.OperationStatusRunning, expOK: true},
		"queued to unregistered":     {from: model.OperationStatusQueued, to: model.OperationStatusUnregistered, expOK: true},
		"queued to failed":           {from: model.OperationStatusQueued, to: model.OperationStatusFailed, expOK: true},
		"queued to paused":           {from: model.OperationStatusQueued, to: model.OperationStatusPaused, expOK: false},
		"running to paused":          {from: model.OperationStatusRunning, to: model.OperationStatusPaused, expOK: true},
		"running to completed":       {from: model.OperationStatusRunning, to: model.OperationStatusCompleted, expOK: true},
		"running to queued":          {from: model.OperationStatusRunning, to: model.OperationStatusQueued, expOK: false},
		"paused to running":          {from: model.OperationStatusPaused, to: model.OperationStatusRunning, expOK: true},
		"paused to cancelled":        {from: model.OperationStatusPaused, to: model.OperationStatusCancelled, expOK: true},
		"unregistered to failed":     {from: model.OperationStatusUnregistered, to: model.OperationStatusFailed, expOK: true},
		"unregistered to running":    {from: model.OperationStatusUnregistered, to: model.OperationStatusRunning, expOK: false},
		"completed is locked":        {from: model.OperationStatusCompleted, to: model.OperationStatusRunning, expOK: false},
		"failed is locked":           {from: model.OperationStatusFailed, to: model.OperationStatusQueued, expOK: false},
		"cancelled is locked":        {from: model.OperationStatusCancelled, to: model.OperationStatusFailed, expOK: false},
		"completed cannot re-finish": {from: model.OperationStatusCompleted, to: model.OperationStatusCompleted, expOK: false},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expOK, test.from.CanTransition(test.to))
		})
	}
}

func TestSubmissionConfigValidate(t *testing.T) {
	tests := map[string]struct {
		config model.SubmissionConfig
		expErr bool
	}{
		"valid submission": {
			config: model.SubmissionConfig{
				Name:       "paste-28d",
				Type:       model.OperationTypeHydration,
				Parameters: model.Parameters{"curing.days": 28},
			},
			expErr: false,
		},
		"missing name should fail": {
			config: model.SubmissionConfig{
				Type:       model.OperationTypeHydration,
				Parameters: model.Parameters{"curing.days": 28},
			},
			expErr: true,
		},
		"unknown type should fail": {
			config: model.SubmissionConfig{
				Name:       "paste-28d",
				Type:       model.OperationType("diffusion"),
				Parameters: model.Parameters{"curing.days": 28},
			},
			expErr: true,
		},
		"empty parameters should fail": {
			config: model.SubmissionConfig{
				Name: "paste-28d",
				Type: model.OperationTypeMicrostructure,
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			err := test.config.Validate()

			if test.expErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, model.ErrNotValid)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
