package cancel_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cementlab/simops/internal/app/cancel"
	"github.com/cementlab/simops/internal/log"
	"github.com/cementlab/simops/internal/model"
	"github.com/cementlab/simops/internal/storage/storagemock"
	"github.com/cementlab/simops/internal/supervisor/fake"
)

func TestServiceRun(t *testing.T) {
	runningOp := &model.Operation{
		ID:     "01K2ZW9KX84BJF7Y3QH0M5TDNR",
		Name:   "paste-28d",
		Type:   model.OperationTypeHydration,
		Status: model.OperationStatusRunning,
	}
	cancelledOp := &model.Operation{
		ID:     "01K2ZW9KX84BJF7Y3QH0M5TDNR",
		Name:   "paste-28d",
		Type:   model.OperationTypeHydration,
		Status: model.OperationStatusCancelled,
	}

	tests := map[string]struct {
		mock      func(m *storagemock.MockRepository)
		spawn     bool
		req       cancel.Request
		expStatus model.OperationStatus
		expErr    error
	}{
		"cancels a running operation": {
			mock: func(m *storagemock.MockRepository) {
				m.On("GetOperationByName", mock.Anything, "paste-28d").Once().Return(runningOp, nil)
				m.On("UpdateStatus", mock.Anything, runningOp.ID, model.OperationStatusCancelled, "").Once().Return(nil)
				m.On("GetOperation", mock.Anything, runningOp.ID).Once().Return(cancelledOp, nil)
			},
			spawn:     true,
			req:       cancel.Request{NameOrID: "paste-28d"},
			expStatus: model.OperationStatusCancelled,
		},
		"cancel with wait blocks until the process is reaped": {
			mock: func(m *storagemock.MockRepository) {
				m.On("GetOperationByName", mock.Anything, "paste-28d").Once().Return(runningOp, nil)
				m.On("UpdateStatus", mock.Anything, runningOp.ID, model.OperationStatusCancelled, "").Once().Return(nil)
				m.On("GetOperation", mock.Anything, runningOp.ID).Once().Return(cancelledOp, nil)
			},
			spawn:     true,
			req:       cancel.Request{NameOrID: "paste-28d", Wait: true},
			expStatus: model.OperationStatusCancelled,
		},
		"terminal operations cannot be cancelled": {
			mock: func(m *storagemock.MockRepository) {
				op := *runningOp
				op.Status = model.OperationStatusCompleted
				m.On("GetOperationByName", mock.Anything, "paste-28d").Once().Return(&op, nil)
			},
			req:    cancel.Request{NameOrID: "paste-28d"},
			expErr: model.ErrNotValid,
		},
		"live operation without a handle fails with not running": {
			mock: func(m *storagemock.MockRepository) {
				m.On("GetOperationByName", mock.Anything, "paste-28d").Once().Return(runningOp, nil)
			},
			req:    cancel.Request{NameOrID: "paste-28d"},
			expErr: model.ErrNotRunning,
		},
		"unknown operation fails with not found": {
			mock: func(m *storagemock.MockRepository) {
				m.On("GetOperationByName", mock.Anything, "missing-op").Once().Return(nil, model.ErrNotFound)
			},
			req:    cancel.Request{NameOrID: "missing-op"},
			expErr: model.ErrNotFound,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			repo := &storagemock.MockRepository{}
			test.mock(repo)

			superv, err := fake.NewSupervisor(fake.SupervisorConfig{Repository: repo})
			require.NoError(t, err)
			if test.spawn {
				require.NoError(t, superv.Spawn(context.Background(), *runningOp))
			}

			svc, err := cancel.NewService(cancel.ServiceConfig{
				Supervisor: superv,
				Repository: repo,
				Logger:     log.Noop,
			})
			require.NoError(t, err)

			got, err := svc.Run(context.Background(), test.req)

			if test.expErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, test.expErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, test.expStatus, got.Status)
				assert.False(t, superv.Alive(runningOp.ID))
			}
			repo.AssertExpectations(t)
		})
	}
}
