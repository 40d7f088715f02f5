package resume_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cementlab/simops/internal/app/resume"
	"github.com/cementlab/simops/internal/log"
	"github.com/cementlab/simops/internal/model"
	"github.com/cementlab/simops/internal/storage/storagemock"
	"github.com/cementlab/simops/internal/supervisor/fake"
)

func TestServiceRun(t *testing.T) {
	pausedOp := &model.Operation{
		ID:     "01K2ZW9KX84BJF7Y3QH0M5TDNR",
		Name:   "paste-28d",
		Type:   model.OperationTypeHydration,
		Status: model.OperationStatusPaused,
	}
	runningOp := &model.Operation{
		ID:     "01K2ZW9KX84BJF7Y3QH0M5TDNR",
		Name:   "paste-28d",
		Type:   model.OperationTypeHydration,
		Status: model.OperationStatusRunning,
	}

	tests := map[string]struct {
		mock      func(m *storagemock.MockRepository)
		spawn     bool
		nameOrID  string
		expStatus model.OperationStatus
		expErr    error
	}{
		"resumes a paused operation": {
			mock: func(m *storagemock.MockRepository) {
				m.On("GetOperationByName", mock.Anything, "paste-28d").Once().Return(pausedOp, nil)
				m.On("UpdateStatus", mock.Anything, pausedOp.ID, model.OperationStatusRunning, "").Once().Return(nil)
				m.On("GetOperation", mock.Anything, pausedOp.ID).Once().Return(runningOp, nil)
			},
			spawn:     true,
			nameOrID:  "paste-28d",
			expStatus: model.OperationStatusRunning,
		},
		"only paused operations can be resumed": {
			mock: func(m *storagemock.MockRepository) {
				m.On("GetOperationByName", mock.Anything, "paste-28d").Once().Return(runningOp, nil)
			},
			spawn:    true,
			nameOrID: "paste-28d",
			expErr:   model.ErrNotValid,
		},
		"paused operation without a live handle fails with not running": {
			mock: func(m *storagemock.MockRepository) {
				m.On("GetOperationByName", mock.Anything, "paste-28d").Once().Return(pausedOp, nil)
			},
			nameOrID: "paste-28d",
			expErr:   model.ErrNotRunning,
		},
		"unknown operation fails with not found": {
			mock: func(m *storagemock.MockRepository) {
				m.On("GetOperationByName", mock.Anything, "missing-op").Once().Return(nil, model.ErrNotFound)
			},
			nameOrID: "missing-op",
			expErr:   model.ErrNotFound,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			repo := &storagemock.MockRepository{}
			test.mock(repo)

			superv, err := fake.NewSupervisor(fake.SupervisorConfig{Repository: repo})
			require.NoError(t, err)
			if test.spawn {
				require.NoError(t, superv.Spawn(context.Background(), *pausedOp))
			}

			svc, err := resume.NewService(resume.ServiceConfig{
				Supervisor: superv,
				Repository: repo,
				Logger:     log.Noop,
			})
			require.NoError(t, err)

			got, err := svc.Run(context.Background(), resume.Request{NameOrID: test.nameOrID})

			if test.expErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, test.expErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, test.expStatus, got.Status)
			}
			repo.AssertExpectations(t)
		})
	}
}
