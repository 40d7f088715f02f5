package storagemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/cementlab/simops/internal/model"
	"github.com/cementlab/simops/internal/storage"
)

// MockRepository is a testify mock of storage.Repository.
type MockRepository struct {
	mock.Mock
}

var _ storage.Repository = (*MockRepository)(nil)

func (m *MockRepository) CreateOperation(ctx context.Context, op model.Operation) error {
	args := m.Called(ctx, op)
	return args.Error(0)
}

func (m *MockRepository) GetOperation(ctx context.Context, id string) (*model.Operation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Operation), args.Error(1)
}

func (m *MockRepository) GetOperationByName(ctx context.Context, name string) (*model.Operation, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Operation), args.Error(1)
}

func (m *MockRepository) ListOperations(ctx context.Context, filter storage.ListFilter) ([]model.Operation, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Operation), args.Error(1)
}

func (m *MockRepository) DeleteOperation(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) UpdateStatus(ctx context.Context, id string, status model.OperationStatus, cause string) error {
	args := m.Called(ctx, id, status, cause)
	return args.Error(0)
}

func (m *MockRepository) UpdateProgress(ctx context.Context, id string, fraction float64, step string) error {
	args := m.Called(ctx, id, fraction, step)
	return args.Error(0)
}
