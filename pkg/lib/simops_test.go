package lib_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cementlab/simops/pkg/lib"
)

func newTestClient(t *testing.T) *lib.Client {
	t.Helper()

	client, err := lib.New(context.Background(), lib.Config{
		DBPath:  filepath.Join(t.TempDir(), "simops.db"),
		DataDir: t.TempDir(),
		Backend: lib.BackendFake,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestClientLifecycle(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	op, err := client.Submit(ctx, lib.SubmitOpts{
		Name: "paste-28d",
		Type: lib.OperationTypeHydration,
		Parameters: map[string]any{
			"binder": map[string]any{"w_c_ratio": 0.45},
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, op.ID)
	assert.Equal(t, lib.OperationStatusQueued, op.Status)

	// Binding runs in the background, the operation becomes running shortly
	// after submission.
	assert.Eventually(t, func() bool {
		got, err := client.Get(ctx, "paste-28d")
		return err == nil && got.Status == lib.OperationStatusRunning
	}, 5*time.Second, 10*time.Millisecond)

	op, err = client.Pause(ctx, "paste-28d")
	require.NoError(t, err)
	assert.Equal(t, lib.OperationStatusPaused, op.Status)

	op, err = client.Resume(ctx, "paste-28d")
	require.NoError(t, err)
	assert.Equal(t, lib.OperationStatusRunning, op.Status)

	op, err = client.Cancel(ctx, "paste-28d", true)
	require.NoError(t, err)
	assert.Equal(t, lib.OperationStatusCancelled, op.Status)
	assert.NotNil(t, op.EndedAt)

	ops, err := client.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "paste-28d", ops[0].Name)
}

func TestClientSubmitErrors(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	_, err := client.Submit(ctx, lib.SubmitOpts{
		Name: "base",
		Type: lib.OperationTypeMicrostructure,
		Parameters: map[string]any{
			"system_size": 100,
		},
	})
	require.NoError(t, err)

	tests := map[string]struct {
		opts   lib.SubmitOpts
		expErr error
	}{
		"a duplicate name is rejected": {
			opts: lib.SubmitOpts{
				Name:       "base",
				Type:       lib.OperationTypeMicrostructure,
				Parameters: map[string]any{"system_size": 100},
			},
			expErr: lib.ErrAlreadyExists,
		},
		"a missing name is rejected": {
			opts: lib.SubmitOpts{
				Type:       lib.OperationTypeMicrostructure,
				Parameters: map[string]any{"system_size": 100},
			},
			expErr: lib.ErrNotValid,
		},
		"an unknown operation type is rejected": {
			opts: lib.SubmitOpts{
				Name:       "odd",
				Type:       lib.OperationType("percolation"),
				Parameters: map[string]any{"system_size": 100},
			},
			expErr: lib.ErrNotValid,
		},
		"empty parameters are rejected": {
			opts: lib.SubmitOpts{
				Name: "bare",
				Type: lib.OperationTypeMicrostructure,
			},
			expErr: lib.ErrNotValid,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := client.Submit(ctx, test.opts)
			assert.ErrorIs(t, err, test.expErr)
		})
	}
}

func TestClientLineage(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	parent, err := client.Submit(ctx, lib.SubmitOpts{
		Name: "base-micro",
		Type: lib.OperationTypeMicrostructure,
		Parameters: map[string]any{
			"binder": map[string]any{"w_c_ratio": 0.40},
		},
	})
	require.NoError(t, err)

	child, err := client.Submit(ctx, lib.SubmitOpts{
		Name:   "hydrated",
		Type:   lib.OperationTypeHydration,
		Parent: "base-micro",
		Parameters: map[string]any{
			"curing": map[string]any{"days": 28},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, parent.ID, child.ParentID)

	// Parameter freezing merges the parent template with the overrides.
	assert.Equal(t, map[string]any{"w_c_ratio": 0.40}, child.Parameters["binder"])
	assert.Equal(t, map[string]any{"days": float64(28)}, child.Parameters["curing"])

	got, err := client.Lineage(ctx, "hydrated")
	require.NoError(t, err)
	require.NotNil(t, got.Parent)
	assert.Equal(t, "base-micro", got.Parent.Name)
	assert.False(t, got.ParentDangling)

	got, err = client.Lineage(ctx, "base-micro")
	require.NoError(t, err)
	require.Len(t, got.Children, 1)
	assert.Equal(t, "hydrated", got.Children[0].Name)
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	_, err := client.Get(ctx, "no-such-op")
	assert.ErrorIs(t, err, lib.ErrNotFound)

	_, err = client.Pause(ctx, "no-such-op")
	assert.ErrorIs(t, err, lib.ErrNotFound)

	_, err = client.Cancel(ctx, "no-such-op", false)
	assert.ErrorIs(t, err, lib.ErrNotFound)
}

func TestClientRemove(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	_, err := client.Submit(ctx, lib.SubmitOpts{
		Name: "short-lived",
		Type: lib.OperationTypeMicrostructure,
		Parameters: map[string]any{
			"system_size": 100,
		},
	})
	require.NoError(t, err)

	// A live operation needs force.
	assert.Eventually(t, func() bool {
		got, err := client.Get(ctx, "short-lived")
		return err == nil && got.Status == lib.OperationStatusRunning
	}, 5*time.Second, 10*time.Millisecond)

	_, err = client.Remove(ctx, "short-lived", false, false)
	assert.ErrorIs(t, err, lib.ErrNotValid)

	op, err := client.Remove(ctx, "short-lived", true, false)
	require.NoError(t, err)
	assert.NoDirExists(t, op.Workdir)

	_, err = client.Get(ctx, "short-lived")
	assert.ErrorIs(t, err, lib.ErrNotFound)
}
