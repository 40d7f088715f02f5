package lineage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cementlab/simops/internal/lineage"
	"github.com/cementlab/simops/internal/model"
	"github.com/cementlab/simops/internal/storage/memory"
)

func testSetup(t *testing.T) (*memory.Repository, *lineage.Tracker) {
	t.Helper()

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)

	tracker, err := lineage.NewTracker(lineage.TrackerConfig{Repository: repo})
	require.NoError(t, err)

	return repo, tracker
}

func operationFixture(id, name, parentID string) model.Operation {
	return model.Operation{
		ID:         id,
		Name:       name,
		Type:       model.OperationTypeHydration,
		Status:     model.OperationStatusQueued,
		ParentID:   parentID,
		Parameters: model.Parameters{"seed": 1},
		CreatedAt:  time.Now().UTC(),
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	repo, tracker := testSetup(t)

	require.NoError(t, repo.CreateOperation(ctx, operationFixture("id-parent", "base-micro", "")))

	id, err := tracker.Resolve(ctx, "base-micro")
	require.NoError(t, err)
	assert.Equal(t, "id-parent", id)

	// An unknown parent drops the link instead of failing the submission.
	id, err = tracker.Resolve(ctx, "no-such-operation")
	require.NoError(t, err)
	assert.Empty(t, id)

	// No parent requested.
	id, err = tracker.Resolve(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestFreeze(t *testing.T) {
	_, tracker := testSetup(t)

	template := model.Parameters{
		"binder": map[string]any{
			"w_c_ratio": 0.45,
			"fineness":  385,
		},
		"curing": map[string]any{"days": 7},
	}
	overrides := model.Parameters{
		"curing": map[string]any{"days": 28},
		"seed":   8731,
	}

	frozen, err := tracker.Freeze(template, overrides)
	require.NoError(t, err)

	// Overrides win, untouched template values survive.
	assert.Equal(t, float64(28), frozen["curing"].(map[string]any)["days"])
	assert.Equal(t, 0.45, frozen["binder"].(map[string]any)["w_c_ratio"])
	assert.Equal(t, float64(8731), frozen["seed"])

	// Later edits to the template never reach the frozen copy.
	template["binder"].(map[string]any)["w_c_ratio"] = 0.99
	assert.Equal(t, 0.45, frozen["binder"].(map[string]any)["w_c_ratio"])

	// Nor do edits to the overrides.
	overrides["seed"] = 1
	assert.Equal(t, float64(8731), frozen["seed"])
}

func TestFreezeWithoutTemplate(t *testing.T) {
	_, tracker := testSetup(t)

	frozen, err := tracker.Freeze(nil, model.Parameters{"seed": 8731})
	require.NoError(t, err)
	assert.Equal(t, float64(8731), frozen["seed"])
}

func TestParentOf(t *testing.T) {
	ctx := context.Background()
	repo, tracker := testSetup(t)

	require.NoError(t, repo.CreateOperation(ctx, operationFixture("id-parent", "base-micro", "")))
	child := operationFixture("id-child", "paste-28d", "id-parent")
	require.NoError(t, repo.CreateOperation(ctx, child))

	parent, err := tracker.ParentOf(ctx, child)
	require.NoError(t, err)
	require.NotNil(t, parent)
	assert.Equal(t, "base-micro", parent.Name)

	// No parent at all.
	root := operationFixture("id-root", "root-op", "")
	parent, err = tracker.ParentOf(ctx, root)
	require.NoError(t, err)
	assert.Nil(t, parent)

	// Dangling reference after the parent is deleted.
	require.NoError(t, repo.DeleteOperation(ctx, "id-parent"))
	_, err = tracker.ParentOf(ctx, child)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestChildrenOf(t *testing.T) {
	ctx := context.Background()
	repo, tracker := testSetup(t)

	require.NoError(t, repo.CreateOperation(ctx, operationFixture("id-parent", "base-micro", "")))
	require.NoError(t, repo.CreateOperation(ctx, operationFixture("id-c1", "paste-7d", "id-parent")))
	require.NoError(t, repo.CreateOperation(ctx, operationFixture("id-c2", "paste-28d", "id-parent")))
	require.NoError(t, repo.CreateOperation(ctx, operationFixture("id-other", "unrelated", "")))

	children, err := tracker.ChildrenOf(ctx, "id-parent")
	require.NoError(t, err)
	assert.Len(t, children, 2)
}
