package vector_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/cortex/internal/testutil"
	"github.com/ashita-ai/cortex/internal/vector"
)

// Exercises the Qdrant-backed store against a real container. Skipped in
// short mode so unit runs stay Docker-free.
func TestQdrantStoreRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	tc := testutil.MustStartQdrant()
	t.Cleanup(tc.Terminate)

	ctx := context.Background()
	store, err := tc.NewTestStore(ctx, testutil.TestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Healthy(ctx))

	// EnsureCollections is idempotent.
	require.NoError(t, store.EnsureCollections(ctx))

	vec := func(fill float32) []float32 {
		v := make([]float32, testutil.TestDims)
		for i := range v {
			v[i] = fill
		}
		v[0] = 1 // keep vectors non-degenerate
		return v
	}

	idA := uuid.NewString()
	idB := uuid.NewString()
	require.NoError(t, store.Upsert(ctx, vector.CollectionICPRules, []vector.Point{
		{ID: idA, Vector: vec(0.1), Payload: map[string]any{"brain_id": "brain_saas_hr_v1", "name": "Company Size"}},
		{ID: idB, Vector: vec(0.9), Payload: map[string]any{"brain_id": "brain_fintech_v1", "name": "Industry"}},
	}))

	count, err := store.Count(ctx, vector.CollectionICPRules, vector.MatchBrain("brain_saas_hr_v1"))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	points, err := store.Scroll(ctx, vector.CollectionICPRules, vector.MatchBrain("brain_saas_hr_v1"), 10, true)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "Company Size", points[0].Payload["name"])

	// Query scoped to a brain only sees that brain's points.
	scored, err := store.Query(ctx, vector.CollectionICPRules, vec(0.9), vector.MatchBrain("brain_saas_hr_v1"), 10, 0)
	require.NoError(t, err)
	require.Len(t, scored, 1)
	assert.Equal(t, "Company Size", scored[0].Payload["name"])

	// Upsert with the same id overwrites in place.
	require.NoError(t, store.Upsert(ctx, vector.CollectionICPRules, []vector.Point{
		{ID: idA, Vector: vec(0.1), Payload: map[string]any{"brain_id": "brain_saas_hr_v1", "name": "Company Size v2"}},
	}))
	points, err = store.Scroll(ctx, vector.CollectionICPRules, vector.MatchBrain("brain_saas_hr_v1"), 10, true)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "Company Size v2", points[0].Payload["name"])

	require.NoError(t, store.Delete(ctx, vector.CollectionICPRules, []string{idA}))
	count, err = store.Count(ctx, vector.CollectionICPRules, vector.MatchBrain("brain_saas_hr_v1"))
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// The other brain's point is untouched.
	count, err = store.Count(ctx, vector.CollectionICPRules, vector.MatchBrain("brain_fintech_v1"))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
