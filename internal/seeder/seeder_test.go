package seeder

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/cortex/internal/embedding"
	"github.com/ashita-ai/cortex/internal/model"
	"github.com/ashita-ai/cortex/internal/registry"
	"github.com/ashita-ai/cortex/internal/vector"
)

func newTestSeeder(t *testing.T) (*Seeder, *registry.Registry, vector.Store) {
	t.Helper()
	store := vector.NewMemoryStore()
	provider := embedding.NewNoopProvider(32)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(store, provider, time.Minute, logger)
	t.Cleanup(reg.Close)
	return New(store, provider, reg, logger), reg, store
}

func createBrain(t *testing.T, reg *registry.Registry) *model.Brain {
	t.Helper()
	brain, err := reg.Create(context.Background(), registry.CreateBrainInput{
		Vertical:    "fintech",
		Name:        "Fintech Brain",
		Description: "knowledge base for fintech prospecting",
	})
	require.NoError(t, err)
	return brain
}

func TestSeedPartialFailure(t *testing.T) {
	seeder, reg, _ := newTestSeeder(t)
	brain := createBrain(t, reg)

	result, err := seeder.Seed(context.Background(), brain.ID, model.KindICPRule, []map[string]any{
		{"name": "Series A", "criteria": "raised a Series A in the last 18 months"},
		{"name": "No Criteria"},
		{"name": "Compliance", "criteria": "subject to SOC2 or PCI-DSS"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.SeededCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 1, result.Errors[0].Index)
	assert.Equal(t, "No Criteria", result.Errors[0].Item)
	assert.Equal(t, "Missing required field: criteria", result.Errors[0].Error)
	assert.Equal(t, "Seeded 2 items with 1 errors", result.Message)

	got, err := reg.Get(context.Background(), brain.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Stats.ICPRulesCount)
}

func TestSeedIdempotent(t *testing.T) {
	seeder, reg, store := newTestSeeder(t)
	brain := createBrain(t, reg)
	ctx := context.Background()

	items := []map[string]any{
		{"name": "Pricing Objection", "template_text": "Our pricing scales with usage."},
	}
	_, err := seeder.Seed(ctx, brain.ID, model.KindTemplate, items)
	require.NoError(t, err)

	// Same key re-seeded with new text overwrites the existing point.
	items[0]["template_text"] = "Our pricing scales with seats."
	result, err := seeder.Seed(ctx, brain.ID, model.KindTemplate, items)
	require.NoError(t, err)
	assert.Equal(t, "Successfully seeded 1 items", result.Message)

	points, err := store.Scroll(ctx, vector.CollectionTemplates, vector.MatchBrain(brain.ID), 10, true)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "Our pricing scales with seats.", points[0].Payload["template_text"])
}

func TestSeedArchivedBrainRejected(t *testing.T) {
	seeder, reg, _ := newTestSeeder(t)
	brain := createBrain(t, reg)
	ctx := context.Background()

	_, err := reg.Transition(ctx, brain.ID, model.StatusActive)
	require.NoError(t, err)
	_, err = reg.Transition(ctx, brain.ID, model.StatusArchived)
	require.NoError(t, err)

	_, err = seeder.Seed(ctx, brain.ID, model.KindResearch, []map[string]any{
		{"topic": "Market Size", "content": "the fintech TAM grew 14% year over year"},
	})
	var conflict *model.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestSeedUnknownBrain(t *testing.T) {
	seeder, _, _ := newTestSeeder(t)

	_, err := seeder.Seed(context.Background(), "brain_fintech_v9", model.KindResearch, []map[string]any{
		{"topic": "t", "content": "c"},
	})
	var nf *model.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestSeedNormalizesLegacyFields(t *testing.T) {
	seeder, reg, store := newTestSeeder(t)
	brain := createBrain(t, reg)
	ctx := context.Background()

	// Legacy icp_rules rows use match_condition and carry no attribute.
	result, err := seeder.Seed(ctx, brain.ID, model.KindICPRule, []map[string]any{
		{"name": "Funding Stage", "criteria": "raised recently", "match_condition": "gte"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.SeededCount)

	points, err := store.Scroll(ctx, vector.CollectionICPRules, vector.MatchBrain(brain.ID), 10, true)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "gte", points[0].Payload["condition"])
	assert.Equal(t, "funding_stage", points[0].Payload["attribute"])
	assert.Equal(t, brain.ID, points[0].Payload["brain_id"])
	assert.NotEmpty(t, points[0].Payload["created_at"])

	// Legacy objection_handlers rows carry a single trigger string.
	_, err = seeder.Seed(ctx, brain.ID, model.KindHandler, []map[string]any{
		{"objection_text": "too expensive", "trigger": "price"},
	})
	require.NoError(t, err)
	handlers, err := store.Scroll(ctx, vector.CollectionHandlers, vector.MatchBrain(brain.ID), 10, true)
	require.NoError(t, err)
	require.Len(t, handlers, 1)
	assert.Equal(t, []any{"price"}, handlers[0].Payload["triggers"])
}

func TestSeedLargeBatchChunks(t *testing.T) {
	seeder, reg, _ := newTestSeeder(t)
	brain := createBrain(t, reg)

	items := make([]map[string]any, 150)
	for i := range items {
		items[i] = map[string]any{
			"topic":   model.DisplayName(nil, i),
			"content": "research body for entry " + model.DisplayName(nil, i),
		}
	}

	result, err := seeder.Seed(context.Background(), brain.ID, model.KindResearch, items)
	require.NoError(t, err)
	assert.Equal(t, 150, result.SeededCount)
	assert.Empty(t, result.Errors)
}

func TestSeedEmptyBatch(t *testing.T) {
	seeder, reg, _ := newTestSeeder(t)
	brain := createBrain(t, reg)

	result, err := seeder.Seed(context.Background(), brain.ID, model.KindICPRule, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.SeededCount)
	assert.Empty(t, result.Errors)
	assert.Equal(t, "No items to seed", result.Message)
}

func TestSeedAllItemsInvalid(t *testing.T) {
	seeder, reg, _ := newTestSeeder(t)
	brain := createBrain(t, reg)

	result, err := seeder.Seed(context.Background(), brain.ID, model.KindICPRule, []map[string]any{
		{"name": "First"},
		{"name": "Second"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.SeededCount)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, "No valid items to seed. 2 errors.", result.Message)
}

func TestSeedMissingBothFieldsReportsEmbedField(t *testing.T) {
	seeder, reg, _ := newTestSeeder(t)
	brain := createBrain(t, reg)

	// An item missing both the embed and key fields reports the embed field.
	result, err := seeder.Seed(context.Background(), brain.ID, model.KindICPRule, []map[string]any{
		{"priority": 1},
	})
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "Missing required field: criteria", result.Errors[0].Error)
	assert.Equal(t, "item_0", result.Errors[0].Item)
}

func TestSeedUnknownKind(t *testing.T) {
	seeder, reg, _ := newTestSeeder(t)
	brain := createBrain(t, reg)

	_, err := seeder.Seed(context.Background(), brain.ID, model.ContentKind("playbooks"), nil)
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
}
