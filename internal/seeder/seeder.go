// Package seeder implements batch content ingestion into a brain's
// collections.
//
// Seeding is per-item fault tolerant: invalid items are reported and skipped
// while the rest of the batch proceeds. Identity is deterministic — a point's
// id derives from the brain and the item's key field, so re-seeding the same
// batch overwrites rather than duplicates.
package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashita-ai/cortex/internal/embedding"
	"github.com/ashita-ai/cortex/internal/model"
	"github.com/ashita-ai/cortex/internal/vector"
)

// StatusChecker resolves a brain's current status. Satisfied by the registry.
type StatusChecker interface {
	Status(ctx context.Context, brainID string) (model.BrainStatus, string, error)
}

// Seeder ingests content batches into a brain.
type Seeder struct {
	store    vector.Store
	embedder embedding.Provider
	statuses StatusChecker
	logger   *slog.Logger
}

// New creates a Seeder.
func New(store vector.Store, embedder embedding.Provider, statuses StatusChecker, logger *slog.Logger) *Seeder {
	return &Seeder{store: store, embedder: embedder, statuses: statuses, logger: logger}
}

// seedItem is a validated, normalized batch member awaiting embedding.
type seedItem struct {
	pointID   string
	embedText string
	payload   map[string]any
}

// Seed ingests items of one content kind into a brain.
//
// Archived brains reject seeding outright. Items missing their kind's
// required fields are recorded in the result's Errors and skipped; the batch
// never fails as a whole for item-level problems. An embedding provider
// failure, by contrast, aborts the call — partially embedded batches are
// never written.
func (s *Seeder) Seed(ctx context.Context, brainID string, kind model.ContentKind, items []map[string]any) (*model.SeedingResult, error) {
	spec, ok := model.SpecFor(kind)
	if !ok {
		return nil, model.NewValidationError("kind", fmt.Sprintf("unknown content kind %q", kind))
	}

	if len(items) == 0 {
		return &model.SeedingResult{
			BrainID:    brainID,
			Collection: spec.Collection,
			Message:    "No items to seed",
		}, nil
	}

	status, _, err := s.statuses.Status(ctx, brainID)
	if err != nil {
		return nil, err
	}
	if status == model.StatusArchived {
		return nil, &model.ConflictError{
			Reason: fmt.Sprintf("cannot seed archived brain %q: reactivate the brain first", brainID),
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var valid []seedItem
	var seedErrs []model.SeedError

	for i, item := range items {
		normalized := model.NormalizeContentItem(kind, item)

		if field, ok := missingField(spec, normalized); !ok {
			seedErrs = append(seedErrs, model.SeedError{
				Index: i,
				Item:  model.DisplayName(normalized, i),
				Error: fmt.Sprintf("Missing required field: %s", field),
			})
			continue
		}

		key := normalized[spec.KeyField].(string)
		payload := make(map[string]any, len(normalized)+3)
		payload["brain_id"] = brainID
		for k, v := range normalized {
			payload[k] = v
		}
		payload["created_at"] = now
		payload["updated_at"] = now

		valid = append(valid, seedItem{
			pointID:   vector.PointID(brainID, key),
			embedText: normalized[spec.EmbedField].(string),
			payload:   payload,
		})
	}

	points := make([]vector.Point, 0, len(valid))
	for start := 0; start < len(valid); start += embedding.MaxBatchSize {
		end := min(start+embedding.MaxBatchSize, len(valid))
		chunk := valid[start:end]

		texts := make([]string, len(chunk))
		for i, item := range chunk {
			texts[i] = item.embedText
		}
		vecs, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, &model.EmbeddingError{Err: err}
		}
		for i, item := range chunk {
			points = append(points, vector.Point{ID: item.pointID, Vector: vecs[i], Payload: item.payload})
		}
	}

	if len(points) > 0 {
		if err := s.store.Upsert(ctx, spec.Collection, points); err != nil {
			return nil, &model.StoreError{Op: fmt.Sprintf("seed %s", spec.Collection), Err: err}
		}
	}

	message := fmt.Sprintf("Successfully seeded %d items", len(points))
	switch {
	case len(points) == 0:
		message = fmt.Sprintf("No valid items to seed. %d errors.", len(seedErrs))
	case len(seedErrs) > 0:
		message = fmt.Sprintf("Seeded %d items with %d errors", len(points), len(seedErrs))
	}

	s.logger.Info("content seeded",
		"brain_id", brainID,
		"collection", spec.Collection,
		"seeded", len(points),
		"errors", len(seedErrs))

	return &model.SeedingResult{
		BrainID:     brainID,
		Collection:  spec.Collection,
		SeededCount: len(points),
		Errors:      seedErrs,
		Message:     message,
	}, nil
}

// missingField checks that the kind's embed and key fields are present as
// non-empty strings. The embed field is checked first, so an item missing
// both reports the embed field.
func missingField(spec model.KindSpec, item map[string]any) (string, bool) {
	for _, field := range requiredFields(spec) {
		v, ok := item[field].(string)
		if !ok || v == "" {
			return field, false
		}
	}
	return "", true
}

func requiredFields(spec model.KindSpec) []string {
	if spec.KeyField == spec.EmbedField {
		return []string{spec.EmbedField}
	}
	return []string{spec.EmbedField, spec.KeyField}
}
