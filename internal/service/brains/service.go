// Package brains provides the shared business logic for brain operations.
//
// Both the HTTP API and MCP server delegate to this service, so lifecycle
// rules, seeding semantics, and the insight quality gate behave identically
// across all interfaces.
package brains

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/cortex/internal/gate"
	"github.com/ashita-ai/cortex/internal/model"
	"github.com/ashita-ai/cortex/internal/registry"
	"github.com/ashita-ai/cortex/internal/seeder"
	"github.com/ashita-ai/cortex/internal/telemetry"
	"github.com/ashita-ai/cortex/internal/vector"
)

// Service encapsulates brain business logic shared by HTTP and MCP handlers.
type Service struct {
	registry *registry.Registry
	seeder   *seeder.Seeder
	gate     *gate.Gate
	store    vector.Store
	logger   *slog.Logger

	seedDuration    metric.Float64Histogram
	insightOutcomes metric.Int64Counter
	transitions     metric.Int64Counter
}

// New creates a brain Service.
func New(reg *registry.Registry, sdr *seeder.Seeder, g *gate.Gate, store vector.Store, logger *slog.Logger) *Service {
	meter := telemetry.Meter("cortex/brains")
	seedDur, _ := meter.Float64Histogram("cortex.seed.duration",
		metric.WithDescription("Time to seed a content batch (ms)"),
		metric.WithUnit("ms"),
	)
	outcomes, _ := meter.Int64Counter("cortex.insights.outcomes",
		metric.WithDescription("Insight gate outcomes by result"),
	)
	trans, _ := meter.Int64Counter("cortex.brains.transitions",
		metric.WithDescription("Brain status transitions"),
	)
	return &Service{
		registry:        reg,
		seeder:          sdr,
		gate:            g,
		store:           store,
		logger:          logger,
		seedDuration:    seedDur,
		insightOutcomes: outcomes,
		transitions:     trans,
	}
}

// CreateBrain creates a new draft brain in a vertical.
func (s *Service) CreateBrain(ctx context.Context, in registry.CreateBrainInput) (*model.Brain, error) {
	return s.registry.Create(ctx, in)
}

// GetBrain returns a brain with live stats.
func (s *Service) GetBrain(ctx context.Context, brainID string) (*model.Brain, error) {
	return s.registry.Get(ctx, brainID)
}

// ListBrains returns brains matching the filter.
func (s *Service) ListBrains(ctx context.Context, filter registry.ListFilter) ([]*model.Brain, error) {
	return s.registry.List(ctx, filter)
}

// Seed ingests a content batch of one kind into a brain.
func (s *Service) Seed(ctx context.Context, brainID string, kind model.ContentKind, items []map[string]any) (*model.SeedingResult, error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("cortex.brain_id", brainID),
		attribute.String("cortex.content_kind", string(kind)),
		attribute.Int("cortex.batch_size", len(items)),
	)

	start := time.Now()
	result, err := s.seeder.Seed(ctx, brainID, kind, items)
	s.seedDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.String("kind", string(kind))))
	return result, err
}

// UpdateStatus transitions a brain through its lifecycle state machine.
func (s *Service) UpdateStatus(ctx context.Context, brainID string, status model.BrainStatus) (*model.TransitionResult, error) {
	result, err := s.registry.Transition(ctx, brainID, status)
	if err != nil {
		return nil, err
	}
	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(result.PreviousStatus)),
		attribute.String("to", string(result.NewStatus)),
	))
	return result, nil
}

// DeleteBrain removes a brain and all of its content. Confirm must be true.
func (s *Service) DeleteBrain(ctx context.Context, brainID string, confirm bool) (*model.DeletionReport, error) {
	return s.registry.Delete(ctx, brainID, confirm)
}

// StatsResult is a brain's identity plus its live content counts.
type StatsResult struct {
	BrainID  string            `json:"brain_id"`
	Vertical string            `json:"vertical"`
	Status   model.BrainStatus `json:"status"`
	Stats    model.BrainStats  `json:"stats"`
}

// GetStats returns live content counts for a brain.
func (s *Service) GetStats(ctx context.Context, brainID string) (*StatsResult, error) {
	brain, err := s.registry.Get(ctx, brainID)
	if err != nil {
		return nil, err
	}
	return &StatsResult{
		BrainID:  brain.ID,
		Vertical: brain.Vertical,
		Status:   brain.Status,
		Stats:    brain.Stats,
	}, nil
}

// GetReport builds a completeness report for a brain: per-collection counts
// with last-updated timestamps, and the fraction of seedable content kinds
// that have at least one item.
func (s *Service) GetReport(ctx context.Context, brainID string) (*model.BrainReport, error) {
	brain, err := s.registry.Get(ctx, brainID)
	if err != nil {
		return nil, err
	}

	kinds := model.SeedableKinds()
	details := make([]model.CollectionDetail, 0, len(kinds))
	populated := 0
	for _, spec := range kinds {
		count, err := s.store.Count(ctx, spec.Collection, vector.MatchBrain(brainID))
		if err != nil {
			s.logger.Warn("report: collection count failed", "collection", spec.Collection, "error", err)
			details = append(details, model.CollectionDetail{Collection: spec.Collection})
			continue
		}
		detail := model.CollectionDetail{Collection: spec.Collection, Count: count}
		if count > 0 {
			populated++
			// Scroll sized to the exact count so the newest timestamp is
			// never computed from a truncated read.
			points, err := s.store.Scroll(ctx, spec.Collection, vector.MatchBrain(brainID), count, true)
			if err != nil {
				s.logger.Warn("report: collection scan failed", "collection", spec.Collection, "error", err)
			} else {
				detail.LastUpdated = lastUpdated(points)
			}
		}
		details = append(details, detail)
	}

	completeness := float64(populated) / float64(len(kinds))
	return &model.BrainReport{
		BrainID:        brain.ID,
		Name:           brain.Name,
		Vertical:       brain.Vertical,
		Status:         brain.Status,
		Completeness:   completeness,
		ContentDetails: details,
		CreatedAt:      brain.CreatedAt,
		UpdatedAt:      brain.UpdatedAt,
		Message: fmt.Sprintf("Brain report generated with %d%% content completeness",
			int(completeness*100)),
	}, nil
}

// lastUpdated returns the greatest updated_at timestamp among the points.
// Timestamps are RFC 3339, so string comparison orders correctly.
func lastUpdated(points []vector.Point) *string {
	var latest string
	for _, p := range points {
		if ts, ok := p.Payload["updated_at"].(string); ok && ts > latest {
			latest = ts
		}
	}
	if latest == "" {
		return nil
	}
	return &latest
}

// AddInsightInput is a proposed runtime learning for a brain.
type AddInsightInput struct {
	BrainID    string
	Content    string
	Category   model.InsightCategory
	Importance model.Importance
	Source     model.InsightSource
}

// AddInsight runs a proposed insight through the quality gate and persists it
// on acceptance. Duplicates and rejections are normal outcomes, returned in
// the result rather than as errors.
func (s *Service) AddInsight(ctx context.Context, in AddInsightInput) (*model.AddInsightResult, error) {
	if err := model.ValidateInsightInput(in.Content, in.Category, in.Importance, in.Source); err != nil {
		return nil, err
	}

	brain, err := s.registry.Get(ctx, in.BrainID)
	if err != nil {
		return nil, err
	}
	if brain.Status == model.StatusArchived {
		return nil, &model.ConflictError{
			Reason: fmt.Sprintf("cannot add insights to archived brain %q", in.BrainID),
		}
	}
	if !brain.Config.LearningEnabled {
		return nil, &model.PreconditionError{
			Reason: fmt.Sprintf("learning is disabled for brain %q", in.BrainID),
		}
	}

	result, vec, err := s.gate.Evaluate(ctx, gate.Input{
		BrainID:    in.BrainID,
		Content:    in.Content,
		Category:   in.Category,
		Importance: in.Importance,
		Source:     in.Source,
	}, brain.Config.QualityGateThreshold)
	if err != nil {
		return nil, err
	}

	s.insightOutcomes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", string(result.Outcome))))

	switch result.Outcome {
	case model.OutcomeRejected:
		return &model.AddInsightResult{
			Status:     string(model.OutcomeRejected),
			Confidence: result.Confidence,
			Reason:     result.Reason,
			Message:    fmt.Sprintf("Insight rejected: %s", result.Reason),
		}, nil

	case model.OutcomeDuplicate:
		return &model.AddInsightResult{
			Status:     string(model.OutcomeDuplicate),
			ExistingID: result.ExistingID,
			Similarity: result.Similarity,
			Confidence: result.Confidence,
			Message: fmt.Sprintf("Duplicate of existing insight '%s' (similarity %.2f)",
				result.ExistingID, result.Similarity),
		}, nil
	}

	insight := model.Insight{
		ID:         "ins_" + uuid.NewString(),
		BrainID:    in.BrainID,
		Content:    in.Content,
		Category:   in.Category,
		Importance: in.Importance,
		Source:     in.Source,
		Confidence: result.Confidence,
		CreatedAt:  time.Now().UTC(),
	}
	insight.UpdatedAt = insight.CreatedAt
	insight.ValidationStatus = model.ValidationValidated
	if result.RequiresValidation {
		insight.ValidationStatus = model.ValidationPending
	}

	if err := s.store.Upsert(ctx, vector.CollectionInsights, []vector.Point{{
		ID:      uuid.NewString(),
		Vector:  vec,
		Payload: insightPayload(&insight),
	}}); err != nil {
		return nil, &model.StoreError{Op: "persist insight", Err: err}
	}

	s.logger.Info("insight added",
		"brain_id", in.BrainID,
		"insight_id", insight.ID,
		"category", in.Category,
		"confidence", result.Confidence,
		"requires_validation", result.RequiresValidation)

	return &model.AddInsightResult{
		Status:             "created",
		InsightID:          insight.ID,
		Confidence:         result.Confidence,
		RequiresValidation: result.RequiresValidation,
		Message:            fmt.Sprintf("Insight '%s' added successfully", insight.ID),
	}, nil
}

// insightPayload serializes an insight for storage.
func insightPayload(ins *model.Insight) map[string]any {
	return map[string]any{
		"id":         ins.ID,
		"brain_id":   ins.BrainID,
		"content":    ins.Content,
		"category":   string(ins.Category),
		"importance": string(ins.Importance),
		"source": map[string]any{
			"type":    string(ins.Source.Type),
			"id":      ins.Source.ID,
			"lead_id": ins.Source.LeadID,
			"company": ins.Source.Company,
			"quote":   ins.Source.Quote,
		},
		"confidence":        ins.Confidence,
		"validation_status": string(ins.ValidationStatus),
		"created_at":        ins.CreatedAt.Format(time.RFC3339),
		"updated_at":        ins.UpdatedAt.Format(time.RFC3339),
	}
}
