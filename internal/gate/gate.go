// Package gate implements the insight quality gate: confidence scoring from
// provenance, semantic duplicate detection scoped per brain, and a rejection
// floor for low-trust submissions.
package gate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashita-ai/cortex/internal/embedding"
	"github.com/ashita-ai/cortex/internal/model"
	"github.com/ashita-ai/cortex/internal/vector"
)

// Config holds the gate's tunable thresholds. Values come from service
// configuration, not code.
type Config struct {
	// DuplicateSimilarity is the cosine similarity at or above which a new
	// insight is considered a duplicate of an existing one in the same brain.
	DuplicateSimilarity float64

	// ConfidenceFloor rejects insights whose derived confidence falls below
	// it, unless the content already duplicates a stored insight — duplicate
	// detection outranks rejection so callers always learn the existing id.
	ConfidenceFloor float64
}

// DefaultConfig returns the gate thresholds used when none are configured.
func DefaultConfig() Config {
	return Config{
		DuplicateSimilarity: 0.85,
		ConfidenceFloor:     0.4,
	}
}

// Gate evaluates proposed insights before they are persisted.
type Gate struct {
	store    vector.Store
	embedder embedding.Provider
	cfg      Config
	logger   *slog.Logger
}

// New creates a Gate.
func New(store vector.Store, embedder embedding.Provider, cfg Config, logger *slog.Logger) *Gate {
	return &Gate{store: store, embedder: embedder, cfg: cfg, logger: logger}
}

// Confidence bases by source type. Recorded conversations outrank
// free-text paraphrases; manual entries rank lowest.
var sourceBaseConfidence = map[model.SourceType]float64{
	model.SourceCallTranscript:  0.9,
	model.SourceEmailReply:      0.8,
	model.SourceLinkedInMessage: 0.7,
	model.SourceManualEntry:     0.6,
}

// Confidence derives an insight's confidence from its provenance: the source
// type sets the base, importance and a verbatim quote add bonuses, and the
// result clamps to [0, 1]. Pure.
func Confidence(sourceType model.SourceType, importance model.Importance, hasQuote bool) float64 {
	confidence := sourceBaseConfidence[sourceType]
	switch importance {
	case model.ImportanceHigh:
		confidence += 0.10
	case model.ImportanceMedium:
		confidence += 0.05
	}
	if hasQuote {
		confidence += 0.05
	}
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}
	return confidence
}

// Input is a proposed insight under evaluation.
type Input struct {
	BrainID    string
	Content    string
	Category   model.InsightCategory
	Importance model.Importance
	Source     model.InsightSource
}

// Evaluate runs the gate on a proposed insight. The returned vector is the
// content embedding, so an accepting caller can persist without re-embedding;
// it is nil unless the insight is accepted. The duplicate check runs before
// the confidence floor, so a low-confidence resubmission of stored content
// still resolves to the existing insight's id.
//
// qualityThreshold is the owning brain's quality_gate_threshold: accepted
// insights below it are flagged requires_validation, as are all high-importance
// insights regardless of confidence.
func (g *Gate) Evaluate(ctx context.Context, in Input, qualityThreshold float64) (*model.GateResult, []float32, error) {
	confidence := Confidence(in.Source.Type, in.Importance, in.Source.Quote != "")

	vec, err := g.embedder.EmbedDocument(ctx, in.Content)
	if err != nil {
		return nil, nil, &model.EmbeddingError{Err: err}
	}

	// Duplicate detection is scoped to the brain: the same lesson learned
	// independently in two verticals is two insights.
	matches, err := g.store.Query(ctx, vector.CollectionInsights, vec,
		vector.MatchBrain(in.BrainID), 1, float32(g.cfg.DuplicateSimilarity))
	if err != nil {
		return nil, nil, &model.StoreError{Op: "duplicate search", Err: err}
	}
	if len(matches) > 0 {
		existingID, _ := matches[0].Payload["id"].(string)
		g.logger.Debug("insight rejected as duplicate",
			"brain_id", in.BrainID,
			"existing_id", existingID,
			"similarity", matches[0].Score)
		return &model.GateResult{
			Outcome:    model.OutcomeDuplicate,
			Confidence: confidence,
			ExistingID: existingID,
			Similarity: float64(matches[0].Score),
		}, nil, nil
	}

	if confidence < g.cfg.ConfidenceFloor {
		return &model.GateResult{
			Outcome:    model.OutcomeRejected,
			Confidence: confidence,
			Reason: fmt.Sprintf("confidence %.2f below acceptance floor %.2f",
				confidence, g.cfg.ConfidenceFloor),
		}, nil, nil
	}

	return &model.GateResult{
		Outcome:            model.OutcomeAccepted,
		Confidence:         confidence,
		RequiresValidation: in.Importance == model.ImportanceHigh || confidence < qualityThreshold,
	}, vec, nil
}
