// Package registry owns brain entities and their lifecycle state machine.
//
// Brains live as points in the vector store's brains collection; there is no
// separate system of record. Stats are never stored — every read recounts the
// brain's content collections. Status transitions for a vertical are
// serialized through a per-vertical lock so the single-active invariant holds
// under concurrent writers.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ashita-ai/cortex/internal/embedding"
	"github.com/ashita-ai/cortex/internal/model"
	"github.com/ashita-ai/cortex/internal/vector"
)

// Registry manages brain records and their status state machine.
type Registry struct {
	store    vector.Store
	embedder embedding.Provider
	cache    *StatusCache
	logger   *slog.Logger

	mu        sync.Mutex
	verticals map[string]*sync.Mutex
}

// New creates a Registry. The status cache TTL bounds how stale the hot-path
// status checks (seeding preconditions) may be; transitions and deletes
// invalidate eagerly.
func New(store vector.Store, embedder embedding.Provider, cacheTTL time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		store:     store,
		embedder:  embedder,
		cache:     NewStatusCache(cacheTTL),
		logger:    logger,
		verticals: make(map[string]*sync.Mutex),
	}
}

// Close stops the status cache's eviction goroutine.
func (r *Registry) Close() {
	r.cache.Close()
}

// verticalLock returns the mutex serializing transitions for a vertical.
func (r *Registry) verticalLock(vertical string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.verticals[vertical]
	if !ok {
		lock = &sync.Mutex{}
		r.verticals[vertical] = lock
	}
	return lock
}

// CreateBrainInput is the validated input for Create.
type CreateBrainInput struct {
	Vertical    string
	Name        string
	Description string
	Config      *model.BrainConfigPatch
}

// Create validates the input, assigns the next version id in the vertical,
// and writes the brain in draft status.
func (r *Registry) Create(ctx context.Context, in CreateBrainInput) (*model.Brain, error) {
	if err := model.ValidateVertical(in.Vertical); err != nil {
		return nil, err
	}
	if err := model.ValidateBrainName(in.Name); err != nil {
		return nil, err
	}
	if err := model.ValidateBrainDescription(in.Description); err != nil {
		return nil, err
	}

	// Serialize creates per vertical so two concurrent creates cannot claim
	// the same version number.
	lock := r.verticalLock(in.Vertical)
	lock.Lock()
	defer lock.Unlock()

	existing, err := r.store.Scroll(ctx, vector.CollectionBrains,
		vector.Filter{Matches: map[string]string{"vertical": in.Vertical}}, 100, true)
	if err != nil {
		return nil, &model.StoreError{Op: "list brains for vertical", Err: err}
	}

	version := nextVersion(existing)
	now := time.Now().UTC()
	brain := &model.Brain{
		ID:          model.BrainID(in.Vertical, version),
		Vertical:    in.Vertical,
		Name:        in.Name,
		Version:     fmt.Sprintf("%d.0", version),
		Status:      model.StatusDraft,
		Description: in.Description,
		Config:      in.Config.Apply(model.DefaultBrainConfig()),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := r.writeBrain(ctx, brain); err != nil {
		return nil, err
	}

	r.cache.Set(brain.ID, brain.Status, brain.Vertical)
	r.logger.Info("brain created", "brain_id", brain.ID, "vertical", brain.Vertical)
	return brain, nil
}

// nextVersion returns 1 + the highest version number among the vertical's
// existing brains. Point ids are UUIDs, so versions come from the payload's
// id field ("brain_{vertical}_v{N}").
func nextVersion(existing []vector.Point) int {
	highest := 0
	for _, p := range existing {
		id := asString(p.Payload["id"])
		idx := strings.LastIndex(id, "_v")
		if idx < 0 {
			continue
		}
		if n, err := strconv.Atoi(id[idx+2:]); err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1
}

// Get fetches a brain and recomputes its stats live. A failing content
// collection degrades its count to 0 rather than failing the read.
func (r *Registry) Get(ctx context.Context, brainID string) (*model.Brain, error) {
	brain, err := r.getRaw(ctx, brainID)
	if err != nil {
		return nil, err
	}
	brain.Stats = r.liveStats(ctx, brainID)
	return brain, nil
}

// ListFilter restricts List results.
type ListFilter struct {
	Vertical string
	Status   model.BrainStatus
}

// List returns brains matching the filter, each with live stats.
func (r *Registry) List(ctx context.Context, filter ListFilter) ([]*model.Brain, error) {
	matches := map[string]string{}
	if filter.Vertical != "" {
		matches["vertical"] = filter.Vertical
	}
	if filter.Status != "" {
		if !filter.Status.Valid() {
			return nil, model.NewValidationError("status", fmt.Sprintf("unknown status %q", filter.Status))
		}
		matches["status"] = string(filter.Status)
	}

	points, err := r.store.Scroll(ctx, vector.CollectionBrains, vector.Filter{Matches: matches}, 100, true)
	if err != nil {
		return nil, &model.StoreError{Op: "list brains", Err: err}
	}

	brains := make([]*model.Brain, 0, len(points))
	for _, p := range points {
		brain, err := brainFromPayload(p.Payload)
		if err != nil {
			r.logger.Warn("registry: skipping malformed brain point", "point_id", p.ID, "error", err)
			continue
		}
		brain.Stats = r.liveStats(ctx, brain.ID)
		brains = append(brains, brain)
	}
	return brains, nil
}

// Status returns a brain's current status and vertical, read through the
// cache. The cache is best-effort: transitions and deletes invalidate it, and
// entries expire on their own.
func (r *Registry) Status(ctx context.Context, brainID string) (model.BrainStatus, string, error) {
	if status, vertical, ok := r.cache.Get(brainID); ok {
		return status, vertical, nil
	}
	brain, err := r.getRaw(ctx, brainID)
	if err != nil {
		return "", "", err
	}
	r.cache.Set(brainID, brain.Status, brain.Vertical)
	return brain.Status, brain.Vertical, nil
}

// Transition moves a brain to newStatus, enforcing the state machine. When
// activating, any currently active sibling in the same vertical is archived
// in the same critical section and reported as DeactivatedBrainID. The whole
// read-check-archive-write sequence holds the vertical's lock, so two
// concurrent activations cannot both observe the same prior active brain.
func (r *Registry) Transition(ctx context.Context, brainID string, newStatus model.BrainStatus) (*model.TransitionResult, error) {
	if err := model.ValidateBrainID(brainID); err != nil {
		return nil, err
	}
	if !newStatus.Valid() {
		return nil, model.NewValidationError("status",
			fmt.Sprintf("unknown status %q (must be one of: draft, active, archived)", newStatus))
	}

	// Resolve the vertical before locking; the brain's vertical never changes.
	pre, err := r.getRaw(ctx, brainID)
	if err != nil {
		return nil, err
	}

	lock := r.verticalLock(pre.Vertical)
	lock.Lock()
	defer lock.Unlock()

	// Re-read inside the critical section so the transition check sees the
	// latest state, not what the caller fetched before acquiring the lock.
	brain, err := r.getRaw(ctx, brainID)
	if err != nil {
		return nil, err
	}

	if !model.CanTransition(brain.Status, newStatus) {
		return nil, &model.ConflictError{
			Reason: fmt.Sprintf("invalid transition from %q to %q for brain %q",
				brain.Status, newStatus, brainID),
			LegalTargets: model.ValidTransitions[brain.Status],
		}
	}

	var deactivatedID *string
	if newStatus == model.StatusActive {
		siblings, err := r.store.Scroll(ctx, vector.CollectionBrains, vector.Filter{
			Matches: map[string]string{
				"vertical": brain.Vertical,
				"status":   string(model.StatusActive),
			},
		}, 10, true)
		if err != nil {
			return nil, &model.StoreError{Op: "find active sibling", Err: err}
		}

		// At most one sibling should be active, but archive all of them in
		// case past races left extras behind.
		for _, p := range siblings {
			sibling, err := brainFromPayload(p.Payload)
			if err != nil || sibling.ID == brainID {
				continue
			}
			sibling.Status = model.StatusArchived
			sibling.UpdatedAt = time.Now().UTC()
			if err := r.writeBrain(ctx, sibling); err != nil {
				return nil, fmt.Errorf("registry: archive sibling %s: %w", sibling.ID, err)
			}
			r.cache.Set(sibling.ID, sibling.Status, sibling.Vertical)
			deactivatedID = &sibling.ID
			r.logger.Info("brain auto-archived by activation",
				"brain_id", sibling.ID, "activated_brain_id", brainID)
		}
	}

	previous := brain.Status
	brain.Status = newStatus
	brain.UpdatedAt = time.Now().UTC()
	if err := r.writeBrain(ctx, brain); err != nil {
		return nil, err
	}
	r.cache.Set(brain.ID, brain.Status, brain.Vertical)

	r.logger.Info("brain status updated",
		"brain_id", brainID, "previous", previous, "new", newStatus)

	return &model.TransitionResult{
		BrainID:            brainID,
		PreviousStatus:     previous,
		NewStatus:          newStatus,
		DeactivatedBrainID: deactivatedID,
		Message: fmt.Sprintf("Brain '%s' status updated from '%s' to '%s'",
			brainID, previous, newStatus),
	}, nil
}

// Delete removes a brain and cascades across all content collections.
// Requires confirm; active brains must be archived first. A failing
// collection aborts the cascade before the brain record is touched, so the
// content keeps its owner and the delete can be retried.
func (r *Registry) Delete(ctx context.Context, brainID string, confirm bool) (*model.DeletionReport, error) {
	if !confirm {
		return nil, &model.PreconditionError{
			Reason: "deletion requires confirm=true; this action cannot be undone",
		}
	}

	brain, err := r.getRaw(ctx, brainID)
	if err != nil {
		return nil, err
	}
	if brain.Status == model.StatusActive {
		return nil, &model.ConflictError{
			Reason: fmt.Sprintf("cannot delete active brain %q: archive the brain first", brainID),
		}
	}

	deleted := make(map[string]int, len(model.ContentCollections()))
	total := 0
	for _, collection := range model.ContentCollections() {
		n, err := r.purgeCollection(ctx, collection, brainID)
		if err != nil {
			return nil, err
		}
		deleted[collection] = n
		total += n
	}

	// Delete the brain record itself, resolving the actual point id rather
	// than recomputing it — legacy rows may predate deterministic ids.
	brainPoints, err := r.store.Scroll(ctx, vector.CollectionBrains,
		vector.Filter{Matches: map[string]string{"id": brainID}}, 1, false)
	if err != nil {
		return nil, &model.StoreError{Op: "resolve brain point", Err: err}
	}
	if len(brainPoints) > 0 {
		if err := r.store.Delete(ctx, vector.CollectionBrains, []string{brainPoints[0].ID}); err != nil {
			return nil, &model.StoreError{Op: "delete brain record", Err: err}
		}
	}

	r.cache.Invalidate(brainID)
	r.logger.Info("brain deleted", "brain_id", brainID, "content_deleted", total)

	return &model.DeletionReport{
		BrainID:        brainID,
		DeletedContent: deleted,
		TotalDeleted:   total,
		Message: fmt.Sprintf("Brain '%s' and %d content items deleted successfully",
			brainID, total),
	}, nil
}

// purgeScanLimit is the page size for cascade-delete scans.
const purgeScanLimit = 1000

// purgeCollection deletes all of a brain's points in one collection, paging
// until the collection is drained. Each deleted page disappears from the
// next scroll, so re-scrolling the same filter walks the remainder.
func (r *Registry) purgeCollection(ctx context.Context, collection, brainID string) (int, error) {
	total := 0
	for {
		points, err := r.store.Scroll(ctx, collection, vector.MatchBrain(brainID), purgeScanLimit, false)
		if err != nil {
			return 0, &model.StoreError{Op: fmt.Sprintf("cascade scroll %s", collection), Err: err}
		}
		if len(points) == 0 {
			return total, nil
		}
		ids := make([]string, len(points))
		for i, p := range points {
			ids[i] = p.ID
		}
		if err := r.store.Delete(ctx, collection, ids); err != nil {
			return 0, &model.StoreError{Op: fmt.Sprintf("cascade delete %s", collection), Err: err}
		}
		total += len(ids)
		if len(ids) < purgeScanLimit {
			return total, nil
		}
	}
}

// getRaw fetches a brain without stats.
func (r *Registry) getRaw(ctx context.Context, brainID string) (*model.Brain, error) {
	if err := model.ValidateBrainID(brainID); err != nil {
		return nil, err
	}
	points, err := r.store.Scroll(ctx, vector.CollectionBrains,
		vector.Filter{Matches: map[string]string{"id": brainID}}, 1, true)
	if err != nil {
		return nil, &model.StoreError{Op: "get brain", Err: err}
	}
	if len(points) == 0 {
		return nil, &model.NotFoundError{Resource: "brain", ID: brainID}
	}
	return brainFromPayload(points[0].Payload)
}

// liveStats counts the brain's content per collection. A failing collection
// degrades to 0.
func (r *Registry) liveStats(ctx context.Context, brainID string) model.BrainStats {
	count := func(collection string) int {
		n, err := r.store.Count(ctx, collection, vector.MatchBrain(brainID))
		if err != nil {
			r.logger.Warn("registry: stats count failed", "collection", collection, "error", err)
			return 0
		}
		return n
	}
	return model.BrainStats{
		ICPRulesCount:     count(vector.CollectionICPRules),
		TemplatesCount:    count(vector.CollectionTemplates),
		HandlersCount:     count(vector.CollectionHandlers),
		ResearchDocsCount: count(vector.CollectionResearch),
		InsightsCount:     count(vector.CollectionInsights),
	}
}

// writeBrain embeds the brain's descriptive text and upserts its point.
func (r *Registry) writeBrain(ctx context.Context, brain *model.Brain) error {
	vec, err := r.embedder.EmbedDocument(ctx, brain.EmbedText())
	if err != nil {
		return &model.EmbeddingError{Err: err}
	}
	point := vector.Point{
		ID:      vector.PointID(brain.ID, brain.ID),
		Vector:  vec,
		Payload: brainPayload(brain),
	}
	if err := r.store.Upsert(ctx, vector.CollectionBrains, []vector.Point{point}); err != nil {
		return &model.StoreError{Op: "upsert brain", Err: err}
	}
	return nil
}

// brainPayload serializes a brain for storage. Stats are intentionally
// omitted — they are recomputed on every read.
func brainPayload(b *model.Brain) map[string]any {
	return map[string]any{
		"id":          b.ID,
		"vertical":    b.Vertical,
		"name":        b.Name,
		"version":     b.Version,
		"status":      string(b.Status),
		"description": b.Description,
		"config": map[string]any{
			"tier1_threshold":        b.Config.Tier1Threshold,
			"tier2_threshold":        b.Config.Tier2Threshold,
			"tier3_threshold":        b.Config.Tier3Threshold,
			"auto_response_enabled":  b.Config.AutoResponseEnabled,
			"learning_enabled":       b.Config.LearningEnabled,
			"quality_gate_threshold": b.Config.QualityGateThreshold,
		},
		"created_at": b.CreatedAt.Format(time.RFC3339),
		"updated_at": b.UpdatedAt.Format(time.RFC3339),
	}
}

// brainFromPayload deserializes a stored brain payload.
func brainFromPayload(payload map[string]any) (*model.Brain, error) {
	id := asString(payload["id"])
	if id == "" {
		return nil, fmt.Errorf("registry: brain payload missing id")
	}

	brain := &model.Brain{
		ID:          id,
		Vertical:    asString(payload["vertical"]),
		Name:        asString(payload["name"]),
		Version:     asString(payload["version"]),
		Status:      model.BrainStatus(asString(payload["status"])),
		Description: asString(payload["description"]),
		Config:      model.DefaultBrainConfig(),
	}
	if brain.Status == "" {
		brain.Status = model.StatusDraft
	}

	if cfg, ok := payload["config"].(map[string]any); ok {
		brain.Config = model.BrainConfig{
			Tier1Threshold:       asInt(cfg["tier1_threshold"], brain.Config.Tier1Threshold),
			Tier2Threshold:       asInt(cfg["tier2_threshold"], brain.Config.Tier2Threshold),
			Tier3Threshold:       asInt(cfg["tier3_threshold"], brain.Config.Tier3Threshold),
			AutoResponseEnabled:  asBool(cfg["auto_response_enabled"], brain.Config.AutoResponseEnabled),
			LearningEnabled:      asBool(cfg["learning_enabled"], brain.Config.LearningEnabled),
			QualityGateThreshold: asFloat(cfg["quality_gate_threshold"], brain.Config.QualityGateThreshold),
		}
	}

	brain.CreatedAt = asTime(payload["created_at"])
	brain.UpdatedAt = asTime(payload["updated_at"])
	return brain, nil
}

// Payload values come back from the store as strings, int64s, or float64s
// depending on the backend; these helpers coerce without caring which.

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any, fallback int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if parsed, err := strconv.Atoi(n); err == nil {
			return parsed
		}
	}
	return fallback
}

func asFloat(v any, fallback float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return fallback
}

func asBool(v any, fallback bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return fallback
}

func asTime(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
