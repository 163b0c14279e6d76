// Package vector defines the vector store contract Cortex persists through,
// with a Qdrant-backed implementation and an in-memory one for development
// and tests.
//
// Every record is a point: an id, a dense vector, and a JSON-like payload.
// Points live in named collections; brain-scoped reads always filter on the
// brain_id payload field.
package vector

import (
	"context"

	"github.com/google/uuid"
)

// Collection names.
const (
	CollectionBrains    = "brains"
	CollectionICPRules  = "icp_rules"
	CollectionTemplates = "response_templates"
	CollectionHandlers  = "objection_handlers"
	CollectionResearch  = "market_research"
	CollectionInsights  = "insights"
)

// AllCollections lists every collection the store manages.
func AllCollections() []string {
	return []string{
		CollectionBrains,
		CollectionICPRules,
		CollectionTemplates,
		CollectionHandlers,
		CollectionResearch,
		CollectionInsights,
	}
}

// Point is one record in a collection.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// ScoredPoint is a query result with its similarity score.
type ScoredPoint struct {
	Point
	Score float32
}

// Filter restricts reads to points whose payload matches every listed
// keyword equality. An empty filter matches everything.
type Filter struct {
	Matches map[string]string
}

// MatchBrain returns a filter scoping to one brain's content.
func MatchBrain(brainID string) Filter {
	return Filter{Matches: map[string]string{"brain_id": brainID}}
}

// Store is the vector database contract.
type Store interface {
	// EnsureCollections creates missing collections and payload indexes.
	// Idempotent; called once at startup.
	EnsureCollections(ctx context.Context) error

	// Upsert writes points into a collection, overwriting ids in place.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Scroll returns up to limit points matching the filter. Payloads are
	// omitted when withPayload is false.
	Scroll(ctx context.Context, collection string, filter Filter, limit int, withPayload bool) ([]Point, error)

	// Query returns the nearest points to vec, best first. Results below
	// scoreThreshold are dropped when it is > 0.
	Query(ctx context.Context, collection string, vec []float32, filter Filter, limit int, scoreThreshold float32) ([]ScoredPoint, error)

	// Count returns the number of points matching the filter.
	Count(ctx context.Context, collection string, filter Filter) (int, error)

	// Delete removes points by id.
	Delete(ctx context.Context, collection string, ids []string) error

	// Healthy returns nil when the store is reachable.
	Healthy(ctx context.Context) error

	Close() error
}

// pointNamespace is the fixed UUIDv5 namespace for content identity.
// Changing it would re-key every stored point.
var pointNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// PointID derives the storage id for a content item from its brain and key
// field value. Pure and deterministic: re-seeding the same key overwrites the
// existing point instead of duplicating it.
func PointID(brainID, key string) string {
	return uuid.NewSHA1(pointNamespace, []byte(brainID+":"+key)).String()
}
