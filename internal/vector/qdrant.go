package vector

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"golang.org/x/sync/singleflight"
)

// QdrantConfig holds configuration for connecting to Qdrant.
type QdrantConfig struct {
	URL    string // e.g. "https://xyz.cloud.qdrant.io:6333" or "http://localhost:6333"
	APIKey string
	Dims   uint64
}

// QdrantStore implements Store backed by Qdrant over gRPC.
type QdrantStore struct {
	client *qdrant.Client
	dims   uint64
	logger *slog.Logger

	healthGroup singleflight.Group
	healthErr   atomic.Value // stores *error (pointer-to-error, never nil pointer; inner error may be nil)
	healthAt    atomic.Int64 // unix nanos of last check
}

// parseQdrantURL extracts host, port, and TLS flag from a Qdrant URL.
// Accepts forms like "https://host:6333", "http://host:6333", or "host:6334".
func parseQdrantURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("vector: invalid qdrant URL: %q", rawURL)
	}

	useTLS = u.Scheme == "https"
	host = u.Hostname()

	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("vector: invalid port in qdrant URL: %q", portStr)
		}
		// If the user specified the REST port (6333), use the gRPC port (6334).
		if p == 6333 {
			port = 6334
		} else {
			port = p
		}
	} else {
		port = 6334
	}

	return host, port, useTLS, nil
}

// NewQdrantStore creates a QdrantStore and connects via gRPC.
func NewQdrantStore(cfg QdrantConfig, logger *slog.Logger) (*QdrantStore, error) {
	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("vector: connect to qdrant at %s:%d: %w", host, port, err)
	}

	return &QdrantStore{
		client: client,
		dims:   cfg.Dims,
		logger: logger,
	}, nil
}

// keywordIndexes lists the payload indexes per collection. brain_id carries
// every tenant-scoped read; vertical and status drive the single-active
// sibling lookup; category supports filtered insight queries.
var keywordIndexes = map[string][]string{
	CollectionBrains:    {"id", "vertical", "status"},
	CollectionICPRules:  {"brain_id"},
	CollectionTemplates: {"brain_id"},
	CollectionHandlers:  {"brain_id"},
	CollectionResearch:  {"brain_id"},
	CollectionInsights:  {"brain_id", "category", "validation_status"},
}

// EnsureCollections creates any missing collection and ensures all payload
// indexes are present. Index creation is always attempted regardless of
// whether the collection pre-existed — CreateFieldIndex is idempotent on
// Qdrant, so this safely backfills indexes added after first creation.
func (q *QdrantStore) EnsureCollections(ctx context.Context) error {
	for _, collection := range AllCollections() {
		exists, err := q.client.CollectionExists(ctx, collection)
		if err != nil {
			return fmt.Errorf("vector: check collection %q exists: %w", collection, err)
		}

		if !exists {
			m := uint64(16)
			efConstruct := uint64(128)

			if err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: collection,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     q.dims,
					Distance: qdrant.Distance_Cosine,
					HnswConfig: &qdrant.HnswConfigDiff{
						M:           &m,
						EfConstruct: &efConstruct,
					},
				}),
			}); err != nil {
				return fmt.Errorf("vector: create collection %q: %w", collection, err)
			}
			q.logger.Info("qdrant: created collection", "collection", collection, "dims", q.dims)
		}

		keywordType := qdrant.FieldType_FieldTypeKeyword
		for _, field := range keywordIndexes[collection] {
			if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
				CollectionName: collection,
				FieldName:      field,
				FieldType:      &keywordType,
			}); err != nil {
				return fmt.Errorf("vector: ensure index on %s.%s: %w", collection, field, err)
			}
		}
	}

	q.logger.Info("qdrant: collections ready", "count", len(AllCollections()))
	return nil
}

// Upsert inserts or updates points in a collection.
func (q *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	qdrantPoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		qdrantPoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectorsDense(p.Vector),
			Payload: qdrant.NewValueMap(p.Payload),
		}
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrantPoints,
	})
	if err != nil {
		return fmt.Errorf("vector: qdrant upsert %d points into %q: %w", len(points), collection, err)
	}
	return nil
}

// Scroll returns points matching the filter, without vectors.
func (q *QdrantStore) Scroll(ctx context.Context, collection string, filter Filter, limit int, withPayload bool) ([]Point, error) {
	if limit <= 0 {
		limit = 100
	}

	scrollLimit := uint32(limit) //nolint:gosec // limit is bounded by callers
	resp, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Filter:         toQdrantFilter(filter),
		Limit:          &scrollLimit,
		WithPayload:    qdrant.NewWithPayload(withPayload),
	})
	if err != nil {
		return nil, fmt.Errorf("vector: qdrant scroll %q: %w", collection, err)
	}

	points := make([]Point, 0, len(resp))
	for _, rp := range resp {
		points = append(points, Point{
			ID:      rp.Id.GetUuid(),
			Payload: fromQdrantPayload(rp.Payload),
		})
	}
	return points, nil
}

// Query returns the nearest points to vec, best first.
func (q *QdrantStore) Query(ctx context.Context, collection string, vec []float32, filter Filter, limit int, scoreThreshold float32) ([]ScoredPoint, error) {
	if limit <= 0 {
		limit = 10
	}

	queryLimit := uint64(limit) //nolint:gosec // limit is bounded by callers
	req := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(vec),
		Filter:         toQdrantFilter(filter),
		Limit:          &queryLimit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if scoreThreshold > 0 {
		req.ScoreThreshold = qdrant.PtrOf(scoreThreshold)
	}

	scored, err := q.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vector: qdrant query %q: %w", collection, err)
	}

	results := make([]ScoredPoint, 0, len(scored))
	for _, sp := range scored {
		idStr := sp.Id.GetUuid()
		if idStr == "" {
			continue
		}
		results = append(results, ScoredPoint{
			Point: Point{ID: idStr, Payload: fromQdrantPayload(sp.Payload)},
			Score: sp.Score,
		})
	}
	return results, nil
}

// Count returns the number of points matching the filter.
func (q *QdrantStore) Count(ctx context.Context, collection string, filter Filter) (int, error) {
	count, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Filter:         toQdrantFilter(filter),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("vector: qdrant count %q: %w", collection, err)
	}
	return int(count), nil //nolint:gosec // collection sizes are far below int range
}

// Delete removes points from a collection by id.
func (q *QdrantStore) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(id)
	}

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: pointIDs,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vector: qdrant delete %d points from %q: %w", len(ids), collection, err)
	}
	return nil
}

// Healthy returns nil if Qdrant is reachable. Results are cached for 5
// seconds so hot paths don't hammer the health endpoint. Concurrent calls
// after cache expiry are deduplicated via singleflight so only one gRPC call
// is made; all waiters share its result.
func (q *QdrantStore) Healthy(ctx context.Context) error {
	// Fast path: return the cached result if fresh.
	if time.Since(time.Unix(0, q.healthAt.Load())) < 5*time.Second {
		return q.loadHealthErr()
	}

	// Deduplicate concurrent checks. Use context.Background() instead of the
	// caller's ctx because singleflight reuses the first caller's context —
	// if that caller cancels, all waiters would get a stale error.
	result, _, _ := q.healthGroup.Do("health", func() (any, error) {
		checkCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		_, err := q.client.HealthCheck(checkCtx)
		if err != nil {
			wrapped := fmt.Errorf("vector: qdrant unhealthy: %w", err)
			q.storeHealthErr(wrapped)
		} else {
			q.storeHealthErr(nil)
		}
		q.healthAt.Store(time.Now().UnixNano())
		return q.loadHealthErr(), nil
	})
	if result == nil {
		return nil
	}
	return result.(error)
}

// storeHealthErr stores an error (or nil) in the atomic.Value.
// atomic.Value cannot store nil directly, so we wrap it in a pointer.
func (q *QdrantStore) storeHealthErr(err error) {
	q.healthErr.Store(&err)
}

// loadHealthErr loads the cached health error.
func (q *QdrantStore) loadHealthErr() error {
	v := q.healthErr.Load()
	if v == nil {
		return nil
	}
	return *v.(*error)
}

// Close shuts down the Qdrant gRPC connection.
func (q *QdrantStore) Close() error {
	return q.client.Close()
}

func toQdrantFilter(f Filter) *qdrant.Filter {
	if len(f.Matches) == 0 {
		return nil
	}
	must := make([]*qdrant.Condition, 0, len(f.Matches))
	for field, value := range f.Matches {
		must = append(must, qdrant.NewMatch(field, value))
	}
	return &qdrant.Filter{Must: must}
}

// fromQdrantPayload converts a Qdrant payload into plain Go values.
func fromQdrantPayload(payload map[string]*qdrant.Value) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = fromQdrantValue(v)
	}
	return out
}

func fromQdrantValue(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_StructValue:
		out := make(map[string]any, len(kind.StructValue.GetFields()))
		for k, fv := range kind.StructValue.GetFields() {
			out[k] = fromQdrantValue(fv)
		}
		return out
	case *qdrant.Value_ListValue:
		values := kind.ListValue.GetValues()
		out := make([]any, len(values))
		for i, lv := range values {
			out[i] = fromQdrantValue(lv)
		}
		return out
	default:
		return nil
	}
}
