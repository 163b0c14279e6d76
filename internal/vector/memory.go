package vector

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryStore is a brute-force in-memory Store. It backs local development
// when no Qdrant URL is configured, and the unit tests. Cosine similarity
// over normalized vectors, exact scan per query.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Point
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]Point)}
}

// EnsureCollections creates the known collections.
func (m *MemoryStore) EnsureCollections(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range AllCollections() {
		if m.collections[c] == nil {
			m.collections[c] = make(map[string]Point)
		}
	}
	return nil
}

// Upsert writes points, overwriting ids in place.
func (m *MemoryStore) Upsert(_ context.Context, collection string, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll := m.collections[collection]
	if coll == nil {
		coll = make(map[string]Point)
		m.collections[collection] = coll
	}
	for _, p := range points {
		coll[p.ID] = clonePoint(p)
	}
	return nil
}

// Scroll returns up to limit points matching the filter, in stable id order.
func (m *MemoryStore) Scroll(_ context.Context, collection string, filter Filter, limit int, withPayload bool) ([]Point, error) {
	if limit <= 0 {
		limit = 100
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Point
	for _, p := range m.collections[collection] {
		if !matches(p.Payload, filter) {
			continue
		}
		cp := Point{ID: p.ID}
		if withPayload {
			cp.Payload = clonePayload(p.Payload)
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Query returns the nearest points by cosine similarity, best first.
func (m *MemoryStore) Query(_ context.Context, collection string, vec []float32, filter Filter, limit int, scoreThreshold float32) ([]ScoredPoint, error) {
	if limit <= 0 {
		limit = 10
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ScoredPoint
	for _, p := range m.collections[collection] {
		if !matches(p.Payload, filter) {
			continue
		}
		score := cosine(vec, p.Vector)
		if scoreThreshold > 0 && score < scoreThreshold {
			continue
		}
		out = append(out, ScoredPoint{
			Point: Point{ID: p.ID, Payload: clonePayload(p.Payload)},
			Score: score,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count returns the number of points matching the filter.
func (m *MemoryStore) Count(_ context.Context, collection string, filter Filter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, p := range m.collections[collection] {
		if matches(p.Payload, filter) {
			n++
		}
	}
	return n, nil
}

// Delete removes points by id.
func (m *MemoryStore) Delete(_ context.Context, collection string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll := m.collections[collection]
	for _, id := range ids {
		delete(coll, id)
	}
	return nil
}

// Healthy always succeeds.
func (m *MemoryStore) Healthy(_ context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

func matches(payload map[string]any, filter Filter) bool {
	for field, want := range filter.Matches {
		got, ok := payload[field].(string)
		if !ok || got != want {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func clonePoint(p Point) Point {
	cp := Point{ID: p.ID, Payload: clonePayload(p.Payload)}
	if p.Vector != nil {
		cp.Vector = make([]float32, len(p.Vector))
		copy(cp.Vector, p.Vector)
	}
	return cp
}

func clonePayload(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}
