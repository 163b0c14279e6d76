// Package testutil provides shared test infrastructure for integration tests
// that require a real Qdrant instance.
//
// Usage in TestMain:
//
//	func TestMain(m *testing.M) {
//	    tc := testutil.MustStartQdrant()
//	    defer tc.Terminate()
//	    testStore, _ = tc.NewTestStore(context.Background(), logger)
//	    os.Exit(m.Run())
//	}
package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ashita-ai/cortex/internal/vector"
)

// TestDims is the embedding dimensionality used by integration tests. Small
// on purpose: collection creation and upserts stay fast.
const TestDims = 32

// TestContainer wraps a testcontainers Qdrant container with its gRPC URL.
type TestContainer struct {
	Container testcontainers.Container
	URL       string
}

// MustStartQdrant starts a Qdrant container and waits for it to accept
// connections. Calls os.Exit(1) on failure (suitable for TestMain).
func MustStartQdrant() *TestContainer {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "qdrant/qdrant:v1.13.0",
		ExposedPorts: []string{"6334/tcp"},
		WaitingFor: wait.ForListeningPort("6334/tcp").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: failed to start container: %v\n", err)
		os.Exit(1)
	}

	host, err := container.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: failed to get container host: %v\n", err)
		os.Exit(1)
	}

	port, err := container.MappedPort(ctx, "6334")
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: failed to get container port: %v\n", err)
		os.Exit(1)
	}

	return &TestContainer{
		Container: container,
		URL:       fmt.Sprintf("http://%s:%s", host, port.Port()),
	}
}

// Terminate stops and removes the container.
func (tc *TestContainer) Terminate() {
	if tc.Container != nil {
		_ = tc.Container.Terminate(context.Background())
	}
}

// NewTestStore connects a QdrantStore to the container and creates all
// collections.
func (tc *TestContainer) NewTestStore(ctx context.Context, logger *slog.Logger) (*vector.QdrantStore, error) {
	store, err := vector.NewQdrantStore(vector.QdrantConfig{
		URL:  tc.URL,
		Dims: TestDims,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("testutil: connect qdrant: %w", err)
	}
	if err := store.EnsureCollections(ctx); err != nil {
		return nil, fmt.Errorf("testutil: ensure collections: %w", err)
	}
	return store, nil
}

// TestLogger returns a logger that discards output unless TEST_LOG is set.
func TestLogger() *slog.Logger {
	if os.Getenv("TEST_LOG") != "" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
