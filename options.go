package cortex

import (
	"log/slog"

	"github.com/ashita-ai/cortex/internal/embedding"
	"github.com/ashita-ai/cortex/internal/model"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	port      int
	qdrantURL string
	logger    *slog.Logger
	version   string
	embedder  embedding.Provider
	agents    []agentCredential
}

type agentCredential struct {
	id     string
	apiKey string
	role   model.Role
}

// WithPort overrides the TCP port from config (CORTEX_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithQdrantURL overrides the Qdrant connection URL from config
// (CORTEX_QDRANT_URL env var).
func WithQdrantURL(url string) Option {
	return func(o *resolvedOptions) { o.qdrantURL = url }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithEmbeddingProvider replaces the config-selected embedding provider
// (OpenAI/Ollama/noop).
func WithEmbeddingProvider(p embedding.Provider) Option {
	return func(o *resolvedOptions) { o.embedder = p }
}

// WithAgent registers an agent credential at startup, in addition to the
// admin agent from CORTEX_ADMIN_API_KEY. Role is one of "reader", "agent",
// "operator", "admin".
func WithAgent(agentID, apiKey string, role string) Option {
	return func(o *resolvedOptions) {
		o.agents = append(o.agents, agentCredential{
			id:     agentID,
			apiKey: apiKey,
			role:   model.Role(role),
		})
	}
}
