package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/cortex/internal/auth"
	"github.com/ashita-ai/cortex/internal/model"
	"github.com/ashita-ai/cortex/internal/ratelimit"
	"github.com/ashita-ai/cortex/internal/service/brains"
	"github.com/ashita-ai/cortex/internal/vector"
)

// Server is the Cortex HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Limiter, MCPServer.
type ServerConfig struct {
	// Required dependencies.
	JWTMgr      *auth.JWTManager
	Credentials *auth.CredentialStore
	BrainSvc    *brains.Service
	Store       vector.Store
	Embedding   string // provider name, reported in /health
	Logger      *slog.Logger

	// Optional dependencies (nil = disabled). SeedLimiter, InsightLimiter,
	// and AuthLimiter override Limiter on their routes when set.
	Limiter        ratelimit.Limiter
	SeedLimiter    ratelimit.Limiter
	InsightLimiter ratelimit.Limiter
	AuthLimiter    ratelimit.Limiter
	MCPServer      *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		JWTMgr:              cfg.JWTMgr,
		Credentials:         cfg.Credentials,
		BrainSvc:            cfg.BrainSvc,
		Store:               cfg.Store,
		Embedding:           cfg.Embedding,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	// Request ID extractor for rate limit error responses.
	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}

	agentRL := ratelimit.Middleware(cfg.Limiter, agentKeyFunc, reqIDFunc)
	seedRL := ratelimit.Middleware(orLimiter(cfg.SeedLimiter, cfg.Limiter), agentKeyFunc, reqIDFunc)
	insightRL := ratelimit.Middleware(orLimiter(cfg.InsightLimiter, cfg.Limiter), agentKeyFunc, reqIDFunc)
	authRL := ratelimit.Middleware(orLimiter(cfg.AuthLimiter, cfg.Limiter), ratelimit.IPKeyFunc, reqIDFunc)

	mux := http.NewServeMux()

	// Auth endpoint (no auth required, rate limited by IP).
	mux.Handle("POST /auth/token", authRL(http.HandlerFunc(h.HandleAuthToken)))

	readRole := requireRole(model.RoleReader)
	agentRole := requireRole(model.RoleAgent)
	operatorRole := requireRole(model.RoleOperator)

	// Brain lifecycle (operator+).
	mux.Handle("POST /v1/brains", agentRL(operatorRole(http.HandlerFunc(h.HandleCreateBrain))))
	mux.Handle("POST /v1/brains/{brain_id}/status", agentRL(operatorRole(http.HandlerFunc(h.HandleUpdateStatus))))
	mux.Handle("DELETE /v1/brains/{brain_id}", agentRL(operatorRole(http.HandlerFunc(h.HandleDeleteBrain))))

	// Content seeding (operator+).
	mux.Handle("POST /v1/brains/{brain_id}/seed/{kind}", seedRL(operatorRole(http.HandlerFunc(h.HandleSeed))))

	// Insight ingestion (agent+).
	mux.Handle("POST /v1/brains/{brain_id}/insights", insightRL(agentRole(http.HandlerFunc(h.HandleAddInsight))))

	// Reads (reader+).
	mux.Handle("GET /v1/brains", agentRL(readRole(http.HandlerFunc(h.HandleListBrains))))
	mux.Handle("GET /v1/brains/{brain_id}", agentRL(readRole(http.HandlerFunc(h.HandleGetBrain))))
	mux.Handle("GET /v1/brains/{brain_id}/stats", agentRL(readRole(http.HandlerFunc(h.HandleGetStats))))
	mux.Handle("GET /v1/brains/{brain_id}/report", agentRL(readRole(http.HandlerFunc(h.HandleGetReport))))

	// MCP StreamableHTTP transport (auth required, reader+).
	if cfg.MCPServer != nil {
		mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer)
		mux.Handle("/mcp", readRole(mcpHTTP))
	}

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// orLimiter returns override when set, otherwise fallback.
func orLimiter(override, fallback ratelimit.Limiter) ratelimit.Limiter {
	if override != nil {
		return override
	}
	return fallback
}

// agentKeyFunc extracts the agent ID from the request context for rate limiting.
// Returns empty string for admin roles (exempt from rate limits).
func agentKeyFunc(r *http.Request) string {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		return ""
	}
	if model.RoleAtLeast(claims.Role, model.RoleAdmin) {
		return ""
	}
	return claims.AgentID
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
