package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ashita-ai/cortex/internal/auth"
	"github.com/ashita-ai/cortex/internal/model"
	"github.com/ashita-ai/cortex/internal/registry"
	"github.com/ashita-ai/cortex/internal/service/brains"
	"github.com/ashita-ai/cortex/internal/vector"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	jwtMgr              *auth.JWTManager
	credentials         *auth.CredentialStore
	brainSvc            *brains.Service
	store               vector.Store
	embedding           string
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	JWTMgr              *auth.JWTManager
	Credentials         *auth.CredentialStore
	BrainSvc            *brains.Service
	Store               vector.Store
	Embedding           string
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		jwtMgr:              d.JWTMgr,
		credentials:         d.Credentials,
		brainSvc:            d.BrainSvc,
		store:               d.Store,
		embedding:           d.Embedding,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
	}
}

// HandleAuthToken handles POST /auth/token: exchanges agent credentials for a JWT.
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBodyBytes)
	var req model.AuthTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}

	agent, err := h.credentials.Authenticate(req.AgentID, req.APIKey)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueToken(agent)
	if err != nil {
		h.logger.Error("issue token failed", "error", err, "agent_id", req.AgentID)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to issue token")
		return
	}

	writeJSON(w, r, http.StatusOK, model.AuthTokenResponse{Token: token, ExpiresAt: expiresAt})
}

// HandleCreateBrain handles POST /v1/brains.
func (h *Handlers) HandleCreateBrain(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBodyBytes)
	var req model.CreateBrainRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}

	brain, err := h.brainSvc.CreateBrain(r.Context(), registry.CreateBrainInput{
		Vertical:    req.Vertical,
		Name:        req.Name,
		Description: req.Description,
		Config:      req.Config,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, brain)
}

// HandleListBrains handles GET /v1/brains with optional vertical and status
// query filters.
func (h *Handlers) HandleListBrains(w http.ResponseWriter, r *http.Request) {
	filter := registry.ListFilter{
		Vertical: r.URL.Query().Get("vertical"),
		Status:   model.BrainStatus(r.URL.Query().Get("status")),
	}
	list, err := h.brainSvc.ListBrains(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeList(w, r, list, len(list))
}

// HandleGetBrain handles GET /v1/brains/{brain_id}.
func (h *Handlers) HandleGetBrain(w http.ResponseWriter, r *http.Request) {
	brain, err := h.brainSvc.GetBrain(r.Context(), r.PathValue("brain_id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, brain)
}

// HandleUpdateStatus handles POST /v1/brains/{brain_id}/status.
func (h *Handlers) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBodyBytes)
	var req model.UpdateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}

	result, err := h.brainSvc.UpdateStatus(r.Context(), r.PathValue("brain_id"), model.BrainStatus(req.Status))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// HandleDeleteBrain handles DELETE /v1/brains/{brain_id}?confirm=true.
func (h *Handlers) HandleDeleteBrain(w http.ResponseWriter, r *http.Request) {
	confirm := r.URL.Query().Get("confirm") == "true"
	report, err := h.brainSvc.DeleteBrain(r.Context(), r.PathValue("brain_id"), confirm)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

// HandleSeed handles POST /v1/brains/{brain_id}/seed/{kind}.
func (h *Handlers) HandleSeed(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBodyBytes)
	var req model.SeedRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}

	result, err := h.brainSvc.Seed(r.Context(),
		r.PathValue("brain_id"), model.ContentKind(r.PathValue("kind")), req.Items)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// HandleAddInsight handles POST /v1/brains/{brain_id}/insights.
func (h *Handlers) HandleAddInsight(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBodyBytes)
	var req model.AddInsightRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}

	result, err := h.brainSvc.AddInsight(r.Context(), brains.AddInsightInput{
		BrainID:    r.PathValue("brain_id"),
		Content:    req.Content,
		Category:   req.Category,
		Importance: req.Importance,
		Source:     req.Source,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Status != "created" {
		status = http.StatusOK
	}
	writeJSON(w, r, status, result)
}

// HandleGetStats handles GET /v1/brains/{brain_id}/stats.
func (h *Handlers) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.brainSvc.GetStats(r.Context(), r.PathValue("brain_id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// HandleGetReport handles GET /v1/brains/{brain_id}/report.
func (h *Handlers) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.brainSvc.GetReport(r.Context(), r.PathValue("brain_id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

// HandleHealth handles GET /health. Reports degraded rather than failing when
// the vector store is unreachable, so load balancers keep routing while the
// store recovers.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	storeStatus := "ok"
	status := "ok"
	if err := h.store.Healthy(r.Context()); err != nil {
		storeStatus = "unavailable"
		status = "degraded"
	}

	writeJSON(w, r, http.StatusOK, model.HealthResponse{
		Status:    status,
		Version:   h.version,
		Store:     storeStatus,
		Embedding: h.embedding,
		Uptime:    int64(time.Since(h.startedAt).Seconds()),
	})
}
