package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/cortex/internal/auth"
	"github.com/ashita-ai/cortex/internal/embedding"
	"github.com/ashita-ai/cortex/internal/gate"
	"github.com/ashita-ai/cortex/internal/model"
	"github.com/ashita-ai/cortex/internal/registry"
	"github.com/ashita-ai/cortex/internal/seeder"
	"github.com/ashita-ai/cortex/internal/service/brains"
	"github.com/ashita-ai/cortex/internal/vector"
)

type testServer struct {
	srv    *Server
	tokens map[model.Role]string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := vector.NewMemoryStore()
	provider := embedding.NewNoopProvider(32)
	reg := registry.New(store, provider, time.Minute, logger)
	t.Cleanup(reg.Close)
	sdr := seeder.New(store, provider, reg, logger)
	g := gate.New(store, provider, gate.DefaultConfig(), logger)
	svc := brains.New(reg, sdr, g, store, logger)

	jwtMgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	creds := auth.NewCredentialStore()
	tokens := make(map[model.Role]string)
	for _, role := range []model.Role{model.RoleReader, model.RoleAgent, model.RoleOperator, model.RoleAdmin} {
		agentID := string(role) + "-1"
		require.NoError(t, creds.Register(agentID, "key-"+agentID, role))
		agent, err := creds.Authenticate(agentID, "key-"+agentID)
		require.NoError(t, err)
		token, _, err := jwtMgr.IssueToken(agent)
		require.NoError(t, err)
		tokens[role] = token
	}

	srv := New(ServerConfig{
		JWTMgr:              jwtMgr,
		Credentials:         creds,
		BrainSvc:            svc,
		Store:               store,
		Embedding:           provider.Name(),
		Logger:              logger,
		Port:                0,
		ReadTimeout:         time.Second,
		WriteTimeout:        time.Second,
		Version:             "test",
		MaxRequestBodyBytes: 1 << 20,
	})
	return &testServer{srv: srv, tokens: tokens}
}

func (ts *testServer) do(t *testing.T, method, path string, role model.Role, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+ts.tokens[role])
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Data
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope model.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Error.Code
}

func TestHealthNoAuth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	health := decodeData[model.HealthResponse](t, rec)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test", health.Version)
	assert.Equal(t, "noop", health.Embedding)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/v1/brains", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, model.ErrCodeUnauthorized, errorCode(t, rec))
}

func TestAuthToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/auth/token", "", model.AuthTokenRequest{
		AgentID: "operator-1",
		APIKey:  "key-operator-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeData[model.AuthTokenResponse](t, rec)
	assert.NotEmpty(t, resp.Token)
	assert.True(t, resp.ExpiresAt.After(time.Now()))

	rec = ts.do(t, http.MethodPost, "/auth/token", "", model.AuthTokenRequest{
		AgentID: "operator-1",
		APIKey:  "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoleEnforcement(t *testing.T) {
	ts := newTestServer(t)

	body := model.CreateBrainRequest{
		Vertical:    "fintech",
		Name:        "Fintech Brain",
		Description: "knowledge base for fintech prospecting",
	}

	// Readers and agents cannot create brains.
	rec := ts.do(t, http.MethodPost, "/v1/brains", model.RoleReader, body)
	require.Equal(t, http.StatusForbidden, rec.Code)
	rec = ts.do(t, http.MethodPost, "/v1/brains", model.RoleAgent, body)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Operators can.
	rec = ts.do(t, http.MethodPost, "/v1/brains", model.RoleOperator, body)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Readers can list.
	rec = ts.do(t, http.MethodGet, "/v1/brains", model.RoleReader, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBrainCRUDOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/v1/brains", model.RoleOperator, model.CreateBrainRequest{
		Vertical:    "fintech",
		Name:        "Fintech Brain",
		Description: "knowledge base for fintech prospecting",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	brain := decodeData[model.Brain](t, rec)
	assert.Equal(t, "brain_fintech_v1", brain.ID)

	// Validation errors surface as 400 INVALID_INPUT.
	rec = ts.do(t, http.MethodPost, "/v1/brains", model.RoleOperator, model.CreateBrainRequest{
		Vertical:    "FinTech",
		Name:        "Bad Vertical",
		Description: "vertical has uppercase characters in it",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.ErrCodeInvalidInput, errorCode(t, rec))

	rec = ts.do(t, http.MethodGet, "/v1/brains/"+brain.ID, model.RoleReader, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/v1/brains/brain_fintech_v9", model.RoleReader, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, model.ErrCodeNotFound, errorCode(t, rec))
}

func TestLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/v1/brains", model.RoleOperator, model.CreateBrainRequest{
		Vertical:    "fintech",
		Name:        "Fintech Brain",
		Description: "knowledge base for fintech prospecting",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	brain := decodeData[model.Brain](t, rec)

	// Illegal transition maps to 409 CONFLICT.
	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/v1/brains/%s/status", brain.ID),
		model.RoleOperator, model.UpdateStatusRequest{Status: "archived"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, model.ErrCodeConflict, errorCode(t, rec))

	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/v1/brains/%s/status", brain.ID),
		model.RoleOperator, model.UpdateStatusRequest{Status: "active"})
	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeData[model.TransitionResult](t, rec)
	assert.Equal(t, model.StatusActive, result.NewStatus)

	// Deleting an active brain without confirm: precondition first.
	rec = ts.do(t, http.MethodDelete, "/v1/brains/"+brain.ID, model.RoleOperator, nil)
	require.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Equal(t, model.ErrCodePreconditionFailed, errorCode(t, rec))

	// With confirm, the active guard rejects.
	rec = ts.do(t, http.MethodDelete, "/v1/brains/"+brain.ID+"?confirm=true", model.RoleOperator, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestSeedAndInsightOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/v1/brains", model.RoleOperator, model.CreateBrainRequest{
		Vertical:    "fintech",
		Name:        "Fintech Brain",
		Description: "knowledge base for fintech prospecting",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	brain := decodeData[model.Brain](t, rec)

	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/v1/brains/%s/seed/icp_rules", brain.ID),
		model.RoleOperator, model.SeedRequest{Items: []map[string]any{
			{"name": "Series A", "criteria": "raised a Series A in the last 18 months"},
			{"name": "Broken"},
		}})
	require.Equal(t, http.StatusOK, rec.Code)
	seedResult := decodeData[model.SeedingResult](t, rec)
	assert.Equal(t, 1, seedResult.SeededCount)
	require.Len(t, seedResult.Errors, 1)
	assert.Equal(t, "Missing required field: criteria", seedResult.Errors[0].Error)

	// Unknown kind in the path maps to 400.
	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/v1/brains/%s/seed/playbooks", brain.ID),
		model.RoleOperator, model.SeedRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Agents submit insights.
	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/v1/brains/%s/insights", brain.ID),
		model.RoleAgent, model.AddInsightRequest{
			Content:    "fintech prospects ask about SOC2 before anything else",
			Category:   model.CategoryObjection,
			Importance: model.ImportanceMedium,
			Source:     model.InsightSource{Type: model.SourceCallTranscript, ID: "call-1"},
		})
	require.Equal(t, http.StatusCreated, rec.Code)
	insight := decodeData[model.AddInsightResult](t, rec)
	assert.Equal(t, "created", insight.Status)

	// Resubmission is a duplicate, returned with 200.
	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/v1/brains/%s/insights", brain.ID),
		model.RoleAgent, model.AddInsightRequest{
			Content:    "fintech prospects ask about SOC2 before anything else",
			Category:   model.CategoryObjection,
			Importance: model.ImportanceMedium,
			Source:     model.InsightSource{Type: model.SourceCallTranscript, ID: "call-2"},
		})
	require.Equal(t, http.StatusOK, rec.Code)
	dup := decodeData[model.AddInsightResult](t, rec)
	assert.Equal(t, string(model.OutcomeDuplicate), dup.Status)
	assert.Equal(t, insight.InsightID, dup.ExistingID)

	// Stats and report read back over HTTP.
	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/v1/brains/%s/stats", brain.ID), model.RoleReader, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeData[brains.StatsResult](t, rec)
	assert.Equal(t, 1, stats.Stats.ICPRulesCount)
	assert.Equal(t, 1, stats.Stats.InsightsCount)

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/v1/brains/%s/report", brain.ID), model.RoleReader, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeData[model.BrainReport](t, rec)
	assert.InDelta(t, 0.25, report.Completeness, 0.0001)
}

func TestUnknownFieldRejected(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/v1/brains", model.RoleOperator, map[string]any{
		"vertical":    "fintech",
		"name":        "Fintech Brain",
		"description": "knowledge base for fintech prospecting",
		"surprise":    true,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.ErrCodeInvalidInput, errorCode(t, rec))
}
