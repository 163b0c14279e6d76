package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/cortex/internal/embedding"
	"github.com/ashita-ai/cortex/internal/gate"
	"github.com/ashita-ai/cortex/internal/model"
	"github.com/ashita-ai/cortex/internal/registry"
	"github.com/ashita-ai/cortex/internal/seeder"
	"github.com/ashita-ai/cortex/internal/service/brains"
	"github.com/ashita-ai/cortex/internal/vector"
)

func newTestMCP(t *testing.T) *Server {
	t.Helper()
	store := vector.NewMemoryStore()
	provider := embedding.NewNoopProvider(32)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(store, provider, time.Minute, logger)
	t.Cleanup(reg.Close)
	sdr := seeder.New(store, provider, reg, logger)
	g := gate.New(store, provider, gate.DefaultConfig(), logger)
	svc := brains.New(reg, sdr, g, store, logger)
	return New(svc, "test", logger)
}

// toolRequest builds a CallToolRequest with the given arguments.
func toolRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// toolText extracts the first TextContent text from a CallToolResult.
func toolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content in tool result")
	return ""
}

// toolJSON decodes the first TextContent as JSON into a map.
func toolJSON(t *testing.T, result *mcplib.CallToolResult) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &out))
	return out
}

// createBrain creates a brain through the tool handler and returns its id.
func createBrain(t *testing.T, s *Server, vertical string) string {
	t.Helper()
	result, err := s.handleCreateBrain(context.Background(), toolRequest("cortex_create_brain", map[string]any{
		"vertical":    vertical,
		"name":        "Test Brain",
		"description": "A brain used in tests, covering nothing in particular.",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, toolText(t, result))

	data := toolJSON(t, result)
	id, _ := data["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestHandleCreateBrain(t *testing.T) {
	s := newTestMCP(t)

	result, err := s.handleCreateBrain(context.Background(), toolRequest("cortex_create_brain", map[string]any{
		"vertical":               "saas_hr",
		"name":                   "SaaS HR Brain",
		"description":            "Knowledge base for the HR software vertical.",
		"quality_gate_threshold": 0.8,
		"learning_enabled":       false,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, toolText(t, result))

	data := toolJSON(t, result)
	assert.Equal(t, "brain_saas_hr_v1", data["id"])
	assert.Equal(t, "draft", data["status"])

	config, ok := data["config"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 0.8, config["quality_gate_threshold"])
	assert.Equal(t, false, config["learning_enabled"])
}

func TestHandleCreateBrain_InvalidVertical(t *testing.T) {
	s := newTestMCP(t)

	result, err := s.handleCreateBrain(context.Background(), toolRequest("cortex_create_brain", map[string]any{
		"vertical":    "Not A Slug",
		"name":        "Bad Brain",
		"description": "This vertical slug should be rejected.",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(t, result), "vertical")
}

func TestHandleListBrains(t *testing.T) {
	s := newTestMCP(t)
	createBrain(t, s, "fintech")
	createBrain(t, s, "saas_hr")

	result, err := s.handleListBrains(context.Background(), toolRequest("cortex_list_brains", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, float64(2), toolJSON(t, result)["total"])

	result, err = s.handleListBrains(context.Background(), toolRequest("cortex_list_brains", map[string]any{
		"vertical": "fintech",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, float64(1), toolJSON(t, result)["total"])
}

func TestHandleUpdateStatus(t *testing.T) {
	s := newTestMCP(t)
	ctx := context.Background()
	brainID := createBrain(t, s, "saas_hr")

	result, err := s.handleUpdateStatus(ctx, toolRequest("cortex_update_brain_status", map[string]any{
		"brain_id": brainID,
		"status":   "active",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, toolText(t, result))
	data := toolJSON(t, result)
	assert.Equal(t, "active", data["new_status"])
	assert.Nil(t, data["deactivated_brain_id"])

	// Activating a second version archives the first.
	v2 := createBrain(t, s, "saas_hr")
	result, err = s.handleUpdateStatus(ctx, toolRequest("cortex_update_brain_status", map[string]any{
		"brain_id": v2,
		"status":   "active",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, toolText(t, result))
	assert.Equal(t, brainID, toolJSON(t, result)["deactivated_brain_id"])
}

func TestHandleUpdateStatus_IllegalTransition(t *testing.T) {
	s := newTestMCP(t)
	brainID := createBrain(t, s, "saas_hr")

	result, err := s.handleUpdateStatus(context.Background(), toolRequest("cortex_update_brain_status", map[string]any{
		"brain_id": brainID,
		"status":   "archived",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleSeed(t *testing.T) {
	s := newTestMCP(t)
	ctx := context.Background()
	brainID := createBrain(t, s, "saas_hr")

	result, err := s.handleSeed(ctx, toolRequest("cortex_seed_icp_rules", map[string]any{
		"brain_id": brainID,
		"items": []any{
			map[string]any{"name": "Company Size", "criteria": "50-500 employees"},
			map[string]any{"name": "No Criteria"}, // invalid: missing criteria
		},
	}), model.KindICPRule)
	require.NoError(t, err)
	require.False(t, result.IsError, toolText(t, result))

	data := toolJSON(t, result)
	assert.Equal(t, float64(1), data["seeded_count"])
	errs, ok := data["errors"].([]any)
	require.True(t, ok)
	require.Len(t, errs, 1)
	assert.Equal(t, "Seeded 1 items with 1 errors", data["message"])
}

func TestHandleSeed_ItemsNotObjects(t *testing.T) {
	s := newTestMCP(t)
	brainID := createBrain(t, s, "saas_hr")

	result, err := s.handleSeed(context.Background(), toolRequest("cortex_seed_icp_rules", map[string]any{
		"brain_id": brainID,
		"items":    []any{"just a string"},
	}), model.KindICPRule)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(t, result), "items[0]")
}

func TestHandleSeed_MissingItems(t *testing.T) {
	s := newTestMCP(t)
	brainID := createBrain(t, s, "saas_hr")

	result, err := s.handleSeed(context.Background(), toolRequest("cortex_seed_icp_rules", map[string]any{
		"brain_id": brainID,
	}), model.KindICPRule)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleDeleteBrain(t *testing.T) {
	s := newTestMCP(t)
	ctx := context.Background()
	brainID := createBrain(t, s, "saas_hr")

	// Without confirm the delete is refused.
	result, err := s.handleDeleteBrain(ctx, toolRequest("cortex_delete_brain", map[string]any{
		"brain_id": brainID,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleDeleteBrain(ctx, toolRequest("cortex_delete_brain", map[string]any{
		"brain_id": brainID,
		"confirm":  true,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, toolText(t, result))
	assert.Contains(t, toolJSON(t, result)["message"], "deleted successfully")

	// Gone afterwards.
	result, err = s.handleGetStats(ctx, toolRequest("cortex_get_brain_stats", map[string]any{
		"brain_id": brainID,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleAddInsight(t *testing.T) {
	s := newTestMCP(t)
	ctx := context.Background()
	brainID := createBrain(t, s, "saas_hr")

	_, err := s.handleUpdateStatus(ctx, toolRequest("cortex_update_brain_status", map[string]any{
		"brain_id": brainID,
		"status":   "active",
	}))
	require.NoError(t, err)

	args := map[string]any{
		"brain_id":    brainID,
		"content":     "Prospects in this vertical consistently ask about SOC 2 during the first call.",
		"category":    "buying_process",
		"importance":  "medium",
		"source_type": "call_transcript",
		"source_id":   "call_001",
		"quote":       "Do you have SOC 2? That's a hard requirement for us.",
	}

	result, err := s.handleAddInsight(ctx, toolRequest("cortex_add_insight", args))
	require.NoError(t, err)
	require.False(t, result.IsError, toolText(t, result))

	data := toolJSON(t, result)
	assert.Equal(t, "created", data["status"])
	insightID, _ := data["insight_id"].(string)
	assert.NotEmpty(t, insightID)

	// Same content again resolves to the existing insight.
	result, err = s.handleAddInsight(ctx, toolRequest("cortex_add_insight", args))
	require.NoError(t, err)
	require.False(t, result.IsError, toolText(t, result))

	data = toolJSON(t, result)
	assert.Equal(t, "duplicate", data["status"])
	assert.Equal(t, insightID, data["existing_id"])
}

func TestHandleAddInsight_ValidationError(t *testing.T) {
	s := newTestMCP(t)
	brainID := createBrain(t, s, "saas_hr")

	result, err := s.handleAddInsight(context.Background(), toolRequest("cortex_add_insight", map[string]any{
		"brain_id":    brainID,
		"content":     "short", // below minimum length
		"category":    "pain_point",
		"importance":  "low",
		"source_type": "manual_entry",
		"source_id":   "note_1",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(t, result), "content")
}

func TestHandleGetStatsAndReport(t *testing.T) {
	s := newTestMCP(t)
	ctx := context.Background()
	brainID := createBrain(t, s, "saas_hr")

	_, err := s.handleSeed(ctx, toolRequest("cortex_seed_research", map[string]any{
		"brain_id": brainID,
		"items": []any{
			map[string]any{"topic": "Market Size", "content": "The HR software market is large and growing."},
		},
	}), model.KindResearch)
	require.NoError(t, err)

	result, err := s.handleGetStats(ctx, toolRequest("cortex_get_brain_stats", map[string]any{
		"brain_id": brainID,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, toolText(t, result))

	stats, ok := toolJSON(t, result)["stats"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), stats["research_docs_count"])
	assert.Equal(t, float64(0), stats["icp_rules_count"])

	result, err = s.handleGetReport(ctx, toolRequest("cortex_get_brain_report", map[string]any{
		"brain_id": brainID,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, toolText(t, result))

	report := toolJSON(t, result)
	assert.Equal(t, 0.25, report["completeness"])
	assert.Contains(t, report["message"], "25% content completeness")
}

func TestHandleGetStats_MissingBrainID(t *testing.T) {
	s := newTestMCP(t)

	result, err := s.handleGetStats(context.Background(), toolRequest("cortex_get_brain_stats", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestErrorResult(t *testing.T) {
	result := errorResult("something broke")
	assert.True(t, result.IsError)
	assert.Equal(t, "something broke", toolText(t, result))
}

func TestRegisterTools(t *testing.T) {
	s := newTestMCP(t)
	require.NotNil(t, s.MCPServer())
}
