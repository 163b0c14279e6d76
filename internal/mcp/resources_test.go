package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func readRequest(uri string) mcplib.ReadResourceRequest {
	req := mcplib.ReadResourceRequest{}
	req.Params.URI = uri
	return req
}

func resourceText(t *testing.T, contents []mcplib.ResourceContents) string {
	t.Helper()
	require.Len(t, contents, 1)
	text, ok := contents[0].(mcplib.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, "application/json", text.MIMEType)
	return text.Text
}

func TestBrainsResource(t *testing.T) {
	s := newTestMCP(t)
	createBrain(t, s, "saas_hr")
	createBrain(t, s, "fintech")

	contents, err := s.handleBrainsResource(context.Background(), readRequest("cortex://brains"))
	require.NoError(t, err)

	var brainsList []map[string]any
	require.NoError(t, json.Unmarshal([]byte(resourceText(t, contents)), &brainsList))
	assert.Len(t, brainsList, 2)
}

func TestBrainReportResource(t *testing.T) {
	s := newTestMCP(t)
	brainID := createBrain(t, s, "saas_hr")

	contents, err := s.handleBrainReportResource(context.Background(),
		readRequest("cortex://brains/"+brainID+"/report"))
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(resourceText(t, contents)), &report))
	assert.Equal(t, brainID, report["brain_id"])
	assert.Equal(t, float64(0), report["completeness"])
}

func TestBrainReportResource_InvalidURI(t *testing.T) {
	s := newTestMCP(t)

	_, err := s.handleBrainReportResource(context.Background(), readRequest("cortex://other/thing"))
	assert.Error(t, err)
}

func TestBrainReportResource_UnknownBrain(t *testing.T) {
	s := newTestMCP(t)

	_, err := s.handleBrainReportResource(context.Background(),
		readRequest("cortex://brains/brain_ghost_v1/report"))
	assert.Error(t, err)
}
