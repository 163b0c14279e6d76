package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/cortex/internal/model"
	"github.com/ashita-ai/cortex/internal/registry"
	"github.com/ashita-ai/cortex/internal/service/brains"
)

func (s *Server) registerTools() {
	// cortex_create_brain — create a new draft brain in a vertical.
	s.mcpServer.AddTool(
		mcplib.NewTool("cortex_create_brain",
			mcplib.WithDescription(`Create a new knowledge-base brain for a sales vertical.

The brain starts in 'draft' status. Seed it with content (ICP rules,
response templates, objection handlers, market research) and then activate
it with cortex_update_brain_status. Only one brain per vertical can be
active at a time — activating a new version automatically archives the
previous one.

Version numbers are assigned automatically: the first brain in a vertical
is v1, the next is v2, and so on.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("vertical",
				mcplib.Description("Vertical slug, e.g. 'saas_hr' or 'fintech'. 2-50 lowercase characters, starting with a letter."),
				mcplib.Required(),
			),
			mcplib.WithString("name",
				mcplib.Description("Human-readable brain name (3-100 characters)"),
				mcplib.Required(),
			),
			mcplib.WithString("description",
				mcplib.Description("What this brain covers (10-500 characters)"),
				mcplib.Required(),
			),
			mcplib.WithNumber("quality_gate_threshold",
				mcplib.Description("Confidence below which new insights are flagged for human validation (0.0-1.0, default 0.7)"),
				mcplib.Min(0),
				mcplib.Max(1),
			),
			mcplib.WithBoolean("learning_enabled",
				mcplib.Description("Whether runtime insights can be added to this brain (default true)"),
			),
		),
		s.handleCreateBrain,
	)

	// cortex_list_brains — list brains, optionally filtered.
	s.mcpServer.AddTool(
		mcplib.NewTool("cortex_list_brains",
			mcplib.WithDescription(`List knowledge-base brains with live content counts.

WHEN TO USE: To discover which brains exist, which one is active for a
vertical, or to find a brain_id for other tools.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("vertical",
				mcplib.Description("Optional: only brains in this vertical"),
			),
			mcplib.WithString("status",
				mcplib.Description("Optional: only brains in this status (draft, active, archived)"),
			),
		),
		s.handleListBrains,
	)

	// cortex_get_brain_stats — live content counts for one brain.
	s.mcpServer.AddTool(
		mcplib.NewTool("cortex_get_brain_stats",
			mcplib.WithDescription(`Get live content counts for a brain: ICP rules, response templates,
objection handlers, market research documents, and insights. Counts are
computed from storage on every call, never cached.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("brain_id",
				mcplib.Description("Brain identifier, e.g. 'brain_saas_hr_v1'"),
				mcplib.Required(),
			),
		),
		s.handleGetStats,
	)

	// cortex_get_brain_report — completeness report for one brain.
	s.mcpServer.AddTool(
		mcplib.NewTool("cortex_get_brain_report",
			mcplib.WithDescription(`Generate a content completeness report for a brain.

Reports per-collection counts with last-updated timestamps, plus a
completeness score: the fraction of the four seedable content kinds that
have at least one item. Use this before activating a brain to see what
content is still missing.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("brain_id",
				mcplib.Description("Brain identifier, e.g. 'brain_saas_hr_v1'"),
				mcplib.Required(),
			),
		),
		s.handleGetReport,
	)

	// cortex_update_brain_status — lifecycle transitions.
	s.mcpServer.AddTool(
		mcplib.NewTool("cortex_update_brain_status",
			mcplib.WithDescription(`Transition a brain through its lifecycle.

Legal transitions: draft → active, active → archived, archived → active.
Anything else is rejected. Activating a brain automatically archives any
currently-active brain in the same vertical, and the response reports
which brain was deactivated.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("brain_id",
				mcplib.Description("Brain identifier, e.g. 'brain_saas_hr_v1'"),
				mcplib.Required(),
			),
			mcplib.WithString("status",
				mcplib.Description("Target status: active or archived"),
				mcplib.Required(),
			),
		),
		s.handleUpdateStatus,
	)

	// cortex_delete_brain — cascade delete, confirm required.
	s.mcpServer.AddTool(
		mcplib.NewTool("cortex_delete_brain",
			mcplib.WithDescription(`Permanently delete a brain and ALL of its content: ICP rules, templates,
objection handlers, research documents, and insights.

Only draft and archived brains can be deleted — archive an active brain
first. You MUST pass confirm=true; without it the call fails. This cannot
be undone.`),
			mcplib.WithDestructiveHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("brain_id",
				mcplib.Description("Brain identifier, e.g. 'brain_saas_hr_v1'"),
				mcplib.Required(),
			),
			mcplib.WithBoolean("confirm",
				mcplib.Description("Must be true to actually delete. Safety latch against accidental deletion."),
				mcplib.Required(),
			),
		),
		s.handleDeleteBrain,
	)

	// Seeding tools, one per content kind.
	s.registerSeedTool("cortex_seed_icp_rules", model.KindICPRule,
		`Seed ICP (ideal customer profile) scoring rules into a brain.

Each item needs 'name' (stable identity within the brain) and 'criteria'
(the rule text, used for semantic matching). Optional: 'attribute',
'condition', 'weight'. Re-seeding an item with the same name overwrites it
in place — seeding is idempotent.`,
		`ICP rule objects. Required fields per item: name, criteria.`)

	s.registerSeedTool("cortex_seed_templates", model.KindTemplate,
		`Seed response templates into a brain.

Each item needs 'name' (stable identity) and 'template_text' (the template
body, used for semantic matching). Optional: 'channel', 'stage', 'tone'.
Re-seeding an item with the same name overwrites it in place.`,
		`Response template objects. Required fields per item: name, template_text.`)

	s.registerSeedTool("cortex_seed_handlers", model.KindHandler,
		`Seed objection handlers into a brain.

Each item needs 'objection_text' (both the stable identity and the text
used for semantic matching). Optional: 'response', 'triggers', 'category'.
Re-seeding an item with the same objection_text overwrites it in place.`,
		`Objection handler objects. Required field per item: objection_text.`)

	s.registerSeedTool("cortex_seed_research", model.KindResearch,
		`Seed market research documents into a brain.

Each item needs 'topic' (stable identity) and 'content' (the document
body, used for semantic matching). Optional: 'source', 'published_at'.
Re-seeding an item with the same topic overwrites it in place.`,
		`Market research objects. Required fields per item: topic, content.`)

	// cortex_add_insight — gated runtime learning.
	s.mcpServer.AddTool(
		mcplib.NewTool("cortex_add_insight",
			mcplib.WithDescription(`Add a runtime insight to a brain — something learned from a real sales
interaction, like a recurring objection or a buying-process pattern.

Every insight passes through a quality gate before it is stored:
- Confidence is computed from the source type, importance, and whether a
  supporting quote is included. Call transcripts score highest, manual
  entries lowest.
- Insights too similar to an existing one in the same brain come back as
  'duplicate' with the existing insight's id.
- Low-confidence insights are rejected outright.
- Accepted insights below the brain's quality_gate_threshold (or marked
  high importance) are flagged requires_validation for human review.

Duplicate and rejected are normal outcomes, not errors — inspect 'status'
in the result.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("brain_id",
				mcplib.Description("Brain identifier, e.g. 'brain_saas_hr_v1'"),
				mcplib.Required(),
			),
			mcplib.WithString("content",
				mcplib.Description("The insight itself, stated as a fact (10-5000 characters)"),
				mcplib.Required(),
			),
			mcplib.WithString("category",
				mcplib.Description("One of: buying_process, pain_point, objection, competitive_intel, messaging_effectiveness, icp_signal"),
				mcplib.Required(),
			),
			mcplib.WithString("importance",
				mcplib.Description("How much weight this insight carries: low, medium, or high"),
				mcplib.Required(),
			),
			mcplib.WithString("source_type",
				mcplib.Description("Where this came from: call_transcript, email_reply, linkedin_message, or manual_entry"),
				mcplib.Required(),
			),
			mcplib.WithString("source_id",
				mcplib.Description("Identifier of the source artifact (call id, email id, etc.)"),
				mcplib.Required(),
			),
			mcplib.WithString("lead_id",
				mcplib.Description("Optional: the lead this insight came from"),
			),
			mcplib.WithString("company",
				mcplib.Description("Optional: the company this insight came from"),
			),
			mcplib.WithString("quote",
				mcplib.Description("Optional: a verbatim supporting quote. Raises confidence."),
			),
		),
		s.handleAddInsight,
	)
}

func (s *Server) handleCreateBrain(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	in := registry.CreateBrainInput{
		Vertical:    request.GetString("vertical", ""),
		Name:        request.GetString("name", ""),
		Description: request.GetString("description", ""),
	}

	args := request.GetArguments()
	patch := &model.BrainConfigPatch{}
	if v, ok := args["quality_gate_threshold"].(float64); ok {
		patch.QualityGateThreshold = &v
	}
	if v, ok := args["learning_enabled"].(bool); ok {
		patch.LearningEnabled = &v
	}
	if patch.QualityGateThreshold != nil || patch.LearningEnabled != nil {
		in.Config = patch
	}

	brain, err := s.brainSvc.CreateBrain(ctx, in)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(brain), nil
}

func (s *Server) handleListBrains(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	list, err := s.brainSvc.ListBrains(ctx, registry.ListFilter{
		Vertical: request.GetString("vertical", ""),
		Status:   model.BrainStatus(request.GetString("status", "")),
	})
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"brains": list,
		"total":  len(list),
	}), nil
}

func (s *Server) handleGetStats(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	brainID := request.GetString("brain_id", "")
	if brainID == "" {
		return errorResult("brain_id is required"), nil
	}

	stats, err := s.brainSvc.GetStats(ctx, brainID)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(stats), nil
}

func (s *Server) handleGetReport(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	brainID := request.GetString("brain_id", "")
	if brainID == "" {
		return errorResult("brain_id is required"), nil
	}

	report, err := s.brainSvc.GetReport(ctx, brainID)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(report), nil
}

func (s *Server) handleUpdateStatus(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	brainID := request.GetString("brain_id", "")
	status := request.GetString("status", "")
	if brainID == "" || status == "" {
		return errorResult("brain_id and status are required"), nil
	}

	result, err := s.brainSvc.UpdateStatus(ctx, brainID, model.BrainStatus(status))
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(result), nil
}

func (s *Server) handleDeleteBrain(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	brainID := request.GetString("brain_id", "")
	if brainID == "" {
		return errorResult("brain_id is required"), nil
	}
	confirm := request.GetBool("confirm", false)

	report, err := s.brainSvc.DeleteBrain(ctx, brainID, confirm)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	s.logger.Info("brain deleted via mcp", "brain_id", brainID, "total_deleted", report.TotalDeleted)
	return jsonResult(report), nil
}

// registerSeedTool registers one seeding tool for a content kind. All four
// share the same shape: brain_id plus an items array.
func (s *Server) registerSeedTool(name string, kind model.ContentKind, description, itemsDescription string) {
	s.mcpServer.AddTool(
		mcplib.NewTool(name,
			mcplib.WithDescription(description+`

Batches are partial-success: invalid items are reported per-item in
'errors' while the rest of the batch seeds normally. Archived brains
cannot be seeded.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("brain_id",
				mcplib.Description("Brain identifier, e.g. 'brain_saas_hr_v1'"),
				mcplib.Required(),
			),
			mcplib.WithArray("items",
				mcplib.Description(itemsDescription),
				mcplib.Required(),
			),
		),
		func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
			return s.handleSeed(ctx, request, kind)
		},
	)
}

func (s *Server) handleSeed(ctx context.Context, request mcplib.CallToolRequest, kind model.ContentKind) (*mcplib.CallToolResult, error) {
	brainID := request.GetString("brain_id", "")
	if brainID == "" {
		return errorResult("brain_id is required"), nil
	}

	raw, ok := request.GetArguments()["items"].([]any)
	if !ok {
		return errorResult("items must be an array of objects"), nil
	}

	items := make([]map[string]any, 0, len(raw))
	for i, entry := range raw {
		item, ok := entry.(map[string]any)
		if !ok {
			return errorResult(fmt.Sprintf("items[%d] is not an object", i)), nil
		}
		items = append(items, item)
	}

	result, err := s.brainSvc.Seed(ctx, brainID, kind, items)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(result), nil
}

func (s *Server) handleAddInsight(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	brainID := request.GetString("brain_id", "")
	if brainID == "" {
		return errorResult("brain_id is required"), nil
	}

	result, err := s.brainSvc.AddInsight(ctx, brains.AddInsightInput{
		BrainID:    brainID,
		Content:    request.GetString("content", ""),
		Category:   model.InsightCategory(request.GetString("category", "")),
		Importance: model.Importance(request.GetString("importance", "")),
		Source: model.InsightSource{
			Type:    model.SourceType(request.GetString("source_type", "")),
			ID:      request.GetString("source_id", ""),
			LeadID:  request.GetString("lead_id", ""),
			Company: request.GetString("company", ""),
			Quote:   request.GetString("quote", ""),
		},
	})
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(result), nil
}
