package model

import (
	"fmt"
	"strings"
)

// ContentKind identifies one of the four seedable content types.
type ContentKind string

// Seedable content kinds.
const (
	KindICPRule  ContentKind = "icp_rules"
	KindTemplate ContentKind = "response_templates"
	KindHandler  ContentKind = "objection_handlers"
	KindResearch ContentKind = "market_research"
)

// KindSpec binds a content kind to its storage collection, the field whose
// text gets embedded, and the field that gives each item its stable identity
// within a brain.
type KindSpec struct {
	Kind       ContentKind
	Collection string
	EmbedField string
	KeyField   string
}

var kindSpecs = map[ContentKind]KindSpec{
	KindICPRule:  {Kind: KindICPRule, Collection: "icp_rules", EmbedField: "criteria", KeyField: "name"},
	KindTemplate: {Kind: KindTemplate, Collection: "response_templates", EmbedField: "template_text", KeyField: "name"},
	KindHandler:  {Kind: KindHandler, Collection: "objection_handlers", EmbedField: "objection_text", KeyField: "objection_text"},
	KindResearch: {Kind: KindResearch, Collection: "market_research", EmbedField: "content", KeyField: "topic"},
}

// SpecFor returns the kind spec for a content kind.
func SpecFor(kind ContentKind) (KindSpec, bool) {
	spec, ok := kindSpecs[kind]
	return spec, ok
}

// SeedableKinds returns all kind specs in collection order.
func SeedableKinds() []KindSpec {
	return []KindSpec{
		kindSpecs[KindICPRule],
		kindSpecs[KindTemplate],
		kindSpecs[KindHandler],
		kindSpecs[KindResearch],
	}
}

// ContentCollections lists every collection that holds brain-scoped content,
// in cascade-delete order. Insights are included: they are deleted with the
// brain even though they are not seeded.
func ContentCollections() []string {
	return []string{
		"icp_rules",
		"response_templates",
		"objection_handlers",
		"market_research",
		"insights",
	}
}

// DeriveAttributeID converts a human display name into a stable snake_case
// attribute id: lowercased, spaces collapsed to underscores, everything
// outside [a-z0-9_] dropped. Pure; used to backfill ids for legacy rows that
// only carry a display name.
func DeriveAttributeID(displayName string) string {
	s := strings.ToLower(strings.TrimSpace(displayName))
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		case r == ' ' || r == '-' || r == '_':
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// NormalizeContentItem applies the legacy-field fallback rules for a kind so
// that rows imported under older field names come out with one canonical
// shape. The input map is not mutated.
//
// Rules:
//   - icp_rules: "match_condition" is accepted as an alias for "condition";
//     a missing "attribute" is derived from "name".
//   - objection_handlers: a single "trigger" string is promoted to a
//     "triggers" list.
func NormalizeContentItem(kind ContentKind, item map[string]any) map[string]any {
	out := make(map[string]any, len(item))
	for k, v := range item {
		out[k] = v
	}

	switch kind {
	case KindICPRule:
		if _, ok := out["condition"]; !ok {
			if mc, ok := out["match_condition"]; ok {
				out["condition"] = mc
				delete(out, "match_condition")
			}
		}
		if _, ok := out["attribute"]; !ok {
			if name, ok := out["name"].(string); ok && name != "" {
				out["attribute"] = DeriveAttributeID(name)
			}
		}
	case KindHandler:
		if _, ok := out["triggers"]; !ok {
			if trigger, ok := out["trigger"]; ok {
				out["triggers"] = []any{trigger}
				delete(out, "trigger")
			}
		}
	}

	return out
}

// DisplayName returns a best-effort human label for a content item, used in
// per-item seed errors: name, then topic, then objection_text, then a
// positional fallback.
func DisplayName(item map[string]any, index int) string {
	for _, field := range []string{"name", "topic", "objection_text"} {
		if v, ok := item[field].(string); ok && v != "" {
			return v
		}
	}
	return fmt.Sprintf("item_%d", index)
}

// SeedError is one invalid item in a seeding batch. The batch continues
// around it.
type SeedError struct {
	Index int    `json:"index"`
	Item  string `json:"item"`
	Error string `json:"error"`
}

// SeedingResult is the partial-success outcome of one seed call. Callers
// must inspect Errors rather than assume all-or-nothing.
type SeedingResult struct {
	BrainID     string      `json:"brain_id"`
	Collection  string      `json:"collection"`
	SeededCount int         `json:"seeded_count"`
	Errors      []SeedError `json:"errors"`
	Message     string      `json:"message"`
}
