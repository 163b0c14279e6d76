// Package model defines the domain types shared across Cortex: brains and
// their lifecycle, content kinds, insights, API envelopes, and the error
// taxonomy.
package model

import (
	"fmt"
	"regexp"
	"time"
)

// BrainStatus is the lifecycle state of a brain.
type BrainStatus string

// Brain lifecycle states.
const (
	StatusDraft    BrainStatus = "draft"
	StatusActive   BrainStatus = "active"
	StatusArchived BrainStatus = "archived"
)

// Valid reports whether s is a recognized status value.
func (s BrainStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusArchived:
		return true
	}
	return false
}

// ValidTransitions maps each status to the statuses it may move to.
// Everything else is rejected — activating an already-active brain or
// archiving a draft is an error, not a no-op, so double-submitted requests
// cannot silently corrupt state.
var ValidTransitions = map[BrainStatus][]BrainStatus{
	StatusDraft:    {StatusActive},
	StatusActive:   {StatusArchived},
	StatusArchived: {StatusActive},
}

// CanTransition reports whether from → to is a legal status transition.
func CanTransition(from, to BrainStatus) bool {
	for _, t := range ValidTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// BrainConfig holds per-brain behavior settings. Caller-supplied values merge
// field-by-field over DefaultBrainConfig.
type BrainConfig struct {
	Tier1Threshold       int     `json:"tier1_threshold"`
	Tier2Threshold       int     `json:"tier2_threshold"`
	Tier3Threshold       int     `json:"tier3_threshold"`
	AutoResponseEnabled  bool    `json:"auto_response_enabled"`
	LearningEnabled      bool    `json:"learning_enabled"`
	QualityGateThreshold float64 `json:"quality_gate_threshold"`
}

// DefaultBrainConfig returns the config applied to new brains before caller
// overrides.
func DefaultBrainConfig() BrainConfig {
	return BrainConfig{
		Tier1Threshold:       90,
		Tier2Threshold:       70,
		Tier3Threshold:       50,
		AutoResponseEnabled:  false,
		LearningEnabled:      true,
		QualityGateThreshold: 0.7,
	}
}

// BrainConfigPatch is a partial config override. Nil fields keep the default.
type BrainConfigPatch struct {
	Tier1Threshold       *int     `json:"tier1_threshold,omitempty"`
	Tier2Threshold       *int     `json:"tier2_threshold,omitempty"`
	Tier3Threshold       *int     `json:"tier3_threshold,omitempty"`
	AutoResponseEnabled  *bool    `json:"auto_response_enabled,omitempty"`
	LearningEnabled      *bool    `json:"learning_enabled,omitempty"`
	QualityGateThreshold *float64 `json:"quality_gate_threshold,omitempty"`
}

// Apply merges the patch over base and returns the result.
func (p *BrainConfigPatch) Apply(base BrainConfig) BrainConfig {
	if p == nil {
		return base
	}
	if p.Tier1Threshold != nil {
		base.Tier1Threshold = *p.Tier1Threshold
	}
	if p.Tier2Threshold != nil {
		base.Tier2Threshold = *p.Tier2Threshold
	}
	if p.Tier3Threshold != nil {
		base.Tier3Threshold = *p.Tier3Threshold
	}
	if p.AutoResponseEnabled != nil {
		base.AutoResponseEnabled = *p.AutoResponseEnabled
	}
	if p.LearningEnabled != nil {
		base.LearningEnabled = *p.LearningEnabled
	}
	if p.QualityGateThreshold != nil {
		base.QualityGateThreshold = *p.QualityGateThreshold
	}
	return base
}

// BrainStats are live per-collection content counts. Never trusted as stored
// state — always recomputed on read by counting content scoped to the brain.
type BrainStats struct {
	ICPRulesCount     int `json:"icp_rules_count"`
	TemplatesCount    int `json:"templates_count"`
	HandlersCount     int `json:"handlers_count"`
	ResearchDocsCount int `json:"research_docs_count"`
	InsightsCount     int `json:"insights_count"`
}

// Brain is a vertical-scoped knowledge-base partition.
type Brain struct {
	ID          string      `json:"id"`
	Vertical    string      `json:"vertical"`
	Name        string      `json:"name"`
	Version     string      `json:"version"`
	Status      BrainStatus `json:"status"`
	Description string      `json:"description"`
	Config      BrainConfig `json:"config"`
	Stats       BrainStats  `json:"stats"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// EmbedText returns the text embedded for the brain's own point, used so the
// brains collection itself is semantically searchable.
func (b *Brain) EmbedText() string {
	return fmt.Sprintf("brain %s %s %s", b.Vertical, b.Name, b.Description)
}

// Field length limits for brain creation.
const (
	MinNameLen        = 3
	MaxNameLen        = 100
	MinDescriptionLen = 10
	MaxDescriptionLen = 500
)

var (
	verticalPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{1,49}$`)
	brainIDPattern  = regexp.MustCompile(`^brain_[a-z][a-z0-9_-]{1,49}_v[0-9]+$`)
)

// ValidateVertical checks the vertical slug: 2-50 chars, lowercase, starts
// with a letter, alphanumeric/hyphen/underscore after.
func ValidateVertical(vertical string) error {
	if !verticalPattern.MatchString(vertical) {
		return NewValidationError("vertical",
			"must be 2-50 lowercase characters, start with a letter, and contain only a-z, 0-9, hyphen, underscore")
	}
	return nil
}

// ValidateBrainName checks the brain display name length.
func ValidateBrainName(name string) error {
	if len(name) < MinNameLen || len(name) > MaxNameLen {
		return NewValidationError("name",
			fmt.Sprintf("must be %d-%d characters", MinNameLen, MaxNameLen))
	}
	return nil
}

// ValidateBrainDescription checks the brain description length.
func ValidateBrainDescription(description string) error {
	if len(description) < MinDescriptionLen || len(description) > MaxDescriptionLen {
		return NewValidationError("description",
			fmt.Sprintf("must be %d-%d characters", MinDescriptionLen, MaxDescriptionLen))
	}
	return nil
}

// ValidateBrainID checks the brain id format (brain_{vertical}_v{n}).
func ValidateBrainID(brainID string) error {
	if !brainIDPattern.MatchString(brainID) {
		return NewValidationError("brain_id", fmt.Sprintf("invalid format: %q", brainID))
	}
	return nil
}

// BrainID derives a brain id from its vertical and version number.
func BrainID(vertical string, version int) string {
	return fmt.Sprintf("brain_%s_v%d", vertical, version)
}

// TransitionResult reports the outcome of a status transition.
type TransitionResult struct {
	BrainID            string      `json:"brain_id"`
	PreviousStatus     BrainStatus `json:"previous_status"`
	NewStatus          BrainStatus `json:"new_status"`
	DeactivatedBrainID *string     `json:"deactivated_brain_id"`
	Message            string      `json:"message"`
}

// DeletionReport reports a cascade delete: per-collection deleted counts plus
// the aggregate.
type DeletionReport struct {
	BrainID        string         `json:"brain_id"`
	DeletedContent map[string]int `json:"deleted_content"`
	TotalDeleted   int            `json:"total_deleted"`
	Message        string         `json:"message"`
}

// CollectionDetail is one content collection's summary in a brain report.
type CollectionDetail struct {
	Collection  string  `json:"collection"`
	Count       int     `json:"count"`
	LastUpdated *string `json:"last_updated"`
}

// BrainReport is the completeness report for a brain. Completeness is the
// fraction of the four seedable content kinds with at least one item.
type BrainReport struct {
	BrainID        string             `json:"brain_id"`
	Name           string             `json:"name"`
	Vertical       string             `json:"vertical"`
	Status         BrainStatus        `json:"status"`
	Completeness   float64            `json:"completeness"`
	ContentDetails []CollectionDetail `json:"content_details"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	Message        string             `json:"message"`
}
