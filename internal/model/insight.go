package model

import (
	"fmt"
	"time"
)

// InsightCategory classifies what an insight is about.
type InsightCategory string

// Insight categories.
const (
	CategoryBuyingProcess InsightCategory = "buying_process"
	CategoryPainPoint     InsightCategory = "pain_point"
	CategoryObjection     InsightCategory = "objection"
	CategoryCompetitive   InsightCategory = "competitive_intel"
	CategoryMessaging     InsightCategory = "messaging_effectiveness"
	CategoryICPSignal     InsightCategory = "icp_signal"
)

// Valid reports whether c is a recognized category.
func (c InsightCategory) Valid() bool {
	switch c {
	case CategoryBuyingProcess, CategoryPainPoint, CategoryObjection,
		CategoryCompetitive, CategoryMessaging, CategoryICPSignal:
		return true
	}
	return false
}

// Importance is the caller-stated weight of an insight.
type Importance string

// Importance levels.
const (
	ImportanceLow    Importance = "low"
	ImportanceMedium Importance = "medium"
	ImportanceHigh   Importance = "high"
)

// Valid reports whether i is a recognized importance level.
func (i Importance) Valid() bool {
	switch i {
	case ImportanceLow, ImportanceMedium, ImportanceHigh:
		return true
	}
	return false
}

// SourceType identifies where an insight came from.
type SourceType string

// Insight source types.
const (
	SourceCallTranscript  SourceType = "call_transcript"
	SourceEmailReply      SourceType = "email_reply"
	SourceLinkedInMessage SourceType = "linkedin_message"
	SourceManualEntry     SourceType = "manual_entry"
)

// Valid reports whether t is a recognized source type.
func (t SourceType) Valid() bool {
	switch t {
	case SourceCallTranscript, SourceEmailReply, SourceLinkedInMessage, SourceManualEntry:
		return true
	}
	return false
}

// InsightSource is provenance metadata for an insight.
type InsightSource struct {
	Type    SourceType `json:"type"`
	ID      string     `json:"id"`
	LeadID  string     `json:"lead_id,omitempty"`
	Company string     `json:"company,omitempty"`
	Quote   string     `json:"quote,omitempty"`
}

// ValidationStatus is the human-review state of an insight.
type ValidationStatus string

// Insight validation states.
const (
	ValidationPending   ValidationStatus = "pending"
	ValidationValidated ValidationStatus = "validated"
	ValidationRejected  ValidationStatus = "rejected"
)

// Insight is a freeform piece of knowledge learned at runtime, admitted only
// through the quality gate's accept path. Duplicates resolve to the existing
// insight's id; insights are never overwritten in place.
type Insight struct {
	ID               string           `json:"id"`
	BrainID          string           `json:"brain_id"`
	Content          string           `json:"content"`
	Category         InsightCategory  `json:"category"`
	Importance       Importance       `json:"importance"`
	Source           InsightSource    `json:"source"`
	Confidence       float64          `json:"confidence"`
	ValidationStatus ValidationStatus `json:"validation_status"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Insight content length bounds.
const (
	MinInsightContentLen = 10
	MaxInsightContentLen = 5000
)

// ValidateInsightInput checks the structural constraints on a proposed
// insight before the gate runs. Returns the first violation found.
func ValidateInsightInput(content string, category InsightCategory, importance Importance, source InsightSource) error {
	if len(content) < MinInsightContentLen || len(content) > MaxInsightContentLen {
		return NewValidationError("content",
			fmt.Sprintf("must be %d-%d characters", MinInsightContentLen, MaxInsightContentLen))
	}
	if !category.Valid() {
		return NewValidationError("category", fmt.Sprintf("unknown category %q", category))
	}
	if !importance.Valid() {
		return NewValidationError("importance", fmt.Sprintf("unknown importance %q", importance))
	}
	if !source.Type.Valid() {
		return NewValidationError("source.type", fmt.Sprintf("unknown source type %q", source.Type))
	}
	if source.ID == "" {
		return NewValidationError("source.id", "required")
	}
	return nil
}

// GateOutcome is the quality gate's decision for a proposed insight.
// Duplicate and rejected are expected, frequent results of normal operation —
// structured outcomes, not errors.
type GateOutcome string

// Gate outcomes.
const (
	OutcomeAccepted  GateOutcome = "accepted"
	OutcomeDuplicate GateOutcome = "duplicate"
	OutcomeRejected  GateOutcome = "rejected"
)

// GateResult is the quality gate's evaluation of a proposed insight.
type GateResult struct {
	Outcome            GateOutcome `json:"outcome"`
	Confidence         float64     `json:"confidence"`
	RequiresValidation bool        `json:"requires_validation"`
	ExistingID         string      `json:"existing_id,omitempty"`
	Similarity         float64     `json:"similarity,omitempty"`
	Reason             string      `json:"reason,omitempty"`
}

// AddInsightResult is the ingestion outcome returned to callers: created,
// duplicate (with the existing insight's id), or rejected (with the reason).
type AddInsightResult struct {
	Status             string  `json:"status"`
	InsightID          string  `json:"insight_id,omitempty"`
	ExistingID         string  `json:"existing_id,omitempty"`
	Similarity         float64 `json:"similarity,omitempty"`
	Confidence         float64 `json:"confidence,omitempty"`
	RequiresValidation bool    `json:"requires_validation,omitempty"`
	Reason             string  `json:"reason,omitempty"`
	Message            string  `json:"message"`
}
