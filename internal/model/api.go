package model

import (
	"time"
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// ListResponse is the standard envelope for list endpoints.
type ListResponse struct {
	Data  any          `json:"data"`
	Total int          `json:"total"`
	Meta  ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodePreconditionFailed = "PRECONDITION_FAILED"
	ErrCodeUnavailable        = "UNAVAILABLE"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeRateLimited        = "RATE_LIMITED"
)

// CreateBrainRequest is the request body for POST /v1/brains.
type CreateBrainRequest struct {
	Vertical    string            `json:"vertical"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Config      *BrainConfigPatch `json:"config,omitempty"`
}

// UpdateStatusRequest is the request body for POST /v1/brains/{brain_id}/status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// SeedRequest is the request body for POST /v1/brains/{brain_id}/seed/{kind}.
type SeedRequest struct {
	Items []map[string]any `json:"items"`
}

// AddInsightRequest is the request body for POST /v1/brains/{brain_id}/insights.
type AddInsightRequest struct {
	Content    string          `json:"content"`
	Category   InsightCategory `json:"category"`
	Importance Importance      `json:"importance"`
	Source     InsightSource   `json:"source"`
}

// AuthTokenRequest is the request body for POST /auth/token.
type AuthTokenRequest struct {
	AgentID string `json:"agent_id"`
	APIKey  string `json:"api_key"`
}

// AuthTokenResponse is the response for POST /auth/token.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Store     string `json:"store"`
	Embedding string `json:"embedding"`
	Uptime    int64  `json:"uptime_seconds"`
}
