package http

import (
	"github.com/fyrsmithlabs/healthqa/internal/evidence"
	"github.com/fyrsmithlabs/healthqa/internal/telemetry"
)

// RootResponse is the response body for GET /.
type RootResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// LevelsResponse is the response body for GET /api/grading/levels.
type LevelsResponse struct {
	Levels []evidence.LevelInfo `json:"levels"`
}

// StatusResponse is the response body for GET /api/status.
type StatusResponse struct {
	Status        string                  `json:"status"`
	Version       string                  `json:"version,omitempty"`
	KnowledgeBase KnowledgeBaseStatus     `json:"knowledge_base"`
	Telemetry     *telemetry.HealthStatus `json:"telemetry,omitempty"`
}

// KnowledgeBaseStatus reports the indexed passage count, or -1 when the
// index cannot be reached.
type KnowledgeBaseStatus struct {
	Documents int `json:"documents"`
}
