package core

import (
	"context"

	"tusas.com/document-qa/internal/vectorstore"
)

type HealthReport struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthService probes each dependency without raising.
type HealthService struct {
	db      Pinger
	vectors vectorstore.Store
	ai      AIClientSource
}

func NewHealthService(db Pinger, vectors vectorstore.Store, ai AIClientSource) *HealthService {
	return &HealthService{db: db, vectors: vectors, ai: ai}
}

func (h *HealthService) Check(ctx context.Context) HealthReport {
	report := HealthReport{Status: "ok", Services: map[string]string{
		"database":     "ok",
		"vector_store": "ok",
		"gemini":       "ok",
	}}

	if err := h.db.Ping(ctx); err != nil {
		report.Services["database"] = "down"
		report.Status = "degraded"
	}
	if !h.vectors.Ping(ctx) {
		report.Services["vector_store"] = "down"
		report.Status = "degraded"
	}
	if !h.ai.Configured() {
		report.Services["gemini"] = "missing_api_key"
		report.Status = "degraded"
	}
	return report
}
