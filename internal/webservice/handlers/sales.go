// Package handlers provides HTTP handlers for the server.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dhelos/saleshook/internal/pipeline"
	"github.com/google/uuid"
)

// ConfigManager is the slice of the state manager the sales handler needs.
type ConfigManager interface {
	Validate() error
	Settings() pipeline.Settings
	Pointers() pipeline.Pointers
	SavePointers(pipeline.Pointers) error
}

// Ingester runs one ingestion cycle.
type Ingester interface {
	Ingest(ctx context.Context, payload []byte, cfg pipeline.Settings, ptrs pipeline.Pointers) (pipeline.Result, error)
}

// Sales is the handler for incoming sales-event webhooks.
type Sales struct {
	cm          ConfigManager
	pipe        Ingester
	maxBodySize int64
}

// NewSales creates a new Sales handler.
func NewSales(cm ConfigManager, pipe Ingester, maxBodySize int64) *Sales {
	return &Sales{
		cm:          cm,
		pipe:        pipe,
		maxBodySize: maxBodySize,
	}
}

// ServeHTTP handles one webhook delivery as a full ingestion cycle.
func (h *Sales) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.New().String()

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed. Use POST.")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Error("Failed to read request body", "req_id", reqID, "err", err)
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	if len(body) == 0 || !json.Valid(body) {
		slog.Error("Invalid JSON in request body", "req_id", reqID)
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if err := h.cm.Validate(); err != nil {
		slog.Error("Service is not configured", "req_id", reqID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to load config: "+err.Error())
		return
	}

	slog.Info("Webhook recv'd", "req_id", reqID, "bytes", len(body))

	res, err := h.pipe.Ingest(r.Context(), body, h.cm.Settings(), h.cm.Pointers())
	if err != nil {
		slog.Error("Ingestion cycle failed", "req_id", reqID, "err", err)
		if errors.Is(err, pipeline.ErrBadPayload) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if res.PointersChanged {
		// The artifacts are already persisted; a failed pointer save only
		// leaves the cache stale and heals on the next name lookup.
		if err := h.cm.SavePointers(res.Pointers); err != nil {
			slog.Warn("Failed to save pointer metadata", "req_id", reqID, "err", err)
		}
	}

	switch res.Status {
	case pipeline.StatusSkipped:
		slog.Info("Duplicate webhook skipped", "req_id", reqID)
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "skipped",
			"message": "Data already exists in file",
		})
	default:
		slog.Info("Webhook ingested", "req_id", reqID, "rows", res.Rows)
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "success",
			"message":    "Data added",
			"rows":       res.Rows,
			"parquet_id": res.Pointers.ParquetID,
			"excel_id":   res.Pointers.ExcelID,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
