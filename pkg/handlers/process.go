package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docuflow-inc/docuflow-engine/pkg/services"
)

// ProcessHandler exposes the document pipeline over HTTP. The caller is the
// extraction subsystem; the response is the full audit record.
type ProcessHandler struct {
	processor *services.DocumentProcessor
	logger    *zap.Logger
}

// NewProcessHandler creates a new ProcessHandler.
func NewProcessHandler(processor *services.DocumentProcessor, logger *zap.Logger) *ProcessHandler {
	return &ProcessHandler{processor: processor, logger: logger}
}

// RegisterRoutes registers the processing routes on the given mux.
func (h *ProcessHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/process", h.Process)
}

// Process handles POST /api/v1/process: one document pass through the
// mapping and confidence pipeline.
func (h *ProcessHandler) Process(w http.ResponseWriter, r *http.Request) {
	// Go 1.21's ServeMux has no method patterns; enforce POST here the same
	// way the 1.22+ mux would for a "POST /api/v1/process" registration.
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	var input services.DocumentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if input.CompanyID == uuid.Nil || input.DocumentFormatID == uuid.Nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "company_id and document_format_id are required")
		return
	}

	outcome, err := h.processor.Process(r.Context(), &input)
	if err != nil {
		h.logger.Error("Document processing failed", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "processing_failed", "document processing failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, outcome); err != nil {
		h.logger.Error("Failed to encode process response", zap.Error(err))
	}
}
