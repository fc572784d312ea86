package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/knoguchi/omnirag/internal/auth"
	"github.com/knoguchi/omnirag/internal/core"
	"github.com/knoguchi/omnirag/internal/service"
)

// handlers bundles the Pipeline with the logger every endpoint needs. It
// carries no state of its own — every request resolves its owner from the
// auth middleware's context value.
type handlers struct {
	pipeline *service.Pipeline
	logger   *slog.Logger
}

func ownerID(r *http.Request) string {
	if owner, ok := auth.OwnerFromContext(r.Context()); ok {
		return owner.ID
	}
	return r.Header.Get("X-Owner-ID")
}

type answerRequestBody struct {
	Query            string   `json:"query"`
	SessionID        string   `json:"session_id"`
	StrategyOverride string   `json:"strategy_override"`
	ImageRefs        []string `json:"image_refs"`
	MemorySummary    string   `json:"memory_summary"`
}

func (b answerRequestBody) toRequest(owner string) service.AnswerRequest {
	return service.AnswerRequest{
		Query:            b.Query,
		UserID:           owner,
		SessionID:        b.SessionID,
		StrategyOverride: service.Strategy(b.StrategyOverride),
		ImageRefs:        b.ImageRefs,
		MemorySummary:    b.MemorySummary,
	}
}

// answer handles POST /v1/answer.
func (h *handlers) answer(w http.ResponseWriter, r *http.Request) {
	var body answerRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	envelope, err := h.pipeline.Answer(r.Context(), body.toRequest(ownerID(r)))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope)
}

// streamAnswer handles POST /v1/stream_answer, relaying StreamAnswer's
// event sequence as server-sent events.
func (h *handlers) streamAnswer(w http.ResponseWriter, r *http.Request) {
	var body answerRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := h.pipeline.StreamAnswer(r.Context(), body.toRequest(ownerID(r)))
	enc := json.NewEncoder(w)
	for ev := range events {
		if _, err := w.Write([]byte("event: " + string(ev.Type) + "\ndata: ")); err != nil {
			return
		}
		if err := enc.Encode(ev); err != nil {
			h.logger.Warn("encoding stream event", "error", err)
			return
		}
		if _, err := w.Write([]byte("\n")); err != nil {
			return
		}
		flusher.Flush()
	}
}

type ingestRequestBody struct {
	DocumentID string            `json:"document_id"`
	SessionID  string            `json:"session_id"`
	Filename   string            `json:"filename"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata"`
}

// ingest handles POST /v1/ingest.
func (h *handlers) ingest(w http.ResponseWriter, r *http.Request) {
	var body ingestRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	req := service.IngestRequest{
		DocumentID: body.DocumentID,
		OwnerID:    ownerID(r),
		SessionID:  body.SessionID,
		Filename:   body.Filename,
		Text:       body.Text,
		Metadata:   body.Metadata,
	}
	result, err := h.pipeline.IngestDocument(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// buildGraph handles POST /v1/documents/{documentID}/graph.
func (h *handlers) buildGraph(w http.ResponseWriter, r *http.Request) {
	var body ingestRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	body.DocumentID = chi.URLParam(r, "documentID")

	req := service.IngestRequest{
		DocumentID: body.DocumentID,
		OwnerID:    ownerID(r),
		Text:       body.Text,
	}
	if err := h.pipeline.BuildGraphForDocument(r.Context(), req); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// rebuildGraph handles POST /v1/graph/rebuild.
func (h *handlers) rebuildGraph(w http.ResponseWriter, r *http.Request) {
	if err := h.pipeline.RebuildGraph(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// graphCommunities handles GET /v1/graph/communities.
func (h *handlers) graphCommunities(w http.ResponseWriter, r *http.Request) {
	communities, err := h.pipeline.GraphCommunities(ownerID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, communities)
}

// stats handles GET /v1/stats.
func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.pipeline.Stats(ownerID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// writeError maps the pipeline's sentinel error taxonomy onto the HTTP
// surface: ErrLLM/ErrEmbed and ErrConfig become 500, ErrValidationReject
// 422, and anything else (e.g. ErrRetrievalSoft from ingestion or graph
// building) 502.
func (h *handlers) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrLLM), errors.Is(err, core.ErrEmbed):
		h.logger.Error("pipeline hard failure", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	case errors.Is(err, core.ErrValidationReject):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, core.ErrConfig):
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		h.logger.Warn("pipeline soft failure", "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
