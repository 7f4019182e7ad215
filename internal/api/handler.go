// Package api exposes the explainer's HTTP surface: dataset and model
// discovery, example sampling, explanation generation and history.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hl-fury/xai-narrative-service/internal/domain"
	"github.com/hl-fury/xai-narrative-service/internal/examples"
	"github.com/hl-fury/xai-narrative-service/internal/history"
	"github.com/hl-fury/xai-narrative-service/internal/models"
	"github.com/hl-fury/xai-narrative-service/internal/server"
)

// Explainer generates explanations. Satisfied by pipeline.Pipeline.
type Explainer interface {
	Explain(ctx context.Context, req *domain.GenerationRequest) (*domain.ExplanationResult, error)
	ExplainStream(ctx context.Context, req *domain.GenerationRequest, emit func(domain.StreamEvent) error) error
}

type Handler struct {
	examples  *examples.Store
	registry  *models.Registry
	explainer Explainer
	history   history.Store
	logger    *slog.Logger
}

func NewHandler(store *examples.Store, registry *models.Registry, explainer Explainer, hist history.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		examples:  store,
		registry:  registry,
		explainer: explainer,
		history:   hist,
		logger:    logger,
	}
}

// Routes mounts all endpoints. Discovery and history endpoints run under a
// short timeout; generation endpoints run without one because a
// self-refinement stream legitimately takes minutes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(server.TimeoutMiddleware(10 * time.Second))

		r.Get("/datasets", h.handleDatasets)
		r.Get("/models", h.handleAllModels)
		r.Get("/models/{dataset}", h.handleModels)
		r.Get("/examples/{dataset}", h.handleExample)
		r.Post("/examples/{dataset}/new-counterfactual", h.handleNewCounterfactual)

		r.Get("/history", h.handleHistoryList)
		r.Get("/history/{id}", h.handleHistoryGet)
		r.Delete("/history/{id}", h.handleHistoryDelete)
		r.Delete("/history", h.handleHistoryClear)
	})

	r.Post("/explain", h.handleExplain)
	r.Post("/explain/stream", h.handleExplainStream)

	return r
}

func (h *Handler) handleDatasets(w http.ResponseWriter, r *http.Request) {
	_, infos := h.examples.Datasets()
	writeJSON(w, http.StatusOK, map[string]any{"datasets": infos})
}

// handleAllModels is the legacy dataset-agnostic listing; it names only the
// models available regardless of fine-tuned checkpoints.
func (h *Handler) handleAllModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": h.registry.All()})
}

func (h *Handler) handleModels(w http.ResponseWriter, r *http.Request) {
	dataset := chi.URLParam(r, "dataset")
	if !h.examples.Has(dataset) {
		writeError(w, r, domain.NewAPIError(domain.ErrorTypeNotFound, "unknown dataset: "+dataset))
		return
	}

	names, warning, err := h.registry.ForDataset(dataset)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := map[string]any{"models": names}
	if warning != nil {
		resp["warning"] = warning.Message
		resp["warning_detail"] = warning
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleExample(w http.ResponseWriter, r *http.Request) {
	dataset := chi.URLParam(r, "dataset")
	pair := h.examples.Example(dataset)
	if pair == nil {
		writeError(w, r, domain.NewAPIError(domain.ErrorTypeNotFound, "no examples available for dataset: "+dataset))
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) handleNewCounterfactual(w http.ResponseWriter, r *http.Request) {
	dataset := chi.URLParam(r, "dataset")

	// The body is the factual record itself, not a wrapper object.
	var factual domain.Record
	if err := json.NewDecoder(r.Body).Decode(&factual); err != nil {
		writeError(w, r, domain.NewAPIError(domain.ErrorTypeInvalidRequest, "invalid request body"))
		return
	}
	if len(factual) == 0 {
		writeError(w, r, domain.NewAPIError(domain.ErrorTypeInvalidRequest, "factual instance is required").WithParam("factual"))
		return
	}

	pair := h.examples.NewCounterfactual(dataset, factual)
	if pair == nil {
		writeError(w, r, domain.NewAPIError(domain.ErrorTypeNotFound, "no matching example found for the given factual instance"))
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) decodeGenerationRequest(w http.ResponseWriter, r *http.Request) *domain.GenerationRequest {
	var req domain.GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.NewAPIError(domain.ErrorTypeInvalidRequest, "invalid request body"))
		return nil
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, err)
		return nil
	}
	if !h.examples.Has(req.Dataset) {
		writeError(w, r, domain.NewAPIError(domain.ErrorTypeNotFound, "unknown dataset: "+req.Dataset))
		return nil
	}

	server.AddLogField(r.Context(), "dataset", req.Dataset)
	server.AddLogField(r.Context(), "model", req.Model)
	server.AddLogField(r.Context(), "mode", string(req.Mode()))
	return &req
}

func (h *Handler) handleExplain(w http.ResponseWriter, r *http.Request) {
	req := h.decodeGenerationRequest(w, r)
	if req == nil {
		return
	}

	result, err := h.explainer.Explain(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.saveHistory(r, req, result)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleExplainStream(w http.ResponseWriter, r *http.Request) {
	req := h.decodeGenerationRequest(w, r)
	if req == nil {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, domain.NewAPIError(domain.ErrorTypeServer, "streaming not supported"))
		return
	}

	emit := func(event domain.StreamEvent) error {
		frame, err := event.Frame()
		if err != nil {
			return err
		}
		if _, err := w.Write([]byte(frame)); err != nil {
			return err
		}
		flusher.Flush()

		if event.Type == domain.EventComplete && event.Result != nil {
			h.saveHistory(r, req, event.Result)
		}
		return nil
	}

	var err error
	if req.Mode() == domain.ModeSelfRefinement {
		err = h.explainer.ExplainStream(r.Context(), req, emit)
	} else {
		// One-shot over the stream endpoint yields a single terminal event.
		var result *domain.ExplanationResult
		result, err = h.explainer.Explain(r.Context(), req)
		if err == nil {
			err = emit(domain.CompleteEvent(result))
		} else {
			emitErr := emit(domain.ErrorEvent(errorMessage(err)))
			server.AddError(r.Context(), err)
			err = emitErr
		}
	}

	if err != nil {
		// The consumer went away mid-stream; nothing more can be written.
		server.AddError(r.Context(), err)
	}
}

func (h *Handler) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	records, err := h.history.List(r.Context(), history.ListOptions{
		Dataset: r.URL.Query().Get("dataset"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if records == nil {
		records = []*history.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": records})
}

func (h *Handler) handleHistoryGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.history.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleHistoryDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.history.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	if err := h.history.Clear(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) saveHistory(r *http.Request, req *domain.GenerationRequest, result *domain.ExplanationResult) {
	if h.history == nil {
		return
	}
	rec := &history.Record{
		ID:      server.RequestID(r.Context()),
		Dataset: req.Dataset,
		Model:   req.Model,
		Mode:    req.Mode(),
		Request: req,
		Result:  result,
	}
	if err := h.history.Save(r.Context(), rec); err != nil {
		h.logger.Warn("failed to save history record",
			slog.String("request_id", rec.ID), slog.String("error", err.Error()))
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError translates internal errors to the wire format: an HTTP status
// and a {"detail": "..."} body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	server.AddError(r.Context(), err)

	status := http.StatusInternalServerError
	detail := "internal server error"

	var apiErr *domain.APIError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode()
		detail = apiErr.Message
	case errors.Is(err, history.ErrNotFound):
		status = http.StatusNotFound
		detail = err.Error()
	}

	writeJSON(w, status, map[string]string{"detail": detail})
}

func errorMessage(err error) string {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
