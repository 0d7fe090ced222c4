package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/civiclens/planrag/internal/core/domain"
	"github.com/civiclens/planrag/internal/core/ports"
	"github.com/civiclens/planrag/internal/observability/metrics"
)

type Router struct {
	ask        ports.QuestionService
	translator ports.QuestionTranslator
	queue      ports.TranslationQueue
	metrics    *metrics.HTTPServerMetrics
	service    string
}

// NewRouter wires the public API surface. queue and serverMetrics may be nil;
// without a queue the batch endpoint only serves synchronous requests.
func NewRouter(
	ask ports.QuestionService,
	translator ports.QuestionTranslator,
	queue ports.TranslationQueue,
	serverMetrics *metrics.HTTPServerMetrics,
	service string,
) *Router {
	return &Router{
		ask:        ask,
		translator: translator,
		queue:      queue,
		metrics:    serverMetrics,
		service:    service,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/ask", rt.askQuestion)
	mux.HandleFunc("/v1/config", rt.getConfig)
	mux.HandleFunc("/v1/translate/batch", rt.translateBatch)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.service, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type askRequest struct {
	MunicipalityID int    `json:"municipality_id"`
	Question       string `json:"question"`
	TopK           int    `json:"top_k"`
	Verbose        bool   `json:"verbose"`
	SemanticOnly   bool   `json:"semantic_only"`
}

func (rt *Router) askQuestion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}
	if req.MunicipalityID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "municipality_id is required"})
		return
	}

	start := time.Now()
	response, err := rt.ask.Ask(r.Context(), req.MunicipalityID, req.Question, domain.AskOptions{
		TopK:              req.TopK,
		Verbose:           req.Verbose,
		ForceSemanticOnly: req.SemanticOnly,
	})
	if err != nil {
		rt.recordAsk("error", "", 0, 0, 0, time.Since(start))
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	outcome := "answered"
	if len(response.Sources) == 0 {
		outcome = "no_context"
	}
	rt.recordAsk(outcome,
		response.Metadata.SearchMethod,
		len(response.Sources),
		response.Metadata.IterationsUsed,
		response.Metadata.QueriesRewritten,
		time.Since(start),
	)
	translationResult := "skipped"
	if response.Metadata.WasTranslated {
		translationResult = "translated"
	}
	rt.recordTranslation(translationResult)
	rt.recordTokenUsage("generate", rt.ask.Tunables().GenModel, response.Metadata.TokensUsed)
	writeJSON(w, http.StatusOK, response)
}

func (rt *Router) getConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, rt.ask.Tunables())
}

type translateBatchRequest struct {
	MunicipalityID int      `json:"municipality_id"`
	Questions      []string `json:"questions"`
	Async          bool     `json:"async"`
}

func (rt *Router) translateBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req translateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if len(req.Questions) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "questions are required"})
		return
	}
	if req.MunicipalityID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "municipality_id is required"})
		return
	}

	if req.Async {
		if rt.queue == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "translation queue is not configured"})
			return
		}
		job := domain.TranslationJob{
			ID:             uuid.NewString(),
			MunicipalityID: req.MunicipalityID,
			Questions:      req.Questions,
		}
		if err := rt.queue.PublishTranslationJob(r.Context(), job); err != nil {
			writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
		return
	}

	items, err := rt.translator.TranslateBatch(r.Context(), req.Questions, req.MunicipalityID)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	for _, item := range items {
		result := "skipped"
		if item.Translated != item.Original {
			result = "translated"
		}
		rt.recordTranslation(result)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (rt *Router) recordAsk(outcome, method string, sources, iterations, rewrites int, duration time.Duration) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.RecordAsk(rt.service, outcome, method, sources, iterations, rewrites, duration)
}

func (rt *Router) recordTranslation(result string) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.RecordTranslation(rt.service, result)
}

func (rt *Router) recordTokenUsage(operation, model string, tokens int) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.RecordTokenUsage(rt.service, operation, model, tokens)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
