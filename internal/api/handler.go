// Package api serves the public query endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/HanTheDev/llm-fusion-gateway/internal/auth"
	"github.com/HanTheDev/llm-fusion-gateway/internal/models"
	"github.com/HanTheDev/llm-fusion-gateway/internal/orchestrator"
)

const (
	maxBodyBytes  = 64 << 10
	maxQueryRunes = 4000
	cacheTimeout  = 2 * time.Second
)

// Admitter decides whether a request may proceed.
type Admitter interface {
	Check(ctx context.Context, meta models.RequestMeta) models.AdmissionDecision
}

type Orchestrator interface {
	Orchestrate(ctx context.Context, query string, qc orchestrator.QueryContext) models.FusionResult
}

type ResultCache interface {
	Get(ctx context.Context, tier models.Tier, query string) (*models.FusionResult, bool, error)
	Store(ctx context.Context, tier models.Tier, query string, res models.FusionResult) error
}

type Handler struct {
	admission Admitter
	orch      Orchestrator
	cache     ResultCache
	leads     *LeadRecorder
	logger    *slog.Logger
}

type Option func(*Handler)

func WithCache(c ResultCache) Option {
	return func(h *Handler) { h.cache = c }
}

func WithLeadRecorder(r *LeadRecorder) Option {
	return func(h *Handler) { h.leads = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

func NewHandler(adm Admitter, orch Orchestrator, opts ...Option) *Handler {
	h := &Handler{admission: adm, orch: orch, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/v1/query", h.Query).Methods("POST")
}

type queryRequest struct {
	Query string `json:"query"`
	Topic string `json:"topic"`
	Turn  int    `json:"turn"`
}

type blockedResponse struct {
	Error             string           `json:"error"`
	LimitType         models.LimitType `json:"limit_type"`
	RetryAfterSeconds int              `json:"retry_after_seconds"`
	Tier              models.Tier      `json:"tier"`
}

func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.GetCallerFromContext(r.Context())
	if !ok {
		http.Error(w, "Caller identity missing", http.StatusInternalServerError)
		return
	}

	var req queryRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}
	if utf8.RuneCountInString(req.Query) > maxQueryRunes {
		http.Error(w, "query is too long", http.StatusRequestEntityTooLarge)
		return
	}

	decision := h.admission.Check(r.Context(), models.RequestMeta{Caller: caller, Query: req.Query})
	setRemainingHeaders(w, decision.Remaining)
	if !decision.Allowed {
		h.writeBlocked(w, decision)
		return
	}

	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)

	if res, hit := h.cached(r.Context(), decision.Tier, req.Query); hit {
		res.Metadata.RequestID = requestID
		res.Metadata.Cached = true
		w.Header().Set("X-Cache-Status", "HIT")
		writeJSON(w, http.StatusOK, res)
		return
	}

	res := h.orch.Orchestrate(r.Context(), req.Query, orchestrator.QueryContext{
		RequestID: requestID,
		Tier:      decision.Tier,
		TurnCount: req.Turn,
		Topic:     req.Topic,
	})

	if h.cache != nil {
		go func(tier models.Tier, query string, res models.FusionResult) {
			ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
			defer cancel()
			if err := h.cache.Store(ctx, tier, query, res); err != nil {
				h.logger.Warn("result cache store failed", "request_id", res.Metadata.RequestID, "error", err)
			}
		}(decision.Tier, req.Query, res)
		w.Header().Set("X-Cache-Status", "MISS")
	}
	if h.leads != nil {
		h.leads.Record(caller.CallerID, req.Query, res)
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) cached(ctx context.Context, tier models.Tier, query string) (models.FusionResult, bool) {
	if h.cache == nil {
		return models.FusionResult{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()

	res, hit, err := h.cache.Get(ctx, tier, query)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			h.logger.Warn("result cache lookup failed", "error", err)
		}
		return models.FusionResult{}, false
	}
	if !hit || res == nil {
		return models.FusionResult{}, false
	}
	return *res, true
}

// writeBlocked answers a refused request. A failure of the admission state
// itself is reported as 503 rather than 429.
func (h *Handler) writeBlocked(w http.ResponseWriter, d models.AdmissionDecision) {
	w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfterSeconds))
	status := http.StatusTooManyRequests
	if d.LimitType == models.LimitInternal {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, blockedResponse{
		Error:             "request blocked",
		LimitType:         d.LimitType,
		RetryAfterSeconds: d.RetryAfterSeconds,
		Tier:              d.Tier,
	})
}

func setRemainingHeaders(w http.ResponseWriter, rem models.Remaining) {
	w.Header().Set("X-RateLimit-Remaining-Burst", strconv.Itoa(rem.Burst))
	w.Header().Set("X-RateLimit-Remaining-Minute", strconv.Itoa(rem.Minute))
	w.Header().Set("X-RateLimit-Remaining-Hour", strconv.Itoa(rem.Hour))
	w.Header().Set("X-RateLimit-Remaining-Day", strconv.Itoa(rem.Day))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Health reports liveness.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "1.0.0",
	})
}
