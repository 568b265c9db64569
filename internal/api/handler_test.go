package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HanTheDev/llm-fusion-gateway/internal/auth"
	"github.com/HanTheDev/llm-fusion-gateway/internal/models"
	"github.com/HanTheDev/llm-fusion-gateway/internal/orchestrator"
)

type fakeAdmitter struct {
	decision models.AdmissionDecision
	seen     []models.RequestMeta
}

func (f *fakeAdmitter) Check(_ context.Context, meta models.RequestMeta) models.AdmissionDecision {
	f.seen = append(f.seen, meta)
	return f.decision
}

type fakeOrchestrator struct {
	calls atomic.Int32
	qc    orchestrator.QueryContext
	res   models.FusionResult
}

func (f *fakeOrchestrator) Orchestrate(_ context.Context, query string, qc orchestrator.QueryContext) models.FusionResult {
	f.calls.Add(1)
	f.qc = qc
	res := f.res
	res.Metadata.RequestID = qc.RequestID
	return res
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]models.FusionResult
	stored  chan struct{}
}

func newMemCache() *memCache {
	return &memCache{entries: map[string]models.FusionResult{}, stored: make(chan struct{}, 8)}
}

func (c *memCache) Get(_ context.Context, tier models.Tier, query string) (*models.FusionResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.entries[string(tier)+"|"+query]
	if !ok {
		return nil, false, nil
	}
	return &res, true, nil
}

func (c *memCache) Store(_ context.Context, tier models.Tier, query string, res models.FusionResult) error {
	c.mu.Lock()
	c.entries[string(tier)+"|"+query] = res
	c.mu.Unlock()
	c.stored <- struct{}{}
	return nil
}

type fakeSink struct {
	mu      sync.Mutex
	failFor int
	calls   int
	leads   []*models.Lead
}

func (s *fakeSink) InsertLead(_ context.Context, lead *models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failFor {
		return errors.New("connection reset")
	}
	s.leads = append(s.leads, lead)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func allowDecision() models.AdmissionDecision {
	return models.AdmissionDecision{
		Allowed:   true,
		Tier:      models.TierStandard,
		Remaining: models.Remaining{Burst: 4, Minute: 9, Hour: 99, Day: 499},
	}
}

func fusedResult() models.FusionResult {
	return models.FusionResult{
		Content:    "Clean the filter on a long motorway drive.",
		Strategy:   models.StrategyAdaptiveMerge,
		Confidence: 0.87,
		Metadata: models.FusionMetadata{
			Contributors: []string{"provider_a", "provider_b"},
			GlobalScores: map[string]float64{"provider_a": 0.7, "provider_b": 0.6},
		},
	}
}

func newRouter(h *Handler) http.Handler {
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	return auth.NewMiddleware("salt").Identify(router)
}

func postQuery(t *testing.T, srv http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(body))
	r.RemoteAddr = "203.0.113.10:4242"
	r.Header.Set("User-Agent", "Mozilla/5.0")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)
	return w
}

func TestQueryReturnsFusedAnswer(t *testing.T) {
	adm := &fakeAdmitter{decision: allowDecision()}
	orch := &fakeOrchestrator{res: fusedResult()}
	srv := newRouter(NewHandler(adm, orch, WithLogger(quietLogger())))

	w := postQuery(t, srv, `{"query":"  my DPF is clogged  ","topic":"dpf","turn":2}`)
	require.Equal(t, http.StatusOK, w.Code)

	var res models.FusionResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.Equal(t, models.StrategyAdaptiveMerge, res.Strategy)
	assert.Equal(t, 0.87, res.Confidence)
	assert.NotEmpty(t, res.Metadata.RequestID)
	assert.Equal(t, res.Metadata.RequestID, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "9", w.Header().Get("X-RateLimit-Remaining-Minute"))
	assert.Empty(t, w.Header().Get("X-Cache-Status"))

	require.Len(t, adm.seen, 1)
	assert.Equal(t, "my DPF is clogged", adm.seen[0].Query)
	assert.Equal(t, "203.0.113.10", adm.seen[0].Caller.OriginIP)
	assert.NotEmpty(t, adm.seen[0].Caller.CallerID)
	assert.Equal(t, "dpf", orch.qc.Topic)
	assert.Equal(t, 2, orch.qc.TurnCount)
	assert.Equal(t, models.TierStandard, orch.qc.Tier)
}

func TestQueryRejectsBadInput(t *testing.T) {
	orch := &fakeOrchestrator{res: fusedResult()}
	srv := newRouter(NewHandler(&fakeAdmitter{decision: allowDecision()}, orch))

	tests := []struct {
		name string
		body string
		want int
	}{
		{"not json", `{query`, http.StatusBadRequest},
		{"blank query", `{"query":"   "}`, http.StatusBadRequest},
		{"too long", `{"query":"` + strings.Repeat("a", maxQueryRunes+1) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, postQuery(t, srv, tt.body).Code)
		})
	}
	assert.Zero(t, orch.calls.Load())
}

func TestQueryBlockedByAdmission(t *testing.T) {
	adm := &fakeAdmitter{decision: models.AdmissionDecision{
		Allowed:           false,
		Tier:              models.TierStandard,
		RetryAfterSeconds: 900,
		LimitType:         models.LimitMinute,
	}}
	orch := &fakeOrchestrator{res: fusedResult()}
	srv := newRouter(NewHandler(adm, orch))

	w := postQuery(t, srv, `{"query":"hello"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "900", w.Header().Get("Retry-After"))

	var body blockedResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, models.LimitMinute, body.LimitType)
	assert.Equal(t, 900, body.RetryAfterSeconds)
	assert.Equal(t, models.TierStandard, body.Tier)
	assert.Zero(t, orch.calls.Load())
}

func TestQueryInternalAdmissionFailureIs503(t *testing.T) {
	adm := &fakeAdmitter{decision: models.AdmissionDecision{
		Tier:              models.TierUnclassified,
		RetryAfterSeconds: 5,
		LimitType:         models.LimitInternal,
	}}
	w := postQuery(t, newRouter(NewHandler(adm, &fakeOrchestrator{})), `{"query":"hello"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "5", w.Header().Get("Retry-After"))
}

func TestQueryServesRepeatsFromCache(t *testing.T) {
	orch := &fakeOrchestrator{res: fusedResult()}
	cache := newMemCache()
	srv := newRouter(NewHandler(&fakeAdmitter{decision: allowDecision()}, orch, WithCache(cache), WithLogger(quietLogger())))

	first := postQuery(t, srv, `{"query":"my DPF is clogged"}`)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache-Status"))

	select {
	case <-cache.stored:
	case <-time.After(time.Second):
		t.Fatal("result was never stored")
	}

	second := postQuery(t, srv, `{"query":"my DPF is clogged"}`)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache-Status"))
	assert.Equal(t, int32(1), orch.calls.Load())

	var res models.FusionResult
	require.NoError(t, json.NewDecoder(second.Body).Decode(&res))
	assert.True(t, res.Metadata.Cached)
	assert.Equal(t, second.Header().Get("X-Request-ID"), res.Metadata.RequestID)
	assert.NotEqual(t, first.Header().Get("X-Request-ID"), res.Metadata.RequestID)
}

func TestQueryRecordsLead(t *testing.T) {
	sink := &fakeSink{failFor: 2}
	leads := NewLeadRecorder(sink, quietLogger())
	leads.base = time.Millisecond

	srv := newRouter(NewHandler(&fakeAdmitter{decision: allowDecision()}, &fakeOrchestrator{res: fusedResult()}, WithLeadRecorder(leads)))
	require.Equal(t, http.StatusOK, postQuery(t, srv, `{"query":"my DPF is clogged"}`).Code)
	leads.Wait()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, 3, sink.calls)
	require.Len(t, sink.leads, 1)
	lead := sink.leads[0]
	assert.Equal(t, "my DPF is clogged", lead.Query)
	assert.Equal(t, models.StrategyAdaptiveMerge, lead.Strategy)
	assert.Equal(t, 0.7, lead.ScoreA)
	assert.Equal(t, 0.6, lead.ScoreB)
	assert.Len(t, lead.CallerID, 24)
	assert.NotEmpty(t, lead.ID)
}

func TestLeadRecorderGivesUp(t *testing.T) {
	sink := &fakeSink{failFor: 100}
	leads := NewLeadRecorder(sink, quietLogger())
	leads.base = time.Millisecond

	leads.Record("caller", "q", fusedResult())
	leads.Wait()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, 5, sink.calls)
	assert.Empty(t, sink.leads)
}

func TestAccessLogRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := AccessLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", "req-1")
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/teapot", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "/teapot", line["path"])
	assert.Equal(t, float64(http.StatusTeapot), line["status"])
	assert.Equal(t, float64(len("short and stout")), line["bytes"])
	assert.Equal(t, "req-1", line["request_id"])
}

func TestHealth(t *testing.T) {
	w := httptest.NewRecorder()
	Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}
