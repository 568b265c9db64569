// Package orchestrator queries both providers concurrently and turns
// whatever comes back into exactly one FusionResult.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HanTheDev/llm-fusion-gateway/internal/analyzer"
	"github.com/HanTheDev/llm-fusion-gateway/internal/fusion"
	"github.com/HanTheDev/llm-fusion-gateway/internal/models"
	"github.com/HanTheDev/llm-fusion-gateway/internal/provider"
)

const (
	DefaultTimeout = 10 * time.Second

	FallbackConfidence = 0.5
	DegradedConfidence = 0.3

	maxEchoedQuery = 120
)

// Provider generates a response for a prompt.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string, opts provider.Options) (string, error)
}

// Scorer rates one response against the query.
type Scorer interface {
	Analyze(query, response string, c analyzer.Context) models.ScoreProfile
}

// ErrDuplicateProvider is returned by New when both providers share a name.
var ErrDuplicateProvider = errors.New("providers must have distinct names")

// QueryContext carries caller-side information for one orchestration.
type QueryContext struct {
	RequestID string
	Tier      models.Tier
	TurnCount int
	Topic     string
}

type Orchestrator struct {
	a, b    Provider
	scorer  Scorer
	engine  *fusion.Engine
	timeout time.Duration
	options provider.Options
	logger  *slog.Logger
}

type Option func(*Orchestrator)

// WithTimeout bounds each provider call.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithProviderOptions(opts provider.Options) Option {
	return func(o *Orchestrator) { o.options = opts }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New wires two providers to a scorer and an engine. Results are keyed by
// provider name, so the names must differ.
func New(a, b Provider, scorer Scorer, engine *fusion.Engine, opts ...Option) (*Orchestrator, error) {
	if a.Name() == b.Name() {
		return nil, fmt.Errorf("%w: both are %q", ErrDuplicateProvider, a.Name())
	}
	o := &Orchestrator{
		a:       a,
		b:       b,
		scorer:  scorer,
		engine:  engine,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Orchestrate calls both providers, waits for both to settle and returns a
// single result. It never fails: when nothing usable comes back the result
// is a fallback message.
func (o *Orchestrator) Orchestrate(ctx context.Context, query string, qc QueryContext) models.FusionResult {
	var responses [2]models.ProviderResponse

	// Neither call cancels the other: the group only waits for both to settle.
	var g errgroup.Group
	for i, p := range []Provider{o.a, o.b} {
		i, p := i, p
		g.Go(func() error {
			responses[i] = o.call(ctx, p, query)
			return nil
		})
	}
	_ = g.Wait()

	a, b := responses[0], responses[1]
	actx := analyzer.Context{Tier: qc.Tier, TurnCount: qc.TurnCount, Topic: qc.Topic}

	var res models.FusionResult
	switch {
	case a.Success && b.Success:
		res = o.fuse(query, actx, a, b)
		res.Metadata.Contributors = []string{a.Provider, b.Provider}

	case a.Success || b.Success:
		ok := a
		if b.Success {
			ok = b
		}
		res = o.single(query, actx, ok)
		res.Metadata.Contributors = []string{ok.Provider}

	default:
		res = Fallback(query)
	}

	res.Metadata.RequestID = qc.RequestID
	res.Metadata.TimingsMs = map[string]int64{a.Provider: a.TimingMs, b.Provider: b.TimingMs}
	for _, r := range []models.ProviderResponse{a, b} {
		if r.Success {
			continue
		}
		if res.Metadata.Errors == nil {
			res.Metadata.Errors = make(map[string]models.ErrorKind)
		}
		res.Metadata.Errors[r.Provider] = r.ErrorKind
	}

	o.logger.Info("orchestration complete",
		"request_id", qc.RequestID,
		"strategy", res.Strategy,
		"confidence", res.Confidence,
		"timings_ms", res.Metadata.TimingsMs,
	)
	return res
}

type callResult struct {
	content string
	err     error
}

// call runs one provider under its own deadline. A late answer is dropped
// into the buffered channel and discarded.
func (o *Orchestrator) call(ctx context.Context, p Provider, query string) models.ProviderResponse {
	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	ch := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- callResult{err: fmt.Errorf("provider %s panicked: %v", p.Name(), r)}
			}
		}()
		content, err := p.Generate(cctx, query, o.options)
		ch <- callResult{content: content, err: err}
	}()

	var res callResult
	select {
	case res = <-ch:
	case <-cctx.Done():
		res = callResult{err: cctx.Err()}
	}

	resp := models.ProviderResponse{Provider: p.Name(), TimingMs: time.Since(start).Milliseconds()}
	if res.err == nil && strings.TrimSpace(res.content) == "" {
		res.err = provider.ErrEmptyResponse
	}
	if res.err != nil {
		resp.ErrorKind = provider.Classify(res.err)
		o.logger.Warn("provider call failed",
			"provider", resp.Provider, "kind", resp.ErrorKind, "elapsed_ms", resp.TimingMs, "error", res.err)
		return resp
	}
	resp.Success = true
	resp.Content = res.content
	return resp
}

// fuse scores both responses and runs the engine. A panic in either step
// degrades to the better response scored so far.
func (o *Orchestrator) fuse(query string, actx analyzer.Context, a, b models.ProviderResponse) (res models.FusionResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("scoring or fusion failed, degrading", "error", r)
			res = degraded(a, b)
		}
	}()
	a.Scores = o.scorer.Analyze(query, a.Content, actx)
	b.Scores = o.scorer.Analyze(query, b.Content, actx)
	return o.engine.Fuse(fusion.Request{
		Query: query,
		Tier:  actx.Tier,
		A:     fusion.Candidate{Provider: a.Provider, Text: a.Content, Scores: a.Scores},
		B:     fusion.Candidate{Provider: b.Provider, Text: b.Content, Scores: b.Scores},
	})
}

// single passes one response through unchanged, with its global score as
// confidence.
func (o *Orchestrator) single(query string, actx analyzer.Context, r models.ProviderResponse) (res models.FusionResult) {
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("scoring failed, degrading", "provider", r.Provider, "error", p)
			res = degraded(r, r)
		}
	}()
	r.Scores = o.scorer.Analyze(query, r.Content, actx)
	return models.FusionResult{
		Content:    r.Content,
		Strategy:   models.StrategySingleProvider,
		Confidence: r.Scores.GlobalScore,
		Metadata: models.FusionMetadata{
			BaseProvider: r.Provider,
			GlobalScores: map[string]float64{r.Provider: r.Scores.GlobalScore},
		},
	}
}

// degraded keeps only the opening paragraph of the higher-scoring response.
func degraded(a, b models.ProviderResponse) models.FusionResult {
	best := a
	if b.Scores.GlobalScore > a.Scores.GlobalScore {
		best = b
	}
	content := best.Content
	if paras := analyzer.Paragraphs(content); len(paras) > 0 {
		content = paras[0]
	}
	return models.FusionResult{
		Content:    fusion.Normalize(content),
		Strategy:   models.StrategyDegraded,
		Confidence: DegradedConfidence,
		Metadata: models.FusionMetadata{
			BaseProvider: best.Provider,
			GlobalScores: map[string]float64{
				a.Provider: a.Scores.GlobalScore,
				b.Provider: b.Scores.GlobalScore,
			},
		},
	}
}

// Fallback is the result returned when no provider produced content.
func Fallback(query string) models.FusionResult {
	q := strings.Join(strings.Fields(query), " ")
	if r := []rune(q); len(r) > maxEchoedQuery {
		q = string(r[:maxEchoedQuery]) + "..."
	}
	return models.FusionResult{
		Content: fmt.Sprintf("We received your question about %q but could not reach our answer services right now. "+
			"Please try again in a few minutes.", q),
		Strategy:   models.StrategyErrorFallback,
		Confidence: FallbackConfidence,
	}
}
