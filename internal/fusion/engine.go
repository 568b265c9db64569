// Package fusion merges two scored provider responses into one answer.
//
// Strategy selection is a ranked list of (predicate, strategy) rules
// evaluated in order; the first rule whose predicate holds is executed:
//
//  1. dominant_lead      score gap above DominantGap
//  2. molecular          privileged caller
//  3. hybrid_conversion  conversion or business signal on either side
//  4. best_of_both       score gap below CloseGap
//  5. adaptive_merge     everything else, blended by query type
//
// Every strategy output passes through Normalize.
package fusion

import (
	"math"
	"strings"

	"github.com/HanTheDev/llm-fusion-gateway/internal/models"
)

// Candidate is one provider's text with its scores.
type Candidate struct {
	Provider string
	Text     string
	Scores   models.ScoreProfile
}

// Request is the input to one fusion.
type Request struct {
	Query string
	Tier  models.Tier
	A, B  Candidate
}

func (r *Request) diff() float64 {
	return math.Abs(r.A.Scores.GlobalScore - r.B.Scores.GlobalScore)
}

// leader returns the higher-scoring candidate first. Ties go to A.
func (r *Request) leader() (*Candidate, *Candidate) {
	return r.by(func(p models.ScoreProfile) float64 { return p.GlobalScore })
}

func (r *Request) by(score func(models.ScoreProfile) float64) (*Candidate, *Candidate) {
	if score(r.B.Scores) > score(r.A.Scores) {
		return &r.B, &r.A
	}
	return &r.A, &r.B
}

type rule struct {
	strategy models.Strategy
	applies  func(r *Request, t Thresholds) bool
	fuse     func(r *Request, t Thresholds) outcome
}

var rules = []rule{
	{
		strategy: models.StrategyDominantLead,
		applies:  func(r *Request, t Thresholds) bool { return r.diff() > t.DominantGap },
		fuse:     dominantLead,
	},
	{
		strategy: models.StrategyMolecular,
		applies:  func(r *Request, _ Thresholds) bool { return r.Tier == models.TierPrivileged },
		fuse:     molecular,
	},
	{
		strategy: models.StrategyHybridConversion,
		applies: func(r *Request, t Thresholds) bool {
			return r.Tier != models.TierPrivileged &&
				(conversionSignal(r.A.Scores, t) || conversionSignal(r.B.Scores, t))
		},
		fuse: hybridConversion,
	},
	{
		strategy: models.StrategyBestOfBoth,
		applies:  func(r *Request, t Thresholds) bool { return r.diff() < t.CloseGap },
		fuse:     bestOfBoth,
	},
	{
		strategy: models.StrategyAdaptiveMerge,
		applies:  func(*Request, Thresholds) bool { return true },
		fuse:     adaptiveMerge,
	},
}

func conversionSignal(p models.ScoreProfile, t Thresholds) bool {
	return p.ConversionPotential >= t.ConversionSignal || p.BusinessValue >= t.ConversionSignal
}

type Engine struct {
	thresholds Thresholds
}

func NewEngine(t Thresholds) *Engine {
	return &Engine{thresholds: t.withDefaults()}
}

func (e *Engine) Thresholds() Thresholds { return e.thresholds }

// Select returns the strategy Fuse would run for r.
func (e *Engine) Select(r Request) models.Strategy {
	return e.match(&r).strategy
}

func (e *Engine) match(r *Request) rule {
	for _, ru := range rules {
		if ru.applies(r, e.thresholds) {
			return ru
		}
	}
	return rules[len(rules)-1]
}

// globalScores keys each candidate's global score by provider. Candidates
// sharing a name are told apart by their slot suffix.
func globalScores(r *Request) map[string]float64 {
	ka, kb := r.A.Provider, r.B.Provider
	if ka == kb {
		ka, kb = ka+"#a", kb+"#b"
	}
	return map[string]float64{ka: r.A.Scores.GlobalScore, kb: r.B.Scores.GlobalScore}
}

// Fuse runs the selected strategy. The content is never empty: a strategy
// producing nothing yields GenericResponse with zero confidence.
func (e *Engine) Fuse(r Request) models.FusionResult {
	ru := e.match(&r)
	out := ru.fuse(&r, e.thresholds)

	res := models.FusionResult{
		Content:    Normalize(out.content),
		Strategy:   ru.strategy,
		Confidence: math.Max(0, math.Min(1, out.confidence)),
		Metadata: models.FusionMetadata{
			BaseProvider: out.base,
			QueryType:    string(out.queryType),
			GlobalScores: globalScores(&r),
		},
	}
	if strings.TrimSpace(res.Content) == "" {
		res.Content = GenericResponse
		res.Confidence = 0
		res.Metadata.EmptyOutput = true
	}
	return res
}
