// Package analyzer scores a provider response against the query on a fixed
// set of quality dimensions. Scoring is pure and deterministic: the same
// query, response and context always produce the same ScoreProfile.
package analyzer

import (
	"fmt"
	"math"
	"strings"

	"github.com/HanTheDev/llm-fusion-gateway/internal/models"
)

// Weights maps each dimension to its share of the global score.
type Weights map[Dimension]float64

// DefaultWeights is the documented weight table. The values sum to 1.
//
//	quality .15  relevance .15  clarity .10  completeness .10  accuracy .10
//	engagement .08  business_value .08  creativity .08
//	conversion_potential .07  lead_quality .05  urgency .04
var DefaultWeights = Weights{
	Quality:             0.15,
	Relevance:           0.15,
	Clarity:             0.10,
	Completeness:        0.10,
	Accuracy:            0.10,
	Engagement:          0.08,
	BusinessValue:       0.08,
	Creativity:          0.08,
	ConversionPotential: 0.07,
	LeadQuality:         0.05,
	Urgency:             0.04,
}

// Validate checks that every weight is non-negative and that they sum to 1.
func (w Weights) Validate() error {
	sum := 0.0
	for _, d := range Dimensions {
		v := w[d]
		if v < 0 {
			return fmt.Errorf("weight for %s is negative", d)
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("weights sum to %.4f, want 1", sum)
	}
	return nil
}

type Analyzer struct {
	weights     Weights
	tierWeights map[models.Tier]Weights
}

type Option func(*Analyzer)

// WithTierWeights applies a different emphasis for callers of the given tier.
func WithTierWeights(tier models.Tier, w Weights) Option {
	return func(a *Analyzer) {
		if a.tierWeights == nil {
			a.tierWeights = make(map[models.Tier]Weights)
		}
		a.tierWeights[tier] = w
	}
}

func New(opts ...Option) (*Analyzer, error) {
	a := &Analyzer{weights: DefaultWeights}
	for _, opt := range opts {
		opt(a)
	}
	for tier, w := range a.tierWeights {
		if err := w.Validate(); err != nil {
			return nil, fmt.Errorf("tier %s: %w", tier, err)
		}
	}
	return a, nil
}

// Analyze scores response against query. Empty or whitespace-only responses
// yield the floor profile (all zeros).
func (a *Analyzer) Analyze(query, response string, c Context) models.ScoreProfile {
	if strings.TrimSpace(response) == "" {
		return models.ScoreProfile{}
	}
	in := newInput(query, response, c)

	scores := make(map[Dimension]float64, len(Dimensions))
	for _, d := range Dimensions {
		scores[d] = scoreDimension(Registry[d], in)
	}

	w := a.weights
	if tw, ok := a.tierWeights[c.Tier]; ok {
		w = tw
	}
	global := 0.0
	for _, d := range Dimensions {
		global += w[d] * scores[d]
	}

	return models.ScoreProfile{
		Quality:             scores[Quality],
		Relevance:           scores[Relevance],
		Engagement:          scores[Engagement],
		BusinessValue:       scores[BusinessValue],
		ConversionPotential: scores[ConversionPotential],
		LeadQuality:         scores[LeadQuality],
		Urgency:             scores[Urgency],
		Clarity:             scores[Clarity],
		Completeness:        scores[Completeness],
		Accuracy:            scores[Accuracy],
		Creativity:          scores[Creativity],
		GlobalScore:         clamp(global, 0, 1),
	}
}

func scoreDimension(spec DimensionSpec, in *Input) float64 {
	v := spec.Base
	for _, s := range spec.Signals {
		v += s.contribution(in)
	}
	return clamp(v, 0, 1)
}

// Value returns the score of dimension d from p.
func Value(p models.ScoreProfile, d Dimension) float64 {
	switch d {
	case Quality:
		return p.Quality
	case Relevance:
		return p.Relevance
	case Engagement:
		return p.Engagement
	case BusinessValue:
		return p.BusinessValue
	case ConversionPotential:
		return p.ConversionPotential
	case LeadQuality:
		return p.LeadQuality
	case Urgency:
		return p.Urgency
	case Clarity:
		return p.Clarity
	case Completeness:
		return p.Completeness
	case Accuracy:
		return p.Accuracy
	case Creativity:
		return p.Creativity
	}
	return 0
}
