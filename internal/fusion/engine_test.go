package fusion

import (
	"strings"
	"testing"

	"github.com/HanTheDev/llm-fusion-gateway/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(provider, text string, p models.ScoreProfile) Candidate {
	return Candidate{Provider: provider, Text: text, Scores: p}
}

func TestSelect(t *testing.T) {
	e := NewEngine(DefaultThresholds())

	tests := []struct {
		name   string
		tier   models.Tier
		a, b   models.ScoreProfile
		expect models.Strategy
	}{
		{"wide gap", models.TierStandard, models.ScoreProfile{GlobalScore: 0.9}, models.ScoreProfile{GlobalScore: 0.5}, models.StrategyDominantLead},
		{"wide gap beats privilege", models.TierPrivileged, models.ScoreProfile{GlobalScore: 0.3}, models.ScoreProfile{GlobalScore: 0.8}, models.StrategyDominantLead},
		{"privileged", models.TierPrivileged, models.ScoreProfile{GlobalScore: 0.6}, models.ScoreProfile{GlobalScore: 0.7}, models.StrategyMolecular},
		{"conversion signal", models.TierStandard, models.ScoreProfile{GlobalScore: 0.5, ConversionPotential: 0.65}, models.ScoreProfile{GlobalScore: 0.45}, models.StrategyHybridConversion},
		{"business signal", models.TierStandard, models.ScoreProfile{GlobalScore: 0.5}, models.ScoreProfile{GlobalScore: 0.45, BusinessValue: 0.6}, models.StrategyHybridConversion},
		{"close scores", models.TierStandard, models.ScoreProfile{GlobalScore: 0.70}, models.ScoreProfile{GlobalScore: 0.72}, models.StrategyBestOfBoth},
		{"middle gap", models.TierStandard, models.ScoreProfile{GlobalScore: 0.6}, models.ScoreProfile{GlobalScore: 0.45}, models.StrategyAdaptiveMerge},
		{"unclassified uses standard rules", models.TierUnclassified, models.ScoreProfile{GlobalScore: 0.6}, models.ScoreProfile{GlobalScore: 0.45}, models.StrategyAdaptiveMerge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Select(Request{
				Query: "anything",
				Tier:  tt.tier,
				A:     candidate("provider_a", "a", tt.a),
				B:     candidate("provider_b", "b", tt.b),
			})
			assert.Equal(t, tt.expect, got)
		})
	}
}

func TestFuseDominantLeadKeepsLeaderAndAddsCallToAction(t *testing.T) {
	e := NewEngine(DefaultThresholds())
	a := "The engine light means the particulate filter is clogged.\n\nDrive at 2500 rpm for twenty minutes to regenerate it."
	b := "Don't worry, this is common. Contact us for a quick diagnosis!"

	res := e.Fuse(Request{
		Query: "engine light on",
		Tier:  models.TierStandard,
		A:     candidate("provider_a", a, models.ScoreProfile{GlobalScore: 0.6}),
		B:     candidate("provider_b", b, models.ScoreProfile{GlobalScore: 0.3}),
	})

	assert.Equal(t, models.StrategyDominantLead, res.Strategy)
	assert.Equal(t, "provider_a", res.Metadata.BaseProvider)
	assert.True(t, strings.HasPrefix(res.Content, "The engine light means the particulate filter is clogged."))
	assert.True(t, strings.HasSuffix(res.Content, "\n\nContact us for a quick diagnosis!"))
	assert.NotContains(t, res.Content, "Don't worry")
	assert.InDelta(t, 0.9, res.Confidence, 1e-9)
}

func TestFuseDominantLeadConfidenceFollowsLeader(t *testing.T) {
	e := NewEngine(DefaultThresholds())
	res := e.Fuse(Request{
		Query: "q",
		A:     candidate("provider_a", "Short answer.", models.ScoreProfile{GlobalScore: 0.5}),
		B:     candidate("provider_b", "Detailed answer with 3 steps.", models.ScoreProfile{GlobalScore: 0.95}),
	})
	assert.Equal(t, models.StrategyDominantLead, res.Strategy)
	assert.Equal(t, "provider_b", res.Metadata.BaseProvider)
	assert.InDelta(t, 0.95, res.Confidence, 1e-9)
}

func TestFuseBestOfBothPicksBlocksIndependently(t *testing.T) {
	e := NewEngine(DefaultThresholds())
	res := e.Fuse(Request{
		Query: "q",
		Tier:  models.TierStandard,
		A: candidate("provider_a", "Intro A. Body A one. Conclusion A.", models.ScoreProfile{
			GlobalScore: 0.70, Engagement: 0.2, Accuracy: 0.8, Clarity: 0.8, Creativity: 0.3,
		}),
		B: candidate("provider_b", "Intro B. Body B. Conclusion B.", models.ScoreProfile{
			GlobalScore: 0.72, Engagement: 0.6, Accuracy: 0.4, Clarity: 0.4, Creativity: 0.5,
		}),
	})

	assert.Equal(t, models.StrategyBestOfBoth, res.Strategy)
	assert.Equal(t, "Intro B.\n\nBody A one.\n\nConclusion B.", res.Content)
	assert.InDelta(t, 0.81, res.Confidence, 1e-9)
}

func TestFuseMolecularForPrivilegedCallers(t *testing.T) {
	e := NewEngine(DefaultThresholds())
	res := e.Fuse(Request{
		Query: "q",
		Tier:  models.TierPrivileged,
		A: candidate("provider_a", "Hello there. The sensor reads 3 bar. Check it. In summary, replace it.", models.ScoreProfile{
			GlobalScore: 0.6, Accuracy: 0.8, Clarity: 0.3, Engagement: 0.2,
		}),
		B: candidate("provider_b", "Happy to help! Your car needs care. For example, drive longer. Bref, rien de grave.", models.ScoreProfile{
			GlobalScore: 0.7, Accuracy: 0.3, Clarity: 0.9, Engagement: 0.7, Creativity: 0.6,
		}),
	})

	assert.Equal(t, models.StrategyMolecular, res.Strategy)
	assert.InDelta(t, 0.8, res.Confidence, 1e-9)
	assert.True(t, strings.HasPrefix(res.Content, "Happy to help!"))
	assert.Contains(t, res.Content, "For example, drive longer.")
	// A is more accurate but B owns the body, so A's figures come in as an aside.
	assert.Contains(t, res.Content, "The sensor reads 3 bar.")
	assert.True(t, strings.HasSuffix(res.Content, "Bref, rien de grave."))
}

func TestFuseHybridConversionMovesCallToActionLast(t *testing.T) {
	e := NewEngine(DefaultThresholds())
	res := e.Fuse(Request{
		Query: "filter cleaning price",
		Tier:  models.TierStandard,
		A: candidate("provider_a", "We repair filters. Prices start at 90 euros.\n\nBook a slot online.", models.ScoreProfile{
			GlobalScore: 0.5, ConversionPotential: 0.65,
		}),
		B: candidate("provider_b", "Happy to help you today! Contact us for a quote.", models.ScoreProfile{
			GlobalScore: 0.45,
		}),
	})

	assert.Equal(t, models.StrategyHybridConversion, res.Strategy)
	assert.Equal(t, "We repair filters. Happy to help you today! Prices start at 90 euros.\n\nBook a slot online.", res.Content)
	assert.InDelta(t, 0.55, res.Confidence, 1e-9)
	assert.Equal(t, "provider_a", res.Metadata.BaseProvider)
}

func TestFuseAdaptiveMergeTechnicalQuery(t *testing.T) {
	e := NewEngine(DefaultThresholds())
	a := "The engine control unit detected a fault. Read the OBD code with a scanner."
	b := "Don't worry, this happens to many drivers. It is usually nothing serious."

	res := e.Fuse(Request{
		Query: "my engine light is on",
		Tier:  models.TierStandard,
		A:     candidate("provider_a", a, models.ScoreProfile{GlobalScore: 0.6, Accuracy: 0.8}),
		B:     candidate("provider_b", b, models.ScoreProfile{GlobalScore: 0.45, Accuracy: 0.4}),
	})

	assert.Equal(t, models.StrategyAdaptiveMerge, res.Strategy)
	assert.Equal(t, string(QueryTechnical), res.Metadata.QueryType)
	assert.Equal(t, "provider_a", res.Metadata.BaseProvider)
	assert.Equal(t, a+"\n\nDon't worry, this happens to many drivers.", res.Content)
	assert.InDelta(t, 0.87, res.Confidence, 1e-9)
}

func TestFuseAdaptiveMergeFactualPrependsEngagingSentence(t *testing.T) {
	e := NewEngine(DefaultThresholds())
	res := e.Fuse(Request{
		Query: "When was the Eiffel Tower built?",
		Tier:  models.TierStandard,
		A: candidate("provider_a", "It was built a long time ago. You will love visiting it!", models.ScoreProfile{
			GlobalScore: 0.6, Accuracy: 0.4,
		}),
		B: candidate("provider_b", "The Eiffel Tower was completed in 1889. It stands 330 metres tall.", models.ScoreProfile{
			GlobalScore: 0.45, Accuracy: 0.9,
		}),
	})

	assert.Equal(t, models.StrategyAdaptiveMerge, res.Strategy)
	assert.Equal(t, string(QueryFactual), res.Metadata.QueryType)
	assert.Equal(t, "provider_b", res.Metadata.BaseProvider, "the more accurate side is the base")
	assert.Equal(t, "You will love visiting it! The Eiffel Tower was completed in 1889. It stands 330 metres tall.", res.Content)
	assert.InDelta(t, 0.85, res.Confidence, 1e-9)
}

func TestFuseAdaptiveMergeCreativeAppendsTechnicalFragment(t *testing.T) {
	e := NewEngine(DefaultThresholds())
	story := "Once upon a time, a tiny garage dreamed of racing. Every night it listened to the cars sing."
	res := e.Fuse(Request{
		Query: "Write a short story about a garage",
		Tier:  models.TierStandard,
		A: candidate("provider_a", story, models.ScoreProfile{
			GlobalScore: 0.6, Creativity: 0.9,
		}),
		B: candidate("provider_b", "Garages are places where cars get repaired. A mechanic checks the exhaust and the turbo.", models.ScoreProfile{
			GlobalScore: 0.45, Creativity: 0.2,
		}),
	})

	assert.Equal(t, models.StrategyAdaptiveMerge, res.Strategy)
	assert.Equal(t, string(QueryCreative), res.Metadata.QueryType)
	assert.Equal(t, "provider_a", res.Metadata.BaseProvider, "the more creative side is the base")
	assert.Equal(t, story+"\n\nA mechanic checks the exhaust and the turbo.", res.Content)
	assert.InDelta(t, 0.80, res.Confidence, 1e-9)
}

func TestFuseAdaptiveMergeGeneralAlternates(t *testing.T) {
	e := NewEngine(DefaultThresholds())
	res := e.Fuse(Request{
		Query: "tell me about gardens",
		A:     candidate("provider_a", "Gardens need light. Water them weekly.", models.ScoreProfile{GlobalScore: 0.6}),
		B:     candidate("provider_b", "Roses love sun. Mulch helps.", models.ScoreProfile{GlobalScore: 0.45}),
	})

	assert.Equal(t, models.StrategyAdaptiveMerge, res.Strategy)
	assert.Equal(t, "Gardens need light. Roses love sun. Water them weekly. Mulch helps.", res.Content)
	assert.InDelta(t, 0.75, res.Confidence, 1e-9)
}

func TestFuseEmptyOutputFallsBackToGenericResponse(t *testing.T) {
	e := NewEngine(DefaultThresholds())
	res := e.Fuse(Request{
		Query: "q",
		A:     candidate("provider_a", "   ", models.ScoreProfile{}),
		B:     candidate("provider_b", "\n\n", models.ScoreProfile{}),
	})

	assert.Equal(t, GenericResponse, res.Content)
	assert.Zero(t, res.Confidence)
	assert.True(t, res.Metadata.EmptyOutput)
}

func TestFuseRecordsBothGlobalScores(t *testing.T) {
	e := NewEngine(Thresholds{})
	res := e.Fuse(Request{
		Query: "q",
		A:     candidate("provider_a", "One.", models.ScoreProfile{GlobalScore: 0.4}),
		B:     candidate("provider_b", "Two.", models.ScoreProfile{GlobalScore: 0.42}),
	})
	require.Len(t, res.Metadata.GlobalScores, 2)
	assert.Equal(t, 0.4, res.Metadata.GlobalScores["provider_a"])
	assert.Equal(t, 0.42, res.Metadata.GlobalScores["provider_b"])
	assert.Equal(t, DefaultThresholds(), e.Thresholds())
}

func TestFuseKeepsScoresOfSameNamedCandidatesApart(t *testing.T) {
	e := NewEngine(DefaultThresholds())
	res := e.Fuse(Request{
		Query: "q",
		A:     candidate("gpt", "One.", models.ScoreProfile{GlobalScore: 0.4}),
		B:     candidate("gpt", "Two.", models.ScoreProfile{GlobalScore: 0.42}),
	})
	require.Len(t, res.Metadata.GlobalScores, 2)
	assert.Equal(t, 0.4, res.Metadata.GlobalScores["gpt#a"])
	assert.Equal(t, 0.42, res.Metadata.GlobalScores["gpt#b"])
}

func TestNewEngineKeepsExplicitZeros(t *testing.T) {
	th := DefaultThresholds()
	th.HybridBonus = 0
	require.NoError(t, th.Validate())

	e := NewEngine(th)
	assert.Zero(t, e.Thresholds().HybridBonus)

	res := e.Fuse(Request{
		Query: "filter cleaning price",
		Tier:  models.TierStandard,
		A:     candidate("provider_a", "We repair filters. Book a slot online.", models.ScoreProfile{GlobalScore: 0.5, ConversionPotential: 0.65}),
		B:     candidate("provider_b", "Contact us for a quote.", models.ScoreProfile{GlobalScore: 0.45}),
	})
	assert.Equal(t, models.StrategyHybridConversion, res.Strategy)
	assert.InDelta(t, 0.5, res.Confidence, 1e-9)
}

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())

	tests := []struct {
		name   string
		mutate func(*Thresholds)
	}{
		{"close gap equals dominant gap", func(th *Thresholds) { th.CloseGap = th.DominantGap }},
		{"close gap above dominant gap", func(th *Thresholds) { th.CloseGap, th.DominantGap = 0.3, 0.2 }},
		{"zero dominant gap", func(th *Thresholds) { th.DominantGap, th.CloseGap = 0, 0 }},
		{"negative bonus", func(th *Thresholds) { th.MolecularBonus = -0.1 }},
		{"floor above one", func(th *Thresholds) { th.DominantConfidenceFloor = 1.2 }},
		{"signal above one", func(th *Thresholds) { th.ConversionSignal = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := DefaultThresholds()
			tt.mutate(&th)
			assert.Error(t, th.Validate())
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hello  world..  Next!!\n\n\n\nPara", "Hello world. Next!\n\nPara"},
		{"  padded \t text  \r\n\r\nnext  ", "padded text\n\nnext"},
		{"Really?!", "Really?"},
		{"- one\n- two", "- one\n- two"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "input %q", tt.in)
	}
}

func TestClassifyQuery(t *testing.T) {
	tests := []struct {
		query string
		want  QueryType
	}{
		{"mon filtre à particules est bouché, que faire ?", QueryTechnical},
		{"Quand a été construite la tour Eiffel ?", QueryFactual},
		{"Écris un poème sur la mer", QueryCreative},
		{"Bonjour, ça va ?", QueryConversational},
		{"tell me about gardens", QueryGeneral},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyQuery(tt.query), tt.query)
	}
}
