package analyzer

import (
	"strings"

	"github.com/HanTheDev/llm-fusion-gateway/internal/models"
)

// Dimension names one axis of a ScoreProfile.
type Dimension string

const (
	Quality             Dimension = "quality"
	Relevance           Dimension = "relevance"
	Engagement          Dimension = "engagement"
	BusinessValue       Dimension = "business_value"
	ConversionPotential Dimension = "conversion_potential"
	LeadQuality         Dimension = "lead_quality"
	Urgency             Dimension = "urgency"
	Clarity             Dimension = "clarity"
	Completeness        Dimension = "completeness"
	Accuracy            Dimension = "accuracy"
	Creativity          Dimension = "creativity"
)

// Dimensions lists every scored dimension in a fixed order.
var Dimensions = []Dimension{
	Quality, Relevance, Engagement, BusinessValue, ConversionPotential, LeadQuality,
	Urgency, Clarity, Completeness, Accuracy, Creativity,
}

// Context carries the optional caller-side hints used by some signals.
type Context struct {
	Tier      models.Tier
	TurnCount int
	Topic     string
}

// Input is a response prepared for scoring. Features are computed once and
// shared by every signal.
type Input struct {
	Query    string
	Response string
	Context  Context

	spaced      string
	querySpaced string

	wordCount      int
	sentences      []string
	paragraphCount int
	avgSentenceLen float64
	hasList        bool
	diversity      float64
	questions      int
	exclamations   int
	hasNumber      bool
	hasCurrency    bool
	hasContact     bool
	overlap        float64
}

func newInput(query, response string, c Context) *Input {
	in := &Input{Query: query, Response: response, Context: c}
	in.spaced = Spaced(response)
	in.querySpaced = Spaced(query)

	words := strings.Fields(in.spaced)
	in.wordCount = len(words)
	if in.wordCount > 0 {
		in.diversity = float64(len(uniqueWords(words))) / float64(in.wordCount)
	}
	in.sentences = Sentences(response)
	if len(in.sentences) > 0 {
		in.avgSentenceLen = float64(in.wordCount) / float64(len(in.sentences))
	}
	in.paragraphCount = len(Paragraphs(response))
	for _, line := range strings.Split(response, "\n") {
		if IsListItem(line) {
			in.hasList = true
			break
		}
	}
	in.questions = strings.Count(response, "?")
	in.exclamations = strings.Count(response, "!")
	in.hasNumber = numberPattern.MatchString(response)
	in.hasCurrency = currencyPattern.MatchString(Fold(response))
	in.hasContact = contactPattern.MatchString(response)
	in.overlap = KeywordOverlap(query, response)
	return in
}

func (in *Input) terms(list []string) int { return countTerms(in.spaced, list) }

func (in *Input) structured() bool { return in.hasList || in.paragraphCount >= 2 }

// scaledDiversity maps lexical diversity to [0,1], damped for very short texts.
func (in *Input) scaledDiversity() float64 {
	d := clamp((in.diversity-0.35)/0.35, 0, 1)
	return d * min(1, float64(in.wordCount)/20)
}

// Signal is one named textual heuristic contributing at most Cap to a dimension.
type Signal struct {
	Name  string
	Cap   float64
	Score func(in *Input) float64
}

func (s Signal) contribution(in *Input) float64 {
	return clamp(s.Score(in), 0, s.Cap)
}

// flag returns a score func yielding v when pred holds.
func flag(v float64, pred func(in *Input) bool) func(in *Input) float64 {
	return func(in *Input) float64 {
		if pred(in) {
			return v
		}
		return 0
	}
}

// perTerm returns a score func yielding step per matched term, up to n terms.
func perTerm(step float64, n int, list []string) func(in *Input) float64 {
	return func(in *Input) float64 {
		return step * float64(min(n, in.terms(list)))
	}
}

func has(list []string) func(in *Input) bool {
	return func(in *Input) bool { return in.terms(list) > 0 }
}

// DimensionSpec is the base score and signal list for one dimension.
type DimensionSpec struct {
	Base    float64
	Signals []Signal
}

// Registry is the fixed table of signals per dimension.
var Registry = map[Dimension]DimensionSpec{
	Quality: {Base: 0.30, Signals: []Signal{
		{"length", 0.15, func(in *Input) float64 {
			switch {
			case in.wordCount >= 40 && in.wordCount <= 400:
				return 0.15
			case in.wordCount > 400:
				return 0.10
			case in.wordCount >= 15:
				return 0.08
			}
			return 0
		}},
		{"structure", 0.12, flag(0.12, (*Input).structured)},
		{"lexical_diversity", 0.10, func(in *Input) float64 { return 0.10 * in.scaledDiversity() }},
		{"sentences", 0.08, flag(0.08, func(in *Input) bool { return len(in.sentences) >= 3 })},
	}},
	Relevance: {Base: 0.10, Signals: []Signal{
		{"keyword_overlap", 0.70, func(in *Input) float64 { return 0.70 * in.overlap }},
		{"answers_question", 0.15, flag(0.15, answersQuestion)},
	}},
	Clarity: {Base: 0.35, Signals: []Signal{
		{"sentence_length", 0.15, func(in *Input) float64 {
			switch {
			case in.avgSentenceLen >= 8 && in.avgSentenceLen <= 25:
				return 0.15
			case in.avgSentenceLen >= 5 && in.avgSentenceLen <= 35:
				return 0.07
			}
			return 0
		}},
		{"list", 0.10, flag(0.10, func(in *Input) bool { return in.hasList })},
		{"paragraphs", 0.10, flag(0.10, func(in *Input) bool { return in.paragraphCount >= 2 })},
		{"conclusion", 0.05, flag(0.05, has(conclusionTerms))},
	}},
	Completeness: {Base: 0.25, Signals: []Signal{
		{"length", 0.20, func(in *Input) float64 { return 0.20 * min(1, float64(in.wordCount)/200) }},
		{"sentences", 0.10, flag(0.10, func(in *Input) bool { return len(in.sentences) >= 4 })},
		{"examples", 0.10, flag(0.10, has(exampleTerms))},
		{"conclusion", 0.10, flag(0.10, has(conclusionTerms))},
		{"query_coverage", 0.15, func(in *Input) float64 { return 0.15 * in.overlap }},
	}},
	Accuracy: {Base: 0.30, Signals: []Signal{
		{"numbers", 0.12, flag(0.12, func(in *Input) bool { return in.hasNumber })},
		{"technical_terms", 0.15, perTerm(0.05, 3, technicalTerms)},
		{"nuance", 0.10, perTerm(0.05, 2, nuanceTerms)},
		{"structure", 0.08, flag(0.08, (*Input).structured)},
	}},
	Creativity: {Base: 0.25, Signals: []Signal{
		{"lexical_diversity", 0.15, func(in *Input) float64 { return 0.15 * in.scaledDiversity() }},
		{"analogy", 0.12, flag(0.12, has(analogyTerms))},
		{"exclamation", 0.06, flag(0.06, func(in *Input) bool { return in.exclamations > 0 })},
		{"examples", 0.08, flag(0.08, has(exampleTerms))},
	}},
	Engagement: {Base: 0.25, Signals: []Signal{
		{"questions", 0.12, flag(0.12, func(in *Input) bool { return in.questions > 0 })},
		{"second_person", 0.12, perTerm(0.04, 3, secondPersonTerms)},
		{"friendly", 0.10, flag(0.10, has(friendlyTerms))},
		{"exclamation", 0.06, flag(0.06, func(in *Input) bool { return in.exclamations > 0 })},
		{"call_to_action", 0.10, flag(0.10, has(ctaTerms))},
	}},
	BusinessValue: {Base: 0.20, Signals: []Signal{
		{"business_terms", 0.20, perTerm(0.05, 4, businessTerms)},
		{"call_to_action", 0.12, flag(0.12, has(ctaTerms))},
		{"pricing", 0.10, flag(0.10, func(in *Input) bool { return in.hasCurrency })},
	}},
	ConversionPotential: {Base: 0.15, Signals: []Signal{
		{"call_to_action", 0.20, perTerm(0.10, 2, ctaTerms)},
		{"urgency", 0.10, flag(0.10, has(urgencyTerms))},
		{"business_terms", 0.10, perTerm(0.05, 2, businessTerms)},
		{"second_person", 0.08, flag(0.08, has(secondPersonTerms))},
		{"contact_details", 0.10, flag(0.10, func(in *Input) bool { return in.hasContact })},
	}},
	LeadQuality: {Base: 0.20, Signals: []Signal{
		{"query_intent", 0.15, flag(0.15, func(in *Input) bool {
			return countTerms(in.querySpaced, businessTerms)+countTerms(in.querySpaced, technicalTerms) > 0
		})},
		{"call_to_action", 0.12, flag(0.12, has(ctaTerms))},
		{"topic_match", 0.10, flag(0.10, func(in *Input) bool {
			topic := strings.TrimSpace(Spaced(in.Context.Topic))
			return topic != "" && strings.Contains(in.spaced, " "+topic+" ")
		})},
		{"conversation_depth", 0.08, flag(0.08, func(in *Input) bool { return in.Context.TurnCount >= 2 })},
	}},
	Urgency: {Base: 0.10, Signals: []Signal{
		{"urgency_terms", 0.25, perTerm(0.08, 3, urgencyTerms)},
		{"query_urgency", 0.15, flag(0.15, func(in *Input) bool { return countTerms(in.querySpaced, queryUrgencyTerms) > 0 })},
		{"warnings", 0.10, flag(0.10, has(warningTerms))},
	}},
}

// answersQuestion reports whether the query is a wh-question and the
// response's first sentence looks like a direct answer to it.
func answersQuestion(in *Input) bool {
	qWords := strings.Fields(in.querySpaced)
	isQuestion := false
	for i, w := range qWords {
		if whWords[w] && (i < 3 || strings.Contains(in.Query, "?")) {
			isQuestion = true
			break
		}
	}
	if !isQuestion || len(in.sentences) == 0 {
		return false
	}
	first := in.sentences[0]
	if countTerms(Spaced(first), answerMarkers) > 0 {
		return true
	}
	return KeywordOverlap(in.Query, first) > 0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
