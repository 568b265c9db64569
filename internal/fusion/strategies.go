package fusion

import (
	"github.com/HanTheDev/llm-fusion-gateway/internal/analyzer"
	"github.com/HanTheDev/llm-fusion-gateway/internal/models"
)

type outcome struct {
	content    string
	confidence float64
	base       string
	queryType  QueryType
}

// dominantLead keeps the leading text and splices in at most one missing
// element from the other side: a call to action, an example, or a technical detail.
func dominantLead(r *Request, t Thresholds) outcome {
	lead, other := r.leader()
	base := enhance(parse(lead.Text), parse(other.Text))
	return outcome{
		content:    base.render(),
		confidence: min(1, max(lead.Scores.GlobalScore, t.DominantConfidenceFloor)),
		base:       lead.Provider,
	}
}

func enhance(base, other document) document {
	text := base.render()
	missing := []struct {
		lacks  bool
		pick   func(string) bool
		before bool
	}{
		{!analyzer.HasCallToAction(text), analyzer.HasCallToAction, false},
		{!analyzer.HasExample(text), analyzer.HasExample, true},
		{!analyzer.IsTechnical(text), analyzer.IsTechnical, false},
	}
	for _, m := range missing {
		if !m.lacks {
			continue
		}
		s := firstSentence(other.sentences(), func(s string) bool { return m.pick(s) && !base.contains(s) })
		if s == "" {
			continue
		}
		if m.before {
			return insertBeforeLast(base, s)
		}
		return append(clone(base), []string{s})
	}
	return base
}

// molecular rebuilds the answer slot by slot, taking each slot from the side
// that scores best on the dimension that slot depends on.
func molecular(r *Request, t Thresholds) outcome {
	pa, pb := decompose(r.A.Text), decompose(r.B.Text)
	engageA := r.A.Scores.Engagement >= r.B.Scores.Engagement
	bodyA := structure(r.A.Scores) >= structure(r.B.Scores)
	creativeA := r.A.Scores.Creativity >= r.B.Scores.Creativity
	accurateA := r.A.Scores.Accuracy >= r.B.Scores.Accuracy

	asm := newAssembler()
	asm.paragraph(choose(engageA, pa.intro, pb.intro))
	asm.paragraph(chooseAll(bodyA, pa.body, pb.body)...)
	asm.paragraph(chooseAll(creativeA, pa.examples, pb.examples)...)
	if accurateA != bodyA {
		tech := chooseAll(accurateA, pa.technical, pb.technical)
		asm.paragraph(tech[:min(2, len(tech))]...)
	}
	asm.paragraph(choose(engageA, pa.conclusion, pb.conclusion))

	return outcome{
		content:    asm.String(),
		confidence: min(1, average(r)+t.MolecularBonus),
	}
}

// hybridConversion keeps the leading text, adds one engaging line from the
// other side and moves a single call to action to the end.
func hybridConversion(r *Request, t Thresholds) outcome {
	lead, other := r.leader()
	base := parse(lead.Text)
	frag := firstSentence(parse(other.Text).sentences(), func(s string) bool {
		return analyzer.IsEngaging(s) && len(analyzer.Words(s)) >= 3 && !base.contains(s)
	})
	if frag != "" && len(base) > 0 {
		base = clone(base)
		first := append([]string{base[0][0], frag}, base[0][1:]...)
		base[0] = first
	}
	return outcome{
		content:    conversionNormalize(base).render(),
		confidence: min(1, max(r.A.Scores.GlobalScore, r.B.Scores.GlobalScore)+t.HybridBonus),
		base:       lead.Provider,
	}
}

// conversionNormalize keeps only the first call to action and places it last.
func conversionNormalize(d document) document {
	var cta string
	var out document
	for _, p := range d {
		var keep []string
		for _, s := range p {
			if analyzer.HasCallToAction(s) {
				if cta == "" {
					cta = s
				}
				continue
			}
			keep = append(keep, s)
		}
		if len(keep) > 0 {
			out = append(out, keep)
		}
	}
	if cta != "" {
		out = append(out, []string{cta})
	}
	return out
}

// bestOfBoth assembles introduction, body, examples and conclusion, choosing
// each block's source independently.
func bestOfBoth(r *Request, t Thresholds) outcome {
	pa, pb := decompose(r.A.Text), decompose(r.B.Text)
	engageA := r.A.Scores.Engagement >= r.B.Scores.Engagement

	asm := newAssembler()
	asm.paragraph(choose(engageA, pa.intro, pb.intro))
	asm.paragraph(chooseAll(structure(r.A.Scores) >= structure(r.B.Scores), pa.body, pb.body)...)
	asm.paragraph(chooseAll(r.A.Scores.Creativity >= r.B.Scores.Creativity, pa.examples, pb.examples)...)
	asm.paragraph(choose(engageA, pa.conclusion, pb.conclusion))

	return outcome{
		content:    asm.String(),
		confidence: min(1, average(r)+t.BestOfBothBonus),
	}
}

// adaptiveMerge blends according to what kind of question was asked.
func adaptiveMerge(r *Request, _ Thresholds) outcome {
	qt := ClassifyQuery(r.Query)
	switch qt {
	case QueryFactual:
		hi, lo := r.by(func(p models.ScoreProfile) float64 { return p.Accuracy })
		base := parse(hi.Text)
		if s := firstSentence(parse(lo.Text).sentences(), func(s string) bool {
			return analyzer.IsEngaging(s) && !base.contains(s)
		}); s != "" && len(base) > 0 {
			base = clone(base)
			base[0] = append([]string{s}, base[0]...)
		}
		return outcome{content: base.render(), confidence: confidenceFactual, base: hi.Provider, queryType: qt}

	case QueryCreative:
		hi, lo := r.by(func(p models.ScoreProfile) float64 { return p.Creativity })
		base := parse(hi.Text)
		if s := firstSentence(parse(lo.Text).sentences(), func(s string) bool {
			return analyzer.IsTechnical(s) && !base.contains(s)
		}); s != "" {
			base = append(clone(base), []string{s})
		}
		return outcome{content: base.render(), confidence: confidenceCreative, base: hi.Provider, queryType: qt}

	case QueryTechnical:
		hi, lo := r.by(func(p models.ScoreProfile) float64 { return p.Accuracy })
		base := parse(hi.Text)
		if s := accessibleFragment(parse(lo.Text).sentences(), base); s != "" {
			base = append(clone(base), []string{s})
		}
		return outcome{content: base.render(), confidence: confidenceTechnical, base: hi.Provider, queryType: qt}
	}

	conf := confidenceGeneral
	if qt == QueryConversational {
		conf = confidenceConversational
	}
	return outcome{content: alternate(r.A.Text, r.B.Text), confidence: conf, queryType: qt}
}

// accessibleFragment picks a short plain-language sentence, preferring one
// that speaks to the reader.
func accessibleFragment(sents []string, base document) string {
	plain := func(s string) bool {
		n := len(analyzer.Words(s))
		return n >= 4 && n <= 25 && analyzer.TechnicalDensity(s) <= 0.2 && !base.contains(s)
	}
	if s := firstSentence(sents, func(s string) bool {
		return plain(s) && (analyzer.IsEngaging(s) || analyzer.HasCallToAction(s))
	}); s != "" {
		return s
	}
	return firstSentence(sents, plain)
}

// alternate interleaves sentences from a and b one for one.
func alternate(a, b string) string {
	sa, sb := parse(a).sentences(), parse(b).sentences()
	var merged []string
	for i := 0; i < max(len(sa), len(sb)); i++ {
		if i < len(sa) {
			merged = append(merged, sa[i])
		}
		if i < len(sb) {
			merged = append(merged, sb[i])
		}
	}
	asm := newAssembler()
	asm.paragraph(merged...)
	return asm.String()
}

func structure(p models.ScoreProfile) float64 { return (p.Accuracy + p.Clarity) / 2 }

func average(r *Request) float64 { return (r.A.Scores.GlobalScore + r.B.Scores.GlobalScore) / 2 }

func choose(preferA bool, a, b string) string {
	if !preferA {
		a, b = b, a
	}
	if a != "" {
		return a
	}
	return b
}

func chooseAll(preferA bool, a, b []string) []string {
	if !preferA {
		a, b = b, a
	}
	if len(a) > 0 {
		return a
	}
	return b
}

func firstSentence(sents []string, pred func(string) bool) string {
	for _, s := range sents {
		if pred(s) {
			return s
		}
	}
	return ""
}

func clone(d document) document {
	out := make(document, len(d))
	for i, p := range d {
		out[i] = append([]string(nil), p...)
	}
	return out
}

func insertBeforeLast(d document, s string) document {
	out := clone(d)
	if len(out) < 2 {
		return append(out, []string{s})
	}
	last := out[len(out)-1]
	out = append(out[:len(out)-1], []string{s}, last)
	return out
}
