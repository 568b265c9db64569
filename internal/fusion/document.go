package fusion

import (
	"regexp"
	"strings"

	"github.com/HanTheDev/llm-fusion-gateway/internal/analyzer"
)

// document is a text split into paragraphs of sentences.
type document [][]string

func parse(text string) document {
	var d document
	for _, p := range analyzer.Paragraphs(text) {
		if s := analyzer.Sentences(p); len(s) > 0 {
			d = append(d, s)
		}
	}
	return d
}

func (d document) sentences() []string {
	var out []string
	for _, p := range d {
		out = append(out, p...)
	}
	return out
}

func (d document) contains(s string) bool {
	key := sentenceKey(s)
	for _, have := range d.sentences() {
		if sentenceKey(have) == key {
			return true
		}
	}
	return false
}

func (d document) render() string {
	blocks := make([]string, 0, len(d))
	for _, p := range d {
		if b := renderBlock(p); b != "" {
			blocks = append(blocks, b)
		}
	}
	return strings.Join(blocks, "\n\n")
}

// renderBlock joins sentences with spaces, keeping list items on their own line.
func renderBlock(sents []string) string {
	var b strings.Builder
	prevList := false
	for i, s := range sents {
		isList := analyzer.IsListItem(s)
		if i > 0 {
			if isList || prevList {
				b.WriteByte('\n')
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteString(s)
		prevList = isList
	}
	return b.String()
}

func sentenceKey(s string) string { return strings.TrimSpace(analyzer.Spaced(s)) }

// parts is a text decomposed into the slots used for recombination.
type parts struct {
	intro      string
	body       []string
	examples   []string
	technical  []string
	conclusion string
	cta        []string
}

func decompose(text string) parts {
	var p parts
	sents := parse(text).sentences()
	if len(sents) == 0 {
		return p
	}
	p.intro = sents[0]
	rest := sents[1:]
	if n := len(rest); n > 0 && (len(sents) >= 3 || analyzer.IsConclusion(rest[n-1])) {
		p.conclusion = rest[n-1]
		rest = rest[:n-1]
	}
	for _, s := range rest {
		if analyzer.HasExample(s) {
			p.examples = append(p.examples, s)
			continue
		}
		p.body = append(p.body, s)
		if analyzer.IsTechnical(s) {
			p.technical = append(p.technical, s)
		}
	}
	for _, s := range sents {
		if analyzer.HasCallToAction(s) {
			p.cta = append(p.cta, s)
		}
	}
	return p
}

// assembler builds a document while dropping repeated sentences.
type assembler struct {
	doc  document
	seen map[string]bool
}

func newAssembler() *assembler { return &assembler{seen: make(map[string]bool)} }

func (a *assembler) paragraph(sents ...string) {
	var keep []string
	for _, s := range sents {
		if s == "" {
			continue
		}
		k := sentenceKey(s)
		if a.seen[k] {
			continue
		}
		a.seen[k] = true
		keep = append(keep, s)
	}
	if len(keep) > 0 {
		a.doc = append(a.doc, keep)
	}
}

func (a *assembler) String() string { return a.doc.render() }

var (
	spaceRun      = regexp.MustCompile(`[ \t]+`)
	doubledTerm   = regexp.MustCompile(`([.!?])(?:[ \t]*[.!?])+`)
	blankLineRun  = regexp.MustCompile(`\n{3,}`)
	spaceBeforeNL = regexp.MustCompile(` +\n`)
)

// Normalize collapses repeated whitespace, merges doubled sentence
// terminators and leaves exactly one blank line between paragraphs.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = spaceRun.ReplaceAllString(s, " ")
	s = spaceBeforeNL.ReplaceAllString(s, "\n")
	s = doubledTerm.ReplaceAllString(s, "$1")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	s = blankLineRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
