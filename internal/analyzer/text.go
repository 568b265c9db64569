package analyzer

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	numberPattern   = regexp.MustCompile(`\d`)
	currencyPattern = regexp.MustCompile(`[€$£]|\d\s?(eur|euros|usd|dollars)\b`)
	contactPattern  = regexp.MustCompile(`(?i)(\+?\d[\d .-]{7,}\d|[\w.+-]+@[\w-]+\.[\w.]+|https?://|www\.)`)
	listPattern     = regexp.MustCompile(`^(?:[-*•]|\d{1,2}[.)])\s+`)
	paragraphSplit  = regexp.MustCompile(`\n\s*\n`)
)

// Fold lowercases s and strips diacritics so "Bouché" and "bouche" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Spaced folds s and replaces every non letter/digit run with a single space,
// padding both ends so terms can be matched on word boundaries.
func Spaced(s string) string {
	folded := Fold(s)
	var b strings.Builder
	b.Grow(len(folded) + 2)
	b.WriteByte(' ')
	space := true
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}

// Words returns the folded word tokens of s.
func Words(s string) []string {
	return strings.Fields(Spaced(s))
}

// IsListItem reports whether line starts with a bullet or an ordinal marker.
func IsListItem(line string) bool {
	return listPattern.MatchString(strings.TrimSpace(line))
}

// Sentences splits text into sentences. List items and lines are always
// their own unit; prose is cut after terminators followed by whitespace.
func Sentences(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if IsListItem(line) {
			out = append(out, line)
			continue
		}
		start := 0
		for i := 0; i < len(line); i++ {
			if !isTerminator(line[i]) {
				continue
			}
			j := i + 1
			for j < len(line) && (isTerminator(line[j]) || isCloser(line[j])) {
				j++
			}
			if j == len(line) || line[j] == ' ' || line[j] == '\t' {
				if s := strings.TrimSpace(line[start:j]); s != "" {
					out = append(out, s)
				}
				start = j
			}
			i = j - 1
		}
		if s := strings.TrimSpace(line[start:]); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isTerminator(c byte) bool { return c == '.' || c == '!' || c == '?' }

func isCloser(c byte) bool { return c == '"' || c == '\'' || c == ')' || c == ']' }

// Paragraphs returns the non-empty blank-line separated blocks of text.
func Paragraphs(text string) []string {
	var out []string
	for _, p := range paragraphSplit.Split(strings.TrimSpace(text), -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// countTerms returns how many distinct terms occur in spaced text. A term
// ending in '*' matches as a word prefix, any other term as whole words.
func countTerms(spaced string, terms []string) int {
	n := 0
	for _, t := range terms {
		if strings.HasSuffix(t, "*") {
			if strings.Contains(spaced, " "+strings.TrimSuffix(t, "*")) {
				n++
			}
			continue
		}
		if strings.Contains(spaced, " "+t+" ") {
			n++
		}
	}
	return n
}

// levenshtein returns the edit distance between a and b.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// fuzzyMatch reports whether keyword kw matches word w: equal, one contains
// the other, or within edit distance 2 for words long enough to make that meaningful.
func fuzzyMatch(kw, w string) bool {
	if kw == w {
		return true
	}
	if len(w) >= 4 && (strings.Contains(w, kw) || strings.Contains(kw, w)) {
		return true
	}
	if len(kw) >= 5 && len(w) >= 5 {
		return levenshtein(kw, w) <= 2
	}
	return false
}

// Keywords returns the content words of a query.
func Keywords(query string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range Words(query) {
		if len(w) < 3 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// KeywordOverlap is the share of query keywords found in response words.
func KeywordOverlap(query, response string) float64 {
	kws := Keywords(query)
	if len(kws) == 0 {
		return 0
	}
	words := uniqueWords(Words(response))
	matched := 0
	for _, kw := range kws {
		for _, w := range words {
			if fuzzyMatch(kw, w) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(kws))
}

func uniqueWords(words []string) []string {
	seen := make(map[string]bool, len(words))
	out := words[:0:0]
	for _, w := range words {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

// HasCallToAction reports whether text asks the reader to act.
func HasCallToAction(text string) bool { return countTerms(Spaced(text), ctaTerms) > 0 }

// HasExample reports whether text introduces an example.
func HasExample(text string) bool { return countTerms(Spaced(text), exampleTerms) > 0 }

// IsTechnical reports whether text carries a figure or a technical term.
func IsTechnical(text string) bool {
	return numberPattern.MatchString(text) || countTerms(Spaced(text), technicalTerms) > 0
}

// IsConclusion reports whether text carries a closing marker.
func IsConclusion(text string) bool { return countTerms(Spaced(text), conclusionTerms) > 0 }

// IsEngaging reports whether text addresses the reader directly.
func IsEngaging(text string) bool {
	sp := Spaced(text)
	return strings.Contains(text, "?") || countTerms(sp, friendlyTerms) > 0 || countTerms(sp, secondPersonTerms) > 0
}

// IsFriendly reports whether text carries a greeting or reassurance.
func IsFriendly(text string) bool { return countTerms(Spaced(text), friendlyTerms) > 0 }

// TechnicalDensity is the number of technical terms and figures per word.
func TechnicalDensity(text string) float64 {
	words := Words(text)
	if len(words) == 0 {
		return 0
	}
	n := countTerms(Spaced(text), technicalTerms) + len(numberPattern.FindAllString(text, -1))
	return float64(n) / float64(len(words))
}

// MatchesAny reports whether text contains any of terms, using the same
// folded word-boundary rules as the scoring term lists.
func MatchesAny(text string, terms ...string) bool {
	return countTerms(Spaced(text), terms) > 0
}
