package fusion

import "github.com/HanTheDev/llm-fusion-gateway/internal/analyzer"

// QueryType drives the blend used by adaptive merge.
type QueryType string

const (
	QueryFactual        QueryType = "factual"
	QueryCreative       QueryType = "creative"
	QueryTechnical      QueryType = "technical"
	QueryConversational QueryType = "conversational"
	QueryGeneral        QueryType = "general"
)

var (
	technicalQueryTerms = []string{
		"filtre*", "particule*", "fap", "dpf", "moteur*", "engine*", "voyant*", "panne*", "bouche*",
		"repar*", "fix*", "bug*", "erreur*", "error*", "install*", "configur*", "code", "api", "server*",
		"serveur*", "debug*", "capteur*", "sensor*", "turbo*", "injecteur*", "embrayage*", "frein*",
	}
	factualQueryTerms = []string{
		"what is", "what are", "qu est ce", "c est quoi", "who", "when", "quand", "combien", "how many",
		"how much", "define", "definition", "date", "capital*", "difference entre", "difference between",
	}
	creativeQueryTerms = []string{
		"write", "ecri*", "story", "histoire*", "poem*", "poeme*", "imagin*", "invent*", "slogan*",
		"creat*", "idea*", "idee*",
	}
	conversationalQueryTerms = []string{
		"bonjour", "hello", "hi", "salut", "merci*", "thanks", "thank you", "ca va", "how are you",
		"comment allez",
	}
)

// ClassifyQuery categorizes a query by keyword pattern.
//
// Rules, in order: technical, factual, creative, conversational, general.
func ClassifyQuery(query string) QueryType {
	switch {
	case analyzer.MatchesAny(query, technicalQueryTerms...):
		return QueryTechnical
	case analyzer.MatchesAny(query, factualQueryTerms...):
		return QueryFactual
	case analyzer.MatchesAny(query, creativeQueryTerms...):
		return QueryCreative
	case analyzer.MatchesAny(query, conversationalQueryTerms...):
		return QueryConversational
	}
	return QueryGeneral
}
