package analyzer

// Term lists are folded (lowercase, no diacritics) with punctuation as
// spaces. A trailing '*' matches any word starting with the term.

var ctaTerms = []string{
	"contact*", "appelez*", "appelle*", "call us", "call now", "book*", "reservez*", "reserver", "prenez rendez vous",
	"n hesitez pas", "click*", "cliquez*", "visit*", "demandez*", "request a quote", "devis*",
	"get in touch", "schedule*", "sign up", "inscri*", "ecrivez nous", "write to us",
}

var urgencyTerms = []string{
	"urgent*", "immediat*", "asap", "rapidement", "quickly", "right away", "sans attendre",
	"des que possible", "as soon as", "danger*", "risque*", "risk*", "au plus vite", "now", "maintenant",
}

var warningTerms = []string{
	"attention", "warning", "important", "caution", "avertissement",
}

var queryUrgencyTerms = []string{
	"urgent*", "bouche*", "panne*", "broken", "help", "aide*", "au secours", "bloque*", "stuck",
	"ne marche", "not working", "fuite*", "leak*", "voyant*",
}

var businessTerms = []string{
	"prix", "price*", "cout*", "cost*", "tarif*", "devis*", "quote*", "offre*", "offer*", "service*",
	"client*", "customer*", "garage*", "atelier*", "rendez vous", "appointment*", "budget*", "garantie*",
	"warranty", "promo*", "remise*", "discount*", "abonnement*", "subscription*",
}

var technicalTerms = []string{
	"filtre*", "particule*", "fap", "dpf", "regenera*", "moteur*", "engine*", "capteur*", "sensor*",
	"pression*", "pressure", "temperatur*", "diagnosti*", "injection*", "injecteur*", "additif*",
	"additive*", "cerine", "suie", "soot", "echappement*", "exhaust*", "turbo*", "egr", "obd",
	"calculateur*", "ecu", "catalyseur*", "rpm", "tr min", "api", "server*", "serveur*", "config*",
	"protocol*", "database*", "algorithm*", "function*", "erreur*", "error*",
}

var nuanceTerms = []string{
	"however", "although", "depending", "depend*", "cependant", "toutefois", "neanmoins", "en general",
	"generalement", "in general", "may", "might", "peut etre", "il est possible", "parfois", "sometimes",
	"selon", "typically", "generally", "usually", "souvent", "often",
}

var exampleTerms = []string{
	"par exemple", "for example", "for instance", "e g", "such as", "notamment", "exemple*", "example*",
}

var conclusionTerms = []string{
	"en resume", "in summary", "in conclusion", "pour conclure", "en conclusion", "finally", "enfin",
	"to sum up", "bref", "overall", "au final",
}

var friendlyTerms = []string{
	"bonjour", "hello", "hi", "salut", "merci*", "thank*", "ravi*", "happy to", "glad",
	"pas de panique", "don t worry", "ne vous inquietez pas", "bonne journee", "have a nice",
}

var secondPersonTerms = []string{
	"vous", "votre", "vos", "you", "your*", "tu", "ton", "ta", "tes",
}

var analogyTerms = []string{
	"comme un*", "like a", "imagin*", "think of", "pensez a", "tel un*", "telle une", "semblable*",
	"metaphor*", "picture this",
}

var answerMarkers = []string{
	"il faut", "vous devez", "you should", "you need", "to fix", "pour", "the answer", "because",
	"parce que", "car", "first", "d abord", "commencez", "start*", "try", "essayez", "voici", "here is",
	"here s",
}

var whWords = map[string]bool{
	"what": true, "why": true, "how": true, "when": true, "where": true, "who": true, "which": true,
	"que": true, "quoi": true, "comment": true, "pourquoi": true, "quand": true, "ou": true, "qui": true,
	"quel": true, "quelle": true, "quels": true, "quelles": true, "combien": true,
}

var stopwords = map[string]bool{
	"les": true, "des": true, "une": true, "est": true, "que": true, "quoi": true, "faire": true,
	"mon": true, "mes": true, "dans": true, "pour": true, "avec": true, "sur": true, "par": true,
	"pas": true, "qui": true, "son": true, "ses": true, "leur": true, "comment": true, "pourquoi": true,
	"quand": true, "sont": true, "the": true, "and": true, "for": true, "with": true, "what": true,
	"how": true, "why": true, "this": true, "that": true, "are": true, "can": true, "you": true,
	"your": true, "was": true, "has": true, "have": true, "from": true, "not": true, "does": true,
	"quel": true, "quelle": true, "quels": true, "quelles": true, "combien": true, "when": true,
	"where": true, "who": true, "which": true,
}
