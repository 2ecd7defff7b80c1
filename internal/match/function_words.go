package match

// functionWords carry no meaning on their own. A partial match made only of
// these is rejected by the content-required subset modes.
var functionWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "of": {}, "to": {}, "in": {}, "on": {}, "at": {},
	"for": {}, "from": {}, "by": {}, "with": {}, "and": {}, "or": {}, "but": {},
	"so": {}, "if": {}, "then": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "am": {}, "do": {}, "does": {}, "did": {}, "have": {},
	"has": {}, "had": {}, "i": {}, "im": {}, "me": {}, "my": {}, "you": {},
	"your": {}, "we": {}, "us": {}, "our": {}, "he": {}, "she": {}, "it": {},
	"its": {}, "they": {}, "them": {}, "this": {}, "that": {}, "these": {},
	"those": {}, "what": {}, "who": {}, "not": {}, "no": {}, "can": {},
	"will": {}, "would": {}, "about": {}, "just": {}, "all": {}, "any": {},
}

func hasContentWord(words []string, matched []int) bool {
	for _, idx := range matched {
		if _, ok := functionWords[words[idx]]; !ok {
			return true
		}
	}
	return false
}
