package analysis

import (
	"strings"
	"unicode"
)

// Token is one word or punctuation mark with its part-of-speech tag.
type Token struct {
	Word string
	Tag  string
}

// sentences splits text into sentences of raw words and punctuation.
func sentences(text string) [][]string {
	var (
		out     [][]string
		current []string
		word    strings.Builder
	)
	flush := func() {
		if word.Len() > 0 {
			current = append(current, word.String())
			word.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '-':
			word.WriteRune(r)
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			current = append(current, string(r))
			if r == '.' || r == '!' || r == '?' {
				out = append(out, current)
				current = nil
			}
		default:
			flush()
		}
	}
	flush()
	if len(current) > 0 {
		out = append(out, current)
	}
	return out
}

var lexicon = map[string]string{
	"a": "DT", "an": "DT", "the": "DT", "this": "DT", "that": "DT", "these": "DT",
	"those": "DT", "every": "DT", "each": "DT", "some": "DT", "any": "DT", "no": "DT",

	"in": "IN", "on": "IN", "at": "IN", "by": "IN", "for": "IN", "with": "IN",
	"from": "IN", "of": "IN", "into": "IN", "over": "IN", "under": "IN", "about": "IN",
	"after": "IN", "before": "IN", "between": "IN", "through": "IN", "during": "IN",
	"without": "IN", "near": "IN", "because": "IN", "if": "IN", "while": "IN",
	"to": "TO",

	"and": "CC", "or": "CC", "but": "CC", "nor": "CC", "yet": "CC",

	"i": "PRP", "you": "PRP", "he": "PRP", "she": "PRP", "it": "PRP", "we": "PRP",
	"they": "PRP", "me": "PRP", "him": "PRP", "her": "PRP", "us": "PRP", "them": "PRP",
	"my": "PRP$", "your": "PRP$", "his": "PRP$", "its": "PRP$", "our": "PRP$", "their": "PRP$",

	"can": "MD", "could": "MD", "will": "MD", "would": "MD", "shall": "MD",
	"should": "MD", "may": "MD", "might": "MD", "must": "MD",

	"is": "VBZ", "are": "VBP", "am": "VBP", "was": "VBD", "were": "VBD",
	"be": "VB", "been": "VBN", "being": "VBG",
	"has": "VBZ", "have": "VBP", "had": "VBD",
	"does": "VBZ", "do": "VBP", "did": "VBD",

	"not": "RB", "very": "RB", "too": "RB", "also": "RB", "never": "RB", "always": "RB",
}

var adjectiveSuffixes = []string{"ous", "ful", "ive", "able", "ible", "less", "ic", "al"}

// tag assigns part-of-speech tags to one sentence.
func tag(words []string) []Token {
	tokens := make([]Token, len(words))
	for i, w := range words {
		tokens[i] = Token{Word: w, Tag: tagWord(w, i == 0)}
		if i == 0 {
			continue
		}
		prev := tokens[i-1].Tag
		switch {
		case (prev == "TO" || prev == "MD") && tokens[i].Tag == "NN":
			tokens[i].Tag = "VB"
		case prev == "PRP" && tokens[i].Tag == "NNS":
			tokens[i].Tag = "VBZ"
		case prev == "PRP" && tokens[i].Tag == "NN":
			tokens[i].Tag = "VBP"
		}
	}
	promoteVerb(tokens)
	return tokens
}

// promoteVerb retags a plural-looking word after a noun or adverb as the
// main verb of a sentence that has none ("the dog runs").
func promoteVerb(tokens []Token) {
	for _, t := range tokens {
		if isVerb(t.Tag) {
			return
		}
	}
	for i := 1; i < len(tokens); i++ {
		if tokens[i].Tag != "NNS" {
			continue
		}
		if prev := tokens[i-1].Tag; isNoun(prev) || prev == "RB" {
			tokens[i].Tag = "VBZ"
			return
		}
	}
}

func tagWord(w string, sentenceStart bool) string {
	lower := strings.ToLower(w)
	if t, ok := lexicon[lower]; ok {
		return t
	}

	first := []rune(w)[0]
	switch {
	case w == "." || w == "!" || w == "?":
		return "."
	case w == ",":
		return ","
	case unicode.IsPunct(first) || unicode.IsSymbol(first):
		return ":"
	case unicode.IsDigit(first):
		return "CD"
	case unicode.IsUpper(first) && !sentenceStart:
		return "NNP"
	case strings.HasSuffix(lower, "ly") && len(lower) > 3:
		return "RB"
	case strings.HasSuffix(lower, "ing") && len(lower) > 4:
		return "VBG"
	case strings.HasSuffix(lower, "ed") && len(lower) > 3:
		return "VBD"
	}
	for _, suffix := range adjectiveSuffixes {
		if strings.HasSuffix(lower, suffix) && len(lower) > len(suffix)+2 {
			return "JJ"
		}
	}
	if strings.HasSuffix(lower, "s") && !strings.HasSuffix(lower, "ss") && len(lower) > 3 {
		return "NNS"
	}
	return "NN"
}

// tokenize splits and tags text.
func tokenize(text string) ([][]Token, error) {
	raw := sentences(text)
	if len(raw) == 0 {
		return nil, ErrEmptyInput
	}
	out := make([][]Token, 0, len(raw))
	for _, words := range raw {
		out = append(out, tag(words))
	}
	return out, nil
}

func isVerb(t string) bool {
	return strings.HasPrefix(t, "VB")
}

func isNoun(t string) bool {
	return strings.HasPrefix(t, "NN") || t == "PRP"
}

// isNominal reports tags that belong inside a noun phrase.
func isNominal(t string) bool {
	switch t {
	case "DT", "JJ", "CD", "PRP$":
		return true
	}
	return isNoun(t)
}

func isPunct(t string) bool {
	return t == "." || t == "," || t == ":"
}
