package analysis

import (
	"context"
	"strings"

	"github.com/timmy/textfleet/internal/domain"
)

// ConstituencyParser renders a shallow bracketed phrase tree per sentence.
type ConstituencyParser struct{}

func (ConstituencyParser) Type() string { return domain.AnalysisConstituency }

func (ConstituencyParser) Analyze(_ context.Context, text string) (string, error) {
	sents, err := tokenize(text)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, sent := range sents {
		b.WriteString(tree(sent))
		b.WriteByte('\n')
	}
	return b.String(), nil
}

type phrase struct {
	label string
	text  string
}

func leaf(t Token) string {
	w := t.Word
	switch w {
	case "(":
		w = "-LRB-"
	case ")":
		w = "-RRB-"
	}
	return "(" + t.Tag + " " + w + ")"
}

func nounPhrase(tokens []Token) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = leaf(t)
	}
	return "(NP " + strings.Join(parts, " ") + ")"
}

// chunk groups tagged tokens into flat phrases.
func chunk(tokens []Token) []phrase {
	var out []phrase
	for i := 0; i < len(tokens); {
		t := tokens[i]
		switch {
		case isNominal(t.Tag):
			j := i
			for j < len(tokens) && isNominal(tokens[j].Tag) {
				j++
			}
			out = append(out, phrase{label: "NP", text: nounPhrase(tokens[i:j])})
			i = j
		case t.Tag == "IN" || t.Tag == "TO":
			j := i + 1
			for j < len(tokens) && isNominal(tokens[j].Tag) {
				j++
			}
			if j == i+1 {
				out = append(out, phrase{label: t.Tag, text: leaf(t)})
			} else {
				out = append(out, phrase{label: "PP", text: "(PP " + leaf(t) + " " + nounPhrase(tokens[i+1:j]) + ")"})
			}
			i = j
		case isVerb(t.Tag) || t.Tag == "MD":
			out = append(out, phrase{label: "V", text: leaf(t)})
			i++
		case t.Tag == "RB":
			out = append(out, phrase{label: "ADVP", text: "(ADVP " + leaf(t) + ")"})
			i++
		case isPunct(t.Tag):
			out = append(out, phrase{label: "PUNCT", text: leaf(t)})
			i++
		default:
			out = append(out, phrase{label: t.Tag, text: leaf(t)})
			i++
		}
	}
	return out
}

func joinPhrases(ps []phrase) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.text
	}
	return strings.Join(parts, " ")
}

// tree wraps the chunks as (ROOT (S pre (VP ...) punct)), or FRAG when the
// sentence has no verb.
func tree(tokens []Token) string {
	ps := chunk(tokens)

	verb := -1
	for i, p := range ps {
		if p.label == "V" {
			verb = i
			break
		}
	}
	if verb < 0 {
		return "(ROOT (FRAG " + joinPhrases(ps) + "))"
	}

	end := len(ps)
	if ps[end-1].label == "PUNCT" {
		end--
	}

	var b strings.Builder
	b.WriteString("(ROOT (S ")
	if verb > 0 {
		b.WriteString(joinPhrases(ps[:verb]))
		b.WriteByte(' ')
	}
	b.WriteString("(VP ")
	b.WriteString(joinPhrases(ps[verb:end]))
	b.WriteByte(')')
	if end < len(ps) {
		b.WriteByte(' ')
		b.WriteString(ps[end].text)
	}
	b.WriteString("))")
	return b.String()
}
