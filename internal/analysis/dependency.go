package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/timmy/textfleet/internal/domain"
)

// DependencyParser renders typed head-dependent relations, one per line,
// with a blank line between sentences.
type DependencyParser struct{}

func (DependencyParser) Type() string { return domain.AnalysisDependency }

func (DependencyParser) Analyze(_ context.Context, text string) (string, error) {
	sents, err := tokenize(text)
	if err != nil {
		return "", err
	}
	blocks := make([]string, 0, len(sents))
	for _, sent := range sents {
		var b strings.Builder
		for _, d := range dependencies(sent) {
			b.WriteString(d.String())
			b.WriteByte('\n')
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n"), nil
}

// Dependency is one relation; indices are 1-based, 0 is the virtual root.
type Dependency struct {
	Relation  string
	Head      int
	HeadWord  string
	Dependent int
	DepWord   string
}

func (d Dependency) String() string {
	return fmt.Sprintf("%s(%s-%d, %s-%d)", d.Relation, d.HeadWord, d.Head, d.DepWord, d.Dependent)
}

func dependencies(tokens []Token) []Dependency {
	n := len(tokens)
	word := func(i int) string {
		if i == 0 {
			return "ROOT"
		}
		return tokens[i-1].Word
	}
	rel := func(r string, head, dep int) Dependency {
		return Dependency{Relation: r, Head: head, HeadWord: word(head), Dependent: dep, DepWord: word(dep)}
	}

	// np[i] is the 1-based head of the noun phrase containing token i+1, or 0
	np := make([]int, n)
	for i := 0; i < n; {
		if !isNominal(tokens[i].Tag) {
			i++
			continue
		}
		j := i
		head := 0
		for j < n && isNominal(tokens[j].Tag) {
			if isNoun(tokens[j].Tag) {
				head = j + 1
			}
			j++
		}
		if head == 0 {
			head = j
		}
		for k := i; k < j; k++ {
			np[k] = head
		}
		i = j
	}

	root := 0
	for i, t := range tokens {
		if isVerb(t.Tag) {
			root = i + 1
			break
		}
	}
	if root == 0 {
		for i := range tokens {
			if np[i] == i+1 {
				root = i + 1
				break
			}
		}
	}
	if root == 0 {
		root = 1
	}

	out := []Dependency{rel("root", 0, root)}
	subject, object := false, false
	for i, t := range tokens {
		idx := i + 1
		if idx == root {
			continue
		}
		switch {
		case np[i] != 0 && np[i] != idx:
			switch {
			case t.Tag == "DT":
				out = append(out, rel("det", np[i], idx))
			case t.Tag == "PRP$":
				out = append(out, rel("poss", np[i], idx))
			case t.Tag == "CD":
				out = append(out, rel("nummod", np[i], idx))
			case t.Tag == "JJ":
				out = append(out, rel("amod", np[i], idx))
			default:
				out = append(out, rel("compound", np[i], idx))
			}
		case np[i] == idx:
			start := i
			for start > 0 && np[start-1] == idx {
				start--
			}
			switch {
			case start > 0 && (tokens[start-1].Tag == "IN" || tokens[start-1].Tag == "TO"):
				out = append(out, rel("pobj", start, idx))
			case idx < root && !subject:
				subject = true
				out = append(out, rel("nsubj", root, idx))
			case idx > root && !object:
				object = true
				out = append(out, rel("dobj", root, idx))
			default:
				out = append(out, rel("dep", root, idx))
			}
		case t.Tag == "IN" || t.Tag == "TO":
			out = append(out, rel("prep", root, idx))
		case t.Tag == "MD":
			out = append(out, rel("aux", root, idx))
		case t.Tag == "RB":
			out = append(out, rel("advmod", root, idx))
		case t.Tag == "CC":
			out = append(out, rel("cc", root, idx))
		case isPunct(t.Tag):
			out = append(out, rel("punct", root, idx))
		default:
			out = append(out, rel("dep", root, idx))
		}
	}
	return out
}
