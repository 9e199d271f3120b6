package analysis

import (
	"context"
	"strings"

	"github.com/timmy/textfleet/internal/domain"
)

// POSTagger renders every sentence as word/TAG pairs, one sentence per line.
type POSTagger struct{}

func (POSTagger) Type() string { return domain.AnalysisPOS }

func (POSTagger) Analyze(_ context.Context, text string) (string, error) {
	sents, err := tokenize(text)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, sent := range sents {
		for i, t := range sent {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(t.Word)
			b.WriteByte('/')
			b.WriteString(t.Tag)
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}
