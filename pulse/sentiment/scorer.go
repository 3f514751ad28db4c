package sentiment

import (
	"context"
	"regexp"
	"strings"

	"github.com/theimaginaryfoundation/guest-pulse/pulse"
)

// Scorer annotates one review text.
type Scorer interface {
	Score(ctx context.Context, text, lang string) (pulse.Annotation, error)
}

// DefaultDeadZone separates neutral from polar scores.
const DefaultDeadZone = 0.10

// LexiconScorer scores text with phrase lists: each sentence gets a sentiment group, aspects
// found in a sentence take that sentence's polarity or, without one, their own hint.
type LexiconScorer struct {
	lex      *Lexicon
	deadZone float64
}

func NewLexiconScorer(lex *Lexicon, deadZone float64) *LexiconScorer {
	if deadZone <= 0 {
		deadZone = DefaultDeadZone
	}
	return &LexiconScorer{lex: lex, deadZone: deadZone}
}

var sentenceSplit = regexp.MustCompile(`[.!?…;\n]+|[。！？]`)

// SplitSentences cuts text on terminal punctuation and line breaks, dropping empty pieces.
func SplitSentences(text string) []string {
	var out []string
	for _, s := range sentenceSplit.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (s *LexiconScorer) Score(ctx context.Context, text, lang string) (pulse.Annotation, error) {
	if err := ctx.Err(); err != nil {
		return pulse.Annotation{}, err
	}
	var (
		sum      float64
		signals  int
		aspects  []string
		topics   []string
		hintSum  float64
		hintSeen int
	)
	for _, sentence := range SplitSentences(text) {
		group := s.lex.SentenceGroup(sentence, lang)
		if group != "" {
			sum += groupWeight[group]
			signals++
		}
		for _, a := range s.lex.Aspects(strings.ToLower(sentence), lang) {
			aspects = append(aspects, a.Code)
			if a.Topic != "" {
				topics = append(topics, a.Topic)
			}
			if group == "" && a.Polarity != "" {
				hintSum += hintWeight(a.Polarity)
				hintSeen++
			}
		}
	}

	ann := pulse.Annotation{
		Aspects: pulse.DedupeLabels(aspects),
		Topics:  pulse.DedupeLabels(topics),
	}
	if n := signals + hintSeen; n > 0 {
		ann.SentimentScore = (sum + hintSum) / float64(n)
		ann.Evidence = n
	}
	ann.SentimentScore = pulse.Round(pulse.ClampScore(ann.SentimentScore), 3)
	ann.SentimentOverall = pulse.SentimentFromScore(ann.SentimentScore, s.deadZone)
	return ann, nil
}
