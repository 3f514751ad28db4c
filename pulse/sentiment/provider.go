package sentiment

import (
	"context"
	"fmt"
	"strings"
)

// Providers selectable at startup.
const (
	ProviderLexicon = "lexicon"
	ProviderOpenAI  = "openai"
	ProviderGemini  = "gemini"
)

// Options selects and configures a scorer.
type Options struct {
	Provider        string  `yaml:"provider"`
	Model           string  `yaml:"model"`
	APIKey          string  `yaml:"-"`
	BaseURL         string  `yaml:"base_url"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
	Concurrency     int     `yaml:"concurrency"`
	DeadZone        float64 `yaml:"dead_zone"`
	LexiconPath     string  `yaml:"lexicon_path"`
	VocabularyTerms int     `yaml:"vocabulary_terms"`
}

// New builds the configured scorer and, for model providers, a lexicon scorer to fall back on.
// vocabulary is the known aspect label list passed to model prompts.
func New(ctx context.Context, o Options, vocabulary string) (Scorer, Scorer, error) {
	lex, err := LoadLexicon(o.LexiconPath)
	if err != nil {
		return nil, nil, err
	}
	lexScorer := NewLexiconScorer(lex, o.DeadZone)

	switch strings.ToLower(strings.TrimSpace(o.Provider)) {
	case "", ProviderLexicon:
		return lexScorer, nil, nil
	case ProviderOpenAI:
		s, err := NewOpenAIScorer(OpenAIOptions{
			APIKey:          o.APIKey,
			Model:           o.Model,
			BaseURL:         o.BaseURL,
			MaxOutputTokens: int64(o.MaxOutputTokens),
			DeadZone:        o.DeadZone,
			Vocabulary:      vocabulary,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, lexScorer, nil
	case ProviderGemini:
		s, err := NewGeminiScorer(ctx, GeminiOptions{
			APIKey:          o.APIKey,
			Model:           o.Model,
			MaxOutputTokens: int32(o.MaxOutputTokens),
			DeadZone:        o.DeadZone,
			Vocabulary:      vocabulary,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, lexScorer, nil
	}
	return nil, nil, fmt.Errorf("unknown sentiment provider %q", o.Provider)
}
