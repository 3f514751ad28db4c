package sentiment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/theimaginaryfoundation/guest-pulse/pulse"
	"github.com/theimaginaryfoundation/guest-pulse/pulse/fileutils"
)

// GeminiScorer annotates reviews with Gemini's JSON response mode.
type GeminiScorer struct {
	client          *genai.Client
	model           string
	maxOutputTokens int32
	instructions    string
	deadZone        float64
	backoff         Backoff
}

// GeminiOptions configures a GeminiScorer.
type GeminiOptions struct {
	APIKey          string
	Model           string
	MaxOutputTokens int32
	DeadZone        float64
	Backoff         *Backoff
	Vocabulary      string
}

func NewGeminiScorer(ctx context.Context, o GeminiOptions) (*GeminiScorer, error) {
	if strings.TrimSpace(o.APIKey) == "" {
		return nil, errors.New("NewGeminiScorer: api key is empty")
	}
	if strings.TrimSpace(o.Model) == "" {
		o.Model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  o.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiScorer: create client: %w", err)
	}
	s := &GeminiScorer{
		client:          client,
		model:           o.Model,
		maxOutputTokens: o.MaxOutputTokens,
		instructions:    composeInstructions(o.Vocabulary),
		deadZone:        o.DeadZone,
		backoff:         DefaultBackoff(),
	}
	if s.maxOutputTokens <= 0 {
		s.maxOutputTokens = 600
	}
	if s.deadZone <= 0 {
		s.deadZone = DefaultDeadZone
	}
	if o.Backoff != nil {
		s.backoff = *o.Backoff
	}
	return s, nil
}

// geminiAnnotationSchema mirrors modelAnnotation in Gemini's schema dialect.
var geminiAnnotationSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"sentiment_score":   {Type: genai.TypeNumber, Description: "Overall sentiment from -1 to 1"},
		"sentiment_overall": {Type: genai.TypeString, Enum: []string{"positive", "neutral", "negative"}},
		"aspects":           {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"topics":            {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
	},
	Required:         []string{"sentiment_score", "sentiment_overall", "aspects", "topics"},
	PropertyOrdering: []string{"sentiment_score", "sentiment_overall", "aspects", "topics"},
}

func (s *GeminiScorer) Score(ctx context.Context, text, lang string) (pulse.Annotation, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(s.instructions, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    geminiAnnotationSchema,
		MaxOutputTokens:   s.maxOutputTokens,
		Temperature:       genai.Ptr[float32](0),
	}
	resp, err := callWithRetry(ctx, s.backoff, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		return s.client.Models.GenerateContent(ctx, s.model, genai.Text(reviewPrompt(text, lang)), cfg)
	})
	if err != nil {
		return pulse.Annotation{}, fmt.Errorf("GeminiScorer: %w", err)
	}
	var out modelAnnotation
	if err := fileutils.DecodeModelJSON(resp.Text(), &out); err != nil {
		return pulse.Annotation{}, fmt.Errorf("GeminiScorer: unmarshal annotation: %w", err)
	}
	return out.annotation(s.deadZone), nil
}
