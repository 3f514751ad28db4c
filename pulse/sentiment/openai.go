package sentiment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/theimaginaryfoundation/guest-pulse/pulse"
	"github.com/theimaginaryfoundation/guest-pulse/pulse/fileutils"
)

var annotationSchema = GenerateSchema[modelAnnotation]()

// OpenAIScorer annotates reviews with a structured-output call to the Responses API.
type OpenAIScorer struct {
	client          *openai.Client
	model           string
	maxOutputTokens int64
	instructions    string
	deadZone        float64
	backoff         Backoff
}

// OpenAIOptions configures an OpenAIScorer.
type OpenAIOptions struct {
	APIKey          string
	Model           string
	BaseURL         string
	MaxOutputTokens int64
	DeadZone        float64
	Backoff         *Backoff
	// Vocabulary lists known aspect labels the model should reuse.
	Vocabulary string
}

func NewOpenAIScorer(o OpenAIOptions) (*OpenAIScorer, error) {
	if strings.TrimSpace(o.APIKey) == "" {
		return nil, errors.New("NewOpenAIScorer: api key is empty")
	}
	if strings.TrimSpace(o.Model) == "" {
		return nil, errors.New("NewOpenAIScorer: model is empty")
	}
	opts := []option.RequestOption{option.WithAPIKey(o.APIKey), option.WithMaxRetries(0)}
	if o.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(o.BaseURL))
	}
	client := openai.NewClient(opts...)
	s := &OpenAIScorer{
		client:          &client,
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

func (s *OpenAIScorer) Score(ctx context.Context, text, lang string) (pulse.Annotation, error) {
	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        "ReviewAnnotation",
			Schema:      annotationSchema,
			Strict:      openai.Bool(true),
			Description: openai.String("Sentiment and aspects of one hotel review"),
			Type:        "json_schema",
		},
	}
	params := responses.ResponseNewParams{
		Model:           s.model,
		MaxOutputTokens: openai.Int(s.maxOutputTokens),
		Instructions:    openai.String(s.instructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(reviewPrompt(text, lang), responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: format,
		},
	}

	resp, err := callWithRetry(ctx, s.backoff, func(ctx context.Context) (*responses.Response, error) {
		return s.client.Responses.New(ctx, params)
	})
	if err != nil {
		return pulse.Annotation{}, fmt.Errorf("OpenAIScorer: %w", err)
	}
	var out modelAnnotation
	if err := fileutils.DecodeModelJSON(resp.OutputText(), &out); err != nil {
		return pulse.Annotation{}, fmt.Errorf("OpenAIScorer: unmarshal annotation: %w", err)
	}
	return out.annotation(s.deadZone), nil
}
