package sentiment

import (
	"encoding/json"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/theimaginaryfoundation/guest-pulse/pulse"
)

// modelAnnotation is the structured answer requested from model scorers.
type modelAnnotation struct {
	SentimentScore   float64  `json:"sentiment_score" jsonschema:"description=Overall sentiment from -1 (very negative) to 1 (very positive)"`
	SentimentOverall string   `json:"sentiment_overall" jsonschema:"enum=positive,enum=neutral,enum=negative"`
	Aspects          []string `json:"aspects" jsonschema:"description=snake_case aspect labels such as breakfast_variety_poor or spir_friendly"`
	Topics           []string `json:"topics" jsonschema:"description=broad categories such as staff or cleanliness or fnb"`
}

// GenerateSchema reflects T into a strict JSON schema: no references, no additional properties
// and every property required.
func GenerateSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	m, err := schemaToMap(reflector.Reflect(v))
	if err != nil {
		panic(err)
	}
	ensureStrict(m)
	return m
}

func schemaToMap(schema *jsonschema.Schema) (map[string]any, error) {
	b, err := schema.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func ensureStrict(schema map[string]any) {
	delete(schema, "$schema")
	delete(schema, "$id")
	if t, ok := schema["type"].(string); ok && t == "object" {
		schema["additionalProperties"] = false
		if props, ok := schema["properties"].(map[string]any); ok {
			required := make([]string, 0, len(props))
			for name := range props {
				required = append(required, name)
			}
			if len(required) > 0 {
				schema["required"] = required
			}
		}
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		for _, p := range props {
			if pm, ok := p.(map[string]any); ok {
				ensureStrict(pm)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		ensureStrict(items)
	}
}

// annotation normalizes a model answer. An unrecognized label is derived from the score.
func (m modelAnnotation) annotation(deadZone float64) pulse.Annotation {
	score := pulse.Round(pulse.ClampScore(m.SentimentScore), 3)
	overall := pulse.SentimentFromScore(score, deadZone)
	switch l := strings.ToLower(strings.TrimSpace(m.SentimentOverall)); l {
	case string(pulse.Positive), string(pulse.Neutral), string(pulse.Negative):
		overall = pulse.Sentiment(l)
	}
	return pulse.Annotation{
		SentimentScore:   score,
		SentimentOverall: overall,
		Aspects:          pulse.DedupeLabels(m.Aspects),
		Topics:           pulse.DedupeLabels(m.Topics),
		Evidence:         1,
	}
}
