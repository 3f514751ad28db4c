package sentiment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/theimaginaryfoundation/guest-pulse/pulse"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		// genai links opencensus, whose view worker starts in an init function.
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func lexiconScorer(t *testing.T) *LexiconScorer {
	t.Helper()
	lx, err := DefaultLexicon()
	require.NoError(t, err)
	return NewLexiconScorer(lx, DefaultDeadZone)
}

func TestDefaultLexicon_Parses(t *testing.T) {
	t.Parallel()

	lx, err := DefaultLexicon()
	require.NoError(t, err)
	require.NotEmpty(t, lx.Version)
	require.Equal(t, "en", lx.FallbackLang)
	require.Contains(t, lx.AspectCodes(), "breakfast_variety_poor")

	a, ok := lx.Aspect("spir_rude")
	require.True(t, ok)
	require.Equal(t, "staff", a.Topic)
	require.Equal(t, "negative", a.Polarity)
}

func TestParseLexicon_Rejects(t *testing.T) {
	t.Parallel()

	_, err := ParseLexicon([]byte("sentiment:\n  joyful:\n    en: [yay]\n"))
	require.Error(t, err)
	_, err = ParseLexicon([]byte("aspects:\n  - code: a\n  - code: a\n"))
	require.Error(t, err)
	_, err = ParseLexicon([]byte("aspects: [\n"))
	require.Error(t, err)
}

func TestSentenceGroup(t *testing.T) {
	t.Parallel()

	lx, err := DefaultLexicon()
	require.NoError(t, err)
	cases := []struct {
		sentence, lang, want string
	}{
		{"An amazing stay", "en", PositiveStrong},
		{"Staff were friendly", "en", PositiveSoft},
		{"The room was not good", "en", NegativeSoft},
		{"Terrible smell in the corridor", "en", NegativeStrong},
		{"Friendly staff but a dirty bathroom", "en", Mixed},
		{"It was ok", "en", NeutralGroup},
		{"Room 214", "en", ""},
		{"Всё было отлично", "ru", PositiveStrong},
		{"В номере грязно", "ru", NegativeStrong},
		{"Нормально", "ru", NeutralGroup},
		{"Das Zimmer war perfect", "de", PositiveStrong},
		{"房间非常好", "zh", PositiveStrong},
	}
	for _, c := range cases {
		require.Equal(t, c.want, lx.SentenceGroup(c.sentence, c.lang), "%q", c.sentence)
	}
}

func TestSplitSentences(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"Great location", "Breakfast was cold", "Would return"},
		SplitSentences("Great location! Breakfast was cold...\nWould return"))
	require.Equal(t, []string{"no punctuation here"}, SplitSentences("no punctuation here"))
	require.Empty(t, SplitSentences("  ...  "))
}

func TestLexiconScorer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := lexiconScorer(t)

	ann, err := s.Score(ctx, "Great location. Breakfast was cold.", "en")
	require.NoError(t, err)
	require.Equal(t, 0.25, ann.SentimentScore)
	require.Equal(t, pulse.Positive, ann.SentimentOverall)
	require.Equal(t, []string{"great_location", "breakfast_bad_taste"}, ann.Aspects)
	require.Equal(t, []string{"location", "fnb"}, ann.Topics)
	require.Equal(t, 2, ann.Evidence)

	ann, err = s.Score(ctx, "The room was not good.", "en")
	require.NoError(t, err)
	require.Equal(t, -0.5, ann.SentimentScore)
	require.Equal(t, pulse.Negative, ann.SentimentOverall)

	ann, err = s.Score(ctx, "Персонал очень вежливый, но в номере было грязно.", "ru")
	require.NoError(t, err)
	require.Equal(t, 0.0, ann.SentimentScore)
	require.Equal(t, pulse.Neutral, ann.SentimentOverall)
	require.ElementsMatch(t, []string{"spir_friendly", "dirty_on_arrival"}, ann.Aspects)

	ann, err = s.Score(ctx, "Room 214, second floor", "en")
	require.NoError(t, err)
	require.Zero(t, ann.Evidence)
	require.Equal(t, pulse.Neutral, ann.SentimentOverall)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Score(cancelled, "Great", "en")
	require.ErrorIs(t, err, context.Canceled)
}

func TestGenerateSchema_Strict(t *testing.T) {
	t.Parallel()

	s := GenerateSchema[modelAnnotation]()
	require.Equal(t, "object", s["type"])
	require.Equal(t, false, s["additionalProperties"])
	require.ElementsMatch(t, []string{"sentiment_score", "sentiment_overall", "aspects", "topics"}, s["required"])
	require.NotContains(t, s, "$schema")

	props := s["properties"].(map[string]any)
	overall := props["sentiment_overall"].(map[string]any)
	require.ElementsMatch(t, []any{"positive", "neutral", "negative"}, overall["enum"])
}

func TestModelAnnotation_Normalizes(t *testing.T) {
	t.Parallel()

	ann := modelAnnotation{SentimentScore: 1.7, SentimentOverall: "Positive", Aspects: []string{"Noisy Room", "noisy_room"}}.annotation(0.1)
	require.Equal(t, 1.0, ann.SentimentScore)
	require.Equal(t, pulse.Positive, ann.SentimentOverall)
	require.Equal(t, []string{"noisy_room"}, ann.Aspects)
	require.Equal(t, 1, ann.Evidence)

	ann = modelAnnotation{SentimentScore: -0.4, SentimentOverall: "meh"}.annotation(0.1)
	require.Equal(t, pulse.Negative, ann.SentimentOverall)
}

func TestCallWithRetry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := Backoff{RateLimit: []time.Duration{time.Millisecond}, ServerError: []time.Duration{time.Millisecond, time.Millisecond}}

	var calls int
	out, err := callWithRetry(ctx, b, func(context.Context) (string, error) {
		calls++
		switch calls {
		case 1:
			return "", errors.New("POST /responses: 429 Too Many Requests")
		case 2:
			return "", errors.New("POST /responses: 503 Service Unavailable")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", out)
	require.Equal(t, 3, calls)

	calls = 0
	_, err = callWithRetry(ctx, b, func(context.Context) (string, error) {
		calls++
		return "", errors.New("400 Bad Request: invalid schema")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)

	calls = 0
	_, err = callWithRetry(ctx, b, func(context.Context) (string, error) {
		calls++
		return "", errors.New("500 Internal Server Error")
	})
	require.Error(t, err)
	require.Equal(t, 3, calls)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	slow := Backoff{RateLimit: []time.Duration{time.Hour}}
	_, err = callWithRetry(cancelled, slow, func(context.Context) (string, error) {
		return "", errors.New("429")
	})
	require.ErrorIs(t, err, context.Canceled)
}

const responseBody = `{
  "id": "resp_1",
  "object": "response",
  "created_at": 1739180000,
  "status": "completed",
  "model": "gpt-test",
  "output": [{
    "type": "message",
    "id": "msg_1",
    "status": "completed",
    "role": "assistant",
    "content": [{"type": "output_text", "annotations": [], "text": %q}]
  }]
}`

func TestOpenAIScorer(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, `{"error":{"message":"overloaded","type":"server_error"}}`, http.StatusInternalServerError)
			return
		}
		assert.Equal(t, "/responses", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, responseBody, `{"sentiment_score":-0.6,"sentiment_overall":"negative","aspects":["noisy_room"],"topics":["comfort"]}`)
	}))
	t.Cleanup(srv.Close)

	s, err := NewOpenAIScorer(OpenAIOptions{
		APIKey:  "test",
		Model:   "gpt-test",
		BaseURL: srv.URL + "/",
		Backoff: &Backoff{ServerError: []time.Duration{time.Millisecond}},
	})
	require.NoError(t, err)

	ann, err := s.Score(context.Background(), "Very noisy room", "en")
	require.NoError(t, err)
	require.Equal(t, int32(2), hits.Load())
	require.Equal(t, -0.6, ann.SentimentScore)
	require.Equal(t, pulse.Negative, ann.SentimentOverall)
	require.Equal(t, []string{"noisy_room"}, ann.Aspects)
}

func TestNewOpenAIScorer_RequiresKeyAndModel(t *testing.T) {
	t.Parallel()

	_, err := NewOpenAIScorer(OpenAIOptions{Model: "m"})
	require.Error(t, err)
	_, err = NewOpenAIScorer(OpenAIOptions{APIKey: "k"})
	require.Error(t, err)
}

func TestNew_SelectsProvider(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, fb, err := New(ctx, Options{}, "")
	require.NoError(t, err)
	require.IsType(t, &LexiconScorer{}, s)
	require.Nil(t, fb)

	s, fb, err = New(ctx, Options{Provider: "OpenAI", APIKey: "k", Model: "m"}, "- noisy_room\n")
	require.NoError(t, err)
	require.IsType(t, &OpenAIScorer{}, s)
	require.IsType(t, &LexiconScorer{}, fb)
	require.Contains(t, s.(*OpenAIScorer).instructions, "noisy_room")

	_, _, err = New(ctx, Options{Provider: "vader"}, "")
	require.Error(t, err)
	_, _, err = New(ctx, Options{Provider: ProviderGemini}, "")
	require.Error(t, err)
}

type fakeScorer struct {
	fail  map[string]bool
	calls atomic.Int32
}

func (f *fakeScorer) Score(ctx context.Context, text, lang string) (pulse.Annotation, error) {
	f.calls.Add(1)
	if f.fail[text] {
		return pulse.Annotation{}, errors.New("backend down")
	}
	if text == "silent" {
		return pulse.Annotation{}, nil
	}
	return pulse.Annotation{SentimentScore: 0.8, SentimentOverall: pulse.Positive, Aspects: []string{text}, Evidence: 1}, nil
}

func reviews(texts ...string) []pulse.Review {
	out := make([]pulse.Review, len(texts))
	for i, t := range texts {
		out[i] = pulse.Review{Text: t, Lang: "en", Key: pulse.Identity(fmt.Sprintf("k%d", i))}
	}
	return out
}

func TestAnnotator_KeepsOrderAndFallsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	primary := &fakeScorer{fail: map[string]bool{"b": true}}
	a := Annotator{Scorer: primary, Fallback: lexiconScorer(t), Concurrency: 3, Log: zaptest.NewLogger(t)}

	in := reviews("a", "b", "c", "d", "e", "silent")
	low := 4.0
	in[5].Rating10 = &low
	out, err := a.Annotate(ctx, in)
	require.NoError(t, err)
	require.Len(t, out, len(in))
	for i, txt := range []string{"a", "c", "d", "e"} {
		idx := []int{0, 2, 3, 4}[i]
		require.Equal(t, []string{txt}, out[idx].Aspects)
	}
	require.Equal(t, pulse.Neutral, out[1].SentimentOverall)
	require.Equal(t, pulse.Negative, out[5].SentimentOverall, "rating fallback for a text without signal")
	require.Equal(t, int32(6), primary.calls.Load())
}

func TestAnnotator_FailsWithoutFallback(t *testing.T) {
	t.Parallel()

	a := Annotator{Scorer: &fakeScorer{fail: map[string]bool{"b": true}}, Concurrency: 2}
	_, err := a.Annotate(context.Background(), reviews("a", "b", "c"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "k1")
}
