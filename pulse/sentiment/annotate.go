package sentiment

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/theimaginaryfoundation/guest-pulse/pulse"
)

// Annotator scores a batch of reviews with bounded parallelism.
type Annotator struct {
	Scorer Scorer
	// Fallback, when set, scores a review whose primary scoring failed.
	Fallback    Scorer
	Concurrency int
	Log         *zap.Logger
}

// Annotate returns one annotation per review, in input order. A text with no sentiment signal
// takes its label from the review's rating when there is one. The first unrecoverable error
// cancels the remaining work.
func (a Annotator) Annotate(ctx context.Context, reviews []pulse.Review) ([]pulse.Annotation, error) {
	log := a.Log
	if log == nil {
		log = zap.NewNop()
	}
	limit := a.Concurrency
	if limit <= 0 {
		limit = 1
	}

	out := make([]pulse.Annotation, len(reviews))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range reviews {
		r := reviews[i]
		g.Go(func() error {
			ann, err := a.Scorer.Score(gctx, r.Text, r.Lang)
			if err != nil && a.Fallback != nil && gctx.Err() == nil {
				log.Warn("sentiment scorer failed, using fallback", zap.String("review_key", r.Key.String()), zap.Error(err))
				ann, err = a.Fallback.Score(gctx, r.Text, r.Lang)
			}
			if err != nil {
				return fmt.Errorf("annotate review %s: %w", r.Key, err)
			}
			out[i] = withRatingFallback(ann, r.Rating10)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func withRatingFallback(a pulse.Annotation, rating10 *float64) pulse.Annotation {
	if a.Evidence == 0 && rating10 != nil {
		a.SentimentOverall = pulse.SentimentFromRating(*rating10)
	}
	if a.SentimentOverall == "" {
		a.SentimentOverall = pulse.Neutral
	}
	return a
}
