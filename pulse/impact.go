package pulse

import (
	"math"
	"sort"
)

// Direction is the movement of an aspect against its baseline.
type Direction string

const (
	Improving Direction = "improving"
	Worsening Direction = "worsening"
	Flat      Direction = "flat"
)

// ImpactOptions tunes aspect impact scoring.
type ImpactOptions struct {
	// DeadZone is the |delta| at or below which an aspect is flat.
	DeadZone float64 `yaml:"dead_zone"`
	// MinSamples is the least number of current mentions an aspect needs to be reported.
	MinSamples int `yaml:"min_samples"`
}

// DefaultImpactOptions returns a 0.10 dead zone and a 3 mention minimum.
func DefaultImpactOptions() ImpactOptions {
	return ImpactOptions{DeadZone: 0.10, MinSamples: 3}
}

// AspectImpact explains how one aspect moved the score.
type AspectImpact struct {
	Aspect          string    `json:"aspect_name"`
	Delta           float64   `json:"delta_score"`
	SupportingCount int       `json:"supporting_count"`
	Direction       Direction `json:"direction"`
	CurrentMean     float64   `json:"current_mean"`
	BaselineMean    float64   `json:"baseline_mean"`
	BaselineCount   int       `json:"baseline_count"`
}

// Weight is the ranking weight |delta| x supporting count.
func (a AspectImpact) Weight() float64 {
	return math.Abs(a.Delta) * float64(a.SupportingCount)
}

type aspectAcc struct {
	sum float64
	n   int
}

func aspectMeans(rows []ReviewHistoryRow) (map[string]aspectAcc, aspectAcc) {
	by := make(map[string]aspectAcc)
	var all aspectAcc
	for _, r := range rows {
		all.sum += r.SentimentScore
		all.n++
		for _, a := range DedupeLabels(r.Aspects) {
			acc := by[a]
			acc.sum += r.SentimentScore
			acc.n++
			by[a] = acc
		}
	}
	return by, all
}

func (a aspectAcc) mean() float64 {
	if a.n == 0 {
		return 0
	}
	return a.sum / float64(a.n)
}

// ComputeAspectImpacts compares mean sentiment per aspect between the current and baseline
// populations. An aspect the baseline never mentions is measured against the baseline's overall
// mean (0 for an empty baseline). Aspects below MinSamples current mentions, and aspects with no
// current mentions at all, are left out. Results are ordered by Weight descending, then name.
func ComputeAspectImpacts(current, baseline []ReviewHistoryRow, opts ImpactOptions) []AspectImpact {
	cur, _ := aspectMeans(current)
	base, baseAll := aspectMeans(baseline)

	minSamples := opts.MinSamples
	if minSamples < 1 {
		minSamples = 1
	}
	deadZone := math.Abs(opts.DeadZone)

	out := make([]AspectImpact, 0, len(cur))
	for aspect, c := range cur {
		if c.n < minSamples {
			continue
		}
		b, ok := base[aspect]
		baseMean := baseAll.mean()
		if ok {
			baseMean = b.mean()
		}
		delta := Round(c.mean()-baseMean, 4)
		dir := Flat
		switch {
		case delta > deadZone:
			dir = Improving
		case delta < -deadZone:
			dir = Worsening
		}
		out = append(out, AspectImpact{
			Aspect:          aspect,
			Delta:           delta,
			SupportingCount: c.n,
			Direction:       dir,
			CurrentMean:     Round(c.mean(), 4),
			BaselineMean:    Round(baseMean, 4),
			BaselineCount:   b.n,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		wi, wj := out[i].Weight(), out[j].Weight()
		if wi != wj {
			return wi > wj
		}
		return out[i].Aspect < out[j].Aspect
	})
	return out
}

// TopImpacts splits ranked impacts into the strongest n worsening and n improving aspects.
func TopImpacts(impacts []AspectImpact, n int) (worsening, improving []AspectImpact) {
	for _, a := range impacts {
		switch a.Direction {
		case Worsening:
			if len(worsening) < n {
				worsening = append(worsening, a)
			}
		case Improving:
			if len(improving) < n {
				improving = append(improving, a)
			}
		}
	}
	return worsening, improving
}
