package pulse

import (
	"testing"
)

func mention(score float64, aspects ...string) ReviewHistoryRow {
	return ReviewHistoryRow{SentimentScore: score, Aspects: aspects}
}

func TestComputeAspectImpacts_MinSamplesExcluded(t *testing.T) {
	t.Parallel()

	current := []ReviewHistoryRow{
		mention(-0.8, "breakfast"),
		mention(-0.6, "breakfast"),
		mention(0.9, "location"),
		mention(0.7, "location"),
		mention(0.8, "location"),
	}
	baseline := []ReviewHistoryRow{mention(0.2, "breakfast"), mention(0.6, "location")}

	got := ComputeAspectImpacts(current, baseline, DefaultImpactOptions())
	if len(got) != 1 || got[0].Aspect != "location" {
		t.Fatalf("impacts=%+v, want only location", got)
	}
	if got[0].SupportingCount != 3 || got[0].Direction != Improving {
		t.Fatalf("location=%+v", got[0])
	}
	if got[0].Delta != 0.2 {
		t.Fatalf("delta=%v", got[0].Delta)
	}
}

func TestComputeAspectImpacts_RankingAndTies(t *testing.T) {
	t.Parallel()

	var current []ReviewHistoryRow
	for i := 0; i < 4; i++ {
		current = append(current, mention(-0.5, "noise", "wifi"), mention(0.5, "staff"))
	}
	baseline := []ReviewHistoryRow{mention(0, "noise", "wifi", "staff")}

	got := ComputeAspectImpacts(current, baseline, ImpactOptions{DeadZone: 0.1, MinSamples: 1})
	if len(got) != 3 {
		t.Fatalf("impacts=%+v", got)
	}
	// Equal weights sort by name.
	if got[0].Aspect != "noise" || got[1].Aspect != "staff" || got[2].Aspect != "wifi" {
		t.Fatalf("order=%s,%s,%s", got[0].Aspect, got[1].Aspect, got[2].Aspect)
	}
	if got[0].Direction != Worsening || got[1].Direction != Improving {
		t.Fatalf("directions=%s,%s", got[0].Direction, got[1].Direction)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Weight() < got[i].Weight() {
			t.Fatalf("not sorted by weight: %+v", got)
		}
	}
}

func TestComputeAspectImpacts_DeadZoneAndMissingBaseline(t *testing.T) {
	t.Parallel()

	current := []ReviewHistoryRow{mention(0.35, "parking"), mention(0.45, "parking"), mention(0.4, "view")}
	baseline := []ReviewHistoryRow{mention(0.35), mention(0.45, "view")}

	got := ComputeAspectImpacts(current, baseline, ImpactOptions{DeadZone: 0.1, MinSamples: 1})
	byName := map[string]AspectImpact{}
	for _, a := range got {
		byName[a.Aspect] = a
	}
	// parking has no baseline mentions: compared with the baseline mean 0.4.
	if p := byName["parking"]; p.Direction != Flat || p.BaselineCount != 0 || p.BaselineMean != 0.4 {
		t.Fatalf("parking=%+v", p)
	}
	if v := byName["view"]; v.Direction != Flat || v.Delta != -0.05 {
		t.Fatalf("view=%+v", v)
	}

	wide := ComputeAspectImpacts(current, baseline, ImpactOptions{DeadZone: 0.01, MinSamples: 1})
	for _, a := range wide {
		if a.Aspect == "view" && a.Direction != Worsening {
			t.Fatalf("view with narrow dead zone=%+v", a)
		}
	}
}

func TestComputeAspectImpacts_EmptyInputs(t *testing.T) {
	t.Parallel()

	if got := ComputeAspectImpacts(nil, nil, DefaultImpactOptions()); len(got) != 0 {
		t.Fatalf("got %+v", got)
	}
}
