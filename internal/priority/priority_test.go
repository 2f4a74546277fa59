package priority

import (
	"testing"

	"waispath/internal/domain"
)

func report(t domain.ObstacleType, sev domain.Severity, status string, up, down int) domain.ObstacleReport {
	return domain.ObstacleReport{
		ID:        "r-" + string(t),
		Type:      t,
		Severity:  sev,
		Status:    status,
		Upvotes:   up,
		Downvotes: down,
	}
}

func TestScoreBounds(t *testing.T) {
	// Maximal everything still caps at 100.
	max := report(domain.TypeNoSidewalk, domain.SeverityBlocking, "verified", 100, 0)
	if got := Calculate(max, Weights{}).Score; got != 100 {
		t.Fatalf("expected cap at 100, got %d", got)
	}
	// A dismissed low report with no votes floors at 0, never negative.
	min := report(domain.TypeOther, domain.SeverityLow, "false_report", 0, 0)
	if got := Calculate(min, Weights{}).Score; got != 0 {
		t.Fatalf("expected floor at 0, got %d", got)
	}
}

func TestBlockingNoSidewalkScenario(t *testing.T) {
	// blocking(40) + votes capped(30) + no_sidewalk(20) + pending(0) = 90
	r := report(domain.TypeNoSidewalk, domain.SeverityBlocking, "pending", 10, 0)
	res := Calculate(r, Weights{})
	if res.Score != 90 {
		t.Fatalf("expected 90, got %d (%+v)", res.Score, res.Breakdown)
	}
	if res.Category != CategoryCritical {
		t.Fatalf("expected CRITICAL, got %s", res.Category)
	}
	if res.Implementation != MajorInfrastructure {
		t.Fatalf("expected Major Infrastructure, got %s", res.Implementation)
	}
}

func TestResolvedLowClampsToZero(t *testing.T) {
	// low(10) + 0 + other(0) + resolved(-20) = -10, clamped to 0
	r := report(domain.TypeOther, domain.SeverityLow, "resolved", 0, 0)
	res := Calculate(r, Weights{})
	if res.Score != 0 {
		t.Fatalf("expected 0, got %d", res.Score)
	}
	if res.Category != CategoryLow {
		t.Fatalf("expected LOW, got %s", res.Category)
	}
}

func TestSeverityMonotonic(t *testing.T) {
	order := []domain.Severity{domain.SeverityLow, domain.SeverityMedium, domain.SeverityHigh, domain.SeverityBlocking}
	prev := -1
	for _, sev := range order {
		score := Calculate(report(domain.TypeOther, sev, "pending", 0, 0), Weights{}).Score
		if score <= prev {
			t.Fatalf("severity %s scored %d, not above %d", sev, score, prev)
		}
		prev = score
	}
}

func TestCommunityComponent(t *testing.T) {
	// Default weight x5: 2 net votes -> 10 points, 6 saturate at 30.
	r := report(domain.TypeOther, domain.SeverityLow, "pending", 2, 0)
	if got := Calculate(r, Weights{}).Breakdown.Community; got != 10 {
		t.Fatalf("expected 10 community points, got %d", got)
	}
	r.Upvotes = 20
	if got := Calculate(r, Weights{}).Breakdown.Community; got != 30 {
		t.Fatalf("expected community cap at 30, got %d", got)
	}
	// Net-negative votes contribute nothing rather than subtracting.
	r.Upvotes, r.Downvotes = 1, 5
	if got := Calculate(r, Weights{}).Breakdown.Community; got != 0 {
		t.Fatalf("expected 0 for net-negative votes, got %d", got)
	}
	// A configured weight changes the multiplier.
	r.Upvotes, r.Downvotes = 2, 0
	if got := Calculate(r, Weights{CommunityWeight: 3}).Breakdown.Community; got != 6 {
		t.Fatalf("expected 6 with weight 3, got %d", got)
	}
}

func TestUnknownTypeAndStatusFallBack(t *testing.T) {
	r := report(domain.ObstacleType("teleporter"), domain.SeverityMedium, "archived", 0, 0)
	res := Calculate(r, Weights{})
	if res.Breakdown.Critical != 0 {
		t.Fatalf("unknown type must earn no critical bonus, got %d", res.Breakdown.Critical)
	}
	if res.Breakdown.Status != 0 {
		t.Fatalf("unknown status must earn no adjustment, got %d", res.Breakdown.Status)
	}
	if res.Recommendation == "" || res.Timeframe == "" {
		t.Fatal("unknown type must still get the generic remediation")
	}
}

func TestRemediationIndependentOfScore(t *testing.T) {
	quiet := Calculate(report(domain.TypeDebris, domain.SeverityLow, "resolved", 0, 0), Weights{})
	loud := Calculate(report(domain.TypeDebris, domain.SeverityBlocking, "pending", 50, 0), Weights{})
	if quiet.Recommendation != loud.Recommendation || quiet.Implementation != loud.Implementation || quiet.Timeframe != loud.Timeframe {
		t.Fatal("remediation must depend on type only, not score")
	}
}

func TestCategoryBoundaries(t *testing.T) {
	cases := map[int]Category{
		100: CategoryCritical,
		80:  CategoryCritical,
		79:  CategoryHigh,
		60:  CategoryHigh,
		59:  CategoryMedium,
		40:  CategoryMedium,
		39:  CategoryLow,
		0:   CategoryLow,
	}
	for score, want := range cases {
		if got := categoryFor(score); got != want {
			t.Errorf("score %d: expected %s, got %s", score, want, got)
		}
	}
}

func TestRankSortsAndAggregates(t *testing.T) {
	reports := []domain.ObstacleReport{
		report(domain.TypeOther, domain.SeverityLow, "resolved", 0, 0),          // 0 LOW
		report(domain.TypeNoSidewalk, domain.SeverityBlocking, "pending", 6, 0), // 90 CRITICAL
		report(domain.TypeDebris, domain.SeverityHigh, "pending", 1, 0),         // 40 MEDIUM
	}
	ranking := Rank(reports, Weights{})
	if len(ranking.Ranked) != 3 {
		t.Fatalf("expected 3 ranked, got %d", len(ranking.Ranked))
	}
	for i := 1; i < len(ranking.Ranked); i++ {
		if ranking.Ranked[i-1].Priority.Score < ranking.Ranked[i].Priority.Score {
			t.Fatal("ranking is not sorted descending")
		}
	}
	s := ranking.Stats
	if s.Total != 3 || s.Critical != 1 || s.Medium != 1 || s.Low != 1 || s.High != 0 {
		t.Fatalf("unexpected stats %+v", s)
	}
	if s.UrgentCount != 1 {
		t.Fatalf("expected urgent=1, got %d", s.UrgentCount)
	}
	// (0+90+40)/3 = 43.33 rounds to 43
	if s.AvgScore != 43 {
		t.Fatalf("expected avg 43, got %d", s.AvgScore)
	}
}

func TestRankTieBreakNewestFirst(t *testing.T) {
	a := report(domain.TypeDebris, domain.SeverityMedium, "pending", 0, 0)
	a.ID = "older"
	a.CreatedAt = "2024-01-01T00:00:00Z"
	b := report(domain.TypeDebris, domain.SeverityMedium, "pending", 0, 0)
	b.ID = "newer"
	b.CreatedAt = "2024-01-02T00:00:00Z"
	// Equal scores break on created_at regardless of input order.
	for _, in := range [][]domain.ObstacleReport{{a, b}, {b, a}} {
		ranking := Rank(in, Weights{})
		if ranking.Ranked[0].Report.ID != "newer" || ranking.Ranked[1].Report.ID != "older" {
			t.Fatalf("tie-break wrong for input %v: %s first", []string{in[0].ID, in[1].ID}, ranking.Ranked[0].Report.ID)
		}
	}
}

func TestRankOrderIndependence(t *testing.T) {
	reports := []domain.ObstacleReport{
		report(domain.TypeNoSidewalk, domain.SeverityBlocking, "pending", 6, 0),
		report(domain.TypeDebris, domain.SeverityHigh, "pending", 1, 0),
		report(domain.TypeOther, domain.SeverityLow, "resolved", 0, 0),
	}
	// A tied pair with distinct ids and timestamps.
	tied := report(domain.TypeDebris, domain.SeverityHigh, "pending", 1, 0)
	tied.ID = "tied"
	tied.CreatedAt = "2024-01-03T00:00:00Z"
	reports = append(reports, tied)
	for i := range reports {
		if reports[i].CreatedAt == "" {
			reports[i].CreatedAt = "2024-01-01T00:00:00Z"
		}
	}

	order := func(r Ranking) []string {
		ids := make([]string, 0, len(r.Ranked))
		for _, p := range r.Ranked {
			ids = append(ids, p.Report.ID)
		}
		return ids
	}
	base := Rank(reports, Weights{})

	// Reversed input ranks identically.
	reversed := make([]domain.ObstacleReport, len(reports))
	for i, r := range reports {
		reversed[len(reports)-1-i] = r
	}
	again := Rank(reversed, Weights{})
	if got, want := order(again), order(base); len(got) != len(want) {
		t.Fatalf("ranked %d of %d", len(got), len(want))
	} else {
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("order differs at %d: got %v, want %v", i, got, want)
			}
		}
	}
	if again.Stats != base.Stats {
		t.Fatalf("stats differ: %+v vs %+v", again.Stats, base.Stats)
	}

	// Ranking the already-ranked output is a no-op.
	mapped := make([]domain.ObstacleReport, 0, len(base.Ranked))
	for _, p := range base.Ranked {
		mapped = append(mapped, p.Report)
	}
	rr := Rank(mapped, Weights{})
	for i, id := range order(rr) {
		if id != order(base)[i] {
			t.Fatalf("re-ranking changed order at %d: %v", i, order(rr))
		}
	}
	if rr.Stats != base.Stats {
		t.Fatalf("re-ranking changed stats: %+v vs %+v", rr.Stats, base.Stats)
	}
}

func TestRankEmpty(t *testing.T) {
	ranking := Rank(nil, Weights{})
	if ranking.Stats.Total != 0 || ranking.Stats.AvgScore != 0 {
		t.Fatalf("empty ranking stats %+v", ranking.Stats)
	}
}

func TestAvgScoreRoundsHalfUp(t *testing.T) {
	// 85 and 40 average to 62.5 which reports as 63.
	got := roundMean(85+40, 2)
	if got != 63 {
		t.Fatalf("expected 63, got %d", got)
	}
}

func TestFilterByCategory(t *testing.T) {
	ranking := Rank([]domain.ObstacleReport{
		report(domain.TypeNoSidewalk, domain.SeverityBlocking, "pending", 6, 0), // CRITICAL
		report(domain.TypeOther, domain.SeverityLow, "resolved", 0, 0),          // LOW
	}, Weights{})
	crit := FilterByCategory(ranking.Ranked, "CRITICAL")
	if len(crit) != 1 || crit[0].Priority.Category != CategoryCritical {
		t.Fatalf("unexpected filter result %v", crit)
	}
	if got := FilterByCategory(ranking.Ranked, ""); len(got) != 2 {
		t.Fatal("empty filter must be identity")
	}
	if got := FilterByCategory(ranking.Ranked, "all"); len(got) != 2 {
		t.Fatal("all filter must be identity")
	}
}
