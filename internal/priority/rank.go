package priority

import (
	"sort"

	"waispath/internal/domain"
)

// PriorityObstacle pairs a report with its derived priority.
type PriorityObstacle struct {
	Report   domain.ObstacleReport `json:"report"`
	Priority Result                `json:"priority"`
}

// DashboardStats aggregates a ranking pass.
type DashboardStats struct {
	Total       int `json:"total"`
	Critical    int `json:"critical"`
	High        int `json:"high"`
	Medium      int `json:"medium"`
	Low         int `json:"low"`
	UrgentCount int `json:"urgent_count"`
	AvgScore    int `json:"avg_score"`
}

// Ranking is the admin-facing view of a report collection.
type Ranking struct {
	Ranked []PriorityObstacle `json:"ranked"`
	Stats  DashboardStats     `json:"stats"`
}

// Rank attaches a priority to every report, sorts descending by score and
// computes aggregate stats. Ties break on created_at then id, newest first,
// so the output order does not depend on the input order. The pass holds no
// state; callers recompute on every refresh.
func Rank(reports []domain.ObstacleReport, w Weights) Ranking {
	ranked := make([]PriorityObstacle, 0, len(reports))
	for _, r := range reports {
		ranked = append(ranked, PriorityObstacle{Report: r, Priority: Calculate(r, w)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Priority.Score != b.Priority.Score {
			return a.Priority.Score > b.Priority.Score
		}
		if a.Report.CreatedAt != b.Report.CreatedAt {
			return a.Report.CreatedAt > b.Report.CreatedAt
		}
		return a.Report.ID > b.Report.ID
	})

	stats := DashboardStats{Total: len(ranked)}
	sum := 0
	for _, p := range ranked {
		sum += p.Priority.Score
		switch p.Priority.Category {
		case CategoryCritical:
			stats.Critical++
		case CategoryHigh:
			stats.High++
		case CategoryMedium:
			stats.Medium++
		case CategoryLow:
			stats.Low++
		}
	}
	stats.UrgentCount = stats.Critical + stats.High
	stats.AvgScore = roundMean(sum, stats.Total)
	return Ranking{Ranked: ranked, Stats: stats}
}

// FilterByCategory returns the subset in category, preserving order.
// "all" (or empty) is the identity filter.
func FilterByCategory(ranked []PriorityObstacle, category string) []PriorityObstacle {
	if category == "" || category == "all" {
		return ranked
	}
	var out []PriorityObstacle
	for _, p := range ranked {
		if string(p.Priority.Category) == category {
			out = append(out, p)
		}
	}
	return out
}
