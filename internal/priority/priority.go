// Package priority scores obstacle reports for triage ranking.
//
// The score is a weighted sum of four independently capped components:
// severity (0-40), community votes (0-30), critical obstacle type (0-20) and
// admin status adjustment (-50..+10), clamped to [0,100]. Calculation is pure;
// callers attach results for display and ranking, never persist them.
package priority

import (
	"math"

	"waispath/internal/domain"
	"waispath/internal/lifecycle"
)

// DefaultCommunityWeight multiplies net votes before capping at 30 points.
// Earlier snapshots of the portal used x3; x5 is the canonical value so that
// six net upvotes saturate the community component.
const DefaultCommunityWeight = 5

// Category buckets a score for the dashboard.
type Category string

const (
	CategoryCritical Category = "CRITICAL"
	CategoryHigh     Category = "HIGH"
	CategoryMedium   Category = "MEDIUM"
	CategoryLow      Category = "LOW"
)

// Implementation describes the scale of remediation an obstacle type needs,
// independent of the computed urgency.
type Implementation string

const (
	QuickFix            Implementation = "Quick Fix"
	MediumProject       Implementation = "Medium Project"
	MajorInfrastructure Implementation = "Major Infrastructure"
)

// Breakdown itemizes the score components.
type Breakdown struct {
	Severity  int `json:"severity"`
	Community int `json:"community"`
	Critical  int `json:"critical"`
	Status    int `json:"status"`
}

// Result is the derived priority of a single report.
type Result struct {
	Score          int            `json:"score" minimum:"0" maximum:"100"`
	Category       Category       `json:"category" enum:"CRITICAL,HIGH,MEDIUM,LOW"`
	Recommendation string         `json:"recommendation"`
	Implementation Implementation `json:"implementation" enum:"Quick Fix,Medium Project,Major Infrastructure"`
	Timeframe      string         `json:"timeframe"`
	Breakdown      Breakdown      `json:"breakdown"`
}

// Weights tune the calculator. The zero value falls back to defaults.
type Weights struct {
	CommunityWeight int
}

func (w Weights) communityWeight() int {
	if w.CommunityWeight <= 0 {
		return DefaultCommunityWeight
	}
	return w.CommunityWeight
}

// Calculate scores a report. It never fails: unknown types earn no critical
// bonus and a generic recommendation, unknown statuses earn no adjustment.
func Calculate(r domain.ObstacleReport, w Weights) Result {
	b := Breakdown{
		Severity:  severityPoints(r.Severity),
		Community: communityPoints(r.NetVotes(), w.communityWeight()),
		Critical:  criticalTypePoints(r.Type),
		Status:    statusPoints(lifecycle.Status(r.Status)),
	}
	score := clamp(b.Severity+b.Community+b.Critical+b.Status, 0, 100)
	rem := remediationFor(r.Type)
	return Result{
		Score:          score,
		Category:       categoryFor(score),
		Recommendation: rem.recommendation,
		Implementation: rem.implementation,
		Timeframe:      rem.timeframe,
		Breakdown:      b,
	}
}

func severityPoints(s domain.Severity) int {
	switch s {
	case domain.SeverityLow:
		return 10
	case domain.SeverityMedium:
		return 20
	case domain.SeverityHigh:
		return 30
	case domain.SeverityBlocking:
		return 40
	}
	return 0
}

func communityPoints(netVotes, weight int) int {
	return clamp(netVotes*weight, 0, 30)
}

// criticalTypePoints grants a fixed bonus to obstacle categories that are
// structurally severe regardless of the reported severity.
func criticalTypePoints(t domain.ObstacleType) int {
	switch t {
	case domain.TypeNoSidewalk:
		return 20
	case domain.TypeStairsNoRamp:
		return 18
	case domain.TypeConstruction:
		return 15
	case domain.TypeBrokenInfrastructure:
		return 15
	case domain.TypeFlooding:
		return 12
	case domain.TypeElectricalPost:
		return 10
	case domain.TypeNarrowPassage:
		return 8
	case domain.TypeSteepSlope:
		return 8
	case domain.TypeDebris:
		return 5
	case domain.TypeVendorBlocking:
		return 3
	case domain.TypeParkedVehicles:
		return 3
	case domain.TypeOther:
		return 0
	}
	return 0
}

// statusPoints pushes already-handled reports toward the bottom of the
// ranking without excluding them, keeping the list auditable.
func statusPoints(s lifecycle.Status) int {
	switch s {
	case lifecycle.StatusPending:
		return 0
	case lifecycle.StatusVerified:
		return 10
	case lifecycle.StatusResolved:
		return -20
	case lifecycle.StatusFalseReport:
		return -50
	}
	return 0
}

func categoryFor(score int) Category {
	switch {
	case score >= 80:
		return CategoryCritical
	case score >= 60:
		return CategoryHigh
	case score >= 40:
		return CategoryMedium
	default:
		return CategoryLow
	}
}

type remediation struct {
	recommendation string
	implementation Implementation
	timeframe      string
}

func remediationFor(t domain.ObstacleType) remediation {
	switch t {
	case domain.TypeNoSidewalk:
		return remediation{"Construct a dedicated pedestrian sidewalk along this segment", MajorInfrastructure, "6-12 months"}
	case domain.TypeStairsNoRamp:
		return remediation{"Install a wheelchair-accessible ramp alongside the stairs", MajorInfrastructure, "3-6 months"}
	case domain.TypeSteepSlope:
		return remediation{"Regrade the path or add an alternative accessible route", MajorInfrastructure, "6-12 months"}
	case domain.TypeFlooding:
		return remediation{"Improve drainage and raise the walkway above flood level", MajorInfrastructure, "3-6 months"}
	case domain.TypeBrokenInfrastructure:
		return remediation{"Repair damaged pavement and restore a level walking surface", MediumProject, "1-3 months"}
	case domain.TypeConstruction:
		return remediation{"Require the contractor to provide a safe covered detour", MediumProject, "2-4 weeks"}
	case domain.TypeElectricalPost:
		return remediation{"Relocate the post or widen the clearance around it", MediumProject, "1-3 months"}
	case domain.TypeNarrowPassage:
		return remediation{"Widen the passage to meet minimum clearance standards", MediumProject, "1-3 months"}
	case domain.TypeDebris:
		return remediation{"Schedule clearing and haul away accumulated debris", QuickFix, "1-2 weeks"}
	case domain.TypeVendorBlocking:
		return remediation{"Coordinate with the vendor to relocate off the walkway", QuickFix, "1-2 weeks"}
	case domain.TypeParkedVehicles:
		return remediation{"Enforce no-parking rules and install bollards if repeated", QuickFix, "1-2 weeks"}
	case domain.TypeOther:
		return remediation{"Inspect on site and determine the appropriate fix", QuickFix, "2-4 weeks"}
	}
	return remediation{"Inspect on site and determine the appropriate fix", QuickFix, "2-4 weeks"}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func roundMean(sum, n int) int {
	if n == 0 {
		return 0
	}
	return int(math.Round(float64(sum) / float64(n)))
}
