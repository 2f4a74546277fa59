package domain

// ObstacleType classifies a reported accessibility obstacle.
type ObstacleType string

const (
	TypeVendorBlocking       ObstacleType = "vendor_blocking"
	TypeParkedVehicles       ObstacleType = "parked_vehicles"
	TypeConstruction         ObstacleType = "construction"
	TypeBrokenInfrastructure ObstacleType = "broken_infrastructure"
	TypeDebris               ObstacleType = "debris"
	TypeElectricalPost       ObstacleType = "electrical_post"
	TypeNoSidewalk           ObstacleType = "no_sidewalk"
	TypeFlooding             ObstacleType = "flooding"
	TypeStairsNoRamp         ObstacleType = "stairs_no_ramp"
	TypeNarrowPassage        ObstacleType = "narrow_passage"
	TypeSteepSlope           ObstacleType = "steep_slope"
	TypeOther                ObstacleType = "other"
)

// ObstacleTypes lists the canonical taxonomy in display order.
var ObstacleTypes = []ObstacleType{
	TypeVendorBlocking,
	TypeParkedVehicles,
	TypeConstruction,
	TypeBrokenInfrastructure,
	TypeDebris,
	TypeElectricalPost,
	TypeNoSidewalk,
	TypeFlooding,
	TypeStairsNoRamp,
	TypeNarrowPassage,
	TypeSteepSlope,
	TypeOther,
}

// KnownType reports whether t is part of the canonical taxonomy.
func KnownType(t ObstacleType) bool {
	for _, k := range ObstacleTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Severity orders low < medium < high < blocking.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityBlocking Severity = "blocking"
)

// KnownSeverity reports whether s is one of the four levels.
func KnownSeverity(s Severity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityBlocking:
		return true
	}
	return false
}

type ObstacleReport struct {
	ID            string       `json:"id"`
	Type          ObstacleType `json:"type" enum:"vendor_blocking,parked_vehicles,construction,broken_infrastructure,debris,electrical_post,no_sidewalk,flooding,stairs_no_ramp,narrow_passage,steep_slope,other"`
	Severity      Severity     `json:"severity" enum:"low,medium,high,blocking"`
	Description   string       `json:"description,omitempty"`
	Location      string       `json:"location,omitempty"`
	Upvotes       int          `json:"upvotes"`
	Downvotes     int          `json:"downvotes"`
	Status        string       `json:"status" enum:"pending,verified,resolved,false_report"`
	ReportedBy    string       `json:"reported_by"`
	ReportedAt    string       `json:"reported_at" format:"date-time"`
	AdminReported bool         `json:"admin_reported,omitempty"`
	AdminRole     string       `json:"admin_role,omitempty"`
	ReviewedBy    *string      `json:"reviewed_by,omitempty"`
	ReviewedAt    *string      `json:"reviewed_at,omitempty" format:"date-time"`
	AdminNotes    *string      `json:"admin_notes,omitempty"`
	CreatedAt     string       `json:"created_at" format:"date-time"`
	UpdatedAt     string       `json:"updated_at" format:"date-time"`
}

// NetVotes is the community signal used by the priority calculator.
func (r ObstacleReport) NetVotes() int {
	return r.Upvotes - r.Downvotes
}

type AuditEntry struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	ReportID   string `json:"report_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	ActorID    string `json:"actor_id"`
	Notes      string `json:"notes,omitempty"`
}

type Admin struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	AdminID   string `json:"admin_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
