package server

import (
	"waispath/internal/domain"
	"waispath/internal/lifecycle"
	"waispath/internal/priority"
)

// Request payloads

type CreateReportRequest struct {
	ID          *string `json:"id,omitempty"`
	Type        string  `json:"type" enum:"vendor_blocking,parked_vehicles,construction,broken_infrastructure,debris,electrical_post,no_sidewalk,flooding,stairs_no_ramp,narrow_passage,steep_slope,other"`
	Severity    string  `json:"severity" enum:"low,medium,high,blocking"`
	Description *string `json:"description,omitempty"`
	Location    *string `json:"location,omitempty"`
	AdminRole   *string `json:"admin_role,omitempty"`
}

type ChangeStatusRequest struct {
	To    string  `json:"to" enum:"pending,verified,resolved,false_report"`
	Notes *string `json:"notes,omitempty"`
}

type CreateKeyRequest struct {
	AdminID string  `json:"admin_id"`
	Name    *string `json:"name,omitempty"`
}

type RoleGrantRequest struct {
	AdminID string `json:"admin_id"`
	RoleID  string `json:"role_id"`
}

// Response payloads

type ReportResponse struct {
	domain.ObstacleReport
	Priority         *priority.Result   `json:"priority,omitempty"`
	AvailableActions []lifecycle.Action `json:"available_actions,omitempty"`
}

type RankedReportResponse struct {
	domain.ObstacleReport
	Priority priority.Result `json:"priority"`
}

type rankedReportList struct {
	Items      []RankedReportResponse  `json:"items"`
	Stats      priority.DashboardStats `json:"stats"`
	NextCursor string                  `json:"next_cursor,omitempty"`
}

type ActionsResponse struct {
	Status  string             `json:"status" enum:"pending,verified,resolved,false_report"`
	Actions []lifecycle.Action `json:"actions"`
}

type AuditEntryResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	ReportID   string `json:"report_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	ActorID    string `json:"actor_id"`
	Notes      string `json:"notes,omitempty"`
}

type paginatedAudit struct {
	Items      []AuditEntryResponse `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

type CreateKeyResponse struct {
	ID      string `json:"id"`
	AdminID string `json:"admin_id"`
	Name    string `json:"name,omitempty"`
	// Key is returned exactly once at creation; only its hash is stored.
	Key       string `json:"key"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	AdminID   string `json:"admin_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type AdminProfileResponse struct {
	AdminID     string   `json:"admin_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// Conversion helpers

func reportResponse(r domain.ObstacleReport, p *priority.Result, withActions bool) ReportResponse {
	resp := ReportResponse{ObstacleReport: r, Priority: p}
	if withActions {
		resp.AvailableActions = lifecycle.AvailableActions(lifecycle.Status(r.Status))
	}
	return resp
}

func rankedResponses(ranked []priority.PriorityObstacle) []RankedReportResponse {
	out := make([]RankedReportResponse, 0, len(ranked))
	for _, p := range ranked {
		out = append(out, RankedReportResponse{ObstacleReport: p.Report, Priority: p.Priority})
	}
	return out
}

func auditResponses(entries []domain.AuditEntry) []AuditEntryResponse {
	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditEntryResponse(e))
	}
	return out
}

func apiKeyResponses(keys []domain.APIKey) []APIKeyResponse {
	out := make([]APIKeyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, APIKeyResponse{ID: k.ID, AdminID: k.AdminID, Name: k.Name, CreatedAt: k.CreatedAt})
	}
	return out
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
