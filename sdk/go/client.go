package waispathsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal WAISPATH admin API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Report represents the API obstacle report model (partial).
type Report struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	Upvotes     int    `json:"upvotes"`
	Downvotes   int    `json:"downvotes"`
	Status      string `json:"status"`
	ReportedBy  string `json:"reported_by"`
	ReportedAt  string `json:"reported_at"`
}

// Priority is the computed score for a report.
type Priority struct {
	Score          int    `json:"score"`
	Category       string `json:"category"`
	Recommendation string `json:"recommendation"`
	Implementation string `json:"implementation"`
	Timeframe      string `json:"timeframe"`
}

// Action is an operator-facing transition.
type Action struct {
	Target string `json:"target"`
	Label  string `json:"label"`
}

// RankedReport pairs a report with its priority.
type RankedReport struct {
	Report
	Priority Priority `json:"priority"`
}

// ReportDetail is a single report with priority and actions.
type ReportDetail struct {
	Report
	Priority         *Priority `json:"priority,omitempty"`
	AvailableActions []Action  `json:"available_actions,omitempty"`
}

// Stats summarizes the ranked collection.
type Stats struct {
	Total       int `json:"total"`
	Critical    int `json:"critical"`
	High        int `json:"high"`
	Medium      int `json:"medium"`
	Low         int `json:"low"`
	UrgentCount int `json:"urgent_count"`
	AvgScore    int `json:"avg_score"`
}

// AuditEntry is one audit trail record.
type AuditEntry struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	ReportID   string `json:"report_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	ActorID    string `json:"actor_id"`
	Notes      string `json:"notes,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// RankedReportPage wraps the ranked listing with stats and a cursor.
type RankedReportPage struct {
	Items      []RankedReport `json:"items"`
	Stats      Stats          `json:"stats"`
	NextCursor string         `json:"next_cursor"`
}

// PaginatedAudit wraps audit listings with a cursor.
type PaginatedAudit struct {
	Items      []AuditEntry `json:"items"`
	NextCursor string       `json:"next_cursor"`
}

// CreateReport creates an admin-sourced report.
func (c *Client) CreateReport(ctx context.Context, obstacleType, severity, description, location string) (ReportDetail, error) {
	body := map[string]any{
		"type":        obstacleType,
		"severity":    severity,
		"description": description,
		"location":    location,
	}
	var resp ReportDetail
	err := c.do(ctx, http.MethodPost, c.apiPath("reports"), body, &resp)
	return resp, err
}

// ListReports returns the ranked listing.
func (c *Client) ListReports(ctx context.Context, status, category string, limit int) (RankedReportPage, error) {
	return c.ListReportsPage(ctx, status, category, limit, "")
}

// ListReportsPage returns one page of the ranked listing.
func (c *Client) ListReportsPage(ctx context.Context, status, category string, limit int, cursor string) (RankedReportPage, error) {
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}
	if category != "" {
		params.Set("category", category)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	endpoint := c.apiPath("reports")
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	var resp RankedReportPage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetReport fetches a report with priority and available actions.
func (c *Client) GetReport(ctx context.Context, id string) (ReportDetail, error) {
	var resp ReportDetail
	endpoint := c.apiPath(fmt.Sprintf("reports/%s", url.PathEscape(id)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ChangeStatus applies a lifecycle transition.
func (c *Client) ChangeStatus(ctx context.Context, id, to, notes string) (ReportDetail, error) {
	body := map[string]any{"to": to}
	if notes != "" {
		body["notes"] = notes
	}
	var resp ReportDetail
	endpoint := c.apiPath(fmt.Sprintf("reports/%s/status", url.PathEscape(id)))
	err := c.do(ctx, http.MethodPatch, endpoint, body, &resp)
	return resp, err
}

// ReportActions returns available transitions for a report.
func (c *Client) ReportActions(ctx context.Context, id string) ([]Action, error) {
	var resp struct {
		Status  string   `json:"status"`
		Actions []Action `json:"actions"`
	}
	endpoint := c.apiPath(fmt.Sprintf("reports/%s/actions", url.PathEscape(id)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Actions, err
}

// Stats returns dashboard statistics.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var resp struct {
		Stats
		StatusCounts map[string]int `json:"status_counts"`
	}
	err := c.do(ctx, http.MethodGet, c.apiPath("stats"), nil, &resp)
	return resp.Stats, err
}

// AuditTail returns recent audit entries, newest first.
func (c *Client) AuditTail(ctx context.Context, reportID string, limit int) ([]AuditEntry, error) {
	params := url.Values{}
	if reportID != "" {
		params.Set("report_id", reportID)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}
	endpoint := c.apiPath("audit")
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	var resp PaginatedAudit
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) apiPath(p string) string {
	return "v1/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
