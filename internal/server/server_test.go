package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"waispath/internal/app"
	"waispath/internal/db"
	"waispath/internal/engine"
	"waispath/internal/migrate"
	"waispath/internal/repo"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolvePortalAndConfig(context.Background(), workspace, "", "tester", r)
	if err != nil {
		t.Fatalf("resolve portal: %v", err)
	}
	e := engine.New(conn, cfg)
	handler, err := New(Config{Engine: e, BasePath: "/v1", Auth: AuthConfig{
		JWTSecret:              "test-secret",
		AllowLegacyActorHeader: true,
	}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

var actorHeaders = map[string]string{"X-Actor-Id": "tester"}

func TestReportTriageFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	createRes, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/reports", map[string]any{
		"type":        "no_sidewalk",
		"severity":    "blocking",
		"description": "No sidewalk along Taft Avenue",
		"location":    "14.5995,120.9842",
	}, actorHeaders)
	if createRes.StatusCode != http.StatusCreated {
		t.Fatalf("create report status %d: %s", createRes.StatusCode, string(data))
	}
	var created struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		Priority struct {
			Score    int    `json:"score"`
			Category string `json:"category"`
		} `json:"priority"`
		AvailableActions []struct {
			Target string `json:"target"`
			Label  string `json:"label"`
		} `json:"available_actions"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if created.Status != "pending" {
		t.Fatalf("new report status %s", created.Status)
	}
	// blocking(40) + no votes(0) + no_sidewalk(20) + pending(0) = 60
	if created.Priority.Score != 60 || created.Priority.Category != "HIGH" {
		t.Fatalf("unexpected priority %+v", created.Priority)
	}
	if len(created.AvailableActions) != 2 {
		t.Fatalf("pending should offer 2 actions, got %d", len(created.AvailableActions))
	}

	// pending -> verified
	statusRes, body := doJSON(t, client, http.MethodPatch, srv.URL+"/v1/reports/"+created.ID+"/status", map[string]any{
		"to": "verified",
	}, actorHeaders)
	if statusRes.StatusCode != http.StatusOK {
		t.Fatalf("verify status %d: %s", statusRes.StatusCode, string(body))
	}

	// verified -> false_report is not adjacent
	conflictRes, body := doJSON(t, client, http.MethodPatch, srv.URL+"/v1/reports/"+created.ID+"/status", map[string]any{
		"to": "false_report",
	}, actorHeaders)
	if conflictRes.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", conflictRes.StatusCode, string(body))
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %q", envelope.Error.Code)
	}

	// the rejected request left the report verified
	getRes, body := doJSON(t, client, http.MethodGet, srv.URL+"/v1/reports/"+created.ID, nil, actorHeaders)
	if getRes.StatusCode != http.StatusOK {
		t.Fatalf("get report status %d: %s", getRes.StatusCode, string(body))
	}
	var fetched struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &fetched); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if fetched.Status != "verified" {
		t.Fatalf("expected verified, got %s", fetched.Status)
	}

	// audit holds exactly the committed transition
	auditRes, body := doJSON(t, client, http.MethodGet, srv.URL+"/v1/audit?report_id="+created.ID, nil, actorHeaders)
	if auditRes.StatusCode != http.StatusOK {
		t.Fatalf("audit status %d: %s", auditRes.StatusCode, string(body))
	}
	var page struct {
		Items []struct {
			FromStatus string `json:"from_status"`
			ToStatus   string `json:"to_status"`
			ActorID    string `json:"actor_id"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("unmarshal audit: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(page.Items))
	}
	if page.Items[0].FromStatus != "pending" || page.Items[0].ToStatus != "verified" || page.Items[0].ActorID != "tester" {
		t.Fatalf("unexpected audit entry %+v", page.Items[0])
	}
}

func TestListReportsRankedAndFiltered(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	for _, r := range []map[string]any{
		{"type": "no_sidewalk", "severity": "blocking"},
		{"type": "debris", "severity": "low"},
	} {
		res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v1/reports", r, actorHeaders)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("seed report status %d: %s", res.StatusCode, string(body))
		}
	}

	listRes, body := doJSON(t, client, http.MethodGet, srv.URL+"/v1/reports", nil, actorHeaders)
	if listRes.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", listRes.StatusCode, string(body))
	}
	var page struct {
		Items []struct {
			Type     string `json:"type"`
			Priority struct {
				Score int `json:"score"`
			} `json:"priority"`
		} `json:"items"`
		Stats struct {
			Total int `json:"total"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if page.Stats.Total != 2 || len(page.Items) != 2 {
		t.Fatalf("expected 2 reports, got %+v", page)
	}
	if page.Items[0].Type != "no_sidewalk" {
		t.Fatalf("ranking order wrong: %+v", page.Items)
	}

	// invalid status filter is a 400
	badRes, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v1/reports?status=archived", nil, actorHeaders)
	if badRes.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status filter, got %d", badRes.StatusCode)
	}

	// category filter narrows the items but not the stats
	highRes, body := doJSON(t, client, http.MethodGet, srv.URL+"/v1/reports?category=HIGH", nil, actorHeaders)
	if highRes.StatusCode != http.StatusOK {
		t.Fatalf("category filter status %d: %s", highRes.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("unmarshal filtered list: %v", err)
	}
	if len(page.Items) != 1 || page.Stats.Total != 2 {
		t.Fatalf("unexpected filtered page %+v", page)
	}
}

func TestListReportsPaging(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	for _, r := range []map[string]any{
		{"type": "no_sidewalk", "severity": "blocking"},
		{"type": "flooding", "severity": "high"},
		{"type": "debris", "severity": "low"},
	} {
		res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v1/reports", r, actorHeaders)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("seed report status %d: %s", res.StatusCode, string(body))
		}
	}

	// Walking the cursor with limit=1 must visit every report exactly once.
	seen := map[string]bool{}
	cursor := ""
	for page := 0; page < 5; page++ {
		endpoint := srv.URL + "/v1/reports?limit=1"
		if cursor != "" {
			endpoint += "&cursor=" + url.QueryEscape(cursor)
		}
		res, body := doJSON(t, client, http.MethodGet, endpoint, nil, actorHeaders)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("page %d status %d: %s", page, res.StatusCode, string(body))
		}
		var p struct {
			Items []struct {
				ID string `json:"id"`
			} `json:"items"`
			NextCursor string `json:"next_cursor"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			t.Fatalf("unmarshal page %d: %v", page, err)
		}
		if len(p.Items) != 1 {
			t.Fatalf("page %d returned %d items", page, len(p.Items))
		}
		if seen[p.Items[0].ID] {
			t.Fatalf("report %s returned twice", p.Items[0].ID)
		}
		seen[p.Items[0].ID] = true
		if p.NextCursor == "" {
			break
		}
		cursor = p.NextCursor
	}
	if len(seen) != 3 {
		t.Fatalf("paging visited %d of 3 reports", len(seen))
	}
}

func TestStats(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v1/reports", map[string]any{
		"type": "flooding", "severity": "high",
	}, actorHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("seed status %d: %s", res.StatusCode, string(body))
	}

	statsRes, body := doJSON(t, client, http.MethodGet, srv.URL+"/v1/stats", nil, actorHeaders)
	if statsRes.StatusCode != http.StatusOK {
		t.Fatalf("stats status %d: %s", statsRes.StatusCode, string(body))
	}
	var stats struct {
		Total        int            `json:"total"`
		StatusCounts map[string]int `json:"status_counts"`
	}
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if stats.Total != 1 || stats.StatusCounts["pending"] != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v1/reports", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", res.StatusCode)
	}

	// health stays open
	healthRes, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if healthRes.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", healthRes.StatusCode)
	}
}

func TestAPIKeyRoundTrip(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	createRes, body := doJSON(t, client, http.MethodPost, srv.URL+"/v1/admin/keys", map[string]any{
		"admin_id": "tester",
		"name":     "ci",
	}, actorHeaders)
	if createRes.StatusCode != http.StatusCreated {
		t.Fatalf("create key status %d: %s", createRes.StatusCode, string(body))
	}
	var key struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	if err := json.Unmarshal(body, &key); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if key.Key == "" {
		t.Fatal("secret not returned at creation")
	}

	// the minted key authenticates as the admin
	meRes, body := doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"X-Api-Key": key.Key})
	if meRes.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", meRes.StatusCode, string(body))
	}
	var me struct {
		AdminID string   `json:"admin_id"`
		Roles   []string `json:"roles"`
	}
	if err := json.Unmarshal(body, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.AdminID != "tester" {
		t.Fatalf("expected tester, got %s", me.AdminID)
	}

	delRes, _ := doJSON(t, client, http.MethodDelete, srv.URL+"/v1/admin/keys/"+key.ID, nil, actorHeaders)
	if delRes.StatusCode >= 300 {
		t.Fatalf("revoke status %d", delRes.StatusCode)
	}

	// revoked key no longer authenticates
	deadRes, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"X-Api-Key": key.Key})
	if deadRes.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for revoked key, got %d", deadRes.StatusCode)
	}
}

func signTestToken(t *testing.T, secret, actorID string, roles []string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   actorID,
		"roles": roles,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestJWTBearerAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	// A valid HS256 token authenticates; roles resolve against the catalog.
	token := signTestToken(t, "test-secret", "jwt-admin", []string{"owner"})
	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v1/reports", nil, map[string]string{"Authorization": "Bearer " + token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("bearer list status %d: %s", res.StatusCode, string(body))
	}

	// A token signed with the wrong secret is rejected.
	forged := signTestToken(t, "wrong-secret", "jwt-admin", []string{"owner"})
	badRes, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v1/reports", nil, map[string]string{"Authorization": "Bearer " + forged})
	if badRes.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for forged token, got %d", badRes.StatusCode)
	}

	// A token without a subject is rejected.
	noSub := signTestToken(t, "test-secret", "", []string{"owner"})
	subRes, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v1/reports", nil, map[string]string{"Authorization": "Bearer " + noSub})
	if subRes.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without subject, got %d", subRes.StatusCode)
	}
}

func TestHandleErrorKeepsStatus(t *testing.T) {
	// Errors that already carry a status pass through untouched instead of
	// being remapped by the message heuristics.
	authErr := newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
	got := handleError(authErr)
	if got != authErr {
		t.Fatalf("status error was rewrapped: %#v", got)
	}
	if got.GetStatus() != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", got.GetStatus())
	}
}
