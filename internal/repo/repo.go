package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"waispath/internal/config"
	"waispath/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const reportColumns = `id,type,severity,COALESCE(description,''),COALESCE(location,''),upvotes,downvotes,status,reported_by,reported_at,admin_reported,COALESCE(admin_role,''),reviewed_by,reviewed_at,admin_notes,created_at,updated_at`

func scanReport(scan func(dest ...any) error) (domain.ObstacleReport, error) {
	var r domain.ObstacleReport
	var reviewedBy, reviewedAt, adminNotes sql.NullString
	var adminReported int
	err := scan(&r.ID, &r.Type, &r.Severity, &r.Description, &r.Location, &r.Upvotes, &r.Downvotes,
		&r.Status, &r.ReportedBy, &r.ReportedAt, &adminReported, &r.AdminRole,
		&reviewedBy, &reviewedAt, &adminNotes, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return r, ErrNotFound
	}
	if err != nil {
		return r, err
	}
	r.AdminReported = adminReported != 0
	if reviewedBy.Valid {
		r.ReviewedBy = &reviewedBy.String
	}
	if reviewedAt.Valid {
		r.ReviewedAt = &reviewedAt.String
	}
	if adminNotes.Valid {
		r.AdminNotes = &adminNotes.String
	}
	return r, nil
}

func (r Repo) InsertReport(ctx context.Context, rep domain.ObstacleReport) error {
	adminReported := 0
	if rep.AdminReported {
		adminReported = 1
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO reports(id,type,severity,description,location,upvotes,downvotes,status,reported_by,reported_at,admin_reported,admin_role,reviewed_by,reviewed_at,admin_notes,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rep.ID, rep.Type, rep.Severity, nullable(rep.Description), nullable(rep.Location),
		rep.Upvotes, rep.Downvotes, rep.Status, rep.ReportedBy, rep.ReportedAt,
		adminReported, nullable(rep.AdminRole), nullableStringPtr(rep.ReviewedBy),
		nullableStringPtr(rep.ReviewedAt), nullableStringPtr(rep.AdminNotes), rep.CreatedAt, rep.UpdatedAt)
	return err
}

func (r Repo) GetReport(ctx context.Context, id string) (domain.ObstacleReport, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id=?`, id)
	return scanReport(row.Scan)
}

// ReportFilters narrows a report listing. The caller sorts by priority; the
// repo returns rows newest first for stable cursor pagination only.
type ReportFilters struct {
	Statuses        []string
	Type            string
	Since           string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListReports(ctx context.Context, f ReportFilters) ([]domain.ObstacleReport, error) {
	var clauses []string
	var args []any
	if len(f.Statuses) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(f.Statuses)), ",")
		clauses = append(clauses, "status IN ("+placeholders+")")
		for _, s := range f.Statuses {
			args = append(args, s)
		}
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.Since != "" {
		clauses = append(clauses, "reported_at >= ?")
		args = append(args, f.Since)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + reportColumns + ` FROM reports ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ObstacleReport
	for rows.Next() {
		rep, err := scanReport(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, rep)
	}
	return res, rows.Err()
}

// ApplyStatusChange is the single atomic write for a lifecycle transition.
// Review metadata is set on every admin-initiated change.
func (r Repo) ApplyStatusChange(ctx context.Context, tx *sql.Tx, id, newStatus, reviewedBy, reviewedAt string, notes *string) error {
	res, err := tx.ExecContext(ctx, `UPDATE reports SET status=?, reviewed_by=?, reviewed_at=?, admin_notes=?, updated_at=? WHERE id=?`,
		newStatus, reviewedBy, reviewedAt, nullableStringPtr(notes), reviewedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountReportsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM reports GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r Repo) UpsertPortalConfig(ctx context.Context, portalID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Portal.ID = portalID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.DB.ExecContext(ctx, `INSERT INTO portal_configs(portal_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(portal_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, portalID, string(payload), now, now)
	return err
}

func (r Repo) GetPortalConfig(ctx context.Context, portalID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM portal_configs WHERE portal_id=?`, portalID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Portal.ID == "" {
		cfg.Portal.ID = portalID
	}
	return &cfg, cfg.Validate()
}

// SinglePortalID returns the portal id when exactly one config row exists.
func (r Repo) SinglePortalID(ctx context.Context) (string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT portal_id FROM portal_configs LIMIT 2`)
	if err != nil {
		return "", err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(ids) != 1 {
		return "", ErrNotFound
	}
	return ids[0], nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
