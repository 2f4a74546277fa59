// Package audit appends status-transition records to the audit trail.
package audit

import (
	"context"
	"database/sql"
	"time"

	"waispath/internal/domain"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

// Entry is the record emitted on every admin-initiated transition.
type Entry struct {
	ReportID   string
	FromStatus string
	ToStatus   string
	ActorID    string
	Notes      string
}

// Record inserts one audit row. Callers treat failures as non-fatal: the
// status write has already committed and must not be rolled back or blocked
// by the audit sink.
func (w Writer) Record(ctx context.Context, e Entry) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	_, err := w.DB.ExecContext(ctx, `INSERT INTO audit_log(ts,report_id,from_status,to_status,actor_id,notes) VALUES (?,?,?,?,?,?)`,
		ts, e.ReportID, e.FromStatus, e.ToStatus, e.ActorID, nullable(e.Notes))
	return err
}

// List returns audit entries, newest first, optionally filtered by report.
func List(ctx context.Context, db *sql.DB, reportID string, limit int, cursor int64) ([]domain.AuditEntry, error) {
	query := `SELECT id,ts,report_id,from_status,to_status,actor_id,COALESCE(notes,'') FROM audit_log`
	var args []any
	var clauses []string
	if reportID != "" {
		clauses = append(clauses, "report_id=?")
		args = append(args, reportID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id < ?")
		args = append(args, cursor)
	}
	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.TS, &e.ReportID, &e.FromStatus, &e.ToStatus, &e.ActorID, &e.Notes); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
