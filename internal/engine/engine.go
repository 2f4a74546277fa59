package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"waispath/internal/audit"
	"waispath/internal/config"
	"waispath/internal/domain"
	"waispath/internal/engine/auth"
	"waispath/internal/lifecycle"
	"waispath/internal/priority"
	"waispath/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Audit  audit.Writer
	Auth   auth.Service
	Config *config.Config
	Logger *log.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Audit:  audit.Writer{DB: db},
		Auth:   auth.Service{DB: db},
		Config: cfg,
		Logger: log.Default(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

// Weights returns the priority weights configured for this portal.
func (e Engine) Weights() priority.Weights {
	return priority.Weights{CommunityWeight: e.Config.CommunityWeight()}
}

// ReportCreateOptions are parameters for an admin-sourced report.
type ReportCreateOptions struct {
	ID          string
	Type        domain.ObstacleType
	Severity    domain.Severity
	Description string
	Location    string
	ActorID     string
	AdminRole   string
}

// CreateReport inserts an admin-sourced report. Community reports arrive
// through the mobile pipeline; this path always starts at pending.
func (e Engine) CreateReport(ctx context.Context, opts ReportCreateOptions) (domain.ObstacleReport, error) {
	if e.Config == nil {
		return domain.ObstacleReport{}, errors.New("config not loaded")
	}
	if opts.ActorID == "" {
		return domain.ObstacleReport{}, errors.New("actor is required")
	}
	if !domain.KnownType(opts.Type) {
		return domain.ObstacleReport{}, fmt.Errorf("unknown obstacle type %q", opts.Type)
	}
	if !domain.KnownSeverity(opts.Severity) {
		return domain.ObstacleReport{}, fmt.Errorf("unknown severity %q", opts.Severity)
	}
	id := opts.ID
	now := e.now().UTC().Format(time.RFC3339)
	if id == "" {
		id = uuid.New().String()
	}
	rep := domain.ObstacleReport{
		ID:            id,
		Type:          opts.Type,
		Severity:      opts.Severity,
		Description:   opts.Description,
		Location:      opts.Location,
		Status:        string(lifecycle.StatusPending),
		ReportedBy:    opts.ActorID,
		ReportedAt:    now,
		AdminReported: true,
		AdminRole:     opts.AdminRole,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.Repo.InsertReport(ctx, rep); err != nil {
		return domain.ObstacleReport{}, err
	}
	return rep, nil
}

// ChangeStatusOptions carry a lifecycle transition request. ActorID is
// mandatory; it is never defaulted.
type ChangeStatusOptions struct {
	ID      string
	To      lifecycle.Status
	ActorID string
	Notes   string
}

// ChangeReportStatus validates the transition against the lifecycle table,
// applies the status write atomically, then records the audit entry. The
// audit sink is fire-and-forget: a failure there is logged as a warning and
// never fails the already-committed status change.
func (e Engine) ChangeReportStatus(ctx context.Context, opts ChangeStatusOptions) (domain.ObstacleReport, error) {
	if opts.ActorID == "" {
		return domain.ObstacleReport{}, errors.New("actor is required")
	}
	if !lifecycle.Known(opts.To) {
		return domain.ObstacleReport{}, fmt.Errorf("unknown status %q", opts.To)
	}
	rep, err := e.Repo.GetReport(ctx, opts.ID)
	if err != nil {
		return rep, err
	}
	from := lifecycle.Status(rep.Status)
	if err := lifecycle.EnsureTransition(from, opts.To); err != nil {
		return rep, err
	}

	now := e.now().UTC().Format(time.RFC3339)
	var notes *string
	if opts.Notes != "" {
		notes = &opts.Notes
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return rep, err
	}
	defer tx.Rollback()
	if err := e.Repo.ApplyStatusChange(ctx, tx, rep.ID, string(opts.To), opts.ActorID, now, notes); err != nil {
		return rep, err
	}
	if err := tx.Commit(); err != nil {
		return rep, err
	}

	sink := e.Audit
	if sink.Now == nil {
		sink.Now = e.Now
	}
	if err := sink.Record(ctx, audit.Entry{
		ReportID:   rep.ID,
		FromStatus: string(from),
		ToStatus:   string(opts.To),
		ActorID:    opts.ActorID,
		Notes:      opts.Notes,
	}); err != nil {
		e.logger().Warn("audit record failed", "report_id", rep.ID, "err", err)
	}

	rep.Status = string(opts.To)
	rep.ReviewedBy = &opts.ActorID
	rep.ReviewedAt = &now
	rep.AdminNotes = notes
	rep.UpdatedAt = now
	return rep, nil
}

// ReportActions returns the transitions available for a stored report.
func (e Engine) ReportActions(ctx context.Context, id string) ([]lifecycle.Action, error) {
	rep, err := e.Repo.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	return lifecycle.AvailableActions(lifecycle.Status(rep.Status)), nil
}

// RankedReports fetches reports and runs the priority ranking pass. The
// database order is irrelevant; ranking sorts by score itself.
func (e Engine) RankedReports(ctx context.Context, f repo.ReportFilters) (priority.Ranking, error) {
	reports, err := e.Repo.ListReports(ctx, f)
	if err != nil {
		return priority.Ranking{}, err
	}
	return priority.Rank(reports, e.Weights()), nil
}

// AuditTail returns the audit trail, newest first.
func (e Engine) AuditTail(ctx context.Context, reportID string, limit int, cursor int64) ([]domain.AuditEntry, error) {
	return audit.List(ctx, e.DB, reportID, limit, cursor)
}

// DashboardStats recomputes aggregate stats over the full collection.
func (e Engine) DashboardStats(ctx context.Context) (priority.DashboardStats, error) {
	ranking, err := e.RankedReports(ctx, repo.ReportFilters{})
	if err != nil {
		return priority.DashboardStats{}, err
	}
	return ranking.Stats, nil
}
