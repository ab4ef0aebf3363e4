package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/cleancity/internal/model"
)

// ReportRepo provides CRUD operations for reports and the completion
// transaction that credits the reporter. All timestamps are UTC.
type ReportRepo struct {
	db  *sql.DB
	now Clock
}

// NewReportRepo returns a ReportRepo bound to db.
func NewReportRepo(db *sql.DB) *ReportRepo { return &ReportRepo{db: db, now: UTCNow} }

// DB exposes the underlying pool for callers that need their own
// transactions.
func (r *ReportRepo) DB() *sql.DB { return r.db }

const reportColumns = `r.id, r.user_id, r.title, r.description, r.address, r.latitude, r.longitude, r.photo,
       r.status, r.admin_notes, r.assigned_admin_id, r.reward_points, r.created_at, r.updated_at, r.completed_at`

func scanReport(s scanner) (model.Report, error) {
	var (
		rep         model.Report
		status      string
		adminNotes  sql.NullString
		assignedID  sql.NullInt64
		points      sql.NullInt64
		completedAt sql.NullTime
	)
	err := s.Scan(&rep.ID, &rep.UserID, &rep.Title, &rep.Description, &rep.Address,
		&rep.Latitude, &rep.Longitude, &rep.Photo, &status, &adminNotes, &assignedID,
		&points, &rep.CreatedAt, &rep.UpdatedAt, &completedAt)
	if err != nil {
		return rep, err
	}
	rep.Status = model.Status(status)
	if adminNotes.Valid {
		n := adminNotes.String
		rep.AdminNotes = &n
	}
	if assignedID.Valid {
		id := uint64(assignedID.Int64)
		rep.AssignedAdminID = &id
	}
	if points.Valid {
		p := int(points.Int64)
		rep.RewardPoints = &p
	}
	if completedAt.Valid {
		t := completedAt.Time
		rep.CompletedAt = &t
	}
	return rep, nil
}

func getReport(ctx context.Context, q queryer, id uint64, lock bool) (*model.Report, error) {
	query := "SELECT " + reportColumns + " FROM reports r WHERE r.id = ?"
	if lock {
		query += " FOR UPDATE"
	}
	rep, err := scanReport(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report %d: %w", id, err)
	}
	return &rep, nil
}

// GetReport fetches a report by id. A missing report yields nil, nil.
func (r *ReportRepo) GetReport(ctx context.Context, id uint64) (*model.Report, error) {
	return getReport(ctx, r.db, id, false)
}

// ListReports returns every report, newest first.
func (r *ReportRepo) ListReports(ctx context.Context) ([]model.Report, error) {
	return r.list(ctx, "SELECT "+reportColumns+" FROM reports r ORDER BY r.created_at DESC, r.id DESC")
}

// ListReportsByUser returns the reports submitted by userID.
func (r *ReportRepo) ListReportsByUser(ctx context.Context, userID uint64) ([]model.Report, error) {
	return r.list(ctx, "SELECT "+reportColumns+" FROM reports r WHERE r.user_id = ? ORDER BY r.created_at DESC, r.id DESC", userID)
}

// ListReportsByStatus returns the reports in status.
func (r *ReportRepo) ListReportsByStatus(ctx context.Context, status model.Status) ([]model.Report, error) {
	return r.list(ctx, "SELECT "+reportColumns+" FROM reports r WHERE r.status = ? ORDER BY r.created_at DESC, r.id DESC", string(status))
}

// ListReportsByCity returns the reports whose owner lives in city. The
// city is derived through the owner with one join on the indexed
// users(city_key) and reports(user_id) columns.
func (r *ReportRepo) ListReportsByCity(ctx context.Context, city string) ([]model.Report, error) {
	return r.list(ctx, `SELECT `+reportColumns+`
		FROM reports r
		JOIN users u ON u.id = r.user_id
		WHERE u.city_key = ?
		ORDER BY r.created_at DESC, r.id DESC`, model.CityKey(city))
}

// CreateReport inserts a pending report. Status, admin fields and award
// fields are always server assigned.
func (r *ReportRepo) CreateReport(ctx context.Context, nr model.NewReport) (*model.Report, error) {
	rep := nr.Build(r.now())
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO reports (user_id, title, description, address, latitude, longitude, photo,
		                      status, admin_notes, assigned_admin_id, reward_points, created_at, updated_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, NULL, ?, ?, NULL)`,
		rep.UserID, rep.Title, rep.Description, rep.Address, rep.Latitude, rep.Longitude, rep.Photo,
		string(rep.Status), rep.CreatedAt, rep.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}
	return r.GetReport(ctx, uint64(id))
}

// UpdateReportStatus runs a status transition as one transaction:
//
//  1. lock the report row (SELECT ... FOR UPDATE);
//  2. compute the next state with model.Transition;
//  3. write the report;
//  4. when points are due, increment the owner's reward_points.
//
// The row lock serializes concurrent transitions of the same report so
// the second completion observes status=completed and awards nothing.
// Returns nil, nil when the report does not exist. When the owner row is
// gone the completion is committed and ErrPartialCompletion is returned
// together with the change.
func (r *ReportRepo) UpdateReportStatus(ctx context.Context, id uint64, upd model.StatusUpdate) (*model.StatusChange, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin status update: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	cur, err := getReport(ctx, tx, id, true)
	if err != nil || cur == nil {
		return nil, err
	}
	next, award := model.Transition(*cur, upd, r.now())

	if _, err := tx.ExecContext(ctx,
		`UPDATE reports SET status = ?, admin_notes = ?, assigned_admin_id = ?, reward_points = ?,
		                    updated_at = ?, completed_at = ?
		 WHERE id = ?`,
		string(next.Status), next.AdminNotes, next.AssignedAdminID, next.RewardPoints,
		next.UpdatedAt, nullTime(next.CompletedAt), id); err != nil {
		return nil, fmt.Errorf("update report %d: %w", id, err)
	}

	change := &model.StatusChange{Report: next, Previous: cur.Status, Awarded: award}
	var partial error
	if award > 0 {
		res, err := tx.ExecContext(ctx,
			"UPDATE users SET reward_points = reward_points + ?, updated_at = ? WHERE id = ?",
			award, next.UpdatedAt, next.UserID)
		if err != nil {
			return nil, fmt.Errorf("credit user %d: %w", next.UserID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("credit user %d: %w", next.UserID, err)
		}
		if n == 0 {
			change.Awarded = 0
			partial = fmt.Errorf("report %d: owner %d: %w", id, next.UserID, ErrPartialCompletion)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit status update: %w", err)
	}
	committed = true
	return change, partial
}

// DeleteReport removes a report. The owning user is not touched.
func (r *ReportRepo) DeleteReport(ctx context.Context, id uint64) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM reports WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete report %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete report %d: %w", id, err)
	}
	return n > 0, nil
}

func (r *ReportRepo) list(ctx context.Context, q string, args ...any) ([]model.Report, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()
	reports := make([]model.Report, 0)
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
