package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/cleancity/internal/model"
)

// AdminCodeRepo provides access to the admin_secret_codes table.
type AdminCodeRepo struct {
	db  *sql.DB
	now Clock
}

// NewAdminCodeRepo returns an AdminCodeRepo bound to db.
func NewAdminCodeRepo(db *sql.DB) *AdminCodeRepo { return &AdminCodeRepo{db: db, now: UTCNow} }

const codeColumns = "id, code, city, is_used, created_at"

func scanCode(s scanner) (model.AdminSecretCode, error) {
	var c model.AdminSecretCode
	err := s.Scan(&c.ID, &c.Code, &c.City, &c.IsUsed, &c.CreatedAt)
	return c, err
}

// GetAdminCode looks a code up by its exact string.
func (r *AdminCodeRepo) GetAdminCode(ctx context.Context, code string) (*model.AdminSecretCode, error) {
	c, err := scanCode(r.db.QueryRowContext(ctx,
		"SELECT "+codeColumns+" FROM admin_secret_codes WHERE code = ? LIMIT 1", code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get admin code: %w", err)
	}
	return &c, nil
}

// CreateAdminCode inserts an unused code for city.
func (r *AdminCodeRepo) CreateAdminCode(ctx context.Context, code, city string) (*model.AdminSecretCode, error) {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO admin_secret_codes (code, city, is_used, created_at) VALUES (?, ?, 0, ?)",
		code, city, r.now())
	if err != nil {
		if isDuplicate(err) {
			return nil, ErrCodeExists
		}
		return nil, fmt.Errorf("insert admin code: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert admin code: %w", err)
	}
	c, err := scanCode(r.db.QueryRowContext(ctx,
		"SELECT "+codeColumns+" FROM admin_secret_codes WHERE id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("reload admin code: %w", err)
	}
	return &c, nil
}

// MarkAdminCodeUsed flips is_used. It returns false when the id does
// not exist.
func (r *AdminCodeRepo) MarkAdminCodeUsed(ctx context.Context, id uint64) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM admin_secret_codes WHERE id = ?", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mark admin code %d: %w", id, err)
	}
	if _, err := r.db.ExecContext(ctx, "UPDATE admin_secret_codes SET is_used = 1 WHERE id = ?", id); err != nil {
		return false, fmt.Errorf("mark admin code %d: %w", id, err)
	}
	return true, nil
}

// ListAdminCodes returns every code ordered by id.
func (r *AdminCodeRepo) ListAdminCodes(ctx context.Context) ([]model.AdminSecretCode, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+codeColumns+" FROM admin_secret_codes ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list admin codes: %w", err)
	}
	defer rows.Close()
	codes := make([]model.AdminSecretCode, 0)
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan admin code: %w", err)
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

// RegisterAdmin consumes code and creates the admin user u in a single
// transaction. The code row is locked first so concurrent registrations
// with the same code serialize; the loser sees ErrCodeUsed.
func (r *AdminCodeRepo) RegisterAdmin(ctx context.Context, u model.NewUser, code string) (*model.User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin register admin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	c, err := scanCode(tx.QueryRowContext(ctx,
		"SELECT "+codeColumns+" FROM admin_secret_codes WHERE code = ? FOR UPDATE", code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock admin code: %w", err)
	}
	if c.IsUsed {
		return nil, ErrCodeUsed
	}
	if !model.SameCity(c.City, u.City) {
		return nil, ErrCodeCityMismatch
	}

	u.Role = model.RoleAdmin
	u.SecretCode = &c.Code
	id, err := insertUser(ctx, tx, u, r.now)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE admin_secret_codes SET is_used = 1 WHERE id = ? AND is_used = 0", c.ID); err != nil {
		return nil, fmt.Errorf("consume admin code: %w", err)
	}
	admin, err := getUser(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit register admin: %w", err)
	}
	committed = true
	return admin, nil
}
