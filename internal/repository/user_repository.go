package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/cleancity/internal/model"
)

const userColumns = `id, email, password_hash, full_name, phone, dob, address, city, state, pincode,
       role, secret_code, is_active, reward_points, created_at, updated_at`

// UserRepo provides access to the users table.
type UserRepo struct {
	db  *sql.DB
	now Clock
}

// NewUserRepo returns a UserRepo bound to db.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db, now: UTCNow} }

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func scanUser(s scanner) (model.User, error) {
	var (
		u          model.User
		secretCode sql.NullString
	)
	err := s.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Phone, &u.DOB, &u.Address,
		&u.City, &u.State, &u.Pincode, &u.Role, &secretCode, &u.IsActive, &u.RewardPoints,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return u, err
	}
	if secretCode.Valid {
		sc := secretCode.String
		u.SecretCode = &sc
	}
	return u, nil
}

// getUser loads one user using q, which may be the pool or a transaction.
func getUser(ctx context.Context, q queryer, id uint64) (*model.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ? LIMIT 1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &u, nil
}

// insertUser inserts u with server defaults and returns the new id.
func insertUser(ctx context.Context, q queryer, u model.NewUser, now Clock) (uint64, error) {
	role := u.Role
	if role == "" {
		role = model.RoleUser
	}
	ts := now()
	res, err := q.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, full_name, phone, dob, address, city, city_key, state, pincode,
		                    role, secret_code, is_active, reward_points, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 0, ?, ?)`,
		model.NormalizeEmail(u.Email), u.PasswordHash, u.FullName, u.Phone, u.DOB, u.Address,
		u.City, model.CityKey(u.City), u.State, u.Pincode, role, u.SecretCode, ts, ts)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return uint64(id), nil
}

// GetUser fetches a user by id. A missing user yields nil, nil.
func (r *UserRepo) GetUser(ctx context.Context, id uint64) (*model.User, error) {
	return getUser(ctx, r.db, id)
}

// GetUserByEmail fetches a user by normalized email.
func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = ? LIMIT 1", model.NormalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

// CreateUser inserts a user and returns the stored row.
func (r *UserRepo) CreateUser(ctx context.Context, nu model.NewUser) (*model.User, error) {
	id, err := insertUser(ctx, r.db, nu, r.now)
	if err != nil {
		return nil, err
	}
	return r.GetUser(ctx, id)
}

// UpdateUser applies a partial update. Only non-nil patch fields are
// written. Returns nil, nil when the user does not exist.
func (r *UserRepo) UpdateUser(ctx context.Context, id uint64, p model.UserPatch) (*model.User, error) {
	sets := make([]string, 0, 8)
	args := make([]any, 0, 9)
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if p.Email != nil {
		add("email", model.NormalizeEmail(*p.Email))
	}
	if p.PasswordHash != nil {
		add("password_hash", *p.PasswordHash)
	}
	if p.FullName != nil {
		add("full_name", *p.FullName)
	}
	if p.Phone != nil {
		add("phone", *p.Phone)
	}
	if p.DOB != nil {
		add("dob", *p.DOB)
	}
	if p.Address != nil {
		add("address", *p.Address)
	}
	if p.City != nil {
		add("city", *p.City)
		add("city_key", model.CityKey(*p.City))
	}
	if p.State != nil {
		add("state", *p.State)
	}
	if p.Pincode != nil {
		add("pincode", *p.Pincode)
	}
	if p.Role != nil {
		add("role", *p.Role)
	}
	if p.IsActive != nil {
		add("is_active", *p.IsActive)
	}
	if p.RewardPoints != nil {
		add("reward_points", *p.RewardPoints)
	}
	if len(sets) == 0 {
		return r.GetUser(ctx, id)
	}
	add("updated_at", r.now())
	args = append(args, id)

	_, err := r.db.ExecContext(ctx,
		"UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		if isDuplicate(err) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("update user %d: %w", id, err)
	}
	// MySQL reports 0 affected rows for unchanged values too, so the
	// existence check is the reload below.
	return r.GetUser(ctx, id)
}

// DeleteUser removes a user. Reports owned by the user are kept as they are.
func (r *UserRepo) DeleteUser(ctx context.Context, id uint64) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete user %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete user %d: %w", id, err)
	}
	return n > 0, nil
}

// ListUsers returns every user ordered by id.
func (r *UserRepo) ListUsers(ctx context.Context) ([]model.User, error) {
	return r.list(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
}

// ListUsersByCity returns the users of a city, matched on city_key.
func (r *UserRepo) ListUsersByCity(ctx context.Context, city string) ([]model.User, error) {
	return r.list(ctx, "SELECT "+userColumns+" FROM users WHERE city_key = ? ORDER BY id", model.CityKey(city))
}

// CountAdminsByCity counts admin users of a city.
func (r *UserRepo) CountAdminsByCity(ctx context.Context, city string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE city_key = ? AND role = ?", model.CityKey(city), model.RoleAdmin).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return n, nil
}

func (r *UserRepo) list(ctx context.Context, q string, args ...any) ([]model.User, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	users := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
