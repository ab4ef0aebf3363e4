package repository

import (
	"context"
	"time"

	"github.com/iliyamo/cleancity/internal/model"
)

// UserStore persists users. Email lookups are case-insensitive, city
// filters are case-insensitive.
type UserStore interface {
	GetUser(ctx context.Context, id uint64) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	CreateUser(ctx context.Context, u model.NewUser) (*model.User, error)
	UpdateUser(ctx context.Context, id uint64, p model.UserPatch) (*model.User, error)
	DeleteUser(ctx context.Context, id uint64) (bool, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	ListUsersByCity(ctx context.Context, city string) ([]model.User, error)
	CountAdminsByCity(ctx context.Context, city string) (int, error)
}

// AdminCodeStore persists admin secret codes. RegisterAdmin consumes a
// code and creates the admin user as one atomic step.
type AdminCodeStore interface {
	GetAdminCode(ctx context.Context, code string) (*model.AdminSecretCode, error)
	CreateAdminCode(ctx context.Context, code, city string) (*model.AdminSecretCode, error)
	MarkAdminCodeUsed(ctx context.Context, id uint64) (bool, error)
	ListAdminCodes(ctx context.Context) ([]model.AdminSecretCode, error)
	RegisterAdmin(ctx context.Context, u model.NewUser, code string) (*model.User, error)
}

// ReportStore persists reports. UpdateReportStatus applies
// model.Transition and credits the owner in one atomic step.
type ReportStore interface {
	GetReport(ctx context.Context, id uint64) (*model.Report, error)
	ListReports(ctx context.Context) ([]model.Report, error)
	ListReportsByUser(ctx context.Context, userID uint64) ([]model.Report, error)
	ListReportsByStatus(ctx context.Context, status model.Status) ([]model.Report, error)
	ListReportsByCity(ctx context.Context, city string) ([]model.Report, error)
	CreateReport(ctx context.Context, r model.NewReport) (*model.Report, error)
	UpdateReportStatus(ctx context.Context, id uint64, upd model.StatusUpdate) (*model.StatusChange, error)
	DeleteReport(ctx context.Context, id uint64) (bool, error)
}

// TokenStore persists refresh token hashes.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
	PurgeTokens(ctx context.Context, before time.Time) (int64, error)
}

// Store is the full persistence gateway. Two implementations exist:
// SQLStore (MySQL) and memory.Store.
type Store interface {
	UserStore
	AdminCodeStore
	ReportStore
	TokenStore
}

// Clock returns the current time. Stores take one so tests can pin
// timestamps.
type Clock func() time.Time

// UTCNow is the default Clock.
func UTCNow() time.Time { return time.Now().UTC() }
