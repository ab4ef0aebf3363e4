// Package memory provides a process-local implementation of
// repository.Store. It is non-durable and intended for tests and local
// runs (STORAGE_DRIVER=memory).
//
// Every operation holds one mutex for its full duration, so the
// cross-entity steps (completion award, admin registration) are atomic
// with respect to each other within this process. Nothing is shared
// across processes.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/cleancity/internal/model"
	"github.com/iliyamo/cleancity/internal/repository"
)

type refreshToken struct {
	userID    uint64
	expiresAt time.Time
	revokedAt *time.Time
}

// Store is an in-memory repository.Store.
type Store struct {
	mu  sync.Mutex
	now repository.Clock

	users   map[uint64]model.User
	codes   map[uint64]model.AdminSecretCode
	reports map[uint64]model.Report
	tokens  map[string]refreshToken

	nextUserID   uint64
	nextCodeID   uint64
	nextReportID uint64
}

var _ repository.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store { return NewWithClock(repository.UTCNow) }

// NewWithClock creates an empty store that stamps rows with now.
func NewWithClock(now repository.Clock) *Store {
	return &Store{
		now:          now,
		users:        make(map[uint64]model.User),
		codes:        make(map[uint64]model.AdminSecretCode),
		reports:      make(map[uint64]model.Report),
		tokens:       make(map[string]refreshToken),
		nextUserID:   1,
		nextCodeID:   1,
		nextReportID: 1,
	}
}

// Users ----------------------------------------------------------------------

func (s *Store) GetUser(_ context.Context, id uint64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.userByEmailLocked(email); ok {
		return &u, nil
	}
	return nil, nil
}

func (s *Store) userByEmailLocked(email string) (model.User, bool) {
	email = model.NormalizeEmail(email)
	for _, u := range s.users {
		if u.Email == email {
			return u, true
		}
	}
	return model.User{}, false
}

func (s *Store) CreateUser(_ context.Context, nu model.NewUser) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.createUserLocked(nu)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) createUserLocked(nu model.NewUser) (model.User, error) {
	if _, exists := s.userByEmailLocked(nu.Email); exists {
		return model.User{}, repository.ErrEmailExists
	}
	role := nu.Role
	if role == "" {
		role = model.RoleUser
	}
	now := s.now()
	u := model.User{
		ID:           s.nextUserID,
		Email:        model.NormalizeEmail(nu.Email),
		PasswordHash: nu.PasswordHash,
		FullName:     nu.FullName,
		Phone:        nu.Phone,
		DOB:          nu.DOB,
		Address:      nu.Address,
		City:         nu.City,
		State:        nu.State,
		Pincode:      nu.Pincode,
		Role:         role,
		SecretCode:   cloneString(nu.SecretCode),
		IsActive:     true,
		RewardPoints: 0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.nextUserID++
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, id uint64, p model.UserPatch) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	if p.Email != nil {
		if other, exists := s.userByEmailLocked(*p.Email); exists && other.ID != id {
			return nil, repository.ErrEmailExists
		}
	}
	if !p.Empty() {
		p.Apply(&u)
		u.UpdatedAt = s.now()
		s.users[id] = u
	}
	return &u, nil
}

// DeleteUser removes a user. Their reports are left untouched.
func (s *Store) DeleteUser(_ context.Context, id uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return false, nil
	}
	delete(s.users, id)
	return true, nil
}

func (s *Store) ListUsers(_ context.Context) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterUsersLocked(func(model.User) bool { return true }), nil
}

func (s *Store) ListUsersByCity(_ context.Context, city string) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterUsersLocked(func(u model.User) bool { return model.SameCity(u.City, city) }), nil
}

func (s *Store) CountAdminsByCity(_ context.Context, city string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	admins := s.filterUsersLocked(func(u model.User) bool {
		return u.Role == model.RoleAdmin && model.SameCity(u.City, city)
	})
	return len(admins), nil
}

func (s *Store) filterUsersLocked(keep func(model.User) bool) []model.User {
	out := make([]model.User, 0)
	for _, u := range s.users {
		if keep(u) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Admin codes ----------------------------------------------------------------

func (s *Store) GetAdminCode(_ context.Context, code string) (*model.AdminSecretCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.codeLocked(code); ok {
		return &c, nil
	}
	return nil, nil
}

func (s *Store) codeLocked(code string) (model.AdminSecretCode, bool) {
	for _, c := range s.codes {
		if c.Code == code {
			return c, true
		}
	}
	return model.AdminSecretCode{}, false
}

func (s *Store) CreateAdminCode(_ context.Context, code, city string) (*model.AdminSecretCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.codeLocked(code); exists {
		return nil, repository.ErrCodeExists
	}
	c := model.AdminSecretCode{ID: s.nextCodeID, Code: code, City: city, CreatedAt: s.now()}
	s.nextCodeID++
	s.codes[c.ID] = c
	return &c, nil
}

func (s *Store) MarkAdminCodeUsed(_ context.Context, id uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[id]
	if !ok {
		return false, nil
	}
	c.IsUsed = true
	s.codes[id] = c
	return true, nil
}

func (s *Store) ListAdminCodes(_ context.Context) ([]model.AdminSecretCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AdminSecretCode, 0, len(s.codes))
	for _, c := range s.codes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RegisterAdmin checks and consumes code and creates the admin under the
// same lock.
func (s *Store) RegisterAdmin(_ context.Context, nu model.NewUser, code string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codeLocked(code)
	switch {
	case !ok:
		return nil, repository.ErrCodeNotFound
	case c.IsUsed:
		return nil, repository.ErrCodeUsed
	case !model.SameCity(c.City, nu.City):
		return nil, repository.ErrCodeCityMismatch
	}
	nu.Role = model.RoleAdmin
	nu.SecretCode = &c.Code
	u, err := s.createUserLocked(nu)
	if err != nil {
		return nil, err
	}
	c.IsUsed = true
	s.codes[c.ID] = c
	return &u, nil
}

// Reports --------------------------------------------------------------------

func (s *Store) GetReport(_ context.Context, id uint64) (*model.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *Store) ListReports(_ context.Context) ([]model.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterReportsLocked(func(model.Report) bool { return true }), nil
}

func (s *Store) ListReportsByUser(_ context.Context, userID uint64) ([]model.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterReportsLocked(func(r model.Report) bool { return r.UserID == userID }), nil
}

func (s *Store) ListReportsByStatus(_ context.Context, status model.Status) ([]model.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterReportsLocked(func(r model.Report) bool { return r.Status == status }), nil
}

// ListReportsByCity resolves the owners living in city and keeps their
// reports.
func (s *Store) ListReportsByCity(_ context.Context, city string) ([]model.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owners := make(map[uint64]struct{})
	for _, u := range s.users {
		if model.SameCity(u.City, city) {
			owners[u.ID] = struct{}{}
		}
	}
	if len(owners) == 0 {
		return []model.Report{}, nil
	}
	return s.filterReportsLocked(func(r model.Report) bool {
		_, ok := owners[r.UserID]
		return ok
	}), nil
}

// filterReportsLocked returns matching reports newest first.
func (s *Store) filterReportsLocked(keep func(model.Report) bool) []model.Report {
	out := make([]model.Report, 0)
	for _, r := range s.reports {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *Store) CreateReport(_ context.Context, nr model.NewReport) (*model.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := nr.Build(s.now())
	r.ID = s.nextReportID
	s.nextReportID++
	s.reports[r.ID] = r
	return &r, nil
}

// UpdateReportStatus applies model.Transition and credits the owner under
// one lock.
func (s *Store) UpdateReportStatus(_ context.Context, id uint64, upd model.StatusUpdate) (*model.StatusChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.reports[id]
	if !ok {
		return nil, nil
	}
	next, award := model.Transition(cur, upd, s.now())
	s.reports[id] = next

	change := &model.StatusChange{Report: next, Previous: cur.Status, Awarded: award}
	if award == 0 {
		return change, nil
	}
	owner, ok := s.users[next.UserID]
	if !ok {
		change.Awarded = 0
		return change, repository.ErrPartialCompletion
	}
	owner.RewardPoints += award
	owner.UpdatedAt = next.UpdatedAt
	s.users[owner.ID] = owner
	return change, nil
}

// DeleteReport removes a report. The owner is not touched.
func (s *Store) DeleteReport(_ context.Context, id uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[id]; !ok {
		return false, nil
	}
	delete(s.reports, id)
	return true, nil
}

// Refresh tokens -------------------------------------------------------------

func (s *Store) StoreRefresh(_ context.Context, userID uint64, tokenHash string, exp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[tokenHash] = refreshToken{userID: userID, expiresAt: exp}
	return nil
}

func (s *Store) ValidateRefresh(_ context.Context, tokenHash string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[tokenHash]
	if !ok || t.revokedAt != nil || s.now().After(t.expiresAt) {
		return 0, repository.ErrTokenInvalid
	}
	return t.userID, nil
}

func (s *Store) RevokeByHash(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tokens[tokenHash]; ok && t.revokedAt == nil {
		now := s.now()
		t.revokedAt = &now
		s.tokens[tokenHash] = t
	}
	return nil
}

func (s *Store) RevokeAllForUser(_ context.Context, userID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for h, t := range s.tokens {
		if t.userID == userID && t.revokedAt == nil {
			t.revokedAt = &now
			s.tokens[h] = t
		}
	}
	return nil
}

func (s *Store) PurgeTokens(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for h, t := range s.tokens {
		if t.expiresAt.Before(before) || (t.revokedAt != nil && t.revokedAt.Before(before)) {
			delete(s.tokens, h)
			n++
		}
	}
	return n, nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
