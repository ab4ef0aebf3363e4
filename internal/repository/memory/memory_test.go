package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cleancity/internal/model"
	"github.com/iliyamo/cleancity/internal/repository"
)

func fixedClock() (repository.Clock, func(time.Duration)) {
	var mu sync.Mutex
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}, func(d time.Duration) {
			mu.Lock()
			now = now.Add(d)
			mu.Unlock()
		}
}

func newUser(t *testing.T, s *Store, email, city string) *model.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), model.NewUser{Email: email, City: city, FullName: "n"})
	require.NoError(t, err)
	return u
}

func TestCreateUserDefaultsAndEmailCase(t *testing.T) {
	ctx := context.Background()
	s := New()

	u := newUser(t, s, "A@x.com", "Delhi")
	assert.Equal(t, uint64(1), u.ID)
	assert.Equal(t, "a@x.com", u.Email)
	assert.True(t, u.IsActive)
	assert.Zero(t, u.RewardPoints)
	assert.Equal(t, model.RoleUser, u.Role)

	got, err := s.GetUserByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.CreateUser(ctx, model.NewUser{Email: "a@X.COM"})
	assert.ErrorIs(t, err, repository.ErrEmailExists)
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestMissingRowsAreNotErrors(t *testing.T) {
	ctx := context.Background()
	s := New()

	u, err := s.GetUser(ctx, 42)
	assert.NoError(t, err)
	assert.Nil(t, u)

	r, err := s.GetReport(ctx, 42)
	assert.NoError(t, err)
	assert.Nil(t, r)

	change, err := s.UpdateReportStatus(ctx, 42, model.StatusUpdate{Status: model.StatusCompleted})
	assert.NoError(t, err)
	assert.Nil(t, change)

	ok, err := s.DeleteUser(ctx, 42)
	assert.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.DeleteReport(ctx, 42)
	assert.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.MarkAdminCodeUsed(ctx, 42)
	assert.NoError(t, err)
	assert.False(t, ok)

	updated, err := s.UpdateUser(ctx, 42, model.UserPatch{})
	assert.NoError(t, err)
	assert.Nil(t, updated)
}

func TestCompletionAwardsOnce(t *testing.T) {
	ctx := context.Background()
	clock, advance := fixedClock()
	s := NewWithClock(clock)
	u := newUser(t, s, "r@x.com", "Delhi")
	rep, err := s.CreateReport(ctx, model.NewReport{UserID: u.ID, Title: "t"})
	require.NoError(t, err)

	advance(time.Minute)
	first, err := s.UpdateReportStatus(ctx, rep.ID, model.StatusUpdate{Status: model.StatusCompleted})
	require.NoError(t, err)
	require.True(t, first.FirstCompletion())
	completedAt := *first.Report.CompletedAt

	advance(time.Hour)
	second, err := s.UpdateReportStatus(ctx, rep.ID, model.StatusUpdate{Status: model.StatusCompleted})
	require.NoError(t, err)
	assert.False(t, second.FirstCompletion())
	assert.Equal(t, model.StatusCompleted, second.Previous)
	assert.Equal(t, completedAt, *second.Report.CompletedAt)
	assert.Equal(t, model.AwardPoints, *second.Report.RewardPoints)

	owner, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AwardPoints, owner.RewardPoints)
}

func TestConcurrentCompletionAwardsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := newUser(t, s, "r@x.com", "Delhi")
	rep, err := s.CreateReport(ctx, model.NewReport{UserID: u.ID, Title: "t"})
	require.NoError(t, err)

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		awarded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			change, err := s.UpdateReportStatus(ctx, rep.ID, model.StatusUpdate{Status: model.StatusCompleted})
			if assert.NoError(t, err) && change.FirstCompletion() {
				mu.Lock()
				awarded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, awarded)
	owner, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AwardPoints, owner.RewardPoints)
}

func TestCompletionWithoutOwnerIsPartial(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := newUser(t, s, "r@x.com", "Delhi")
	rep, err := s.CreateReport(ctx, model.NewReport{UserID: u.ID, Title: "t"})
	require.NoError(t, err)
	_, err = s.DeleteUser(ctx, u.ID)
	require.NoError(t, err)

	change, err := s.UpdateReportStatus(ctx, rep.ID, model.StatusUpdate{Status: model.StatusCompleted})
	assert.ErrorIs(t, err, repository.ErrPartialCompletion)
	require.NotNil(t, change)
	assert.Equal(t, model.StatusCompleted, change.Report.Status)
	assert.Zero(t, change.Awarded)
}

func TestListReportsByCity(t *testing.T) {
	ctx := context.Background()
	s := New()
	ny := newUser(t, s, "ny@x.com", "New York")
	ny2 := newUser(t, s, "ny2@x.com", "new york")
	la := newUser(t, s, "la@x.com", "Los Angeles")
	r1, _ := s.CreateReport(ctx, model.NewReport{UserID: ny.ID, Title: "a"})
	r2, _ := s.CreateReport(ctx, model.NewReport{UserID: ny2.ID, Title: "b"})
	_, _ = s.CreateReport(ctx, model.NewReport{UserID: la.ID, Title: "c"})

	got, err := s.ListReportsByCity(ctx, "NEW YORK")
	require.NoError(t, err)
	ids := []uint64{}
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []uint64{r1.ID, r2.ID}, ids)

	none, err := s.ListReportsByCity(ctx, "Tokyo")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteUserKeepsReports(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := newUser(t, s, "r@x.com", "Delhi")
	r1, _ := s.CreateReport(ctx, model.NewReport{UserID: u.ID, Title: "a"})
	r2, _ := s.CreateReport(ctx, model.NewReport{UserID: u.ID, Title: "b"})

	ok, err := s.DeleteUser(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	for _, want := range []*model.Report{r1, r2} {
		got, err := s.GetReport(ctx, want.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, *want, *got)
	}
}

func TestRegisterAdminConsumesCodeOnce(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.CreateAdminCode(ctx, "ADMIN123", "New York")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = s.RegisterAdmin(ctx, model.NewUser{
				Email: []string{"one@x.com", "two@x.com"}[i],
				City:  "new york",
			}, "ADMIN123")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, repository.ErrCodeUsed)
		}
	}
	assert.Equal(t, 1, succeeded)

	code, err := s.GetAdminCode(ctx, "ADMIN123")
	require.NoError(t, err)
	assert.True(t, code.IsUsed)
	n, err := s.CountAdminsByCity(ctx, "NEW YORK")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRegisterAdminRejections(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.CreateAdminCode(ctx, "CLEAN_TOKYO", "Tokyo")
	require.NoError(t, err)

	_, err = s.RegisterAdmin(ctx, model.NewUser{Email: "a@x.com", City: "Tokyo"}, "nope")
	assert.ErrorIs(t, err, repository.ErrCodeNotFound)

	_, err = s.RegisterAdmin(ctx, model.NewUser{Email: "a@x.com", City: "Delhi"}, "CLEAN_TOKYO")
	assert.ErrorIs(t, err, repository.ErrCodeCityMismatch)

	_, err = s.CreateAdminCode(ctx, "CLEAN_TOKYO", "Tokyo")
	assert.ErrorIs(t, err, repository.ErrCodeExists)

	admin, err := s.RegisterAdmin(ctx, model.NewUser{Email: "a@x.com", City: "Tokyo"}, "CLEAN_TOKYO")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, admin.Role)
	require.NotNil(t, admin.SecretCode)
	assert.Equal(t, "CLEAN_TOKYO", *admin.SecretCode)
}

func TestRefreshTokens(t *testing.T) {
	ctx := context.Background()
	clock, advance := fixedClock()
	s := NewWithClock(clock)
	exp := clock().Add(time.Hour)
	require.NoError(t, s.StoreRefresh(ctx, 7, "h1", exp))
	require.NoError(t, s.StoreRefresh(ctx, 7, "h2", exp))

	uid, err := s.ValidateRefresh(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), uid)

	require.NoError(t, s.RevokeByHash(ctx, "h1"))
	_, err = s.ValidateRefresh(ctx, "h1")
	assert.ErrorIs(t, err, repository.ErrTokenInvalid)

	advance(2 * time.Hour)
	_, err = s.ValidateRefresh(ctx, "h2")
	assert.ErrorIs(t, err, repository.ErrTokenInvalid)

	n, err := s.PurgeTokens(ctx, clock())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestAdminCodesMatchExactly(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.CreateAdminCode(ctx, "ADMIN123", "Tokyo")
	require.NoError(t, err)

	for _, code := range []string{"admin123", "Admin123", " ADMIN123", "ADMIN123 "} {
		got, err := s.GetAdminCode(ctx, code)
		require.NoError(t, err, code)
		assert.Nil(t, got, code)

		_, err = s.RegisterAdmin(ctx, model.NewUser{Email: "a@x.com", City: "Tokyo"}, code)
		assert.ErrorIs(t, err, repository.ErrCodeNotFound, code)
	}

	lower, err := s.CreateAdminCode(ctx, "admin123", "Tokyo")
	require.NoError(t, err)
	assert.Equal(t, "admin123", lower.Code)
	codes, err := s.ListAdminCodes(ctx)
	require.NoError(t, err)
	assert.Len(t, codes, 2)
}

func TestCityMatchingFoldsCaseOnly(t *testing.T) {
	ctx := context.Background()
	s := New()
	accented := newUser(t, s, "a@x.com", "São Paulo")
	plain := newUser(t, s, "b@x.com", "Sao Paulo")
	_, err := s.CreateReport(ctx, model.NewReport{UserID: accented.ID, Title: "t", Latitude: "1", Longitude: "1"})
	require.NoError(t, err)
	_, err = s.CreateReport(ctx, model.NewReport{UserID: plain.ID, Title: "t", Latitude: "1", Longitude: "1"})
	require.NoError(t, err)
	_, err = s.CreateAdminCode(ctx, "SP1", "são paulo")
	require.NoError(t, err)
	_, err = s.RegisterAdmin(ctx, model.NewUser{Email: "c@x.com", City: "SÃO PAULO"}, "SP1")
	require.NoError(t, err)

	tests := []struct {
		city    string
		users   int
		admins  int
		reports int
	}{
		{"São Paulo", 2, 1, 1},
		{" são paulo ", 2, 1, 1},
		{"Sao Paulo", 1, 0, 1},
		{"SAO PAULO", 1, 0, 1},
		{"Paulo", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.city, func(t *testing.T) {
			users, err := s.ListUsersByCity(ctx, tt.city)
			require.NoError(t, err)
			assert.Len(t, users, tt.users)
			n, err := s.CountAdminsByCity(ctx, tt.city)
			require.NoError(t, err)
			assert.Equal(t, tt.admins, n)
			reports, err := s.ListReportsByCity(ctx, tt.city)
			require.NoError(t, err)
			assert.Len(t, reports, tt.reports)
		})
	}

	_, err = s.CreateAdminCode(ctx, "SP2", "Sao Paulo")
	require.NoError(t, err)
	_, err = s.RegisterAdmin(ctx, model.NewUser{Email: "d@x.com", City: "São Paulo"}, "SP2")
	assert.ErrorIs(t, err, repository.ErrCodeCityMismatch)
}

func TestCoordinatesRoundTripVerbatim(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := newUser(t, s, "a@x.com", "Delhi")

	coords := [][2]string{
		{"40.123456789", "-74.006"},
		{"0", "180"},
		{"-90.000000000001", "0.5"},
	}
	for _, c := range coords {
		created, err := s.CreateReport(ctx, model.NewReport{UserID: u.ID, Title: "t", Latitude: c[0], Longitude: c[1]})
		require.NoError(t, err)
		got, err := s.GetReport(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, c[0], got.Latitude)
		assert.Equal(t, c[1], got.Longitude)
	}
}
