package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cleancity/internal/logger"
	"github.com/iliyamo/cleancity/internal/metrics"
	"github.com/iliyamo/cleancity/internal/model"
	"github.com/iliyamo/cleancity/internal/queue"
	"github.com/iliyamo/cleancity/internal/repository"
	"github.com/iliyamo/cleancity/internal/repository/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.ReportCompletedEvent
	err    error
}

func (p *recordingPublisher) PublishReportCompleted(_ context.Context, ev queue.ReportCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

type fixture struct {
	store      *memory.Store
	reports    *ReportService
	onboarding *OnboardingService
	pub        *recordingPublisher
}

func newFixture(t *testing.T, adminLimit int) fixture {
	t.Helper()
	store := memory.New()
	pub := &recordingPublisher{}
	m := metrics.New()
	log := logger.Discard()
	return fixture{
		store:      store,
		reports:    NewReportService(store, pub, m, nil, log),
		onboarding: NewOnboardingService(store, adminLimit, m, nil, log),
		pub:        pub,
	}
}

func (f fixture) user(t *testing.T, email, city string) *model.User {
	t.Helper()
	u, err := f.store.CreateUser(context.Background(), model.NewUser{Email: email, City: city})
	require.NoError(t, err)
	return u
}

func (f fixture) report(t *testing.T, userID uint64) *model.Report {
	t.Helper()
	r, err := f.reports.CreateReport(context.Background(), model.NewReport{
		UserID: userID, Title: "Overflowing bin", Latitude: "40.71280", Longitude: "-74.0060",
	})
	require.NoError(t, err)
	return r
}

func TestCreateReportCanonicalisesCoordinates(t *testing.T) {
	f := newFixture(t, 0)
	u := f.user(t, "r@x.com", "New York")

	r := f.report(t, u.ID)
	assert.Equal(t, "40.7128", r.Latitude)
	assert.Equal(t, "-74.006", r.Longitude)
	assert.Equal(t, model.StatusPending, r.Status)
	assert.Nil(t, r.RewardPoints)

	for _, tc := range []struct{ lat, lng string }{{"91", "0"}, {"0", "-180.5"}, {"north", "0"}} {
		_, err := f.reports.CreateReport(context.Background(), model.NewReport{UserID: u.ID, Latitude: tc.lat, Longitude: tc.lng})
		assert.ErrorIs(t, err, ErrInvalidCoordinates, "%s,%s", tc.lat, tc.lng)
	}
}

func TestCanonicalCoordinate(t *testing.T) {
	got, err := CanonicalCoordinate(" 90 ", decimal.NewFromInt(90))
	require.NoError(t, err)
	assert.Equal(t, "90", got)

	got, err = CanonicalCoordinate("40.123456789000", maxLatitude)
	require.NoError(t, err)
	assert.Equal(t, "40.123456789", got)

	_, err = CanonicalCoordinate("40."+strings.Repeat("1", 40), maxLatitude)
	assert.ErrorIs(t, err, ErrInvalidCoordinates)
}

func TestUpdateStatusAwardsAndPublishesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	u := f.user(t, "r@x.com", "Delhi")
	r := f.report(t, u.ID)

	notes := "cleared"
	change, err := f.reports.UpdateStatus(ctx, r.ID, model.StatusUpdate{Status: model.StatusCompleted, AdminNotes: &notes})
	require.NoError(t, err)
	assert.Equal(t, model.AwardPoints, change.Awarded)

	again, err := f.reports.UpdateStatus(ctx, r.ID, model.StatusUpdate{Status: model.StatusCompleted})
	require.NoError(t, err)
	assert.Zero(t, again.Awarded)

	owner, err := f.store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AwardPoints, owner.RewardPoints)

	require.Len(t, f.pub.events, 1)
	ev := f.pub.events[0]
	assert.Equal(t, r.ID, ev.ReportID)
	assert.Equal(t, u.ID, ev.UserID)
	assert.Equal(t, model.AwardPoints, ev.PointsAwarded)
	assert.NotEmpty(t, ev.EventID)
	assert.NotEmpty(t, ev.CompletedAt)
	require.NotNil(t, ev.AdminNotes)
	assert.Equal(t, "cleared", *ev.AdminNotes)
}

func TestUpdateStatusIgnoresPublishFailure(t *testing.T) {
	f := newFixture(t, 0)
	f.pub.err = errors.New("broker down")
	u := f.user(t, "r@x.com", "Delhi")
	r := f.report(t, u.ID)

	change, err := f.reports.UpdateStatus(context.Background(), r.ID, model.StatusUpdate{Status: model.StatusCompleted})
	require.NoError(t, err)
	assert.True(t, change.FirstCompletion())
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t, 0)
	u := f.user(t, "r@x.com", "Delhi")
	r := f.report(t, u.ID)

	_, err := f.reports.UpdateStatus(context.Background(), r.ID, model.StatusUpdate{Status: "archived"})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	missing, err := f.reports.UpdateStatus(context.Background(), 999, model.StatusUpdate{Status: model.StatusProcessing})
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdateStatusPartialCompletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	u := f.user(t, "r@x.com", "Delhi")
	r := f.report(t, u.ID)
	_, err := f.store.DeleteUser(ctx, u.ID)
	require.NoError(t, err)

	change, err := f.reports.UpdateStatus(ctx, r.ID, model.StatusUpdate{Status: model.StatusCompleted})
	assert.ErrorIs(t, err, repository.ErrPartialCompletion)
	require.NotNil(t, change)
	assert.Equal(t, model.StatusCompleted, change.Report.Status)
	assert.Empty(t, f.pub.events)
}

func TestListByCityAndStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	ny := f.user(t, "ny@x.com", "New York")
	la := f.user(t, "la@x.com", "Los Angeles")
	r1 := f.report(t, ny.ID)
	f.report(t, ny.ID)
	f.report(t, la.ID)
	_, err := f.reports.UpdateStatus(ctx, r1.ID, model.StatusUpdate{Status: model.StatusRejected})
	require.NoError(t, err)

	all, err := f.reports.ListByCity(ctx, "new york", nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	rejected := model.StatusRejected
	only, err := f.reports.ListByCity(ctx, "NEW YORK", &rejected)
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, r1.ID, only[0].ID)

	stats, err := f.reports.CityStats(ctx, "New York")
	require.NoError(t, err)
	assert.Equal(t, map[model.Status]int{
		model.StatusPending: 1, model.StatusProcessing: 0, model.StatusCompleted: 0, model.StatusRejected: 1,
	}, stats)

	none, err := f.reports.ListByCity(ctx, "Paris", nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRegisterAdminLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	_, err := f.onboarding.SeedCodes(ctx, []model.SeedCode{{Code: "A1", City: "Delhi"}, {Code: "A2", City: "Delhi"}})
	require.NoError(t, err)

	admin, err := f.onboarding.RegisterAdmin(ctx, model.NewUser{Email: "a@x.com", City: "Delhi"}, "A1")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin())

	_, err = f.onboarding.RegisterAdmin(ctx, model.NewUser{Email: "b@x.com", City: "delhi"}, "A2")
	assert.ErrorIs(t, err, ErrAdminLimitReached)

	n, err := f.onboarding.AdminCountForCity(ctx, "DELHI")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	code, err := f.onboarding.RedeemCode(ctx, "A2")
	require.NoError(t, err)
	assert.False(t, code.IsUsed)
}

func TestCodesAreNotNormalized(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	_, err := f.onboarding.SeedCodes(ctx, DefaultSeedCodes())
	require.NoError(t, err)

	for _, code := range []string{" ADMIN123", "ADMIN123\n", "admin123"} {
		got, err := f.onboarding.RedeemCode(ctx, code)
		require.NoError(t, err)
		assert.Nil(t, got, "%q", code)

		_, err = f.onboarding.RegisterAdmin(ctx, model.NewUser{Email: "a@x.com", City: "New York"}, code)
		assert.ErrorIs(t, err, repository.ErrCodeNotFound, "%q", code)
	}

	got, err := f.onboarding.RedeemCode(ctx, "ADMIN123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "New York", got.City)
}

func TestRegisterAdminErrorsFromGate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	_, err := f.onboarding.SeedCodes(ctx, DefaultSeedCodes())
	require.NoError(t, err)

	_, err = f.onboarding.RegisterAdmin(ctx, model.NewUser{Email: "a@x.com", City: "Mumbai"}, "ADMIN123")
	assert.ErrorIs(t, err, repository.ErrCodeCityMismatch)
	_, err = f.onboarding.RegisterAdmin(ctx, model.NewUser{Email: "a@x.com", City: "Mumbai"}, "NOPE")
	assert.ErrorIs(t, err, repository.ErrCodeNotFound)

	f.user(t, "taken@x.com", "Mumbai")
	_, err = f.onboarding.RegisterAdmin(ctx, model.NewUser{Email: "TAKEN@x.com", City: "Mumbai"}, "CLEAN_MUMBAI")
	assert.ErrorIs(t, err, repository.ErrEmailExists)
	code, err := f.onboarding.RedeemCode(ctx, "CLEAN_MUMBAI")
	require.NoError(t, err)
	assert.False(t, code.IsUsed, "failed registration must not consume the code")
}

func TestSeedCodesOnlyWhenEmpty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	n, err := f.onboarding.SeedCodes(ctx, DefaultSeedCodes())
	require.NoError(t, err)
	assert.Equal(t, len(DefaultSeedCodes()), n)

	n, err = f.onboarding.SeedCodes(ctx, DefaultSeedCodes())
	require.NoError(t, err)
	assert.Zero(t, n)

	codes, err := f.onboarding.CodesForCity(ctx, "amravati")
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.Equal(t, "CLEAN_AMRAVATI", codes[0].Code)

	ok, err := f.onboarding.MarkUsed(ctx, codes[0].ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.onboarding.MarkUsed(ctx, 9999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadSeedCodes(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "codes.yaml")
	require.NoError(t, os.WriteFile(good, []byte("codes:\n  - code: PUNE1\n    city: Pune\n"), 0o600))
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("codes:\n  - code: X\n"), 0o600))

	codes, err := LoadSeedCodes(good)
	require.NoError(t, err)
	assert.Equal(t, []model.SeedCode{{Code: "PUNE1", City: "Pune"}}, codes)

	_, err = LoadSeedCodes(bad)
	assert.Error(t, err)

	defaults, err := LoadSeedCodes("")
	require.NoError(t, err)
	assert.Len(t, defaults, 11)
}

func TestRewards(t *testing.T) {
	points := model.AwardPoints
	sum := Rewards(model.User{RewardPoints: 600}, []model.Report{{RewardPoints: &points}, {}})

	assert.Equal(t, 600, sum.TotalPoints)
	assert.Equal(t, 1, sum.CompletedReports)
	assert.Equal(t, 50, sum.PointsFromReports)
	require.Len(t, sum.Tiers, 3)
	assert.True(t, sum.Tiers[0].Eligible)
	assert.False(t, sum.Tiers[1].Eligible)
	assert.Equal(t, 400, sum.Tiers[1].PointsNeeded)
	require.NotNil(t, sum.NextTier)
	assert.Equal(t, 1000, sum.NextTier.Points)
	assert.True(t, sum.Tiers[2].Value.Equal(decimal.NewFromInt(35)))
}

func TestUserServiceDeleteKeepsReports(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	users := NewUserService(f.store, nil, logger.Discard())
	u := f.user(t, "r@x.com", "Delhi")
	r := f.report(t, u.ID)

	ok, err := users.Delete(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	kept, err := f.reports.Get(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, u.ID, kept.UserID)

	inactive := false
	updated, err := users.Update(ctx, u.ID, model.UserPatch{IsActive: &inactive})
	assert.NoError(t, err)
	assert.Nil(t, updated)
}
