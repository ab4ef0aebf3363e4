package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/iliyamo/cleancity/internal/cache"
	"github.com/iliyamo/cleancity/internal/metrics"
	"github.com/iliyamo/cleancity/internal/model"
	"github.com/iliyamo/cleancity/internal/repository"
)

// OnboardingStore is what the onboarding gate needs from the gateway.
type OnboardingStore interface {
	repository.UserStore
	repository.AdminCodeStore
}

// OnboardingService is the admin onboarding gate: secret codes bind a new
// admin to a city and can be redeemed once.
type OnboardingService struct {
	store   OnboardingStore
	limit   int // max admins per city, 0 = unlimited
	metrics *metrics.Metrics
	gen     *cache.Generation
	log     logrus.FieldLogger
}

// NewOnboardingService wires the gate. limitPerCity 0 disables the
// per-city admin limit.
func NewOnboardingService(store OnboardingStore, limitPerCity int, m *metrics.Metrics,
	gen *cache.Generation, log logrus.FieldLogger) *OnboardingService {
	return &OnboardingService{store: store, limit: limitPerCity, metrics: m, gen: gen, log: log}
}

// RedeemCode looks a code up by exact, case-sensitive match; nil when
// absent.
func (s *OnboardingService) RedeemCode(ctx context.Context, code string) (*model.AdminSecretCode, error) {
	return s.store.GetAdminCode(ctx, code)
}

// MarkUsed flips a code to used; false when the id is unknown.
func (s *OnboardingService) MarkUsed(ctx context.Context, id uint64) (bool, error) {
	return s.store.MarkAdminCodeUsed(ctx, id)
}

// AdminCountForCity returns the number of admins of a city.
func (s *OnboardingService) AdminCountForCity(ctx context.Context, city string) (int, error) {
	return s.store.CountAdminsByCity(ctx, city)
}

// RegisterAdmin creates an admin for u.City by consuming code. The code
// check, user insert and code consumption are one store transaction. The
// per-city limit is checked first; the code remains the hard gate, so
// two registrations racing on different codes may overshoot the limit
// by one.
func (s *OnboardingService) RegisterAdmin(ctx context.Context, u model.NewUser, code string) (*model.User, error) {
	if s.limit > 0 {
		n, err := s.store.CountAdminsByCity(ctx, u.City)
		if err != nil {
			return nil, err
		}
		if n >= s.limit {
			return nil, fmt.Errorf("%w: %s has %d", ErrAdminLimitReached, u.City, n)
		}
	}
	admin, err := s.store.RegisterAdmin(ctx, u, code)
	if err != nil {
		return nil, err
	}
	s.metrics.AdminsRegistered.Inc()
	s.gen.Bump(ctx)
	s.log.WithFields(logrus.Fields{"user_id": admin.ID, "city": admin.City}).Info("admin registered")
	return admin, nil
}

// CodesForCity lists the admin codes belonging to city.
func (s *OnboardingService) CodesForCity(ctx context.Context, city string) ([]model.AdminSecretCode, error) {
	all, err := s.store.ListAdminCodes(ctx)
	if err != nil {
		return nil, err
	}
	codes := make([]model.AdminSecretCode, 0)
	for _, c := range all {
		if model.SameCity(c.City, city) {
			codes = append(codes, c)
		}
	}
	return codes, nil
}

// SeedCodes inserts codes when the code table is empty and returns how
// many were created. Codes that already exist are skipped.
func (s *OnboardingService) SeedCodes(ctx context.Context, codes []model.SeedCode) (int, error) {
	existing, err := s.store.ListAdminCodes(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}
	created := 0
	for _, c := range codes {
		_, err := s.store.CreateAdminCode(ctx, strings.TrimSpace(c.Code), strings.TrimSpace(c.City))
		if errors.Is(err, repository.ErrCodeExists) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("seed admin code %s: %w", c.Code, err)
		}
		created++
	}
	s.log.WithField("count", created).Info("admin codes seeded")
	return created, nil
}

// DefaultSeedCodes is the built-in admin code set.
func DefaultSeedCodes() []model.SeedCode {
	return []model.SeedCode{
		{Code: "ADMIN123", City: "New York"},
		{Code: "ADMIN456", City: "Los Angeles"},
		{Code: "ADMIN789", City: "Chicago"},
		{Code: "ADMIN101", City: "Houston"},
		{Code: "ADMIN202", City: "Phoenix"},
		{Code: "CLEAN_DELHI", City: "Delhi"},
		{Code: "CLEAN_AMRAVATI", City: "Amravati"},
		{Code: "CLEAN_MUMBAI", City: "Mumbai"},
		{Code: "CLEAN_BANGALORE", City: "Bangalore"},
		{Code: "CLEAN_LONDON", City: "London"},
		{Code: "CLEAN_TOKYO", City: "Tokyo"},
	}
}

type seedFile struct {
	Codes []model.SeedCode `yaml:"codes"`
}

// LoadSeedCodes reads a YAML seed file:
//
//	codes:
//	  - code: ADMIN123
//	    city: New York
//
// An empty path yields DefaultSeedCodes.
func LoadSeedCodes(path string) ([]model.SeedCode, error) {
	if path == "" {
		return DefaultSeedCodes(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	for i, c := range f.Codes {
		if strings.TrimSpace(c.Code) == "" || strings.TrimSpace(c.City) == "" {
			return nil, fmt.Errorf("seed file %s: entry %d needs code and city", path, i)
		}
	}
	return f.Codes, nil
}
