package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cleancity/internal/cache"
	"github.com/iliyamo/cleancity/internal/model"
	"github.com/iliyamo/cleancity/internal/repository"
)

// UserService covers the administrative user operations. Writes bump the
// response cache generation.
type UserService struct {
	store repository.UserStore
	gen   *cache.Generation
	log   logrus.FieldLogger
}

func NewUserService(store repository.UserStore, gen *cache.Generation, log logrus.FieldLogger) *UserService {
	return &UserService{store: store, gen: gen, log: log}
}

func (s *UserService) Get(ctx context.Context, id uint64) (*model.User, error) {
	return s.store.GetUser(ctx, id)
}

func (s *UserService) ListByCity(ctx context.Context, city string) ([]model.User, error) {
	return s.store.ListUsersByCity(ctx, city)
}

// Update applies a partial update; nil when the user does not exist.
func (s *UserService) Update(ctx context.Context, id uint64, p model.UserPatch) (*model.User, error) {
	u, err := s.store.UpdateUser(ctx, id, p)
	if err != nil || u == nil {
		return u, err
	}
	if !p.Empty() {
		s.gen.Bump(ctx)
		s.log.WithField("user_id", id).Info("user updated")
	}
	return u, nil
}

// Delete removes the user. Their reports are kept unchanged and their
// refresh tokens stop validating once the user is gone.
func (s *UserService) Delete(ctx context.Context, id uint64) (bool, error) {
	ok, err := s.store.DeleteUser(ctx, id)
	if err != nil || !ok {
		return ok, err
	}
	s.gen.Bump(ctx)
	s.log.WithField("user_id", id).Info("user deleted")
	return true, nil
}
