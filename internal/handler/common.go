// Package handler contains the HTTP handlers of the API. Handlers bind
// and validate requests, enforce city scoping, call into the services
// and translate errors into `{"error": "..."}` responses.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cleancity/internal/middleware"
	"github.com/iliyamo/cleancity/internal/model"
	"github.com/iliyamo/cleancity/internal/repository"
)

const dbTimeout = 5 * time.Second

func dbCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), dbTimeout)
}

// handled turns errHandled into nil so the handler ends cleanly.
func handled(err error) error {
	if errors.Is(err, errHandled) {
		return nil
	}
	return err
}

// getUserID returns the authenticated caller set by JWTAuth.
func getUserID(c echo.Context) (uint64, error) {
	id, ok := middleware.UserID(c)
	if !ok {
		return 0, errors.New("invalid user_id in context")
	}
	return id, nil
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, respondErr(c, http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// currentUser loads the caller's row. Deleted or deactivated accounts are
// rejected even while their access token is still valid.
func currentUser(ctx context.Context, c echo.Context, users repository.UserStore) (*model.User, error) {
	id, err := getUserID(c)
	if err != nil {
		return nil, respondErr(c, http.StatusUnauthorized, "unauthorized")
	}
	u, err := users.GetUser(ctx, id)
	if err != nil {
		return nil, respondErr(c, http.StatusInternalServerError, "load user failed")
	}
	if u == nil || !u.IsActive {
		return nil, respondErr(c, http.StatusUnauthorized, "account unavailable")
	}
	return u, nil
}

// reportInCity checks the report's city, derived through its owner,
// against city. An orphaned report has no city and matches no admin.
func reportInCity(ctx context.Context, users repository.UserStore, r *model.Report, city string) error {
	owner, err := users.GetUser(ctx, r.UserID)
	if err != nil {
		return err
	}
	if owner == nil || !model.SameCity(owner.City, city) {
		return repository.ErrForbidden
	}
	return nil
}
