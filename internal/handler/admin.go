package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cleancity/internal/model"
	"github.com/iliyamo/cleancity/internal/repository"
	"github.com/iliyamo/cleancity/internal/service"
)

// AdminHandler serves the city administrator endpoints. Every operation
// is scoped to the caller's city.
type AdminHandler struct {
	Reports    *service.ReportService
	Users      *service.UserService
	Store      repository.UserStore
	Onboarding *service.OnboardingService
	Log        logrus.FieldLogger
}

func NewAdminHandler(reports *service.ReportService, users *service.UserService, store repository.UserStore,
	onboarding *service.OnboardingService, log logrus.FieldLogger) *AdminHandler {
	return &AdminHandler{Reports: reports, Users: users, Store: store, Onboarding: onboarding, Log: log}
}

type statusReq struct {
	Status          string  `json:"status" validate:"required"`
	AdminNotes      *string `json:"admin_notes" validate:"omitempty,max=4000"`
	AssignedAdminID *uint64 `json:"assigned_admin_id" validate:"omitempty,gt=0"`
}

type userPatchReq struct {
	FullName     *string `json:"full_name" validate:"omitempty,notblank,max=255"`
	Phone        *string `json:"phone" validate:"omitempty,max=32"`
	DOB          *string `json:"dob" validate:"omitempty,datetime=2006-01-02"`
	Address      *string `json:"address" validate:"omitempty,max=512"`
	State        *string `json:"state" validate:"omitempty,max=128"`
	Pincode      *string `json:"pincode" validate:"omitempty,pincode"`
	IsActive     *bool   `json:"is_active"`
	RewardPoints *int    `json:"reward_points" validate:"omitempty,min=0"`
}

func (r userPatchReq) patch() model.UserPatch {
	trim := func(s *string) *string {
		if s == nil {
			return nil
		}
		v := strings.TrimSpace(*s)
		return &v
	}
	return model.UserPatch{
		FullName:     trim(r.FullName),
		Phone:        trim(r.Phone),
		DOB:          r.DOB,
		Address:      trim(r.Address),
		State:        trim(r.State),
		Pincode:      trim(r.Pincode),
		IsActive:     r.IsActive,
		RewardPoints: r.RewardPoints,
	}
}

// cityReport loads report id and checks it belongs to the admin's city.
// It writes the error response itself.
func (h *AdminHandler) cityReport(ctx context.Context, c echo.Context, id uint64, admin *model.User) (*model.Report, error) {
	r, err := h.Reports.Get(ctx, id)
	if err != nil {
		return nil, respondErr(c, http.StatusInternalServerError, "load report failed")
	}
	if r == nil {
		return nil, respondErr(c, http.StatusNotFound, "report not found")
	}
	if err := reportInCity(ctx, h.Store, r, admin.City); err != nil {
		if errors.Is(err, repository.ErrForbidden) {
			return nil, respondErr(c, http.StatusForbidden, "report belongs to another city")
		}
		return nil, respondErr(c, http.StatusInternalServerError, "load owner failed")
	}
	return r, nil
}

// cityUser loads user id and checks it belongs to the admin's city.
func (h *AdminHandler) cityUser(ctx context.Context, c echo.Context, id uint64, admin *model.User) (*model.User, error) {
	u, err := h.Users.Get(ctx, id)
	if err != nil {
		return nil, respondErr(c, http.StatusInternalServerError, "load user failed")
	}
	if u == nil {
		return nil, respondErr(c, http.StatusNotFound, "user not found")
	}
	if !model.SameCity(u.City, admin.City) {
		return nil, respondErr(c, http.StatusForbidden, "user belongs to another city")
	}
	return u, nil
}

// ListReports returns the reports of the admin's city. ?status narrows
// the result to one lifecycle state.
func (h *AdminHandler) ListReports(c echo.Context) error {
	var status *model.Status
	if raw := strings.TrimSpace(c.QueryParam("status")); raw != "" {
		st, ok := model.ParseStatus(raw)
		if !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status"})
		}
		status = &st
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	admin, err := currentUser(ctx, c, h.Store)
	if err != nil {
		return handled(err)
	}
	reports, err := h.Reports.ListByCity(ctx, admin.City, status)
	if err != nil {
		h.Log.WithError(err).Error("list city reports")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list reports failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"city": admin.City, "items": reports, "count": len(reports)})
}

// Stats counts the city's reports per status.
func (h *AdminHandler) Stats(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()

	admin, err := currentUser(ctx, c, h.Store)
	if err != nil {
		return handled(err)
	}
	stats, err := h.Reports.CityStats(ctx, admin.City)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "stats failed"})
	}
	total := 0
	for _, n := range stats {
		total += n
	}
	return c.JSON(http.StatusOK, echo.Map{"city": admin.City, "total": total, "by_status": stats})
}

// UpdateStatus moves a report of the admin's city to a new status. The
// caller becomes the assigned admin unless another id is given.
func (h *AdminHandler) UpdateStatus(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return handled(err)
	}
	var req statusReq
	if err := bindValid(c, &req); err != nil {
		return handled(err)
	}
	status, ok := model.ParseStatus(strings.TrimSpace(req.Status))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status"})
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	admin, err := currentUser(ctx, c, h.Store)
	if err != nil {
		return handled(err)
	}
	if _, err := h.cityReport(ctx, c, id, admin); err != nil {
		return handled(err)
	}

	upd := model.StatusUpdate{Status: status, AdminNotes: req.AdminNotes, AssignedAdminID: req.AssignedAdminID}
	if upd.AssignedAdminID == nil {
		upd.AssignedAdminID = &admin.ID
	}
	change, err := h.Reports.UpdateStatus(ctx, id, upd)
	switch {
	case errors.Is(err, repository.ErrPartialCompletion):
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reward not credited", "report": change.Report})
	case errors.Is(err, service.ErrInvalidStatus):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case err != nil:
		h.Log.WithError(err).WithField("report_id", id).Error("update report status")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update status failed"})
	case change == nil:
		return c.JSON(http.StatusNotFound, echo.Map{"error": "report not found"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"report":          change.Report,
		"previous_status": change.Previous,
		"points_awarded":  change.Awarded,
	})
}

// DeleteReport removes a report of the admin's city.
func (h *AdminHandler) DeleteReport(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return handled(err)
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	admin, err := currentUser(ctx, c, h.Store)
	if err != nil {
		return handled(err)
	}
	if _, err := h.cityReport(ctx, c, id, admin); err != nil {
		return handled(err)
	}
	ok, err := h.Reports.Delete(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete report failed"})
	}
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "report not found"})
	}
	return c.NoContent(http.StatusNoContent)
}

// ListUsers returns the users of the admin's city.
func (h *AdminHandler) ListUsers(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()

	admin, err := currentUser(ctx, c, h.Store)
	if err != nil {
		return handled(err)
	}
	users, err := h.Users.ListByCity(ctx, admin.City)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list users failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"city": admin.City, "items": users, "count": len(users)})
}

// UpdateUser applies a partial update to a user of the admin's city.
func (h *AdminHandler) UpdateUser(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return handled(err)
	}
	var req userPatchReq
	if err := bindValid(c, &req); err != nil {
		return handled(err)
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	admin, err := currentUser(ctx, c, h.Store)
	if err != nil {
		return handled(err)
	}
	if _, err := h.cityUser(ctx, c, id, admin); err != nil {
		return handled(err)
	}
	u, err := h.Users.Update(ctx, id, req.patch())
	if err != nil {
		h.Log.WithError(err).WithField("user_id", id).Error("update user")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update user failed"})
	}
	if u == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}
	return c.JSON(http.StatusOK, u)
}

// DeleteUser removes a user of the admin's city. Their reports are kept.
func (h *AdminHandler) DeleteUser(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return handled(err)
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	admin, err := currentUser(ctx, c, h.Store)
	if err != nil {
		return handled(err)
	}
	if id == admin.ID {
		return c.JSON(http.StatusConflict, echo.Map{"error": "cannot delete yourself"})
	}
	if _, err := h.cityUser(ctx, c, id, admin); err != nil {
		return handled(err)
	}
	ok, err := h.Users.Delete(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete user failed"})
	}
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}
	return c.NoContent(http.StatusNoContent)
}

// ListCodes returns the admin codes of the admin's city together with
// the current admin count.
func (h *AdminHandler) ListCodes(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()

	admin, err := currentUser(ctx, c, h.Store)
	if err != nil {
		return handled(err)
	}
	codes, err := h.Onboarding.CodesForCity(ctx, admin.City)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list codes failed"})
	}
	admins, err := h.Onboarding.AdminCountForCity(ctx, admin.City)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "count admins failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"city": admin.City, "admins": admins, "codes": codes})
}
