package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cleancity/internal/model"
	"github.com/iliyamo/cleancity/internal/repository"
	"github.com/iliyamo/cleancity/internal/service"
)

// ReportHandler serves the reporter facing endpoints.
type ReportHandler struct {
	Reports *service.ReportService
	Users   repository.UserStore
	Log     logrus.FieldLogger
}

func NewReportHandler(reports *service.ReportService, users repository.UserStore, log logrus.FieldLogger) *ReportHandler {
	return &ReportHandler{Reports: reports, Users: users, Log: log}
}

type createReportReq struct {
	Title       string `json:"title" validate:"required,notblank,max=255"`
	Description string `json:"description" validate:"omitempty,max=4000"`
	Address     string `json:"address" validate:"required,notblank,max=512"`
	Latitude    string `json:"latitude" validate:"required,latitude"`
	Longitude   string `json:"longitude" validate:"required,longitude"`
	Photo       string `json:"photo" validate:"omitempty,max=2048"`
}

// Create stores a new pending report owned by the caller.
func (h *ReportHandler) Create(c echo.Context) error {
	var req createReportReq
	if err := bindValid(c, &req); err != nil {
		return handled(err)
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	u, err := currentUser(ctx, c, h.Users)
	if err != nil {
		return handled(err)
	}
	r, err := h.Reports.CreateReport(ctx, model.NewReport{
		UserID:      u.ID,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Address:     strings.TrimSpace(req.Address),
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Photo:       strings.TrimSpace(req.Photo),
	})
	if errors.Is(err, service.ErrInvalidCoordinates) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if err != nil {
		h.Log.WithError(err).Error("create report")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create report failed"})
	}
	return c.JSON(http.StatusCreated, r)
}

// List returns the caller's own reports, or every report of their city
// when the caller is an admin.
func (h *ReportHandler) List(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()

	u, err := currentUser(ctx, c, h.Users)
	if err != nil {
		return handled(err)
	}
	var reports []model.Report
	if u.IsAdmin() {
		reports, err = h.Reports.ListByCity(ctx, u.City, nil)
	} else {
		reports, err = h.Reports.ListByUser(ctx, u.ID)
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list reports failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": reports, "count": len(reports)})
}

// Get returns one report. Reporters see their own reports only; admins
// see every report of their city.
func (h *ReportHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return handled(err)
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	u, err := currentUser(ctx, c, h.Users)
	if err != nil {
		return handled(err)
	}
	r, err := h.Reports.Get(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load report failed"})
	}
	if r == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "report not found"})
	}
	if r.UserID != u.ID {
		if !u.IsAdmin() {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "report not found"})
		}
		if err := reportInCity(ctx, h.Users, r, u.City); err != nil {
			if errors.Is(err, repository.ErrForbidden) {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "report belongs to another city"})
			}
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load owner failed"})
		}
	}
	return c.JSON(http.StatusOK, r)
}

// Rewards summarises the caller's points against the reward catalogue.
func (h *ReportHandler) Rewards(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()

	u, err := currentUser(ctx, c, h.Users)
	if err != nil {
		return handled(err)
	}
	reports, err := h.Reports.ListByUser(ctx, u.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list reports failed"})
	}
	return c.JSON(http.StatusOK, service.Rewards(*u, reports))
}
