package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cleancity/internal/cache"
	"github.com/iliyamo/cleancity/internal/metrics"
	"github.com/iliyamo/cleancity/internal/model"
	"github.com/iliyamo/cleancity/internal/queue"
	"github.com/iliyamo/cleancity/internal/repository"
)

const (
	publishTimeout = 3 * time.Second
	// maxCoordinateLen is the width of reports.latitude/longitude.
	maxCoordinateLen = 32
)

var (
	maxLatitude  = decimal.NewFromInt(90)
	maxLongitude = decimal.NewFromInt(180)
)

// ReportService is the report lifecycle engine.
type ReportService struct {
	store   repository.ReportStore
	pub     EventPublisher
	metrics *metrics.Metrics
	gen     *cache.Generation
	log     logrus.FieldLogger
}

// NewReportService wires the lifecycle engine. pub and gen may be nil.
func NewReportService(store repository.ReportStore, pub EventPublisher, m *metrics.Metrics,
	gen *cache.Generation, log logrus.FieldLogger) *ReportService {
	if pub == nil {
		pub = NopPublisher{}
	}
	return &ReportService{store: store, pub: pub, metrics: m, gen: gen, log: log}
}

// CanonicalCoordinate parses s as a decimal within [-limit, limit] and
// returns its canonical string form ("40.71280" becomes "40.7128"). The
// canonical form is what both stores keep, so it must fit the column.
func CanonicalCoordinate(s string, limit decimal.Decimal) (string, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidCoordinates, s)
	}
	if d.Abs().GreaterThan(limit) {
		return "", fmt.Errorf("%w: %s out of range", ErrInvalidCoordinates, d)
	}
	c := d.String()
	if len(c) > maxCoordinateLen {
		return "", fmt.Errorf("%w: more than %d characters", ErrInvalidCoordinates, maxCoordinateLen)
	}
	return c, nil
}

// CreateReport stores a new pending report. Coordinates are validated
// and canonicalised; everything else server-side (status, admin and
// award fields, timestamps) comes from the store.
func (s *ReportService) CreateReport(ctx context.Context, nr model.NewReport) (*model.Report, error) {
	lat, err := CanonicalCoordinate(nr.Latitude, maxLatitude)
	if err != nil {
		return nil, err
	}
	lng, err := CanonicalCoordinate(nr.Longitude, maxLongitude)
	if err != nil {
		return nil, err
	}
	nr.Latitude, nr.Longitude = lat, lng

	r, err := s.store.CreateReport(ctx, nr)
	if err != nil {
		return nil, err
	}
	s.metrics.ReportsCreated.Inc()
	s.gen.Bump(ctx)
	s.log.WithFields(logrus.Fields{"report_id": r.ID, "user_id": r.UserID}).Info("report created")
	return r, nil
}

// UpdateStatus applies a status transition. It returns nil, nil when the
// report does not exist. On a first completion the owner is credited in
// the same store transaction; afterwards a ReportCompletedEvent is
// published. A publish failure is logged and never returned.
//
// When the owner no longer exists the transition is still committed and
// the change is returned together with repository.ErrPartialCompletion.
func (s *ReportService) UpdateStatus(ctx context.Context, id uint64, upd model.StatusUpdate) (*model.StatusChange, error) {
	if _, ok := model.ParseStatus(string(upd.Status)); !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, upd.Status)
	}

	change, err := s.store.UpdateReportStatus(ctx, id, upd)
	partial := errors.Is(err, repository.ErrPartialCompletion)
	if err != nil && !partial {
		return nil, err
	}
	if change == nil {
		return nil, nil
	}
	s.gen.Bump(ctx)
	s.metrics.StatusTransitions.WithLabelValues(string(change.Report.Status)).Inc()

	log := s.log.WithFields(logrus.Fields{
		"report_id": id,
		"user_id":   change.Report.UserID,
		"from":      change.Previous,
		"to":        change.Report.Status,
	})
	if partial {
		s.metrics.PartialCompletions.Inc()
		log.WithError(err).Error("report completed without crediting the owner")
		return change, err
	}
	if change.FirstCompletion() {
		s.metrics.ReportsCompleted.Inc()
		s.metrics.PointsAwarded.Add(float64(change.Awarded))
		log.WithField("points", change.Awarded).Info("reward points awarded")
		s.publishCompleted(ctx, change)
	} else {
		log.Info("report status updated")
	}
	return change, nil
}

func (s *ReportService) publishCompleted(ctx context.Context, change *model.StatusChange) {
	r := change.Report
	ev := queue.ReportCompletedEvent{
		EventID:         newEventID(),
		ReportID:        r.ID,
		UserID:          r.UserID,
		Title:           r.Title,
		Address:         r.Address,
		PointsAwarded:   change.Awarded,
		AssignedAdminID: r.AssignedAdminID,
		AdminNotes:      r.AdminNotes,
	}
	if r.CompletedAt != nil {
		ev.CompletedAt = r.CompletedAt.UTC().Format(time.RFC3339)
	}
	// the request may be done by the time the broker answers
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.pub.PublishReportCompleted(pctx, ev); err != nil {
		s.metrics.EventPublishFailure.Inc()
		s.log.WithError(err).WithField("report_id", r.ID).Warn("publish report.completed failed")
	}
}

// Get returns a report or nil when missing.
func (s *ReportService) Get(ctx context.Context, id uint64) (*model.Report, error) {
	return s.store.GetReport(ctx, id)
}

// List returns every report, newest first.
func (s *ReportService) List(ctx context.Context) ([]model.Report, error) {
	return s.store.ListReports(ctx)
}

// ListByUser returns a reporter's own reports.
func (s *ReportService) ListByUser(ctx context.Context, userID uint64) ([]model.Report, error) {
	return s.store.ListReportsByUser(ctx, userID)
}

// ListByStatus returns every report in status.
func (s *ReportService) ListByStatus(ctx context.Context, status model.Status) ([]model.Report, error) {
	return s.store.ListReportsByStatus(ctx, status)
}

// ListByCity returns the reports of a city, optionally narrowed to one
// status. The city is matched case-insensitively against the owners.
func (s *ReportService) ListByCity(ctx context.Context, city string, status *model.Status) ([]model.Report, error) {
	reports, err := s.store.ListReportsByCity(ctx, city)
	if err != nil || status == nil {
		return reports, err
	}
	filtered := reports[:0]
	for _, r := range reports {
		if r.Status == *status {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// CityStats counts a city's reports per status. Every status is present
// in the result.
func (s *ReportService) CityStats(ctx context.Context, city string) (map[model.Status]int, error) {
	reports, err := s.store.ListReportsByCity(ctx, city)
	if err != nil {
		return nil, err
	}
	stats := make(map[model.Status]int, len(model.Statuses))
	for _, st := range model.Statuses {
		stats[st] = 0
	}
	for _, r := range reports {
		stats[r.Status]++
	}
	return stats, nil
}

// Delete removes a report; false when it did not exist.
func (s *ReportService) Delete(ctx context.Context, id uint64) (bool, error) {
	ok, err := s.store.DeleteReport(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		s.gen.Bump(ctx)
		s.log.WithField("report_id", id).Info("report deleted")
	}
	return ok, nil
}
