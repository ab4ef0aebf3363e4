package model

import "time"

// AwardPoints is the number of reward points credited to a reporter the
// first time one of their reports reaches StatusCompleted.
const AwardPoints = 50

// Status is the lifecycle state of a report.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
)

// Statuses lists every valid status in lifecycle order.
var Statuses = []Status{StatusPending, StatusProcessing, StatusCompleted, StatusRejected}

// ParseStatus converts s into a Status. The second result is false for
// values outside the closed set.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusProcessing, StatusCompleted, StatusRejected:
		return st, true
	}
	return "", false
}

// Terminal reports whether no further work is expected on the report.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// Report represents a citizen submitted waste site report as stored in
// the `reports` table. The report's city is not stored; it is derived
// from the owning user.
//
// Fields:
//
//	ID              – primary key identifier.
//	UserID          – reporter (users.id), a weak reference.
//	Latitude        – decimal string, e.g. "40.7128".
//	Longitude       – decimal string, e.g. "-74.006".
//	Photo           – opaque image reference or URL.
//	Status          – lifecycle state.
//	AdminNotes      – free text left by the handling admin.
//	AssignedAdminID – admin handling the report.
//	RewardPoints    – points awarded, set on first completion only.
//	CompletedAt     – time of first completion.
type Report struct {
	ID              uint64     `json:"id"`                // reports.id
	UserID          uint64     `json:"user_id"`           // reports.user_id
	Title           string     `json:"title"`             // reports.title
	Description     string     `json:"description"`       // reports.description
	Address         string     `json:"address"`           // reports.address
	Latitude        string     `json:"latitude"`          // reports.latitude
	Longitude       string     `json:"longitude"`         // reports.longitude
	Photo           string     `json:"photo"`             // reports.photo
	Status          Status     `json:"status"`            // reports.status
	AdminNotes      *string    `json:"admin_notes"`       // reports.admin_notes
	AssignedAdminID *uint64    `json:"assigned_admin_id"` // reports.assigned_admin_id
	RewardPoints    *int       `json:"reward_points"`     // reports.reward_points
	CreatedAt       time.Time  `json:"created_at"`        // reports.created_at
	UpdatedAt       time.Time  `json:"updated_at"`        // reports.updated_at
	CompletedAt     *time.Time `json:"completed_at"`      // reports.completed_at
}

// NewReport carries the reporter supplied attributes of a report.
type NewReport struct {
	UserID      uint64
	Title       string
	Description string
	Address     string
	Latitude    string
	Longitude   string
	Photo       string
}

// Build returns the report as it must look right after creation.
func (n NewReport) Build(now time.Time) Report {
	return Report{
		UserID:      n.UserID,
		Title:       n.Title,
		Description: n.Description,
		Address:     n.Address,
		Latitude:    n.Latitude,
		Longitude:   n.Longitude,
		Photo:       n.Photo,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// StatusUpdate is the input of a status transition. AdminNotes and
// AssignedAdminID are only applied when non-nil.
type StatusUpdate struct {
	Status          Status
	AdminNotes      *string
	AssignedAdminID *uint64
}

// StatusChange describes the outcome of a committed transition.
type StatusChange struct {
	Report   Report
	Previous Status
	Awarded  int // points credited to the owner, 0 when none
}

// FirstCompletion reports whether this change awarded points.
func (c StatusChange) FirstCompletion() bool { return c.Awarded > 0 }

// Transition applies upd to r and returns the new report together with
// the number of points the owner must be credited. It is the only place
// that decides about awards:
//
//   - entering completed from any other status sets CompletedAt and
//     RewardPoints and awards AwardPoints;
//   - re-applying completed leaves CompletedAt and RewardPoints alone and
//     awards nothing;
//   - a report that already carries RewardPoints (completed once, then
//     moved elsewhere) is never awarded again.
//
// Any status may follow any other status.
func Transition(r Report, upd StatusUpdate, now time.Time) (Report, int) {
	next := r
	next.Status = upd.Status
	next.UpdatedAt = now
	if upd.AdminNotes != nil {
		notes := *upd.AdminNotes
		next.AdminNotes = &notes
	}
	if upd.AssignedAdminID != nil {
		id := *upd.AssignedAdminID
		next.AssignedAdminID = &id
	}

	if upd.Status != StatusCompleted || r.Status == StatusCompleted || r.RewardPoints != nil {
		return next, 0
	}
	completedAt := now
	points := AwardPoints
	next.CompletedAt = &completedAt
	next.RewardPoints = &points
	return next, points
}
