// Package queue defines message payloads exchanged over the message broker
// and the consumer that turns them into reporter notifications.
package queue

// ReportCompletedQueue is the durable queue carrying ReportCompletedEvent.
const ReportCompletedQueue = "report.completed"

// ReportCompletedEvent is published after a report is completed for the
// first time and its owner has been credited. It carries enough for a
// consumer to notify the reporter without reading the database.
type ReportCompletedEvent struct {
	EventID         string  `json:"event_id"`
	ReportID        uint64  `json:"report_id"`
	UserID          uint64  `json:"user_id"`
	Title           string  `json:"title"`
	Address         string  `json:"address"`
	PointsAwarded   int     `json:"points_awarded"`
	AssignedAdminID *uint64 `json:"assigned_admin_id,omitempty"`
	AdminNotes      *string `json:"admin_notes,omitempty"`
	CompletedAt     string  `json:"completed_at"` // RFC 3339, UTC
}
