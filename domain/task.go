package domain

import (
	"strings"
	"time"
)

// TaskStatus is the closed set of board columns a task can occupy.
type TaskStatus string

const (
	StatusBacklog    TaskStatus = "Backlog"
	StatusReady      TaskStatus = "Ready"
	StatusInProgress TaskStatus = "InProgress"
	StatusInReview   TaskStatus = "InReview"
	StatusDone       TaskStatus = "Done"
)

// Statuses returns the board columns in display order.
func Statuses() []TaskStatus {
	return []TaskStatus{StatusBacklog, StatusReady, StatusInProgress, StatusInReview, StatusDone}
}

// ParseStatus maps raw input to a status member. Only the canonical
// spelling of each member is accepted; near-miss strings are rejected.
func ParseStatus(raw string) (TaskStatus, bool) {
	switch TaskStatus(raw) {
	case StatusBacklog, StatusReady, StatusInProgress, StatusInReview, StatusDone:
		return TaskStatus(raw), true
	}
	return "", false
}

// Task represents a single board item.
type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	CreatedDate time.Time  `json:"createdDate"`
}

// Validate reports field-level problems keyed by form field name.
// An empty map means the task is fit to persist.
func (t Task) Validate() map[string]string {
	errs := make(map[string]string)
	if strings.TrimSpace(t.Title) == "" {
		errs["title"] = "The title is required."
	}
	if strings.TrimSpace(t.Description) == "" {
		errs["description"] = "The description is required."
	}
	return errs
}
