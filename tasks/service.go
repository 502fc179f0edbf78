// Package tasks holds the board's application logic: validation, status
// coercion and the store access pattern shared by every HTTP operation.
package tasks

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"kaban-board/domain"
	"kaban-board/storage"
)

var (
	// ErrNotFound is returned when an id addresses no stored task.
	ErrNotFound = errors.New("task not found")
	// ErrInvalidStatus is returned when a raw status value is not a
	// canonical member of the status enum.
	ErrInvalidStatus = errors.New("invalid status value")
)

// ValidationError carries field-level messages keyed by form field name.
type ValidationError map[string]string

func (e ValidationError) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return "invalid task: " + strings.Join(fields, ", ")
}

// Store abstracts task persistence for the service.
type Store interface {
	ListTasks(ctx context.Context) ([]domain.Task, error)
	GetTask(ctx context.Context, id int64) (domain.Task, error)
	InsertTask(ctx context.Context, t *domain.Task) error
	UpdateTask(ctx context.Context, t domain.Task) error
	DeleteTask(ctx context.Context, id int64) error
}

// Service mediates between request-level input and the store.
type Service struct {
	store Store
	log   *log.Logger
}

// NewService creates a Service backed by the given store.
func NewService(store Store, logger *log.Logger) *Service {
	return &Service{store: store, log: logger}
}

// List returns all tasks in insertion order.
func (s *Service) List(ctx context.Context) ([]domain.Task, error) {
	return s.store.ListTasks(ctx)
}

// Create validates the candidate and persists it with a fresh id. An
// empty status defaults to Backlog; an unparseable one is a field error.
// Nothing is written when validation fails.
func (s *Service) Create(ctx context.Context, candidate domain.Task) (domain.Task, error) {
	if err := s.coerce(&candidate); err != nil {
		return domain.Task{}, err
	}
	if candidate.CreatedDate.IsZero() {
		candidate.CreatedDate = time.Now().UTC()
	}
	candidate.ID = 0
	if err := s.store.InsertTask(ctx, &candidate); err != nil {
		return domain.Task{}, err
	}
	s.log.WithFields(log.Fields{"task_id": candidate.ID, "status": candidate.Status}).Info("task created")
	return candidate, nil
}

// Get fetches a single task by id.
func (s *Service) Get(ctx context.Context, id int64) (domain.Task, error) {
	task, err := s.store.GetTask(ctx, id)
	if errors.Is(err, storage.ErrTaskNotFound) {
		return domain.Task{}, ErrNotFound
	}
	return task, err
}

// Update replaces all mutable fields of an existing task. The creation
// date is immutable and carried over from the stored task.
func (s *Service) Update(ctx context.Context, candidate domain.Task) (domain.Task, error) {
	existing, err := s.Get(ctx, candidate.ID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := s.coerce(&candidate); err != nil {
		return domain.Task{}, err
	}
	candidate.CreatedDate = existing.CreatedDate
	if err := s.storeUpdate(ctx, candidate); err != nil {
		return domain.Task{}, err
	}
	s.log.WithField("task_id", candidate.ID).Info("task updated")
	return candidate, nil
}

// Delete removes the task if present. Deleting an unknown id is a no-op,
// which keeps double-submits and stale board entries harmless.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.store.DeleteTask(ctx, id)
	if errors.Is(err, storage.ErrTaskNotFound) {
		return nil
	}
	if err == nil {
		s.log.WithField("task_id", id).Info("task deleted")
	}
	return err
}

// UpdateStatus replaces only the status of an existing task. The task is
// looked up before the raw value is parsed, so an unknown id wins over an
// invalid status; either failure leaves the stored task untouched.
func (s *Service) UpdateStatus(ctx context.Context, id int64, rawStatus string) (domain.Task, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	status, ok := domain.ParseStatus(rawStatus)
	if !ok {
		return domain.Task{}, ErrInvalidStatus
	}
	task.Status = status
	if err := s.storeUpdate(ctx, task); err != nil {
		return domain.Task{}, err
	}
	s.log.WithFields(log.Fields{"task_id": id, "status": status}).Info("task status updated")
	return task, nil
}

// coerce validates required fields and folds the status into the enum.
func (s *Service) coerce(candidate *domain.Task) error {
	errs := ValidationError(candidate.Validate())
	if candidate.Status == "" {
		candidate.Status = domain.StatusBacklog
	} else if _, ok := domain.ParseStatus(string(candidate.Status)); !ok {
		errs["status"] = "Unknown status value."
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (s *Service) storeUpdate(ctx context.Context, t domain.Task) error {
	err := s.store.UpdateTask(ctx, t)
	if errors.Is(err, storage.ErrTaskNotFound) {
		return ErrNotFound
	}
	return err
}
