package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"kaban-board/domain"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if cerr := s.Close(); cerr != nil {
			t.Logf("close sqlite: %v", cerr)
		}
	})
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return s
}

func TestSQLiteInsertAssignsIDsAndListsInInsertionOrder(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	titles := []string{"first", "second", "third"}
	var ids []int64
	for _, title := range titles {
		task := domain.Task{
			Title:       title,
			Description: "d",
			Status:      domain.StatusBacklog,
			CreatedDate: time.Now().UTC().Truncate(time.Second),
		}
		if err := s.InsertTask(ctx, &task); err != nil {
			t.Fatalf("insert %q: %v", title, err)
		}
		if task.ID == 0 {
			t.Fatalf("expected assigned id for %q", title)
		}
		ids = append(ids, task.ID)
	}

	tasks, err := s.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != len(titles) {
		t.Fatalf("expected %d tasks, got %d", len(titles), len(tasks))
	}
	for i, task := range tasks {
		if task.Title != titles[i] {
			t.Fatalf("order changed: position %d is %q", i, task.Title)
		}
		if task.ID != ids[i] {
			t.Fatalf("unexpected id at %d: %d", i, task.ID)
		}
	}
}

func TestSQLiteGetRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	created := time.Date(2026, 8, 25, 8, 0, 0, 0, time.UTC)
	task := domain.Task{
		Title:       "Write release notes",
		Description: "Draft design doc",
		Status:      domain.StatusInReview,
		CreatedDate: created,
	}
	if err := s.InsertTask(ctx, &task); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != task {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, task)
	}
}

func TestSQLiteGetUnknownID(t *testing.T) {
	s := newTestSQLite(t)
	if _, err := s.GetTask(context.Background(), 999); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestSQLiteUpdateReplacesFields(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	task := domain.Task{Title: "old", Description: "old", Status: domain.StatusBacklog, CreatedDate: time.Now().UTC().Truncate(time.Second)}
	if err := s.InsertTask(ctx, &task); err != nil {
		t.Fatalf("insert: %v", err)
	}

	task.Title = "new"
	task.Status = domain.StatusDone
	if err := s.UpdateTask(ctx, task); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "new" || got.Status != domain.StatusDone {
		t.Fatalf("update not persisted: %+v", got)
	}
}

func TestSQLiteUpdateUnknownID(t *testing.T) {
	s := newTestSQLite(t)
	err := s.UpdateTask(context.Background(), domain.Task{ID: 12345, Title: "t", Description: "d", Status: domain.StatusDone, CreatedDate: time.Now()})
	if !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestSQLiteDeleteReportsMissingRow(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	task := domain.Task{Title: "t", Description: "d", Status: domain.StatusBacklog, CreatedDate: time.Now().UTC()}
	if err := s.InsertTask(ctx, &task); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteTask(ctx, task.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound on second delete, got %v", err)
	}
	if _, err := s.GetTask(ctx, task.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected task gone, got %v", err)
	}
}

func TestSQLiteIDsNotReusedAfterDelete(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	first := domain.Task{Title: "a", Description: "d", Status: domain.StatusBacklog, CreatedDate: time.Now().UTC()}
	if err := s.InsertTask(ctx, &first); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.DeleteTask(ctx, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	second := domain.Task{Title: "b", Description: "d", Status: domain.StatusBacklog, CreatedDate: time.Now().UTC()}
	if err := s.InsertTask(ctx, &second); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if second.ID <= first.ID {
		t.Fatalf("id reused: first=%d second=%d", first.ID, second.ID)
	}
}
