package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"kaban-board/domain"
)

// SQLite persists tasks in a local SQLite database. It is the default
// driver for single-node deployments; the table layout mirrors the
// aztables entity with status stored as its canonical string.
type SQLite struct {
	db *sql.DB
}

// NewSQLite wraps an opened database handle.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// OpenSQLite opens (and creates if needed) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// modernc.org/sqlite serializes writes; one connection avoids
	// SQLITE_BUSY churn under concurrent handlers.
	db.SetMaxOpenConns(1)
	return &SQLite{db: db}, nil
}

// Init creates the tasks table when it does not exist yet. AUTOINCREMENT
// keeps deleted ids from ever being reused.
func (s *SQLite) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tasks (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			title        TEXT NOT NULL,
			description  TEXT NOT NULL,
			status       TEXT NOT NULL,
			created_date TEXT NOT NULL
		)`)
	return err
}

// Close closes the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// ListTasks returns every task in insertion order.
func (s *SQLite) ListTasks(ctx context.Context) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, status, created_date FROM tasks ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// GetTask fetches a single task by id.
func (s *SQLite) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, status, created_date FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, ErrTaskNotFound
	}
	return task, err
}

// InsertTask stores the task and assigns its id from the database.
func (s *SQLite) InsertTask(ctx context.Context, t *domain.Task) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (title, description, status, created_date) VALUES (?,?,?,?)`,
		t.Title, t.Description, string(t.Status), t.CreatedDate.UTC().Format(createdDateFormat),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = id
	return nil
}

// UpdateTask replaces all mutable fields of an existing task.
func (s *SQLite) UpdateTask(ctx context.Context, t domain.Task) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET title=?, description=?, status=?, created_date=? WHERE id=?`,
		t.Title, t.Description, string(t.Status), t.CreatedDate.UTC().Format(createdDateFormat), t.ID,
	)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// DeleteTask removes the task with the given id.
func (s *SQLite) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (domain.Task, error) {
	var (
		task    domain.Task
		status  string
		created string
	)
	if err := row.Scan(&task.ID, &task.Title, &task.Description, &status, &created); err != nil {
		return domain.Task{}, err
	}
	createdDate, err := time.Parse(createdDateFormat, created)
	if err != nil {
		return domain.Task{}, fmt.Errorf("malformed created date %q: %w", created, err)
	}
	task.Status = domain.TaskStatus(status)
	task.CreatedDate = createdDate
	return task, nil
}
