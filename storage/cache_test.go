package storage

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"kaban-board/domain"
)

type countingBackend struct {
	tasks []domain.Task
	lists int
}

func (b *countingBackend) ListTasks(ctx context.Context) ([]domain.Task, error) {
	b.lists++
	out := make([]domain.Task, len(b.tasks))
	copy(out, b.tasks)
	return out, nil
}

func (b *countingBackend) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	for _, t := range b.tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.Task{}, ErrTaskNotFound
}

func (b *countingBackend) InsertTask(ctx context.Context, t *domain.Task) error {
	t.ID = int64(len(b.tasks) + 1)
	b.tasks = append(b.tasks, *t)
	return nil
}

func (b *countingBackend) UpdateTask(ctx context.Context, t domain.Task) error {
	for i := range b.tasks {
		if b.tasks[i].ID == t.ID {
			b.tasks[i] = t
			return nil
		}
	}
	return ErrTaskNotFound
}

func (b *countingBackend) DeleteTask(ctx context.Context, id int64) error {
	for i := range b.tasks {
		if b.tasks[i].ID == id {
			b.tasks = append(b.tasks[:i], b.tasks[i+1:]...)
			return nil
		}
	}
	return ErrTaskNotFound
}

func newTestCache(t *testing.T, base backend) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		if cerr := client.Close(); cerr != nil {
			t.Logf("redis close: %v", cerr)
		}
	})
	return NewCache(base, client, time.Minute), m
}

func TestCacheServesSecondListFromRedis(t *testing.T) {
	base := &countingBackend{tasks: []domain.Task{{ID: 1, Title: "t", Description: "d", Status: domain.StatusBacklog, CreatedDate: time.Now().UTC().Truncate(time.Second)}}}
	cache, _ := newTestCache(t, base)
	ctx := context.Background()

	if _, err := cache.ListTasks(ctx); err != nil {
		t.Fatalf("first list: %v", err)
	}
	tasks, err := cache.ListTasks(ctx)
	if err != nil {
		t.Fatalf("second list: %v", err)
	}
	if base.lists != 1 {
		t.Fatalf("expected backend hit once, got %d", base.lists)
	}
	if len(tasks) != 1 || tasks[0].Title != "t" {
		t.Fatalf("unexpected cached tasks: %+v", tasks)
	}
}

func TestCacheEvictedOnMutation(t *testing.T) {
	base := &countingBackend{}
	cache, m := newTestCache(t, base)
	ctx := context.Background()

	if _, err := cache.ListTasks(ctx); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !m.Exists(boardCacheKey) {
		t.Fatal("expected list to be cached")
	}

	task := domain.Task{Title: "new", Description: "d", Status: domain.StatusReady, CreatedDate: time.Now().UTC()}
	if err := cache.InsertTask(ctx, &task); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if m.Exists(boardCacheKey) {
		t.Fatal("expected cache eviction after insert")
	}

	tasks, err := cache.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list after insert: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected fresh list with 1 task, got %d", len(tasks))
	}
	if base.lists != 2 {
		t.Fatalf("expected backend hit twice, got %d", base.lists)
	}
}

func TestCacheFallsBackWhenRedisDown(t *testing.T) {
	base := &countingBackend{tasks: []domain.Task{{ID: 1, Title: "t", Description: "d", Status: domain.StatusDone, CreatedDate: time.Now().UTC()}}}
	cache, m := newTestCache(t, base)
	m.Close()

	tasks, err := cache.ListTasks(context.Background())
	if err != nil {
		t.Fatalf("list with redis down: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected backend result, got %+v", tasks)
	}
}
