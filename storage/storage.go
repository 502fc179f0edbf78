package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"kaban-board/domain"
)

// ErrTaskNotFound is returned when an id does not address a stored task.
var ErrTaskNotFound = errors.New("task not found")

// All tasks live on one board, so a single partition holds every row.
const boardPartition = "board"

const createdDateFormat = time.RFC3339Nano

// Storage persists tasks in Azure Table storage.
type Storage struct {
	taskTable *aztables.Client
}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{taskTable: svc.NewClient(tasksTable)}, nil
}

// Init creates the task table when it does not exist yet.
func (s *Storage) Init(ctx context.Context) error {
	_, err := s.taskTable.CreateTable(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists) {
			return nil
		}
		return err
	}
	return nil
}

type taskEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Status      string `json:"Status"`
	CreatedDate string `json:"CreatedDate"`
}

// rowKey zero-pads ids so the pager's lexical row-key order equals
// numeric insertion order.
func rowKey(id int64) string {
	return fmt.Sprintf("%020d", id)
}

func encodeTask(t domain.Task) ([]byte, error) {
	ent := taskEntity{
		Entity: aztables.Entity{
			PartitionKey: boardPartition,
			RowKey:       rowKey(t.ID),
		},
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		CreatedDate: t.CreatedDate.UTC().Format(createdDateFormat),
	}
	return json.Marshal(ent)
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	id, err := strconv.ParseInt(ent.RowKey, 10, 64)
	if err != nil {
		return domain.Task{}, fmt.Errorf("malformed row key %q: %w", ent.RowKey, err)
	}
	created, err := time.Parse(createdDateFormat, ent.CreatedDate)
	if err != nil {
		return domain.Task{}, fmt.Errorf("malformed created date %q: %w", ent.CreatedDate, err)
	}
	return domain.Task{
		ID:          id,
		Title:       ent.Title,
		Description: ent.Description,
		Status:      domain.TaskStatus(ent.Status),
		CreatedDate: created,
	}, nil
}

// ListTasks retrieves every task on the board in insertion order.
func (s *Storage) ListTasks(ctx context.Context) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + boardPartition + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			task, err := decodeTaskEntity(e)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

// GetTask fetches a single task by id.
func (s *Storage) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	resp, err := s.taskTable.GetEntity(ctx, boardPartition, rowKey(id), nil)
	if err != nil {
		return domain.Task{}, mapNotFound(err)
	}
	return decodeTaskEntity(resp.Value)
}

// InsertTask assigns a fresh id to the task and stores it. Ids are
// monotonic, so they are never reused and row-key order stays insertion
// order.
func (s *Storage) InsertTask(ctx context.Context, t *domain.Task) error {
	t.ID = nextTaskID()
	data, err := encodeTask(*t)
	if err != nil {
		return err
	}
	_, err = s.taskTable.AddEntity(ctx, data, nil)
	return err
}

// UpdateTask replaces the stored task with the given one. The write is
// unconditional; concurrent writers race and the last one wins.
func (s *Storage) UpdateTask(ctx context.Context, t domain.Task) error {
	data, err := encodeTask(t)
	if err != nil {
		return err
	}
	_, err = s.taskTable.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{
		UpdateMode: aztables.UpdateModeReplace,
	})
	return mapNotFound(err)
}

// DeleteTask removes the task with the given id.
func (s *Storage) DeleteTask(ctx context.Context, id int64) error {
	_, err := s.taskTable.DeleteEntity(ctx, boardPartition, rowKey(id), nil)
	return mapNotFound(err)
}

func mapNotFound(err error) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return ErrTaskNotFound
	}
	return err
}

var lastTaskID int64

// nextTaskID hands out strictly increasing ids even when the clock
// stands still or steps backwards.
func nextTaskID() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTaskID)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTaskID, last, now) {
			return now
		}
	}
}
