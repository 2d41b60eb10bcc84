package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"github.com/etow/task-tracker/domain"
)

type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// Storage provides access to the underlying persistence mechanisms:
// one table for tasks, one for categories, both partitioned by user,
// and a queue carrying board change events. It is also the persistence
// layer that runs the activity tracker before a category change commits.
type Storage struct {
	taskTable     *aztables.Client
	categoryTable *aztables.Client
	eventQueue    queueClient

	// now yields unix milliseconds; replaced in tests.
	now func() int64
}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable, categoriesTable, eventsQueue string) (*Storage, error) {
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
	tt := svc.NewClient(tasksTable)
	ct := svc.NewClient(categoriesTable)
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	eq, err := azqueue.NewQueueClientFromConnectionString(connStr, eventsQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		taskTable:     tt,
		categoryTable: ct,
		eventQueue:    eq,
		now:           func() int64 { return time.Now().UnixMilli() },
	}, nil
}

type taskEntity struct {
	aztables.Entity
	Name     string `json:"Name"`
	Category string `json:"Category"`
	Order    int    `json:"Order"`
	Estimate int    `json:"Estimate"`
	// Activity is the JSON-encoded interval log; tables have no nested types.
	Activity string `json:"Activity"`
}

type categoryEntity struct {
	aztables.Entity
	Color         string `json:"Color"`
	EndOfWorkflow bool   `json:"EndOfWorkflow"`
}

func encodeTaskEntity(userID string, task domain.Task) (taskEntity, error) {
	activity, err := json.Marshal(task.Activity)
	if err != nil {
		return taskEntity{}, err
	}
	return taskEntity{
		Entity:   aztables.Entity{PartitionKey: userID, RowKey: task.ID},
		Name:     task.Name,
		Category: task.Category,
		Order:    task.Order,
		Estimate: task.Estimate,
		Activity: string(activity),
	}, nil
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	task := domain.Task{
		ID:       ent.RowKey,
		Name:     ent.Name,
		Category: ent.Category,
		Order:    ent.Order,
		Estimate: ent.Estimate,
		Activity: domain.Activity{},
	}
	if ent.Activity != "" {
		if err := json.Unmarshal([]byte(ent.Activity), &task.Activity); err != nil {
			return domain.Task{}, err
		}
	}
	return task, nil
}

// FetchTasks retrieves all tasks for the provided user.
func (s *Storage) FetchTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + userID + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapNotFound(err)
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

// FetchCategories retrieves the user's workflow stages. A user with no
// stored categories gets the default workflow seeded and returned.
func (s *Storage) FetchCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	filter := "PartitionKey eq '" + userID + "'"
	pager := s.categoryTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	categories := []domain.Category{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapNotFound(err)
		}
		for _, e := range resp.Entities {
			var ent categoryEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			categories = append(categories, domain.Category{
				Name:          ent.RowKey,
				Color:         ent.Color,
				EndOfWorkflow: ent.EndOfWorkflow,
			})
		}
	}
	if len(categories) > 0 {
		return categories, nil
	}
	return s.seedCategories(ctx, userID)
}

func (s *Storage) seedCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	for _, category := range DefaultCategories {
		ent := categoryEntity{
			Entity:        aztables.Entity{PartitionKey: userID, RowKey: category.Name},
			Color:         category.Color,
			EndOfWorkflow: category.EndOfWorkflow,
		}
		data, err := json.Marshal(ent)
		if err != nil {
			return nil, err
		}
		if _, err := s.categoryTable.UpsertEntity(ctx, data, nil); err != nil {
			return nil, mapNotFound(err)
		}
	}
	return append([]domain.Category(nil), DefaultCategories...), nil
}

// CreateTask opens the task's first activity interval and inserts it.
func (s *Storage) CreateTask(ctx context.Context, userID string, task domain.Task) (domain.Task, error) {
	domain.RecordCategoryChange(&task, nil, s.now())
	ent, err := encodeTaskEntity(userID, task)
	if err != nil {
		return domain.Task{}, err
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.taskTable.AddEntity(ctx, data, nil); err != nil {
		return domain.Task{}, mapNotFound(err)
	}
	return task, nil
}

func (s *Storage) getTask(ctx context.Context, userID, id string) (*domain.Task, error) {
	resp, err := s.taskTable.GetEntity(ctx, userID, id, nil)
	if err != nil {
		return nil, mapNotFound(err)
	}
	task, err := decodeTaskEntity(resp.Value)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask upserts the task. When the stored version's category
// differs from the incoming one, the activity tracker closes the old
// interval and opens a new one before the write. A task missing from
// the table is inserted as-is, matching the store's upsert semantics.
func (s *Storage) UpdateTask(ctx context.Context, userID string, task domain.Task) (domain.Task, error) {
	prev, err := s.getTask(ctx, userID, task.ID)
	if err != nil && !errors.Is(err, ErrItemNotFound) {
		return domain.Task{}, err
	}
	domain.RecordCategoryChange(&task, prev, s.now())

	ent, err := encodeTaskEntity(userID, task)
	if err != nil {
		return domain.Task{}, err
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.taskTable.UpsertEntity(ctx, data, nil); err != nil {
		return domain.Task{}, mapNotFound(err)
	}
	return task, nil
}

// UpdateTasks persists a batch of tasks, used for bulk reorders.
func (s *Storage) UpdateTasks(ctx context.Context, userID string, tasks []domain.Task) ([]domain.Task, error) {
	updated := make([]domain.Task, 0, len(tasks))
	for _, task := range tasks {
		u, err := s.UpdateTask(ctx, userID, task)
		if err != nil {
			return nil, err
		}
		updated = append(updated, u)
	}
	return updated, nil
}

// DeleteTask removes the task row.
func (s *Storage) DeleteTask(ctx context.Context, userID, id string) error {
	if _, err := s.taskTable.DeleteEntity(ctx, userID, id, nil); err != nil {
		return mapNotFound(err)
	}
	return nil
}

// EnqueueEvents sends the given events to the events queue.
func (s *Storage) EnqueueEvents(ctx context.Context, userID string, events []domain.Event) error {
	for _, ev := range events {
		ev.UserID = userID
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := s.eventQueue.EnqueueMessage(ctx, string(data), nil); err != nil {
			return err
		}
	}
	return nil
}
