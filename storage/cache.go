package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/etow/task-tracker/domain"
)

type backend interface {
	FetchTasks(ctx context.Context, userID string) ([]domain.Task, error)
	FetchCategories(ctx context.Context, userID string) ([]domain.Category, error)
	CreateTask(ctx context.Context, userID string, task domain.Task) (domain.Task, error)
	UpdateTask(ctx context.Context, userID string, task domain.Task) (domain.Task, error)
	UpdateTasks(ctx context.Context, userID string, tasks []domain.Task) ([]domain.Task, error)
	DeleteTask(ctx context.Context, userID, id string) error
	EnqueueEvents(ctx context.Context, userID string, events []domain.Event) error
}

// Cache wraps a Storage instance with Redis-backed caching for read
// operations. Every write path evicts the user's cached board; redis
// failures degrade to the backing storage without failing the call.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis
// client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) FetchTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	if tasks, ok := c.loadTasksFromCache(ctx, userID); ok {
		return tasks, nil
	}

	tasks, err := c.base.FetchTasks(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.store(ctx, tasksCacheKey(userID), tasks)
	return tasks, nil
}

func (c *Cache) FetchCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	if categories, ok := c.loadCategoriesFromCache(ctx, userID); ok {
		return categories, nil
	}

	categories, err := c.base.FetchCategories(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.store(ctx, categoriesCacheKey(userID), categories)
	return categories, nil
}

func (c *Cache) CreateTask(ctx context.Context, userID string, task domain.Task) (domain.Task, error) {
	created, err := c.base.CreateTask(ctx, userID, task)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, userID)
	return created, nil
}

func (c *Cache) UpdateTask(ctx context.Context, userID string, task domain.Task) (domain.Task, error) {
	updated, err := c.base.UpdateTask(ctx, userID, task)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, userID)
	return updated, nil
}

func (c *Cache) UpdateTasks(ctx context.Context, userID string, tasks []domain.Task) ([]domain.Task, error) {
	updated, err := c.base.UpdateTasks(ctx, userID, tasks)
	if err != nil {
		return nil, err
	}
	c.evict(ctx, userID)
	return updated, nil
}

func (c *Cache) DeleteTask(ctx context.Context, userID, id string) error {
	if err := c.base.DeleteTask(ctx, userID, id); err != nil {
		return err
	}
	c.evict(ctx, userID)
	return nil
}

func (c *Cache) EnqueueEvents(ctx context.Context, userID string, events []domain.Event) error {
	return c.base.EnqueueEvents(ctx, userID, events)
}

func (c *Cache) loadTasksFromCache(ctx context.Context, userID string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, tasksCacheKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, tasksCacheKey(userID)).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, tasksCacheKey(userID)).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) loadCategoriesFromCache(ctx context.Context, userID string) ([]domain.Category, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, categoriesCacheKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, categoriesCacheKey(userID)).Err()
		}
		return nil, false
	}
	var categories []domain.Category
	if err := json.Unmarshal(data, &categories); err != nil {
		_ = c.redis.Del(ctx, categoriesCacheKey(userID)).Err()
		return nil, false
	}
	return categories, true
}

func (c *Cache) store(ctx context.Context, key string, value any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, userID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, tasksCacheKey(userID), categoriesCacheKey(userID)).Result()
}

func tasksCacheKey(userID string) string {
	return "tasks:" + userID
}

func categoriesCacheKey(userID string) string {
	return "categories:" + userID
}
