package board

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/etow/task-tracker/domain"
)

// OrderStep is the gap between assigned order values. Inserting between
// two neighbours never forces a renumber of the rest of the column.
const OrderStep = 1000

// ErrUnknownCategory is returned when an operation targets a category
// the board has not loaded.
var ErrUnknownCategory = errors.New("unknown category")

// TaskRepository persists board tasks. A returned error is the store's
// sole rollback trigger; implementations must fail the call on backend
// errors rather than resolving partially.
type TaskRepository interface {
	Tasks(ctx context.Context) ([]domain.Task, error)
	Create(ctx context.Context, task domain.Task) (domain.Task, error)
	Update(ctx context.Context, task domain.Task) (domain.Task, error)
	UpdateMany(ctx context.Context, tasks []domain.Task) ([]domain.Task, error)
	Delete(ctx context.Context, id string) error
}

// CategoryRepository loads the workflow stages for a board.
type CategoryRepository interface {
	Categories(ctx context.Context) ([]domain.Category, error)
}

// snapshot is a full, independent copy of the board state, taken before
// every mutating operation and consumed by Rollback.
type snapshot struct {
	tasks      map[string][]domain.Task
	categories map[string]domain.Category
	taskToEdit *domain.Task
}

// Store holds the authoritative in-memory board state for one user and
// serialises every mutation through a snapshot, optimistic apply,
// persist, rollback-on-failure protocol.
//
// The mutex covers snapshot and apply only; the persistence call runs
// outside it. Operations issued while another one is in flight observe
// the optimistic state, and a later rollback restores everything since
// its own snapshot. That coarse granularity is deliberate: rollback is a
// full-state restore, not a per-operation merge.
type Store struct {
	mu         sync.Mutex
	tasks      map[string][]domain.Task
	categories map[string]domain.Category
	taskToEdit *domain.Task
	prev       *snapshot

	taskRepo     TaskRepository
	categoryRepo CategoryRepository
}

// New creates an empty board store over the given repositories.
func New(tasks TaskRepository, categories CategoryRepository) *Store {
	return &Store{
		tasks:        map[string][]domain.Task{},
		categories:   map[string]domain.Category{},
		taskRepo:     tasks,
		categoryRepo: categories,
	}
}

// LoadCategories fetches the workflow stages and seeds one empty task
// bucket per category. It is all-or-nothing: on repository failure no
// category is initialised.
func (s *Store) LoadCategories(ctx context.Context) error {
	categories, err := s.categoryRepo.Categories(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, category := range categories {
		s.categories[category.Name] = category
		if _, ok := s.tasks[category.Name]; !ok {
			s.tasks[category.Name] = []domain.Task{}
		}
	}
	return nil
}

// LoadTasks fetches all tasks and buckets them by category, sorted by
// ascending order. Tasks referencing a category the board does not know
// are dropped; only loaded buckets are populated.
func (s *Store) LoadTasks(ctx context.Context) error {
	all, err := s.taskRepo.Tasks(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for category := range s.tasks {
		bucket := []domain.Task{}
		for _, task := range all {
			if task.Category == category {
				bucket = append(bucket, task.Clone())
			}
		}
		sort.SliceStable(bucket, func(i, j int) bool { return bucket[i].Order < bucket[j].Order })
		s.tasks[category] = bucket
	}
	return nil
}

// CreateTask assigns a fresh ID and an order past the end of the target
// category, appends the task optimistically and persists it. On
// persistence failure the store rolls itself back and returns the error.
func (s *Store) CreateTask(ctx context.Context, draft domain.Task) (domain.Task, error) {
	s.mu.Lock()
	bucket, ok := s.tasks[draft.Category]
	if !ok {
		s.mu.Unlock()
		return domain.Task{}, ErrUnknownCategory
	}
	s.backup()

	task := draft.Clone()
	task.ID = uuid.NewString()
	task.Order = maxOrder(bucket) + OrderStep
	s.tasks[draft.Category] = append(bucket, task.Clone())
	s.mu.Unlock()

	created, err := s.taskRepo.Create(ctx, task)
	if err != nil {
		s.Rollback()
		return domain.Task{}, err
	}
	s.applyCommitted(created)
	return created, nil
}

// UpdateTask replaces the task in place, or moves it across categories
// when prevCategory is set and differs from the task's current category.
// An update for a task the board does not hold is treated as an upsert.
// The repository runs the activity tracker before committing; the
// committed activity is copied back onto the optimistic state on success.
func (s *Store) UpdateTask(ctx context.Context, task domain.Task, prevCategory string) (domain.Task, error) {
	s.mu.Lock()
	bucket, ok := s.tasks[task.Category]
	if !ok {
		s.mu.Unlock()
		return domain.Task{}, ErrUnknownCategory
	}
	s.backup()

	local := task.Clone()
	if prevCategory != "" && prevCategory != task.Category {
		s.removeLocked(prevCategory, task.ID)
		bucket = s.tasks[task.Category]
		local.Order = maxOrder(bucket) + OrderStep
		s.tasks[task.Category] = append(bucket, local.Clone())
	} else if i := indexByID(bucket, task.ID); i >= 0 {
		bucket[i] = local.Clone()
	} else {
		local.Order = maxOrder(bucket) + OrderStep
		s.tasks[task.Category] = append(bucket, local.Clone())
	}
	s.taskToEdit = nil
	s.mu.Unlock()

	updated, err := s.taskRepo.Update(ctx, local)
	if err != nil {
		s.Rollback()
		return domain.Task{}, err
	}
	s.applyCommitted(updated)
	return updated, nil
}

// ReorderTasks reassigns gap-based orders according to the sequence
// positions, replaces the category bucket and persists the whole batch.
func (s *Store) ReorderTasks(ctx context.Context, tasks []domain.Task, category string) ([]domain.Task, error) {
	s.mu.Lock()
	if _, ok := s.tasks[category]; !ok {
		s.mu.Unlock()
		return nil, ErrUnknownCategory
	}
	s.backup()

	ordered := domain.CloneTasks(tasks)
	for i := range ordered {
		ordered[i].Category = category
		ordered[i].Order = (i + 1) * OrderStep
	}
	s.tasks[category] = domain.CloneTasks(ordered)
	s.mu.Unlock()

	updated, err := s.taskRepo.UpdateMany(ctx, ordered)
	if err != nil {
		s.Rollback()
		return nil, err
	}
	return updated, nil
}

// DeleteTask removes the task from the category bucket by ID and
// persists the deletion.
func (s *Store) DeleteTask(ctx context.Context, task domain.Task, category string) error {
	s.mu.Lock()
	if _, ok := s.tasks[category]; !ok {
		s.mu.Unlock()
		return ErrUnknownCategory
	}
	s.backup()
	s.removeLocked(category, task.ID)
	s.taskToEdit = nil
	s.mu.Unlock()

	if err := s.taskRepo.Delete(ctx, task.ID); err != nil {
		s.Rollback()
		return err
	}
	return nil
}

// SetTaskToEdit marks the task currently being edited. nil clears it.
// The snapshot makes entering and leaving edit mode rollback-capable.
func (s *Store) SetTaskToEdit(task *domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backup()
	if task == nil {
		s.taskToEdit = nil
		return
	}
	clone := task.Clone()
	s.taskToEdit = &clone
}

// Rollback unconditionally restores the whole state from the last
// snapshot via an independent deep copy. The snapshot survives the
// restore, so a repeated Rollback with no intervening mutation yields
// the same state again.
func (s *Store) Rollback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prev == nil {
		return
	}
	s.tasks = cloneBuckets(s.prev.tasks)
	s.categories = cloneCategories(s.prev.categories)
	s.taskToEdit = cloneTaskPtr(s.prev.taskToEdit)
}

// Tasks returns a deep copy of one category's task sequence.
func (s *Store) Tasks(category string) []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneTasks(s.tasks[category])
}

// TasksByCategory returns a deep copy of every bucket.
func (s *Store) TasksByCategory() map[string][]domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneBuckets(s.tasks)
}

// Categories returns a copy of the category map.
func (s *Store) Categories() map[string]domain.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneCategories(s.categories)
}

// TaskByID looks a task up across all buckets.
func (s *Store) TaskByID(id string) (domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, bucket := range s.tasks {
		if i := indexByID(bucket, id); i >= 0 {
			return bucket[i].Clone(), true
		}
	}
	return domain.Task{}, false
}

// TaskToEdit returns a copy of the task currently being edited, or nil.
func (s *Store) TaskToEdit() *domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTaskPtr(s.taskToEdit)
}

// backup overwrites the snapshot with a deep copy of the current state.
// Callers must hold the mutex.
func (s *Store) backup() {
	s.prev = &snapshot{
		tasks:      cloneBuckets(s.tasks),
		categories: cloneCategories(s.categories),
		taskToEdit: cloneTaskPtr(s.taskToEdit),
	}
}

// applyCommitted copies the committed activity log onto the optimistic
// local copy of the task.
func (s *Store) applyCommitted(committed domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.tasks[committed.Category]
	if i := indexByID(bucket, committed.ID); i >= 0 {
		bucket[i].Activity = committed.Activity.Clone()
	}
}

func (s *Store) removeLocked(category, id string) {
	bucket := s.tasks[category]
	if i := indexByID(bucket, id); i >= 0 {
		s.tasks[category] = append(bucket[:i:i], bucket[i+1:]...)
	}
}

func indexByID(bucket []domain.Task, id string) int {
	for i, task := range bucket {
		if task.ID == id {
			return i
		}
	}
	return -1
}

func maxOrder(bucket []domain.Task) int {
	max := 0
	for _, task := range bucket {
		if task.Order > max {
			max = task.Order
		}
	}
	return max
}

func cloneBuckets(buckets map[string][]domain.Task) map[string][]domain.Task {
	out := make(map[string][]domain.Task, len(buckets))
	for category, bucket := range buckets {
		cloned := domain.CloneTasks(bucket)
		if cloned == nil {
			cloned = []domain.Task{}
		}
		out[category] = cloned
	}
	return out
}

func cloneCategories(categories map[string]domain.Category) map[string]domain.Category {
	out := make(map[string]domain.Category, len(categories))
	for name, category := range categories {
		out[name] = category
	}
	return out
}

func cloneTaskPtr(task *domain.Task) *domain.Task {
	if task == nil {
		return nil
	}
	clone := task.Clone()
	return &clone
}
