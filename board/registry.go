package board

import (
	"context"
	"sync"
)

// Repositories bundles the user-scoped persistence collaborators a
// store operates on.
type Repositories struct {
	Tasks      TaskRepository
	Categories CategoryRepository
}

// Factory builds the repositories for one user's board.
type Factory func(userID string) Repositories

// Registry owns one store per user, constructed lazily on first access.
// There is no ambient global state; callers hold a registry handle.
type Registry struct {
	mu      sync.Mutex
	factory Factory
	boards  map[string]*Store
}

// NewRegistry creates a registry using the given repository factory.
func NewRegistry(factory Factory) *Registry {
	if factory == nil {
		panic("board.NewRegistry: factory is nil")
	}
	return &Registry{factory: factory, boards: map[string]*Store{}}
}

// Board returns the user's store, loading categories and tasks on first
// access. A failed load is not cached; the next call retries.
func (r *Registry) Board(ctx context.Context, userID string) (*Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if store, ok := r.boards[userID]; ok {
		return store, nil
	}

	repos := r.factory(userID)
	store := New(repos.Tasks, repos.Categories)
	if err := store.LoadCategories(ctx); err != nil {
		return nil, err
	}
	if err := store.LoadTasks(ctx); err != nil {
		return nil, err
	}
	r.boards[userID] = store
	return store, nil
}
